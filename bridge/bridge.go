// SPDX-License-Identifier: GPL-2.0-only

// Package bridge implements the call contract of a native USB host-access
// library on top of an asynchronous device communication channel. The
// emulated entry points keep the library's synchronous and asynchronous
// semantics, its binary descriptor layouts and its transfer lifecycle, so
// client code written against that contract keeps working unchanged.
package bridge

import (
	"math"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamias/usbbridge/libusb"
	"github.com/tamias/usbbridge/provider"
)

// The channel does not expose bus topology, so every device reports this
// placeholder bus number.
const fakeBusNumber = 42

// defaultHandleEventsTimeout bounds HandleEvents calls made without an
// explicit timeout.
const defaultHandleEventsTimeout = 60 * time.Second

// Bridge is the facade implementing every emulated entry point. It owns the
// implicit default Context used by callers that pass nil.
type Bridge struct {
	provider       provider.Provider
	logger         log.Logger
	defaultContext *Context
	metrics        *metrics
}

// New creates a Bridge over the given channel. A nil logger disables
// logging; a nil registerer disables metrics.
func New(p provider.Provider, logger log.Logger, reg prometheus.Registerer) *Bridge {
	if p == nil {
		panic("bridge: nil provider")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Bridge{
		provider:       p,
		logger:         logger,
		defaultContext: newContext(),
		metrics:        newMetrics(reg),
	}
}

// NewContext creates an explicit Context, independent of the default one.
func (b *Bridge) NewContext() *Context {
	return newContext()
}

// Exit tears down an explicit Context. The default context (nil) is kept
// alive for the lifetime of the Bridge.
func (b *Bridge) Exit(ctx *Context) {
	if ctx == nil {
		return
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.pending = nil
}

func (b *Bridge) contextOrDefault(ctx *Context) *Context {
	if ctx != nil {
		return ctx
	}
	return b.defaultContext
}

// transferContext resolves the Context a transfer belongs to, or nil when
// the transfer has no device handle attached yet.
func (b *Bridge) transferContext(t *Transfer) *Context {
	if t == nil || t.DevHandle == nil || t.DevHandle.device == nil {
		return nil
	}
	return b.contextOrDefault(t.DevHandle.device.ctx)
}

func (b *Bridge) transferContextChecked(t *Transfer) *Context {
	ctx := b.transferContext(t)
	if ctx == nil {
		panic("bridge: transfer is not attached to a device")
	}
	return ctx
}

// GetDeviceList enumerates the devices currently visible on the channel.
// Each returned device holds one reference; FreeDeviceList with unref=true
// drops them all.
func (b *Bridge) GetDeviceList(ctx *Context) ([]*Device, error) {
	ctx = b.contextOrDefault(ctx)

	devices, err := b.provider.GetDevices()
	if err != nil {
		_ = level.Warn(b.logger).Log("msg", "device enumeration failed", "err", err)
		return nil, libusb.ErrorOther
	}

	list := make([]*Device, len(devices))
	for i, dev := range devices {
		list[i] = newDevice(ctx, dev)
	}
	return list, nil
}

// FreeDeviceList releases a device list returned by GetDeviceList,
// optionally dropping the reference each entry holds.
func (b *Bridge) FreeDeviceList(list []*Device, unrefDevices bool) {
	if list == nil {
		return
	}
	if unrefDevices {
		for _, dev := range list {
			b.UnrefDevice(dev)
		}
	}
}

// RefDevice takes an additional shared reference and returns the device.
func (b *Bridge) RefDevice(dev *Device) *Device {
	if dev == nil {
		panic("bridge: nil device")
	}
	dev.addReference()
	return dev
}

// UnrefDevice drops one reference; the device snapshot is destroyed when the
// last reference goes.
func (b *Bridge) UnrefDevice(dev *Device) {
	if dev == nil {
		panic("bridge: nil device")
	}
	dev.removeReference()
}

// GetDeviceDescriptor builds the device descriptor from the enumeration
// snapshot. No channel round-trip is needed.
func (b *Bridge) GetDeviceDescriptor(dev *Device) (libusb.DeviceDescriptor, error) {
	if dev == nil {
		panic("bridge: nil device")
	}
	return buildDeviceDescriptor(dev.info), nil
}

// GetActiveConfigDescriptor fetches the device's configurations from the
// channel and builds the descriptor tree for the single active one. Zero
// active configurations is a channel failure; more than one violates the
// channel's contract and is fatal.
func (b *Bridge) GetActiveConfigDescriptor(dev *Device) (*libusb.ConfigDescriptor, error) {
	if dev == nil {
		panic("bridge: nil device")
	}

	configs, err := b.provider.GetConfigurations(dev.info)
	if err != nil {
		_ = level.Warn(b.logger).Log("msg", "configuration lookup failed", "device", dev.info.ID, "err", err)
		return nil, libusb.ErrorOther
	}

	var result *libusb.ConfigDescriptor
	for _, config := range configs {
		if !config.Active {
			continue
		}
		if result != nil {
			panic("bridge: channel reported more than one active configuration")
		}
		built := buildConfigDescriptor(config)
		result = &built
	}
	if result == nil {
		_ = level.Warn(b.logger).Log("msg", "no active configuration reported", "device", dev.info.ID)
		return nil, libusb.ErrorOther
	}
	return result, nil
}

// FreeConfigDescriptor releases a descriptor tree built by
// GetActiveConfigDescriptor. A nil descriptor is a no-op.
func (b *Bridge) FreeConfigDescriptor(config *libusb.ConfigDescriptor) {
	if config == nil {
		return
	}
	config.Release()
}

// GetBusNumber returns the placeholder bus number; the channel has no way
// of retrieving the real one.
func (b *Bridge) GetBusNumber(_ *Device) uint8 {
	return fakeBusNumber
}

// GetDeviceAddress maps the channel-assigned device identifier onto the
// one-byte device address.
func (b *Bridge) GetDeviceAddress(dev *Device) uint8 {
	if dev == nil {
		panic("bridge: nil device")
	}
	if dev.info.ID < 0 || dev.info.ID > math.MaxUint8 {
		panic("bridge: device identifier does not fit a device address")
	}
	return uint8(dev.info.ID)
}

// Open opens a connection to the device and wraps it in a handle.
func (b *Bridge) Open(dev *Device) (*DeviceHandle, error) {
	if dev == nil {
		panic("bridge: nil device")
	}
	conn, err := b.provider.OpenDevice(dev.info)
	if err != nil {
		_ = level.Warn(b.logger).Log("msg", "device open failed", "device", dev.info.ID, "err", err)
		return nil, libusb.ErrorOther
	}
	b.metrics.openHandles.Inc()
	return &DeviceHandle{device: dev, conn: conn}, nil
}

// Close closes the handle's connection. A channel failure here is logged
// and swallowed: close runs on shutdown paths that must not fail.
func (b *Bridge) Close(handle *DeviceHandle) {
	if handle == nil {
		panic("bridge: nil device handle")
	}
	if err := b.provider.CloseDevice(handle.conn); err != nil {
		_ = level.Error(b.logger).Log("msg", "failed to close USB device", "err", err)
		return
	}
	b.metrics.openHandles.Dec()
}

// ClaimInterface claims an interface on an open handle.
func (b *Bridge) ClaimInterface(handle *DeviceHandle, number int) error {
	if handle == nil {
		panic("bridge: nil device handle")
	}
	if err := b.provider.ClaimInterface(handle.conn, number); err != nil {
		_ = level.Warn(b.logger).Log("msg", "interface claim failed", "interface", number, "err", err)
		return libusb.ErrorOther
	}
	return nil
}

// ReleaseInterface releases a previously claimed interface.
func (b *Bridge) ReleaseInterface(handle *DeviceHandle, number int) error {
	if handle == nil {
		panic("bridge: nil device handle")
	}
	if err := b.provider.ReleaseInterface(handle.conn, number); err != nil {
		_ = level.Warn(b.logger).Log("msg", "interface release failed", "interface", number, "err", err)
		return libusb.ErrorOther
	}
	return nil
}

// ResetDevice asks the channel to reset the device behind the handle.
func (b *Bridge) ResetDevice(handle *DeviceHandle) error {
	if handle == nil {
		panic("bridge: nil device handle")
	}
	if err := b.provider.ResetDevice(handle.conn); err != nil {
		_ = level.Warn(b.logger).Log("msg", "device reset failed", "err", err)
		return libusb.ErrorOther
	}
	return nil
}

// ControlTransfer performs a synchronous control transfer and returns the
// number of payload bytes actually transferred. The data slice carries the
// payload for outbound requests and receives it for inbound ones; unlike
// the asynchronous path, it does not include a setup header.
func (b *Bridge) ControlTransfer(handle *DeviceHandle, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	if handle == nil {
		panic("bridge: nil device handle")
	}
	info := makeControlTransferInfo(requestType, request, value, index, data, uint16(len(data)), timeout)
	result, err := b.provider.ControlTransfer(handle.conn, info)
	if err != nil {
		_ = level.Warn(b.logger).Log("msg", "control transfer failed", "err", err)
		return 0, libusb.ErrorOther
	}
	actual, status := decodeTransferResult(result, false, data)
	if err := statusToError(status); err != nil {
		return 0, err
	}
	return actual, nil
}

// BulkTransfer performs a synchronous bulk transfer and returns the number
// of bytes actually transferred.
func (b *Bridge) BulkTransfer(handle *DeviceHandle, endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	if handle == nil {
		panic("bridge: nil device handle")
	}
	info := makeGenericTransferInfo(endpoint, data, len(data), timeout)
	result, err := b.provider.BulkTransfer(handle.conn, info)
	if err != nil {
		_ = level.Warn(b.logger).Log("msg", "bulk transfer failed", "endpoint", endpoint, "err", err)
		return 0, libusb.ErrorOther
	}
	actual, status := decodeTransferResult(result, false, data)
	if err := statusToError(status); err != nil {
		return actual, err
	}
	return actual, nil
}

// InterruptTransfer performs a synchronous interrupt transfer and returns
// the number of bytes actually transferred.
func (b *Bridge) InterruptTransfer(handle *DeviceHandle, endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	if handle == nil {
		panic("bridge: nil device handle")
	}
	info := makeGenericTransferInfo(endpoint, data, len(data), timeout)
	result, err := b.provider.InterruptTransfer(handle.conn, info)
	if err != nil {
		_ = level.Warn(b.logger).Log("msg", "interrupt transfer failed", "endpoint", endpoint, "err", err)
		return 0, libusb.ErrorOther
	}
	actual, status := decodeTransferResult(result, false, data)
	if err := statusToError(status); err != nil {
		return actual, err
	}
	return actual, nil
}

// HandleEvents waits for and processes one completed transfer with the
// default timeout.
func (b *Bridge) HandleEvents(ctx *Context) error {
	return b.HandleEventsTimeout(ctx, defaultHandleEventsTimeout)
}

// HandleEventsTimeout blocks until one completed transfer is available or
// the timeout elapses, then decodes, delivers and (if flagged) frees that
// single transfer. A timeout with nothing to do is success: nothing
// happened, nothing failed.
func (b *Bridge) HandleEventsTimeout(ctx *Context, timeout time.Duration) error {
	ctx = b.contextOrDefault(ctx)
	comp, ok := ctx.waitCompleted(timeout)
	if !ok {
		return nil
	}
	b.completeTransfer(comp.transfer, comp.result, comp.err)
	return nil
}
