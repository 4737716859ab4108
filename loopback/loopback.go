// Package loopback implements the device channel contract in memory. Bulk
// and interrupt writes are queued per endpoint and read back by transfers in
// the opposite direction, control requests are answered by a per-device
// handler, and the asynchronous variants complete on their own goroutine
// after a configurable latency. It backs the simulator binary and the bridge
// tests.
package loopback

import (
	"sync"
	"time"

	"github.com/efficientgo/core/errors"

	"github.com/tamias/usbbridge/provider"
)

// ControlHandler answers a control request for one device.
type ControlHandler func(info provider.ControlTransferInfo) provider.TransferResult

// DeviceSpec declares one simulated device.
type DeviceSpec struct {
	// ID is the channel-assigned device identifier.
	ID int64 `json:"id"`
	// VendorID is the USB Vendor ID of the device.
	VendorID uint16 `json:"vendor_id"`
	// ProductID is the USB Product ID of the device.
	ProductID uint16 `json:"product_id"`
	// Version is the optional device release number.
	Version *uint16 `json:"version,omitempty"`
	// Configurations lists the device's configurations; exactly one should
	// be marked active for the device to be usable.
	Configurations []provider.ConfigDescriptor `json:"configurations"`
	// Control overrides the default control request behavior.
	Control ControlHandler `json:"-"`
}

type simDevice struct {
	spec DeviceSpec

	mu sync.Mutex
	// queues holds loopback data per endpoint number: writes to endpoint
	// 0x0N land in queues[N] and are read back through endpoint 0x8N.
	queues      map[uint8][]byte
	lastControl []byte
}

type connection struct {
	dev     *simDevice
	claimed map[int]bool
}

// Provider is an in-memory device channel.
type Provider struct {
	latency time.Duration

	mu       sync.Mutex
	devices  []*simDevice
	conns    map[provider.ConnectionHandle]*connection
	nextConn provider.ConnectionHandle
}

var _ provider.Provider = (*Provider)(nil)

// New creates an empty channel. Asynchronous transfers complete after the
// given latency; zero means immediately.
func New(latency time.Duration) *Provider {
	return &Provider{
		latency: latency,
		conns:   make(map[provider.ConnectionHandle]*connection),
	}
}

// AddDevice registers a simulated device. Device identifiers must be unique.
func (p *Provider) AddDevice(spec DeviceSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, dev := range p.devices {
		if dev.spec.ID == spec.ID {
			return errors.Newf("device %d already registered", spec.ID)
		}
	}
	p.devices = append(p.devices, &simDevice{
		spec:   spec,
		queues: make(map[uint8][]byte),
	})
	return nil
}

func (p *Provider) GetDevices() ([]provider.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	devices := make([]provider.Device, len(p.devices))
	for i, dev := range p.devices {
		devices[i] = provider.Device{
			ID:        dev.spec.ID,
			VendorID:  dev.spec.VendorID,
			ProductID: dev.spec.ProductID,
			Version:   dev.spec.Version,
		}
	}
	return devices, nil
}

func (p *Provider) GetConfigurations(dev provider.Device) ([]provider.ConfigDescriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sim := p.findDevice(dev.ID)
	if sim == nil {
		return nil, errors.Newf("unknown device %d", dev.ID)
	}
	return sim.spec.Configurations, nil
}

func (p *Provider) OpenDevice(dev provider.Device) (provider.ConnectionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sim := p.findDevice(dev.ID)
	if sim == nil {
		return 0, errors.Newf("unknown device %d", dev.ID)
	}
	p.nextConn++
	conn := p.nextConn
	p.conns[conn] = &connection{dev: sim, claimed: make(map[int]bool)}
	return conn, nil
}

func (p *Provider) CloseDevice(conn provider.ConnectionHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.conns[conn]; !ok {
		return errors.Newf("unknown connection %d", conn)
	}
	delete(p.conns, conn)
	return nil
}

func (p *Provider) ClaimInterface(conn provider.ConnectionHandle, number int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[conn]
	if !ok {
		return errors.Newf("unknown connection %d", conn)
	}
	if c.claimed[number] {
		return errors.Newf("interface %d already claimed", number)
	}
	c.claimed[number] = true
	return nil
}

func (p *Provider) ReleaseInterface(conn provider.ConnectionHandle, number int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[conn]
	if !ok {
		return errors.Newf("unknown connection %d", conn)
	}
	if !c.claimed[number] {
		return errors.Newf("interface %d is not claimed", number)
	}
	delete(c.claimed, number)
	return nil
}

func (p *Provider) ResetDevice(conn provider.ConnectionHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[conn]
	if !ok {
		return errors.Newf("unknown connection %d", conn)
	}
	c.dev.mu.Lock()
	c.dev.queues = make(map[uint8][]byte)
	c.dev.lastControl = nil
	c.dev.mu.Unlock()
	c.claimed = make(map[int]bool)
	return nil
}

func (p *Provider) ControlTransfer(conn provider.ConnectionHandle, info provider.ControlTransferInfo) (provider.TransferResult, error) {
	dev, err := p.connectedDevice(conn)
	if err != nil {
		return provider.TransferResult{}, err
	}
	if dev.spec.Control != nil {
		return dev.spec.Control(info), nil
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	if info.Direction == provider.DirectionOut {
		dev.lastControl = append([]byte(nil), info.Data...)
		return provider.TransferResult{ResultCode: provider.ResultCodeSuccess}, nil
	}
	n := min(len(dev.lastControl), int(info.Length))
	return provider.TransferResult{
		ResultCode: provider.ResultCodeSuccess,
		Data:       append([]byte(nil), dev.lastControl[:n]...),
	}, nil
}

func (p *Provider) BulkTransfer(conn provider.ConnectionHandle, info provider.GenericTransferInfo) (provider.TransferResult, error) {
	return p.genericTransfer(conn, info)
}

func (p *Provider) InterruptTransfer(conn provider.ConnectionHandle, info provider.GenericTransferInfo) (provider.TransferResult, error) {
	return p.genericTransfer(conn, info)
}

func (p *Provider) AsyncControlTransfer(conn provider.ConnectionHandle, info provider.ControlTransferInfo, cb provider.TransferCallback) provider.CancelFunc {
	return p.async(func() (provider.TransferResult, error) {
		return p.ControlTransfer(conn, info)
	}, cb)
}

func (p *Provider) AsyncBulkTransfer(conn provider.ConnectionHandle, info provider.GenericTransferInfo, cb provider.TransferCallback) provider.CancelFunc {
	return p.async(func() (provider.TransferResult, error) {
		return p.BulkTransfer(conn, info)
	}, cb)
}

func (p *Provider) AsyncInterruptTransfer(conn provider.ConnectionHandle, info provider.GenericTransferInfo, cb provider.TransferCallback) provider.CancelFunc {
	return p.async(func() (provider.TransferResult, error) {
		return p.InterruptTransfer(conn, info)
	}, cb)
}

// async runs a synchronous operation on its own goroutine after the
// configured latency and delivers the outcome exactly once. Cancellation
// wins only if it arrives before the latency elapses.
func (p *Provider) async(op func() (provider.TransferResult, error), cb provider.TransferCallback) provider.CancelFunc {
	cancelled := make(chan struct{})
	var closeOnce, deliverOnce sync.Once

	go func() {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-cancelled:
			deliverOnce.Do(func() { cb(provider.TransferResult{}, provider.ErrCancelled) })
			return
		case <-timer.C:
		}
		result, err := op()
		deliverOnce.Do(func() { cb(result, err) })
	}()

	return func() {
		closeOnce.Do(func() { close(cancelled) })
	}
}

func (p *Provider) genericTransfer(conn provider.ConnectionHandle, info provider.GenericTransferInfo) (provider.TransferResult, error) {
	dev, err := p.connectedDevice(conn)
	if err != nil {
		return provider.TransferResult{}, err
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()
	num := info.Endpoint & 0x0F
	if info.Direction == provider.DirectionOut {
		dev.queues[num] = append(dev.queues[num], info.Data...)
		return provider.TransferResult{ResultCode: provider.ResultCodeSuccess}, nil
	}
	queued := dev.queues[num]
	n := min(len(queued), info.Length)
	data := append([]byte(nil), queued[:n]...)
	dev.queues[num] = queued[n:]
	return provider.TransferResult{ResultCode: provider.ResultCodeSuccess, Data: data}, nil
}

func (p *Provider) connectedDevice(conn provider.ConnectionHandle) (*simDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[conn]
	if !ok {
		return nil, errors.Newf("unknown connection %d", conn)
	}
	return c.dev, nil
}

// findDevice must be called with p.mu held.
func (p *Provider) findDevice(id int64) *simDevice {
	for _, dev := range p.devices {
		if dev.spec.ID == id {
			return dev
		}
	}
	return nil
}
