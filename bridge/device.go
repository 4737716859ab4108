// SPDX-License-Identifier: GPL-2.0-only

package bridge

import (
	"fmt"
	"sync/atomic"

	"github.com/tamias/usbbridge/provider"
)

// Device is a reference-counted snapshot of an enumerated device. The
// snapshot itself is never mutated; once the last reference is dropped the
// device is destroyed and must not be used again.
type Device struct {
	ctx  *Context
	info provider.Device
	refs atomic.Int32
}

func newDevice(ctx *Context, info provider.Device) *Device {
	d := &Device{ctx: ctx, info: info}
	d.refs.Store(1)
	return d
}

// addReference takes one more shared reference to the device.
func (d *Device) addReference() {
	if d.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("bridge: reference to destroyed device %d", d.info.ID))
	}
}

// removeReference drops one reference; the device is destroyed exactly once,
// when the count reaches zero.
func (d *Device) removeReference() {
	refs := d.refs.Add(-1)
	if refs < 0 {
		panic(fmt.Sprintf("bridge: double destroy of device %d", d.info.ID))
	}
}

// alive reports whether the device still holds at least one reference.
func (d *Device) alive() bool {
	return d.refs.Load() > 0
}

// DeviceHandle is an open connection to a device. Exactly one live handle
// exists per successful Open; Close invalidates it.
type DeviceHandle struct {
	device *Device
	conn   provider.ConnectionHandle
}

// Device returns the device this handle was opened from.
func (h *DeviceHandle) Device() *Device {
	return h.device
}
