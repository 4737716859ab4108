// SPDX-License-Identifier: GPL-2.0-only

package bridge

import (
	"fmt"

	"github.com/tamias/usbbridge/libusb"
	"github.com/tamias/usbbridge/provider"
)

// This file converts the channel's parsed device/config/interface/endpoint
// descriptions into the fixed-layout descriptor trees of the emulated
// library. The paired release logic lives with the structs in package
// libusb; every slice allocated here is owned by the tree root.

// copyExtra copies an opaque descriptor tail verbatim. Empty input yields no
// allocation.
func copyExtra(extra []byte) []byte {
	if len(extra) == 0 {
		return nil
	}
	out := make([]byte, len(extra))
	copy(out, extra)
	return out
}

func buildDeviceDescriptor(dev provider.Device) libusb.DeviceDescriptor {
	d := libusb.DeviceDescriptor{
		Length:         libusb.DeviceDescriptorLength,
		DescriptorType: libusb.DescriptorTypeDevice,
		VendorID:       dev.VendorID,
		ProductID:      dev.ProductID,
	}
	// The device release number is reported only by newer channel versions.
	if dev.Version != nil {
		d.DeviceVersion = *dev.Version
	}
	// The channel exposes product/manufacturer/serial strings by value, not
	// by descriptor index, so the index fields stay zero. Synthesizing
	// indices would either collide with real ones or require probing every
	// possible index; both were rejected.
	return d
}

func transferTypeMask(t provider.TransferType) uint8 {
	switch t {
	case provider.TransferControl:
		return uint8(libusb.TransferTypeControl) << libusb.TransferTypeShift
	case provider.TransferInterrupt:
		return uint8(libusb.TransferTypeInterrupt) << libusb.TransferTypeShift
	case provider.TransferIsochronous:
		return uint8(libusb.TransferTypeIsochronous) << libusb.TransferTypeShift
	case provider.TransferBulk:
		return uint8(libusb.TransferTypeBulk) << libusb.TransferTypeShift
	default:
		panic(fmt.Sprintf("bridge: unknown endpoint transfer type %d", t))
	}
}

func isoSyncTypeMask(s provider.Synchronization) uint8 {
	switch s {
	case provider.SyncAsynchronous:
		return libusb.IsoSyncTypeAsync << libusb.IsoSyncTypeShift
	case provider.SyncAdaptive:
		return libusb.IsoSyncTypeAdaptive << libusb.IsoSyncTypeShift
	case provider.SyncSynchronous:
		return libusb.IsoSyncTypeSync << libusb.IsoSyncTypeShift
	default:
		panic(fmt.Sprintf("bridge: unknown endpoint synchronization type %d", s))
	}
}

func isoUsageTypeMask(u provider.Usage) uint8 {
	switch u {
	case provider.UsageData:
		return libusb.IsoUsageTypeData << libusb.IsoUsageTypeShift
	case provider.UsageFeedback:
		return libusb.IsoUsageTypeFeedback << libusb.IsoUsageTypeShift
	case provider.UsageExplicitFeedback:
		return libusb.IsoUsageTypeImplicit << libusb.IsoUsageTypeShift
	default:
		panic(fmt.Sprintf("bridge: unknown endpoint usage type %d", u))
	}
}

func buildEndpointDescriptor(ep provider.EndpointDescriptor) libusb.EndpointDescriptor {
	result := libusb.EndpointDescriptor{
		Length:          libusb.EndpointDescriptorLength,
		DescriptorType:  libusb.DescriptorTypeEndpoint,
		EndpointAddress: ep.Address,
		MaxPacketSize:   ep.MaximumPacketSize,
	}
	result.Attributes |= transferTypeMask(ep.Type)
	if ep.Type == provider.TransferIsochronous {
		// An isochronous endpoint without both sub-fields is a broken
		// channel description, not a recoverable input.
		if ep.Synchronization == nil {
			panic("bridge: isochronous endpoint without synchronization type")
		}
		result.Attributes |= isoSyncTypeMask(*ep.Synchronization)
		if ep.Usage == nil {
			panic("bridge: isochronous endpoint without usage type")
		}
		result.Attributes |= isoUsageTypeMask(*ep.Usage)
	}
	if ep.PollingInterval != nil {
		result.Interval = *ep.PollingInterval
	}
	result.Extra = copyExtra(ep.Extra)
	return result
}

func buildInterfaceDescriptor(iface provider.InterfaceDescriptor) libusb.InterfaceDescriptor {
	result := libusb.InterfaceDescriptor{
		Length:            libusb.InterfaceDescriptorLength,
		DescriptorType:    libusb.DescriptorTypeInterface,
		InterfaceNumber:   iface.InterfaceNumber,
		NumEndpoints:      uint8(len(iface.Endpoints)),
		InterfaceClass:    iface.InterfaceClass,
		InterfaceSubClass: iface.InterfaceSubClass,
		InterfaceProtocol: iface.InterfaceProtocol,
	}
	result.Endpoints = make([]libusb.EndpointDescriptor, len(iface.Endpoints))
	for i, ep := range iface.Endpoints {
		result.Endpoints[i] = buildEndpointDescriptor(ep)
	}
	result.Extra = copyExtra(iface.Extra)
	return result
}

func buildInterface(iface provider.InterfaceDescriptor) libusb.Interface {
	// The channel never reports alternate settings, so each interface wraps
	// exactly one setting.
	return libusb.Interface{
		AltSettings: []libusb.InterfaceDescriptor{buildInterfaceDescriptor(iface)},
	}
}

func buildConfigDescriptor(config provider.ConfigDescriptor) libusb.ConfigDescriptor {
	result := libusb.ConfigDescriptor{
		Length:             libusb.ConfigDescriptorLength,
		DescriptorType:     libusb.DescriptorTypeConfig,
		TotalLength:        libusb.ConfigDescriptorLength,
		NumInterfaces:      uint8(len(config.Interfaces)),
		ConfigurationValue: config.ConfigurationValue,
		MaxPower:           config.MaxPower,
	}
	if config.RemoteWakeup {
		result.Attributes |= libusb.ConfigAttrRemoteWakeup
	}
	if config.SelfPowered {
		result.Attributes |= libusb.ConfigAttrSelfPowered
	}
	result.Interfaces = make([]libusb.Interface, len(config.Interfaces))
	for i, iface := range config.Interfaces {
		result.Interfaces[i] = buildInterface(iface)
	}
	result.Extra = copyExtra(config.Extra)
	return result
}
