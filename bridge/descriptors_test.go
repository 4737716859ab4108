package bridge

import (
	"bytes"
	"testing"

	"github.com/tamias/usbbridge/libusb"
	"github.com/tamias/usbbridge/provider"
)

func syncPtr(s provider.Synchronization) *provider.Synchronization { return &s }

func usagePtr(u provider.Usage) *provider.Usage { return &u }

func u8Ptr(v uint8) *uint8 { return &v }

func u16Ptr(v uint16) *uint16 { return &v }

func TestBuildDeviceDescriptor(t *testing.T) {
	for _, tc := range []struct {
		name string
		dev  provider.Device
		want libusb.DeviceDescriptor
	}{
		{
			name: "with version",
			dev:  provider.Device{ID: 1, VendorID: 0x08E6, ProductID: 0x3437, Version: u16Ptr(0x0200)},
			want: libusb.DeviceDescriptor{
				Length:         libusb.DeviceDescriptorLength,
				DescriptorType: libusb.DescriptorTypeDevice,
				VendorID:       0x08E6,
				ProductID:      0x3437,
				DeviceVersion:  0x0200,
			},
		},
		{
			name: "version not reported",
			dev:  provider.Device{ID: 2, VendorID: 0x04E6, ProductID: 0x5116},
			want: libusb.DeviceDescriptor{
				Length:         libusb.DeviceDescriptorLength,
				DescriptorType: libusb.DescriptorTypeDevice,
				VendorID:       0x04E6,
				ProductID:      0x5116,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildDeviceDescriptor(tc.dev); got != tc.want {
				t.Errorf("got %+v; want %+v", got, tc.want)
			}
		})
	}
}

func TestBuildEndpointDescriptorAttributes(t *testing.T) {
	for _, tc := range []struct {
		name string
		ep   provider.EndpointDescriptor
		want uint8
	}{
		{
			name: "bulk",
			ep:   provider.EndpointDescriptor{Type: provider.TransferBulk},
			want: uint8(libusb.TransferTypeBulk),
		},
		{
			name: "interrupt",
			ep:   provider.EndpointDescriptor{Type: provider.TransferInterrupt},
			want: uint8(libusb.TransferTypeInterrupt),
		},
		{
			name: "control",
			ep:   provider.EndpointDescriptor{Type: provider.TransferControl},
			want: uint8(libusb.TransferTypeControl),
		},
		{
			name: "isochronous async data",
			ep: provider.EndpointDescriptor{
				Type:            provider.TransferIsochronous,
				Synchronization: syncPtr(provider.SyncAsynchronous),
				Usage:           usagePtr(provider.UsageData),
			},
			want: uint8(libusb.TransferTypeIsochronous) |
				libusb.IsoSyncTypeAsync<<libusb.IsoSyncTypeShift |
				libusb.IsoUsageTypeData<<libusb.IsoUsageTypeShift,
		},
		{
			name: "isochronous synchronous feedback",
			ep: provider.EndpointDescriptor{
				Type:            provider.TransferIsochronous,
				Synchronization: syncPtr(provider.SyncSynchronous),
				Usage:           usagePtr(provider.UsageFeedback),
			},
			want: uint8(libusb.TransferTypeIsochronous) |
				libusb.IsoSyncTypeSync<<libusb.IsoSyncTypeShift |
				libusb.IsoUsageTypeFeedback<<libusb.IsoUsageTypeShift,
		},
		{
			name: "isochronous adaptive explicit feedback",
			ep: provider.EndpointDescriptor{
				Type:            provider.TransferIsochronous,
				Synchronization: syncPtr(provider.SyncAdaptive),
				Usage:           usagePtr(provider.UsageExplicitFeedback),
			},
			want: uint8(libusb.TransferTypeIsochronous) |
				libusb.IsoSyncTypeAdaptive<<libusb.IsoSyncTypeShift |
				libusb.IsoUsageTypeImplicit<<libusb.IsoUsageTypeShift,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := buildEndpointDescriptor(tc.ep)
			if got.Attributes != tc.want {
				t.Errorf("attributes are 0x%02x; want 0x%02x", got.Attributes, tc.want)
			}
			if got.Length != libusb.EndpointDescriptorLength || got.DescriptorType != libusb.DescriptorTypeEndpoint {
				t.Errorf("bad fixed fields in %+v", got)
			}
		})
	}
}

func TestBuildEndpointDescriptorIsoWithoutSubFieldsPanics(t *testing.T) {
	for _, tc := range []struct {
		name string
		ep   provider.EndpointDescriptor
	}{
		{
			name: "missing synchronization",
			ep: provider.EndpointDescriptor{
				Type:  provider.TransferIsochronous,
				Usage: usagePtr(provider.UsageData),
			},
		},
		{
			name: "missing usage",
			ep: provider.EndpointDescriptor{
				Type:            provider.TransferIsochronous,
				Synchronization: syncPtr(provider.SyncAsynchronous),
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			buildEndpointDescriptor(tc.ep)
		})
	}
}

func TestBuildConfigDescriptor(t *testing.T) {
	config := provider.ConfigDescriptor{
		Active:             true,
		ConfigurationValue: 1,
		SelfPowered:        true,
		RemoteWakeup:       true,
		MaxPower:           50,
		Extra:              []byte{0x36, 0x21},
		Interfaces: []provider.InterfaceDescriptor{
			{
				InterfaceNumber:   0,
				InterfaceClass:    0x0B,
				InterfaceSubClass: 0x00,
				InterfaceProtocol: 0x00,
				Extra:             []byte{0x09, 0x21},
				Endpoints: []provider.EndpointDescriptor{
					{
						Address:           0x01,
						Type:              provider.TransferBulk,
						MaximumPacketSize: 64,
					},
					{
						Address:           0x82,
						Type:              provider.TransferInterrupt,
						MaximumPacketSize: 8,
						PollingInterval:   u8Ptr(10),
					},
				},
			},
		},
	}

	got := buildConfigDescriptor(config)

	if got.Length != libusb.ConfigDescriptorLength || got.DescriptorType != libusb.DescriptorTypeConfig {
		t.Errorf("bad fixed fields in %+v", got)
	}
	wantAttrs := uint8(libusb.ConfigAttrRemoteWakeup | libusb.ConfigAttrSelfPowered)
	if got.Attributes != wantAttrs {
		t.Errorf("attributes are 0x%02x; want 0x%02x", got.Attributes, wantAttrs)
	}
	if got.NumInterfaces != 1 || len(got.Interfaces) != 1 {
		t.Fatalf("expected a single interface; got %+v", got)
	}
	if !bytes.Equal(got.Extra, config.Extra) {
		t.Errorf("config extra is % x; want % x", got.Extra, config.Extra)
	}

	iface := got.Interfaces[0]
	if len(iface.AltSettings) != 1 {
		t.Fatalf("expected exactly one alternate setting; got %d", len(iface.AltSettings))
	}
	alt := iface.AltSettings[0]
	if alt.NumEndpoints != 2 || len(alt.Endpoints) != 2 {
		t.Fatalf("expected two endpoints; got %+v", alt)
	}
	if alt.InterfaceClass != 0x0B {
		t.Errorf("interface class is 0x%02x; want 0x0b", alt.InterfaceClass)
	}
	if !bytes.Equal(alt.Extra, config.Interfaces[0].Extra) {
		t.Errorf("interface extra is % x; want % x", alt.Extra, config.Interfaces[0].Extra)
	}

	out := alt.Endpoints[0]
	if out.EndpointAddress != 0x01 || out.MaxPacketSize != 64 || out.Interval != 0 {
		t.Errorf("unexpected out endpoint %+v", out)
	}
	in := alt.Endpoints[1]
	if in.EndpointAddress != 0x82 || in.MaxPacketSize != 8 || in.Interval != 10 {
		t.Errorf("unexpected in endpoint %+v", in)
	}

	// Extra bytes are copies, not aliases of the channel's slices.
	config.Extra[0] = 0xFF
	if got.Extra[0] == 0xFF {
		t.Error("config extra aliases the channel's slice")
	}
}
