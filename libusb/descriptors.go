package libusb

// DeviceDescriptor mirrors the reference library's device descriptor
// structure. String index fields stay zero: the device channel reports
// name strings directly, never their descriptor indices.
type DeviceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// ConfigDescriptor is the root of a built descriptor tree. Interfaces and
// Extra are owned by the tree and released by Release.
type ConfigDescriptor struct {
	Length             uint8
	DescriptorType     uint8
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8
	Interfaces         []Interface
	Extra              []byte
}

// Interface wraps the alternate settings of one interface. The device
// channel exposes a single setting per interface, so AltSettings always has
// length one.
type Interface struct {
	AltSettings []InterfaceDescriptor
}

type InterfaceDescriptor struct {
	Length            uint8
	DescriptorType    uint8
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
	Endpoints         []EndpointDescriptor
	Extra             []byte
}

type EndpointDescriptor struct {
	Length          uint8
	DescriptorType  uint8
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
	Extra           []byte
}

// TransferType extracts the transfer type bits from bmAttributes.
func (e *EndpointDescriptor) TransferType() TransferType {
	return TransferType((e.Attributes & TransferTypeMask) >> TransferTypeShift)
}

// IsoSyncType extracts the isochronous synchronization bits from
// bmAttributes. Only meaningful for isochronous endpoints.
func (e *EndpointDescriptor) IsoSyncType() uint8 {
	return (e.Attributes & IsoSyncTypeMask) >> IsoSyncTypeShift
}

// IsoUsageType extracts the isochronous usage bits from bmAttributes. Only
// meaningful for isochronous endpoints.
func (e *EndpointDescriptor) IsoUsageType() uint8 {
	return (e.Attributes & IsoUsageTypeMask) >> IsoUsageTypeShift
}

// Release frees the arrays and extra byte ranges owned by the descriptor
// tree, bottom-up, exactly the ones its builder allocated. It is safe on
// partially built trees and calling it twice is a no-op.
func (c *ConfigDescriptor) Release() {
	for i := range c.Interfaces {
		c.Interfaces[i].release()
	}
	c.Interfaces = nil
	c.Extra = nil
}

func (a *Interface) release() {
	for i := range a.AltSettings {
		a.AltSettings[i].release()
	}
	a.AltSettings = nil
}

func (i *InterfaceDescriptor) release() {
	for e := range i.Endpoints {
		i.Endpoints[e].release()
	}
	i.Endpoints = nil
	i.Extra = nil
}

func (e *EndpointDescriptor) release() {
	e.Extra = nil
}
