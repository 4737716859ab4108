// Package provider defines the contract of the asynchronous device
// communication channel the bridge translates against. Implementations run
// the actual USB transport elsewhere; this package only carries the already
// parsed device and descriptor shapes plus the transfer request/result
// messages exchanged with it.
package provider

import (
	"time"

	"github.com/efficientgo/core/errors"
)

// ErrCancelled is the one structured failure the channel distinguishes: the
// transfer was cancelled before it produced a result. Every other failure is
// an ordinary error carrying a human-readable message.
var ErrCancelled = errors.New("transfer cancelled")

// Device is the channel's immutable snapshot of an enumerated device.
type Device struct {
	// ID is the channel-assigned device identifier.
	ID int64 `json:"id"`
	// VendorID is the USB Vendor ID of the device.
	VendorID uint16 `json:"vendor_id"`
	// ProductID is the USB Product ID of the device.
	ProductID uint16 `json:"product_id"`
	// Version is the device release number (bcdDevice); nil when the channel
	// did not report it.
	Version *uint16 `json:"version,omitempty"`
}

// ConnectionHandle identifies an open connection to a device.
type ConnectionHandle int64

// TransferType is the endpoint transfer type as reported by the channel.
type TransferType uint8

const (
	TransferControl TransferType = iota
	TransferInterrupt
	TransferIsochronous
	TransferBulk
)

// Synchronization is the isochronous synchronization type.
type Synchronization uint8

const (
	SyncAsynchronous Synchronization = iota
	SyncAdaptive
	SyncSynchronous
)

// Usage is the isochronous usage type.
type Usage uint8

const (
	UsageData Usage = iota
	UsageFeedback
	UsageExplicitFeedback
)

// Direction of a transfer relative to the host.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Recipient of a control request.
type Recipient uint8

const (
	RecipientDevice Recipient = iota
	RecipientInterface
	RecipientEndpoint
	RecipientOther
)

// RequestType of a control request.
type RequestType uint8

const (
	RequestStandard RequestType = iota
	RequestClass
	RequestVendor
	RequestReserved
)

// EndpointDescriptor describes one endpoint in parsed form. Synchronization
// and Usage are present only for isochronous endpoints.
type EndpointDescriptor struct {
	Address           uint8            `json:"address"`
	Type              TransferType     `json:"type"`
	Synchronization   *Synchronization `json:"synchronization,omitempty"`
	Usage             *Usage           `json:"usage,omitempty"`
	MaximumPacketSize uint16           `json:"maximum_packet_size"`
	PollingInterval   *uint8           `json:"polling_interval,omitempty"`
	Extra             []byte           `json:"extra,omitempty"`
}

// InterfaceDescriptor describes one interface in parsed form. The channel
// does not expose alternate settings.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8                `json:"interface_number"`
	InterfaceClass    uint8                `json:"interface_class"`
	InterfaceSubClass uint8                `json:"interface_subclass"`
	InterfaceProtocol uint8                `json:"interface_protocol"`
	Endpoints         []EndpointDescriptor `json:"endpoints"`
	Extra             []byte               `json:"extra,omitempty"`
}

// ConfigDescriptor describes one configuration in parsed form. The channel
// guarantees that at most one configuration per device is marked active.
type ConfigDescriptor struct {
	Active             bool                  `json:"active"`
	ConfigurationValue uint8                 `json:"configuration_value"`
	SelfPowered        bool                  `json:"self_powered"`
	RemoteWakeup       bool                  `json:"remote_wakeup"`
	MaxPower           uint8                 `json:"max_power"`
	Interfaces         []InterfaceDescriptor `json:"interfaces"`
	Extra              []byte                `json:"extra,omitempty"`
}

// ControlTransferInfo is the request message for a control transfer. For
// inbound transfers only Length is set; for outbound transfers Data carries
// the payload.
type ControlTransferInfo struct {
	Direction   Direction
	Recipient   Recipient
	RequestType RequestType
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Data        []byte
	Timeout     time.Duration
}

// GenericTransferInfo is the request message for a bulk or interrupt
// transfer. The direction duplicates the endpoint address direction bit so
// implementations need not decode it again.
type GenericTransferInfo struct {
	Direction Direction
	Endpoint  uint8
	Length    int
	Data      []byte
	Timeout   time.Duration
}

// ResultCodeSuccess is the channel's single defined success code. Any other
// code, including whatever it reports for timeouts, is a failure.
const ResultCodeSuccess = 0

// TransferResult is the channel's answer to a transfer request. Data is set
// only for inbound transfers.
type TransferResult struct {
	ResultCode int
	Data       []byte
}

// TransferCallback receives the result of an asynchronous transfer, exactly
// once. A cancelled transfer is delivered with ErrCancelled.
type TransferCallback func(TransferResult, error)

// CancelFunc asks the channel to cancel an in-flight asynchronous transfer.
// Cancellation is best-effort; the transfer may still complete normally.
type CancelFunc func()

// Provider is the device communication channel. Synchronous operations block
// until the channel answers; the Async variants return immediately and
// deliver their result through the callback on the channel's own schedule,
// possibly concurrently with the caller.
type Provider interface {
	GetDevices() ([]Device, error)
	GetConfigurations(dev Device) ([]ConfigDescriptor, error)

	OpenDevice(dev Device) (ConnectionHandle, error)
	CloseDevice(conn ConnectionHandle) error
	ClaimInterface(conn ConnectionHandle, number int) error
	ReleaseInterface(conn ConnectionHandle, number int) error
	ResetDevice(conn ConnectionHandle) error

	ControlTransfer(conn ConnectionHandle, info ControlTransferInfo) (TransferResult, error)
	BulkTransfer(conn ConnectionHandle, info GenericTransferInfo) (TransferResult, error)
	InterruptTransfer(conn ConnectionHandle, info GenericTransferInfo) (TransferResult, error)

	AsyncControlTransfer(conn ConnectionHandle, info ControlTransferInfo, cb TransferCallback) CancelFunc
	AsyncBulkTransfer(conn ConnectionHandle, info GenericTransferInfo, cb TransferCallback) CancelFunc
	AsyncInterruptTransfer(conn ConnectionHandle, info GenericTransferInfo, cb TransferCallback) CancelFunc
}
