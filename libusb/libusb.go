// Package libusb defines the binary-compatible surface of the emulated USB
// host library: descriptor structures, bitmask constants, result codes,
// transfer enumerations and the control-transfer setup packet layout.
//
// Struct field order and bit positions follow the reference library's published
// headers; client code compiled against those layouts must keep working.
package libusb

// Descriptor type codes (bDescriptorType).
const (
	DescriptorTypeDevice    = 0x01
	DescriptorTypeConfig    = 0x02
	DescriptorTypeString    = 0x03
	DescriptorTypeInterface = 0x04
	DescriptorTypeEndpoint  = 0x05
)

// Fixed descriptor sizes reported through bLength.
const (
	DeviceDescriptorLength    = 18
	ConfigDescriptorLength    = 9
	InterfaceDescriptorLength = 9
	EndpointDescriptorLength  = 7
)

// Endpoint address direction bit.
const (
	EndpointDirMask = 0x80
	EndpointIn      = 0x80
	EndpointOut     = 0x00
)

// Bit layout of the endpoint bmAttributes byte. The isochronous-only
// synchronization and usage sub-fields share the byte with the transfer type.
const (
	TransferTypeMask  = 0x03
	TransferTypeShift = 0

	IsoSyncTypeMask  = 0x0C
	IsoSyncTypeShift = 2

	IsoUsageTypeMask  = 0x30
	IsoUsageTypeShift = 4
)

// Bit layout of the config descriptor bmAttributes byte.
const (
	ConfigAttrRemoteWakeup = 1 << 5
	ConfigAttrSelfPowered  = 1 << 6
)

// Recipient values carried in the low bits of bmRequestType.
const (
	RecipientDevice    = 0x00
	RecipientInterface = 0x01
	RecipientEndpoint  = 0x02
	RecipientOther     = 0x03

	// RequestRecipientMask covers exactly the recipient enumerators above.
	RequestRecipientMask = RecipientDevice | RecipientInterface | RecipientEndpoint | RecipientOther
)

// Request type values carried in bits 5..6 of bmRequestType.
const (
	RequestTypeStandard = 0x00 << 5
	RequestTypeClass    = 0x01 << 5
	RequestTypeVendor   = 0x02 << 5
	RequestTypeReserved = 0x03 << 5

	RequestTypeMask = RequestTypeStandard | RequestTypeClass | RequestTypeVendor | RequestTypeReserved
)

// TransferType identifies the kind of a transfer, with the reference
// library's numeric values (these also appear shifted into bmAttributes).
type TransferType uint8

const (
	TransferTypeControl     TransferType = 0
	TransferTypeIsochronous TransferType = 1
	TransferTypeBulk        TransferType = 2
	TransferTypeInterrupt   TransferType = 3
)

func (t TransferType) String() string {
	switch t {
	case TransferTypeControl:
		return "control"
	case TransferTypeIsochronous:
		return "isochronous"
	case TransferTypeBulk:
		return "bulk"
	case TransferTypeInterrupt:
		return "interrupt"
	}
	return "unknown"
}

// Isochronous synchronization types, as packed into bmAttributes bits 2..3.
const (
	IsoSyncTypeNone     = 0
	IsoSyncTypeAsync    = 1
	IsoSyncTypeAdaptive = 2
	IsoSyncTypeSync     = 3
)

// Isochronous usage types, as packed into bmAttributes bits 4..5.
const (
	IsoUsageTypeData     = 0
	IsoUsageTypeFeedback = 1
	IsoUsageTypeImplicit = 2
)

// TransferStatus reports the outcome of a completed transfer.
type TransferStatus uint8

const (
	TransferCompleted TransferStatus = iota
	TransferError
	TransferTimedOut
	TransferCancelled
	TransferStall
	TransferNoDevice
	TransferOverflow
)

func (s TransferStatus) String() string {
	switch s {
	case TransferCompleted:
		return "completed"
	case TransferError:
		return "error"
	case TransferTimedOut:
		return "timed out"
	case TransferCancelled:
		return "cancelled"
	case TransferStall:
		return "stall"
	case TransferNoDevice:
		return "no device"
	case TransferOverflow:
		return "overflow"
	}
	return "unknown"
}

// Transfer flags.
const (
	TransferShortNotOK    = 1 << 0
	TransferFreeBuffer    = 1 << 1
	TransferFreeTransfer  = 1 << 2
	TransferAddZeroPacket = 1 << 3
)

// Error is a result code of the emulated library. The zero value is success;
// failures are the negative codes client code already knows.
type Error int

const (
	Success           Error = 0
	ErrorIO           Error = -1
	ErrorInvalidParam Error = -2
	ErrorAccess       Error = -3
	ErrorNoDevice     Error = -4
	ErrorNotFound     Error = -5
	ErrorBusy         Error = -6
	ErrorTimeout      Error = -7
	ErrorOverflow     Error = -8
	ErrorPipe         Error = -9
	ErrorInterrupted  Error = -10
	ErrorNoMem        Error = -11
	ErrorNotSupported Error = -12
	ErrorOther        Error = -99
)

func (e Error) Error() string {
	switch e {
	case Success:
		return "success"
	case ErrorIO:
		return "input/output error"
	case ErrorInvalidParam:
		return "invalid parameter"
	case ErrorAccess:
		return "access denied"
	case ErrorNoDevice:
		return "no such device"
	case ErrorNotFound:
		return "entity not found"
	case ErrorBusy:
		return "resource busy"
	case ErrorTimeout:
		return "operation timed out"
	case ErrorOverflow:
		return "overflow"
	case ErrorPipe:
		return "pipe error"
	case ErrorInterrupted:
		return "system call interrupted"
	case ErrorNoMem:
		return "insufficient memory"
	case ErrorNotSupported:
		return "operation not supported"
	case ErrorOther:
		return "other error"
	}
	return "unknown error"
}
