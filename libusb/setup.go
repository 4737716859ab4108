package libusb

import "encoding/binary"

// ControlSetupSize is the size of the setup header that precedes the payload
// in every control transfer buffer.
const ControlSetupSize = 8

// ControlSetup is the parsed form of the 8-byte setup header. On the wire
// the multi-byte fields are little-endian regardless of host order.
type ControlSetup struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// FillControlSetup encodes a setup header into the first ControlSetupSize
// bytes of buf. The buffer must be at least ControlSetupSize bytes long;
// anything shorter is caller misuse.
func FillControlSetup(buf []byte, requestType, request uint8, value, index, length uint16) {
	if len(buf) < ControlSetupSize {
		panic("libusb: control setup buffer too short")
	}
	buf[0] = requestType
	buf[1] = request
	binary.LittleEndian.PutUint16(buf[2:4], value)
	binary.LittleEndian.PutUint16(buf[4:6], index)
	binary.LittleEndian.PutUint16(buf[6:8], length)
}

// ParseControlSetup decodes the setup header at the start of buf. A buffer
// shorter than the fixed header size is rejected with ErrorInvalidParam.
func ParseControlSetup(buf []byte) (ControlSetup, error) {
	if len(buf) < ControlSetupSize {
		return ControlSetup{}, ErrorInvalidParam
	}
	return ControlSetup{
		RequestType: buf[0],
		Request:     buf[1],
		Value:       binary.LittleEndian.Uint16(buf[2:4]),
		Index:       binary.LittleEndian.Uint16(buf[4:6]),
		Length:      binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}

// ControlTransferSetup returns the setup header region of a control transfer
// buffer.
func ControlTransferSetup(buf []byte) []byte {
	return buf[:ControlSetupSize]
}

// ControlTransferData returns the payload region of a control transfer
// buffer, i.e. everything after the setup header.
func ControlTransferData(buf []byte) []byte {
	return buf[ControlSetupSize:]
}
