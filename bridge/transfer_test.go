package bridge

import (
	"bytes"
	"testing"
	"time"

	"github.com/tamias/usbbridge/libusb"
	"github.com/tamias/usbbridge/provider"
)

func TestDecodeTransferResult(t *testing.T) {
	for _, tc := range []struct {
		name       string
		result     provider.TransferResult
		shortNotOK bool
		dstLen     int
		wantActual int
		wantStatus libusb.TransferStatus
	}{
		{
			name:       "failure code",
			result:     provider.TransferResult{ResultCode: 1},
			dstLen:     16,
			wantActual: 0,
			wantStatus: libusb.TransferError,
		},
		{
			name:       "exact inbound",
			result:     provider.TransferResult{Data: []byte{1, 2, 3, 4}},
			dstLen:     4,
			wantActual: 4,
			wantStatus: libusb.TransferCompleted,
		},
		{
			name:       "short inbound tolerated",
			result:     provider.TransferResult{Data: make([]byte, 10)},
			dstLen:     64,
			wantActual: 10,
			wantStatus: libusb.TransferCompleted,
		},
		{
			name:       "short inbound rejected",
			result:     provider.TransferResult{Data: make([]byte, 10)},
			shortNotOK: true,
			dstLen:     64,
			wantActual: 10,
			wantStatus: libusb.TransferError,
		},
		{
			name:       "oversized inbound truncated",
			result:     provider.TransferResult{Data: make([]byte, 32)},
			dstLen:     8,
			wantActual: 8,
			wantStatus: libusb.TransferCompleted,
		},
		{
			name:       "outbound reports requested length",
			result:     provider.TransferResult{},
			dstLen:     24,
			wantActual: 24,
			wantStatus: libusb.TransferCompleted,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dst := make([]byte, tc.dstLen)
			actual, status := decodeTransferResult(tc.result, tc.shortNotOK, dst)
			if actual != tc.wantActual {
				t.Errorf("actual length is %d; want %d", actual, tc.wantActual)
			}
			if status != tc.wantStatus {
				t.Errorf("status is %v; want %v", status, tc.wantStatus)
			}
		})
	}
}

func TestDecodeTransferResultCopiesData(t *testing.T) {
	dst := make([]byte, 6)
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	actual, status := decodeTransferResult(provider.TransferResult{Data: payload}, false, dst)
	if status != libusb.TransferCompleted {
		t.Fatalf("status is %v", status)
	}
	if !bytes.Equal(dst[:actual], payload) {
		t.Errorf("destination holds % x; want % x", dst[:actual], payload)
	}
}

func TestControlTransferInfoValidation(t *testing.T) {
	for _, tc := range []struct {
		name   string
		buffer []byte
	}{
		{name: "buffer shorter than setup header", buffer: make([]byte, libusb.ControlSetupSize-1)},
		{
			name: "setup length disagrees with buffer",
			buffer: func() []byte {
				buf := make([]byte, libusb.ControlSetupSize+4)
				libusb.FillControlSetup(buf, 0x80, 0x06, 0x0100, 0, 8)
				return buf
			}(),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := controlTransferInfo(&Transfer{Type: libusb.TransferTypeControl, Buffer: tc.buffer})
			if err != libusb.ErrorInvalidParam {
				t.Errorf("expected error %v; got %v", libusb.ErrorInvalidParam, err)
			}
		})
	}
}

func TestMakeControlTransferInfo(t *testing.T) {
	for _, tc := range []struct {
		name        string
		requestType uint8
		data        []byte
		length      uint16
		want        provider.ControlTransferInfo
	}{
		{
			name:        "inbound standard device",
			requestType: 0x80,
			length:      18,
			want: provider.ControlTransferInfo{
				Direction:   provider.DirectionIn,
				Recipient:   provider.RecipientDevice,
				RequestType: provider.RequestStandard,
				Length:      18,
			},
		},
		{
			name:        "outbound class interface",
			requestType: 0x21,
			data:        []byte{0x01, 0x02},
			length:      2,
			want: provider.ControlTransferInfo{
				Direction:   provider.DirectionOut,
				Recipient:   provider.RecipientInterface,
				RequestType: provider.RequestClass,
				Data:        []byte{0x01, 0x02},
			},
		},
		{
			name:        "outbound vendor endpoint without payload",
			requestType: 0x42,
			data:        []byte{},
			length:      0,
			want: provider.ControlTransferInfo{
				Direction:   provider.DirectionOut,
				Recipient:   provider.RecipientEndpoint,
				RequestType: provider.RequestVendor,
				Data:        []byte{},
			},
		},
		{
			name:        "inbound reserved other",
			requestType: 0xE3,
			length:      1,
			want: provider.ControlTransferInfo{
				Direction:   provider.DirectionIn,
				Recipient:   provider.RecipientOther,
				RequestType: provider.RequestReserved,
				Length:      1,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := makeControlTransferInfo(tc.requestType, 0x06, 0x0100, 0x0001, tc.data, tc.length, time.Second)
			if got.Direction != tc.want.Direction {
				t.Errorf("direction is %v; want %v", got.Direction, tc.want.Direction)
			}
			if got.Recipient != tc.want.Recipient {
				t.Errorf("recipient is %v; want %v", got.Recipient, tc.want.Recipient)
			}
			if got.RequestType != tc.want.RequestType {
				t.Errorf("request type is %v; want %v", got.RequestType, tc.want.RequestType)
			}
			if got.Length != tc.want.Length {
				t.Errorf("length is %d; want %d", got.Length, tc.want.Length)
			}
			if !bytes.Equal(got.Data, tc.want.Data) {
				t.Errorf("data is % x; want % x", got.Data, tc.want.Data)
			}
			if got.Request != 0x06 || got.Value != 0x0100 || got.Index != 0x0001 {
				t.Errorf("request fields not carried over: %+v", got)
			}
			if got.Timeout != time.Second {
				t.Errorf("timeout is %v; want %v", got.Timeout, time.Second)
			}
		})
	}
}

func TestMakeControlTransferInfoOutboundWithoutPayloadPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	makeControlTransferInfo(0x00, 0x09, 0, 0, nil, 4, time.Second)
}

func TestMakeGenericTransferInfo(t *testing.T) {
	out := makeGenericTransferInfo(0x02, []byte{1, 2, 3}, 3, time.Second)
	if out.Direction != provider.DirectionOut || out.Endpoint != 0x02 {
		t.Errorf("unexpected outbound info %+v", out)
	}
	if !bytes.Equal(out.Data, []byte{1, 2, 3}) || out.Length != 0 {
		t.Errorf("outbound payload not carried: %+v", out)
	}

	in := makeGenericTransferInfo(0x82, make([]byte, 64), 64, time.Second)
	if in.Direction != provider.DirectionIn || in.Endpoint != 0x82 {
		t.Errorf("unexpected inbound info %+v", in)
	}
	if in.Length != 64 || in.Data != nil {
		t.Errorf("inbound info must carry only a length: %+v", in)
	}
}

func TestStatusToError(t *testing.T) {
	if err := statusToError(libusb.TransferCompleted); err != nil {
		t.Errorf("completed must map to success; got %v", err)
	}
	if err := statusToError(libusb.TransferTimedOut); err != libusb.ErrorTimeout {
		t.Errorf("timed out maps to %v; want %v", err, libusb.ErrorTimeout)
	}
	for _, status := range []libusb.TransferStatus{
		libusb.TransferError, libusb.TransferCancelled, libusb.TransferStall,
	} {
		if err := statusToError(status); err != libusb.ErrorOther {
			t.Errorf("%v maps to %v; want %v", status, err, libusb.ErrorOther)
		}
	}
}
