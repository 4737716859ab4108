// SPDX-License-Identifier: GPL-2.0-only

package bridge

import (
	"fmt"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log/level"

	"github.com/tamias/usbbridge/libusb"
	"github.com/tamias/usbbridge/provider"
)

// Transfer is one asynchronous transfer. The caller fills the exported
// fields, submits it, and reads Status and ActualLength back after the
// completion callback has run. The buffer is owned by the caller unless
// TransferFreeBuffer hands it over at free time.
//
// Control transfers keep their setup header in the first ControlSetupSize
// bytes of Buffer; the payload, if any, follows it.
type Transfer struct {
	DevHandle    *DeviceHandle
	Type         libusb.TransferType
	Endpoint     uint8
	Flags        uint8
	Timeout      time.Duration
	Buffer       []byte
	Status       libusb.TransferStatus
	ActualLength int
	Callback     func(*Transfer)
}

// AllocTransfer allocates an empty transfer. Isochronous transfers are not
// supported, so requesting packet slots for them is caller misuse.
func (b *Bridge) AllocTransfer(isoPackets int) *Transfer {
	if isoPackets != 0 {
		panic("bridge: isochronous transfers are not supported")
	}
	return &Transfer{}
}

// SubmitTransfer validates the transfer, registers it as pending on its
// context and hands the translated request to the provider. It never blocks;
// results are delivered through HandleEvents.
func (b *Bridge) SubmitTransfer(t *Transfer) error {
	if t == nil {
		panic("bridge: nil transfer")
	}
	if t.DevHandle == nil {
		panic("bridge: transfer without device handle")
	}
	switch t.Type {
	case libusb.TransferTypeControl, libusb.TransferTypeBulk, libusb.TransferTypeInterrupt:
	default:
		panic(fmt.Sprintf("bridge: unsupported transfer type %s", t.Type))
	}

	if t.Flags&libusb.TransferAddZeroPacket != 0 {
		// Zero-packet termination is not supported by the channel (the
		// reference library does not support it on most platforms either).
		return libusb.ErrorNotSupported
	}

	ctx := b.transferContextChecked(t)
	ctx.addPending(t)

	switch t.Type {
	case libusb.TransferTypeControl:
		info, err := controlTransferInfo(t)
		if err != nil {
			ctx.removePending(t)
			return err
		}
		cancel := b.provider.AsyncControlTransfer(t.DevHandle.conn, info, ctx.callbackFor(t))
		ctx.setCancel(t, cancel)
	case libusb.TransferTypeBulk:
		cancel := b.provider.AsyncBulkTransfer(t.DevHandle.conn, genericTransferInfo(t), ctx.callbackFor(t))
		ctx.setCancel(t, cancel)
	case libusb.TransferTypeInterrupt:
		cancel := b.provider.AsyncInterruptTransfer(t.DevHandle.conn, genericTransferInfo(t), ctx.callbackFor(t))
		ctx.setCancel(t, cancel)
	}
	b.metrics.transfersSubmitted.WithLabelValues(t.Type.String()).Inc()
	return nil
}

// CancelTransfer removes a pending transfer from its context. The transfer
// will surface through a later HandleEvents call with cancelled status.
// Cancelling a transfer that already completed but has not been dequeued yet
// is indistinguishable from cancelling an unknown one: both fail not-found.
func (b *Bridge) CancelTransfer(t *Transfer) error {
	if t == nil {
		panic("bridge: nil transfer")
	}
	ctx := b.transferContextChecked(t)
	if !ctx.cancel(t) {
		return libusb.ErrorNotFound
	}
	b.metrics.transfersCancelled.Inc()
	return nil
}

// FreeTransfer releases a transfer: it is deregistered from its context if
// still pending, and the buffer is dropped when the TransferFreeBuffer flag
// transferred its ownership. Safe to call from inside the transfer's own
// completion callback.
func (b *Bridge) FreeTransfer(t *Transfer) {
	if t == nil {
		panic("bridge: nil transfer")
	}
	if ctx := b.transferContext(t); ctx != nil {
		ctx.removePending(t)
	}
	if t.Flags&libusb.TransferFreeBuffer != 0 {
		t.Buffer = nil
	}
	t.DevHandle = nil
	t.Callback = nil
}

// completeTransfer decodes one dequeued provider result into the transfer,
// runs the user callback and honors the free-on-completion flag.
func (b *Bridge) completeTransfer(t *Transfer, result provider.TransferResult, err error) {
	switch {
	case err == nil:
		// Control transfers carry their setup header at the start of the
		// buffer, so inbound data lands after it.
		dst := t.Buffer
		if t.Type == libusb.TransferTypeControl {
			dst = libusb.ControlTransferData(t.Buffer)
		}
		t.ActualLength, t.Status = decodeTransferResult(result, t.Flags&libusb.TransferShortNotOK != 0, dst)
	case errors.Is(err, provider.ErrCancelled):
		t.Status = libusb.TransferCancelled
	default:
		_ = level.Warn(b.logger).Log("msg", "asynchronous transfer failed", "type", t.Type.String(), "err", err)
		t.Status = libusb.TransferError
	}
	b.metrics.transfersCompleted.WithLabelValues(t.Status.String()).Inc()

	if t.Callback != nil {
		t.Callback(t)
	}
	if t.Flags&libusb.TransferFreeTransfer != 0 {
		b.FreeTransfer(t)
	}
}

// decodeTransferResult copies a successful provider result into dst and maps
// it to a transfer status. The accepted byte count is the minimum of what
// the channel returned and what was asked for; with shortNotOK set, a short
// result is forced to an error even though the bytes were already copied.
func decodeTransferResult(result provider.TransferResult, shortNotOK bool, dst []byte) (int, libusb.TransferStatus) {
	if result.ResultCode != provider.ResultCodeSuccess {
		// The channel reports timeouts through the same failure code as
		// everything else, so a timed-out transfer surfaces as a generic
		// error here. Known precision loss.
		return 0, libusb.TransferError
	}
	actual := len(dst)
	if result.Data != nil {
		actual = min(len(result.Data), len(dst))
		copy(dst, result.Data[:actual])
	}
	if shortNotOK && actual < len(dst) {
		return actual, libusb.TransferError
	}
	return actual, libusb.TransferCompleted
}

// controlTransferInfo decodes the setup header at the start of the transfer
// buffer into a channel request. The buffer must be at least header-sized
// and the header's declared payload length must match the buffer exactly.
func controlTransferInfo(t *Transfer) (provider.ControlTransferInfo, error) {
	setup, err := libusb.ParseControlSetup(t.Buffer)
	if err != nil {
		return provider.ControlTransferInfo{}, err
	}
	if int(setup.Length) != len(t.Buffer)-libusb.ControlSetupSize {
		return provider.ControlTransferInfo{}, libusb.ErrorInvalidParam
	}
	return makeControlTransferInfo(setup.RequestType, setup.Request, setup.Value, setup.Index,
		libusb.ControlTransferData(t.Buffer), setup.Length, t.Timeout), nil
}

// makeControlTransferInfo maps the raw bmRequestType bits onto the channel's
// enumerated direction, recipient and request-type values. Bit patterns
// outside the defined enumerators indicate a translation bug and are fatal.
func makeControlTransferInfo(requestType, request uint8, value, index uint16, data []byte, length uint16, timeout time.Duration) provider.ControlTransferInfo {
	info := provider.ControlTransferInfo{
		Request: request,
		Value:   value,
		Index:   index,
		Timeout: timeout,
	}

	if requestType&libusb.EndpointDirMask == libusb.EndpointOut {
		info.Direction = provider.DirectionOut
	} else {
		info.Direction = provider.DirectionIn
	}

	switch requestType & libusb.RequestRecipientMask {
	case libusb.RecipientDevice:
		info.Recipient = provider.RecipientDevice
	case libusb.RecipientInterface:
		info.Recipient = provider.RecipientInterface
	case libusb.RecipientEndpoint:
		info.Recipient = provider.RecipientEndpoint
	case libusb.RecipientOther:
		info.Recipient = provider.RecipientOther
	default:
		panic(fmt.Sprintf("bridge: unknown control request recipient in 0x%02x", requestType))
	}

	switch requestType & libusb.RequestTypeMask {
	case libusb.RequestTypeStandard:
		info.RequestType = provider.RequestStandard
	case libusb.RequestTypeClass:
		info.RequestType = provider.RequestClass
	case libusb.RequestTypeVendor:
		info.RequestType = provider.RequestVendor
	case libusb.RequestTypeReserved:
		info.RequestType = provider.RequestReserved
	default:
		panic(fmt.Sprintf("bridge: unknown control request type in 0x%02x", requestType))
	}

	if info.Direction == provider.DirectionIn {
		info.Length = length
	} else {
		if data == nil && length > 0 {
			panic("bridge: outbound control transfer without payload")
		}
		info.Data = append([]byte(nil), data[:length]...)
	}
	return info
}

// genericTransferInfo converts a bulk or interrupt transfer into a channel
// request. Direction comes from the endpoint address direction bit.
func genericTransferInfo(t *Transfer) provider.GenericTransferInfo {
	return makeGenericTransferInfo(t.Endpoint, t.Buffer, len(t.Buffer), t.Timeout)
}

func makeGenericTransferInfo(endpoint uint8, data []byte, length int, timeout time.Duration) provider.GenericTransferInfo {
	info := provider.GenericTransferInfo{
		Endpoint: endpoint,
		Timeout:  timeout,
	}
	if endpoint&libusb.EndpointDirMask == libusb.EndpointOut {
		info.Direction = provider.DirectionOut
		if data == nil && length > 0 {
			panic("bridge: outbound transfer without payload")
		}
		info.Data = append([]byte(nil), data[:length]...)
	} else {
		info.Direction = provider.DirectionIn
		info.Length = length
	}
	return info
}

// statusToError maps a transfer status onto the result code reported by the
// synchronous entry points.
func statusToError(status libusb.TransferStatus) error {
	switch status {
	case libusb.TransferCompleted:
		return nil
	case libusb.TransferTimedOut:
		return libusb.ErrorTimeout
	default:
		return libusb.ErrorOther
	}
}
