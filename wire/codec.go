package wire

import (
	"fmt"

	"github.com/go-obex/obex/buffer"
	"github.com/go-obex/obex/header"
	"github.com/go-obex/obex/object"
)

// PrepareTX drains obj's pending TX pre-header and as much of its queued
// headers as fit within mtuTX, returning the packet body (everything after
// the 3-byte common header the caller still needs to attach). It mirrors
// obex_msg_prepare's greedy single-pass fill.
//
// The caller decides the Final bit: it is set when, after this call,
// obj.TXQueueEmpty() is true (nothing left queued for a following packet).
func PrepareTX(obj *object.Object, mtuTX int) []byte {
	obj.SetMTU(mtuTX)
	buf := buffer.New()

	if pre := obj.PopTXPreHeader(); pre != nil {
		buf.Append(pre)
	}

	for {
		h, ok := obj.TXQueueFront()
		if !ok {
			break
		}
		remaining := mtuTX - CommonHeaderSize - buf.Len()
		if remaining <= 0 {
			break
		}
		n := h.Append(buf, remaining)
		if n == 0 {
			break
		}
		if h.IsFinished() {
			obj.TXQueuePopFront()
			if h.Flags()&header.FlagSuspend != 0 {
				obj.Suspend()
				break
			}
			continue
		}
		// Partially drained (a Body fragment filled the packet): the rest
		// waits for the next packet.
		break
	}

	return buf.Bytes()
}

// ReceiveFiltered decodes one frame from data and delivers its headers
// into obj, honoring obj's configured HeaderOffset (pre-header bytes
// expected ahead of the header list) and BodyMode (buffered accumulation
// vs. per-fragment streaming delivery). It returns the frame's opcode,
// Final bit, and the number of bytes consumed from data.
func ReceiveFiltered(data []byte, obj *object.Object) (opcode byte, final bool, consumed int, err error) {
	f, n, err := DecodeFrame(data)
	if err != nil {
		return 0, false, 0, err
	}
	if err := DeliverHeaders(obj, f.Body, nil); err != nil {
		return 0, false, 0, err
	}
	return f.Opcode, f.Final, n, nil
}

// DeliverHeaders applies obj's configured HeaderOffset and routes every
// header in body onto obj, the same way ReceiveFiltered does for a whole
// frame. onStream, if non-nil, is invoked once per Body/End-of-Body
// fragment instead of accumulating it when obj.BodyMode() ==
// object.BodyStreamed (spec.md §4.5). Exposed separately so a caller that
// must inspect a frame's opcode before an Object even exists (the server
// creating one for a freshly arrived command) can decode the common
// header first and only then hand the body to this step.
func DeliverHeaders(obj *object.Object, body []byte, onStream func(*header.Header)) error {
	return deliverHeaders(obj, body, true, true, onStream)
}

// DeliverHeadersExceptBody routes every header in body onto obj except
// Body and End-of-Body, which are parsed (to stay aligned on the next
// header's offset) but otherwise skipped. This is the first pass of the
// server's accept-before-spool filter (spec.md §4.4): a host deciding
// whether to accept or reject a request at REQCHECK should not pay for a
// data buffer, or see STREAM_AVAIL events, for a body it may end up
// rejecting. Mirrors obex_server_recv's two-pass header filter
// (obex_object_receive_headers called once with the body IDs masked out,
// once — only if accepted — with everything else masked out).
func DeliverHeadersExceptBody(obj *object.Object, body []byte) error {
	return deliverHeaders(obj, body, true, false, nil)
}

// DeliverBodyHeaders completes delivery of body's Body/End-of-Body
// headers only. Call once DeliverHeadersExceptBody has already routed
// everything else from the same packet and the host has accepted the
// request. onStream behaves as in DeliverHeaders.
func DeliverBodyHeaders(obj *object.Object, body []byte, onStream func(*header.Header)) error {
	return deliverHeaders(obj, body, false, true, onStream)
}

// deliverHeaders walks every header in body, applying obj's HeaderOffset
// once, and routes each header through deliverRXHeader only when its kind
// (body vs. non-body) matches what the caller asked for.
func deliverHeaders(obj *object.Object, body []byte, wantNonBody, wantBody bool, onStream func(*header.Header)) error {
	if off := obj.HeaderOffset(); off > 0 {
		if len(body) < off {
			return fmt.Errorf("wire: packet shorter than expected pre-header (%d bytes)", off)
		}
		if wantNonBody {
			obj.SetRXPreHeader(body[:off])
		}
		body = body[off:]
	}

	for len(body) > 0 {
		h, hn, perr := header.Parse(body)
		if perr != nil {
			return perr
		}
		isBody := h.ID() == header.IDBody || h.ID() == header.IDEndOfBody
		if (isBody && wantBody) || (!isBody && wantNonBody) {
			deliverRXHeader(obj, h, onStream)
		}
		body = body[hn:]
	}
	return nil
}

// deliverRXHeader routes one parsed inbound header onto obj: Length is
// captured as the buffered-mode body size hint, Body/End-of-Body fragments
// are either accumulated (BodyBuffered) or, for BodyStreamed, appended to
// the RX list and handed to onStream so the engine can fire a
// STREAM_AVAIL event, and every other header is simply appended to the RX
// list in arrival order.
func deliverRXHeader(obj *object.Object, h *header.Header, onStream func(*header.Header)) {
	switch h.ID() {
	case header.IDLength:
		if v := h.Bytes(); len(v) == 4 {
			n := int(v[0])<<24 | int(v[1])<<16 | int(v[2])<<8 | int(v[3])
			obj.SetHintedBodyLength(n)
		}
		obj.AppendRXHeader(h)

	case header.IDBody, header.IDEndOfBody:
		if obj.BodyMode() == object.BodyStreamed {
			obj.AppendRXHeader(h)
			if onStream != nil {
				onStream(h)
			}
			return
		}
		obj.RXBody().Append(h.Bytes())
		if h.IsEndOfBody() {
			whole := header.NewOwned(header.IDBody, header.TypeBytes, obj.RXBody().Bytes(), header.FlagCopy)
			obj.AppendRXHeader(whole)
		}

	default:
		obj.AppendRXHeader(h)
	}
}
