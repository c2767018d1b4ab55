package engine

import (
	"fmt"

	"github.com/go-obex/obex/object"
	"github.com/go-obex/obex/wire"
)

// workServer dispatches one cooperative step of the server state machine
// (spec.md §4.8).
func (e *Engine) workServer() error {
	switch e.state {
	case StateRequest:
		if e.obj == nil {
			return e.stepServerIdle()
		}
		return e.stepServerRequest()
	case StateResponse:
		return e.stepServerResponseSend()
	default:
		return e.stepServerIdle()
	}
}

// stepServerIdle blocks for the first packet of a new transaction, creates
// the Object for it, applies CONNECT/SETPATH pre-header handling, and
// hands off to continueRequest for the REQCHECK/REQ/PROGRESS sequencing
// shared with subsequent packets.
func (e *Engine) stepServerIdle() error {
	f, err := e.receiveFrame()
	if err != nil {
		return err
	}
	if e.obj != nil {
		e.replyAndFinish(object.RspInternalError)
		return nil
	}

	cmd := object.Opcode(f.Opcode)
	obj := object.New(cmd)
	obj.SetResponse(object.RspNotImplemented, object.RspNotImplemented)
	switch cmd {
	case object.CmdConnect:
		obj.SetHeaderOffset(wire.ConnectHeaderSize)
	case object.CmdSetPath:
		obj.SetHeaderOffset(wire.SetPathHeaderSize)
	}

	if perr := wire.DeliverHeadersExceptBody(obj, f.Body); perr != nil {
		e.replyAndFinish(object.RspBadRequest)
		e.deliverEvent(EventParseErr, cmd, 0)
		return nil
	}
	e.obj = obj
	e.scanSRM(obj, 0)

	if cmd == object.CmdConnect {
		e.negotiateServerMTUFromConnect()
	}
	e.deliverEvent(EventReqHint, cmd, 0)
	e.state = StateRequest
	e.sub = SubRx
	// HeaderOffset must survive until continueRequest's second pass (over
	// the same packet's Body headers) has also skipped the pre-header
	// bytes; only clear it once both passes of this first packet are done.
	err = e.continueRequest(f.Body, f.Final)
	obj.SetHeaderOffset(0)
	return err
}

// negotiateServerMTUFromConnect reads the CONNECT pre-header the client
// just sent and clamps the negotiated MTU-TX to [MinimumMTU, mtuTXMax]
// (spec.md §8 Scenario B).
func (e *Engine) negotiateServerMTUFromConnect() {
	pre := e.obj.RXPreHeader()
	if len(pre) < wire.ConnectHeaderSize {
		return
	}
	ch, err := wire.DecodeConnectHeader(pre)
	if err != nil {
		return
	}
	mtu := ch.MTU
	if mtu > e.mtuTXMax {
		mtu = e.mtuTXMax
	}
	if mtu < MinimumMTU {
		mtu = MinimumMTU
	}
	e.mtuTX = mtu
}

// stepServerRequest reads the next packet of an already-started request,
// handling inbound ABORT and command-mismatch before routing headers.
func (e *Engine) stepServerRequest() error {
	f, err := e.receiveFrame()
	if err != nil {
		return err
	}

	if object.Opcode(f.Opcode) == object.CmdAbort {
		frame := wire.Frame{Opcode: byte(object.RspSuccess), Final: true}
		e.tx.Append(frame.Encode())
		if werr := e.flushTX(); werr != nil {
			return werr
		}
		e.deliverEvent(EventAbort, e.obj.Command(), object.RspSuccess)
		e.dropObject()
		e.state = StateIdle
		e.sub = SubRx
		return nil
	}

	if object.Opcode(f.Opcode) != e.obj.Command() {
		return &ParseError{Err: fmt.Errorf("engine: command byte %#x does not match in-flight %#x", f.Opcode, e.obj.Command())}
	}

	fromIndex := len(e.obj.RXHeaders())
	if perr := wire.DeliverHeadersExceptBody(e.obj, f.Body); perr != nil {
		return &ParseError{Err: perr}
	}
	e.scanSRM(e.obj, fromIndex)
	return e.continueRequest(f.Body, f.Final)
}

// continueRequest implements the shared REQCHECK/REQ/PROGRESS sequencing
// of spec.md §4.8 for both the first and every later packet of a request.
// body holds the just-received packet's still-undelivered Body/
// End-of-Body headers: spec.md §4.4's accept-before-spool filter means
// they are only parsed here, once the host's REQCHECK verdict for this
// transaction is known to be a 1xx/2xx accept (mirrors obex_server_recv's
// two-pass obex_object_receive_headers).
func (e *Engine) continueRequest(body []byte, final bool) error {
	if !e.obj.Checked() {
		e.obj.SetResponse(object.RspContinue, object.RspSuccess)
		e.obj.MarkChecked()
		e.deliverEvent(EventReqCheck, e.obj.Command(), 0)
	}

	accepted := e.obj.ResponseFinal().IsInformational() || e.obj.ResponseFinal().IsSuccess()
	if accepted {
		if perr := wire.DeliverBodyHeaders(e.obj, body, e.streamSink()); perr != nil {
			return &ParseError{Err: perr}
		}
	}

	if !final {
		if accepted {
			e.deliverEvent(EventProgress, e.obj.Command(), 0)
			if e.respMode == ResponseNormal || e.wait.Remote {
				if err := e.sendServerAck(e.obj.ResponseNonFinal()); err != nil {
					return err
				}
			}
			e.state = StateRequest
			e.sub = SubRx
			return nil
		}
		// Host rejected mid-stream: fall through and send the error
		// response now instead of waiting for a final packet that may
		// never usefully arrive.
	}

	if accepted {
		e.deliverEvent(EventReq, e.obj.Command(), 0)
		if e.obj.Command() == object.CmdConnect {
			e.obj.SetTXPreHeader(wire.ConnectHeader{Version: wire.ProtocolVersion, MTU: e.mtuRX}.Encode())
		}
	}
	e.state = StateResponse
	e.sub = SubTxPrepare
	return nil
}

// sendServerAck sends a bare intermediate response packet (no TX queue
// draining beyond whatever the host may have queued during REQCHECK).
func (e *Engine) sendServerAck(resp object.Response) error {
	body := wire.PrepareTX(e.obj, e.mtuTX)
	frame := wire.Frame{Opcode: byte(resp), Final: true, Body: body}
	e.tx.Append(frame.Encode())
	if err := e.flushTX(); err != nil {
		return err
	}
	e.applyDrainedSRMWait()
	return nil
}

// stepServerResponseSend prepares and sends the next response packet,
// first opportunistically absorbing any already-buffered inbound packet
// as out-of-band progress (spec.md §4.8, §7 "Unexpected data").
func (e *Engine) stepServerResponseSend() error {
	if f, ok := e.tryDequeueFrame(); ok {
		if object.Opcode(f.Opcode) != object.CmdAbort {
			fromIndex := len(e.obj.RXHeaders())
			if wire.DeliverHeaders(e.obj, f.Body, e.streamSink()) == nil {
				e.scanSRM(e.obj, fromIndex)
			}
			if e.respMode == ResponseNormal {
				e.deliverEvent(EventUnexpected, e.obj.Command(), 0)
			}
		}
	}

	body := wire.PrepareTX(e.obj, e.mtuTX)
	final := e.obj.TXQueueEmpty()
	resp := e.obj.ResponseNonFinal()
	if final {
		resp = e.obj.ResponseFinal()
	}

	frame := wire.Frame{Opcode: byte(resp), Final: true, Body: body}
	e.tx.Append(frame.Encode())
	if err := e.flushTX(); err != nil {
		return err
	}
	e.applyDrainedSRMWait()
	e.deliverEvent(EventProgress, e.obj.Command(), resp)

	if !final {
		e.sub = SubTxPrepare
		return nil
	}
	return e.finishServerTransaction(resp)
}

// finishServerTransaction delivers REQDONE, applies DISCONNECT
// side-effects, drops the object, and returns the engine to Idle.
func (e *Engine) finishServerTransaction(resp object.Response) error {
	cmd := e.obj.Command()
	if cmd == object.CmdDisconnect {
		e.mtuTX = MinimumMTU
		e.respMode = ResponseNormal
		e.wait = WaitFlags{}
	}
	e.deliverEvent(EventReqDone, cmd, resp)
	e.dropObject()
	e.state = StateIdle
	e.sub = SubRx
	return nil
}
