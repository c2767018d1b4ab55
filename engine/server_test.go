package engine

import (
	"testing"

	"github.com/go-obex/obex/buffer"
	"github.com/go-obex/obex/header"
	"github.com/go-obex/obex/object"
	"github.com/go-obex/obex/wire"
)

func newServerEngine(t *testing.T, tr *captureTransport, onEvent func(obj *object.Object, ev Event)) (*Engine, *[]recordedEvent) {
	t.Helper()
	var events []recordedEvent
	cb := func(obj *object.Object, m Mode, ev Event, cmd object.Opcode, resp object.Response) {
		events = append(events, recordedEvent{ev, cmd, resp})
		if onEvent != nil {
			onEvent(obj, ev)
		}
	}
	e, err := New(ModeServer, DefaultOptions(), cb, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, &events
}

func headerBytes(t *testing.T, id header.ID, typ header.Type, value []byte) []byte {
	t.Helper()
	h := header.NewOwned(id, typ, value, header.FlagCopy)
	buf := buffer.New()
	if n := h.Append(buf, 1<<16); n == 0 {
		t.Fatalf("failed to serialize test header %v", id)
	}
	return buf.Bytes()
}

// TestStepServerIdleSinglePacketAcceptsAndFiresFullSequence mirrors spec.md
// §8 Scenario A: one request packet is enough to fire REQHINT, REQCHECK and
// (once the host accepts during REQCHECK) REQ in a single stepServerIdle call.
func TestStepServerIdleSinglePacketAcceptsAndFiresFullSequence(t *testing.T) {
	tr := &captureTransport{}
	e, events := newServerEngine(t, tr, func(obj *object.Object, ev Event) {
		if ev == EventReqCheck {
			obj.SetResponse(object.RspSuccess, object.RspSuccess)
		}
	})

	body := headerBytes(t, header.IDName, header.TypeUnicode, []byte("a"))
	frame := wire.Frame{Opcode: byte(object.CmdPut), Final: true, Body: body}
	e.rx.Append(frame.Encode())

	if err := e.stepServerIdle(); err != nil {
		t.Fatalf("stepServerIdle: %v", err)
	}

	want := []Event{EventReqHint, EventReqCheck, EventReq}
	if len(*events) != len(want) {
		t.Fatalf("expected %v, got %v", want, *events)
	}
	for i, ev := range want {
		if (*events)[i].event != ev {
			t.Fatalf("expected %v at position %d, got %v", ev, i, (*events)[i].event)
		}
	}
	if e.state != StateResponse || e.sub != SubTxPrepare {
		t.Fatalf("expected Response/TxPrepare, got %v/%v", e.state, e.sub)
	}
	if e.obj == nil {
		t.Fatal("expected the object to remain in flight awaiting the response send")
	}
}

func TestStepServerIdleMalformedHeaderRepliesBadRequest(t *testing.T) {
	tr := &captureTransport{}
	e, events := newServerEngine(t, tr, nil)

	// A Bytes-type header declaring a total length far beyond what follows.
	body := []byte{header.WireByte(header.TypeBytes, header.IDName), 0x00, 0x20}
	frame := wire.Frame{Opcode: byte(object.CmdPut), Final: true, Body: body}
	e.rx.Append(frame.Encode())

	if err := e.stepServerIdle(); err != nil {
		t.Fatalf("stepServerIdle: %v", err)
	}
	if len(*events) != 1 || (*events)[0].event != EventParseErr {
		t.Fatalf("expected a single PARSEERR event, got %v", *events)
	}
	if e.obj != nil {
		t.Fatal("expected no object left in flight after a malformed first packet")
	}
	f := tr.lastFrame(t)
	if object.Response(f.Opcode) != object.RspBadRequest {
		t.Fatalf("expected BAD_REQUEST reply, got %#x", f.Opcode)
	}
}

func TestStepServerIdleConnectNegotiatesMTU(t *testing.T) {
	tr := &captureTransport{}
	var events []recordedEvent
	cb := func(obj *object.Object, m Mode, ev Event, cmd object.Opcode, resp object.Response) {
		events = append(events, recordedEvent{ev, cmd, resp})
		if ev == EventReqCheck {
			obj.SetResponse(object.RspSuccess, object.RspSuccess)
		}
	}
	opts := DefaultOptions()
	opts.MTURX = 512
	opts.MTUTXMax = 512
	e, err := New(ModeServer, opts, cb, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	body := wire.ConnectHeader{Version: wire.ProtocolVersion, MTU: 1024}.Encode()
	frame := wire.Frame{Opcode: byte(object.CmdConnect), Final: true, Body: body}
	e.rx.Append(frame.Encode())

	if err := e.stepServerIdle(); err != nil {
		t.Fatalf("stepServerIdle: %v", err)
	}
	if e.mtuTX != 512 {
		t.Fatalf("expected negotiated MTU-TX 512 (min of the client's 1024 MTU-RX and our own 512 max), got %d", e.mtuTX)
	}
}

func TestStepServerRequestAbortRepliesSuccessAndFiresAbort(t *testing.T) {
	tr := &captureTransport{}
	e, events := newServerEngine(t, tr, nil)

	firstBody := headerBytes(t, header.IDName, header.TypeUnicode, []byte("a"))
	first := wire.Frame{Opcode: byte(object.CmdPut), Final: false, Body: firstBody}
	e.rx.Append(first.Encode())
	if err := e.stepServerIdle(); err != nil {
		t.Fatalf("stepServerIdle: %v", err)
	}
	if e.state != StateRequest || e.obj == nil {
		t.Fatalf("expected the request to still be in flight awaiting more packets, got state=%v obj=%v", e.state, e.obj)
	}

	abortFrame := wire.Frame{Opcode: byte(object.CmdAbort), Final: true}
	e.rx.Append(abortFrame.Encode())
	if err := e.stepServerRequest(); err != nil {
		t.Fatalf("stepServerRequest: %v", err)
	}

	last := (*events)[len(*events)-1]
	if last.event != EventAbort {
		t.Fatalf("expected ABORT, got %v", *events)
	}
	if e.state != StateIdle || e.obj != nil {
		t.Fatalf("expected the server to return to Idle with no object in flight, got state=%v obj=%v", e.state, e.obj)
	}
	f := tr.lastFrame(t)
	if object.Response(f.Opcode) != object.RspSuccess {
		t.Fatalf("expected a SUCCESS reply to ABORT, got %#x", f.Opcode)
	}
}

func TestStepServerRequestCommandMismatchIsParseError(t *testing.T) {
	tr := &captureTransport{}
	e, _ := newServerEngine(t, tr, nil)

	first := wire.Frame{Opcode: byte(object.CmdPut), Final: false}
	e.rx.Append(first.Encode())
	if err := e.stepServerIdle(); err != nil {
		t.Fatalf("stepServerIdle: %v", err)
	}

	mismatched := wire.Frame{Opcode: byte(object.CmdGet), Final: true}
	e.rx.Append(mismatched.Encode())
	err := e.stepServerRequest()
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected a *ParseError for a mid-request command mismatch, got %v", err)
	}
}

// TestMultiPacketRequestThenResponseDrains mirrors spec.md §8 Scenario C's
// shape at the engine-step level: a two-packet request followed by the
// server's single-packet response, driven one step function at a time.
func TestMultiPacketRequestThenResponseDrains(t *testing.T) {
	tr := &captureTransport{}
	e, events := newServerEngine(t, tr, func(obj *object.Object, ev Event) {
		if ev == EventReqCheck {
			obj.SetResponse(object.RspContinue, object.RspSuccess)
		}
	})

	first := wire.Frame{Opcode: byte(object.CmdPut), Final: false,
		Body: headerBytes(t, header.IDName, header.TypeUnicode, []byte("a"))}
	e.rx.Append(first.Encode())
	if err := e.stepServerIdle(); err != nil {
		t.Fatalf("stepServerIdle: %v", err)
	}
	if e.state != StateRequest {
		t.Fatalf("expected to still be collecting the request, got %v", e.state)
	}
	// Normal mode: the intermediate CONTINUE ack should have gone out.
	if got := tr.lastFrame(t); object.Response(got.Opcode) != object.RspContinue {
		t.Fatalf("expected an intermediate CONTINUE ack, got %#x", got.Opcode)
	}

	second := wire.Frame{Opcode: byte(object.CmdPut), Final: true,
		Body: headerBytes(t, header.IDBody, header.TypeBytes, []byte("payload"))}
	e.rx.Append(second.Encode())
	if err := e.stepServerRequest(); err != nil {
		t.Fatalf("stepServerRequest: %v", err)
	}
	if e.state != StateResponse || e.sub != SubTxPrepare {
		t.Fatalf("expected Response/TxPrepare after the final request packet, got %v/%v", e.state, e.sub)
	}

	if err := e.stepServerResponseSend(); err != nil {
		t.Fatalf("stepServerResponseSend: %v", err)
	}
	if e.state != StateIdle || e.obj != nil {
		t.Fatalf("expected the transaction to finish and return to Idle, got state=%v obj=%v", e.state, e.obj)
	}
	last := (*events)[len(*events)-1]
	if last.event != EventReqDone || !last.resp.IsSuccess() {
		t.Fatalf("expected REQDONE(success), got %v", last)
	}
}

func TestStepServerResponseSendDisconnectResetsMTUAndSRM(t *testing.T) {
	tr := &captureTransport{}
	e, _ := newServerEngine(t, tr, nil)
	e.mtuTX = 1024
	e.respMode = ResponseSingle
	e.wait = WaitFlags{Local: true, Remote: true}

	obj := object.New(object.CmdDisconnect)
	obj.SetResponse(object.RspSuccess, object.RspSuccess)
	obj.MarkChecked()
	e.obj = obj
	e.state = StateResponse
	e.sub = SubTxPrepare

	if err := e.stepServerResponseSend(); err != nil {
		t.Fatalf("stepServerResponseSend: %v", err)
	}
	if e.mtuTX != MinimumMTU {
		t.Fatalf("expected MTU-TX reset to %d after DISCONNECT, got %d", MinimumMTU, e.mtuTX)
	}
	if e.respMode != ResponseNormal || e.wait != (WaitFlags{}) {
		t.Fatalf("expected SRM state cleared after DISCONNECT, got respMode=%v wait=%v", e.respMode, e.wait)
	}
}
