package object

import (
	"bytes"
	"testing"

	"github.com/go-obex/obex/header"
)

func TestSetCommandAndResponse(t *testing.T) {
	o := New(CmdPut)
	if o.Command() != CmdPut {
		t.Fatalf("command = %v, want Put", o.Command())
	}
	o.SetCommand(CmdGet)
	if o.Command() != CmdGet {
		t.Fatalf("command after SetCommand = %v, want Get", o.Command())
	}

	o.SetResponse(RspContinue, RspSuccess)
	if o.ResponseNonFinal() != RspContinue || o.ResponseFinal() != RspSuccess {
		t.Fatalf("response codes not stored")
	}
}

func TestAddHeaderQueuesInOrder(t *testing.T) {
	o := New(CmdPut)
	if err := o.AddHeader(header.IDName, header.TypeUnicode, []byte("a"), header.FlagCopy); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}
	if err := o.AddHeader(header.IDLength, header.TypeUint32, []byte{0, 0, 0, 1}, header.FlagCopy); err != nil {
		t.Fatalf("AddHeader: %v", err)
	}

	h1, ok := o.TXQueueFront()
	if !ok || h1.ID() != header.IDName {
		t.Fatalf("expected Name header first")
	}
	o.TXQueuePopFront()
	h2, ok := o.TXQueueFront()
	if !ok || h2.ID() != header.IDLength {
		t.Fatalf("expected Length header second")
	}
	o.TXQueuePopFront()
	if !o.TXQueueEmpty() {
		t.Fatalf("expected queue to be empty")
	}
}

func TestAddHeaderFitOnePacketRejectsOverflow(t *testing.T) {
	o := New(CmdPut)
	o.SetMTU(20) // tiny MTU so a modest payload will not fit alongside the 3-byte common header
	big := bytes.Repeat([]byte{1}, 64)
	if err := o.AddHeader(header.IDName, header.TypeBytes, big, header.FlagCopy|header.FlagFitOnePacket); err == nil {
		t.Fatalf("expected error when header does not fit in one packet")
	}
	if !o.TXQueueEmpty() {
		t.Fatalf("rejected header must not be queued")
	}
}

func TestAvailableSpaceAccountsForQueuedHeadersOnlyWhenRequested(t *testing.T) {
	o := New(CmdPut)
	o.SetMTU(255)
	_ = o.AddHeader(header.IDLength, header.TypeUint32, []byte{0, 0, 0, 1}, header.FlagCopy)

	plain := o.AvailableSpace(0)
	withAccounting := o.AvailableSpace(header.FlagFitOnePacket)
	if plain <= withAccounting {
		t.Fatalf("FIT_ONE_PACKET accounting should reduce available space: plain=%d accounted=%d", plain, withAccounting)
	}
}

func TestAddStreamHeaderAndFeed(t *testing.T) {
	o := New(CmdPut)
	var empties int
	h := o.AddStreamHeader(header.IDBody, func() { empties++ })
	h.Feed([]byte("chunk"), true)

	front, ok := o.TXQueueFront()
	if !ok || front != h {
		t.Fatalf("expected streamed header queued")
	}
	if front.Kind() != header.KindStream {
		t.Fatalf("expected Stream kind")
	}
}

func TestRXHeaderListAndIteratorReparse(t *testing.T) {
	o := New(CmdGet)
	o.AppendRXHeader(header.NewOwned(header.IDName, header.TypeUnicode, []byte("a"), header.FlagCopy))
	o.AppendRXHeader(header.NewOwned(header.IDLength, header.TypeUint32, []byte{0, 0, 0, 2}, header.FlagCopy))

	h, ok := o.NextRXHeader()
	if !ok || h.ID() != header.IDName {
		t.Fatalf("expected Name header first")
	}
	h, ok = o.NextRXHeader()
	if !ok || h.ID() != header.IDLength {
		t.Fatalf("expected Length header second")
	}
	if _, ok := o.NextRXHeader(); ok {
		t.Fatalf("expected iterator exhausted")
	}

	o.ReparseRXHeaders()
	h, ok = o.NextRXHeader()
	if !ok || h.ID() != header.IDName {
		t.Fatalf("expected Name header again after reparse")
	}
}

func TestHintedBodyLengthSizesRXBuffer(t *testing.T) {
	o := New(CmdGet)
	o.SetHintedBodyLength(128)
	n, ok := o.HintedBodyLength()
	if !ok || n != 128 {
		t.Fatalf("hinted length = %d, %v", n, ok)
	}
	buf := o.RXBody()
	if buf.Len() != 0 {
		t.Fatalf("fresh RX body should start empty")
	}
}

func TestPreHeaderRoundTrip(t *testing.T) {
	o := New(CmdConnect)
	o.SetTXPreHeader([]byte{0x10, 0x00, 0x04, 0x00})
	first := o.PopTXPreHeader()
	if !bytes.Equal(first, []byte{0x10, 0x00, 0x04, 0x00}) {
		t.Fatalf("pre-header mismatch: %x", first)
	}
	if second := o.PopTXPreHeader(); second != nil {
		t.Fatalf("pre-header should only be returned once, got %x", second)
	}

	o.SetRXPreHeader([]byte{0x10, 0x00, 0x02, 0x00})
	if !bytes.Equal(o.RXPreHeader(), []byte{0x10, 0x00, 0x02, 0x00}) {
		t.Fatalf("RX pre-header mismatch")
	}
}

func TestAbortSuspendCheckedFirstPacketFlags(t *testing.T) {
	o := New(CmdPut)
	if o.AbortRequested() || o.Suspended() || o.Checked() || o.FirstPacketSent() {
		t.Fatalf("new object should have all flags clear")
	}

	o.RequestAbort()
	o.Suspend()
	o.MarkChecked()
	o.MarkFirstPacketSent()

	if !o.AbortRequested() || !o.Suspended() || !o.Checked() || !o.FirstPacketSent() {
		t.Fatalf("flags did not latch")
	}

	o.Resume()
	if o.Suspended() {
		t.Fatalf("Resume should clear suspended")
	}
}

func TestResponseCategorization(t *testing.T) {
	if !RspContinue.IsInformational() {
		t.Fatalf("Continue should be informational")
	}
	if !RspSuccess.IsSuccess() {
		t.Fatalf("Success should be success category")
	}
	if RspNotFound.IsSuccess() || RspNotFound.IsInformational() {
		t.Fatalf("NotFound should not be success or informational")
	}
}
