package engine

import (
	"github.com/go-obex/obex/header"
	"github.com/go-obex/obex/object"
	"github.com/go-obex/obex/wire"
)

// WaitFlags are the two independent "hold off" conditions Single-Response
// Mode layers onto the base protocol (spec.md §4.6).
type WaitFlags struct {
	Local  bool
	Remote bool
}

// srmDecodeTX maps an outbound SRMP byte to the wait-bits it sets on this
// side. Direct port of obex_srm_tx_flags_decode.
func srmDecodeTX(v byte) WaitFlags {
	switch v {
	case 0x00:
		return WaitFlags{Local: true}
	case 0x01:
		return WaitFlags{Remote: true}
	case 0x02:
		return WaitFlags{Local: true, Remote: true}
	default:
		return WaitFlags{}
	}
}

// srmDecodeRX maps an inbound SRMP byte to wait-bits, symmetric-swapped
// relative to TX. Direct port of obex_srm_rx_flags_decode.
func srmDecodeRX(v byte) WaitFlags {
	switch v {
	case 0x00:
		return WaitFlags{Remote: true}
	case 0x01:
		return WaitFlags{Local: true}
	case 0x02:
		return WaitFlags{Local: true, Remote: true}
	default:
		return WaitFlags{}
	}
}

func (wf *WaitFlags) merge(other WaitFlags) {
	wf.Local = wf.Local || other.Local
	wf.Remote = wf.Remote || other.Remote
}

// scanSRM inspects the headers obj's RX list gained since fromIndex,
// updating respMode and the wait-bits for any SRM Flags / SRM Parameter
// header found (spec.md §4.4 point 4, §4.6). In Single mode the local
// wait bit is cleared before each RX step, per §4.6.
func (e *Engine) scanSRM(obj *object.Object, fromIndex int) {
	if e.respMode == ResponseSingle {
		e.wait.Local = false
	}
	headers := obj.RXHeaders()
	for _, h := range headers[fromIndex:] {
		switch h.ID() {
		case header.IDSRMFlags:
			if wire.DecodeSRMFlags(h) {
				e.respMode = ResponseSingle
			}
		case header.IDSRMParam:
			if v := h.Bytes(); len(v) == 1 {
				e.wait.merge(srmDecodeRX(v[0]))
			}
		}
	}
}

// EnableSRM queues the SRM Flags header announcing this side's willingness
// to run the transaction in Single-Response Mode and switches the
// engine's own response mode accordingly. Call before Submit (client) or
// during REQHINT/REQCHECK (server).
func (e *Engine) EnableSRM(obj *object.Object) error {
	h := wire.NewSRMFlagsHeader(true)
	if err := obj.AddHeader(h.ID(), h.Type(), h.Bytes(), header.FlagCopy); err != nil {
		return err
	}
	e.respMode = ResponseSingle
	return nil
}

// RequestWait queues an SRM Parameter header asking the peer (wait=true)
// or telling it not to (wait=false). The resulting wait-bits (srmDecodeTX)
// are folded into this engine's own state only once the header actually
// drains into an outgoing packet — see applyDrainedSRMWait — not at queue
// time, since a header queued behind a large Body may sit unsent for
// several packets.
func (e *Engine) RequestWait(obj *object.Object, wait bool) error {
	h := wire.NewSRMParamHeader(wait)
	if err := obj.AddHeader(h.ID(), h.Type(), h.Bytes(), header.FlagCopy); err != nil {
		return err
	}
	obj.SetPendingSRMWait(wait)
	return nil
}

// applyDrainedSRMWait folds a pending RequestWait value into this
// engine's own wait-bits once the SRM Parameter header it queued is no
// longer present in the TX queue, meaning it was fully drained into the
// packet just sent (spec.md §4.4 step 6, §4.6).
func (e *Engine) applyDrainedSRMWait() {
	if e.obj == nil {
		return
	}
	wait, ok := e.obj.PendingSRMWait()
	if !ok || e.obj.HasQueuedHeader(header.IDSRMParam) {
		return
	}
	e.obj.ClearPendingSRMWait()
	v := byte(wire.SRMParamNextNotLast)
	if wait {
		v = wire.SRMParamWait
	}
	e.wait.merge(srmDecodeTX(v))
}
