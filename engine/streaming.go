package engine

import (
	"github.com/go-obex/obex/header"
	"github.com/go-obex/obex/object"
)

// AddStreamHeader starts a streaming Body header on obj, wired so that
// draining it dry mid-transaction fires STREAM_EMPTY: the host's cue to
// either Feed the header more data or mark the stream finished before the
// next Work call resumes sending (spec.md §4.5, "TX streaming").
func (e *Engine) AddStreamHeader(obj *object.Object, id header.ID) *header.Header {
	return obj.AddStreamHeader(id, func() {
		e.deliverEvent(EventStreamEmpty, obj.Command(), 0)
	})
}

// streamSink returns the callback DeliverHeaders/DeliverBodyHeaders invoke
// once per received Body/End-of-Body fragment when the in-flight Object's
// BodyMode is BodyStreamed: each fragment is appended to the RX list (so
// the host can read it during the callback) and a STREAM_AVAIL event
// fires immediately rather than the fragment being silently buffered
// (spec.md §4.5, "RX streaming").
func (e *Engine) streamSink() func(*header.Header) {
	return func(h *header.Header) {
		e.deliverEvent(EventStreamAvail, e.obj.Command(), 0)
	}
}
