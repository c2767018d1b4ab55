package engine

import "github.com/go-obex/obex/object"

// Event identifies one notification the engine delivers to the host
// callback during Work (spec.md §6).
type Event int

const (
	EventProgress Event = iota
	EventReqHint
	EventReqCheck
	EventReq
	EventReqDone
	EventAbort
	EventAcceptHint
	EventLinkErr
	EventParseErr
	EventUnexpected
	EventStreamEmpty
	EventStreamAvail
)

func (e Event) String() string {
	switch e {
	case EventProgress:
		return "PROGRESS"
	case EventReqHint:
		return "REQHINT"
	case EventReqCheck:
		return "REQCHECK"
	case EventReq:
		return "REQ"
	case EventReqDone:
		return "REQDONE"
	case EventAbort:
		return "ABORT"
	case EventAcceptHint:
		return "ACCEPTHINT"
	case EventLinkErr:
		return "LINKERR"
	case EventParseErr:
		return "PARSEERR"
	case EventUnexpected:
		return "UNEXPECTED"
	case EventStreamEmpty:
		return "STREAM_EMPTY"
	case EventStreamAvail:
		return "STREAM_AVAIL"
	default:
		return "UNKNOWN"
	}
}

// Callback is the single event surface a host registers: invoked with the
// Object in play, the engine's mode, the event, the command opcode, and
// (for response-bearing events) the response code.
type Callback func(obj *object.Object, mode Mode, event Event, cmd object.Opcode, resp object.Response)
