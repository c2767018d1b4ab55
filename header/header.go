// Package header implements the OBEX header value model: a polymorphic
// (ID, Type, data) triple with three storage strategies — a non-owning
// pointer into caller memory, an owned copy, and a streaming source that
// supplies bytes on demand — plus the wire codec that appends a header to
// an outgoing packet and may split it across packet boundaries.
package header

import (
	"github.com/go-obex/obex/buffer"
)

// ID is the 6-bit header identifier (0..63).
type ID uint8

// Type is the 2-bit wire encoding class, stored in a header's top two bits.
type Type uint8

const (
	TypeUnicode Type = 0x00 // UTF-16BE, NUL terminated, 3-byte (ID+len) prefix
	TypeBytes   Type = 0x40 // raw bytes, 3-byte (ID+len) prefix
	TypeUint8   Type = 0x80 // single byte value, 1-byte (ID) prefix
	TypeUint32  Type = 0xC0 // big-endian uint32 value, 1-byte (ID) prefix
)

// Standard OBEX header IDs (IrDA OBEX 1.1), 6-bit identifiers as they
// appear once the Type bits are masked off the wire byte.
const (
	IDCount         ID = 0x00
	IDName          ID = 0x01
	IDType          ID = 0x02
	IDLength        ID = 0x03
	IDTime          ID = 0x04
	IDDescription   ID = 0x05
	IDTarget        ID = 0x06
	IDHTTP          ID = 0x07
	IDBody          ID = 0x08
	IDEndOfBody     ID = 0x09
	IDWho           ID = 0x0A
	IDConnectionID  ID = 0x0B
	IDAppParameters ID = 0x0C
	IDAuthChallenge ID = 0x0D
	IDAuthResponse  ID = 0x0E
	IDCreatorID     ID = 0x0F
	IDWANUUID       ID = 0x10
	IDObjectClass   ID = 0x11
	IDSessionParam  ID = 0x12
	IDSessionSeq    ID = 0x13
	IDAction        ID = 0x14
	IDTime2         ID = 0x15
	IDSRMFlags      ID = 0x17
	IDSRMParam      ID = 0x18
)

// WireByte combines a Type and an ID into the single byte that appears on
// the wire: the high two bits carry Type, the low six carry ID.
func WireByte(t Type, id ID) byte {
	return byte(t) | byte(id&0x3F)
}

// SplitWireByte decomposes a wire byte into its Type and ID parts.
func SplitWireByte(b byte) (Type, ID) {
	return Type(b & 0xC0), ID(b & 0x3F)
}

// Flags control how a header is queued for transmission.
type Flags uint8

const (
	// FlagCopy takes ownership of (copies) the supplied value instead of
	// holding a pointer into caller memory.
	FlagCopy Flags = 1 << iota
	// FlagSuspend marks the Object suspended once this header has been
	// fully drained into outgoing packets.
	FlagSuspend
	// FlagFitOnePacket makes AvailableSpace subtract the already-queued
	// headers' sizes, and makes AddHeader fail if the header would not fit
	// in a single outbound packet alongside what is already queued.
	FlagFitOnePacket
	// FlagStreamStart marks the start of a streaming Body header.
	// object.AddHeader does not act on it; streaming headers are created
	// with AddStreamHeader.
	FlagStreamStart
	// FlagStreamData appends a chunk to the most recently started
	// streaming Body header still in the TX queue.
	FlagStreamData
	// FlagStreamDataEnd appends a final chunk and marks the stream finished.
	FlagStreamDataEnd
)

// Kind distinguishes the three header storage strategies (§3, §9: expressed
// as a tagged variant rather than via shared-pointer reference counting).
type Kind int

const (
	// KindPointer is a non-owning view into caller memory, valid only
	// until the caller's buffer goes away or the header is serialized.
	KindPointer Kind = iota
	// KindOwned holds a private copy of the value.
	KindOwned
	// KindStream supplies bytes on demand via a notify callback.
	KindStream
)

// fixedWidth is the number of data bytes fixed-width headers want.
func fixedWidth(t Type) int {
	switch t {
	case TypeUint8:
		return 1
	case TypeUint32:
		return 4
	default:
		return 0
	}
}

// wireHeaderSize is the size of the non-data portion of the header on the
// wire: 1 byte for fixed-width types (just the ID|Type byte; the fixed
// value bytes are counted as "data"), 3 bytes for variable-length types
// (ID|Type byte plus 2-byte total length).
func wireHeaderSize(t Type) int {
	switch t {
	case TypeUint8, TypeUint32:
		return 1
	case TypeUnicode, TypeBytes:
		return 3
	default:
		return 0
	}
}

// Header is a queued or received OBEX header value.
type Header struct {
	id   ID
	typ  Type
	kind Kind
	flag Flags

	// KindPointer / KindOwned storage.
	data   []byte
	offset int // bytes of data already appended to previous packets

	// KindStream storage.
	stream *streamState
}

type streamState struct {
	chunk      []byte // current unread chunk
	off        int    // offset within chunk already appended
	finished   bool
	notifyOnce bool
	onEmpty    func()
}

// NewPointer creates a non-owning header view of the caller's value. The
// caller must keep value alive until the header has been fully serialized.
func NewPointer(id ID, t Type, value []byte, flags Flags) *Header {
	return &Header{id: id, typ: t, kind: KindPointer, data: value, flag: flags &^ FlagCopy}
}

// NewOwned copies value into a private buffer.
func NewOwned(id ID, t Type, value []byte, flags Flags) *Header {
	cp := make([]byte, len(value))
	copy(cp, value)
	return &Header{id: id, typ: t, kind: KindOwned, data: cp, flag: flags | FlagCopy}
}

// New dispatches to NewOwned or NewPointer based on FlagCopy, mirroring
// obex_hdr_create's flag-driven choice between membuf and ptr storage.
func New(id ID, t Type, value []byte, flags Flags) *Header {
	if flags&FlagCopy != 0 {
		return NewOwned(id, t, value, flags)
	}
	return NewPointer(id, t, value, flags)
}

// NewStream creates an empty streaming header. onEmpty is invoked
// synchronously whenever the append loop runs out of buffered bytes and
// the stream is not yet finished — the back-reference design note in
// SPEC_FULL.md: the notifier lets the owning engine fire STREAM_EMPTY and
// lets the host feed more bytes back into this same header before the
// append loop continues.
func NewStream(id ID, onEmpty func()) *Header {
	return &Header{
		id:     id,
		typ:    TypeBytes,
		kind:   KindStream,
		stream: &streamState{onEmpty: onEmpty},
	}
}

// ID returns the header's 6-bit identifier as queued or parsed. A received
// End-of-Body fragment reports IDEndOfBody, not IDBody; only the buffered
// RX path folds the fragments into a single header with IDBody.
func (h *Header) ID() ID { return h.id }

// Type returns the header's wire encoding class.
func (h *Header) Type() Type { return h.typ }

// Kind returns the header's storage strategy.
func (h *Header) Kind() Kind { return h.kind }

// Flags returns the flags the header was created or queued with.
func (h *Header) Flags() Flags { return h.flag }

// IsEndOfBody reports whether this is a Body header whose full payload has
// arrived (RX side) — wire ID 0x49 rather than 0x48.
func (h *Header) IsEndOfBody() bool {
	return h.id == IDEndOfBody
}

// IsSplittable reports whether the header may be fragmented across
// multiple outgoing packets: only the Body header, encoded as bytes.
func (h *Header) IsSplittable() bool {
	return h.id == IDBody && h.typ == TypeBytes
}

// Bytes returns the header's current data. For a stream header this is
// only the buffered-but-not-yet-sent chunk.
func (h *Header) Bytes() []byte {
	switch h.kind {
	case KindStream:
		return h.stream.chunk[h.stream.off:]
	default:
		return h.data[h.offset:]
	}
}

// dataSize returns the number of data bytes remaining to be sent,
// refreshing a stream header via its notifier if it has run dry.
func (h *Header) dataSize() int {
	if h.kind == KindStream {
		if len(h.stream.chunk)-h.stream.off == 0 {
			h.refreshStream()
		}
		return len(h.stream.chunk) - h.stream.off
	}
	return len(h.data) - h.offset
}

func (h *Header) refreshStream() {
	s := h.stream
	if s.finished {
		return
	}
	s.chunk = nil
	s.off = 0
	if s.onEmpty != nil {
		s.onEmpty()
	}
}

// Feed appends more bytes to a streaming header (called by AddHeader with
// FlagStreamData/FlagStreamDataEnd in response to a STREAM_EMPTY event).
func (h *Header) Feed(data []byte, end bool) {
	if h.kind != KindStream {
		return
	}
	h.stream.chunk = append(h.stream.chunk, data...)
	if end {
		h.stream.finished = true
	}
}

// IsFinished reports whether all of a header's data has been appended to
// outgoing packets (owned/pointer headers) or the stream has both run dry
// and been marked finished.
func (h *Header) IsFinished() bool {
	if h.kind == KindStream {
		return h.stream.finished && h.dataSize() == 0
	}
	return h.dataSize() == 0
}

// Size returns the header's total wire size (header bytes + remaining
// data bytes) as it would currently serialize.
func (h *Header) Size() int {
	return wireHeaderSize(h.typ) + h.dataSize()
}

const minDataSize = 1

// Append serializes as much of the header as fits within maxSize bytes of
// the destination buffer's current remaining packet budget, returning the
// number of bytes actually written. It mirrors obex_hdr_append's
// space-budget loop:
//   - a header that doesn't fit and can't be split returns 0 (the caller
//     retries it in the next packet);
//   - Body (and only Body) may be fragmented; Append itself writes the
//     End-of-Body ID on the fragment that leaves the header finished;
//   - u8/u32 headers with a short backing value are zero-padded to their
//     fixed width (reached whenever a u8/u32 header is built or queued
//     with fewer bytes than its width).
func (h *Header) Append(buf *buffer.Buffer, maxSize int) int {
	hdrSize := wireHeaderSize(h.typ)
	dataSize := h.dataSize()

	if (hdrSize+dataSize > maxSize && !h.IsSplittable()) || hdrSize+minDataSize > maxSize {
		return 0
	}

	width := fixedWidth(h.typ)
	if width != 0 && dataSize < width && hdrSize+width > maxSize {
		return 0
	}

	start := buf.Len()
	buf.Grow(hdrSize)
	actual := hdrSize

	if width != 0 && dataSize < width {
		n := h.appendData(buf, dataSize)
		buf.Grow(width - n)
		actual += width
		dataSize = 0
	}

	for maxSize > actual && dataSize != 0 {
		if dataSize > maxSize-actual {
			if h.IsSplittable() {
				dataSize = maxSize - actual
			} else {
				return 0
			}
		}

		var ret int
		if width != 0 && dataSize != width {
			if dataSize < width {
				buf.Append(make([]byte, width))
				ret = 1
			} else {
				ret = h.appendData(buf, width)
			}
		} else {
			ret = h.appendData(buf, dataSize)
		}

		actual += ret
		if ret == 0 {
			break
		}
		dataSize = h.dataSize()
	}

	wireID := h.id
	if h.id == IDBody && h.IsFinished() {
		wireID = IDEndOfBody
	}

	out := buf.Bytes()[start:]
	out[0] = WireByte(h.typ, wireID)
	if hdrSize > 1 {
		out[1] = byte(actual >> 8)
		out[2] = byte(actual & 0xFF)
	}

	return actual
}

// appendData copies up to size bytes of the header's remaining data into
// buf, advancing the header's internal read position.
func (h *Header) appendData(buf *buffer.Buffer, size int) int {
	switch h.kind {
	case KindStream:
		s := h.stream
		avail := len(s.chunk) - s.off
		if size > avail {
			size = avail
		}
		buf.Append(s.chunk[s.off : s.off+size])
		s.off += size
	default:
		avail := len(h.data) - h.offset
		if size > avail {
			size = avail
		}
		buf.Append(h.data[h.offset : h.offset+size])
		h.offset += size
	}
	return size
}

// ParseError describes a malformed header encountered while decoding an
// inbound packet: a declared length exceeding the bytes actually present.
type ParseError struct {
	Declared int
	Have     int
}

func (e *ParseError) Error() string {
	return "header: declared length exceeds available data"
}

// Parse decodes a single header from the front of data, returning the
// parsed header (always an owned copy — see DESIGN.md) and the number of
// bytes consumed. A malformed declared length is reported via ParseError
// and is fatal for the packet being decoded (spec.md §4.4).
func Parse(data []byte) (hdr *Header, consumed int, err error) {
	if len(data) < 1 {
		return nil, 0, &ParseError{Declared: 1, Have: len(data)}
	}
	t, id := SplitWireByte(data[0])

	switch t {
	case TypeUint8:
		if len(data) < 2 {
			return nil, 0, &ParseError{Declared: 2, Have: len(data)}
		}
		return NewOwned(id, t, data[1:2], 0), 2, nil

	case TypeUint32:
		if len(data) < 5 {
			return nil, 0, &ParseError{Declared: 5, Have: len(data)}
		}
		return NewOwned(id, t, data[1:5], 0), 5, nil

	case TypeUnicode, TypeBytes:
		if len(data) < 3 {
			return nil, 0, &ParseError{Declared: 3, Have: len(data)}
		}
		total := int(data[1])<<8 | int(data[2])
		if total < 3 || total > len(data) {
			return nil, 0, &ParseError{Declared: total, Have: len(data)}
		}
		return NewOwned(id, t, data[3:total], 0), total, nil

	default:
		return nil, 0, &ParseError{Declared: 1, Have: len(data)}
	}
}
