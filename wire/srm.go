package wire

import "github.com/go-obex/obex/header"

// Wire values carried by the SRM Flags and SRM Parameter headers (the
// Single-Response-Mode extension, spec.md §4.6). The asymmetric meaning of
// these values depending on which side produced them (this engine's own
// wait state vs. the peer's) is decoded by the owning engine, not here —
// this package only knows how to read and write the bytes.
const (
	SRMDisable byte = 0x00
	SRMEnable  byte = 0x01

	SRMParamNextNotLast byte = 0x00
	SRMParamWait        byte = 0x01
)

// NewSRMFlagsHeader builds the SRM Flags header a side uses to announce
// whether it is willing to run the current transaction in Single-Response
// Mode.
func NewSRMFlagsHeader(enable bool) *header.Header {
	v := SRMDisable
	if enable {
		v = SRMEnable
	}
	return header.NewOwned(header.IDSRMFlags, header.TypeUint8, []byte{v}, header.FlagCopy)
}

// NewSRMParamHeader builds the SRM Parameter header a side uses to ask its
// peer to hold its next response (wait=true) rather than send immediately.
func NewSRMParamHeader(wait bool) *header.Header {
	v := SRMParamNextNotLast
	if wait {
		v = SRMParamWait
	}
	return header.NewOwned(header.IDSRMParam, header.TypeUint8, []byte{v}, header.FlagCopy)
}

// DecodeSRMFlags reads an SRM Flags header's single-byte value.
func DecodeSRMFlags(h *header.Header) bool {
	v := h.Bytes()
	return len(v) == 1 && v[0] == SRMEnable
}

// DecodeSRMParam reads an SRM Parameter header's single-byte value.
func DecodeSRMParam(h *header.Header) bool {
	v := h.Bytes()
	return len(v) == 1 && v[0] == SRMParamWait
}
