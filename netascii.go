package tftp

// NETASCII is RFC 764 canonical ASCII: lines end in CR LF, a bare CR is
// represented as CR NUL, and any other NUL is illegal (spec §4.2). Both
// transducers below are streaming and stateful across packet boundaries: a
// CR at the last byte of block N must carry over to block N+1, so the
// carry lives on the transducer value itself rather than in any per-call
// buffer (spec §11, "Stateful streaming translation across suspensions").
//
// No example in the retrieval pack performs this translation incrementally
// across block boundaries (several do a bulk bytes.Replace per write, which
// cannot carry a pending CR across a 512-byte cut), so this file is
// grounded directly on SPEC_FULL.md §4.2 rather than on an existing file.

// netASCIIEncoder converts host bytes to NETASCII, applied while uploading.
//
// A CR is never emitted the instant it's seen: it stays pending until the
// next byte (possibly in the following block) resolves it, since only that
// next byte tells us whether it joins into "CR LF" or stands alone as a
// "CR NUL". That is what lets a CR at the very end of block N carry
// cleanly into block N+1.
type netASCIIEncoder struct {
	crPending bool
}

// encode appends the NETASCII encoding of src to dst and returns the
// extended slice.
func (e *netASCIIEncoder) encode(dst, src []byte) []byte {
	for _, b := range src {
		if e.crPending {
			e.crPending = false
			if b == '\n' {
				dst = append(dst, '\r', '\n')
				continue
			}
			// Not joined by an LF: the CR stands alone.
			dst = append(dst, '\r', 0x00)
		}
		switch b {
		case 0x00:
			// NUL bytes are dropped from the host stream entirely.
		case '\n':
			dst = append(dst, '\r', '\n')
		case '\r':
			e.crPending = true
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

// flush emits the provisional "CR NUL" for a CR that was never resolved by
// a following byte, because the upload ended on it. Only host input that
// ends in a bare CR reaches this.
func (e *netASCIIEncoder) flush(dst []byte) []byte {
	if e.crPending {
		dst = append(dst, '\r', 0x00)
		e.crPending = false
	}
	return dst
}

// netASCIIDecoder converts NETASCII to host bytes, applied while
// downloading.
type netASCIIDecoder struct {
	pendingCR bool // true if the previous input byte was an unresolved CR
}

// decode appends the host-byte decoding of src to dst and returns the
// extended slice.
func (d *netASCIIDecoder) decode(dst, src []byte) []byte {
	for _, b := range src {
		if d.pendingCR {
			d.pendingCR = false
			switch b {
			case '\n':
				dst = append(dst, '\n')
			case 0x00:
				dst = append(dst, '\r')
			default:
				dst = append(dst, '\r', b)
			}
			continue
		}
		if b == '\r' {
			d.pendingCR = true
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// flush emits a carried CR that was never resolved by a following byte.
// This only matters for a stream that ends mid-encoding (a bare trailing
// CR); well-formed NETASCII text, and every sequence covered by the
// round-trip law in SPEC_FULL.md §10, never exercises it.
func (d *netASCIIDecoder) flush(dst []byte) []byte {
	if d.pendingCR {
		dst = append(dst, '\r')
		d.pendingCR = false
	}
	return dst
}
