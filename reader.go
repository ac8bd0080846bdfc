// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

// Reader is the streaming CSVF decompressor: a cursor over the compressed
// input that hands out one uncompressed byte at a time. It allocates nothing
// and needs no lookahead beyond the next length prefix.
type Reader struct {
	src       *byteStream
	remaining uint32
	inChunk   bool
}

// NewReader validates the header byte and positions the cursor on the first
// chunk. Returns ErrBadHeader unless the header byte is 0x00.
func NewReader(compressed []byte) (*Reader, error) {
	src := newByteStream(compressed)
	hdr, err := src.u8()
	if err != nil {
		return nil, err
	}
	if hdr != 0x00 {
		return nil, ErrBadHeader
	}
	r := &Reader{src: src, inChunk: true}
	r.remaining, _ = r.readLength()
	return r, nil
}

// next returns the next uncompressed byte, alternating between verbatim
// chunks and synthesized zero runs. ok is false once the compressed input is
// exhausted.
func (r *Reader) next() (b byte, ok bool) {
	for {
		if r.remaining > 0 {
			r.remaining--
			if !r.inChunk {
				return 0x00, true
			}
			raw, err := r.src.u8()
			if err != nil {
				return 0, false
			}
			return raw, true
		}
		n, more := r.readLength()
		if !more {
			return 0, false
		}
		r.remaining = n
		r.inChunk = !r.inChunk
	}
}

// u8 returns the next uncompressed byte, or ErrUnexpectedEOF past the end of
// the stream.
func (r *Reader) u8() (byte, error) {
	b, ok := r.next()
	if !ok {
		return 0, ErrUnexpectedEOF
	}
	return b, nil
}

// u16be reads a big-endian uint16 from the uncompressed stream.
func (r *Reader) u16be() (uint16, error) {
	hi, err := r.u8()
	if err != nil {
		return 0, err
	}
	lo, err := r.u8()
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// u32be reads a big-endian uint32 from the uncompressed stream.
func (r *Reader) u32be() (uint32, error) {
	hi, err := r.u16be()
	if err != nil {
		return 0, err
	}
	lo, err := r.u16be()
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

// fill reads len(dst) uncompressed bytes into dst.
func (r *Reader) fill(dst []byte) error {
	for i := range dst {
		b, err := r.u8()
		if err != nil {
			return err
		}
		dst[i] = b
	}
	return nil
}

// readLength decodes a chunk/run length prefix: one byte for 1..255, a 0x00
// escape plus big-endian uint16, then a further 0x0000 escape plus big-endian
// uint32. A truncated prefix means the terminator has been reached; ok is
// false in that case.
func (r *Reader) readLength() (n uint32, ok bool) {
	b, err := r.src.u8()
	if err != nil {
		return 0, false
	}
	n = uint32(b)
	if n == 0 {
		w, err := r.src.u16be()
		if err != nil {
			return 0, false
		}
		n = uint32(w)
	}
	if n == 0 {
		l, err := r.src.u32be()
		if err != nil {
			return 0, false
		}
		n = l
	}
	return n, true
}
