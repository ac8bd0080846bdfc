// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

// Runs of zeros shorter than this stay inline in the surrounding chunk: the
// length prefix of a broken-out run costs more than the zeros themselves.
const minZeroRun = 9

// Compress encodes src as compressed CSVF: a zero header byte, then verbatim
// chunks alternating with elided zero runs, each prefixed by its length.
// Lengths 1..255 are one byte; longer blocks use a 0x00 escape followed by a
// big-endian uint16, or 0x00 0x0000 followed by a big-endian uint32.
func Compress(src []byte) []byte {
	out := make([]byte, 1, len(src)/2+16)
	out[0] = 0x00 // header: reserved

	end := len(src)
	chunkStart := 0
	runStart := 0
	for runStart < end {
		// Find the next run of zeros.
		for runStart < end && src[runStart] != 0 {
			runStart++
		}
		runEnd := runStart
		for runEnd < end && src[runEnd] == 0 {
			runEnd++
		}
		runLen := runEnd - runStart

		// Short interior runs are cheaper inline; only long runs, or the run
		// terminating the input, break the chunk.
		if runLen >= minZeroRun || runEnd == end {
			chunk := src[chunkStart:runStart]
			if len(chunk) == 0 {
				// A chunk length of zero is the long-length escape, so it can
				// never appear in the stream. Fold one zero byte into a
				// 1-byte chunk instead.
				out = appendLength(out, 1)
				out = append(out, 0x00)
				runLen--
			} else {
				out = appendLength(out, len(chunk))
				out = append(out, chunk...)
			}
			out = appendLength(out, runLen)
			chunkStart = runEnd
		}
		runStart = runEnd
	}
	return out
}

// appendLength appends the chunk/run length encoding: one byte for 1..255, a
// 0x00 escape plus big-endian uint16 for 256..65535, and a 0x00 0x0000 escape
// plus big-endian uint32 beyond that. A length of zero is appended as the
// bare terminator byte; it is only ever produced at end of stream, where the
// decoder never reads past it.
func appendLength(out []byte, n int) []byte {
	switch {
	case n < 256:
		return append(out, byte(n))
	case n < 0x10000:
		return append(out, 0x00, byte(n>>8), byte(n))
	default:
		return append(out, 0x00, 0x00, 0x00,
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

// Decompress expands a compressed CSVF buffer in full. The expected use is
// streaming via Reader; this is the whole-buffer convenience for tools and
// tests. Returns ErrBadHeader if the header byte is nonzero.
func Decompress(src []byte) ([]byte, error) {
	r, err := NewReader(src)
	if err != nil {
		return nil, err
	}
	var out []byte
	for {
		b, ok := r.next()
		if !ok {
			return out, nil
		}
		out = append(out, b)
	}
}
