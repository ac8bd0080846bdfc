// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

import "fmt"

// xsvfContext tracks the transformer state across opcodes: the DR size last
// parsed vs. last written, and the back-patch position of a growing
// XSDRB/XSDRC chain.
type xsvfContext struct {
	src *byteStream
	out []byte

	newSize uint32 // size from the most recent XSDRSIZE, not yet written
	curSize uint32 // size in force in the output stream

	totSize   uint32 // accumulated bit count of an open XSDRB chain
	totOffset int    // output offset of that chain's XSDRSIZE operand

	limit      uint32
	maxBufSize uint32
}

// ConvertXSVF transforms an XSVF byte stream into uncompressed CSVF:
// register payloads are byte-reversed, XSDRSIZE commands deduplicated,
// XREPEAT and XSTATE dropped, and XSDRC data folded into the preceding XSDRB
// with its size operand patched in place. The uint32 result is the widest
// XTDOMASK/XSDRTDO register in bytes; XSIR and XSDRB/XSDRC/XSDRE payloads
// are not counted.
func ConvertXSVF(xsvf []byte, opts *ConvertOptions) ([]byte, uint32, error) {
	xc := &xsvfContext{
		src:   newByteStream(xsvf),
		limit: uint32(opts.maxShiftBytes()),
	}
	for {
		op, err := xc.src.u8()
		if err != nil {
			return nil, 0, fmt.Errorf("reading opcode: %w", err)
		}
		if op == opXCOMPLETE {
			xc.out = append(xc.out, opXCOMPLETE)
			return xc.out, xc.maxBufSize, nil
		}
		if err := xc.transform(op); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", cmdName(op), err)
		}
	}
}

func (xc *xsvfContext) transform(op byte) error {
	switch op {
	case opXSDRSIZE:
		// Remember it; written only when a shift actually uses a new size.
		size, err := xc.src.u32be()
		if err != nil {
			return err
		}
		xc.newSize = size
		return nil

	case opXTDOMASK:
		n, err := xc.announceSize()
		if err != nil {
			return err
		}
		xc.out = append(xc.out, opXTDOMASK)
		return xc.appendSwapped(n)

	case opXSDRTDO:
		n, err := xc.announceSize()
		if err != nil {
			return err
		}
		xc.out = append(xc.out, opXSDRTDO)
		return xc.appendSwapped(2 * n)

	case opXREPEAT:
		// The player retries nothing; drop the count.
		_, err := xc.src.u8()
		return err

	case opXRUNTEST:
		us, err := xc.src.u32be()
		if err != nil {
			return err
		}
		xc.out = append(xc.out, opXRUNTEST,
			byte(us>>24), byte(us>>16), byte(us>>8), byte(us))
		return nil

	case opXSIR:
		bits, err := xc.src.u8()
		if err != nil {
			return err
		}
		xc.out = append(xc.out, opXSIR, bits)
		return xc.appendSwapped(bitsToBytes(uint32(bits)))

	case opXSDRB:
		// Begin a growing DR shift: the size operand written here is patched
		// as XSDRC blocks accumulate.
		xc.curSize = xc.newSize
		xc.writeSize(xc.curSize)
		xc.totSize = xc.curSize
		xc.totOffset = len(xc.out) - 4
		xc.out = append(xc.out, opXSDRB)
		return xc.appendSwappedChecked(xc.curSize)

	case opXSDRC:
		// No opcode byte: the data extends the previous XSDRB payload.
		xc.curSize = xc.newSize
		xc.totSize += xc.curSize
		patchU32(xc.out[xc.totOffset:], xc.totSize)
		return xc.appendSwappedChecked(xc.curSize)

	case opXSDRE:
		xc.curSize = xc.newSize
		xc.writeSize(xc.curSize)
		xc.out = append(xc.out, opXSDRE)
		return xc.appendSwappedChecked(xc.curSize)

	case opXSTATE:
		// The remaining commands imply their own TAP transitions; the stream
		// only has to start from Run-Test/Idle.
		_, err := xc.src.u8()
		return err

	case opXENDIR, opXENDDR:
		// Only the default end state (Run-Test/Idle) is supported.
		state, err := xc.src.u8()
		if err != nil {
			return err
		}
		if state != 0 {
			return fmt.Errorf("%w: end state 0x%02X", ErrUnsupportedData, state)
		}
		return nil

	default:
		return fmt.Errorf("%w: 0x%02X", ErrUnsupportedCommand, op)
	}
}

// announceSize emits an XSDRSIZE if the pending size differs from the one in
// force, and returns the payload byte count after checking the buffer limit.
func (xc *xsvfContext) announceSize() (uint32, error) {
	if xc.newSize != xc.curSize {
		xc.curSize = xc.newSize
		xc.writeSize(xc.curSize)
	}
	n := bitsToBytes(xc.curSize)
	if n > xc.limit {
		return 0, fmt.Errorf("%w: %d bits", ErrUnsupportedSize, xc.curSize)
	}
	if n > xc.maxBufSize {
		xc.maxBufSize = n
	}
	return n, nil
}

// writeSize appends XSDRSIZE with a big-endian operand.
func (xc *xsvfContext) writeSize(size uint32) {
	xc.out = append(xc.out, opXSDRSIZE,
		byte(size>>24), byte(size>>16), byte(size>>8), byte(size))
}

// appendSwapped copies n payload bytes from the input in reverse order.
func (xc *xsvfContext) appendSwapped(n uint32) error {
	block, err := xc.src.block(int(n))
	if err != nil {
		return err
	}
	xc.out = append(xc.out, reverseBytes(block)...)
	return nil
}

// appendSwappedChecked is appendSwapped with the per-block size limit applied,
// for the XSDRB/XSDRC/XSDRE family whose block size is curSize.
func (xc *xsvfContext) appendSwappedChecked(bits uint32) error {
	n := bitsToBytes(bits)
	if n > xc.limit {
		return fmt.Errorf("%w: %d bits", ErrUnsupportedSize, bits)
	}
	return xc.appendSwapped(n)
}

// patchU32 overwrites the four bytes at the start of buf with a big-endian v.
func patchU32(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}
