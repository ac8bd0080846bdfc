// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

import (
	"errors"
	"fmt"
)

// Sentinel errors for compilation, decompression and playback.
var (
	// ErrSVFParse is returned for a malformed SVF command (unknown keyword,
	// missing parenthesis, bad hex digit, invalid RUNTEST form).
	ErrSVFParse = errors.New("svf parse error")
	// ErrUnsupportedCommand is returned for an XSVF opcode outside the accepted subset.
	ErrUnsupportedCommand = errors.New("unsupported command")
	// ErrUnsupportedData is returned for an XSVF operand outside the accepted
	// range (e.g. a non-default XENDIR/XENDDR state).
	ErrUnsupportedData = errors.New("unsupported data")
	// ErrUnsupportedSize is returned when a shift register exceeds the buffer limit.
	ErrUnsupportedSize = errors.New("unsupported size")
	// ErrBadHeader is returned when the compressed CSVF header byte is not 0x00.
	ErrBadHeader = errors.New("bad csvf header")
	// ErrUnknownCommand is returned by the player for a CSVF opcode it does not know.
	ErrUnknownCommand = errors.New("unknown csvf command")
	// ErrCompare is returned when a masked XSDRTDO comparison fails.
	ErrCompare = errors.New("tdo compare mismatch")
	// ErrUnexpectedEOF is returned when a stream ends in the middle of a command.
	ErrUnexpectedEOF = errors.New("unexpected end of input")
	// ErrInternal indicates an invariant violation (e.g. a shift before any
	// XSDRSIZE). It points at a compiler bug, not at bad user input.
	ErrInternal = errors.New("internal error")
)

// CompareError carries the data of a failed XSDRTDO comparison.
// It unwraps to ErrCompare, so errors.Is(err, csvf.ErrCompare) works.
type CompareError struct {
	Got      []byte
	Mask     []byte
	Expected []byte
}

func (e *CompareError) Error() string {
	return fmt.Sprintf(
		"XSDRTDO failed:\n  Got: %s\n  Mask: %s\n  Expecting: %s",
		hexUpper(e.Got), hexUpper(e.Mask), hexUpper(e.Expected))
}

func (e *CompareError) Unwrap() error { return ErrCompare }

// UnknownCommandError reports the offending opcode byte.
// It unwraps to ErrUnknownCommand.
type UnknownCommandError struct {
	Op byte
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unsupported command 0x%02X", e.Op)
}

func (e *UnknownCommandError) Unwrap() error { return ErrUnknownCommand }

const nibbles = "0123456789ABCDEF"

// hexUpper renders b as contiguous uppercase hex, the format used in
// comparison failure dumps.
func hexUpper(b []byte) string {
	out := make([]byte, 2*len(b))
	for i, v := range b {
		out[2*i] = nibbles[v>>4]
		out[2*i+1] = nibbles[v&15]
	}
	return string(out)
}
