package csvf

import (
	"bytes"
	"errors"
	"testing"
)

func TestConvertXSVF_ByteSwap(t *testing.T) {
	// XSDRSIZE 32; XTDOMASK 01 02 03 04; XCOMPLETE.
	in := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x20,
		opXTDOMASK, 0x01, 0x02, 0x03, 0x04,
		opXCOMPLETE,
	}
	want := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x20,
		opXTDOMASK, 0x04, 0x03, 0x02, 0x01,
		opXCOMPLETE,
	}
	got, maxBuf, err := ConvertXSVF(in, nil)
	if err != nil {
		t.Fatalf("ConvertXSVF failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
	if maxBuf != 4 {
		t.Fatalf("maxBuf: got %d want 4", maxBuf)
	}
}

func TestConvertXSVF_SizeDeduplication(t *testing.T) {
	// Two same-width XSDRTDOs separated by a redundant XSDRSIZE: only one
	// XSDRSIZE may appear in the output.
	in := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x08,
		opXSDRTDO, 0xAA, 0xBB,
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x08,
		opXSDRTDO, 0xCC, 0xDD,
		opXCOMPLETE,
	}
	want := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x08,
		opXSDRTDO, 0xBB, 0xAA,
		opXSDRTDO, 0xDD, 0xCC,
		opXCOMPLETE,
	}
	got, _, err := ConvertXSVF(in, nil)
	if err != nil {
		t.Fatalf("ConvertXSVF failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
}

func TestConvertXSVF_SDRTDOSwapsWholeBlock(t *testing.T) {
	// The 2N payload of XSDRTDO (tdi then tdo-expected in XSVF order) is
	// reversed as one block, leaving the reversed expected bytes first.
	in := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x10,
		opXSDRTDO, 0x11, 0x22, 0x33, 0x44,
		opXCOMPLETE,
	}
	want := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x10,
		opXSDRTDO, 0x44, 0x33, 0x22, 0x11,
		opXCOMPLETE,
	}
	got, _, err := ConvertXSVF(in, nil)
	if err != nil {
		t.Fatalf("ConvertXSVF failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
}

func TestConvertXSVF_CopiesAndDrops(t *testing.T) {
	src := []byte{
		opXREPEAT, 0x20, // dropped with its count
		opXRUNTEST, 0x00, 0x01, 0x86, 0xA0, // copied verbatim
		opXSTATE, 0x00, // dropped
		opXENDIR, 0x00, // accepted, default state only
		opXENDDR, 0x00,
		opXSIR, 0x10, 0xAA, 0xBB, // bit count kept, payload reversed
		opXCOMPLETE,
	}
	want := []byte{
		opXRUNTEST, 0x00, 0x01, 0x86, 0xA0,
		opXSIR, 0x10, 0xBB, 0xAA,
		opXCOMPLETE,
	}
	got, _, err := ConvertXSVF(src, nil)
	if err != nil {
		t.Fatalf("ConvertXSVF failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
}

func TestConvertXSVF_GrowingShift(t *testing.T) {
	// XSDRB starts a chain whose XSDRSIZE operand is patched as XSDRC blocks
	// accumulate; XSDRC emits no opcode of its own; XSDRE re-announces its
	// own size.
	in := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x10,
		opXSDRB, 0xAB, 0xCD,
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x08,
		opXSDRC, 0xEF,
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x08,
		opXSDRE, 0x12,
		opXCOMPLETE,
	}
	want := []byte{
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x18, // 16+8 bits after the patch
		opXSDRB, 0xCD, 0xAB,
		0xEF, // XSDRC data folded into the XSDRB payload
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x08,
		opXSDRE, 0x12,
		opXCOMPLETE,
	}
	got, _, err := ConvertXSVF(in, nil)
	if err != nil {
		t.Fatalf("ConvertXSVF failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % X want % X", got, want)
	}
}

func TestConvertXSVF_Errors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{
			name: "non-default-endir",
			in:   []byte{opXENDIR, 0x01, opXCOMPLETE},
			want: ErrUnsupportedData,
		},
		{
			name: "non-default-enddr",
			in:   []byte{opXENDDR, 0x01, opXCOMPLETE},
			want: ErrUnsupportedData,
		},
		{
			name: "unsupported-opcode",
			in:   []byte{opXSETSDRMASKS, opXCOMPLETE},
			want: ErrUnsupportedCommand,
		},
		{
			name: "truncated-operand",
			in:   []byte{opXSDRSIZE, 0x00, 0x00},
			want: ErrUnexpectedEOF,
		},
		{
			name: "missing-xcomplete",
			in:   []byte{opXENDIR, 0x00},
			want: ErrUnexpectedEOF,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := ConvertXSVF(c.in, nil)
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestConvertXSVF_SizeLimit(t *testing.T) {
	// 2048 bits exceed the default 128-byte register cap.
	in := append([]byte{opXSDRSIZE, 0x00, 0x00, 0x08, 0x00, opXTDOMASK}, make([]byte, 256)...)
	in = append(in, opXCOMPLETE)
	if _, _, err := ConvertXSVF(in, nil); !errors.Is(err, ErrUnsupportedSize) {
		t.Fatalf("expected ErrUnsupportedSize, got %v", err)
	}

	// A raised cap accepts the same stream.
	if _, _, err := ConvertXSVF(in, &ConvertOptions{MaxShiftBytes: 256}); err != nil {
		t.Fatalf("ConvertXSVF with raised cap failed: %v", err)
	}
}
