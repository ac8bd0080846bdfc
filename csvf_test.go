package csvf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestPipeline_SVFToPlayback drives the full path: SVF text through the
// compiler, the compressor and the player, against a scripted cable.
func TestPipeline_SVFToPlayback(t *testing.T) {
	svf := []byte(`
! select the IDCODE instruction, then read and check it
SIR 6 TDI (09);
RUNTEST 100 TCK;
SDR 32 TDI (00000000) TDO (F1C2E093) MASK (0FFFFFFF);
`)
	compiled, maxBuf, err := ConvertSVF(svf, nil)
	if err != nil {
		t.Fatalf("ConvertSVF failed: %v", err)
	}
	if maxBuf != 4 {
		t.Fatalf("maxBuf: got %d want 4", maxBuf)
	}
	packed := Compress(compiled)

	// The device answers the DR read with the expected IDCODE, low byte
	// first on the wire.
	drv := &mockDriver{tdoQ: [][]byte{{0x93, 0xE0, 0xC2, 0xF1}}}
	if err := Play(packed, drv); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	want := []driverCall{
		{Method: "ClockFSM", Pattern: 0x03, Count: 4},
		{Method: "Shift", NumBits: 6, TDI: []byte{0x09}, IsLast: true},
		{Method: "ClockFSM", Pattern: 0x01, Count: 2},
		{Method: "ClockFSM", Pattern: 0x01, Count: 3},
		{Method: "Shift", NumBits: 32, TDI: []byte{0x00, 0x00, 0x00, 0x00}, Capture: true, IsLast: true},
		{Method: "ClockFSM", Pattern: 0x01, Count: 2},
		{Method: "Clocks", N: 100},
	}
	if diff := cmp.Diff(want, drv.calls); diff != "" {
		t.Fatalf("call sequence mismatch (-want +got):\n%s", diff)
	}

	// The top nibble is outside the mask; everything else must match.
	drv = &mockDriver{tdoQ: [][]byte{{0x93, 0xE0, 0xC2, 0x01}}}
	if err := Play(packed, drv); err != nil {
		t.Fatalf("Play with out-of-mask difference failed: %v", err)
	}
	drv = &mockDriver{tdoQ: [][]byte{{0x92, 0xE0, 0xC2, 0xF1}}}
	if err := Play(packed, drv); !errors.Is(err, ErrCompare) {
		t.Fatalf("expected ErrCompare for in-mask difference, got %v", err)
	}
}

// TestPipeline_XSVFToPlayback drives XSVF through the transformer, the
// codec round trip and the player.
func TestPipeline_XSVFToPlayback(t *testing.T) {
	xsvf := []byte{
		opXREPEAT, 0x20,
		opXRUNTEST, 0x00, 0x00, 0x00, 0x0A,
		opXSIR, 0x08, 0xE8,
		opXSDRSIZE, 0x00, 0x00, 0x00, 0x10,
		opXTDOMASK, 0xFF, 0xFF,
		opXSDRTDO, 0x12, 0x34, 0x43, 0x21, // tdi 0x1234, expect 0x4321
		opXCOMPLETE,
	}
	compiled, _, err := ConvertXSVF(xsvf, nil)
	if err != nil {
		t.Fatalf("ConvertXSVF failed: %v", err)
	}
	packed := Compress(compiled)
	back, err := Decompress(packed)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(back, compiled) {
		t.Fatalf("codec round-trip mismatch")
	}

	drv := &mockDriver{tdoQ: [][]byte{{0x21, 0x43}}}
	if err := Play(packed, drv); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	want := []driverCall{
		{Method: "ClockFSM", Pattern: 0x03, Count: 4},
		{Method: "Shift", NumBits: 8, TDI: []byte{0xE8}, IsLast: true},
		{Method: "ClockFSM", Pattern: 0x01, Count: 2},
		{Method: "Clocks", N: 10},
		{Method: "ClockFSM", Pattern: 0x01, Count: 3},
		{Method: "Shift", NumBits: 16, TDI: []byte{0x34, 0x12}, Capture: true, IsLast: true},
		{Method: "ClockFSM", Pattern: 0x01, Count: 2},
		{Method: "Clocks", N: 10},
	}
	if diff := cmp.Diff(want, drv.calls); diff != "" {
		t.Fatalf("call sequence mismatch (-want +got):\n%s", diff)
	}
}

func benchmarkSVF() []byte {
	var buf bytes.Buffer
	buf.WriteString("SIR 6 TDI (05);\nRUNTEST 100 TCK;\n")
	for i := 0; i < 200; i++ {
		buf.WriteString("SDR 128 TDI (00000000000000000000000000000000);\n")
	}
	return buf.Bytes()
}

func BenchmarkConvertSVF(b *testing.B) {
	svf := benchmarkSVF()
	b.SetBytes(int64(len(svf)))
	for i := 0; i < b.N; i++ {
		if _, _, err := ConvertSVF(svf, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompress(b *testing.B) {
	compiled, _, err := ConvertSVF(benchmarkSVF(), nil)
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(compiled)))
	for i := 0; i < b.N; i++ {
		Compress(compiled)
	}
}

func BenchmarkPlay(b *testing.B) {
	compiled, _, err := ConvertSVF(benchmarkSVF(), nil)
	if err != nil {
		b.Fatal(err)
	}
	packed := Compress(compiled)
	drv := &nullDriver{}
	b.SetBytes(int64(len(packed)))
	for i := 0; i < b.N; i++ {
		if err := Play(packed, drv); err != nil {
			b.Fatal(err)
		}
	}
}

// nullDriver discards everything; it keeps playback benchmarks free of
// recording overhead.
type nullDriver struct{}

func (nullDriver) ClockFSM(uint32, uint8) error { return nil }

func (nullDriver) Shift(uint32, []byte, []byte, bool) error { return nil }

func (nullDriver) Clocks(uint32) error { return nil }
