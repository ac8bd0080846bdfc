// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

/*
Package csvf compiles Xilinx JTAG programming vectors (SVF and XSVF) to CSVF,
compresses CSVF with a zero-run encoder, and replays CSVF streams through a
JtagDriver.

CSVF is a byte-tagged command stream derived from the XSVF alphabet: register
payloads are stored least-significant byte first (byte-reversed relative to
XSVF) and XSDRSIZE commands are deduplicated. An XRUNTEST value stays in force
for every later shift until the next XRUNTEST; SVF output carries one before
the first shift and wherever the value changes, XSVF output keeps the
XRUNTEST commands of its input.

# Compile

From SVF text or XSVF binary to uncompressed CSVF. The second return value is
the widest compared DR register in bytes (XSDRTDO, and for XSVF input also
XTDOMASK), for sizing fixed interpreter buffers:

	out, maxBuf, err := csvf.ConvertSVF(svfBytes, nil)
	out, maxBuf, err := csvf.ConvertXSVF(xsvfBytes, nil)

Options may be nil (default 128-byte register cap = 1024 bits):

	out, _, err := csvf.ConvertSVF(svfBytes, &csvf.ConvertOptions{MaxShiftBytes: 256})

# Compress

The compressed form is a zero header byte followed by length-prefixed verbatim
chunks alternating with elided runs of zero bytes:

	packed := csvf.Compress(out)
	back, err := csvf.Decompress(packed) // bytes.Equal(back, out)

# Play

Play decompresses on the fly and drives the JTAG TAP machine through a
JtagDriver. A hardware driver for NeroJTAG cables is in the nerousb
subpackage; any mock satisfying the interface works for tests:

	err := csvf.Play(packed, driver)

Shift payloads wider than the register cap fail at compile time. The player's
buffers are fixed at 128 bytes whatever the cap: it streams wider XSDR-family
shifts in 128-byte slabs and fails XTDOMASK/XSDRTDO registers wider than that
with ErrUnsupportedSize.
*/
package csvf
