// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

// ConvertOptions configures SVF/XSVF compilation.
type ConvertOptions struct {
	// MaxShiftBytes caps the widest shift register the compiled stream may
	// carry, in bytes. The player's buffers are fixed at 128 bytes whatever
	// this cap is, so it fails XTDOMASK/XSDRTDO registers wider than 128 bytes.
	// Values below 1 fall back to the 128-byte default (1024 bits).
	MaxShiftBytes int
}

// DefaultConvertOptions returns options with the 128-byte register cap.
func DefaultConvertOptions() *ConvertOptions {
	return &ConvertOptions{MaxShiftBytes: defaultShiftBytes}
}

// maxShiftBytes resolves the configured cap, tolerating nil options.
func (o *ConvertOptions) maxShiftBytes() int {
	if o == nil || o.MaxShiftBytes < 1 {
		return defaultShiftBytes
	}
	return o.MaxShiftBytes
}
