// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

// tmsResetToShiftDR resets the TAP and walks to Shift-DR: 1,1,1,1,1,0,1,0,0.
const tmsResetToShiftDR = 0x0000005F

// ScanChain resets the TAP, walks to Shift-DR and shifts zeros through the
// chain, collecting one 32-bit IDCODE per device until the chain reads back
// all-zeros or all-ones. Devices are returned in chain order. max bounds the
// result for broken chains that never terminate; max <= 0 means 32.
func ScanChain(drv JtagDriver, max int) ([]uint32, error) {
	if max <= 0 {
		max = 32
	}
	if err := drv.ClockFSM(tmsResetToShiftDR, 9); err != nil {
		return nil, err
	}
	zeros := make([]byte, 4)
	idBytes := make([]byte, 4)
	var codes []uint32
	for len(codes) < max {
		if err := drv.Shift(32, zeros, idBytes, false); err != nil {
			return nil, err
		}
		// Bits arrive LSB first, so the first byte out is the IDCODE's low byte.
		id := uint32(idBytes[0]) | uint32(idBytes[1])<<8 |
			uint32(idBytes[2])<<16 | uint32(idBytes[3])<<24
		if id == 0x00000000 || id == 0xFFFFFFFF {
			break
		}
		codes = append(codes, id)
	}
	// The device nearest TDO reads out first; flip to chain order.
	for i, j := 0, len(codes)-1; i < j; i, j = i+1, j-1 {
		codes[i], codes[j] = codes[j], codes[i]
	}
	return codes, nil
}
