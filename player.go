// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

import "fmt"

// JtagDriver is the four-wire JTAG port the player drives. Implementations
// talk to real cables (see the nerousb subpackage) or record calls in tests.
type JtagDriver interface {
	// ClockFSM clocks count bits of tmsPattern, LSB first, into TMS while
	// holding TDI stable; each bit is one TCK rising-then-falling edge.
	ClockFSM(tmsPattern uint32, count uint8) error

	// Shift clocks numBits bits into TDI: bytes consumed low index first,
	// LSB first within each byte. When tdo is non-nil the corresponding TDO
	// bits are captured into it. When isLast, TMS rises on the final bit to
	// leave the Shift-DR/Shift-IR state.
	Shift(numBits uint32, tdi []byte, tdo []byte, isLast bool) error

	// Clocks holds TMS low and TDI unchanged and pulses TCK n times.
	Clocks(n uint32) error
}

// TAP walk patterns the player uses, clocked LSB first.
const (
	tmsIdleToShiftIR = 0x00000003 // 1,1,0,0: Run-Test/Idle -> Shift-IR
	tmsIdleToShiftDR = 0x00000001 // 1,0,0:   Run-Test/Idle -> Shift-DR
	tmsExitToIdle    = 0x00000001 // 1,0:     Exit1-* -> Run-Test/Idle
	tmsReset         = 0x0000001F // 1×5:     anywhere -> Test-Logic-Reset
)

// player is the interpreter state: the decompressing reader, the driver, the
// DR size and runtest count in force, and the fixed TDO mask buffer.
type player struct {
	r   *Reader
	drv JtagDriver

	xsdrSize uint32
	xruntest uint32
	mask     [defaultShiftBytes]byte
}

// Play decompresses a CSVF stream on the fly and replays it into the JTAG
// port. The TAP must start from Run-Test/Idle. Driver failures and masked
// TDO mismatches abort playback immediately.
func Play(compressed []byte, drv JtagDriver) error {
	r, err := NewReader(compressed)
	if err != nil {
		return err
	}
	p := &player{r: r, drv: drv}
	for {
		op, err := p.r.u8()
		if err != nil {
			return err
		}
		if op == opXCOMPLETE {
			return nil
		}
		if err := p.play(op); err != nil {
			return fmt.Errorf("%s: %w", cmdName(op), err)
		}
	}
}

func (p *player) play(op byte) error {
	switch op {
	case opXTDOMASK:
		n, err := p.drBytes()
		if err != nil {
			return err
		}
		return p.r.fill(p.mask[:n])

	case opXRUNTEST:
		us, err := p.r.u32be()
		if err != nil {
			return err
		}
		p.xruntest = us
		return nil

	case opXSIR:
		bits, err := p.r.u8()
		if err != nil {
			return err
		}
		if err := p.drv.ClockFSM(tmsIdleToShiftIR, 4); err != nil {
			return err
		}
		var tdi [defaultShiftBytes]byte
		buf := tdi[:bitsToBytes(uint32(bits))]
		if err := p.r.fill(buf); err != nil {
			return err
		}
		if err := p.drv.Shift(uint32(bits), buf, nil, true); err != nil {
			return err
		}
		return p.exitShift()

	case opXSDRSIZE:
		size, err := p.r.u32be()
		if err != nil {
			return err
		}
		p.xsdrSize = size
		return nil

	case opXSDRTDO:
		n, err := p.drBytes()
		if err != nil {
			return err
		}
		var expected, tdi, tdo [defaultShiftBytes]byte
		if err := p.r.fill(expected[:n]); err != nil {
			return err
		}
		if err := p.r.fill(tdi[:n]); err != nil {
			return err
		}
		if err := p.drv.ClockFSM(tmsIdleToShiftDR, 3); err != nil {
			return err
		}
		if err := p.drv.Shift(p.xsdrSize, tdi[:n], tdo[:n], true); err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if tdo[i]&p.mask[i] != expected[i]&p.mask[i] {
				return &CompareError{
					Got:      append([]byte(nil), tdo[:n]...),
					Mask:     append([]byte(nil), p.mask[:n]...),
					Expected: append([]byte(nil), expected[:n]...),
				}
			}
		}
		return p.exitShift()

	case opXSDR:
		if err := p.drv.ClockFSM(tmsIdleToShiftDR, 3); err != nil {
			return err
		}
		if err := p.shiftStream(p.xsdrSize, true); err != nil {
			return err
		}
		return p.exitShift()

	case opXSDRB:
		if err := p.drv.ClockFSM(tmsIdleToShiftDR, 3); err != nil {
			return err
		}
		return p.shiftStream(p.xsdrSize, false)

	case opXSDRC:
		return p.shiftStream(p.xsdrSize, false)

	case opXSDRE:
		if err := p.shiftStream(p.xsdrSize, true); err != nil {
			return err
		}
		return p.exitShift()

	case opXSTATE:
		state, err := p.r.u8()
		if err != nil {
			return err
		}
		if state == tapTestLogicReset {
			return p.drv.ClockFSM(tmsReset, 5)
		}
		return p.drv.ClockFSM(uint32(tmsPolarity>>state)&1, 1)

	default:
		return &UnknownCommandError{Op: op}
	}
}

// drBytes validates the DR size in force and returns its byte count.
func (p *player) drBytes() (uint32, error) {
	if p.xsdrSize == 0 {
		return 0, fmt.Errorf("%w: shift before XSDRSIZE", ErrInternal)
	}
	n := bitsToBytes(p.xsdrSize)
	if n > defaultShiftBytes {
		return 0, fmt.Errorf("%w: %d bits", ErrUnsupportedSize, p.xsdrSize)
	}
	return n, nil
}

// shiftStream clocks numBits of TDI from the stream through the driver in
// buffer-sized slabs, raising TMS on the final bit only when exit is set.
func (p *player) shiftStream(numBits uint32, exit bool) error {
	if numBits == 0 {
		return fmt.Errorf("%w: shift before XSDRSIZE", ErrInternal)
	}
	var tdi [defaultShiftBytes]byte
	for numBits > 0 {
		bits := numBits
		if bits > defaultShiftBytes*8 {
			bits = defaultShiftBytes * 8
		}
		numBits -= bits
		buf := tdi[:bitsToBytes(bits)]
		if err := p.r.fill(buf); err != nil {
			return err
		}
		if err := p.drv.Shift(bits, buf, nil, exit && numBits == 0); err != nil {
			return err
		}
	}
	return nil
}

// exitShift returns the TAP to Run-Test/Idle after a shift and burns the
// runtest clocks in force.
func (p *player) exitShift() error {
	if err := p.drv.ClockFSM(tmsExitToIdle, 2); err != nil {
		return err
	}
	if p.xruntest != 0 {
		return p.drv.Clocks(p.xruntest)
	}
	return nil
}
