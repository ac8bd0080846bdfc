// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

// Package nerousb drives NeroJTAG-protocol USB cables (FPGALink-style
// microcontrollers that bit-bang the four JTAG wires). It implements
// csvf.JtagDriver on top of gousb: TAP transitions and clock bursts travel
// as vendor control requests, shift data over the bulk endpoints.
package nerousb

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gousb"

	"github.com/woozymasta/csvf"
)

var _ csvf.JtagDriver = (*Device)(nil)

// Vendor requests understood by the NeroJTAG firmware.
const (
	cmdModeStatus    = 0x80 // wValue=mode bits, wIndex=mask; IN: 16-byte status
	cmdJtagClockData = 0x81 // wValue=flags; payload LE u32 bit count, data on bulk
	cmdJtagClockFSM  = 0x82 // wValue=transition count; payload LE u32 TMS pattern
	cmdJtagClock     = 0x83 // clock count split wValue=low16, wIndex=high16
)

// Mode bits for cmdModeStatus.
const (
	modeJtag = 0x0002
)

// Flag bits for cmdJtagClockData.
const (
	flagNeedResponse = 1 << 0
	flagIsLast       = 1 << 1
)

const (
	ctrlOut = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice
	ctrlIn  = gousb.ControlIn | gousb.ControlVendor | gousb.ControlDevice
)

// Options selects the cable to open.
type Options struct {
	// VID and PID identify the USB device. Zero values use the default
	// FPGALink firmware IDs.
	VID uint16
	PID uint16
}

// DefaultOptions returns options for the stock FPGALink firmware.
func DefaultOptions() *Options {
	return &Options{VID: 0x1D50, PID: 0x602B}
}

// Device is an open NeroJTAG cable. It satisfies csvf.JtagDriver.
type Device struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	iface *gousb.Interface
	done  func()
	in    *gousb.InEndpoint
	out   *gousb.OutEndpoint
}

// Open finds the cable, claims its default interface, verifies the NeroJTAG
// status block and puts the port into JTAG mode (lines driven).
func Open(opts *Options) (*Device, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	vid, pid := opts.VID, opts.PID
	if vid == 0 {
		vid = DefaultOptions().VID
	}
	if pid == 0 {
		pid = DefaultOptions().PID
	}
	ctx := gousb.NewContext()
	d := &Device{ctx: ctx}
	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("opening device %04X:%04X: %w", vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device %04X:%04X not found", vid, pid)
	}
	d.dev = dev
	if err := dev.SetAutoDetach(true); err != nil {
		d.Close()
		return nil, err
	}
	d.iface, d.done, err = dev.DefaultInterface()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("claiming interface: %w", err)
	}

	status := make([]byte, 16)
	if _, err := dev.Control(ctrlIn, cmdModeStatus, 0, 0, status); err != nil {
		d.Close()
		return nil, fmt.Errorf("reading status: %w", err)
	}
	if string(status[:4]) != "NEMI" {
		d.Close()
		return nil, fmt.Errorf("bad status magic % X", status[:4])
	}
	outEP, inEP := int(status[6]>>4), int(status[6]&0x0F)
	if d.out, err = d.iface.OutEndpoint(outEP); err != nil {
		d.Close()
		return nil, fmt.Errorf("claiming bulk OUT %d: %w", outEP, err)
	}
	if d.in, err = d.iface.InEndpoint(inEP); err != nil {
		d.Close()
		return nil, fmt.Errorf("claiming bulk IN %d: %w", inEP, err)
	}

	if _, err := dev.Control(ctrlOut, cmdModeStatus, modeJtag, modeJtag, nil); err != nil {
		d.Close()
		return nil, fmt.Errorf("enabling JTAG mode: %w", err)
	}
	return d, nil
}

// Close tristates the JTAG lines and releases the USB device.
func (d *Device) Close() error {
	if d.dev != nil {
		// Best effort; the cable may already be gone.
		_, _ = d.dev.Control(ctrlOut, cmdModeStatus, 0, modeJtag, nil)
	}
	if d.done != nil {
		d.done()
		d.done = nil
	}
	var err error
	if d.dev != nil {
		err = d.dev.Close()
		d.dev = nil
	}
	if d.ctx != nil {
		cerr := d.ctx.Close()
		if err == nil {
			err = cerr
		}
		d.ctx = nil
	}
	return err
}

// ClockFSM clocks count bits of tmsPattern, LSB first, into TMS.
func (d *Device) ClockFSM(tmsPattern uint32, count uint8) error {
	var pattern [4]byte
	binary.LittleEndian.PutUint32(pattern[:], tmsPattern)
	_, err := d.dev.Control(ctrlOut, cmdJtagClockFSM, uint16(count), 0, pattern[:])
	if err != nil {
		return fmt.Errorf("clockFSM: %w", err)
	}
	return nil
}

// Shift clocks numBits through TDI, capturing TDO when tdo is non-nil and
// raising TMS on the final bit when isLast.
func (d *Device) Shift(numBits uint32, tdi []byte, tdo []byte, isLast bool) error {
	numBytes := int((numBits + 7) / 8)
	if numBytes > len(tdi) {
		return fmt.Errorf("shift: %d bits need %d tdi bytes, have %d", numBits, numBytes, len(tdi))
	}
	flags := uint16(0)
	if tdo != nil {
		flags |= flagNeedResponse
	}
	if isLast {
		flags |= flagIsLast
	}
	var bits [4]byte
	binary.LittleEndian.PutUint32(bits[:], numBits)
	if _, err := d.dev.Control(ctrlOut, cmdJtagClockData, flags, 0, bits[:]); err != nil {
		return fmt.Errorf("shift setup: %w", err)
	}
	if _, err := d.out.Write(tdi[:numBytes]); err != nil {
		return fmt.Errorf("shift tdi: %w", err)
	}
	if tdo == nil {
		return nil
	}
	if numBytes > len(tdo) {
		return fmt.Errorf("shift: %d bits need %d tdo bytes, have %d", numBits, numBytes, len(tdo))
	}
	for read := 0; read < numBytes; {
		n, err := d.in.Read(tdo[read:numBytes])
		if err != nil {
			return fmt.Errorf("shift tdo: %w", err)
		}
		read += n
	}
	return nil
}

// Clocks holds TMS low and pulses TCK n times.
func (d *Device) Clocks(n uint32) error {
	_, err := d.dev.Control(ctrlOut, cmdJtagClock, uint16(n&0xFFFF), uint16(n>>16), nil)
	if err != nil {
		return fmt.Errorf("clocks: %w", err)
	}
	return nil
}
