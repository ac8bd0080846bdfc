// SPDX-License-Identifier: MIT
// Source: github.com/woozymasta/csvf

package csvf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// parseContext is the SVF assembler state: one bitStore per region of the
// data and instruction paths, plus the DR size and TDO mask last written to
// the output stream.
type parseContext struct {
	dataHead bitStore
	dataBody bitStore
	dataTail bitStore
	insnHead bitStore
	insnBody bitStore
	insnTail bitStore

	curLength   uint32 // DR bit count last announced via XSDRSIZE
	curMask     []byte // combined DR mask currently in force
	maskWritten bool   // XTDOMASK for curMask already emitted

	cmds       []command
	maxBufSize uint32
}

// ConvertSVF compiles SVF text to uncompressed CSVF. The uint32 result is
// the largest TDO payload in bytes, for sizing fixed interpreter buffers.
func ConvertSVF(svf []byte, opts *ConvertOptions) ([]byte, uint32, error) {
	cxt := &parseContext{}
	limit := uint32(opts.maxShiftBytes())
	for _, line := range splitCommands(svf) {
		if err := cxt.parseCommand(line, limit); err != nil {
			return nil, 0, err
		}
	}
	return serialize(hoistRuntest(cxt.cmds)), cxt.maxBufSize, nil
}

// splitCommands cuts the SVF text into logical commands. Comment lines and
// ignored directives are dropped whole; everything else accumulates across
// physical lines until the terminating semicolon, with runs of whitespace
// (including line breaks inside parenthesized hex) collapsing to one space.
func splitCommands(svf []byte) []string {
	var cmds []string
	var cur strings.Builder
	text := string(svf)
	atLineStart := true
	for i := 0; i < len(text); {
		c := text[i]
		if atLineStart {
			rest := text[i:]
			if c == '!' || strings.HasPrefix(rest, "//") ||
				strings.HasPrefix(rest, "TRST") || strings.HasPrefix(rest, "END") ||
				strings.HasPrefix(rest, "STATE") || strings.HasPrefix(rest, "FREQ") {
				for i < len(text) && text[i] != '\n' && text[i] != '\r' {
					i++
				}
				continue
			}
		}
		switch c {
		case '\n', '\r':
			atLineStart = true
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			i++
		case ';':
			cmd := strings.TrimSpace(cur.String())
			if cmd != "" {
				cmds = append(cmds, cmd)
			}
			cur.Reset()
			atLineStart = false
			i++
		default:
			atLineStart = false
			cur.WriteByte(c)
			i++
		}
	}
	return cmds
}

// parseCommand dispatches one logical SVF command.
func (cxt *parseContext) parseCommand(line string, limit uint32) error {
	switch {
	case strings.HasPrefix(line, "RUNTEST"):
		return cxt.parseRuntest(line[len("RUNTEST"):])
	case len(line) > 3 &&
		(line[0] == 'H' || line[0] == 'S' || line[0] == 'T') &&
		(line[1] == 'I' || line[1] == 'D') && line[2] == 'R' &&
		(line[3] == ' ' || line[3] == '\t'):
		return cxt.parseShift(line, limit)
	default:
		return fmt.Errorf("%w: unrecognised command %q", ErrSVFParse, line)
	}
}

// parseRuntest handles RUNTEST [IDLE] <n> (TCK|SEC) [<n> (TCK|SEC)]
// [ENDSTATE IDLE]. SEC counts scale to microseconds; with two counts the
// larger wins.
func (cxt *parseContext) parseRuntest(rest string) error {
	fields := strings.Fields(rest)
	if len(fields) > 0 && fields[0] == "IDLE" {
		fields = fields[1:]
	}
	count1, fields, err := parseRuntestCount(fields)
	if err != nil {
		return err
	}
	if len(fields) >= 2 && fields[0] != "ENDSTATE" {
		var count2 float64
		count2, fields, err = parseRuntestCount(fields)
		if err != nil {
			return err
		}
		if count2 > count1 {
			count1 = count2
		}
	}
	if len(fields) == 2 && fields[0] == "ENDSTATE" && fields[1] == "IDLE" {
		fields = fields[:0]
	}
	if len(fields) != 0 {
		return runtestFormErr()
	}
	cxt.cmds = append(cxt.cmds, command{op: opXRUNTEST, arg: uint32(count1)})
	return nil
}

func runtestFormErr() error {
	return fmt.Errorf(
		"%w: RUNTEST must be of the form \"RUNTEST [IDLE] <number> TCK|SEC [<number> TCK|SEC] [ENDSTATE IDLE]\"",
		ErrSVFParse)
}

// parseRuntestCount consumes "<number> TCK" or "<number> SEC" from fields,
// returning the count in TCKs or microseconds.
func parseRuntestCount(fields []string) (float64, []string, error) {
	if len(fields) < 2 {
		return 0, nil, runtestFormErr()
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, nil, runtestFormErr()
	}
	switch fields[1] {
	case "TCK":
	case "SEC":
		n *= 1e6
	default:
		return 0, nil, runtestFormErr()
	}
	return n, fields[2:], nil
}

// shiftLine is one parsed [HTS][ID]R command: the new region length and the
// optional hex values, empty string meaning "not supplied on this line".
type shiftLine struct {
	length uint32
	tdi    string
	tdo    string
	mask   string
	smask  string
}

// parseShift handles HDR/HIR/SDR/SIR/TDR/TIR: update the addressed bitStore,
// and on a body line assemble and emit the shift command.
func (cxt *parseContext) parseShift(line string, limit uint32) error {
	op := line[0] // 'H', 'S' or 'T'
	isData := line[1] == 'D'
	sl, err := parseShiftLine(line[:3], line[4:])
	if err != nil {
		return err
	}
	if isData {
		switch op {
		case 'H':
			return cxt.dataHead.update(sl.length, sl.tdi, sl.tdo, sl.mask)
		case 'T':
			return cxt.dataTail.update(sl.length, sl.tdi, sl.tdo, sl.mask)
		}
		return cxt.emitDataShift(sl, limit)
	}
	switch op {
	case 'H':
		return cxt.insnHead.update(sl.length, sl.tdi, sl.tdo, sl.mask)
	case 'T':
		return cxt.insnTail.update(sl.length, sl.tdi, sl.tdo, sl.mask)
	}
	return cxt.emitInsnShift(sl, limit)
}

// parseShiftLine reads "<length> [TDI (hex)] [TDO (hex)] [MASK (hex)]
// [SMASK (hex)]" with the keys in any order. Hex literals may contain
// whitespace.
func parseShiftLine(name, rest string) (shiftLine, error) {
	var sl shiftLine
	rest = strings.TrimSpace(rest)
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return sl, fmt.Errorf("%w: %s needs a bit length", ErrSVFParse, name)
	}
	length, err := strconv.ParseUint(rest[:end], 10, 32)
	if err != nil {
		return sl, fmt.Errorf("%w: %s length: %v", ErrSVFParse, name, err)
	}
	sl.length = uint32(length)
	rest = strings.TrimSpace(rest[end:])
	for rest != "" {
		var key string
		var dst *string
		switch {
		case strings.HasPrefix(rest, "TDI"):
			key, dst = "TDI", &sl.tdi
		case strings.HasPrefix(rest, "TDO"):
			key, dst = "TDO", &sl.tdo
		case strings.HasPrefix(rest, "SMASK"):
			key, dst = "SMASK", &sl.smask
		case strings.HasPrefix(rest, "MASK"):
			key, dst = "MASK", &sl.mask
		default:
			return sl, fmt.Errorf("%w: junk in %s line: %q", ErrSVFParse, name, rest)
		}
		rest = strings.TrimSpace(rest[len(key):])
		if rest == "" || rest[0] != '(' {
			return sl, fmt.Errorf("%w: %s must be of the form %q", ErrSVFParse, name, key+" (<hex>)")
		}
		rp := strings.IndexByte(rest, ')')
		if rp < 0 {
			return sl, fmt.Errorf("%w: %s must be of the form %q", ErrSVFParse, name, key+" (<hex>)")
		}
		hex := rest[1:rp]
		hex = strings.Map(func(r rune) rune {
			if r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, hex)
		if hex == "" {
			hex = "0"
		}
		*dst = hex
		rest = strings.TrimSpace(rest[rp+1:])
	}
	return sl, nil
}

// emitInsnShift assembles head‖body‖tail of the instruction path and emits
// XSIR with the total bit count and byte-reversed TDI.
func (cxt *parseContext) emitInsnShift(sl shiftLine, limit uint32) error {
	if err := cxt.insnBody.update(sl.length, sl.tdi, sl.tdo, sl.mask); err != nil {
		return err
	}
	totalBits := cxt.insnHead.numBits + cxt.insnBody.numBits + cxt.insnTail.numBits
	if totalBits > 255 || bitsToBytes(totalBits) > limit {
		return fmt.Errorf("%w: IR of %d bits", ErrUnsupportedSize, totalBits)
	}
	tdi, err := concatHeadTail(
		cxt.insnBody.tdi, cxt.insnHead.tdi, cxt.insnTail.tdi,
		cxt.insnBody.numBits, cxt.insnHead.numBits, cxt.insnTail.numBits)
	if err != nil {
		return err
	}
	payload := append([]byte{byte(totalBits)}, reverseBytes(tdi)...)
	cxt.cmds = append(cxt.cmds, command{op: opXSIR, payload: payload})
	return nil
}

// emitDataShift assembles head‖body‖tail of the data path and emits
// XSDRSIZE on a length change, XTDOMASK on a mask change, then XSDR or
// XSDRTDO depending on whether a masked comparison is requested.
func (cxt *parseContext) emitDataShift(sl shiftLine, limit uint32) error {
	if err := cxt.dataBody.update(sl.length, sl.tdi, sl.tdo, sl.mask); err != nil {
		return err
	}
	headBits, bodyBits, tailBits := cxt.dataHead.numBits, cxt.dataBody.numBits, cxt.dataTail.numBits
	totalBits := headBits + bodyBits + tailBits
	if bitsToBytes(totalBits) > limit {
		return fmt.Errorf("%w: DR of %d bits", ErrUnsupportedSize, totalBits)
	}
	if totalBits != cxt.curLength {
		cxt.curLength = totalBits
		cxt.cmds = append(cxt.cmds, command{op: opXSDRSIZE, arg: totalBits})
	}

	mask, err := concatHeadTail(
		cxt.dataBody.mask, cxt.dataHead.mask, cxt.dataTail.mask,
		bodyBits, headBits, tailBits)
	if err != nil {
		return err
	}
	zeroMask := isAllZero(mask)
	if !bytes.Equal(mask, cxt.curMask) {
		cxt.curMask = mask
		cxt.maskWritten = false
	}
	hasTDO := sl.tdo != ""
	if !zeroMask && hasTDO && !cxt.maskWritten {
		cxt.cmds = append(cxt.cmds, command{op: opXTDOMASK, payload: reverseBytes(cxt.curMask)})
		cxt.maskWritten = true
	}

	tdi, err := concatHeadTail(
		cxt.dataBody.tdi, cxt.dataHead.tdi, cxt.dataTail.tdi,
		bodyBits, headBits, tailBits)
	if err != nil {
		return err
	}
	if zeroMask || !hasTDO {
		cxt.cmds = append(cxt.cmds, command{op: opXSDR, payload: reverseBytes(tdi)})
		return nil
	}
	tdo, err := concatHeadTail(
		cxt.dataBody.tdo, cxt.dataHead.tdo, cxt.dataTail.tdo,
		bodyBits, headBits, tailBits)
	if err != nil {
		return err
	}
	if n := uint32(len(tdo)); n > cxt.maxBufSize {
		cxt.maxBufSize = n
	}
	payload := append(reverseBytes(tdo), reverseBytes(tdi)...)
	cxt.cmds = append(cxt.cmds, command{op: opXSDRTDO, payload: payload})
	return nil
}
