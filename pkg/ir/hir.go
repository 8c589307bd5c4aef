package ir

import (
	"fmt"
	"strings"

	"github.com/ncc-lang/ncc/pkg/util"
)

// High-level opcodes. Families with operand-size variants lay out
// their members in the order _b, _w, _l, _q so that
// base + log2(size_bytes) yields the sized opcode.
const (
	HinsNop Opcode = iota
	HinsEnter
	HinsLeave
	HinsRet
	HinsJmp
	HinsCall
	HinsCjmpT
	HinsCjmpF
	HinsLocaladdr

	HinsMovB
	HinsMovW
	HinsMovL
	HinsMovQ

	HinsAddB
	HinsAddW
	HinsAddL
	HinsAddQ

	HinsSubB
	HinsSubW
	HinsSubL
	HinsSubQ

	HinsMulB
	HinsMulW
	HinsMulL
	HinsMulQ

	HinsDivB
	HinsDivW
	HinsDivL
	HinsDivQ

	HinsModB
	HinsModW
	HinsModL
	HinsModQ

	HinsAndB
	HinsAndW
	HinsAndL
	HinsAndQ

	HinsOrB
	HinsOrW
	HinsOrL
	HinsOrQ

	HinsCmpLtB
	HinsCmpLtW
	HinsCmpLtL
	HinsCmpLtQ

	HinsCmpLteB
	HinsCmpLteW
	HinsCmpLteL
	HinsCmpLteQ

	HinsCmpGtB
	HinsCmpGtW
	HinsCmpGtL
	HinsCmpGtQ

	HinsCmpGteB
	HinsCmpGteW
	HinsCmpGteL
	HinsCmpGteQ

	HinsCmpEqB
	HinsCmpEqW
	HinsCmpEqL
	HinsCmpEqQ

	HinsCmpNeqB
	HinsCmpNeqW
	HinsCmpNeqL
	HinsCmpNeqQ

	// Widening conversions: all (narrow, wide) pairs, signed then
	// unsigned.
	HinsSconvBW
	HinsSconvBL
	HinsSconvBQ
	HinsSconvWL
	HinsSconvWQ
	HinsSconvLQ

	HinsUconvBW
	HinsUconvBL
	HinsUconvBQ
	HinsUconvWL
	HinsUconvWQ
	HinsUconvLQ
)

var hinsNames = map[Opcode]string{
	HinsNop:       "nop",
	HinsEnter:     "enter",
	HinsLeave:     "leave",
	HinsRet:       "ret",
	HinsJmp:       "jmp",
	HinsCall:      "call",
	HinsCjmpT:     "cjmp_t",
	HinsCjmpF:     "cjmp_f",
	HinsLocaladdr: "localaddr",
	HinsSconvBW:   "sconv_bw",
	HinsSconvBL:   "sconv_bl",
	HinsSconvBQ:   "sconv_bq",
	HinsSconvWL:   "sconv_wl",
	HinsSconvWQ:   "sconv_wq",
	HinsSconvLQ:   "sconv_lq",
	HinsUconvBW:   "uconv_bw",
	HinsUconvBL:   "uconv_bl",
	HinsUconvBQ:   "uconv_bq",
	HinsUconvWL:   "uconv_wl",
	HinsUconvWQ:   "uconv_wq",
	HinsUconvLQ:   "uconv_lq",
}

var hinsFamilies = []struct {
	base Opcode
	name string
}{
	{HinsMovB, "mov"},
	{HinsAddB, "add"},
	{HinsSubB, "sub"},
	{HinsMulB, "mul"},
	{HinsDivB, "div"},
	{HinsModB, "mod"},
	{HinsAndB, "and"},
	{HinsOrB, "or"},
	{HinsCmpLtB, "cmplt"},
	{HinsCmpLteB, "cmplte"},
	{HinsCmpGtB, "cmpgt"},
	{HinsCmpGteB, "cmpgte"},
	{HinsCmpEqB, "cmpeq"},
	{HinsCmpNeqB, "cmpneq"},
}

var sizeSuffixes = [4]string{"b", "w", "l", "q"}

func init() {
	for _, fam := range hinsFamilies {
		for i := 0; i < 4; i++ {
			hinsNames[fam.base+Opcode(i)] = fam.name + "_" + sizeSuffixes[i]
		}
	}
}

// SelectOpcode returns the size-suffixed variant of a _b base opcode:
// base + log2(size) for size in {1, 2, 4, 8}.
func SelectOpcode(base Opcode, size int) Opcode {
	switch size {
	case 1:
		return base
	case 2:
		return base + 1
	case 4:
		return base + 2
	case 8:
		return base + 3
	}
	util.Internalf("invalid operand size %d", size)
	return base
}

// MatchHins reports whether op is any size variant of the _b base
// opcode.
func MatchHins(base, op Opcode) bool {
	return op >= base && op < base+4
}

// HinsName returns the high-level mnemonic for an opcode.
func HinsName(op Opcode) string {
	name, ok := hinsNames[op]
	if !ok {
		util.Internalf("unknown high-level opcode: %d", int(op))
	}
	return name
}

var convSizes = map[Opcode][2]int{
	HinsSconvBW: {1, 2}, HinsSconvBL: {1, 4}, HinsSconvBQ: {1, 8},
	HinsSconvWL: {2, 4}, HinsSconvWQ: {2, 8}, HinsSconvLQ: {4, 8},
	HinsUconvBW: {1, 2}, HinsUconvBL: {1, 4}, HinsUconvBQ: {1, 8},
	HinsUconvWL: {2, 4}, HinsUconvWQ: {2, 8}, HinsUconvLQ: {4, 8},
}

// SourceOperandSize returns the size in bytes of a high-level
// instruction's source operands, or 0 if the opcode has no sized
// source.
func SourceOperandSize(op Opcode) int {
	if sizes, ok := convSizes[op]; ok {
		return sizes[0]
	}
	for _, fam := range hinsFamilies {
		if MatchHins(fam.base, op) {
			return 1 << (op - fam.base)
		}
	}
	return 0
}

// DestOperandSize returns the size in bytes of a high-level
// instruction's destination operand, or 0 if the opcode has no sized
// destination.
func DestOperandSize(op Opcode) int {
	if sizes, ok := convSizes[op]; ok {
		return sizes[1]
	}
	return SourceOperandSize(op)
}

// writesDest reports whether the opcode writes its first operand.
func writesDest(op Opcode) bool {
	if op == HinsLocaladdr {
		return true
	}
	if _, ok := convSizes[op]; ok {
		return true
	}
	for _, fam := range hinsFamilies {
		if MatchHins(fam.base, op) {
			return true
		}
	}
	return false
}

// HinsIsDef reports whether the instruction defines the virtual
// register in its destination operand. A memory-reference destination
// is a store, not a def.
func HinsIsDef(ins *Instruction) bool {
	return writesDest(ins.Opcode) && ins.NumOperands() > 0 && ins.Operand(0).Kind == VReg
}

// HinsIsUse reports whether operand i of the instruction is read. A
// memory-reference destination reads its base and index registers.
func HinsIsUse(ins *Instruction, i int) bool {
	op := ins.Opcode
	if i == 0 {
		if op == HinsCjmpT || op == HinsCjmpF {
			return true
		}
		return writesDest(op) && ins.Operand(0).IsMemref()
	}
	return true
}

// HinsIsBranch reports whether the instruction transfers control to a
// label operand.
func HinsIsBranch(ins *Instruction) bool {
	switch ins.Opcode {
	case HinsJmp, HinsCjmpT, HinsCjmpF:
		return true
	}
	return false
}

// HinsFallsThrough reports whether control can continue to the next
// instruction in sequence. ret falls through: the instruction after the
// final ret is the end of the sequence, which the CFG builder models as
// the exit block.
func HinsFallsThrough(ins *Instruction) bool {
	return ins.Opcode != HinsJmp
}

// HighLevelFormatter renders HIR instructions in the textual form used
// by the -h and -C modes.
type HighLevelFormatter struct{}

func (HighLevelFormatter) FormatOperand(operand Operand) string {
	switch operand.Kind {
	case VReg:
		return fmt.Sprintf("vr%d", operand.Base)
	case VRegMem:
		return fmt.Sprintf("(vr%d)", operand.Base)
	case VRegMemIdx:
		return fmt.Sprintf("(vr%d, vt%d)", operand.Base, operand.Index)
	case VRegMemOff:
		return fmt.Sprintf("%d(vr%dq)", operand.Imm, operand.Base)
	case ImmInt:
		return fmt.Sprintf("$%d", operand.Imm)
	case Label:
		return operand.Text
	case ImmLabel:
		return "$" + operand.Text
	}
	util.Internalf("cannot format operand kind %d as high-level", operand.Kind)
	return ""
}

func (f HighLevelFormatter) FormatInstruction(ins *Instruction) string {
	var sb strings.Builder
	mnemonic := HinsName(ins.Opcode)
	sb.WriteString(mnemonic)
	if ins.NumOperands() > 0 {
		// mnemonics are right-padded to 8 columns
		if pad := 8 - len(mnemonic); pad > 0 {
			sb.WriteString(strings.Repeat(" ", pad))
		}
		sb.WriteByte(' ')
	}
	for i := 0; i < ins.NumOperands(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.FormatOperand(ins.Operand(i)))
	}
	return sb.String()
}
