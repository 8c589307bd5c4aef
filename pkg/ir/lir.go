package ir

import (
	"fmt"
	"strings"

	"github.com/ncc-lang/ncc/pkg/util"
)

// MachineReg names an x86-64 machine register. The names correspond to
// the full 64-bit register; the operand kind (MReg8/16/32/64) selects
// which width of the register an operand accesses.
type MachineReg int

const (
	MregRax MachineReg = iota
	MregRbx
	MregRcx
	MregRdx
	MregRsi
	MregRdi
	MregRsp
	MregRbp
	MregR8
	MregR9
	MregR10
	MregR11
	MregR12
	MregR13
	MregR14
	MregR15
)

// mregNames[reg] holds the 8-, 16-, 32-, and 64-bit names, in that order.
var mregNames = [16][4]string{
	{"al", "ax", "eax", "rax"},
	{"bl", "bx", "ebx", "rbx"},
	{"cl", "cx", "ecx", "rcx"},
	{"dl", "dx", "edx", "rdx"},
	{"sil", "si", "esi", "rsi"},
	{"dil", "di", "edi", "rdi"},
	{"spl", "sp", "esp", "rsp"},
	{"bpl", "bp", "ebp", "rbp"},
	{"r8b", "r8w", "r8d", "r8"},
	{"r9b", "r9w", "r9d", "r9"},
	{"r10b", "r10w", "r10d", "r10"},
	{"r11b", "r11w", "r11d", "r11"},
	{"r12b", "r12w", "r12d", "r12"},
	{"r13b", "r13w", "r13d", "r13"},
	{"r14b", "r14w", "r14d", "r14"},
	{"r15b", "r15w", "r15d", "r15"},
}

// SelectMregKind returns the operand kind accessing a machine register
// at the given width.
func SelectMregKind(size int) OperandKind {
	switch size {
	case 1:
		return MReg8
	case 2:
		return MReg16
	case 4:
		return MReg32
	case 8:
		return MReg64
	}
	util.Internalf("invalid machine register size %d", size)
	return MReg64
}

// Low-level opcodes (x86-64). Opcodes with operand-size variants have
// four values in the order b, w, l, q, the same way the high-level
// families do, so SelectOpcode works on both levels.
const (
	MinsNop Opcode = iota + 1000

	MinsMovB
	MinsMovW
	MinsMovL
	MinsMovQ

	MinsAddB
	MinsAddW
	MinsAddL
	MinsAddQ

	MinsSubB
	MinsSubW
	MinsSubL
	MinsSubQ

	MinsAndB
	MinsAndW
	MinsAndL
	MinsAndQ

	MinsOrB
	MinsOrW
	MinsOrL
	MinsOrQ

	MinsLeaq // only one variant, pointers are always 64-bit

	MinsJmp
	MinsJe
	MinsJne
	MinsJl
	MinsJle
	MinsJg
	MinsJge
	MinsJb
	MinsJbe
	MinsJa
	MinsJae

	MinsCmpB
	MinsCmpW
	MinsCmpL
	MinsCmpQ

	MinsCall
	MinsImulL
	MinsImulQ
	MinsIdivL
	MinsIdivQ
	MinsCdq
	MinsCqto
	MinsPushq
	MinsPopq
	MinsRet

	MinsMovsbw
	MinsMovsbl
	MinsMovsbq
	MinsMovswl
	MinsMovswq
	MinsMovslq

	MinsMovzbw
	MinsMovzbl
	MinsMovzbq
	MinsMovzwl
	MinsMovzwq
	MinsMovzlq

	MinsSetl
	MinsSetle
	MinsSetg
	MinsSetge
	MinsSete
	MinsSetne
)

var minsNames = map[Opcode]string{
	MinsNop: "nop", MinsLeaq: "leaq",
	MinsJmp: "jmp", MinsJe: "je", MinsJne: "jne", MinsJl: "jl", MinsJle: "jle",
	MinsJg: "jg", MinsJge: "jge", MinsJb: "jb", MinsJbe: "jbe", MinsJa: "ja", MinsJae: "jae",
	MinsCall: "call", MinsImulL: "imull", MinsImulQ: "imulq",
	MinsIdivL: "idivl", MinsIdivQ: "idivq", MinsCdq: "cdq", MinsCqto: "cqto",
	MinsPushq: "pushq", MinsPopq: "popq", MinsRet: "retq",
	MinsMovsbw: "movsbw", MinsMovsbl: "movsbl", MinsMovsbq: "movsbq",
	MinsMovswl: "movswl", MinsMovswq: "movswq", MinsMovslq: "movslq",
	MinsMovzbw: "movzbw", MinsMovzbl: "movzbl", MinsMovzbq: "movzbq",
	MinsMovzwl: "movzwl", MinsMovzwq: "movzwq", MinsMovzlq: "movzlq",
	MinsSetl: "setl", MinsSetle: "setle", MinsSetg: "setg", MinsSetge: "setge",
	MinsSete: "sete", MinsSetne: "setne",
}

func init() {
	families := []struct {
		base Opcode
		name string
	}{
		{MinsMovB, "mov"}, {MinsAddB, "add"}, {MinsSubB, "sub"},
		{MinsAndB, "and"}, {MinsOrB, "or"}, {MinsCmpB, "cmp"},
	}
	for _, fam := range families {
		for i := 0; i < 4; i++ {
			minsNames[fam.base+Opcode(i)] = fam.name + sizeSuffixes[i]
		}
	}
}

// MinsName returns the low-level mnemonic for an opcode.
func MinsName(op Opcode) string {
	name, ok := minsNames[op]
	if !ok {
		util.Internalf("unknown low-level opcode: %d", int(op))
	}
	return name
}

// MinsIsBranch reports whether the instruction transfers control to a
// label operand.
func MinsIsBranch(ins *Instruction) bool {
	return ins.Opcode >= MinsJmp && ins.Opcode <= MinsJae
}

// MinsFallsThrough reports whether control can continue to the next
// instruction in sequence. retq falls through to the exit block, the
// same way HinsRet does at the high level.
func MinsFallsThrough(ins *Instruction) bool {
	return ins.Opcode != MinsJmp
}

// LowLevelFormatter renders LIR instructions in GNU assembler syntax.
type LowLevelFormatter struct{}

func mregName(reg, sizeIdx int) string { return "%" + mregNames[reg][sizeIdx] }

func (LowLevelFormatter) FormatOperand(operand Operand) string {
	switch operand.Kind {
	case MReg8:
		return mregName(operand.Base, 0)
	case MReg16:
		return mregName(operand.Base, 1)
	case MReg32:
		return mregName(operand.Base, 2)
	case MReg64:
		return mregName(operand.Base, 3)
	case MRegMem:
		return fmt.Sprintf("(%s)", mregName(operand.Base, 3))
	case MRegMemIdx:
		return fmt.Sprintf("(%s,%s)", mregName(operand.Base, 3), mregName(operand.Index, 3))
	case MRegMemOff:
		return fmt.Sprintf("%d(%s)", operand.Imm, mregName(operand.Base, 3))
	case ImmInt:
		return fmt.Sprintf("$%d", operand.Imm)
	case Label:
		return operand.Text
	case ImmLabel:
		return "$" + operand.Text
	}
	util.Internalf("cannot format operand kind %d as low-level", operand.Kind)
	return ""
}

func (f LowLevelFormatter) FormatInstruction(ins *Instruction) string {
	var sb strings.Builder
	mnemonic := MinsName(ins.Opcode)
	sb.WriteString(mnemonic)
	if ins.NumOperands() > 0 {
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
