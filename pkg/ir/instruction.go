package ir

import (
	"github.com/ncc-lang/ncc/pkg/symtab"
)

// Opcode is shared by the high- and low-level instruction sets. The
// high-level values occupy the range below 1000, the low-level values
// the range from 1000 up, so an instruction's level is always apparent.
type Opcode int

// Instruction is an opcode plus zero to three operands. For
// instructions with a destination, the destination is operand 0.
type Instruction struct {
	Opcode   Opcode
	Operands []Operand
}

func NewInstruction(op Opcode, operands ...Operand) *Instruction {
	return &Instruction{Opcode: op, Operands: operands}
}

func (i *Instruction) NumOperands() int      { return len(i.Operands) }
func (i *Instruction) Operand(n int) Operand { return i.Operands[n] }

// Duplicate returns a deep copy of the instruction.
func (i *Instruction) Duplicate() *Instruction {
	dup := &Instruction{Opcode: i.Opcode, Operands: make([]Operand, len(i.Operands))}
	copy(dup.Operands, i.Operands)
	return dup
}

// Slot is one position in an instruction sequence: an instruction plus
// its optional label.
type Slot struct {
	Label string
	Ins   *Instruction
}

// InstructionSequence is an ordered list of labeled instruction slots.
// A label defined while no instruction is pending attaches to the next
// appended instruction. FuncSym, when set, is the symbol of the
// function the sequence was generated for; later passes read the
// frame size and name from it.
type InstructionSequence struct {
	slots        []Slot
	labelIndex   map[string]int
	pendingLabel string
	FuncSym      *symtab.Symbol
}

func NewInstructionSequence() *InstructionSequence {
	return &InstructionSequence{labelIndex: make(map[string]int)}
}

// DefineLabel attaches a label to the next appended instruction.
func (seq *InstructionSequence) DefineLabel(label string) {
	seq.pendingLabel = label
}

// HasPendingLabel reports whether a label is waiting for an instruction.
func (seq *InstructionSequence) HasPendingLabel() bool { return seq.pendingLabel != "" }

func (seq *InstructionSequence) Append(ins *Instruction) {
	slot := Slot{Label: seq.pendingLabel, Ins: ins}
	if slot.Label != "" {
		seq.labelIndex[slot.Label] = len(seq.slots)
	}
	seq.pendingLabel = ""
	seq.slots = append(seq.slots, slot)
}

func (seq *InstructionSequence) Len() int { return len(seq.slots) }

func (seq *InstructionSequence) Get(i int) *Instruction { return seq.slots[i].Ins }

func (seq *InstructionSequence) LabelAt(i int) string { return seq.slots[i].Label }

// Slots returns the underlying slots in order; callers must not modify.
func (seq *InstructionSequence) Slots() []Slot { return seq.slots }

// LabelIndex returns the instruction index a label is attached to.
func (seq *InstructionSequence) LabelIndex(label string) (int, bool) {
	i, ok := seq.labelIndex[label]
	return i, ok
}

// Duplicate deep-copies the sequence, its labels, and its instructions.
func (seq *InstructionSequence) Duplicate() *InstructionSequence {
	dup := NewInstructionSequence()
	dup.FuncSym = seq.FuncSym
	for _, slot := range seq.slots {
		if slot.Label != "" {
			dup.DefineLabel(slot.Label)
		}
		dup.Append(slot.Ins.Duplicate())
	}
	return dup
}
