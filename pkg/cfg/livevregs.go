package cfg

import (
	"strconv"
	"strings"

	"github.com/ncc-lang/ncc/pkg/ir"
)

// MaxVregs bounds the virtual-register ids a live set can track.
const MaxVregs = 1024

// LiveSet is a finite bitset of virtual-register ids. It is a value
// type (an array) so dataflow facts compare with ==.
type LiveSet [MaxVregs / 64]uint64

func (s LiveSet) Test(vreg int) bool { return s[vreg/64]&(1<<(uint(vreg)%64)) != 0 }

func (s LiveSet) Set(vreg int) LiveSet {
	s[vreg/64] |= 1 << (uint(vreg) % 64)
	return s
}

func (s LiveSet) Clear(vreg int) LiveSet {
	s[vreg/64] &^= 1 << (uint(vreg) % 64)
	return s
}

func (s LiveSet) Union(other LiveSet) LiveSet {
	for i := range s {
		s[i] |= other[i]
	}
	return s
}

func (s LiveSet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for i := 0; i < MaxVregs; i++ {
		if s.Test(i) {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			sb.WriteString(strconv.Itoa(i))
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// LiveVregsAnalysis is the backward live-virtual-registers analysis
// over HIR. The fact is the set of vregs live at a program point; meet
// is union.
type LiveVregsAnalysis struct{}

func (LiveVregsAnalysis) Direction() Direction { return Backward }

// The top fact combines nondestructively with known facts; for this
// analysis it is the empty set.
func (LiveVregsAnalysis) TopFact() LiveSet { return LiveSet{} }

func (LiveVregsAnalysis) CombineFacts(a, b LiveSet) LiveSet { return a.Union(b) }

// ModelInstruction models one instruction backwards: a def kills the
// destination vreg, then every use (including the base and index
// registers of memory-reference operands, on either side) makes its
// vreg live.
func (LiveVregsAnalysis) ModelInstruction(ins *ir.Instruction, fact LiveSet) LiveSet {
	if ir.HinsIsDef(ins) {
		fact = fact.Clear(ins.Operand(0).Base)
	}
	for i := 0; i < ins.NumOperands(); i++ {
		if !ir.HinsIsUse(ins, i) {
			continue
		}
		operand := ins.Operand(i)
		if !operand.IsVReg() {
			continue
		}
		fact = fact.Set(operand.Base)
		if operand.HasIndexReg() {
			fact = fact.Set(operand.Index)
		}
	}
	return fact
}

func (LiveVregsAnalysis) FactToString(f LiveSet) string { return f.String() }

// LiveVregs is the liveness analysis instantiated on a CFG.
type LiveVregs = Dataflow[LiveSet]

// NewLiveVregs creates (but does not execute) a live-vregs analysis.
func NewLiveVregs(graph *ControlFlowGraph) *LiveVregs {
	return NewDataflow[LiveSet](graph, LiveVregsAnalysis{})
}
