package lirgen

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/symtab"
	"github.com/ncc-lang/ncc/pkg/types"
)

func hlSequence(frameSize int, instructions ...*ir.Instruction) *ir.InstructionSequence {
	table := symtab.NewSymbolTable(nil, "")
	sym := table.Define(symtab.SymFunction, "f", types.NewFunction(types.NewBasic(types.Int, true)))
	sym.FrameSize = frameSize

	seq := ir.NewInstructionSequence()
	seq.FuncSym = sym
	for _, ins := range instructions {
		seq.Append(ins)
	}
	return seq
}

func render(seq *ir.InstructionSequence) []string {
	f := ir.LowLevelFormatter{}
	var out []string
	for _, slot := range seq.Slots() {
		if slot.Label != "" {
			out = append(out, slot.Label+":")
		}
		out = append(out, f.FormatInstruction(slot.Ins))
	}
	return out
}

func TestPrologueEpilogue(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsEnter, ir.Imm(0)),
		ir.NewInstruction(ir.HinsMovL, ir.Vr(0), ir.Imm(0)),
		ir.NewInstruction(ir.HinsLeave, ir.Imm(0)),
		ir.NewInstruction(ir.HinsRet),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"pushq    %rbp",
		"movq     %rsp, %rbp",
		"subq     $0, %rsp",
		"movl     $0, %eax",
		"addq     $0, %rsp",
		"popq     %rbp",
		"retq",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("prologue/epilogue mismatch (-want +got):\n%s", diff)
	}
}

// The frame is padded so %rsp stays 16-aligned after the prologue.
func TestFramePadding(t *testing.T) {
	gen := NewGenerator()
	gen.Generate(hlSequence(12,
		ir.NewInstruction(ir.HinsEnter, ir.Imm(12)),
		ir.NewInstruction(ir.HinsRet),
	))
	if gen.FrameSize()%16 != 0 {
		t.Errorf("frame size %d is not a multiple of 16", gen.FrameSize())
	}
	if gen.FrameSize() < 12 {
		t.Errorf("frame size %d smaller than locals", gen.FrameSize())
	}
}

func TestVregMachineRegisterMapping(t *testing.T) {
	tests := []struct {
		vreg int
		want string
	}{
		{0, "%eax"},
		{1, "%edi"},
		{2, "%esi"},
		{3, "%edx"},
		{4, "%ecx"},
		{5, "%r8d"},
		{6, "%r9d"},
		{7, "%r12d"},
		{8, "%r13d"},
		{9, "%r14d"},
		{10, "%r15d"},
	}
	for _, tt := range tests {
		seq := hlSequence(0,
			ir.NewInstruction(ir.HinsMovL, ir.Vr(tt.vreg), ir.Imm(5)),
		)
		got := render(NewGenerator().Generate(seq))
		want := "movl     $5, " + tt.want
		if got[0] != want {
			t.Errorf("vr%d: got %q, want %q", tt.vreg, got[0], want)
		}
	}
}

// Vregs from 11 up live in stack slots at -(S + 8*(v-10))(%rbp).
func TestSpillSlots(t *testing.T) {
	seq := hlSequence(16,
		ir.NewInstruction(ir.HinsMovL, ir.Vr(11), ir.Imm(1)),
		ir.NewInstruction(ir.HinsMovL, ir.Vr(13), ir.Imm(2)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"movl     $1, -24(%rbp)",
		"movl     $2, -40(%rbp)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("spill slots (-want +got):\n%s", diff)
	}
}

func TestMemToMemMoveStagesThroughR10(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsMovL, ir.Vr(11), ir.Vr(12)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"movl     -16(%rbp), %r10d",
		"movl     %r10d, -8(%rbp)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mem-to-mem staging (-want +got):\n%s", diff)
	}
}

func TestMemrefThroughSpilledVregLoadsR11(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsMovL, ir.VrMem(11), ir.Imm(3)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"movq     -8(%rbp), %r11",
		"movl     $3, (%r11)",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("memref lowering (-want +got):\n%s", diff)
	}
}

func TestArithmeticStagesThroughR10(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsAddL, ir.Vr(0), ir.Vr(1), ir.Vr(2)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"movl     %edi, %r10d",
		"addl     %esi, %r10d",
		"movl     %r10d, %eax",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("arithmetic lowering (-want +got):\n%s", diff)
	}
}

func TestComparisonLowering(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsCmpLtL, ir.Vr(0), ir.Vr(1), ir.Vr(2)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"movl     %edi, %r10d",
		"cmpl     %esi, %r10d",
		"setl     %r10b",
		"movzbl   %r10b, %r10d",
		"movl     %r10d, %eax",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("comparison lowering (-want +got):\n%s", diff)
	}
}

func TestDivisionLowering(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsDivL, ir.Vr(0), ir.Vr(1), ir.Vr(2)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"movl     %edi, %eax",
		"cdq",
		"idivl    %esi",
		"movl     %eax, %eax",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("division lowering (-want +got):\n%s", diff)
	}
}

func TestConversionLowering(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsSconvLQ, ir.Vr(0), ir.Vr(1)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"movl     %edi, %r10d",
		"movslq   %r10d, %r10",
		"movq     %r10, %rax",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("conversion lowering (-want +got):\n%s", diff)
	}
}

func TestCjmpLowering(t *testing.T) {
	seq := hlSequence(0,
		ir.NewInstruction(ir.HinsCjmpT, ir.Vr(0), ir.Lbl(".L0")),
		ir.NewInstruction(ir.HinsCjmpF, ir.Vr(0), ir.Lbl(".L1")),
		ir.NewInstruction(ir.HinsNop),
	)
	seq2 := NewGenerator().Generate(seq)
	got := render(seq2)
	want := []string{
		"cmpl     $0, %eax",
		"jne      .L0",
		"cmpl     $0, %eax",
		"je       .L1",
		"nop",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cjmp lowering (-want +got):\n%s", diff)
	}
}

func TestLocaladdrLowering(t *testing.T) {
	// Locals region of 16 bytes; the local at planner offset 4 sits at
	// -(16-4)(%rbp).
	seq := hlSequence(16,
		ir.NewInstruction(ir.HinsLocaladdr, ir.Vr(0), ir.Imm(4)),
	)
	got := render(NewGenerator().Generate(seq))
	want := []string{
		"leaq     -12(%rbp), %r10",
		"movq     %r10, %rax",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("localaddr lowering (-want +got):\n%s", diff)
	}
}

func TestLabelsForwarded(t *testing.T) {
	seq := hlSequence(0)
	seq.Append(ir.NewInstruction(ir.HinsJmp, ir.Lbl(".L5")))
	seq.DefineLabel(".L5")
	seq.Append(ir.NewInstruction(ir.HinsRet))

	ll := NewGenerator().Generate(seq)
	if idx, ok := ll.LabelIndex(".L5"); !ok {
		t.Fatal("label .L5 lost in translation")
	} else if ll.Get(idx).Opcode != ir.MinsRet {
		t.Error("label .L5 not attached to the translated ret")
	}
}
