package hirgen_test

import (
	"testing"

	"github.com/ncc-lang/ncc/pkg/ast"
	"github.com/ncc-lang/ncc/pkg/hirgen"
	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/lexer"
	"github.com/ncc-lang/ncc/pkg/parser"
	"github.com/ncc-lang/ncc/pkg/sema"
)

// generate compiles a source unit down to HIR and returns the sequence
// of each function definition, keyed by name.
func generate(t *testing.T, src string) map[string]*ir.InstructionSequence {
	t.Helper()
	tokens := lexer.Tokenize([]rune(src), "test.c")
	unit := parser.NewParser(tokens).Parse()
	analyzer := sema.NewAnalyzer()
	analyzer.Analyze(unit)

	labelCount := 0
	strings := &hirgen.Strings{}
	result := make(map[string]*ir.InstructionSequence)
	for _, kid := range unit.Kids {
		if kid.Tag != ast.FunctionDefinition {
			continue
		}
		gen := hirgen.NewGenerator(&labelCount, strings)
		result[kid.Lexeme] = gen.Generate(kid)
	}
	return result
}

func countOpcode(seq *ir.InstructionSequence, op ir.Opcode) int {
	n := 0
	for _, slot := range seq.Slots() {
		if slot.Ins.Opcode == op {
			n++
		}
	}
	return n
}

const sumProgram = `
int sum(int n) {
	int s;
	int i;
	s = 0;
	for (i = 1; i <= n; i = i + 1) s = s + i;
	return s;
}
int main(void) { return sum(10); }
`

func TestFunctionShape(t *testing.T) {
	seqs := generate(t, sumProgram)
	sum := seqs["sum"]
	if sum == nil {
		t.Fatal("no HIR for sum")
	}
	if got := countOpcode(sum, ir.HinsEnter); got != 1 {
		t.Errorf("sum has %d enter instructions, want 1", got)
	}
	if got := countOpcode(sum, ir.HinsLeave); got != 1 {
		t.Errorf("sum has %d leave instructions, want 1", got)
	}
	if got := countOpcode(sum, ir.HinsRet); got != 1 {
		t.Errorf("sum has %d ret instructions, want 1", got)
	}
	if sum.Get(0).Opcode != ir.HinsEnter {
		t.Error("sum does not start with enter")
	}
	if _, ok := sum.LabelIndex(".Lsum_return"); !ok {
		t.Error("sum has no return label")
	}
}

func TestReturnJumpsToReturnLabel(t *testing.T) {
	seqs := generate(t, sumProgram)
	sum := seqs["sum"]
	found := false
	for _, slot := range sum.Slots() {
		if slot.Ins.Opcode == ir.HinsJmp && slot.Ins.Operand(0).Text == ".Lsum_return" {
			found = true
		}
	}
	if !found {
		t.Error("return does not jump to the return label")
	}
}

func TestWhileLowering(t *testing.T) {
	seqs := generate(t, `
		int main(void) {
			int i;
			i = 0;
			while (i < 3) i = i + 1;
			return i;
		}
	`)
	main := seqs["main"]

	// Canonical bottom-test form: an unconditional jump to the
	// comparison, exactly one cjmp_t, and no cjmp_f.
	if got := countOpcode(main, ir.HinsCjmpT); got != 1 {
		t.Errorf("%d cjmp_t instructions, want 1", got)
	}
	if got := countOpcode(main, ir.HinsCjmpF); got != 0 {
		t.Errorf("%d cjmp_f instructions, want 0", got)
	}

	// The entry jump must appear before the bottom cjmp_t.
	jmpIndex, cjmpIndex := -1, -1
	for i := 0; i < main.Len(); i++ {
		switch main.Get(i).Opcode {
		case ir.HinsJmp:
			if jmpIndex == -1 {
				jmpIndex = i
			}
		case ir.HinsCjmpT:
			cjmpIndex = i
		}
	}
	if jmpIndex == -1 || cjmpIndex == -1 || jmpIndex > cjmpIndex {
		t.Error("while lowering is not in jump-to-bottom-test form")
	}
}

func TestAddressTakenLocalUsesLocaladdr(t *testing.T) {
	seqs := generate(t, `
		int f(int *p) { *p = 11; return 0; }
		int main(void) { int x; f(&x); return x; }
	`)
	main := seqs["main"]
	if got := countOpcode(main, ir.HinsLocaladdr); got == 0 {
		t.Error("address-taken local never produced a localaddr")
	}

	// The argument move targets vr1.
	foundArg := false
	for _, slot := range main.Slots() {
		if ir.MatchHins(ir.HinsMovB, slot.Ins.Opcode) &&
			slot.Ins.Operand(0).Kind == ir.VReg && slot.Ins.Operand(0).Base == sema.VregFirstArg {
			foundArg = true
		}
	}
	if !foundArg {
		t.Error("call argument never moved into vr1")
	}
	if got := countOpcode(main, ir.HinsCall); got != 1 {
		t.Errorf("%d call instructions, want 1", got)
	}
}

func TestArrayElementLowering(t *testing.T) {
	seqs := generate(t, `
		int main(void) {
			int arr[3];
			arr[0] = 7;
			arr[1] = 8;
			arr[2] = 9;
			return arr[2];
		}
	`)
	main := seqs["main"]

	// Element access scales the index by the element size with 64-bit
	// arithmetic and adds it to the base address.
	if got := countOpcode(main, ir.HinsMulQ); got < 4 {
		t.Errorf("%d mul_q instructions, want one per element access", got)
	}
	if got := countOpcode(main, ir.HinsAddQ); got < 4 {
		t.Errorf("%d add_q instructions, want one per element access", got)
	}
	if got := countOpcode(main, ir.HinsLocaladdr); got < 4 {
		t.Errorf("%d localaddr instructions, want one per element access", got)
	}
}

func TestImplicitPromotionEmitsConversion(t *testing.T) {
	seqs := generate(t, `
		int main(void) {
			char c;
			int x;
			c = 'a';
			x = c + 1;
			return 0;
		}
	`)
	main := seqs["main"]
	found := false
	for _, slot := range main.Slots() {
		if slot.Ins.Opcode == ir.HinsSconvBL {
			found = true
		}
	}
	if !found {
		t.Error("char operand promotion emitted no sconv_bl")
	}
}

func TestStringLiteralGoesToTable(t *testing.T) {
	tokens := lexer.Tokenize([]rune(`
		int puts(char *s);
		int main(void) { puts("hello"); return 0; }
	`), "test.c")
	unit := parser.NewParser(tokens).Parse()
	analyzer := sema.NewAnalyzer()
	analyzer.Analyze(unit)

	labelCount := 0
	strs := &hirgen.Strings{}
	for _, kid := range unit.Kids {
		if kid.Tag == ast.FunctionDefinition {
			hirgen.NewGenerator(&labelCount, strs).Generate(kid)
		}
	}
	entries := strs.Entries()
	if len(entries) != 1 {
		t.Fatalf("%d string entries, want 1", len(entries))
	}
	if entries[0].Name != "str0" || entries[0].Value != "hello" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestLabelsUniqueAcrossFunctions(t *testing.T) {
	seqs := generate(t, `
		int f(void) { int i; i = 0; while (i < 2) i = i + 1; return i; }
		int g(void) { int i; i = 0; while (i < 2) i = i + 1; return i; }
	`)
	seen := make(map[string]bool)
	for _, seq := range seqs {
		for _, slot := range seq.Slots() {
			if slot.Label == "" {
				continue
			}
			if seen[slot.Label] {
				t.Errorf("label %s defined in more than one function", slot.Label)
			}
			seen[slot.Label] = true
		}
	}
}
