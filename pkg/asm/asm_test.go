package asm

import (
	"strings"
	"testing"

	"github.com/ncc-lang/ncc/pkg/hirgen"
	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/symtab"
	"github.com/ncc-lang/ncc/pkg/types"
)

func TestEmitSections(t *testing.T) {
	table := symtab.NewSymbolTable(nil, "")
	global := table.Define(symtab.SymVariable, "counter", types.NewBasic(types.Int, true))

	seq := ir.NewInstructionSequence()
	seq.Append(ir.NewInstruction(ir.MinsPushq, ir.Mr(ir.MReg64, ir.MregRbp)))
	seq.Append(ir.NewInstruction(ir.MinsMovQ, ir.Mr(ir.MReg64, ir.MregRsp), ir.Mr(ir.MReg64, ir.MregRbp)))
	seq.DefineLabel(".Lmain_return")
	seq.Append(ir.NewInstruction(ir.MinsRet))

	module := &Module{
		Strings: []hirgen.StringEntry{{Name: "str0", Value: "hi\n"}},
		Globals: []*symtab.Symbol{global},
	}
	module.AddFunction("main", seq)

	var sb strings.Builder
	module.Emit(&sb)
	out := sb.String()

	for _, want := range []string{
		"\t.section .rodata\n",
		"str0: .string \"hi\\n\"\n",
		"\t.section .data\n",
		"\t.globl counter\n",
		"\t.align 4\n",
		"counter: .space 4\n",
		"\t.section .text\n",
		"\t.globl main\n",
		"main:\n",
		".Lmain_return:\n",
		"\tretq\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	if strings.Index(out, ".rodata") > strings.Index(out, ".text") {
		t.Error(".rodata emitted after .text")
	}
}

func TestEmptySectionsOmitted(t *testing.T) {
	module := &Module{}
	var sb strings.Builder
	module.Emit(&sb)
	if sb.Len() != 0 {
		t.Errorf("empty module emitted %q", sb.String())
	}
}

func TestStringEscaping(t *testing.T) {
	tests := map[string]string{
		"plain":     "plain",
		"a\"b":      "a\\\"b",
		"tab\there": "tab\\there",
		"back\\":    "back\\\\",
		"bell\x07":  "bell\\007",
	}
	for in, want := range tests {
		if got := escapeString(in); got != want {
			t.Errorf("escapeString(%q) = %q, want %q", in, got, want)
		}
	}
}
