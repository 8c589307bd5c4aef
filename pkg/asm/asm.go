// Package asm collects a translation unit's generated pieces and
// prints the final assembly listing in GNU x86-64 syntax: string
// literals in .rodata, global variables in .data, and function bodies
// in .text. Each section is emitted only when it has content.
package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/ncc-lang/ncc/pkg/hirgen"
	"github.com/ncc-lang/ncc/pkg/ir"
	"github.com/ncc-lang/ncc/pkg/symtab"
)

// Function is one compiled function body.
type Function struct {
	Name string
	Seq  *ir.InstructionSequence
}

// Module accumulates the unit's output as the driver works through the
// pipeline.
type Module struct {
	Strings   []hirgen.StringEntry
	Globals   []*symtab.Symbol
	Functions []Function
}

func (m *Module) AddFunction(name string, seq *ir.InstructionSequence) {
	m.Functions = append(m.Functions, Function{Name: name, Seq: seq})
}

// Emit writes the whole assembly listing.
func (m *Module) Emit(w io.Writer) {
	if len(m.Strings) > 0 {
		fmt.Fprintf(w, "\t.section .rodata\n")
		for _, entry := range m.Strings {
			fmt.Fprintf(w, "%s: .string \"%s\"\n", entry.Name, escapeString(entry.Value))
		}
	}

	if len(m.Globals) > 0 {
		fmt.Fprintf(w, "\t.section .data\n")
		for _, sym := range m.Globals {
			fmt.Fprintf(w, "\t.globl %s\n", sym.Name)
			fmt.Fprintf(w, "\t.align %d\n", sym.Type.Alignment())
			fmt.Fprintf(w, "%s: .space %d\n", sym.Name, sym.Type.StorageSize())
		}
	}

	if len(m.Functions) > 0 {
		fmt.Fprintf(w, "\t.section .text\n")
		formatter := ir.LowLevelFormatter{}
		for _, fn := range m.Functions {
			fmt.Fprintf(w, "\t.globl %s\n", fn.Name)
			fmt.Fprintf(w, "%s:\n", fn.Name)
			for _, slot := range fn.Seq.Slots() {
				if slot.Label != "" {
					fmt.Fprintf(w, "%s:\n", slot.Label)
				}
				fmt.Fprintf(w, "\t%s\n", formatter.FormatInstruction(slot.Ins))
			}
		}
	}
}

// escapeString escapes a literal for the .string directive.
func escapeString(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString("\\\\")
		case '"':
			sb.WriteString("\\\"")
		case '\n':
			sb.WriteString("\\n")
		case '\t':
			sb.WriteString("\\t")
		case '\r':
			sb.WriteString("\\r")
		default:
			if r < 32 || r > 126 {
				fmt.Fprintf(&sb, "\\%03o", r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}
