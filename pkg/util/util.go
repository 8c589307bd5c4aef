// Package util holds the diagnostic machinery shared by every pipeline
// stage: semantic errors (which carry a source location) and internal
// errors (which indicate a compiler bug or unsupported input). Both are
// raised by panicking with the error value and recovered exactly once,
// at the top of the pipeline, by Catch.
package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/ncc-lang/ncc/pkg/token"
)

// SemanticError is a diagnosable problem in the user's program.
type SemanticError struct {
	Loc token.Location
	Msg string
}

func (e *SemanticError) Error() string {
	if e.Loc.Valid() {
		return fmt.Sprintf("%s:Error: %s", e.Loc, e.Msg)
	}
	return "Error: " + e.Msg
}

// RuntimeError is an internal error: malformed input that an earlier
// stage should have rejected, an unknown tag or opcode, and the like.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return "Error: " + e.Msg }

// Errorf raises a semantic error at the given location.
func Errorf(loc token.Location, format string, args ...interface{}) {
	panic(&SemanticError{Loc: loc, Msg: fmt.Sprintf(format, args...)})
}

// Internalf raises an internal error.
func Internalf(format string, args ...interface{}) {
	panic(&RuntimeError{Msg: fmt.Sprintf(format, args...)})
}

// Catch recovers a raised SemanticError or RuntimeError into *err.
// Any other panic value is propagated. Use as:
//
//	defer util.Catch(&err)
func Catch(err *error) {
	switch v := recover().(type) {
	case nil:
	case *SemanticError:
		*err = v
	case *RuntimeError:
		*err = v
	default:
		panic(v)
	}
}

// AlignUp rounds n up to the next multiple of align, which must be a
// power of two.
func AlignUp(n, align int) int {
	if align&(align-1) != 0 {
		Internalf("alignment %d is not a power of two", align)
	}
	return (n + align - 1) &^ (align - 1)
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich
// error messages.
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// PrintErrorLine prints the source line and a caret indicating the
// error position, if the location's file is registered.
func PrintErrorLine(stream *os.File, loc token.Location) {
	if !loc.Valid() {
		return
	}
	var content []rune
	for _, rec := range sourceFiles {
		if rec.Name == loc.File {
			content = rec.Content
			break
		}
	}
	if content == nil {
		return
	}

	lineNum := loc.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(stream, "  %s\n", string(content[lineStart:lineEnd]))
	fmt.Fprintf(stream, "  %s^\n", strings.Repeat(" ", loc.Col-1))
}
