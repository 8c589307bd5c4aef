// Package types defines the compiler's type algebra: basic types,
// qualified types, pointers, arrays, structs, and function types.
// Types are immutable once their member lists are finalized, except
// that struct member offsets and storage are set when the analyzer
// lays the struct out.
package types

import (
	"fmt"
	"strings"

	"github.com/ncc-lang/ncc/pkg/util"
)

type Kind int

const (
	KindBasic Kind = iota
	KindQualified
	KindPointer
	KindArray
	KindStruct
	KindFunction
)

// BasicKind enumerates the basic types. The integral kinds are ordered
// by width so that a basic kind's integer code selects the matching
// size-suffixed opcode variant (char=0, short=1, int=2, long=3).
type BasicKind int

const (
	Void BasicKind = iota - 1
	Char
	Short
	Int
	Long
)

type Qualifier int

const (
	QualNone Qualifier = iota
	QualConst
	QualVolatile
)

// Member is a named member of a struct type (a field) or of a function
// type (a parameter). Field offsets are filled in during struct layout.
type Member struct {
	Name   string
	Type   *Type
	Offset int
}

// Type is a tagged representation of one type in the algebra. Only the
// fields relevant to Kind are meaningful.
type Type struct {
	Kind     Kind
	Basic    BasicKind // KindBasic
	Signed   bool      // KindBasic
	Qual     Qualifier // KindQualified
	Base     *Type     // qualified inner, pointer base, array element, function return
	Len      int       // KindArray
	Name     string    // KindStruct: "struct <tag>"
	Members  []*Member // KindStruct fields, KindFunction parameters
	size     int       // KindStruct, set when layout is finalized
	align    int       // KindStruct
	laidOut  bool      // KindStruct
}

func NewBasic(kind BasicKind, signed bool) *Type {
	return &Type{Kind: KindBasic, Basic: kind, Signed: signed}
}

func NewQualified(inner *Type, qual Qualifier) *Type {
	return &Type{Kind: KindQualified, Qual: qual, Base: inner}
}

func NewPointer(base *Type) *Type {
	return &Type{Kind: KindPointer, Base: base}
}

func NewArray(base *Type, length int) *Type {
	return &Type{Kind: KindArray, Base: base, Len: length}
}

func NewStruct(name string) *Type {
	return &Type{Kind: KindStruct, Name: name}
}

func NewFunction(ret *Type) *Type {
	return &Type{Kind: KindFunction, Base: ret}
}

// AddMember appends a member to a struct or function type.
func (t *Type) AddMember(m *Member) {
	if t.Kind != KindStruct && t.Kind != KindFunction {
		util.Internalf("AddMember on non-struct, non-function type")
	}
	t.Members = append(t.Members, m)
}

// FindMember looks up a struct field or function parameter by name.
func (t *Type) FindMember(name string) *Member {
	for _, m := range t.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// SetStorage records the finalized size and alignment of a struct type.
func (t *Type) SetStorage(size, align int) {
	t.size, t.align, t.laidOut = size, align, true
}

// Unqualified strips any qualifier layers.
func (t *Type) Unqualified() *Type {
	for t.Kind == KindQualified {
		t = t.Base
	}
	return t
}

// IsSame compares two types structurally, ignoring qualifiers.
func (t *Type) IsSame(other *Type) bool {
	a, b := t.Unqualified(), other.Unqualified()
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBasic:
		return a.Basic == b.Basic && a.Signed == b.Signed
	case KindPointer:
		return a.Base.IsSame(b.Base)
	case KindArray:
		return a.Len == b.Len && a.Base.IsSame(b.Base)
	case KindStruct:
		return a.Name == b.Name
	case KindFunction:
		if !a.Base.IsSame(b.Base) || len(a.Members) != len(b.Members) {
			return false
		}
		for i := range a.Members {
			if !a.Members[i].Type.IsSame(b.Members[i].Type) {
				return false
			}
		}
		return true
	}
	return false
}

var basicSizes = map[BasicKind]int{Char: 1, Short: 2, Int: 4, Long: 8}

// StorageSize returns the size of the type in bytes.
func (t *Type) StorageSize() int {
	switch t.Kind {
	case KindBasic:
		if t.Basic == Void {
			util.Internalf("attempt to get storage size of void")
		}
		return basicSizes[t.Basic]
	case KindQualified:
		return t.Base.StorageSize()
	case KindPointer:
		return 8
	case KindArray:
		return t.Base.StorageSize() * t.Len
	case KindStruct:
		if !t.laidOut {
			util.Internalf("struct type '%s' has no storage layout", t.Name)
		}
		return t.size
	}
	util.Internalf("attempt to get storage size of function type")
	return 0
}

// Alignment returns the required alignment of the type in bytes.
func (t *Type) Alignment() int {
	switch t.Kind {
	case KindBasic:
		if t.Basic == Void {
			util.Internalf("attempt to get alignment of void")
		}
		return basicSizes[t.Basic]
	case KindQualified:
		return t.Base.Alignment()
	case KindPointer:
		return 8
	case KindArray:
		return t.Base.Alignment()
	case KindStruct:
		if !t.laidOut {
			util.Internalf("struct type '%s' has no storage layout", t.Name)
		}
		return t.align
	}
	util.Internalf("attempt to get alignment of function type")
	return 0
}

func (t *Type) IsBasic() bool    { return t.Unqualified().Kind == KindBasic }
func (t *Type) IsPointer() bool  { return t.Unqualified().Kind == KindPointer }
func (t *Type) IsArray() bool    { return t.Unqualified().Kind == KindArray }
func (t *Type) IsStruct() bool   { return t.Unqualified().Kind == KindStruct }
func (t *Type) IsFunction() bool { return t.Unqualified().Kind == KindFunction }

func (t *Type) IsVoid() bool {
	u := t.Unqualified()
	return u.Kind == KindBasic && u.Basic == Void
}

// IsIntegral reports whether the type is a non-void basic type.
func (t *Type) IsIntegral() bool {
	u := t.Unqualified()
	return u.Kind == KindBasic && u.Basic != Void
}

func (t *Type) IsSigned() bool {
	u := t.Unqualified()
	return u.Kind == KindBasic && u.Signed
}

func (t *Type) IsConst() bool {
	return t.Kind == KindQualified && (t.Qual == QualConst || t.Base.IsConst())
}

func (t *Type) IsVolatile() bool {
	return t.Kind == KindQualified && (t.Qual == QualVolatile || t.Base.IsVolatile())
}

var basicNames = map[BasicKind]string{
	Void: "void", Char: "char", Short: "short", Int: "int", Long: "long",
}

func (t *Type) String() string {
	switch t.Kind {
	case KindBasic:
		if t.Basic != Void && !t.Signed {
			return "unsigned " + basicNames[t.Basic]
		}
		return basicNames[t.Basic]
	case KindQualified:
		if t.Qual == QualConst {
			return "const " + t.Base.String()
		}
		return "volatile " + t.Base.String()
	case KindPointer:
		return "pointer to " + t.Base.String()
	case KindArray:
		return fmt.Sprintf("array of %d x %s", t.Len, t.Base)
	case KindStruct:
		return t.Name
	case KindFunction:
		var params []string
		for _, m := range t.Members {
			params = append(params, m.Type.String())
		}
		return fmt.Sprintf("function (%s) returning %s", strings.Join(params, ", "), t.Base)
	}
	return "<unknown>"
}
