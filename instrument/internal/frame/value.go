package frame

import (
	"github.com/wippyai/resumable/classfile"
)

// Kind classifies one abstract slot value.
type Kind uint8

const (
	Uninit Kind = iota // no usable value: never written, or conflicting on a join
	Int
	Long
	Float
	Double
	Ref // object reference of Value.Class; null has class "null"
	New // pending construction bound to a Site
)

func (k Kind) String() string {
	switch k {
	case Uninit:
		return "uninitialized"
	case Int:
		return "int"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	case Ref:
		return "ref"
	case New:
		return "new"
	}
	return "unknown"
}

// Site is one `new` instruction and the `dup` that copies its result.
// A safe site is only ever consumed by the `new, dup, args..., invokespecial
// <init>` shape, which lets the generator drop the allocation while the
// arguments are evaluated and re-create it right before the constructor
// call.
type Site struct {
	Class   string
	New     int // instruction index of the new
	Dup     int // instruction index of the dup, -1 until seen
	Unsafe  bool
	Omitted bool // set when the site is live across a suspension point
}

// Value is the abstract content of a local or operand stack slot.
type Value struct {
	Site   *Site
	Class  string
	Kind   Kind
	Dupped bool // New: the copy made by the site's dup
}

var (
	uninit = Value{Kind: Uninit}
	null   = Value{Kind: Ref, Class: classfile.NullClass}
)

// RefOf returns a reference value of class.
func RefOf(class string) Value {
	return Value{Kind: Ref, Class: class}
}

// FromDesc returns the value a field descriptor denotes.
func FromDesc(desc string) Value {
	switch classfile.DescKind(desc) {
	case classfile.KindInt:
		return Value{Kind: Int}
	case classfile.KindLong:
		return Value{Kind: Long}
	case classfile.KindFloat:
		return Value{Kind: Float}
	case classfile.KindDouble:
		return Value{Kind: Double}
	case classfile.KindRef:
		return RefOf(classfile.ClassOf(desc))
	}
	return uninit
}

func fromSlotKind(k classfile.SlotKind) Value {
	switch k {
	case classfile.KindInt:
		return Value{Kind: Int}
	case classfile.KindLong:
		return Value{Kind: Long}
	case classfile.KindFloat:
		return Value{Kind: Float}
	case classfile.KindDouble:
		return Value{Kind: Double}
	case classfile.KindRef:
		return RefOf(classfile.ObjectClass)
	}
	return uninit
}

// IsNull reports whether v is the null constant's type.
func (v Value) IsNull() bool {
	return v.Kind == Ref && v.Class == classfile.NullClass
}

// IsReference reports whether v lives in object storage.
func (v Value) IsReference() bool {
	return v.Kind == Ref || v.Kind == New
}

// Skipped reports whether saving v stores nothing: null and uninitialized
// slots are re-created on restore instead.
func (v Value) Skipped() bool {
	return v.Kind == Uninit || v.IsNull()
}

// Omitted reports whether v is a deferred construction.
func (v Value) Omitted() bool {
	return v.Kind == New && v.Site.Omitted
}

// SlotKind returns the storage kind of v.
func (v Value) SlotKind() classfile.SlotKind {
	switch v.Kind {
	case Int:
		return classfile.KindInt
	case Long:
		return classfile.KindLong
	case Float:
		return classfile.KindFloat
	case Double:
		return classfile.KindDouble
	case Ref, New:
		return classfile.KindRef
	}
	return classfile.KindVoid
}

// TypeName returns the class a reference value is known to have.
func (v Value) TypeName() string {
	if v.Kind == New {
		return v.Site.Class
	}
	return v.Class
}

func (v Value) String() string {
	switch v.Kind {
	case Ref:
		return v.Class
	case New:
		if v.Dupped {
			return "new'" + v.Site.Class
		}
		return "new " + v.Site.Class
	}
	return v.Kind.String()
}

// Frame is the abstract machine state before one instruction.
type Frame struct {
	Locals []Value
	Stack  []Value // bottom to top
}

func (f *Frame) clone() *Frame {
	return &Frame{
		Locals: append([]Value(nil), f.Locals...),
		Stack:  append([]Value(nil), f.Stack...),
	}
}

// Top returns the value n slots below the top of the stack.
func (f *Frame) Top(n int) Value {
	return f.Stack[len(f.Stack)-1-n]
}
