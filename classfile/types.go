package classfile

import "strings"

// Class is a decoded class: its hierarchy, fields and methods.
type Class struct {
	Name        string
	Super       string // "" only for the root class
	Interfaces  []string
	Annotations []string
	Fields      []Field
	Methods     []*Method
	Flags       uint32
}

// Field is a declared instance or static field.
type Field struct {
	Name  string
	Desc  string
	Flags uint32
}

// Method is a declared method with its body.
type Method struct {
	Name             string
	Desc             string
	Exceptions       []string   // declared throws list
	Annotations      []string   // method-level annotation class names
	ParamAnnotations [][]string // per-parameter annotation class names
	Code             []Instruction
	Ranges           []ExceptionRange
	LocalVars        []LocalVar
	Flags            uint32
	MaxLocals        uint32
	MaxStack         uint32
}

// ExceptionRange is a protected region [Start, End) whose exceptions matching
// Type are dispatched to Handler. All three are label ids. An empty Type
// catches everything.
type ExceptionRange struct {
	Type    string
	Start   uint32
	End     uint32
	Handler uint32
}

// LocalVar is debug metadata naming a local slot over a label range.
type LocalVar struct {
	Name  string
	Desc  string
	Start uint32
	End   uint32
	Index uint32
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool { return m.Flags&AccStatic != 0 }

// IsSynchronized reports whether the method holds its monitor for the call.
func (m *Method) IsSynchronized() bool { return m.Flags&AccSynchronized != 0 }

// IsAbstract reports whether the method has no body.
func (m *Method) IsAbstract() bool { return m.Flags&AccAbstract != 0 }

// IsNative reports whether the method body is supplied by the host.
func (m *Method) IsNative() bool { return m.Flags&AccNative != 0 }

// HasBody reports whether the method carries instructions.
func (m *Method) HasBody() bool { return !m.IsAbstract() && !m.IsNative() }

// Throws reports whether class is declared in the method's throws list.
func (m *Method) Throws(class string) bool {
	for _, e := range m.Exceptions {
		if e == class {
			return true
		}
	}
	return false
}

// Key returns name+desc, the per-class identity of a method.
func (m *Method) Key() string {
	return m.Name + m.Desc
}

// Clone returns a deep copy whose code and ranges may be rewritten freely.
func (m *Method) Clone() *Method {
	c := *m
	c.Exceptions = append([]string(nil), m.Exceptions...)
	c.Annotations = append([]string(nil), m.Annotations...)
	if m.ParamAnnotations != nil {
		c.ParamAnnotations = make([][]string, len(m.ParamAnnotations))
		for i, p := range m.ParamAnnotations {
			c.ParamAnnotations[i] = append([]string(nil), p...)
		}
	}
	c.Code = append([]Instruction(nil), m.Code...)
	c.Ranges = append([]ExceptionRange(nil), m.Ranges...)
	c.LocalVars = append([]LocalVar(nil), m.LocalVars...)
	return &c
}

// Method returns the method declared with name and desc, or nil.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Desc == desc {
			return m
		}
	}
	return nil
}

// Field returns the field declared with name, or nil.
func (c *Class) Field(name string) *Field {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i]
		}
	}
	return nil
}

// HasAnnotation reports whether the class carries the annotation.
func (c *Class) HasAnnotation(name string) bool {
	for _, a := range c.Annotations {
		if a == name {
			return true
		}
	}
	return false
}

// IsInterface reports whether the class is an interface.
func (c *Class) IsInterface() bool { return c.Flags&AccInterface != 0 }

// Package returns the slash-separated package prefix of a class name.
func Package(class string) string {
	if i := strings.LastIndexByte(class, '/'); i >= 0 {
		return class[:i]
	}
	return ""
}
