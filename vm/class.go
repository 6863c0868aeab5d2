package vm

import (
	"github.com/wippyai/resumable/classfile"
)

type initState int

const (
	uninitialized initState = iota
	initializing
	initialized
)

// Class is a loaded, linked class.
type Class struct {
	File       *classfile.Class
	Super      *Class
	Interfaces []*Class
	Statics    map[string]Value
	methods    map[string]*Method
	fields     []classfile.Field // instance fields of the whole hierarchy
	state      initState
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.File.Name
}

// IsSubclassOf reports whether c is name or extends or implements it.
func (c *Class) IsSubclassOf(name string) bool {
	if name == classfile.ObjectClass {
		return true
	}
	for k := c; k != nil; k = k.Super {
		if k.File.Name == name {
			return true
		}
		for _, iface := range k.Interfaces {
			if iface.IsSubclassOf(name) {
				return true
			}
		}
	}
	return false
}

// Method is a method prepared for execution.
type Method struct {
	*classfile.Method
	Owner    *Class
	labels   map[uint32]int
	handlers []handler
}

type handler struct {
	typ             string
	start, end, tgt int
}

func newMethod(owner *Class, m *classfile.Method) *Method {
	pm := &Method{Method: m, Owner: owner, labels: classfile.LabelIndex(m.Code)}
	for _, r := range m.Ranges {
		pm.handlers = append(pm.handlers, handler{
			typ:   r.Type,
			start: pm.labels[r.Start],
			end:   pm.labels[r.End],
			tgt:   pm.labels[r.Handler],
		})
	}
	return pm
}

// FindMethod looks name+desc up in c and then its superclasses.
func (c *Class) FindMethod(name, desc string) *Method {
	key := name + desc
	for k := c; k != nil; k = k.Super {
		if m, ok := k.methods[key]; ok {
			return m
		}
	}
	return nil
}

// findInterfaceMethod searches superinterfaces for abstract declarations.
func (c *Class) findInterfaceMethod(name, desc string) *Method {
	for k := c; k != nil; k = k.Super {
		for _, iface := range k.Interfaces {
			if m := iface.FindMethod(name, desc); m != nil {
				return m
			}
			if m := iface.findInterfaceMethod(name, desc); m != nil {
				return m
			}
		}
	}
	return nil
}

// staticOwner returns the class in c's hierarchy declaring static field name.
func (c *Class) staticOwner(name string) *Class {
	for k := c; k != nil; k = k.Super {
		if _, ok := k.Statics[name]; ok {
			return k
		}
	}
	return nil
}
