// Package oracle answers whether a call target can suspend.
//
// Answers come from the throws lists of resolved classes: a method is
// suspendable when it declares coro/SuspendExecution. Every class is
// resolved at most once per Oracle; the entries double as the superclass
// table used by the frame analyzer to merge reference types.
package oracle

import (
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
	"github.com/wippyai/resumable/instrument/internal/diag"
)

// DefaultCorePrefixes are the opaque runtime packages whose methods never
// suspend.
var DefaultCorePrefixes = []string{"core/"}

// Resolver returns the encoded class with the given internal name.
type Resolver interface {
	Resolve(name string) ([]byte, error)
}

// MethodKey identifies a method.
type MethodKey struct {
	Class string
	Name  string
	Desc  string
}

func (k MethodKey) String() string {
	return k.Class + "." + k.Name + k.Desc
}

// ClassEntry records the superclass and per-method suspendability of one
// class.
type ClassEntry struct {
	Methods map[string]bool // name+desc
	Super   string
}

// ClassNotFound is the entry cached for classes that could not be resolved.
// All of their methods are treated as suspendable.
var ClassNotFound = &ClassEntry{Super: "<class not found>"}

// NewClassEntry builds the entry for a decoded class.
func NewClassEntry(c *classfile.Class) *ClassEntry {
	e := &ClassEntry{Super: c.Super, Methods: make(map[string]bool, len(c.Methods))}
	for _, m := range c.Methods {
		e.Methods[m.Key()] = m.Throws(classfile.SuspendClass)
	}
	return e
}

// Check returns whether name+desc is suspendable and whether the class
// declares it at all.
func (e *ClassEntry) Check(name, desc string) (suspendable, declared bool) {
	suspendable, declared = e.Methods[name+desc]
	return suspendable, declared
}

// Equal compares superclass and method table.
func (e *ClassEntry) Equal(o *ClassEntry) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil {
		return false
	}
	return e.Super == o.Super && maps.Equal(e.Methods, o.Methods)
}

// Config configures an Oracle.
type Config struct {
	Resolver        Resolver
	Sink            *diag.Sink
	CorePrefixes    []string
	SuspendableCore []MethodKey
}

// Oracle caches class entries and answers suspendability queries. It is
// safe for concurrent use; resolution runs outside the lock.
type Oracle struct {
	resolver    Resolver
	sink        *diag.Sink
	prefixes    []string
	coreAllowed map[MethodKey]bool

	mu      sync.RWMutex
	classes map[string]*ClassEntry
	supers  map[string]string

	resolutions atomic.Int64
}

// New creates an Oracle.
func New(cfg Config) *Oracle {
	sink := cfg.Sink
	if sink == nil {
		sink = diag.Nop()
	}
	prefixes := cfg.CorePrefixes
	if prefixes == nil {
		prefixes = DefaultCorePrefixes
	}
	allowed := make(map[MethodKey]bool, len(cfg.SuspendableCore))
	for _, k := range cfg.SuspendableCore {
		allowed[k] = true
	}
	return &Oracle{
		resolver:    cfg.Resolver,
		sink:        sink,
		prefixes:    prefixes,
		coreAllowed: allowed,
		classes:     make(map[string]*ClassEntry),
		supers:      make(map[string]string),
	}
}

// IsCore reports whether class lives in an opaque runtime package.
func (o *Oracle) IsCore(class string) bool {
	for _, p := range o.prefixes {
		if strings.HasPrefix(class, p) {
			return true
		}
	}
	return false
}

// IsSuspendable reports whether a call to class.name+desc may suspend.
// searchSuperclasses follows the superclass chain when the class does not
// declare the method, which is right for virtual and static calls. A core
// class reached on the way answers only for methods it declares.
// Unknown classes and methods are assumed suspendable.
func (o *Oracle) IsSuspendable(class, name, desc string, searchSuperclasses bool) bool {
	if strings.HasPrefix(name, "<") {
		return false
	}
	if o.IsCore(class) {
		return o.coreAllowed[MethodKey{Class: class, Name: name, Desc: desc}]
	}

	cur := class
	for cur != "" {
		entry := o.entry(cur)
		if entry == ClassNotFound {
			return true
		}
		if suspendable, ok := entry.Check(name, desc); ok {
			if o.IsCore(cur) {
				return o.coreAllowed[MethodKey{Class: cur, Name: name, Desc: desc}]
			}
			return suspendable
		}
		if !searchSuperclasses {
			break
		}
		cur = entry.Super
	}

	o.sink.Warn("method not found - assuming suspendable",
		zap.String("class", class), zap.String("method", name+desc))
	return true
}

// entry returns the cached entry for class, resolving it on first use.
func (o *Oracle) entry(class string) *ClassEntry {
	o.mu.RLock()
	e, ok := o.classes[class]
	o.mu.RUnlock()
	if ok {
		return e
	}

	o.sink.Info("reading class", zap.String("class", class))
	c, err := o.resolve(class)
	if err != nil {
		o.sink.Warn("class not found - assuming suspendable",
			zap.String("class", class), zap.Error(err))
		o.record(class, ClassNotFound)
		return ClassNotFound
	}
	e = NewClassEntry(c)
	o.record(class, e)
	return e
}

func (o *Oracle) resolve(class string) (*classfile.Class, error) {
	if o.resolver == nil {
		return nil, errors.Resolution(class, errors.State(errors.PhaseResolve, "no resolver configured"))
	}
	o.resolutions.Add(1)
	data, err := o.resolver.Resolve(class)
	if err != nil {
		return nil, errors.Resolution(class, err)
	}
	c, err := classfile.Decode(data)
	if err != nil {
		return nil, errors.Resolution(class, err)
	}
	return c, nil
}

// Record stores the entry of an already decoded class, typically the one
// being instrumented.
func (o *Oracle) Record(c *classfile.Class) {
	o.record(c.Name, NewClassEntry(c))
}

// record inserts an entry. When an entry with different data already
// exists the newest one wins and a warning is logged.
func (o *Oracle) record(class string, e *ClassEntry) {
	o.mu.Lock()
	old, ok := o.classes[class]
	o.classes[class] = e
	o.mu.Unlock()

	if ok && !old.Equal(e) {
		o.sink.Warn("duplicate class entries with different data",
			zap.String("class", class),
			zap.String("kind", string(errors.KindCacheConflict)))
	}
}

// DirectSuperClass returns the superclass of name. Failed lookups are
// cached too and warned about once.
func (o *Oracle) DirectSuperClass(name string) (string, bool) {
	o.mu.RLock()
	e, ok := o.classes[name]
	super, cached := o.supers[name]
	o.mu.RUnlock()
	if ok && e != ClassNotFound {
		return e.Super, e.Super != ""
	}
	if cached {
		return super, super != ""
	}

	var err error
	if ok {
		err = errors.NotFound(errors.PhaseResolve, "class", name)
	} else {
		var c *classfile.Class
		if c, err = o.resolve(name); err == nil {
			super = c.Super
		}
	}
	if err != nil || super == "" {
		o.mu.Lock()
		_, had := o.supers[name]
		o.supers[name] = ""
		o.mu.Unlock()
		if !had {
			o.sink.Warn("can't determine super class", zap.String("class", name), zap.Error(err))
		}
		return "", false
	}

	o.mu.Lock()
	old, had := o.supers[name]
	o.supers[name] = super
	o.mu.Unlock()
	if had && old != "" && old != super {
		o.sink.Warn("duplicate super class entry with different value",
			zap.String("class", name), zap.String("old", old), zap.String("new", super),
			zap.String("kind", string(errors.KindCacheConflict)))
	}
	return super, true
}

// superClasses returns the chain from the root class down to name.
func (o *Oracle) superClasses(name string) ([]string, bool) {
	var chain []string
	for {
		chain = append(chain, name)
		if name == classfile.ObjectClass {
			break
		}
		super, ok := o.DirectSuperClass(name)
		if !ok {
			return nil, false
		}
		name = super
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, true
}

// CommonSuperClass returns the most derived class both a and b extend.
// Arrays only share core/Object with anything other than themselves.
func (o *Oracle) CommonSuperClass(a, b string) (string, bool) {
	if a == b {
		return a, true
	}
	if classfile.IsArray(a) || classfile.IsArray(b) {
		return classfile.ObjectClass, true
	}
	la, ok := o.superClasses(a)
	if !ok {
		return "", false
	}
	lb, ok := o.superClasses(b)
	if !ok {
		return "", false
	}
	idx := 0
	for idx < len(la) && idx < len(lb) && la[idx] == lb[idx] {
		idx++
	}
	if idx == 0 {
		return "", false
	}
	return la[idx-1], true
}

// IsException reports whether name extends core/Throwable.
func (o *Oracle) IsException(name string) bool {
	for {
		switch name {
		case classfile.ThrowableClass:
			return true
		case classfile.ObjectClass:
			return false
		}
		super, ok := o.DirectSuperClass(name)
		if !ok {
			return false
		}
		name = super
	}
}

// Invalidate drops the cached data of class, or of every class when class
// is empty.
func (o *Oracle) Invalidate(class string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if class == "" {
		clear(o.classes)
		clear(o.supers)
		return
	}
	delete(o.classes, class)
	delete(o.supers, class)
}

// Resolutions returns how many times the resolver has been consulted.
func (o *Oracle) Resolutions() int64 {
	return o.resolutions.Load()
}
