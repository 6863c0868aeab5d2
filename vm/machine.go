package vm

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/errors"
)

// Resolver supplies encoded classes by name.
type Resolver interface {
	Resolve(name string) ([]byte, error)
}

// Transformer rewrites a class as it is loaded.
type Transformer func(c *classfile.Class) (*classfile.Class, error)

// Native implements a native method. args holds the receiver first for
// instance methods.
type Native func(t *Thread, args []Value) (Value, error)

// DefaultMaxDepth bounds the host call depth of a thread.
const DefaultMaxDepth = 2048

// Option configures a Machine.
type Option func(*Machine)

// WithTransformer adds a load-time class transformer. Transformers run
// in registration order.
func WithTransformer(tr Transformer) Option {
	return func(m *Machine) {
		m.transformers = append(m.transformers, tr)
	}
}

// WithOutput sets where core/System prints.
func WithOutput(w io.Writer) Option {
	return func(m *Machine) {
		m.out = w
	}
}

// WithMaxDepth sets the call depth at which StackOverflowError is thrown.
func WithMaxDepth(n int) Option {
	return func(m *Machine) {
		m.maxDepth = n
	}
}

// Machine loads classes from a Resolver and executes them.
type Machine struct {
	resolver     Resolver
	out          io.Writer
	classes      map[string]*Class
	natives      map[string]Native
	transformers []Transformer
	maxDepth     int
	nextID       atomic.Uint64
	mu           sync.Mutex
	outMu        sync.Mutex
}

// New creates a machine loading classes through r.
func New(r Resolver, opts ...Option) *Machine {
	m := &Machine{
		resolver: r,
		out:      io.Discard,
		classes:  make(map[string]*Class),
		natives:  make(map[string]Native),
		maxDepth: DefaultMaxDepth,
	}
	registerNatives(m)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register installs the implementation of a native method, replacing any
// previous one.
func (m *Machine) Register(owner, name, desc string, fn Native) {
	m.mu.Lock()
	m.natives[owner+"."+name+desc] = fn
	m.mu.Unlock()
}

func (m *Machine) native(owner, name, desc string) (Native, bool) {
	m.mu.Lock()
	fn, ok := m.natives[owner+"."+name+desc]
	m.mu.Unlock()
	return fn, ok
}

// LoadClass loads and links the named class and its supertypes. It does
// not run static initializers.
func (m *Machine) LoadClass(name string) (*Class, error) {
	m.mu.Lock()
	c, ok := m.classes[name]
	m.mu.Unlock()
	if ok {
		return c, nil
	}

	data, err := m.resolver.Resolve(name)
	if err != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Class(name).Detail("class not found").Cause(err).Build()
	}
	file, err := classfile.Decode(data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, name)
	}
	if file.Name != name {
		return nil, errors.InvalidData(errors.PhaseRuntime, []string{name}, "resolved class is named "+file.Name)
	}
	for _, tr := range m.transformers {
		if file, err = tr(file); err != nil {
			return nil, err
		}
	}

	c = &Class{
		File:    file,
		Statics: make(map[string]Value),
		methods: make(map[string]*Method, len(file.Methods)),
	}
	if file.Super != "" {
		if c.Super, err = m.LoadClass(file.Super); err != nil {
			return nil, err
		}
		c.fields = append(c.fields, c.Super.fields...)
	}
	for _, iface := range file.Interfaces {
		ic, err := m.LoadClass(iface)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, ic)
	}
	for _, f := range file.Fields {
		if f.Flags&classfile.AccStatic != 0 {
			c.Statics[f.Name] = zeroValue(f.Desc)
		} else {
			c.fields = append(c.fields, f)
		}
	}
	for _, meth := range file.Methods {
		c.methods[meth.Key()] = newMethod(c, meth)
	}

	m.mu.Lock()
	if prev, ok := m.classes[name]; ok {
		m.mu.Unlock()
		return prev, nil
	}
	m.classes[name] = c
	m.mu.Unlock()

	Logger().Debug("class loaded", zap.String("class", name), zap.Int("methods", len(file.Methods)))
	return c, nil
}

// NewThread creates an execution context bound to ctx.
func (m *Machine) NewThread(ctx context.Context) *Thread {
	return &Thread{m: m, ctx: ctx}
}

// Invoke runs a static method on a fresh thread.
func (m *Machine) Invoke(ctx context.Context, class, name, desc string, args ...Value) (Value, error) {
	return m.NewThread(ctx).Invoke(class, name, desc, args...)
}

// NewObject allocates an instance of class and runs the constructor
// matching desc on a fresh thread.
func (m *Machine) NewObject(ctx context.Context, class, desc string, args ...Value) (*Object, error) {
	return m.NewThread(ctx).NewObject(class, desc, args...)
}

// NewCoroutine wraps a coro/SuspendableRunnable instance in a coroutine
// whose body calls its run method on t.
func (m *Machine) NewCoroutine(t *Thread, runnable *Object, opts ...coroutine.Option) *coroutine.Coroutine {
	return coroutine.New(func() error {
		_, err := t.InvokeVirtual(runnable, "run", "()V")
		return err
	}, opts...)
}

func (m *Machine) allocate(c *Class) *Object {
	obj := &Object{
		Class:  c,
		Fields: make(map[string]Value, len(c.fields)),
		id:     m.nextID.Add(1),
	}
	for _, f := range c.fields {
		obj.Fields[f.Name] = zeroValue(f.Desc)
	}
	return obj
}
