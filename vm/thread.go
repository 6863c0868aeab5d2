package vm

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/errors"
)

// Thread executes methods. It is the ambient context of instrumented code:
// coro/Stack.getStack returns the thread's current frame stack.
type Thread struct {
	m     *Machine
	ctx   context.Context
	stack *coroutine.Stack
	depth int
}

// Stack returns the ambient frame stack, nil outside any coroutine.
func (t *Thread) Stack() *coroutine.Stack {
	return t.stack
}

// SetStack replaces the ambient frame stack.
func (t *Thread) SetStack(s *coroutine.Stack) {
	t.stack = s
}

// Machine returns the machine the thread runs on.
func (t *Thread) Machine() *Machine {
	return t.m
}

// Invoke runs a static method. A suspend signal reaching this level is
// reported as an error since no coroutine is there to park.
func (t *Thread) Invoke(class, name, desc string, args ...Value) (ret Value, err error) {
	defer t.recoverFault(&err)

	c, err := t.initClass(class)
	if err != nil {
		return nil, err
	}
	m := c.FindMethod(name, desc)
	if m == nil || !m.IsStatic() {
		return nil, errors.NotFound(errors.PhaseRuntime, "static method", class+"."+name+desc)
	}
	ret, err = t.call(m, args)
	if err != nil && IsSuspend(err) {
		return nil, errors.New(errors.PhaseRuntime, errors.KindState).
			Class(class).Method(name, desc).
			Detail("suspend signal escaped outside a coroutine").Cause(err).Build()
	}
	return ret, err
}

// InvokeVirtual dispatches name+desc on the receiver's class.
func (t *Thread) InvokeVirtual(recv Value, name, desc string, args ...Value) (ret Value, err error) {
	defer t.recoverFault(&err)

	m, err := t.virtualMethod(recv, name, desc)
	if err != nil {
		return nil, err
	}
	return t.call(m, append([]Value{recv}, args...))
}

// NewObject allocates an instance and runs the constructor matching desc.
func (t *Thread) NewObject(class, desc string, args ...Value) (obj *Object, err error) {
	defer t.recoverFault(&err)

	c, err := t.initClass(class)
	if err != nil {
		return nil, err
	}
	obj = t.m.allocate(c)
	ctor := c.FindMethod("<init>", desc)
	if ctor == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "constructor", class+"."+"<init>"+desc)
	}
	if _, err := t.call(ctor, append([]Value{obj}, args...)); err != nil {
		return nil, err
	}
	return obj, nil
}

// recoverFault turns a panic raised by malformed code into an error.
func (t *Thread) recoverFault(err *error) {
	if r := recover(); r != nil {
		*err = errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Detail("execution fault: %v", r).Build()
	}
}

// initClass loads a class and runs its static initializers, superclass
// first.
func (t *Thread) initClass(name string) (*Class, error) {
	c, err := t.m.LoadClass(name)
	if err != nil {
		return nil, err
	}
	if err := t.initialize(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *Thread) initialize(c *Class) error {
	if c.state != uninitialized {
		return nil
	}
	c.state = initializing
	if c.Super != nil {
		if err := t.initialize(c.Super); err != nil {
			return err
		}
	}
	if clinit, ok := c.methods["<clinit>()V"]; ok {
		if _, err := t.call(clinit, nil); err != nil {
			return err
		}
	}
	c.state = initialized
	return nil
}

// throwNew creates and returns an exception of class with message msg.
func (t *Thread) throwNew(class, msg string) error {
	c, err := t.initClass(class)
	if err != nil {
		return err
	}
	obj := t.m.allocate(c)
	if msg != "" {
		obj.Fields["message"] = msg
	}
	return &Throw{Object: obj}
}

func (t *Thread) throwCause(class string, cause error) error {
	err := t.throwNew(class, cause.Error())
	if th, ok := err.(*Throw); ok {
		th.cause = cause
	}
	return err
}

// classOf returns the class of a non-null reference.
func (t *Thread) classOf(v Value) (*Class, error) {
	switch v := v.(type) {
	case *Object:
		return v.Class, nil
	case string:
		return t.m.LoadClass(classfile.StringClass)
	case *Array:
		return t.m.LoadClass(classfile.ObjectClass)
	}
	return nil, errors.TypeMismatch(errors.PhaseRuntime, nil, "reference", fmt.Sprintf("%T", v))
}

// instanceOf reports whether non-null v is assignable to class.
func (t *Thread) instanceOf(v Value, class string) bool {
	if class == classfile.ObjectClass {
		return true
	}
	if arr, ok := v.(*Array); ok {
		return t.arrayAssignable(arr.Desc, class)
	}
	c, err := t.classOf(v)
	if err != nil {
		return false
	}
	return c.IsSubclassOf(class)
}

func (t *Thread) arrayAssignable(from, to string) bool {
	if from == to || to == classfile.ObjectClass {
		return true
	}
	if !classfile.IsArray(to) {
		return false
	}
	fe, te := classfile.ElementDesc(from), classfile.ElementDesc(to)
	if classfile.DescKind(fe) != classfile.KindRef || classfile.DescKind(te) != classfile.KindRef {
		return fe == te
	}
	if classfile.IsArray(fe) {
		return t.arrayAssignable(fe, classfile.ClassOf(te))
	}
	c, err := t.m.LoadClass(classfile.ClassOf(fe))
	if err != nil {
		return false
	}
	return c.IsSubclassOf(classfile.ClassOf(te))
}

func (t *Thread) virtualMethod(recv Value, name, desc string) (*Method, error) {
	if recv == nil {
		return nil, t.throwNew("core/NullPointerException", "invoke "+name+" on null")
	}
	c, err := t.classOf(recv)
	if err != nil {
		return nil, err
	}
	m := c.FindMethod(name, desc)
	if m == nil {
		m = c.findInterfaceMethod(name, desc)
	}
	if m == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "method", c.Name()+"."+name+desc)
	}
	return m, nil
}

// call runs m with args, the receiver first for instance methods.
func (t *Thread) call(m *Method, args []Value) (Value, error) {
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}
	if m.IsNative() {
		fn, ok := t.m.native(m.Owner.Name(), m.Name, m.Desc)
		if !ok {
			return nil, errors.NotFound(errors.PhaseRuntime, "native", m.Owner.Name()+"."+m.Name+m.Desc)
		}
		return fn(t, args)
	}
	if m.IsAbstract() {
		return nil, errors.New(errors.PhaseRuntime, errors.KindState).
			Class(m.Owner.Name()).Method(m.Name, m.Desc).Detail("abstract method called").Build()
	}
	if t.depth >= t.m.maxDepth {
		return nil, t.throwNew("core/StackOverflowError", "")
	}
	t.depth++
	defer func() { t.depth-- }()
	return t.execute(m, args)
}

// handlerFor returns the instruction index of the first range covering pc
// whose filter matches the thrown object.
func (t *Thread) handlerFor(m *Method, pc int, thrown *Throw) (int, bool) {
	for _, h := range m.handlers {
		if pc < h.start || pc >= h.end {
			continue
		}
		if h.typ == "" || thrown.Object.Class.IsSubclassOf(h.typ) {
			return h.tgt, true
		}
	}
	return 0, false
}

type frame struct {
	locals []Value
	stack  []Value
}

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popInt() int32     { return f.pop().(int32) }
func (f *frame) popLong() int64    { return f.pop().(int64) }
func (f *frame) popFloat() float32 { return f.pop().(float32) }
func (f *frame) popDouble() float64 {
	return f.pop().(float64)
}

// popArgs removes n values and returns them in push order.
func (f *frame) popArgs(n int) []Value {
	args := make([]Value, n)
	copy(args, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return args
}

func (t *Thread) execute(m *Method, args []Value) (Value, error) {
	f := &frame{
		locals: make([]Value, m.MaxLocals),
		stack:  make([]Value, 0, m.MaxStack),
	}
	copy(f.locals, args)

	code := m.Code
	pc := 0
	for pc < len(code) {
		instr := code[pc]
		next, ret, done, err := t.step(m, f, instr, pc)
		if err != nil {
			var thrown *Throw
			if !stderrors.As(err, &thrown) {
				return nil, err
			}
			h, ok := t.handlerFor(m, pc, thrown)
			if !ok {
				return nil, err
			}
			f.stack = append(f.stack[:0], thrown.Object)
			pc = h
			continue
		}
		if done {
			return ret, nil
		}
		pc = next
	}
	return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidData).
		Class(m.Owner.Name()).Method(m.Name, m.Desc).Detail("fell off the end of the code").Build()
}
