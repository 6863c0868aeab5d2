package vm

import (
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/errors"
)

// coroutineHandle is the host state behind a coro/Coroutine object.
type coroutineHandle struct {
	co       *coroutine.Coroutine
	runnable *Object
	thread   *Thread
}

func registerNatives(m *Machine) {
	registerCore(m)
	registerReflect(m)
	registerStack(m)
	registerCoroutine(m)
}

func registerCore(m *Machine) {
	m.Register("core/Object", "hashCode", "()I", func(t *Thread, args []Value) (Value, error) {
		return int32(args[0].(*Object).id), nil
	})
	m.Register("core/Object", "toString", "()Lcore/String;", func(t *Thread, args []Value) (Value, error) {
		obj := args[0].(*Object)
		return fmt.Sprintf("%s@%x", obj.ClassName(), obj.id), nil
	})
	for _, desc := range []string{"()V", "(J)V", "(JI)V"} {
		m.Register("core/Object", "wait", desc, func(t *Thread, args []Value) (Value, error) {
			return nil, t.throwNew("core/UnsupportedOperationException", "wait is not supported on a single-threaded machine")
		})
	}
	m.Register("core/Object", "notify", "()V", func(t *Thread, args []Value) (Value, error) {
		return nil, nil
	})
	m.Register("core/Throwable", "toString", "()Lcore/String;", func(t *Thread, args []Value) (Value, error) {
		th := &Throw{Object: args[0].(*Object)}
		if msg := th.Message(); msg != "" {
			return th.Object.ClassName() + ": " + msg, nil
		}
		return th.Object.ClassName(), nil
	})

	m.Register("core/String", "length", "()I", func(t *Thread, args []Value) (Value, error) {
		return int32(utf8.RuneCountInString(args[0].(string))), nil
	})
	m.Register("core/String", "concat", "(Lcore/String;)Lcore/String;", func(t *Thread, args []Value) (Value, error) {
		s, ok := args[1].(string)
		if !ok {
			return nil, t.throwNew("core/NullPointerException", "concat of null")
		}
		return args[0].(string) + s, nil
	})
	m.Register("core/String", "equals", "(Lcore/Object;)Z", func(t *Thread, args []Value) (Value, error) {
		s, ok := args[1].(string)
		return boolValue(ok && s == args[0].(string)), nil
	})
	m.Register("core/String", "hashCode", "()I", func(t *Thread, args []Value) (Value, error) {
		var h int32
		for _, r := range args[0].(string) {
			h = 31*h + int32(r)
		}
		return h, nil
	})
	for _, desc := range []string{"(I)Lcore/String;", "(J)Lcore/String;", "(F)Lcore/String;", "(D)Lcore/String;", "(Lcore/Object;)Lcore/String;"} {
		m.Register("core/String", "valueOf", desc, func(t *Thread, args []Value) (Value, error) {
			return t.stringify(args[0])
		})
	}

	m.Register("core/StringBuilder", "<init>", "()V", func(t *Thread, args []Value) (Value, error) {
		args[0].(*Object).Native = &strings.Builder{}
		return nil, nil
	})
	for _, desc := range []string{"(Lcore/String;)", "(Lcore/Object;)", "(I)", "(J)", "(F)", "(D)"} {
		m.Register("core/StringBuilder", "append", desc+"Lcore/StringBuilder;", func(t *Thread, args []Value) (Value, error) {
			s, err := t.stringify(args[1])
			if err != nil {
				return nil, err
			}
			args[0].(*Object).Native.(*strings.Builder).WriteString(s)
			return args[0], nil
		})
	}
	m.Register("core/StringBuilder", "toString", "()Lcore/String;", func(t *Thread, args []Value) (Value, error) {
		return args[0].(*Object).Native.(*strings.Builder).String(), nil
	})

	printer := func(newline bool) Native {
		return func(t *Thread, args []Value) (Value, error) {
			s, err := t.stringify(args[0])
			if err != nil {
				return nil, err
			}
			if newline {
				s += "\n"
			}
			t.m.outMu.Lock()
			defer t.m.outMu.Unlock()
			_, err = io.WriteString(t.m.out, s)
			return nil, err
		}
	}
	m.Register("core/System", "print", "(Lcore/Object;)V", printer(false))
	for _, desc := range []string{"(Lcore/Object;)V", "(I)V", "(J)V", "(F)V", "(D)V"} {
		m.Register("core/System", "println", desc, printer(true))
	}

	sleep := func(t *Thread, args []Value) (Value, error) {
		timer := time.NewTimer(time.Duration(args[0].(int64)) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil, nil
		case <-t.ctx.Done():
			return nil, t.throwCause("core/InterruptedException", t.ctx.Err())
		}
	}
	m.Register("core/Thread", "sleep", "(J)V", sleep)
	m.Register("core/Thread", "sleep", "(JI)V", sleep)
	for _, desc := range []string{"()V", "(J)V", "(JI)V"} {
		m.Register("core/Thread", "join", desc, func(t *Thread, args []Value) (Value, error) {
			return nil, nil
		})
	}
}

func registerReflect(m *Machine) {
	m.Register("core/reflect/Method", "lookup", "(Lcore/String;Lcore/String;Lcore/String;)Lcore/reflect/Method;", func(t *Thread, args []Value) (Value, error) {
		owner, _ := args[0].(string)
		name, _ := args[1].(string)
		desc, _ := args[2].(string)
		c, err := t.initClass(owner)
		if err != nil {
			return nil, t.throwCause("core/IllegalArgumentException", err)
		}
		target := c.FindMethod(name, desc)
		if target == nil {
			return nil, t.throwNew("core/IllegalArgumentException", "no method "+owner+"."+name+desc)
		}
		mc, err := t.initClass("core/reflect/Method")
		if err != nil {
			return nil, err
		}
		obj := t.m.allocate(mc)
		obj.Native = target
		return obj, nil
	})
	m.Register("core/reflect/Method", "getName", "()Lcore/String;", func(t *Thread, args []Value) (Value, error) {
		return args[0].(*Object).Native.(*Method).Name, nil
	})
	m.Register("core/reflect/Method", "invoke", "(Lcore/Object;[Lcore/Object;)Lcore/Object;", func(t *Thread, args []Value) (Value, error) {
		return t.reflectCall(args[0], args[1], args[2], false)
	})
}

// reflectCall invokes the method behind a core/reflect/Method object.
// Exceptions thrown by the target are wrapped in
// InvocationTargetException; passSuspend lets the suspend signal through
// unwrapped.
func (t *Thread) reflectCall(method, recv, argArray Value, passSuspend bool) (Value, error) {
	mo, ok := method.(*Object)
	if !ok {
		return nil, t.throwNew("core/NullPointerException", "invoke of null method")
	}
	target := mo.Native.(*Method)

	var args []Value
	if !target.IsStatic() {
		if recv == nil {
			return nil, t.throwNew("core/NullPointerException", "invoke "+target.Name+" on null")
		}
		if !t.instanceOf(recv, target.Owner.Name()) {
			return nil, t.throwNew("core/IllegalArgumentException", "receiver is not an instance of "+target.Owner.Name())
		}
		args = append(args, recv)
	}
	if arr, ok := argArray.(*Array); ok {
		args = append(args, arr.Elems...)
	}
	md, err := classfile.ParseMethodDesc(target.Desc)
	if err != nil {
		return nil, err
	}
	off := btoi(!target.IsStatic())
	if len(args) != len(md.Params)+off {
		return nil, t.throwNew("core/IllegalArgumentException", "wrong number of arguments")
	}
	for i, p := range md.Params {
		v, ok := unbox(classfile.DescKind(p), args[off+i])
		if !ok {
			return nil, t.throwNew("core/IllegalArgumentException", fmt.Sprintf("argument %d does not match %s", i, p))
		}
		args[off+i] = v
	}

	callee := target
	if !target.IsStatic() && target.Name != "<init>" {
		if callee, err = t.virtualMethod(recv, target.Name, target.Desc); err != nil {
			return nil, err
		}
	}
	ret, err := t.call(callee, args)
	if err == nil {
		return ret, nil
	}
	var thrown *Throw
	if !stderrors.As(err, &thrown) || passSuspend && IsSuspend(err) {
		return nil, err
	}
	wrapped, werr := t.initClass("core/reflect/InvocationTargetException")
	if werr != nil {
		return nil, werr
	}
	obj := t.m.allocate(wrapped)
	obj.Fields["cause"] = thrown.Object
	return nil, &Throw{Object: obj, cause: err}
}

// unbox converts a reflective argument to the slot kind of its parameter,
// widening primitives the way a direct call site would.
func unbox(k classfile.SlotKind, v Value) (Value, bool) {
	switch k {
	case classfile.KindInt:
		x, ok := v.(int32)
		return x, ok
	case classfile.KindLong:
		switch x := v.(type) {
		case int32:
			return int64(x), true
		case int64:
			return x, true
		}
	case classfile.KindFloat:
		switch x := v.(type) {
		case int32:
			return float32(x), true
		case int64:
			return float32(x), true
		case float32:
			return x, true
		}
	case classfile.KindDouble:
		switch x := v.(type) {
		case int32:
			return float64(x), true
		case int64:
			return float64(x), true
		case float32:
			return float64(x), true
		case float64:
			return x, true
		}
	default:
		return v, true
	}
	return nil, false
}

func registerStack(m *Machine) {
	stackOf := func(v Value) *coroutine.Stack {
		return v.(*Object).Native.(*coroutine.Stack)
	}

	m.Register(classfile.StackClass, "getStack", "()Lcoro/Stack;", func(t *Thread, args []Value) (Value, error) {
		if t.stack == nil {
			// Instrumented code called outside any coroutine runs against
			// a stack of its own.
			t.stack = coroutine.NewStack(coroutine.DefaultStackSize)
		}
		c, err := t.initClass(classfile.StackClass)
		if err != nil {
			return nil, err
		}
		obj := t.m.allocate(c)
		obj.Native = t.stack
		return obj, nil
	})
	m.Register(classfile.StackClass, "nextMethodEntry", "()I", func(t *Thread, args []Value) (Value, error) {
		return int32(stackOf(args[0]).NextMethodEntry()), nil
	})
	m.Register(classfile.StackClass, "pushMethod", "(III)V", func(t *Thread, args []Value) (Value, error) {
		stackOf(args[0]).PushMethod(int(args[1].(int32)), int(args[2].(int32)), int(args[3].(int32)))
		return nil, nil
	})
	m.Register(classfile.StackClass, "popMethod", "()V", func(t *Thread, args []Value) (Value, error) {
		stackOf(args[0]).PopMethod()
		return nil, nil
	})

	m.Register(classfile.StackClass, "pushInt", "(ILcoro/Stack;I)V", func(t *Thread, args []Value) (Value, error) {
		stackOf(args[1]).SetInt(int(args[2].(int32)), args[0].(int32))
		return nil, nil
	})
	m.Register(classfile.StackClass, "pushLong", "(JLcoro/Stack;I)V", func(t *Thread, args []Value) (Value, error) {
		stackOf(args[1]).SetLong(int(args[2].(int32)), args[0].(int64))
		return nil, nil
	})
	m.Register(classfile.StackClass, "pushFloat", "(FLcoro/Stack;I)V", func(t *Thread, args []Value) (Value, error) {
		stackOf(args[1]).SetFloat(int(args[2].(int32)), args[0].(float32))
		return nil, nil
	})
	m.Register(classfile.StackClass, "pushDouble", "(DLcoro/Stack;I)V", func(t *Thread, args []Value) (Value, error) {
		stackOf(args[1]).SetDouble(int(args[2].(int32)), args[0].(float64))
		return nil, nil
	})
	m.Register(classfile.StackClass, "pushObject", "(Lcore/Object;Lcoro/Stack;I)V", func(t *Thread, args []Value) (Value, error) {
		stackOf(args[1]).SetObject(int(args[2].(int32)), args[0])
		return nil, nil
	})

	m.Register(classfile.StackClass, "getInt", "(I)I", func(t *Thread, args []Value) (Value, error) {
		return stackOf(args[0]).Int(int(args[1].(int32))), nil
	})
	m.Register(classfile.StackClass, "getLong", "(I)J", func(t *Thread, args []Value) (Value, error) {
		return stackOf(args[0]).Long(int(args[1].(int32))), nil
	})
	m.Register(classfile.StackClass, "getFloat", "(I)F", func(t *Thread, args []Value) (Value, error) {
		return stackOf(args[0]).Float(int(args[1].(int32))), nil
	})
	m.Register(classfile.StackClass, "getDouble", "(I)D", func(t *Thread, args []Value) (Value, error) {
		return stackOf(args[0]).Double(int(args[1].(int32))), nil
	})
	m.Register(classfile.StackClass, "getObject", "(I)Lcore/Object;", func(t *Thread, args []Value) (Value, error) {
		return stackOf(args[0]).Object(int(args[1].(int32))), nil
	})
}

func registerCoroutine(m *Machine) {
	ctor := func(t *Thread, args []Value) (Value, error) {
		runnable, ok := args[1].(*Object)
		if !ok {
			return nil, t.throwNew("core/NullPointerException", "coroutine of null runnable")
		}
		var opts []coroutine.Option
		if len(args) > 2 {
			opts = append(opts, coroutine.WithStackSize(int(args[2].(int32))))
		}
		h := &coroutineHandle{runnable: runnable}
		h.co = coroutine.New(func() error {
			_, err := h.thread.InvokeVirtual(h.runnable, "run", "()V")
			return err
		}, append(opts, coroutine.WithName(runnable.ClassName()))...)
		args[0].(*Object).Native = h
		return nil, nil
	}
	m.Register(classfile.CoroutineClass, "<init>", "(Lcoro/SuspendableRunnable;)V", ctor)
	m.Register(classfile.CoroutineClass, "<init>", "(Lcoro/SuspendableRunnable;I)V", ctor)

	m.Register(classfile.CoroutineClass, "run", "()V", func(t *Thread, args []Value) (Value, error) {
		h := args[0].(*Object).Native.(*coroutineHandle)
		h.thread = t
		err := h.co.Run(t)
		if stderrors.Is(err, coroutine.ErrRunning) || stderrors.Is(err, coroutine.ErrFinished) {
			return nil, t.throwCause("core/IllegalStateException", err)
		}
		return nil, err
	})
	m.Register(classfile.CoroutineClass, "getState", "()Lcore/String;", func(t *Thread, args []Value) (Value, error) {
		return args[0].(*Object).Native.(*coroutineHandle).co.State().String(), nil
	})
	m.Register(classfile.CoroutineClass, "yield", "()V", func(t *Thread, args []Value) (Value, error) {
		return nil, t.throwCause("core/IllegalStateException", coroutine.ErrNotInstrumented)
	})
	m.Register(classfile.CoroutineClass, "reflectInvoke", "(Lcore/reflect/Method;Lcore/Object;[Lcore/Object;)Lcore/Object;", func(t *Thread, args []Value) (Value, error) {
		return t.reflectCall(args[0], args[1], args[2], true)
	})
}

// stringify renders a value the way core/System prints it.
func (t *Thread) stringify(v Value) (string, error) {
	switch v := v.(type) {
	case nil:
		return "null", nil
	case string:
		return v, nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float32:
		return formatFloat(float64(v), 32), nil
	case float64:
		return formatFloat(v, 64), nil
	case *Array:
		return fmt.Sprintf("%s@%p", v.Desc, v), nil
	case *Object:
		s, err := t.InvokeVirtual(v, "toString", "()Lcore/String;")
		if err != nil {
			return "", err
		}
		str, _ := s.(string)
		return str, nil
	}
	return "", errors.TypeMismatch(errors.PhaseRuntime, nil, "value", fmt.Sprintf("%T", v))
}

func formatFloat(v float64, bits int) string {
	if !math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v) && math.Abs(v) < 1e7 {
		return strconv.FormatFloat(v, 'f', 1, bits)
	}
	return strconv.FormatFloat(v, 'g', -1, bits)
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
