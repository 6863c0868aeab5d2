package vm

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/errors"
)

const mainSource = `
(class "demo/Main"
  (method "sum" "(I)I" (flags static)
    (code
      iconst 0
      istore 1
    $loop:
      iload 0
      ifle $done
      iload 1
      iload 0
      iadd
      istore 1
      iinc 0 -1
      goto $loop
    $done:
      iload 1
      ireturn))
  (method "safeDiv" "(II)I" (flags static)
    (code
    $try:
      iload 0
      iload 1
      idiv
    $end:
      ireturn
    $catch:
      pop
      iconst -1
      ireturn)
    (catch $try $end $catch "core/ArithmeticException"))
  (method "order" "()I" (flags static)
    (code
    $s:
      iconst 1
      iconst 0
      idiv
      ireturn
    $e:
    $a:
      pop
      iconst 1
      ireturn
    $b:
      pop
      iconst 2
      ireturn)
    (catch $s $e $a "core/RuntimeException")
    (catch $s $e $b "core/ArithmeticException"))
  (method "npe" "()I" (flags static)
    (code
    $s:
      aconst_null
      getfield "demo/Main" "x" "I"
      ireturn
    $e:
      pop
      iconst 7
      ireturn)
    (catch $s $e $e "core/NullPointerException"))
  (method "boom" "()V" (flags static)
    (code
      new "core/IllegalStateException"
      dup
      ldc "bad"
      invokespecial "core/IllegalStateException" "<init>" "(Lcore/String;)V"
      athrow))
  (method "hello" "()V" (flags static)
    (code
      new "core/StringBuilder"
      dup
      invokespecial "core/StringBuilder" "<init>" "()V"
      ldc "n="
      invokevirtual "core/StringBuilder" "append" "(Lcore/String;)Lcore/StringBuilder;"
      iconst 42
      invokevirtual "core/StringBuilder" "append" "(I)Lcore/StringBuilder;"
      dconst 1.0
      invokevirtual "core/StringBuilder" "append" "(D)Lcore/StringBuilder;"
      invokevirtual "core/StringBuilder" "toString" "()Lcore/String;"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return))
  (method "drive" "()V" (flags static)
    (code
      new "coro/Coroutine"
      dup
      new "demo/Parker"
      dup
      invokespecial "demo/Parker" "<init>" "()V"
      invokespecial "coro/Coroutine" "<init>" "(Lcoro/SuspendableRunnable;)V"
      astore 0
      aload 0
      invokevirtual "coro/Coroutine" "run" "()V"
      aload 0
      invokevirtual "coro/Coroutine" "getState" "()Lcore/String;"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      aload 0
      invokevirtual "coro/Coroutine" "run" "()V"
      aload 0
      invokevirtual "coro/Coroutine" "getState" "()Lcore/String;"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return))
  (method "escape" "()V" (flags static)
    (code
      new "demo/Parker"
      dup
      invokespecial "demo/Parker" "<init>" "()V"
      invokevirtual "demo/Parker" "run" "()V"
      return))
  (method "naiveYield" "()V" (flags static)
    (code
      invokestatic "coro/Coroutine" "yield" "()V"
      return))
  (method "reflect" "(Lcore/String;I)Lcore/Object;" (flags static)
    (code
      ldc "demo/Main"
      aload 0
      ldc "(I)I"
      invokestatic "core/reflect/Method" "lookup" "(Lcore/String;Lcore/String;Lcore/String;)Lcore/reflect/Method;"
      aconst_null
      iconst 1
      anewarray "core/Object"
      dup
      iconst 0
      iload 1
      aastore
      invokevirtual "core/reflect/Method" "invoke" "(Lcore/Object;[Lcore/Object;)Lcore/Object;"
      areturn))
  (method "reflectPair" "(Lcore/String;Lcore/String;Lcore/Object;Lcore/Object;)Lcore/Object;" (flags static)
    (code
      ldc "demo/Main"
      aload 0
      aload 1
      invokestatic "core/reflect/Method" "lookup" "(Lcore/String;Lcore/String;Lcore/String;)Lcore/reflect/Method;"
      aconst_null
      iconst 2
      anewarray "core/Object"
      dup
      iconst 0
      aload 2
      aastore
      dup
      iconst 1
      aload 3
      aastore
      invokevirtual "core/reflect/Method" "invoke" "(Lcore/Object;[Lcore/Object;)Lcore/Object;"
      areturn))
  (method "widen" "(JD)D" (flags static)
    (code
      lload 0
      l2d
      dload 1
      dadd
      dreturn))
  (method "thrower" "(I)I" (flags static)
    (code
      iload 0
      iconst 0
      idiv
      ireturn))
  (method "recurse" "(I)I" (flags static)
    (code
      iload 0
      iconst 1
      iadd
      invokestatic "demo/Main" "recurse" "(I)I"
      ireturn)))

(class "demo/Parker"
  (implements "coro/SuspendableRunnable")
  (method "<init>" "()V"
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      return))
  (method "run" "()V" (flags public) (throws "coro/SuspendExecution")
    (code
      invokestatic "coro/Stack" "getStack" "()Lcoro/Stack;"
      astore 1
      aload 1
      invokevirtual "coro/Stack" "nextMethodEntry" "()I"
      ifne $resume
      aload 1
      iconst 1
      iconst 0
      iconst 1
      invokevirtual "coro/Stack" "pushMethod" "(III)V"
      iconst 5
      aload 1
      iconst 0
      invokestatic "coro/Stack" "pushInt" "(ILcoro/Stack;I)V"
      getstatic "coro/Stack" "SUSPEND" "Lcoro/SuspendExecution;"
      athrow
    $resume:
      aload 1
      iconst 0
      invokevirtual "coro/Stack" "getInt" "(I)I"
      invokestatic "core/System" "println" "(I)V"
      aload 1
      invokevirtual "coro/Stack" "popMethod" "()V"
      return)))
`

func newMachine(t *testing.T, src string, opts ...Option) (*Machine, *bytes.Buffer) {
	t.Helper()
	classes, err := asm.AssembleAll(src)
	if err != nil {
		t.Fatalf("AssembleAll: %v", err)
	}
	cp := NewClassPath()
	for _, c := range classes {
		if err := cp.AddClass(c); err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}
	var out bytes.Buffer
	return New(cp, append([]Option{WithOutput(&out)}, opts...)...), &out
}

func TestInvoke(t *testing.T) {
	m, _ := newMachine(t, mainSource)
	ctx := context.Background()

	tests := []struct {
		name string
		meth string
		desc string
		args []Value
		want Value
	}{
		{"loop", "sum", "(I)I", []Value{int32(10)}, int32(55)},
		{"division", "safeDiv", "(II)I", []Value{int32(9), int32(3)}, int32(3)},
		{"caught division by zero", "safeDiv", "(II)I", []Value{int32(9), int32(0)}, int32(-1)},
		{"handlers in declaration order", "order", "()I", nil, int32(1)},
		{"null field access", "npe", "()I", nil, int32(7)},
		{"reflective call", "reflect", "(Lcore/String;I)Lcore/Object;", []Value{"sum", int32(4)}, int32(10)},
		{"reflective widening", "reflectPair", pairDesc, []Value{"widen", "(JD)D", int32(3), float32(0.5)}, float64(3.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Invoke(ctx, "demo/Main", tt.meth, tt.desc, tt.args...)
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v", got, got, tt.want)
			}
		})
	}
}

func TestUncaughtException(t *testing.T) {
	m, _ := newMachine(t, mainSource)

	_, err := m.Invoke(context.Background(), "demo/Main", "boom", "()V")
	var thrown *Throw
	if !stderrors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Throw", err)
	}
	if thrown.Object.ClassName() != "core/IllegalStateException" || thrown.Message() != "bad" {
		t.Errorf("thrown %s: %q", thrown.Object.ClassName(), thrown.Message())
	}
	if !strings.Contains(err.Error(), "uncaught core/IllegalStateException: bad") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestReflectWrapsTargetException(t *testing.T) {
	m, _ := newMachine(t, mainSource)

	_, err := m.Invoke(context.Background(), "demo/Main", "reflect", "(Lcore/String;I)Lcore/Object;", "thrower", int32(1))
	var thrown *Throw
	if !stderrors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Throw", err)
	}
	if got := thrown.Object.ClassName(); got != "core/reflect/InvocationTargetException" {
		t.Fatalf("thrown %s, want InvocationTargetException", got)
	}
	cause, ok := thrown.Object.Fields["cause"].(*Object)
	if !ok || cause.ClassName() != "core/ArithmeticException" {
		t.Errorf("cause = %v", thrown.Object.Fields["cause"])
	}
}

const pairDesc = "(Lcore/String;Lcore/String;Lcore/Object;Lcore/Object;)Lcore/Object;"

func TestReflectRejectsMismatchedArgument(t *testing.T) {
	m, _ := newMachine(t, mainSource)

	_, err := m.Invoke(context.Background(), "demo/Main", "reflectPair", pairDesc, "widen", "(JD)D", "x", float64(1))
	var thrown *Throw
	if !stderrors.As(err, &thrown) {
		t.Fatalf("err = %v, want *Throw", err)
	}
	if got := thrown.Object.ClassName(); got != "core/IllegalArgumentException" {
		t.Errorf("thrown %s, want IllegalArgumentException", got)
	}
}

func TestPrintln(t *testing.T) {
	m, out := newMachine(t, mainSource)
	if _, err := m.Invoke(context.Background(), "demo/Main", "hello", "()V"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := out.String(); got != "n=421.0\n" {
		t.Errorf("output = %q", got)
	}
}

func TestCoroutineObject(t *testing.T) {
	m, out := newMachine(t, mainSource)
	if _, err := m.Invoke(context.Background(), "demo/Main", "drive", "()V"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := out.String(); got != "suspended\n5\nfinished\n" {
		t.Errorf("output = %q", got)
	}
}

func TestNewCoroutine(t *testing.T) {
	m, out := newMachine(t, mainSource)
	th := m.NewThread(context.Background())

	parker, err := th.NewObject("demo/Parker", "()V")
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	co := m.NewCoroutine(th, parker)

	if err := co.Run(th); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if co.State() != coroutine.StateSuspended {
		t.Fatalf("state = %v, want suspended", co.State())
	}
	frames := co.Stack().Frames()
	if len(frames) != 1 || frames[0].Entry != 1 || frames[0].Prims[0] != 5 {
		t.Errorf("saved frames = %+v", frames)
	}
	if th.Stack() != nil {
		t.Error("ambient stack leaked out of the coroutine")
	}

	if err := co.Run(th); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if co.State() != coroutine.StateFinished || out.String() != "5\n" {
		t.Errorf("state = %v, output = %q", co.State(), out.String())
	}
}

func TestSuspendOutsideCoroutine(t *testing.T) {
	m, _ := newMachine(t, mainSource)
	_, err := m.Invoke(context.Background(), "demo/Main", "escape", "()V")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindState}) {
		t.Fatalf("err = %v, want runtime state error", err)
	}
	if !IsSuspend(err) {
		t.Error("error should still carry the suspend signal")
	}
}

func TestYieldNotInstrumented(t *testing.T) {
	m, _ := newMachine(t, mainSource)
	_, err := m.Invoke(context.Background(), "demo/Main", "naiveYield", "()V")
	if !stderrors.Is(err, coroutine.ErrNotInstrumented) {
		t.Fatalf("err = %v, want ErrNotInstrumented", err)
	}
}

func TestStackOverflow(t *testing.T) {
	m, _ := newMachine(t, mainSource, WithMaxDepth(64))
	_, err := m.Invoke(context.Background(), "demo/Main", "recurse", "(I)I", int32(0))
	var thrown *Throw
	if !stderrors.As(err, &thrown) || thrown.Object.ClassName() != "core/StackOverflowError" {
		t.Fatalf("err = %v, want StackOverflowError", err)
	}
}

func TestCancelledContext(t *testing.T) {
	m, _ := newMachine(t, mainSource)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Invoke(ctx, "demo/Main", "sum", "(I)I", int32(3)); !stderrors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTransformer(t *testing.T) {
	var seen []string
	tr := func(c *classfile.Class) (*classfile.Class, error) {
		seen = append(seen, c.Name)
		if c.Name == "demo/Main" {
			c.Method("sum", "(I)I").Code[0] = classfile.Int(100)
		}
		return c, nil
	}
	m, _ := newMachine(t, mainSource, WithTransformer(tr))

	got, err := m.Invoke(context.Background(), "demo/Main", "sum", "(I)I", int32(2))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != int32(103) {
		t.Errorf("transformed sum = %v, want 103", got)
	}
	if len(seen) == 0 || seen[0] != "demo/Main" {
		t.Errorf("transformer saw %v", seen)
	}
}

func TestClassPath(t *testing.T) {
	dir := t.TempDir()
	c, err := asm.Assemble(`(class "pkg/Disk" (method "one" "()I" (flags static) (code iconst 1 ireturn)))`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	data, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "Disk"+ClassExt), data, 0o644); err != nil {
		t.Fatal(err)
	}

	cp := NewClassPath(dir)
	names, err := cp.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 1 || names[0] != "pkg/Disk" {
		t.Errorf("names = %v", names)
	}

	if _, err := cp.Resolve("core/Object"); err != nil {
		t.Errorf("builtin not resolvable: %v", err)
	}
	if _, err := cp.Resolve("pkg/Missing"); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindNotFound}) {
		t.Errorf("missing class err = %v", err)
	}
	if _, err := cp.Resolve("../etc/passwd"); err == nil {
		t.Error("expected error for path escape")
	}

	got, err := New(cp).Invoke(context.Background(), "pkg/Disk", "one", "()I")
	if err != nil || got != int32(1) {
		t.Errorf("Invoke = %v, %v", got, err)
	}
}

func TestBuiltinsValidate(t *testing.T) {
	set := loadBuiltins()
	for _, name := range Builtins() {
		if err := set.classes[name].Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	for _, name := range []string{"core/Object", classfile.StackClass, classfile.SuspendClass, "core/reflect/InvocationTargetException"} {
		if _, ok := set.classes[name]; !ok {
			t.Errorf("builtin %s missing", name)
		}
	}
}

func TestSubclassing(t *testing.T) {
	m, _ := newMachine(t, mainSource)
	c, err := m.LoadClass(classfile.SuspendClass)
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	for _, name := range []string{"core/Exception", classfile.ThrowableClass, classfile.ObjectClass} {
		if !c.IsSubclassOf(name) {
			t.Errorf("SuspendExecution should extend %s", name)
		}
	}
	if c.IsSubclassOf("core/RuntimeException") {
		t.Error("SuspendExecution must not be a RuntimeException")
	}

	p, err := m.LoadClass("demo/Parker")
	if err != nil {
		t.Fatalf("LoadClass: %v", err)
	}
	if !p.IsSubclassOf("coro/SuspendableRunnable") {
		t.Error("Parker implements SuspendableRunnable")
	}
}
