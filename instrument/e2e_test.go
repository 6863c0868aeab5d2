package instrument_test

import (
	"bytes"
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/instrument"
	"github.com/wippyai/resumable/vm"
)

const libSource = `
(class "e/Lib"
  (method "two" "()I" (flags static) (throws "coro/SuspendExecution")
    (code
      ldc "eval"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      invokestatic "coro/Coroutine" "yield" "()V"
      iconst 2
      ireturn))
  (method "four" "()I" (flags static) (throws "coro/SuspendExecution")
    (code
      invokestatic "e/Lib" "two" "()I"
      invokestatic "e/Lib" "two" "()I"
      iadd
      ireturn))
  (method "count" "(I)I" (flags static) (throws "coro/SuspendExecution")
    (code
      iload 0
      ifne $rec
      invokestatic "coro/Coroutine" "yield" "()V"
      iconst 0
      ireturn
    $rec:
      iload 0
      iconst 1
      isub
      invokestatic "e/Lib" "count" "(I)I"
      iconst 1
      iadd
      ireturn))
  (method "greet" "(Lcore/String;)Lcore/String;" (flags static) (throws "coro/SuspendExecution")
    (code
      invokestatic "coro/Coroutine" "yield" "()V"
      ldc "hi "
      aload 0
      invokevirtual "core/String" "concat" "(Lcore/String;)Lcore/String;"
      areturn))
  (method "fail" "(I)V" (flags static) (throws "coro/SuspendExecution")
    (code
      iload 0
      ifeq $now
      invokestatic "coro/Coroutine" "yield" "()V"
    $now:
      new "core/IllegalStateException"
      dup
      ldc "boom"
      invokespecial "core/IllegalStateException" "<init>" "(Lcore/String;)V"
      athrow)))

(class "e/Animal" (flags public abstract)
  (method "<init>" "()V"
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      return))
  (method "name" "()Lcore/String;" (flags public abstract) (throws "coro/SuspendExecution")))

(class "e/Dog" (super "e/Animal")
  (method "<init>" "()V"
    (code
      aload 0
      invokespecial "e/Animal" "<init>" "()V"
      return))
  (method "name" "()Lcore/String;" (flags public) (throws "coro/SuspendExecution")
    (code
      invokestatic "coro/Coroutine" "yield" "()V"
      ldc "dog"
      areturn)))

(class "e/Cat" (super "e/Animal")
  (method "<init>" "()V"
    (code
      aload 0
      invokespecial "e/Animal" "<init>" "()V"
      return))
  (method "name" "()Lcore/String;" (flags public) (throws "coro/SuspendExecution")
    (code
      ldc "cat"
      areturn)))

(class "e/Pair"
  (field "v" "I")
  (field "w" "J")
  (method "<init>" "(I)V"
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      aload 0
      iload 1
      putfield "e/Pair" "v" "I"
      return))
  (method "<init>" "(IJ)V"
    (code
      aload 0
      iload 1
      invokespecial "e/Pair" "<init>" "(I)V"
      aload 0
      lload 2
      putfield "e/Pair" "w" "J"
      return))
  (method "<init>" "(Le/Pair;)V"
    (code
      aload 0
      aload 1
      getfield "e/Pair" "v" "I"
      iconst 10
      iadd
      invokespecial "e/Pair" "<init>" "(I)V"
      return))
  (method "show" "()V" (flags public)
    (code
      aload 0
      getfield "e/Pair" "v" "I"
      invokestatic "core/System" "println" "(I)V"
      aload 0
      getfield "e/Pair" "w" "J"
      invokestatic "core/System" "println" "(J)V"
      return)))
`

// runnable wraps body as the run method of a coro/SuspendableRunnable with
// an int field named flag.
func runnable(name, body string) string {
	return `
(class "` + name + `"
  (implements "coro/SuspendableRunnable")
  (field "flag" "I")
  (method "<init>" "()V"
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      return))
  (method "<init>" "(I)V"
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      aload 0
      iload 1
      putfield "` + name + `" "flag" "I"
      return))
  (method "run" "()V" (flags public) (throws "coro/SuspendExecution")
    (code` + body + `)))
`
}

var programs = runnable("e/Values", `
      iconst 7
      istore 1
      lconst 1234567890123
      lstore 2
      fconst 1.5
      fstore 3
      dconst 2.25
      dstore 4
      ldc "text"
      astore 5
      invokestatic "coro/Coroutine" "yield" "()V"
      iload 1
      invokestatic "core/System" "println" "(I)V"
      lload 2
      invokestatic "core/System" "println" "(J)V"
      fload 3
      invokestatic "core/System" "println" "(F)V"
      dload 4
      invokestatic "core/System" "println" "(D)V"
      aload 5
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return`) +
	runnable("e/Operands", `
      lconst 40
      ldc "sum="
      iconst 1
      invokestatic "e/Lib" "two" "()I"
      iadd
      istore 1
      invokestatic "core/System" "print" "(Lcore/Object;)V"
      iload 1
      i2l
      ladd
      invokestatic "core/System" "println" "(J)V"
      return`) +
	runnable("e/Late", `
      invokestatic "coro/Coroutine" "yield" "()V"
      iconst 7
      istore 1
      invokestatic "coro/Coroutine" "yield" "()V"
      iload 1
      invokestatic "core/System" "println" "(I)V"
      return`) +
	runnable("e/Guarded", `
      ldc "0"
      invokestatic "core/System" "print" "(Lcore/Object;)V"
    $s:
      ldc "1"
      invokestatic "core/System" "print" "(Lcore/Object;)V"
      invokestatic "coro/Coroutine" "yield" "()V"
      ldc "2"
      invokestatic "core/System" "print" "(Lcore/Object;)V"
      aload 0
      getfield "e/Guarded" "flag" "I"
      ifeq $ok
      new "core/IllegalStateException"
      dup
      ldc "x"
      invokespecial "core/IllegalStateException" "<init>" "(Lcore/String;)V"
      athrow
    $ok:
      ldc "4"
      invokestatic "core/System" "print" "(Lcore/Object;)V"
    $e:
      goto $finally
    $h:
      pop
      ldc "3"
      invokestatic "core/System" "print" "(Lcore/Object;)V"
    $finally:
      ldc "5"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return
    $any:
      astore 1
      ldc "F"
      invokestatic "core/System" "print" "(Lcore/Object;)V"
      aload 1
      athrow)
    (catch $s $e $h "core/IllegalStateException")
    (catch $s $e $any any`) +
	runnable("e/Caught", `
      ldc "a"
      invokestatic "core/System" "print" "(Lcore/Object;)V"
    $s:
      aload 0
      getfield "e/Caught" "flag" "I"
      invokestatic "e/Lib" "fail" "(I)V"
    $e:
      return
    $h:
      pop
      ldc "caught"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return)
    (catch $s $e $h "core/IllegalStateException"`) +
	runnable("e/Deferred", `
      new "e/Pair"
      dup
      invokestatic "e/Lib" "two" "()I"
      invokespecial "e/Pair" "<init>" "(I)V"
      invokevirtual "e/Pair" "show" "()V"
      return`) +
	runnable("e/Deferred2", `
      new "e/Pair"
      dup
      invokestatic "e/Lib" "two" "()I"
      lconst 40
      invokespecial "e/Pair" "<init>" "(IJ)V"
      invokevirtual "e/Pair" "show" "()V"
      return`) +
	runnable("e/DeferredNested", `
      new "e/Pair"
      dup
      new "e/Pair"
      dup
      invokestatic "e/Lib" "two" "()I"
      invokespecial "e/Pair" "<init>" "(I)V"
      invokespecial "e/Pair" "<init>" "(Le/Pair;)V"
      invokevirtual "e/Pair" "show" "()V"
      return`) +
	runnable("e/Nested", `
      invokestatic "e/Lib" "four" "()I"
      invokestatic "core/System" "println" "(I)V"
      return`) +
	runnable("e/Recursive", `
      iconst 10
      invokestatic "e/Lib" "count" "(I)I"
      invokestatic "core/System" "println" "(I)V"
      return`) +
	runnable("e/Merged", `
      aload 0
      getfield "e/Merged" "flag" "I"
      ifeq $cat
      new "e/Dog"
      dup
      invokespecial "e/Dog" "<init>" "()V"
      astore 1
      goto $join
    $cat:
      new "e/Cat"
      dup
      invokespecial "e/Cat" "<init>" "()V"
      astore 1
    $join:
      invokestatic "coro/Coroutine" "yield" "()V"
      aload 1
      invokevirtual "e/Animal" "name" "()Lcore/String;"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return`) +
	runnable("e/Reflective", `
      ldc "e/Lib"
      ldc "greet"
      ldc "(Lcore/String;)Lcore/String;"
      invokestatic "core/reflect/Method" "lookup" "(Lcore/String;Lcore/String;Lcore/String;)Lcore/reflect/Method;"
      aconst_null
      iconst 1
      anewarray "core/Object"
      dup
      iconst 0
      ldc "bob"
      aastore
      invokevirtual "core/reflect/Method" "invoke" "(Lcore/Object;[Lcore/Object;)Lcore/Object;"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return`)

func newMachine(t *testing.T, cfg instrument.Config) (*vm.Machine, *bytes.Buffer, *observer.ObservedLogs) {
	t.Helper()
	classes, err := asm.AssembleAll(libSource + programs)
	if err != nil {
		t.Fatalf("AssembleAll: %v", err)
	}
	cp := vm.NewClassPath()
	for _, c := range classes {
		if err := cp.AddClass(c); err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}

	core, logs := observer.New(zapcore.DebugLevel)
	cfg.Resolver = cp
	cfg.Logger = zap.New(core)
	cfg.Check = true
	in := instrument.New(cfg)

	var out bytes.Buffer
	m := vm.New(cp, vm.WithTransformer(in.Transformer()), vm.WithOutput(&out))
	return m, &out, logs
}

// drive runs a fresh instance of class as a coroutine until it finishes and
// returns the number of times it suspended.
func drive(t *testing.T, m *vm.Machine, class string, flag int32, opts ...coroutine.Option) int {
	t.Helper()
	th := m.NewThread(context.Background())
	obj, err := th.NewObject(class, "(I)V", flag)
	if err != nil {
		t.Fatalf("NewObject(%s): %v", class, err)
	}
	co := m.NewCoroutine(th, obj, opts...)

	suspends := 0
	for {
		if err := co.Run(th); err != nil {
			t.Fatalf("Run(%s): %v", class, err)
		}
		if co.State() == coroutine.StateFinished {
			return suspends
		}
		suspends++
		if suspends > 100 {
			t.Fatalf("%s did not finish", class)
		}
	}
}

func TestResume(t *testing.T) {
	tests := []struct {
		class    string
		flag     int32
		want     string
		suspends int
	}{
		{"e/Values", 0, "7\n1234567890123\n1.5\n2.25\ntext\n", 1},
		{"e/Operands", 0, "eval\nsum=43\n", 1},
		{"e/Late", 0, "7\n", 2},
		{"e/Guarded", 0, "01245\n", 1},
		{"e/Guarded", 1, "01235\n", 1},
		{"e/Caught", 0, "acaught\n", 0},
		{"e/Caught", 1, "acaught\n", 1},
		{"e/Deferred", 0, "eval\n2\n0\n", 1},
		{"e/Deferred2", 0, "eval\n2\n40\n", 1},
		{"e/DeferredNested", 0, "eval\n12\n0\n", 1},
		{"e/Nested", 0, "eval\neval\n4\n", 2},
		{"e/Recursive", 0, "10\n", 1},
		{"e/Merged", 1, "dog\n", 2},
		{"e/Merged", 0, "cat\n", 1},
		{"e/Reflective", 0, "hi bob\n", 1},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			m, out, logs := newMachine(t, instrument.Config{})
			got := drive(t, m, tt.class, tt.flag)
			if got != tt.suspends {
				t.Errorf("suspends = %d, want %d", got, tt.suspends)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
			if n := logs.FilterLevelExact(zapcore.ErrorLevel).Len(); n != 0 {
				t.Errorf("%d errors logged: %v", n, logs.FilterLevelExact(zapcore.ErrorLevel).All())
			}
		})
	}
}

func TestResumeWithSmallFrameStack(t *testing.T) {
	m, out, _ := newMachine(t, instrument.Config{})
	if got := drive(t, m, "e/Recursive", 0, coroutine.WithStackSize(2)); got != 1 {
		t.Errorf("suspends = %d, want 1", got)
	}
	if out.String() != "10\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestInstrumentedOutsideCoroutine(t *testing.T) {
	m, out, _ := newMachine(t, instrument.Config{})
	v, err := m.Invoke(context.Background(), "e/Lib", "count", "(I)I", int32(0))
	if !vm.IsSuspend(err) {
		t.Fatalf("Invoke = %v, %v; want the suspend signal", v, err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q", out.String())
	}
}
