package instrument_test

import (
	stderrors "errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
	"github.com/wippyai/resumable/instrument"
	"github.com/wippyai/resumable/vm"
)

const driverSource = `
(class "d/Lib"
  (method "step" "()V" (flags static) (throws "coro/SuspendExecution")
    (code
      invokestatic "coro/Coroutine" "yield" "()V"
      return)))

(class "d/Subject"
  (method "<init>" "()V" (throws "coro/SuspendExecution")
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      invokestatic "d/Lib" "step" "()V"
      return))
  (method "plain" "()V" (flags static)
    (code
      invokestatic "d/Lib" "step" "()V"
      return))
  (method "idle" "()V" (flags static) (throws "coro/SuspendExecution")
    (code return))
  (method "abstractish" "()V" (flags static native) (throws "coro/SuspendExecution"))
  (method "work" "()V" (flags static) (throws "coro/SuspendExecution")
    (code
      invokestatic "d/Lib" "step" "()V"
      return))
  (method "locked" "()V" (flags static synchronized) (throws "coro/SuspendExecution")
    (code
      invokestatic "d/Lib" "step" "()V"
      return))
  (method "sleepy" "()V" (flags static) (throws "coro/SuspendExecution")
    (code
      lconst 5
      invokestatic "core/Thread" "sleep" "(J)V"
      invokestatic "d/Lib" "step" "()V"
      return))
  (method "unknown" "()V" (flags static) (throws "coro/SuspendExecution")
    (code
      invokestatic "d/Missing" "a" "()V"
      invokestatic "d/Missing" "b" "()V"
      return)))

(class "d/Other"
  (method "work" "()V" (flags static) (throws "coro/SuspendExecution")
    (code
      invokestatic "d/Lib" "step" "()V"
      invokestatic "d/Lib" "step" "()V"
      return)))
`

type countingResolver struct {
	cp    *vm.ClassPath
	mu    sync.Mutex
	calls map[string]int
}

func (r *countingResolver) Resolve(name string) ([]byte, error) {
	r.mu.Lock()
	r.calls[name]++
	r.mu.Unlock()
	return r.cp.Resolve(name)
}

type driverFixture struct {
	classes  map[string]*classfile.Class
	resolver *countingResolver
	logs     *observer.ObservedLogs
	in       *instrument.Instrumenter
}

func newDriver(t *testing.T, cfg instrument.Config) *driverFixture {
	t.Helper()
	classes, err := asm.AssembleAll(driverSource)
	if err != nil {
		t.Fatalf("AssembleAll: %v", err)
	}
	cp := vm.NewClassPath()
	byName := make(map[string]*classfile.Class)
	for _, c := range classes {
		if err := cp.AddClass(c); err != nil {
			t.Fatalf("AddClass: %v", err)
		}
		byName[c.Name] = c
	}
	r := &countingResolver{cp: cp, calls: make(map[string]int)}
	core, logs := observer.New(zapcore.DebugLevel)
	cfg.Resolver = r
	cfg.Logger = zap.New(core)
	cfg.Check = true
	return &driverFixture{classes: byName, resolver: r, logs: logs, in: instrument.New(cfg)}
}

func methodFailed(report *instrument.Report, key string) bool {
	for _, f := range report.Failures {
		if f.Method == key {
			return true
		}
	}
	return false
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func TestClassReport(t *testing.T) {
	f := newDriver(t, instrument.Config{})
	orig := f.classes["d/Subject"]
	out, report := f.in.Class(orig)

	if out == orig {
		t.Fatal("class was not rewritten")
	}
	if !out.HasAnnotation(classfile.InstrumentedMark) {
		t.Error("rewritten class is not marked")
	}
	if orig.HasAnnotation(classfile.InstrumentedMark) {
		t.Error("input class was modified")
	}

	tests := []struct {
		method       string
		instrumented bool
		skipped      bool
		failed       bool
	}{
		{"<init>()V", false, true, false},
		{"plain()V", false, false, false},
		{"idle()V", false, false, false},
		{"abstractish()V", false, true, false},
		{"work()V", true, false, false},
		{"locked()V", false, false, true},
		{"sleepy()V", false, false, true},
		{"unknown()V", true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			if got := contains(report.Instrumented, tt.method); got != tt.instrumented {
				t.Errorf("instrumented = %v, want %v", got, tt.instrumented)
			}
			if got := contains(report.Skipped, tt.method); got != tt.skipped {
				t.Errorf("skipped = %v, want %v", got, tt.skipped)
			}
			if got := methodFailed(report, tt.method); got != tt.failed {
				t.Errorf("failed = %v, want %v", got, tt.failed)
			}
		})
	}

	for i, m := range orig.Methods {
		if contains(report.Instrumented, m.Key()) {
			continue
		}
		if out.Methods[i] != m {
			t.Errorf("%s: body replaced although not instrumented", m.Key())
		}
	}

	if n := f.logs.FilterMessage("special method declares the suspend signal; not instrumenting").Len(); n != 1 {
		t.Errorf("constructor warnings = %d, want 1", n)
	}
	if n := f.logs.FilterMessage("class not found - assuming suspendable").Len(); n != 1 {
		t.Errorf("class not found warnings = %d, want 1", n)
	}

	err := report.Err()
	var failures *errors.FailuresError
	if !stderrors.As(err, &failures) || len(failures.Failures) != 2 {
		t.Fatalf("Err() = %v, want two failures", err)
	}
	want := errors.New(errors.PhaseInstrument, errors.KindUnableToInstrument).Build()
	if !stderrors.Is(err, want) {
		t.Errorf("Err() does not match %v", want)
	}
}

func TestClassAllowances(t *testing.T) {
	f := newDriver(t, instrument.Config{AllowMonitors: true, AllowBlocking: true})
	_, report := f.in.Class(f.classes["d/Subject"])
	if err := report.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	for _, key := range []string{"locked()V", "sleepy()V"} {
		if !contains(report.Instrumented, key) {
			t.Errorf("%s not instrumented", key)
		}
	}
}

func TestClassSkips(t *testing.T) {
	f := newDriver(t, instrument.Config{})

	marked := *f.classes["d/Other"]
	marked.Annotations = []string{classfile.InstrumentedMark}

	core := *f.classes["d/Other"]
	core.Name = "core/Other"

	runtime := *f.classes["d/Other"]
	runtime.Name = "coro/Other"

	for _, c := range []*classfile.Class{&marked, &core, &runtime} {
		out, report := f.in.Class(c)
		if out != c || report.Changed() {
			t.Errorf("%s: rewritten", c.Name)
		}
	}
}

func TestResolverCalledOnce(t *testing.T) {
	f := newDriver(t, instrument.Config{})
	f.in.Class(f.classes["d/Subject"])
	f.in.Class(f.classes["d/Other"])

	if n := f.resolver.calls["d/Lib"]; n != 1 {
		t.Errorf("d/Lib resolved %d times, want 1", n)
	}
	if n := f.resolver.calls["d/Subject"]; n != 0 {
		t.Errorf("d/Subject resolved %d times, want 0 (recorded from the instrumented class)", n)
	}

	f.in.Invalidate("d/Lib")
	if !f.in.IsSuspendable("d/Lib", "step", "()V") {
		t.Error("d/Lib.step not suspendable")
	}
	if n := f.resolver.calls["d/Lib"]; n != 2 {
		t.Errorf("d/Lib resolved %d times after Invalidate, want 2", n)
	}
}

func TestTransformerFailsClass(t *testing.T) {
	f := newDriver(t, instrument.Config{})
	tr := f.in.Transformer()
	if _, err := tr(f.classes["d/Subject"]); err == nil {
		t.Error("class with failed methods loaded")
	}
	out, err := tr(f.classes["d/Other"])
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if !out.HasAnnotation(classfile.InstrumentedMark) {
		t.Error("class not marked")
	}
}

func TestBytes(t *testing.T) {
	f := newDriver(t, instrument.Config{})
	data, err := f.classes["d/Other"].Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out, report, err := f.in.Bytes(data)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !report.Changed() {
		t.Fatal("nothing instrumented")
	}
	c, err := classfile.DecodeValidate(out)
	if err != nil {
		t.Fatalf("DecodeValidate: %v", err)
	}
	if !c.HasAnnotation(classfile.InstrumentedMark) {
		t.Error("decoded class not marked")
	}

	again, report, err := f.in.Bytes(out)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if report.Changed() || &again[0] != &out[0] {
		t.Error("instrumented class rewritten twice")
	}
}
