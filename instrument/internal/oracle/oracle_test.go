package oracle

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/instrument/internal/diag"
	"github.com/wippyai/resumable/vm"
)

const hierarchy = `
(class "app/Base"
  (method "work" "()V" (throws "coro/SuspendExecution") (code return))
  (method "plain" "()V" (code return)))

(class "app/Child" (super "app/Base")
  (method "own" "()I" (code iconst 1 ireturn)))

(class "app/Other" (super "app/Base"))

(class "app/Failure" (super "core/Exception"))

(class "app/Sleeper" (super "core/Thread"))
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

func newOracle(t *testing.T, cfg Config) (*Oracle, *countingResolver, *observer.ObservedLogs) {
	t.Helper()
	classes, err := asm.AssembleAll(hierarchy)
	if err != nil {
		t.Fatalf("AssembleAll: %v", err)
	}
	cp := vm.NewClassPath()
	for _, c := range classes {
		if err := cp.AddClass(c); err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}
	r := &countingResolver{cp: cp, calls: make(map[string]int)}
	core, logs := observer.New(zapcore.DebugLevel)
	cfg.Resolver = r
	cfg.Sink = diag.New(zap.New(core), false, false)
	return New(cfg), r, logs
}

func TestIsSuspendable(t *testing.T) {
	o, _, _ := newOracle(t, Config{})

	tests := []struct {
		name   string
		class  string
		method string
		desc   string
		search bool
		want   bool
	}{
		{"declared suspendable", "app/Base", "work", "()V", true, true},
		{"declared plain", "app/Base", "plain", "()V", true, false},
		{"inherited suspendable", "app/Child", "work", "()V", true, true},
		{"inherited plain", "app/Child", "plain", "()V", true, false},
		{"own plain", "app/Child", "own", "()I", false, false},
		{"constructor", "app/Base", "<init>", "()V", true, false},
		{"static initializer", "app/Base", "<clinit>", "()V", true, false},
		{"opaque core", "core/Thread", "sleep", "(J)V", true, false},
		{"core reached through superclass", "app/Sleeper", "sleep", "(J)V", true, false},
		{"declared by core ancestor", "app/Child", "hashCode", "()I", true, false},
		{"runtime yield", classfile.CoroutineClass, "yield", "()V", true, true},
		{"runtime stack", classfile.StackClass, "popMethod", "()V", true, false},
		{"unresolvable class", "app/Missing", "run", "()V", true, true},
		{"undeclared without search", "app/Child", "plain", "()V", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.IsSuspendable(tt.class, tt.method, tt.desc, tt.search); got != tt.want {
				t.Errorf("IsSuspendable(%s.%s%s, %v) = %v, want %v", tt.class, tt.method, tt.desc, tt.search, got, tt.want)
			}
		})
	}
}

func TestClassNotFoundWarnsOnce(t *testing.T) {
	o, r, logs := newOracle(t, Config{})

	for i := 0; i < 3; i++ {
		if !o.IsSuspendable("app/Missing", "run", "()V", true) {
			t.Fatal("unresolvable class must be assumed suspendable")
		}
		o.IsSuspendable("app/Missing", "other", "(I)V", false)
	}

	if n := logs.FilterMessage("class not found - assuming suspendable").Len(); n != 1 {
		t.Errorf("got %d warnings, want 1", n)
	}
	if r.calls["app/Missing"] != 1 {
		t.Errorf("resolved app/Missing %d times, want 1", r.calls["app/Missing"])
	}
}

func TestMethodNotFoundWarns(t *testing.T) {
	tests := []struct {
		class string
		desc  string
	}{
		{"app/Base", "()V"},
		{"app/Child", "(I)V"},
		{"app/Sleeper", "()V"},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			o, _, logs := newOracle(t, Config{})
			if !o.IsSuspendable(tt.class, "absent", tt.desc, true) {
				t.Error("absent method must be assumed suspendable")
			}
			if n := logs.FilterMessage("method not found - assuming suspendable").Len(); n != 1 {
				t.Errorf("got %d warnings, want 1", n)
			}
		})
	}
}

func TestSuspendableCore(t *testing.T) {
	o, _, _ := newOracle(t, Config{
		SuspendableCore: []MethodKey{{Class: "core/Thread", Name: "sleep", Desc: "(J)V"}},
	})

	if !o.IsSuspendable("core/Thread", "sleep", "(J)V", true) {
		t.Error("listed core method should be suspendable")
	}
	if o.IsSuspendable("core/Thread", "join", "()V", true) {
		t.Error("unlisted core method should not be suspendable")
	}
}

func TestCorePrefixes(t *testing.T) {
	o, _, _ := newOracle(t, Config{CorePrefixes: []string{"core/", "app/"}})
	if o.IsSuspendable("app/Base", "work", "()V", true) {
		t.Error("app/ is opaque in this configuration")
	}
	if !o.IsCore("app/Child") || o.IsCore("coro/Stack") {
		t.Error("IsCore does not follow the configured prefixes")
	}
}

func TestCacheIdempotence(t *testing.T) {
	o, r, _ := newOracle(t, Config{})

	for i := 0; i < 5; i++ {
		o.IsSuspendable("app/Base", "work", "()V", true)
	}
	if got := o.Resolutions(); got != 1 {
		t.Errorf("resolutions = %d, want 1", got)
	}

	o.IsSuspendable("app/Child", "plain", "()V", true)
	o.IsSuspendable("app/Child", "work", "()V", true)
	if got := o.Resolutions(); got != 2 {
		t.Errorf("resolutions = %d, want 2", got)
	}
	if r.calls["app/Base"] != 1 || r.calls["app/Child"] != 1 {
		t.Errorf("calls = %v", r.calls)
	}
}

func TestConcurrentQueries(t *testing.T) {
	o, _, logs := newOracle(t, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				o.IsSuspendable("app/Child", "work", "()V", true)
				o.CommonSuperClass("app/Child", "app/Other")
			}
		}()
	}
	wg.Wait()

	if n := logs.FilterMessage("duplicate class entries with different data").Len(); n != 0 {
		t.Errorf("identical concurrent resolutions reported %d conflicts", n)
	}
}

func TestRecordConflict(t *testing.T) {
	o, _, logs := newOracle(t, Config{})

	c, err := asm.Assemble(`(class "app/Dyn" (method "m" "()V" (code return)))`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	o.Record(c)
	o.Record(c)
	if n := logs.FilterMessage("duplicate class entries with different data").Len(); n != 0 {
		t.Fatalf("equal entries reported %d conflicts", n)
	}

	c2, err := asm.Assemble(`(class "app/Dyn" (method "m" "()V" (throws "coro/SuspendExecution") (code return)))`)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	o.Record(c2)
	if n := logs.FilterMessage("duplicate class entries with different data").Len(); n != 1 {
		t.Errorf("got %d conflict warnings, want 1", n)
	}
	if !o.IsSuspendable("app/Dyn", "m", "()V", false) {
		t.Error("newest entry should win")
	}
}

func TestCommonSuperClass(t *testing.T) {
	o, _, _ := newOracle(t, Config{})

	tests := []struct {
		a, b string
		want string
		ok   bool
	}{
		{"app/Child", "app/Other", "app/Base", true},
		{"app/Child", "app/Base", "app/Base", true},
		{"app/Base", "app/Child", "app/Base", true},
		{"app/Child", "app/Child", "app/Child", true},
		{"app/Child", classfile.StringClass, classfile.ObjectClass, true},
		{"app/Failure", "core/RuntimeException", "core/Exception", true},
		{"[I", "app/Child", classfile.ObjectClass, true},
		{"app/Child", "app/Missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"+"+tt.b, func(t *testing.T) {
			got, ok := o.CommonSuperClass(tt.a, tt.b)
			if got != tt.want || ok != tt.ok {
				t.Errorf("CommonSuperClass = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestIsException(t *testing.T) {
	o, _, _ := newOracle(t, Config{})

	tests := map[string]bool{
		"app/Failure":            true,
		classfile.SuspendClass:   true,
		classfile.ThrowableClass: true,
		"app/Child":              false,
		classfile.ObjectClass:    false,
		"app/Missing":            false,
	}
	for name, want := range tests {
		if got := o.IsException(name); got != want {
			t.Errorf("IsException(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestInvalidate(t *testing.T) {
	o, _, _ := newOracle(t, Config{})

	o.IsSuspendable("app/Base", "work", "()V", true)
	o.Invalidate("app/Base")
	o.IsSuspendable("app/Base", "work", "()V", true)
	if got := o.Resolutions(); got != 2 {
		t.Errorf("resolutions after Invalidate = %d, want 2", got)
	}

	o.Invalidate("")
	o.IsSuspendable("app/Base", "work", "()V", true)
	if got := o.Resolutions(); got != 3 {
		t.Errorf("resolutions after full Invalidate = %d, want 3", got)
	}
}

func TestClassEntryEqual(t *testing.T) {
	a := &ClassEntry{Super: "core/Object", Methods: map[string]bool{"m()V": true}}
	b := &ClassEntry{Super: "core/Object", Methods: map[string]bool{"m()V": true}}
	c := &ClassEntry{Super: "core/Object", Methods: map[string]bool{"m()V": false}}

	if !a.Equal(b) || a.Equal(c) || a.Equal(nil) || a.Equal(ClassNotFound) {
		t.Error("Equal compares superclass and method table")
	}
}

func TestSuperClassWarnsOnce(t *testing.T) {
	o, r, logs := newOracle(t, Config{})

	for i := 0; i < 3; i++ {
		if _, ok := o.CommonSuperClass("app/Child", "app/Ghost"); ok {
			t.Fatal("CommonSuperClass with an unresolvable class should fail")
		}
		if o.IsException("app/Ghost") {
			t.Fatal("unresolvable class is not an exception")
		}
	}

	if n := logs.FilterMessage("can't determine super class").Len(); n != 1 {
		t.Errorf("got %d warnings, want 1", n)
	}
	if r.calls["app/Ghost"] != 1 {
		t.Errorf("resolved app/Ghost %d times, want 1", r.calls["app/Ghost"])
	}
}
