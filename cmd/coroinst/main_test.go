package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/coroutine"
	"github.com/wippyai/resumable/vm"
)

const demo = `
(class "demo/Ticker"
  (implements "coro/SuspendableRunnable")
  (method "<init>" "()V"
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      return))
  (method "run" "()V" (flags public) (throws "coro/SuspendExecution")
    (code
      iconst 3
      istore 1
    $loop:
      iload 1
      ifle $done
      iload 1
      invokestatic "core/System" "println" "(I)V"
      invokestatic "coro/Coroutine" "yield" "()V"
      iinc 1 -1
      goto $loop
    $done:
      return)))

(class "demo/Main"
  (method "main" "()V" (flags static)
    (code
      ldc "main"
      invokestatic "core/System" "println" "(Lcore/Object;)V"
      return)))
`

func writeDemo(t *testing.T) *options {
	t.Helper()
	dir := t.TempDir()
	classes, err := asm.AssembleAll(demo)
	if err != nil {
		t.Fatalf("AssembleAll: %v", err)
	}
	for _, c := range classes {
		data, err := c.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		path := filepath.Join(dir, filepath.FromSlash(c.Name)+vm.ClassExt)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &options{classPath: []string{dir}, log: zap.NewNop(), check: true}
}

func TestRunInstrument(t *testing.T) {
	opts := writeDemo(t)
	cp := opts.newClassPath()
	names, err := cp.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}

	out := t.TempDir()
	if err := runInstrument(opts, cp, names, out); err != nil {
		t.Fatalf("runInstrument: %v", err)
	}

	tests := []struct {
		class  string
		marked bool
	}{
		{"demo/Ticker", true},
		{"demo/Main", false},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(tt.class)+vm.ClassExt))
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			c, err := classfile.DecodeValidate(data)
			if err != nil {
				t.Fatalf("DecodeValidate: %v", err)
			}
			if got := c.HasAnnotation(classfile.InstrumentedMark); got != tt.marked {
				t.Errorf("marked = %v, want %v", got, tt.marked)
			}
		})
	}
}

func TestRunClass(t *testing.T) {
	tests := []struct {
		class string
		want  string
	}{
		{"demo/Ticker", "3\n2\n1\n"},
		{"demo/Main", "main\n"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			opts := writeDemo(t)
			var out bytes.Buffer
			m := opts.newMachine(&out, false)
			if err := runClass(context.Background(), m, tt.class, 100, coroutine.DefaultStackSize); err != nil {
				t.Fatalf("runClass: %v", err)
			}
			if out.String() != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestRunClassNotInstrumented(t *testing.T) {
	opts := writeDemo(t)
	m := opts.newMachine(&bytes.Buffer{}, true)
	err := runClass(context.Background(), m, "demo/Ticker", 100, coroutine.DefaultStackSize)
	if !errors.Is(err, coroutine.ErrNotInstrumented) {
		t.Errorf("err = %v, want yield outside instrumented code", err)
	}
}

func TestDescribeFrames(t *testing.T) {
	got := describeFrames([]coroutine.Frame{{Entry: 2, Objects: []any{nil, "s"}, Prims: []uint64{7}}})
	want := "#0 entry 2\n    obj[0]  null\n    obj[1]  \"s\"\n    prim[0] 0x7\n"
	if got != want {
		t.Errorf("describeFrames = %q, want %q", got, want)
	}
}
