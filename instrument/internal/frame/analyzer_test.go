package frame

import (
	stderrors "errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
	"github.com/wippyai/resumable/instrument/internal/diag"
)

const source = `
(class "t/A"
  (method "f" "(IJ)V" (flags static) (locals 4)
    (code
      iload 0
      i2l
      lload 1
      ladd
      lstore 3
      return))
  (method "self" "()V"
    (code
      aload 0
      pop
      return))
  (method "g" "(I)Lcore/Object;" (flags static)
    (code
      iload 0
      ifeq $else
      new "t/B"
      dup
      invokespecial "t/B" "<init>" "()V"
      astore 1
      goto $join
    $else:
      new "t/C"
      dup
      invokespecial "t/C" "<init>" "()V"
      astore 1
    $join:
      aload 1
      areturn))
  (method "h" "(I)I" (flags static)
    (code
      iload 0
      ifeq $skip
      iconst 5
      istore 1
    $skip:
      iload 0
      ireturn))
  (method "n" "(I)V" (flags static)
    (code
      aconst_null
      astore 1
      iload 0
      ifeq $j
      ldc "s"
      astore 1
    $j:
      return))
  (method "t" "()V" (flags static)
    (code
      iconst 0
      istore 0
    $s:
      fconst 2.0
      fstore 0
    $e:
      return
    $h:
      pop
      return)
    (catch $s $e $h "core/Exception"))
  (method "u" "()V" (flags static)
    (code
      return
      iconst 1
      pop
      return))
  (method "mk" "()Lt/B;" (flags static)
    (code
      new "t/B"
      dup
      iconst 1
      invokespecial "t/B" "<init>" "(I)V"
      areturn))
  (method "leak" "()V" (flags static)
    (code
      new "t/B"
      astore 0
      aload 0
      invokespecial "t/B" "<init>" "()V"
      return))
  (method "arr" "([Lcore/String;)V" (flags static)
    (code
      aload 0
      iconst 0
      aaload
      pop
      iconst 3
      newarray "I"
      pop
      return)))
`

// stubHierarchy maps a class to its superclass.
type stubHierarchy map[string]string

func (h stubHierarchy) chain(name string) ([]string, bool) {
	var up []string
	for name != classfile.ObjectClass {
		up = append(up, name)
		super, ok := h[name]
		if !ok {
			return nil, false
		}
		name = super
	}
	return append(up, classfile.ObjectClass), true
}

func (h stubHierarchy) CommonSuperClass(a, b string) (string, bool) {
	ca, ok := h.chain(a)
	if !ok {
		return "", false
	}
	cb, ok := h.chain(b)
	if !ok {
		return "", false
	}
	for _, x := range ca {
		for _, y := range cb {
			if x == y {
				return x, true
			}
		}
	}
	return "", false
}

func analyze(t *testing.T, name string) (*Result, *observer.ObservedLogs) {
	t.Helper()
	c, err := asm.Assemble(source)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var m *classfile.Method
	for _, cm := range c.Methods {
		if cm.Name == name {
			m = cm
		}
	}
	if m == nil {
		t.Fatalf("no method %s", name)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	a := NewAnalyzer(stubHierarchy{"t/B": "t/Base", "t/C": "t/Base", "t/Base": classfile.ObjectClass}, diag.New(zap.New(core), false, false))
	res, err := a.Analyze(c.Name, m)
	if err != nil {
		t.Fatalf("Analyze(%s): %v", name, err)
	}
	return res, logs
}

func TestStraightLine(t *testing.T) {
	res, _ := analyze(t, "f")

	entry := res.Frames[0]
	want := []Kind{Int, Long, Uninit, Uninit}
	for i, k := range want {
		if entry.Locals[i].Kind != k {
			t.Errorf("entry local %d = %v, want %v", i, entry.Locals[i], k)
		}
	}
	if got := res.Frames[3].Stack; len(got) != 2 || got[0].Kind != Long || got[1].Kind != Long {
		t.Errorf("stack before ladd = %v", got)
	}
	if got := res.Frames[5].Locals[3]; got.Kind != Long {
		t.Errorf("local 3 before return = %v", got)
	}
}

func TestReceiver(t *testing.T) {
	res, _ := analyze(t, "self")
	if got := res.Frames[0].Locals[0]; got != RefOf("t/A") {
		t.Errorf("receiver = %v", got)
	}
}

func TestJoins(t *testing.T) {
	tests := []struct {
		name   string
		method string
		instr  int
		local  int
		want   Value
	}{
		{"references merge to common superclass", "g", 13, 1, RefOf("t/Base")},
		{"one-sided assignment is uninitialized", "h", 5, 1, Value{Kind: Uninit}},
		{"null merges into the other reference", "n", 7, 1, RefOf(classfile.StringClass)},
		{"conflicting kinds reach the handler uninitialized", "t", 7, 0, Value{Kind: Uninit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := analyze(t, tt.method)
			if got := res.Frames[tt.instr].Locals[tt.local]; got != tt.want {
				t.Errorf("local %d at %d = %v, want %v", tt.local, tt.instr, got, tt.want)
			}
		})
	}
}

func TestStubHierarchy(t *testing.T) {
	h := stubHierarchy{"t/B": "t/Base", "t/C": "t/Base", "t/Base": classfile.ObjectClass}
	tests := []struct {
		a, b string
		want string
		ok   bool
	}{
		{"t/B", "t/C", "t/Base", true},
		{"t/B", "t/Base", "t/Base", true},
		{"t/Base", "t/C", "t/Base", true},
		{"t/B", classfile.ObjectClass, classfile.ObjectClass, true},
		{"t/B", "t/Missing", "", false},
	}
	for _, tt := range tests {
		if got, ok := h.CommonSuperClass(tt.a, tt.b); got != tt.want || ok != tt.ok {
			t.Errorf("CommonSuperClass(%s, %s) = %q, %v; want %q, %v", tt.a, tt.b, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNullConstant(t *testing.T) {
	res, _ := analyze(t, "n")
	if !res.Frames[2].Locals[1].IsNull() {
		t.Errorf("local 1 = %v, want null", res.Frames[2].Locals[1])
	}
	if !res.Frames[2].Locals[1].Skipped() {
		t.Error("null locals are skipped when saving")
	}
}

func TestHandlerFrame(t *testing.T) {
	res, _ := analyze(t, "t")
	h := res.Frames[7]
	if len(h.Stack) != 1 || h.Stack[0] != RefOf("core/Exception") {
		t.Errorf("handler stack = %v", h.Stack)
	}
}

func TestUnreachable(t *testing.T) {
	res, _ := analyze(t, "u")
	for i := 1; i < 4; i++ {
		if res.Frames[i] != nil {
			t.Errorf("instruction %d should be unreachable", i)
		}
	}
}

func TestArrays(t *testing.T) {
	res, _ := analyze(t, "arr")
	if got := res.Frames[3].Stack[0]; got != RefOf(classfile.StringClass) {
		t.Errorf("aaload result = %v", got)
	}
	if got := res.Frames[6].Stack[0]; got != RefOf("[I") {
		t.Errorf("newarray result = %v", got)
	}
}

func TestConstructionSite(t *testing.T) {
	res, logs := analyze(t, "mk")

	if len(res.Sites) != 1 {
		t.Fatalf("sites = %d, want 1", len(res.Sites))
	}
	s := res.Sites[0]
	if s.Unsafe || s.New != 0 || s.Dup != 1 || s.Class != "t/B" {
		t.Errorf("site = %+v", s)
	}

	before := res.Frames[3].Stack
	if len(before) != 3 || before[0] != (Value{Kind: New, Site: s}) || before[1] != (Value{Kind: New, Site: s, Dupped: true}) || before[2].Kind != Int {
		t.Errorf("stack before <init> = %v", before)
	}
	if after := res.Frames[4].Stack; len(after) != 1 || after[0] != RefOf("t/B") {
		t.Errorf("stack after <init> = %v", after)
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected diagnostics: %v", logs.All())
	}
}

func TestUnsafeConstructionSite(t *testing.T) {
	res, logs := analyze(t, "leak")

	if len(res.Sites) != 1 || !res.Sites[0].Unsafe {
		t.Fatalf("sites = %+v, want one unsafe site", res.Sites)
	}
	if n := logs.FilterMessage("construction site cannot be deferred, saving it as a reference").Len(); n != 1 {
		t.Errorf("got %d warnings, want 1", n)
	}
}

func TestBranchSites(t *testing.T) {
	res, _ := analyze(t, "g")
	if len(res.Sites) != 2 || res.Sites[0].Dup != 3 || res.Sites[1].Dup != 9 {
		t.Fatalf("sites = %+v", res.Sites)
	}
	for _, s := range res.Sites {
		if s.Unsafe {
			t.Errorf("site at %d should be safe", s.New)
		}
	}
}

func TestAnalysisErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		instr int
	}{
		{
			"stack height mismatch",
			`(class "t/E" (method "m" "(I)V" (flags static) (stack 2)
			   (code iload 0 ifeq $j iconst 1 $j: return)))`,
			2,
		},
		{
			"underflow",
			`(class "t/E" (method "m" "()V" (flags static) (stack 1) (code pop return)))`,
			0,
		},
		{
			"kind mismatch",
			`(class "t/E" (method "m" "()V" (flags static) (locals 1) (stack 2)
			   (code iconst 1 istore 0 lload 0 pop return)))`,
			2,
		},
		{
			"local out of range",
			`(class "t/E" (method "m" "()V" (flags static) (locals 1) (stack 1)
			   (code iload 3 pop return)))`,
			0,
		},
		{
			"falls off the end",
			`(class "t/E" (method "m" "()V" (flags static) (stack 1) (code iconst 1 pop)))`,
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := asm.Assemble(tt.src)
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			_, err = NewAnalyzer(stubHierarchy{}, nil).Analyze(c.Name, c.Methods[0])
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseAnalyze, Kind: errors.KindAnalysis}) {
				t.Fatalf("err = %v, want analysis error", err)
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || !e.HasInstr || e.Instr != tt.instr {
				t.Errorf("error attributed to %+v, want instruction %d", e, tt.instr)
			}
		})
	}
}
