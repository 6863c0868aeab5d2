// Package frame computes the abstract type of every local and operand
// stack slot before each instruction of a method.
//
// The analysis is a forward worklist over the instruction list. Joins
// merge references to their common superclass and degrade conflicting
// locals to Uninit; conflicting operand stacks are an error. Pending
// constructions are tracked per `new` instruction so the code generator
// can defer them across suspension points.
package frame

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
	"github.com/wippyai/resumable/instrument/internal/diag"
)

// Hierarchy merges reference types.
type Hierarchy interface {
	CommonSuperClass(a, b string) (string, bool)
}

// Result is the outcome of analyzing one method.
type Result struct {
	Frames []*Frame // per instruction, nil when unreachable
	Sites  []*Site  // ordered by the index of their new instruction
}

// Analyzer runs the frame-type analysis. It holds no per-method state and
// can be shared.
type Analyzer struct {
	hierarchy Hierarchy
	sink      *diag.Sink
}

// NewAnalyzer creates an analyzer. A nil sink discards diagnostics.
func NewAnalyzer(h Hierarchy, sink *diag.Sink) *Analyzer {
	if sink == nil {
		sink = diag.Nop()
	}
	return &Analyzer{hierarchy: h, sink: sink}
}

type handlerSpan struct {
	class   string
	start   int
	end     int
	handler int
}

type run struct {
	*Analyzer
	owner  string
	m      *classfile.Method
	labels map[uint32]int
	spans  []handlerSpan
	frames []*Frame
	sites  map[int]*Site
	work   []int
	queued []bool
	at     int
}

// Analyze computes the frames of m, a method of class owner.
func (a *Analyzer) Analyze(owner string, m *classfile.Method) (*Result, error) {
	r := &run{
		Analyzer: a,
		owner:    owner,
		m:        m,
		labels:   classfile.LabelIndex(m.Code),
		frames:   make([]*Frame, len(m.Code)),
		sites:    make(map[int]*Site),
		queued:   make([]bool, len(m.Code)),
	}

	for i, rg := range m.Ranges {
		span, err := r.resolveRange(rg)
		if err != nil {
			return nil, errors.New(errors.PhaseAnalyze, errors.KindAnalysis).
				Class(owner).Method(m.Name, m.Desc).
				Detail("exception range %d", i).Cause(err).Build()
		}
		r.spans = append(r.spans, span)
	}

	entry, err := r.entryFrame()
	if err != nil {
		return nil, errors.New(errors.PhaseAnalyze, errors.KindAnalysis).
			Class(owner).Method(m.Name, m.Desc).Cause(err).Build()
	}
	if len(m.Code) > 0 {
		if err := r.mergeInto(0, entry); err != nil {
			return nil, errors.Analysis(owner, m.Name, m.Desc, 0, err)
		}
	}

	for len(r.work) > 0 {
		i := r.work[len(r.work)-1]
		r.work = r.work[:len(r.work)-1]
		r.queued[i] = false
		if err := r.step(i); err != nil {
			return nil, errors.Analysis(owner, m.Name, m.Desc, i, err)
		}
	}

	res := &Result{Frames: r.frames}
	for _, s := range r.sites {
		res.Sites = append(res.Sites, s)
	}
	sort.Slice(res.Sites, func(i, j int) bool { return res.Sites[i].New < res.Sites[j].New })
	return res, nil
}

func (r *run) resolveRange(rg classfile.ExceptionRange) (handlerSpan, error) {
	var span handlerSpan
	var ok bool
	if span.start, ok = r.labels[rg.Start]; !ok {
		return span, fmt.Errorf("undefined start label %d", rg.Start)
	}
	if span.end, ok = r.labels[rg.End]; !ok {
		return span, fmt.Errorf("undefined end label %d", rg.End)
	}
	if span.handler, ok = r.labels[rg.Handler]; !ok {
		return span, fmt.Errorf("undefined handler label %d", rg.Handler)
	}
	span.class = rg.Type
	if span.class == "" {
		span.class = classfile.ThrowableClass
	}
	return span, nil
}

func (r *run) entryFrame() (*Frame, error) {
	md, err := classfile.ParseMethodDesc(r.m.Desc)
	if err != nil {
		return nil, err
	}
	f := &Frame{Locals: make([]Value, r.m.MaxLocals)}
	idx := 0
	if !r.m.IsStatic() {
		if len(f.Locals) == 0 {
			return nil, fmt.Errorf("no local for the receiver")
		}
		f.Locals[0] = RefOf(r.owner)
		idx = 1
	}
	for _, p := range md.Params {
		if idx >= len(f.Locals) {
			return nil, fmt.Errorf("parameters exceed %d locals", len(f.Locals))
		}
		f.Locals[idx] = FromDesc(p)
		idx++
	}
	return f, nil
}

// step executes instruction i on its input frame and propagates the result
// to the successors and covering handlers.
func (r *run) step(i int) error {
	r.at = i
	in := r.frames[i]
	instr := r.m.Code[i]
	out := in.clone()
	if err := r.execute(i, instr, out); err != nil {
		return err
	}

	for _, s := range r.spans {
		if i < s.start || i >= s.end {
			continue
		}
		exc := []Value{RefOf(s.class)}
		if err := r.mergeInto(s.handler, &Frame{Locals: in.Locals, Stack: exc}); err != nil {
			return err
		}
		if err := r.mergeInto(s.handler, &Frame{Locals: out.Locals, Stack: exc}); err != nil {
			return err
		}
	}

	for _, id := range instr.Targets() {
		at, ok := r.labels[id]
		if !ok {
			return fmt.Errorf("jump to undefined label %d", id)
		}
		if err := r.mergeInto(at, out); err != nil {
			return err
		}
	}
	if classfile.EndsBlock(instr.Opcode) {
		return nil
	}
	if i+1 >= len(r.m.Code) {
		return fmt.Errorf("execution falls off the end of the code")
	}
	return r.mergeInto(i+1, out)
}

// mergeInto joins f into the input frame of instruction at and queues it
// when that frame changed.
func (r *run) mergeInto(at int, f *Frame) error {
	old := r.frames[at]
	if old == nil {
		r.frames[at] = f.clone()
		r.enqueue(at)
		return nil
	}
	if len(old.Stack) != len(f.Stack) {
		return fmt.Errorf("stack height mismatch at instruction %d: %d vs %d", at, len(old.Stack), len(f.Stack))
	}

	changed := false
	for i := range old.Locals {
		v, err := r.merge(old.Locals[i], f.Locals[i], false)
		if err != nil {
			return err
		}
		if v != old.Locals[i] {
			old.Locals[i] = v
			changed = true
		}
	}
	for i := range old.Stack {
		v, err := r.merge(old.Stack[i], f.Stack[i], true)
		if err != nil {
			return fmt.Errorf("stack slot %d at instruction %d: %w", i, at, err)
		}
		if v != old.Stack[i] {
			old.Stack[i] = v
			changed = true
		}
	}
	if changed {
		r.enqueue(at)
	}
	return nil
}

func (r *run) enqueue(at int) {
	if !r.queued[at] {
		r.queued[at] = true
		r.work = append(r.work, at)
	}
}

func (r *run) merge(a, b Value, onStack bool) (Value, error) {
	if a == b {
		return a, nil
	}
	if a.Kind == New {
		r.markUnsafe(a.Site, "merged with a different value")
		a = RefOf(a.Site.Class)
	}
	if b.Kind == New {
		r.markUnsafe(b.Site, "merged with a different value")
		b = RefOf(b.Site.Class)
	}
	if a == b {
		return a, nil
	}
	if a.Kind == Ref && b.Kind == Ref {
		switch {
		case a.IsNull():
			return b, nil
		case b.IsNull():
			return a, nil
		}
		if c, ok := r.hierarchy.CommonSuperClass(a.Class, b.Class); ok {
			return RefOf(c), nil
		}
		return RefOf(classfile.ObjectClass), nil
	}
	if onStack {
		return uninit, fmt.Errorf("cannot merge %s with %s", a, b)
	}
	return uninit, nil
}

func (r *run) markUnsafe(s *Site, reason string) {
	if s.Unsafe {
		return
	}
	s.Unsafe = true
	r.sink.Warn("construction site cannot be deferred, saving it as a reference",
		zap.String("class", r.owner),
		zap.String("method", r.m.Name+r.m.Desc),
		zap.Int("new", s.New),
		zap.Int("at", r.at),
		zap.String("reason", reason))
}

func (r *run) site(i int, class string) *Site {
	s, ok := r.sites[i]
	if !ok {
		s = &Site{Class: class, New: i, Dup: -1}
		r.sites[i] = s
	}
	return s
}
