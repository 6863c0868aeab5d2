package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
	"github.com/wippyai/resumable/instrument/internal/diag"
	"github.com/wippyai/resumable/instrument/internal/frame"
	"github.com/wippyai/resumable/instrument/internal/oracle"
)

// Config configures the rewriting engine.
type Config struct {
	Oracle        *oracle.Oracle
	Sink          *diag.Sink
	AllowMonitors bool
	AllowBlocking bool
}

// Engine rewrites methods. It keeps no per-method state and is safe for
// concurrent use as long as its Oracle is.
type Engine struct {
	oracle        *oracle.Oracle
	analyzer      *frame.Analyzer
	sink          *diag.Sink
	allowMonitors bool
	allowBlocking bool
}

// New creates an engine with the given config.
func New(cfg Config) *Engine {
	sink := cfg.Sink
	if sink == nil {
		sink = diag.Nop()
	}
	return &Engine{
		oracle:        cfg.Oracle,
		analyzer:      frame.NewAnalyzer(cfg.Oracle, sink),
		sink:          sink,
		allowMonitors: cfg.AllowMonitors,
		allowBlocking: cfg.AllowBlocking,
	}
}

// Instrument returns the rewritten form of m, a method of class owner, or
// nil when m makes no suspendable calls. m itself is never modified.
func (e *Engine) Instrument(owner string, m *classfile.Method) (*classfile.Method, error) {
	sink := e.sink.With(zap.String("class", owner), zap.String("method", m.Name+m.Desc))

	res, err := e.analyzer.Analyze(owner, m)
	if err != nil {
		return nil, err
	}

	r := newRewrite(owner, m, res, sink)
	if err := e.collect(r); err != nil {
		return nil, err
	}
	if len(r.points) == 0 {
		return nil, nil
	}
	if err := e.checkMonitors(r); err != nil {
		return nil, err
	}

	sink.Info("instrumenting method", zap.Int("points", len(r.points)))
	ranges, err := r.split()
	if err != nil {
		return nil, err
	}
	return r.generate(ranges)
}

// rewrite carries the state of one method rewrite.
type rewrite struct {
	owner  string
	m      *classfile.Method
	code   []classfile.Instruction
	frames []*frame.Frame
	sites  []*frame.Site
	points []*Point
	sink   *diag.Sink

	labelPos   map[uint32]int
	nextLabel  uint32
	firstLocal uint32
	stackVar   uint32
	temps      uint32
}

func newRewrite(owner string, m *classfile.Method, res *frame.Result, sink *diag.Sink) *rewrite {
	r := &rewrite{
		owner:     owner,
		m:         m,
		code:      append([]classfile.Instruction(nil), m.Code...),
		frames:    res.Frames,
		sites:     res.Sites,
		sink:      sink,
		labelPos:  make(map[uint32]int),
		nextLabel: classfile.NextLabelID(m.Code, m.Ranges),
		stackVar:  m.MaxLocals,
	}
	if !m.IsStatic() {
		r.firstLocal = 1
	}
	for id, at := range classfile.LabelIndex(m.Code) {
		for at < len(m.Code) && m.Code[at].IsLabel() {
			at++
		}
		r.labelPos[id] = at
	}
	return r
}

func (r *rewrite) newLabel() uint32 {
	id := r.nextLabel
	r.nextLabel++
	return id
}

func (r *rewrite) fail(detail string, args ...any) *errors.Error {
	return errors.UnableToInstrument(r.owner, r.m.Name, r.m.Desc, detail, args...)
}

// AllowsMonitors reports whether methods may hold monitors across
// suspension points.
func (e *Engine) AllowsMonitors() bool {
	return e.allowMonitors
}
