package instrument

import (
	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/instrument/internal/diag"
	"github.com/wippyai/resumable/instrument/internal/engine"
	"github.com/wippyai/resumable/instrument/internal/oracle"
)

// Resolver supplies encoded classes by name for suspendability queries.
type Resolver = oracle.Resolver

// MethodKey names one method.
type MethodKey = oracle.MethodKey

// DefaultCorePrefixes are the package prefixes treated as opaque.
var DefaultCorePrefixes = oracle.DefaultCorePrefixes

// runtimePrefix holds the coroutine runtime classes, which are never
// rewritten.
const runtimePrefix = "coro/"

// Config configures an Instrumenter.
type Config struct {
	Resolver Resolver
	Logger   *zap.Logger

	// CorePrefixes name opaque packages: their classes are never read and
	// their methods are not suspendable unless listed in SuspendableCore.
	// Defaults to DefaultCorePrefixes.
	CorePrefixes    []string
	SuspendableCore []MethodKey

	AllowMonitors bool
	AllowBlocking bool
	Verbose       bool
	Debug         bool

	// Check validates every rewritten method.
	Check bool
}

// Instrumenter rewrites classes. It is safe for concurrent use.
type Instrumenter struct {
	oracle *oracle.Oracle
	engine *engine.Engine
	sink   *diag.Sink
	check  bool
}

// New creates an Instrumenter.
func New(cfg Config) *Instrumenter {
	l := cfg.Logger
	if l == nil {
		l = Logger()
	}
	sink := diag.New(l, cfg.Verbose, cfg.Debug)

	o := oracle.New(oracle.Config{
		Resolver:        cfg.Resolver,
		Sink:            sink,
		CorePrefixes:    cfg.CorePrefixes,
		SuspendableCore: cfg.SuspendableCore,
	})
	return &Instrumenter{
		oracle: o,
		engine: engine.New(engine.Config{
			Oracle:        o,
			Sink:          sink,
			AllowMonitors: cfg.AllowMonitors,
			AllowBlocking: cfg.AllowBlocking,
		}),
		sink:  sink,
		check: cfg.Check,
	}
}

// IsSuspendable reports whether a call to class.name+desc may suspend.
func (in *Instrumenter) IsSuspendable(class, name, desc string) bool {
	return in.oracle.IsSuspendable(class, name, desc, true)
}

// Invalidate drops cached suspendability data for class, or for every
// class when class is empty.
func (in *Instrumenter) Invalidate(class string) {
	in.oracle.Invalidate(class)
}

// Transformer returns a load-time hook that instruments classes as they are
// loaded. A class with failed methods fails to load.
func (in *Instrumenter) Transformer() func(c *classfile.Class) (*classfile.Class, error) {
	return func(c *classfile.Class) (*classfile.Class, error) {
		out, report := in.Class(c)
		if err := report.Err(); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Bytes instruments an encoded class. The input is returned unchanged when
// nothing was rewritten.
func (in *Instrumenter) Bytes(data []byte) ([]byte, *Report, error) {
	c, err := classfile.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	out, report := in.Class(c)
	if out == c {
		return data, report, nil
	}
	enc, err := out.Encode()
	if err != nil {
		return nil, report, err
	}
	return enc, report, nil
}
