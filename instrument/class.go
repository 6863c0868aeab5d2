package instrument

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
)

// Report summarizes the instrumentation of one class.
type Report struct {
	Class        string
	Instrumented []string // name+desc of rewritten methods
	Skipped      []string // suspendable methods left alone
	Failures     []errors.MethodFailure
}

// Changed reports whether any method was rewritten.
func (r *Report) Changed() bool {
	return len(r.Instrumented) > 0
}

// Err returns the failures as a *errors.FailuresError, or nil.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return errors.NewFailuresError(r.Failures)
}

// Class instruments every suspendable method of c. The result shares
// unmodified methods with c and is c itself when nothing changed. A
// method that cannot be instrumented keeps its original body and is listed
// in the report's failures.
func (in *Instrumenter) Class(c *classfile.Class) (*classfile.Class, *Report) {
	report := &Report{Class: c.Name}
	sink := in.sink.With(zap.String("class", c.Name))

	if c.HasAnnotation(classfile.InstrumentedMark) {
		sink.Debug("class already instrumented")
		return c, report
	}
	if in.oracle.IsCore(c.Name) || strings.HasPrefix(c.Name, runtimePrefix) {
		return c, report
	}

	in.oracle.Record(c)

	var out *classfile.Class
	for i, m := range c.Methods {
		if !m.Throws(classfile.SuspendClass) {
			continue
		}
		msink := sink.With(zap.String("method", m.Key()))

		switch {
		case strings.HasPrefix(m.Name, "<"):
			msink.Warn("special method declares the suspend signal; not instrumenting")
			report.Skipped = append(report.Skipped, m.Key())
			continue
		case !m.HasBody():
			report.Skipped = append(report.Skipped, m.Key())
			continue
		case m.IsSynchronized() && !in.engine.AllowsMonitors():
			in.fail(report, c.Name, m, errors.UnableToInstrument(c.Name, m.Name, m.Desc, "synchronized method"))
			continue
		}

		nm, err := in.engine.Instrument(c.Name, m)
		if err == nil && nm != nil && in.check {
			if verr := nm.Validate(); verr != nil {
				err = errors.New(errors.PhaseValidate, errors.KindInvalidData).
					Class(c.Name).
					Method(m.Name, m.Desc).
					Detail("rewritten method does not validate").
					Cause(verr).
					Build()
			}
		}
		if err != nil {
			in.fail(report, c.Name, m, err)
			continue
		}
		if nm == nil {
			continue
		}

		if out == nil {
			out = shallowCopy(c)
		}
		out.Methods[i] = nm
		report.Instrumented = append(report.Instrumented, m.Key())
	}

	if out == nil {
		return c, report
	}
	out.Annotations = append(out.Annotations, classfile.InstrumentedMark)
	sink.Info("class instrumented", zap.Int("methods", len(report.Instrumented)))
	return out, report
}

func (in *Instrumenter) fail(report *Report, class string, m *classfile.Method, err error) {
	in.sink.Error("unable to instrument method", err,
		zap.String("class", class), zap.String("method", m.Key()))
	report.Failures = append(report.Failures, errors.MethodFailure{
		Err:    err,
		Class:  class,
		Method: m.Key(),
	})
}

func shallowCopy(c *classfile.Class) *classfile.Class {
	out := *c
	out.Methods = append([]*classfile.Method(nil), c.Methods...)
	out.Annotations = append([]string(nil), c.Annotations...)
	return &out
}
