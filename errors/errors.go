package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseAnalyze    Phase = "analyze"    // frame-type analysis
	PhaseInstrument Phase = "instrument" // suspension collection and rewriting
	PhaseResolve    Phase = "resolve"    // class lookup through a resolver
	PhaseDecode     Phase = "decode"     // binary class to IR
	PhaseEncode     Phase = "encode"     // IR to binary class
	PhaseValidate   Phase = "validate"   // structural validation
	PhaseRuntime    Phase = "runtime"    // interpreter and coroutine runtime
	PhaseParse      Phase = "parse"      // assembler text parsing
)

// Kind categorizes the error
type Kind string

const (
	KindUnableToInstrument Kind = "unable_to_instrument"
	KindAnalysis           Kind = "analysis"
	KindResolution         Kind = "resolution"
	KindCacheConflict      Kind = "cache_conflict"
	KindInvalidData        Kind = "invalid_data"
	KindNotFound           Kind = "not_found"
	KindUnsupported        Kind = "unsupported"
	KindInvalidInput       Kind = "invalid_input"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindTypeMismatch       Kind = "type_mismatch"
	KindState              Kind = "state"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Class    string
	Method   string // name + descriptor
	Detail   string
	Path     []string
	Instr    int // instruction index, meaningful when HasInstr
	HasInstr bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" || e.Method != "" {
		b.WriteString(" in ")
		b.WriteString(e.Class)
		if e.Method != "" {
			if e.Class != "" {
				b.WriteByte('.')
			}
			b.WriteString(e.Method)
		}
		if e.HasInstr {
			b.WriteString(" #")
			b.WriteString(strconv.Itoa(e.Instr))
		}
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Class sets the owning class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Method sets the method name and descriptor
func (b *Builder) Method(name, desc string) *Builder {
	b.err.Method = name + desc
	return b
}

// Instr sets the offending instruction index
func (b *Builder) Instr(idx int) *Builder {
	b.err.Instr = idx
	b.err.HasInstr = true
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// UnableToInstrument creates a structural precondition error for one method
func UnableToInstrument(class, name, desc, detail string, args ...any) *Error {
	return New(PhaseInstrument, KindUnableToInstrument).
		Class(class).
		Method(name, desc).
		Detail(detail, args...).
		Build()
}

// Analysis creates an abstract interpretation failure at one instruction
func Analysis(class, name, desc string, instr int, cause error) *Error {
	return New(PhaseAnalyze, KindAnalysis).
		Class(class).
		Method(name, desc).
		Instr(instr).
		Cause(cause).
		Build()
}

// Resolution creates a class resolution error
func Resolution(class string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindResolution,
		Class:  class,
		Detail: "class not resolvable",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// TypeMismatch creates a slot kind mismatch error
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// State creates a lifecycle state error
func State(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindState,
		Detail: detail,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// MethodFailure records one method a batch could not instrument
type MethodFailure struct {
	Err    error
	Class  string
	Method string
}

// FailuresError is returned by batch drivers when some methods failed
type FailuresError struct {
	Failures []MethodFailure
}

// NewFailuresError collects failures in the order they were recorded
func NewFailuresError(failures []MethodFailure) *FailuresError {
	return &FailuresError{Failures: append([]MethodFailure(nil), failures...)}
}

func (e *FailuresError) Error() string {
	if len(e.Failures) == 0 {
		return "[instrument] unable_to_instrument: no failures recorded"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d method(s) could not be instrumented:\n", len(e.Failures)))

	// Group by class for cleaner output
	byClass := make(map[string][]MethodFailure)
	var order []string
	for _, f := range e.Failures {
		if _, exists := byClass[f.Class]; !exists {
			order = append(order, f.Class)
		}
		byClass[f.Class] = append(byClass[f.Class], f)
	}

	for _, class := range order {
		b.WriteString("\n  ")
		b.WriteString(class)
		b.WriteString(":\n")
		for _, f := range byClass[class] {
			b.WriteString("    - ")
			b.WriteString(f.Method)
			if f.Err != nil {
				b.WriteString(": ")
				b.WriteString(f.Err.Error())
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *FailuresError) Is(target error) bool {
	_, ok := target.(*FailuresError)
	return ok
}

// Unwrap exposes the individual causes to errors.Is and errors.As
func (e *FailuresError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
