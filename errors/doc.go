// Package errors provides structured error types for the resumable module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries attribution: owning class, method name and descriptor,
// instruction index, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInstrument, errors.KindUnableToInstrument).
//		Class("demo/Gen").
//		Method("run", "()V").
//		Instr(12).
//		Detail("monitorenter in suspendable method").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnableToInstrument(class, name, desc, "catch of %s", signal)
//	err := errors.Analysis(class, name, desc, idx, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
