// Package vm is a small interpreter for classes in the classfile format.
//
// It exists to run instrumented code end to end: a Machine loads classes
// through a Resolver (usually a ClassPath), optionally rewrites them with
// load-time Transformers, and executes them on Threads. Each Thread is the
// ambient context instrumented code asks for its frame stack, and the
// coro/Coroutine natives swap that stack in and out through the coroutine
// package.
//
// The core/ and coro/ classes are synthesized by the machine. Their native
// methods are implemented in Go and can be replaced with Machine.Register.
//
// Values are untyped at run time: int32, int64, float32 and float64 for
// primitives, string for core/String, *Object and *Array for references
// and nil for null. Exceptions travel up the host stack as *Throw errors
// and are dispatched to the first exception range, in declaration order,
// that covers the faulting instruction and matches the thrown class.
package vm
