// Package coroutine holds the runtime side of suspend/resume: the Stack that
// instrumented methods save their frames to, and the Coroutine that drives
// a body through repeated Run calls.
//
// Instrumented code never sees a Coroutine directly. It asks the ambient
// context for the current Stack on entry, and signals suspension by
// returning an error that matches ErrSuspend. Run turns that signal into
// the Suspended state and rewinds the stack so the next Run re-enters
// every saved activation from the outermost one.
package coroutine
