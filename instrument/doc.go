// Package instrument rewrites compiled classes so their methods can suspend
// and later resume from the same call.
//
// # Overview
//
// A method opts in by declaring coro/SuspendExecution in its throws list.
// Only calls that may themselves suspend become suspension points. At each
// point the rewritten method saves its operand stack and locals to the
// coroutine's frame stack before the call and restores them after it. On
// resume a dispatch table at method entry jumps straight back to the
// interrupted call.
//
// The frame stack lives outside the host stack:
//
//	nextMethodEntry  returns the resume entry of this frame, 0 when fresh
//	pushMethod       records the entry and slot counts of the current point
//	popMethod        drops the frame on return or exception
//
// # Usage
//
// Instrument classes as a machine loads them:
//
//	in := instrument.New(instrument.Config{Resolver: cp, Logger: log})
//	m := vm.New(cp, vm.WithTransformer(in.Transformer()))
//
// Or rewrite a class directly:
//
//	out, report := in.Class(c)
//	if err := report.Err(); err != nil {
//	    // some methods kept their original bodies
//	}
//
// # Restrictions
//
// Methods holding monitors across a suspension point, calls to known
// blocking methods, and handlers that catch the suspend signal are rejected
// unless explicitly allowed. Pending constructions on the operand stack are
// deferred: the allocation is dropped while arguments are evaluated and
// re-created right before the constructor call.
package instrument
