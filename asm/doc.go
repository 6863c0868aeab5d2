// Package asm reads and writes classes in a small s-expression syntax.
//
// A class form names the class and lists its sections:
//
//	(class "demo/Counter"
//	  (super "core/Object")
//	  (field "count" "I")
//	  (method "tick" "(I)V"
//	    (flags public)
//	    (throws "coro/SuspendExecution")
//	    (code
//	      $loop:
//	        iload 1
//	        ifle $done
//	        invokestatic "coro/Coroutine" "yield" "()V"
//	        iinc 1 -1
//	        goto $loop
//	      $done:
//	        return
//	      $handler:
//	        athrow)
//	    (catch $loop $done $handler "core/Exception")))
//
// Labels are defined with a trailing colon and referenced by name. The
// locals and stack sections may be omitted; they are then computed from the
// body. A catch type of any catches everything.
package asm
