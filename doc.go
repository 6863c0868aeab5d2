// Package resumable retrofits suspend/resume onto compiled classes.
//
// Methods that declare coro/SuspendExecution are rewritten so that every
// call which may suspend saves the live frame to an external frame stack
// and can later re-enter the method at that call.
//
// # Architecture Overview
//
//	resumable/
//	├── instrument/      Class driver, configuration and load-time hook
//	│   └── internal/
//	│       ├── oracle/  Which calls may suspend (cached class lookups)
//	│       ├── frame/   Per-instruction frame types
//	│       ├── engine/  Suspension points, range splitting, code generation
//	│       └── diag/    Verbosity mask over zap
//	├── coroutine/       Frame stack and coroutine state machine
//	├── vm/              Interpreter hosting instrumented classes
//	├── classfile/       Instruction set, class container, binary codec
//	├── asm/             Text assembler and disassembler
//	├── errors/          Structured error types
//	└── cmd/coroinst/    Command line driver
//
// # Quick Start
//
// Instrument classes as they load and drive a coroutine:
//
//	cp := vm.NewClassPath("classes")
//	in := instrument.New(instrument.Config{Resolver: cp})
//	m := vm.New(cp, vm.WithTransformer(in.Transformer()))
//
//	th := m.NewThread(ctx)
//	task, err := th.NewObject("demo/Task", "()V")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	co := m.NewCoroutine(th, task)
//	for co.State() != coroutine.StateFinished {
//	    if err := co.Run(th); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package resumable
