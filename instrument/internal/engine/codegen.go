package engine

import (
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/instrument/internal/frame"
)

var (
	getStack        = classfile.Member(classfile.OpInvokeStatic, classfile.StackClass, "getStack", "()Lcoro/Stack;")
	nextMethodEntry = classfile.Member(classfile.OpInvokeVirtual, classfile.StackClass, "nextMethodEntry", "()I")
	pushMethod      = classfile.Member(classfile.OpInvokeVirtual, classfile.StackClass, "pushMethod", "(III)V")
	popMethod       = classfile.Member(classfile.OpInvokeVirtual, classfile.StackClass, "popMethod", "()V")
	suspendSignal   = classfile.Member(classfile.OpGetStatic, classfile.StackClass, "SUSPEND", "Lcoro/SuspendExecution;")
)

// slotOps describes how one storage kind moves between the method and the
// frame stack.
type slotOps struct {
	suffix string
	desc   string
	load   byte
	store  byte
}

var kindOps = map[classfile.SlotKind]slotOps{
	classfile.KindInt:    {"Int", "I", classfile.OpILoad, classfile.OpIStore},
	classfile.KindLong:   {"Long", "J", classfile.OpLLoad, classfile.OpLStore},
	classfile.KindFloat:  {"Float", "F", classfile.OpFLoad, classfile.OpFStore},
	classfile.KindDouble: {"Double", "D", classfile.OpDLoad, classfile.OpDStore},
	classfile.KindRef:    {"Object", "Lcore/Object;", classfile.OpALoad, classfile.OpAStore},
}

// generate assembles the instrumented method:
//
//	prologue   getStack, dup, astore S, nextMethodEntry, tableswitch
//	$start     block 0
//	per point  $before, save, [throw SUSPEND], $call, restore, $after, call, block
//	$end       $catchAll: popMethod, $catchSignal: athrow
func (r *rewrite) generate(ranges []classfile.ExceptionRange) (*classfile.Method, error) {
	start, end := r.newLabel(), r.newLabel()
	catchAll, catchSignal := r.newLabel(), r.newLabel()

	calls := make([]uint32, len(r.points))
	for i := range calls {
		calls[i] = r.newLabel()
	}

	out := make([]classfile.Instruction, 0, 2*len(r.code)+8)
	out = append(out,
		getStack,
		classfile.Op(classfile.OpDup),
		classfile.Var(classfile.OpAStore, r.stackVar),
		nextMethodEntry,
		classfile.Instruction{Opcode: classfile.OpTableSwitch, Imm: classfile.TableSwitchImm{
			Low:     1,
			Labels:  calls,
			Default: start,
		}},
		classfile.Label(start),
	)

	dropped := r.droppedInstructions()
	var err error

	from := 0
	for i, p := range r.points {
		if out, err = r.block(out, from, p.Index, dropped); err != nil {
			return nil, err
		}
		out = append(out, classfile.Label(p.before))
		out = r.store(out, p)
		if p.Yield {
			out = append(out, suspendSignal, classfile.Op(classfile.OpAThrow))
		}
		out = append(out, classfile.Label(calls[i]))
		out = r.restore(out, p)
		out = append(out, classfile.Label(p.after))
		if !p.Yield {
			out = append(out, r.code[p.Index])
		}
		from = p.Index + 1
	}
	if out, err = r.block(out, from, len(r.code), dropped); err != nil {
		return nil, err
	}

	out = append(out,
		classfile.Label(end),
		classfile.Label(catchAll),
		classfile.Var(classfile.OpALoad, r.stackVar),
		popMethod,
		classfile.Label(catchSignal),
		classfile.Op(classfile.OpAThrow),
	)

	all := make([]classfile.ExceptionRange, 0, len(ranges)+2)
	all = append(all, classfile.ExceptionRange{Type: classfile.SuspendClass, Start: start, End: end, Handler: catchSignal})
	all = append(all, ranges...)
	all = append(all, classfile.ExceptionRange{Start: start, End: end, Handler: catchAll})

	nm := r.m.Clone()
	nm.Code = out
	nm.Ranges = all
	nm.MaxLocals = r.stackVar + 1 + r.temps
	nm.MaxStack, err = classfile.ComputeMaxStack(nm)
	if err != nil {
		e := r.fail("generated code has inconsistent stack")
		e.Cause = err
		return nil, e
	}
	return nm, nil
}

// block copies code[from:to], popping the frame before every return and
// re-creating deferred constructions at their constructor call.
func (r *rewrite) block(out []classfile.Instruction, from, to int, dropped map[int]bool) ([]classfile.Instruction, error) {
	for i := from; i < to; i++ {
		instr := r.code[i]
		switch {
		case dropped[i]:
			continue
		case classfile.IsReturn(instr.Opcode):
			out = append(out, classfile.Var(classfile.OpALoad, r.stackVar), popMethod)
		case instr.Opcode == classfile.OpInvokeSpecial:
			var (
				done bool
				err  error
			)
			if out, done, err = r.deferConstruction(out, i); err != nil {
				return nil, err
			} else if done {
				continue
			}
		}
		out = append(out, instr)
	}
	return out, nil
}

// store saves the operand stack, top first, then the locals.
func (r *rewrite) store(out []classfile.Instruction, p *Point) []classfile.Instruction {
	out = append(out,
		classfile.Var(classfile.OpALoad, r.stackVar),
		classfile.Int(int32(p.Entry)),
		classfile.Int(int32(p.NumObj)),
		classfile.Int(int32(p.NumPrim)),
		pushMethod,
	)

	stack := p.Frame.Stack
	for j := len(stack) - 1; j >= 0; j-- {
		v := stack[j]
		switch {
		case v.Omitted():
		case p.stackSlots[j] < 0:
			out = append(out, classfile.Op(classfile.OpPop))
		default:
			out = r.emitPush(out, v, p.stackSlots[j])
		}
	}

	for l, v := range p.Frame.Locals {
		if p.localSlots[l] < 0 {
			continue
		}
		out = append(out, classfile.Var(kindOps[v.SlotKind()].load, uint32(l)))
		out = r.emitPush(out, v, p.localSlots[l])
	}
	return out
}

// restore reloads the locals, then the operand stack bottom first.
func (r *rewrite) restore(out []classfile.Instruction, p *Point) []classfile.Instruction {
	for l, v := range p.Frame.Locals {
		if uint32(l) < r.firstLocal {
			continue
		}
		switch {
		case v.IsNull():
			out = append(out,
				classfile.Op(classfile.OpAConstNull),
				classfile.Var(classfile.OpAStore, uint32(l)))
		case p.localSlots[l] >= 0:
			out = r.emitGet(out, v, p.localSlots[l])
			out = append(out, classfile.Var(kindOps[v.SlotKind()].store, uint32(l)))
		}
	}

	for j, v := range p.Frame.Stack {
		switch {
		case v.Omitted():
		case v.IsNull():
			out = append(out, classfile.Op(classfile.OpAConstNull))
		case p.stackSlots[j] >= 0:
			out = r.emitGet(out, v, p.stackSlots[j])
		}
	}
	return out
}

// emitPush moves the value on top of the operand stack into frame slot idx.
func (r *rewrite) emitPush(out []classfile.Instruction, v frame.Value, idx int) []classfile.Instruction {
	ops := kindOps[v.SlotKind()]
	return append(out,
		classfile.Var(classfile.OpALoad, r.stackVar),
		classfile.Int(int32(idx)),
		classfile.Member(classfile.OpInvokeStatic, classfile.StackClass,
			"push"+ops.suffix, "("+ops.desc+"Lcoro/Stack;I)V"),
	)
}

// emitGet pushes frame slot idx onto the operand stack.
func (r *rewrite) emitGet(out []classfile.Instruction, v frame.Value, idx int) []classfile.Instruction {
	ops := kindOps[v.SlotKind()]
	out = append(out,
		classfile.Var(classfile.OpALoad, r.stackVar),
		classfile.Int(int32(idx)),
		classfile.Member(classfile.OpInvokeVirtual, classfile.StackClass,
			"get"+ops.suffix, "(I)"+ops.desc),
	)
	if v.IsReference() {
		if t := v.TypeName(); t != classfile.ObjectClass {
			out = append(out, classfile.Type(classfile.OpCheckCast, t))
		}
	}
	return out
}
