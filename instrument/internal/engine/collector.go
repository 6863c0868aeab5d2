package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/instrument/internal/frame"
)

const reflectMethodClass = "core/reflect/Method"

// reflectInvoke replaces core/reflect/Method.invoke so the suspend signal
// is not wrapped on its way out of the reflective call.
var reflectInvoke = classfile.Member(classfile.OpInvokeStatic, classfile.CoroutineClass, "reflectInvoke",
	"(Lcore/reflect/Method;Lcore/Object;[Lcore/Object;)Lcore/Object;")

// Point is a call at which the method may suspend.
type Point struct {
	Frame   *frame.Frame
	Index   int // instruction index of the call
	Entry   int // resume entry, 1-based
	NumObj  int
	NumPrim int
	Reflect bool
	Yield   bool

	stackSlots []int // per stack slot, -1 when nothing is stored
	localSlots []int // per local, -1 when nothing is stored

	before, after uint32 // labels around the saved region
}

// collect finds the suspension points of r in instruction order.
func (e *Engine) collect(r *rewrite) error {
	var warned uint32
	for i, instr := range r.code {
		f := r.frames[i]
		if f == nil || !classfile.IsInvoke(instr.Opcode) {
			continue
		}
		imm, ok := instr.Imm.(classfile.MemberImm)
		if !ok || imm.Name == "<init>" {
			continue
		}
		op := instr.Opcode

		switch {
		case imm.Owner == reflectMethodClass && imm.Name == "invoke":
			r.sink.Debug("replacing reflective invoke with wrapper; assumed suspendable", zap.Int("instr", i))
			r.code[i] = reflectInvoke
			r.addPoint(i, f).Reflect = true

		case e.oracle.IsSuspendable(imm.Owner, imm.Name, imm.Desc,
			op == classfile.OpInvokeVirtual || op == classfile.OpInvokeStatic):
			if imm.Owner == classfile.CoroutineClass && imm.Name == "yield" && imm.Desc == "()V" {
				if op != classfile.OpInvokeStatic {
					return r.fail("invalid call to yield at instruction %d", i)
				}
				r.addPoint(i, f).Yield = true
				continue
			}
			r.sink.Debug("suspendable call",
				zap.Int("instr", i), zap.String("target", imm.Owner+"."+imm.Name+imm.Desc))
			r.addPoint(i, f)

		default:
			id := blockingCall(imm)
			if id < 0 {
				continue
			}
			if !e.allowBlocking {
				return r.fail("blocking call to %s.%s%s", imm.Owner, imm.Name, imm.Desc)
			}
			if mask := uint32(1) << id; warned&mask == 0 {
				warned |= mask
				r.sink.Warn("method contains potentially blocking call",
					zap.String("target", imm.Owner+"."+imm.Name+imm.Desc))
			}
		}
	}
	return nil
}

// checkMonitors rejects synchronization in a method that suspends unless
// monitors are allowed, in which case it warns once.
func (e *Engine) checkMonitors(r *rewrite) error {
	for _, instr := range r.code {
		if instr.Opcode != classfile.OpMonitorEnter && instr.Opcode != classfile.OpMonitorExit {
			continue
		}
		if !e.allowMonitors {
			return r.fail("synchronization")
		}
		r.sink.Warn("method contains synchronization")
		return nil
	}
	return nil
}

// addPoint records a suspension point and numbers its saved slots. Object
// and primitive slots are numbered separately, stack first, then locals.
// Safe pending constructions on the stack are omitted from the frame and
// re-created at their constructor call.
func (r *rewrite) addPoint(i int, f *frame.Frame) *Point {
	p := &Point{Frame: f, Index: i, Entry: len(r.points) + 1}

	p.stackSlots = make([]int, len(f.Stack))
	for j, v := range f.Stack {
		if v.Kind == frame.New && !v.Site.Unsafe {
			if !v.Site.Omitted {
				v.Site.Omitted = true
				r.sink.Debug("omitting construction",
					zap.String("type", v.Site.Class), zap.Int("new", v.Site.New), zap.Int("dup", v.Site.Dup))
			}
			p.stackSlots[j] = -1
			continue
		}
		p.stackSlots[j] = p.slot(v)
	}

	p.localSlots = make([]int, len(f.Locals))
	for l := range f.Locals {
		if uint32(l) < r.firstLocal {
			p.localSlots[l] = -1
			continue
		}
		p.localSlots[l] = p.slot(f.Locals[l])
	}

	r.points = append(r.points, p)
	return p
}

func (p *Point) slot(v frame.Value) int {
	switch {
	case v.Skipped():
		return -1
	case v.IsReference():
		p.NumObj++
		return p.NumObj - 1
	default:
		p.NumPrim++
		return p.NumPrim - 1
	}
}
