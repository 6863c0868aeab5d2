package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/instrument/internal/frame"
)

// droppedInstructions returns the new and dup instructions of omitted
// construction sites. Both are re-emitted right before the constructor call.
func (r *rewrite) droppedInstructions() map[int]bool {
	dropped := make(map[int]bool)
	for _, s := range r.sites {
		if !s.Omitted {
			continue
		}
		dropped[s.New] = true
		if s.Dup >= 0 {
			dropped[s.Dup] = true
		}
	}
	return dropped
}

// deferConstruction handles an invokespecial <init> at instruction i whose
// receiver is an omitted construction. The arguments are spilled to
// temporaries above the frame-stack local, the allocation is re-created and
// the arguments are reloaded before the call. It reports whether it emitted
// the call.
func (r *rewrite) deferConstruction(out []classfile.Instruction, i int) ([]classfile.Instruction, bool, error) {
	instr := r.code[i]
	imm, ok := instr.Imm.(classfile.MemberImm)
	f := r.frames[i]
	if !ok || imm.Name != "<init>" || f == nil {
		return out, false, nil
	}

	n := classfile.ArgCount(imm.Desc)
	recvIdx := len(f.Stack) - 1 - n
	if recvIdx < 0 {
		return out, false, nil
	}
	recv := f.Stack[recvIdx]
	if recv.Kind != frame.New || !recv.Site.Omitted {
		return out, false, nil
	}

	site := recv.Site
	if !recv.Dupped || recvIdx < 1 || site.Dup < 0 {
		return nil, false, r.fail("unexpected shape of deferred construction of %s at instruction %d", site.Class, i)
	}
	if below := f.Stack[recvIdx-1]; below.Kind != frame.New || below.Site != site || below.Dupped {
		return nil, false, r.fail("unexpected shape of deferred construction of %s at instruction %d", site.Class, i)
	}

	r.sink.Debug("re-creating deferred construction",
		zap.String("type", site.Class), zap.Int("instr", i), zap.Int("args", n))

	args := f.Stack[recvIdx+1:]
	base := r.stackVar + 1
	for k := n - 1; k >= 0; k-- {
		out = append(out, classfile.Var(kindOps[args[k].SlotKind()].store, base+uint32(n-1-k)))
	}
	out = append(out, r.m.Code[site.New], r.m.Code[site.Dup])
	for k := 0; k < n; k++ {
		out = append(out, classfile.Var(kindOps[args[k].SlotKind()].load, base+uint32(n-1-k)))
	}
	out = append(out, instr)

	if uint32(n) > r.temps {
		r.temps = uint32(n)
	}
	return out, true, nil
}
