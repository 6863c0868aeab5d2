package frame

import (
	"fmt"

	"github.com/wippyai/resumable/classfile"
)

func (r *run) execute(i int, instr classfile.Instruction, f *Frame) error {
	op := instr.Opcode
	switch op {
	case classfile.OpNop, classfile.OpLabel:
		return nil
	case classfile.OpAConstNull:
		f.Stack = append(f.Stack, null)
		return nil
	case classfile.OpLdc:
		f.Stack = append(f.Stack, RefOf(classfile.StringClass))
		return nil
	case classfile.OpNew:
		class, err := typeOperand(instr)
		if err != nil {
			return err
		}
		f.Stack = append(f.Stack, Value{Kind: New, Site: r.site(i, class)})
		return nil

	case classfile.OpILoad, classfile.OpLLoad, classfile.OpFLoad, classfile.OpDLoad, classfile.OpALoad:
		idx, err := localOperand(instr, f)
		if err != nil {
			return err
		}
		v := f.Locals[idx]
		if err := checkKind(v, loadKind(op)); err != nil {
			return fmt.Errorf("local %d: %w", idx, err)
		}
		f.Stack = append(f.Stack, v)
		return nil

	case classfile.OpIStore, classfile.OpLStore, classfile.OpFStore, classfile.OpDStore, classfile.OpAStore:
		idx, err := localOperand(instr, f)
		if err != nil {
			return err
		}
		v, err := r.pop(f)
		if err != nil {
			return err
		}
		if err := checkKind(v, loadKind(op)); err != nil {
			return err
		}
		if v.Kind == New {
			r.markUnsafe(v.Site, "stored to a local")
		}
		f.Locals[idx] = v
		return nil

	case classfile.OpIInc:
		imm, ok := instr.Imm.(classfile.IincImm)
		if !ok || int(imm.Index) >= len(f.Locals) {
			return fmt.Errorf("iinc: bad local operand")
		}
		return checkKind(f.Locals[imm.Index], Int)

	case classfile.OpAALoad:
		if _, err := r.popKind(f, Int); err != nil {
			return err
		}
		arr, err := r.popKind(f, Ref)
		if err != nil {
			return err
		}
		elem := RefOf(classfile.ObjectClass)
		if ed := classfile.ElementDesc(arr.TypeName()); classfile.DescKind(ed) == classfile.KindRef {
			elem = FromDesc(ed)
		}
		f.Stack = append(f.Stack, elem)
		return nil

	case classfile.OpNewArray:
		if _, err := r.popKind(f, Int); err != nil {
			return err
		}
		elem, err := typeOperand(instr)
		if err != nil {
			return err
		}
		f.Stack = append(f.Stack, RefOf("["+elem))
		return nil

	case classfile.OpANewArray:
		if _, err := r.popKind(f, Int); err != nil {
			return err
		}
		class, err := typeOperand(instr)
		if err != nil {
			return err
		}
		f.Stack = append(f.Stack, RefOf("["+classfile.DescOf(class)))
		return nil

	case classfile.OpCheckCast:
		v, err := r.popKind(f, Ref)
		if err != nil {
			return err
		}
		class, err := typeOperand(instr)
		if err != nil {
			return err
		}
		if v.IsNull() {
			f.Stack = append(f.Stack, v)
		} else {
			f.Stack = append(f.Stack, RefOf(class))
		}
		return nil

	case classfile.OpPop:
		v, err := r.pop(f)
		if err != nil {
			return err
		}
		r.consumed(v, "popped")
		return nil
	case classfile.OpPop2:
		for n := 0; n < 2; n++ {
			v, err := r.pop(f)
			if err != nil {
				return err
			}
			r.consumed(v, "popped")
		}
		return nil
	case classfile.OpDup:
		return r.dup(i, f)
	case classfile.OpDupX1, classfile.OpDupX2, classfile.OpDup2, classfile.OpSwap:
		return r.shuffle(op, f)

	case classfile.OpGetStatic, classfile.OpPutStatic, classfile.OpGetField, classfile.OpPutField:
		return r.field(op, instr, f)
	case classfile.OpInvokeVirtual, classfile.OpInvokeSpecial, classfile.OpInvokeStatic, classfile.OpInvokeInterface:
		return r.invoke(instr, f)
	}

	e := classfile.GetStackEffect(op)
	if e == nil {
		return fmt.Errorf("unsupported opcode 0x%02x", op)
	}
	for j := len(e.Pops) - 1; j >= 0; j-- {
		if _, err := r.popKind(f, fromSlotKind(e.Pops[j]).Kind); err != nil {
			return err
		}
	}
	for _, k := range e.Pushes {
		f.Stack = append(f.Stack, fromSlotKind(k))
	}
	return nil
}

func (r *run) pop(f *Frame) (Value, error) {
	if len(f.Stack) == 0 {
		return uninit, fmt.Errorf("stack underflow")
	}
	v := f.Stack[len(f.Stack)-1]
	f.Stack = f.Stack[:len(f.Stack)-1]
	return v, nil
}

// popKind pops a value of kind k. A pending construction consumed as an
// ordinary reference can no longer be deferred.
func (r *run) popKind(f *Frame, k Kind) (Value, error) {
	v, err := r.pop(f)
	if err != nil {
		return v, err
	}
	if err := checkKind(v, k); err != nil {
		return v, err
	}
	if v.Kind == New {
		r.markUnsafe(v.Site, "used as an operand")
	}
	return v, nil
}

func (r *run) consumed(v Value, reason string) {
	if v.Kind == New {
		r.markUnsafe(v.Site, reason)
	}
}

func (r *run) dup(i int, f *Frame) error {
	if len(f.Stack) == 0 {
		return fmt.Errorf("stack underflow")
	}
	v := f.Top(0)
	if v.Kind == New {
		s := v.Site
		if !v.Dupped && (s.Dup == -1 || s.Dup == i) {
			s.Dup = i
			f.Stack = append(f.Stack, Value{Kind: New, Site: s, Dupped: true})
			return nil
		}
		r.markUnsafe(s, "duplicated more than once")
	}
	f.Stack = append(f.Stack, v)
	return nil
}

func (r *run) shuffle(op byte, f *Frame) error {
	need := 2
	if op == classfile.OpDupX2 {
		need = 3
	}
	if len(f.Stack) < need {
		return fmt.Errorf("stack underflow")
	}
	top := append([]Value(nil), f.Stack[len(f.Stack)-need:]...)
	for _, v := range top {
		r.consumed(v, "reordered on the stack")
	}
	f.Stack = f.Stack[:len(f.Stack)-need]
	switch op {
	case classfile.OpDupX1: // a b -> b a b
		f.Stack = append(f.Stack, top[1], top[0], top[1])
	case classfile.OpDupX2: // a b c -> c a b c
		f.Stack = append(f.Stack, top[2], top[0], top[1], top[2])
	case classfile.OpDup2: // a b -> a b a b
		f.Stack = append(f.Stack, top[0], top[1], top[0], top[1])
	case classfile.OpSwap: // a b -> b a
		f.Stack = append(f.Stack, top[1], top[0])
	}
	return nil
}

func (r *run) field(op byte, instr classfile.Instruction, f *Frame) error {
	imm, ok := instr.Imm.(classfile.MemberImm)
	if !ok {
		return fmt.Errorf("%s: missing member operand", classfile.OpcodeName(op))
	}
	v := FromDesc(imm.Desc)
	switch op {
	case classfile.OpGetStatic:
		f.Stack = append(f.Stack, v)
	case classfile.OpPutStatic:
		_, err := r.popKind(f, v.Kind)
		return err
	case classfile.OpGetField:
		if _, err := r.popKind(f, Ref); err != nil {
			return err
		}
		f.Stack = append(f.Stack, v)
	case classfile.OpPutField:
		if _, err := r.popKind(f, v.Kind); err != nil {
			return err
		}
		_, err := r.popKind(f, Ref)
		return err
	}
	return nil
}

func (r *run) invoke(instr classfile.Instruction, f *Frame) error {
	imm, ok := instr.Imm.(classfile.MemberImm)
	if !ok {
		return fmt.Errorf("%s: missing member operand", classfile.OpcodeName(instr.Opcode))
	}
	md, err := classfile.ParseMethodDesc(imm.Desc)
	if err != nil {
		return err
	}
	for j := len(md.Params) - 1; j >= 0; j-- {
		if _, err := r.popKind(f, FromDesc(md.Params[j]).Kind); err != nil {
			return fmt.Errorf("argument %d of %s.%s: %w", j, imm.Owner, imm.Name, err)
		}
	}

	if instr.Opcode != classfile.OpInvokeStatic {
		recv, err := r.pop(f)
		if err != nil {
			return err
		}
		if !recv.IsReference() {
			return fmt.Errorf("receiver of %s.%s: expected ref, got %s", imm.Owner, imm.Name, recv)
		}
		switch {
		case recv.Kind == New && instr.Opcode == classfile.OpInvokeSpecial && imm.Name == "<init>":
			r.construct(f, recv)
		case recv.Kind == New:
			r.markUnsafe(recv.Site, "used as a receiver")
		}
	}

	if md.Return != "V" {
		f.Stack = append(f.Stack, FromDesc(md.Return))
	}
	return nil
}

// construct completes a pending construction: every copy of the site turns
// into an ordinary reference.
func (r *run) construct(f *Frame, recv Value) {
	s := recv.Site
	if !recv.Dupped || len(f.Stack) == 0 || f.Top(0) != (Value{Kind: New, Site: s}) {
		r.markUnsafe(s, "constructor called without the new/dup shape")
	}
	done := RefOf(s.Class)
	for i, v := range f.Locals {
		if v.Kind == New && v.Site == s {
			f.Locals[i] = done
		}
	}
	for i, v := range f.Stack {
		if v.Kind == New && v.Site == s {
			f.Stack[i] = done
		}
	}
}

func loadKind(op byte) Kind {
	switch op {
	case classfile.OpILoad, classfile.OpIStore:
		return Int
	case classfile.OpLLoad, classfile.OpLStore:
		return Long
	case classfile.OpFLoad, classfile.OpFStore:
		return Float
	case classfile.OpDLoad, classfile.OpDStore:
		return Double
	}
	return Ref
}

// checkKind accepts pending constructions where references are expected.
func checkKind(v Value, want Kind) error {
	if want == Ref {
		if v.IsReference() {
			return nil
		}
	} else if v.Kind == want {
		return nil
	}
	return fmt.Errorf("expected %s, got %s", want, v)
}

func localOperand(instr classfile.Instruction, f *Frame) (int, error) {
	imm, ok := instr.Imm.(classfile.VarImm)
	if !ok {
		return 0, fmt.Errorf("%s: missing local operand", classfile.OpcodeName(instr.Opcode))
	}
	if int(imm.Index) >= len(f.Locals) {
		return 0, fmt.Errorf("local %d out of range (%d locals)", imm.Index, len(f.Locals))
	}
	return int(imm.Index), nil
}

func typeOperand(instr classfile.Instruction) (string, error) {
	imm, ok := instr.Imm.(classfile.TypeImm)
	if !ok || imm.Class == "" {
		return "", fmt.Errorf("%s: missing type operand", classfile.OpcodeName(instr.Opcode))
	}
	return imm.Class, nil
}
