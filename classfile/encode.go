package classfile

import (
	"fmt"
	"math"

	"github.com/wippyai/resumable/classfile/internal/binary"
)

// Encode encodes the class to the binary container format.
func (c *Class) Encode() ([]byte, error) {
	w := binary.NewWriter()

	w.Fixed32(Magic)
	w.Fixed32(Version)

	w.Name(c.Name)
	w.Name(c.Super)
	w.Names(c.Interfaces)
	w.U32(c.Flags)
	w.Names(c.Annotations)

	w.Count(len(c.Fields))
	for _, f := range c.Fields {
		w.Name(f.Name)
		w.Name(f.Desc)
		w.U32(f.Flags)
	}

	w.Count(len(c.Methods))
	for _, m := range c.Methods {
		if err := writeMethod(w, m); err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
	}
	return w.Bytes(), nil
}

func writeMethod(w *binary.Writer, m *Method) error {
	w.Name(m.Name)
	w.Name(m.Desc)
	w.U32(m.Flags)
	w.Names(m.Exceptions)
	w.Names(m.Annotations)
	w.Count(len(m.ParamAnnotations))
	for _, p := range m.ParamAnnotations {
		w.Names(p)
	}
	w.U32(m.MaxLocals)
	w.U32(m.MaxStack)

	w.Count(len(m.Code))
	for i, instr := range m.Code {
		if err := writeInstruction(w, instr); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
	}

	w.Count(len(m.Ranges))
	for _, r := range m.Ranges {
		w.Name(r.Type)
		w.U32(r.Start)
		w.U32(r.End)
		w.U32(r.Handler)
	}

	w.Count(len(m.LocalVars))
	for _, lv := range m.LocalVars {
		w.Name(lv.Name)
		w.Name(lv.Desc)
		w.U32(lv.Start)
		w.U32(lv.End)
		w.U32(lv.Index)
	}
	return nil
}

func writeInstruction(w *binary.Writer, instr Instruction) error {
	kind, ok := ImmediateKind(instr.Opcode)
	if !ok {
		return fmt.Errorf("unknown opcode 0x%02x", instr.Opcode)
	}
	w.Byte(instr.Opcode)

	bad := func() error {
		return fmt.Errorf("%s: unexpected immediate %T", OpcodeName(instr.Opcode), instr.Imm)
	}

	switch kind {
	case ImmNone:
		return nil
	case ImmInt:
		imm, ok := instr.Imm.(IntImm)
		if !ok {
			return bad()
		}
		w.S32(imm.Value)
	case ImmLong:
		imm, ok := instr.Imm.(LongImm)
		if !ok {
			return bad()
		}
		w.S64(imm.Value)
	case ImmFloat:
		imm, ok := instr.Imm.(FloatImm)
		if !ok {
			return bad()
		}
		w.Fixed32(math.Float32bits(imm.Value))
	case ImmDouble:
		imm, ok := instr.Imm.(DoubleImm)
		if !ok {
			return bad()
		}
		w.Fixed64(math.Float64bits(imm.Value))
	case ImmString:
		imm, ok := instr.Imm.(StringImm)
		if !ok {
			return bad()
		}
		w.Name(imm.Value)
	case ImmVar:
		imm, ok := instr.Imm.(VarImm)
		if !ok {
			return bad()
		}
		w.U32(imm.Index)
	case ImmIinc:
		imm, ok := instr.Imm.(IincImm)
		if !ok {
			return bad()
		}
		w.U32(imm.Index)
		w.S32(imm.Delta)
	case ImmLabel:
		imm, ok := instr.Imm.(LabelImm)
		if !ok {
			return bad()
		}
		w.U32(imm.Label)
	case ImmTableSwitch:
		imm, ok := instr.Imm.(TableSwitchImm)
		if !ok {
			return bad()
		}
		w.S32(imm.Low)
		w.Count(len(imm.Labels))
		for _, l := range imm.Labels {
			w.U32(l)
		}
		w.U32(imm.Default)
	case ImmMember:
		imm, ok := instr.Imm.(MemberImm)
		if !ok {
			return bad()
		}
		w.Name(imm.Owner)
		w.Name(imm.Name)
		w.Name(imm.Desc)
	case ImmType:
		imm, ok := instr.Imm.(TypeImm)
		if !ok {
			return bad()
		}
		w.Name(imm.Class)
	}
	return nil
}
