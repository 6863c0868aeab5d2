package classfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Instruction represents a single instruction of a method body
type Instruction struct {
	Imm    interface{}
	Opcode byte
}

// IntImm holds the constant for iconst.
type IntImm struct {
	Value int32
}

// LongImm holds the constant for lconst.
type LongImm struct {
	Value int64
}

// FloatImm holds the constant for fconst.
type FloatImm struct {
	Value float32
}

// DoubleImm holds the constant for dconst.
type DoubleImm struct {
	Value float64
}

// StringImm holds the literal for ldc.
type StringImm struct {
	Value string
}

// VarImm holds the local slot for load and store instructions.
type VarImm struct {
	Index uint32
}

// IincImm holds the local slot and delta for iinc.
type IincImm struct {
	Index uint32
	Delta int32
}

// LabelImm holds a label id, either the target of a jump or the id a label
// pseudo-instruction defines.
type LabelImm struct {
	Label uint32
}

// TableSwitchImm holds the jump table for tableswitch. Labels[i] is taken
// for key Low+i.
type TableSwitchImm struct {
	Labels  []uint32
	Low     int32
	Default uint32
}

// MemberImm references a field or method.
type MemberImm struct {
	Owner string
	Name  string
	Desc  string
}

// TypeImm holds a class name (new, anewarray, checkcast, instanceof) or an
// element descriptor (newarray).
type TypeImm struct {
	Class string
}

// Op builds an instruction without immediates.
func Op(op byte) Instruction {
	return Instruction{Opcode: op}
}

// Var builds a load or store instruction.
func Var(op byte, idx uint32) Instruction {
	return Instruction{Opcode: op, Imm: VarImm{Index: idx}}
}

// Int builds an iconst instruction.
func Int(v int32) Instruction {
	return Instruction{Opcode: OpIConst, Imm: IntImm{Value: v}}
}

// Label builds a label pseudo-instruction.
func Label(id uint32) Instruction {
	return Instruction{Opcode: OpLabel, Imm: LabelImm{Label: id}}
}

// Jump builds a branch to label id.
func Jump(op byte, id uint32) Instruction {
	return Instruction{Opcode: op, Imm: LabelImm{Label: id}}
}

// Member builds a field access or invoke instruction.
func Member(op byte, owner, name, desc string) Instruction {
	return Instruction{Opcode: op, Imm: MemberImm{Owner: owner, Name: name, Desc: desc}}
}

// Type builds an instruction taking a class operand.
func Type(op byte, class string) Instruction {
	return Instruction{Opcode: op, Imm: TypeImm{Class: class}}
}

// LabelID returns the label an instruction defines or targets.
func (i Instruction) LabelID() (uint32, bool) {
	if imm, ok := i.Imm.(LabelImm); ok {
		return imm.Label, true
	}
	return 0, false
}

// IsLabel reports whether i is a label pseudo-instruction.
func (i Instruction) IsLabel() bool {
	return i.Opcode == OpLabel
}

// String renders the instruction in assembler syntax.
func (i Instruction) String() string {
	name := OpcodeName(i.Opcode)
	if name == "" {
		name = fmt.Sprintf("op_0x%02x", i.Opcode)
	}
	switch imm := i.Imm.(type) {
	case IntImm:
		return name + " " + strconv.FormatInt(int64(imm.Value), 10)
	case LongImm:
		return name + " " + strconv.FormatInt(imm.Value, 10)
	case FloatImm:
		return name + " " + strconv.FormatFloat(float64(imm.Value), 'g', -1, 32)
	case DoubleImm:
		return name + " " + strconv.FormatFloat(imm.Value, 'g', -1, 64)
	case StringImm:
		return name + " " + strconv.Quote(imm.Value)
	case VarImm:
		return name + " " + strconv.FormatUint(uint64(imm.Index), 10)
	case IincImm:
		return fmt.Sprintf("%s %d %d", name, imm.Index, imm.Delta)
	case LabelImm:
		if i.Opcode == OpLabel {
			return fmt.Sprintf("$L%d:", imm.Label)
		}
		return fmt.Sprintf("%s $L%d", name, imm.Label)
	case TableSwitchImm:
		var b strings.Builder
		fmt.Fprintf(&b, "%s %d", name, imm.Low)
		for _, l := range imm.Labels {
			fmt.Fprintf(&b, " $L%d", l)
		}
		fmt.Fprintf(&b, " default $L%d", imm.Default)
		return b.String()
	case MemberImm:
		return fmt.Sprintf("%s %q %q %q", name, imm.Owner, imm.Name, imm.Desc)
	case TypeImm:
		return fmt.Sprintf("%s %q", name, imm.Class)
	}
	return name
}

// LabelIndex maps every label id defined in code to its instruction index.
func LabelIndex(code []Instruction) map[uint32]int {
	idx := make(map[uint32]int)
	for i, instr := range code {
		if instr.Opcode == OpLabel {
			if id, ok := instr.LabelID(); ok {
				idx[id] = i
			}
		}
	}
	return idx
}

// NextLabelID returns an id strictly greater than every label id used in
// code or referenced by ranges.
func NextLabelID(code []Instruction, ranges []ExceptionRange) uint32 {
	var next uint32
	bump := func(id uint32) {
		if id >= next {
			next = id + 1
		}
	}
	for _, instr := range code {
		switch imm := instr.Imm.(type) {
		case LabelImm:
			bump(imm.Label)
		case TableSwitchImm:
			bump(imm.Default)
			for _, l := range imm.Labels {
				bump(l)
			}
		}
	}
	for _, r := range ranges {
		bump(r.Start)
		bump(r.End)
		bump(r.Handler)
	}
	return next
}

// Targets returns the label ids a branching instruction may jump to.
func (i Instruction) Targets() []uint32 {
	switch imm := i.Imm.(type) {
	case LabelImm:
		if i.Opcode == OpLabel {
			return nil
		}
		return []uint32{imm.Label}
	case TableSwitchImm:
		out := make([]uint32, 0, len(imm.Labels)+1)
		out = append(out, imm.Labels...)
		return append(out, imm.Default)
	}
	return nil
}
