package classfile

import (
	"errors"
	"fmt"
	"math"

	"github.com/wippyai/resumable/classfile/internal/binary"
)

// Parsing errors returned by Decode.
var (
	ErrInvalidMagic   = errors.New("invalid class magic number")
	ErrInvalidVersion = errors.New("invalid class version")
)

// ParseError carries the byte position and section of a decoding failure.
type ParseError = binary.ParseError

// Decode parses a class from the binary container format.
func Decode(data []byte) (*Class, error) {
	r := binary.NewReader(data)

	r.Enter("header")
	if r.Fixed32() != Magic {
		r.Fail(ErrInvalidMagic)
	}
	if r.Fixed32() != Version {
		r.Fail(ErrInvalidVersion)
	}
	r.Leave()

	c := &Class{}
	r.Enter("class")
	c.Name = r.Name()
	c.Super = r.Name()
	c.Interfaces = r.Names()
	c.Flags = r.U32()
	c.Annotations = r.Names()
	r.Leave()

	for i, n := 0, r.Count(3); i < n; i++ {
		r.EnterItem("field", i)
		c.Fields = append(c.Fields, Field{Name: r.Name(), Desc: r.Name(), Flags: r.U32()})
		r.Leave()
	}
	for i, n := 0, r.Count(minMethodSize); i < n && r.Err() == nil; i++ {
		c.Methods = append(c.Methods, readMethod(r))
	}

	if err := r.Finish(); err != nil {
		return nil, err
	}
	return c, nil
}

// minMethodSize is the encoded size of a method with empty names and
// vectors.
const minMethodSize = 11

func readMethod(r *binary.Reader) *Method {
	m := &Method{Name: r.Name(), Desc: r.Name()}
	r.Enter("method " + m.Name + m.Desc)
	defer r.Leave()

	m.Flags = r.U32()
	m.Exceptions = r.Names()
	m.Annotations = r.Names()
	for i, n := 0, r.Count(1); i < n; i++ {
		m.ParamAnnotations = append(m.ParamAnnotations, r.Names())
	}
	m.MaxLocals = r.U32()
	m.MaxStack = r.U32()

	if n := r.Count(1); n > 0 {
		m.Code = make([]Instruction, 0, n)
		for i := 0; i < n && r.Err() == nil; i++ {
			r.EnterItem("instruction", i)
			m.Code = append(m.Code, readInstruction(r))
			r.Leave()
		}
	}

	for i, n := 0, r.Count(4); i < n; i++ {
		m.Ranges = append(m.Ranges, ExceptionRange{Type: r.Name(), Start: r.U32(), End: r.U32(), Handler: r.U32()})
	}
	for i, n := 0, r.Count(5); i < n; i++ {
		m.LocalVars = append(m.LocalVars, LocalVar{Name: r.Name(), Desc: r.Name(), Start: r.U32(), End: r.U32(), Index: r.U32()})
	}
	return m
}

func readInstruction(r *binary.Reader) Instruction {
	op := r.Byte()
	kind, ok := ImmediateKind(op)
	if !ok {
		r.Fail(fmt.Errorf("unknown opcode 0x%02x", op))
		return Instruction{}
	}
	instr := Instruction{Opcode: op}

	switch kind {
	case ImmInt:
		instr.Imm = IntImm{Value: r.S32()}
	case ImmLong:
		instr.Imm = LongImm{Value: r.S64()}
	case ImmFloat:
		instr.Imm = FloatImm{Value: math.Float32frombits(r.Fixed32())}
	case ImmDouble:
		instr.Imm = DoubleImm{Value: math.Float64frombits(r.Fixed64())}
	case ImmString:
		instr.Imm = StringImm{Value: r.Name()}
	case ImmVar:
		instr.Imm = VarImm{Index: r.U32()}
	case ImmIinc:
		instr.Imm = IincImm{Index: r.U32(), Delta: r.S32()}
	case ImmLabel:
		instr.Imm = LabelImm{Label: r.U32()}
	case ImmTableSwitch:
		imm := TableSwitchImm{Low: r.S32()}
		imm.Labels = make([]uint32, r.Count(1))
		for i := range imm.Labels {
			imm.Labels[i] = r.U32()
		}
		imm.Default = r.U32()
		instr.Imm = imm
	case ImmMember:
		instr.Imm = MemberImm{Owner: r.Name(), Name: r.Name(), Desc: r.Name()}
	case ImmType:
		instr.Imm = TypeImm{Class: r.Name()}
	}
	return instr
}
