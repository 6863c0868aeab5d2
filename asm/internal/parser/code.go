package parser

import (
	"fmt"

	"github.com/wippyai/resumable/asm/internal/token"
	"github.com/wippyai/resumable/classfile"
)

// parseCode reads instructions and label definitions up to the closing
// paren of a code form. base is the index of the first instruction in the
// method body.
func (p *Parser) parseCode(s *methodState, base int) ([]classfile.Instruction, error) {
	var code []classfile.Instruction
	for !p.atClose() {
		t := p.next()
		if t.Type == token.Label {
			id, err := s.define(t, base+len(code))
			if err != nil {
				return nil, err
			}
			code = append(code, classfile.Label(id))
			continue
		}
		if t.Type != token.Ident {
			return nil, fmt.Errorf("line %d: expected instruction, got %q", t.Line, t.Value)
		}
		op, ok := classfile.LookupOpcode(t.Value)
		if !ok || op == classfile.OpLabel {
			return nil, fmt.Errorf("line %d: unknown instruction %q", t.Line, t.Value)
		}
		instr, err := p.parseOperands(s, op)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Value, err)
		}
		code = append(code, instr)
	}
	return code, nil
}

func (p *Parser) parseOperands(s *methodState, op byte) (classfile.Instruction, error) {
	instr := classfile.Instruction{Opcode: op}
	kind, _ := classfile.ImmediateKind(op)

	switch kind {
	case classfile.ImmInt:
		v, err := p.parseInt(32)
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.IntImm{Value: int32(v)}
	case classfile.ImmLong:
		v, err := p.parseInt(64)
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.LongImm{Value: v}
	case classfile.ImmFloat:
		v, err := p.parseFloat(32)
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.FloatImm{Value: float32(v)}
	case classfile.ImmDouble:
		v, err := p.parseFloat(64)
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.DoubleImm{Value: v}
	case classfile.ImmString:
		v, err := p.parseString()
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.StringImm{Value: v}
	case classfile.ImmVar:
		v, err := p.parseU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.VarImm{Index: v}
	case classfile.ImmIinc:
		idx, err := p.parseU32()
		if err != nil {
			return instr, err
		}
		delta, err := p.parseInt(32)
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.IincImm{Index: idx, Delta: int32(delta)}
	case classfile.ImmLabel:
		id, err := p.parseLabelRef(s)
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.LabelImm{Label: id}
	case classfile.ImmTableSwitch:
		low, err := p.parseInt(32)
		if err != nil {
			return instr, err
		}
		imm := classfile.TableSwitchImm{Low: int32(low)}
		for {
			t := p.peek()
			if t == nil {
				return instr, fmt.Errorf("unexpected end of input")
			}
			if t.Type == token.Ident && t.Value == "default" {
				p.next()
				break
			}
			id, err := p.parseLabelRef(s)
			if err != nil {
				return instr, err
			}
			imm.Labels = append(imm.Labels, id)
		}
		if imm.Default, err = p.parseLabelRef(s); err != nil {
			return instr, err
		}
		instr.Imm = imm
	case classfile.ImmMember:
		var imm classfile.MemberImm
		var err error
		if imm.Owner, err = p.parseString(); err != nil {
			return instr, err
		}
		if imm.Name, err = p.parseString(); err != nil {
			return instr, err
		}
		if imm.Desc, err = p.parseString(); err != nil {
			return instr, err
		}
		instr.Imm = imm
	case classfile.ImmType:
		v, err := p.parseString()
		if err != nil {
			return instr, err
		}
		instr.Imm = classfile.TypeImm{Class: v}
	}
	return instr, nil
}
