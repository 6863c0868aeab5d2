package parser

import (
	"fmt"

	"github.com/wippyai/resumable/asm/internal/token"
	"github.com/wippyai/resumable/classfile"
)

func (p *Parser) parseClass() (*classfile.Class, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("class"); err != nil {
		return nil, err
	}
	name, err := p.parseString()
	if err != nil {
		return nil, err
	}

	c := &classfile.Class{Name: name}
	if name != classfile.ObjectClass {
		c.Super = classfile.ObjectClass
	}

	for !p.atClose() {
		if _, err := p.expect(token.LParen); err != nil {
			return nil, err
		}
		kw, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		switch kw.Value {
		case "super":
			if c.Super, err = p.parseString(); err != nil {
				return nil, err
			}
		case "implements":
			names, err := p.parseStrings()
			if err != nil {
				return nil, err
			}
			c.Interfaces = append(c.Interfaces, names...)
		case "annotation":
			names, err := p.parseStrings()
			if err != nil {
				return nil, err
			}
			c.Annotations = append(c.Annotations, names...)
		case "flags":
			if c.Flags, err = p.parseFlags(); err != nil {
				return nil, err
			}
		case "field":
			f, err := p.parseField()
			if err != nil {
				return nil, err
			}
			c.Fields = append(c.Fields, f)
		case "method":
			m, err := p.parseMethod()
			if err != nil {
				return nil, fmt.Errorf("class %s: %w", name, err)
			}
			c.Methods = append(c.Methods, m)
		default:
			return nil, fmt.Errorf("line %d: unknown class section %q", kw.Line, kw.Value)
		}
		if err := p.closeForm(); err != nil {
			return nil, err
		}
	}
	if err := p.closeForm(); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Parser) parseField() (classfile.Field, error) {
	var f classfile.Field
	var err error
	if f.Name, err = p.parseString(); err != nil {
		return f, err
	}
	if f.Desc, err = p.parseString(); err != nil {
		return f, err
	}
	if f.Flags, err = p.parseFlags(); err != nil {
		return f, err
	}
	return f, nil
}

// methodState tracks label names while one method is parsed. Ids are handed
// out on first mention and renumbered in definition order at the end.
type methodState struct {
	ids     map[string]uint32
	names   []string
	defined map[uint32]int
	line    map[uint32]int
	order   []uint32
}

func newMethodState() *methodState {
	return &methodState{
		ids:     make(map[string]uint32),
		defined: make(map[uint32]int),
		line:    make(map[uint32]int),
	}
}

func (s *methodState) ref(t *token.Token) uint32 {
	if id, ok := s.ids[t.Value]; ok {
		return id
	}
	id := uint32(len(s.names))
	s.ids[t.Value] = id
	s.names = append(s.names, t.Value)
	s.line[id] = t.Line
	return id
}

func (s *methodState) define(t *token.Token, at int) (uint32, error) {
	id := s.ref(t)
	if _, dup := s.defined[id]; dup {
		return 0, fmt.Errorf("line %d: label %s defined twice", t.Line, t.Value)
	}
	s.defined[id] = at
	s.order = append(s.order, id)
	return id, nil
}

func (p *Parser) parseLabelRef(s *methodState) (uint32, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return 0, err
	}
	if len(t.Value) < 2 || t.Value[0] != '$' {
		return 0, fmt.Errorf("line %d: expected label, got %q", t.Line, t.Value)
	}
	return s.ref(t), nil
}

func (p *Parser) parseMethod() (*classfile.Method, error) {
	m := &classfile.Method{}
	var err error
	if m.Name, err = p.parseString(); err != nil {
		return nil, err
	}
	if m.Desc, err = p.parseString(); err != nil {
		return nil, err
	}
	md, err := classfile.ParseMethodDesc(m.Desc)
	if err != nil {
		return nil, err
	}

	s := newMethodState()
	var hasLocals, hasStack bool

	for !p.atClose() {
		if _, err := p.expect(token.LParen); err != nil {
			return nil, err
		}
		kw, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		switch kw.Value {
		case "flags":
			if m.Flags, err = p.parseFlags(); err != nil {
				return nil, err
			}
		case "throws":
			names, err := p.parseStrings()
			if err != nil {
				return nil, err
			}
			m.Exceptions = append(m.Exceptions, names...)
		case "annotation":
			names, err := p.parseStrings()
			if err != nil {
				return nil, err
			}
			m.Annotations = append(m.Annotations, names...)
		case "param-annotation":
			idx, err := p.parseU32()
			if err != nil {
				return nil, err
			}
			if int(idx) >= len(md.Params) {
				return nil, fmt.Errorf("line %d: parameter %d out of range", kw.Line, idx)
			}
			names, err := p.parseStrings()
			if err != nil {
				return nil, err
			}
			if m.ParamAnnotations == nil {
				m.ParamAnnotations = make([][]string, len(md.Params))
			}
			m.ParamAnnotations[idx] = append(m.ParamAnnotations[idx], names...)
		case "locals":
			if m.MaxLocals, err = p.parseU32(); err != nil {
				return nil, err
			}
			hasLocals = true
		case "stack":
			if m.MaxStack, err = p.parseU32(); err != nil {
				return nil, err
			}
			hasStack = true
		case "code":
			code, err := p.parseCode(s, len(m.Code))
			if err != nil {
				return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
			}
			m.Code = append(m.Code, code...)
		case "catch":
			r, err := p.parseCatch(s)
			if err != nil {
				return nil, err
			}
			m.Ranges = append(m.Ranges, r)
		case "local":
			lv, err := p.parseLocal(s)
			if err != nil {
				return nil, err
			}
			m.LocalVars = append(m.LocalVars, lv)
		default:
			return nil, fmt.Errorf("line %d: unknown method section %q", kw.Line, kw.Value)
		}
		if err := p.closeForm(); err != nil {
			return nil, err
		}
	}

	for id, name := range s.names {
		if _, ok := s.defined[uint32(id)]; !ok {
			return nil, fmt.Errorf("line %d: unknown label %s", s.line[uint32(id)], name)
		}
	}
	s.renumber(m)

	if !hasLocals {
		m.MaxLocals = inferLocals(m, len(md.Params))
	}
	if !hasStack && m.HasBody() && len(m.Code) > 0 {
		if m.MaxStack, err = classfile.ComputeMaxStack(m); err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Desc, err)
		}
	}
	return m, nil
}

func (p *Parser) parseCatch(s *methodState) (classfile.ExceptionRange, error) {
	var r classfile.ExceptionRange
	var err error
	if r.Start, err = p.parseLabelRef(s); err != nil {
		return r, err
	}
	if r.End, err = p.parseLabelRef(s); err != nil {
		return r, err
	}
	if r.Handler, err = p.parseLabelRef(s); err != nil {
		return r, err
	}
	t := p.next()
	if t == nil {
		return r, fmt.Errorf("unexpected end of input")
	}
	switch {
	case t.Type == token.String:
		r.Type = t.Value
	case t.Type == token.Ident && t.Value == "any":
	default:
		return r, fmt.Errorf("line %d: expected catch type or 'any', got %q", t.Line, t.Value)
	}
	return r, nil
}

func (p *Parser) parseLocal(s *methodState) (classfile.LocalVar, error) {
	var lv classfile.LocalVar
	var err error
	if lv.Name, err = p.parseString(); err != nil {
		return lv, err
	}
	if lv.Desc, err = p.parseString(); err != nil {
		return lv, err
	}
	if lv.Start, err = p.parseLabelRef(s); err != nil {
		return lv, err
	}
	if lv.End, err = p.parseLabelRef(s); err != nil {
		return lv, err
	}
	if lv.Index, err = p.parseU32(); err != nil {
		return lv, err
	}
	return lv, nil
}

// renumber rewrites label ids so they follow definition order.
func (s *methodState) renumber(m *classfile.Method) {
	remap := make(map[uint32]uint32, len(s.order))
	for i, id := range s.order {
		remap[id] = uint32(i)
	}
	for i := range m.Code {
		switch imm := m.Code[i].Imm.(type) {
		case classfile.LabelImm:
			m.Code[i].Imm = classfile.LabelImm{Label: remap[imm.Label]}
		case classfile.TableSwitchImm:
			labels := make([]uint32, len(imm.Labels))
			for j, l := range imm.Labels {
				labels[j] = remap[l]
			}
			m.Code[i].Imm = classfile.TableSwitchImm{Low: imm.Low, Labels: labels, Default: remap[imm.Default]}
		}
	}
	for i := range m.Ranges {
		r := &m.Ranges[i]
		r.Start, r.End, r.Handler = remap[r.Start], remap[r.End], remap[r.Handler]
	}
	for i := range m.LocalVars {
		lv := &m.LocalVars[i]
		lv.Start, lv.End = remap[lv.Start], remap[lv.End]
	}
}

// inferLocals sizes the local area to cover the parameters and every slot the
// body touches.
func inferLocals(m *classfile.Method, params int) uint32 {
	n := uint32(params)
	if !m.IsStatic() {
		n++
	}
	for _, instr := range m.Code {
		switch imm := instr.Imm.(type) {
		case classfile.VarImm:
			if imm.Index+1 > n {
				n = imm.Index + 1
			}
		case classfile.IincImm:
			if imm.Index+1 > n {
				n = imm.Index + 1
			}
		}
	}
	for _, lv := range m.LocalVars {
		if lv.Index+1 > n {
			n = lv.Index + 1
		}
	}
	return n
}
