package classfile

import "fmt"

// Validate checks the class for structural validity.
func (c *Class) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("class has no name")
	}
	if c.Super == "" && c.Name != ObjectClass {
		return fmt.Errorf("class %s has no superclass", c.Name)
	}
	for _, f := range c.Fields {
		if !ValidFieldDesc(f.Desc) {
			return fmt.Errorf("field %s.%s: bad descriptor %q", c.Name, f.Name, f.Desc)
		}
	}
	seen := make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		if seen[m.Key()] {
			return fmt.Errorf("method %s.%s declared twice", c.Name, m.Key())
		}
		seen[m.Key()] = true
		if err := m.Validate(); err != nil {
			return fmt.Errorf("method %s.%s: %w", c.Name, m.Key(), err)
		}
	}
	return nil
}

// DecodeValidate parses a class and validates it.
func DecodeValidate(data []byte) (*Class, error) {
	c, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks a single method: descriptor, operands, labels, local
// indices and the declared stack bound.
func (m *Method) Validate() error {
	md, err := ParseMethodDesc(m.Desc)
	if err != nil {
		return err
	}
	params := uint32(len(md.Params))
	if !m.IsStatic() {
		params++
	}

	if !m.HasBody() {
		if len(m.Code) > 0 {
			return fmt.Errorf("abstract or native method has code")
		}
		return nil
	}
	if len(m.Code) == 0 {
		return fmt.Errorf("empty body")
	}
	if m.MaxLocals < params {
		return fmt.Errorf("max locals %d below parameter count %d", m.MaxLocals, params)
	}

	if err := m.validateLabels(); err != nil {
		return err
	}
	if err := m.validateOperands(); err != nil {
		return err
	}

	need, err := ComputeMaxStack(m)
	if err != nil {
		return err
	}
	if need > m.MaxStack {
		return fmt.Errorf("max stack %d below required %d", m.MaxStack, need)
	}
	return nil
}

func (m *Method) validateLabels() error {
	defined := make(map[uint32]int)
	for i, instr := range m.Code {
		if instr.Opcode != OpLabel {
			continue
		}
		id, ok := instr.LabelID()
		if !ok {
			return fmt.Errorf("instruction %d: label without id", i)
		}
		if prev, dup := defined[id]; dup {
			return fmt.Errorf("label %d defined at %d and %d", id, prev, i)
		}
		defined[id] = i
	}

	check := func(where string, id uint32) error {
		if _, ok := defined[id]; !ok {
			return fmt.Errorf("%s references undefined label %d", where, id)
		}
		return nil
	}
	for i, instr := range m.Code {
		for _, id := range instr.Targets() {
			if err := check(fmt.Sprintf("instruction %d", i), id); err != nil {
				return err
			}
		}
	}
	for i, r := range m.Ranges {
		where := fmt.Sprintf("range %d", i)
		for _, id := range []uint32{r.Start, r.End, r.Handler} {
			if err := check(where, id); err != nil {
				return err
			}
		}
		if defined[r.Start] > defined[r.End] {
			return fmt.Errorf("range %d ends before it starts", i)
		}
	}
	for _, lv := range m.LocalVars {
		where := fmt.Sprintf("local %q", lv.Name)
		if err := check(where, lv.Start); err != nil {
			return err
		}
		if err := check(where, lv.End); err != nil {
			return err
		}
	}
	return nil
}

func (m *Method) validateOperands() error {
	for i, instr := range m.Code {
		kind, ok := ImmediateKind(instr.Opcode)
		if !ok {
			return fmt.Errorf("instruction %d: unknown opcode 0x%02x", i, instr.Opcode)
		}
		switch kind {
		case ImmVar:
			imm, ok := instr.Imm.(VarImm)
			if !ok {
				return fmt.Errorf("instruction %d: %s needs a local index", i, OpcodeName(instr.Opcode))
			}
			if imm.Index >= m.MaxLocals {
				return fmt.Errorf("instruction %d: local %d out of range (max %d)", i, imm.Index, m.MaxLocals)
			}
		case ImmIinc:
			imm, ok := instr.Imm.(IincImm)
			if !ok || imm.Index >= m.MaxLocals {
				return fmt.Errorf("instruction %d: bad iinc operand", i)
			}
		case ImmMember:
			imm, ok := instr.Imm.(MemberImm)
			if !ok || imm.Owner == "" || imm.Name == "" {
				return fmt.Errorf("instruction %d: %s needs owner and name", i, OpcodeName(instr.Opcode))
			}
			if IsInvoke(instr.Opcode) {
				if _, err := ParseMethodDesc(imm.Desc); err != nil {
					return fmt.Errorf("instruction %d: %w", i, err)
				}
			} else if !ValidFieldDesc(imm.Desc) {
				return fmt.Errorf("instruction %d: bad field descriptor %q", i, imm.Desc)
			}
		case ImmType:
			imm, ok := instr.Imm.(TypeImm)
			if !ok || imm.Class == "" {
				return fmt.Errorf("instruction %d: %s needs a type", i, OpcodeName(instr.Opcode))
			}
		case ImmTableSwitch:
			if _, ok := instr.Imm.(TableSwitchImm); !ok {
				return fmt.Errorf("instruction %d: tableswitch needs a table", i)
			}
		case ImmLabel:
			if _, ok := instr.Imm.(LabelImm); !ok {
				return fmt.Errorf("instruction %d: %s needs a label", i, OpcodeName(instr.Opcode))
			}
		}
	}
	return nil
}
