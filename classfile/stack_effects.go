package classfile

import "fmt"

// StackEffect describes the fixed operand-stack signature of an instruction.
// Pops lists kinds bottom-to-top.
type StackEffect struct {
	Pops   []SlotKind
	Pushes []SlotKind
}

var (
	kI = KindInt
	kJ = KindLong
	kF = KindFloat
	kD = KindDouble
	kA = KindRef
)

func eff(pops []SlotKind, pushes ...SlotKind) *StackEffect {
	return &StackEffect{Pops: pops, Pushes: pushes}
}

func ks(k ...SlotKind) []SlotKind { return k }

// GetStackEffect returns the stack effect for op from the static table.
// Returns nil for instructions whose effect depends on an operand
// (invokes, field access) or on the shape of the stack (pop2, dup family).
func GetStackEffect(op byte) *StackEffect {
	switch op {
	case OpNop, OpLabel, OpGoto, OpReturn, OpIInc:
		return eff(nil)
	case OpAConstNull, OpLdc, OpNew:
		return eff(nil, kA)
	case OpIConst:
		return eff(nil, kI)
	case OpLConst:
		return eff(nil, kJ)
	case OpFConst:
		return eff(nil, kF)
	case OpDConst:
		return eff(nil, kD)

	case OpILoad:
		return eff(nil, kI)
	case OpLLoad:
		return eff(nil, kJ)
	case OpFLoad:
		return eff(nil, kF)
	case OpDLoad:
		return eff(nil, kD)
	case OpALoad:
		return eff(nil, kA)
	case OpIStore, OpIReturn, OpIfEq, OpIfNe, OpIfLt, OpIfGe, OpIfGt, OpIfLe, OpTableSwitch:
		return eff(ks(kI))
	case OpLStore, OpLReturn:
		return eff(ks(kJ))
	case OpFStore, OpFReturn:
		return eff(ks(kF))
	case OpDStore, OpDReturn:
		return eff(ks(kD))
	case OpAStore, OpAReturn, OpAThrow, OpMonitorEnter, OpMonitorExit, OpIfNull, OpIfNonNull:
		return eff(ks(kA))

	case OpIALoad:
		return eff(ks(kA, kI), kI)
	case OpLALoad:
		return eff(ks(kA, kI), kJ)
	case OpFALoad:
		return eff(ks(kA, kI), kF)
	case OpDALoad:
		return eff(ks(kA, kI), kD)
	case OpAALoad:
		return eff(ks(kA, kI), kA)
	case OpIAStore:
		return eff(ks(kA, kI, kI))
	case OpLAStore:
		return eff(ks(kA, kI, kJ))
	case OpFAStore:
		return eff(ks(kA, kI, kF))
	case OpDAStore:
		return eff(ks(kA, kI, kD))
	case OpAAStore:
		return eff(ks(kA, kI, kA))

	case OpIAdd, OpISub, OpIMul, OpIDiv, OpIRem:
		return eff(ks(kI, kI), kI)
	case OpLAdd, OpLSub, OpLMul, OpLDiv, OpLRem:
		return eff(ks(kJ, kJ), kJ)
	case OpFAdd, OpFSub, OpFMul, OpFDiv:
		return eff(ks(kF, kF), kF)
	case OpDAdd, OpDSub, OpDMul, OpDDiv:
		return eff(ks(kD, kD), kD)
	case OpINeg:
		return eff(ks(kI), kI)
	case OpLNeg:
		return eff(ks(kJ), kJ)

	case OpI2L:
		return eff(ks(kI), kJ)
	case OpI2F:
		return eff(ks(kI), kF)
	case OpI2D:
		return eff(ks(kI), kD)
	case OpL2I:
		return eff(ks(kJ), kI)
	case OpL2D:
		return eff(ks(kJ), kD)
	case OpF2I:
		return eff(ks(kF), kI)
	case OpD2I:
		return eff(ks(kD), kI)
	case OpD2L:
		return eff(ks(kD), kJ)
	case OpLCmp:
		return eff(ks(kJ, kJ), kI)
	case OpFCmpL:
		return eff(ks(kF, kF), kI)
	case OpDCmpL:
		return eff(ks(kD, kD), kI)

	case OpIfICmpEq, OpIfICmpNe, OpIfICmpLt, OpIfICmpGe, OpIfICmpGt, OpIfICmpLe:
		return eff(ks(kI, kI))
	case OpIfACmpEq, OpIfACmpNe:
		return eff(ks(kA, kA))

	case OpNewArray, OpANewArray:
		return eff(ks(kI), kA)
	case OpArrayLength:
		return eff(ks(kA), kI)
	case OpCheckCast:
		return eff(ks(kA), kA)
	case OpInstanceOf:
		return eff(ks(kA), kI)
	}
	return nil
}

// StackDelta returns how many slots instr pops and pushes.
func StackDelta(instr Instruction) (pops, pushes int, err error) {
	if e := GetStackEffect(instr.Opcode); e != nil {
		return len(e.Pops), len(e.Pushes), nil
	}
	switch instr.Opcode {
	case OpPop:
		return 1, 0, nil
	case OpPop2:
		return 2, 0, nil
	case OpDup:
		return 1, 2, nil
	case OpDupX1:
		return 2, 3, nil
	case OpDupX2:
		return 3, 4, nil
	case OpDup2:
		return 2, 4, nil
	case OpSwap:
		return 2, 2, nil
	}
	imm, ok := instr.Imm.(MemberImm)
	if !ok {
		return 0, 0, fmt.Errorf("%s: missing member operand", OpcodeName(instr.Opcode))
	}
	switch instr.Opcode {
	case OpGetStatic:
		return 0, 1, nil
	case OpPutStatic:
		return 1, 0, nil
	case OpGetField:
		return 1, 1, nil
	case OpPutField:
		return 2, 0, nil
	case OpInvokeVirtual, OpInvokeSpecial, OpInvokeStatic, OpInvokeInterface:
		md, err := ParseMethodDesc(imm.Desc)
		if err != nil {
			return 0, 0, err
		}
		pops = len(md.Params)
		if instr.Opcode != OpInvokeStatic {
			pops++
		}
		if md.Return != "V" {
			pushes = 1
		}
		return pops, pushes, nil
	}
	return 0, 0, fmt.Errorf("unknown opcode 0x%02x", instr.Opcode)
}

// ComputeMaxStack returns the deepest operand stack any path through code
// reaches. Handlers start with the exception on the stack.
func ComputeMaxStack(m *Method) (uint32, error) {
	labels := LabelIndex(m.Code)
	depth := make([]int, len(m.Code))
	for i := range depth {
		depth[i] = -1
	}

	var work []int
	visit := func(at, d int) error {
		if at >= len(m.Code) {
			return nil
		}
		if depth[at] == -1 {
			depth[at] = d
			work = append(work, at)
			return nil
		}
		if depth[at] != d {
			return fmt.Errorf("inconsistent stack depth at %d: %d vs %d", at, depth[at], d)
		}
		return nil
	}
	target := func(id uint32) (int, error) {
		at, ok := labels[id]
		if !ok {
			return 0, fmt.Errorf("undefined label %d", id)
		}
		return at, nil
	}

	deepest := 0
	if len(m.Code) > 0 {
		if err := visit(0, 0); err != nil {
			return 0, err
		}
	}
	for _, r := range m.Ranges {
		at, err := target(r.Handler)
		if err != nil {
			return 0, err
		}
		if err := visit(at, 1); err != nil {
			return 0, err
		}
		if deepest < 1 {
			deepest = 1
		}
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		instr := m.Code[i]

		pops, pushes, err := StackDelta(instr)
		if err != nil {
			return 0, fmt.Errorf("instruction %d: %w", i, err)
		}
		d := depth[i]
		if d < pops {
			return 0, fmt.Errorf("instruction %d: stack underflow", i)
		}
		d += pushes - pops
		if d > deepest {
			deepest = d
		}

		for _, id := range instr.Targets() {
			at, err := target(id)
			if err != nil {
				return 0, err
			}
			if err := visit(at, d); err != nil {
				return 0, err
			}
		}
		if !EndsBlock(instr.Opcode) {
			if err := visit(i+1, d); err != nil {
				return 0, err
			}
		}
	}
	return uint32(deepest), nil
}
