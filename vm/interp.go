package vm

import (
	"fmt"
	"math"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
)

// step executes one instruction. It returns the next pc, or the return
// value with done set.
func (t *Thread) step(m *Method, f *frame, instr classfile.Instruction, pc int) (next int, ret Value, done bool, err error) {
	next = pc + 1
	jump := func(id uint32) int { return m.labels[id] }

	switch op := instr.Opcode; op {
	case classfile.OpNop, classfile.OpLabel:

	case classfile.OpAConstNull:
		f.push(nil)
	case classfile.OpIConst:
		f.push(instr.Imm.(classfile.IntImm).Value)
	case classfile.OpLConst:
		f.push(instr.Imm.(classfile.LongImm).Value)
	case classfile.OpFConst:
		f.push(instr.Imm.(classfile.FloatImm).Value)
	case classfile.OpDConst:
		f.push(instr.Imm.(classfile.DoubleImm).Value)
	case classfile.OpLdc:
		f.push(instr.Imm.(classfile.StringImm).Value)

	case classfile.OpILoad, classfile.OpLLoad, classfile.OpFLoad, classfile.OpDLoad, classfile.OpALoad:
		f.push(f.locals[instr.Imm.(classfile.VarImm).Index])
	case classfile.OpIStore, classfile.OpLStore, classfile.OpFStore, classfile.OpDStore, classfile.OpAStore:
		f.locals[instr.Imm.(classfile.VarImm).Index] = f.pop()
	case classfile.OpIInc:
		imm := instr.Imm.(classfile.IincImm)
		f.locals[imm.Index] = f.locals[imm.Index].(int32) + imm.Delta

	case classfile.OpIALoad, classfile.OpLALoad, classfile.OpFALoad, classfile.OpDALoad, classfile.OpAALoad:
		idx := f.popInt()
		arr, err := t.arrayRef(f.pop(), idx)
		if err != nil {
			return 0, nil, false, err
		}
		f.push(arr.Elems[idx])
	case classfile.OpIAStore, classfile.OpLAStore, classfile.OpFAStore, classfile.OpDAStore, classfile.OpAAStore:
		v := f.pop()
		idx := f.popInt()
		arr, err := t.arrayRef(f.pop(), idx)
		if err != nil {
			return 0, nil, false, err
		}
		if op == classfile.OpAAStore && v != nil {
			if elem := classfile.ElementDesc(arr.Desc); !t.instanceOf(v, classfile.ClassOf(elem)) {
				return 0, nil, false, t.throwNew("core/ClassCastException", "array store of incompatible element")
			}
		}
		arr.Elems[idx] = v

	case classfile.OpPop:
		f.pop()
	case classfile.OpPop2:
		f.pop()
		f.pop()
	case classfile.OpDup:
		f.push(f.stack[len(f.stack)-1])
	case classfile.OpDupX1:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case classfile.OpDupX2:
		v1, v2, v3 := f.pop(), f.pop(), f.pop()
		f.push(v1)
		f.push(v3)
		f.push(v2)
		f.push(v1)
	case classfile.OpDup2:
		v1, v2 := f.pop(), f.pop()
		f.push(v2)
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case classfile.OpSwap:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)

	case classfile.OpIAdd, classfile.OpISub, classfile.OpIMul, classfile.OpIDiv, classfile.OpIRem:
		b, a := f.popInt(), f.popInt()
		r, err := t.intArith(op, a, b)
		if err != nil {
			return 0, nil, false, err
		}
		f.push(r)
	case classfile.OpLAdd, classfile.OpLSub, classfile.OpLMul, classfile.OpLDiv, classfile.OpLRem:
		b, a := f.popLong(), f.popLong()
		r, err := t.longArith(op, a, b)
		if err != nil {
			return 0, nil, false, err
		}
		f.push(r)
	case classfile.OpFAdd, classfile.OpFSub, classfile.OpFMul, classfile.OpFDiv:
		b, a := f.popFloat(), f.popFloat()
		f.push(float32(floatArith(op, float64(a), float64(b))))
	case classfile.OpDAdd, classfile.OpDSub, classfile.OpDMul, classfile.OpDDiv:
		b, a := f.popDouble(), f.popDouble()
		f.push(floatArith(op, a, b))
	case classfile.OpINeg:
		f.push(-f.popInt())
	case classfile.OpLNeg:
		f.push(-f.popLong())

	case classfile.OpI2L:
		f.push(int64(f.popInt()))
	case classfile.OpI2F:
		f.push(float32(f.popInt()))
	case classfile.OpI2D:
		f.push(float64(f.popInt()))
	case classfile.OpL2I:
		f.push(int32(f.popLong()))
	case classfile.OpL2D:
		f.push(float64(f.popLong()))
	case classfile.OpF2I:
		f.push(int32(saturate(float64(f.popFloat()), math.MinInt32, math.MaxInt32)))
	case classfile.OpD2I:
		f.push(int32(saturate(f.popDouble(), math.MinInt32, math.MaxInt32)))
	case classfile.OpD2L:
		f.push(d2l(f.popDouble()))

	case classfile.OpLCmp:
		b, a := f.popLong(), f.popLong()
		f.push(compare(a < b, a > b))
	case classfile.OpFCmpL:
		b, a := f.popFloat(), f.popFloat()
		f.push(compare(!(a >= b), a > b))
	case classfile.OpDCmpL:
		b, a := f.popDouble(), f.popDouble()
		f.push(compare(!(a >= b), a > b))

	case classfile.OpIfEq, classfile.OpIfNe, classfile.OpIfLt, classfile.OpIfGe, classfile.OpIfGt, classfile.OpIfLe:
		if intCond(op-classfile.OpIfEq, f.popInt(), 0) {
			next = jump(instr.Imm.(classfile.LabelImm).Label)
		}
	case classfile.OpIfICmpEq, classfile.OpIfICmpNe, classfile.OpIfICmpLt, classfile.OpIfICmpGe, classfile.OpIfICmpGt, classfile.OpIfICmpLe:
		b, a := f.popInt(), f.popInt()
		if intCond(op-classfile.OpIfICmpEq, a, b) {
			next = jump(instr.Imm.(classfile.LabelImm).Label)
		}
	case classfile.OpIfACmpEq, classfile.OpIfACmpNe:
		b, a := f.pop(), f.pop()
		if (a == b) == (op == classfile.OpIfACmpEq) {
			next = jump(instr.Imm.(classfile.LabelImm).Label)
		}
	case classfile.OpIfNull, classfile.OpIfNonNull:
		if (f.pop() == nil) == (op == classfile.OpIfNull) {
			next = jump(instr.Imm.(classfile.LabelImm).Label)
		}
	case classfile.OpGoto:
		next = jump(instr.Imm.(classfile.LabelImm).Label)
	case classfile.OpTableSwitch:
		imm := instr.Imm.(classfile.TableSwitchImm)
		key := int64(f.popInt()) - int64(imm.Low)
		if key >= 0 && key < int64(len(imm.Labels)) {
			next = jump(imm.Labels[key])
		} else {
			next = jump(imm.Default)
		}

	case classfile.OpIReturn, classfile.OpLReturn, classfile.OpFReturn, classfile.OpDReturn, classfile.OpAReturn:
		return 0, f.pop(), true, nil
	case classfile.OpReturn:
		return 0, nil, true, nil

	case classfile.OpGetStatic, classfile.OpPutStatic:
		imm := instr.Imm.(classfile.MemberImm)
		c, err := t.initClass(imm.Owner)
		if err != nil {
			return 0, nil, false, err
		}
		owner := c.staticOwner(imm.Name)
		if owner == nil {
			return 0, nil, false, errors.NotFound(errors.PhaseRuntime, "static field", imm.Owner+"."+imm.Name)
		}
		if op == classfile.OpGetStatic {
			f.push(owner.Statics[imm.Name])
		} else {
			owner.Statics[imm.Name] = f.pop()
		}
	case classfile.OpGetField:
		imm := instr.Imm.(classfile.MemberImm)
		obj, err := t.objectRef(f.pop(), imm.Name)
		if err != nil {
			return 0, nil, false, err
		}
		f.push(obj.Fields[imm.Name])
	case classfile.OpPutField:
		imm := instr.Imm.(classfile.MemberImm)
		v := f.pop()
		obj, err := t.objectRef(f.pop(), imm.Name)
		if err != nil {
			return 0, nil, false, err
		}
		obj.Fields[imm.Name] = v

	case classfile.OpInvokeVirtual, classfile.OpInvokeSpecial, classfile.OpInvokeStatic, classfile.OpInvokeInterface:
		if err := t.invoke(f, instr); err != nil {
			return 0, nil, false, err
		}

	case classfile.OpNew:
		c, err := t.initClass(instr.Imm.(classfile.TypeImm).Class)
		if err != nil {
			return 0, nil, false, err
		}
		if c.File.Flags&(classfile.AccAbstract|classfile.AccInterface) != 0 {
			return 0, nil, false, t.throwNew("core/IllegalStateException", "cannot instantiate "+c.Name())
		}
		f.push(t.m.allocate(c))
	case classfile.OpNewArray, classfile.OpANewArray:
		n := f.popInt()
		if n < 0 {
			return 0, nil, false, t.throwNew("core/NegativeArraySizeException", fmt.Sprint(n))
		}
		elem := instr.Imm.(classfile.TypeImm).Class
		if op == classfile.OpANewArray {
			elem = classfile.DescOf(elem)
		}
		arr := &Array{Desc: "[" + elem, Elems: make([]Value, n)}
		zero := zeroValue(elem)
		for i := range arr.Elems {
			arr.Elems[i] = zero
		}
		f.push(arr)
	case classfile.OpArrayLength:
		arr, err := t.arrayOf(f.pop())
		if err != nil {
			return 0, nil, false, err
		}
		f.push(int32(len(arr.Elems)))

	case classfile.OpAThrow:
		v := f.pop()
		obj, ok := v.(*Object)
		if !ok {
			return 0, nil, false, t.throwNew("core/NullPointerException", "throw of null")
		}
		return 0, nil, false, &Throw{Object: obj}
	case classfile.OpCheckCast:
		class := instr.Imm.(classfile.TypeImm).Class
		if v := f.stack[len(f.stack)-1]; v != nil && !t.instanceOf(v, class) {
			c, _ := t.classOf(v)
			name := "array"
			if c != nil {
				name = c.Name()
			}
			return 0, nil, false, t.throwNew("core/ClassCastException", name+" cannot be cast to "+class)
		}
	case classfile.OpInstanceOf:
		v := f.pop()
		if v != nil && t.instanceOf(v, instr.Imm.(classfile.TypeImm).Class) {
			f.push(int32(1))
		} else {
			f.push(int32(0))
		}
	case classfile.OpMonitorEnter, classfile.OpMonitorExit:
		if f.pop() == nil {
			return 0, nil, false, t.throwNew("core/NullPointerException", "monitor on null")
		}

	default:
		return 0, nil, false, errors.Unsupported(errors.PhaseRuntime, "opcode "+classfile.OpcodeName(op))
	}
	return next, nil, false, nil
}

func (t *Thread) invoke(f *frame, instr classfile.Instruction) error {
	imm := instr.Imm.(classfile.MemberImm)
	md, err := classfile.ParseMethodDesc(imm.Desc)
	if err != nil {
		return err
	}
	n := len(md.Params)
	if instr.Opcode != classfile.OpInvokeStatic {
		n++
	}
	args := f.popArgs(n)

	var m *Method
	switch instr.Opcode {
	case classfile.OpInvokeStatic:
		c, err := t.initClass(imm.Owner)
		if err != nil {
			return err
		}
		m = c.FindMethod(imm.Name, imm.Desc)
	case classfile.OpInvokeSpecial:
		if args[0] == nil {
			return t.throwNew("core/NullPointerException", "invoke "+imm.Name+" on null")
		}
		c, err := t.m.LoadClass(imm.Owner)
		if err != nil {
			return err
		}
		m = c.FindMethod(imm.Name, imm.Desc)
	default:
		if m, err = t.virtualMethod(args[0], imm.Name, imm.Desc); err != nil {
			return err
		}
	}
	if m == nil {
		return errors.NotFound(errors.PhaseRuntime, "method", imm.Owner+"."+imm.Name+imm.Desc)
	}

	ret, err := t.call(m, args)
	if err != nil {
		return err
	}
	if md.Return != "V" {
		f.push(ret)
	}
	return nil
}

func (t *Thread) arrayRef(v Value, idx int32) (*Array, error) {
	arr, err := t.arrayOf(v)
	if err != nil {
		return nil, err
	}
	if idx < 0 || int(idx) >= len(arr.Elems) {
		return nil, t.throwNew("core/ArrayIndexOutOfBoundsException", fmt.Sprintf("index %d out of bounds for length %d", idx, len(arr.Elems)))
	}
	return arr, nil
}

func (t *Thread) arrayOf(v Value) (*Array, error) {
	arr, ok := v.(*Array)
	if !ok {
		return nil, t.throwNew("core/NullPointerException", "array access on null")
	}
	return arr, nil
}

func (t *Thread) objectRef(v Value, field string) (*Object, error) {
	obj, ok := v.(*Object)
	if !ok {
		return nil, t.throwNew("core/NullPointerException", "field "+field+" of null")
	}
	return obj, nil
}

func (t *Thread) intArith(op byte, a, b int32) (int32, error) {
	switch op {
	case classfile.OpIAdd:
		return a + b, nil
	case classfile.OpISub:
		return a - b, nil
	case classfile.OpIMul:
		return a * b, nil
	}
	if b == 0 {
		return 0, t.throwNew("core/ArithmeticException", "/ by zero")
	}
	if op == classfile.OpIDiv {
		return a / b, nil
	}
	return a % b, nil
}

func (t *Thread) longArith(op byte, a, b int64) (int64, error) {
	switch op {
	case classfile.OpLAdd:
		return a + b, nil
	case classfile.OpLSub:
		return a - b, nil
	case classfile.OpLMul:
		return a * b, nil
	}
	if b == 0 {
		return 0, t.throwNew("core/ArithmeticException", "/ by zero")
	}
	if op == classfile.OpLDiv {
		return a / b, nil
	}
	return a % b, nil
}

func floatArith(op byte, a, b float64) float64 {
	switch op {
	case classfile.OpFAdd, classfile.OpDAdd:
		return a + b
	case classfile.OpFSub, classfile.OpDSub:
		return a - b
	case classfile.OpFMul, classfile.OpDMul:
		return a * b
	}
	return a / b
}

// intCond evaluates the comparison selected by the offset of an if opcode
// from the first of its family: eq, ne, lt, ge, gt, le.
func intCond(sel byte, a, b int32) bool {
	switch sel {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	}
	return a <= b
}

func compare(less, greater bool) int32 {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func saturate(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func d2l(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}
