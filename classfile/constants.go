package classfile

// Class container magic number and version.
const (
	// Magic is the container magic number ("\0cls" in little-endian).
	Magic uint32 = 0x736C6300

	// Version is the supported container format version.
	Version uint32 = 0x01
)

// Access and property flags shared by classes, fields and methods.
const (
	AccPublic       uint32 = 0x0001
	AccPrivate      uint32 = 0x0002
	AccProtected    uint32 = 0x0004
	AccStatic       uint32 = 0x0008
	AccFinal        uint32 = 0x0010
	AccSynchronized uint32 = 0x0020
	AccNative       uint32 = 0x0100
	AccInterface    uint32 = 0x0200
	AccAbstract     uint32 = 0x0400
	AccSynthetic    uint32 = 0x1000
)

// Well-known class names the engine and the runtime agree on.
const (
	ObjectClass      = "core/Object"
	ThrowableClass   = "core/Throwable"
	StringClass      = "core/String"
	NullClass        = "null" // type of the aconst_null constant during analysis
	SuspendClass     = "coro/SuspendExecution"
	StackClass       = "coro/Stack"
	CoroutineClass   = "coro/Coroutine"
	InstrumentedMark = "coro/Instrumented"
)

// Opcodes. Numbering follows the classic stack-machine layout; every value,
// long and double included, occupies a single slot.
const (
	OpNop        byte = 0x00
	OpAConstNull byte = 0x01
	OpLConst     byte = 0x09
	OpFConst     byte = 0x0b
	OpDConst     byte = 0x0e
	OpIConst     byte = 0x10
	OpLdc        byte = 0x12

	OpILoad byte = 0x15
	OpLLoad byte = 0x16
	OpFLoad byte = 0x17
	OpDLoad byte = 0x18
	OpALoad byte = 0x19

	OpIALoad byte = 0x2e
	OpLALoad byte = 0x2f
	OpFALoad byte = 0x30
	OpDALoad byte = 0x31
	OpAALoad byte = 0x32

	OpIStore byte = 0x36
	OpLStore byte = 0x37
	OpFStore byte = 0x38
	OpDStore byte = 0x39
	OpAStore byte = 0x3a

	OpIAStore byte = 0x4f
	OpLAStore byte = 0x50
	OpFAStore byte = 0x51
	OpDAStore byte = 0x52
	OpAAStore byte = 0x53

	OpPop   byte = 0x57
	OpPop2  byte = 0x58
	OpDup   byte = 0x59
	OpDupX1 byte = 0x5a
	OpDupX2 byte = 0x5b
	OpDup2  byte = 0x5c
	OpSwap  byte = 0x5f
	OpIAdd  byte = 0x60
	OpLAdd  byte = 0x61
	OpFAdd  byte = 0x62
	OpDAdd  byte = 0x63
	OpISub  byte = 0x64
	OpLSub  byte = 0x65
	OpFSub  byte = 0x66
	OpDSub  byte = 0x67
	OpIMul  byte = 0x68
	OpLMul  byte = 0x69
	OpFMul  byte = 0x6a
	OpDMul  byte = 0x6b
	OpIDiv  byte = 0x6c
	OpLDiv  byte = 0x6d
	OpFDiv  byte = 0x6e
	OpDDiv  byte = 0x6f
	OpIRem  byte = 0x70
	OpLRem  byte = 0x71
	OpINeg  byte = 0x74
	OpLNeg  byte = 0x75
	OpIInc  byte = 0x84
	OpI2L   byte = 0x85
	OpI2F   byte = 0x86
	OpI2D   byte = 0x87
	OpL2I   byte = 0x88
	OpL2D   byte = 0x8a
	OpF2I   byte = 0x8b
	OpD2I   byte = 0x8e
	OpD2L   byte = 0x8f
	OpLCmp  byte = 0x94
	OpFCmpL byte = 0x95
	OpDCmpL byte = 0x97

	OpIfEq        byte = 0x99
	OpIfNe        byte = 0x9a
	OpIfLt        byte = 0x9b
	OpIfGe        byte = 0x9c
	OpIfGt        byte = 0x9d
	OpIfLe        byte = 0x9e
	OpIfICmpEq    byte = 0x9f
	OpIfICmpNe    byte = 0xa0
	OpIfICmpLt    byte = 0xa1
	OpIfICmpGe    byte = 0xa2
	OpIfICmpGt    byte = 0xa3
	OpIfICmpLe    byte = 0xa4
	OpIfACmpEq    byte = 0xa5
	OpIfACmpNe    byte = 0xa6
	OpGoto        byte = 0xa7
	OpTableSwitch byte = 0xaa

	OpIReturn byte = 0xac
	OpLReturn byte = 0xad
	OpFReturn byte = 0xae
	OpDReturn byte = 0xaf
	OpAReturn byte = 0xb0
	OpReturn  byte = 0xb1

	OpGetStatic       byte = 0xb2
	OpPutStatic       byte = 0xb3
	OpGetField        byte = 0xb4
	OpPutField        byte = 0xb5
	OpInvokeVirtual   byte = 0xb6
	OpInvokeSpecial   byte = 0xb7
	OpInvokeStatic    byte = 0xb8
	OpInvokeInterface byte = 0xb9

	OpNew          byte = 0xbb
	OpNewArray     byte = 0xbc
	OpANewArray    byte = 0xbd
	OpArrayLength  byte = 0xbe
	OpAThrow       byte = 0xbf
	OpCheckCast    byte = 0xc0
	OpInstanceOf   byte = 0xc1
	OpMonitorEnter byte = 0xc2
	OpMonitorExit  byte = 0xc3
	OpIfNull       byte = 0xc6
	OpIfNonNull    byte = 0xc7

	// OpLabel is a pseudo-instruction marking a branch or range target.
	OpLabel byte = 0xff
)

// ImmKind describes the immediate operand layout of an opcode.
type ImmKind byte

const (
	ImmNone ImmKind = iota
	ImmInt
	ImmLong
	ImmFloat
	ImmDouble
	ImmString
	ImmVar
	ImmIinc
	ImmLabel
	ImmTableSwitch
	ImmMember
	ImmType
)

type opInfo struct {
	name string
	imm  ImmKind
}

var opTable = map[byte]opInfo{
	OpNop:        {"nop", ImmNone},
	OpAConstNull: {"aconst_null", ImmNone},
	OpIConst:     {"iconst", ImmInt},
	OpLConst:     {"lconst", ImmLong},
	OpFConst:     {"fconst", ImmFloat},
	OpDConst:     {"dconst", ImmDouble},
	OpLdc:        {"ldc", ImmString},

	OpILoad:  {"iload", ImmVar},
	OpLLoad:  {"lload", ImmVar},
	OpFLoad:  {"fload", ImmVar},
	OpDLoad:  {"dload", ImmVar},
	OpALoad:  {"aload", ImmVar},
	OpIStore: {"istore", ImmVar},
	OpLStore: {"lstore", ImmVar},
	OpFStore: {"fstore", ImmVar},
	OpDStore: {"dstore", ImmVar},
	OpAStore: {"astore", ImmVar},
	OpIInc:   {"iinc", ImmIinc},

	OpIALoad:  {"iaload", ImmNone},
	OpLALoad:  {"laload", ImmNone},
	OpFALoad:  {"faload", ImmNone},
	OpDALoad:  {"daload", ImmNone},
	OpAALoad:  {"aaload", ImmNone},
	OpIAStore: {"iastore", ImmNone},
	OpLAStore: {"lastore", ImmNone},
	OpFAStore: {"fastore", ImmNone},
	OpDAStore: {"dastore", ImmNone},
	OpAAStore: {"aastore", ImmNone},

	OpPop:   {"pop", ImmNone},
	OpPop2:  {"pop2", ImmNone},
	OpDup:   {"dup", ImmNone},
	OpDupX1: {"dup_x1", ImmNone},
	OpDupX2: {"dup_x2", ImmNone},
	OpDup2:  {"dup2", ImmNone},
	OpSwap:  {"swap", ImmNone},

	OpIAdd: {"iadd", ImmNone},
	OpLAdd: {"ladd", ImmNone},
	OpFAdd: {"fadd", ImmNone},
	OpDAdd: {"dadd", ImmNone},
	OpISub: {"isub", ImmNone},
	OpLSub: {"lsub", ImmNone},
	OpFSub: {"fsub", ImmNone},
	OpDSub: {"dsub", ImmNone},
	OpIMul: {"imul", ImmNone},
	OpLMul: {"lmul", ImmNone},
	OpFMul: {"fmul", ImmNone},
	OpDMul: {"dmul", ImmNone},
	OpIDiv: {"idiv", ImmNone},
	OpLDiv: {"ldiv", ImmNone},
	OpFDiv: {"fdiv", ImmNone},
	OpDDiv: {"ddiv", ImmNone},
	OpIRem: {"irem", ImmNone},
	OpLRem: {"lrem", ImmNone},
	OpINeg: {"ineg", ImmNone},
	OpLNeg: {"lneg", ImmNone},

	OpI2L:   {"i2l", ImmNone},
	OpI2F:   {"i2f", ImmNone},
	OpI2D:   {"i2d", ImmNone},
	OpL2I:   {"l2i", ImmNone},
	OpL2D:   {"l2d", ImmNone},
	OpF2I:   {"f2i", ImmNone},
	OpD2I:   {"d2i", ImmNone},
	OpD2L:   {"d2l", ImmNone},
	OpLCmp:  {"lcmp", ImmNone},
	OpFCmpL: {"fcmpl", ImmNone},
	OpDCmpL: {"dcmpl", ImmNone},

	OpIfEq:        {"ifeq", ImmLabel},
	OpIfNe:        {"ifne", ImmLabel},
	OpIfLt:        {"iflt", ImmLabel},
	OpIfGe:        {"ifge", ImmLabel},
	OpIfGt:        {"ifgt", ImmLabel},
	OpIfLe:        {"ifle", ImmLabel},
	OpIfICmpEq:    {"if_icmpeq", ImmLabel},
	OpIfICmpNe:    {"if_icmpne", ImmLabel},
	OpIfICmpLt:    {"if_icmplt", ImmLabel},
	OpIfICmpGe:    {"if_icmpge", ImmLabel},
	OpIfICmpGt:    {"if_icmpgt", ImmLabel},
	OpIfICmpLe:    {"if_icmple", ImmLabel},
	OpIfACmpEq:    {"if_acmpeq", ImmLabel},
	OpIfACmpNe:    {"if_acmpne", ImmLabel},
	OpIfNull:      {"ifnull", ImmLabel},
	OpIfNonNull:   {"ifnonnull", ImmLabel},
	OpGoto:        {"goto", ImmLabel},
	OpTableSwitch: {"tableswitch", ImmTableSwitch},
	OpLabel:       {"label", ImmLabel},

	OpIReturn: {"ireturn", ImmNone},
	OpLReturn: {"lreturn", ImmNone},
	OpFReturn: {"freturn", ImmNone},
	OpDReturn: {"dreturn", ImmNone},
	OpAReturn: {"areturn", ImmNone},
	OpReturn:  {"return", ImmNone},

	OpGetStatic:       {"getstatic", ImmMember},
	OpPutStatic:       {"putstatic", ImmMember},
	OpGetField:        {"getfield", ImmMember},
	OpPutField:        {"putfield", ImmMember},
	OpInvokeVirtual:   {"invokevirtual", ImmMember},
	OpInvokeSpecial:   {"invokespecial", ImmMember},
	OpInvokeStatic:    {"invokestatic", ImmMember},
	OpInvokeInterface: {"invokeinterface", ImmMember},

	OpNew:          {"new", ImmType},
	OpNewArray:     {"newarray", ImmType},
	OpANewArray:    {"anewarray", ImmType},
	OpArrayLength:  {"arraylength", ImmNone},
	OpAThrow:       {"athrow", ImmNone},
	OpCheckCast:    {"checkcast", ImmType},
	OpInstanceOf:   {"instanceof", ImmType},
	OpMonitorEnter: {"monitorenter", ImmNone},
	OpMonitorExit:  {"monitorexit", ImmNone},
}

var opByName = func() map[string]byte {
	m := make(map[string]byte, len(opTable))
	for op, info := range opTable {
		m[info.name] = op
	}
	return m
}()

// OpcodeName returns the mnemonic of op, or "" when op is not defined.
func OpcodeName(op byte) string {
	return opTable[op].name
}

// LookupOpcode maps a mnemonic back to its opcode.
func LookupOpcode(name string) (byte, bool) {
	op, ok := opByName[name]
	return op, ok
}

// ImmediateKind returns the immediate layout of op and whether op is defined.
func ImmediateKind(op byte) (ImmKind, bool) {
	info, ok := opTable[op]
	return info.imm, ok
}

// IsInvoke reports whether op is one of the four invoke instructions.
func IsInvoke(op byte) bool {
	return op >= OpInvokeVirtual && op <= OpInvokeInterface
}

// IsReturn reports whether op returns from the method.
func IsReturn(op byte) bool {
	return op >= OpIReturn && op <= OpReturn
}

// IsBranch reports whether op is a conditional or unconditional jump to a label.
func IsBranch(op byte) bool {
	return (op >= OpIfEq && op <= OpGoto) || op == OpIfNull || op == OpIfNonNull
}

// EndsBlock reports whether control never falls through op.
func EndsBlock(op byte) bool {
	return op == OpGoto || op == OpTableSwitch || op == OpAThrow || IsReturn(op)
}
