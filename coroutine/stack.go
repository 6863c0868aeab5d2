package coroutine

import "math"

// DefaultStackSize is the initial number of method records.
const DefaultStackSize = 16

// record is the saved state of one suspended method activation.
type record struct {
	objects []any
	prims   []uint64
	entry   int
}

// Stack stores the frames of suspended methods outside the host call
// stack. Instrumented code calls NextMethodEntry on entry, PushMethod plus
// the setters before each suspendable call, the getters when resuming and
// PopMethod before returning.
//
// A Stack is owned by one coroutine and is not safe for concurrent use.
type Stack struct {
	co      *Coroutine
	records []record
	tos     int
}

// NewStack creates a stack with room for size method records.
func NewStack(size int) *Stack {
	if size <= 0 {
		size = DefaultStackSize
	}
	return &Stack{records: make([]record, size), tos: -1}
}

// Coroutine returns the coroutine owning the stack, nil for a detached stack.
func (s *Stack) Coroutine() *Coroutine {
	return s.co
}

// NextMethodEntry enters the next activation and returns the entry it was
// suspended at, 0 when it starts fresh.
func (s *Stack) NextMethodEntry() int {
	s.tos++
	if s.tos >= len(s.records) {
		grown := make([]record, 2*len(s.records))
		copy(grown, s.records)
		s.records = grown
	}
	return s.records[s.tos].entry
}

// PushMethod records the entry of the current activation and sizes its
// slot arrays.
func (s *Stack) PushMethod(entry, numObj, numPrim int) {
	r := &s.records[s.tos]
	r.entry = entry
	r.objects = resize(r.objects, numObj)
	r.prims = resizePrims(r.prims, numPrim)
}

// PopMethod discards the current activation.
func (s *Stack) PopMethod() {
	if s.tos < 0 {
		return
	}
	r := &s.records[s.tos]
	r.entry = 0
	clear(r.objects)
	r.objects = r.objects[:0]
	r.prims = r.prims[:0]
	s.tos--
}

// ResumeStack rewinds to the outermost activation so the next call to
// NextMethodEntry resumes it.
func (s *Stack) ResumeStack() {
	s.tos = -1
}

// Depth returns the number of activations currently entered.
func (s *Stack) Depth() int {
	return s.tos + 1
}

func resize(objs []any, n int) []any {
	if cap(objs) < n {
		return make([]any, n)
	}
	objs = objs[:n]
	clear(objs)
	return objs
}

func resizePrims(prims []uint64, n int) []uint64 {
	if cap(prims) < n {
		return make([]uint64, n)
	}
	prims = prims[:n]
	clear(prims)
	return prims
}

func (s *Stack) current() *record {
	return &s.records[s.tos]
}

// SetObject stores a reference in object slot.
func (s *Stack) SetObject(slot int, v any) { s.current().objects[slot] = v }

// SetInt stores an int in primitive slot.
func (s *Stack) SetInt(slot int, v int32) { s.current().prims[slot] = uint64(uint32(v)) }

// SetLong stores a long in primitive slot.
func (s *Stack) SetLong(slot int, v int64) { s.current().prims[slot] = uint64(v) }

// SetFloat stores a float in primitive slot.
func (s *Stack) SetFloat(slot int, v float32) {
	s.current().prims[slot] = uint64(math.Float32bits(v))
}

// SetDouble stores a double in primitive slot.
func (s *Stack) SetDouble(slot int, v float64) {
	s.current().prims[slot] = math.Float64bits(v)
}

// Object loads the reference in object slot.
func (s *Stack) Object(slot int) any { return s.current().objects[slot] }

// Int loads the int in primitive slot.
func (s *Stack) Int(slot int) int32 { return int32(uint32(s.current().prims[slot])) }

// Long loads the long in primitive slot.
func (s *Stack) Long(slot int) int64 { return int64(s.current().prims[slot]) }

// Float loads the float in primitive slot.
func (s *Stack) Float(slot int) float32 {
	return math.Float32frombits(uint32(s.current().prims[slot]))
}

// Double loads the double in primitive slot.
func (s *Stack) Double(slot int) float64 {
	return math.Float64frombits(s.current().prims[slot])
}

// Frame is a snapshot of one saved activation.
type Frame struct {
	Objects []any
	Prims   []uint64
	Entry   int
}

// Frames returns copies of every record holding a saved entry, outermost
// first. Records above the current depth are included so a suspended
// coroutine can be inspected after ResumeStack.
func (s *Stack) Frames() []Frame {
	var out []Frame
	for _, r := range s.records {
		if r.entry == 0 {
			break
		}
		out = append(out, Frame{
			Entry:   r.entry,
			Objects: append([]any(nil), r.objects...),
			Prims:   append([]uint64(nil), r.prims...),
		})
	}
	return out
}
