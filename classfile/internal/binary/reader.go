package binary

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Decoding errors. They surface wrapped in a *ParseError.
var (
	ErrOverflow    = errors.New("leb128: overflow")
	ErrLength      = errors.New("vector length exceeds remaining data")
	ErrInvalidName = errors.New("invalid UTF-8 in name")
	ErrTrailing    = errors.New("trailing bytes after class")
)

// ParseError reports where decoding stopped: the byte offset and the chain
// of sections being read, outermost first.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("classfile: %s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("classfile: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type section struct {
	name  string
	index int // -1 when the section is not an element of a vector
}

// Reader decodes the class container from memory. The first failure
// sticks: every later read returns a zero value and Err reports the
// failure with the section it happened in. Callers check Err once per
// unit instead of after every field.
type Reader struct {
	data     []byte
	pos      int
	sections []section
	err      *ParseError
}

// NewReader creates a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current byte offset.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Enter opens a named section used to attribute failures.
func (r *Reader) Enter(name string) {
	r.sections = append(r.sections, section{name: name, index: -1})
}

// EnterItem opens the i-th element of a vector section. The label is only
// formatted when a failure is reported.
func (r *Reader) EnterItem(name string, i int) {
	r.sections = append(r.sections, section{name: name, index: i})
}

// Leave closes the innermost section.
func (r *Reader) Leave() {
	r.sections = r.sections[:len(r.sections)-1]
}

// Fail records err at the current position unless a failure is already
// recorded.
func (r *Reader) Fail(err error) {
	if r.err != nil {
		return
	}
	parts := make([]string, len(r.sections))
	for i, s := range r.sections {
		parts[i] = s.name
		if s.index >= 0 {
			parts[i] += " " + strconv.Itoa(s.index)
		}
	}
	r.err = &ParseError{Err: err, Section: strings.Join(parts, ": "), Position: r.pos}
}

// Err returns the recorded failure, or nil.
func (r *Reader) Err() error {
	if r.err == nil {
		return nil
	}
	return r.err
}

// Finish fails on unread bytes and returns Err.
func (r *Reader) Finish() error {
	if r.err == nil && r.Remaining() > 0 {
		r.Fail(ErrTrailing)
	}
	return r.Err()
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n > r.Remaining() {
		r.Fail(io.ErrUnexpectedEOF)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// Byte reads one byte.
func (r *Reader) Byte() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

// Fixed32 reads a little-endian uint32.
func (r *Reader) Fixed32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Fixed64 reads a little-endian uint64.
func (r *Reader) Fixed64() uint64 {
	lo := r.Fixed32()
	hi := r.Fixed32()
	return uint64(lo) | uint64(hi)<<32
}

// U32 reads an unsigned LEB128 value.
func (r *Reader) U32() uint32 {
	var v uint32
	for shift := uint(0); ; shift += 7 {
		if shift >= 35 {
			r.Fail(ErrOverflow)
			return 0
		}
		b := r.Byte()
		if r.err != nil {
			return 0
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v
		}
	}
}

// S32 reads a signed LEB128 value.
func (r *Reader) S32() int32 {
	return int32(r.signed(35))
}

// S64 reads a signed LEB128 value.
func (r *Reader) S64() int64 {
	return r.signed(70)
}

func (r *Reader) signed(limit uint) int64 {
	var v int64
	var shift uint
	for {
		if shift >= limit {
			r.Fail(ErrOverflow)
			return 0
		}
		b := r.Byte()
		if r.err != nil {
			return 0
		}
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				v |= -1 << shift
			}
			return v
		}
	}
}

// Count reads a vector length whose elements take at least minSize bytes
// each, failing when the vector cannot fit in the remaining data.
func (r *Reader) Count(minSize int) int {
	n := int(r.U32())
	if r.err != nil {
		return 0
	}
	if minSize > 0 && n > r.Remaining()/minSize {
		r.Fail(ErrLength)
		return 0
	}
	return n
}

// Name reads a length-prefixed UTF-8 string.
func (r *Reader) Name() string {
	b := r.take(r.Count(1))
	if b == nil {
		return ""
	}
	if !utf8.Valid(b) {
		r.Fail(ErrInvalidName)
		return ""
	}
	return string(b)
}

// Names reads a vector of names. An empty vector decodes as nil.
func (r *Reader) Names() []string {
	n := r.Count(1)
	if n == 0 {
		return nil
	}
	names := make([]string, n)
	for i := range names {
		names[i] = r.Name()
	}
	return names
}
