package binary

import (
	"encoding/binary"
)

// AppendU32 appends v as unsigned LEB128.
func AppendU32(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendS64 appends v as signed LEB128.
func AppendS64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 && b&0x40 == 0 || v == -1 && b&0x40 != 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// Writer accumulates an encoded class. Writes never fail; size limits are
// the encoder's concern.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Byte writes one byte.
func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

// U32 writes v as unsigned LEB128.
func (w *Writer) U32(v uint32) {
	w.buf = AppendU32(w.buf, v)
}

// S32 writes v as signed LEB128.
func (w *Writer) S32(v int32) {
	w.buf = AppendS64(w.buf, int64(v))
}

// S64 writes v as signed LEB128.
func (w *Writer) S64(v int64) {
	w.buf = AppendS64(w.buf, v)
}

// Count writes a vector length.
func (w *Writer) Count(n int) {
	w.U32(uint32(n))
}

// Fixed32 writes v little-endian.
func (w *Writer) Fixed32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Fixed64 writes v little-endian.
func (w *Writer) Fixed64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Name writes a length-prefixed string.
func (w *Writer) Name(s string) {
	w.Count(len(s))
	w.buf = append(w.buf, s...)
}

// Names writes a vector of names.
func (w *Writer) Names(names []string) {
	w.Count(len(names))
	for _, n := range names {
		w.Name(n)
	}
}
