package vm

import (
	stderrors "errors"
	"fmt"

	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/coroutine"
)

// Value is a slot value: int32, int64, float32, float64, nil, string
// (core/String), *Object or *Array.
type Value = any

// Object is an instance of a loaded class. Native carries host state for
// classes implemented in Go.
type Object struct {
	Class  *Class
	Fields map[string]Value
	Native any
	id     uint64
}

// ClassName returns the name of the object's class.
func (o *Object) ClassName() string {
	return o.Class.Name()
}

// Array is a one-dimensional array. Desc is the array descriptor, e.g. "[I".
type Array struct {
	Desc  string
	Elems []Value
}

// Throw is a thrown exception object travelling up the host stack.
type Throw struct {
	Object *Object
	cause  error
}

func (t *Throw) Error() string {
	msg := t.Message()
	if msg == "" {
		return "uncaught " + t.Object.ClassName()
	}
	return fmt.Sprintf("uncaught %s: %s", t.Object.ClassName(), msg)
}

// Message returns the exception's message field.
func (t *Throw) Message() string {
	if s, ok := t.Object.Fields["message"].(string); ok {
		return s
	}
	return ""
}

// Unwrap returns the host error the exception was raised for, if any.
func (t *Throw) Unwrap() error {
	return t.cause
}

// Is matches coroutine.ErrSuspend for the suspend signal.
func (t *Throw) Is(target error) bool {
	return target == coroutine.ErrSuspend && t.Object.Class.IsSubclassOf(classfile.SuspendClass)
}

// IsSuspend reports whether err carries the suspend signal.
func IsSuspend(err error) bool {
	return stderrors.Is(err, coroutine.ErrSuspend)
}

// zeroValue returns the default value of a field or array element.
func zeroValue(desc string) Value {
	switch classfile.DescKind(desc) {
	case classfile.KindInt:
		return int32(0)
	case classfile.KindLong:
		return int64(0)
	case classfile.KindFloat:
		return float32(0)
	case classfile.KindDouble:
		return float64(0)
	}
	return nil
}
