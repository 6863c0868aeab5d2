package classfile

import "fmt"

// SlotKind is the storage kind of one value slot.
type SlotKind byte

const (
	KindVoid   SlotKind = 'V'
	KindInt    SlotKind = 'I'
	KindLong   SlotKind = 'J'
	KindFloat  SlotKind = 'F'
	KindDouble SlotKind = 'D'
	KindRef    SlotKind = 'A'
)

func (k SlotKind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindRef:
		return "ref"
	}
	return fmt.Sprintf("kind(%c)", byte(k))
}

// IsPrimitive reports whether values of kind k live in primitive storage.
func (k SlotKind) IsPrimitive() bool {
	return k == KindInt || k == KindLong || k == KindFloat || k == KindDouble
}

// DescKind returns the slot kind of a field descriptor.
func DescKind(desc string) SlotKind {
	if desc == "" {
		return KindVoid
	}
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return KindInt
	case 'J':
		return KindLong
	case 'F':
		return KindFloat
	case 'D':
		return KindDouble
	case 'V':
		return KindVoid
	}
	return KindRef
}

// ClassOf returns the class name a reference descriptor denotes. Array
// descriptors are their own class name.
func ClassOf(desc string) string {
	if len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}

// DescOf returns the field descriptor of a class name.
func DescOf(class string) string {
	if len(class) > 0 && class[0] == '[' {
		return class
	}
	return "L" + class + ";"
}

// IsArray reports whether a class name or descriptor denotes an array.
func IsArray(name string) bool {
	return len(name) > 0 && name[0] == '['
}

// ElementDesc returns the element descriptor of an array class name.
func ElementDesc(array string) string {
	if IsArray(array) {
		return array[1:]
	}
	return ""
}

// MethodDesc is a parsed method descriptor.
type MethodDesc struct {
	Return string
	Params []string
}

// ParseMethodDesc splits "(params)ret" into field descriptors.
func ParseMethodDesc(desc string) (MethodDesc, error) {
	var md MethodDesc
	if len(desc) < 3 || desc[0] != '(' {
		return md, fmt.Errorf("malformed method descriptor %q", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldDescLen(desc[i:])
		if err != nil {
			return md, fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		md.Params = append(md.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return md, fmt.Errorf("unterminated method descriptor %q", desc)
	}
	ret := desc[i+1:]
	if ret != "V" {
		n, err := fieldDescLen(ret)
		if err != nil || n != len(ret) {
			return md, fmt.Errorf("bad return type in %q", desc)
		}
	}
	md.Return = ret
	return md, nil
}

// ArgCount returns the number of parameter slots of a method descriptor, or
// -1 when the descriptor is malformed.
func ArgCount(desc string) int {
	md, err := ParseMethodDesc(desc)
	if err != nil {
		return -1
	}
	return len(md.Params)
}

func fieldDescLen(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty type")
	}
	switch s[0] {
	case 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
		return 1, nil
	case 'L':
		for i := 1; i < len(s); i++ {
			if s[i] == ';' {
				if i == 1 {
					return 0, fmt.Errorf("empty class name")
				}
				return i + 1, nil
			}
		}
		return 0, fmt.Errorf("unterminated class type %q", s)
	case '[':
		n, err := fieldDescLen(s[1:])
		return n + 1, err
	}
	return 0, fmt.Errorf("unknown type %q", s[:1])
}

// ValidFieldDesc reports whether s is exactly one field descriptor.
func ValidFieldDesc(s string) bool {
	n, err := fieldDescLen(s)
	return err == nil && n == len(s)
}
