package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/resumable/asm/internal/parser"
	"github.com/wippyai/resumable/asm/internal/token"
	"github.com/wippyai/resumable/classfile"
	"github.com/wippyai/resumable/errors"
)

// AssembleAll parses every class form in source.
func AssembleAll(source string) ([]*classfile.Class, error) {
	tokens, err := token.Tokenize(source)
	if err != nil {
		return nil, errors.ParseFailed("assembly", err)
	}
	classes, err := parser.New(tokens).Parse()
	if err != nil {
		return nil, errors.ParseFailed("assembly", err)
	}
	return classes, nil
}

// Assemble parses source holding exactly one class.
func Assemble(source string) (*classfile.Class, error) {
	classes, err := AssembleAll(source)
	if err != nil {
		return nil, err
	}
	if len(classes) != 1 {
		return nil, errors.InvalidInput(errors.PhaseParse, fmt.Sprintf("expected one class, found %d", len(classes)))
	}
	return classes[0], nil
}

// AssembleBinary parses and validates one class and returns its encoding.
func AssembleBinary(source string) ([]byte, error) {
	c, err := Assemble(source)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseValidate, errors.KindInvalidData, err, c.Name)
	}
	data, err := c.Encode()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, c.Name)
	}
	return data, nil
}

var flagOrder = []struct {
	name string
	bit  uint32
}{
	{"public", classfile.AccPublic},
	{"private", classfile.AccPrivate},
	{"protected", classfile.AccProtected},
	{"static", classfile.AccStatic},
	{"final", classfile.AccFinal},
	{"synchronized", classfile.AccSynchronized},
	{"native", classfile.AccNative},
	{"interface", classfile.AccInterface},
	{"abstract", classfile.AccAbstract},
	{"synthetic", classfile.AccSynthetic},
}

func flagWords(flags uint32) string {
	var words []string
	for _, f := range flagOrder {
		if flags&f.bit != 0 {
			words = append(words, f.name)
		}
	}
	return strings.Join(words, " ")
}

func quoteAll(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = strconv.Quote(n)
	}
	return strings.Join(q, " ")
}

// Disassemble renders a class in the syntax Assemble accepts.
func Disassemble(c *classfile.Class) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(class %q", c.Name)
	if c.Super != "" {
		fmt.Fprintf(&b, "\n  (super %q)", c.Super)
	}
	if c.Flags != 0 {
		fmt.Fprintf(&b, "\n  (flags %s)", flagWords(c.Flags))
	}
	if len(c.Interfaces) > 0 {
		fmt.Fprintf(&b, "\n  (implements %s)", quoteAll(c.Interfaces))
	}
	if len(c.Annotations) > 0 {
		fmt.Fprintf(&b, "\n  (annotation %s)", quoteAll(c.Annotations))
	}
	for _, f := range c.Fields {
		fmt.Fprintf(&b, "\n  (field %q %q", f.Name, f.Desc)
		if f.Flags != 0 {
			b.WriteString(" " + flagWords(f.Flags))
		}
		b.WriteByte(')')
	}
	for _, m := range c.Methods {
		b.WriteString("\n")
		writeMethod(&b, m)
	}
	b.WriteString(")\n")
	return b.String()
}

func writeMethod(b *strings.Builder, m *classfile.Method) {
	fmt.Fprintf(b, "  (method %q %q", m.Name, m.Desc)
	if m.Flags != 0 {
		fmt.Fprintf(b, "\n    (flags %s)", flagWords(m.Flags))
	}
	if len(m.Exceptions) > 0 {
		fmt.Fprintf(b, "\n    (throws %s)", quoteAll(m.Exceptions))
	}
	if len(m.Annotations) > 0 {
		fmt.Fprintf(b, "\n    (annotation %s)", quoteAll(m.Annotations))
	}
	for i, anns := range m.ParamAnnotations {
		if len(anns) > 0 {
			fmt.Fprintf(b, "\n    (param-annotation %d %s)", i, quoteAll(anns))
		}
	}
	if !m.HasBody() {
		b.WriteByte(')')
		return
	}
	fmt.Fprintf(b, "\n    (locals %d) (stack %d)", m.MaxLocals, m.MaxStack)
	b.WriteString("\n    (code")
	for _, instr := range m.Code {
		if instr.IsLabel() {
			b.WriteString("\n     ")
		} else {
			b.WriteString("\n       ")
		}
		b.WriteString(instr.String())
	}
	b.WriteByte(')')
	for _, r := range m.Ranges {
		typ := "any"
		if r.Type != "" {
			typ = strconv.Quote(r.Type)
		}
		fmt.Fprintf(b, "\n    (catch $L%d $L%d $L%d %s)", r.Start, r.End, r.Handler, typ)
	}
	for _, lv := range m.LocalVars {
		fmt.Fprintf(b, "\n    (local %q %q $L%d $L%d %d)", lv.Name, lv.Desc, lv.Start, lv.End, lv.Index)
	}
	b.WriteByte(')')
}
