package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/resumable/asm/internal/token"
	"github.com/wippyai/resumable/classfile"
)

type Parser struct {
	tokens []token.Token
	pos    int
}

func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse reads every class form in the input.
func (p *Parser) Parse() ([]*classfile.Class, error) {
	var classes []*classfile.Class
	for p.peek() != nil {
		c, err := p.parseClass()
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("expected 'class'")
	}
	return classes, nil
}

func (p *Parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

func (p *Parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *Parser) expect(typ token.Type) (*token.Token, error) {
	t := p.next()
	if t == nil {
		return nil, fmt.Errorf("unexpected end of input")
	}
	if t.Type != typ {
		return nil, fmt.Errorf("line %d: expected %v, got %q", t.Line, typ, t.Value)
	}
	return t, nil
}

func (p *Parser) expectKeyword(kw string) error {
	t, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	if t.Value != kw {
		return fmt.Errorf("line %d: expected '%s', got %q", t.Line, kw, t.Value)
	}
	return nil
}

// atClose reports whether the next token closes the current form.
func (p *Parser) atClose() bool {
	t := p.peek()
	return t == nil || t.Type == token.RParen
}

func (p *Parser) closeForm() error {
	_, err := p.expect(token.RParen)
	return err
}

func (p *Parser) parseString() (string, error) {
	t, err := p.expect(token.String)
	if err != nil {
		return "", err
	}
	return t.Value, nil
}

// parseStrings reads string tokens up to the closing paren.
func (p *Parser) parseStrings() ([]string, error) {
	var out []string
	for !p.atClose() {
		s, err := p.parseString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *Parser) parseInt(bits int) (int64, error) {
	t, err := p.expect(token.Number)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(t.Value, "_", ""), 0, bits)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid integer %s", t.Line, t.Value)
	}
	return v, nil
}

func (p *Parser) parseU32() (uint32, error) {
	t, err := p.expect(token.Number)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.ReplaceAll(t.Value, "_", ""), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid number %s", t.Line, t.Value)
	}
	return uint32(v), nil
}

func (p *Parser) parseFloat(bits int) (float64, error) {
	t, err := p.expect(token.Number)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(t.Value, "_", ""), bits)
	if err != nil {
		return 0, fmt.Errorf("line %d: invalid float %s", t.Line, t.Value)
	}
	return v, nil
}

var flagNames = map[string]uint32{
	"public":       classfile.AccPublic,
	"private":      classfile.AccPrivate,
	"protected":    classfile.AccProtected,
	"static":       classfile.AccStatic,
	"final":        classfile.AccFinal,
	"synchronized": classfile.AccSynchronized,
	"native":       classfile.AccNative,
	"interface":    classfile.AccInterface,
	"abstract":     classfile.AccAbstract,
	"synthetic":    classfile.AccSynthetic,
}

// parseFlags reads flag keywords up to the closing paren.
func (p *Parser) parseFlags() (uint32, error) {
	var flags uint32
	for !p.atClose() {
		t, err := p.expect(token.Ident)
		if err != nil {
			return 0, err
		}
		f, ok := flagNames[t.Value]
		if !ok {
			return 0, fmt.Errorf("line %d: unknown flag %q", t.Line, t.Value)
		}
		flags |= f
	}
	return flags, nil
}
