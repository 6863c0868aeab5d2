package token

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			"empty",
			"",
			nil,
		},
		{
			"parens",
			"()",
			[]Token{{"(", LParen, 1}, {")", RParen, 1}},
		},
		{
			"class",
			`(class "a/B")`,
			[]Token{{"(", LParen, 1}, {"class", Ident, 1}, {"a/B", String, 1}, {")", RParen, 1}},
		},
		{
			"newlines",
			"(\nclass\n)",
			[]Token{{"(", LParen, 1}, {"class", Ident, 2}, {")", RParen, 3}},
		},
		{
			"label definition",
			"$loop:",
			[]Token{{"$loop", Label, 1}},
		},
		{
			"label reference",
			"goto $loop",
			[]Token{{"goto", Ident, 1}, {"$loop", Ident, 1}},
		},
		{
			"opcode with underscore",
			"if_icmpeq dup_x1",
			[]Token{{"if_icmpeq", Ident, 1}, {"dup_x1", Ident, 1}},
		},
		{
			"numbers",
			"42 -7 2.5 1e-3 0x1F",
			[]Token{{"42", Number, 1}, {"-7", Number, 1}, {"2.5", Number, 1}, {"1e-3", Number, 1}, {"0x1F", Number, 1}},
		},
		{
			"escaped string",
			`"a\"b\n"`,
			[]Token{{"a\"b\n", String, 1}},
		},
		{
			"comment",
			"iconst 1 ; push one\nireturn",
			[]Token{{"iconst", Ident, 1}, {"1", Number, 1}, {"ireturn", Ident, 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			if err != nil {
				t.Fatalf("Tokenize: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []string{
		`"open`,
		"\"line\nbreak\"",
		"#",
	}
	for _, in := range tests {
		if _, err := Tokenize(in); err == nil {
			t.Errorf("Tokenize(%q): expected error", in)
		}
	}
}
