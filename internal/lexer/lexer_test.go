package lexer

import (
	"testing"

	"github.com/hemlang/hemlock/internal/token"
)

func TestNextTokenOperators(t *testing.T) {
	input := `= == ! != < <= > >= && || & | ^ ~ << >> ++ -- ? ?? ?. . ... + - * / %`
	want := []token.Type{
		token.ASSIGN, token.EQ, token.BANG, token.NE,
		token.LT, token.LE, token.GT, token.GE,
		token.AND, token.OR, token.AMP, token.PIPE, token.CARET, token.TILDE,
		token.LSHIFT, token.RSHIFT, token.INC, token.DEC,
		token.QUESTION, token.COALESCE, token.OPTCHAIN, token.DOT, token.ELLIPSIS,
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.EOF,
	}

	l := New(input)
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w {
			t.Fatalf("token %d: got %s, want %s", i, tok.Type, w)
		}
	}
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	input := `let const fn return if else while for in switch case default
		break continue try catch finally throw defer async await enum
		true false null self counter _private x2`
	want := []token.Type{
		token.LET, token.CONST, token.FN, token.RETURN, token.IF, token.ELSE,
		token.WHILE, token.FOR, token.IN, token.SWITCH, token.CASE, token.DEFAULT,
		token.BREAK, token.CONTINUE, token.TRY, token.CATCH, token.FINALLY,
		token.THROW, token.DEFER, token.ASYNC, token.AWAIT, token.ENUM,
		token.TRUE, token.FALSE, token.NULL, token.SELF,
		token.IDENT, token.IDENT, token.IDENT,
	}
	l := New(input)
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w {
			t.Fatalf("token %d: got %s (%q), want %s", i, tok.Type, tok.Literal, w)
		}
	}
}

func TestNumbers(t *testing.T) {
	cases := []struct {
		input string
		typ   token.Type
		lit   string
	}{
		{"42", token.INT, "42"},
		{"0xff", token.INT, "0xff"},
		{"0b1010", token.INT, "0b1010"},
		{"1_000_000", token.INT, "1_000_000"},
		{"3.14", token.FLOAT, "3.14"},
		{"1e9", token.FLOAT, "1e9"},
		{"2.5e-3", token.FLOAT, "2.5e-3"},
	}
	for _, c := range cases {
		tok := New(c.input).NextToken()
		if tok.Type != c.typ || tok.Literal != c.lit {
			t.Errorf("%q: got (%s, %q), want (%s, %q)", c.input, tok.Type, tok.Literal, c.typ, c.lit)
		}
	}
}

func TestStringsAndRunes(t *testing.T) {
	l := New(`"hello" "a\nb" 'x' '\n'`)
	tok := l.NextToken()
	if tok.Type != token.STRING || tok.Literal != "hello" {
		t.Fatalf("got (%s, %q)", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != token.STRING || tok.Literal != `a\nb` {
		t.Fatalf("raw string should keep escapes: %q", tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != token.RUNE || tok.Literal != "x" {
		t.Fatalf("got (%s, %q)", tok.Type, tok.Literal)
	}
	tok = l.NextToken()
	if tok.Type != token.RUNE || tok.Literal != `\n` {
		t.Fatalf("got (%s, %q)", tok.Type, tok.Literal)
	}
}

func TestComments(t *testing.T) {
	l := New(`1 // line comment
	/* block
	   comment */ 2`)
	if tok := l.NextToken(); tok.Literal != "1" {
		t.Fatalf("got %q", tok.Literal)
	}
	if tok := l.NextToken(); tok.Literal != "2" {
		t.Fatalf("comments should be skipped, got %q", tok.Literal)
	}
	if tok := l.NextToken(); tok.Type != token.EOF {
		t.Fatalf("expected EOF, got %s", tok.Type)
	}
}

func TestLineTracking(t *testing.T) {
	l := New("a\nb\n\nc")
	if tok := l.NextToken(); tok.Line != 1 {
		t.Errorf("a on line %d, want 1", tok.Line)
	}
	if tok := l.NextToken(); tok.Line != 2 {
		t.Errorf("b on line %d, want 2", tok.Line)
	}
	if tok := l.NextToken(); tok.Line != 4 {
		t.Errorf("c on line %d, want 4", tok.Line)
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"abc`)
	l.NextToken()
	if len(l.Errors()) == 0 {
		t.Errorf("expected an unterminated-string error")
	}
}

func TestUnescape(t *testing.T) {
	cases := []struct{ in, want string }{
		{`a\nb`, "a\nb"},
		{`tab\there`, "tab\there"},
		{`quote\"q`, `quote"q`},
		{`back\\slash`, `back\slash`},
		{`\u{48}i`, "Hi"},
		{`\u{1F600}`, "\U0001F600"},
		{`\$x`, "$x"},
	}
	for _, c := range cases {
		got, err := Unescape(c.in)
		if err != nil {
			t.Errorf("Unescape(%q): %s", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Unescape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if _, err := Unescape(`\q`); err == nil {
		t.Errorf("unknown escape should error")
	}
}
