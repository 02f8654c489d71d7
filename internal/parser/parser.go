// Package parser builds the Hemlock AST from a token stream.
//
// Expressions use a Pratt parser; statements are recursive descent. Errors
// are collected with panic-mode recovery synchronised at statement
// boundaries, so a single run reports every independent mistake.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hemlang/hemlock/internal/ast"
	"github.com/hemlang/hemlock/internal/lexer"
	"github.com/hemlang/hemlock/internal/token"
)

// Operator precedence, lowest first.
const (
	_ int = iota
	precLowest
	precAssign   // =
	precTernary  // ?:
	precCoalesce // ??
	precOr       // ||
	precAnd      // &&
	precBitOr    // |
	precBitXor   // ^
	precBitAnd   // &
	precEquality // == !=
	precCompare  // < > <= >=
	precShift    // << >>
	precSum      // + -
	precProduct  // * / %
	precUnary    // ! - ~ ++x --x
	precPostfix  // call, index, property, x++ x--
)

var precedences = map[token.Type]int{
	token.ASSIGN:   precAssign,
	token.QUESTION: precTernary,
	token.COALESCE: precCoalesce,
	token.OR:       precOr,
	token.AND:      precAnd,
	token.PIPE:     precBitOr,
	token.CARET:    precBitXor,
	token.AMP:      precBitAnd,
	token.EQ:       precEquality,
	token.NE:       precEquality,
	token.LT:       precCompare,
	token.GT:       precCompare,
	token.LE:       precCompare,
	token.GE:       precCompare,
	token.LSHIFT:   precShift,
	token.RSHIFT:   precShift,
	token.PLUS:     precSum,
	token.MINUS:    precSum,
	token.STAR:     precProduct,
	token.SLASH:    precProduct,
	token.PERCENT:  precProduct,
	token.LPAREN:   precPostfix,
	token.LBRACKET: precPostfix,
	token.DOT:      precPostfix,
	token.OPTCHAIN: precPostfix,
	token.INC:      precPostfix,
	token.DEC:      precPostfix,
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

// Parser consumes tokens from a Lexer and produces an *ast.Program.
type Parser struct {
	l *lexer.Lexer

	curToken  token.Token
	peekToken token.Token

	prefixFns map[token.Type]prefixParseFn
	infixFns  map[token.Type]infixParseFn

	errors []string
}

// New creates a parser over l.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}

	p.prefixFns = map[token.Type]prefixParseFn{
		token.INT:      p.parseInteger,
		token.FLOAT:    p.parseFloat,
		token.STRING:   p.parseString,
		token.RUNE:     p.parseRune,
		token.TRUE:     p.parseBool,
		token.FALSE:    p.parseBool,
		token.NULL:     p.parseNull,
		token.IDENT:    p.parseIdentifier,
		token.SELF:     p.parseSelf,
		token.BANG:     p.parseUnary,
		token.MINUS:    p.parseUnary,
		token.TILDE:    p.parseUnary,
		token.INC:      p.parsePrefixIncDec,
		token.DEC:      p.parsePrefixIncDec,
		token.LPAREN:   p.parseGrouped,
		token.LBRACKET: p.parseArrayLiteral,
		token.LBRACE:   p.parseObjectLiteral,
		token.FN:       p.parseFunction,
		token.ASYNC:    p.parseAsyncFunction,
		token.AWAIT:    p.parseAwait,
	}

	p.infixFns = map[token.Type]infixParseFn{
		token.PLUS:     p.parseBinary,
		token.MINUS:    p.parseBinary,
		token.STAR:     p.parseBinary,
		token.SLASH:    p.parseBinary,
		token.PERCENT:  p.parseBinary,
		token.EQ:       p.parseBinary,
		token.NE:       p.parseBinary,
		token.LT:       p.parseBinary,
		token.GT:       p.parseBinary,
		token.LE:       p.parseBinary,
		token.GE:       p.parseBinary,
		token.AND:      p.parseBinary,
		token.OR:       p.parseBinary,
		token.AMP:      p.parseBinary,
		token.PIPE:     p.parseBinary,
		token.CARET:    p.parseBinary,
		token.LSHIFT:   p.parseBinary,
		token.RSHIFT:   p.parseBinary,
		token.COALESCE: p.parseCoalesce,
		token.QUESTION: p.parseTernary,
		token.ASSIGN:   p.parseAssign,
		token.LPAREN:   p.parseCall,
		token.LBRACKET: p.parseIndex,
		token.DOT:      p.parseProperty,
		token.OPTCHAIN: p.parseOptionalChain,
		token.INC:      p.parsePostfixIncDec,
		token.DEC:      p.parsePostfixIncDec,
	}

	// Prime curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Errors returns parse errors (including lexer errors).
func (p *Parser) Errors() []string {
	return append(p.l.Errors(), p.errors...)
}

func (p *Parser) errorf(tok token.Token, format string, args ...interface{}) {
	p.errors = append(p.errors,
		fmt.Sprintf("%d:%d: %s", tok.Line, tok.Column, fmt.Sprintf(format, args...)))
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curIs(t token.Type) bool  { return p.curToken.Type == t }
func (p *Parser) peekIs(t token.Type) bool { return p.peekToken.Type == t }

// expectPeek advances when the next token matches, else records an error.
func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekIs(t) {
		p.nextToken()
		return true
	}
	p.errorf(p.peekToken, "expected %s, got %s", t, p.peekToken.Type)
	return false
}

func (p *Parser) peekPrecedence() int {
	if pr, ok := precedences[p.peekToken.Type]; ok {
		return pr
	}
	return precLowest
}

// ParseProgram parses the whole input.
func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}
	for !p.curIs(token.EOF) {
		stmt := p.parseStatement()
		if stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}
	return program
}

// ParseExpressionString parses src as a single standalone expression.
// Used for the expression parts of interpolated strings.
func ParseExpressionString(src string) (ast.Expression, []string) {
	sub := New(lexer.New(src))
	expr := sub.parseExpression(precLowest)
	if !sub.peekIs(token.EOF) {
		sub.errorf(sub.peekToken, "unexpected %s after interpolated expression", sub.peekToken.Type)
	}
	return expr, sub.Errors()
}

// synchronize skips tokens until a statement boundary after an error.
func (p *Parser) synchronize() {
	for !p.curIs(token.EOF) {
		if p.curIs(token.SEMICOLON) {
			return
		}
		switch p.peekToken.Type {
		case token.LET, token.CONST, token.FN, token.IF, token.WHILE, token.FOR,
			token.RETURN, token.SWITCH, token.TRY, token.THROW, token.DEFER,
			token.ENUM, token.BREAK, token.CONTINUE, token.RBRACE:
			return
		}
		p.nextToken()
	}
}

// ---- Statements ----

func (p *Parser) parseStatement() ast.Statement {
	switch p.curToken.Type {
	case token.LET, token.CONST:
		return p.parseLet()
	case token.FN:
		if p.peekIs(token.IDENT) {
			return p.parseNamedFunction(false)
		}
		return p.parseExprStatement()
	case token.ASYNC:
		if p.peekIs(token.FN) {
			// async fn name() {} is a declaration; async fn() {} an expression
			save := p.curToken
			p.nextToken()
			if p.peekIs(token.IDENT) {
				stmt := p.parseNamedFunction(true)
				return stmt
			}
			fn := p.parseFunctionLiteral(save, true)
			return p.finishExprStatement(save, fn)
		}
		return p.parseExprStatement()
	case token.IF:
		return p.parseIf()
	case token.WHILE:
		return p.parseWhile()
	case token.FOR:
		return p.parseFor()
	case token.SWITCH:
		return p.parseSwitch()
	case token.RETURN:
		return p.parseReturn()
	case token.BREAK:
		stmt := &ast.Break{Token: p.curToken}
		p.skipSemicolon()
		return stmt
	case token.CONTINUE:
		stmt := &ast.Continue{Token: p.curToken}
		p.skipSemicolon()
		return stmt
	case token.TRY:
		return p.parseTry()
	case token.THROW:
		return p.parseThrow()
	case token.DEFER:
		return p.parseDefer()
	case token.ENUM:
		return p.parseEnum()
	case token.LBRACE:
		return p.parseBlockStatement()
	case token.SEMICOLON:
		return nil
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) skipSemicolon() {
	if p.peekIs(token.SEMICOLON) {
		p.nextToken()
	}
}

func (p *Parser) parseLet() ast.Statement {
	stmt := &ast.Let{Token: p.curToken, IsConst: p.curIs(token.CONST)}

	if !p.expectPeek(token.IDENT) {
		p.synchronize()
		return nil
	}
	stmt.Name = p.curToken.Literal

	if p.peekIs(token.COLON) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			p.synchronize()
			return nil
		}
		stmt.Type = &ast.TypeAnnotation{Token: p.curToken, Name: p.curToken.Literal}
	}

	if p.peekIs(token.ASSIGN) {
		p.nextToken()
		p.nextToken()
		stmt.Value = p.parseExpression(precLowest)
	}

	p.skipSemicolon()
	return stmt
}

// parseNamedFunction parses `fn name(params) { body }` as
// `let name = fn(...) {...}` so functions bind like any other value.
func (p *Parser) parseNamedFunction(isAsync bool) ast.Statement {
	fnTok := p.curToken
	p.nextToken() // name
	name := p.curToken.Literal

	fn := p.parseFunctionLiteral(fnTok, isAsync)
	if fn == nil {
		return nil
	}
	fn.Name = name
	return &ast.Let{Token: fnTok, Name: name, Value: fn}
}

func (p *Parser) parseIf() ast.Statement {
	stmt := &ast.If{Token: p.curToken}
	if !p.expectPeek(token.LPAREN) {
		p.synchronize()
		return nil
	}
	p.nextToken()
	stmt.Cond = p.parseExpression(precLowest)
	if !p.expectPeek(token.RPAREN) {
		p.synchronize()
		return nil
	}
	stmt.Then = p.parseBlockOrSingle()
	if p.peekIs(token.ELSE) {
		p.nextToken()
		if p.peekIs(token.IF) {
			p.nextToken()
			if inner := p.parseIf(); inner != nil {
				stmt.Else = []ast.Statement{inner}
			}
		} else {
			stmt.Else = p.parseBlockOrSingle()
		}
	}
	return stmt
}

func (p *Parser) parseWhile() ast.Statement {
	stmt := &ast.While{Token: p.curToken}
	if !p.expectPeek(token.LPAREN) {
		p.synchronize()
		return nil
	}
	p.nextToken()
	stmt.Cond = p.parseExpression(precLowest)
	if !p.expectPeek(token.RPAREN) {
		p.synchronize()
		return nil
	}
	stmt.Body = p.parseBlockOrSingle()
	return stmt
}

// parseFor handles both C-style and for-in forms.
func (p *Parser) parseFor() ast.Statement {
	forTok := p.curToken
	if !p.expectPeek(token.LPAREN) {
		p.synchronize()
		return nil
	}

	// Look ahead for the for-in forms:
	//   for (x in it) / for (k, v in it)
	if p.peekIs(token.IDENT) || p.peekIs(token.LET) {
		if st := p.tryParseForIn(forTok); st != nil {
			return st
		}
	}

	stmt := &ast.For{Token: forTok}

	// init
	if !p.peekIs(token.SEMICOLON) {
		p.nextToken()
		if p.curIs(token.LET) || p.curIs(token.CONST) {
			stmt.Init = p.parseLetNoSemi()
		} else {
			stmt.Init = &ast.ExprStatement{Token: p.curToken, Expr: p.parseExpression(precLowest)}
		}
	}
	if !p.expectPeek(token.SEMICOLON) {
		p.synchronize()
		return nil
	}

	// cond
	if !p.peekIs(token.SEMICOLON) {
		p.nextToken()
		stmt.Cond = p.parseExpression(precLowest)
	}
	if !p.expectPeek(token.SEMICOLON) {
		p.synchronize()
		return nil
	}

	// inc
	if !p.peekIs(token.RPAREN) {
		p.nextToken()
		stmt.Inc = p.parseExpression(precLowest)
	}
	if !p.expectPeek(token.RPAREN) {
		p.synchronize()
		return nil
	}

	stmt.Body = p.parseBlockOrSingle()
	return stmt
}

// parseLetNoSemi is parseLet without the trailing-semicolon consumption,
// for the init clause of a C-style for.
func (p *Parser) parseLetNoSemi() ast.Statement {
	stmt := &ast.Let{Token: p.curToken, IsConst: p.curIs(token.CONST)}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	stmt.Name = p.curToken.Literal
	if p.peekIs(token.COLON) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		stmt.Type = &ast.TypeAnnotation{Token: p.curToken, Name: p.curToken.Literal}
	}
	if p.peekIs(token.ASSIGN) {
		p.nextToken()
		p.nextToken()
		stmt.Value = p.parseExpression(precLowest)
	}
	return stmt
}

// tryParseForIn recognises `for (x in …)` and `for (k, v in …)`. Returns
// nil (without consuming) when the parenthesised head does not start with
// an identifier; an identifier head not followed by `in` or `,` is parsed
// here as a C-style for.
func (p *Parser) tryParseForIn(forTok token.Token) ast.Statement {
	// Cheap two/four token lookahead over the already-buffered tokens is
	// not available, so detect by shape: IDENT followed by `in` or `,`.
	if !p.peekIs(token.IDENT) {
		return nil
	}
	// Clone-free lookahead: peek the token after the identifier by
	// borrowing the lexer state is intrusive; instead rely on grammar:
	// C-style heads always start with `let`, a semicolon, or an
	// assignment/expression. An IDENT directly followed by `in`/`,` can
	// only be a for-in head.
	identTok := p.peekToken
	p.nextToken() // now cur = IDENT

	if p.peekIs(token.IN) {
		stmt := &ast.ForIn{Token: forTok, ValueVar: identTok.Literal}
		p.nextToken() // in
		p.nextToken()
		stmt.Iterable = p.parseExpression(precLowest)
		if !p.expectPeek(token.RPAREN) {
			p.synchronize()
			return nil
		}
		stmt.Body = p.parseBlockOrSingle()
		return stmt
	}

	if p.peekIs(token.COMMA) {
		stmt := &ast.ForIn{Token: forTok, KeyVar: identTok.Literal}
		p.nextToken() // ,
		if !p.expectPeek(token.IDENT) {
			p.synchronize()
			return nil
		}
		stmt.ValueVar = p.curToken.Literal
		if !p.expectPeek(token.IN) {
			p.synchronize()
			return nil
		}
		p.nextToken()
		stmt.Iterable = p.parseExpression(precLowest)
		if !p.expectPeek(token.RPAREN) {
			p.synchronize()
			return nil
		}
		stmt.Body = p.parseBlockOrSingle()
		return stmt
	}

	// Not a for-in: cur is an IDENT beginning a C-style init expression.
	expr := p.parseExpressionFrom(p.curToken, precLowest)
	stmt := &ast.For{Token: forTok}
	stmt.Init = &ast.ExprStatement{Token: identTok, Expr: expr}
	if !p.expectPeek(token.SEMICOLON) {
		p.synchronize()
		return nil
	}
	if !p.peekIs(token.SEMICOLON) {
		p.nextToken()
		stmt.Cond = p.parseExpression(precLowest)
	}
	if !p.expectPeek(token.SEMICOLON) {
		p.synchronize()
		return nil
	}
	if !p.peekIs(token.RPAREN) {
		p.nextToken()
		stmt.Inc = p.parseExpression(precLowest)
	}
	if !p.expectPeek(token.RPAREN) {
		p.synchronize()
		return nil
	}
	stmt.Body = p.parseBlockOrSingle()
	return stmt
}

func (p *Parser) parseSwitch() ast.Statement {
	stmt := &ast.Switch{Token: p.curToken}
	if !p.expectPeek(token.LPAREN) {
		p.synchronize()
		return nil
	}
	p.nextToken()
	stmt.Scrutinee = p.parseExpression(precLowest)
	if !p.expectPeek(token.RPAREN) {
		p.synchronize()
		return nil
	}
	if !p.expectPeek(token.LBRACE) {
		p.synchronize()
		return nil
	}

	for !p.peekIs(token.RBRACE) && !p.peekIs(token.EOF) {
		p.nextToken()
		switch p.curToken.Type {
		case token.CASE:
			p.nextToken()
			val := p.parseExpression(precLowest)
			if !p.expectPeek(token.COLON) {
				p.synchronize()
				return stmt
			}
			stmt.CaseValues = append(stmt.CaseValues, val)
			stmt.CaseBodies = append(stmt.CaseBodies, p.parseCaseBody())
		case token.DEFAULT:
			if !p.expectPeek(token.COLON) {
				p.synchronize()
				return stmt
			}
			stmt.CaseValues = append(stmt.CaseValues, nil)
			stmt.CaseBodies = append(stmt.CaseBodies, p.parseCaseBody())
		default:
			p.errorf(p.curToken, "expected case or default in switch, got %s", p.curToken.Type)
			p.synchronize()
			return stmt
		}
	}
	p.expectPeek(token.RBRACE)
	return stmt
}

// parseCaseBody collects statements until the next case/default/closing
// brace, without consuming the terminator.
func (p *Parser) parseCaseBody() []ast.Statement {
	var body []ast.Statement
	for !p.peekIs(token.CASE) && !p.peekIs(token.DEFAULT) &&
		!p.peekIs(token.RBRACE) && !p.peekIs(token.EOF) {
		p.nextToken()
		if stmt := p.parseStatement(); stmt != nil {
			body = append(body, stmt)
		}
	}
	return body
}

func (p *Parser) parseReturn() ast.Statement {
	stmt := &ast.Return{Token: p.curToken}
	if !p.peekIs(token.SEMICOLON) && !p.peekIs(token.RBRACE) && !p.peekIs(token.EOF) {
		p.nextToken()
		stmt.Value = p.parseExpression(precLowest)
	}
	p.skipSemicolon()
	return stmt
}

func (p *Parser) parseTry() ast.Statement {
	stmt := &ast.Try{Token: p.curToken}
	if !p.expectPeek(token.LBRACE) {
		p.synchronize()
		return nil
	}
	stmt.TryBlock = p.parseBlockBody()

	if p.peekIs(token.CATCH) {
		p.nextToken()
		stmt.HasCatch = true
		if p.peekIs(token.LPAREN) {
			p.nextToken()
			if !p.expectPeek(token.IDENT) {
				p.synchronize()
				return nil
			}
			stmt.CatchParam = p.curToken.Literal
			if !p.expectPeek(token.RPAREN) {
				p.synchronize()
				return nil
			}
		}
		if !p.expectPeek(token.LBRACE) {
			p.synchronize()
			return nil
		}
		stmt.CatchBlock = p.parseBlockBody()
	}

	if p.peekIs(token.FINALLY) {
		p.nextToken()
		if !p.expectPeek(token.LBRACE) {
			p.synchronize()
			return nil
		}
		stmt.FinallyBlock = p.parseBlockBody()
	}

	if !stmt.HasCatch && stmt.FinallyBlock == nil {
		p.errorf(stmt.Token, "try requires a catch or finally block")
	}
	return stmt
}

func (p *Parser) parseThrow() ast.Statement {
	stmt := &ast.Throw{Token: p.curToken}
	p.nextToken()
	stmt.Value = p.parseExpression(precLowest)
	p.skipSemicolon()
	return stmt
}

func (p *Parser) parseDefer() ast.Statement {
	stmt := &ast.Defer{Token: p.curToken}
	p.nextToken()
	stmt.Call = p.parseExpression(precLowest)
	p.skipSemicolon()
	return stmt
}

func (p *Parser) parseEnum() ast.Statement {
	stmt := &ast.Enum{Token: p.curToken}
	if !p.expectPeek(token.IDENT) {
		p.synchronize()
		return nil
	}
	stmt.Name = p.curToken.Literal
	if !p.expectPeek(token.LBRACE) {
		p.synchronize()
		return nil
	}
	for !p.peekIs(token.RBRACE) && !p.peekIs(token.EOF) {
		if !p.expectPeek(token.IDENT) {
			p.synchronize()
			return stmt
		}
		variant := ast.EnumVariant{Name: p.curToken.Literal}
		if p.peekIs(token.ASSIGN) {
			p.nextToken()
			p.nextToken()
			variant.Value = p.parseExpression(precLowest)
		}
		stmt.Variants = append(stmt.Variants, variant)
		if p.peekIs(token.COMMA) {
			p.nextToken()
		}
	}
	p.expectPeek(token.RBRACE)
	return stmt
}

func (p *Parser) parseBlockStatement() ast.Statement {
	blk := &ast.Block{Token: p.curToken}
	blk.Statements = p.parseBlockBody()
	return blk
}

// parseBlockBody parses statements after an already-consumed `{` up to
// the matching `}` (consumed).
func (p *Parser) parseBlockBody() []ast.Statement {
	var stmts []ast.Statement
	for !p.peekIs(token.RBRACE) && !p.peekIs(token.EOF) {
		p.nextToken()
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	p.expectPeek(token.RBRACE)
	return stmts
}

// parseBlockOrSingle accepts either `{ … }` or a single statement.
func (p *Parser) parseBlockOrSingle() []ast.Statement {
	if p.peekIs(token.LBRACE) {
		p.nextToken()
		return p.parseBlockBody()
	}
	p.nextToken()
	if stmt := p.parseStatement(); stmt != nil {
		return []ast.Statement{stmt}
	}
	return nil
}

func (p *Parser) parseExprStatement() ast.Statement {
	tok := p.curToken
	expr := p.parseExpression(precLowest)
	return p.finishExprStatement(tok, expr)
}

func (p *Parser) finishExprStatement(tok token.Token, expr ast.Expression) ast.Statement {
	p.skipSemicolon()
	if expr == nil {
		return nil
	}
	return &ast.ExprStatement{Token: tok, Expr: expr}
}

// ---- Expressions ----

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixFns[p.curToken.Type]
	if prefix == nil {
		p.errorf(p.curToken, "unexpected %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	left := prefix()

	for precedence < p.peekPrecedence() {
		infix := p.infixFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}
	return left
}

// parseExpressionFrom re-enters the Pratt loop when curToken has already
// been positioned by a caller (the for-in lookahead).
func (p *Parser) parseExpressionFrom(_ token.Token, precedence int) ast.Expression {
	return p.parseExpression(precedence)
}

func (p *Parser) parseInteger() ast.Expression {
	lit := strings.ReplaceAll(p.curToken.Literal, "_", "")
	base := 10
	switch {
	case strings.HasPrefix(lit, "0x"), strings.HasPrefix(lit, "0X"):
		lit, base = lit[2:], 16
	case strings.HasPrefix(lit, "0b"), strings.HasPrefix(lit, "0B"):
		lit, base = lit[2:], 2
	}
	v, err := strconv.ParseInt(lit, base, 64)
	if err != nil {
		// Retry as unsigned for values in the u64 top half
		if u, uerr := strconv.ParseUint(lit, base, 64); uerr == nil {
			return &ast.NumberLiteral{Token: p.curToken, Int: int64(u)}
		}
		p.errorf(p.curToken, "invalid integer literal %q", p.curToken.Literal)
		return nil
	}
	return &ast.NumberLiteral{Token: p.curToken, Int: v}
}

func (p *Parser) parseFloat() ast.Expression {
	lit := strings.ReplaceAll(p.curToken.Literal, "_", "")
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.errorf(p.curToken, "invalid float literal %q", p.curToken.Literal)
		return nil
	}
	return &ast.NumberLiteral{Token: p.curToken, IsFloat: true, Float: v}
}

func (p *Parser) parseBool() ast.Expression {
	return &ast.BoolLiteral{Token: p.curToken, Value: p.curIs(token.TRUE)}
}

func (p *Parser) parseNull() ast.Expression {
	return &ast.NullLiteral{Token: p.curToken}
}

func (p *Parser) parseRune() ast.Expression {
	body, err := lexer.Unescape(p.curToken.Literal)
	if err != nil {
		p.errorf(p.curToken, "%s", err)
		return nil
	}
	r, size := utf8.DecodeRuneInString(body)
	if size == 0 || size != len(body) || r == utf8.RuneError && size == 1 {
		p.errorf(p.curToken, "rune literal must contain exactly one codepoint")
		return nil
	}
	return &ast.RuneLiteral{Token: p.curToken, Value: r}
}

func (p *Parser) parseIdentifier() ast.Expression {
	return &ast.Identifier{Token: p.curToken, Name: p.curToken.Literal}
}

func (p *Parser) parseSelf() ast.Expression {
	return &ast.SelfExpression{Token: p.curToken}
}

func (p *Parser) parseUnary() ast.Expression {
	expr := &ast.Unary{Token: p.curToken, Op: p.curToken.Type}
	p.nextToken()
	expr.Operand = p.parseExpression(precUnary)
	return expr
}

func (p *Parser) parsePrefixIncDec() ast.Expression {
	expr := &ast.PrefixIncDec{Token: p.curToken, Op: p.curToken.Type}
	p.nextToken()
	expr.Operand = p.parseExpression(precUnary)
	if !isIncDecTarget(expr.Operand) {
		p.errorf(expr.Token, "invalid operand for %s", expr.Op)
		return nil
	}
	return expr
}

func (p *Parser) parsePostfixIncDec(left ast.Expression) ast.Expression {
	if !isIncDecTarget(left) {
		p.errorf(p.curToken, "invalid operand for %s", p.curToken.Type)
		return nil
	}
	return &ast.PostfixIncDec{Token: p.curToken, Op: p.curToken.Type, Operand: left}
}

func isIncDecTarget(e ast.Expression) bool {
	switch e.(type) {
	case *ast.Identifier, *ast.Index, *ast.GetProperty:
		return true
	}
	return false
}

func (p *Parser) parseGrouped() ast.Expression {
	p.nextToken()
	expr := p.parseExpression(precLowest)
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) parseBinary(left ast.Expression) ast.Expression {
	expr := &ast.Binary{Token: p.curToken, Op: p.curToken.Type, Left: left}
	precedence := precedences[p.curToken.Type]
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	return expr
}

func (p *Parser) parseCoalesce(left ast.Expression) ast.Expression {
	expr := &ast.NullCoalesce{Token: p.curToken, Left: left}
	p.nextToken()
	// Right-associative: a ?? b ?? c is a ?? (b ?? c)
	expr.Right = p.parseExpression(precCoalesce - 1)
	return expr
}

func (p *Parser) parseTernary(cond ast.Expression) ast.Expression {
	expr := &ast.Ternary{Token: p.curToken, Cond: cond}
	p.nextToken()
	expr.Then = p.parseExpression(precLowest)
	if !p.expectPeek(token.COLON) {
		return nil
	}
	p.nextToken()
	expr.Else = p.parseExpression(precTernary - 1)
	return expr
}

func (p *Parser) parseAssign(left ast.Expression) ast.Expression {
	tok := p.curToken
	p.nextToken()
	value := p.parseExpression(precAssign - 1) // right-associative

	switch target := left.(type) {
	case *ast.Identifier:
		return &ast.Assign{Token: tok, Name: target.Name, Value: value,
			Resolved: target.Resolved, Depth: target.Depth, Slot: target.Slot}
	case *ast.GetProperty:
		return &ast.SetProperty{Token: tok, Object: target.Object, Name: target.Name, Value: value}
	case *ast.Index:
		return &ast.IndexAssign{Token: tok, Object: target.Object, Key: target.Key, Value: value}
	default:
		p.errorf(tok, "invalid assignment target")
		return nil
	}
}

func (p *Parser) parseCall(fn ast.Expression) ast.Expression {
	call := &ast.Call{Token: p.curToken, Fn: fn}
	call.Args = p.parseExpressionList(token.RPAREN)
	return call
}

// parseExpressionList parses a comma-separated list up to end (consumed).
func (p *Parser) parseExpressionList(end token.Type) []ast.Expression {
	var list []ast.Expression
	if p.peekIs(end) {
		p.nextToken()
		return list
	}
	p.nextToken()
	list = append(list, p.parseExpression(precLowest))
	for p.peekIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		list = append(list, p.parseExpression(precLowest))
	}
	if !p.expectPeek(end) {
		return list
	}
	return list
}

func (p *Parser) parseIndex(obj ast.Expression) ast.Expression {
	expr := &ast.Index{Token: p.curToken, Object: obj}
	p.nextToken()
	expr.Key = p.parseExpression(precLowest)
	if !p.expectPeek(token.RBRACKET) {
		return nil
	}
	return expr
}

func (p *Parser) parseProperty(obj ast.Expression) ast.Expression {
	expr := &ast.GetProperty{Token: p.curToken, Object: obj}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	expr.Name = p.curToken.Literal
	return expr
}

func (p *Parser) parseOptionalChain(obj ast.Expression) ast.Expression {
	expr := &ast.OptionalChain{Token: p.curToken, Object: obj}
	switch {
	case p.peekIs(token.LBRACKET):
		p.nextToken()
		p.nextToken()
		expr.Index = p.parseExpression(precLowest)
		if !p.expectPeek(token.RBRACKET) {
			return nil
		}
	case p.peekIs(token.IDENT):
		p.nextToken()
		expr.Property = p.curToken.Literal
		expr.IsProperty = true
		if p.peekIs(token.LPAREN) {
			p.nextToken()
			expr.IsProperty = false
			expr.IsCall = true
			expr.Args = p.parseExpressionList(token.RPAREN)
		}
	default:
		p.errorf(p.peekToken, "expected property name or index after ?.")
		return nil
	}
	return expr
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	arr := &ast.ArrayLiteral{Token: p.curToken}
	arr.Elements = p.parseExpressionList(token.RBRACKET)
	return arr
}

func (p *Parser) parseObjectLiteral() ast.Expression {
	obj := &ast.ObjectLiteral{Token: p.curToken}
	for !p.peekIs(token.RBRACE) && !p.peekIs(token.EOF) {
		p.nextToken()
		var name string
		switch p.curToken.Type {
		case token.IDENT, token.STRING:
			name = p.curToken.Literal
		default:
			p.errorf(p.curToken, "object key must be an identifier or string, got %s", p.curToken.Type)
			p.synchronize()
			return obj
		}
		if !p.expectPeek(token.COLON) {
			p.synchronize()
			return obj
		}
		p.nextToken()
		value := p.parseExpression(precLowest)
		obj.FieldNames = append(obj.FieldNames, name)
		obj.FieldValues = append(obj.FieldValues, value)
		if p.peekIs(token.COMMA) {
			p.nextToken()
		}
	}
	p.expectPeek(token.RBRACE)
	return obj
}

func (p *Parser) parseFunction() ast.Expression {
	return p.parseFunctionLiteral(p.curToken, false)
}

func (p *Parser) parseAsyncFunction() ast.Expression {
	tok := p.curToken
	if !p.expectPeek(token.FN) {
		return nil
	}
	return p.parseFunctionLiteral(tok, true)
}

// parseFunctionLiteral parses `(params) { body }` with curToken on `fn`,
// or on the name of a named function.
func (p *Parser) parseFunctionLiteral(tok token.Token, isAsync bool) *ast.Function {
	fn := &ast.Function{Token: tok, IsAsync: isAsync}
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	fn.Params = p.parseParams()
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	fn.Body = p.parseBlockBody()

	// Rest param must be last; optional params may not precede required ones
	seenOptional := false
	for i, prm := range fn.Params {
		if prm.IsRest && i != len(fn.Params)-1 {
			p.errorf(tok, "rest parameter must be last")
		}
		if prm.Default != nil {
			seenOptional = true
		} else if seenOptional && !prm.IsRest {
			p.errorf(tok, "required parameter %q after optional parameter", prm.Name)
		}
	}
	return fn
}

func (p *Parser) parseParams() []ast.Param {
	var params []ast.Param
	if p.peekIs(token.RPAREN) {
		p.nextToken()
		return params
	}
	for {
		p.nextToken()
		var prm ast.Param
		if p.curIs(token.ELLIPSIS) {
			prm.IsRest = true
			p.nextToken()
		}
		if !p.curIs(token.IDENT) {
			p.errorf(p.curToken, "expected parameter name, got %s", p.curToken.Type)
			return params
		}
		prm.Name = p.curToken.Literal
		if p.peekIs(token.COLON) {
			p.nextToken()
			if !p.expectPeek(token.IDENT) {
				return params
			}
			prm.Type = &ast.TypeAnnotation{Token: p.curToken, Name: p.curToken.Literal}
		}
		if p.peekIs(token.ASSIGN) {
			p.nextToken()
			p.nextToken()
			prm.Default = p.parseExpression(precLowest)
		}
		params = append(params, prm)
		if !p.peekIs(token.COMMA) {
			break
		}
		p.nextToken()
	}
	p.expectPeek(token.RPAREN)
	return params
}

func (p *Parser) parseAwait() ast.Expression {
	expr := &ast.Await{Token: p.curToken}
	p.nextToken()
	expr.Value = p.parseExpression(precUnary)
	return expr
}

// parseString handles both plain strings and "${…}" interpolation.
func (p *Parser) parseString() ast.Expression {
	raw := p.curToken.Literal
	parts, exprs, ok := splitInterpolation(raw)
	if !ok {
		p.errorf(p.curToken, "unterminated ${...} in string literal")
		return nil
	}

	if len(exprs) == 0 {
		s, err := lexer.Unescape(raw)
		if err != nil {
			p.errorf(p.curToken, "%s", err)
			return nil
		}
		return &ast.StringLiteral{Token: p.curToken, Value: s}
	}

	interp := &ast.StringInterpolation{Token: p.curToken}
	for _, part := range parts {
		s, err := lexer.Unescape(part)
		if err != nil {
			p.errorf(p.curToken, "%s", err)
			return nil
		}
		interp.StringParts = append(interp.StringParts, s)
	}
	for _, src := range exprs {
		expr, errs := ParseExpressionString(src)
		for _, e := range errs {
			p.errorf(p.curToken, "in interpolation %q: %s", src, e)
		}
		if expr == nil {
			return nil
		}
		interp.ExprParts = append(interp.ExprParts, expr)
	}
	return interp
}

// splitInterpolation splits a raw string body into n+1 literal parts and
// n "${…}" expression sources. Escaped "\$" never starts a segment.
func splitInterpolation(raw string) (parts []string, exprs []string, ok bool) {
	var lit strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			lit.WriteByte(raw[i])
			lit.WriteByte(raw[i+1])
			i++
			continue
		}
		if raw[i] == '$' && i+1 < len(raw) && raw[i+1] == '{' {
			depth := 1
			j := i + 2
			for j < len(raw) && depth > 0 {
				switch raw[j] {
				case '{':
					depth++
				case '}':
					depth--
				case '"':
					// Skip a nested string literal
					j++
					for j < len(raw) && raw[j] != '"' {
						if raw[j] == '\\' {
							j++
						}
						j++
					}
				}
				j++
			}
			if depth != 0 {
				return nil, nil, false
			}
			parts = append(parts, lit.String())
			lit.Reset()
			exprs = append(exprs, raw[i+2:j-1])
			i = j - 1
			continue
		}
		lit.WriteByte(raw[i])
	}
	parts = append(parts, lit.String())
	return parts, exprs, true
}
