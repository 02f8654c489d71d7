package parser

import (
	"testing"

	"github.com/hemlang/hemlock/internal/ast"
	"github.com/hemlang/hemlock/internal/lexer"
	"github.com/hemlang/hemlock/internal/token"
)

func parseProgram(t *testing.T, input string) *ast.Program {
	t.Helper()
	p := New(lexer.New(input))
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse error: %s", errs[0])
	}
	return program
}

func parseExpr(t *testing.T, input string) ast.Expression {
	t.Helper()
	program := parseProgram(t, input)
	if len(program.Statements) != 1 {
		t.Fatalf("want 1 statement, got %d", len(program.Statements))
	}
	es, ok := program.Statements[0].(*ast.ExprStatement)
	if !ok {
		t.Fatalf("want expression statement, got %T", program.Statements[0])
	}
	return es.Expr
}

func TestLetStatements(t *testing.T) {
	program := parseProgram(t, `
		let x = 5;
		const y: i64 = 6;
		let z;
	`)
	if len(program.Statements) != 3 {
		t.Fatalf("want 3 statements, got %d", len(program.Statements))
	}

	let := program.Statements[0].(*ast.Let)
	if let.Name != "x" || let.IsConst || let.Type != nil {
		t.Errorf("bad let: %+v", let)
	}

	konst := program.Statements[1].(*ast.Let)
	if konst.Name != "y" || !konst.IsConst || konst.Type == nil || konst.Type.Name != "i64" {
		t.Errorf("bad const: %+v", konst)
	}

	bare := program.Statements[2].(*ast.Let)
	if bare.Name != "z" || bare.Value != nil {
		t.Errorf("bad bare let: %+v", bare)
	}
}

func TestPrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3)
	add := parseExpr(t, "1 + 2 * 3;").(*ast.Binary)
	if add.Op != token.PLUS {
		t.Fatalf("top should be +, got %s", add.Op)
	}
	mul := add.Right.(*ast.Binary)
	if mul.Op != token.STAR {
		t.Fatalf("right should be *, got %s", mul.Op)
	}

	// Comparison binds looser than arithmetic
	cmp := parseExpr(t, "a + 1 < b * 2;").(*ast.Binary)
	if cmp.Op != token.LT {
		t.Fatalf("top should be <, got %s", cmp.Op)
	}

	// Logical looser than comparison
	and := parseExpr(t, "a < b && c > d;").(*ast.Binary)
	if and.Op != token.AND {
		t.Fatalf("top should be &&, got %s", and.Op)
	}

	// ?? looser than ||
	coal := parseExpr(t, "a || b ?? c;")
	if _, ok := coal.(*ast.NullCoalesce); !ok {
		t.Fatalf("top should be ??, got %T", coal)
	}
}

func TestAssignTargets(t *testing.T) {
	if _, ok := parseExpr(t, "x = 1;").(*ast.Assign); !ok {
		t.Errorf("identifier assign")
	}
	if _, ok := parseExpr(t, "o.f = 1;").(*ast.SetProperty); !ok {
		t.Errorf("property assign")
	}
	if _, ok := parseExpr(t, "a[0] = 1;").(*ast.IndexAssign); !ok {
		t.Errorf("index assign")
	}

	p := New(lexer.New("1 = 2;"))
	p.ParseProgram()
	if len(p.Errors()) == 0 {
		t.Errorf("assigning to a literal should error")
	}
}

func TestFunctionLiterals(t *testing.T) {
	fn := parseExpr(t, "fn(a, b = 1, ...rest) { return a; };").(*ast.Function)
	if len(fn.Params) != 3 {
		t.Fatalf("want 3 params, got %d", len(fn.Params))
	}
	if fn.Params[0].Default != nil || fn.Params[1].Default == nil {
		t.Errorf("default flags wrong")
	}
	if !fn.Params[2].IsRest {
		t.Errorf("rest flag wrong")
	}
	if fn.IsAsync {
		t.Errorf("not async")
	}

	afn := parseExpr(t, "async fn() { };").(*ast.Function)
	if !afn.IsAsync {
		t.Errorf("async flag lost")
	}
}

func TestNamedFunctionIsSugaredLet(t *testing.T) {
	program := parseProgram(t, "fn add(a, b) { return a + b; }")
	let, ok := program.Statements[0].(*ast.Let)
	if !ok {
		t.Fatalf("fn declaration should parse as let, got %T", program.Statements[0])
	}
	fn := let.Value.(*ast.Function)
	if let.Name != "add" || fn.Name != "add" || len(fn.Params) != 2 {
		t.Errorf("bad named function: %+v", fn)
	}
}

func TestForForms(t *testing.T) {
	program := parseProgram(t, `
		for (let i = 0; i < 3; i = i + 1) { }
		for (x in xs) { }
		for (k, v in o) { }
		for (i = 0; i < 3; i = i + 1) { }
	`)
	if _, ok := program.Statements[0].(*ast.For); !ok {
		t.Errorf("C-style for with let init: %T", program.Statements[0])
	}
	fi, ok := program.Statements[1].(*ast.ForIn)
	if !ok || fi.KeyVar != "" || fi.ValueVar != "x" {
		t.Errorf("for-in value form: %T %+v", program.Statements[1], fi)
	}
	kv, ok := program.Statements[2].(*ast.ForIn)
	if !ok || kv.KeyVar != "k" || kv.ValueVar != "v" {
		t.Errorf("for-in key/value form: %+v", kv)
	}
	if _, ok := program.Statements[3].(*ast.For); !ok {
		t.Errorf("C-style for with expression init: %T", program.Statements[3])
	}
}

func TestSwitchShape(t *testing.T) {
	program := parseProgram(t, `
		switch (x) {
			case 1: a(); break;
			case 2: b();
			default: c();
		}
	`)
	sw := program.Statements[0].(*ast.Switch)
	if len(sw.CaseValues) != 3 || len(sw.CaseBodies) != 3 {
		t.Fatalf("want 3 cases, got %d/%d", len(sw.CaseValues), len(sw.CaseBodies))
	}
	if sw.CaseValues[2] != nil {
		t.Errorf("default should be a nil case value")
	}
	if len(sw.CaseBodies[0]) != 2 {
		t.Errorf("first case should have 2 statements, got %d", len(sw.CaseBodies[0]))
	}
}

func TestTryShapes(t *testing.T) {
	program := parseProgram(t, `
		try { a(); } catch (e) { b(); } finally { c(); }
		try { a(); } catch { b(); }
		try { a(); } finally { c(); }
	`)
	full := program.Statements[0].(*ast.Try)
	if !full.HasCatch || full.CatchParam != "e" || full.FinallyBlock == nil {
		t.Errorf("bad full try: %+v", full)
	}
	noParam := program.Statements[1].(*ast.Try)
	if !noParam.HasCatch || noParam.CatchParam != "" {
		t.Errorf("bad catch-no-param: %+v", noParam)
	}
	finOnly := program.Statements[2].(*ast.Try)
	if finOnly.HasCatch || finOnly.FinallyBlock == nil {
		t.Errorf("bad try/finally: %+v", finOnly)
	}

	p := New(lexer.New("try { a(); }"))
	p.ParseProgram()
	if len(p.Errors()) == 0 {
		t.Errorf("try without catch or finally should error")
	}
}

func TestOptionalChainShapes(t *testing.T) {
	prop := parseExpr(t, "o?.x;").(*ast.OptionalChain)
	if !prop.IsProperty || prop.Property != "x" {
		t.Errorf("bad property chain: %+v", prop)
	}
	call := parseExpr(t, "o?.m(1, 2);").(*ast.OptionalChain)
	if !call.IsCall || call.Property != "m" || len(call.Args) != 2 {
		t.Errorf("bad call chain: %+v", call)
	}
	idx := parseExpr(t, "o?.[0];").(*ast.OptionalChain)
	if idx.IsCall || idx.IsProperty || idx.Index == nil {
		t.Errorf("bad index chain: %+v", idx)
	}
}

func TestStringInterpolationParsing(t *testing.T) {
	interp := parseExpr(t, `"a ${x + 1} b ${y} c";`).(*ast.StringInterpolation)
	if len(interp.StringParts) != 3 || len(interp.ExprParts) != 2 {
		t.Fatalf("want 3 parts / 2 exprs, got %d/%d", len(interp.StringParts), len(interp.ExprParts))
	}
	if interp.StringParts[0] != "a " || interp.StringParts[1] != " b " || interp.StringParts[2] != " c" {
		t.Errorf("bad literal parts: %q", interp.StringParts)
	}
	if _, ok := interp.ExprParts[0].(*ast.Binary); !ok {
		t.Errorf("first expr should be binary, got %T", interp.ExprParts[0])
	}

	plain, ok := parseExpr(t, `"no interp";`).(*ast.StringLiteral)
	if !ok || plain.Value != "no interp" {
		t.Errorf("plain string: %T", plain)
	}

	nested := parseExpr(t, `"v=${o["k"]}";`).(*ast.StringInterpolation)
	if len(nested.ExprParts) != 1 {
		t.Errorf("nested quotes inside interpolation broke splitting")
	}
}

func TestEnumParsing(t *testing.T) {
	program := parseProgram(t, "enum Color { RED, GREEN = 5, BLUE }")
	e := program.Statements[0].(*ast.Enum)
	if e.Name != "Color" || len(e.Variants) != 3 {
		t.Fatalf("bad enum: %+v", e)
	}
	if e.Variants[0].Value != nil || e.Variants[1].Value == nil || e.Variants[2].Value != nil {
		t.Errorf("explicit value flags wrong")
	}
}

func TestIncDecTargets(t *testing.T) {
	if _, ok := parseExpr(t, "x++;").(*ast.PostfixIncDec); !ok {
		t.Errorf("postfix on identifier")
	}
	if _, ok := parseExpr(t, "--a[0];").(*ast.PrefixIncDec); !ok {
		t.Errorf("prefix on index")
	}
	p := New(lexer.New("5++;"))
	p.ParseProgram()
	if len(p.Errors()) == 0 {
		t.Errorf("increment of a literal should error")
	}
}

func TestErrorRecoveryCollectsMultiple(t *testing.T) {
	p := New(lexer.New(`
		let = 5;
		let ok = 1;
		let = 6;
	`))
	p.ParseProgram()
	if len(p.Errors()) < 2 {
		t.Errorf("want at least 2 errors, got %d: %v", len(p.Errors()), p.Errors())
	}
}
