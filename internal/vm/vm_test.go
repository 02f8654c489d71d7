package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hemlang/hemlock/internal/ast"
	"github.com/hemlang/hemlock/internal/lexer"
	"github.com/hemlang/hemlock/internal/parser"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	p := parser.New(lexer.New(input))
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse error: %s", errs[0])
	}
	return program
}

func compile(t *testing.T, input string) *Chunk {
	t.Helper()
	chunk, errs := CompileProgram(parse(t, input))
	if len(errs) > 0 {
		t.Fatalf("compile error: %s", errs[0])
	}
	return chunk
}

// runVM executes input on a fresh VM and returns the program result and
// everything it printed.
func runVM(t *testing.T, input string) (Value, string) {
	t.Helper()
	chunk := compile(t, input)
	machine := New()
	var out bytes.Buffer
	machine.SetOutput(&out)
	result, err := machine.Run(chunk)
	if err != nil {
		t.Fatalf("runtime error: %s", err)
	}
	return result, out.String()
}

// runVMErr executes input expecting a runtime error.
func runVMErr(t *testing.T, input string) error {
	t.Helper()
	chunk := compile(t, input)
	machine := New()
	machine.SetOutput(&bytes.Buffer{})
	_, err := machine.Run(chunk)
	if err == nil {
		t.Fatalf("expected a runtime error")
	}
	return err
}

func expectOutput(t *testing.T, input, want string) {
	t.Helper()
	_, out := runVM(t, input)
	if out != want {
		t.Errorf("wrong output.\ngot:  %q\nwant: %q", out, want)
	}
}

func testIntValue(t *testing.T, v Value, want int64) {
	t.Helper()
	if !v.IsInt() {
		t.Fatalf("value is not an integer: %s (%s)", v.Format(), v.TypeName())
	}
	if v.AsInt() != want {
		t.Errorf("wrong value. got=%d, want=%d", v.AsInt(), want)
	}
}

func TestArithmeticPromotion(t *testing.T) {
	v, _ := runVM(t, "1 + 2")
	testIntValue(t, v, 3)
	if v.Kind != ValI32 {
		t.Errorf("1 + 2 should be i32, got %s", v.TypeName())
	}

	v, _ = runVM(t, "let a: i64 = 1; let b: i32 = 2; a + b")
	if v.Kind != ValI64 {
		t.Errorf("i64 + i32 should be i64, got %s", v.TypeName())
	}

	v, _ = runVM(t, "let a: u8 = 250; let b: u8 = 10; a + b")
	if v.Kind != ValU8 {
		t.Errorf("u8 + u8 should be u8, got %s", v.TypeName())
	}
	testIntValue(t, v, 4) // wraps at the u8 width

	v, _ = runVM(t, "1 + 2.5")
	if v.Kind != ValF64 {
		t.Errorf("int + float should be f64, got %s", v.TypeName())
	}
}

func TestDivAlwaysFloat(t *testing.T) {
	v, _ := runVM(t, "7 / 2")
	if v.Kind != ValF64 {
		t.Fatalf("/ should yield f64, got %s", v.TypeName())
	}
	if v.AsF64() != 3.5 {
		t.Errorf("7 / 2 = %v, want 3.5", v.AsF64())
	}

	v, _ = runVM(t, "divi(7, 2)")
	testIntValue(t, v, 3)
}

func TestCommutativeAdd(t *testing.T) {
	pairs := [][2]string{
		{"1 + 2", "2 + 1"},
		{"1.5 + 2", "2 + 1.5"},
		{"let a: u16 = 7; let b: i8 = 3; a + b", "let a: u16 = 7; let b: i8 = 3; b + a"},
	}
	for _, p := range pairs {
		x, _ := runVM(t, p[0])
		y, _ := runVM(t, p[1])
		if !x.Equals(y) {
			t.Errorf("%q and %q disagree: %s vs %s", p[0], p[1], x.Format(), y.Format())
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	err := runVMErr(t, "1 / 0")
	if !strings.Contains(err.Error(), "Division by zero") {
		t.Errorf("unexpected error: %s", err)
	}
	expectOutput(t,
		`try { divi(1, 0); } catch (e) { print("caught", e); }`,
		"caught Division by zero\n")
	expectOutput(t,
		`try { modi(1, 0); } catch (e) { print("caught", e); }`,
		"caught Modulo by zero\n")
}

func TestClosureCounter(t *testing.T) {
	expectOutput(t, `
		let make = fn() { let n = 0; return fn() { n = n + 1; return n; }; };
		let c = make();
		print(c());
		print(c());
		print(c());
	`, "1\n2\n3\n")
}

func TestClosureSharedUpvalue(t *testing.T) {
	expectOutput(t, `
		let x = 10;
		let get = fn() { return x; };
		let set = fn(v) { x = v; };
		set(42);
		print(get());
		print(x);
	`, "42\n42\n")
}

func TestForInObjectKeyValue(t *testing.T) {
	expectOutput(t, `
		let o = {a: 1, b: 2, c: 3};
		let sum = 0;
		for (k, v in o) { sum = sum + v; }
		print(sum);
	`, "6\n")

	expectOutput(t, `
		let o = {a: 1, b: 2};
		let keys = "";
		for (k, v in o) { keys = keys + k; }
		print(keys);
	`, "ab\n")
}

func TestForInArray(t *testing.T) {
	expectOutput(t, `
		let total = 0;
		for (x in [1, 2, 3, 4]) { total = total + x; }
		print(total);
	`, "10\n")
}

func TestTryCatchFinally(t *testing.T) {
	expectOutput(t, `
		try { throw "boom"; } catch (e) { print("caught:", e); } finally { print("done"); }
	`, "caught: boom\ndone\n")
}

func TestTryFinallyRethrow(t *testing.T) {
	expectOutput(t, `
		try {
			try { throw "inner"; } finally { print("cleanup"); }
		} catch (e) {
			print("outer caught", e);
		}
	`, "cleanup\nouter caught inner\n")
}

func TestReturnInsideTryDropsHandler(t *testing.T) {
	// f returns out of its try before END_TRY runs; the handler it pushed
	// must die with f's frame. A later throw in g must land in g's own
	// catch, not in f's dead one.
	expectOutput(t, `
		let f = fn() { try { return 1; } catch (e) { return -1; } };
		let g = fn() {
			try { f(); throw "boom"; } catch (e) { return e; }
		};
		print(g());
	`, "boom\n")

	expectOutput(t, `
		let f = fn() { try { return "early"; } catch (e) { return "wrong"; } };
		print(f());
		try { throw "top"; } catch (e) { print("caught", e); }
	`, "early\ncaught top\n")
}

func TestReturnInsideTryDeepCallChain(t *testing.T) {
	// Two levels of callees returning out of their own trys; the
	// outermost catch still owns the throw.
	expectOutput(t, `
		let inner = fn() { try { return 1; } catch (e) { return -1; } };
		let mid = fn() { try { return inner() + 1; } catch (e) { return -2; } };
		try {
			print(mid());
			throw "escapes";
		} catch (e) {
			print("outer", e);
		}
	`, "2\nouter escapes\n")
}

func TestThrowAcrossFrames(t *testing.T) {
	expectOutput(t, `
		let deep = fn() { throw "from deep"; };
		let mid = fn() { deep(); };
		try { mid(); } catch (e) { print(e); }
	`, "from deep\n")
}

func TestUncaughtExceptionTrace(t *testing.T) {
	err := runVMErr(t, `
		let f = fn() { throw "bad"; };
		f();
	`)
	if !strings.Contains(err.Error(), "bad") || !strings.Contains(err.Error(), "at ") {
		t.Errorf("expected message with stack trace, got: %s", err)
	}
}

func TestSwitchFallthrough(t *testing.T) {
	expectOutput(t, `
		let x = 2;
		switch (x) {
			case 1: print("one"); break;
			case 2: print("two");
			case 3: print("three"); break;
			default: print("other");
		}
	`, "two\nthree\n")

	expectOutput(t, `
		let x = 9;
		switch (x) {
			case 1: print("one"); break;
			default: print("other");
		}
	`, "other\n")
}

func TestMapFilterReduceChain(t *testing.T) {
	expectOutput(t, `
		let xs = [1,2,3,4,5];
		print(xs.filter(fn(n){ return n%2==0; }).map(fn(n){ return n*n; }).reduce(fn(a,b){ return a+b; }, 0));
	`, "20\n")
}

func TestWhileBreakContinue(t *testing.T) {
	expectOutput(t, `
		let i = 0;
		let acc = 0;
		while (i < 10) {
			i = i + 1;
			if (i % 2 == 0) { continue; }
			if (i > 7) { break; }
			acc = acc + i;
		}
		print(acc, i);
	`, "16 9\n")
}

func TestCStyleFor(t *testing.T) {
	expectOutput(t, `
		let acc = 0;
		for (let i = 0; i < 5; i = i + 1) { acc = acc + i; }
		print(acc);
	`, "10\n")
}

func TestPostfixPrefixIncrement(t *testing.T) {
	expectOutput(t, `
		let x = 1;
		print(x++);
		print(x);
		print(++x);
		print(x--);
		print(--x);
	`, "1\n2\n3\n3\n1\n")

	expectOutput(t, `
		let a = [1, 2, 3];
		print(a[1]++);
		print(a[1]);
		print(++a[1]);
	`, "2\n3\n4\n")

	expectOutput(t, `
		let o = {n: 5};
		print(o.n++);
		print(o.n);
		print(--o.n);
	`, "5\n6\n5\n")
}

func TestTernaryAndLogical(t *testing.T) {
	expectOutput(t, `print(1 < 2 ? "yes" : "no");`, "yes\n")
	expectOutput(t, `print(false && missing());`, "false\n")
	expectOutput(t, `print(true || missing());`, "true\n")
}

func TestNullCoalesce(t *testing.T) {
	expectOutput(t, `print(null ?? 3);`, "3\n")
	expectOutput(t, `print(4 ?? 3);`, "4\n")
	expectOutput(t, `let o = {a: null}; print(o.a ?? "fallback");`, "fallback\n")
}

func TestOptionalChain(t *testing.T) {
	expectOutput(t, `let o = null; print(o?.x);`, "null\n")
	expectOutput(t, `let o = {x: 7}; print(o?.x);`, "7\n")
	expectOutput(t, `let o = null; print(o?.[0]);`, "null\n")
	expectOutput(t, `let o = null; print(o?.m(1, 2));`, "null\n")
	expectOutput(t, `
		let o = {greet: fn() { return "hi"; }};
		print(o?.greet());
	`, "hi\n")
}

func TestStringInterpolation(t *testing.T) {
	expectOutput(t, `let name = "world"; print("hi ${name}!");`, "hi world!\n")
	expectOutput(t, `print("sum=${1 + 2}");`, "sum=3\n")
	expectOutput(t, `print("a\$b");`, "a$b\n")
}

func TestStringIndexingIsCodepoint(t *testing.T) {
	expectOutput(t, `print("héllo"[1]);`, "é\n")
	expectOutput(t, `print(typeof("abc"[0]));`, "rune\n")
	v, _ := runVM(t, `"ab"[5]`)
	if !v.IsNull() {
		t.Errorf("out-of-range string index should be null, got %s", v.Format())
	}
}

func TestArrayBounds(t *testing.T) {
	v, _ := runVM(t, `let a = [1, 2]; a[2]`)
	if !v.IsNull() {
		t.Errorf("a[len] should read null, got %s", v.Format())
	}
	v, _ = runVM(t, `let a = [1, 2]; a[-1]`)
	if !v.IsNull() {
		t.Errorf("a[-1] should read null, got %s", v.Format())
	}
	expectOutput(t, `
		let a = [1];
		a[3] = 9;
		print(a.length, a[1], a[3]);
	`, "4 null 9\n")
}

func TestMethodsWithSelf(t *testing.T) {
	expectOutput(t, `
		let counter = {
			n: 0,
			bump: fn() { self.n = self.n + 1; return self.n; },
		};
		print(counter.bump());
		print(counter.bump());
		print(counter.n);
	`, "1\n2\n2\n")
}

func TestMethodErrors(t *testing.T) {
	expectOutput(t,
		`let o = {}; try { o.nope(); } catch (e) { print(e); }`,
		"Object has no method 'nope'\n")
	expectOutput(t,
		`try { (5).nope(); } catch (e) { print(e); }`,
		"Cannot call method on i32\n")
}

func TestTypeof(t *testing.T) {
	expectOutput(t, `print(typeof(1));`, "i32\n")
	expectOutput(t, `print(typeof(1.5));`, "f64\n")
	expectOutput(t, `print(typeof("s"));`, "string\n")
	expectOutput(t, `print(typeof([1]));`, "array\n")
	expectOutput(t, `print(typeof({}));`, "object\n")
	expectOutput(t, `print(typeof(null));`, "null\n")
	expectOutput(t, `print(typeof(fn(){}));`, "function\n")
	expectOutput(t, `let p: Point = {x: 1}; print(typeof(p));`, "Point\n")
}

func TestEnum(t *testing.T) {
	expectOutput(t, `
		enum Color { RED, GREEN = 5, BLUE }
		print(Color.RED, Color.GREEN, Color.BLUE);
		print(typeof(Color));
	`, "0 5 6\nColor\n")
}

func TestConstReassignIsCompileError(t *testing.T) {
	_, errs := CompileProgram(parse(t, "const x = 1; x = 2;"))
	if len(errs) == 0 {
		t.Fatalf("expected a compile error for const reassignment")
	}
	if !strings.Contains(errs[0], "constant") {
		t.Errorf("unexpected error: %s", errs[0])
	}
}

func TestUndefinedVariable(t *testing.T) {
	err := runVMErr(t, "missing;")
	if !strings.Contains(err.Error(), "Undefined variable") {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestVariableShadowingError(t *testing.T) {
	_, errs := CompileProgram(parse(t, "let x = 1; let x = 2;"))
	if len(errs) == 0 {
		t.Fatalf("expected an already-declared error")
	}
}

func TestDeferRunsLIFO(t *testing.T) {
	expectOutput(t, `
		let f = fn() {
			defer print("first registered");
			defer print("second registered");
			print("body");
		};
		f();
	`, "body\nsecond registered\nfirst registered\n")
}

func TestDeferSeesUpvalues(t *testing.T) {
	expectOutput(t, `
		let f = fn() {
			let x = 1;
			defer print("x was", x);
			x = 2;
		};
		f();
	`, "x was 2\n")
}

func TestOptionalAndRestParams(t *testing.T) {
	expectOutput(t, `
		let greet = fn(name, greeting = "hello") { return greeting + " " + name; };
		print(greet("ada"));
		print(greet("ada", "hi"));
	`, "hello ada\nhi ada\n")

	expectOutput(t, `
		let pack = fn(first, ...rest) { return rest; };
		print(pack(1, 2, 3, 4));
		print(pack(1));
	`, "[2, 3, 4]\n[]\n")

	err := runVMErr(t, `
		let need = fn(a, b) { return a; };
		need(1);
	`)
	if !strings.Contains(err.Error(), "expects") {
		t.Errorf("unexpected arity error: %s", err)
	}
}

func TestRecursion(t *testing.T) {
	expectOutput(t, `
		let fib = fn(n) {
			if (n < 2) { return n; }
			return fib(n - 1) + fib(n - 2);
		};
		print(fib(15));
	`, "610\n")
}

func TestFreeDoubleFree(t *testing.T) {
	expectOutput(t, `
		let a = [1, 2];
		free(a);
		try { free(a); } catch (e) { print(e); }
	`, "Double free of array\n")

	expectOutput(t, `
		let a = [1, 2];
		free(a);
		try { a.push(3); } catch (e) { print(e); }
	`, "use after free: array\n")
}

func TestSerializeRoundTrip(t *testing.T) {
	expectOutput(t, `
		let o = {name: "hemlock", tags: [1, 2], nested: {ok: true}};
		let s = o.serialize();
		print(s);
		let back = s.deserialize();
		print(back.name, back.tags[1], back.nested.ok);
	`, "{\"name\":\"hemlock\",\"tags\":[1,2],\"nested\":{\"ok\":true}}\nhemlock 2 true\n")
}

func TestReverseTwiceIsIdentity(t *testing.T) {
	expectOutput(t, `
		let a = [1, 2, 3];
		a.reverse();
		a.reverse();
		print(a);
	`, "[1, 2, 3]\n")
}

func TestApply(t *testing.T) {
	expectOutput(t, `
		let add = fn(a, b) { return a + b; };
		print(apply(add, [3, 4]));
	`, "7\n")
	expectOutput(t, `print(apply(min, [5, 2, 9]));`, "2\n")
}

func TestCastTruncation(t *testing.T) {
	v, _ := runVM(t, "let x: u8 = 300; x")
	testIntValue(t, v, 44)
	if v.Kind != ValU8 {
		t.Errorf("annotated u8 should have kind u8, got %s", v.TypeName())
	}
}

func TestLastExpressionIsProgramResult(t *testing.T) {
	v, _ := runVM(t, "1 + 2; 3 * 4")
	testIntValue(t, v, 12)
}

func TestBlockScoping(t *testing.T) {
	expectOutput(t, `
		let x = 1;
		{ let x = 2; print(x); }
		print(x);
	`, "2\n1\n")
}

func TestBitwiseOps(t *testing.T) {
	v, _ := runVM(t, "(5 & 3) | (4 ^ 1) | (1 << 3)")
	testIntValue(t, v, 1|5|8)
	v, _ = runVM(t, "~0")
	testIntValue(t, v, -1)
	v, _ = runVM(t, "16 >> 2")
	testIntValue(t, v, 4)
}

func TestRuneLiterals(t *testing.T) {
	expectOutput(t, `print('a');`, "a\n")
	expectOutput(t, `print(typeof('a'));`, "rune\n")
	expectOutput(t, `print('a' + 1);`, "98\n")
}
