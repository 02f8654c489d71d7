package vm

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMathBuiltins(t *testing.T) {
	v, _ := runVM(t, "sqrt(16.0)")
	assert.Equal(t, 4.0, v.AsFloat())

	v, _ = runVM(t, "pow(2, 10)")
	assert.Equal(t, 1024.0, v.AsFloat())

	v, _ = runVM(t, "min(3, 1, 2)")
	testIntValue(t, v, 1)

	v, _ = runVM(t, "max(3, 1, 2)")
	testIntValue(t, v, 3)

	v, _ = runVM(t, "clamp(15, 0, 10)")
	assert.Equal(t, 10.0, v.AsFloat())

	v, _ = runVM(t, "floori(3.7)")
	testIntValue(t, v, 3)

	v, _ = runVM(t, "abs(0 - 5)")
	testIntValue(t, v, 5)
}

func TestMathConstants(t *testing.T) {
	expectOutput(t, `print(PI > 3.14 && PI < 3.15);`, "true\n")
	expectOutput(t, `print(INF > 1000000000);`, "true\n")
	_, errs := CompileProgram(parse(t, "PI = 3;"))
	if len(errs) == 0 {
		// Constants are runtime-checked when not known at compile time.
		err := runVMErr(t, "PI = 3;")
		require.Contains(t, err.Error(), "constant")
	}
}

func TestSeededRandIsDeterministic(t *testing.T) {
	a, _ := runVM(t, "seed(7); rand()")
	b, _ := runVM(t, "seed(7); rand()")
	assert.Equal(t, a.AsFloat(), b.AsFloat())

	v, _ := runVM(t, "seed(1); rand_range(10, 20)")
	assert.GreaterOrEqual(t, v.AsInt(), int64(10))
	assert.Less(t, v.AsInt(), int64(20))
}

func TestHashBuiltins(t *testing.T) {
	v, _ := runVM(t, `sha256("abc")`)
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		v.AsString().Str())

	v, _ = runVM(t, `md5("abc")`)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", v.AsString().Str())

	v, _ = runVM(t, `sha512("")`)
	assert.Len(t, v.AsString().Str(), 128)
}

func TestUUIDBuiltins(t *testing.T) {
	v, _ := runVM(t, "uuid()")
	s := v.AsString().Str()
	assert.Len(t, s, 36)
	assert.Equal(t, byte('-'), s[8])

	a, _ := runVM(t, "uuid()")
	b, _ := runVM(t, "uuid()")
	assert.NotEqual(t, a.AsString().Str(), b.AsString().Str())

	v, _ = runVM(t, "uuid_v7()")
	assert.Len(t, v.AsString().Str(), 36)
}

func TestStringConcatMany(t *testing.T) {
	expectOutput(t, `print(string_concat_many("a", 1, true));`, "a1true\n")
}

func TestDunderAliases(t *testing.T) {
	expectOutput(t, `__print(__typeof(1));`, "i32\n")
	v, _ := runVM(t, `__sha256("abc")`)
	assert.True(t, strings.HasPrefix(v.AsString().Str(), "ba7816bf"))
}

func TestBufferAndPointerBuiltins(t *testing.T) {
	expectOutput(t, `
		let b = buffer(8);
		let p = buffer_ptr(b);
		ptr_write_i32(p, 1234);
		print(ptr_read_i32(p));
		ptr_write_i32(ptr_offset(p, 4), 99);
		print(ptr_read_i32(ptr_offset(p, 4)));
		print(b[0]);
	`, "1234\n99\n210\n")

	expectOutput(t, `
		let p = alloc(4);
		memset(p, 255, 4);
		print(ptr_read_u32(p));
		free(p);
		try { ptr_read_u32(p); } catch (e) { print(e); }
	`, "4294967295\nuse after free: buffer\n")

	expectOutput(t, `
		let p = ptr_null();
		try { ptr_read_i32(p); } catch (e) { print(e); }
	`, "Null pointer dereference\n")

	expectOutput(t, `
		let a = alloc(4);
		let b = alloc(4);
		ptr_write_i32(a, 7);
		memcpy(b, a, 4);
		print(ptr_read_i32(b));
	`, "7\n")
}

func TestAtomicBuiltins(t *testing.T) {
	expectOutput(t, `
		let p = alloc(8);
		atomic_store_i64(p, 40);
		print(atomic_add_i64(p, 2));
		print(atomic_load_i64(p));
		print(atomic_cas_i64(p, 42, 100));
		print(atomic_cas_i64(p, 42, 100));
		print(atomic_exchange_i64(p, 7));
		print(atomic_load_i64(p));
	`, "40\n42\ntrue\nfalse\n100\n7\n")
}

func TestSizeof(t *testing.T) {
	v, _ := runVM(t, "let x: i16 = 1; sizeof(x)")
	testIntValue(t, v, 2)
	v, _ = runVM(t, "sizeof(1.5)")
	testIntValue(t, v, 8)
	v, _ = runVM(t, `sizeof("abc")`)
	testIntValue(t, v, 3)
	v, _ = runVM(t, "sizeof(buffer(10))")
	testIntValue(t, v, 10)
}

func TestFileBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	src := `
		write_file("` + path + `", "line one\n");
		append_file("` + path + `", "line two\n");
		print(read_file("` + path + `"));
		print(exists("` + path + `"), is_file("` + path + `"), is_dir("` + dir + `"));
	`
	expectOutput(t, src, "line one\nline two\n\ntrue true true\n")

	expectOutput(t, `
		try { read_file("`+filepath.Join(dir, "missing.txt")+`"); }
		catch (e) { print("caught"); }
	`, "caught\n")
}

func TestFileHandleLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "h.txt")

	expectOutput(t, `
		let f = open("`+path+`", "w");
		f.write("hello");
		f.close();
		let g = open("`+path+`");
		print(g.read());
		g.close();
		try { g.read(); } catch (e) { print(e); }
		try { g.close(); } catch (e) { print(e); }
	`, "hello\nCannot read from closed file\nFile already closed\n")
}

func TestDirBuiltins(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	expectOutput(t, `
		make_dir("`+sub+`");
		print(is_dir("`+sub+`"));
		print(list_dir("`+dir+`"));
		remove_dir("`+sub+`");
		print(exists("`+sub+`"));
	`, "true\n[\"sub\"]\nfalse\n")
}

func TestEnvBuiltins(t *testing.T) {
	expectOutput(t, `
		setenv("HEMLOCK_TEST_VAR", "on");
		print(getenv("HEMLOCK_TEST_VAR"));
		unsetenv("HEMLOCK_TEST_VAR");
		print(getenv("HEMLOCK_TEST_VAR"));
	`, "on\nnull\n")
}

func TestExecBuiltin(t *testing.T) {
	expectOutput(t, `
		let r = exec("echo hemlock");
		print(r.code, r.stdout);
	`, "0 hemlock\n\n")

	expectOutput(t, `
		let r = exec_argv(["echo", "argv"]);
		print(r.stdout);
	`, "argv\n\n")
}

func TestSQLiteBuiltins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	expectOutput(t, `
		let db = db_open("`+path+`");
		db_exec(db, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)");
		db_exec(db, "INSERT INTO users (name) VALUES (?)", "ada");
		db_exec(db, "INSERT INTO users (name) VALUES (?)", "grace");
		let rows = db_query(db, "SELECT name FROM users ORDER BY id");
		print(rows.length, rows[0].name, rows[1].name);
		db_close(db);
	`, "2 ada grace\n")

	expectOutput(t, `
		try { db_exec(9999, "SELECT 1"); } catch (e) { print("caught"); }
	`, "caught\n")
}

func TestAssertAndPanic(t *testing.T) {
	expectOutput(t, `
		try { assert(false, "nope"); } catch (e) { print(e); }
		assert(true);
		print("after");
	`, "assertion failed: nope\nafter\n")

	// panic is fatal: try/catch must not intercept it.
	err := runVMErr(t, `try { panic("hard stop"); } catch (e) { print("caught"); }`)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "hard stop", fatal.Msg)
}

func TestExitError(t *testing.T) {
	err := runVMErr(t, "exit(3);")
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 3, exit.Code)
}

func TestArgsGlobal(t *testing.T) {
	chunk := compile(t, "print(args);")
	machine := New()
	machine.SetArgs([]string{"a", "b"})
	var out strings.Builder
	machine.SetOutput(&out)
	_, err := machine.Run(chunk)
	require.NoError(t, err)
	assert.Equal(t, "[\"a\", \"b\"]\n", out.String())
}
