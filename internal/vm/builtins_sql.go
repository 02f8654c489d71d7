package vm

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver
)

// Open databases are kept in a process-wide registry keyed by handle id,
// so database handles can cross task boundaries safely.
var (
	sqlRegistry   = map[int64]*sql.DB{}
	sqlNextID     int64 = 1
	sqlRegistryMu sync.Mutex
)

func init() {
	registerBuiltins([]Builtin{
		{Name: "db_open", Arity: 1, Fn: builtinDBOpen},
		{Name: "db_exec", Arity: -1, Fn: builtinDBExec},
		{Name: "db_query", Arity: -1, Fn: builtinDBQuery},
		{Name: "db_close", Arity: 1, Fn: builtinDBClose},
	})
}

func builtinDBOpen(vm *VM, args []Value) (Value, error) {
	path, err := wantString("db_open", args[0])
	if err != nil {
		return NullVal(), err
	}
	db, derr := sql.Open("sqlite", path)
	if derr != nil {
		return NullVal(), Throw("Cannot open database '%s': %s", path, derr)
	}
	if derr := db.Ping(); derr != nil {
		db.Close()
		return NullVal(), Throw("Cannot open database '%s': %s", path, derr)
	}
	sqlRegistryMu.Lock()
	id := sqlNextID
	sqlNextID++
	sqlRegistry[id] = db
	sqlRegistryMu.Unlock()
	return I64Val(id), nil
}

func lookupDB(v Value) (*sql.DB, error) {
	if !v.IsInt() {
		return nil, Throw("expected a database handle, got %s", v.TypeName())
	}
	sqlRegistryMu.Lock()
	db, ok := sqlRegistry[v.AsInt()]
	sqlRegistryMu.Unlock()
	if !ok {
		return nil, Throw("database handle %d is not open", v.AsInt())
	}
	return db, nil
}

func sqlParams(args []Value) []any {
	params := make([]any, len(args))
	for i, a := range args {
		switch a.Kind {
		case ValNull:
			params[i] = nil
		case ValBool:
			params[i] = a.AsBool()
		case ValString:
			params[i] = a.AsString().Str()
		case ValF32, ValF64:
			params[i] = a.AsFloat()
		default:
			params[i] = a.AsInt()
		}
	}
	return params
}

// db_exec(db, query, params...) runs a statement and returns the number
// of affected rows.
func builtinDBExec(vm *VM, args []Value) (Value, error) {
	if len(args) < 2 {
		return NullVal(), Throw("db_exec expects a handle and a query")
	}
	db, err := lookupDB(args[0])
	if err != nil {
		return NullVal(), err
	}
	query, err := wantString("db_exec", args[1])
	if err != nil {
		return NullVal(), err
	}
	res, derr := db.Exec(query, sqlParams(args[2:])...)
	if derr != nil {
		return NullVal(), Throw("db_exec failed: %s", derr)
	}
	n, _ := res.RowsAffected()
	return I64Val(n), nil
}

// db_query(db, query, params...) returns an array of row objects with
// column-ordered fields.
func builtinDBQuery(vm *VM, args []Value) (Value, error) {
	if len(args) < 2 {
		return NullVal(), Throw("db_query expects a handle and a query")
	}
	db, err := lookupDB(args[0])
	if err != nil {
		return NullVal(), err
	}
	query, err := wantString("db_query", args[1])
	if err != nil {
		return NullVal(), err
	}
	rows, derr := db.Query(query, sqlParams(args[2:])...)
	if derr != nil {
		return NullVal(), Throw("db_query failed: %s", derr)
	}
	defer rows.Close()

	cols, derr := rows.Columns()
	if derr != nil {
		return NullVal(), Throw("db_query failed: %s", derr)
	}

	var out []Value
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if derr := rows.Scan(ptrs...); derr != nil {
			return NullVal(), Throw("db_query failed: %s", derr)
		}
		fields := make([]Field, len(cols))
		for i, col := range cols {
			fields[i] = Field{Name: col, Value: sqlToValue(raw[i])}
		}
		out = append(out, ObjectVal(NewObject(fields)))
	}
	if derr := rows.Err(); derr != nil {
		return NullVal(), Throw("db_query failed: %s", derr)
	}
	return ArrayVal(NewArray(out)), nil
}

func sqlToValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return NullVal()
	case int64:
		return I64Val(x)
	case float64:
		return F64Val(x)
	case bool:
		return BoolVal(x)
	case string:
		return StrVal(x)
	case []byte:
		buf := NewBuffer(len(x))
		copy(buf.Data(), x)
		return BufferVal(buf)
	default:
		return StrVal(fmt.Sprintf("%v", x))
	}
}

func builtinDBClose(vm *VM, args []Value) (Value, error) {
	if !args[0].IsInt() {
		return NullVal(), Throw("db_close expects a database handle")
	}
	id := args[0].AsInt()
	sqlRegistryMu.Lock()
	db, ok := sqlRegistry[id]
	delete(sqlRegistry, id)
	sqlRegistryMu.Unlock()
	if !ok {
		return NullVal(), Throw("database handle %d is not open", id)
	}
	if derr := db.Close(); derr != nil {
		return NullVal(), Throw("db_close failed: %s", derr)
	}
	return NullVal(), nil
}
