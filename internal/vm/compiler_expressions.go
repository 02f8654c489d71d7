package vm

import (
	"github.com/hemlang/hemlock/internal/ast"
	"github.com/hemlang/hemlock/internal/token"
)

func (c *Compiler) compileExpression(expr ast.Expression) {
	if expr == nil {
		return
	}
	line := expr.Pos().Line

	switch e := expr.(type) {
	case *ast.NumberLiteral:
		if e.IsFloat {
			c.emitFloat(e.Float, line, e.Token)
		} else {
			c.emitInt(e.Int, line, e.Token)
		}
	case *ast.BoolLiteral:
		if e.Value {
			c.emitOp(OP_TRUE, line)
		} else {
			c.emitOp(OP_FALSE, line)
		}
	case *ast.NullLiteral:
		c.emitOp(OP_NULL, line)
	case *ast.StringLiteral:
		c.emitConstIdx(OP_CONST, c.chunk.AddString(e.Value), line, e.Token)
	case *ast.RuneLiteral:
		c.emitConstIdx(OP_CONST, c.chunk.AddConstant(RuneVal(e.Value)), line, e.Token)
	case *ast.Identifier:
		c.compileIdentifier(e)
	case *ast.SelfExpression:
		c.emitOp(OP_GET_SELF, line)
	case *ast.Binary:
		c.compileBinary(e)
	case *ast.Unary:
		c.compileUnary(e)
	case *ast.Ternary:
		c.compileTernary(e)
	case *ast.Call:
		c.compileCall(e)
	case *ast.Assign:
		c.compileAssign(e)
	case *ast.GetProperty:
		c.compileExpression(e.Object)
		c.emitConstIdx(OP_GET_PROPERTY, c.chunk.AddIdentifier(e.Name), line, e.Token)
	case *ast.SetProperty:
		c.compileExpression(e.Object)
		c.compileExpression(e.Value)
		c.emitConstIdx(OP_SET_PROPERTY, c.chunk.AddIdentifier(e.Name), line, e.Token)
	case *ast.Index:
		c.compileExpression(e.Object)
		c.compileExpression(e.Key)
		c.emitOp(OP_GET_INDEX, line)
	case *ast.IndexAssign:
		c.compileExpression(e.Object)
		c.compileExpression(e.Key)
		c.compileExpression(e.Value)
		c.emitOp(OP_SET_INDEX, line)
	case *ast.ArrayLiteral:
		for _, el := range e.Elements {
			c.compileExpression(el)
		}
		c.emitOp(OP_ARRAY, line)
		c.emitShort(len(e.Elements), line)
	case *ast.ObjectLiteral:
		for i, name := range e.FieldNames {
			c.emitConstIdx(OP_CONST, c.chunk.AddString(name), line, e.Token)
			c.compileExpression(e.FieldValues[i])
		}
		c.emitOp(OP_OBJECT, line)
		c.emitShort(len(e.FieldNames), line)
	case *ast.PrefixIncDec:
		c.compileIncDec(e.Token, e.Op, e.Operand, true)
	case *ast.PostfixIncDec:
		c.compileIncDec(e.Token, e.Op, e.Operand, false)
	case *ast.NullCoalesce:
		c.compileExpression(e.Left)
		skip := c.emitJump(OP_COALESCE, line)
		c.emitOp(OP_POP, line)
		c.compileExpression(e.Right)
		c.patchJump(skip, e.Token)
	case *ast.OptionalChain:
		c.compileOptionalChain(e)
	case *ast.StringInterpolation:
		c.compileInterpolation(e)
	case *ast.Function:
		c.compileFunction(e)
	case *ast.Await:
		c.compileExpression(e.Value)
		c.emitOp(OP_AWAIT, line)
	default:
		c.errorAt(expr.Pos(), "cannot compile expression %T", expr)
	}
}

func (c *Compiler) compileIdentifier(e *ast.Identifier) {
	line := e.Token.Line

	if e.Resolved {
		if e.Depth == 0 {
			c.emitOp(OP_GET_LOCAL, line)
			c.emitByte(byte(e.Slot), line)
			return
		}
		if up := c.resolveUpvalue(e.Token, e.Name); up != -1 {
			c.emitOp(OP_GET_UPVALUE, line)
			c.emitByte(byte(up), line)
			return
		}
	}

	if slot, _ := c.resolveLocal(e.Token, e.Name); slot != -1 {
		c.emitOp(OP_GET_LOCAL, line)
		c.emitByte(byte(slot), line)
		return
	}
	if up := c.resolveUpvalue(e.Token, e.Name); up != -1 {
		c.emitOp(OP_GET_UPVALUE, line)
		c.emitByte(byte(up), line)
		return
	}
	c.emitConstIdx(OP_GET_GLOBAL, c.chunk.AddIdentifier(e.Name), line, e.Token)
}

var binaryOps = map[token.Type]Opcode{
	token.PLUS:    OP_ADD,
	token.MINUS:   OP_SUB,
	token.STAR:    OP_MUL,
	token.SLASH:   OP_DIV,
	token.PERCENT: OP_MOD,
	token.EQ:      OP_EQ,
	token.NE:      OP_NE,
	token.LT:      OP_LT,
	token.LE:      OP_LE,
	token.GT:      OP_GT,
	token.GE:      OP_GE,
	token.AMP:     OP_BIT_AND,
	token.PIPE:    OP_BIT_OR,
	token.CARET:   OP_BIT_XOR,
	token.LSHIFT:  OP_LSHIFT,
	token.RSHIFT:  OP_RSHIFT,
}

func (c *Compiler) compileBinary(e *ast.Binary) {
	line := e.Token.Line

	switch e.Op {
	case token.AND:
		c.compileExpression(e.Left)
		skip := c.emitJump(OP_JUMP_IF_FALSE, line)
		c.emitOp(OP_POP, line)
		c.compileExpression(e.Right)
		c.patchJump(skip, e.Token)
		return
	case token.OR:
		c.compileExpression(e.Left)
		skip := c.emitJump(OP_JUMP_IF_TRUE, line)
		c.emitOp(OP_POP, line)
		c.compileExpression(e.Right)
		c.patchJump(skip, e.Token)
		return
	}

	op, ok := binaryOps[e.Op]
	if !ok {
		c.errorAt(e.Token, "unknown operator %s", e.Op)
		return
	}
	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	c.emitOp(op, line)
}

func (c *Compiler) compileUnary(e *ast.Unary) {
	line := e.Token.Line
	c.compileExpression(e.Operand)
	switch e.Op {
	case token.BANG:
		c.emitOp(OP_NOT, line)
	case token.MINUS:
		c.emitOp(OP_NEGATE, line)
	case token.TILDE:
		c.emitOp(OP_BIT_NOT, line)
	default:
		c.errorAt(e.Token, "unknown unary operator %s", e.Op)
	}
}

func (c *Compiler) compileTernary(e *ast.Ternary) {
	line := e.Token.Line
	c.compileExpression(e.Cond)
	elseJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emitOp(OP_POP, line)
	c.compileExpression(e.Then)
	endJump := c.emitJump(OP_JUMP, line)
	c.patchJump(elseJump, e.Token)
	c.emitOp(OP_POP, line)
	c.compileExpression(e.Else)
	c.patchJump(endJump, e.Token)
}

// compileCall lowers calls. Method calls on property accesses become
// CALL_METHOD; direct calls to unshadowed builtin names become
// CALL_BUILTIN (print gets its own opcode); everything else is a plain
// CALL through a callee value.
func (c *Compiler) compileCall(e *ast.Call) {
	line := e.Token.Line

	if len(e.Args) > 255 {
		c.errorAt(e.Token, "too many call arguments")
		return
	}

	if prop, ok := e.Fn.(*ast.GetProperty); ok {
		c.compileExpression(prop.Object)
		for _, arg := range e.Args {
			c.compileExpression(arg)
		}
		c.emitConstIdx(OP_CALL_METHOD, c.chunk.AddIdentifier(prop.Name), line, e.Token)
		c.emitByte(byte(len(e.Args)), line)
		return
	}

	if id, ok := e.Fn.(*ast.Identifier); ok && c.isBuiltinCall(id) {
		if id.Name == "print" || id.Name == "__print" {
			for _, arg := range e.Args {
				c.compileExpression(arg)
			}
			c.emitOp(OP_PRINT, line)
			c.emitByte(byte(len(e.Args)), line)
			return
		}
		for _, arg := range e.Args {
			c.compileExpression(arg)
		}
		bid, _ := LookupBuiltin(id.Name)
		c.emitConstIdx(OP_CALL_BUILTIN, bid, line, e.Token)
		c.emitByte(byte(len(e.Args)), line)
		return
	}

	c.compileExpression(e.Fn)
	for _, arg := range e.Args {
		c.compileExpression(arg)
	}
	c.emitOp(OP_CALL, line)
	c.emitByte(byte(len(e.Args)), line)
}

// isBuiltinCall reports whether id names a registered builtin that no
// local, upvalue or program-defined global shadows.
func (c *Compiler) isBuiltinCall(id *ast.Identifier) bool {
	if _, ok := LookupBuiltin(id.Name); !ok {
		return false
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == id.Name {
			return false
		}
	}
	for enc := c.enclosing; enc != nil; enc = enc.enclosing {
		for i := len(enc.locals) - 1; i >= 0; i-- {
			if enc.locals[i].Name == id.Name {
				return false
			}
		}
	}
	return !c.root.globalNames[id.Name]
}

func (c *Compiler) compileAssign(e *ast.Assign) {
	line := e.Token.Line
	c.compileExpression(e.Value)
	c.emitStore(e.Token, e.Name, line)
}

// emitStore resolves name and emits the matching SET instruction. The
// stored value is left on the stack (SET_* peeks).
func (c *Compiler) emitStore(tok token.Token, name string, line int) {
	if slot, isConst := c.resolveLocal(tok, name); slot != -1 {
		if isConst {
			c.errorAt(tok, "cannot reassign constant %q", name)
		}
		c.emitOp(OP_SET_LOCAL, line)
		c.emitByte(byte(slot), line)
		return
	}
	if up := c.resolveUpvalue(tok, name); up != -1 {
		c.emitOp(OP_SET_UPVALUE, line)
		c.emitByte(byte(up), line)
		return
	}
	if c.root.constNames[name] {
		c.errorAt(tok, "cannot reassign constant %q", name)
	}
	c.emitConstIdx(OP_SET_GLOBAL, c.chunk.AddIdentifier(name), line, tok)
}

// compileIncDec lowers ++/-- for the three l-value shapes. Any sequence
// leaving the correct result on top is conformant; these use the i32 fast
// paths for the constant 1.
func (c *Compiler) compileIncDec(tok token.Token, op token.Type, target ast.Expression, prefix bool) {
	line := tok.Line
	arith := OP_ADD_I32
	if op == token.DEC {
		arith = OP_SUB_I32
	}

	switch t := target.(type) {
	case *ast.Identifier:
		c.compileIdentifier(t)
		if !prefix {
			c.emitOp(OP_DUP, line)
		}
		c.emitOp(OP_CONST_BYTE, line)
		c.emitByte(1, line)
		c.emitOp(arith, line)
		if prefix {
			c.emitOp(OP_DUP, line)
		}
		c.emitStore(tok, t.Name, line)
		c.emitOp(OP_POP, line)

	case *ast.Index:
		c.compileExpression(t.Object)
		c.compileExpression(t.Key)
		if prefix {
			// [o i] -> dup pair, read, bump, store
			c.emitOp(OP_DUP2, line)
			c.emitOp(OP_GET_INDEX, line)
			c.emitOp(OP_CONST_BYTE, line)
			c.emitByte(1, line)
			c.emitOp(arith, line)
			c.emitOp(OP_SET_INDEX, line)
			return
		}
		// [o i] -> read old, bury it, read again, bump, store, drop new
		c.emitOp(OP_DUP2, line)
		c.emitOp(OP_GET_INDEX, line)
		c.emitOp(OP_BURY3, line)
		c.emitOp(OP_DUP2, line)
		c.emitOp(OP_GET_INDEX, line)
		c.emitOp(OP_CONST_BYTE, line)
		c.emitByte(1, line)
		c.emitOp(arith, line)
		c.emitOp(OP_SET_INDEX, line)
		c.emitOp(OP_POP, line)

	case *ast.GetProperty:
		nameIdx := c.chunk.AddIdentifier(t.Name)
		c.compileExpression(t.Object)
		if prefix {
			c.emitOp(OP_DUP, line)
			c.emitConstIdx(OP_GET_PROPERTY, nameIdx, line, tok)
			c.emitOp(OP_CONST_BYTE, line)
			c.emitByte(1, line)
			c.emitOp(arith, line)
			c.emitConstIdx(OP_SET_PROPERTY, nameIdx, line, tok)
			return
		}
		// [o] -> old under object, re-read, bump, store, drop new
		c.emitOp(OP_DUP, line)
		c.emitConstIdx(OP_GET_PROPERTY, nameIdx, line, tok)
		c.emitOp(OP_SWAP, line)
		c.emitOp(OP_DUP, line)
		c.emitConstIdx(OP_GET_PROPERTY, nameIdx, line, tok)
		c.emitOp(OP_CONST_BYTE, line)
		c.emitByte(1, line)
		c.emitOp(arith, line)
		c.emitConstIdx(OP_SET_PROPERTY, nameIdx, line, tok)
		c.emitOp(OP_POP, line)

	default:
		c.errorAt(tok, "invalid operand for %s", op)
	}
}

func (c *Compiler) compileOptionalChain(e *ast.OptionalChain) {
	line := e.Token.Line

	c.compileExpression(e.Object)
	skip := c.emitJump(OP_OPTIONAL_CHAIN, line)

	switch {
	case e.IsCall:
		for _, arg := range e.Args {
			c.compileExpression(arg)
		}
		c.emitConstIdx(OP_CALL_METHOD, c.chunk.AddIdentifier(e.Property), line, e.Token)
		c.emitByte(byte(len(e.Args)), line)
	case e.IsProperty:
		c.emitConstIdx(OP_GET_PROPERTY, c.chunk.AddIdentifier(e.Property), line, e.Token)
	default:
		c.compileExpression(e.Index)
		c.emitOp(OP_GET_INDEX, line)
	}

	c.patchJump(skip, e.Token)
}

// compileInterpolation pushes alternating literal and expression parts,
// then concatenates with print-style coercion.
func (c *Compiler) compileInterpolation(e *ast.StringInterpolation) {
	line := e.Token.Line
	total := 0
	for i, part := range e.StringParts {
		c.emitConstIdx(OP_CONST, c.chunk.AddString(part), line, e.Token)
		total++
		if i < len(e.ExprParts) {
			c.compileExpression(e.ExprParts[i])
			total++
		}
	}
	c.emitOp(OP_STRING_INTERP, line)
	c.emitShort(total, line)
}

// compileFunction compiles a function literal into a child chunk and
// emits CLOSURE with the child's upvalue descriptors.
func (c *Compiler) compileFunction(e *ast.Function) {
	line := e.Token.Line

	name := e.Name
	if name == "" {
		name = "<anonymous>"
	}
	sub := newFunctionCompiler(c, name)
	sub.chunk.IsAsync = e.IsAsync

	for _, prm := range e.Params {
		tid := TypeID(0)
		if prm.Type != nil {
			tid = LookupTypeID(prm.Type.Name)
		}
		slot := sub.declareLocal(e.Token, prm.Name, false, tid)
		sub.markInitialized(slot)
		if prm.IsRest {
			sub.chunk.HasRest = true
		} else {
			sub.chunk.Arity++
			if prm.Default != nil {
				sub.chunk.OptionalCount++
			}
		}
	}

	// Optional-parameter defaults: slot ?? default.
	for i, prm := range e.Params {
		if prm.Default == nil {
			continue
		}
		slot := i + 1
		sub.emitOp(OP_GET_LOCAL, line)
		sub.emitByte(byte(slot), line)
		skip := sub.emitJump(OP_COALESCE, line)
		sub.emitOp(OP_POP, line)
		sub.compileExpression(prm.Default)
		sub.emitOp(OP_SET_LOCAL, line)
		sub.emitByte(byte(slot), line)
		sub.patchJump(skip, e.Token)
		sub.emitOp(OP_POP, line)
	}

	// The function scope IS the body scope: no extra begin/end.
	sub.compileStatements(e.Body)
	sub.emitOp(OP_NULL, line)
	sub.emitOp(OP_RETURN, line)
	sub.chunk.LocalCount = sub.maxLocals

	c.emitClosure(sub, line, e.Token)
}

// emitClosure adds sub's chunk to the constant pool and emits the
// CLOSURE instruction with its upvalue descriptor pairs.
func (c *Compiler) emitClosure(sub *Compiler, line int, tok token.Token) {
	idx := c.chunk.AddFunction(sub.chunk)
	c.emitConstIdx(OP_CLOSURE, idx, line, tok)
	c.emitByte(byte(len(sub.chunk.Upvalues)), line)
	for _, uv := range sub.chunk.Upvalues {
		if uv.IsLocal {
			c.emitByte(1, line)
		} else {
			c.emitByte(0, line)
		}
		c.emitByte(uv.Index, line)
	}
}
