package vm

import (
	"github.com/hemlang/hemlock/internal/ast"
)

// compileStatements lowers a statement list, resynchronising panic mode at
// each statement boundary.
func (c *Compiler) compileStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		c.compileStatement(stmt)
		c.root.panicMode = false
	}
}

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Let:
		c.compileLet(s)
	case *ast.ExprStatement:
		c.compileExpression(s.Expr)
		c.emitOp(OP_POP, s.Token.Line)
	case *ast.If:
		c.compileIf(s)
	case *ast.While:
		c.compileWhile(s)
	case *ast.For:
		c.compileFor(s)
	case *ast.ForIn:
		c.compileForIn(s)
	case *ast.Block:
		c.beginScope()
		c.compileStatements(s.Statements)
		c.endScope(s.Token.Line)
	case *ast.Return:
		c.compileReturn(s)
	case *ast.Break:
		c.emitBreak(s.Token, s.Token.Line)
	case *ast.Continue:
		c.emitContinue(s.Token, s.Token.Line)
	case *ast.Switch:
		c.compileSwitch(s)
	case *ast.Try:
		c.compileTry(s)
	case *ast.Throw:
		c.compileExpression(s.Value)
		c.emitOp(OP_THROW, s.Token.Line)
	case *ast.Defer:
		c.compileDefer(s)
	case *ast.Enum:
		c.compileEnum(s)
	default:
		c.errorAt(stmt.Pos(), "cannot compile statement %T", stmt)
	}
}

func (c *Compiler) compileLet(s *ast.Let) {
	line := s.Token.Line

	// A named function declared in function scope binds its slot before
	// the body compiles, so the body can call it recursively.
	if fn, ok := s.Value.(*ast.Function); ok && c.depth > 0 && s.Type == nil {
		slot := c.declareLocal(s.Token, s.Name, s.IsConst, 0)
		c.markInitialized(slot)
		c.compileExpression(fn)
		return
	}

	if s.Value != nil {
		c.compileExpression(s.Value)
	} else {
		c.emitOp(OP_NULL, line)
	}

	typeID := TypeID(0)
	hasType := false
	if s.Type != nil {
		typeID = LookupTypeID(s.Type.Name)
		hasType = true
		c.emitOp(OP_CAST, line)
		c.emitByte(byte(typeID), line)
		if typeID == TypeIDObject {
			idx := c.chunk.AddIdentifier(s.Type.Name)
			c.emitConstIdx(OP_SET_OBJ_TYPE, idx, line, s.Token)
		}
	}

	// Declarations are locals of the enclosing function frame; the root
	// chunk is an implicit function, so top-level bindings live in its
	// frame too (and close over into spawned tasks as upvalues).
	tid := TypeID(0)
	if hasType {
		tid = typeID
	}
	slot := c.declareLocal(s.Token, s.Name, s.IsConst, tid)
	c.markInitialized(slot)
	// The initializer value stays on the stack as the local's slot.
}

func (c *Compiler) compileIf(s *ast.If) {
	line := s.Token.Line

	c.compileExpression(s.Cond)
	elseJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emitOp(OP_POP, line)

	c.beginScope()
	c.compileStatements(s.Then)
	c.endScope(line)

	endJump := c.emitJump(OP_JUMP, line)
	c.patchJump(elseJump, s.Token)
	c.emitOp(OP_POP, line)

	if s.Else != nil {
		c.beginScope()
		c.compileStatements(s.Else)
		c.endScope(line)
	}
	c.patchJump(endJump, s.Token)
}

func (c *Compiler) compileWhile(s *ast.While) {
	line := s.Token.Line

	loopStart := c.chunk.Len()
	ctx := c.beginLoop(false)
	ctx.continueTarget = loopStart

	c.compileExpression(s.Cond)
	exitJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emitOp(OP_POP, line)

	c.beginScope()
	c.compileStatements(s.Body)
	c.endScope(line)

	c.emitLoop(loopStart, line, s.Token)
	c.patchJump(exitJump, s.Token)
	c.emitOp(OP_POP, line)

	c.endLoop(s.Token)
}

func (c *Compiler) compileFor(s *ast.For) {
	line := s.Token.Line

	c.beginScope()
	if s.Init != nil {
		c.compileStatement(s.Init)
	}

	loopStart := c.chunk.Len()
	c.beginLoop(false)

	if s.Cond != nil {
		c.compileExpression(s.Cond)
	} else {
		c.emitOp(OP_TRUE, line)
	}
	exitJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emitOp(OP_POP, line)

	c.beginScope()
	c.compileStatements(s.Body)
	c.endScope(line)

	c.setContinueTarget()
	if s.Inc != nil {
		c.compileExpression(s.Inc)
		c.emitOp(OP_POP, line)
	}
	c.emitLoop(loopStart, line, s.Token)

	c.patchJump(exitJump, s.Token)
	c.emitOp(OP_POP, line)

	c.endLoop(s.Token)
	c.endScope(line)
}

func (c *Compiler) compileForIn(s *ast.ForIn) {
	line := s.Token.Line

	c.beginScope()

	// Hidden loop state: the iterable and a running index.
	c.compileExpression(s.Iterable)
	iterSlot := c.declareLocal(s.Token, "(iter)", false, 0)
	c.markInitialized(iterSlot)

	c.emitOp(OP_CONST_BYTE, line)
	c.emitByte(0, line)
	idxSlot := c.declareLocal(s.Token, "(index)", false, 0)
	c.markInitialized(idxSlot)

	keySlot := -1
	if s.KeyVar != "" {
		c.emitOp(OP_NULL, line)
		keySlot = c.declareLocal(s.Token, s.KeyVar, false, 0)
		c.markInitialized(keySlot)
	}
	c.emitOp(OP_NULL, line)
	valSlot := c.declareLocal(s.Token, s.ValueVar, false, 0)
	c.markInitialized(valSlot)

	loopStart := c.chunk.Len()
	c.beginLoop(false)

	// index < iterable.length
	c.emitOp(OP_GET_LOCAL, line)
	c.emitByte(byte(idxSlot), line)
	c.emitOp(OP_GET_LOCAL, line)
	c.emitByte(byte(iterSlot), line)
	idx := c.chunk.AddIdentifier("length")
	c.emitConstIdx(OP_GET_PROPERTY, idx, line, s.Token)
	c.emitOp(OP_LT_I32, line)
	exitJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emitOp(OP_POP, line)

	if keySlot >= 0 {
		c.emitOp(OP_GET_LOCAL, line)
		c.emitByte(byte(iterSlot), line)
		c.emitOp(OP_GET_LOCAL, line)
		c.emitByte(byte(idxSlot), line)
		c.emitOp(OP_GET_KEY, line)
		c.emitOp(OP_SET_LOCAL, line)
		c.emitByte(byte(keySlot), line)
		c.emitOp(OP_POP, line)
	}

	c.emitOp(OP_GET_LOCAL, line)
	c.emitByte(byte(iterSlot), line)
	c.emitOp(OP_GET_LOCAL, line)
	c.emitByte(byte(idxSlot), line)
	c.emitOp(OP_GET_INDEX, line)
	c.emitOp(OP_SET_LOCAL, line)
	c.emitByte(byte(valSlot), line)
	c.emitOp(OP_POP, line)

	c.beginScope()
	c.compileStatements(s.Body)
	c.endScope(line)

	c.setContinueTarget()
	c.emitOp(OP_GET_LOCAL, line)
	c.emitByte(byte(idxSlot), line)
	c.emitOp(OP_CONST_BYTE, line)
	c.emitByte(1, line)
	c.emitOp(OP_ADD_I32, line)
	c.emitOp(OP_SET_LOCAL, line)
	c.emitByte(byte(idxSlot), line)
	c.emitOp(OP_POP, line)
	c.emitLoop(loopStart, line, s.Token)

	c.patchJump(exitJump, s.Token)
	c.emitOp(OP_POP, line)

	c.endLoop(s.Token)
	c.endScope(line)
}

func (c *Compiler) compileReturn(s *ast.Return) {
	line := s.Token.Line
	if s.Value != nil {
		c.compileExpression(s.Value)
	} else {
		c.emitOp(OP_NULL, line)
	}
	c.emitOp(OP_RETURN, line)
}

// compileSwitch lowers switch with C-style fallthrough: case bodies are
// laid out in source order with no automatic trailing jump; break exits
// through the pseudo-loop's patch list.
func (c *Compiler) compileSwitch(s *ast.Switch) {
	line := s.Token.Line

	c.beginScope()
	c.compileExpression(s.Scrutinee)
	scrutSlot := c.declareLocal(s.Token, "(switch)", false, 0)
	c.markInitialized(scrutSlot)

	c.beginLoop(true)

	// Dispatch section: one comparison per non-default case.
	bodyJumps := make([]int, len(s.CaseValues))
	defaultIdx := -1
	for i, val := range s.CaseValues {
		if val == nil {
			defaultIdx = i
			bodyJumps[i] = -1
			continue
		}
		c.emitOp(OP_GET_LOCAL, line)
		c.emitByte(byte(scrutSlot), line)
		c.compileExpression(val)
		c.emitOp(OP_EQ, line)
		skip := c.emitJump(OP_JUMP_IF_FALSE, line)
		c.emitOp(OP_POP, line)
		bodyJumps[i] = c.emitJump(OP_JUMP, line)
		c.patchJump(skip, s.Token)
		c.emitOp(OP_POP, line)
	}

	// No case matched: go to the default body, or past everything.
	defaultJump := c.emitJump(OP_JUMP, line)

	for i, body := range s.CaseBodies {
		target := c.chunk.Len()
		if i == defaultIdx {
			if err := c.chunk.PatchJumpTo(defaultJump, target); err != nil {
				c.errorAt(s.Token, "%s", err)
			}
		} else if err := c.chunk.PatchJumpTo(bodyJumps[i], target); err != nil {
			c.errorAt(s.Token, "%s", err)
		}
		c.compileStatements(body)
	}
	if defaultIdx == -1 {
		c.patchJump(defaultJump, s.Token)
	}

	c.endLoop(s.Token)
	c.endScope(line)
}

func (c *Compiler) compileTry(s *ast.Try) {
	line := s.Token.Line

	c.emitOp(OP_TRY, line)
	catchSite := c.chunk.Len()
	c.emitShort(0xffff, line)
	finallySite := c.chunk.Len()
	c.emitShort(0xffff, line)

	c.beginScope()
	c.compileStatements(s.TryBlock)
	c.endScope(line)
	toFinally := c.emitJump(OP_JUMP, line)

	// Catch section. The unwinder leaves the exception value on the stack.
	if err := c.chunk.PatchJumpTo(catchSite, c.chunk.Len()); err != nil {
		c.errorAt(s.Token, "%s", err)
	}
	c.emitOp(OP_CATCH, line)
	if s.HasCatch {
		if s.CatchParam != "" {
			c.beginScope()
			slot := c.declareLocal(s.Token, s.CatchParam, false, 0)
			c.markInitialized(slot)
			c.compileStatements(s.CatchBlock)
			c.endScope(line)
		} else {
			c.emitOp(OP_POP, line)
			c.beginScope()
			c.compileStatements(s.CatchBlock)
			c.endScope(line)
		}
	} else {
		// try/finally without catch: run the finally body on the
		// exception path, then rethrow.
		c.beginScope()
		c.compileStatements(s.FinallyBlock)
		c.endScope(line)
		c.emitOp(OP_THROW, line)
	}

	c.patchJump(toFinally, s.Token)
	if err := c.chunk.PatchJumpTo(finallySite, c.chunk.Len()); err != nil {
		c.errorAt(s.Token, "%s", err)
	}
	c.emitOp(OP_FINALLY, line)
	if s.FinallyBlock != nil {
		c.beginScope()
		c.compileStatements(s.FinallyBlock)
		c.endScope(line)
	}
	c.emitOp(OP_END_TRY, line)
}

// compileDefer wraps the deferred call in a synthetic zero-arity closure
// recorded on the VM's defer stack for the current frame.
func (c *Compiler) compileDefer(s *ast.Defer) {
	line := s.Token.Line

	sub := newFunctionCompiler(c, "<defer>")
	sub.compileExpression(s.Call)
	sub.emitOp(OP_POP, line)
	sub.emitOp(OP_NULL, line)
	sub.emitOp(OP_RETURN, line)
	sub.chunk.LocalCount = sub.maxLocals

	c.emitClosure(sub, line, s.Token)
	c.emitOp(OP_DEFER, line)
}

// compileEnum lowers an enum to an object literal with auto-incrementing
// integer values, tagged with the enum's name and bound as a constant.
func (c *Compiler) compileEnum(s *ast.Enum) {
	line := s.Token.Line

	next := int64(0)
	for _, variant := range s.Variants {
		idx := c.chunk.AddString(variant.Name)
		c.emitConstIdx(OP_CONST, idx, line, s.Token)
		if variant.Value != nil {
			num, ok := variant.Value.(*ast.NumberLiteral)
			if !ok || num.IsFloat {
				c.errorAt(s.Token, "enum value for %q must be an integer literal", variant.Name)
				continue
			}
			next = num.Int
		}
		c.emitInt(next, line, s.Token)
		next++
	}
	c.emitOp(OP_OBJECT, line)
	c.emitShort(len(s.Variants), line)

	nameIdx := c.chunk.AddIdentifier(s.Name)
	c.emitConstIdx(OP_SET_OBJ_TYPE, nameIdx, line, s.Token)

	// Top-level enums bind globally; enums inside functions stay local.
	if c.kind == kindScript && c.depth == 1 {
		c.emitConstIdx(OP_DEFINE_GLOBAL, nameIdx, line, s.Token)
		c.emitByte(1, line)
		c.root.globalNames[s.Name] = true
		c.root.constNames[s.Name] = true
		return
	}
	slot := c.declareLocal(s.Token, s.Name, true, 0)
	c.markInitialized(slot)
}
