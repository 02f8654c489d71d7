package vm

import (
	"fmt"

	"github.com/hemlang/hemlock/internal/ast"
	"github.com/hemlang/hemlock/internal/token"
)

// Local represents a local variable during compilation. The slot index is
// the local's position in the locals list; slot 0 of every function frame
// is reserved for the closure value.
type Local struct {
	Name        string
	Depth       int
	IsConst     bool
	TypeID      TypeID
	Initialized bool
	IsCaptured  bool
}

// loopContext tracks one loop (or switch pseudo-loop) for break/continue
// patching.
type loopContext struct {
	breakJumps     []int
	continueJumps  []int
	continueTarget int // -1 = unset
	localCount     int // locals live when the loop began
	isSwitch       bool
}

type funcKind int

const (
	kindScript funcKind = iota
	kindFunction
)

// Compiler lowers one function body to bytecode. Nested functions get
// their own Compiler linked through enclosing for upvalue resolution.
type Compiler struct {
	chunk     *Chunk
	kind      funcKind
	enclosing *Compiler

	locals    []Local
	maxLocals int
	depth     int

	loops []loopContext

	// root-compiler state
	root        *Compiler
	globalNames map[string]bool
	constNames  map[string]bool

	errors    []string
	hadError  bool
	panicMode bool
}

// NewCompiler creates a compiler for top-level code. The root chunk is an
// implicit function, so top-level declarations are locals of its frame
// (and capturable as upvalues by nested closures); only enums become
// globals.
func NewCompiler() *Compiler {
	c := &Compiler{
		chunk:       NewChunk("<script>"),
		kind:        kindScript,
		depth:       1,
		globalNames: make(map[string]bool),
		constNames:  make(map[string]bool),
	}
	c.root = c
	// Slot 0 holds the running closure.
	c.locals = append(c.locals, Local{Name: "", Depth: 0, Initialized: true})
	c.maxLocals = 1
	return c
}

func newFunctionCompiler(enclosing *Compiler, name string) *Compiler {
	c := &Compiler{
		chunk:     NewChunk(name),
		kind:      kindFunction,
		enclosing: enclosing,
		depth:     1,
		root:      enclosing.root,
	}
	c.locals = append(c.locals, Local{Name: "", Depth: 0, Initialized: true})
	c.maxLocals = 1
	return c
}

// CompileProgram lowers a whole program. It returns nil and the collected
// errors when any statement failed to compile.
func CompileProgram(program *ast.Program) (*Chunk, []string) {
	c := NewCompiler()

	for i, stmt := range program.Statements {
		keepValue := false
		if i == len(program.Statements)-1 {
			_, keepValue = stmt.(*ast.ExprStatement)
		}
		if keepValue {
			es := stmt.(*ast.ExprStatement)
			c.compileExpression(es.Expr)
		} else {
			c.compileStatement(stmt)
		}
		if c.panicMode {
			c.panicMode = false
		}
	}

	last := 0
	if n := len(program.Statements); n > 0 {
		last = program.Statements[n-1].Pos().Line
	}
	if len(program.Statements) == 0 {
		c.emitOp(OP_NULL, last)
	} else if _, ok := program.Statements[len(program.Statements)-1].(*ast.ExprStatement); !ok {
		c.emitOp(OP_NULL, last)
	}
	c.emitOp(OP_RETURN, last)

	if c.hadError {
		return nil, c.errors
	}
	c.chunk.LocalCount = c.maxLocals
	return c.chunk, nil
}

// Errors returns the collected compile errors.
func (c *Compiler) Errors() []string { return c.root.errors }

func (c *Compiler) errorAt(tok token.Token, format string, args ...interface{}) {
	r := c.root
	r.hadError = true
	c.hadError = true
	if r.panicMode {
		return
	}
	r.panicMode = true
	r.errors = append(r.errors,
		fmt.Sprintf("%d:%d: %s", tok.Line, tok.Column, fmt.Sprintf(format, args...)))
}

// ---- emit helpers ----

func (c *Compiler) emitOp(op Opcode, line int) {
	c.chunk.WriteOp(op, line)
}

func (c *Compiler) emitByte(b byte, line int) {
	c.chunk.WriteByte(b, line)
}

func (c *Compiler) emitShort(v int, line int) {
	c.chunk.WriteShort(uint16(v), line)
}

func (c *Compiler) emitJump(op Opcode, line int) int {
	return c.chunk.WriteJump(op, line)
}

func (c *Compiler) patchJump(site int, tok token.Token) {
	if err := c.chunk.PatchJump(site); err != nil {
		c.errorAt(tok, "%s", err)
	}
}

func (c *Compiler) emitLoop(loopStart, line int, tok token.Token) {
	c.emitOp(OP_LOOP, line)
	offset := c.chunk.Len() - loopStart + 2
	if offset > 0xffff {
		c.errorAt(tok, "loop body too large")
		offset = 0
	}
	c.emitShort(offset, line)
}

// emitConstIdx emits op with a u16 constant-pool operand, guarding the
// pool size.
func (c *Compiler) emitConstIdx(op Opcode, idx, line int, tok token.Token) {
	if idx > 0xffff {
		c.errorAt(tok, "too many constants in one chunk")
		idx = 0
	}
	c.emitOp(op, line)
	c.emitShort(idx, line)
}

// emitInt applies the numeric-constant policy: 0..255 inline, i32-sized
// through CONST_I32-style pool entries, larger as i64.
func (c *Compiler) emitInt(v int64, line int, tok token.Token) {
	if v >= 0 && v <= 255 {
		c.emitOp(OP_CONST_BYTE, line)
		c.emitByte(byte(v), line)
		return
	}
	c.emitConstIdx(OP_CONST, c.chunk.AddIntConstant(v), line, tok)
}

func (c *Compiler) emitFloat(v float64, line int, tok token.Token) {
	c.emitConstIdx(OP_CONST, c.chunk.AddConstant(F64Val(v)), line, tok)
}

// ---- scope & locals ----

func (c *Compiler) beginScope() {
	c.depth++
}

func (c *Compiler) endScope(line int) {
	c.depth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].Depth > c.depth {
		if c.locals[len(c.locals)-1].IsCaptured {
			c.emitOp(OP_CLOSE_UPVALUE, line)
		} else {
			c.emitOp(OP_POP, line)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// declareLocal appends a local in the current scope and returns its slot.
func (c *Compiler) declareLocal(tok token.Token, name string, isConst bool, typeID TypeID) int {
	if len(c.locals) >= 256 {
		c.errorAt(tok, "too many local variables in function")
		return 0
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.Depth < c.depth {
			break
		}
		if l.Name == name && name != "" {
			c.errorAt(tok, "variable %q already declared in this scope", name)
			return i
		}
	}
	c.locals = append(c.locals, Local{
		Name: name, Depth: c.depth, IsConst: isConst, TypeID: typeID,
	})
	if len(c.locals) > c.maxLocals {
		c.maxLocals = len(c.locals)
	}
	return len(c.locals) - 1
}

func (c *Compiler) markInitialized(slot int) {
	c.locals[slot].Initialized = true
}

// resolveLocal finds a local by name; the bool reports const-ness.
func (c *Compiler) resolveLocal(tok token.Token, name string) (int, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == name {
			if !c.locals[i].Initialized {
				c.errorAt(tok, "cannot read %q in its own initializer", name)
			}
			return i, c.locals[i].IsConst
		}
	}
	return -1, false
}

// resolveUpvalue walks enclosing compilers, threading upvalue descriptors
// through every intermediate chunk.
func (c *Compiler) resolveUpvalue(tok token.Token, name string) int {
	if c.enclosing == nil {
		return -1
	}
	if slot, _ := c.enclosing.resolveLocal(tok, name); slot != -1 {
		c.enclosing.locals[slot].IsCaptured = true
		return c.addUpvalue(tok, uint8(slot), true)
	}
	if up := c.enclosing.resolveUpvalue(tok, name); up != -1 {
		return c.addUpvalue(tok, uint8(up), false)
	}
	return -1
}

func (c *Compiler) addUpvalue(tok token.Token, index uint8, isLocal bool) int {
	for i, uv := range c.chunk.Upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	if len(c.chunk.Upvalues) >= 256 {
		c.errorAt(tok, "too many captured variables in function")
		return 0
	}
	c.chunk.Upvalues = append(c.chunk.Upvalues, UpvalueDesc{IsLocal: isLocal, Index: index})
	return len(c.chunk.Upvalues) - 1
}

// ---- loop machinery ----

func (c *Compiler) beginLoop(isSwitch bool) *loopContext {
	c.loops = append(c.loops, loopContext{
		continueTarget: -1,
		localCount:     len(c.locals),
		isSwitch:       isSwitch,
	})
	return &c.loops[len(c.loops)-1]
}

func (c *Compiler) currentLoop() *loopContext {
	if len(c.loops) == 0 {
		return nil
	}
	return &c.loops[len(c.loops)-1]
}

// innermostRealLoop skips switch pseudo-loops for continue.
func (c *Compiler) innermostRealLoop() *loopContext {
	for i := len(c.loops) - 1; i >= 0; i-- {
		if !c.loops[i].isSwitch {
			return &c.loops[i]
		}
	}
	return nil
}

// emitScopeUnwind pops (or closes) locals above keep without changing the
// compiler's view, for break/continue jumping out of inner scopes.
func (c *Compiler) emitScopeUnwind(keep, line int) {
	for i := len(c.locals) - 1; i >= keep; i-- {
		if c.locals[i].IsCaptured {
			c.emitOp(OP_CLOSE_UPVALUE, line)
		} else {
			c.emitOp(OP_POP, line)
		}
	}
}

func (c *Compiler) emitBreak(tok token.Token, line int) {
	ctx := c.currentLoop()
	if ctx == nil {
		c.errorAt(tok, "break outside of loop or switch")
		return
	}
	c.emitScopeUnwind(ctx.localCount, line)
	ctx.breakJumps = append(ctx.breakJumps, c.emitJump(OP_JUMP, line))
}

func (c *Compiler) emitContinue(tok token.Token, line int) {
	ctx := c.innermostRealLoop()
	if ctx == nil {
		c.errorAt(tok, "continue outside of loop")
		return
	}
	c.emitScopeUnwind(ctx.localCount, line)
	if ctx.continueTarget >= 0 {
		c.emitLoop(ctx.continueTarget, line, tok)
		return
	}
	ctx.continueJumps = append(ctx.continueJumps, c.emitJump(OP_JUMP, line))
}

func (c *Compiler) setContinueTarget() {
	if ctx := c.currentLoop(); ctx != nil {
		ctx.continueTarget = c.chunk.Len()
	}
}

// endLoop patches pending breaks to the current offset and continues to
// the recorded continue target (or the current offset when unset).
func (c *Compiler) endLoop(tok token.Token) {
	ctx := c.currentLoop()
	for _, site := range ctx.breakJumps {
		c.patchJump(site, tok)
	}
	for _, site := range ctx.continueJumps {
		if ctx.continueTarget >= 0 {
			if err := c.chunk.PatchJumpTo(site, ctx.continueTarget); err != nil {
				c.errorAt(tok, "%s", err)
			}
		} else {
			c.patchJump(site, tok)
		}
	}
	c.loops = c.loops[:len(c.loops)-1]
}
