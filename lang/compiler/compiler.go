// Package compiler implements the single-pass Pratt compiler: it parses
// source text and emits bytecode directly, with no intermediate AST,
// resolving lexical scopes and upvalues as it goes. See spec.md §4.2.
package compiler

import (
	"go/scanner"

	"github.com/mna/loxvm/lang/chunk"
	sc "github.com/mna/loxvm/lang/scanner"
	"github.com/mna/loxvm/lang/token"
	"github.com/mna/loxvm/lang/value"
)

// Compile parses src (named filename for diagnostics) and returns the
// top-level function on success. On any parse or lex error, it returns nil
// and a non-nil error (a scanner.ErrorList, so callers can print every
// diagnostic via scanner.PrintError); the VM must not be invoked in that
// case, per spec.md §7.
func Compile(h *value.Heap, filename string, src []byte) (*value.Function, error) {
	p := &parser{h: h, filename: filename}
	p.scan.Init(filename, src, p.scanError)

	p.fs = &funcState{kind: funcKindScript, fn: h.NewFunction(nil, 0)}
	p.reserveCalleeSlot()
	p.advance()
	for !p.match(token.EOF) {
		p.declaration()
	}
	p.endCompiler()

	if err := p.errs.Err(); err != nil {
		return nil, err
	}
	return p.fs.fn, nil
}

// funcKind distinguishes the implicit top-level script function from a
// user-declared one, since "return" at the top level and the implicit
// trailing return differ slightly (spec.md §4.2 "Functions").
type funcKind uint8

const (
	funcKindScript funcKind = iota
	funcKindFunction
)

// local is one entry of a funcState's locals stack. depth is -1 while the
// variable's initializer is being compiled, which is what makes `var x = x;`
// resolve x on the right-hand side to an outer scope instead of the new,
// not-yet-initialized slot (spec.md §9, resolved in SPEC_FULL.md §9).
type local struct {
	name  string
	depth int
}

// control tracks one enclosing loop or switch, for break/continue (spec.md
// §4.2 "break/continue"). isLoop is false for a bare switch: continue skips
// past it to the nearest enclosing loop, while break targets the nearest of
// either.
type control struct {
	enclosing   *control
	isLoop      bool
	continuePos int // backward-jump target for 'continue'; meaningless if !isLoop
	localBase   int // len(locals) when the loop/switch body began
	breakJumps  []int
}

// funcState holds per-nested-function compiler state (spec.md §3 "Compiler
// state"). Nesting funcStates by enclosing pointer is what lets
// resolveUpvalue walk outward through lexically enclosing functions.
type funcState struct {
	enclosing *funcState
	fn        *value.Function
	kind      funcKind

	locals     []local
	scopeDepth int
	ctrl       *control
}

type tokPair struct {
	tok token.Token
	val token.Value
}

// parser drives the scanner and funcState chain, fusing resolution and
// bytecode emission into one pass. pending is a small lookahead buffer used
// only to disambiguate `(expr)` grouping from `(params) -> expr` arrow
// functions, both of which start with an indistinguishable '('.
type parser struct {
	h        *value.Heap
	filename string
	scan     sc.Scanner

	prev, cur       token.Token
	prevVal, curVal token.Value
	pending         []tokPair

	errs      scanner.ErrorList
	panicMode bool

	fs *funcState
}

func (p *parser) scanError(pos token.Position, msg string) {
	p.errorAtPosition(pos, msg)
}

func (p *parser) errorAtPosition(pos token.Position, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.errs.Add(pos, msg)
}

func (p *parser) errorAt(tv token.Value, msg string) {
	p.errorAtPosition(token.ToPosition(p.filename, tv.Pos), msg)
}

func (p *parser) errorAtCurrent(msg string) { p.errorAt(p.curVal, msg) }
func (p *parser) error(msg string)          { p.errorAt(p.prevVal, msg) }

// advance consumes the pushback queue before reaching into the scanner, so
// that tentative lookahead (tryArrowParams) can push tokens back as if they
// were never consumed.
func (p *parser) advance() {
	p.prev, p.prevVal = p.cur, p.curVal
	if len(p.pending) > 0 {
		tp := p.pending[0]
		p.pending = p.pending[1:]
		p.cur, p.curVal = tp.tok, tp.val
		return
	}
	for {
		var tv token.Value
		tok := p.scan.Scan(&tv)
		if tok != token.ILLEGAL {
			p.cur, p.curVal = tok, tv
			return
		}
		// the scanner already reported this via scanError; skip it.
	}
}

// pushback restores tokens consumed during a failed tentative lookahead
// (most recent first in consumed order, i.e. buf is in consumption order),
// followed by the current lookahead token, so parsing resumes exactly where
// it would have if the lookahead had never run.
func (p *parser) pushback(buf []tokPair) {
	restored := make([]tokPair, 0, len(buf)+1+len(p.pending))
	restored = append(restored, buf...)
	restored = append(restored, tokPair{p.cur, p.curVal})
	restored = append(restored, p.pending...)
	p.pending = restored
	p.cur, p.curVal = p.pending[0].tok, p.pending[0].val
	p.pending = p.pending[1:]
}

func (p *parser) check(tok token.Token) bool { return p.cur == tok }

func (p *parser) match(tok token.Token) bool {
	if !p.check(tok) {
		return false
	}
	p.advance()
	return true
}

func (p *parser) consume(tok token.Token, msg string) {
	if p.check(tok) {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

// synchronize discards tokens after a parse error until a statement
// boundary, so a single mistake does not cascade into spurious follow-on
// errors (spec.md §4.2 "Error recovery").
func (p *parser) synchronize() {
	p.panicMode = false
	for p.cur != token.EOF {
		if p.prev == token.SEMI {
			return
		}
		switch p.cur {
		case token.CLASS, token.FUN, token.VAR, token.FOR, token.IF, token.WHILE,
			token.DO, token.SWITCH, token.RETURN, token.BREAK, token.CONTINUE:
			return
		}
		p.advance()
	}
}

func (p *parser) currentChunk() *value.Chunk { return &p.fs.fn.Chunk }

func (p *parser) line() int {
	line, _ := p.prevVal.Pos.LineCol()
	return line
}

func (p *parser) emitOp(op chunk.Opcode)              { chunk.WriteOp(p.currentChunk(), op, p.line()) }
func (p *parser) emitOp8(op chunk.Opcode, arg uint8)  { chunk.WriteOp8(p.currentChunk(), op, arg, p.line()) }
func (p *parser) emitJump(op chunk.Opcode) int        { return chunk.WriteJump(p.currentChunk(), op, p.line()) }
func (p *parser) patchJump(offset int)                { chunk.PatchJump(p.currentChunk(), offset) }
func (p *parser) emitLoop(loopStart int)              { chunk.EmitLoop(p.currentChunk(), loopStart, p.line()) }
func (p *parser) emitBackwardJump(op chunk.Opcode, target int) {
	chunk.EmitBackwardJump(p.currentChunk(), op, target, p.line())
}

// emitPopLocals discards n locals at the top of the stack, using POPN in
// 255-sized batches since its operand is one byte (spec.md §4.3 "POPN").
func (p *parser) emitPopLocals(n int) {
	for n > 0 {
		batch := n
		if batch > 255 {
			batch = 255
		}
		if batch == 1 {
			p.emitOp(chunk.POP)
		} else {
			p.emitOp8(chunk.POPN, uint8(batch))
		}
		n -= batch
	}
}

func (p *parser) endCompiler() {
	p.emitOp(chunk.PUSH_NIL)
	p.emitOp(chunk.RET)
}

// makeConstant appends v to the current chunk's constant pool, enforcing
// the 256-constant cap spec.md §9 says a robust implementation should check.
func (p *parser) makeConstant(v value.Value) uint8 {
	idx := p.currentChunk().AddConstant(v)
	if idx > 255 {
		p.error("too many constants in one chunk")
		return 0
	}
	return uint8(idx)
}

func (p *parser) emitConstant(v value.Value) { p.emitOp8(chunk.PUSH_CONST, p.makeConstant(v)) }

func (p *parser) identifierConstant(name string) uint8 {
	return p.makeConstant(value.FromObj(p.h.InternString(name)))
}

func (p *parser) beginScope() { p.fs.scopeDepth++ }

func (p *parser) endScope() {
	p.fs.scopeDepth--
	n := 0
	for len(p.fs.locals) > 0 && p.fs.locals[len(p.fs.locals)-1].depth > p.fs.scopeDepth {
		p.fs.locals = p.fs.locals[:len(p.fs.locals)-1]
		n++
	}
	p.emitPopLocals(n)
}

// reserveCalleeSlot reserves local slot 0 for the callee itself, so that
// local slot numbers line up with stack offsets counted from the call
// frame's fp (spec.md §4.2 "Compiler state": "locals[0] is a reserved slot
// for the callee itself"). The empty name can never be typed by a program,
// so it is never resolved by resolveLocal.
func (p *parser) reserveCalleeSlot() {
	p.fs.locals = append(p.fs.locals, local{name: "", depth: 0})
}

func (p *parser) addLocal(name string) {
	if len(p.fs.locals) >= 256 {
		p.error("too many local variables in function")
		return
	}
	p.fs.locals = append(p.fs.locals, local{name: name, depth: -1})
}

// declareLocal records name as a new local in the current scope, rejecting
// a redeclaration of the same name within the same scope.
func (p *parser) declareLocal(name string) {
	if p.fs.scopeDepth == 0 {
		return
	}
	for i := len(p.fs.locals) - 1; i >= 0; i-- {
		l := p.fs.locals[i]
		if l.depth != -1 && l.depth < p.fs.scopeDepth {
			break
		}
		if l.name == name {
			p.error("already a variable with this name in this scope")
		}
	}
	p.addLocal(name)
}

// markInitialized makes the most recently declared local visible to name
// resolution. Called immediately for function parameters and for a
// function/fun declaration's own name (so it can see itself for recursion),
// and only after the initializer expression is compiled for a plain `var`.
func (p *parser) markInitialized() {
	if p.fs.scopeDepth == 0 {
		return
	}
	p.fs.locals[len(p.fs.locals)-1].depth = p.fs.scopeDepth
}

// declareVariable records name as either a global (returning its constant
// pool index) or a local (returning 0, unused by the caller).
func (p *parser) declareVariable(name string) uint8 {
	if p.fs.scopeDepth > 0 {
		p.declareLocal(name)
		return 0
	}
	return p.identifierConstant(name)
}

func (p *parser) defineVariable(globalIdx uint8) {
	if p.fs.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOp8(chunk.DEF_GLOBAL, globalIdx)
}

// resolveLocal looks up name in fs's own locals, top (innermost) down. A
// slot with depth == -1 (its initializer is still being compiled) is
// treated as not found, so the search continues outward.
func resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name && fs.locals[i].depth != -1 {
			return i, true
		}
	}
	return 0, false
}

func addUpvalue(fs *funcState, index uint8, isLocal bool) uint8 {
	for i, uv := range fs.fn.Upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return uint8(i)
		}
	}
	if len(fs.fn.Upvalues) >= 256 {
		return 0 // caller already raised the error via the parser that owns fs
	}
	fs.fn.Upvalues = append(fs.fn.Upvalues, value.UpvalueDesc{Index: index, IsLocal: isLocal})
	return uint8(len(fs.fn.Upvalues) - 1)
}

// resolveUpvalue recursively walks fs's enclosing chain for name, capturing
// a local it finds along the way and threading an upvalue descriptor
// through every intermediate function, per spec.md §4.2's "Identifier
// lookup order".
func (p *parser) resolveUpvalue(fs *funcState, name string) (uint8, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if slot, ok := resolveLocal(fs.enclosing, name); ok {
		if len(fs.fn.Upvalues) >= 256 {
			p.error("too many closure variables in function")
		}
		return addUpvalue(fs, uint8(slot), true), true
	}
	if idx, ok := p.resolveUpvalue(fs.enclosing, name); ok {
		if len(fs.fn.Upvalues) >= 256 {
			p.error("too many closure variables in function")
		}
		return addUpvalue(fs, idx, false), true
	}
	return 0, false
}
