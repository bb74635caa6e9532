package compiler

import (
	"github.com/mna/loxvm/lang/chunk"
	"github.com/mna/loxvm/lang/token"
	"github.com/mna/loxvm/lang/value"
)

// declaration compiles one top-level-or-block declaration, recovering to
// the next statement boundary if a parse error was raised while compiling
// it (spec.md §4.2 "Error recovery").
func (p *parser) declaration() {
	switch {
	case p.match(token.VAR):
		p.varDeclaration()
	case p.match(token.FUN):
		p.funDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *parser) varDeclaration() {
	p.consume(token.IDENT, "expect variable name")
	name := p.prevVal.Raw
	globalIdx := p.declareVariable(name)

	if p.match(token.EQ) {
		p.expression()
	} else {
		p.emitOp(chunk.PUSH_NIL)
	}
	p.consume(token.SEMI, "expect ';' after variable declaration")
	p.defineVariable(globalIdx)
}

func (p *parser) funDeclaration() {
	p.consume(token.IDENT, "expect function name")
	name := p.prevVal.Raw
	globalIdx := p.declareVariable(name)
	// the function's own local slot is marked initialized before the body
	// compiles, so a recursive self-call inside it resolves as a local
	// (captured as an upvalue by any nested closure) instead of failing.
	p.markInitialized()
	p.function(funcKindFunction, name)
	p.defineVariable(globalIdx)
}

// function compiles a parameter list plus body as a new nested funcState,
// then emits PUSH_CLOSURE with a trailing upvalue descriptor table, per
// spec.md §4.3 "Closure materialization".
func (p *parser) function(kind funcKind, name string) {
	p.consume(token.LPAREN, "expect '(' after function name")
	var params []string
	if !p.check(token.RPAREN) {
		for {
			p.consume(token.IDENT, "expect parameter name")
			params = append(params, p.prevVal.Raw)
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RPAREN, "expect ')' after parameters")
	p.consume(token.LBRACE, "expect '{' before function body")
	p.compileFunctionBody(kind, name, params)
}

// functionArrow compiles an arrow-function body, whose params were already
// consumed by tryArrowParams. An arrow body is either a bare expression
// (implicitly returned) or a braced block, per SPEC_FULL.md's supplement of
// arrow functions beyond the distilled spec.
func (p *parser) functionArrow(params []string) {
	if p.match(token.LBRACE) {
		p.compileFunctionBody(funcKindFunction, "", params)
		return
	}
	p.pushFuncState(funcKindFunction, "", params)
	p.expression()
	p.emitOp(chunk.RET)
	p.popFuncState()
}

func (p *parser) pushFuncState(kind funcKind, name string, params []string) {
	fn := p.h.NewFunction(nil, len(params))
	if name != "" {
		fn.Name = p.h.InternString(name)
	}
	child := &funcState{enclosing: p.fs, kind: kind, fn: fn}
	p.fs = child
	p.reserveCalleeSlot()
	p.beginScope()
	for _, prm := range params {
		p.declareLocal(prm)
		p.markInitialized()
	}
}

// popFuncState closes the current (child) funcState, restores the
// enclosing one as current, and emits the instruction that makes the
// compiled function a runtime value. A function with no upvalues is
// pushed as a plain constant, since it can be called directly with no
// closure allocation; otherwise PUSH_CLOSURE's one-byte operand is the
// constant pool index of the function, immediately followed by one
// (isLocal, index) byte pair per captured upvalue, read directly by the VM
// outside the normal opcode/operand table (spec.md §4.3 "Closure
// materialization").
func (p *parser) popFuncState() *funcState {
	fs := p.fs
	p.fs = fs.enclosing
	idx := p.makeConstant(value.FromObj(fs.fn))
	if len(fs.fn.Upvalues) == 0 {
		p.emitOp8(chunk.PUSH_CONST, idx)
		return fs
	}
	p.emitOp8(chunk.PUSH_CLOSURE, idx)
	line := p.line()
	for _, uv := range fs.fn.Upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		p.currentChunk().WriteByte(isLocal, line)
		p.currentChunk().WriteByte(uv.Index, line)
	}
	return fs
}

func (p *parser) compileFunctionBody(kind funcKind, name string, params []string) {
	p.pushFuncState(kind, name, params)
	for !p.check(token.RBRACE) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RBRACE, "expect '}' after function body")
	p.emitOp(chunk.PUSH_NIL)
	p.emitOp(chunk.RET)
	p.popFuncState()
}

func (p *parser) statement() {
	switch {
	case p.match(token.LBRACE):
		p.beginScope()
		p.block()
		p.endScope()
	case p.match(token.IF):
		p.ifStatement()
	case p.match(token.WHILE):
		p.whileStatement()
	case p.match(token.FOR):
		p.forStatement()
	case p.match(token.DO):
		p.doWhileStatement()
	case p.match(token.SWITCH):
		p.switchStatement()
	case p.match(token.BREAK):
		p.breakStatement()
	case p.match(token.CONTINUE):
		p.continueStatement()
	case p.match(token.RETURN):
		p.returnStatement()
	default:
		p.expressionStatement()
	}
}

func (p *parser) block() {
	for !p.check(token.RBRACE) && !p.check(token.EOF) {
		p.declaration()
	}
	p.consume(token.RBRACE, "expect '}' after block")
}

func (p *parser) expressionStatement() {
	p.expression()
	p.consume(token.SEMI, "expect ';' after expression")
	p.emitOp(chunk.POP)
}

func (p *parser) ifStatement() {
	p.consume(token.LPAREN, "expect '(' after 'if'")
	p.expression()
	p.consume(token.RPAREN, "expect ')' after condition")

	thenJump := p.emitJump(chunk.JMP_FALSE)
	p.statement()
	elseJump := p.emitJump(chunk.JMP)
	p.patchJump(thenJump)

	if p.match(token.ELSE) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) pushControl(isLoop bool) *control {
	ctrl := &control{enclosing: p.fs.ctrl, isLoop: isLoop, localBase: len(p.fs.locals)}
	p.fs.ctrl = ctrl
	return ctrl
}

// popControl patches every pending break jump to land here (the end of the
// loop/switch) and restores the enclosing control.
func (p *parser) popControl() {
	ctrl := p.fs.ctrl
	for _, j := range ctrl.breakJumps {
		p.patchJump(j)
	}
	p.fs.ctrl = ctrl.enclosing
}

func (p *parser) whileStatement() {
	ctrl := p.pushControl(true)
	loopStart := p.currentChunk().Len()
	ctrl.continuePos = loopStart

	p.consume(token.LPAREN, "expect '(' after 'while'")
	p.expression()
	p.consume(token.RPAREN, "expect ')' after condition")

	exitJump := p.emitJump(chunk.JMP_FALSE)
	p.statement()
	p.emitLoop(loopStart)
	p.patchJump(exitJump)
	p.popControl()
}

// doWhileStatement compiles `do block while ( cond );` using a backward
// JMP_TRUE as the loop's only test, since JMP_TRUE always pops (spec.md
// §4.3's instruction table) and the do/while body always runs once before
// any test exists to jump back on.
func (p *parser) doWhileStatement() {
	ctrl := p.pushControl(true)
	bodyStart := p.currentChunk().Len()

	p.statement()
	ctrl.continuePos = p.currentChunk().Len()

	p.consume(token.WHILE, "expect 'while' after 'do' body")
	p.consume(token.LPAREN, "expect '(' after 'while'")
	p.expression()
	p.consume(token.RPAREN, "expect ')' after condition")
	p.consume(token.SEMI, "expect ';' after do/while statement")

	p.emitBackwardJump(chunk.JMP_TRUE, bodyStart)
	p.popControl()
}

// forStatement compiles the classic three-jump layout: init; cond test with
// exitJump; unconditional jump over the step to the body; step (emitted
// early, jumped around); body; loop back to the step; step loops back to
// cond (spec.md §4.2 "for").
func (p *parser) forStatement() {
	p.beginScope()
	p.consume(token.LPAREN, "expect '(' after 'for'")

	switch {
	case p.match(token.SEMI):
		// no initializer
	case p.match(token.VAR):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	ctrl := p.pushControl(true)
	loopStart := p.currentChunk().Len()
	exitJump := -1
	if !p.check(token.SEMI) {
		p.expression()
		exitJump = p.emitJump(chunk.JMP_FALSE)
	}
	p.consume(token.SEMI, "expect ';' after loop condition")

	if !p.check(token.RPAREN) {
		bodyJump := p.emitJump(chunk.JMP)
		incrStart := p.currentChunk().Len()
		p.expression()
		p.emitOp(chunk.POP)
		p.consume(token.RPAREN, "expect ')' after for clauses")

		p.emitLoop(loopStart)
		loopStart = incrStart
		p.patchJump(bodyJump)
	} else {
		p.consume(token.RPAREN, "expect ')' after for clauses")
	}
	ctrl.continuePos = loopStart

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
	}
	p.popControl()
	p.endScope()
}

// switchStatement compiles a C-style switch with fall-through between
// cases by default: each case emits a test (duplicate scrutinee, compare,
// jump to the next case's test on mismatch) followed by its body and an
// unconditional jump that skips the next case's test when execution falls
// through from one body straight into the next.
func (p *parser) switchStatement() {
	p.consume(token.LPAREN, "expect '(' after 'switch'")
	p.expression()
	p.consume(token.RPAREN, "expect ')' after switch value")
	p.consume(token.LBRACE, "expect '{' before switch body")

	p.pushControl(false)

	notMatchJump := -1
	fallthroughJump := -1
	sawDefault := false

	for !p.check(token.RBRACE) && !p.check(token.EOF) {
		if notMatchJump != -1 {
			p.patchJump(notMatchJump)
			notMatchJump = -1
		}

		switch {
		case p.match(token.CASE):
			p.emitOp(chunk.PUSH_DUP)
			p.expression()
			p.consume(token.COLON, "expect ':' after case value")
			p.emitOp(chunk.TEQ)
			notMatchJump = p.emitJump(chunk.JMP_FALSE)
			if fallthroughJump != -1 {
				p.patchJump(fallthroughJump)
				fallthroughJump = -1
			}
			for !p.check(token.CASE) && !p.check(token.DEFAULT) && !p.check(token.RBRACE) && !p.check(token.EOF) {
				p.statement()
			}
			fallthroughJump = p.emitJump(chunk.JMP)
		case p.match(token.DEFAULT):
			if sawDefault {
				p.error("switch can only have one default case")
			}
			sawDefault = true
			if fallthroughJump != -1 {
				p.patchJump(fallthroughJump)
				fallthroughJump = -1
			}
			p.consume(token.COLON, "expect ':' after 'default'")
			for !p.check(token.CASE) && !p.check(token.DEFAULT) && !p.check(token.RBRACE) && !p.check(token.EOF) {
				p.statement()
			}
			fallthroughJump = p.emitJump(chunk.JMP)
		default:
			p.errorAtCurrent("expect 'case' or 'default' in switch body")
			p.advance()
		}
	}
	if notMatchJump != -1 {
		p.patchJump(notMatchJump)
	}
	if fallthroughJump != -1 {
		p.patchJump(fallthroughJump)
	}
	p.consume(token.RBRACE, "expect '}' after switch body")

	// Break jumps must converge here, before the scrutinee is discarded, the
	// same point every case's notMatchJump/fallthroughJump already lands on:
	// otherwise a break skips the POP below and leaks the scrutinee.
	p.popControl()
	p.emitOp(chunk.POP) // discard the scrutinee
}

// breakStatement jumps to the end of the nearest enclosing loop or switch,
// popping back down to that construct's local-stack depth first.
func (p *parser) breakStatement() {
	ctrl := p.fs.ctrl
	if ctrl == nil {
		p.error("'break' outside of a loop or switch")
		p.consume(token.SEMI, "expect ';' after 'break'")
		return
	}
	p.emitPopLocals(len(p.fs.locals) - ctrl.localBase)
	jump := p.emitJump(chunk.JMP)
	ctrl.breakJumps = append(ctrl.breakJumps, jump)
	p.consume(token.SEMI, "expect ';' after 'break'")
}

// continueStatement jumps back to the nearest enclosing LOOP's continue
// target, walking outward past any bare switch in between (spec.md §4.2
// "break/continue": continue inside a switch nested in a loop continues
// the loop).
func (p *parser) continueStatement() {
	ctrl := p.fs.ctrl
	for ctrl != nil && !ctrl.isLoop {
		ctrl = ctrl.enclosing
	}
	if ctrl == nil {
		p.error("'continue' outside of a loop")
		p.consume(token.SEMI, "expect ';' after 'continue'")
		return
	}
	p.emitPopLocals(len(p.fs.locals) - ctrl.localBase)
	p.emitLoop(ctrl.continuePos)
	p.consume(token.SEMI, "expect ';' after 'continue'")
}

func (p *parser) returnStatement() {
	if p.fs.kind == funcKindScript {
		p.error("can't return from top-level code")
	}
	if p.match(token.SEMI) {
		p.emitOp(chunk.PUSH_NIL)
		p.emitOp(chunk.RET)
		return
	}
	p.expression()
	p.consume(token.SEMI, "expect ';' after return value")
	p.emitOp(chunk.RET)
}
