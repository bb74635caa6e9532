package compiler

import (
	"github.com/mna/loxvm/lang/chunk"
	"github.com/mna/loxvm/lang/token"
	"github.com/mna/loxvm/lang/value"
)

// Precedence is a Pratt binding power, lowest to highest per spec.md §4.2.
type Precedence uint8

const (
	PrecNone Precedence = iota
	PrecComma
	PrecAssign
	PrecCond // ?:
	PrecOr
	PrecAnd
	PrecEqual
	PrecComp
	PrecSum
	PrecProd
	PrecPrefix
	PrecPostfix
	PrecPrimary
)

var infixPrec = [...]Precedence{
	token.PLUS:    PrecSum,
	token.MINUS:   PrecSum,
	token.STAR:    PrecProd,
	token.SLASH:   PrecProd,
	token.PERCENT: PrecProd,
	token.EQEQ:    PrecEqual,
	token.BANGEQ:  PrecEqual,
	token.LT:      PrecComp,
	token.GT:      PrecComp,
	token.LTEQ:    PrecComp,
	token.GTEQ:    PrecComp,
	token.AND:     PrecAnd,
	token.OR:      PrecOr,
	token.QUESTION: PrecCond,
	token.LPAREN:  PrecPostfix,
	token.LBRACK:  PrecPostfix,
	token.DOT:     PrecPostfix,
}

func precedenceOf(tok token.Token) Precedence {
	if int(tok) < len(infixPrec) {
		return infixPrec[tok]
	}
	return PrecNone
}

func (p *parser) expression() { p.parsePrecedence(PrecAssign) }

// parsePrecedence is the Pratt driver: one prefix rule, then infix rules
// while the next token's precedence is at least minPrec. canAssign is
// computed once per call and threaded through every prefix/infix rule
// invoked from it, exactly as the spec's named variable/subscript rules
// expect (spec.md §4.2 "Assignment").
func (p *parser) parsePrecedence(minPrec Precedence) {
	p.advance()
	canAssign := minPrec <= PrecAssign
	if !p.prefixRule(p.prev, canAssign) {
		p.error("expect expression")
		return
	}

	for minPrec <= precedenceOf(p.cur) {
		p.advance()
		p.infixRule(p.prev, canAssign)
	}

	if canAssign && p.match(token.EQ) {
		p.error("invalid assignment target")
	}
}

func (p *parser) prefixRule(tok token.Token, canAssign bool) bool {
	switch tok {
	case token.MINUS, token.BANG:
		p.unary(canAssign)
	case token.LPAREN:
		p.parenOrArrow(canAssign)
	case token.INT, token.FLOAT:
		p.number(canAssign)
	case token.TRUE, token.FALSE, token.NIL:
		p.literal(canAssign)
	case token.STRING:
		p.stringLit(canAssign)
	case token.CHAR:
		p.charLit(canAssign)
	case token.IDENT:
		p.variable(canAssign)
	case token.FUN:
		p.anonymousFunction(canAssign)
	case token.LBRACK:
		p.arrayLiteral(canAssign)
	case token.ARRAY:
		p.arraySized(canAssign)
	default:
		return false
	}
	return true
}

func (p *parser) infixRule(tok token.Token, canAssign bool) {
	switch tok {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.EQEQ, token.BANGEQ, token.LT, token.GT, token.LTEQ, token.GTEQ:
		p.binary(canAssign)
	case token.AND:
		p.and_(canAssign)
	case token.OR:
		p.or_(canAssign)
	case token.QUESTION:
		p.ternary(canAssign)
	case token.LPAREN:
		p.call(canAssign)
	case token.LBRACK:
		p.subscript(canAssign)
	case token.DOT:
		p.dot(canAssign)
	}
}

func (p *parser) unary(_ bool) {
	opTok := p.prev
	p.parsePrecedence(PrecPrefix)
	switch opTok {
	case token.MINUS:
		p.emitOp(chunk.NEG)
	case token.BANG:
		p.emitOp(chunk.NOT)
	}
}

// parenOrArrow resolves the '(' ambiguity between a grouping expression and
// an arrow-function parameter list, using bounded token pushback to look
// past the matching ')' for a following '->' without a separate AST.
func (p *parser) parenOrArrow(_ bool) {
	if params, ok := p.tryArrowParams(); ok {
		p.functionArrow(params)
		return
	}
	p.expression()
	p.consume(token.RPAREN, "expect ')' after expression")
}

// tryArrowParams tentatively consumes `IDENT (',' IDENT)* ')' '->'` or
// `')' '->'` right after an already-consumed '('. On success it has also
// consumed the '->' and returns the parameter names. On failure, every
// token it looked at is pushed back so the caller can parse a normal
// grouping expression instead.
func (p *parser) tryArrowParams() ([]string, bool) {
	var buf []tokPair
	var params []string

	rec := func() {
		buf = append(buf, tokPair{p.cur, p.curVal})
		p.advance()
	}

	if p.check(token.RPAREN) {
		rec()
	} else {
		for {
			if !p.check(token.IDENT) {
				p.pushback(buf)
				return nil, false
			}
			params = append(params, p.curVal.Raw)
			rec()
			if p.check(token.COMMA) {
				rec()
				continue
			}
			break
		}
		if !p.check(token.RPAREN) {
			p.pushback(buf)
			return nil, false
		}
		rec()
	}

	if !p.check(token.ARROW) {
		p.pushback(buf)
		return nil, false
	}
	rec()
	return params, true
}

func (p *parser) number(_ bool) {
	var f float64
	if p.prev == token.INT {
		f = float64(p.prevVal.Int)
	} else {
		f = p.prevVal.Float
	}
	p.emitConstant(value.Number(f))
}

func (p *parser) literal(_ bool) {
	switch p.prev {
	case token.TRUE:
		p.emitOp(chunk.PUSH_TRUE)
	case token.FALSE:
		p.emitOp(chunk.PUSH_FALSE)
	case token.NIL:
		p.emitOp(chunk.PUSH_NIL)
	}
}

func (p *parser) stringLit(_ bool) {
	p.emitConstant(value.FromObj(p.h.InternString(p.prevVal.String)))
}

func (p *parser) charLit(_ bool) {
	var b byte
	if len(p.prevVal.String) > 0 {
		b = p.prevVal.String[0]
	}
	p.emitConstant(value.Char(b))
}

func (p *parser) variable(canAssign bool) {
	p.namedVariable(p.prevVal.Raw, canAssign)
}

// namedVariable compiles a read, or a write when canAssign and the next
// token is '=' or a compound-assignment operator. Every write re-pushes the
// new value with PUSH_DUP before the POP_* opcode so the assignment
// expression's result is the assigned value (spec.md §4.2: "every
// assignment leaves the new value on the stack by emitting a reload").
func (p *parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp chunk.Opcode
	var arg uint8
	if slot, ok := resolveLocal(p.fs, name); ok {
		getOp, setOp, arg = chunk.PUSH_LOCAL, chunk.POP_LOCAL, uint8(slot)
	} else if idx, ok := p.resolveUpvalue(p.fs, name); ok {
		getOp, setOp, arg = chunk.PUSH_UPVALUE, chunk.POP_UPVALUE, idx
	} else {
		getOp, setOp, arg = chunk.PUSH_GLOBAL, chunk.POP_GLOBAL, p.identifierConstant(name)
	}

	switch {
	case canAssign && p.match(token.EQ):
		p.expression()
		p.emitOp(chunk.PUSH_DUP)
		p.emitOp8(setOp, arg)
	case canAssign && p.matchCompoundAssign():
		compoundOp := p.prev
		p.emitOp8(getOp, arg)
		p.expression()
		p.emitCompoundOp(compoundOp)
		p.emitOp(chunk.PUSH_DUP)
		p.emitOp8(setOp, arg)
	default:
		p.emitOp8(getOp, arg)
	}
}

func (p *parser) matchCompoundAssign() bool {
	switch p.cur {
	case token.PLUSEQ, token.MINUSEQ, token.STAREQ, token.SLASHEQ:
		p.advance()
		return true
	}
	return false
}

func (p *parser) emitCompoundOp(tok token.Token) {
	switch tok {
	case token.PLUSEQ:
		p.emitOp(chunk.ADD)
	case token.MINUSEQ:
		p.emitOp(chunk.SUB)
	case token.STAREQ:
		p.emitOp(chunk.MUL)
	case token.SLASHEQ:
		p.emitOp(chunk.DIV)
	}
}

func (p *parser) binary(_ bool) {
	opTok := p.prev
	p.parsePrecedence(precedenceOf(opTok) + 1)
	switch opTok {
	case token.PLUS:
		p.emitOp(chunk.ADD)
	case token.MINUS:
		p.emitOp(chunk.SUB)
	case token.STAR:
		p.emitOp(chunk.MUL)
	case token.SLASH:
		p.emitOp(chunk.DIV)
	case token.PERCENT:
		p.emitOp(chunk.MOD)
	case token.EQEQ:
		p.emitOp(chunk.TEQ)
	case token.BANGEQ:
		p.emitOp(chunk.TEQ)
		p.emitOp(chunk.NOT)
	case token.LT:
		p.emitOp(chunk.TLT)
	case token.LTEQ:
		p.emitOp(chunk.TGT)
		p.emitOp(chunk.NOT)
	case token.GT:
		p.emitOp(chunk.TGT)
	case token.GTEQ:
		p.emitOp(chunk.TLT)
		p.emitOp(chunk.NOT)
	}
}

// and_ and or_ implement short-circuit evaluation by duplicating the LHS
// before testing it: the conditional jump always pops (per spec.md §4.3's
// instruction table), so the duplicate is what the test consumes, leaving
// the original LHS on the stack as the short-circuited result. This is one
// valid realization of the OP_PUSH technique spec.md §9 describes; any
// stack-preserving scheme is licensed there.
func (p *parser) and_(_ bool) {
	p.emitOp(chunk.PUSH_DUP)
	endJump := p.emitJump(chunk.JMP_FALSE)
	p.emitOp(chunk.POP)
	p.parsePrecedence(PrecAnd + 1)
	p.patchJump(endJump)
}

func (p *parser) or_(_ bool) {
	p.emitOp(chunk.PUSH_DUP)
	endJump := p.emitJump(chunk.JMP_TRUE)
	p.emitOp(chunk.POP)
	p.parsePrecedence(PrecOr + 1)
	p.patchJump(endJump)
}

func (p *parser) ternary(_ bool) {
	thenJump := p.emitJump(chunk.JMP_FALSE)
	p.parsePrecedence(PrecAssign)
	elseJump := p.emitJump(chunk.JMP)
	p.patchJump(thenJump)
	p.consume(token.COLON, "expect ':' in ternary expression")
	p.parsePrecedence(PrecCond)
	p.patchJump(elseJump)
}

func (p *parser) call(_ bool) {
	argc := p.argumentList(token.RPAREN)
	p.emitOp8(chunk.CALL, uint8(argc))
}

func (p *parser) argumentList(end token.Token) int {
	argc := 0
	if !p.check(end) {
		for {
			p.parsePrecedence(PrecAssign)
			if argc == 255 {
				p.error("can't have more than 255 arguments")
			}
			argc++
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	if end == token.RPAREN {
		p.consume(token.RPAREN, "expect ')' after arguments")
	} else {
		p.consume(token.RBRACK, "expect ']' after array literal")
	}
	return argc
}

// subscript compiles `arr[idx]`, `arr[idx] = v` (read/write), per spec.md
// §9's resolution to implement arrays. Compound assignment on an indexed
// target (`arr[i] += v`) is not supported: doing so without an extra
// stack-shuffling primitive beyond spec.md §4.3's instruction set would
// require duplicating two stack slots at once, which no opcode here
// provides, so only plain `=` is accepted as an index assignment target.
func (p *parser) subscript(canAssign bool) {
	p.expression()
	p.consume(token.RBRACK, "expect ']' after index")
	if canAssign && p.match(token.EQ) {
		p.expression()
		p.emitOp(chunk.SET_ITEM)
		return
	}
	p.emitOp(chunk.GET_ITEM)
}

// dot compiles the one supported attribute access, `.len` on arrays. There
// is no general GETATTR/SETATTR since user-defined classes are a Non-goal.
func (p *parser) dot(_ bool) {
	p.consume(token.IDENT, "expect property name after '.'")
	if p.prevVal.Raw != "len" {
		p.error("unknown property '" + p.prevVal.Raw + "'")
		return
	}
	p.emitOp(chunk.ARRAY_LEN)
}

func (p *parser) arrayLiteral(_ bool) {
	count := p.argumentList(token.RBRACK)
	if count > 255 {
		p.error("too many elements in array literal")
	}
	p.emitOp8(chunk.MAKE_ARRAY, uint8(count))
}

func (p *parser) arraySized(_ bool) {
	p.consume(token.LBRACK, "expect '[' after 'array'")
	p.parsePrecedence(PrecAssign)
	p.consume(token.RBRACK, "expect ']' after array size")
	p.emitOp(chunk.MAKE_ARRAY_SIZED)
}

func (p *parser) anonymousFunction(_ bool) {
	p.function(funcKindFunction, "")
}
