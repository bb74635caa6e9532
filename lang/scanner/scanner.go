// Some of the scanner package is adapted from the Go source code:
// https://cs.opensource.google/go/go/+/refs/tags/go1.22.1:src/go/scanner/scanner.go
//
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scanner tokenizes loxvm source text into a one-token lookahead
// stream for the compiler.
package scanner

import (
	"fmt"
	"go/scanner"
	"strings"
	"unicode/utf8"

	"github.com/mna/loxvm/lang/token"
)

type (
	// Error and ErrorList are reused from the standard library's go/scanner
	// package so that lex errors compose with parse errors through a single
	// sortable, printable list.
	Error     = scanner.Error
	ErrorList = scanner.ErrorList
)

// PrintError is go/scanner.PrintError, re-exported for callers that only
// import this package.
var PrintError = scanner.PrintError

// Scanner tokenizes a single source buffer for the compiler. It holds a
// one-character lookahead into the source; Token.Raw is a Go string copied
// from the scanned bytes, not an alias of the src slice passed to Init.
type Scanner struct {
	filename string
	src      []byte
	err      func(pos token.Position, msg string)

	sb strings.Builder // scratch buffer for decoded string/char literals

	cur  rune // current character, -1 at EOF
	off  int  // byte offset of cur
	roff int  // byte offset just past cur

	line, col int // line/col of cur
}

// Init prepares s to scan src. errHandler, if non-nil, is called once per lex
// error encountered (unterminated string/comment, illegal character, etc).
func (s *Scanner) Init(filename string, src []byte, errHandler func(token.Position, string)) {
	s.filename = filename
	s.src = src
	s.err = errHandler
	s.sb.Reset()
	s.off, s.roff = 0, 0
	s.line, s.col = 1, 0
	s.advance()
}

func (s *Scanner) position(off, line, col int) token.Position {
	return token.Position{Filename: s.filename, Offset: off, Line: line, Column: col}
}

func (s *Scanner) error(line, col int, msg string) {
	if s.err != nil {
		s.err(s.position(s.off, line, col), msg)
	}
}

func (s *Scanner) errorf(line, col int, format string, args ...any) {
	s.error(line, col, fmt.Sprintf(format, args...))
}

// peek returns the byte following cur without advancing, or 0 at EOF.
func (s *Scanner) peek() byte {
	if s.roff < len(s.src) {
		return s.src[s.roff]
	}
	return 0
}

// advance reads the next character into s.cur. s.cur == -1 means EOF.
func (s *Scanner) advance() {
	if s.cur == '\n' {
		s.line++
		s.col = 0
	}
	if s.roff >= len(s.src) {
		s.off = len(s.src)
		s.cur = -1
		return
	}

	s.off = s.roff
	r, w := rune(s.src[s.roff]), 1
	if r >= utf8.RuneSelf {
		r, w = utf8.DecodeRune(s.src[s.roff:])
		if r == utf8.RuneError && w == 1 {
			s.errorf(s.line, s.col+1, "illegal UTF-8 encoding")
		}
	}
	s.roff += w
	s.cur = r
	s.col++
}

// advanceIf consumes cur and returns true if it equals b.
func (s *Scanner) advanceIf(b byte) bool {
	if s.cur == rune(b) {
		s.advance()
		return true
	}
	return false
}

// Scan returns the next token and, for tokens carrying a value (numbers,
// strings, chars, identifiers), fills tokVal.
func (s *Scanner) Scan(tokVal *token.Value) token.Token {
	s.skipWhitespaceAndComments()

	line, col, off := s.line, s.col, s.off
	pos := token.MakePos(line, col)

	if s.cur == -1 {
		*tokVal = token.Value{Pos: pos}
		return token.EOF
	}

	switch {
	case isAlpha(s.cur):
		return s.identifier(pos, tokVal)
	case isDigit(s.cur):
		return s.number(pos, tokVal)
	}

	cur := s.cur
	s.advance()
	switch cur {
	case '(':
		return s.simple(token.LPAREN, off, pos, tokVal)
	case ')':
		return s.simple(token.RPAREN, off, pos, tokVal)
	case '[':
		return s.simple(token.LBRACK, off, pos, tokVal)
	case ']':
		return s.simple(token.RBRACK, off, pos, tokVal)
	case '{':
		return s.simple(token.LBRACE, off, pos, tokVal)
	case '}':
		return s.simple(token.RBRACE, off, pos, tokVal)
	case ',':
		return s.simple(token.COMMA, off, pos, tokVal)
	case '.':
		return s.simple(token.DOT, off, pos, tokVal)
	case ';':
		return s.simple(token.SEMI, off, pos, tokVal)
	case ':':
		return s.simple(token.COLON, off, pos, tokVal)
	case '?':
		return s.simple(token.QUESTION, off, pos, tokVal)
	case '-':
		if s.advanceIf('>') {
			return s.raw(token.ARROW, off, pos, tokVal)
		}
		if s.advanceIf('=') {
			return s.raw(token.MINUSEQ, off, pos, tokVal)
		}
		return s.simple(token.MINUS, off, pos, tokVal)
	case '+':
		if s.advanceIf('=') {
			return s.raw(token.PLUSEQ, off, pos, tokVal)
		}
		return s.simple(token.PLUS, off, pos, tokVal)
	case '*':
		if s.advanceIf('=') {
			return s.raw(token.STAREQ, off, pos, tokVal)
		}
		return s.simple(token.STAR, off, pos, tokVal)
	case '/':
		if s.advanceIf('=') {
			return s.raw(token.SLASHEQ, off, pos, tokVal)
		}
		return s.simple(token.SLASH, off, pos, tokVal)
	case '%':
		return s.simple(token.PERCENT, off, pos, tokVal)
	case '!':
		if s.advanceIf('=') {
			return s.raw(token.BANGEQ, off, pos, tokVal)
		}
		return s.simple(token.BANG, off, pos, tokVal)
	case '=':
		if s.advanceIf('=') {
			return s.raw(token.EQEQ, off, pos, tokVal)
		}
		return s.simple(token.EQ, off, pos, tokVal)
	case '<':
		if s.advanceIf('=') {
			return s.raw(token.LTEQ, off, pos, tokVal)
		}
		return s.simple(token.LT, off, pos, tokVal)
	case '>':
		if s.advanceIf('=') {
			return s.raw(token.GTEQ, off, pos, tokVal)
		}
		return s.simple(token.GT, off, pos, tokVal)
	case '"':
		return s.stringLiteral(pos, tokVal)
	case '\'':
		return s.charLiteral(pos, tokVal)
	default:
		s.errorf(line, col, "illegal character %#U", cur)
		*tokVal = token.Value{Raw: string(cur), Pos: pos}
		return token.ILLEGAL
	}
}

func (s *Scanner) simple(tok token.Token, _ int, pos token.Pos, tokVal *token.Value) token.Token {
	*tokVal = token.Value{Raw: tok.String(), Pos: pos}
	return tok
}

func (s *Scanner) raw(tok token.Token, start int, pos token.Pos, tokVal *token.Value) token.Token {
	*tokVal = token.Value{Raw: string(s.src[start:s.off]), Pos: pos}
	return tok
}

func (s *Scanner) identifier(pos token.Pos, tokVal *token.Value) token.Token {
	start := s.off
	for isAlpha(s.cur) || isDigit(s.cur) {
		s.advance()
	}
	lit := string(s.src[start:s.off])
	*tokVal = token.Value{Raw: lit, Pos: pos}
	return token.LookupIdent(lit)
}

func (s *Scanner) skipWhitespaceAndComments() {
	for {
		switch {
		case s.cur == ' ' || s.cur == '\t' || s.cur == '\r' || s.cur == '\n':
			s.advance()
		case s.cur == '#':
			for s.cur != '\n' && s.cur != -1 {
				s.advance()
			}
		case s.cur == '/' && s.peek() == '/':
			for s.cur != '\n' && s.cur != -1 {
				s.advance()
			}
		case s.cur == '/' && s.peek() == '*':
			s.blockComment()
		default:
			return
		}
	}
}

func (s *Scanner) blockComment() {
	startLine, startCol := s.line, s.col
	s.advance() // '/'
	s.advance() // '*'
	depth := 1
	for depth > 0 {
		switch {
		case s.cur == -1:
			s.error(startLine, startCol, "block comment not terminated")
			return
		case s.cur == '*' && s.peek() == '/':
			s.advance()
			s.advance()
			depth--
		case s.cur == '/' && s.peek() == '*':
			s.advance()
			s.advance()
			depth++
		default:
			s.advance()
		}
	}
}

func isAlpha(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}
