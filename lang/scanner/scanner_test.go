package scanner_test

import (
	"testing"

	"github.com/mna/loxvm/lang/scanner"
	"github.com/mna/loxvm/lang/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) ([]token.Token, []token.Value, []string) {
	t.Helper()

	var s scanner.Scanner
	var errs []string
	s.Init(t.Name(), []byte(src), func(pos token.Position, msg string) {
		errs = append(errs, msg)
	})

	var toks []token.Token
	var vals []token.Value
	for {
		var v token.Value
		tok := s.Scan(&v)
		toks = append(toks, tok)
		vals = append(vals, v)
		if tok == token.EOF {
			break
		}
	}
	return toks, vals, errs
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks, _, errs := scanAll(t, `( ) [ ] { } , . ; : + - * / % ! = < > ? -> == != <= >= += -= *= /=`)
	require.Empty(t, errs)
	want := []token.Token{
		token.LPAREN, token.RPAREN, token.LBRACK, token.RBRACK, token.LBRACE, token.RBRACE,
		token.COMMA, token.DOT, token.SEMI, token.COLON,
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT, token.BANG,
		token.EQ, token.LT, token.GT, token.QUESTION, token.ARROW,
		token.EQEQ, token.BANGEQ, token.LTEQ, token.GTEQ,
		token.PLUSEQ, token.MINUSEQ, token.STAREQ, token.SLASHEQ,
		token.EOF,
	}
	assert.Equal(t, want, toks)
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	toks, _, errs := scanAll(t, `and array break case class continue do default else false for fun if nil or return super switch this true var while foo _bar2`)
	require.Empty(t, errs)
	want := []token.Token{
		token.AND, token.ARRAY, token.BREAK, token.CASE, token.CLASS, token.CONTINUE,
		token.DO, token.DEFAULT, token.ELSE, token.FALSE, token.FOR, token.FUN, token.IF,
		token.NIL, token.OR, token.RETURN, token.SUPER, token.SWITCH, token.THIS, token.TRUE,
		token.VAR, token.WHILE, token.IDENT, token.IDENT, token.EOF,
	}
	assert.Equal(t, want, toks)
}

func TestScanNumbers(t *testing.T) {
	toks, vals, errs := scanAll(t, `123 1.5 0.25`)
	require.Empty(t, errs)
	require.Equal(t, []token.Token{token.INT, token.FLOAT, token.FLOAT, token.EOF}, toks)
	assert.Equal(t, int64(123), vals[0].Int)
	assert.Equal(t, 1.5, vals[1].Float)
	assert.Equal(t, 0.25, vals[2].Float)
}

func TestScanStringEscapes(t *testing.T) {
	toks, vals, errs := scanAll(t, `"a\nb\tc\\d\"e"`)
	require.Empty(t, errs)
	require.Equal(t, []token.Token{token.STRING, token.EOF}, toks)
	assert.Equal(t, "a\nb\tc\\d\"e", vals[0].String)
}

func TestScanUnterminatedString(t *testing.T) {
	toks, _, errs := scanAll(t, `"abc`)
	require.Equal(t, []token.Token{token.STRING, token.EOF}, toks)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "not terminated")
}

func TestScanChar(t *testing.T) {
	toks, vals, errs := scanAll(t, `'x' '\n'`)
	require.Empty(t, errs)
	require.Equal(t, []token.Token{token.CHAR, token.CHAR, token.EOF}, toks)
	assert.Equal(t, "x", vals[0].String)
	assert.Equal(t, "\n", vals[1].String)
}

func TestScanComments(t *testing.T) {
	toks, _, errs := scanAll(t, "// line comment\n# shell comment\n/* block\ncomment */var x;")
	require.Empty(t, errs)
	require.Equal(t, []token.Token{token.VAR, token.IDENT, token.SEMI, token.EOF}, toks)
}

func TestScanUnterminatedBlockComment(t *testing.T) {
	_, _, errs := scanAll(t, "/* never closed")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "not terminated")
}

func TestScanIllegalCharacter(t *testing.T) {
	toks, _, errs := scanAll(t, "@")
	require.Equal(t, []token.Token{token.ILLEGAL, token.EOF}, toks)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "illegal character")
}
