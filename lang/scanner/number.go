package scanner

import (
	"strconv"

	"github.com/mna/loxvm/lang/token"
)

// number scans a decimal literal with an optional fractional part, per
// spec.md's grammar: digit+ ('.' digit+)?. There is no hex/octal/binary
// prefix and no exponent, unlike the scanner this package is otherwise
// modeled on.
func (s *Scanner) number(pos token.Pos, tokVal *token.Value) token.Token {
	start := s.off
	for isDigit(s.cur) {
		s.advance()
	}

	tok := token.INT
	if s.cur == '.' && isDigit(rune(s.peek())) {
		tok = token.FLOAT
		s.advance() // '.'
		for isDigit(s.cur) {
			s.advance()
		}
	}

	lit := string(s.src[start:s.off])
	*tokVal = token.Value{Raw: lit, Pos: pos}
	if tok == token.INT {
		v, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			// value does not fit an int64 but still parses as a float64, so the
			// token becomes a FLOAT without any diagnostic; the compiler treats
			// all numbers as float64 regardless of this token's subtype.
			f, _ := strconv.ParseFloat(lit, 64)
			tokVal.Float = f
			tok = token.FLOAT
			return tok
		}
		tokVal.Int = v
	} else {
		v, _ := strconv.ParseFloat(lit, 64)
		tokVal.Float = v
	}
	return tok
}
