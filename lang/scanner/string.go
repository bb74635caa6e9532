package scanner

import (
	"github.com/mna/loxvm/lang/token"
)

// stringLiteral scans a double-quoted string literal with \n \r \t \\ \" \'
// escapes per spec.md §4.1. The opening '"' has already been consumed.
func (s *Scanner) stringLiteral(pos token.Pos, tokVal *token.Value) token.Token {
	startLine, startCol := s.line, s.col
	start := s.off - 1
	s.sb.Reset()

	for {
		switch {
		case s.cur == '"':
			s.advance()
			*tokVal = token.Value{Raw: string(s.src[start:s.off]), Pos: pos, String: s.sb.String()}
			return token.STRING
		case s.cur == '\n' || s.cur == -1:
			s.error(startLine, startCol, "string literal not terminated")
			*tokVal = token.Value{Raw: string(s.src[start:s.off]), Pos: pos, String: s.sb.String()}
			return token.STRING
		case s.cur == '\\':
			s.advance()
			s.escape()
		default:
			s.sb.WriteRune(s.cur)
			s.advance()
		}
	}
}

// charLiteral scans a single-byte character literal 'x', with the same
// escapes as string literals. The opening '\'' has already been consumed.
func (s *Scanner) charLiteral(pos token.Pos, tokVal *token.Value) token.Token {
	startLine, startCol := s.line, s.col
	start := s.off - 1
	s.sb.Reset()

	if s.cur == '\'' || s.cur == -1 {
		s.error(startLine, startCol, "empty character literal")
	} else if s.cur == '\\' {
		s.advance()
		s.escape()
	} else {
		s.sb.WriteRune(s.cur)
		s.advance()
	}

	if s.cur != '\'' {
		s.error(startLine, startCol, "character literal not terminated")
	} else {
		s.advance()
	}

	*tokVal = token.Value{Raw: string(s.src[start:s.off]), Pos: pos, String: s.sb.String()}
	return token.CHAR
}

// escape decodes one escape sequence. The leading backslash has already been
// consumed.
func (s *Scanner) escape() {
	startLine, startCol := s.line, s.col
	switch s.cur {
	case 'n':
		s.sb.WriteByte('\n')
		s.advance()
	case 'r':
		s.sb.WriteByte('\r')
		s.advance()
	case 't':
		s.sb.WriteByte('\t')
		s.advance()
	case '\\':
		s.sb.WriteByte('\\')
		s.advance()
	case '"':
		s.sb.WriteByte('"')
		s.advance()
	case '\'':
		s.sb.WriteByte('\'')
		s.advance()
	case '0':
		s.sb.WriteByte(0)
		s.advance()
	case -1:
		s.error(startLine, startCol, "escape sequence not terminated")
	default:
		s.errorf(startLine, startCol, "unknown escape sequence '\\%c'", s.cur)
		s.advance()
	}
}
