package token

import gotoken "go/token"

// Position is a human-readable source position. It is an alias for the
// standard library's go/token.Position so that lexing/parsing diagnostics
// can be reported through go/scanner.Error and go/scanner.ErrorList without
// any adapter layer.
type Position = gotoken.Position

// ToPosition resolves a packed Pos to a full Position for a given filename.
// NoPos resolves to the zero Position (no filename, no line/column).
func ToPosition(filename string, p Pos) Position {
	if p == NoPos {
		return Position{}
	}
	line, col := p.LineCol()
	return Position{Filename: filename, Line: line, Column: col}
}
