package value

// lineRun is one run of consecutive bytecode offsets that share a source
// line, the run-length encoding spec.md §3 "Chunk" describes.
type lineRun struct {
	line  int
	count int
}

// Chunk is a compiled function's packed bytecode, its constant pool, and a
// run-length-encoded map from bytecode offset to source line.
type Chunk struct {
	Code      []byte
	Constants []Value
	lines     []lineRun
}

// WriteByte appends b to the chunk's code, recording line as the source
// line for this offset.
func (c *Chunk) WriteByte(b byte, line int) {
	c.Code = append(c.Code, b)
	c.addLine(line)
}

func (c *Chunk) addLine(line int) {
	if n := len(c.lines); n > 0 && c.lines[n-1].line == line {
		c.lines[n-1].count++
		return
	}
	c.lines = append(c.lines, lineRun{line: line, count: 1})
}

// LineAt returns the source line covering bytecode offset off. The table
// holds one (line, count) run per stretch of consecutive bytes written for
// the same line, and lookup walks those runs linearly until the run that
// covers off.
func (c *Chunk) LineAt(off int) int {
	remaining := off
	for _, r := range c.lines {
		if remaining < r.count {
			return r.line
		}
		remaining -= r.count
	}
	if n := len(c.lines); n > 0 {
		return c.lines[n-1].line
	}
	return 0
}

// AddConstant appends v to the constant pool and returns its index. Callers
// are responsible for enforcing the 256-constant cap (spec.md §9); this
// method does not check it so that textual assembly (lang/chunk.Asm) can
// also share it.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Len returns the number of bytes of code currently in the chunk.
func (c *Chunk) Len() int { return len(c.Code) }
