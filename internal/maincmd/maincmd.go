// Package maincmd implements the loxvm command-line tool: flag parsing,
// command dispatch, and the process exit codes spec.md §6 specifies.
// Grounded on the teacher's internal/maincmd/maincmd.go.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "loxvm"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Bytecode interpreter for the loxvm scripting language.

With a <path> argument, %[1]s compiles and runs that file once. With no
<path>, %[1]s starts a REPL: each line is compiled and run as its own
top-level chunk, sharing one set of globals across the session.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
`, binName)
)

// Exit codes, per spec.md §6. Only relative ordering and distinctness is
// required; these specific values match the spec's example table.
const (
	exitOK           = 0
	exitNoFile       = 1
	exitCompileError = 2
	exitRuntimeError = 3
)

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	args  []string
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string)          { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) {}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) > 1 {
		return errors.New("at most one file path may be provided")
	}

	commands := buildCmds(c)
	if len(c.args) == 0 {
		c.cmdFn = commands["repl"]
	} else {
		c.cmdFn = commands["run"]
	}
	if c.cmdFn == nil {
		return fmt.Errorf("internal error: no command wired")
	}
	return nil
}

// Main parses args and dispatches to the run or repl command, mirroring
// the teacher's Cmd.Main shape exactly: mainer.Parser for flags,
// mainer.CancelOnSignal for SIGINT, mainer.Stdio for injectable I/O.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{EnvVars: false}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args); err != nil {
		var ce *cmdError
		if errors.As(err, &ce) {
			return mainer.ExitCode(ce.code)
		}
		return mainer.Failure
	}
	return mainer.Success
}

// cmdError carries the loxvm-specific exit code a failed run/repl command
// wants reported, since mainer.ExitCode only distinguishes
// Success/Failure/InvalidArgs natively.
type cmdError struct {
	code int
	err  error
}

func (e *cmdError) Error() string { return e.err.Error() }
func (e *cmdError) Unwrap() error { return e.err }

// valid commands take a mainer.Stdio and a slice of strings and return an
// error, the same method-table-by-reflection construction the teacher's
// buildCmds uses.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
