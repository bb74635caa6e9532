// Package builtins implements the host-provided global functions every VM
// must bind at startup: the five spec.md §6 requires (clock, print,
// println, scanln, getc) plus the two SPEC_FULL.md §4.7 supplements
// (random, exit), grounded on original_source/clox/src/builtins.c, whose
// distillation into spec.md dropped the latter two.
package builtins

import (
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/mna/loxvm/lang/value"
)

// Registerer is the minimal surface lang/vm.VM exposes for binding host
// builtins as globals, kept as an interface so this package does not need
// to import lang/vm.
type Registerer interface {
	DefineGlobal(name string, v value.Value)
}

// Register binds every builtin this package implements as a global on r.
func Register(r Registerer) {
	define(r, "clock", 0, clock)
	define(r, "print", 1, printFn)
	define(r, "println", 1, printlnFn)
	define(r, "scanln", 0, scanln)
	define(r, "getc", 0, getc)
	define(r, "random", 0, random)
	define(r, "exit", 1, exit)
}

func define(r Registerer, name string, arity int, fn value.BuiltinFunc) {
	r.DefineGlobal(name, value.FromBuiltin(&value.Builtin{Name: name, Arity: arity, Fn: fn}))
}

func clock(_ *value.Heap, env value.IO, _ []value.Value) (value.Value, error) {
	return value.Number(env.Clock()), nil
}

func printFn(_ *value.Heap, env value.IO, argv []value.Value) (value.Value, error) {
	io.WriteString(env.Stdout, value.Format(argv[0], false))
	return value.Nil, nil
}

func printlnFn(_ *value.Heap, env value.IO, argv []value.Value) (value.Value, error) {
	io.WriteString(env.Stdout, value.Format(argv[0], false))
	io.WriteString(env.Stdout, "\n")
	return value.Nil, nil
}

// scanln reads one line from stdin, excluding the line terminator. Per
// spec.md §6, a partial final line at EOF is still returned rather than
// treated as an error.
func scanln(h *value.Heap, env value.IO, _ []value.Value) (value.Value, error) {
	line, err := env.Stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return value.Nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	return value.FromObj(h.InternString(line)), nil
}

func getc(_ *value.Heap, env value.IO, _ []value.Value) (value.Value, error) {
	b, err := env.Stdin.ReadByte()
	if err != nil {
		return value.Nil, err
	}
	return value.Char(b), nil
}

func random(_ *value.Heap, _ value.IO, _ []value.Value) (value.Value, error) {
	return value.Number(rand.Float64()), nil
}

// exit flushes stdout/stderr (when the injected writer supports it) and
// terminates the process, per SPEC_FULL.md §4.7. Given a non-number
// argument it returns errExitArg instead and does not exit.
func exit(_ *value.Heap, env value.IO, argv []value.Value) (value.Value, error) {
	if !argv[0].IsNumber() {
		return value.Nil, errExitArg
	}
	code := int(argv[0].AsNumber())
	if f, ok := env.Stdout.(flusher); ok {
		f.Flush()
	}
	if f, ok := env.Stderr.(flusher); ok {
		f.Flush()
	}
	os.Exit(code)
	return value.Nil, nil
}

type flusher interface{ Flush() error }

var errExitArg = exitArgError{}

type exitArgError struct{}

func (exitArgError) Error() string { return "exit code must be a number" }
