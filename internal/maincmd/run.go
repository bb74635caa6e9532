package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/loxvm/lang/builtins"
	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/value"
	"github.com/mna/loxvm/lang/vm"
)

// Run compiles and executes the single file named by args[0], per spec.md
// §6 ("interpreter <path>"). It is exposed as a method so buildCmds can
// find it by reflection, mirroring the teacher's Tokenize/Parse/Resolve
// commands.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return &cmdError{code: exitNoFile, err: err}
	}

	h := value.NewHeap()
	fn, err := compiler.Compile(h, args[0], src)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return &cmdError{code: exitCompileError, err: err}
	}

	th := &vm.Thread{
		Name:   args[0],
		Stdout: stdio.Stdout,
		Stderr: stdio.Stderr,
		Stdin:  stdio.Stdin,
	}
	theVM := vm.NewVM(th, h)
	builtins.Register(theVM)

	if err := theVM.Interpret(ctx, fn); err != nil {
		// theVM.Interpret already printed the runtime-error diagnostic.
		return &cmdError{code: exitRuntimeError, err: err}
	}
	return nil
}
