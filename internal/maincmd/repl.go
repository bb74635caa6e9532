package maincmd

import (
	"bufio"
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/loxvm/lang/builtins"
	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/value"
	"github.com/mna/loxvm/lang/vm"
)

const replPrompt = "> "

// Repl runs an interactive read-compile-execute loop, one line at a time,
// sharing a single Heap and VM (and thus one set of globals) across the
// whole session, per SPEC_FULL.md §4.8.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, _ []string) error {
	fmt.Fprintf(stdio.Stdout, "%s %s — press Ctrl-D to exit\n", binName, c.BuildVersion)

	h := value.NewHeap()
	th := &vm.Thread{
		Name:   "repl",
		Stdout: stdio.Stdout,
		Stderr: stdio.Stderr,
		Stdin:  stdio.Stdin,
	}
	theVM := vm.NewVM(th, h)
	builtins.Register(theVM)

	scanner := bufio.NewScanner(stdio.Stdin)
	for {
		fmt.Fprint(stdio.Stdout, replPrompt)
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		// theVM already exists over h, so collection is switched off while
		// the line compiles: the half-built function is not reachable from
		// any VM root yet.
		h.GCEnabled = false
		fn, err := compiler.Compile(h, "<repl>", []byte(line))
		h.GCEnabled = true
		if err != nil {
			fmt.Fprintf(stdio.Stderr, "%s\n", err)
			continue
		}
		if err := theVM.Interpret(ctx, fn); err != nil {
			// theVM.Interpret already printed the diagnostic; keep looping.
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		return err
	}
	return nil
}
