// Package console is the formatted print sink named in spec §6: debug-only
// output from the scheduler (queue dumps, bytecode-load failures). It
// generalizes the teacher runtime's printlock/printunlock pair (see
// runtime/scheduler_cores.go) into a small interface with one concrete,
// tty-aware implementation.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Sink is the scheduler's debug print target.
type Sink interface {
	Printf(format string, args ...any)
	Warnf(format string, args ...any)
}

// StdConsole serializes writes to an underlying writer with a plain mutex,
// the same way the teacher guards its shared print stream from both task
// context and interrupt context (printLock.Lock/Unlock around printstring
// calls). Warnings are colored yellow when the destination is a real
// terminal; colorable strips the escape codes back out on Windows
// consoles that don't understand them, and isatty gates color off
// entirely when output is redirected to a file or pipe.
type StdConsole struct {
	mu  sync.Mutex
	out io.Writer
	tty bool
}

// NewStdConsole wraps os.Stderr with colorable/isatty detection.
func NewStdConsole() *StdConsole {
	f := os.Stderr
	return &StdConsole{
		out: colorable.NewColorable(f),
		tty: isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()),
	}
}

func (c *StdConsole) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *StdConsole) Warnf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tty {
		fmt.Fprintf(c.out, "\x1b[33m"+format+"\x1b[0m\n", args...)
		return
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}
