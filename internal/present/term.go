package present

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// IsTerminal reports whether v is a file descriptor attached to a terminal.
// Buffers and other writers are never terminals.
func IsTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var (
	stdinTTY  = sync.OnceValue(func() bool { return IsTerminal(os.Stdin) })
	stdoutTTY = sync.OnceValue(func() bool { return IsTerminal(os.Stdout) })
)

// IsInputTTY reports whether stdin is a terminal, in which case nothing was
// piped in.
func IsInputTTY() bool { return stdinTTY() }

// IsOutputTTY reports whether answers are printed to a terminal.
func IsOutputTTY() bool { return stdoutTTY() }

var (
	stdoutRenderer = sync.OnceValue(lipgloss.DefaultRenderer)
	stderrRenderer = sync.OnceValue(func() *lipgloss.Renderer {
		return lipgloss.NewRenderer(os.Stderr, termenv.WithColorCache(true))
	})
	stdoutStyles = sync.OnceValue(func() Styles { return MakeStyles(stdoutRenderer()) })
	stderrStyles = sync.OnceValue(func() Styles { return MakeStyles(stderrRenderer()) })
)

// StdoutRenderer is bound to stdout, where answers and listings go.
func StdoutRenderer() *lipgloss.Renderer { return stdoutRenderer() }

// StderrRenderer is bound to stderr, where the chat view, logs and errors go.
func StderrRenderer() *lipgloss.Renderer { return stderrRenderer() }

func StdoutStyles() Styles { return stdoutStyles() }

func StderrStyles() Styles { return stderrStyles() }
