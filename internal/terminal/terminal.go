// Package terminal attaches the local terminal to a node's serial console.
package terminal

import (
	"os"
	"sync"

	"golang.org/x/term"
)

// Restorer puts a terminal back the way it was.
type Restorer func() error

// RawTerminal is a terminal that can be switched to raw mode.
type RawTerminal interface {
	MakeRaw() (Restorer, error)
}

// Console wraps terminal operations on a file descriptor.
type Console struct {
	fd int
}

var _ RawTerminal = (*Console)(nil)

// Current returns the console on stdin.
func Current() *Console {
	return NewConsole(os.Stdin)
}

// NewConsole returns a console over f.
func NewConsole(f *os.File) *Console {
	return &Console{fd: int(f.Fd())}
}

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return Current().IsTerminal()
}

// IsTerminal reports whether the console is a terminal.
func (c *Console) IsTerminal() bool {
	return term.IsTerminal(c.fd)
}

// MakeRaw puts the terminal into raw mode and returns its restore function.
func (c *Console) MakeRaw() (Restorer, error) {
	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		return nil, err
	}
	return func() error {
		return term.Restore(c.fd, oldState)
	}, nil
}

// guard runs a Restorer at most once and remembers its result.
type guard struct {
	once    sync.Once
	restore Restorer
	err     error
}

func (g *guard) release() error {
	g.once.Do(func() {
		if g.restore != nil {
			g.err = g.restore()
		}
	})
	return g.err
}
