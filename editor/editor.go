// Package editor locates and runs the external text editor.
package editor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Runner starts the editor on a file and blocks until it exits.
type Runner interface {
	Run(path string) error
}

// Func adapts a plain function to a Runner. Tests use it to simulate an
// editor without spawning a process.
type Func func(path string) error

func (f Func) Run(path string) error { return f(path) }

// Resolve decides which editor command line to use: explicit configuration
// first, then $VISUAL, then $EDITOR, then vi.
func Resolve(configured string) string {
	if configured != "" {
		return configured
	}
	if ed := os.Getenv("VISUAL"); ed != "" {
		return ed
	}
	if ed := os.Getenv("EDITOR"); ed != "" {
		return ed
	}
	return "vi"
}

// Command runs an editor command line with the file path appended as the
// last argument. The child inherits the caller's terminal.
type Command struct {
	name string
	args []string
}

func New(cmdline string) (*Command, error) {
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty editor command")
	}
	return &Command{name: parts[0], args: parts[1:]}, nil
}

func (c *Command) Run(path string) error {
	cmd := exec.Command(c.name, append(append([]string{}, c.args...), path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", c.name, err)
	}
	return nil
}
