package command

import (
	"errors"
	"os"
	"runtime"
	"strings"
)

var errEmptyCommand = errors.New("empty command")

// Command is one user command. Shell commands are passed to the shell as a
// single argument; raw commands are split on whitespace and executed
// directly.
type Command struct {
	Line string
	Raw  bool
}

func (c Command) String() string {
	if c.Raw {
		return "raw:" + c.Line
	}
	return c.Line
}

// DefaultShell returns the shell and its arguments used when none are
// configured: $SHELL or /bin/sh with -c, or PowerShell with -Command on
// Windows.
func DefaultShell() (string, []string) {
	if runtime.GOOS == "windows" {
		return "PowerShell.exe", []string{"-Command"}
	}
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh, []string{"-c"}
	}
	return "/bin/sh", []string{"-c"}
}

// argv returns the program and arguments that execute c.
func (c Command) argv(shell string, shellArgs []string) ([]string, error) {
	if c.Raw {
		fields := strings.Fields(c.Line)
		if len(fields) == 0 {
			return nil, errEmptyCommand
		}
		return fields, nil
	}
	if strings.TrimSpace(c.Line) == "" {
		return nil, errEmptyCommand
	}

	argv := make([]string, 0, len(shellArgs)+2)
	argv = append(argv, shell)
	argv = append(argv, shellArgs...)
	return append(argv, c.Line), nil
}
