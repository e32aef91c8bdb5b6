package command

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

type OutcomeKind int

const (
	Exited OutcomeKind = iota + 1
	Signaled
	SpawnFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	case SpawnFailed:
		return "spawn failed"
	default:
		return "outcome(" + strconv.Itoa(int(k)) + ")"
	}
}

// Exit codes reported for outcomes without a real exit status.
const (
	SpawnFailedCode = 127
	KilledCode      = 128 + 9
)

// Outcome is how a command ended.
type Outcome struct {
	Kind OutcomeKind

	// Code is the exit status for Exited.
	Code int

	// Signal is the terminating signal number for Signaled.
	Signal int

	// Err is the spawn error for SpawnFailed.
	Err error
}

// ExitCode maps o to a shell-style exit status.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case Exited:
		return o.Code
	case Signaled:
		return 128 + o.Signal
	default:
		return SpawnFailedCode
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case Exited:
		return fmt.Sprintf("exited with code %d", o.Code)
	case Signaled:
		return fmt.Sprintf("terminated by signal %d", o.Signal)
	case SpawnFailed:
		return fmt.Sprintf("failed to start: %v", o.Err)
	default:
		return o.Kind.String()
	}
}

// outcomeOf classifies the result of exec.Cmd.Wait.
func outcomeOf(ps *os.ProcessState, err error) Outcome {
	if ps == nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return Outcome{Kind: SpawnFailed, Err: err}
		}
		ps = ee.ProcessState
	}
	if sig, ok := signalOf(ps); ok {
		return Outcome{Kind: Signaled, Signal: sig}
	}
	return Outcome{Kind: Exited, Code: ps.ExitCode()}
}
