package supervisor

import (
	"strconv"

	"github.com/die-net/pxx/internal/command"
)

type Mode int

const (
	// Parallel drains once every command has exited.
	Parallel Mode = iota
	// Replace runs exactly one command and drains when it exits.
	Replace
)

func (m Mode) String() string {
	if m == Replace {
		return "replace"
	}
	return "parallel"
}

type State int32

const (
	Starting State = iota
	Running
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Done:
		return "done"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type eventKind int

const (
	evStarted eventKind = iota
	evStartFailed
	evCommandExited
	evForwarderFailed
	evInterrupted
	evDrained
)

type event struct {
	kind eventKind

	// commands is the number started, for evStarted.
	commands int

	// id and code identify the command and its exit code, for
	// evCommandExited.
	id   int
	code int

	// err is set for evStartFailed and evForwarderFailed.
	err error
}

// machine holds the run's state and its aggregate result. It does no I/O.
type machine struct {
	mode  Mode
	state State

	pending int
	code    int
	err     error
}

func newMachine(mode Mode) *machine {
	return &machine{mode: mode, state: Starting}
}

// apply advances the machine by one event and returns the new state.
// Events that do not apply to the current state are ignored.
func (m *machine) apply(ev event) State {
	switch m.state {
	case Starting:
		switch ev.kind {
		case evStarted:
			m.pending = ev.commands
			m.state = Running
		case evStartFailed:
			m.fail(ev.err)
			m.state = Done
		}

	case Running:
		switch ev.kind {
		case evCommandExited:
			m.record(ev.code)
			if m.mode == Replace || m.pending == 0 {
				m.state = Draining
			}
		case evForwarderFailed:
			m.fail(ev.err)
			m.state = Draining
		case evInterrupted:
			m.state = Draining
		}

	case Draining:
		switch ev.kind {
		case evCommandExited:
			m.record(ev.code)
		case evForwarderFailed:
			m.fail(ev.err)
		case evDrained:
			m.state = Done
		}
	}
	return m.state
}

func (m *machine) record(code int) {
	if m.pending > 0 {
		m.pending--
	}
	if m.mode == Replace || code > m.code {
		m.code = code
	}
}

func (m *machine) fail(err error) {
	if m.err == nil {
		m.err = err
	}
}

// result is the exit code of the run. Failures that ended the run report
// 1 unless a command already reported something worse.
func (m *machine) result() int {
	if m.err != nil && m.code == 0 {
		return 1
	}
	return m.code
}

// discardedCode is recorded for a command still running after it was
// killed and waited for.
const discardedCode = command.KilledCode
