package command

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"
)

type Config struct {
	// Shell and ShellArgs run non-raw commands. Empty means DefaultShell.
	Shell     string
	ShellArgs []string

	// Buffered writes command output a line at a time.
	Buffered bool

	// Stdin, Stdout and Stderr default to the process's own streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Broadcaster, if set, feeds the stdin of every shell command instead
	// of Stdin. Raw commands then get no stdin.
	Broadcaster *Broadcaster

	// WaitDelay bounds how long Wait keeps collecting buffered output after
	// a command exits, for output pipes held open by its descendants.
	WaitDelay time.Duration

	Logger *slog.Logger
}

// Runner starts commands with a shared configuration.
type Runner struct {
	cfg    Config
	stdout *lockedWriter
	stderr *lockedWriter
	nextID atomic.Int64
}

func NewRunner(cfg Config) *Runner {
	if cfg.Shell == "" {
		cfg.Shell, cfg.ShellArgs = DefaultShell()
	}
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		stdout: &lockedWriter{w: cfg.Stdout},
		stderr: &lockedWriter{w: cfg.Stderr},
	}
}

// Handle is a started command.
type Handle struct {
	ID      int
	Command Command

	cmd     *exec.Cmd
	done    chan struct{}
	outcome Outcome
}

// Start runs c. It never fails; see SpawnFailed.
func (r *Runner) Start(c Command) *Handle {
	h := &Handle{
		ID:      int(r.nextID.Add(1)),
		Command: c,
		done:    make(chan struct{}),
	}
	logger := r.cfg.Logger.With("id", h.ID, "command", c.Line)

	argv, err := c.argv(r.cfg.Shell, r.cfg.ShellArgs)
	if err != nil {
		h.spawnFailed(logger, err)
		return h
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // Running user commands is the point.
	cmd.WaitDelay = r.cfg.WaitDelay

	cmd.Stdin = r.cfg.Stdin
	detach := func() {}
	var stdinPipe *os.File
	if b := r.cfg.Broadcaster; b != nil {
		cmd.Stdin = nil
		if !c.Raw {
			if stdinPipe, detach, err = b.attach(); err != nil {
				h.spawnFailed(logger, err)
				return h
			}
			cmd.Stdin = stdinPipe
		}
	}

	var flush []*lineWriter
	if r.cfg.Buffered {
		out := &lineWriter{out: r.stdout}
		errOut := &lineWriter{out: r.stderr}
		cmd.Stdout, cmd.Stderr = out, errOut
		flush = append(flush, out, errOut)
	} else {
		cmd.Stdout, cmd.Stderr = r.cfg.Stdout, r.cfg.Stderr
	}

	err = cmd.Start()
	if stdinPipe != nil {
		_ = stdinPipe.Close()
	}
	if err != nil {
		detach()
		h.spawnFailed(logger, err)
		return h
	}
	h.cmd = cmd
	logger.Debug("command started", "pid", cmd.Process.Pid, "argv", argv)

	go func() {
		err := cmd.Wait()
		detach()
		for _, lw := range flush {
			_ = lw.Flush()
		}
		h.outcome = outcomeOf(cmd.ProcessState, err)
		logger.Debug("command finished", "outcome", h.outcome.String())
		close(h.done)
	}()
	return h
}

func (h *Handle) spawnFailed(logger *slog.Logger, err error) {
	logger.Error("command failed to start", "error", err)
	h.outcome = Outcome{Kind: SpawnFailed, Err: err}
	close(h.done)
}

// Wait blocks until the command has ended.
func (h *Handle) Wait() Outcome {
	<-h.done
	return h.outcome
}

// Done is closed once the command has ended.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Pid returns the process ID, or 0 if the command never started.
func (h *Handle) Pid() int {
	if h.cmd == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *Handle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Terminate asks the command to stop: SIGTERM on Unix. It is a no-op once
// the command has ended, including while its output is still being flushed
// after the process was reaped.
func (h *Handle) Terminate() error {
	if h.cmd == nil || h.exited() {
		return nil
	}
	if err := terminate(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Kill stops the command immediately.
func (h *Handle) Kill() error {
	if h.cmd == nil || h.exited() {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
