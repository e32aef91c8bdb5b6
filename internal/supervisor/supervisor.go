package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/pxx/internal/command"
	"github.com/die-net/pxx/internal/endpoint"
	"github.com/die-net/pxx/internal/proxy"
)

// DefaultGraceTimeout is used when Config.GraceTimeout is zero.
const DefaultGraceTimeout = 5 * time.Second

// killWait bounds the wait for a killed command to be reaped before it is
// discarded.
const killWait = time.Second

var ErrReplaceNeedsOneCommand = errors.New("replace mode requires exactly one command")

type Config struct {
	Mode     Mode
	Mappings []endpoint.Mapping
	Commands []command.Command

	Proxy  proxy.Config
	Runner *command.Runner

	// GraceTimeout bounds how long draining waits for commands to exit
	// after Terminate, and for forwarders to close, before killing and
	// discarding what is left.
	GraceTimeout time.Duration

	Logger *slog.Logger
}

// Result is the outcome of a run.
type Result struct {
	Code  int
	State State
}

type Supervisor struct {
	cfg        Config
	forwarders []*proxy.Forwarder
	state      atomic.Int32
}

func New(cfg Config) (*Supervisor, error) {
	if cfg.Mode == Replace && len(cfg.Commands) != 1 {
		return nil, fmt.Errorf("%w, got %d", ErrReplaceNeedsOneCommand, len(cfg.Commands))
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = DefaultGraceTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Proxy.Logger == nil {
		cfg.Proxy.Logger = cfg.Logger
	}
	if cfg.Runner == nil {
		cfg.Runner = command.NewRunner(command.Config{Logger: cfg.Logger})
	}

	s := &Supervisor{cfg: cfg}
	for _, m := range cfg.Mappings {
		s.forwarders = append(s.forwarders, proxy.NewForwarder(m, cfg.Proxy))
	}
	return s, nil
}

// State reports the current state of the run. It is safe to call from any
// goroutine.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Forwarders returns one Forwarder per mapping, in mapping order.
func (s *Supervisor) Forwarders() []*proxy.Forwarder {
	return s.forwarders
}

// Run binds every mapping, starts every command and blocks until the run is
// Done. Cancelling ctx interrupts the run, which then drains normally.
//
// The returned error is a start failure or a forwarder failure; in both
// cases Result.Code is non-zero.
func (s *Supervisor) Run(ctx context.Context) (Result, error) {
	r := &run{
		Supervisor: s,
		m:          newMachine(s.cfg.Mode),
		running:    make(map[int]*command.Handle),
		events:     make(chan event, len(s.cfg.Commands)+len(s.forwarders)+1),
	}
	return r.execute(ctx)
}

// run is the bookkeeping of one Run call, owned by its goroutine.
type run struct {
	*Supervisor

	m       *machine
	running map[int]*command.Handle
	events  chan event

	cancelForwarders context.CancelFunc
	forwardersDone   bool
}

func (r *run) apply(ev event) State {
	st := r.m.apply(ev)
	r.state.Store(int32(st))
	return st
}

func (r *run) finish() (Result, error) {
	return Result{Code: r.m.result(), State: r.m.state}, r.m.err
}

func (r *run) execute(ctx context.Context) (Result, error) {
	logger := r.cfg.Logger

	if err := r.bindAll(); err != nil {
		r.apply(event{kind: evStartFailed, err: err})
		return r.finish()
	}

	fctx, cancel := context.WithCancel(context.Background())
	r.cancelForwarders = cancel
	defer cancel()

	var g errgroup.Group
	for _, f := range r.forwarders {
		g.Go(func() error {
			if err := f.Run(fctx); err != nil {
				r.events <- event{kind: evForwarderFailed, err: fmt.Errorf("proxy %s: %w", f.Mapping(), err)}
				return err
			}
			return nil
		})
	}
	forwardersStopped := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(forwardersStopped)
	}()

	for _, c := range r.cfg.Commands {
		h := r.cfg.Runner.Start(c)
		if r.cfg.Mode == Replace && isSpawnFailure(h) {
			cancel()
			<-forwardersStopped
			r.apply(event{kind: evStartFailed, err: fmt.Errorf("start %q: %w", c.Line, h.Wait().Err)})
			return r.finish()
		}
		r.running[h.ID] = h
		go func() {
			o := h.Wait()
			r.events <- event{kind: evCommandExited, id: h.ID, code: o.ExitCode()}
		}()
	}

	r.apply(event{kind: evStarted, commands: len(r.cfg.Commands)})
	logger.Debug("run started", "mode", r.cfg.Mode.String(), "proxies", len(r.forwarders), "commands", len(r.cfg.Commands))

	interrupted := ctx.Done()
	var grace, discard <-chan time.Time
	for {
		ev, ok := event{}, true
		select {
		case ev = <-r.events:
			if ev.kind == evCommandExited {
				ok = r.commandExited(ev)
			}
		case <-interrupted:
			interrupted = nil
			logger.Info("interrupted, shutting down")
			ev = event{kind: evInterrupted}
		case <-forwardersStopped:
			forwardersStopped = nil
			r.forwardersDone = true
			ok = false
		case <-grace:
			grace = nil
			r.killStragglers()
			discard = time.After(killWait)
			ok = false
		case <-discard:
			discard = nil
			r.discardStragglers()
			ok = false
		}

		st := r.m.state
		if ok {
			before := st
			st = r.apply(ev)
			if before == Running && st == Draining {
				r.drain()
				grace = time.After(r.cfg.GraceTimeout)
			}
		}
		if st == Draining && r.drained() {
			st = r.apply(event{kind: evDrained})
		}
		if st == Done {
			return r.finish()
		}
	}
}

// bindAll makes one bind attempt per forwarder. Retryable failures are left
// for Forwarder.Run to retry; anything else closes what was bound and
// aborts. Binding ignores the caller's context so that an early interrupt
// is handled as a drain by the event loop, not as a start failure.
func (r *run) bindAll() error {
	for i, f := range r.forwarders {
		err := f.Bind(context.Background())
		if err == nil || proxy.IsRetryable(err) {
			if err != nil {
				r.cfg.Logger.Info("listen endpoint not ready yet", "listen", f.Mapping().Listen.String(), "error", err)
			}
			continue
		}
		for _, bound := range r.forwarders[:i] {
			_ = bound.Close()
		}
		return fmt.Errorf("proxy %s: %w", f.Mapping(), err)
	}
	return nil
}

// commandExited updates the bookkeeping for an exited command. It returns
// false for a command that was already discarded.
func (r *run) commandExited(ev event) bool {
	h, ok := r.running[ev.id]
	if !ok {
		return false
	}
	delete(r.running, h.ID)
	r.cfg.Logger.Info("command exited",
		"id", h.ID,
		"command", h.Command.Line,
		"code", ev.code,
		"outcome", h.Wait().String(),
	)
	return true
}

// drain stops the forwarders and asks every running command to exit.
func (r *run) drain() {
	r.cancelForwarders()
	for _, h := range r.running {
		if err := h.Terminate(); err != nil {
			r.cfg.Logger.Warn("terminate failed", "id", h.ID, "command", h.Command.Line, "error", err)
		}
	}
}

func (r *run) drained() bool {
	return r.forwardersDone && len(r.running) == 0
}

func (r *run) killStragglers() {
	if !r.forwardersDone {
		r.cfg.Logger.Warn("proxies did not close within grace timeout", "grace_timeout", r.cfg.GraceTimeout)
		r.forwardersDone = true
	}
	for _, h := range r.running {
		r.cfg.Logger.Warn("command did not exit within grace timeout, killing",
			"id", h.ID,
			"command", h.Command.Line,
			"pid", h.Pid(),
		)
		if err := h.Kill(); err != nil {
			r.cfg.Logger.Warn("kill failed", "id", h.ID, "error", err)
		}
	}
}

// discardStragglers gives up on killed commands that were never reaped.
func (r *run) discardStragglers() {
	for id, h := range r.running {
		r.cfg.Logger.Warn("discarding command", "id", id, "command", h.Command.Line, "pid", h.Pid(), "code", discardedCode)
		delete(r.running, id)
		r.apply(event{kind: evCommandExited, id: id, code: discardedCode})
	}
}

func isSpawnFailure(h *command.Handle) bool {
	select {
	case <-h.Done():
		return h.Wait().Kind == command.SpawnFailed
	default:
		return false
	}
}
