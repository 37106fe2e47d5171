// ABOUTME: Per-session connection lifecycle state machine driven by a single event loop.
// ABOUTME: Adapter events and external commands funnel into one transition table.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdin/verdin/internal/adapter"
	"github.com/verdin/verdin/internal/conversation"
	"github.com/verdin/verdin/internal/pipeline"
)

// ErrNotReady indicates the session has no ready connection for direct sends.
var ErrNotReady = errors.New("session not ready")

// ErrStopped indicates the session was stopped before it could start.
var ErrStopped = errors.New("session already stopped")

// State is the session's lifecycle state.
type State int

const (
	StatePendingCredential State = iota
	StateAuthenticated
	StateReady
	StateDisconnected
	StateFailed
)

// String returns the lowercase state name used in logs and status reports.
func (s State) String() string {
	switch s {
	case StatePendingCredential:
		return "pending_credential"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds per-session lifecycle timing and retry limits.
type Config struct {
	MaxCredentialRetries int
	RestartDelay         time.Duration
	SettleDelay          time.Duration
	StatusInterval       time.Duration
}

// ChallengeHandler receives credential challenge codes for operator display.
type ChallengeHandler func(sessionID, code string)

// command is an external instruction funneled into the event loop.
type command int

const (
	cmdRestart command = iota
)

// Status is a point-in-time snapshot of a session for reporting.
type Status struct {
	ID                string
	State             State
	Ready             bool
	MessagesSent      int64
	ActiveChats       int
	CredentialRetries int
	Uptime            time.Duration
}

// Session manages one connection lifecycle against the messaging network. All
// state transitions happen on the session's single event-loop goroutine;
// public methods only read state or enqueue commands.
type Session struct {
	ID string

	factory     adapter.Factory
	pipe        *pipeline.Pipeline
	active      *conversation.ActiveSet
	cfg         Config
	logger      *slog.Logger
	onChallenge ChallengeHandler

	mu           sync.RWMutex
	state        State
	retries      int
	createdAt    time.Time
	lastActivity time.Time
	sentCount    int64
	adapter      adapter.Adapter
	stopped      bool

	ctx          context.Context
	cancel       context.CancelFunc
	events       chan adapter.Event
	commands     chan command
	restartTimer *time.Timer
	done         chan struct{}
	doneOnce     sync.Once
	stopOnce     sync.Once
}

// New creates a session. Start must be called before events flow.
func New(id string, factory adapter.Factory, pipe *pipeline.Pipeline, active *conversation.ActiveSet, cfg Config, onChallenge ChallengeHandler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:          id,
		factory:     factory,
		pipe:        pipe,
		active:      active,
		cfg:         cfg,
		onChallenge: onChallenge,
		logger:      logger.With("session_id", id),
		state:       StatePendingCredential,
		createdAt:   time.Now(),
		events:      make(chan adapter.Event, 64),
		commands:    make(chan command, 8),
		done:        make(chan struct{}),
	}
}

// Start constructs the adapter and launches the event loop. A construction
// failure aborts session creation and is surfaced to the caller; nothing is
// retried at this level. A session that was already stopped refuses to start.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	a, err := s.factory.New(s.ctx, s.ID)
	if err != nil {
		s.cancel()
		s.finish()
		return fmt.Errorf("constructing adapter: %w", err)
	}

	s.mu.Lock()
	s.adapter = a
	s.mu.Unlock()

	if err := a.Start(s.ctx, s.events); err != nil {
		_ = a.Destroy()
		s.cancel()
		s.finish()
		return fmt.Errorf("starting adapter: %w", err)
	}

	s.logger.Info("session created", "state", s.State().String())
	go s.run()
	return nil
}

// finish marks the event loop as done. Every exit path funnels through here so
// done is closed exactly once regardless of which side wins a Start/Stop race.
func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// run is the session's event loop: the only goroutine that mutates state.
func (s *Session) run() {
	defer s.finish()

	statusTicker := time.NewTicker(s.cfg.StatusInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return

		case cmd := <-s.commands:
			if cmd == cmdRestart {
				s.doRestart()
			}

		case evt := <-s.events:
			s.handleEvent(evt)

		case <-statusTicker.C:
			if s.State() == StateReady {
				st := s.Status()
				s.logger.Info("session status",
					"state", st.State.String(),
					"messages_sent", st.MessagesSent,
					"active_chats", st.ActiveChats,
					"uptime", st.Uptime.Round(time.Second).String(),
				)
			}
		}
	}
}

// handleEvent applies one adapter event to the state machine.
func (s *Session) handleEvent(evt adapter.Event) {
	switch e := evt.(type) {
	case adapter.CredentialChallenge:
		s.handleChallenge(e)

	case adapter.Authenticated:
		s.setState(StateAuthenticated)
		s.mu.Lock()
		s.retries = 0
		s.mu.Unlock()
		s.logger.Info("credential exchange complete")

	case adapter.Ready:
		s.setState(StateReady)
		s.touch()
		s.logger.Info("session ready")

	case adapter.Message:
		if delivered := s.pipe.Handle(s.ctx, s, e.MessageEvent); delivered {
			s.mu.Lock()
			s.sentCount++
			s.lastActivity = time.Now()
			s.mu.Unlock()
		}

	case adapter.Disconnected:
		s.handleDisconnect(e.Reason)

	case adapter.AuthFailure:
		s.logger.Error("fatal credential failure", "reason", e.Reason)
		s.destroyAdapter()
		s.setState(StateFailed)

	case adapter.AdapterError:
		s.logger.Warn("adapter error", "error", e.Err)
	}
}

// handleChallenge counts a credential challenge, surfacing the code until the
// retry cap is exceeded, then forcing a restart.
func (s *Session) handleChallenge(e adapter.CredentialChallenge) {
	s.mu.Lock()
	s.retries++
	retries := s.retries
	s.mu.Unlock()

	if retries > s.cfg.MaxCredentialRetries {
		s.logger.Warn("credential retries exhausted, restarting",
			"retries", retries,
			"max", s.cfg.MaxCredentialRetries,
		)
		s.destroyAdapter()
		s.setState(StateDisconnected)
		s.enqueueRestart()
		return
	}

	s.setState(StatePendingCredential)
	s.logger.Info("credential challenge received", "attempt", retries)
	if s.onChallenge != nil {
		s.onChallenge(s.ID, e.Code)
	}
}

// handleDisconnect stops routing and schedules an automatic restart unless the
// session was explicitly stopped.
func (s *Session) handleDisconnect(reason string) {
	s.mu.RLock()
	stopped := s.stopped
	state := s.state
	s.mu.RUnlock()

	if state == StateFailed {
		return
	}

	s.setState(StateDisconnected)
	s.logger.Warn("session disconnected", "reason", reason)

	if stopped {
		return
	}
	s.scheduleRestart(s.cfg.RestartDelay)
}

// scheduleRestart arms a timer delivering a restart command to the loop.
func (s *Session) scheduleRestart(after time.Duration) {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
	}
	s.restartTimer = time.AfterFunc(after, func() {
		select {
		case s.commands <- cmdRestart:
		case <-s.ctx.Done():
		}
	})
}

// enqueueRestart delivers a restart command without delay.
func (s *Session) enqueueRestart() {
	select {
	case s.commands <- cmdRestart:
	default:
		// A restart is already pending
	}
}

// doRestart tears down the current adapter, waits the settle delay and
// recreates from a fresh pending-credential state. Failures reschedule another
// attempt; the outer retry is unbounded.
func (s *Session) doRestart() {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}

	s.logger.Info("restarting session")
	s.destroyAdapter()

	select {
	case <-time.After(s.cfg.SettleDelay):
	case <-s.ctx.Done():
		return
	}

	s.mu.Lock()
	s.retries = 0
	s.mu.Unlock()
	s.setState(StatePendingCredential)

	a, err := s.factory.New(s.ctx, s.ID)
	if err != nil {
		s.logger.Error("adapter recreation failed, rescheduling restart", "error", err)
		s.setState(StateDisconnected)
		s.scheduleRestart(s.cfg.RestartDelay)
		return
	}

	s.mu.Lock()
	s.adapter = a
	s.mu.Unlock()

	if err := a.Start(s.ctx, s.events); err != nil {
		s.logger.Error("adapter start failed, rescheduling restart", "error", err)
		s.destroyAdapter()
		s.setState(StateDisconnected)
		s.scheduleRestart(s.cfg.RestartDelay)
	}
}

// teardown runs on loop exit: the adapter handle is released and the terminal
// state recorded.
func (s *Session) teardown() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
	}
	s.destroyAdapter()

	s.mu.Lock()
	if s.state != StateFailed {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	s.logger.Info("session stopped")
}

// destroyAdapter releases the adapter handle, ignoring handle-already-gone
// errors. Idempotent.
func (s *Session) destroyAdapter() {
	s.mu.Lock()
	a := s.adapter
	s.adapter = nil
	s.mu.Unlock()

	if a == nil {
		return
	}
	if err := a.Destroy(); err != nil {
		s.logger.Warn("adapter teardown error", "error", err)
	}
}

// setState records a state transition.
func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.logger.Debug("state transition", "from", prev.String(), "to", next.String())
	}
}

// touch updates the last-activity timestamp.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns a snapshot for the reporting surface.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		ID:                s.ID,
		State:             s.state,
		Ready:             s.state == StateReady,
		MessagesSent:      s.sentCount,
		ActiveChats:       s.active.Count(),
		CredentialRetries: s.retries,
		Uptime:            time.Since(s.createdAt),
	}
}

// Stop tears down the session without scheduling a restart. Safe to call
// multiple times and at any point relative to Start; it blocks until the event
// loop has exited (or, for a never-started session, returns immediately).
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			return
		}
		// Start has not assigned the context yet. It will observe stopped
		// under the same lock and refuse to launch the loop, so nothing else
		// would ever close done or record the terminal state.
		s.mu.Lock()
		if s.state != StateFailed {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		s.finish()
	})
	<-s.done
}

// Restart requests an explicit restart, including from the failed state where
// it stands in for a fresh credential exchange.
func (s *Session) Restart() {
	s.enqueueRestart()
}

// SendDirect delivers a message outside the reply pipeline. Fails with
// ErrNotReady when the session has no ready connection.
func (s *Session) SendDirect(ctx context.Context, to, text string) error {
	s.mu.RLock()
	a := s.adapter
	ready := s.state == StateReady
	s.mu.RUnlock()

	if !ready || a == nil {
		return ErrNotReady
	}
	if err := a.SendText(ctx, to, text); err != nil {
		return fmt.Errorf("direct send: %w", err)
	}

	s.mu.Lock()
	s.sentCount++
	s.lastActivity = time.Now()
	s.mu.Unlock()
	return nil
}

// Ready implements pipeline.Connection.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// SendText implements pipeline.Connection; counting happens in the event loop
// once the pipeline reports a delivery.
func (s *Session) SendText(ctx context.Context, contactID, text string) error {
	s.mu.RLock()
	a := s.adapter
	s.mu.RUnlock()

	if a == nil {
		return ErrNotReady
	}
	return a.SendText(ctx, contactID, text)
}

// DisplayName implements pipeline.Connection.
func (s *Session) DisplayName(ctx context.Context, contactID string) string {
	s.mu.RLock()
	a := s.adapter
	s.mu.RUnlock()

	if a == nil {
		return contactID
	}
	return a.DisplayName(ctx, contactID)
}

// SetComposing implements pipeline.Connection.
func (s *Session) SetComposing(contactID string) error {
	s.mu.RLock()
	a := s.adapter
	s.mu.RUnlock()

	if a == nil {
		return ErrNotReady
	}
	return a.SetComposing(contactID)
}

// ClearComposing implements pipeline.Connection.
func (s *Session) ClearComposing(contactID string) error {
	s.mu.RLock()
	a := s.adapter
	s.mu.RUnlock()

	if a == nil {
		return ErrNotReady
	}
	return a.ClearComposing(contactID)
}
