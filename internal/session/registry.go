// ABOUTME: Bounded registry of concurrent sessions: create, lookup, destroy, shutdown.
// ABOUTME: Central coordinator handing sessions their adapter factory and pipeline.

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdin/verdin/internal/adapter"
	"github.com/verdin/verdin/internal/conversation"
	"github.com/verdin/verdin/internal/pipeline"
)

// ErrCapacityExceeded indicates the registry is at its configured maximum.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

// ErrSessionNotFound indicates the specified session was not found.
var ErrSessionNotFound = errors.New("session not found")

// statusQueryTimeout bounds each per-session status query in ListAll.
const statusQueryTimeout = 2 * time.Second

// Info pairs a session id with its current state for reporting.
type Info struct {
	ID    string
	State State
}

// Registry owns the collection of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory     adapter.Factory
	pipe        *pipeline.Pipeline
	active      *conversation.ActiveSet
	cfg         Config
	maxSessions int
	onChallenge ChallengeHandler
	logger      *slog.Logger
}

// NewRegistry creates a session registry.
func NewRegistry(factory adapter.Factory, pipe *pipeline.Pipeline, active *conversation.ActiveSet, cfg Config, maxSessions int, onChallenge ChallengeHandler, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		factory:     factory,
		pipe:        pipe,
		active:      active,
		cfg:         cfg,
		maxSessions: maxSessions,
		onChallenge: onChallenge,
		logger:      logger.With("component", "registry"),
	}
}

// Create returns the existing session for the id when present, otherwise
// constructs and starts a new one. A blank id gets a generated one. Fails with
// ErrCapacityExceeded at the configured maximum and surfaces adapter
// construction errors to the caller.
func (r *Registry) Create(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	if len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return nil, ErrCapacityExceeded
	}

	sess := New(id, r.factory, r.pipe, r.active, r.cfg, r.onChallenge, r.logger)
	r.sessions[id] = sess
	r.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return nil, err
	}

	r.logger.Info("session registered", "session_id", id, "total_sessions", r.Count())
	return sess, nil
}

// Get retrieves a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Destroy stops the session, removes it from the registry and best-effort
// cleans its persisted artifacts. It never fails visibly: teardown errors are
// logged and in-memory removal always happens. Destroying an absent session
// is a no-op.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}

	sess.Stop()

	if err := r.factory.Cleanup(id); err != nil {
		r.logger.Warn("session artifact cleanup failed", "session_id", id, "error", err)
	}

	r.logger.Info("session destroyed", "session_id", id, "total_sessions", r.Count())
}

// ListAll returns a snapshot of session ids and states. Each per-session
// status query is bounded so one stuck session cannot block reporting.
func (r *Registry) ListAll() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, Info{ID: sess.ID, State: r.queryState(sess)})
	}
	return infos
}

// queryState reads a session's state under a timeout.
func (r *Registry) queryState(sess *Session) State {
	result := make(chan State, 1)
	go func() {
		result <- sess.State()
	}()

	select {
	case st := <-result:
		return st
	case <-time.After(statusQueryTimeout):
		r.logger.Warn("status query timed out", "session_id", sess.ID)
		return StateDisconnected
	}
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown destroys all sessions concurrently, waiting for each to finish
// regardless of individual failures.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Destroy(id)
		}(id)
	}
	wg.Wait()

	r.logger.Info("registry shut down", "sessions_destroyed", len(ids))
}
