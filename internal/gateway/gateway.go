// ABOUTME: Central coordinator wiring config into the adapter factory, reply
// ABOUTME: engine, pipeline and session registry, and owning their lifecycle.

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/verdin/verdin/internal/adapter"
	"github.com/verdin/verdin/internal/adapter/wameow"
	"github.com/verdin/verdin/internal/config"
	"github.com/verdin/verdin/internal/conversation"
	"github.com/verdin/verdin/internal/dedupe"
	"github.com/verdin/verdin/internal/pipeline"
	"github.com/verdin/verdin/internal/ratelimit"
	"github.com/verdin/verdin/internal/reply"
	"github.com/verdin/verdin/internal/session"
	"github.com/verdin/verdin/internal/typing"
)

// DefaultSessionID is the session serve brings up on start.
const DefaultSessionID = "primary"

// Message ids older than the TTL can no longer be double-delivered by the
// network, so the cache does not need to remember them.
const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 4096
)

// Gateway owns the full component graph for one process.
type Gateway struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *reply.Engine
	seen     *dedupe.Cache
	registry *session.Registry
}

// New builds the component graph from config. The challenge handler receives
// credential challenge codes for operator display; nil is allowed.
func New(ctx context.Context, cfg *config.Config, onChallenge session.ChallengeHandler, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	factory, err := wameow.NewFactory(cfg.WhatsApp.StoreDir, logger)
	if err != nil {
		return nil, fmt.Errorf("creating adapter factory: %w", err)
	}

	completer, err := reply.NewGeminiClient(ctx, cfg.Gemini)
	if err != nil {
		return nil, fmt.Errorf("creating completion client: %w", err)
	}

	return build(cfg, factory, completer, onChallenge, logger), nil
}

// build assembles the graph from already-constructed edges. Split from New so
// tests can substitute the adapter factory and completer.
func build(cfg *config.Config, factory adapter.Factory, completer reply.Completer, onChallenge session.ChallengeHandler, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	history := conversation.NewStore(cfg.Replies.HistoryLimit, cfg.Replies.HistoryRetention)
	limiter := ratelimit.New(cfg.Replies.RateLimitMax, cfg.Replies.RateLimitWindow)
	engine := reply.NewEngine(history, limiter, completer, cfg.Replies.MaxReplyLength, logger)

	active := conversation.NewActiveSet(cfg.Replies.ActiveChatsLimit)
	seen := dedupe.New(dedupeTTL, dedupeMaxSize)
	typist := typing.New(cfg.Typing.MinDelay, cfg.Typing.MaxDelay, cfg.Typing.PerCharDelay, logger)
	pipe := pipeline.New(engine, typist, active, seen, cfg.Replies.StalenessWindow, logger)

	sessCfg := session.Config{
		MaxCredentialRetries: cfg.Sessions.MaxCredentialRetries,
		RestartDelay:         cfg.Sessions.RestartDelay,
		SettleDelay:          cfg.Sessions.SettleDelay,
		StatusInterval:       cfg.Sessions.StatusInterval,
	}
	registry := session.NewRegistry(factory, pipe, active, sessCfg, cfg.Sessions.MaxSessions, onChallenge, logger)

	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		seen:     seen,
		registry: registry,
	}
}

// Registry exposes the session registry for the reporting surface.
func (g *Gateway) Registry() *session.Registry {
	return g.registry
}

// Engine exposes the reply engine for the reporting surface.
func (g *Gateway) Engine() *reply.Engine {
	return g.engine
}

// Run brings up the default session and blocks until the context is canceled,
// then shuts everything down.
func (g *Gateway) Run(ctx context.Context) error {
	if _, err := g.registry.Create(ctx, DefaultSessionID); err != nil {
		return fmt.Errorf("creating session %q: %w", DefaultSessionID, err)
	}

	g.logger.Info("gateway running",
		"session_id", DefaultSessionID,
		"max_sessions", g.cfg.Sessions.MaxSessions,
	)

	<-ctx.Done()

	g.logger.Info("shutting down")
	g.Shutdown()
	return nil
}

// Shutdown destroys all sessions and stops the background sweeps. Safe to call
// after Run returns.
func (g *Gateway) Shutdown() {
	g.registry.Shutdown()
	g.engine.Close()
	g.seen.Close()
}
