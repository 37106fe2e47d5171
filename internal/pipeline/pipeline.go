// ABOUTME: Inbound message pipeline: filtering, reply generation, paced delivery.
// ABOUTME: Delivery failures are recovered locally with a single apology fallback attempt.

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/verdin/verdin/internal/adapter"
	"github.com/verdin/verdin/internal/conversation"
	"github.com/verdin/verdin/internal/dedupe"
	"github.com/verdin/verdin/internal/reply"
	"github.com/verdin/verdin/internal/typing"
)

// Connection is the slice of a session the pipeline needs: readiness, outbound
// send and contact metadata. The session's adapter backs all of it.
type Connection interface {
	Ready() bool
	SendText(ctx context.Context, contactID, text string) error
	DisplayName(ctx context.Context, contactID string) string
	typing.Composer
}

// Replier generates replies. Implemented by the reply engine.
type Replier interface {
	GenerateReply(ctx context.Context, text, contactID, displayName string) (string, error)
}

// Pipeline filters inbound messages and drives reply generation and delivery.
// One Pipeline is shared across sessions; per-contact state lives in the reply
// engine's stores.
type Pipeline struct {
	replier   Replier
	typist    *typing.Simulator
	active    *conversation.ActiveSet
	seen      *dedupe.Cache
	staleness time.Duration
	logger    *slog.Logger
}

// New creates a message pipeline.
func New(replier Replier, typist *typing.Simulator, active *conversation.ActiveSet, seen *dedupe.Cache, staleness time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		replier:   replier,
		typist:    typist,
		active:    active,
		seen:      seen,
		staleness: staleness,
		logger:    logger.With("component", "pipeline"),
	}
}

// Handle runs one inbound message through the filter chain and, when it
// passes, generates and delivers a reply. Returns true when a reply was
// delivered so the caller can account for it. Filtering drops are silent
// no-replies; failures never escape this method.
func (p *Pipeline) Handle(ctx context.Context, conn Connection, evt adapter.MessageEvent) bool {
	if !conn.Ready() {
		p.logger.Debug("dropping message: session not ready", "contact_id", evt.ContactID)
		return false
	}
	if evt.FromSelf {
		return false
	}
	if evt.FromGroup {
		p.logger.Debug("dropping group message", "contact_id", evt.ContactID)
		return false
	}
	if time.Since(evt.Timestamp) > p.staleness {
		p.logger.Debug("dropping stale message",
			"contact_id", evt.ContactID,
			"age", time.Since(evt.Timestamp).String(),
		)
		return false
	}

	body := strings.TrimSpace(evt.Body)
	if body == "" {
		return false
	}

	if evt.ID != "" && p.seen.CheckAndMark(evt.ID) {
		p.logger.Debug("dropping duplicate message", "message_id", evt.ID)
		return false
	}

	p.active.Mark(evt.ContactID)

	displayName := evt.PushName
	if displayName == "" {
		displayName = conn.DisplayName(ctx, evt.ContactID)
	}

	replyText, err := p.replier.GenerateReply(ctx, body, evt.ContactID, displayName)
	if err != nil {
		if errors.Is(err, reply.ErrRateLimited) {
			// Suppression, not an error: no fallback is sent
			return false
		}
		if ctx.Err() != nil {
			// Session torn down mid-flight: abandon, no apology either
			p.logger.Debug("delivery abandoned", "contact_id", evt.ContactID, "error", err)
			return false
		}
		p.logger.Error("reply generation failed", "contact_id", evt.ContactID, "error", err)
		p.sendApology(ctx, conn, evt.ContactID)
		return false
	}

	delay := p.typist.ComputeDelay(replyText)
	if err := p.typist.Pace(ctx, conn, evt.ContactID, delay); err != nil {
		// Session torn down mid-flight: abandon delivery
		p.logger.Debug("delivery abandoned", "contact_id", evt.ContactID, "error", err)
		return false
	}

	if err := conn.SendText(ctx, evt.ContactID, replyText); err != nil {
		p.logger.Error("reply delivery failed", "contact_id", evt.ContactID, "error", err)
		p.sendApology(ctx, conn, evt.ContactID)
		return false
	}

	p.logger.Info("reply delivered",
		"contact_id", evt.ContactID,
		"delay", delay.String(),
		"reply_len", len(replyText),
	)
	return true
}

// sendApology makes one best-effort attempt to send the fixed apology
// fallback. Its own failure is logged and dropped.
func (p *Pipeline) sendApology(ctx context.Context, conn Connection, contactID string) {
	if err := conn.SendText(ctx, contactID, reply.ApologyFallback()); err != nil {
		p.logger.Warn("apology fallback failed", "contact_id", contactID, "error", err)
	}
}
