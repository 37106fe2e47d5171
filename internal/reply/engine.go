// ABOUTME: Reply engine: quota check, style detection, prompt build, completion, sanitation.
// ABOUTME: Failures never propagate as raw errors; a fallback or suppression takes their place.

package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verdin/verdin/internal/conversation"
	"github.com/verdin/verdin/internal/ratelimit"
)

// ErrRateLimited is returned when the contact's reply quota for the current
// window is exhausted. Callers suppress output; this is not a failure.
var ErrRateLimited = errors.New("reply quota exceeded for contact")

// rateLimitGrace is how long a contact's rate-limit entry may sit idle past
// its window before the periodic sweep drops it.
const rateLimitGrace = 5 * time.Minute

// sweepInterval is how often conversation retention and stale rate-limit
// entries are purged.
const sweepInterval = time.Hour

// Engine produces replies for inbound messages. It owns the conversation
// history and rate limiter shared across all sessions.
type Engine struct {
	history   *conversation.Store
	limiter   *ratelimit.Limiter
	completer Completer
	maxLen    int
	logger    *slog.Logger

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewEngine creates a reply engine and starts its periodic sweep.
func NewEngine(history *conversation.Store, limiter *ratelimit.Limiter, completer Completer, maxReplyLen int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		history:   history,
		limiter:   limiter,
		completer: completer,
		maxLen:    maxReplyLen,
		logger:    logger.With("component", "reply"),
		done:      make(chan struct{}),
	}
	go e.sweep()
	return e
}

// GenerateReply produces a sanitized reply for the contact's message, or
// ErrRateLimited when the contact's quota is exhausted. Completion failures
// are absorbed: a per-style fallback reply is returned instead and the turn
// is still recorded.
func (e *Engine) GenerateReply(ctx context.Context, text, contactID, displayName string) (string, error) {
	if !e.limiter.Allow(contactID) {
		e.logger.Info("reply suppressed by rate limit", "contact_id", contactID)
		return "", ErrRateLimited
	}

	lang := Detect(text)
	history := e.history.Recent(contactID, historyContextTurns)
	prompt := buildPrompt(lang, displayName, text, history)

	replyText := ""
	raw, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			// Session torn down mid-flight: the contact will never see a
			// reply, so no turn is recorded
			return "", fmt.Errorf("completion aborted: %w", ctx.Err())
		}
		e.logger.Warn("completion failed, using fallback",
			"contact_id", contactID,
			"language", string(lang),
			"error", err,
		)
		replyText = fallbackFor(lang)
	} else {
		replyText = Sanitize(raw, e.maxLen)
		if replyText == "" {
			replyText = fallbackFor(lang)
		}
	}

	e.history.Append(contactID, conversation.Turn{
		Incoming:  text,
		Reply:     replyText,
		Language:  string(lang),
		Timestamp: time.Now(),
	})

	e.logger.Debug("reply generated",
		"contact_id", contactID,
		"language", string(lang),
		"reply_len", len(replyText),
	)
	return replyText, nil
}

// ClearHistory purges the contact's conversation history unconditionally.
func (e *Engine) ClearHistory(contactID string) {
	e.history.Clear(contactID)
	e.logger.Info("conversation history cleared", "contact_id", contactID)
}

// sweep periodically purges idle conversation history and stale rate-limit
// entries.
func (e *Engine) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conversations := e.history.Purge()
			limits := e.limiter.PurgeStale(rateLimitGrace)
			if conversations > 0 || limits > 0 {
				e.logger.Debug("periodic sweep",
					"conversations_purged", conversations,
					"rate_limits_purged", limits,
				)
			}
		case <-e.done:
			return
		}
	}
}

// Close stops the periodic sweep. Safe to call multiple times.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		close(e.done)
		e.closed = true
	}
}
