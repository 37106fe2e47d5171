// ABOUTME: Typing simulator computing human-plausible delays before delivery.
// ABOUTME: Shows a composing indicator for the duration of the computed delay.

package typing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Composer is the slice of the adapter the simulator needs: setting and
// clearing the composing indicator in a contact's conversation.
type Composer interface {
	SetComposing(contactID string) error
	ClearComposing(contactID string) error
}

// Simulator computes and performs a human-paced delay before reply delivery.
type Simulator struct {
	minDelay time.Duration
	maxDelay time.Duration
	perChar  time.Duration
	logger   *slog.Logger
}

// New creates a typing simulator. Delay = base (uniform in [min, max]) plus
// perChar per reply character, the sum capped at max.
func New(minDelay, maxDelay, perChar time.Duration, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		minDelay: minDelay,
		maxDelay: maxDelay,
		perChar:  perChar,
		logger:   logger.With("component", "typing"),
	}
}

// ComputeDelay returns the delay before the reply should be delivered. Long
// replies saturate at the configured maximum, making the result deterministic
// once the per-character component alone reaches the cap.
func (s *Simulator) ComputeDelay(replyText string) time.Duration {
	base := s.minDelay
	if spread := s.maxDelay - s.minDelay; spread > 0 {
		base += time.Duration(rand.Int64N(int64(spread) + 1))
	}

	total := base + time.Duration(len([]rune(replyText)))*s.perChar
	if total > s.maxDelay {
		total = s.maxDelay
	}
	return total
}

// Pace shows the composing indicator, waits the given delay and clears the
// indicator. Returns early with ctx.Err() if the context is cancelled, so a
// stopped session never delivers after teardown.
func (s *Simulator) Pace(ctx context.Context, composer Composer, contactID string, delay time.Duration) error {
	if err := composer.SetComposing(contactID); err != nil {
		// Indicator is cosmetic; the delay still applies
		s.logger.Debug("failed to set composing state", "contact_id", contactID, "error", err)
	}
	defer func() {
		if err := composer.ClearComposing(contactID); err != nil {
			s.logger.Debug("failed to clear composing state", "contact_id", contactID, "error", err)
		}
	}()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
