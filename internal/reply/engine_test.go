// ABOUTME: Tests for the reply engine: quota suppression, fallback substitution, history recording.
// ABOUTME: Uses a scripted fake completer in place of the Gemini client.

package reply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdin/verdin/internal/conversation"
	"github.com/verdin/verdin/internal/ratelimit"
)

// fakeCompleter returns a scripted response or error and records prompts.
type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func newTestEngine(t *testing.T, completer Completer, quota int) *Engine {
	t.Helper()
	history := conversation.NewStore(10, 24*time.Hour)
	limiter := ratelimit.New(quota, time.Minute)
	e := NewEngine(history, limiter, completer, 600, nil)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_GenerateReply(t *testing.T) {
	fake := &fakeCompleter{response: "Arre **hello**! Kaise ho?"}
	e := newTestEngine(t, fake, 10)

	reply, err := e.GenerateReply(context.Background(), "hello", "alice@s.whatsapp.net", "Alice")
	require.NoError(t, err)

	// Sanitized: markdown stripped
	assert.Equal(t, "Arre hello! Kaise ho?", reply)

	// One turn recorded
	turns := e.history.Recent("alice@s.whatsapp.net", 5)
	require.Len(t, turns, 1)
	assert.Equal(t, "hello", turns[0].Incoming)
	assert.Equal(t, reply, turns[0].Reply)
	assert.Equal(t, string(LangEnglish), turns[0].Language)
}

func TestEngine_RateLimitSuppresses(t *testing.T) {
	fake := &fakeCompleter{response: "hi"}
	e := newTestEngine(t, fake, 2)

	_, err := e.GenerateReply(context.Background(), "one", "bob", "Bob")
	require.NoError(t, err)
	_, err = e.GenerateReply(context.Background(), "two", "bob", "Bob")
	require.NoError(t, err)

	_, err = e.GenerateReply(context.Background(), "three", "bob", "Bob")
	assert.ErrorIs(t, err, ErrRateLimited)

	// Suppressed attempt records no turn and calls no completion
	assert.Equal(t, 2, e.history.Len("bob"))
	assert.Len(t, fake.prompts, 2)
}

func TestEngine_CompletionFailureUsesFallback(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("deadline exceeded")}
	e := newTestEngine(t, fake, 10)

	reply, err := e.GenerateReply(context.Background(), "kya haal hai", "carol", "Carol")
	require.NoError(t, err)

	// Fallback comes from the hinglish fixed set
	assert.Contains(t, fallbacks[LangHinglish], reply)

	// Fallback turn is still recorded
	turns := e.history.Recent("carol", 5)
	require.Len(t, turns, 1)
	assert.Equal(t, reply, turns[0].Reply)
}

func TestEngine_CancelledContextRecordsNothing(t *testing.T) {
	fake := &fakeCompleter{err: context.Canceled}
	e := newTestEngine(t, fake, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := e.GenerateReply(ctx, "hello", "gina", "Gina")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Empty(t, reply)

	// No fallback, no turn: the contact never saw anything
	assert.Equal(t, 0, e.history.Len("gina"))
}

func TestEngine_EmptyCompletionUsesFallback(t *testing.T) {
	fake := &fakeCompleter{response: "   \n  "}
	e := newTestEngine(t, fake, 10)

	reply, err := e.GenerateReply(context.Background(), "hello there", "dave", "Dave")
	require.NoError(t, err)
	assert.Contains(t, fallbacks[LangEnglish], reply)
}

func TestEngine_PromptIncludesHistoryAndName(t *testing.T) {
	fake := &fakeCompleter{response: "sure"}
	e := newTestEngine(t, fake, 10)

	_, err := e.GenerateReply(context.Background(), "first message", "erin", "Erin")
	require.NoError(t, err)
	_, err = e.GenerateReply(context.Background(), "second message", "erin", "Erin")
	require.NoError(t, err)

	require.Len(t, fake.prompts, 2)
	assert.NotContains(t, fake.prompts[0], "Earlier conversation:")
	assert.Contains(t, fake.prompts[1], "Earlier conversation:")
	assert.Contains(t, fake.prompts[1], "Erin: first message")
	assert.Contains(t, fake.prompts[1], "second message")
}

func TestEngine_ClearHistory(t *testing.T) {
	fake := &fakeCompleter{response: "hello"}
	e := newTestEngine(t, fake, 10)

	_, err := e.GenerateReply(context.Background(), "hi", "frank", "Frank")
	require.NoError(t, err)
	require.Equal(t, 1, e.history.Len("frank"))

	e.ClearHistory("frank")
	assert.Equal(t, 0, e.history.Len("frank"))
}
