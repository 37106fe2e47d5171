// ABOUTME: Tests for the inbound pipeline's filter chain, delivery and failure recovery.
// ABOUTME: End-to-end scenarios run against fakes for the connection and reply engine.

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdin/verdin/internal/adapter"
	"github.com/verdin/verdin/internal/conversation"
	"github.com/verdin/verdin/internal/dedupe"
	"github.com/verdin/verdin/internal/ratelimit"
	"github.com/verdin/verdin/internal/reply"
	"github.com/verdin/verdin/internal/typing"
)

// fakeConn is a scripted pipeline.Connection.
type fakeConn struct {
	mu       sync.Mutex
	ready    bool
	sendErr  error
	sent     []string
	composed int
}

func (f *fakeConn) Ready() bool { return f.ready }

func (f *fakeConn) SendText(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeConn) DisplayName(context.Context, string) string { return "Test Contact" }

func (f *fakeConn) SetComposing(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.composed++
	return nil
}

func (f *fakeConn) ClearComposing(string) error { return nil }

func (f *fakeConn) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakeReplier scripts GenerateReply.
type fakeReplier struct {
	reply string
	err   error
	calls int
}

func (f *fakeReplier) GenerateReply(context.Context, string, string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestPipeline(t *testing.T, replier Replier) (*Pipeline, *conversation.ActiveSet) {
	t.Helper()
	active := conversation.NewActiveSet(500)
	seen := dedupe.New(time.Minute, 100)
	t.Cleanup(seen.Close)
	typist := typing.New(time.Millisecond, 2*time.Millisecond, 0, nil)
	return New(replier, typist, active, seen, 5*time.Minute, nil), active
}

func freshMessage(body string) adapter.MessageEvent {
	return adapter.MessageEvent{
		ID:        "msg-" + body,
		ContactID: "alice@s.whatsapp.net",
		Body:      body,
		Timestamp: time.Now(),
	}
}

func TestHandle_DeliversReply(t *testing.T) {
	replier := &fakeReplier{reply: "hello back"}
	p, active := newTestPipeline(t, replier)
	conn := &fakeConn{ready: true}

	delivered := p.Handle(context.Background(), conn, freshMessage("hello"))

	assert.True(t, delivered)
	require.Equal(t, []string{"hello back"}, conn.sentMessages())
	assert.Equal(t, 1, active.Count())
	assert.Equal(t, 1, conn.composed)
}

func TestHandle_FilterChain(t *testing.T) {
	tests := []struct {
		name  string
		ready bool
		evt   adapter.MessageEvent
	}{
		{"session not ready", false, freshMessage("hi")},
		{"own echo", true, adapter.MessageEvent{ID: "m1", ContactID: "c", Body: "hi", Timestamp: time.Now(), FromSelf: true}},
		{"group message", true, adapter.MessageEvent{ID: "m2", ContactID: "c", Body: "hi", Timestamp: time.Now(), FromGroup: true}},
		{"stale message", true, adapter.MessageEvent{ID: "m3", ContactID: "c", Body: "hi", Timestamp: time.Now().Add(-10 * time.Minute)}},
		{"empty after trim", true, adapter.MessageEvent{ID: "m4", ContactID: "c", Body: "   \n ", Timestamp: time.Now()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replier := &fakeReplier{reply: "should not happen"}
			p, active := newTestPipeline(t, replier)
			conn := &fakeConn{ready: tt.ready}

			delivered := p.Handle(context.Background(), conn, tt.evt)

			assert.False(t, delivered)
			assert.Empty(t, conn.sentMessages())
			assert.Equal(t, 0, replier.calls, "filtered messages must not reach the engine")
			assert.Equal(t, 0, active.Count())
		})
	}
}

func TestHandle_DuplicateDropped(t *testing.T) {
	replier := &fakeReplier{reply: "once"}
	p, _ := newTestPipeline(t, replier)
	conn := &fakeConn{ready: true}

	evt := freshMessage("hello")
	assert.True(t, p.Handle(context.Background(), conn, evt))
	assert.False(t, p.Handle(context.Background(), conn, evt))
	assert.Equal(t, 1, replier.calls)
}

func TestHandle_RateLimitSuppresssWithoutApology(t *testing.T) {
	replier := &fakeReplier{err: reply.ErrRateLimited}
	p, _ := newTestPipeline(t, replier)
	conn := &fakeConn{ready: true}

	delivered := p.Handle(context.Background(), conn, freshMessage("hello"))

	assert.False(t, delivered)
	assert.Empty(t, conn.sentMessages(), "suppression sends nothing, not even an apology")
}

func TestHandle_GenerationErrorSendsApology(t *testing.T) {
	replier := &fakeReplier{err: errors.New("engine exploded")}
	p, _ := newTestPipeline(t, replier)
	conn := &fakeConn{ready: true}

	delivered := p.Handle(context.Background(), conn, freshMessage("hello"))

	assert.False(t, delivered)
	require.Len(t, conn.sentMessages(), 1)
	assert.Equal(t, reply.ApologyFallback(), conn.sentMessages()[0])
}

func TestHandle_DeliveryFailureApologySwallowed(t *testing.T) {
	replier := &fakeReplier{reply: "hello back"}
	p, _ := newTestPipeline(t, replier)
	conn := &fakeConn{ready: true, sendErr: errors.New("send failed")}

	// Both the reply and the apology fail; Handle must not panic or retry
	delivered := p.Handle(context.Background(), conn, freshMessage("hello"))
	assert.False(t, delivered)
}

func TestHandle_CancelledContextAbandonsDelivery(t *testing.T) {
	replier := &fakeReplier{reply: "too late"}
	p, _ := newTestPipeline(t, replier)
	conn := &fakeConn{ready: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered := p.Handle(ctx, conn, freshMessage("hello"))

	assert.False(t, delivered)
	assert.Empty(t, conn.sentMessages(), "no delivery after teardown")
}

func TestHandle_CancelledContextSendsNoApology(t *testing.T) {
	replier := &fakeReplier{err: errors.New("completion aborted: context canceled")}
	p, _ := newTestPipeline(t, replier)
	conn := &fakeConn{ready: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	delivered := p.Handle(ctx, conn, freshMessage("hello"))

	assert.False(t, delivered)
	assert.Empty(t, conn.sentMessages(), "a torn-down session must not apologize")
}

func TestHandle_EndToEndWithRealEngine(t *testing.T) {
	history := conversation.NewStore(10, 24*time.Hour)
	limiter := ratelimit.New(2, time.Minute)
	engine := reply.NewEngine(history, limiter, completerFunc(func(context.Context, string) (string, error) {
		return "Arre hello! Kaise ho?", nil
	}), 600, nil)
	defer engine.Close()

	p, active := newTestPipeline(t, engine)
	conn := &fakeConn{ready: true}

	delivered := p.Handle(context.Background(), conn, freshMessage("hello"))

	assert.True(t, delivered)
	require.Len(t, conn.sentMessages(), 1)
	assert.NotEmpty(t, conn.sentMessages()[0])
	assert.Equal(t, 1, history.Len("alice@s.whatsapp.net"))
	assert.Equal(t, 1, active.Count())
}

// completerFunc adapts a function to reply.Completer.
type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
