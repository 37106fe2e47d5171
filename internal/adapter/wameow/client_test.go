// ABOUTME: Tests for the adapter event-delivery policy and payload extraction.
// ABOUTME: Lifecycle events must survive channel backpressure; messages may not.

package wameow

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/verdin/verdin/internal/adapter"
)

func newEmitClient(events chan adapter.Event) *Client {
	c := &Client{
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	c.events = events
	return c
}

func TestEmit_DropsMessageEventsUnderBackpressure(t *testing.T) {
	events := make(chan adapter.Event, 1)
	c := newEmitClient(events)

	events <- adapter.Ready{} // saturate the channel

	// Must return immediately, discarding the message
	c.emit(adapter.Message{MessageEvent: adapter.MessageEvent{ID: "m1", Body: "hi"}})
	assert.Len(t, events, 1)
}

func TestEmit_LifecycleEventsSurviveBackpressure(t *testing.T) {
	events := make(chan adapter.Event, 1)
	c := newEmitClient(events)

	events <- adapter.Ready{} // saturate the channel

	delivered := make(chan struct{})
	go func() {
		c.emit(adapter.Disconnected{Reason: "network"})
		close(delivered)
	}()

	// The send blocks rather than dropping while the channel is full
	select {
	case <-delivered:
		t.Fatal("lifecycle event was dropped instead of blocking")
	case <-time.After(50 * time.Millisecond):
	}

	<-events // consumer drains

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("lifecycle event never delivered after drain")
	}

	evt := <-events
	disc, ok := evt.(adapter.Disconnected)
	require.True(t, ok)
	assert.Equal(t, "network", disc.Reason)
}

func TestEmit_DestroyReleasesBlockedLifecycleSend(t *testing.T) {
	events := make(chan adapter.Event, 1)
	c := newEmitClient(events)

	events <- adapter.Ready{} // saturate the channel

	released := make(chan struct{})
	go func() {
		c.emit(adapter.AuthFailure{Reason: "logged out"})
		close(released)
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, c.markDestroyed())

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("blocked emit not released by destroy")
	}

	// Later emits on a destroyed client are no-ops
	c.emit(adapter.Disconnected{Reason: "late"})
	assert.Len(t, events, 1)

	assert.False(t, c.markDestroyed())
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{
			name: "nil message",
			msg:  nil,
			want: "",
		},
		{
			name: "plain conversation",
			msg:  &waE2E.Message{Conversation: proto.String("hello")},
			want: "hello",
		},
		{
			name: "extended text",
			msg: &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String("quoted reply"),
			}},
			want: "quoted reply",
		},
		{
			name: "no text payload",
			msg:  &waE2E.Message{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBody(tt.msg))
		})
	}
}
