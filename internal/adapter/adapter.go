// ABOUTME: Opaque protocol-adapter boundary between the messaging network and sessions.
// ABOUTME: Defines the event stream a session consumes and the outbound capabilities it owns.

package adapter

import (
	"context"
	"time"
)

// MessageEvent carries one inbound message from the network.
type MessageEvent struct {
	ID        string
	ContactID string
	Body      string
	Timestamp time.Time
	FromSelf  bool
	FromGroup bool
	PushName  string
}

// Event is a lifecycle or message event emitted by an Adapter. Exactly one
// concrete type below is delivered per event.
type Event interface {
	isEvent()
}

// CredentialChallenge is emitted when the network demands a fresh credential
// exchange, carrying the login code to present to the operator.
type CredentialChallenge struct {
	Code string
}

// Authenticated is emitted after a successful credential exchange.
type Authenticated struct{}

// Ready is emitted when the adapter is operational and messages will flow.
type Ready struct{}

// Message wraps an inbound message event.
type Message struct {
	MessageEvent
}

// Disconnected is emitted when the connection is lost for any reason.
type Disconnected struct {
	Reason string
}

// AuthFailure is emitted on a fatal credential failure. The session will not
// recover without a new explicit credential exchange.
type AuthFailure struct {
	Reason string
}

// AdapterError is emitted for internal adapter errors that are not fatal to
// the connection.
type AdapterError struct {
	Err error
}

func (CredentialChallenge) isEvent() {}
func (Authenticated) isEvent()       {}
func (Ready) isEvent()               {}
func (Message) isEvent()             {}
func (Disconnected) isEvent()        {}
func (AuthFailure) isEvent()         {}
func (AdapterError) isEvent()        {}

// Adapter is one live connection to the messaging network, exclusively owned
// by a single session. Start begins the connection and delivers events on the
// given channel until Destroy is called. Destroy is idempotent.
type Adapter interface {
	Start(ctx context.Context, events chan<- Event) error
	SendText(ctx context.Context, contactID, text string) error
	SetComposing(contactID string) error
	ClearComposing(contactID string) error
	DisplayName(ctx context.Context, contactID string) string
	Connected() bool
	Destroy() error
}

// Factory constructs adapters for sessions. Cleanup removes any persisted
// session-scoped artifacts (best effort) after a session is destroyed.
type Factory interface {
	New(ctx context.Context, sessionID string) (Adapter, error)
	Cleanup(sessionID string) error
}
