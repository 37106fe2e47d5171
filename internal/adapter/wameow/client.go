// ABOUTME: whatsmeow-backed adapter implementation for WhatsApp sessions.
// ABOUTME: Maps whatsmeow lifecycle and message events onto the adapter event stream.

package wameow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/verdin/verdin/internal/adapter"
)

// Client is one whatsmeow connection implementing adapter.Adapter.
type Client struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *slog.Logger
	done      chan struct{}

	mu            sync.Mutex
	events        chan<- adapter.Event
	authenticated bool
	destroyed     bool
}

// Start registers event handlers and connects. When the device store holds no
// credentials, QR login codes are surfaced as CredentialChallenge events.
func (c *Client) Start(ctx context.Context, events chan<- adapter.Event) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return fmt.Errorf("adapter already destroyed")
	}
	c.events = events
	c.mu.Unlock()

	c.client.AddEventHandler(c.handleEvent)

	if c.client.Store.ID == nil {
		// Fresh device: QR pairing flow
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("opening qr channel: %w", err)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
		go c.pumpQR(ctx, qrChan)
		return nil
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	return nil
}

// pumpQR forwards QR pairing events until the channel closes.
func (c *Client) pumpQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-qrChan:
			if !ok {
				return
			}
			switch item.Event {
			case "code":
				c.emit(adapter.CredentialChallenge{Code: item.Code})
			case "timeout":
				c.emit(adapter.Disconnected{Reason: "qr pairing timed out"})
			case "err-client-outdated", "err-scanned-without-multidevice":
				c.emit(adapter.AuthFailure{Reason: item.Event})
			}
		}
	}
}

// handleEvent maps whatsmeow events onto the adapter event stream.
func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		c.markAuthenticated()

	case *events.Connected:
		// Already-paired devices skip PairSuccess
		c.markAuthenticated()
		c.emit(adapter.Ready{})

	case *events.Disconnected:
		c.emit(adapter.Disconnected{Reason: "connection lost"})

	case *events.StreamReplaced:
		c.emit(adapter.Disconnected{Reason: "stream replaced by another client"})

	case *events.LoggedOut:
		c.emit(adapter.AuthFailure{Reason: fmt.Sprintf("logged out: %s", v.Reason)})

	case *events.Message:
		c.emit(adapter.Message{MessageEvent: adapter.MessageEvent{
			ID:        v.Info.ID,
			ContactID: v.Info.Chat.String(),
			Body:      extractBody(v.Message),
			Timestamp: v.Info.Timestamp,
			FromSelf:  v.Info.IsFromMe,
			FromGroup: v.Info.IsGroup,
			PushName:  v.Info.PushName,
		}})
	}
}

// markAuthenticated emits Authenticated exactly once per connection.
func (c *Client) markAuthenticated() {
	c.mu.Lock()
	already := c.authenticated
	c.authenticated = true
	c.mu.Unlock()

	if !already {
		c.emit(adapter.Authenticated{})
	}
}

// emit delivers an event to the session. Message events are droppable under
// backpressure; lifecycle events (disconnect, auth failure, challenges) drive
// the restart policy and are never dropped — the send blocks until the
// consumer drains or the adapter is destroyed.
func (c *Client) emit(evt adapter.Event) {
	c.mu.Lock()
	events := c.events
	destroyed := c.destroyed
	c.mu.Unlock()

	if destroyed || events == nil {
		return
	}

	if _, ok := evt.(adapter.Message); ok {
		select {
		case events <- evt:
		default:
			c.logger.Warn("event channel full, dropping message event")
		}
		return
	}

	select {
	case events <- evt:
	case <-c.done:
	}
}

// extractBody pulls the text body out of the supported message payloads.
func extractBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}

// SendText delivers a plain text message to the contact.
func (c *Client) SendText(ctx context.Context, contactID, text string) error {
	jid, err := types.ParseJID(contactID)
	if err != nil {
		return fmt.Errorf("parsing contact id %q: %w", contactID, err)
	}

	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SetComposing shows the typing indicator in the contact's conversation.
func (c *Client) SetComposing(contactID string) error {
	jid, err := types.ParseJID(contactID)
	if err != nil {
		return fmt.Errorf("parsing contact id %q: %w", contactID, err)
	}
	return c.client.SendChatPresence(context.Background(), jid, types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

// ClearComposing removes the typing indicator.
func (c *Client) ClearComposing(contactID string) error {
	jid, err := types.ParseJID(contactID)
	if err != nil {
		return fmt.Errorf("parsing contact id %q: %w", contactID, err)
	}
	return c.client.SendChatPresence(context.Background(), jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
}

// DisplayName resolves the contact's display name, falling back to the bare
// JID user when nothing better is stored.
func (c *Client) DisplayName(ctx context.Context, contactID string) string {
	jid, err := types.ParseJID(contactID)
	if err != nil {
		return contactID
	}

	contact, err := c.client.Store.Contacts.GetContact(ctx, jid)
	if err == nil {
		if contact.FullName != "" {
			return contact.FullName
		}
		if contact.PushName != "" {
			return contact.PushName
		}
	}
	return jid.User
}

// Connected reports whether the underlying client currently holds a connection.
func (c *Client) Connected() bool {
	return c.client.IsConnected()
}

// Destroy disconnects and releases the device store. Safe to call multiple
// times; later calls are no-ops.
func (c *Client) Destroy() error {
	if !c.markDestroyed() {
		return nil
	}

	c.client.RemoveEventHandlers()
	c.client.Disconnect()

	if err := c.container.Close(); err != nil {
		return fmt.Errorf("closing device store: %w", err)
	}
	return nil
}

// markDestroyed flips the destroyed flag exactly once, detaching the event
// channel and releasing any lifecycle emit blocked on a full channel. Returns
// false when the client was already destroyed.
func (c *Client) markDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return false
	}
	c.destroyed = true
	c.events = nil
	close(c.done)
	return true
}

// loggerAdapter bridges whatsmeow's waLog interface onto slog.
type loggerAdapter struct {
	logger *slog.Logger
}

func (l loggerAdapter) Errorf(msg string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l loggerAdapter) Warnf(msg string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l loggerAdapter) Infof(msg string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(msg, args...))
}

func (l loggerAdapter) Debugf(msg string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

func (l loggerAdapter) Sub(module string) waLog.Logger {
	return loggerAdapter{logger: l.logger.With("module", strings.ToLower(module))}
}
