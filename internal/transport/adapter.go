// Package transport defines the contract between bot workers and messaging
// platforms (Telegram, Discord, Slack).
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthorized is returned (wrapped) by Connect when the platform rejects
// the credential.
var ErrUnauthorized = errors.New("credential rejected")

// Adapter is the interface that platform-specific implementations must satisfy.
// One adapter instance serves one tenant bot.
type Adapter interface {
	// Connect validates the credential and establishes the connection.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events. The channel is closed when
	// the context is cancelled or the adapter is closed. Listen must only be
	// called after Connect.
	Listen(ctx context.Context) (<-chan Event, error)

	// Send delivers a message, optionally with a menu, and returns the
	// platform message ID.
	Send(ctx context.Context, msg OutboundMessage) (string, error)

	// Edit replaces the text and menu of a previously sent message.
	Edit(ctx context.Context, msg EditMessage) error

	// AnswerCallback acknowledges a menu selection. text may be empty.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// EventKind distinguishes free text from menu selections.
type EventKind string

const (
	KindText     EventKind = "text"
	KindCallback EventKind = "callback"
)

// Event is one inbound update from an end user.
type Event struct {
	Platform   string
	Kind       EventKind
	ChatID     string // where replies go
	UserID     string // stable end-user identifier
	UserName   string // handle, may be empty
	FirstName  string
	Text       string // message text for KindText
	Data       string // action for KindCallback
	MessageID  string // message the callback's menu is attached to
	CallbackID string
	Timestamp  time.Time

	// IsAdmin is set by the worker when UserID matches the tenant's
	// administrator contact.
	IsAdmin bool
}

// DisplayName returns the best human-readable name for the sender.
func (e Event) DisplayName() string {
	if e.FirstName != "" {
		return e.FirstName
	}
	if e.UserName != "" {
		return e.UserName
	}
	return e.UserID
}

// Button is one labelled action in a menu.
type Button struct {
	Label  string
	Action string
}

// Menu is an ordered list of button rows.
type Menu [][]Button

// Row builds a single-row slice of buttons.
func Row(buttons ...Button) []Button {
	return buttons
}

// Actions flattens the menu into its action strings, in order.
func (m Menu) Actions() []string {
	var out []string
	for _, row := range m {
		for _, b := range row {
			out = append(out, b.Action)
		}
	}
	return out
}

// OutboundMessage is a message to send. When ChatID is empty the adapter
// opens a direct conversation with UserID.
type OutboundMessage struct {
	ChatID string
	UserID string
	Text   string
	Menu   Menu
}

// EditMessage replaces a sent message's content.
type EditMessage struct {
	ChatID    string
	MessageID string
	Text      string
	Menu      Menu
}

// Factory builds an adapter for a platform and credential.
type Factory func(platform, credential string) (Adapter, error)
