package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MockAdapter implements Adapter for testing. It records sent messages,
// edits and callback answers, and allows simulating inbound events.
type MockAdapter struct {
	mu         sync.Mutex
	connected  bool
	closed     bool
	inbound    chan Event
	sent       []OutboundMessage
	edits      []EditMessage
	answered   []string
	msgCounter int
	connectErr error
	sendErr    error
	sendDelay  time.Duration
	closeCount int
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{inbound: make(chan Event, 100)}
}

// Connect marks the adapter as connected, or returns the configured error.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

// Listen returns the inbound event channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// Send records the outbound message.
func (m *MockAdapter) Send(ctx context.Context, msg OutboundMessage) (string, error) {
	m.mu.Lock()
	delay := m.sendDelay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	if !m.connected {
		return "", fmt.Errorf("mock adapter: not connected")
	}
	m.sent = append(m.sent, msg)
	m.msgCounter++
	return strconv.Itoa(m.msgCounter), nil
}

// Edit records the edit.
func (m *MockAdapter) Edit(ctx context.Context, msg EditMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.edits = append(m.edits, msg)
	return nil
}

// AnswerCallback records the acknowledged callback ID.
func (m *MockAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, callbackID)
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCount++
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends an event into the inbound channel as if it came
// from the platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.Platform == "" {
		ev.Platform = "mock"
	}
	if ev.ChatID == "" {
		ev.ChatID = ev.UserID
	}
	m.inbound <- ev
}

// SimulateText sends a text message from userID.
func (m *MockAdapter) SimulateText(userID, text string) {
	m.SimulateInbound(Event{Kind: KindText, UserID: userID, Text: text})
}

// SimulateCallback sends a menu selection from userID.
func (m *MockAdapter) SimulateCallback(userID, action string) {
	m.SimulateInbound(Event{Kind: KindCallback, UserID: userID, Data: action, CallbackID: "cb-" + action})
}

// FailConnect makes the next Connect calls return err.
func (m *MockAdapter) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// FailSend makes Send return err until cleared with nil.
func (m *MockAdapter) FailSend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// DelaySend makes every Send wait d before recording.
func (m *MockAdapter) DelaySend(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendDelay = d
}

// LastSent returns the most recently sent outbound message.
// Returns zero value and false if no messages have been sent.
func (m *MockAdapter) LastSent() (OutboundMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return OutboundMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SentCount returns the number of outbound messages sent.
func (m *MockAdapter) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// AllSent returns a copy of all sent outbound messages.
func (m *MockAdapter) AllSent() []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns the messages addressed to chatID, or to userID for direct
// sends.
func (m *MockAdapter) SentTo(id string) []OutboundMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboundMessage
	for _, msg := range m.sent {
		if msg.ChatID == id || (msg.ChatID == "" && msg.UserID == id) {
			out = append(out, msg)
		}
	}
	return out
}

// Edits returns a copy of all recorded edits.
func (m *MockAdapter) Edits() []EditMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EditMessage, len(m.edits))
	copy(out, m.edits)
	return out
}

// Answered returns the callback IDs acknowledged so far.
func (m *MockAdapter) Answered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.answered...)
}

// Connected reports whether Connect succeeded and Close has not been called.
func (m *MockAdapter) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Closed reports whether Close has been called.
func (m *MockAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
