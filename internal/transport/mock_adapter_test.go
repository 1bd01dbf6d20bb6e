package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

// Compile-time interface compliance check.
var _ Adapter = (*MockAdapter)(nil)

func TestMockAdapter_ConnectAndClose(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !m.Connected() {
		t.Fatal("Connected() = false after Connect")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Connect after close should fail.
	if err := m.Connect(ctx); err == nil {
		t.Fatal("Connect after Close should fail")
	}
	// Double close should be safe.
	if err := m.Close(); err != nil {
		t.Fatalf("double Close should succeed: %v", err)
	}
}

func TestMockAdapter_FailConnect(t *testing.T) {
	m := NewMockAdapter()
	m.FailConnect(ErrUnauthorized)

	err := m.Connect(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Connect error = %v, want ErrUnauthorized", err)
	}
	if m.Connected() {
		t.Error("Connected() = true after failed Connect")
	}
}

func TestMockAdapter_ListenRequiresConnect(t *testing.T) {
	m := NewMockAdapter()
	if _, err := m.Listen(context.Background()); err == nil {
		t.Fatal("Listen before Connect should fail")
	}
}

func TestMockAdapter_SendRequiresConnect(t *testing.T) {
	m := NewMockAdapter()
	if _, err := m.Send(context.Background(), OutboundMessage{Text: "hello"}); err == nil {
		t.Fatal("Send before Connect should fail")
	}
}

func TestMockAdapter_SendRecordsAndNumbers(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)

	id1, _ := m.Send(ctx, OutboundMessage{ChatID: "c1", Text: "one"})
	id2, _ := m.Send(ctx, OutboundMessage{UserID: "u2", Text: "two"})
	if id1 == id2 {
		t.Errorf("message IDs should differ: %q %q", id1, id2)
	}
	if m.SentCount() != 2 {
		t.Fatalf("SentCount = %d, want 2", m.SentCount())
	}
	last, ok := m.LastSent()
	if !ok || last.Text != "two" {
		t.Errorf("LastSent = %+v, %v", last, ok)
	}
	if got := m.SentTo("u2"); len(got) != 1 {
		t.Errorf("SentTo(u2) = %d messages, want 1", len(got))
	}
	if got := m.SentTo("c1"); len(got) != 1 || got[0].Text != "one" {
		t.Errorf("SentTo(c1) = %+v", got)
	}
}

func TestMockAdapter_DelaySendHonorsContext(t *testing.T) {
	m := NewMockAdapter()
	m.Connect(context.Background())
	m.DelaySend(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Send(ctx, OutboundMessage{Text: "slow"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send error = %v, want deadline exceeded", err)
	}
}

func TestMockAdapter_SimulateInbound(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)
	ch, err := m.Listen(ctx)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	m.SimulateText("42", "/start")
	m.SimulateCallback("42", "book")

	ev := <-ch
	if ev.Kind != KindText || ev.Text != "/start" || ev.ChatID != "42" {
		t.Errorf("first event = %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp should be filled in")
	}
	ev = <-ch
	if ev.Kind != KindCallback || ev.Data != "book" || ev.CallbackID == "" {
		t.Errorf("second event = %+v", ev)
	}

	m.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Close")
	}
}

func TestMenu_Actions(t *testing.T) {
	menu := Menu{
		Row(Button{Label: "Book", Action: "book"}, Button{Label: "Services", Action: "services"}),
		Row(Button{Label: "Back", Action: "main_menu"}),
	}
	got := menu.Actions()
	want := []string{"book", "services", "main_menu"}
	if len(got) != len(want) {
		t.Fatalf("Actions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Actions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEvent_DisplayName(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{UserID: "1", UserName: "irina_k", FirstName: "Irina"}, "Irina"},
		{Event{UserID: "1", UserName: "irina_k"}, "irina_k"},
		{Event{UserID: "1"}, "1"},
	}
	for _, tt := range tests {
		if got := tt.ev.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}
