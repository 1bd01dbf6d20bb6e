package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zulandar/parlor/internal/transport"
)

type mockBot struct {
	mu       sync.Mutex
	me       tgbotapi.User
	meErr    error
	updates  chan tgbotapi.Update
	stopped  int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErrs []error
	reqErr   error
	nextID   int
}

func newMockBot() *mockBot {
	return &mockBot{
		me:      tgbotapi.User{ID: 42, IsBot: true, UserName: "parlor_bot"},
		updates: make(chan tgbotapi.Update, 10),
		nextID:  100,
	}
}

func (m *mockBot) GetMe() (tgbotapi.User, error) { return m.me, m.meErr }

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		return tgbotapi.Message{}, err
	}
	m.sent = append(m.sent, c)
	m.nextID++
	return tgbotapi.Message{MessageID: m.nextID}, nil
}

func (m *mockBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	if m.reqErr != nil {
		return nil, m.reqErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return m.updates }

func (m *mockBot) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
}

func (m *mockBot) stopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

var _ transport.Adapter = (*Adapter)(nil)
var _ botAPI = (*tgbotapi.BotAPI)(nil)

func newTestAdapter(t *testing.T) (*Adapter, *mockBot) {
	t.Helper()
	bot := newMockBot()
	a, err := New(AdapterOpts{Bot: bot})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return a, bot
}

func receive(t *testing.T, ch <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for inbound event")
	}
	return transport.Event{}
}

func TestNew_RequiresToken(t *testing.T) {
	if _, err := New(AdapterOpts{Token: "  "}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestConnect_Unauthorized(t *testing.T) {
	tests := []struct {
		name string
		err  error
		auth bool
	}{
		{"401", &tgbotapi.Error{Code: 401, Message: "Unauthorized"}, true},
		{"404", &tgbotapi.Error{Code: 404, Message: "Not Found"}, true},
		{"network", errors.New("dial tcp: i/o timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := newMockBot()
			bot.meErr = tt.err
			a, _ := New(AdapterOpts{Bot: bot})
			err := a.Connect(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, transport.ErrUnauthorized); got != tt.auth {
				t.Errorf("unauthorized = %v, want %v (%v)", got, tt.auth, err)
			}
		})
	}
}

func TestConnect_ClosedAndIdempotent(t *testing.T) {
	a, _ := newTestAdapter(t)
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	a.Close()
	if err := a.Connect(context.Background()); err == nil {
		t.Fatal("expected error after close")
	}
}

func TestListen_NotConnected(t *testing.T) {
	a, _ := New(AdapterOpts{Bot: newMockBot()})
	if _, err := a.Listen(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestListen_TextMessage(t *testing.T) {
	a, bot := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := a.Listen(ctx)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 555, FirstName: "Ольга", UserName: "olga"},
		Chat:      &tgbotapi.Chat{ID: 555},
		Text:      "/start",
		Date:      1700000000,
	}}

	ev := receive(t, ch)
	if ev.Kind != transport.KindText || ev.Text != "/start" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ChatID != "555" || ev.UserID != "555" || ev.MessageID != "7" {
		t.Errorf("ids = %s/%s/%s", ev.ChatID, ev.UserID, ev.MessageID)
	}
	if ev.DisplayName() != "Ольга" {
		t.Errorf("display name = %q", ev.DisplayName())
	}
	if ev.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
}

func TestListen_IgnoresBotsAndNonText(t *testing.T) {
	a, bot := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := a.Listen(ctx)

	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 1, IsBot: true}, Chat: &tgbotapi.Chat{ID: 1}, Text: "bot"}}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 2}, Chat: &tgbotapi.Chat{ID: 2}}}
	bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: 3}, Chat: &tgbotapi.Chat{ID: 3}, Text: "real"}}

	if ev := receive(t, ch); ev.Text != "real" {
		t.Errorf("first delivered = %q, want real", ev.Text)
	}
}

func TestListen_CallbackQuery(t *testing.T) {
	a, bot := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := a.Listen(ctx)

	bot.updates <- tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cq-1",
		From:    &tgbotapi.User{ID: 555, UserName: "olga"},
		Message: &tgbotapi.Message{MessageID: 101, Chat: &tgbotapi.Chat{ID: 555}},
		Data:    "service_3",
	}}

	ev := receive(t, ch)
	if ev.Kind != transport.KindCallback || ev.Data != "service_3" || ev.CallbackID != "cq-1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.ChatID != "555" || ev.MessageID != "101" {
		t.Errorf("ids = %s/%s", ev.ChatID, ev.MessageID)
	}
}

func TestListen_StopsPollingOnCancel(t *testing.T) {
	a, bot := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := a.Listen(ctx); err != nil {
		t.Fatalf("listen: %v", err)
	}
	cancel()

	deadline := time.After(time.Second)
	for bot.stopCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("polling not stopped")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSend_WithKeyboard(t *testing.T) {
	a, bot := newTestAdapter(t)
	id, err := a.Send(context.Background(), transport.OutboundMessage{
		ChatID: "555",
		Text:   "Выберите услугу",
		Menu: transport.Menu{
			transport.Row(transport.Button{Label: "Стрижка", Action: "service_1"}),
			nil,
			transport.Row(transport.Button{Label: "Назад", Action: "main_menu"}),
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "101" {
		t.Errorf("id = %q, want 101", id)
	}
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", bot.sent[0])
	}
	if msg.ChatID != 555 || msg.Text != "Выберите услугу" {
		t.Errorf("msg = %+v", msg)
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("markup %T", msg.ReplyMarkup)
	}
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2 (empty row dropped)", len(kb.InlineKeyboard))
	}
	if d := kb.InlineKeyboard[0][0].CallbackData; d == nil || *d != "service_1" {
		t.Errorf("callback data = %v", d)
	}
}

func TestSend_FallsBackToUserID(t *testing.T) {
	a, bot := newTestAdapter(t)
	if _, err := a.Send(context.Background(), transport.OutboundMessage{UserID: "777", Text: "Напоминание"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	if msg.ChatID != 777 {
		t.Errorf("chat = %d, want 777", msg.ChatID)
	}
	if msg.ReplyMarkup != nil {
		t.Errorf("plain message should have no markup")
	}
}

func TestSend_Errors(t *testing.T) {
	a, _ := newTestAdapter(t)
	if _, err := a.Send(context.Background(), transport.OutboundMessage{Text: "x"}); err == nil {
		t.Error("expected error for missing target")
	}
	if _, err := a.Send(context.Background(), transport.OutboundMessage{ChatID: "abc", Text: "x"}); err == nil {
		t.Error("expected error for non-numeric chat id")
	}

	b, _ := New(AdapterOpts{Bot: newMockBot()})
	if _, err := b.Send(context.Background(), transport.OutboundMessage{ChatID: "1", Text: "x"}); err == nil {
		t.Error("expected error when not connected")
	}
}

func TestSend_RetriesOnRateLimit(t *testing.T) {
	a, bot := newTestAdapter(t)
	bot.sendErrs = []error{&tgbotapi.Error{Code: 429, Message: "Too Many Requests"}}
	if _, err := a.Send(context.Background(), transport.OutboundMessage{ChatID: "1", Text: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(bot.sent))
	}
}

func TestSend_BlockedByUser(t *testing.T) {
	a, bot := newTestAdapter(t)
	bot.sendErrs = []error{&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
	_, err := a.Send(context.Background(), transport.OutboundMessage{ChatID: "1", Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("err = %v", err)
	}
}

func TestEdit(t *testing.T) {
	a, bot := newTestAdapter(t)
	err := a.Edit(context.Background(), transport.EditMessage{ChatID: "555", MessageID: "101", Text: "Запись отменена"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	edit, ok := bot.requests[0].(tgbotapi.EditMessageTextConfig)
	if !ok {
		t.Fatalf("request %T", bot.requests[0])
	}
	if edit.ChatID != 555 || edit.MessageID != 101 || edit.Text != "Запись отменена" {
		t.Errorf("edit = %+v", edit)
	}
	if edit.ReplyMarkup == nil || len(edit.ReplyMarkup.InlineKeyboard) != 0 {
		t.Errorf("expected empty keyboard, got %+v", edit.ReplyMarkup)
	}
}

func TestEdit_NotModifiedIsNotAnError(t *testing.T) {
	a, bot := newTestAdapter(t)
	bot.reqErr = &tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified"}
	if err := a.Edit(context.Background(), transport.EditMessage{ChatID: "1", MessageID: "2", Text: "x"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := a.Edit(context.Background(), transport.EditMessage{ChatID: "1", MessageID: "two", Text: "x"}); err == nil {
		t.Error("expected error for bad message id")
	}
}

func TestAnswerCallback(t *testing.T) {
	a, bot := newTestAdapter(t)
	if err := a.AnswerCallback(context.Background(), "cq-1", ""); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, ok := bot.requests[0].(tgbotapi.CallbackConfig); !ok {
		t.Errorf("request %T, want CallbackConfig", bot.requests[0])
	}
	if err := a.AnswerCallback(context.Background(), "", ""); err != nil {
		t.Fatalf("empty id: %v", err)
	}
	if len(bot.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(bot.requests))
	}
}

func TestClose_Idempotent(t *testing.T) {
	a, _ := newTestAdapter(t)
	ch, _ := a.Listen(context.Background())
	a.Close()
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("inbound should be closed")
	}
	if a.emit(context.Background(), transport.Event{}) {
		t.Error("emit after close should report false")
	}
}

func TestListen_SlowConsumerLosesNothing(t *testing.T) {
	a, bot := newTestAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := a.Listen(ctx)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	const total = 150
	go func() {
		for i := 1; i <= total; i++ {
			bot.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
				MessageID: i,
				From:      &tgbotapi.User{ID: 555},
				Chat:      &tgbotapi.Chat{ID: 555},
				Text:      "hi",
			}}
		}
	}()

	// Let the producer fill the inbound buffer before draining.
	time.Sleep(300 * time.Millisecond)

	for i := 1; i <= total; i++ {
		ev := receive(t, ch)
		if want := strconv.Itoa(i); ev.MessageID != want {
			t.Fatalf("event %d: message id = %s, want %s", i, ev.MessageID, want)
		}
	}
}

func TestClose_UnblocksPendingEmit(t *testing.T) {
	a, _ := newTestAdapter(t)
	for i := 0; i < cap(a.inbound); i++ {
		if !a.emit(context.Background(), transport.Event{}) {
			t.Fatalf("emit %d rejected", i)
		}
	}

	result := make(chan bool, 1)
	go func() { result <- a.emit(context.Background(), transport.Event{UserID: "late"}) }()

	select {
	case <-result:
		t.Fatal("emit should wait while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case ok := <-result:
		if ok {
			t.Error("pending emit should report false after close")
		}
	case <-time.After(time.Second):
		t.Fatal("close did not release pending emit")
	}
}
