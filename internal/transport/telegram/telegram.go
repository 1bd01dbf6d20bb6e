// Package telegram implements the transport Adapter for the Telegram Bot API
// using long polling. Menus are inline keyboards; button presses arrive as
// callback queries.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/transport"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// pollTimeout is the long-poll timeout in seconds.
	pollTimeout = 30
)

// botAPI abstracts the Bot API methods we use, enabling test mocks.
// *tgbotapi.BotAPI satisfies it directly.
type botAPI interface {
	GetMe() (tgbotapi.User, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Token string
	// For testing: inject a mock bot instead of the real API client.
	Bot botAPI
}

// Adapter implements transport.Adapter for Telegram.
type Adapter struct {
	token string
	bot   botAPI
	self  tgbotapi.User

	mu        sync.Mutex
	connected bool
	closed    bool
	listening bool
	inbound   chan transport.Event
	done      chan struct{}
	senders   sync.WaitGroup
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Bot == nil && strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	return &Adapter{
		token:   strings.TrimSpace(opts.Token),
		bot:     opts.Bot,
		inbound: make(chan transport.Event, 100),
		done:    make(chan struct{}),
	}, nil
}

// Connect validates the token with getMe. A token Telegram rejects yields
// an error wrapping transport.ErrUnauthorized.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.bot == nil {
		bot, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			return wrapAuth(err)
		}
		a.bot = bot
	}
	me, err := a.bot.GetMe()
	if err != nil {
		return wrapAuth(err)
	}
	a.self = me
	a.connected = true
	log.Debug().Str("platform", "telegram").Str("bot", me.UserName).Msg("connected")
	return nil
}

// Listen starts long polling and returns the inbound channel. Polling stops
// when ctx is cancelled or the adapter is closed.
func (a *Adapter) Listen(ctx context.Context) (<-chan transport.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}
	if a.listening {
		return a.inbound, nil
	}
	a.listening = true

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := a.bot.GetUpdatesChan(cfg)

	go a.pump(ctx, updates)
	return a.inbound, nil
}

func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer a.bot.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if ev, ok := a.convert(upd); ok {
				if !a.emit(ctx, ev) {
					return
				}
			}
		}
	}
}

// convert maps an update to an Event. Messages from bots and non-text
// messages are ignored.
func (a *Adapter) convert(upd tgbotapi.Update) (transport.Event, bool) {
	switch {
	case upd.CallbackQuery != nil:
		q := upd.CallbackQuery
		if q.From == nil {
			return transport.Event{}, false
		}
		ev := transport.Event{
			Platform:   "telegram",
			Kind:       transport.KindCallback,
			UserID:     strconv.FormatInt(q.From.ID, 10),
			UserName:   q.From.UserName,
			FirstName:  q.From.FirstName,
			Data:       q.Data,
			CallbackID: q.ID,
			Timestamp:  time.Now(),
		}
		if q.Message != nil {
			ev.MessageID = strconv.Itoa(q.Message.MessageID)
			if q.Message.Chat != nil {
				ev.ChatID = strconv.FormatInt(q.Message.Chat.ID, 10)
			}
		}
		if ev.ChatID == "" {
			ev.ChatID = ev.UserID
		}
		return ev, true

	case upd.Message != nil:
		m := upd.Message
		if m.From == nil || m.From.IsBot || m.Text == "" || m.Chat == nil {
			return transport.Event{}, false
		}
		return transport.Event{
			Platform:  "telegram",
			Kind:      transport.KindText,
			ChatID:    strconv.FormatInt(m.Chat.ID, 10),
			UserID:    strconv.FormatInt(m.From.ID, 10),
			UserName:  m.From.UserName,
			FirstName: m.From.FirstName,
			Text:      m.Text,
			MessageID: strconv.Itoa(m.MessageID),
			Timestamp: m.Time(),
		}, true
	}
	return transport.Event{}, false
}

// emit delivers an event, waiting for the consumer when the buffer is
// full. It reports false once the adapter is closed or ctx is done.
func (a *Adapter) emit(ctx context.Context, ev transport.Event) bool {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.senders.Add(1)
	a.mu.Unlock()
	defer a.senders.Done()

	select {
	case a.inbound <- ev:
		return true
	case <-a.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Send delivers a message. In private chats the chat id equals the user id,
// so an empty ChatID falls back to UserID.
func (a *Adapter) Send(ctx context.Context, msg transport.OutboundMessage) (string, error) {
	bot, err := a.connectedBot()
	if err != nil {
		return "", err
	}
	target := msg.ChatID
	if target == "" {
		target = msg.UserID
	}
	if target == "" {
		return "", fmt.Errorf("telegram: no chat specified")
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram: invalid chat id %q", target)
	}

	out := tgbotapi.NewMessage(chatID, msg.Text)
	if len(msg.Menu) > 0 {
		out.ReplyMarkup = keyboard(msg.Menu)
	}

	var sent tgbotapi.Message
	err = retryOnRateLimit(ctx, func() error {
		var sendErr error
		sent, sendErr = bot.Send(out)
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("telegram: send: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Edit replaces a message's text and inline keyboard. An unchanged message
// is not an error.
func (a *Adapter) Edit(ctx context.Context, msg transport.EditMessage) error {
	bot, err := a.connectedBot()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", msg.ChatID)
	}
	messageID, err := strconv.Atoi(msg.MessageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q", msg.MessageID)
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, msg.Text, keyboard(msg.Menu))
	err = retryOnRateLimit(ctx, func() error {
		_, reqErr := bot.Request(edit)
		return reqErr
	})
	if err != nil && !strings.Contains(err.Error(), "message is not modified") {
		return fmt.Errorf("telegram: edit: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query so the client stops its
// loading indicator.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	bot, err := a.connectedBot()
	if err != nil {
		return err
	}
	if callbackID == "" {
		return nil
	}
	if _, err := bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// Close stops polling and closes the inbound channel once no event is in
// flight.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.connected = false
	close(a.done)
	a.mu.Unlock()

	a.senders.Wait()
	close(a.inbound)
	return nil
}

func (a *Adapter) connectedBot() (botAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}
	return a.bot, nil
}

// keyboard renders a menu as an inline keyboard. An empty menu yields an
// empty keyboard, which removes buttons on edit.
func keyboard(menu transport.Menu) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(menu))
	for _, r := range menu {
		if len(r) == 0 {
			continue
		}
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		rows = append(rows, row)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// wrapAuth marks token rejections (401, or 404 for a malformed token) as
// transport.ErrUnauthorized.
func wrapAuth(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound) {
		return fmt.Errorf("telegram: get me: %w: %s", transport.ErrUnauthorized, apiErr.Message)
	}
	if strings.Contains(err.Error(), "Unauthorized") {
		return fmt.Errorf("telegram: get me: %w", transport.ErrUnauthorized)
	}
	return fmt.Errorf("telegram: get me: %w", err)
}

// retryOnRateLimit calls fn and retries on 429 responses, honouring the
// retry_after hint when Telegram provides one.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
		}
		log.Warn().Str("platform", "telegram").Int("attempt", attempt+1).Dur("wait", wait).Msg("rate limited, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
