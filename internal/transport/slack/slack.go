// Package slack implements the transport Adapter for Slack using Socket Mode.
// Menus are rendered as Block Kit buttons; button presses arrive as
// interactive block actions.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/parlor/internal/transport"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
	// maxButtonsPerBlock is Slack's element limit for an actions block.
	maxButtonsPerBlock = 25
)

// authErrors are Slack API error codes meaning the token itself is bad.
var authErrors = []string{"invalid_auth", "not_authed", "account_inactive", "token_revoked", "token_expired"}

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	RunContext(ctx context.Context) error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) RunContext(ctx context.Context) error { return r.client.RunContext(ctx) }
func (r *realSocketClient) EventsChan() chan socketmode.Event    { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements transport.Adapter for Slack Socket Mode.
type Adapter struct {
	client       slackClient
	socket       socketClient
	botUserID    string
	appToken     string
	botToken     string
	mu           sync.Mutex
	connected    bool
	closed       bool
	inbound      chan transport.Event
	done         chan struct{}
	senders      sync.WaitGroup
	cancelFunc   context.CancelFunc
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken string // xapp-... Slack app-level token for Socket Mode
	BotToken string // xoxb-... Slack bot token
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// ParseCredential splits a stored tenant credential of the form
// "xoxb-...,xapp-..." into bot and app tokens.
func ParseCredential(credential string) (AdapterOpts, error) {
	bot, app, ok := strings.Cut(credential, ",")
	bot, app = strings.TrimSpace(bot), strings.TrimSpace(app)
	if !ok || bot == "" || app == "" {
		return AdapterOpts{}, fmt.Errorf("slack: credential must be \"<bot token>,<app token>\"")
	}
	return AdapterOpts{BotToken: bot, AppToken: app}, nil
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	return &Adapter{
		client:       opts.Client,
		socket:       opts.Socket,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		inbound:      make(chan transport.Event, 100),
		done:         make(chan struct{}),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Connect validates the bot token with auth.test.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real clients if not injected (production path).
	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		if a.socket == nil {
			a.socket = &realSocketClient{client: socketmode.New(api)}
		}
	}

	auth, err := a.client.AuthTest()
	if err != nil {
		if isAuthError(err) {
			return fmt.Errorf("slack: auth test: %w: %v", transport.ErrUnauthorized, err)
		}
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID
	a.connected = true
	return nil
}

// Listen starts the Socket Mode client and its event pump and returns the
// inbound channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan transport.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("slack: not connected")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel

	go a.runWithReconnect(listenCtx)
	go a.pumpEvents(listenCtx)

	return a.inbound, nil
}

// Send posts a message. When ChatID is empty the message goes to the
// user's direct-message channel with the app.
func (a *Adapter) Send(ctx context.Context, msg transport.OutboundMessage) (string, error) {
	if err := a.checkConnected(); err != nil {
		return "", err
	}
	channelID := msg.ChatID
	if channelID == "" {
		channelID = msg.UserID
	}
	if channelID == "" {
		return "", fmt.Errorf("slack: no channel specified")
	}

	var ts string
	err := retryOnRateLimit(ctx, func() error {
		var postErr error
		_, ts, postErr = a.client.PostMessage(channelID, buildMessageOptions(msg.Text, msg.Menu)...)
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

// Edit replaces a posted message's text and buttons.
func (a *Adapter) Edit(ctx context.Context, msg transport.EditMessage) error {
	if err := a.checkConnected(); err != nil {
		return err
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, _, updErr := a.client.UpdateMessage(msg.ChatID, msg.MessageID, buildMessageOptions(msg.Text, msg.Menu)...)
		return updErr
	})
	if err != nil {
		return fmt.Errorf("slack: update message: %w", err)
	}
	return nil
}

// AnswerCallback is a no-op: block actions are acknowledged on receipt
// through the Socket Mode envelope.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

// Close shuts down the adapter and closes the inbound channel once no
// event is in flight.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	close(a.done)
	a.mu.Unlock()

	a.senders.Wait()
	close(a.inbound)
	return nil
}

func (a *Adapter) checkConnected() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("slack: not connected")
	}
	return nil
}

// emit pushes an event, waiting for the consumer when the buffer is full.
// Events arriving after Close are discarded.
func (a *Adapter) emit(ev transport.Event) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.senders.Add(1)
	a.mu.Unlock()
	defer a.senders.Done()

	select {
	case a.inbound <- ev:
	case <-a.done:
	}
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when it returns an error.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.RunContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		log.Warn().Err(err).Str("platform", "slack").Int("attempt", attempt+1).Dur("wait", wait).
			Msg("socket mode disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Error().Str("platform", "slack").Int("attempts", a.maxReconnect).Msg("socket mode reconnection attempts exhausted")
}

// pumpEvents reads Socket Mode events and converts them to transport events.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (a *Adapter) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleEventsAPI(eventsAPIEvent)

	case socketmode.EventTypeInteractive:
		cb, ok := evt.Data.(slackapi.InteractionCallback)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleInteraction(cb)

	case socketmode.EventTypeConnected:
		log.Info().Str("platform", "slack").Msg("connected to socket mode")

	case socketmode.EventTypeConnectionError:
		log.Warn().Str("platform", "slack").Interface("data", evt.Data).Msg("connection error")
	}
}

// handleEventsAPI processes Events API callbacks.
func (a *Adapter) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		a.handleMessage(ev)
	case *slackevents.AppMentionEvent:
		a.handleAppMention(ev)
	}
}

// handleMessage converts a Slack message event to a text Event.
func (a *Adapter) handleMessage(ev *slackevents.MessageEvent) {
	// Filter self, bot messages and subtypes (edits, deletes, etc.).
	if ev.User == a.botUserID || ev.BotID != "" || ev.SubType != "" {
		return
	}
	a.emit(transport.Event{
		Platform:  "slack",
		Kind:      transport.KindText,
		ChatID:    ev.Channel,
		UserID:    ev.User,
		FirstName: a.resolveUserName(ev.User),
		Text:      ev.Text,
		MessageID: ev.TimeStamp,
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	})
}

// handleAppMention converts an @mention in a channel into a text Event with
// the mention stripped.
func (a *Adapter) handleAppMention(ev *slackevents.AppMentionEvent) {
	if ev.User == a.botUserID {
		return
	}
	text := strings.TrimSpace(strings.Replace(ev.Text, "<@"+a.botUserID+">", "", 1))
	a.emit(transport.Event{
		Platform:  "slack",
		Kind:      transport.KindText,
		ChatID:    ev.Channel,
		UserID:    ev.User,
		FirstName: a.resolveUserName(ev.User),
		Text:      text,
		MessageID: ev.TimeStamp,
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	})
}

// handleInteraction converts a block action (button press) to a callback Event.
func (a *Adapter) handleInteraction(cb slackapi.InteractionCallback) {
	if cb.Type != slackapi.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	action := cb.ActionCallback.BlockActions[0]
	data := action.Value
	if data == "" {
		data = action.ActionID
	}
	messageID := cb.Container.MessageTs
	if messageID == "" {
		messageID = cb.Message.Timestamp
	}
	a.emit(transport.Event{
		Platform:   "slack",
		Kind:       transport.KindCallback,
		ChatID:     cb.Channel.ID,
		UserID:     cb.User.ID,
		UserName:   cb.User.Name,
		FirstName:  a.resolveUserName(cb.User.ID),
		Data:       data,
		MessageID:  messageID,
		CallbackID: cb.TriggerID,
		Timestamp:  time.Now(),
	})
}

// resolveUserName looks up a user's display name. Falls back to user ID.
func (a *Adapter) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
}

// buildMessageOptions renders text plus one actions block per menu row.
func buildMessageOptions(text string, menu transport.Menu) []slackapi.MsgOption {
	options := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if len(menu) == 0 {
		// A non-nil empty list clears buttons when editing.
		return append(options, slackapi.MsgOptionBlocks([]slackapi.Block{}...))
	}
	blocks := []slackapi.Block{
		slackapi.NewSectionBlock(slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false), nil, nil),
	}
	for i, row := range menu {
		var elems []slackapi.BlockElement
		for _, b := range row {
			if len(elems) == maxButtonsPerBlock {
				break
			}
			label := slackapi.NewTextBlockObject(slackapi.PlainTextType, b.Label, true, false)
			elems = append(elems, slackapi.NewButtonBlockElement(b.Action, b.Action, label))
		}
		if len(elems) > 0 {
			blocks = append(blocks, slackapi.NewActionBlock("row_"+strconv.Itoa(i), elems...))
		}
	}
	return append(options, slackapi.MsgOptionBlocks(blocks...))
}

func isAuthError(err error) bool {
	msg := err.Error()
	for _, code := range authErrors {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// parseSlackTimestamp converts a Slack timestamp (e.g., "1234567890.123456")
// to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	sec, _, _ := strings.Cut(ts, ".")
	n, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(n, 0)
}
