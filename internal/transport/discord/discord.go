// Package discord implements the transport Adapter for Discord using the
// Gateway WebSocket. Menus are rendered as message-component buttons.
package discord

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/transport"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// buttonsPerRow and maxRows are Discord's component limits.
	buttonsPerRow = 5
	maxRows       = 5
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	AddHandler(handler interface{}) func()
}

// Adapter implements transport.Adapter for Discord via the Gateway WebSocket.
type Adapter struct {
	sess          session
	botToken      string
	botUserID     string
	mu            sync.Mutex
	connected     bool
	closed        bool
	inbound       chan transport.Event
	done          chan struct{}
	senders       sync.WaitGroup
	cancelFunc    context.CancelFunc
	removeHandler []func()
	pending       map[string]*discordgo.Interaction // interaction ID -> interaction awaiting ack
	baseBackoff   time.Duration
	maxBackoff    time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string // Discord bot token
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	a := &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		inbound:     make(chan transport.Event, 100),
		done:        make(chan struct{}),
		pending:     make(map[string]*discordgo.Interaction),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		a.sess = dg
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		log.Info().Str("platform", "discord").Str("bot", r.User.Username).Msg("connected")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		log.Warn().Str("platform", "discord").Msg("gateway disconnected, discordgo will reconnect")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

// Listen registers message and interaction handlers and returns the inbound
// channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan transport.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancelFunc = cancel
	a.removeHandler = append(a.removeHandler,
		a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			a.handleMessage(m)
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			a.handleInteraction(i)
		}),
	)

	// Stop accepting events once the caller's context ends.
	go func() {
		<-listenCtx.Done()
		a.mu.Lock()
		a.unregisterLocked()
		a.mu.Unlock()
	}()
	return a.inbound, nil
}

func (a *Adapter) unregisterLocked() {
	for _, remove := range a.removeHandler {
		remove()
	}
	a.removeHandler = nil
}

// Send delivers a message to a channel, or to the user's DM channel when
// ChatID is empty.
func (a *Adapter) Send(ctx context.Context, msg transport.OutboundMessage) (string, error) {
	if err := a.checkConnected(); err != nil {
		return "", err
	}

	channelID := msg.ChatID
	if channelID == "" {
		if msg.UserID == "" {
			return "", fmt.Errorf("discord: no channel or user specified")
		}
		var dm *discordgo.Channel
		err := a.retryOnRateLimit(ctx, func() error {
			var apiErr error
			dm, apiErr = a.sess.UserChannelCreate(msg.UserID)
			return apiErr
		})
		if err != nil {
			return "", fmt.Errorf("discord: open dm with %s: %w", msg.UserID, err)
		}
		channelID = dm.ID
	}

	data := &discordgo.MessageSend{
		Content:    msg.Text,
		Components: buildComponents(msg.Menu),
	}
	var sent *discordgo.Message
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		sent, apiErr = a.sess.ChannelMessageSendComplex(channelID, data)
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return sent.ID, nil
}

// Edit replaces the content and components of a sent message.
func (a *Adapter) Edit(ctx context.Context, msg transport.EditMessage) error {
	if err := a.checkConnected(); err != nil {
		return err
	}
	edit := discordgo.NewMessageEdit(msg.ChatID, msg.MessageID).SetContent(msg.Text)
	components := buildComponents(msg.Menu)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit.Components = &components

	err := a.retryOnRateLimit(ctx, func() error {
		_, apiErr := a.sess.ChannelMessageEditComplex(edit)
		return apiErr
	})
	if err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a component interaction. Discord requires an
// acknowledgement within three seconds or the client shows an error.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	a.mu.Lock()
	in, ok := a.pending[callbackID]
	delete(a.pending, callbackID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if err := a.sess.InteractionRespond(in, resp); err != nil {
		return fmt.Errorf("discord: answer interaction: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
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
	a.unregisterLocked()
	close(a.done)
	sess := a.sess
	a.mu.Unlock()

	a.senders.Wait()
	close(a.inbound)
	if sess != nil {
		return sess.Close()
	}
	return nil
}

// SetBotUserID sets the bot user ID (used for self-message filtering).
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

func (a *Adapter) checkConnected() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return fmt.Errorf("discord: not connected")
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

// handleMessage converts a Discord message event to a text Event.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)
	a.emit(transport.Event{
		Platform:  "discord",
		Kind:      transport.KindText,
		ChatID:    m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		FirstName: m.Author.GlobalName,
		Text:      m.Content,
		MessageID: m.ID,
		Timestamp: ts,
	})
}

// handleInteraction converts a button press into a callback Event.
func (a *Adapter) handleInteraction(i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}
	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	messageID := ""
	if i.Message != nil {
		messageID = i.Message.ID
	}

	a.mu.Lock()
	a.pending[i.ID] = i.Interaction
	a.mu.Unlock()

	a.emit(transport.Event{
		Platform:   "discord",
		Kind:       transport.KindCallback,
		ChatID:     i.ChannelID,
		UserID:     user.ID,
		UserName:   user.Username,
		FirstName:  user.GlobalName,
		Data:       i.MessageComponentData().CustomID,
		MessageID:  messageID,
		CallbackID: i.ID,
		Timestamp:  time.Now(),
	})
}

// buildComponents lays the menu out as action rows of buttons. Discord caps
// rows at five buttons and messages at five rows, so menus are repacked and
// anything past 25 buttons is dropped.
func buildComponents(menu transport.Menu) []discordgo.MessageComponent {
	var buttons []discordgo.MessageComponent
	for _, row := range menu {
		for _, b := range row {
			buttons = append(buttons, discordgo.Button{
				Label:    truncate(b.Label, 80),
				Style:    discordgo.SecondaryButton,
				CustomID: b.Action,
			})
		}
	}
	if len(buttons) == 0 {
		return nil
	}
	if limit := buttonsPerRow * maxRows; len(buttons) > limit {
		log.Warn().Str("platform", "discord").Int("buttons", len(buttons)).Msg("menu truncated to component limit")
		buttons = buttons[:limit]
	}
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += buttonsPerRow {
		end := start + buttonsPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons[start:end]})
	}
	return rows
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		log.Warn().Str("platform", "discord").Int("attempt", attempt+1).Dur("wait", wait).Msg("rate limited, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
