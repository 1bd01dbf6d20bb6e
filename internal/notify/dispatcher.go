// Package notify delivers best-effort notifications to a tenant's
// administrator and clients. Failures are reported in a Result and logged,
// never propagated.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/metrics"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/transport"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single send.
	DefaultTimeout = 10 * time.Second
	// DefaultRate is the sustained sends per second allowed per dispatcher.
	DefaultRate = 20.0
	// DefaultBurst is the limiter burst.
	DefaultBurst = 5
)

// Skip reasons.
const (
	SkipNoAdmin       = "admin contact not configured"
	SkipNoMessengerID = "client has no messenger id"
	SkipOptedOut      = "client notifications disabled"
	SkipEmpty         = "empty message"
)

// Sender is the part of a transport adapter the dispatcher needs.
type Sender interface {
	Send(ctx context.Context, msg transport.OutboundMessage) (string, error)
}

// Result reports the outcome of one notification. Callers may ignore it.
type Result struct {
	Delivered bool
	Skipped   string
	Err       error
}

func (r Result) outcome() string {
	switch {
	case r.Delivered:
		return "delivered"
	case r.Skipped != "":
		return "skipped"
	default:
		return "failed"
	}
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	TenantID     string
	AdminContact string
	Sender       Sender
	Timeout      time.Duration // default DefaultTimeout
	Rate         float64       // sends per second, default DefaultRate
	Burst        int           // default DefaultBurst
}

// Dispatcher sends notifications for one tenant.
type Dispatcher struct {
	tenantID string
	admin    string
	sender   Sender
	timeout  time.Duration
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// New creates a Dispatcher.
func New(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("notify: sender is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Rate <= 0 {
		opts.Rate = DefaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	return &Dispatcher{
		tenantID: opts.TenantID,
		admin:    strings.TrimSpace(opts.AdminContact),
		sender:   opts.Sender,
		timeout:  opts.Timeout,
		limiter:  rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		log:      log.With().Str("tenant", opts.TenantID).Logger(),
	}, nil
}

// AdminContact returns the trimmed administrator contact, possibly empty.
func (d *Dispatcher) AdminContact() string {
	return d.admin
}

// NotifyAdmin sends msg to the tenant administrator. A missing contact is
// a skip, not an error.
func (d *Dispatcher) NotifyAdmin(ctx context.Context, msg Message) Result {
	if d.admin == "" {
		return d.record(msg.Kind, "admin", Result{Skipped: SkipNoAdmin})
	}
	return d.record(msg.Kind, "admin", d.send(ctx, d.admin, msg))
}

// NotifyClient sends msg to a client through the bot. Clients without a
// messenger id or who opted out are skipped.
func (d *Dispatcher) NotifyClient(ctx context.Context, c models.Client, msg Message) Result {
	switch {
	case c.MessengerID == nil || strings.TrimSpace(*c.MessengerID) == "":
		return d.record(msg.Kind, "client", Result{Skipped: SkipNoMessengerID})
	case !c.NotificationsEnabled:
		return d.record(msg.Kind, "client", Result{Skipped: SkipOptedOut})
	}
	return d.record(msg.Kind, "client", d.send(ctx, strings.TrimSpace(*c.MessengerID), msg))
}

func (d *Dispatcher) send(ctx context.Context, to string, msg Message) (res Result) {
	if strings.TrimSpace(msg.Text) == "" {
		return Result{Skipped: SkipEmpty}
	}
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("notify: send panicked: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return Result{Err: fmt.Errorf("notify: rate limit: %w", err)}
	}
	if _, err := d.sender.Send(ctx, transport.OutboundMessage{UserID: to, Text: msg.Text}); err != nil {
		return Result{Err: fmt.Errorf("notify: send %s to %s: %w", msg.Kind, to, err)}
	}
	return Result{Delivered: true}
}

func (d *Dispatcher) record(kind Kind, audience string, res Result) Result {
	metrics.Notifications.WithLabelValues(string(kind), res.outcome()).Inc()
	switch {
	case res.Err != nil:
		d.log.Error().Err(res.Err).Str("kind", string(kind)).Str("to", audience).Msg("notification failed")
	case res.Skipped != "":
		d.log.Warn().Str("kind", string(kind)).Str("to", audience).Str("reason", res.Skipped).Msg("notification skipped")
	default:
		d.log.Info().Str("kind", string(kind)).Str("to", audience).Msg("notification sent")
	}
	return res
}

// SendOnce delivers a single message through a sender without a
// Dispatcher, used for test notifications that bypass running workers.
func SendOnce(ctx context.Context, s Sender, contact string, msg Message, timeout time.Duration) error {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return fmt.Errorf("notify: %s", SkipNoAdmin)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := s.Send(ctx, transport.OutboundMessage{UserID: contact, Text: msg.Text})
	outcome := "delivered"
	if err != nil {
		outcome = "failed"
		err = fmt.Errorf("notify: send %s: %w", msg.Kind, err)
	}
	metrics.Notifications.WithLabelValues(string(msg.Kind), outcome).Inc()
	return err
}
