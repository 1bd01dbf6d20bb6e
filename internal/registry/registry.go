// Package registry tracks the running bot worker of every tenant and
// serializes their lifecycle operations.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/config"
	"github.com/zulandar/parlor/internal/metrics"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/notify"
	"github.com/zulandar/parlor/internal/store"
	"github.com/zulandar/parlor/internal/transport"
	"github.com/zulandar/parlor/internal/worker"
	"golang.org/x/sync/errgroup"
)

// DefaultStopTimeout bounds how long Stop waits for a worker to drain.
const DefaultStopTimeout = 8 * time.Second

// StopResult reports how a Stop call ended.
type StopResult int

const (
	NotRunning StopResult = iota
	Stopped
	Abandoned
)

func (r StopResult) String() string {
	switch r {
	case NotRunning:
		return "not_running"
	case Stopped:
		return "stopped"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("StopResult(%d)", int(r))
}

// Store is the persistence the registry and its workers need.
type Store interface {
	worker.Store
	ListEnabledTenants(ctx context.Context) ([]models.Tenant, error)
}

// Opts holds parameters for creating a Registry.
type Opts struct {
	Store     Store
	Factory   transport.Factory
	Bot       config.BotConfig
	Reminders config.ReminderConfig
	Now       func() time.Time // passed to workers; defaults to time.Now
}

// Status describes one tenant's worker.
type Status struct {
	TenantID   string    `json:"tenant_id"`
	Running    bool      `json:"running"`
	State      string    `json:"state"`
	Platform   string    `json:"platform,omitempty"`
	Generation string    `json:"generation,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

type handle struct {
	w        *worker.Worker
	platform string
}

// Registry maps tenants to their workers. mu guards the maps only; the
// per-tenant op locks serialize Start and Stop for one tenant without
// making other tenants wait.
type Registry struct {
	store       Store
	factory     transport.Factory
	bot         config.BotConfig
	reminders   config.ReminderConfig
	now         func() time.Time
	stopTimeout time.Duration

	mu      sync.Mutex
	handles map[string]*handle
	ops     map[string]*opLock
}

// opLock is a per-tenant lock. refs counts holders and waiters; the entry
// is dropped when it reaches zero.
type opLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Registry.
func New(opts Opts) (*Registry, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("registry: transport factory is required")
	}
	r := &Registry{
		store:       opts.Store,
		factory:     opts.Factory,
		bot:         opts.Bot,
		reminders:   opts.Reminders,
		now:         opts.Now,
		stopTimeout: opts.Bot.StopTimeout,
		handles:     make(map[string]*handle),
		ops:         make(map[string]*opLock),
	}
	if r.stopTimeout <= 0 {
		r.stopTimeout = DefaultStopTimeout
	}
	if r.bot.Platform == "" {
		r.bot.Platform = "telegram"
	}
	return r, nil
}

// lockTenant takes the tenant's op lock and returns its release.
func (r *Registry) lockTenant(tenantID string) (unlock func()) {
	r.mu.Lock()
	l, ok := r.ops[tenantID]
	if !ok {
		l = &opLock{}
		r.ops[tenantID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.ops, tenantID)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) get(tenantID string) *handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[tenantID]
}

// platform returns the tenant's messaging platform, or the configured
// default when the tenant has none.
func (r *Registry) platform(ctx context.Context, tenantID string) (string, error) {
	t, err := r.store.GetTenant(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return r.bot.Platform, nil
	}
	if err != nil {
		return "", fmt.Errorf("registry: load tenant %s: %w", tenantID, err)
	}
	if t.Platform == "" {
		return r.bot.Platform, nil
	}
	return t.Platform, nil
}

// Start replaces any running worker of the tenant with a new one and
// launches it. It returns once the launch is dispatched; an empty
// credential is the only startup failure reported here; transport errors
// show up in Status.
func (r *Registry) Start(ctx context.Context, tenantID, credential, adminContact string) error {
	defer r.lockTenant(tenantID)()
	return r.startLocked(ctx, tenantID, credential, adminContact)
}

func (r *Registry) startLocked(ctx context.Context, tenantID, credential, adminContact string) error {
	if _, err := r.stopLocked(ctx, tenantID); err != nil {
		return err
	}
	if strings.TrimSpace(credential) == "" {
		metrics.WorkerStarts.WithLabelValues("no_credential").Inc()
		return worker.ErrNoCredential
	}
	platform, err := r.platform(ctx, tenantID)
	if err != nil {
		return err
	}
	w, err := worker.New(worker.Opts{
		TenantID:      tenantID,
		Platform:      platform,
		Credential:    credential,
		AdminContact:  adminContact,
		Factory:       r.factory,
		Store:         r.store,
		Now:           r.now,
		SlotStep:      r.bot.SlotStepMinutes,
		BookingDays:   r.bot.BookingDays,
		NotifyTimeout: r.bot.NotifyTimeout,
		NotifyRate:    r.bot.NotifyRate,
		NotifyBurst:   r.bot.NotifyBurst,
		Reminders:     r.reminders,
	})
	if err != nil {
		return fmt.Errorf("registry: start %s: %w", tenantID, err)
	}
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	r.mu.Lock()
	r.handles[tenantID] = &handle{w: w, platform: platform}
	r.mu.Unlock()
	log.Info().Str("tenant", tenantID).Str("platform", platform).Msg("bot worker launched")
	return nil
}

// Stop stops the tenant's worker, waiting up to the stop timeout. On
// timeout the worker is abandoned; either way the tenant is left without a
// registered worker.
func (r *Registry) Stop(ctx context.Context, tenantID string) (StopResult, error) {
	defer r.lockTenant(tenantID)()
	return r.stopLocked(ctx, tenantID)
}

func (r *Registry) stopLocked(ctx context.Context, tenantID string) (StopResult, error) {
	r.mu.Lock()
	h, ok := r.handles[tenantID]
	delete(r.handles, tenantID)
	r.mu.Unlock()
	if !ok {
		metrics.WorkerStops.WithLabelValues(NotRunning.String()).Inc()
		return NotRunning, nil
	}

	start := time.Now()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.stopTimeout)
	defer cancel()
	err := h.w.Stop(stopCtx)
	metrics.StopDuration.Observe(time.Since(start).Seconds())

	result := Stopped
	if err != nil {
		result = Abandoned
		log.Warn().Err(err).Str("tenant", tenantID).Dur("timeout", r.stopTimeout).Msg("bot worker abandoned")
	} else {
		log.Info().Str("tenant", tenantID).Msg("bot worker stopped")
	}
	metrics.WorkerStops.WithLabelValues(result.String()).Inc()
	return result, nil
}

// Restart stops the tenant's worker, if any, and starts a new one.
func (r *Registry) Restart(ctx context.Context, tenantID, credential, adminContact string) error {
	defer r.lockTenant(tenantID)()
	return r.startLocked(ctx, tenantID, credential, adminContact)
}

// StopAll stops every registered worker concurrently.
func (r *Registry) StopAll(ctx context.Context) map[string]StopResult {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var (
		mu      sync.Mutex
		results = make(map[string]StopResult, len(ids))
		g       errgroup.Group
	)
	for _, id := range ids {
		g.Go(func() error {
			res, err := r.Stop(ctx, id)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("stop all workers")
	}
	return results
}

// Status reports the tenant's worker. A tenant without a registered worker
// is reported as stopped.
func (r *Registry) Status(tenantID string) Status {
	h := r.get(tenantID)
	if h == nil {
		return Status{TenantID: tenantID, State: worker.Stopped.String()}
	}
	return statusOf(tenantID, h)
}

func statusOf(tenantID string, h *handle) Status {
	info := h.w.Info()
	st := Status{
		TenantID:   tenantID,
		Running:    info.State == worker.Running,
		State:      info.State.String(),
		Platform:   h.platform,
		Generation: info.Generation,
		StartedAt:  info.StartedAt,
	}
	if info.LastError != nil {
		st.LastError = info.LastError.Error()
	}
	return st
}

// List reports every registered worker ordered by tenant.
func (r *Registry) List() []Status {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	handles := make(map[string]*handle, len(r.handles))
	for id, h := range r.handles {
		ids = append(ids, id)
		handles[id] = h
	}
	r.mu.Unlock()

	sort.Strings(ids)
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		out = append(out, statusOf(id, handles[id]))
	}
	return out
}

// NotifyClient delivers msg to a client through the tenant's running
// worker. Without one the result is skipped.
func (r *Registry) NotifyClient(ctx context.Context, tenantID string, c models.Client, msg notify.Message) notify.Result {
	h := r.get(tenantID)
	if h == nil {
		return notify.Result{Skipped: worker.SkipNotRunning}
	}
	return h.w.NotifyClient(ctx, c, msg)
}

// SendTestNotification sends the test message to contact through a
// one-shot transport, independent of any running worker.
func (r *Registry) SendTestNotification(ctx context.Context, platform, credential, contact string) error {
	if strings.TrimSpace(credential) == "" {
		return worker.ErrNoCredential
	}
	if strings.TrimSpace(contact) == "" {
		return fmt.Errorf("registry: test notification: %s", notify.SkipNoAdmin)
	}
	if platform == "" {
		platform = r.bot.Platform
	}
	adapter, err := r.factory(platform, credential)
	if err != nil {
		return fmt.Errorf("registry: test notification: %w", err)
	}
	defer adapter.Close()
	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("registry: test notification: connect: %w", err)
	}
	return notify.SendOnce(ctx, adapter, contact, notify.Test(), r.bot.NotifyTimeout)
}

// StartEnabled starts a worker for every tenant with notifications enabled
// and a credential configured. It returns how many were launched.
func (r *Registry) StartEnabled(ctx context.Context) (int, error) {
	tenants, err := r.store.ListEnabledTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("registry: start enabled: %w", err)
	}
	var errs []error
	started := 0
	for _, t := range tenants {
		if err := r.Start(ctx, t.ID, t.BotToken, t.AdminContact); err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", t.ID, err))
			continue
		}
		started++
	}
	log.Info().Int("started", started).Int("enabled", len(tenants)).Msg("enabled tenants launched")
	return started, errors.Join(errs...)
}

// ApplyProfile reconciles the tenant's worker with a saved profile change.
// A disabled or credential-less profile stops the worker. A change to the
// credential, platform, admin contact or enabled flag restarts it, as does
// an enabled profile with no running worker.
func (r *Registry) ApplyProfile(ctx context.Context, before, after models.Tenant) error {
	if !after.NotificationsEnabled || strings.TrimSpace(after.BotToken) == "" {
		_, err := r.Stop(ctx, after.ID)
		return err
	}
	changed := before.BotToken != after.BotToken ||
		before.NotificationsEnabled != after.NotificationsEnabled ||
		before.AdminContact != after.AdminContact ||
		before.Platform != after.Platform
	if !changed && r.get(after.ID) != nil {
		return nil
	}
	return r.Restart(ctx, after.ID, after.BotToken, after.AdminContact)
}
