// Package worker runs one tenant's messaging bot: it owns the transport
// connection, routes inbound events into per-user lanes that drive the
// conversation machine, and sends appointment reminders on a schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/config"
	"github.com/zulandar/parlor/internal/conversation"
	"github.com/zulandar/parlor/internal/metrics"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/notify"
	"github.com/zulandar/parlor/internal/transport"
)

// State is a worker lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrNoCredential is returned by Start when the tenant has no bot
	// credential configured.
	ErrNoCredential = errors.New("worker: bot credential is empty")

	// ErrAlreadyStarted is returned by Start when the worker is not stopped.
	ErrAlreadyStarted = errors.New("worker: already started")

	// ErrInboundClosed is the fatal error recorded when the transport closes
	// its event stream while the worker is running.
	ErrInboundClosed = errors.New("worker: inbound stream closed unexpectedly")
)

// SkipNotRunning is the notify skip reason when no transport is connected.
const SkipNotRunning = "bot is not running"

// DefaultLaneBuffer is the per-user backlog past which a lane logs a
// warning. Lanes never block the dispatcher.
const DefaultLaneBuffer = 32

// Store is the persistence a worker needs. *store.Store satisfies it.
type Store interface {
	conversation.Store
	ListUpcomingUnreminded(ctx context.Context, tenantID, from, to string) ([]models.Appointment, error)
	MarkReminded(ctx context.Context, tenantID string, id uint) error
}

// Opts holds parameters for creating a Worker.
type Opts struct {
	TenantID     string
	Platform     string
	Credential   string
	AdminContact string
	Factory      transport.Factory
	Store        Store

	Now         func() time.Time // defaults to time.Now
	SlotStep    int
	BookingDays int
	LaneBuffer  int // defaults to DefaultLaneBuffer

	NotifyTimeout time.Duration
	NotifyRate    float64
	NotifyBurst   int

	Reminders config.ReminderConfig
}

// Info is a point-in-time view of a worker.
type Info struct {
	State      State
	Generation string
	StartedAt  time.Time
	LastError  error
}

// Worker is one tenant's bot. A stopped worker may be started again; each
// start begins with an empty session table.
type Worker struct {
	opts      Opts
	now       func() time.Time
	laneBuf   int
	bookingMu sync.Mutex
	log       zerolog.Logger

	mu        sync.Mutex
	state     State
	gen       *generation
	startedAt time.Time
	lastErr   error
}

// generation is the state of one start-to-stop cycle.
type generation struct {
	id      string
	adapter transport.Adapter

	cancel     context.CancelFunc // stops accepting events
	workCtx    context.Context    // in-flight handling, survives cancel
	workCancel context.CancelFunc // aborts in-flight handling on abandon

	ready chan struct{} // closed when Running or failed to start
	done  chan struct{} // closed on return to Stopped
	err   error         // fatal error, valid after done

	machine  *conversation.Machine
	notifier *notify.Dispatcher
	cron     *cron.Cron
}

// New creates a Worker in the Stopped state.
func New(opts Opts) (*Worker, error) {
	if opts.TenantID == "" {
		return nil, fmt.Errorf("worker: tenant id is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("worker: transport factory is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("worker: store is required")
	}
	if opts.Reminders.Enabled && opts.Reminders.Cron != "" {
		if _, err := cron.ParseStandard(opts.Reminders.Cron); err != nil {
			return nil, fmt.Errorf("worker: reminder schedule %q: %w", opts.Reminders.Cron, err)
		}
	}
	w := &Worker{
		opts:    opts,
		now:     opts.Now,
		laneBuf: opts.LaneBuffer,
		log:     log.With().Str("tenant", opts.TenantID).Str("platform", opts.Platform).Logger(),
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.laneBuf <= 0 {
		w.laneBuf = DefaultLaneBuffer
	}
	return w, nil
}

// TenantID returns the tenant this worker serves.
func (w *Worker) TenantID() string { return w.opts.TenantID }

// Start validates the credential, moves the worker to Starting and connects
// in the background. An empty credential is reported synchronously as
// ErrNoCredential; connection failures are reported through WaitStarted,
// Err and Info. ctx bounds only the connection attempt.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Stopped {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	if strings.TrimSpace(w.opts.Credential) == "" {
		w.lastErr = ErrNoCredential
		w.mu.Unlock()
		metrics.WorkerStarts.WithLabelValues("no_credential").Inc()
		return ErrNoCredential
	}

	runCtx, cancel := context.WithCancel(context.Background())
	workCtx, workCancel := context.WithCancel(context.Background())
	g := &generation{
		id:         uuid.NewString(),
		cancel:     cancel,
		workCtx:    workCtx,
		workCancel: workCancel,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	w.gen = g
	w.state = Starting
	w.lastErr = nil
	w.mu.Unlock()

	w.log.Info().Str("generation", g.id).Msg("worker starting")
	go w.boot(ctx, runCtx, g)
	return nil
}

// boot connects the transport and, on success, runs the receive loop until
// the generation is cancelled or the transport fails.
func (w *Worker) boot(startCtx, runCtx context.Context, g *generation) {
	connectCtx, stopConnect := context.WithCancel(runCtx)
	unhook := context.AfterFunc(startCtx, stopConnect)
	err := w.connect(connectCtx, g)
	unhook()
	stopConnect()
	if runCtx.Err() != nil {
		// Stop was called while connecting.
		w.teardown(g, nil, false)
		return
	}
	if err != nil {
		metrics.WorkerStarts.WithLabelValues("failed").Inc()
		w.log.Error().Err(err).Str("generation", g.id).Msg("worker failed to start")
		w.teardown(g, err, false)
		return
	}

	inbound, err := g.adapter.Listen(runCtx)
	if err != nil {
		metrics.WorkerStarts.WithLabelValues("failed").Inc()
		err = fmt.Errorf("worker: listen: %w", err)
		w.log.Error().Err(err).Msg("worker failed to start")
		w.teardown(g, err, false)
		return
	}

	if g.cron != nil {
		g.cron.Start()
	}
	w.mu.Lock()
	if w.state == Starting {
		w.state = Running
	}
	w.startedAt = w.now()
	w.mu.Unlock()
	close(g.ready)
	metrics.WorkerStarts.WithLabelValues("ok").Inc()
	metrics.WorkersRunning.Inc()
	w.log.Info().Str("generation", g.id).Msg("worker running")

	w.teardown(g, w.receive(runCtx, g, inbound), true)
}

// connect builds the adapter and the per-generation collaborators.
func (w *Worker) connect(ctx context.Context, g *generation) error {
	adapter, err := w.opts.Factory(w.opts.Platform, w.opts.Credential)
	if err != nil {
		return fmt.Errorf("worker: build %s transport: %w", w.opts.Platform, err)
	}
	g.adapter = adapter
	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("worker: connect: %w", err)
	}

	g.notifier, err = notify.New(notify.DispatcherOpts{
		TenantID:     w.opts.TenantID,
		AdminContact: w.opts.AdminContact,
		Sender:       adapter,
		Timeout:      w.opts.NotifyTimeout,
		Rate:         w.opts.NotifyRate,
		Burst:        w.opts.NotifyBurst,
	})
	if err != nil {
		return err
	}
	g.machine, err = conversation.NewMachine(conversation.MachineOpts{
		TenantID:    w.opts.TenantID,
		Store:       w.opts.Store,
		Notifier:    g.notifier,
		Now:         w.now,
		SlotStep:    w.opts.SlotStep,
		BookingDays: w.opts.BookingDays,
		BookingLock: &w.bookingMu,
	})
	if err != nil {
		return err
	}
	if w.opts.Reminders.Enabled && w.opts.Reminders.Cron != "" {
		g.cron = cron.New()
		_, err := g.cron.AddFunc(w.opts.Reminders.Cron, func() {
			if _, err := w.sendReminders(g.workCtx, g.notifier); err != nil {
				w.log.Error().Err(err).Msg("reminder run failed")
			}
		})
		if err != nil {
			return fmt.Errorf("worker: schedule reminders: %w", err)
		}
	}
	return nil
}

// teardown returns the worker to Stopped: it halts reminders, drains lanes
// (done by receive), closes the transport and discards the generation.
func (w *Worker) teardown(g *generation, runErr error, wasRunning bool) {
	if g.cron != nil {
		<-g.cron.Stop().Done()
	}
	if g.adapter != nil {
		if err := g.adapter.Close(); err != nil {
			w.log.Warn().Err(err).Msg("close transport")
		}
	}
	g.cancel()
	g.workCancel()

	w.mu.Lock()
	w.state = Stopped
	if runErr != nil {
		w.lastErr = runErr
	}
	if w.gen == g {
		w.gen = nil
	}
	w.mu.Unlock()

	g.err = runErr
	close(g.done)
	select {
	case <-g.ready:
	default:
		close(g.ready)
	}
	if wasRunning {
		metrics.WorkersRunning.Dec()
	}
	if runErr != nil && wasRunning {
		w.log.Error().Err(runErr).Str("generation", g.id).Msg("worker stopped with error")
	} else {
		w.log.Info().Str("generation", g.id).Msg("worker stopped")
	}
}

// Stop stops accepting events, waits for in-flight handling to finish and
// closes the transport. If ctx expires first, in-flight handling is
// cancelled and ctx's error is returned; the worker still reaches Stopped
// on its own. Stopping a stopped worker is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	g := w.gen
	if w.state == Stopped || g == nil {
		w.mu.Unlock()
		return nil
	}
	w.state = Stopping
	w.mu.Unlock()

	g.cancel()
	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		g.workCancel()
		return fmt.Errorf("worker: stop: %w", ctx.Err())
	}
}

// WaitStarted blocks until the current start attempt either reaches Running
// (nil) or fails (its error).
func (w *Worker) WaitStarted(ctx context.Context) error {
	w.mu.Lock()
	g := w.gen
	lastErr := w.lastErr
	w.mu.Unlock()
	if g == nil {
		if lastErr != nil {
			return lastErr
		}
		return fmt.Errorf("worker: not started")
	}
	select {
	case <-g.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-g.done:
		return g.err
	default:
		return nil
	}
}

// Done returns a channel closed when the current generation returns to
// Stopped. For a stopped worker the channel is already closed.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.gen.done
}

// Err returns the error that last stopped the worker, if any.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Info returns a snapshot for status reporting.
func (w *Worker) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	info := Info{State: w.state, StartedAt: w.startedAt, LastError: w.lastErr}
	if w.gen != nil {
		info.Generation = w.gen.id
	}
	return info
}

// NotifyClient sends msg to c through the running transport.
func (w *Worker) NotifyClient(ctx context.Context, c models.Client, msg notify.Message) notify.Result {
	w.mu.Lock()
	g := w.gen
	running := w.state == Running
	w.mu.Unlock()
	if !running || g == nil || g.notifier == nil {
		return notify.Result{Skipped: SkipNotRunning}
	}
	return g.notifier.NotifyClient(ctx, c, msg)
}

// isAdmin reports whether userID is the tenant's administrator.
func (w *Worker) isAdmin(userID string) bool {
	admin := strings.TrimSpace(w.opts.AdminContact)
	return admin != "" && userID == admin
}
