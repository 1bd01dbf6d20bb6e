package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/parlor/internal/notify"
	"github.com/zulandar/parlor/internal/schedule"
	"github.com/zulandar/parlor/internal/store"
)

// sendReminders notifies clients of confirmed appointments starting
// tomorrow through the lookahead window and marks each one reminded.
// Clients that cannot be reached are marked too, so they are not retried
// every run; transport failures are retried on the next run.
func (w *Worker) sendReminders(ctx context.Context, n *notify.Dispatcher) (int, error) {
	days := w.opts.Reminders.LookaheadDays
	if days <= 0 {
		days = 1
	}
	today := schedule.Truncate(w.now())
	from := schedule.FormatDate(today.AddDate(0, 0, 1))
	to := schedule.FormatDate(today.AddDate(0, 0, days))

	appts, err := w.opts.Store.ListUpcomingUnreminded(ctx, w.opts.TenantID, from, to)
	if err != nil {
		return 0, fmt.Errorf("worker: reminders: %w", err)
	}
	if len(appts) == 0 {
		return 0, nil
	}
	salon := ""
	t, err := w.opts.Store.GetTenant(ctx, w.opts.TenantID)
	switch {
	case err == nil:
		salon = t.SalonName
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("worker: reminders: %w", err)
	}

	sent := 0
	for _, a := range appts {
		res := n.NotifyClient(ctx, a.Client, notify.Reminder(a, a.Service, salon))
		if !res.Delivered && res.Skipped == "" {
			continue
		}
		if err := w.opts.Store.MarkReminded(ctx, w.opts.TenantID, a.ID); err != nil {
			return sent, fmt.Errorf("worker: reminders: %w", err)
		}
		if res.Delivered {
			sent++
		}
	}
	w.log.Info().Int("due", len(appts)).Int("sent", sent).Msg("reminders processed")
	return sent, nil
}

// RunReminders performs one reminder pass immediately using the running
// generation's transport.
func (w *Worker) RunReminders(ctx context.Context) (int, error) {
	w.mu.Lock()
	g := w.gen
	running := w.state == Running
	w.mu.Unlock()
	if !running || g == nil || g.notifier == nil {
		return 0, fmt.Errorf("worker: reminders: worker is not running")
	}
	return w.sendReminders(ctx, g.notifier)
}
