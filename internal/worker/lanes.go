package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/zulandar/parlor/internal/conversation"
	"github.com/zulandar/parlor/internal/metrics"
	"github.com/zulandar/parlor/internal/transport"
)

// lane serializes one user's events. Its session lives as long as the
// generation that created it. The queue is unbounded so a slow user never
// holds up the dispatcher.
type lane struct {
	mu      sync.Mutex
	queue   []transport.Event
	closed  bool
	ready   chan struct{}
	warned  bool
	session *conversation.Session
}

func newLane(userID string) *lane {
	return &lane{
		ready:   make(chan struct{}, 1),
		session: conversation.NewSession(userID),
	}
}

// push appends ev and reports the backlog length.
func (l *lane) push(ev transport.Event) int {
	l.mu.Lock()
	l.queue = append(l.queue, ev)
	n := len(l.queue)
	l.mu.Unlock()
	l.wake()
	return n
}

// close lets the lane drain what is queued and then stop.
func (l *lane) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wake()
}

func (l *lane) wake() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// next blocks until an event is queued. It reports false once the lane is
// closed and empty.
func (l *lane) next() (transport.Event, bool) {
	for {
		l.mu.Lock()
		if len(l.queue) > 0 {
			ev := l.queue[0]
			l.queue[0] = transport.Event{}
			l.queue = l.queue[1:]
			l.mu.Unlock()
			return ev, true
		}
		if l.closed {
			l.mu.Unlock()
			return transport.Event{}, false
		}
		l.mu.Unlock()
		<-l.ready
	}
}

// receive pumps inbound events into per-user lanes until ctx is cancelled
// or the transport closes the stream. It returns after every lane has
// drained; a non-nil error is fatal.
func (w *Worker) receive(ctx context.Context, g *generation, inbound <-chan transport.Event) error {
	lanes := make(map[string]*lane)
	var wg sync.WaitGroup
	defer func() {
		for _, l := range lanes {
			l.close()
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-inbound:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrInboundClosed
			}
			if ev.UserID == "" {
				continue
			}
			metrics.InboundEvents.WithLabelValues(string(ev.Kind)).Inc()

			l, ok := lanes[ev.UserID]
			if !ok {
				l = newLane(ev.UserID)
				lanes[ev.UserID] = l
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						ev, ok := l.next()
						if !ok {
							return
						}
						w.handle(g, l.session, ev)
					}
				}()
			}
			if n := l.push(ev); n > w.laneBuf && !l.warned {
				l.warned = true
				w.log.Warn().Str("user", ev.UserID).Int("backlog", n).Msg("user lane falling behind")
			}
		}
	}
}

// handle runs one event through the conversation machine and delivers the
// replies. Failures are contained to this event: a panic or handler error
// is logged and the user gets one generic failure reply.
func (w *Worker) handle(g *generation, s *conversation.Session, ev transport.Event) {
	ctx := g.workCtx
	logger := w.log.With().Str("user", ev.UserID).Str("kind", string(ev.Kind)).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Str("panic", fmt.Sprint(r)).Msg("event handler panicked")
			s.Reset()
			w.sendFailure(ctx, g, ev)
		}
	}()

	ev.IsAdmin = w.isAdmin(ev.UserID)
	if ev.Kind == transport.KindCallback && ev.CallbackID != "" {
		if err := g.adapter.AnswerCallback(ctx, ev.CallbackID, ""); err != nil {
			logger.Debug().Err(err).Msg("answer callback")
		}
	}

	replies, err := g.machine.Handle(ctx, s, ev)
	if err != nil {
		logger.Error().Err(err).Str("state", s.State.Name()).Msg("event handling failed")
		s.Reset()
		w.sendFailure(ctx, g, ev)
		return
	}
	w.deliver(ctx, g, ev, replies)
}

// deliver sends replies in order. For a menu selection the first reply
// replaces the message whose button was pressed.
func (w *Worker) deliver(ctx context.Context, g *generation, ev transport.Event, replies []conversation.Reply) {
	for i, r := range replies {
		if i == 0 && ev.Kind == transport.KindCallback && ev.MessageID != "" {
			err := g.adapter.Edit(ctx, transport.EditMessage{
				ChatID:    ev.ChatID,
				MessageID: ev.MessageID,
				Text:      r.Text,
				Menu:      r.Menu,
			})
			if err == nil {
				continue
			}
			w.log.Debug().Err(err).Str("user", ev.UserID).Msg("edit failed, sending instead")
		}
		_, err := g.adapter.Send(ctx, transport.OutboundMessage{
			ChatID: ev.ChatID,
			UserID: ev.UserID,
			Text:   r.Text,
			Menu:   r.Menu,
		})
		if err != nil {
			w.log.Warn().Err(err).Str("user", ev.UserID).Msg("send reply")
			return
		}
	}
}

// sendFailure makes a single attempt to tell the user something went wrong.
func (w *Worker) sendFailure(ctx context.Context, g *generation, ev transport.Event) {
	_, err := g.adapter.Send(ctx, transport.OutboundMessage{
		ChatID: ev.ChatID,
		UserID: ev.UserID,
		Text:   conversation.GenericFailure,
	})
	if err != nil {
		w.log.Warn().Err(err).Str("user", ev.UserID).Msg("send failure reply")
	}
}
