package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/parlor/internal/metrics"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/transport"
)

func strp(s string) *string { return &s }

func connected(t *testing.T) *transport.MockAdapter {
	t.Helper()
	m := transport.NewMockAdapter()
	require.NoError(t, m.Connect(context.Background()))
	return m
}

func newDispatcher(t *testing.T, sender Sender, admin string) *Dispatcher {
	t.Helper()
	d, err := New(DispatcherOpts{TenantID: "anna", AdminContact: admin, Sender: sender})
	require.NoError(t, err)
	return d
}

type panicSender struct{}

func (panicSender) Send(context.Context, transport.OutboundMessage) (string, error) {
	panic("boom")
}

func TestNew_RequiresSender(t *testing.T) {
	_, err := New(DispatcherOpts{})
	require.Error(t, err)
}

func TestNotifyAdmin_Delivered(t *testing.T) {
	m := connected(t)
	d := newDispatcher(t, m, " 1001 ")

	before := testutil.ToFloat64(metrics.Notifications.WithLabelValues(string(KindTest), "delivered"))
	res := d.NotifyAdmin(context.Background(), Test())

	assert.True(t, res.Delivered)
	assert.NoError(t, res.Err)
	sent := m.SentTo("1001")
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Тестовое уведомление")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Notifications.WithLabelValues(string(KindTest), "delivered")))
}

func TestNotifyAdmin_MissingContactSkipped(t *testing.T) {
	for _, admin := range []string{"", "   ", "\t"} {
		m := connected(t)
		d := newDispatcher(t, m, admin)
		res := d.NotifyAdmin(context.Background(), Test())
		assert.False(t, res.Delivered)
		assert.Equal(t, SkipNoAdmin, res.Skipped)
		assert.Zero(t, m.SentCount())
	}
}

func TestNotifyAdmin_TransportErrorSwallowed(t *testing.T) {
	m := connected(t)
	m.FailSend(errors.New("chat not found"))
	d := newDispatcher(t, m, "1001")

	res := d.NotifyAdmin(context.Background(), Test())
	assert.False(t, res.Delivered)
	assert.Empty(t, res.Skipped)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "chat not found")
}

func TestNotifyAdmin_TimeoutBounded(t *testing.T) {
	m := connected(t)
	m.DelaySend(time.Second)
	d, err := New(DispatcherOpts{AdminContact: "1001", Sender: m, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	res := d.NotifyAdmin(context.Background(), Test())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestNotifyAdmin_PanicRecovered(t *testing.T) {
	d := newDispatcher(t, panicSender{}, "1001")
	res := d.NotifyAdmin(context.Background(), Test())
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "panicked")
}

func TestNotifyClient_Guards(t *testing.T) {
	tests := []struct {
		name   string
		client models.Client
		skip   string
	}{
		{"no messenger id", models.Client{NotificationsEnabled: true}, SkipNoMessengerID},
		{"blank messenger id", models.Client{MessengerID: strp(" "), NotificationsEnabled: true}, SkipNoMessengerID},
		{"opted out", models.Client{MessengerID: strp("555")}, SkipOptedOut},
		{"reachable", models.Client{MessengerID: strp("555"), NotificationsEnabled: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := connected(t)
			d := newDispatcher(t, m, "1001")
			res := d.NotifyClient(context.Background(), tt.client, AdminCancellation(models.Appointment{Date: "2026-10-19", Time: "10:00"}, models.Service{Name: "Стрижка"}))
			assert.Equal(t, tt.skip, res.Skipped)
			assert.Equal(t, tt.skip == "", res.Delivered)
			if tt.skip == "" {
				require.Len(t, m.SentTo("555"), 1)
			}
		})
	}
}

func TestNotify_EmptyMessageSkipped(t *testing.T) {
	m := connected(t)
	d := newDispatcher(t, m, "1001")
	res := d.NotifyAdmin(context.Background(), Message{Kind: KindTest, Text: "  "})
	assert.Equal(t, SkipEmpty, res.Skipped)
}

func TestSendOnce(t *testing.T) {
	m := connected(t)
	require.NoError(t, SendOnce(context.Background(), m, "1001", Test(), 0))
	assert.Len(t, m.SentTo("1001"), 1)

	assert.Error(t, SendOnce(context.Background(), m, " ", Test(), 0))

	m.FailSend(errors.New("unauthorized"))
	assert.Error(t, SendOnce(context.Background(), m, "1001", Test(), 0))
}

func TestFormatters(t *testing.T) {
	appt := models.Appointment{ID: 42, Date: "2026-10-19", Time: "10:00"}
	client := models.Client{Name: "Ольга Петрова", Phone: "+7 (999) 123-45-67", MessengerID: strp("555")}
	svc := models.Service{Name: "Стрижка", Price: 1500}

	nb := NewBooking(appt, client, svc)
	assert.Equal(t, KindNewBooking, nb.Kind)
	for _, want := range []string{"НОВАЯ ЗАПИСЬ", "Ольга Петрова", "+7 (999) 123-45-67", "Email: не указан", "1500₽", "2026-10-19", "10:00", "ID записи: 42"} {
		assert.Contains(t, nb.Text, want)
	}

	cc := ClientCancellation(appt, client, svc)
	assert.Equal(t, KindClientCancellation, cc.Kind)
	assert.Contains(t, cc.Text, "ЗАПИСЬ ОТМЕНЕНА")

	ac := AdminCancellation(appt, svc)
	assert.Equal(t, KindAdminCancellation, ac.Kind)
	assert.Contains(t, ac.Text, "2026-10-19 10:00")

	nc := NewClient(client)
	assert.Contains(t, nc.Text, "День рождения: не указан")
	assert.Contains(t, nc.Text, "ID в мессенджере: 555")

	cm := ClientMessage("Ольга", "555", "olga", "Можно перенести?")
	assert.Contains(t, cm.Text, "@olga")
	assert.True(t, strings.HasSuffix(cm.Text, "Можно перенести?"))
	assert.Contains(t, ClientMessage("Ольга", "555", "", "x").Text, "Username: нет")

	r := Reminder(appt, svc, "Салон Анна")
	assert.Equal(t, KindReminder, r.Kind)
	assert.Contains(t, r.Text, "Салон Анна")
}
