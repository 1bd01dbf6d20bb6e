package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/parlor/internal/config"
	"github.com/zulandar/parlor/internal/db"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/store"
	"github.com/zulandar/parlor/internal/transport"
)

type mockFactory struct {
	mu       sync.Mutex
	adapters []*transport.MockAdapter
	sendErr  error
}

func (f *mockFactory) build(platform, credential string) (transport.Adapter, error) {
	if platform == "fax" {
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a := transport.NewMockAdapter()
	if f.sendErr != nil {
		a.FailSend(f.sendErr)
	}
	f.adapters = append(f.adapters, a)
	return a, nil
}

func (f *mockFactory) all() []*transport.MockAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*transport.MockAdapter(nil), f.adapters...)
}

func TestNewAdapter_Platforms(t *testing.T) {
	for _, p := range []string{"telegram", "discord"} {
		a, err := newAdapter(p, "token")
		if err != nil || a == nil {
			t.Errorf("newAdapter(%s) = %v, %v", p, a, err)
		}
	}
	if _, err := newAdapter("slack", "xoxb-1,xapp-1"); err != nil {
		t.Errorf("slack with both tokens: %v", err)
	}
	if _, err := newAdapter("slack", "xoxb-1"); err == nil {
		t.Error("slack without app token should fail")
	}
	if _, err := newAdapter("telegram", " "); err == nil {
		t.Error("blank telegram token should fail")
	}
	if _, err := newAdapter("icq", "token"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("unknown platform error = %v", err)
	}
}

func TestRunMigrate_CreatesSchemaAndTenants(t *testing.T) {
	gormDB, err := db.Connect("sqlite", filepath.Join(t.TempDir(), "parlor.db"))
	if err != nil {
		t.Fatal(err)
	}
	buf := new(bytes.Buffer)
	ctx := context.Background()

	if err := runMigrate(ctx, buf, gormDB, "discord", []string{"anna", "bella"}); err != nil {
		t.Fatalf("runMigrate: %v", err)
	}
	// Second run is a no-op.
	if err := runMigrate(ctx, buf, gormDB, "discord", []string{"anna"}); err != nil {
		t.Fatalf("second runMigrate: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Migrated 5 tables") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(out, "Tenant bella ready (platform discord)") {
		t.Errorf("output = %s", out)
	}
	rules, err := store.New(gormDB).GetSchedule(ctx, "anna")
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != models.DaysPerWeek {
		t.Errorf("anna has %d schedule rules, want %d", len(rules), models.DaysPerWeek)
	}
}

func TestRunSlots(t *testing.T) {
	gormDB, err := db.ConnectMemory()
	if err != nil {
		t.Fatal(err)
	}
	st := store.New(gormDB)
	ctx := context.Background()
	if _, err := st.EnsureTenant(ctx, "anna", "telegram"); err != nil {
		t.Fatal(err)
	}
	from, to := "10:00", "12:00"
	week := make([]models.ScheduleRule, models.DaysPerWeek)
	for d := range week {
		week[d] = models.ScheduleRule{DayOfWeek: d}
	}
	week[0] = models.ScheduleRule{DayOfWeek: 0, Working: true, StartTime: &from, EndTime: &to}
	if err := st.ReplaceSchedule(ctx, "anna", week); err != nil {
		t.Fatal(err)
	}
	svc := models.Service{TenantID: "anna", Name: "Маникюр", Duration: 60, Active: true}
	if err := st.AddService(ctx, &svc); err != nil {
		t.Fatal(err)
	}

	buf := new(bytes.Buffer)
	// 2026-10-19 is a Monday.
	if err := runSlots(ctx, buf, st, "anna", "2026-10-19", svc.ID, 30); err != nil {
		t.Fatalf("runSlots: %v", err)
	}
	want := "2026-10-19  Маникюр (60 min)\n  10:00\n  10:30\n  11:00\n  11:30\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	buf.Reset()
	if err := runSlots(ctx, buf, st, "anna", "2026-10-20", svc.ID, 30); err != nil {
		t.Fatalf("runSlots: %v", err)
	}
	if !strings.Contains(buf.String(), "day off") {
		t.Errorf("Tuesday output = %q", buf.String())
	}

	if err := runSlots(ctx, buf, st, "anna", "20.10.2026", svc.ID, 30); err == nil {
		t.Error("expected error for malformed date")
	}
	if err := runSlots(ctx, buf, st, "anna", "2026-10-19", 999, 30); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown service error = %v, want ErrNotFound", err)
	}
}

func TestRunNotifyTest(t *testing.T) {
	ctx := context.Background()

	f := &mockFactory{}
	buf := new(bytes.Buffer)
	if err := runNotifyTest(ctx, buf, f.build, "telegram", "tok", "1001", time.Second); err != nil {
		t.Fatalf("runNotifyTest: %v", err)
	}
	a := f.all()[0]
	if sent := a.SentTo("1001"); len(sent) != 1 || !strings.Contains(sent[0].Text, "Тестовое уведомление") {
		t.Errorf("sent = %+v", sent)
	}
	if !a.Closed() {
		t.Error("adapter not closed after test send")
	}
	if !strings.Contains(buf.String(), "sent to 1001 via telegram") {
		t.Errorf("output = %q", buf.String())
	}

	if err := runNotifyTest(ctx, buf, f.build, "fax", "tok", "1001", time.Second); err == nil {
		t.Error("expected error for unsupported platform")
	}

	failing := &mockFactory{sendErr: errors.New("chat not found")}
	err := runNotifyTest(ctx, buf, failing.build, "telegram", "tok", "1001", time.Second)
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("send failure error = %v", err)
	}
	if !failing.all()[0].Closed() {
		t.Error("adapter not closed after failed send")
	}
}

func TestRunServe_StartsEnabledTenantsAndStopsOnCancel(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "parlor.db")
	seedDB, err := db.Connect("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(seedDB); err != nil {
		t.Fatal(err)
	}
	st := store.New(seedDB)
	ctx := context.Background()
	tn, err := st.EnsureTenant(ctx, "anna", "telegram")
	if err != nil {
		t.Fatal(err)
	}
	tn.BotToken = "tok"
	tn.NotificationsEnabled = true
	if err := st.UpdateTenant(ctx, tn); err != nil {
		t.Fatal(err)
	}
	if _, err := st.EnsureTenant(ctx, "idle", "telegram"); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
database:
  driver: sqlite
  dsn: %q
http:
  addr: "127.0.0.1:0"
bot:
  stop_timeout: 2s
`, dsn)))
	if err != nil {
		t.Fatal(err)
	}

	f := &mockFactory{}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- runServe(runCtx, cfg, f.build) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		if as := f.all(); len(as) == 1 && as[0].Connected() {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("enabled tenant's bot never connected (%d adapters)", len(f.all()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
	if !f.all()[0].Closed() {
		t.Error("bot transport not closed on shutdown")
	}
	if n := len(f.all()); n != 1 {
		t.Errorf("%d transports built, want 1 (idle tenant must not start)", n)
	}
}
