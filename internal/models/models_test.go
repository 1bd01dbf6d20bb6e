package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestTenant_Fields(t *testing.T) {
	typ := reflect.TypeOf(Tenant{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "NotificationsEnabled", "default:false")
	assertGormTag(t, typ, "Platform", "default:telegram")

	assertFieldType(t, typ, "ID", "string")
	assertFieldType(t, typ, "AdminContact", "string")
	assertFieldType(t, typ, "NotificationsEnabled", "bool")
}

func TestScheduleRule_UniquePerDay(t *testing.T) {
	typ := reflect.TypeOf(ScheduleRule{})

	assertGormTag(t, typ, "TenantID", "uniqueIndex:idx_schedule_day")
	assertGormTag(t, typ, "DayOfWeek", "uniqueIndex:idx_schedule_day")

	assertFieldType(t, typ, "StartTime", "*string")
	assertFieldType(t, typ, "EndTime", "*string")
}

func TestClient_MessengerIDUniquePerTenant(t *testing.T) {
	typ := reflect.TypeOf(Client{})

	assertGormTag(t, typ, "TenantID", "uniqueIndex:idx_client_messenger")
	assertGormTag(t, typ, "MessengerID", "uniqueIndex:idx_client_messenger")

	assertFieldType(t, typ, "MessengerID", "*string")
	assertFieldType(t, typ, "Email", "*string")
	assertFieldType(t, typ, "BirthDate", "*string")
}

func TestClient_Reachable(t *testing.T) {
	id := "42"
	empty := ""
	tests := []struct {
		name   string
		client Client
		want   bool
	}{
		{"linked and opted in", Client{MessengerID: &id, NotificationsEnabled: true}, true},
		{"opted out", Client{MessengerID: &id}, false},
		{"no messenger id", Client{NotificationsEnabled: true}, false},
		{"empty messenger id", Client{MessengerID: &empty, NotificationsEnabled: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.client.Reachable(); got != tt.want {
				t.Errorf("Reachable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppointment_Fields(t *testing.T) {
	typ := reflect.TypeOf(Appointment{})

	assertGormTag(t, typ, "Status", "default:confirmed")
	assertGormTag(t, typ, "Date", "index:idx_appt_day")
	assertGormTag(t, typ, "TenantID", "index:idx_appt_day")
	assertGormTag(t, typ, "Duration", "not null")
	assertGormTag(t, typ, "Client", "foreignKey:ClientID")
	assertGormTag(t, typ, "Service", "foreignKey:ServiceID")

	assertFieldType(t, typ, "Duration", "int")
	assertFieldType(t, typ, "ReminderSent", "bool")
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusCancelledByAdmin, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelledByAdmin, StatusCompleted, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusConfirmed, "bogus", false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{StatusConfirmed, StatusCancelled, StatusCancelledByAdmin, StatusCompleted} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}
	if ValidStatus("pending") {
		t.Error("ValidStatus(pending) = true")
	}
}

func TestService_PriceLabel(t *testing.T) {
	tests := map[float64]string{1500: "1500", 99.5: "99.5", 0: "0"}
	for price, want := range tests {
		if got := (Service{Price: price}).PriceLabel(); got != want {
			t.Errorf("PriceLabel(%v) = %q, want %q", price, got, want)
		}
	}
}
