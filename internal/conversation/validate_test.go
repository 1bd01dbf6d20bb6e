package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/parlor/internal/schedule"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"89991234567", "+7 (999) 123-45-67", false},
		{"9991234567", "+7 (999) 123-45-67", false},
		{"+7 999 123-45-67", "+7 (999) 123-45-67", false},
		{"8 (999) 123 45 67", "+7 (999) 123-45-67", false},
		{"123", "", true},
		{"", "", true},
		{"899912345678", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrPhoneFormat) {
					t.Fatalf("NormalizePhone(%q) err = %v, want ErrPhoneFormat", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	if _, err := ValidateName("  Ол  "); !errors.Is(err, ErrNameTooShort) {
		t.Errorf("two-letter name err = %v", err)
	}
	got, err := ValidateName("  Оля ")
	if err != nil || got != "Оля" {
		t.Errorf("ValidateName = %q, %v", got, err)
	}
}

func TestParseBirthday(t *testing.T) {
	today := time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"15.06.1990", "1990-06-15", nil},
		{"15/06/1990", "1990-06-15", nil},
		{"1990-06-15", "1990-06-15", nil},
		{"5.6.1990", "1990-06-05", nil},
		{"01.01.2020", "", ErrTooYoung},
		{"01.01.2030", "", ErrBirthdayFuture},
		{"31.02.1990", "", ErrBirthdayFormat},
		{"вчера", "", ErrBirthdayFormat},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBirthday(tt.in, today)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseBirthday(%q) err = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBirthday(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseBirthday(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseBirthday_TenthBirthdayBoundary(t *testing.T) {
	today := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	// Ten calendar years is 3652 days here, short of 10*365.25.
	if _, err := ParseBirthday("16.10.2016", today); !errors.Is(err, ErrTooYoung) {
		t.Errorf("err = %v, want ErrTooYoung", err)
	}
	if _, err := ParseBirthday("14.10.2016", today); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestValidateEmail(t *testing.T) {
	for _, ok := range []string{"name@example.com", " a.b+c@mail.co.uk "} {
		if _, err := ValidateEmail(ok); err != nil {
			t.Errorf("ValidateEmail(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"name@", "name@example", "@example.com", "name example@x.ru"} {
		if _, err := ValidateEmail(bad); !errors.Is(err, ErrEmailFormat) {
			t.Errorf("ValidateEmail(%q) err = %v", bad, err)
		}
	}
}

func TestIsSkip(t *testing.T) {
	for _, w := range []string{"пропустить", "Пропустить", "SKIP", " - ", "нет"} {
		if !IsSkip(w) {
			t.Errorf("IsSkip(%q) = false", w)
		}
	}
	if IsSkip("да") {
		t.Error("IsSkip(да) = true")
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession("555")
	s.State = Registering{Step: StepEmail, Draft: Draft{Name: "Оля"}, Pending: &Pending{ServiceID: 1}}
	s.Reset()
	if _, ok := s.State.(MainMenu); !ok {
		t.Fatalf("state = %T, want MainMenu", s.State)
	}
	if s.State.Name() != "main_menu" {
		t.Errorf("name = %q", s.State.Name())
	}
}

func mustTime(t *testing.T, s string) schedule.TimeOfDay {
	t.Helper()
	v, err := schedule.ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}
