package conversation

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/zulandar/parlor/internal/schedule"
)

// MinAge is the youngest age, in years, a client may register with.
const MinAge = 10

var (
	ErrNameTooShort   = errors.New("name must be at least 3 characters")
	ErrPhoneFormat    = errors.New("phone must have 10 or 11 digits")
	ErrBirthdayFormat = errors.New("unrecognised date format")
	ErrBirthdayFuture = errors.New("birthday is in the future")
	ErrTooYoung       = errors.New("client is younger than the minimum age")
	ErrEmailFormat    = errors.New("invalid email address")
)

// birthdayLayouts are tried in order.
var birthdayLayouts = []string{
	"02.01.2006", "02/01/2006", "2006-01-02",
	"2.1.2006", "2/1/2006",
}

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var skipWords = map[string]bool{"пропустить": true, "skip": true, "-": true, "нет": true}

// IsSkip reports whether text asks to skip an optional step.
func IsSkip(text string) bool {
	return skipWords[strings.ToLower(strings.TrimSpace(text))]
}

// ValidateName returns the trimmed name, or ErrNameTooShort.
func ValidateName(text string) (string, error) {
	name := strings.TrimSpace(text)
	if utf8.RuneCountInString(name) < 3 {
		return "", ErrNameTooShort
	}
	return name, nil
}

// NormalizePhone strips everything but digits and formats the result as
// "+7 (XXX) XXX-XX-XX". A leading 8 becomes 7; a bare 10-digit number gets
// a 7 prefix.
func NormalizePhone(text string) (string, error) {
	var digits strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		d = "7" + d
	case len(d) == 11 && d[0] == '8':
		d = "7" + d[1:]
	case len(d) == 11:
	default:
		return "", ErrPhoneFormat
	}
	return "+7 (" + d[1:4] + ") " + d[4:7] + "-" + d[7:9] + "-" + d[9:11], nil
}

// ParseBirthday parses text with the accepted layouts and checks it against
// today: the date may not be in the future and the age, measured as days
// since birth over 365.25, must be at least MinAge. It returns the date as
// YYYY-MM-DD.
func ParseBirthday(text string, today time.Time) (string, error) {
	text = strings.TrimSpace(text)
	var (
		born time.Time
		ok   bool
	)
	for _, layout := range birthdayLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			born, ok = t, true
			break
		}
	}
	if !ok {
		return "", ErrBirthdayFormat
	}
	day := schedule.Truncate(today)
	if born.After(day) {
		return "", ErrBirthdayFuture
	}
	age := day.Sub(born).Hours() / 24 / 365.25
	if age < MinAge {
		return "", ErrTooYoung
	}
	return schedule.FormatDate(born), nil
}

// ValidateEmail returns the trimmed address, or ErrEmailFormat.
func ValidateEmail(text string) (string, error) {
	email := strings.TrimSpace(text)
	if !emailRe.MatchString(email) {
		return "", ErrEmailFormat
	}
	return email, nil
}

// isBlank reports whether s contains only whitespace.
func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
