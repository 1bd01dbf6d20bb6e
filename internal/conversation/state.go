// Package conversation implements the per-user booking dialogue: browsing
// services, picking a date and time, registering, confirming and cancelling
// bookings, and relaying messages to the administrator.
package conversation

import "time"

// State is the current position of a session in the dialogue. The concrete
// types below are the only implementations.
type State interface {
	Name() string
	isState()
}

// MainMenu is the idle state every flow returns to.
type MainMenu struct{}

// BrowsingServices shows the bookable services.
type BrowsingServices struct{}

// SelectingDate offers upcoming dates for a chosen service.
type SelectingDate struct {
	ServiceID uint
}

// SelectingTime offers free slots for a chosen service and date.
type SelectingTime struct {
	ServiceID uint
	Date      string
}

// ConfirmingBooking waits for the client to confirm the chosen slot.
type ConfirmingBooking struct {
	ServiceID uint
	Date      string
	Time      string
}

// Step is a registration step.
type Step int

const (
	StepName Step = iota
	StepPhone
	StepBirthday
	StepEmail
)

func (s Step) String() string {
	switch s {
	case StepName:
		return "name"
	case StepPhone:
		return "phone"
	case StepBirthday:
		return "birthday"
	case StepEmail:
		return "email"
	}
	return "unknown"
}

// Draft collects registration answers.
type Draft struct {
	Name      string
	Phone     string
	BirthDate *string
	Email     *string
}

// Pending is the slot a new client picked before being asked to register.
type Pending struct {
	ServiceID uint
	Date      string
	Time      string
}

// Registering walks a new client through the registration steps.
type Registering struct {
	Step    Step
	Draft   Draft
	Pending *Pending
}

// ContactingAdmin waits for a free-text message to relay.
type ContactingAdmin struct{}

func (MainMenu) Name() string          { return "main_menu" }
func (BrowsingServices) Name() string  { return "browsing_services" }
func (SelectingDate) Name() string     { return "selecting_date" }
func (SelectingTime) Name() string     { return "selecting_time" }
func (ConfirmingBooking) Name() string { return "confirming_booking" }
func (r Registering) Name() string     { return "registering_" + r.Step.String() }
func (ContactingAdmin) Name() string   { return "contacting_admin" }

func (MainMenu) isState()          {}
func (BrowsingServices) isState()  {}
func (SelectingDate) isState()     {}
func (SelectingTime) isState()     {}
func (ConfirmingBooking) isState() {}
func (Registering) isState()       {}
func (ContactingAdmin) isState()   {}

// Session is one end user's dialogue within a tenant. It is owned by a
// single worker lane and is not safe for concurrent use.
type Session struct {
	UserID    string
	State     State
	UpdatedAt time.Time
}

// NewSession returns a session in the main menu.
func NewSession(userID string) *Session {
	return &Session{UserID: userID, State: MainMenu{}, UpdatedAt: time.Now()}
}

// Reset clears every flow-scoped field by returning to the main menu.
func (s *Session) Reset() {
	s.State = MainMenu{}
}
