package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zulandar/parlor/internal/metrics"
	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/notify"
	"github.com/zulandar/parlor/internal/schedule"
	"github.com/zulandar/parlor/internal/store"
	"github.com/zulandar/parlor/internal/transport"
)

// DefaultBookingDays is how many calendar days, starting today, are offered
// for booking.
const DefaultBookingDays = 14

// Store is the persistence the dialogue needs. *store.Store satisfies it.
type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListServices(ctx context.Context, tenantID string, activeOnly bool) ([]models.Service, error)
	GetService(ctx context.Context, tenantID string, id uint) (*models.Service, error)
	GetClientByMessengerID(ctx context.Context, tenantID, messengerID string) (*models.Client, error)
	AddClient(ctx context.Context, c *models.Client) error
	Availability(ctx context.Context, tenantID string, date time.Time, serviceID uint, step int) (*store.Availability, error)
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	GetAppointment(ctx context.Context, tenantID string, id uint) (*models.Appointment, error)
	ListAppointmentsByClient(ctx context.Context, tenantID string, clientID uint, fromDate string) ([]models.Appointment, error)
	ListAppointmentsByDate(ctx context.Context, tenantID, date string, statuses ...string) ([]models.Appointment, error)
	SetStatus(ctx context.Context, tenantID string, id uint, status string) (*models.Appointment, error)
}

// Notifier delivers best-effort notifications. *notify.Dispatcher
// satisfies it.
type Notifier interface {
	NotifyAdmin(ctx context.Context, msg notify.Message) notify.Result
	NotifyClient(ctx context.Context, c models.Client, msg notify.Message) notify.Result
	AdminContact() string
}

// Reply is one outbound message produced by the machine.
type Reply struct {
	Text string
	Menu transport.Menu
}

// MachineOpts holds parameters for creating a Machine.
type MachineOpts struct {
	TenantID    string
	Store       Store
	Notifier    Notifier
	Now         func() time.Time // defaults to time.Now
	SlotStep    int              // minutes, defaults to schedule.DefaultStep
	BookingDays int              // defaults to DefaultBookingDays
	// BookingLock serializes the availability re-check and insert of
	// confirmations. Optional.
	BookingLock sync.Locker
}

// Machine advances sessions of one tenant. It holds no per-user state and
// may be shared by all of the tenant's lanes.
type Machine struct {
	tenantID    string
	store       Store
	notifier    Notifier
	now         func() time.Time
	step        int
	bookingDays int
	bookingLock sync.Locker
	log         zerolog.Logger
}

// NewMachine creates a Machine.
func NewMachine(opts MachineOpts) (*Machine, error) {
	if opts.TenantID == "" {
		return nil, fmt.Errorf("conversation: tenant id is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("conversation: store is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("conversation: notifier is required")
	}
	m := &Machine{
		tenantID:    opts.TenantID,
		store:       opts.Store,
		notifier:    opts.Notifier,
		now:         opts.Now,
		step:        opts.SlotStep,
		bookingDays: opts.BookingDays,
		bookingLock: opts.BookingLock,
		log:         log.With().Str("tenant", opts.TenantID).Logger(),
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.step <= 0 {
		m.step = schedule.DefaultStep
	}
	if m.bookingDays <= 0 {
		m.bookingDays = DefaultBookingDays
	}
	if m.bookingLock == nil {
		m.bookingLock = &sync.Mutex{}
	}
	return m, nil
}

// Handle advances s by one inbound event and returns the replies to send.
// User mistakes produce replies, not errors; an error means the event could
// not be processed and the caller should send GenericFailure.
func (m *Machine) Handle(ctx context.Context, s *Session, ev transport.Event) ([]Reply, error) {
	s.UpdatedAt = m.now()
	if ev.Kind == transport.KindCallback {
		return m.handleCallback(ctx, s, ev)
	}
	return m.handleText(ctx, s, ev)
}

func one(text string, menu transport.Menu) []Reply {
	return []Reply{{Text: text, Menu: menu}}
}

func (m *Machine) today() time.Time {
	return schedule.Truncate(m.now())
}

func (m *Machine) handleText(ctx context.Context, s *Session, ev transport.Event) ([]Reply, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "/start" {
		s.Reset()
		return m.welcome(ctx, ev)
	}
	switch st := s.State.(type) {
	case Registering:
		return m.register(ctx, s, st, ev)
	case ContactingAdmin:
		return m.relayToAdmin(ctx, s, ev)
	}
	return one(textUseMenu, mainMenu(ev.IsAdmin)), nil
}

func (m *Machine) welcome(ctx context.Context, ev transport.Event) ([]Reply, error) {
	c, err := m.store.GetClientByMessengerID(ctx, m.tenantID, ev.UserID)
	switch {
	case err == nil:
		return one(fmt.Sprintf(textWelcomeBackFmt, c.Name), mainMenu(ev.IsAdmin)), nil
	case errors.Is(err, store.ErrNotFound):
		return one(textWelcome, mainMenu(ev.IsAdmin)), nil
	default:
		return nil, err
	}
}

func (m *Machine) handleCallback(ctx context.Context, s *Session, ev transport.Event) ([]Reply, error) {
	data := strings.TrimSpace(ev.Data)
	switch data {
	case ActionMainMenu:
		s.Reset()
		return one(textMainMenu, mainMenu(ev.IsAdmin)), nil
	case ActionBook:
		return m.showServices(ctx, s)
	case ActionMyBookings:
		s.Reset()
		return m.myBookings(ctx, ev)
	case ActionServices:
		s.Reset()
		return m.servicesList(ctx)
	case ActionContacts:
		s.Reset()
		return m.contacts(ctx)
	case ActionContactAdmin:
		s.State = ContactingAdmin{}
		return one(textContactPrompt, transport.Menu{transport.Row(button("◀️ Отмена", ActionMainMenu))}), nil
	case ActionAdmin:
		if !ev.IsAdmin {
			return one(textNoAccess, mainMenu(false)), nil
		}
		s.Reset()
		return one(textAdminPanel, transport.Menu{
			transport.Row(button("📅 Расписание на сегодня", ActionAdminToday)),
			backTo(ActionMainMenu),
		}), nil
	case ActionAdminToday:
		if !ev.IsAdmin {
			return one(textNoAccess, mainMenu(false)), nil
		}
		return m.adminToday(ctx)
	case ActionConfirm:
		return m.confirm(ctx, s, ev)
	}

	switch {
	case strings.HasPrefix(data, PrefixService):
		id, ok := parseID(data, PrefixService)
		if !ok {
			break
		}
		return m.selectService(ctx, s, id)
	case strings.HasPrefix(data, PrefixDate):
		return m.selectDate(ctx, s, strings.TrimPrefix(data, PrefixDate), ev.IsAdmin)
	case strings.HasPrefix(data, PrefixTime):
		return m.selectTime(ctx, s, ev, strings.TrimPrefix(data, PrefixTime))
	case strings.HasPrefix(data, PrefixCancel):
		id, ok := parseID(data, PrefixCancel)
		if !ok {
			break
		}
		return m.clientCancel(ctx, s, ev, id)
	case strings.HasPrefix(data, PrefixAdminCancel):
		id, ok := parseID(data, PrefixAdminCancel)
		if !ok {
			break
		}
		return m.adminCancel(ctx, s, ev, id)
	}
	m.log.Debug().Str("user", ev.UserID).Str("data", data).Msg("unknown callback")
	s.Reset()
	return one(textUnknownAction, mainMenu(ev.IsAdmin)), nil
}

func parseID(data, prefix string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimPrefix(data, prefix), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// --- Booking flow ---

func (m *Machine) showServices(ctx context.Context, s *Session) ([]Reply, error) {
	services, err := m.store.ListServices(ctx, m.tenantID, true)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		s.Reset()
		return one(textNoServices, transport.Menu{backTo(ActionMainMenu)}), nil
	}
	s.State = BrowsingServices{}
	return one(textChooseService, servicesMenu(services)), nil
}

func (m *Machine) selectService(ctx context.Context, s *Session, id uint) ([]Reply, error) {
	svc, err := m.store.GetService(ctx, m.tenantID, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !svc.Active) {
		s.Reset()
		return one(textServiceNotFound, transport.Menu{backTo(ActionBook)}), nil
	}
	if err != nil {
		return nil, err
	}
	s.State = SelectingDate{ServiceID: svc.ID}
	return one(textChooseDate, datesMenu(m.today(), m.bookingDays)), nil
}

// serviceInFlow returns the service chosen earlier in the booking flow.
func serviceInFlow(st State) (uint, bool) {
	switch v := st.(type) {
	case SelectingDate:
		return v.ServiceID, true
	case SelectingTime:
		return v.ServiceID, true
	case ConfirmingBooking:
		return v.ServiceID, true
	}
	return 0, false
}

func (m *Machine) selectDate(ctx context.Context, s *Session, raw string, isAdmin bool) ([]Reply, error) {
	serviceID, ok := serviceInFlow(s.State)
	if !ok {
		s.Reset()
		return one(textIncomplete, transport.Menu{transport.Row(button("📅 Записаться", ActionBook))}), nil
	}
	today := m.today()
	date, err := schedule.ParseDate(raw)
	if err != nil {
		s.State = SelectingDate{ServiceID: serviceID}
		return one(textBadDate, datesMenu(today, m.bookingDays)), nil
	}
	if schedule.IsPast(date, today) {
		s.State = SelectingDate{ServiceID: serviceID}
		return one(textPastDate, datesMenu(today, m.bookingDays)), nil
	}
	return m.showSlots(ctx, s, serviceID, date, "", isAdmin)
}

// showSlots lists free slots for the service on date. prefix, when set, is
// prepended to the prompt.
func (m *Machine) showSlots(ctx context.Context, s *Session, serviceID uint, date time.Time, prefix string, isAdmin bool) ([]Reply, error) {
	av, err := m.store.Availability(ctx, m.tenantID, date, serviceID, m.step)
	if errors.Is(err, store.ErrNotFound) {
		s.Reset()
		return one(textServiceNotFound, transport.Menu{backTo(ActionBook)}), nil
	}
	if err != nil {
		return nil, err
	}
	if !av.Working {
		s.Reset()
		return one(textDayOff, mainMenu(isAdmin)), nil
	}
	if len(av.Slots) == 0 {
		s.State = SelectingDate{ServiceID: serviceID}
		return one(textNoSlots, datesMenu(m.today(), m.bookingDays)), nil
	}
	s.State = SelectingTime{ServiceID: serviceID, Date: av.Date}
	text := fmt.Sprintf(textChooseTimeFmt, av.Date)
	if prefix != "" {
		text = prefix + "\n\n" + text
	}
	return one(text, slotsMenu(serviceID, av.Slots)), nil
}

func (m *Machine) selectTime(ctx context.Context, s *Session, ev transport.Event, raw string) ([]Reply, error) {
	st, ok := s.State.(SelectingTime)
	if !ok {
		s.Reset()
		return one(textIncomplete, transport.Menu{transport.Row(button("📅 Записаться", ActionBook))}), nil
	}
	tod, err := schedule.ParseTimeOfDay(raw)
	if err != nil {
		return m.slotsAgain(ctx, s, st, textIncomplete, ev.IsAdmin)
	}
	date, _ := schedule.ParseDate(st.Date)
	av, err := m.store.Availability(ctx, m.tenantID, date, st.ServiceID, m.step)
	if errors.Is(err, store.ErrNotFound) {
		s.Reset()
		return one(textServiceNotFound, transport.Menu{backTo(ActionBook)}), nil
	}
	if err != nil {
		return nil, err
	}
	if !containsSlot(av.Slots, tod) {
		return m.slotsAgain(ctx, s, st, fmt.Sprintf(textSlotTakenFmt, tod), ev.IsAdmin)
	}

	_, err = m.store.GetClientByMessengerID(ctx, m.tenantID, ev.UserID)
	if errors.Is(err, store.ErrNotFound) {
		s.State = Registering{
			Step:    StepName,
			Pending: &Pending{ServiceID: st.ServiceID, Date: st.Date, Time: tod.String()},
		}
		return one(textRegStart, nil), nil
	}
	if err != nil {
		return nil, err
	}
	s.State = ConfirmingBooking{ServiceID: st.ServiceID, Date: st.Date, Time: tod.String()}
	return one(confirmText(*av.Service, st.Date, tod.String()), confirmMenu()), nil
}

func (m *Machine) slotsAgain(ctx context.Context, s *Session, st SelectingTime, prefix string, isAdmin bool) ([]Reply, error) {
	date, err := schedule.ParseDate(st.Date)
	if err != nil {
		s.Reset()
		return one(textIncomplete, mainMenu(isAdmin)), nil
	}
	return m.showSlots(ctx, s, st.ServiceID, date, prefix, isAdmin)
}

func containsSlot(slots []schedule.TimeOfDay, t schedule.TimeOfDay) bool {
	for _, s := range slots {
		if s == t {
			return true
		}
	}
	return false
}

func (m *Machine) confirm(ctx context.Context, s *Session, ev transport.Event) ([]Reply, error) {
	st, ok := s.State.(ConfirmingBooking)
	if !ok {
		s.Reset()
		return one(textIncomplete, mainMenu(ev.IsAdmin)), nil
	}
	if date, err := schedule.ParseDate(st.Date); err != nil || schedule.IsPast(date, m.today()) {
		s.Reset()
		return one(textPastDate, transport.Menu{transport.Row(button("📅 Записаться", ActionBook))}), nil
	}
	svc, err := m.store.GetService(ctx, m.tenantID, st.ServiceID)
	if errors.Is(err, store.ErrNotFound) {
		s.Reset()
		return one(textServiceNotFound, mainMenu(ev.IsAdmin)), nil
	}
	if err != nil {
		return nil, err
	}
	client, err := m.store.GetClientByMessengerID(ctx, m.tenantID, ev.UserID)
	if errors.Is(err, store.ErrNotFound) {
		s.State = Registering{Step: StepName, Pending: &Pending{ServiceID: st.ServiceID, Date: st.Date, Time: st.Time}}
		return one(textRegStart, nil), nil
	}
	if err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		TenantID:  m.tenantID,
		ClientID:  client.ID,
		ServiceID: svc.ID,
		Date:      st.Date,
		Time:      st.Time,
		Duration:  svc.Duration,
		Status:    models.StatusConfirmed,
		Notes:     "Запись через бота",
	}
	m.bookingLock.Lock()
	err = m.store.CreateAppointment(ctx, appt)
	m.bookingLock.Unlock()
	if errors.Is(err, store.ErrSlotTaken) {
		metrics.Bookings.WithLabelValues("slot_taken").Inc()
		return m.slotsAgain(ctx, s, SelectingTime{ServiceID: st.ServiceID, Date: st.Date}, fmt.Sprintf(textSlotTakenFmt, st.Time), ev.IsAdmin)
	}
	if err != nil {
		metrics.Bookings.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.Bookings.WithLabelValues("confirmed").Inc()
	m.log.Info().Uint("appointment", appt.ID).Str("date", appt.Date).Str("time", appt.Time).Msg("booking confirmed")

	m.notifier.NotifyAdmin(ctx, notify.NewBooking(*appt, *client, *svc))
	s.Reset()
	text := fmt.Sprintf("✅ Запись подтверждена!\n\n"+
		"Спасибо, %s!\n"+
		"📅 %s в %s\n"+
		"💇 %s\n\n"+
		"Я напомню вам за день до визита.", client.Name, appt.Date, appt.Time, svc.Name)
	return one(text, transport.Menu{
		transport.Row(button("📋 Мои записи", ActionMyBookings)),
		toMenuRow(),
	}), nil
}

// --- Registration ---

func (m *Machine) register(ctx context.Context, s *Session, st Registering, ev transport.Event) ([]Reply, error) {
	text := ev.Text
	switch st.Step {
	case StepName:
		name, err := ValidateName(text)
		if err != nil {
			return one(textBadName, nil), nil
		}
		st.Draft.Name = name
		st.Step = StepPhone
		s.State = st
		return one(textRegPhone, nil), nil

	case StepPhone:
		phone, err := NormalizePhone(text)
		if err != nil {
			return one(textBadPhone, nil), nil
		}
		st.Draft.Phone = phone
		st.Step = StepBirthday
		s.State = st
		return one(textRegBirthday, nil), nil

	case StepBirthday:
		if !IsSkip(text) {
			born, err := ParseBirthday(text, m.now())
			switch {
			case errors.Is(err, ErrBirthdayFuture):
				return one(textFutureBday, nil), nil
			case errors.Is(err, ErrTooYoung):
				return one(textTooYoung, nil), nil
			case err != nil:
				return one(textBadBirthday, nil), nil
			}
			st.Draft.BirthDate = &born
		}
		st.Step = StepEmail
		s.State = st
		return one(textRegEmail, nil), nil

	case StepEmail:
		if !IsSkip(text) {
			email, err := ValidateEmail(text)
			if err != nil {
				return one(textBadEmail, nil), nil
			}
			st.Draft.Email = &email
		}
		return m.finishRegistration(ctx, s, st, ev)
	}
	s.Reset()
	return one(textMainMenu, mainMenu(ev.IsAdmin)), nil
}

func (m *Machine) finishRegistration(ctx context.Context, s *Session, st Registering, ev transport.Event) ([]Reply, error) {
	messengerID := ev.UserID
	client := &models.Client{
		TenantID:             m.tenantID,
		Name:                 st.Draft.Name,
		Phone:                st.Draft.Phone,
		Email:                st.Draft.Email,
		BirthDate:            st.Draft.BirthDate,
		MessengerID:          &messengerID,
		Username:             ev.UserName,
		NotificationsEnabled: true,
		Notes:                "Зарегистрирован через бота " + m.now().Format("02.01.2006"),
	}
	if err := m.store.AddClient(ctx, client); err != nil {
		return nil, err
	}
	m.log.Info().Uint("client", client.ID).Msg("client registered")
	m.notifier.NotifyAdmin(ctx, notify.NewClient(*client))

	replies := one(registrationSummary(client), nil)
	if p := st.Pending; p != nil {
		svc, err := m.store.GetService(ctx, m.tenantID, p.ServiceID)
		if err == nil && svc.Active {
			s.State = ConfirmingBooking{ServiceID: p.ServiceID, Date: p.Date, Time: p.Time}
			return append(replies, Reply{Text: confirmText(*svc, p.Date, p.Time), Menu: confirmMenu()}), nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	s.Reset()
	return append(replies, Reply{Text: textMainMenu, Menu: mainMenu(ev.IsAdmin)}), nil
}

// --- Contacting the administrator ---

func (m *Machine) relayToAdmin(ctx context.Context, s *Session, ev transport.Event) ([]Reply, error) {
	if isBlank(ev.Text) {
		return one(textEmptyMessage, nil), nil
	}
	if m.notifier.AdminContact() == "" {
		s.Reset()
		return one(textNoAdmin, mainMenu(ev.IsAdmin)), nil
	}
	name := ev.DisplayName()
	c, err := m.store.GetClientByMessengerID(ctx, m.tenantID, ev.UserID)
	if err == nil {
		name = c.Name
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	res := m.notifier.NotifyAdmin(ctx, notify.ClientMessage(name, ev.UserID, ev.UserName, ev.Text))
	s.Reset()
	if !res.Delivered {
		return one(textContactFailed, mainMenu(ev.IsAdmin)), nil
	}
	return one(textContactSent, transport.Menu{toMenuRow()}), nil
}

// --- Informational screens ---

func (m *Machine) servicesList(ctx context.Context) ([]Reply, error) {
	services, err := m.store.ListServices(ctx, m.tenantID, true)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return one("😕 Нет активных услуг.", transport.Menu{backTo(ActionMainMenu)}), nil
	}
	return one(servicesListText(services), transport.Menu{backTo(ActionMainMenu)}), nil
}

func (m *Machine) contacts(ctx context.Context) ([]Reply, error) {
	t, err := m.store.GetTenant(ctx, m.tenantID)
	if err != nil {
		return nil, err
	}
	return one(contactsText(t), transport.Menu{backTo(ActionMainMenu)}), nil
}

func (m *Machine) myBookings(ctx context.Context, ev transport.Event) ([]Reply, error) {
	bookMenu := transport.Menu{transport.Row(button("📅 Записаться", ActionBook))}
	c, err := m.store.GetClientByMessengerID(ctx, m.tenantID, ev.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return one(textNoBookings, bookMenu), nil
	}
	if err != nil {
		return nil, err
	}
	upcoming, err := m.store.ListAppointmentsByClient(ctx, m.tenantID, c.ID, schedule.FormatDate(m.today()))
	if err != nil {
		return nil, err
	}
	if len(upcoming) == 0 {
		return one(textNoUpcoming, bookMenu), nil
	}
	var b strings.Builder
	b.WriteString("📋 Ваши записи:\n")
	menu := make(transport.Menu, 0, len(upcoming)+1)
	for _, a := range upcoming {
		fmt.Fprintf(&b, "\n📅 %s %s\n💇 %s\n", a.Date, a.Time, a.Service.Name)
		menu = append(menu, transport.Row(button(
			fmt.Sprintf("❌ Отменить %s %s", a.Date, a.Time),
			PrefixCancel+strconv.FormatUint(uint64(a.ID), 10),
		)))
	}
	menu = append(menu, backTo(ActionMainMenu))
	return one(strings.TrimRight(b.String(), "\n"), menu), nil
}

func (m *Machine) adminToday(ctx context.Context) ([]Reply, error) {
	today := schedule.FormatDate(m.today())
	appts, err := m.store.ListAppointmentsByDate(ctx, m.tenantID, today, models.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		return one(textNoneToday, transport.Menu{backTo(ActionAdmin)}), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📅 Записи на %s:\n", today)
	menu := make(transport.Menu, 0, len(appts)+1)
	for _, a := range appts {
		fmt.Fprintf(&b, "\n🕐 %s (%d мин) — %s\n👤 %s %s\n", a.Time, a.Duration, a.Service.Name, a.Client.Name, a.Client.Phone)
		menu = append(menu, transport.Row(button(
			fmt.Sprintf("❌ Отменить %s %s", a.Time, a.Client.Name),
			PrefixAdminCancel+strconv.FormatUint(uint64(a.ID), 10),
		)))
	}
	menu = append(menu, backTo(ActionAdmin))
	return one(strings.TrimRight(b.String(), "\n"), menu), nil
}

// --- Cancellation ---

func (m *Machine) clientCancel(ctx context.Context, s *Session, ev transport.Event, id uint) ([]Reply, error) {
	s.Reset()
	back := transport.Menu{toMenuRow()}
	c, err := m.store.GetClientByMessengerID(ctx, m.tenantID, ev.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return one(textBookingNotFound, back), nil
	}
	if err != nil {
		return nil, err
	}
	a, err := m.store.GetAppointment(ctx, m.tenantID, id)
	if errors.Is(err, store.ErrNotFound) {
		return one(textBookingNotFound, back), nil
	}
	if err != nil {
		return nil, err
	}
	if a.ClientID != c.ID || a.Status != models.StatusConfirmed {
		return one(textBookingNotFound, back), nil
	}
	updated, err := m.store.SetStatus(ctx, m.tenantID, id, models.StatusCancelled)
	if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
		return one(textBookingNotFound, back), nil
	}
	if err != nil {
		return nil, err
	}
	m.log.Info().Uint("appointment", id).Msg("booking cancelled by client")
	m.notifier.NotifyAdmin(ctx, notify.ClientCancellation(*updated, updated.Client, updated.Service))

	text := fmt.Sprintf("✅ Запись отменена\n\n📅 %s %s\n💇 %s", updated.Date, updated.Time, updated.Service.Name)
	return one(text, back), nil
}

func (m *Machine) adminCancel(ctx context.Context, s *Session, ev transport.Event, id uint) ([]Reply, error) {
	s.Reset()
	back := transport.Menu{toMenuRow()}
	if !ev.IsAdmin {
		return one(textNoAccess, back), nil
	}
	_, notified, err := CancelByAdmin(ctx, m.store, m.notifier, m.tenantID, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return one(textNotFound, back), nil
	case errors.Is(err, store.ErrInvalidTransition):
		return one(textAlreadyCancelled, back), nil
	case err != nil:
		return nil, err
	}
	text := "✅ Запись отменена, клиент уведомлён"
	if !notified.Delivered {
		text = "✅ Запись отменена, клиент не уведомлён"
	}
	return one(text, back), nil
}

// StatusSetter changes an appointment's status.
type StatusSetter interface {
	SetStatus(ctx context.Context, tenantID string, id uint, status string) (*models.Appointment, error)
}

// ClientNotifier notifies a single client.
type ClientNotifier interface {
	NotifyClient(ctx context.Context, c models.Client, msg notify.Message) notify.Result
}

// CancelByAdmin moves a confirmed appointment to cancelled_by_admin and
// notifies the client. It is shared by the bot's admin panel and the
// administration API.
func CancelByAdmin(ctx context.Context, st StatusSetter, n ClientNotifier, tenantID string, id uint) (*models.Appointment, notify.Result, error) {
	updated, err := st.SetStatus(ctx, tenantID, id, models.StatusCancelledByAdmin)
	if err != nil {
		return nil, notify.Result{}, err
	}
	log.Info().Str("tenant", tenantID).Uint("appointment", id).Msg("booking cancelled by admin")
	res := n.NotifyClient(ctx, updated.Client, notify.AdminCancellation(*updated, updated.Service))
	return updated, res, nil
}
