package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/parlor/internal/models"
	"github.com/zulandar/parlor/internal/schedule"
	"github.com/zulandar/parlor/internal/transport"
)

// Callback actions.
const (
	ActionMainMenu     = "main_menu"
	ActionBook         = "book"
	ActionMyBookings   = "my_bookings"
	ActionServices     = "services"
	ActionContacts     = "contacts"
	ActionContactAdmin = "contact_admin"
	ActionAdmin        = "admin"
	ActionAdminToday   = "admin_today"
	ActionConfirm      = "confirm_booking"

	PrefixService     = "service_"
	PrefixDate        = "date_"
	PrefixTime        = "time_"
	PrefixCancel      = "cancel_booking_"
	PrefixAdminCancel = "admin_cancel_"
)

// slotsPerRow is how many time buttons share a menu row.
const slotsPerRow = 3

func button(label, action string) transport.Button {
	return transport.Button{Label: label, Action: action}
}

func backTo(action string) []transport.Button {
	return transport.Row(button("◀️ Назад", action))
}

func toMenuRow() []transport.Button {
	return transport.Row(button("◀️ В меню", ActionMainMenu))
}

func mainMenu(isAdmin bool) transport.Menu {
	menu := transport.Menu{
		transport.Row(button("📅 Записаться", ActionBook)),
		transport.Row(button("📋 Мои записи", ActionMyBookings)),
		transport.Row(button("ℹ️ Услуги", ActionServices)),
		transport.Row(button("📞 Контакты", ActionContacts)),
		transport.Row(button("📨 Связаться с админом", ActionContactAdmin)),
	}
	if isAdmin {
		menu = append(menu, transport.Row(button("⚙️ Админ панель", ActionAdmin)))
	}
	return menu
}

func serviceLabel(s models.Service) string {
	return fmt.Sprintf("%s — %s₽ (%d мин)", s.Name, s.PriceLabel(), s.Duration)
}

func servicesMenu(services []models.Service) transport.Menu {
	menu := make(transport.Menu, 0, len(services)+1)
	for _, s := range services {
		menu = append(menu, transport.Row(button(serviceLabel(s), PrefixService+strconv.FormatUint(uint64(s.ID), 10))))
	}
	return append(menu, backTo(ActionMainMenu))
}

func datesMenu(today time.Time, days int) transport.Menu {
	dates := schedule.UpcomingDates(today, days)
	menu := make(transport.Menu, 0, len(dates)+1)
	for _, d := range dates {
		label := fmt.Sprintf("📅 %s (%s)", d.Format("02.01.2006"), schedule.WeekdayLabel(d))
		menu = append(menu, transport.Row(button(label, PrefixDate+schedule.FormatDate(d))))
	}
	return append(menu, backTo(ActionBook))
}

func slotsMenu(serviceID uint, slots []schedule.TimeOfDay) transport.Menu {
	var menu transport.Menu
	var row []transport.Button
	for _, s := range slots {
		row = append(row, button("🕐 "+s.String(), PrefixTime+s.String()))
		if len(row) == slotsPerRow {
			menu = append(menu, row)
			row = nil
		}
	}
	if len(row) > 0 {
		menu = append(menu, row)
	}
	return append(menu, backTo(PrefixService+strconv.FormatUint(uint64(serviceID), 10)))
}

func confirmMenu() transport.Menu {
	return transport.Menu{transport.Row(
		button("✅ Да", ActionConfirm),
		button("❌ Нет", ActionBook),
	)}
}

func confirmText(s models.Service, date, tm string) string {
	return fmt.Sprintf("📋 Подтверждение записи\n\n"+
		"💇 Услуга: %s\n"+
		"💰 Цена: %s₽\n"+
		"⏱ Длительность: %d мин\n"+
		"📅 Дата: %s\n"+
		"🕐 Время: %s\n\n"+
		"Всё верно?", s.Name, s.PriceLabel(), s.Duration, date, tm)
}

func servicesListText(services []models.Service) string {
	var b strings.Builder
	b.WriteString("📋 Наши услуги:\n\n")
	for _, s := range services {
		fmt.Fprintf(&b, "• %s\n", serviceLabel(s))
		if s.Description != "" {
			b.WriteString(s.Description + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func contactsText(t *models.Tenant) string {
	dash := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "—"
		}
		return s
	}
	var b strings.Builder
	b.WriteString("📞 Контакты:\n\n")
	fmt.Fprintf(&b, "🏢 Салон: %s\n", dash(t.SalonName))
	fmt.Fprintf(&b, "📱 Телефон: %s\n", dash(t.Phone))
	fmt.Fprintf(&b, "📍 Адрес: %s\n", dash(t.Address))
	if t.Description != "" {
		fmt.Fprintf(&b, "\nℹ️ %s", t.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func registrationSummary(c *models.Client) string {
	opt := func(s *string) string {
		if s == nil || *s == "" {
			return "не указан"
		}
		return *s
	}
	return fmt.Sprintf("✅ Регистрация завершена!\n\n"+
		"👤 Имя: %s\n"+
		"📞 Телефон: %s\n"+
		"🎂 День рождения: %s\n"+
		"📧 Email: %s\n\n"+
		"Спасибо за регистрацию! 🎉", c.Name, c.Phone, opt(c.BirthDate), opt(c.Email))
}

// Prompts and short replies.
const (
	textWelcome          = "👋 Добро пожаловать! Я помогу вам записаться на услуги.\n\nВыберите действие:"
	textWelcomeBackFmt   = "👋 С возвращением, %s!\n\nВыберите действие:"
	textMainMenu         = "👋 Главное меню:\n\nВыберите действие:"
	textUseMenu          = "👋 Используйте кнопки меню:"
	textChooseService    = "📋 Выберите услугу:"
	textNoServices       = "😕 Услуги временно недоступны."
	textChooseDate       = "📅 Выберите дату:"
	textPastDate         = "❌ Нельзя записаться в прошлое. Выберите другую дату:"
	textBadDate          = "❌ Некорректная дата. Выберите дату из списка:"
	textDayOff           = "❌ В этот день нет работы"
	textNoSlots          = "😕 На эту дату нет свободного времени. Выберите другую дату:"
	textChooseTimeFmt    = "📅 Дата: %s\nВыберите время:"
	textSlotTakenFmt     = "❌ Время %s уже занято. Выберите другое:"
	textIncomplete       = "❌ Не все данные выбраны"
	textServiceNotFound  = "❌ Услуга не найдена"
	textBookingNotFound  = "❌ Запись не найдена или уже отменена"
	textAlreadyCancelled = "❌ Запись уже отменена"
	textNotFound         = "❌ Запись не найдена"
	textNoAccess         = "⛔ Нет доступа"
	textUnknownAction    = "🤷 Неизвестная команда"
	textNoBookings       = "📭 У вас пока нет записей."
	textNoUpcoming       = "📭 У вас нет предстоящих записей."
	textAdminPanel       = "⚙️ Админ панель:"
	textNoneToday        = "📭 На сегодня записей нет."
	textContactPrompt    = "📨 Напишите ваше сообщение для администратора:"
	textContactSent      = "✅ Сообщение отправлено администратору!"
	textContactFailed    = "❌ Ошибка отправки"
	textNoAdmin          = "❌ Админ не настроен"
	textEmptyMessage     = "❌ Сообщение пустое. Напишите текст для администратора:"

	textRegStart    = "📝 Добро пожаловать! Для записи нужно зарегистрироваться\n\n✏️ Шаг 1 из 4: Введите ваше Имя и Фамилию:"
	textRegPhone    = "📞 Шаг 2 из 4:\n\nВведите ваш номер телефона (например: +7 999 123-45-67):"
	textRegBirthday = "🎂 Шаг 3 из 4:\n\nВведите вашу дату рождения (необязательно):\n\n📅 Формат: ДД.ММ.ГГГГ\n\nИли отправьте \"пропустить\":"
	textRegEmail    = "📧 Шаг 4 из 4:\n\nВведите ваш Email (необязательно):\n\n📨 Например: name@example.com\n\nИли отправьте \"пропустить\":"

	textBadName     = "❌ Пожалуйста, введите корректное имя (минимум 3 символа):"
	textBadPhone    = "❌ Неверный формат телефона.\n\nВведите номер в формате: +7 999 123-45-67"
	textFutureBday  = "❌ Дата рождения не может быть в будущем. Попробуйте еще раз:"
	textTooYoung    = "❌ Вам должно быть не менее 10 лет. Попробуйте еще раз:"
	textBadBirthday = "❌ Неверный формат даты. Используйте ДД.ММ.ГГГГ\nИли отправьте \"пропустить\":"
	textBadEmail    = "❌ Неверный формат email. Попробуйте еще раз\nИли отправьте \"пропустить\":"

	// GenericFailure is sent when handling an event fails unexpectedly.
	GenericFailure = "❌ Произошла ошибка. Попробуйте позже."
)
