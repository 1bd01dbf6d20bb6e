package notify

import (
	"fmt"
	"strings"

	"github.com/zulandar/parlor/internal/models"
)

// Kind names a notification type; it is also the metrics label.
type Kind string

const (
	KindNewBooking         Kind = "new_booking"
	KindClientCancellation Kind = "client_cancellation"
	KindAdminCancellation  Kind = "admin_cancellation"
	KindNewClient          Kind = "new_client"
	KindClientMessage      Kind = "client_message"
	KindReminder           Kind = "reminder"
	KindTest               Kind = "test"
)

// Message is a formatted notification ready to send.
type Message struct {
	Kind Kind
	Text string
}

const (
	rule        = "━━━━━━━━━━━━━━━━━━━━━"
	unspecified = "не указан"
)

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return unspecified
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NewBooking tells the administrator about a confirmed booking.
func NewBooking(a models.Appointment, c models.Client, s models.Service) Message {
	var b strings.Builder
	b.WriteString("🆕 НОВАЯ ЗАПИСЬ!\n\n" + rule + "\n\n")
	fmt.Fprintf(&b, "👤 Клиент: %s\n", c.Name)
	fmt.Fprintf(&b, "📞 Телефон: %s\n", orUnspecified(c.Phone))
	fmt.Fprintf(&b, "📧 Email: %s\n\n", orUnspecified(deref(c.Email)))
	fmt.Fprintf(&b, "💇 Услуга: %s\n", s.Name)
	fmt.Fprintf(&b, "💰 Цена: %s₽\n", s.PriceLabel())
	fmt.Fprintf(&b, "📅 Дата: %s\n", a.Date)
	fmt.Fprintf(&b, "🕐 Время: %s\n\n", a.Time)
	fmt.Fprintf(&b, "%s\n🆔 ID записи: %d", rule, a.ID)
	return Message{Kind: KindNewBooking, Text: b.String()}
}

// ClientCancellation tells the administrator a client cancelled.
func ClientCancellation(a models.Appointment, c models.Client, s models.Service) Message {
	var b strings.Builder
	b.WriteString("❌ ЗАПИСЬ ОТМЕНЕНА!\n\n" + rule + "\n\n")
	fmt.Fprintf(&b, "👤 Клиент: %s\n", c.Name)
	fmt.Fprintf(&b, "📞 Телефон: %s\n\n", orUnspecified(c.Phone))
	fmt.Fprintf(&b, "💇 Услуга: %s\n", s.Name)
	fmt.Fprintf(&b, "📅 Дата: %s\n", a.Date)
	fmt.Fprintf(&b, "🕐 Время: %s\n\n", a.Time)
	fmt.Fprintf(&b, "%s\n🆔 ID записи: %d", rule, a.ID)
	return Message{Kind: KindClientCancellation, Text: b.String()}
}

// AdminCancellation tells a client the administrator cancelled their booking.
func AdminCancellation(a models.Appointment, s models.Service) Message {
	text := fmt.Sprintf("❌ Ваша запись отменена администратором\n\n"+
		"💇 Услуга: %s\n"+
		"📅 Дата: %s %s\n\n"+
		"Свяжитесь с нами для деталей.", s.Name, a.Date, a.Time)
	return Message{Kind: KindAdminCancellation, Text: text}
}

// NewClient tells the administrator about a newly registered client.
func NewClient(c models.Client) Message {
	var b strings.Builder
	b.WriteString("👋 НОВЫЙ КЛИЕНТ!\n\n" + rule + "\n\n")
	fmt.Fprintf(&b, "👤 Имя: %s\n", c.Name)
	fmt.Fprintf(&b, "📞 Телефон: %s\n", orUnspecified(c.Phone))
	fmt.Fprintf(&b, "📧 Email: %s\n", orUnspecified(deref(c.Email)))
	fmt.Fprintf(&b, "🎂 День рождения: %s\n", orUnspecified(deref(c.BirthDate)))
	fmt.Fprintf(&b, "🆔 ID в мессенджере: %s\n\n", orUnspecified(deref(c.MessengerID)))
	b.WriteString(rule)
	return Message{Kind: KindNewClient, Text: b.String()}
}

// ClientMessage relays free text from a client to the administrator.
func ClientMessage(senderName, userID, username, text string) Message {
	handle := "нет"
	if username != "" {
		handle = "@" + strings.TrimPrefix(username, "@")
	}
	body := fmt.Sprintf("📨 Сообщение от клиента\n\n"+
		"👤 Клиент: %s\n"+
		"🆔 ID: %s\n"+
		"📱 Username: %s\n\n"+
		"💬 Сообщение:\n%s", senderName, userID, handle, text)
	return Message{Kind: KindClientMessage, Text: body}
}

// Reminder reminds a client of tomorrow's visit.
func Reminder(a models.Appointment, s models.Service, salon string) Message {
	var b strings.Builder
	b.WriteString("⏰ Напоминание о записи\n\n")
	if salon != "" {
		fmt.Fprintf(&b, "🏢 %s\n", salon)
	}
	fmt.Fprintf(&b, "💇 Услуга: %s\n", s.Name)
	fmt.Fprintf(&b, "📅 Дата: %s\n", a.Date)
	fmt.Fprintf(&b, "🕐 Время: %s\n\n", a.Time)
	b.WriteString("Ждём вас!")
	return Message{Kind: KindReminder, Text: b.String()}
}

// Test is the message sent by the "send test notification" action.
func Test() Message {
	return Message{
		Kind: KindTest,
		Text: "✅ Тестовое уведомление\n\nБот настроен правильно, уведомления о записях будут приходить сюда.",
	}
}
