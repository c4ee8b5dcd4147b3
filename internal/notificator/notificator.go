package notificator

import (
	"runtime/debug"

	"github.com/core-coin/salarium/internal/models"
	"github.com/core-coin/salarium/pkg/logger"
)

// sender delivers a text message to one recipient.
type sender interface {
	SendNotification(to, message string)
}

// Notificator tells the admin chat and the paid worker about settlement
// outcomes. Either channel may be nil.
type Notificator struct {
	logger *logger.Logger

	adminChatID string

	TelegramNotificator sender
	EmailNotificator    sender
}

func NewNotificator(logger *logger.Logger, adminChatID string, telNotif *TelegramNotificator, emailNotif *EmailNotificator) *Notificator {
	n := &Notificator{logger: logger, adminChatID: adminChatID}
	if telNotif != nil {
		n.TelegramNotificator = telNotif
	}
	if emailNotif != nil {
		n.EmailNotificator = emailNotif
	}
	return n
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (n *Notificator) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// SendNotification runs on the caller's goroutine; the service already
// detached it from the request.
func (n *Notificator) SendNotification(notification *models.Notification) {
	message := notification.String()
	if n.TelegramNotificator != nil && n.adminChatID != "" {
		n.safeCall(func() { n.TelegramNotificator.SendNotification(n.adminChatID, message) }, "telegramNotification")
	}
	if n.EmailNotificator != nil && notification.WorkerEmail != "" {
		email := notification.WorkerEmail
		n.safeCall(func() { n.EmailNotificator.SendNotification(email, message) }, "emailNotification")
	}
}

// Nop discards notifications.
type Nop struct{}

func (Nop) SendNotification(*models.Notification) {}
