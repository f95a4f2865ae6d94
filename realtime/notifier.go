package realtime

import (
	"log/slog"

	"github.com/c360studio/sangam/metric"
	"github.com/c360studio/sangam/storage"
)

// EventNotification is the event type pushed for a new notification.
const EventNotification = "notification"

// NotificationEvent is the payload delivered on a user's notify subject.
type NotificationEvent struct {
	Type         string                `json:"type"`
	Notification *storage.Notification `json:"notification"`
}

// Notifier pushes stored notifications to the recipient's live channel.
// A nil Notifier, or one without a hub, only counts.
type Notifier struct {
	hub     *Hub
	metrics *metric.Metrics
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. hub and m may be nil.
func NewNotifier(hub *Hub, m *metric.Metrics, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{hub: hub, metrics: m, logger: logger}
}

// Push delivers n. The notification is already persisted, so a failed
// publish is logged rather than returned.
func (n *Notifier) Push(notif *storage.Notification) {
	if n == nil || notif == nil {
		return
	}
	if n.metrics != nil {
		n.metrics.Notifications.WithLabelValues(string(notif.Type)).Inc()
	}
	if n.hub == nil {
		return
	}
	event := NotificationEvent{Type: EventNotification, Notification: notif}
	if err := n.hub.Publish(NotifySubject(notif.UserID), event); err != nil {
		n.logger.Warn("Failed to push notification",
			"user_id", notif.UserID,
			"notification_id", notif.ID,
			"error", err)
	}
}
