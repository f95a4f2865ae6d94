package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifyBooking       NotificationType = "BOOKING"
	NotifyMessage       NotificationType = "MESSAGE"
	NotifyTrialProposal NotificationType = "TRIAL_PROPOSAL"
	NotifyInvestment    NotificationType = "INVESTMENT"
	NotifyPulseReminder NotificationType = "PULSE_REMINDER"
)

// NotificationListLimit caps how many notifications a listing returns.
const NotificationListLimit = 50

// Notification is an in-app notice for a single user.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"-"`
	Type      NotificationType `json:"notification_type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Payload   map[string]any   `json:"payload"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// CreateNotification persists n and sets its ID and timestamp.
func (s *Store) CreateNotification(ctx context.Context, n *Notification) error {
	return s.createNotification(ctx, s.db, n)
}

func (s *Store) createNotification(ctx context.Context, q queryer, n *Notification) error {
	if n.Payload == nil {
		n.Payload = map[string]any{}
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	n.CreatedAt = s.now()
	n.Read = false

	res, err := q.ExecContext(ctx, `
		INSERT INTO notifications (user_id, notification_type, title, message, payload, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		n.UserID, n.Type, n.Title, n.Message, string(payload), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read notification id: %w", err)
	}
	return nil
}

const notificationColumns = "id, user_id, notification_type, title, message, payload, read, created_at"

func scanNotification(row scanner) (*Notification, error) {
	var (
		n                  Notification
		payload, createdAt string
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &payload, &n.Read, &createdAt); err != nil {
		return nil, err
	}
	n.Payload = map[string]any{}
	_ = json.Unmarshal([]byte(payload), &n.Payload)
	n.CreatedAt = parseTime(createdAt)
	return &n, nil
}

// ListNotifications returns the user's most recent notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, NotificationListLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	list := make([]*Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// UnreadCount returns how many unread notifications the user has.
func (s *Store) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// MarkNotificationRead marks one of the user's notifications read and
// returns it. Returns ErrNotFound if the notification doesn't belong to
// the user.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id int64) (*Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `
		UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?
		RETURNING `+notificationColumns, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllNotificationsRead marks every unread notification read and
// returns how many changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0", userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}
