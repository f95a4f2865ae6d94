package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Message is a direct chat message between two users.
type Message struct {
	ID             int64      `json:"id"`
	SenderID       int64      `json:"sender"`
	SenderUsername string     `json:"sender_username"`
	ReceiverID     int64      `json:"receiver"`
	Content        string     `json:"content"`
	Timestamp      time.Time  `json:"timestamp"`
	ReadAt         *time.Time `json:"read_at"`
}

// SendMessage persists m and, in the same transaction, a MESSAGE
// notification for the receiver. The created notification is returned so
// callers can push it live.
func (s *Store) SendMessage(ctx context.Context, m *Message) (*Notification, error) {
	var notif *Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		sender, err := s.getUser(ctx, tx, "id = ?", m.SenderID)
		if err != nil {
			return err
		}
		if _, err := s.getUser(ctx, tx, "id = ?", m.ReceiverID); err != nil {
			return err
		}

		m.Timestamp = s.now()
		m.SenderUsername = sender.Username
		res, err := tx.ExecContext(ctx,
			"INSERT INTO messages (sender_id, receiver_id, content, timestamp) VALUES (?, ?, ?, ?)",
			m.SenderID, m.ReceiverID, m.Content, formatTime(m.Timestamp))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("read message id: %w", err)
		}

		notif = &Notification{
			UserID:  m.ReceiverID,
			Type:    NotifyMessage,
			Title:   "New Message",
			Message: "You received a message from " + sender.Username + ".",
			Payload: map[string]any{"sender_id": m.SenderID, "message_id": m.ID},
		}
		return s.createNotification(ctx, tx, notif)
	})
	if err != nil {
		return nil, err
	}
	return notif, nil
}

// Conversation returns every message exchanged between a and b, oldest first.
func (s *Store) Conversation(ctx context.Context, a, b int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.sender_id, u.username, m.receiver_id, m.content, m.timestamp, m.read_at
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE (m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)
		ORDER BY m.timestamp, m.id`, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	msgs := make([]*Message, 0)
	for rows.Next() {
		var (
			m      Message
			ts     string
			readAt sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderUsername, &m.ReceiverID, &m.Content, &ts, &readAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = parseTime(ts)
		if readAt.Valid {
			t := parseTime(readAt.String)
			m.ReadAt = &t
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// MarkConversationRead marks unread messages from sender to receiver read
// and returns how many changed.
func (s *Store) MarkConversationRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE sender_id = ? AND receiver_id = ? AND read_at IS NULL`,
		formatTime(s.now()), senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return res.RowsAffected()
}
