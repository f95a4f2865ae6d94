package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus tracks a consultation's lifecycle.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking is a consultation between a client and an expert.
type Booking struct {
	ID             int64           `json:"id"`
	ExpertID       int64           `json:"expert"`
	ExpertUsername string          `json:"expert_username"`
	ClientID       int64           `json:"client"`
	ClientUsername string          `json:"client_username"`
	IsFreeIntro    bool            `json:"is_free_intro"`
	Amount         decimal.Decimal `json:"amount"`
	Notes          string          `json:"notes"`
	Status         BookingStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreateBooking books the expert behind expertProfileID for clientID.
// A request without an amount becomes the client's free intro with that
// expert if none was used yet; otherwise it is charged amount, or the
// expert's hourly rate when amount is zero. The expert is notified in the
// same transaction.
func (s *Store) CreateBooking(ctx context.Context, expertProfileID, clientID int64, amount decimal.Decimal, notes string) (*Booking, *Notification, error) {
	var (
		b     *Booking
		notif *Notification
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		expert, err := s.getExpert(ctx, tx, "e.id = ?", expertProfileID)
		if err != nil {
			return err
		}
		client, err := s.getUser(ctx, tx, "id = ?", clientID)
		if err != nil {
			return err
		}

		var usedIntro int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM bookings WHERE client_id = ? AND expert_id = ? AND is_free_intro = 1",
			clientID, expert.UserID).Scan(&usedIntro); err != nil {
			return fmt.Errorf("check free intro: %w", err)
		}

		b = &Booking{
			ExpertID:       expert.UserID,
			ExpertUsername: expert.Username,
			ClientID:       clientID,
			ClientUsername: client.Username,
			Notes:          notes,
			Status:         BookingPending,
			CreatedAt:      s.now(),
		}
		switch {
		case usedIntro == 0 && amount.IsZero():
			b.IsFreeIntro = true
			b.Amount = decimal.Zero
		case amount.IsZero():
			b.Amount = expert.HourlyRate
		default:
			b.Amount = amount
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (expert_id, client_id, is_free_intro, amount, notes, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ExpertID, b.ClientID, boolToInt(b.IsFreeIntro), b.Amount.StringFixed(2), b.Notes, b.Status,
			formatTime(b.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if b.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("read booking id: %w", err)
		}

		kind := ""
		if b.IsFreeIntro {
			kind = "free intro "
		}
		notif = &Notification{
			UserID:  b.ExpertID,
			Type:    NotifyBooking,
			Title:   "New Session Booking",
			Message: fmt.Sprintf("%s booked a %ssession with you.", client.Username, kind),
			Payload: map[string]any{"booking_id": b.ID, "client_id": clientID},
		}
		return s.createNotification(ctx, tx, notif)
	})
	if err != nil {
		return nil, nil, err
	}
	return b, notif, nil
}

// ListBookings returns bookings where the user is client or expert, newest first.
func (s *Store) ListBookings(ctx context.Context, userID int64) ([]*Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.expert_id, e.username, b.client_id, c.username, b.is_free_intro, b.amount,
			b.notes, b.status, b.created_at
		FROM bookings b
		JOIN users e ON e.id = b.expert_id
		JOIN users c ON c.id = b.client_id
		WHERE b.client_id = ? OR b.expert_id = ?
		ORDER BY b.created_at DESC, b.id DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	list := make([]*Booking, 0)
	for rows.Next() {
		var (
			b                 Booking
			amount, createdAt string
		)
		if err := rows.Scan(&b.ID, &b.ExpertID, &b.ExpertUsername, &b.ClientID, &b.ClientUsername,
			&b.IsFreeIntro, &amount, &b.Notes, &b.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Amount = parseDecimal(amount)
		b.CreatedAt = parseTime(createdAt)
		list = append(list, &b)
	}
	return list, rows.Err()
}
