package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotAwardReason is recorded against points awarded for a new snapshot.
const SnapshotAwardReason = "Weekly pulse logged"

// KPISnapshot is a founder's weekly pulse.
type KPISnapshot struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"-"`
	WeekEnding DateOnly        `json:"week_ending"`
	Revenue    decimal.Decimal `json:"revenue"`
	Users      int             `json:"users"`
	Expenses   decimal.Decimal `json:"expenses"`
	IsPublic   bool            `json:"is_public"`
	CreatedAt  time.Time       `json:"created_at"`
}

const snapshotColumns = "id, user_id, week_ending, revenue, users, expenses, is_public, created_at"

func scanSnapshot(row scanner) (*KPISnapshot, error) {
	var (
		k                                  KPISnapshot
		week, revenue, expenses, createdAt string
	)
	if err := row.Scan(&k.ID, &k.UserID, &week, &revenue, &k.Users, &expenses, &k.IsPublic, &createdAt); err != nil {
		return nil, err
	}
	k.WeekEnding, _ = ParseDate(week)
	k.Revenue = parseDecimal(revenue)
	k.Expenses = parseDecimal(expenses)
	k.CreatedAt = parseTime(createdAt)
	return &k, nil
}

// CreateSnapshot inserts a snapshot and awards award points to its owner
// in the same transaction. Returns ErrConflict when the owner already has
// a snapshot for that week.
func (s *Store) CreateSnapshot(ctx context.Context, k *KPISnapshot, award int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		k.CreatedAt = s.now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO kpi_snapshots (user_id, week_ending, revenue, users, expenses, is_public, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			k.UserID, k.WeekEnding.String(), k.Revenue.String(), k.Users, k.Expenses.String(),
			boolToInt(k.IsPublic), formatTime(k.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if k.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("read snapshot id: %w", err)
		}

		if award > 0 {
			return s.awardPoints(ctx, tx, k.UserID, award, SnapshotAwardReason)
		}
		return nil
	})
}

// ListSnapshots returns the user's snapshots, most recent week first.
func (s *Store) ListSnapshots(ctx context.Context, userID int64) ([]*KPISnapshot, error) {
	return s.listSnapshots(ctx, "user_id = ?", userID)
}

// ListPublicSnapshots returns the user's public snapshots, most recent week first.
func (s *Store) ListPublicSnapshots(ctx context.Context, userID int64) ([]*KPISnapshot, error) {
	return s.listSnapshots(ctx, "user_id = ? AND is_public = 1", userID)
}

func (s *Store) listSnapshots(ctx context.Context, where string, args ...any) ([]*KPISnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+snapshotColumns+" FROM kpi_snapshots WHERE "+where+" ORDER BY week_ending DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	list := make([]*KPISnapshot, 0)
	for rows.Next() {
		k, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		list = append(list, k)
	}
	return list, rows.Err()
}

// GetSnapshot retrieves one of the user's snapshots. Snapshots owned by
// someone else report ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, userID, id int64) (*KPISnapshot, error) {
	k, err := scanSnapshot(s.db.QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM kpi_snapshots WHERE id = ? AND user_id = ?", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return k, nil
}

// UpdateSnapshot persists the editable fields of k.
func (s *Store) UpdateSnapshot(ctx context.Context, k *KPISnapshot) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE kpi_snapshots SET week_ending = ?, revenue = ?, users = ?, expenses = ?, is_public = ?
		WHERE id = ? AND user_id = ?`,
		k.WeekEnding.String(), k.Revenue.String(), k.Users, k.Expenses.String(), boolToInt(k.IsPublic),
		k.ID, k.UserID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update snapshot: %w", err)
	}
	return requireAffected(res)
}

// DeleteSnapshot removes one of the user's snapshots.
func (s *Store) DeleteSnapshot(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM kpi_snapshots WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return requireAffected(res)
}

// WeekEnding returns the Sunday that ends the last fully completed week
// before t.
func WeekEnding(t time.Time) DateOnly {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	back := int(d.Weekday())
	if back == 0 {
		back = 7
	}
	return DateOnly{d.AddDate(0, 0, -back)}
}

// FoundersAwaitingReminder returns active founders with no snapshot for
// week and no reminder already logged for it.
func (s *Store) FoundersAwaitingReminder(ctx context.Context, week DateOnly) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+` FROM users u
		WHERE u.role = ? AND u.is_active = 1
		AND NOT EXISTS (SELECT 1 FROM kpi_snapshots k WHERE k.user_id = u.id AND k.week_ending = ?)
		AND NOT EXISTS (SELECT 1 FROM pulse_reminders r WHERE r.user_id = u.id AND r.week_ending = ?)
		ORDER BY u.id`, RoleFounder, week.String(), week.String())
	if err != nil {
		return nil, fmt.Errorf("query founders awaiting reminder: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// RecordPulseReminder logs a PULSE_REMINDER notification for the user and
// week. It returns ErrConflict if a reminder was already logged.
func (s *Store) RecordPulseReminder(ctx context.Context, userID int64, week DateOnly) (*Notification, error) {
	var notif *Notification
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO pulse_reminders (user_id, week_ending, sent_at) VALUES (?, ?, ?)",
			userID, week.String(), formatTime(s.now()))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert pulse reminder: %w", err)
		}
		notif = &Notification{
			UserID:  userID,
			Type:    NotifyPulseReminder,
			Title:   "Log your weekly pulse",
			Message: "You haven't logged KPIs for the week ending " + week.String() + ".",
			Payload: map[string]any{"week_ending": week.String()},
		}
		return s.createNotification(ctx, tx, notif)
	})
	if err != nil {
		return nil, err
	}
	return notif, nil
}
