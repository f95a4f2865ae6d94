package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TrialStatus tracks a trial collaboration proposal.
type TrialStatus string

const (
	TrialPending  TrialStatus = "PENDING"
	TrialAccepted TrialStatus = "ACCEPTED"
	TrialDeclined TrialStatus = "DECLINED"
)

// TrialProposal invites another founder to a trial collaboration.
type TrialProposal struct {
	ID                int64       `json:"id"`
	ProposerID        int64       `json:"proposer"`
	ProposerUsername  string      `json:"proposer_username"`
	RecipientID       int64       `json:"recipient"`
	RecipientUsername string      `json:"recipient_username"`
	Message           string      `json:"message"`
	Status            TrialStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

const trialSelect = `
	SELECT t.id, t.proposer_id, p.username, t.recipient_id, r.username, t.message, t.status,
		t.created_at, t.updated_at
	FROM trial_proposals t
	JOIN users p ON p.id = t.proposer_id
	JOIN users r ON r.id = t.recipient_id`

func scanTrial(row scanner) (*TrialProposal, error) {
	var (
		t                    TrialProposal
		msg                  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.ID, &t.ProposerID, &t.ProposerUsername, &t.RecipientID, &t.RecipientUsername,
		&msg, &t.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Message = msg.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// ProposeTrial creates a PENDING proposal and notifies the recipient.
func (s *Store) ProposeTrial(ctx context.Context, proposerID, recipientID int64, message string) (*TrialProposal, *Notification, error) {
	var (
		t     *TrialProposal
		notif *Notification
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		proposer, err := s.getUser(ctx, tx, "id = ?", proposerID)
		if err != nil {
			return err
		}
		recipient, err := s.getUser(ctx, tx, "id = ?", recipientID)
		if err != nil {
			return err
		}

		now := s.now()
		t = &TrialProposal{
			ProposerID:        proposerID,
			ProposerUsername:  proposer.Username,
			RecipientID:       recipientID,
			RecipientUsername: recipient.Username,
			Message:           message,
			Status:            TrialPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trial_proposals (proposer_id, recipient_id, message, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			proposerID, recipientID, nullString(message), t.Status, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("insert trial proposal: %w", err)
		}
		if t.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("read trial id: %w", err)
		}

		notif = &Notification{
			UserID:  recipientID,
			Type:    NotifyTrialProposal,
			Title:   "Trial Proposal",
			Message: proposer.Username + " wants to propose a 2-week digital trial with you.",
			Payload: map[string]any{"trial_id": t.ID, "proposer_id": proposerID},
		}
		return s.createNotification(ctx, tx, notif)
	})
	if err != nil {
		return nil, nil, err
	}
	return t, notif, nil
}

// ListTrials returns proposals the user sent or received, newest first.
func (s *Store) ListTrials(ctx context.Context, userID int64) ([]*TrialProposal, error) {
	rows, err := s.db.QueryContext(ctx,
		trialSelect+" WHERE t.proposer_id = ? OR t.recipient_id = ? ORDER BY t.created_at DESC, t.id DESC",
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	list := make([]*TrialProposal, 0)
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// RespondTrial lets the recipient accept or decline a PENDING proposal.
// Proposals addressed to someone else report ErrNotFound; proposals that
// were already answered report ErrInvalidState. Accepting notifies the
// proposer; the notification is nil for a decline.
func (s *Store) RespondTrial(ctx context.Context, id, recipientID int64, accept bool) (*TrialProposal, *Notification, error) {
	var (
		t     *TrialProposal
		notif *Notification
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = scanTrial(tx.QueryRowContext(ctx, trialSelect+" WHERE t.id = ? AND t.recipient_id = ?", id, recipientID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get trial: %w", err)
		}
		if t.Status != TrialPending {
			return ErrInvalidState
		}

		t.Status = TrialDeclined
		if accept {
			t.Status = TrialAccepted
		}
		t.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx, "UPDATE trial_proposals SET status = ?, updated_at = ? WHERE id = ?",
			t.Status, formatTime(t.UpdatedAt), t.ID); err != nil {
			return fmt.Errorf("update trial: %w", err)
		}

		if !accept {
			return nil
		}
		notif = &Notification{
			UserID:  t.ProposerID,
			Type:    NotifyTrialProposal,
			Title:   "Trial Accepted",
			Message: t.RecipientUsername + " accepted your trial proposal.",
			Payload: map[string]any{"trial_id": t.ID},
		}
		return s.createNotification(ctx, tx, notif)
	})
	if err != nil {
		return nil, nil, err
	}
	return t, notif, nil
}
