package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Syndicate is a founder-led funding round.
type Syndicate struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	FounderID      int64           `json:"founder_id"`
	FounderName    string          `json:"founder_name"`
	Description    string          `json:"description"`
	FundingGoal    decimal.Decimal `json:"funding_goal"`
	CurrentFunding decimal.Decimal `json:"current_funding"`
	IsActive       bool            `json:"is_active"`
	InterestTags   []string        `json:"interest_tags"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Progress returns the funded share of the goal as a percentage, or zero
// when the goal is zero.
func (s *Syndicate) Progress() float64 {
	if s.FundingGoal.IsZero() {
		return 0
	}
	f, _ := s.CurrentFunding.Div(s.FundingGoal).Mul(decimal.NewFromInt(100)).Float64()
	return f
}

// Investment is an investor's commitment to a syndicate.
type Investment struct {
	ID               int64           `json:"id"`
	SyndicateID      int64           `json:"syndicate"`
	InvestorID       int64           `json:"investor"`
	InvestorUsername string          `json:"investor_username"`
	Amount           decimal.Decimal `json:"amount"`
	CreatedAt        time.Time       `json:"created_at"`
}

const syndicateSelect = `
	SELECT s.id, s.title, s.founder_id, u.username, s.description, s.funding_goal,
		s.current_funding, s.is_active, s.interest_tags, s.created_at
	FROM syndicates s JOIN users u ON u.id = s.founder_id`

func scanSyndicate(row scanner) (*Syndicate, error) {
	var (
		sy                             Syndicate
		goal, current, tags, createdAt string
	)
	if err := row.Scan(&sy.ID, &sy.Title, &sy.FounderID, &sy.FounderName, &sy.Description,
		&goal, &current, &sy.IsActive, &tags, &createdAt); err != nil {
		return nil, err
	}
	sy.FundingGoal = parseDecimal(goal)
	sy.CurrentFunding = parseDecimal(current)
	sy.InterestTags = decodeTags(tags)
	sy.CreatedAt = parseTime(createdAt)
	return &sy, nil
}

// ListSyndicates returns active syndicates, newest first.
func (s *Store) ListSyndicates(ctx context.Context) ([]*Syndicate, error) {
	rows, err := s.db.QueryContext(ctx, syndicateSelect+" WHERE s.is_active = 1 ORDER BY s.created_at DESC, s.id DESC")
	if err != nil {
		return nil, fmt.Errorf("list syndicates: %w", err)
	}
	defer rows.Close()

	list := make([]*Syndicate, 0)
	for rows.Next() {
		sy, err := scanSyndicate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan syndicate: %w", err)
		}
		list = append(list, sy)
	}
	return list, rows.Err()
}

// GetSyndicate retrieves a syndicate regardless of whether it is active.
func (s *Store) GetSyndicate(ctx context.Context, id int64) (*Syndicate, error) {
	return s.getSyndicate(ctx, s.db, id)
}

func (s *Store) getSyndicate(ctx context.Context, q queryer, id int64) (*Syndicate, error) {
	sy, err := scanSyndicate(q.QueryRowContext(ctx, syndicateSelect+" WHERE s.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get syndicate: %w", err)
	}
	return sy, nil
}

// CreateSyndicate inserts a syndicate led by sy.FounderID.
func (s *Store) CreateSyndicate(ctx context.Context, sy *Syndicate) error {
	sy.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO syndicates (title, founder_id, description, funding_goal, current_funding, is_active, interest_tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sy.Title, sy.FounderID, sy.Description, sy.FundingGoal.String(), sy.CurrentFunding.String(),
		boolToInt(sy.IsActive), encodeTags(sy.InterestTags), formatTime(sy.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert syndicate: %w", err)
	}
	if sy.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("read syndicate id: %w", err)
	}

	saved, err := s.GetSyndicate(ctx, sy.ID)
	if err != nil {
		return err
	}
	*sy = *saved
	return nil
}

// SyndicateExists reports whether a syndicate with the given title and
// founder already exists.
func (s *Store) SyndicateExists(ctx context.Context, title string, founderID int64) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM syndicates WHERE title = ? AND founder_id = ?", title, founderID)
}

// SyndicateTitleExists reports whether any syndicate uses title.
func (s *Store) SyndicateTitleExists(ctx context.Context, title string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM syndicates WHERE title = ?", title)
}

// Invest records an investment and raises the syndicate's current funding
// in one transaction, then notifies the lead founder. Inactive syndicates
// return ErrInactive.
func (s *Store) Invest(ctx context.Context, syndicateID, investorID int64, amount decimal.Decimal) (*Investment, *Syndicate, *Notification, error) {
	var (
		inv   *Investment
		sy    *Syndicate
		notif *Notification
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		sy, err = s.getSyndicate(ctx, tx, syndicateID)
		if err != nil {
			return err
		}
		if !sy.IsActive {
			return ErrInactive
		}
		investor, err := s.getUser(ctx, tx, "id = ?", investorID)
		if err != nil {
			return err
		}

		inv = &Investment{
			SyndicateID:      syndicateID,
			InvestorID:       investorID,
			InvestorUsername: investor.Username,
			Amount:           amount,
			CreatedAt:        s.now(),
		}
		res, err := tx.ExecContext(ctx,
			"INSERT INTO investments (syndicate_id, investor_id, amount, created_at) VALUES (?, ?, ?, ?)",
			syndicateID, investorID, amount.String(), formatTime(inv.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert investment: %w", err)
		}
		if inv.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("read investment id: %w", err)
		}

		sy.CurrentFunding = sy.CurrentFunding.Add(amount)
		if _, err := tx.ExecContext(ctx, "UPDATE syndicates SET current_funding = ? WHERE id = ?",
			sy.CurrentFunding.String(), syndicateID); err != nil {
			return fmt.Errorf("update funding: %w", err)
		}

		notif = &Notification{
			UserID:  sy.FounderID,
			Type:    NotifyInvestment,
			Title:   "New investment in " + sy.Title,
			Message: fmt.Sprintf("%s committed NPR %s to %s.", investor.Username, amount.StringFixed(2), sy.Title),
			Payload: map[string]any{"syndicate_id": syndicateID, "investment_id": inv.ID},
		}
		return s.createNotification(ctx, tx, notif)
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return inv, sy, notif, nil
}

// ListInvestments returns a syndicate's investments, newest first.
func (s *Store) ListInvestments(ctx context.Context, syndicateID int64) ([]*Investment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.syndicate_id, i.investor_id, u.username, i.amount, i.created_at
		FROM investments i JOIN users u ON u.id = i.investor_id
		WHERE i.syndicate_id = ? ORDER BY i.created_at DESC, i.id DESC`, syndicateID)
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	defer rows.Close()

	list := make([]*Investment, 0)
	for rows.Next() {
		var (
			inv               Investment
			amount, createdAt string
		)
		if err := rows.Scan(&inv.ID, &inv.SyndicateID, &inv.InvestorID, &inv.InvestorUsername, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		inv.Amount = parseDecimal(amount)
		inv.CreatedAt = parseTime(createdAt)
		list = append(list, &inv)
	}
	return list, rows.Err()
}
