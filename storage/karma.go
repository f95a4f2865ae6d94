package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HistoryLimit caps point and redemption histories.
const HistoryLimit = 50

// PointAward is one entry in a user's karma ledger.
type PointAward struct {
	ID        int64     `json:"id"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// KarmaBalance is a user's earned, spent and spendable karma.
type KarmaBalance struct {
	Earned  int `json:"earned"`
	Spent   int `json:"spent"`
	Balance int `json:"balance"`
}

// RedeemOffer is a partner discount purchasable with karma.
type RedeemOffer struct {
	ID              int64     `json:"id"`
	CompanyName     string    `json:"company_name"`
	Description     string    `json:"description"`
	DiscountPercent int       `json:"discount_percent"`
	PointsRequired  int       `json:"points_required"`
	InterestTags    []string  `json:"interest_tags"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// Redemption records karma spent on an offer.
type Redemption struct {
	ID              int64     `json:"id"`
	OfferID         int64     `json:"offer"`
	CompanyName     string    `json:"company_name"`
	DiscountPercent int       `json:"discount_percent"`
	PointsSpent     int       `json:"points_spent"`
	Code            string    `json:"code"`
	RedeemedAt      time.Time `json:"redeemed_at"`
}

// AwardPoints appends an entry to the user's karma ledger.
func (s *Store) AwardPoints(ctx context.Context, userID int64, points int, reason string) error {
	return s.awardPoints(ctx, s.db, userID, points, reason)
}

func (s *Store) awardPoints(ctx context.Context, q queryer, userID int64, points int, reason string) error {
	_, err := q.ExecContext(ctx, "INSERT INTO points (user_id, points, reason, created_at) VALUES (?, ?, ?, ?)",
		userID, points, nullString(reason), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	return nil
}

// KarmaBalance computes earned (ledger total plus profile karma score),
// spent and the difference.
func (s *Store) KarmaBalance(ctx context.Context, userID int64) (*KarmaBalance, error) {
	return s.karmaBalance(ctx, s.db, userID)
}

func (s *Store) karmaBalance(ctx context.Context, q queryer, userID int64) (*KarmaBalance, error) {
	var b KarmaBalance
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(points) FROM points WHERE user_id = u.id), 0) + u.karma_score,
			COALESCE((SELECT SUM(points_spent) FROM redemptions WHERE user_id = u.id), 0)
		FROM users u WHERE u.id = ?`, userID).Scan(&b.Earned, &b.Spent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("compute karma balance: %w", err)
	}
	b.Balance = b.Earned - b.Spent
	return &b, nil
}

// PointsHistory returns the user's latest point awards, newest first.
func (s *Store) PointsHistory(ctx context.Context, userID int64) ([]*PointAward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, points, reason, created_at FROM points
		WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("points history: %w", err)
	}
	defer rows.Close()

	list := make([]*PointAward, 0)
	for rows.Next() {
		var (
			p         PointAward
			reason    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Points, &reason, &createdAt); err != nil {
			return nil, fmt.Errorf("scan points: %w", err)
		}
		p.Reason = reason.String
		p.CreatedAt = parseTime(createdAt)
		list = append(list, &p)
	}
	return list, rows.Err()
}

const offerColumns = "id, company_name, description, discount_percent, points_required, interest_tags, is_active, created_at"

func scanOffer(row scanner) (*RedeemOffer, error) {
	var (
		o               RedeemOffer
		tags, createdAt string
	)
	if err := row.Scan(&o.ID, &o.CompanyName, &o.Description, &o.DiscountPercent, &o.PointsRequired,
		&tags, &o.IsActive, &createdAt); err != nil {
		return nil, err
	}
	o.InterestTags = decodeTags(tags)
	o.CreatedAt = parseTime(createdAt)
	return &o, nil
}

// ListOffers returns active offers, cheapest first.
func (s *Store) ListOffers(ctx context.Context) ([]*RedeemOffer, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+offerColumns+" FROM redeem_offers WHERE is_active = 1 ORDER BY points_required, id")
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	list := make([]*RedeemOffer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// UpsertOffer inserts an offer or updates the one with the same company name.
func (s *Store) UpsertOffer(ctx context.Context, o *RedeemOffer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO redeem_offers (company_name, description, discount_percent, points_required, interest_tags, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_name) DO UPDATE SET
			description = excluded.description,
			discount_percent = excluded.discount_percent,
			points_required = excluded.points_required,
			interest_tags = excluded.interest_tags,
			is_active = excluded.is_active`,
		o.CompanyName, o.Description, o.DiscountPercent, o.PointsRequired, encodeTags(o.InterestTags),
		boolToInt(o.IsActive), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert offer: %w", err)
	}

	saved, err := scanOffer(s.db.QueryRowContext(ctx,
		"SELECT "+offerColumns+" FROM redeem_offers WHERE company_name = ?", o.CompanyName))
	if err != nil {
		return fmt.Errorf("reload offer: %w", err)
	}
	*o = *saved
	return nil
}

// OfferExists reports whether an offer, active or not, is registered for
// the company.
func (s *Store) OfferExists(ctx context.Context, company string) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM redeem_offers WHERE company_name = ?", company)
}

// Redeem spends the offer's points for the user. The balance check and
// the spend share one write transaction, so concurrent redemptions
// serialise and the balance never goes negative. Missing or inactive
// offers report ErrNotFound; a short balance reports
// *InsufficientKarmaError.
func (s *Store) Redeem(ctx context.Context, userID, offerID int64) (*Redemption, *RedeemOffer, int, error) {
	var (
		red        *Redemption
		offer      *RedeemOffer
		newBalance int
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		offer, err = scanOffer(tx.QueryRowContext(ctx,
			"SELECT "+offerColumns+" FROM redeem_offers WHERE id = ? AND is_active = 1", offerID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get offer: %w", err)
		}

		bal, err := s.karmaBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if bal.Balance < offer.PointsRequired {
			return &InsufficientKarmaError{Need: offer.PointsRequired, Have: bal.Balance}
		}

		red = &Redemption{
			OfferID:         offer.ID,
			CompanyName:     offer.CompanyName,
			DiscountPercent: offer.DiscountPercent,
			PointsSpent:     offer.PointsRequired,
			Code:            redemptionCode(),
			RedeemedAt:      s.now(),
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO redemptions (user_id, offer_id, points_spent, code, redeemed_at)
			VALUES (?, ?, ?, ?, ?)`,
			userID, offer.ID, red.PointsSpent, red.Code, formatTime(red.RedeemedAt))
		if err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}
		if red.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("read redemption id: %w", err)
		}
		newBalance = bal.Balance - offer.PointsRequired
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return red, offer, newBalance, nil
}

// RedemptionHistory returns the user's latest redemptions, newest first.
func (s *Store) RedemptionHistory(ctx context.Context, userID int64) ([]*Redemption, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.offer_id, o.company_name, o.discount_percent, r.points_spent, r.code, r.redeemed_at
		FROM redemptions r JOIN redeem_offers o ON o.id = r.offer_id
		WHERE r.user_id = ? ORDER BY r.redeemed_at DESC, r.id DESC LIMIT ?`, userID, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("redemption history: %w", err)
	}
	defer rows.Close()

	list := make([]*Redemption, 0)
	for rows.Next() {
		var (
			r          Redemption
			redeemedAt string
		)
		if err := rows.Scan(&r.ID, &r.OfferID, &r.CompanyName, &r.DiscountPercent, &r.PointsSpent,
			&r.Code, &redeemedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		r.RedeemedAt = parseTime(redeemedAt)
		list = append(list, &r)
	}
	return list, rows.Err()
}

// redemptionCode is a short human-enterable voucher code.
func redemptionCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "SGM-" + strings.ToUpper(id[:10])
}
