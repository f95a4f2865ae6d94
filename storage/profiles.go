package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExpertProfile is the marketplace listing for an expert.
type ExpertProfile struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Username       string          `json:"username"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Specialization string          `json:"specialization"`
	Bio            string          `json:"bio"`
	HourlyRate     decimal.Decimal `json:"hourly_rate"`
	Rating         decimal.Decimal `json:"rating"`
	IsVetted       bool            `json:"is_vetted"`
}

// FounderProfile holds company details for a founder.
type FounderProfile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	CompanyName string    `json:"company_name"`
	FoundedDate *DateOnly `json:"founded_date"`
	TeamSize    int       `json:"team_size"`
	Traction    string    `json:"traction"`
	Website     string    `json:"website"`
}

// InvestorProfile holds an investor's mandate.
type InvestorProfile struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user_id"`
	FirmName         string          `json:"firm_name"`
	InvestmentStage  string          `json:"investment_stage"`
	AvailableCapital decimal.Decimal `json:"available_capital"`
	FocusAreas       string          `json:"focus_areas"`
}

// InvestmentStages are the stages an investor can target.
var InvestmentStages = []string{"PRESEED", "SEED", "SERIES_A", "LATE", "ANGEL"}

// DateOnly is a calendar date carried as YYYY-MM-DD on the wire.
type DateOnly struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (DateOnly, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return DateOnly{}, err
	}
	return DateOnly{t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d DateOnly) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DateOnly) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	*d = parsed
	return nil
}

// ExpertFilter narrows the expert listing.
type ExpertFilter struct {
	Specialization string
	Vetted         *bool
}

const expertSelect = `
	SELECT e.id, e.user_id, u.username, u.first_name, u.last_name, e.specialization, e.bio,
		e.hourly_rate, e.rating, e.is_vetted
	FROM expert_profiles e JOIN users u ON u.id = e.user_id`

func scanExpert(row scanner) (*ExpertProfile, error) {
	var (
		p            ExpertProfile
		rate, rating string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Username, &p.FirstName, &p.LastName,
		&p.Specialization, &p.Bio, &rate, &rating, &p.IsVetted); err != nil {
		return nil, err
	}
	p.HourlyRate = parseDecimal(rate)
	p.Rating = parseDecimal(rating)
	return &p, nil
}

// ListExperts returns expert profiles matching the filter, highest rated first.
func (s *Store) ListExperts(ctx context.Context, f ExpertFilter) ([]*ExpertProfile, error) {
	var (
		where []string
		args  []any
	)
	if f.Specialization != "" {
		where = append(where, "LOWER(e.specialization) LIKE ? ESCAPE '\\'")
		args = append(args, "%"+strings.ToLower(escapeLike(f.Specialization))+"%")
	}
	if f.Vetted != nil {
		where = append(where, "e.is_vetted = ?")
		args = append(args, boolToInt(*f.Vetted))
	}

	query := expertSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY CAST(e.rating AS REAL) DESC, e.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list experts: %w", err)
	}
	defer rows.Close()

	experts := make([]*ExpertProfile, 0)
	for rows.Next() {
		p, err := scanExpert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expert: %w", err)
		}
		experts = append(experts, p)
	}
	return experts, rows.Err()
}

// GetExpert retrieves an expert profile by profile ID.
func (s *Store) GetExpert(ctx context.Context, id int64) (*ExpertProfile, error) {
	return s.getExpert(ctx, s.db, "e.id = ?", id)
}

// GetExpertByUser retrieves the expert profile owned by userID.
func (s *Store) GetExpertByUser(ctx context.Context, userID int64) (*ExpertProfile, error) {
	return s.getExpert(ctx, s.db, "e.user_id = ?", userID)
}

func (s *Store) getExpert(ctx context.Context, q queryer, where string, arg any) (*ExpertProfile, error) {
	p, err := scanExpert(q.QueryRowContext(ctx, expertSelect+" WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expert: %w", err)
	}
	return p, nil
}

// UpsertExpertProfile creates or replaces the expert profile for p.UserID.
// Rating and vetting are only set on insert.
func (s *Store) UpsertExpertProfile(ctx context.Context, p *ExpertProfile) error {
	if p.Rating.IsZero() {
		p.Rating = decimal.NewFromInt(5)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expert_profiles (user_id, specialization, bio, hourly_rate, rating, is_vetted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			specialization = excluded.specialization,
			bio = excluded.bio,
			hourly_rate = excluded.hourly_rate`,
		p.UserID, p.Specialization, p.Bio, p.HourlyRate.StringFixed(2), p.Rating.StringFixed(2),
		boolToInt(p.IsVetted))
	if err != nil {
		return fmt.Errorf("upsert expert profile: %w", err)
	}

	saved, err := s.GetExpertByUser(ctx, p.UserID)
	if err != nil {
		return err
	}
	*p = *saved
	return nil
}

// GetFounderProfile retrieves the founder profile owned by userID.
func (s *Store) GetFounderProfile(ctx context.Context, userID int64) (*FounderProfile, error) {
	var (
		p                                FounderProfile
		company, founded, traction, site sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, company_name, founded_date, team_size, traction, website
		FROM founder_profiles WHERE user_id = ?`, userID).
		Scan(&p.ID, &p.UserID, &company, &founded, &p.TeamSize, &traction, &site)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get founder profile: %w", err)
	}
	p.CompanyName = company.String
	p.Traction = traction.String
	p.Website = site.String
	if founded.Valid {
		if d, err := ParseDate(founded.String); err == nil {
			p.FoundedDate = &d
		}
	}
	return &p, nil
}

// UpsertFounderProfile creates or replaces the founder profile for p.UserID.
func (s *Store) UpsertFounderProfile(ctx context.Context, p *FounderProfile) error {
	if p.TeamSize <= 0 {
		p.TeamSize = 1
	}
	var founded sql.NullString
	if p.FoundedDate != nil {
		founded = sql.NullString{String: p.FoundedDate.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO founder_profiles (user_id, company_name, founded_date, team_size, traction, website)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			company_name = excluded.company_name,
			founded_date = excluded.founded_date,
			team_size = excluded.team_size,
			traction = excluded.traction,
			website = excluded.website`,
		p.UserID, nullString(p.CompanyName), founded, p.TeamSize, nullString(p.Traction), nullString(p.Website))
	if err != nil {
		return fmt.Errorf("upsert founder profile: %w", err)
	}

	saved, err := s.GetFounderProfile(ctx, p.UserID)
	if err != nil {
		return err
	}
	*p = *saved
	return nil
}

// GetInvestorProfile retrieves the investor profile owned by userID.
func (s *Store) GetInvestorProfile(ctx context.Context, userID int64) (*InvestorProfile, error) {
	var (
		p           InvestorProfile
		firm, focus sql.NullString
		capital     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, firm_name, investment_stage, available_capital, focus_areas
		FROM investor_profiles WHERE user_id = ?`, userID).
		Scan(&p.ID, &p.UserID, &firm, &p.InvestmentStage, &capital, &focus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get investor profile: %w", err)
	}
	p.FirmName = firm.String
	p.FocusAreas = focus.String
	p.AvailableCapital = parseDecimal(capital)
	return &p, nil
}

// UpsertInvestorProfile creates or replaces the investor profile for p.UserID.
func (s *Store) UpsertInvestorProfile(ctx context.Context, p *InvestorProfile) error {
	if p.InvestmentStage == "" {
		p.InvestmentStage = "SEED"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO investor_profiles (user_id, firm_name, investment_stage, available_capital, focus_areas)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			firm_name = excluded.firm_name,
			investment_stage = excluded.investment_stage,
			available_capital = excluded.available_capital,
			focus_areas = excluded.focus_areas`,
		p.UserID, nullString(p.FirmName), p.InvestmentStage, p.AvailableCapital.StringFixed(2), nullString(p.FocusAreas))
	if err != nil {
		return fmt.Errorf("upsert investor profile: %w", err)
	}

	saved, err := s.GetInvestorProfile(ctx, p.UserID)
	if err != nil {
		return err
	}
	*p = *saved
	return nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
