package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is a member's platform role.
type Role string

const (
	RoleFounder  Role = "FOUNDER"
	RoleInvestor Role = "INVESTOR"
	RoleExpert   Role = "EXPERT"
)

// Persona is a founder's co-founder archetype.
type Persona string

const (
	PersonaHacker  Persona = "HACKER"
	PersonaHipster Persona = "HIPSTER"
	PersonaHustler Persona = "HUSTLER"
	PersonaNone    Persona = "NONE"
)

// Stage is a startup's maturity.
type Stage string

const (
	StageIdea    Stage = "IDEA"
	StageMVP     Stage = "MVP"
	StageRevenue Stage = "REVENUE"
	StageNone    Stage = "NONE"
)

// ProvinceNone marks a member without a declared province.
const ProvinceNone = "NONE"

// Provinces lists Nepal's seven provinces in numeric order (Province 1 is KOSHI).
var Provinces = []string{"KOSHI", "MADHESH", "BAGMATI", "GANDAKI", "LUMBINI", "KARNALI", "SUDURPASHCHIM"}

// InterestTags is the catalogue of tags members, syndicates and offers carry.
var InterestTags = []string{"Agriculture", "Tech", "FinTech", "Health", "Education", "Manufacturing", "AI", "Sustainability", "General"}

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleFounder, RoleInvestor, RoleExpert:
		return true
	}
	return false
}

// ValidPersona reports whether p is a known persona.
func ValidPersona(p Persona) bool {
	switch p {
	case PersonaHacker, PersonaHipster, PersonaHustler, PersonaNone:
		return true
	}
	return false
}

// ValidStage reports whether s is a known startup stage.
func ValidStage(s Stage) bool {
	switch s {
	case StageIdea, StageMVP, StageRevenue, StageNone:
		return true
	}
	return false
}

// ValidProvince reports whether p is a province name or NONE.
func ValidProvince(p string) bool {
	if p == ProvinceNone {
		return true
	}
	for _, name := range Provinces {
		if name == p {
			return true
		}
	}
	return false
}

// User is a registered member.
type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Role            Role      `json:"role"`
	Persona         Persona   `json:"persona"`
	NagarikID       string    `json:"nagarik_id"`
	LinkedInProfile string    `json:"linkedin_profile"`
	StartupStage    Stage     `json:"startup_stage"`
	KarmaScore      int       `json:"karma_score"`
	Province        string    `json:"province"`
	PhoneNumber     string    `json:"phone_number"`
	Bio             string    `json:"bio"`
	IsVerified      bool      `json:"is_verified"`
	IsActive        bool      `json:"-"`
	InterestTags    []string  `json:"interest_tags"`
	DateJoined      time.Time `json:"date_joined"`
}

const userColumns = `id, username, email, password_hash, first_name, last_name, role, persona,
	nagarik_id, linkedin_profile, startup_stage, karma_score, province, phone_number, bio,
	is_verified, is_active, interest_tags, date_joined`

func scanUser(row scanner) (*User, error) {
	var (
		u                                       User
		nagarik, linkedin, phone, bio, tags, dj sql.NullString
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.Persona, &nagarik, &linkedin, &u.StartupStage, &u.KarmaScore, &u.Province,
		&phone, &bio, &u.IsVerified, &u.IsActive, &tags, &dj)
	if err != nil {
		return nil, err
	}
	u.NagarikID = nagarik.String
	u.LinkedInProfile = linkedin.String
	u.PhoneNumber = phone.String
	u.Bio = bio.String
	u.InterestTags = decodeTags(tags.String)
	u.DateJoined = parseTime(dj.String)
	return &u, nil
}

// applyUserDefaults fills zero-valued enum fields with their defaults.
func applyUserDefaults(u *User) {
	if u.Role == "" {
		u.Role = RoleFounder
	}
	if u.Persona == "" {
		u.Persona = PersonaNone
	}
	if u.StartupStage == "" {
		u.StartupStage = StageNone
	}
	if u.Province == "" {
		u.Province = ProvinceNone
	}
	if u.InterestTags == nil {
		u.InterestTags = []string{}
	}
}

// CreateUser inserts a new user and sets its ID and join date.
// Returns ErrConflict if the username or email is taken.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	applyUserDefaults(u)
	u.DateJoined = s.now()
	u.IsActive = true

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, role, persona,
			nagarik_id, linkedin_profile, startup_stage, karma_score, province, phone_number, bio,
			is_verified, is_active, interest_tags, date_joined)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.Persona,
		nullString(u.NagarikID), nullString(u.LinkedInProfile), u.StartupStage, u.KarmaScore,
		u.Province, nullString(u.PhoneNumber), nullString(u.Bio), boolToInt(u.IsVerified), 1,
		encodeTags(u.InterestTags), formatTime(u.DateJoined))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read user id: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, s.db, "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, s.db, "username = ?", username)
}

func (s *Store) getUser(ctx context.Context, q queryer, where string, arg any) (*User, error) {
	u, err := scanUser(q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UsernameTaken reports whether another user (not excludeID) has username.
func (s *Store) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM users WHERE username = ? AND id != ?", username, excludeID)
}

// EmailTaken reports whether another user (not excludeID) has email.
func (s *Store) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	return s.exists(ctx, "SELECT 1 FROM users WHERE email = ? AND id != ?", email, excludeID)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists query: %w", err)
	}
	return true, nil
}

// UpdateUser persists the editable profile fields of u.
// Password, karma score and verification are not touched.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	applyUserDefaults(u)
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = ?, email = ?, first_name = ?, last_name = ?, role = ?,
			persona = ?, nagarik_id = ?, linkedin_profile = ?, startup_stage = ?, province = ?,
			phone_number = ?, bio = ?, interest_tags = ?
		WHERE id = ?`,
		u.Username, u.Email, u.FirstName, u.LastName, u.Role, u.Persona,
		nullString(u.NagarikID), nullString(u.LinkedInProfile), u.StartupStage, u.Province,
		nullString(u.PhoneNumber), nullString(u.Bio), encodeTags(u.InterestTags), u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(res)
}

// SetPassword replaces a user's password hash.
func (s *Store) SetPassword(ctx context.Context, userID int64, hash string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", hash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireAffected(res)
}

// DiscoveryFilter narrows Jodi co-founder discovery.
type DiscoveryFilter struct {
	// ExcludeUserID is the caller, never returned.
	ExcludeUserID int64
	// ExcludePersona drops founders with this persona (ignored when Persona is set).
	ExcludePersona Persona
	Search         string
	Tags           []string
	Persona        Persona
	Stage          Stage
	Province       string
	Limit          int
}

// DiscoverFounders returns active founders matching the filter, newest first.
func (s *Store) DiscoverFounders(ctx context.Context, f DiscoveryFilter) ([]*User, error) {
	var (
		where = []string{"role = ?", "is_active = 1", "id != ?"}
		args  = []any{RoleFounder, f.ExcludeUserID}
	)

	if f.Persona != "" {
		where = append(where, "persona = ?")
		args = append(args, f.Persona)
	} else if f.ExcludePersona != "" {
		where = append(where, "persona != ?")
		args = append(args, f.ExcludePersona)
	}
	if f.Stage != "" {
		where = append(where, "startup_stage = ?")
		args = append(args, f.Stage)
	}
	if f.Province != "" {
		where = append(where, "province = ?")
		args = append(args, f.Province)
	}
	if f.Search != "" {
		like := "%" + escapeLike(f.Search) + "%"
		where = append(where, `(username LIKE ? ESCAPE '\' OR first_name LIKE ? ESCAPE '\'
			OR last_name LIKE ? ESCAPE '\' OR bio LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like)
	}
	if len(f.Tags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Tags)), ",")
		where = append(where, "EXISTS (SELECT 1 FROM json_each(users.interest_tags) WHERE json_each.value IN ("+placeholders+"))")
		for _, t := range f.Tags {
			args = append(args, t)
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE "+strings.Join(where, " AND ")+" ORDER BY id DESC LIMIT ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("discover founders: %w", err)
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

// ListUsersByRole returns active users with the given role, oldest first.
func (s *Store) ListUsersByRole(ctx context.Context, role Role, limit int) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role = ? AND is_active = 1 ORDER BY id LIMIT ?", role, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
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

// UserCounts summarises membership for the public stats view.
type UserCounts struct {
	Total      int
	ByRole     map[Role]int
	ByProvince map[string]int
}

// CountUsers aggregates member totals by role and province.
func (s *Store) CountUsers(ctx context.Context) (*UserCounts, error) {
	counts := &UserCounts{
		ByRole:     make(map[Role]int),
		ByProvince: make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT role, province, COUNT(*) FROM users GROUP BY role, province")
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			role     Role
			province string
			n        int
		)
		if err := rows.Scan(&role, &province, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts.Total += n
		counts.ByRole[role] += n
		counts.ByProvince[province] += n
	}
	return counts, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
