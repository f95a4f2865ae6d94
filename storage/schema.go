package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema versions:
// v1: users, role profiles, messages, KPI snapshots, syndicates, investments
// v2: bookings, notifications, trial proposals
// v3: points, redeem offers, redemptions
// v4: message read receipts, pulse reminder log
const CurrentSchemaVersion = 4

var migrations = []string{
	// v1
	`
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'FOUNDER',
		persona TEXT NOT NULL DEFAULT 'NONE',
		nagarik_id TEXT,
		linkedin_profile TEXT,
		startup_stage TEXT NOT NULL DEFAULT 'NONE',
		karma_score INTEGER NOT NULL DEFAULT 0,
		province TEXT NOT NULL DEFAULT 'NONE',
		phone_number TEXT,
		bio TEXT,
		is_verified INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		interest_tags TEXT NOT NULL DEFAULT '[]',
		date_joined TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
	CREATE INDEX IF NOT EXISTS idx_users_province ON users(province);

	CREATE TABLE IF NOT EXISTS founder_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		company_name TEXT,
		founded_date TEXT,
		team_size INTEGER NOT NULL DEFAULT 1,
		traction TEXT,
		website TEXT
	);

	CREATE TABLE IF NOT EXISTS investor_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		firm_name TEXT,
		investment_stage TEXT NOT NULL DEFAULT 'SEED',
		available_capital TEXT NOT NULL DEFAULT '0',
		focus_areas TEXT
	);

	CREATE TABLE IF NOT EXISTS expert_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		specialization TEXT NOT NULL,
		bio TEXT NOT NULL DEFAULT '',
		hourly_rate TEXT NOT NULL,
		rating TEXT NOT NULL DEFAULT '5.00',
		is_vetted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id);

	CREATE TABLE IF NOT EXISTS kpi_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		week_ending TEXT NOT NULL,
		revenue TEXT NOT NULL DEFAULT '0',
		users INTEGER NOT NULL DEFAULT 0,
		expenses TEXT NOT NULL DEFAULT '0',
		is_public INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (user_id, week_ending)
	);

	CREATE TABLE IF NOT EXISTS syndicates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		founder_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		funding_goal TEXT NOT NULL,
		current_funding TEXT NOT NULL DEFAULT '0',
		is_active INTEGER NOT NULL DEFAULT 1,
		interest_tags TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_syndicates_active ON syndicates(is_active);

	CREATE TABLE IF NOT EXISTS investments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		syndicate_id INTEGER NOT NULL REFERENCES syndicates(id) ON DELETE CASCADE,
		investor_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`,
	// v2
	`
	CREATE TABLE IF NOT EXISTS bookings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		expert_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		client_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_free_intro INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bookings_client ON bookings(client_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_expert ON bookings(expert_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		notification_type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, read);

	CREATE TABLE IF NOT EXISTS trial_proposals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		proposer_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		recipient_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		message TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`,
	// v3
	`
	CREATE TABLE IF NOT EXISTS points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		points INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_points_user ON points(user_id);

	CREATE TABLE IF NOT EXISTS redeem_offers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		company_name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL,
		discount_percent INTEGER NOT NULL,
		points_required INTEGER NOT NULL,
		interest_tags TEXT NOT NULL DEFAULT '[]',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS redemptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		offer_id INTEGER NOT NULL REFERENCES redeem_offers(id),
		points_spent INTEGER NOT NULL,
		code TEXT NOT NULL,
		redeemed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_redemptions_user ON redemptions(user_id);
	`,
	// v4
	`
	ALTER TABLE messages ADD COLUMN read_at TEXT;

	CREATE TABLE IF NOT EXISTS pulse_reminders (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		week_ending TEXT NOT NULL,
		sent_at TEXT NOT NULL,
		PRIMARY KEY (user_id, week_ending)
	);
	`,
}

// SchemaVersion reports the schema version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// migrate applies every migration newer than the recorded schema version.
func (s *Store) migrate(ctx context.Context) error {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, CurrentSchemaVersion)
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
				return fmt.Errorf("apply v%d: %w", v+1, err)
			}
			// PRAGMA does not accept bound parameters.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
				return fmt.Errorf("record v%d: %w", v+1, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
