package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/sangam/natsutil"
)

// BucketSessions holds one key per live refresh token.
const BucketSessions = "SANGAM_SESSIONS"

// ErrSessionRevoked is returned when a refresh token's session is gone.
var ErrSessionRevoked = errors.New("session revoked")

// SessionStore records live refresh tokens in a JetStream KV bucket under
// keys of the form <user_id>.<jti>. Entries expire with the bucket TTL.
type SessionStore struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// NewSessionStore opens (creating if needed) the sessions bucket.
func NewSessionStore(ctx context.Context, js jetstream.JetStream, ttl time.Duration) (*SessionStore, error) {
	kv, err := natsutil.KeyValue(ctx, js, BucketSessions, ttl)
	if err != nil {
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}
	return &SessionStore{kv: kv, now: time.Now}, nil
}

func sessionKey(userID int64, jti string) string {
	return strconv.FormatInt(userID, 10) + "." + jti
}

// Record stores the session for a freshly issued refresh token.
func (s *SessionStore) Record(ctx context.Context, c *Claims) error {
	if _, err := s.kv.Put(ctx, sessionKey(c.UserID, c.ID), []byte(s.now().UTC().Format(time.RFC3339))); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Check returns ErrSessionRevoked if the token's session no longer exists.
func (s *SessionStore) Check(ctx context.Context, c *Claims) error {
	_, err := s.kv.Get(ctx, sessionKey(c.UserID, c.ID))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return ErrSessionRevoked
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return nil
}

// Revoke ends a single session. Revoking an unknown session is not an error.
func (s *SessionStore) Revoke(ctx context.Context, c *Claims) error {
	if err := s.kv.Delete(ctx, sessionKey(c.UserID, c.ID)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll ends every session for the user and returns how many were
// removed. Only the user's keys are listed; the bucket filters by subject.
func (s *SessionStore) RevokeAll(ctx context.Context, userID int64) (int, error) {
	lister, err := s.kv.ListKeysFiltered(ctx, strconv.FormatInt(userID, 10)+".>")
	if err != nil {
		return 0, fmt.Errorf("list session keys: %w", err)
	}
	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}

	revoked := 0
	for _, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil {
			return revoked, fmt.Errorf("revoke session %s: %w", key, err)
		}
		revoked++
	}
	return revoked, nil
}
