// Package storagetest opens throwaway stores for tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/c360studio/sangam/storage"
)

// Open returns a migrated store in a temp directory, closed when t ends.
func Open(t testing.TB) *storage.Store {
	t.Helper()

	s, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "sangam.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// CreateUser inserts an active user with the given role. mutate, if set,
// adjusts the user before insert.
func CreateUser(t testing.TB, s *storage.Store, username string, role storage.Role, mutate ...func(*storage.User)) *storage.User {
	t.Helper()

	u := &storage.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         role,
	}
	for _, fn := range mutate {
		fn(u)
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// CreateExpert inserts an expert user with a marketplace profile.
func CreateExpert(t testing.TB, s *storage.Store, username, specialization, hourlyRate string, vetted bool) *storage.ExpertProfile {
	t.Helper()

	u := CreateUser(t, s, username, storage.RoleExpert)
	p := &storage.ExpertProfile{
		UserID:         u.ID,
		Specialization: specialization,
		Bio:            "Advisor",
		HourlyRate:     decimal.RequireFromString(hourlyRate),
		IsVetted:       vetted,
	}
	if err := s.UpsertExpertProfile(context.Background(), p); err != nil {
		t.Fatalf("create expert %s: %v", username, err)
	}
	return p
}
