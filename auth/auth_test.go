package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/sangam/config"
	"github.com/c360studio/sangam/natsutil/natstest"
)

const testSecret = "auth-test-secret-with-32-bytes-or-more"

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(testSecret, time.Hour, 24*time.Hour)
	require.NoError(t, err)
	return i
}

func TestIssueAndVerify(t *testing.T) {
	i := newTestIssuer(t)
	sub := Subject{UserID: 7, Username: "asha", Role: "FOUNDER"}

	access, err := i.IssueAccess(sub)
	require.NoError(t, err)

	c, err := i.Verify(access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, sub, c.Subject)
	assert.Equal(t, TokenAccess, c.TokenType)
	assert.NotEmpty(t, c.ID)

	_, err = i.Verify(access, TokenRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "access tokens cannot be used to refresh")

	refresh, rc, err := i.IssueRefresh(sub)
	require.NoError(t, err)
	got, err := i.Verify(refresh, TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, rc.ID, got.ID)
}

func TestVerifyRejects(t *testing.T) {
	i := newTestIssuer(t)
	sub := Subject{UserID: 7, Username: "asha", Role: "FOUNDER"}

	other, err := NewIssuer("a-different-secret-value-also-32-bytes", time.Hour, time.Hour)
	require.NoError(t, err)
	forged, err := other.IssueAccess(sub)
	require.NoError(t, err)
	_, err = i.Verify(forged, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.Verify("not-a-token", TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := time.Now().Add(-2 * time.Hour)
	i.now = func() time.Time { return past }
	expired, err := i.IssueAccess(sub)
	require.NoError(t, err)
	i.now = time.Now
	_, err = i.Verify(expired, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour, time.Hour)
	assert.Error(t, err)

	_, err = NewIssuer(strings.Repeat("k", MinSecretLength-1), time.Hour, time.Hour)
	assert.ErrorContains(t, err, "at least 32 bytes")

	i, err := NewIssuer(strings.Repeat("k", MinSecretLength), time.Hour, time.Hour)
	require.NoError(t, err)
	_, err = i.IssueAccess(Subject{UserID: 1, Username: "asha", Role: "FOUNDER"})
	require.NoError(t, err)
}

func TestDefaultConfigSecretSigns(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())

	i, err := NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	require.NoError(t, err)
	sub := Subject{UserID: 3, Username: "bikash", Role: "INVESTOR"}
	access, err := i.IssueAccess(sub)
	require.NoError(t, err)
	claims, err := i.Verify(access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, sub, claims.Subject)
}

func TestPasswords(t *testing.T) {
	_, err := HashPassword("12345")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("pass1234")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "pass1234"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestRequireMiddleware(t *testing.T) {
	i := newTestIssuer(t)
	handler := i.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserID(r.Context()) != 7 {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	access, err := i.IssueAccess(Subject{UserID: 7, Username: "asha"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "bearer header", header: "Bearer " + access, want: http.StatusNoContent},
		{name: "query token", query: "?token=" + access, want: http.StatusNoContent},
		{name: "garbage", header: "Bearer nope", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSessionStore(t *testing.T) {
	nc := natstest.Start(t)
	ctx := context.Background()

	sessions, err := NewSessionStore(ctx, nc.JS, time.Hour)
	require.NoError(t, err)

	i := newTestIssuer(t)
	_, first, err := i.IssueRefresh(Subject{UserID: 1, Username: "a"})
	require.NoError(t, err)
	_, second, err := i.IssueRefresh(Subject{UserID: 1, Username: "a"})
	require.NoError(t, err)
	_, other, err := i.IssueRefresh(Subject{UserID: 11, Username: "b"})
	require.NoError(t, err)

	for _, c := range []*Claims{first, second, other} {
		require.NoError(t, sessions.Record(ctx, c))
	}
	require.NoError(t, sessions.Check(ctx, first))

	require.NoError(t, sessions.Revoke(ctx, first))
	assert.ErrorIs(t, sessions.Check(ctx, first), ErrSessionRevoked)
	require.NoError(t, sessions.Check(ctx, second))

	n, err := sessions.RevokeAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, sessions.Check(ctx, second), ErrSessionRevoked)
	require.NoError(t, sessions.Check(ctx, other), "user 11 is not affected by user 1's prefix")

	n, err = sessions.RevokeAll(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n, "deleted sessions are not listed again")

	n, err = sessions.RevokeAll(ctx, 404)
	require.NoError(t, err)
	assert.Zero(t, n)
}
