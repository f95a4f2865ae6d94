// Package apitest holds helpers for exercising HTTP components in tests.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/c360studio/sangam/auth"
	"github.com/c360studio/sangam/storage"
)

// Secret signs test tokens.
const Secret = "sangam-test-signing-secret-0123456789"

// NewIssuer returns an Issuer signing with Secret.
func NewIssuer(t testing.TB) *auth.Issuer {
	t.Helper()

	i, err := auth.NewIssuer(Secret, time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("create issuer: %v", err)
	}
	return i
}

// Token returns an access token for u.
func Token(t testing.TB, i *auth.Issuer, u *storage.User) string {
	t.Helper()

	tok, err := i.IssueAccess(auth.Subject{UserID: u.ID, Username: u.Username, Role: string(u.Role)})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// Response is a decoded HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into dst.
func (r *Response) Decode(t testing.TB, dst any) {
	t.Helper()
	if err := json.Unmarshal(r.Body, dst); err != nil {
		t.Fatalf("decode response %q: %v", r.Body, err)
	}
}

// Map decodes the body as a JSON object.
func (r *Response) Map(t testing.TB) map[string]any {
	t.Helper()
	var m map[string]any
	r.Decode(t, &m)
	return m
}

// Do sends a request to baseURL+path. body, when non-nil, is sent as JSON;
// token, when non-empty, as a bearer credential.
func Do(t testing.TB, method, url, token string, body any) *Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
}

// ID formats an id for use in a URL path.
func ID(id int64) string {
	return strconv.FormatInt(id, 10)
}
