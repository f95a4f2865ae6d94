// Package api holds the JSON request and response helpers shared by the
// HTTP components.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/c360studio/sangam/storage"
)

// MaxRequestBodySize limits request bodies.
const MaxRequestBodySize = 1 << 20 // 1 MB

// FieldErrors maps a request field to its validation messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Empty reports whether no errors were recorded.
func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// MaxMoney is the largest value with 12 digits, 2 of them decimal. Money
// columns are stored with that precision.
var MaxMoney = decimal.RequireFromString("9999999999.99")

// CheckMoney records an error for field when d has more than 2 decimal
// places or more than 12 digits.
func (f FieldErrors) CheckMoney(field string, d decimal.Decimal) {
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		f.Add(field, "Ensure that there are no more than 2 decimal places.")
	}
	if d.Abs().GreaterThan(MaxMoney) {
		f.Add(field, "Ensure that there are no more than 12 digits in total.")
	}
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Response is already partially written on failure; nothing to recover.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteFieldErrors writes a 400 with per-field messages.
func WriteFieldErrors(w http.ResponseWriter, errs FieldErrors) {
	WriteJSON(w, http.StatusBadRequest, errs)
}

// Decode reads a JSON body into dst, bounded by MaxRequestBodySize. An empty
// body leaves dst untouched.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// Prefix normalises a mount prefix such as "api/core" to "/api/core/".
func Prefix(prefix string) string {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// PathID parses the named path wildcard as a positive integer id.
func PathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// WriteStoreError maps storage errors to responses: ErrNotFound → 404,
// ErrConflict → 400, ErrInactive → 404, ErrInvalidState → 400 and
// anything else → 500 (logged).
func WriteStoreError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) {
	var insufficient *storage.InsufficientKarmaError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInactive):
		WriteError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, storage.ErrConflict):
		WriteError(w, http.StatusBadRequest, "Already exists")
	case errors.Is(err, storage.ErrInvalidState):
		WriteError(w, http.StatusBadRequest, "Invalid state for this action")
	case errors.As(err, &insufficient):
		WriteError(w, http.StatusBadRequest, insufficient.Error())
	default:
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("Request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
