package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expensecal/internal/core"
)

// formatEuros formats money as a Euro amount, e.g. "€15.49".
func formatEuros(m core.Money) string {
	s := m.String()
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		return "-€" + rest
	}
	return "€" + s
}

// sanitizeInput trims s and drops control characters other than tab,
// newline and carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// parseDate parses a YYYY-MM-DD date as UTC midnight.
func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, strings.TrimSpace(s))
}

func parseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeValidationError reports a rejected input as 422 with its kind.
func writeValidationError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Kind: core.KindName(err)}
	if ve := asValidation(err); ve != nil {
		body.Field = ve.Field
	}
	writeJSON(w, http.StatusUnprocessableEntity, body)
}

// today returns the current date at UTC midnight.
func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
