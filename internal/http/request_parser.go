// Package http serves the calendar UI, the transaction form endpoints and
// the JSON and iCalendar feeds.
//
// This file holds the helpers that turn query strings and request bodies
// into typed values.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensecal/internal/core"
)

// maxBodyBytes bounds transaction submissions.
const maxBodyBytes = 64 << 10

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month time.Month
}

// ParseMonthParams reads year and month from query, falling back to the
// month of now for missing or invalid values.
func ParseMonthParams(query url.Values, now time.Time) MonthParams {
	params := MonthParams{Year: now.Year(), Month: now.Month()}

	if y := parseIntDefault(query.Get("year"), 0); y >= 1 && y <= 9999 {
		params.Year = y
	}
	if m := parseIntDefault(query.Get("month"), 0); m >= 1 && m <= 12 {
		params.Month = time.Month(m)
	}
	return params
}

// ParseDateRange reads from and to as YYYY-MM-DD. Missing bounds default to
// the first and last day of the month of now.
func ParseDateRange(query url.Values, now time.Time) (time.Time, time.Time, error) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from, to := first, first.AddDate(0, 1, -1)

	if v := query.Get("from"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q: want YYYY-MM-DD", v)
		}
		from = d
	}
	if v := query.Get("to"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q: want YYYY-MM-DD", v)
		}
		to = d
	}
	return from, to, nil
}

// ParseID reads a positive transaction ID from the id parameter.
func ParseID(values url.Values) (int64, error) {
	raw := strings.TrimSpace(values.Get("id"))
	if raw == "" {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if p.err == nil && len(p.body) > maxBodyBytes {
			p.err = fmt.Errorf("request body larger than %d bytes", maxBodyBytes)
		}
	}
	return p
}

// Parse decodes the body as JSON when it is declared or looks like JSON,
// and as a form otherwise.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = fmt.Errorf("decode JSON body: %w", err)
		}
		return p.err
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// TransactionInput collects the add expense fields. An absent day of month
// falls back to 1 as in the dialog; every other field is passed through
// for normalization.
func (p *RequestBodyParser) TransactionInput() core.TransactionInput {
	d := core.NewDraft().Apply(
		core.SetTitle(p.Get("title")),
		core.SetAmount(p.Get("amount")),
		core.SetCategory(p.Get("category")),
		core.SetDayOfMonth(p.Get("dayOfMonth")),
		core.SetRecurringType(p.Get("recurringType")),
		core.SetCustomMonths(p.Get("customRecurringMonths")),
		core.SetStartingMonth(p.Get("startingMonth")),
		core.SetLogo(p.Get("logo")),
	)
	return d.Input()
}

// DraftFromValues applies the fields present in values to the dialog
// defaults. It drives re-rendering of the form as the user edits it.
func DraftFromValues(values url.Values) core.Draft {
	var actions []core.Action
	add := func(key string, action func(string) core.Action) {
		if _, ok := values[key]; ok {
			actions = append(actions, action(sanitizeInput(values.Get(key))))
		}
	}
	add("title", func(s string) core.Action { return core.SetTitle(s) })
	add("amount", func(s string) core.Action { return core.SetAmount(s) })
	add("category", func(s string) core.Action { return core.SetCategory(s) })
	add("dayOfMonth", func(s string) core.Action { return core.SetDayOfMonth(s) })
	add("recurringType", func(s string) core.Action { return core.SetRecurringType(s) })
	add("customRecurringMonths", func(s string) core.Action { return core.SetCustomMonths(s) })
	add("startingMonth", func(s string) core.Action { return core.SetStartingMonth(s) })
	add("logo", func(s string) core.Action { return core.SetLogo(s) })
	return core.NewDraft().Apply(actions...)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// RequireMethod returns a 405 response when r uses none of methods.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}

func RequireGET(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}
