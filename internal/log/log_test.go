package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"expensecal/internal/core"
)

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: slog.LevelDebug, Component: component, Output: &buf}), &buf
}

func TestLogger_TagsComponent(t *testing.T) {
	l, buf := newBufferLogger(ComponentApp)
	l.WithComponent(ComponentWorker).Info("hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "k=v") {
		t.Errorf("output = %q", out)
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component repeated: %q", out)
	}
}

func TestLogFields_WithError(t *testing.T) {
	_, err := core.Normalize(core.TransactionInput{Title: "x", Amount: "abc"})
	f := NewFields().WithError(err)

	if f[FieldErrorKind] != "InvalidNumber" || f[FieldErrorField] != "amount" {
		t.Errorf("fields = %v", f)
	}

	plain := NewFields().WithError(errors.New("boom"))
	if _, ok := plain[FieldErrorKind]; ok {
		t.Errorf("kind set for plain error: %v", plain)
	}
	if len(NewFields().WithError(nil)) != 0 {
		t.Error("nil error added fields")
	}
}

func TestStructuredLogger_HTTPLevels(t *testing.T) {
	l, buf := newBufferLogger(ComponentApp)
	sl := NewStructuredLogger(l)
	r := httptest.NewRequest(http.MethodGet, "/ui/calendar?year=2025", nil)

	sl.LogHTTPEnd(context.Background(), r, 200, 3, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), r, 422, 3, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), r, 503, 3, "1.2.3.4")

	out := buf.String()
	for _, want := range []string{"level=INFO", "level=WARN", "level=ERROR", "status_code=422", "component=http"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMiddleware_FromContext(t *testing.T) {
	l, buf := newBufferLogger(ComponentHTTP)
	var got *Logger
	h := Middleware(l)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	got.Info("inside")
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("output = %q", buf.String())
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("fallback logger component")
	}
}
