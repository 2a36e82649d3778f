package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"expensecal/internal/core"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusCreated).
		BodyHTML("<p>ok</p>").
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("Body = %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("HX-Trigger"); got != "" {
		t.Errorf("HX-Trigger = %q, want none", got)
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()
	tx := core.Transaction{ID: 7, Title: "Netflix"}

	NewHTMXResponse().
		TriggerTransactionCreated(tx).
		TriggerCalendarRefresh().
		TriggerFormReset().
		TriggerSuccessNotification("Added Netflix").
		Write(w)

	var got map[string]any
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	want := map[string]any{
		EventTransactionCreated: map[string]any{"id": float64(7), "title": "Netflix"},
		EventCalendarRefresh:    map[string]any{},
		EventFormReset:          map[string]any{},
		EventNotification: map[string]any{
			"type":     "success",
			"message":  "Added Netflix",
			"duration": float64(3000),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HX-Trigger mismatch (-want +got):\n%s", diff)
	}
}

func TestHTMXResponseBuilder_Deleted(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().TriggerTransactionDeleted(42).Write(w)

	if got := w.Header().Get("HX-Trigger"); !strings.Contains(got, `"transaction:deleted":{"id":42}`) {
		t.Errorf("HX-Trigger = %s", got)
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Header("HX-Retarget", "#form-result").Write(w)

	if got := w.Header().Get("HX-Retarget"); got != "#form-result" {
		t.Errorf("HX-Retarget = %q", got)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		builder  *HTMXResponseBuilder
		wantCode int
		wantBody string
	}{
		{"bad request", BadRequestError("Invalid request format"), http.StatusBadRequest, "Invalid request format"},
		{"not found", NotFoundError("Expense not found"), http.StatusNotFound, "Expense not found"},
		{"internal", InternalServerError("Error saving expense"), http.StatusInternalServerError, "Error saving expense"},
		{"too many", TooManyRequestsError(), http.StatusTooManyRequests, "Too many requests"},
		{"escapes", ErrorResponse(http.StatusBadRequest, "<script>"), http.StatusBadRequest, "&lt;script&gt;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.wantBody) || !strings.Contains(body, `class="error"`) {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestValidationErrorResponse(t *testing.T) {
	_, err := core.Normalize(core.TransactionInput{Title: "Rent", Amount: "850", Category: "housing", DayOfMonth: "0"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	w := httptest.NewRecorder()
	ValidationErrorResponse(err).Write(w)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`data-error-kind="OutOfRange"`, `data-field="dayOfMonth"`, "dayOfMonth: out of range"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q: %s", want, body)
		}
	}
}

func TestMethodNotAllowedError(t *testing.T) {
	w := httptest.NewRecorder()
	MethodNotAllowedError("DELETE, POST").Write(w)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "DELETE, POST" {
		t.Errorf("Allow = %q", got)
	}
}
