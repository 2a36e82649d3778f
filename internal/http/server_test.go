package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
	"expensecal/internal/sheets/memory"
)

type testEnv struct {
	srv   *Server
	store *memory.Store
	logs  *bytes.Buffer
}

func newTestServer(t *testing.T, seed ...core.Transaction) testEnv {
	t.Helper()
	var logs bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Component: applog.ComponentApp, Output: &logs})

	store := memory.New(seed...)
	cal := services.NewCalendarService(store, 16, time.Minute)
	txs := services.NewTransactionService(store, nil, cal.Invalidate)

	srv := NewServer(":0", Dependencies{
		Transactions: txs,
		Calendar:     cal,
		Store:        store,
		Logger:       logger,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return testEnv{srv: srv, store: store, logs: &logs}
}

func (e testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, r)
	return rr
}

func formRequest(method, target string, form url.Values) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("HX-Request", "true")
	return r
}

func validForm() url.Values {
	return url.Values{
		"title":         {"Netflix"},
		"amount":        {"15,49"},
		"category":      {"subscriptions"},
		"dayOfMonth":    {"15"},
		"recurringType": {"monthly"},
		"startingMonth": {"0"},
	}
}

func TestIndexAndProbes(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("index status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"ExpenseCal", `id="add-dialog"`, `name="title"`, `value="1.00"`, "/ui/calendar?year="} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if strings.Contains(body, `name="customRecurringMonths"`) {
		t.Error("custom interval shown for the default monthly draft")
	}
	if got := rr.Header().Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID")
	}
	if got := rr.Header().Get("Content-Security-Policy"); got == "" {
		t.Error("missing Content-Security-Policy")
	}

	if rr := env.do(httptest.NewRequest(http.MethodGet, "/nope", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rr.Code)
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d: %s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Cache-Control"); !strings.Contains(got, "max-age=3600") {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestTransactionFormShowsCustomInterval(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/transaction-form?recurringType=custom&title=Gym", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `name="customRecurringMonths"`) {
		t.Error("custom interval hidden for a custom draft")
	}
	if !strings.Contains(body, `value="Gym"`) {
		t.Error("title not carried into the form")
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/ui/transaction-form?recurringType=custom&title=Gym&reset=1", nil))
	if strings.Contains(rr.Body.String(), `value="Gym"`) {
		t.Error("reset kept the title")
	}
}

func TestCreateTransaction(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(formRequest(http.MethodPost, "/transactions", validForm()))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "€15.49") {
		t.Errorf("body = %q", rr.Body.String())
	}

	var triggers map[string]any
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("HX-Trigger: %v", err)
	}
	for _, ev := range []string{EventTransactionCreated, EventCalendarRefresh, EventFormReset, EventNotification} {
		if _, ok := triggers[ev]; !ok {
			t.Errorf("HX-Trigger missing %s: %v", ev, triggers)
		}
	}

	txs, err := env.store.ListTransactions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("stored %d transactions", len(txs))
	}
	got := txs[0]
	if got.Title != "Netflix" || got.Amount.Cents != 1549 || got.Schedule.DayOfMonth != 15 {
		t.Errorf("stored = %+v", got)
	}
	if !strings.Contains(env.logs.String(), "Transaction created") {
		t.Error("creation not logged")
	}
}

func TestCreateTransactionJSON(t *testing.T) {
	env := newTestServer(t)

	body := `{"title":"Gym","amount":"30","category":"health","dayOfMonth":"31","recurringType":"custom","customRecurringMonths":3,"startingMonth":"1"}`
	r := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	rr := env.do(r)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var got transactionJSON
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := transactionJSON{
		ID:                    got.ID,
		Title:                 "Gym",
		AmountCents:           3000,
		Category:              "health",
		DayOfMonth:            31,
		RecurringType:         "custom",
		CustomRecurringMonths: 3,
		StartingMonth:         1,
		ReferenceYear:         time.Now().Year(),
		Schedule:              got.Schedule,
		CreatedAt:             got.CreatedAt,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(url.Values)
		wantField string
		wantKind  string
	}{
		{"missing title", func(v url.Values) { v.Set("title", "  ") }, "title", "MissingField"},
		{"bad amount", func(v url.Values) { v.Set("amount", "abc") }, "amount", "InvalidNumber"},
		{"negative amount", func(v url.Values) { v.Set("amount", "-3") }, "amount", "OutOfRange"},
		{"unknown category", func(v url.Values) { v.Set("category", "yachts") }, "category", "UnknownVariant"},
		{"day out of range", func(v url.Values) { v.Set("dayOfMonth", "32") }, "dayOfMonth", "OutOfRange"},
		{"custom without months", func(v url.Values) { v.Set("recurringType", "custom") }, "customRecurringMonths", "MissingField"},
		{"starting month out of range", func(v url.Values) { v.Set("startingMonth", "12") }, "startingMonth", "OutOfRange"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t)
			form := validForm()
			tt.mutate(form)

			rr := env.do(formRequest(http.MethodPost, "/transactions", form))
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
			}
			body := rr.Body.String()
			if !strings.Contains(body, `data-field="`+tt.wantField+`"`) {
				t.Errorf("body missing field %q: %s", tt.wantField, body)
			}
			if !strings.Contains(body, `data-error-kind="`+tt.wantKind+`"`) {
				t.Errorf("body missing kind %q: %s", tt.wantKind, body)
			}
			if txs, _ := env.store.ListTransactions(context.Background()); len(txs) != 0 {
				t.Errorf("invalid submission stored %d transactions", len(txs))
			}
		})
	}
}

func TestCreateTransactionValidationJSON(t *testing.T) {
	env := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(`{"title":"","amount":"1"}`))
	r.Header.Set("Content-Type", "application/json")
	rr := env.do(r)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	var got errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Field != "title" || got.Kind != "MissingField" {
		t.Errorf("error body = %+v", got)
	}
}

func TestCreateTransactionMethodNotAllowed(t *testing.T) {
	env := newTestServer(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/transactions", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Allow"); got != http.MethodPost {
		t.Errorf("Allow = %q", got)
	}
}

func TestDeleteTransaction(t *testing.T) {
	env := newTestServer(t)
	if rr := env.do(formRequest(http.MethodPost, "/transactions", validForm())); rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}
	txs, _ := env.store.ListTransactions(context.Background())
	id := txs[0].ID

	rr := env.do(formRequest(http.MethodPost, "/transactions/delete", url.Values{"id": {itoa(id)}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rr.Code, rr.Body.String())
	}
	trig := rr.Header().Get("HX-Trigger")
	if !strings.Contains(trig, EventTransactionDeleted) || !strings.Contains(trig, EventCalendarRefresh) {
		t.Errorf("HX-Trigger = %q", trig)
	}
	if txs, _ := env.store.ListTransactions(context.Background()); len(txs) != 0 {
		t.Errorf("still listed: %+v", txs)
	}

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"already deleted", formRequest(http.MethodPost, "/transactions/delete", url.Values{"id": {itoa(id)}}), http.StatusNotFound},
		{"missing id", formRequest(http.MethodPost, "/transactions/delete", url.Values{}), http.StatusBadRequest},
		{"bad id", httptest.NewRequest(http.MethodDelete, "/transactions/delete?id=abc", nil), http.StatusBadRequest},
		{"wrong method", httptest.NewRequest(http.MethodGet, "/transactions/delete?id=1", nil), http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := env.do(tt.req); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestCalendarPartial(t *testing.T) {
	year := time.Now().Year()
	env := newTestServer(t, seedTransaction(t, "Rent", "850", "housing", "1", "monthly", ""))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/calendar?year="+itoa(int64(year))+"&month=3", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"March " + itoa(int64(year)), "Rent", "€850.00", "month=2", "month=4", "Mon"} {
		if !strings.Contains(body, want) {
			t.Errorf("calendar missing %q", want)
		}
	}
}

func TestCalendarRefreshesAfterCreate(t *testing.T) {
	env := newTestServer(t)
	year := itoa(int64(time.Now().Year()))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/calendar?year="+year+"&month=1", nil))
	if strings.Contains(rr.Body.String(), "Netflix") {
		t.Fatal("empty calendar shows Netflix")
	}
	env.do(formRequest(http.MethodPost, "/transactions", validForm()))

	rr = env.do(httptest.NewRequest(http.MethodGet, "/ui/calendar?year="+year+"&month=1", nil))
	if !strings.Contains(rr.Body.String(), "Netflix") {
		t.Error("cached month not invalidated after create")
	}
}

func TestUpcomingPartial(t *testing.T) {
	env := newTestServer(t, seedTransaction(t, "Coffee club", "4", "other", "1", "weekly", ""))
	rr := env.do(httptest.NewRequest(http.MethodGet, "/ui/upcoming", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Coffee club") {
		t.Errorf("upcoming = %s", rr.Body.String())
	}
}

func TestOccurrencesAPI(t *testing.T) {
	year := itoa(int64(time.Now().Year()))
	env := newTestServer(t, seedTransaction(t, "Netflix", "15.49", "subscriptions", "15", "monthly", ""))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/occurrences?from="+year+"-01-01&to="+year+"-03-31", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var got struct {
		From        string `json:"from"`
		To          string `json:"to"`
		Occurrences []struct {
			Date        time.Time `json:"date"`
			AmountCents int64     `json:"amountCents"`
			Title       string    `json:"title"`
		} `json:"occurrences"`
		TotalCents int64 `json:"totalCents"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Occurrences) != 3 || got.TotalCents != 3*1549 {
		t.Errorf("got %d occurrences totalling %d", len(got.Occurrences), got.TotalCents)
	}
	if got.From != year+"-01-01" || got.To != year+"-03-31" {
		t.Errorf("range = %s..%s", got.From, got.To)
	}

	rr = env.do(httptest.NewRequest(http.MethodGet, "/api/occurrences?from="+year+"-05-01&to="+year+"-04-01", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"occurrences":[]`) {
		t.Errorf("inverted range: %d %s", rr.Code, rr.Body.String())
	}

	for _, q := range []string{"from=2025-13-01", "from=2000-01-01&to=2030-01-01"} {
		if rr := env.do(httptest.NewRequest(http.MethodGet, "/api/occurrences?"+q, nil)); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, rr.Code)
		}
	}
}

func TestICSFeed(t *testing.T) {
	env := newTestServer(t, seedTransaction(t, "Insurance", "420", "insurance", "10", "yearly", ""))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/calendar.ics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "text/calendar; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	body := rr.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Insurance", "RRULE:FREQ=YEARLY"} {
		if !strings.Contains(body, want) {
			t.Errorf("ics missing %q:\n%s", want, body)
		}
	}
}

type failingStore struct{ *memory.Store }

func (failingStore) Ping(context.Context) error { return errors.New("backend down") }

func TestReadyReportsStoreFailure(t *testing.T) {
	store := memory.New()
	cal := services.NewCalendarService(store, 4, time.Minute)
	srv := NewServer(":0", Dependencies{
		Transactions: services.NewTransactionService(store, nil),
		Calendar:     cal,
		Store:        failingStore{store},
		Logger:       applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "backend down") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMetricsCounters(t *testing.T) {
	env := newTestServer(t)
	env.do(formRequest(http.MethodPost, "/transactions", validForm()))
	env.do(httptest.NewRequest(http.MethodGet, "/ui/calendar", nil))
	env.do(httptest.NewRequest(http.MethodGet, "/wp-admin/setup.php", nil))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		"expensecal_transactions_created_total 1",
		"expensecal_transactions_deleted_total 0",
		"expensecal_calendar_cache_misses_total 1",
		"expensecal_suspicious_requests_total 1",
		"# TYPE expensecal_http_requests_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestRateLimitedCreate(t *testing.T) {
	store := memory.New()
	srv := NewServer(":0", Dependencies{
		Transactions:       services.NewTransactionService(store, nil),
		Calendar:           services.NewCalendarService(store, 4, time.Minute),
		Store:              store,
		Logger:             applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
		RateLimitPerMinute: 2,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	codes := make([]int, 0, 3)
	for range 3 {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, formRequest(http.MethodPost, "/transactions", validForm()))
		codes = append(codes, rr.Code)
	}
	want := []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("status codes (-want +got):\n%s", diff)
	}
}

func seedTransaction(t *testing.T, title, amount, category, day, recurring, custom string) core.Transaction {
	t.Helper()
	tx, err := core.Normalize(core.TransactionInput{
		Title:                 title,
		Amount:                amount,
		Category:              category,
		DayOfMonth:            day,
		RecurringType:         recurring,
		CustomRecurringMonths: custom,
		StartingMonth:         "0",
	})
	if err != nil {
		t.Fatalf("seed %s: %v", title, err)
	}
	return tx
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
