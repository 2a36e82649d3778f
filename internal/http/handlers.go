package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"expensecal/internal/calendar"
	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
)

// upcomingDays is the window of the upcoming payments panel.
const upcomingDays = 14

type monthOption struct {
	Value string
	Name  string
}

type formView struct {
	Draft          core.Draft
	Categories     []core.Category
	RecurringTypes []core.RecurringType
	Months         []monthOption
}

func newFormView(d core.Draft) formView {
	months := make([]monthOption, 12)
	for i := range months {
		months[i] = monthOption{Value: strconv.Itoa(i), Name: time.Month(i + 1).String()}
	}
	return formView{
		Draft:          d,
		Categories:     core.Categories(),
		RecurringTypes: core.RecurringTypes(),
		Months:         months,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	now := s.now()
	data := struct {
		Year  int
		Month int
		Form  formView
	}{
		Year:  now.Year(),
		Month: int(now.Month()),
		Form:  newFormView(core.NewDraft()),
	}
	s.render(r.Context(), w, "index.html", data)
}

// handleTransactionForm re-renders the add expense form for the values
// submitted so far, so dependent fields appear and disappear.
func (s *Server) handleTransactionForm(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	draft := DraftFromValues(r.URL.Query())
	if _, reset := r.URL.Query()["reset"]; reset {
		draft = draft.Apply(core.Reset{})
	}
	s.render(r.Context(), w, "transaction_form.html", newFormView(draft))
}

// wantsJSON reports whether the caller expects JSON rather than an HTMX
// fragment.
func wantsJSON(r *http.Request, p *RequestBodyParser) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}
	return (p != nil && p.IsJSON()) || strings.Contains(r.Header.Get("Accept"), "application/json")
}

type transactionJSON struct {
	ID                    int64     `json:"id"`
	Title                 string    `json:"title"`
	AmountCents           int64     `json:"amountCents"`
	Category              string    `json:"category"`
	DayOfMonth            int       `json:"dayOfMonth"`
	RecurringType         string    `json:"recurringType"`
	CustomRecurringMonths int       `json:"customRecurringMonths,omitempty"`
	StartingMonth         int       `json:"startingMonth"`
	ReferenceYear         int       `json:"referenceYear"`
	Logo                  string    `json:"logo,omitempty"`
	Schedule              string    `json:"schedule"`
	CreatedAt             time.Time `json:"createdAt"`
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:                    tx.ID,
		Title:                 tx.Title,
		AmountCents:           tx.Amount.Cents,
		Category:              string(tx.Category),
		DayOfMonth:            tx.Schedule.DayOfMonth,
		RecurringType:         string(tx.Schedule.Type()),
		CustomRecurringMonths: tx.Schedule.CustomMonths(),
		StartingMonth:         tx.Schedule.StartingMonth,
		ReferenceYear:         tx.Schedule.ReferenceYear,
		Logo:                  tx.LogoURL,
		Schedule:              tx.Schedule.String(),
		CreatedAt:             tx.CreatedAt,
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		s.logger.WarnContext(ctx, "Parse request body failed", applog.FieldError, err)
		if wantsJSON(r, parser) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		BadRequestError("Invalid request format").Write(w)
		return
	}

	tx, err := s.transactions.Create(ctx, parser.TransactionInput())
	if err != nil {
		if core.IsValidation(err) {
			s.structured.LogValidationFailed(ctx, err)
			if wantsJSON(r, parser) {
				writeValidationError(w, err)
				return
			}
			ValidationErrorResponse(err).Write(w)
			return
		}
		s.structured.LogError(ctx, "Failed to save transaction", err, applog.ComponentCalendar, applog.OpCreate, nil)
		if wantsJSON(r, parser) {
			writeError(w, http.StatusInternalServerError, "failed to save transaction")
			return
		}
		InternalServerError("Error saving expense").Write(w)
		return
	}

	s.created.Add(1)
	s.structured.LogTransactionCreated(ctx, tx)

	if wantsJSON(r, parser) {
		writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
		return
	}
	msg := fmt.Sprintf("Added %s: %s, %s", tx.Title, formatEuros(tx.Amount), tx.Schedule.String())
	NewHTMXResponse().
		Status(http.StatusCreated).
		TriggerTransactionCreated(tx).
		TriggerCalendarRefresh().
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success" role="status">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	id, err := ParseID(r.Form)
	if err != nil {
		if wantsJSON(r, nil) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}

	tx, err := s.transactions.Delete(ctx, id)
	if err != nil {
		if services.IsNotFound(err) {
			if wantsJSON(r, nil) {
				writeError(w, http.StatusNotFound, "transaction not found")
				return
			}
			NotFoundError("Expense not found").Write(w)
			return
		}
		s.structured.LogError(ctx, "Failed to delete transaction", err, applog.ComponentCalendar, applog.OpDelete,
			applog.LogFields{applog.FieldTxID: id})
		if wantsJSON(r, nil) {
			writeError(w, http.StatusInternalServerError, "failed to delete transaction")
			return
		}
		InternalServerError("Error deleting expense").Write(w)
		return
	}

	s.deleted.Add(1)
	s.structured.LogTransactionDeleted(ctx, tx)

	if wantsJSON(r, nil) {
		writeJSON(w, http.StatusOK, toTransactionJSON(tx))
		return
	}
	// The empty body lets the row swap itself away.
	NewHTMXResponse().
		TriggerTransactionDeleted(tx.ID).
		TriggerCalendarRefresh().
		TriggerSuccessNotification("Deleted " + tx.Title).
		Write(w)
}

type calendarView struct {
	calendar.MonthView
	Weekdays  []string
	PrevYear  int
	PrevMonth int
	NextYear  int
	NextMonth int
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// handleCalendar renders the month grid partial.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := ParseMonthParams(r.URL.Query(), s.now())

	cctx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()
	view, err := s.calendar.Month(cctx, p.Year, p.Month)
	if err != nil {
		s.structured.LogError(ctx, "Calendar month failed", err, applog.ComponentCalendar, applog.OpRender,
			applog.LogFields{applog.FieldYear: p.Year, applog.FieldMonth: int(p.Month)})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<section id="calendar" class="calendar"><div class="placeholder">Error loading calendar</div></section>`))
		return
	}

	py, pm := view.Prev()
	ny, nm := view.Next()
	s.render(ctx, w, "calendar.html", calendarView{
		MonthView: view,
		Weekdays:  weekdays,
		PrevYear:  py,
		PrevMonth: int(pm),
		NextYear:  ny,
		NextMonth: int(nm),
	})
}

// handleUpcoming renders the payments due in the next two weeks.
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	from := today(s.now())
	entries, err := s.calendar.Upcoming(ctx, from, upcomingDays)
	if err != nil {
		s.structured.LogError(ctx, "Upcoming occurrences failed", err, applog.ComponentCalendar, applog.OpList, nil)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<section id="upcoming" class="upcoming"><div class="placeholder">Error loading upcoming payments</div></section>`))
		return
	}
	s.render(ctx, w, "upcoming.html", struct {
		Days    int
		Entries []calendar.Entry
		Total   core.Money
	}{upcomingDays, entries, calendar.Total(entries)})
}

type occurrencesJSON struct {
	From        string           `json:"from"`
	To          string           `json:"to"`
	Occurrences []calendar.Entry `json:"occurrences"`
	TotalCents  int64            `json:"totalCents"`
}

// handleOccurrences lists occurrences in a date range as JSON.
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	from, to, err := ParseDateRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.calendar.Occurrences(ctx, from, to)
	if err != nil {
		if errors.Is(err, services.ErrRangeTooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("range longer than %d days", services.MaxRangeDays))
			return
		}
		s.structured.LogError(ctx, "List occurrences failed", err, applog.ComponentCalendar, applog.OpList, nil)
		writeError(w, http.StatusInternalServerError, "failed to list occurrences")
		return
	}
	if entries == nil {
		entries = []calendar.Entry{}
	}
	writeJSON(w, http.StatusOK, occurrencesJSON{
		From:        from.Format(time.DateOnly),
		To:          to.Format(time.DateOnly),
		Occurrences: entries,
		TotalCents:  calendar.Total(entries).Cents,
	})
}

// handleICS serves every transaction as a subscribable iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	var buf bytes.Buffer
	if err := s.calendar.WriteICS(ctx, &buf); err != nil {
		s.structured.LogError(ctx, "Calendar export failed", err, applog.ComponentCalendar, applog.OpExport, nil)
		http.Error(w, "failed to export calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="expensecal.ics"`)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}
