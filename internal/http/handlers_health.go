package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	applog "expensecal/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

type readiness struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Cache     map[string]any    `json:"cache,omitempty"`
	RateLimit map[string]int    `json:"rateLimit"`
}

// handleReady reports whether the store answers and the templates loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := readiness{
		Status:    "ready",
		Checks:    map[string]string{"templates": "ok", "store": "ok"},
		RateLimit: map[string]int{"activeClients": s.rateLimiter.ActiveClients()},
	}
	code := http.StatusOK

	if s.templates == nil {
		ready.Checks["templates"] = "not loaded"
		ready.Status = "not ready"
		code = http.StatusServiceUnavailable
	}

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ready.Checks["store"] = err.Error()
			ready.Status = "not ready"
			code = http.StatusServiceUnavailable
		}
	}

	if s.calendar != nil {
		if c := s.calendar.Cache(); c != nil {
			st := c.Stats()
			ready.Cache = map[string]any{"entries": st.Size, "hits": st.Hits, "misses": st.Misses}
		}
	}

	writeJSON(w, code, ready)
}

// handleMetrics exposes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	counter := func(name, help string, v any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %v\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v any) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %v\n", name, help, name, name, v)
	}

	tm := s.tracer.GetMetrics()
	counter("expensecal_http_requests_total", "HTTP requests served.", tm.TotalRequests)
	gauge("expensecal_http_requests_in_flight", "HTTP requests in flight.", tm.InFlight)
	gauge("expensecal_http_response_time_avg_microseconds", "Average response time.", tm.AverageResponseTime)
	counter("expensecal_transactions_created_total", "Transactions created.", s.created.Load())
	counter("expensecal_transactions_deleted_total", "Transactions deleted.", s.deleted.Load())

	if s.calendar != nil {
		if c := s.calendar.Cache(); c != nil {
			st := c.Stats()
			counter("expensecal_calendar_cache_hits_total", "Occurrence cache hits.", st.Hits)
			counter("expensecal_calendar_cache_misses_total", "Occurrence cache misses.", st.Misses)
			gauge("expensecal_calendar_cache_entries", "Occurrence cache entries.", st.Size)
		}
	}

	rl := s.rateLimiter.GetMetrics()
	counter("expensecal_rate_limit_rejections_total", "Requests rejected by the rate limiter.", rl.TotalHits)
	gauge("expensecal_rate_limit_clients", "Clients tracked by the rate limiter.", rl.ClientCount)

	sm := s.detector.GetMetrics()
	counter("expensecal_suspicious_requests_total", "Requests flagged as probes.", sm.SuspiciousRequests)
	counter("expensecal_invalid_ip_total", "Requests with unparseable client IPs.", sm.InvalidIPAttempts)

	gauge("expensecal_uptime_seconds", "Seconds since the server started.", int64(time.Since(s.started).Seconds()))

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}
