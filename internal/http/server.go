package http

import (
	"context"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"expensecal/internal/cache"
	"expensecal/internal/calendar"
	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/middleware/ratelimit"
	"expensecal/internal/middleware/security"
	"expensecal/internal/middleware/trace"
	appweb "expensecal/web"
)

// TransactionManager creates and deletes transactions.
type TransactionManager interface {
	Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	Delete(ctx context.Context, id int64) (core.Transaction, error)
}

// CalendarReader renders stored transactions as calendar data.
type CalendarReader interface {
	Month(ctx context.Context, year int, month time.Month) (calendar.MonthView, error)
	Occurrences(ctx context.Context, from, to time.Time) ([]calendar.Entry, error)
	Upcoming(ctx context.Context, from time.Time, days int) ([]calendar.Entry, error)
	WriteICS(ctx context.Context, w io.Writer) error
	Cache() *cache.LRUCache[[]calendar.Entry]
}

// Pinger reports whether the data backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the server to the application services.
type Dependencies struct {
	Transactions TransactionManager
	Calendar     CalendarReader
	Store        Pinger
	Logger       *applog.Logger

	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	templates    *template.Template
	transactions TransactionManager
	calendar     CalendarReader
	store        Pinger
	logger       *applog.Logger
	structured   *applog.StructuredLogger

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	now     func() time.Time
	started time.Time
	created atomic.Int64
	deleted atomic.Int64

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server. Call Shutdown to stop it and its background work.
func NewServer(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		transactions: deps.Transactions,
		calendar:     deps.Calendar,
		store:        deps.Store,
		logger:       logger,
		structured:   applog.NewStructuredLogger(logger),
		detector:     security.NewDetector(),
		now:          time.Now,
		started:      time.Now(),
	}

	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerMinute = deps.RateLimitPerMinute
	s.rateLimiter = ratelimit.NewLimiter(limits)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, s.structured)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Error("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/transactions", s.handleCreateTransaction)
	mux.HandleFunc("/transactions/delete", s.handleDeleteTransaction)
	mux.HandleFunc("/ui/calendar", s.handleCalendar)
	mux.HandleFunc("/ui/upcoming", s.handleUpcoming)
	mux.HandleFunc("/ui/transaction-form", s.handleTransactionForm)
	mux.HandleFunc("/api/occurrences", s.handleOccurrences)
	mux.HandleFunc("/calendar.ics", s.handleICS)

	onLimit := func(w http.ResponseWriter, r *http.Request) { TooManyRequestsError().Write(w) }

	// Outermost first: context logger, tracing, request ID logging,
	// headers, probe detection, rate limiting.
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.detector.ExtractClientIP, onLimit)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.RequestIDMiddleware(trace.RequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the HTTP
// server. Only the first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

var templateFuncs = template.FuncMap{
	"money": formatEuros,
	"monthName": func(m time.Month) string {
		return m.String()
	},
	"isoDate": func(t time.Time) string {
		return t.Format(time.DateOnly)
	},
}

func (s *Server) render(ctx context.Context, w http.ResponseWriter, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(ctx, "Templates not loaded", applog.FieldOperation, applog.OpRender, "template", name)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.structured.LogError(ctx, "Template execution failed", err, applog.ComponentHTTP, applog.OpRender,
			applog.LogFields{"template": name})
	}
}
