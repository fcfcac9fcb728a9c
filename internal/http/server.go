// Package http serves the insights API, the entry API, the dashboard page
// and the websocket feed of published reports.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"budgetlens/internal/charts"
	"budgetlens/internal/core"
	"budgetlens/internal/log"
	"budgetlens/internal/middleware/ratelimit"
	"budgetlens/internal/middleware/security"
	"budgetlens/internal/middleware/trace"
	"budgetlens/internal/services"
	appweb "budgetlens/web"
)

const (
	readHeaderTimeout = 5 * time.Second
	requestTimeout    = 30 * time.Second
	staticMaxAge      = 3600
)

// Deps are the collaborators behind the routes. Hub and Ready are optional.
type Deps struct {
	Entries        *services.EntryService
	Insights       *services.InsightService
	Hub            *Hub
	CurrencySymbol string
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	entries   *services.EntryService
	insights  *services.InsightService
	hub       *Hub
	ready     func(ctx context.Context) error
	symbol    string
	templates *template.Template
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Tracer
	logger    *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates.
func NewServer(addr string, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	symbol := deps.CurrencySymbol
	if symbol == "" {
		symbol = core.DefaultCurrencySymbol
	}

	s := &Server{
		entries:  deps.Entries,
		insights: deps.Insights,
		hub:      deps.Hub,
		ready:    deps.Ready,
		symbol:   symbol,
		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector: security.NewDetector(),
		tracer:   trace.New(logger),
		logger:   logger.WithComponent(log.ComponentHTTP),
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssets(staticMaxAge)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/insights", s.handleInsights)
	mux.HandleFunc("POST /api/insights/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/insights/chart", s.handleChart)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/entries", s.handleListEntries)
	mux.HandleFunc("POST /api/entries", s.handleCreateEntry)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(handler)
	handler = s.detector.Middleware(logger)(handler)
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Shutdown stops background helpers, disconnects websocket clients and
// drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.hub != nil {
			s.hub.Close()
		}
	})
	return s.Server.Shutdown(ctx)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later", trace.GetRequestID(r.Context())).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	p := s.insights.DefaultParams()
	data := struct {
		Year           int
		Month          int
		LookbackMonths int
		MinDataPoints  int
		CurrencySymbol string
		LiveUpdates    bool
	}{
		Year:           p.ViewedYear,
		Month:          p.ViewedMonth + 1,
		LookbackMonths: p.LookbackMonths,
		MinDataPoints:  p.MinDataPoints,
		CurrencySymbol: s.symbol,
		LiveUpdates:    s.hub != nil,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed", log.FieldError, err)
	}
}

func (s *Server) params(r *http.Request) (core.Params, error) {
	return parseInsightParams(r.URL.Query(), s.insights.DefaultParams())
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := s.insights.Report(ctx, p)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	NewJSONResponse().
		Header("Cache-Control", "no-store").
		Body(newReportView(report, s.symbol)).
		Write(w)
}

// handleRefresh recomputes the view bypassing the cache.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := s.insights.Refresh(ctx, p)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	NewJSONResponse().Body(newReportView(report, s.symbol)).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	p, err := s.params(r)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	summary, err := s.insights.Summary(ctx, p)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	NewJSONResponse().
		Header("Cache-Control", "no-store").
		Body(newSummaryView(summary, s.symbol)).
		Write(w)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	category := sanitizeInput(r.URL.Query().Get("category"))
	if category == "" {
		ErrorResponse(http.StatusBadRequest, "category is required", trace.GetRequestID(r.Context())).Write(w)
		return
	}
	p, err := s.params(r)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := s.insights.Report(ctx, p)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}

	points, ok := report.Series[category]
	if !ok {
		ErrorResponse(http.StatusNotFound, "no data for category "+category, trace.GetRequestID(r.Context())).Write(w)
		return
	}
	var forecast core.ForecastResult
	for _, rec := range report.Insights {
		if rec.Category == category {
			forecast = rec.Forecast
			break
		}
	}

	png, err := charts.Render(charts.SeriesChart{
		Category:       category,
		CurrencySymbol: s.symbol,
		Points:         points,
		Forecast:       forecast,
	})
	if errors.Is(err, charts.ErrNotEnoughPoints) {
		ErrorResponse(http.StatusUnprocessableEntity, err.Error(), trace.GetRequestID(r.Context())).Write(w)
		return
	}
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	list, err := s.entries.ListEntries(r.Context())
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	if kind := core.Kind(strings.ToLower(r.URL.Query().Get("type"))); kind != "" {
		filtered := list[:0:0]
		for _, e := range list {
			if e.Kind() == kind {
				filtered = append(filtered, e)
			}
		}
		list = filtered
	}
	NewJSONResponse().Body(newEntriesView(list)).Write(w)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	rec, err := NewRequestBodyParser(w, r).Record()
	if err != nil {
		writeError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	entry, err := entryFromRecord(rec)
	if err != nil {
		writeError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	id, err := s.entries.CreateEntry(r.Context(), entry)
	if err != nil {
		writeError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(createdView{ID: id, Type: entry.Kind()}).
		Write(w)
}
