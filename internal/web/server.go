package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/conorfennell/failedreviews/internal/failures"
	"github.com/conorfennell/failedreviews/internal/render"
	"github.com/conorfennell/failedreviews/internal/report"
)

// maxDays matches the largest window the settings form accepts.
const maxDays = 65536

// Server holds the dependencies for the HTTP server.
type Server struct {
	reports     *report.Service
	router      *http.ServeMux
	defaultDays int
	logger      *slog.Logger
}

// NewServer creates and configures a new server.
func NewServer(reports *report.Service, defaultDays int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reports:     reports,
		router:      http.NewServeMux(),
		defaultDays: defaultDays,
		logger:      logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /{$}", s.handleGetReportPage())
	s.router.HandleFunc("GET /api/report", s.handleGetReport())
	s.router.HandleFunc("GET /healthz", s.handleHealth())
}

// daysParam reads the window from the query, falling back to the configured default.
func (s *Server) daysParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return s.defaultDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > maxDays {
		return 0, false
	}
	return days, true
}

func (s *Server) runReport(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	days, ok := s.daysParam(r)
	if !ok {
		http.Error(w, "Invalid days: must be an integer between 1 and 65536", http.StatusBadRequest)
		return nil, false
	}

	rep, err := s.reports.Run(r.Context(), days)
	if err != nil {
		if errors.Is(err, failures.ErrInvalidWindow) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		s.logger.Error("Failed to compute report", "days", days, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	return rep, true
}

// handleGetReportPage renders the report as an HTML page.
func (s *Server) handleGetReportPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := s.runReport(w, r)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := render.Page(w, rep); err != nil {
			s.logger.Error("Failed to render report page", "error", err)
		}
	}
}

// handleGetReport returns the report as JSON, tagged with its fingerprint.
func (s *Server) handleGetReport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, ok := s.runReport(w, r)
		if !ok {
			return
		}

		etag := `"` + rep.Fingerprint + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rep); err != nil {
			s.logger.Error("Failed to encode report", "error", err)
		}
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}
