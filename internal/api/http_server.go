package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fixly/internal/apperrors"
	"fixly/internal/config"
	"fixly/internal/domain"
	"fixly/internal/metrics"

	"github.com/rs/zerolog"
)

// HTTPServer exposes the booking API behind the identity gateway.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    domain.BookingService
	logger *zerolog.Logger
	server *http.Server
	auth   *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, svc domain.BookingService, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, svc: svc, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("POST /api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/my", srv.handleMyBookings)
	mux.HandleFunc("GET /api/v1/bookings/assigned", srv.handleAssignedBookings)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}/status", srv.handleUpdateStatus)
	mux.HandleFunc("POST /api/v1/bookings/{id}/start", srv.handleStartJob)
	mux.HandleFunc("POST /api/v1/bookings/{id}/quote", srv.handleReviseQuote)
	mux.HandleFunc("POST /api/v1/bookings/{id}/quote/decision", srv.handleQuoteDecision)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", srv.handleHealth)
	root.Handle("/api/", handler)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(r.Method + " " + r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"error": map[string]any{"message": message},
	})
}

// writeServiceError maps the error taxonomy onto HTTP statuses; anything
// outside the taxonomy becomes an opaque 500.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Code == apperrors.CodeInternal {
			s.logger.Error().Err(appErr).Str("path", r.URL.Path).Msg("internal error")
		}
		writeJSON(w, appErr.StatusCode(), map[string]any{"error": appErr})
		return
	}

	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unclassified error")
	writeError(w, http.StatusInternalServerError, "internal error")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
