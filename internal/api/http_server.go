package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"carrental/internal/config"
	"carrental/internal/metrics"
	"carrental/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Services groups the use cases exposed over HTTP.
type Services struct {
	Availability *service.AvailabilityService
	Rental       *service.RentalService
	Workflow     *service.WorkflowService
	Waitlist     *service.WaitingListService
}

// Pinger reports storage readiness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HTTPServer is the JSON API of the rental engine.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	ready  Pinger
	auth   *HTTPAuth
	mux    *http.ServeMux
	server *http.Server
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, ready Pinger, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:    cfg,
		svc:    svc,
		ready:  ready,
		auth:   NewHTTPAuth(cfg),
		mux:    http.NewServeMux(),
		logger: logger,
	}
	srv.routes()

	readTimeout := cfg.HTTP.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	writeTimeout := cfg.HTTP.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
	return srv
}

func (s *HTTPServer) routes() {
	s.handle("GET /healthz", "", s.handleHealth)
	s.handle("GET /readyz", "", s.handleReady)

	s.handle("GET /api/v1/cars/available", permReadCars, s.handleAvailableCars)
	s.handle("GET /api/v1/cars/{id}/availability", permReadCars, s.handleCarAvailability)
	s.handle("GET /api/v1/cars/{id}/waitlist", permManageRents, s.handleListWaitlist)
	s.handle("POST /api/v1/cars/{id}/waitlist", permWriteRents, s.handleJoinWaitlist)
	s.handle("DELETE /api/v1/waitlist/{id}", permWriteRents, s.handleLeaveWaitlist)

	s.handle("POST /api/v1/rents", permWriteRents, s.handleCreateRent)
	s.handle("POST /api/v1/rents/guest", permWriteRents, s.handleCreateGuestRent)
	s.handle("GET /api/v1/rents", permReadRents, s.handleListRents)
	s.handle("GET /api/v1/rents/{id}", permReadRents, s.handleGetRent)
	s.handle("POST /api/v1/rents/{id}/approve", permManageRents, s.handleApprove)
	s.handle("POST /api/v1/rents/{id}/reject", permManageRents, s.handleReject)
	s.handle("POST /api/v1/rents/{id}/issue", permManageRents, s.handleIssue)
	s.handle("POST /api/v1/rents/{id}/return", permManageRents, s.handleReturn)
}

// handle registers a route, labeling its metrics with the pattern rather than the raw path.
func (s *HTTPServer) handle(pattern, permission string, h http.HandlerFunc) {
	next := s.auth.Require(permission, h)
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.IncHTTP(pattern, strconv.Itoa(recorder.status))
	})
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("request_id", reqID).Msg("handler panic")
				writeError(recorder, http.StatusInternalServerError, "internal", "internal error")
			}
			s.logger.Info().
				Str("request_id", reqID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", recorder.status).
				Dur("dur", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(recorder, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.PingContext(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "unavailable", "storage unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}
