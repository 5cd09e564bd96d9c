package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/llm"
	"github.com/jonathan/pain-assessment/internal/notify"
	"github.com/jonathan/pain-assessment/internal/report"
	"github.com/jonathan/pain-assessment/internal/server/middleware"
	"github.com/jonathan/pain-assessment/internal/server/ratelimit"
)

// DefaultNotifyTimeout bounds one round of notifications after a submission.
const DefaultNotifyTimeout = 30 * time.Second

// AssessmentStore persists processed assessments. *db.DB implements it.
type AssessmentStore interface {
	SaveAssessment(ctx context.Context, a *db.Assessment) (uuid.UUID, error)
	GetAssessment(ctx context.Context, id uuid.UUID) (*db.Assessment, error)
	ListAssessments(ctx context.Context, limit int) ([]db.Assessment, error)
	ListPatients(ctx context.Context, limit int) ([]db.Patient, error)
	ListPatientAssessments(ctx context.Context, email string, limit int) ([]db.Assessment, error)
	DeleteAssessment(ctx context.Context, id uuid.UUID) (bool, error)
	DeletePatientAssessments(ctx context.Context, email string) (int64, error)
}

// pinger is implemented by stores that can report their health.
type pinger interface {
	Ping(ctx context.Context) error
}

// Dispatcher announces a stored assessment. *notify.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec notify.Record) error
}

// Config holds server configuration and dependencies
type Config struct {
	Port  int
	Store AssessmentStore
	LLM   llm.Client
	Tier  llm.ModelTier

	// Notifier may be nil, in which case nothing is sent.
	Notifier      Dispatcher
	NotifyTimeout time.Duration

	// JWT may be nil, in which case the records API is not served.
	JWT *JWTService

	RateLimit      *ratelimit.Config
	AllowedOrigins []string
	Registry       *prometheus.Registry
	Logger         *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	handler       http.Handler
	store         AssessmentStore
	llm           llm.Client
	tier          llm.ModelTier
	notifier      Dispatcher
	notifyTimeout time.Duration
	notifyWG      sync.WaitGroup
	jwtService    *JWTService
	rateLimiter   *ratelimit.Limiter
	origins       []string
	registry      *prometheus.Registry
	metrics       *metrics
	logger        *slog.Logger
	renderPDF     func(ctx context.Context, html []byte, timeout time.Duration) ([]byte, error)
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("assessment store is required")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM client is required")
	}

	s := &Server{
		store:         cfg.Store,
		llm:           cfg.LLM,
		tier:          cfg.Tier,
		notifier:      cfg.Notifier,
		notifyTimeout: cfg.NotifyTimeout,
		jwtService:    cfg.JWT,
		origins:       cfg.AllowedOrigins,
		registry:      cfg.Registry,
		logger:        cfg.Logger,
		renderPDF:     report.RenderPDF,
	}
	if s.tier == "" {
		s.tier = llm.TierStandard
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = DefaultNotifyTimeout
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.metrics = newMetrics(s.registry)
	s.rateLimiter = ratelimit.NewLimiter(cfg.RateLimit)

	// Setup router
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assessment/submit-stream", s.handleSubmitStream)
	mux.HandleFunc("POST /api/assessment/submit", s.handleSubmit)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// Records API, clinicians only
	if s.jwtService != nil {
		auth := middleware.AuthMiddleware(s.jwtService.AsTokenValidator())
		mux.Handle("GET /api/assessments", auth(http.HandlerFunc(s.handleListAssessments)))
		mux.Handle("GET /api/assessments/{id}", auth(http.HandlerFunc(s.handleGetAssessment)))
		mux.Handle("GET /api/assessments/{id}/report", auth(http.HandlerFunc(s.handleReport)))
		mux.Handle("DELETE /api/assessments/{id}", auth(http.HandlerFunc(s.handleDeleteAssessment)))
		mux.Handle("GET /api/patients", auth(http.HandlerFunc(s.handleListPatients)))
		mux.Handle("GET /api/patients/{email}/assessments", auth(http.HandlerFunc(s.handlePatientAssessments)))
		mux.Handle("DELETE /api/patients/{email}/assessments", auth(http.HandlerFunc(s.handleDeletePatient)))
	}

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Long timeout for streamed summaries
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until ctx is done or the process is signaled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server.Start: listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.Close()
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	s.logger.Info("Server.Start: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.Close()
	s.logger.Info("Server.Start: stopped")
	return nil
}

// Close stops the rate limiter and waits for in-flight notifications.
func (s *Server) Close() {
	s.rateLimiter.Stop()
	s.notifyWG.Wait()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case slices.Contains(s.origins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, clientID, r.URL.Path, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status while letting SSE flushes through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.logger.Info("Server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("Server.handleHealth: store unreachable", "error", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Server.jsonResponse: encode failed", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// typedErrorResponse maps err to a status and writes it, naming the field for validation errors.
func (s *Server) typedErrorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	var ve *ErrValidation
	if errors.As(err, &ve) {
		s.jsonResponse(w, status, map[string]string{"error": ve.Message, "field": ve.Field})
		return
	}
	if status == http.StatusInternalServerError {
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; forwarded headers are not trusted.
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, clientID, path string, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Warn("Server.withRateLimit: limit exceeded",
		"client", clientID, "path", path, "limit", info.Limit)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
