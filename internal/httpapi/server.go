// Package httpapi exposes the invocation surface: tick endpoints, asset
// ingestion, health, metrics and the alert stream.
package httpapi

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"call-ath-tracker/internal/market"
	"call-ath-tracker/internal/observability"
	"call-ath-tracker/internal/orchestrator"
	"call-ath-tracker/internal/storage"
)

// Runner executes ticks.
type Runner interface {
	RunScan(ctx context.Context, req orchestrator.Request) (*orchestrator.RunResult, error)
	RunAudit(ctx context.Context, req orchestrator.Request) (*orchestrator.RunResult, error)
	RunLiquidity(ctx context.Context, req orchestrator.Request) (*orchestrator.RunResult, error)
}

// Options for creating Server.
type Options struct {
	Runner   Runner
	Assets   storage.AssetStore
	Audits   storage.AuditLogStore // optional
	Networks *market.Networks

	// AuthToken protects tick and ingestion endpoints. Empty rejects every
	// protected request with 500.
	AuthToken string

	Stream http.Handler // optional websocket alert stream
	Now    func() time.Time
	Logger *zap.Logger
}

// Server routes HTTP requests.
type Server struct {
	runner    Runner
	assets    storage.AssetStore
	audits    storage.AuditLogStore
	networks  *market.Networks
	authToken string
	now       func() time.Time
	logger    *zap.Logger
	router    *mux.Router
}

// New creates a new Server.
func New(opts Options) *Server {
	s := &Server{
		runner:    opts.Runner,
		assets:    opts.Assets,
		audits:    opts.Audits,
		networks:  opts.Networks,
		authToken: opts.AuthToken,
		now:       opts.Now,
		logger:    opts.Logger,
		router:    mux.NewRouter(),
	}
	if s.networks == nil {
		s.networks = market.NewNetworks(market.DefaultNetworks...)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.routes(opts.Stream)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(stream http.Handler) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	if stream != nil {
		s.router.Handle("/v1/alerts/stream", stream).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Handle("/ticks/{tick:scan|audit|liquidity}", s.authMiddleware(http.HandlerFunc(s.handleTick))).Methods(http.MethodPost)
	api.Handle("/assets", s.authMiddleware(http.HandlerFunc(s.handleCreateAsset))).Methods(http.MethodPost)
	api.HandleFunc("/assets/{id}", s.handleGetAsset).Methods(http.MethodGet)
	api.HandleFunc("/assets/{id}/audits", s.handleGetAudits).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ctxKey int

const requestIDKey ctxKey = iota

// requestIDMiddleware tags each request with a short id.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		id, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Info("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// authMiddleware checks the bearer token. A server without a token is a
// setup failure, not a client error.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			s.logger.Error("auth token not configured, rejecting request", zap.String("path", r.URL.Path))
			writeError(w, http.StatusInternalServerError, "server auth token not configured")
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
