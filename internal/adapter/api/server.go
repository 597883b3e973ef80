// Package api is the payments backend surface: payment-session and payment
// endpoints consumed by host pages, plus the typed client the checkout
// orchestrator calls them through.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"forward-elements/internal/domain"
)

// errorEnvelope is the fixed error body shape: every failure maps to one of
// a small set of {error, message} pairs regardless of cause.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Config configures the API server.
type Config struct {
	Addr    string
	BaseURL string // public base for session URLs, e.g. https://pay.example.com
	APIKey  string

	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
}

// Server is the payments API server.
type Server struct {
	cfg     Config
	stores  domain.Stores
	bus     domain.EventBus
	logger  *slog.Logger
	httpSrv *http.Server

	boundAddr string
}

// NewServer creates an API server over the given stores.
func NewServer(cfg Config, stores domain.Stores, bus domain.EventBus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, stores: stores, bus: bus, logger: logger}
}

// Handler builds the full middleware-wrapped handler. Exposed separately so
// tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	auth := NewBearerAuth(s.cfg.APIKey)
	r.Use(mux.MiddlewareFunc(auth.Middleware))
	if s.cfg.RateLimit > 0 {
		r.Use(mux.MiddlewareFunc(RateLimit(s.cfg.RateLimit, s.cfg.RateBurst)))
	}

	r.HandleFunc("/elements/payment-session", s.createPaymentSession).Methods(http.MethodPost)
	r.HandleFunc("/elements/payment-session/{id}", s.getPaymentSession).Methods(http.MethodGet)
	r.HandleFunc("/elements/payment", s.createPayment).Methods(http.MethodPost)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

// Start begins serving. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: s.Handler()}

	s.logger.Info("api server started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual listen address. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorEnvelope{Error: kind, Message: message})
}
