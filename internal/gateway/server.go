// Package gateway implements the HTTP API in front of the chat pipeline:
// credential authentication, per-credential rate accounting, the chat
// endpoint, health/readiness probes, and Prometheus metrics.
// The gateway is started by the `adab serve` CLI command.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adab-ai/adab-go/internal/chat"
	"github.com/adab-ai/adab-go/internal/logging"
)

// New constructs a Server from the provided responder, verifier, and config.
func New(responder Responder, verifier Verifier, cfg *Config) (*Server, error) {
	if responder == nil {
		return nil, fmt.Errorf("gateway: responder must not be nil")
	}
	if verifier == nil {
		return nil, fmt.Errorf("gateway: verifier must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full generation round trip.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		responder: responder,
		verifier:  verifier,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newGatewayMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/chat",
		s.requestLogger("chat", rl.middleware(s.authMiddleware(http.HandlerFunc(s.handleChat)))))
	mux.Handle("GET /api/health", s.requestLogger("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.requestLogger("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the gateway's root handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("gateway listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("gateway: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/v1/chat. The auth middleware has already
// verified the credential and consumed one unit of its budget, so a failure
// past this point still counts against the caller.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	cred := credentialFrom(r.Context())
	if cred == nil {
		// The auth middleware always runs first; reaching here without a
		// credential is a wiring bug.
		writeJSONError(w, http.StatusInternalServerError, "no credential in context")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finishChat("bad_request", start)
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.finishChat("bad_request", start)
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}

	history := make([]chat.Turn, 0, len(req.History))
	for _, t := range req.History {
		history = append(history, chat.Turn{Role: t.Role, Content: t.Content})
	}

	resp, err := s.responder.Respond(r.Context(), chat.Request{
		Message:     req.Message,
		PersonaID:   cred.PersonaID,
		Country:     req.Country,
		Race:        req.Race,
		Category:    req.Category,
		History:     history,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		log.Error("chat round failed", slog.Any("error", err))
		s.finishChat("error", start)
		writeJSONError(w, http.StatusBadGateway, "failed to generate response")
		return
	}

	// Clients see which collections degraded, never the store error text.
	var degraded []string
	for collection := range resp.Degraded {
		s.metrics.retrievalDegradedTotal.WithLabelValues(collection).Inc()
		degraded = append(degraded, collection)
	}
	sort.Strings(degraded)
	s.finishChat("ok", start)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chatResponse{
		Response: resp.Text,
		Model:    resp.Model,
		Persona:  chatPersona{ID: resp.PersonaID, Name: resp.PersonaName},
		Usage:    chatUsage{Remaining: cred.Remaining(), Limit: cred.RateLimit},
		Metadata: chatMetadata{
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
			Degraded:         degraded,
		},
	}); err != nil {
		log.Error("chat encode error", slog.Any("error", err))
	}
}

// finishChat records the outcome metrics for one chat request.
func (s *Server) finishChat(outcome string, start time.Time) {
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
