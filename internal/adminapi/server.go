// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package adminapi is the unprivileged read-only HTTP surface: health,
// Prometheus scraping, a JSON snapshot of the currently loaded rule set,
// and the count of active bans. It never reaches into the packet path itself; it
// only reads state handed to it at construction time.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/ips/internal/logging"
	"grimm.is/ips/internal/metrics"
	"grimm.is/ips/internal/ratelimit"
	"grimm.is/ips/internal/rules"
)

// ServerConfig hardens the HTTP listener against slow/oversized clients.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DefaultServerConfig matches the timeouts this program runs with when the
// operator doesn't override them.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// RuleSource supplies the rule summaries the /rules endpoint reports. A
// pointer-to-slice would need its own locking; a getter keeps the server
// agnostic of however the caller guards rule-set reloads.
type RuleSource func() []rules.Rule

// Server is the admin HTTP server. Construct with New, then Start/Stop.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
	metrics    *metrics.Metrics
	limiter    *ratelimit.Limiter
	rulesFn    RuleSource
}

// New builds a Server listening on addr, scraping reg for /metrics. m,
// limiter, and rulesFn may be nil; their endpoints then report empty/zero
// rather than panicking.
func New(addr string, cfg ServerConfig, logger *logging.Logger, reg *prometheus.Registry, m *metrics.Metrics, limiter *ratelimit.Limiter, rulesFn RuleSource) *Server {
	s := &Server{
		logger:  logger,
		metrics: m,
		limiter: limiter,
		rulesFn: rulesFn,
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/rules", s.handleRules).Methods(http.MethodGet)
	router.HandleFunc("/bans", s.handleBans).Methods(http.MethodGet)
	if m != nil && reg != nil {
		router.Handle("/metrics", s.metricsHandler(reg))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s
}

// metricsHandler samples the active-bans gauge on every scrape before
// delegating to promhttp, since nothing pushes ban/unban events into it.
func (s *Server) metricsHandler(reg *prometheus.Registry) http.Handler {
	inner := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			s.metrics.SampleActiveBans(s.limiter)
		}
		inner.ServeHTTP(w, r)
	})
}

// Start begins serving in the background. Errors other than a clean
// shutdown are logged, not returned, since the caller has already moved on
// to its own blocking loop by the time a listener error could occur.
func (s *Server) Start() {
	go func() {
		s.logger.Info("admin API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin API server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the server, waiting up to 5 seconds for
// in-flight requests to finish.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	var summaries []rules.Summary
	if s.rulesFn != nil {
		for _, rule := range s.rulesFn() {
			summaries = append(summaries, rule.Summarize())
		}
	}
	writeJSON(w, map[string]any{
		"count": len(summaries),
		"rules": summaries,
	})
}

func (s *Server) handleBans(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.limiter != nil {
		active = s.limiter.ActiveBans()
	}
	writeJSON(w, map[string]int{"active_bans": active})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
