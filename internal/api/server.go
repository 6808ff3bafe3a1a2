// SPDX-License-Identifier: MIT

// Package api exposes the archiver's HTTP surface: run triggering, run
// inspection, probes and metrics.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagevault/pagevault/internal/crawler"
	"github.com/pagevault/pagevault/internal/health"
	"github.com/pagevault/pagevault/internal/profile"
	"github.com/pagevault/pagevault/internal/store"
)

// ArchiveFunc runs one archive for the given profile.
type ArchiveFunc func(ctx context.Context, prof profile.Profile) (crawler.Status, error)

// ResumeFunc continues an interrupted run from its last snapshot.
type ResumeFunc func(ctx context.Context, runID string) (crawler.Status, error)

// Options wires the server's collaborators.
type Options struct {
	Version        string
	APIToken       string
	RateLimit      int // requests per minute per client IP
	RunTimeout     time.Duration
	MetricsEnabled bool
	DB             *store.Store
	Health         *health.Manager
	Archive        ArchiveFunc
	Resume         ResumeFunc

	// Gate is the run gate shared with the scheduler and CLI; the archive and
	// resume functions are expected to acquire it themselves.
	Gate *crawler.Gate
}

// Server handles the HTTP API.
type Server struct {
	opts Options

	mu        sync.RWMutex
	last      *crawler.Status
	startTime time.Time
}

func New(opts Options) *Server {
	if opts.RateLimit < 1 {
		opts.RateLimit = 60
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 4 * time.Hour
	}
	if opts.Gate == nil {
		opts.Gate = &crawler.Gate{}
	}
	return &Server{opts: opts, startTime: time.Now()}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(httprate.Limit(
		s.opts.RateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
		}),
	))

	r.Get("/healthz", s.opts.Health.ServeHealth)
	r.Get("/readyz", s.opts.Health.ServeReady)
	if s.opts.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.With(s.authMiddleware).Post("/runs", s.handleTriggerRun)
		r.With(s.authMiddleware).Post("/runs/{id}/resume", s.handleResumeRun)
	})
	return r
}

// LastStatus returns the most recent run result, if any.
func (s *Server) LastStatus() *crawler.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	st := *s.last
	return &st
}

// RecordStatus stores a run result; the scheduler uses this so API status
// reflects scheduled runs too.
func (s *Server) RecordStatus(st crawler.Status) {
	s.mu.Lock()
	s.last = &st
	s.mu.Unlock()
}
