// SPDX-License-Identifier: MIT
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagevault/pagevault/internal/crawler"
	"github.com/pagevault/pagevault/internal/log"
	"github.com/pagevault/pagevault/internal/profile"
	"github.com/pagevault/pagevault/internal/state"
	"github.com/pagevault/pagevault/internal/store"
)

const maxProfileBody = 1 << 20

type statusResponse struct {
	Version   string      `json:"version"`
	UptimeSec int64       `json:"uptime_seconds"`
	Archiving bool        `json:"archiving"`
	LastRun   interface{} `json:"last_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:   s.opts.Version,
		UptimeSec: int64(time.Since(s.startTime).Seconds()),
		Archiving: s.opts.Gate.Active(),
	}
	if last := s.LastStatus(); last != nil {
		resp.LastRun = last
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleTriggerRun starts an archive for the profile document in the request
// body. Only one run may be in flight; concurrent triggers get 409.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxProfileBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	prof, err := profile.Parse(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_profile", err.Error())
		return
	}

	// The run outlives a disconnecting client; it is bounded by its own
	// timeout, not the request context.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.RunTimeout)
	defer cancel()

	start := time.Now()
	status, err := s.opts.Archive(runCtx, prof)
	if errors.Is(err, crawler.ErrRunActive) {
		logger.Warn().Str(log.FieldEvent, "run.conflict").Msg("archive already in progress")
		w.Header().Set("Retry-After", "60")
		respondError(w, http.StatusConflict, "conflict", "an archive run is already in progress")
		return
	}
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "run.failed").
			Str(log.FieldBaseURL, prof.BaseURL).
			Dur("duration", time.Since(start)).
			Msg("archive run failed")
		respondError(w, http.StatusInternalServerError, "run_failed", "archive run failed")
		return
	}

	s.RecordStatus(status)
	logger.Info().
		Str(log.FieldEvent, "run.triggered").
		Str(log.FieldRunID, status.RunID).
		Int64("pages", status.Pages).
		Dur("duration", status.Duration).
		Msg("archive run completed")
	respondJSON(w, http.StatusOK, status)
}

// handleResumeRun continues an interrupted run. Resume runs through the same
// gate as triggered and scheduled runs.
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	runID := chi.URLParam(r, "id")

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.RunTimeout)
	defer cancel()

	status, err := s.opts.Resume(runCtx, runID)
	if errors.Is(err, crawler.ErrRunActive) {
		logger.Warn().Str(log.FieldEvent, "run.conflict").Msg("archive already in progress")
		w.Header().Set("Retry-After", "60")
		respondError(w, http.StatusConflict, "conflict", "an archive run is already in progress")
		return
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, state.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "no resumable run with that id")
		return
	}
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "run.resume_failed").
			Str(log.FieldRunID, runID).
			Msg("resume failed")
		respondError(w, http.StatusInternalServerError, "run_failed", "resume failed")
		return
	}

	s.RecordStatus(status)
	logger.Info().
		Str(log.FieldEvent, "run.resumed").
		Str(log.FieldRunID, status.RunID).
		Int64("pages", status.Pages).
		Dur("duration", status.Duration).
		Msg("archive run resumed and completed")
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	run, err := s.opts.DB.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "no such run")
		return
	}
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).
			Str(log.FieldRunID, runID).
			Msg("loading run failed")
		respondError(w, http.StatusInternalServerError, "internal", "could not load run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.opts.DB.ListRuns(r.Context(), 50)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("listing runs failed")
		respondError(w, http.StatusInternalServerError, "internal", "could not list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, kind, detail string) {
	respondJSON(w, code, map[string]string{
		"error":  kind,
		"detail": detail,
	})
}
