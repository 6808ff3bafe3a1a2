// SPDX-License-Identifier: MIT

// Package daemon schedules periodic re-archives of the configured website
// profiles.
package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/pagevault/pagevault/internal/crawler"
	"github.com/pagevault/pagevault/internal/log"
	"github.com/pagevault/pagevault/internal/profile"
)

// ArchiveFunc runs one archive for the given profile.
type ArchiveFunc func(ctx context.Context, prof profile.Profile) (crawler.Status, error)

// Scheduler re-archives every configured profile at a fixed interval.
type Scheduler struct {
	interval time.Duration
	profiles []profile.Profile
	archive  ArchiveFunc
	observe  func(crawler.Status)
}

// New creates a scheduler. observe may be nil; when set it receives every
// successful run result.
func New(interval time.Duration, profiles []profile.Profile, archive ArchiveFunc, observe func(crawler.Status)) *Scheduler {
	return &Scheduler{
		interval: interval,
		profiles: profiles,
		archive:  archive,
		observe:  observe,
	}
}

// Run blocks until ctx is cancelled, archiving all profiles once per
// interval. The first sweep starts immediately. A zero interval disables
// scheduling.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := log.WithComponent("daemon")
	if s.interval <= 0 || len(s.profiles) == 0 {
		logger.Info().
			Str(log.FieldEvent, "scheduler.disabled").
			Dur("interval", s.interval).
			Int("profiles", len(s.profiles)).
			Msg("scheduler disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	logger.Info().
		Str(log.FieldEvent, "scheduler.started").
		Dur("interval", s.interval).
		Int("profiles", len(s.profiles)).
		Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(log.FieldEvent, "scheduler.stopped").Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep archives every profile sequentially; one failing profile does not
// block the others.
func (s *Scheduler) sweep(ctx context.Context) {
	logger := log.WithComponent("daemon")
	for _, prof := range s.profiles {
		if ctx.Err() != nil {
			return
		}
		status, err := s.archive(ctx, prof)
		if errors.Is(err, crawler.ErrRunActive) {
			logger.Info().
				Str(log.FieldEvent, "sweep.profile_skipped").
				Str(log.FieldBaseURL, prof.BaseURL).
				Msg("another run is in progress, profile picked up next sweep")
			continue
		}
		if err != nil {
			logger.Error().Err(err).
				Str(log.FieldEvent, "sweep.profile_failed").
				Str(log.FieldBaseURL, prof.BaseURL).
				Msg("scheduled archive failed")
			continue
		}
		logger.Info().
			Str(log.FieldEvent, "sweep.profile_done").
			Str(log.FieldRunID, status.RunID).
			Int64("pages", status.Pages).
			Int64("assets", status.Assets).
			Msg("scheduled archive finished")
		if s.observe != nil {
			s.observe(status)
		}
	}
}
