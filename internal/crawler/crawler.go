// SPDX-License-Identifier: MIT

// Package crawler drives archive runs: it walks a website breadth-first from
// the profile's seed URL, persists pages and assets, tracks the link graph
// and snapshots progress so interrupted runs can resume.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagevault/pagevault/internal/fetch"
	"github.com/pagevault/pagevault/internal/filestore"
	"github.com/pagevault/pagevault/internal/log"
	"github.com/pagevault/pagevault/internal/metrics"
	"github.com/pagevault/pagevault/internal/profile"
	"github.com/pagevault/pagevault/internal/state"
	"github.com/pagevault/pagevault/internal/store"
)

// Fetcher retrieves pages and assets; satisfied by fetch.Client.
type Fetcher interface {
	Page(ctx context.Context, pageURL string) (*fetch.Page, error)
	Asset(ctx context.Context, assetURL string) (*fetch.Asset, error)
}

// Deps are the collaborators of a run. Files may be nil when the profile
// does not request an offline copy.
type Deps struct {
	Fetcher Fetcher
	DB      *store.Store
	Files   *filestore.Store
	States  state.Store
}

// Config bounds a run.
type Config struct {
	MaxPages         int
	AssetConcurrency int
	SnapshotEvery    int
}

// Status summarizes a finished run.
type Status struct {
	RunID     string        `json:"run_id"`
	WebsiteID int64         `json:"website_id"`
	Pages     int64         `json:"pages"`
	Assets    int64         `json:"assets"`
	Failures  int64         `json:"failures"`
	Duration  time.Duration `json:"duration"`
}

// Crawler archives websites.
type Crawler struct {
	deps Deps
	cfg  Config
}

func New(deps Deps, cfg Config) *Crawler {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 10000
	}
	if cfg.AssetConcurrency < 1 {
		cfg.AssetConcurrency = 5
	}
	if cfg.SnapshotEvery < 1 {
		cfg.SnapshotEvery = 100
	}
	return &Crawler{deps: deps, cfg: cfg}
}

// Run archives the website described by prof from scratch.
func (c *Crawler) Run(ctx context.Context, prof profile.Profile) (Status, error) {
	prof = prof.Normalized()
	if err := prof.Validate(); err != nil {
		return Status{}, err
	}
	profJSON, err := prof.MarshalStable()
	if err != nil {
		return Status{}, err
	}

	websiteID, err := c.deps.DB.GetOrCreateWebsite(ctx, prof.BaseURL, profJSON)
	if err != nil {
		return Status{}, err
	}
	runID := uuid.NewString()
	if err := c.deps.DB.StartRun(ctx, runID, websiteID, profJSON); err != nil {
		return Status{}, err
	}

	st := &state.CrawlState{
		RunID:     runID,
		WebsiteID: websiteID,
		BaseURL:   prof.BaseURL,
		Queue:     []string{canonicalize(prof.BaseURL)},
	}
	return c.archive(ctx, prof, st)
}

// Resume continues an interrupted run from its last snapshot. The profile is
// recovered from the run record.
func (c *Crawler) Resume(ctx context.Context, runID string) (Status, error) {
	run, err := c.deps.DB.GetRun(ctx, runID)
	if err != nil {
		return Status{}, err
	}
	prof, err := profile.Parse([]byte(run.Profile))
	if err != nil {
		return Status{}, fmt.Errorf("crawler: run %s has no usable profile: %w", runID, err)
	}
	st, err := c.deps.States.Load(ctx, runID)
	if err != nil {
		return Status{}, err
	}
	return c.archive(ctx, prof.Normalized(), st)
}

// archive is the BFS loop shared by Run and Resume.
func (c *Crawler) archive(ctx context.Context, prof profile.Profile, st *state.CrawlState) (Status, error) {
	started := time.Now()
	ctx = log.ContextWithRunID(ctx, st.RunID)
	logger := log.WithComponentFromContext(ctx, "crawler")

	maxPages := c.cfg.MaxPages
	if prof.MaxPages > 0 {
		maxPages = prof.MaxPages
	}

	seen := make(map[string]struct{}, len(st.Queue))
	for _, u := range st.Queue {
		seen[u] = struct{}{}
	}
	seenAssets := make(map[string]struct{}, len(st.SeenAssets))
	for _, u := range st.SeenAssets {
		seenAssets[u] = struct{}{}
	}

	logger.Info().
		Str(log.FieldEvent, "run.started").
		Str(log.FieldBaseURL, prof.BaseURL).
		Int("frontier", len(st.Frontier())).
		Int("max_pages", maxPages).
		Msg("archive run started")

	runErr := c.loop(ctx, prof, st, seen, seenAssets, maxPages)
	c.syncSeenAssets(st, seenAssets)

	// The result must be persisted even when the run was cancelled.
	ctx = context.WithoutCancel(ctx)

	if runErr != nil {
		st.Reason = runErr.Error()
		c.snapshot(ctx, st, "exception")
	} else {
		if moved, err := c.deps.DB.RelinkExternal(ctx, st.WebsiteID, prof.Allows); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "run.relink_failed").Msg("relinking external links failed")
		} else if moved > 0 {
			logger.Info().Int("moved", moved).Str(log.FieldEvent, "run.relinked").Msg("external links reclassified")
		}
		c.snapshot(ctx, st, "finished")
	}

	if c.deps.Files != nil {
		c.deps.Files.SetPending(st.Frontier())
		if err := c.deps.Files.WriteIndex(); err != nil {
			logger.Warn().Err(err).Str(log.FieldEvent, "run.index_failed").Msg("writing offline index failed")
		}
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := c.deps.DB.FinishRun(ctx, st.RunID, st.Pages, st.Assets, st.Failures, errMsg); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "run.finish_failed").Msg("recording run result failed")
	}

	status := Status{
		RunID:     st.RunID,
		WebsiteID: st.WebsiteID,
		Pages:     st.Pages,
		Assets:    st.Assets,
		Failures:  st.Failures,
		Duration:  time.Since(started),
	}
	metrics.ObserveRunDuration(runErr == nil, status.Duration)
	logger.Info().
		Str(log.FieldEvent, "run.finished").
		Int64("pages", status.Pages).
		Int64("assets", status.Assets).
		Int64("failures", status.Failures).
		Dur("duration", status.Duration).
		Err(runErr).
		Msg("archive run finished")
	return status, runErr
}

func (c *Crawler) loop(ctx context.Context, prof profile.Profile, st *state.CrawlState, seen, seenAssets map[string]struct{}, maxPages int) error {
	logger := log.WithComponentFromContext(ctx, "crawler")

	for st.Cursor < len(st.Queue) && st.Pages < int64(maxPages) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if st.Cursor > 0 && st.Cursor%c.cfg.SnapshotEvery == 0 {
			c.syncSeenAssets(st, seenAssets)
			c.snapshot(ctx, st, fmt.Sprintf("milestone_%d", st.Cursor))
			if err := c.deps.DB.UpdateRun(ctx, st.RunID, st.Pages, st.Assets, st.Failures); err != nil {
				logger.Warn().Err(err).Str(log.FieldEvent, "run.update_failed").Msg("updating run counters failed")
			}
		}

		current := st.Queue[st.Cursor]
		st.Cursor++

		page, err := c.deps.Fetcher.Page(ctx, current)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			st.Failures++
			metrics.IncFetchError(errorClass(err))
			logger.Warn().Err(err).
				Str(log.FieldEvent, "page.fetch_failed").
				Str(log.FieldURL, current).
				Msg("page fetch failed")
			continue
		}

		if err := c.registerPage(ctx, prof, st, current, page); err != nil {
			return err
		}
		st.Pages++
		metrics.IncPageFetched(prof.Name)

		links, err := extractLinks(page.Body, page.FinalURL)
		if err != nil {
			st.Failures++
			logger.Warn().Err(err).
				Str(log.FieldEvent, "page.parse_failed").
				Str(log.FieldURL, current).
				Msg("page parse failed")
			continue
		}
		c.handleLinks(ctx, prof, st, seen, seenAssets, current, links)
	}
	return nil
}

// registerPage persists a fetched page in the database and, when enabled,
// the offline copy tree, and flags inbound links as followed.
func (c *Crawler) registerPage(ctx context.Context, prof profile.Profile, st *state.CrawlState, pageURL string, page *fetch.Page) error {
	offlinePath := ""
	if prof.OfflineCopy && c.deps.Files != nil {
		rel, err := c.deps.Files.SavePage(page.FinalURL, page.Body)
		if err != nil {
			return err
		}
		offlinePath = rel
		metrics.AddBytesStored("page", len(page.Body))
	}
	if _, err := c.deps.DB.RegisterPage(ctx, st.WebsiteID, pageURL, page.Body, offlinePath); err != nil {
		return err
	}
	// Redirects may land on a different URL; track it too.
	if final := canonicalize(page.FinalURL); final != pageURL {
		if _, err := c.deps.DB.RegisterPage(ctx, st.WebsiteID, final, nil, offlinePath); err != nil {
			return err
		}
	}
	return c.deps.DB.MarkLinkFollowed(ctx, st.WebsiteID, pageURL)
}

// handleLinks routes extracted links: assets are fetched with bounded
// concurrency, in-base pages are enqueued, out-of-base pages are recorded as
// external for later reclassification.
func (c *Crawler) handleLinks(ctx context.Context, prof profile.Profile, st *state.CrawlState, seen, seenAssets map[string]struct{}, sourceURL string, links []string) {
	logger := log.WithComponentFromContext(ctx, "crawler")

	var assets, externals []string
	for _, link := range links {
		if isAsset(link) {
			if err := c.deps.DB.RegisterAssetLink(ctx, st.WebsiteID, sourceURL, link); err != nil {
				logger.Warn().Err(err).Str(log.FieldURL, link).Msg("registering asset link failed")
			}
			if _, done := seenAssets[link]; !done {
				seenAssets[link] = struct{}{}
				assets = append(assets, link)
			}
			continue
		}

		host := ""
		if u, err := url.Parse(link); err == nil {
			host = u.Hostname()
		}
		if !prof.Allows(host) {
			externals = append(externals, link)
			continue
		}
		if err := c.deps.DB.RegisterPageLink(ctx, st.WebsiteID, sourceURL, link, false); err != nil {
			logger.Warn().Err(err).Str(log.FieldURL, link).Msg("registering page link failed")
		}
		if _, ok := seen[link]; !ok {
			seen[link] = struct{}{}
			st.Queue = append(st.Queue, link)
		}
	}

	if len(externals) > 0 {
		if err := c.deps.DB.RegisterExternalLinks(ctx, st.WebsiteID, sourceURL, externals); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldSourceURL, sourceURL).
				Msg("registering external links failed")
		}
	}
	if len(assets) > 0 {
		c.collectAssets(ctx, prof, st, sourceURL, assets)
	}
}

type assetResult struct {
	url   string
	asset *fetch.Asset
	err   error
}

// collectAssets fetches a page's assets through a bounded worker pool and
// registers the results.
func (c *Crawler) collectAssets(ctx context.Context, prof profile.Profile, st *state.CrawlState, sourceURL string, assets []string) {
	logger := log.WithComponentFromContext(ctx, "crawler")

	sem := make(chan struct{}, c.cfg.AssetConcurrency)
	results := make(chan assetResult, len(assets))
	var wg sync.WaitGroup

	for _, assetURL := range assets {
		wg.Add(1)
		go func(assetURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			asset, err := c.deps.Fetcher.Asset(ctx, assetURL)
			results <- assetResult{url: assetURL, asset: asset, err: err}
		}(assetURL)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.err != nil {
			st.Failures++
			metrics.IncFetchError(errorClass(res.err))
			logger.Warn().Err(res.err).
				Str(log.FieldEvent, "asset.fetch_failed").
				Str(log.FieldURL, res.url).
				Msg("asset fetch failed")
			continue
		}

		offlinePath := ""
		if prof.OfflineCopy && c.deps.Files != nil {
			rel, err := c.deps.Files.SaveAsset(res.url, res.asset.Body, res.asset.Extension)
			if err != nil {
				st.Failures++
				logger.Warn().Err(err).Str(log.FieldURL, res.url).Msg("saving asset failed")
				continue
			}
			offlinePath = rel
			metrics.AddBytesStored("asset", len(res.asset.Body))
		}
		if _, err := c.deps.DB.RegisterAsset(ctx, st.WebsiteID, res.url, res.asset.MediaType,
			res.asset.Body, res.asset.Encoding, res.asset.Extension, offlinePath); err != nil {
			st.Failures++
			logger.Warn().Err(err).Str(log.FieldURL, res.url).Msg("registering asset failed")
			continue
		}
		st.Assets++
		metrics.IncAssetFetched(prof.Name)
	}
}

func (c *Crawler) snapshot(ctx context.Context, st *state.CrawlState, reason string) {
	st.Reason = reason
	st.SavedAt = time.Now().UTC()
	if err := c.deps.States.Save(ctx, st); err != nil {
		logger := log.WithComponentFromContext(ctx, "crawler")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "snapshot.failed").
			Str("reason", reason).
			Msg("saving crawl snapshot failed")
		return
	}
	metrics.IncSnapshot(snapshotKind(reason))
}

func (c *Crawler) syncSeenAssets(st *state.CrawlState, seenAssets map[string]struct{}) {
	st.SeenAssets = st.SeenAssets[:0]
	for u := range seenAssets {
		st.SeenAssets = append(st.SeenAssets, u)
	}
}

// snapshotKind collapses milestone_<n> reasons into one metric label.
func snapshotKind(reason string) string {
	if len(reason) >= 9 && reason[:9] == "milestone" {
		return "milestone"
	}
	switch reason {
	case "finished", "exception":
		return reason
	default:
		return "exception"
	}
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, fetch.ErrNotFound):
		return "not_found"
	case errors.Is(err, fetch.ErrForbidden):
		return "forbidden"
	case errors.Is(err, fetch.ErrThrottled):
		return "throttled"
	case errors.Is(err, fetch.ErrUnavailable), errors.Is(err, fetch.ErrUpstream):
		return "upstream"
	case errors.Is(err, fetch.ErrTimeout):
		return "timeout"
	default:
		return "transport"
	}
}
