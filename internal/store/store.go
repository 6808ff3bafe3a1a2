// SPDX-License-Identifier: MIT

// Package store persists the crawl graph: websites, runs, pages, assets and
// the link networks between them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/pagevault/pagevault/internal/store/sqlite"
)

// Store wraps the archive database.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the archive database at path.
func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity; used by health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetOrCreateWebsite resolves the website row for a base URL, creating it on
// first sight. The profile document is stored alongside and refreshed on
// every call so the row reflects the latest profile.
func (s *Store) GetOrCreateWebsite(ctx context.Context, baseURL string, profileJSON []byte) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO websites (base_url, profile) VALUES (?, ?)
		ON CONFLICT(base_url) DO UPDATE SET
			profile = excluded.profile,
			updated = CURRENT_TIMESTAMP,
			inactive = ''`,
		baseURL, string(profileJSON))
	if err != nil {
		return 0, fmt.Errorf("store: upsert website %q: %w", baseURL, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM websites WHERE base_url = ?`, baseURL).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: website %q not found after upsert: %w", baseURL, err)
	}
	return id, nil
}

// Run describes a crawl run row.
type Run struct {
	ID        string
	WebsiteID int64
	Profile   string
	Started   time.Time
	Finished  *time.Time
	Pages     int64
	Assets    int64
	Failures  int64
	Error     string
}

// StartRun records the beginning of a crawl run.
func (s *Store) StartRun(ctx context.Context, runID string, websiteID int64, profileJSON []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, website_id, profile) VALUES (?, ?, ?)`,
		runID, websiteID, string(profileJSON))
	if err != nil {
		return fmt.Errorf("store: start run %s: %w", runID, err)
	}
	return nil
}

// UpdateRun refreshes the live counters of a run.
func (s *Store) UpdateRun(ctx context.Context, runID string, pages, assets, failures int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET pages = ?, assets = ?, failures = ?, updated = CURRENT_TIMESTAMP
		WHERE id = ?`,
		pages, assets, failures, runID)
	if err != nil {
		return fmt.Errorf("store: update run %s: %w", runID, err)
	}
	return nil
}

// FinishRun marks a run as finished. errMsg is empty on success.
func (s *Store) FinishRun(ctx context.Context, runID string, pages, assets, failures int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET pages = ?, assets = ?, failures = ?, error = ?,
			updated = CURRENT_TIMESTAMP, finished = CURRENT_TIMESTAMP
		WHERE id = ?`,
		pages, assets, failures, errMsg, runID)
	if err != nil {
		return fmt.Errorf("store: finish run %s: %w", runID, err)
	}
	return nil
}

// GetRun loads a single run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, website_id, profile, started, finished, pages, assets, failures, error
		FROM runs WHERE id = ?`, runID)
	var r Run
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.WebsiteID, &r.Profile, &r.Started, &finished,
		&r.Pages, &r.Assets, &r.Failures, &r.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get run %s: %w", runID, err)
	}
	if finished.Valid {
		r.Finished = &finished.Time
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, website_id, profile, started, finished, pages, assets, failures, error
		FROM runs ORDER BY started DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.WebsiteID, &r.Profile, &r.Started, &finished,
			&r.Pages, &r.Assets, &r.Failures, &r.Error); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if finished.Valid {
			r.Finished = &finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RegisterPage records a crawled page. Re-registration updates the timestamp
// and clears the inactive flag. When raw content or an offline path is given,
// a raw_pages row is added.
func (s *Store) RegisterPage(ctx context.Context, websiteID int64, pageURL string, raw []byte, offlinePath string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (website_id, url) VALUES (?, ?)
		ON CONFLICT(website_id, url) DO UPDATE SET
			updated = CURRENT_TIMESTAMP,
			inactive = ''`,
		websiteID, pageURL)
	if err != nil {
		return 0, fmt.Errorf("store: register page %q: %w", pageURL, err)
	}
	var pageID int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM pages WHERE website_id = ? AND url = ?`, websiteID, pageURL).Scan(&pageID); err != nil {
		return 0, fmt.Errorf("store: page %q not found after upsert: %w", pageURL, err)
	}

	if raw != nil || offlinePath != "" {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO raw_pages (page_id, raw, path) VALUES (?, ?, ?)`,
			pageID, raw, nullable(offlinePath)); err != nil {
			return 0, fmt.Errorf("store: register raw page %q: %w", pageURL, err)
		}
	}
	return pageID, nil
}

// RegisterAsset records a crawled asset and its raw content row.
func (s *Store) RegisterAsset(ctx context.Context, websiteID int64, assetURL, mediaType string, raw []byte, encoding, extension, offlinePath string) (int64, error) {
	if mediaType == "" {
		mediaType = "unknown"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets (website_id, url, media_type) VALUES (?, ?, ?)
		ON CONFLICT(website_id, url) DO UPDATE SET
			media_type = excluded.media_type,
			updated = CURRENT_TIMESTAMP,
			inactive = ''`,
		websiteID, assetURL, mediaType)
	if err != nil {
		return 0, fmt.Errorf("store: register asset %q: %w", assetURL, err)
	}
	var assetID int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM assets WHERE website_id = ? AND url = ?`, websiteID, assetURL).Scan(&assetID); err != nil {
		return 0, fmt.Errorf("store: asset %q not found after upsert: %w", assetURL, err)
	}

	if raw != nil || offlinePath != "" {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO raw_assets (asset_id, raw, encoding, extension, path) VALUES (?, ?, ?, ?, ?)`,
			assetID, raw, nullable(encoding), nullable(extension), nullable(offlinePath)); err != nil {
			return 0, fmt.Errorf("store: register raw asset %q: %w", assetURL, err)
		}
	}
	return assetID, nil
}

// RegisterPageLink records a source→target page link. followed marks links
// whose target has been fetched.
func (s *Store) RegisterPageLink(ctx context.Context, websiteID int64, sourceURL, targetURL string, followed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page_links (website_id, source_url, target_url, followed) VALUES (?, ?, ?, ?)
		ON CONFLICT(website_id, source_url, target_url) DO UPDATE SET
			followed = MAX(followed, excluded.followed),
			updated = CURRENT_TIMESTAMP`,
		websiteID, sourceURL, targetURL, boolInt(followed))
	if err != nil {
		return fmt.Errorf("store: register page link %q -> %q: %w", sourceURL, targetURL, err)
	}
	return nil
}

// MarkLinkFollowed flags every link pointing at a now-fetched target.
func (s *Store) MarkLinkFollowed(ctx context.Context, websiteID int64, targetURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE page_links SET followed = 1, updated = CURRENT_TIMESTAMP
		WHERE website_id = ? AND target_url = ? AND followed = 0`,
		websiteID, targetURL)
	if err != nil {
		return fmt.Errorf("store: mark link followed %q: %w", targetURL, err)
	}
	return nil
}

// RegisterAssetLink records a source page → asset link.
func (s *Store) RegisterAssetLink(ctx context.Context, websiteID int64, sourceURL, targetURL string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_links (website_id, source_url, target_url) VALUES (?, ?, ?)
		ON CONFLICT(website_id, source_url, target_url) DO UPDATE SET
			updated = CURRENT_TIMESTAMP`,
		websiteID, sourceURL, targetURL)
	if err != nil {
		return fmt.Errorf("store: register asset link %q -> %q: %w", sourceURL, targetURL, err)
	}
	return nil
}

// RegisterExternalLinks batch-records links whose targets fall outside the
// allowed bases. They are kept for later reclassification.
func (s *Store) RegisterExternalLinks(ctx context.Context, websiteID int64, sourceURL string, targets []string) error {
	if len(targets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin external links tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO external_links (website_id, source_url, target_url) VALUES (?, ?, ?)
		ON CONFLICT(website_id, source_url, target_url) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("store: prepare external links: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, target := range targets {
		if _, err := stmt.ExecContext(ctx, websiteID, sourceURL, target); err != nil {
			return fmt.Errorf("store: register external link %q -> %q: %w", sourceURL, target, err)
		}
	}
	return tx.Commit()
}

// RelinkExternal moves external links whose target host is allowed after all
// into the page network. Returns the number of links moved.
func (s *Store) RelinkExternal(ctx context.Context, websiteID int64, allows func(host string) bool) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_url, target_url FROM external_links WHERE website_id = ?`, websiteID)
	if err != nil {
		return 0, fmt.Errorf("store: query external links: %w", err)
	}

	type link struct {
		id             int64
		source, target string
	}
	var internal []link
	for rows.Next() {
		var l link
		if err := rows.Scan(&l.id, &l.source, &l.target); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("store: scan external link: %w", err)
		}
		u, err := url.Parse(l.target)
		if err != nil {
			continue
		}
		if allows(u.Hostname()) {
			internal = append(internal, l)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, fmt.Errorf("store: close external links: %w", err)
	}

	for _, l := range internal {
		if err := s.RegisterPageLink(ctx, websiteID, l.source, l.target, false); err != nil {
			return 0, err
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM external_links WHERE id = ?`, l.id); err != nil {
			return 0, fmt.Errorf("store: delete relinked external link: %w", err)
		}
	}
	return len(internal), nil
}

// Counts returns the number of tracked pages and assets for a website.
func (s *Store) Counts(ctx context.Context, websiteID int64) (pages, assets int64, err error) {
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pages WHERE website_id = ? AND inactive = ''`, websiteID).Scan(&pages); err != nil {
		return 0, 0, fmt.Errorf("store: count pages: %w", err)
	}
	if err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE website_id = ? AND inactive = ''`, websiteID).Scan(&assets); err != nil {
		return 0, 0, fmt.Errorf("store: count assets: %w", err)
	}
	return pages, assets, nil
}

// HasPage reports whether a page URL is already tracked for the website.
func (s *Store) HasPage(ctx context.Context, websiteID int64, pageURL string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM pages WHERE website_id = ? AND url = ?`, websiteID, pageURL).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: has page %q: %w", pageURL, err)
	}
	return true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
