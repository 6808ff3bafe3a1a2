// SPDX-License-Identifier: MIT
package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateWebsiteIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.GetOrCreateWebsite(ctx, "https://example.com", []byte(`{"name":"example"}`))
	require.NoError(t, err)
	id2, err := s.GetOrCreateWebsite(ctx, "https://example.com", []byte(`{"name":"example-v2"}`))
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same base URL must resolve to the same website")

	other, err := s.GetOrCreateWebsite(ctx, "https://other.example", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, other)
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	websiteID, err := s.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)

	runID := uuid.NewString()
	require.NoError(t, s.StartRun(ctx, runID, websiteID, []byte(`{}`)))

	r, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runID, r.ID)
	assert.Equal(t, websiteID, r.WebsiteID)
	assert.Nil(t, r.Finished)
	assert.False(t, r.Started.IsZero())

	require.NoError(t, s.UpdateRun(ctx, runID, 10, 4, 1))
	require.NoError(t, s.FinishRun(ctx, runID, 25, 9, 2, ""))

	r, err = s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.EqualValues(t, 25, r.Pages)
	assert.EqualValues(t, 9, r.Assets)
	assert.EqualValues(t, 2, r.Failures)
	assert.Empty(t, r.Error)
	require.NotNil(t, r.Finished)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishRunRecordsError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	websiteID, err := s.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)
	runID := uuid.NewString()
	require.NoError(t, s.StartRun(ctx, runID, websiteID, nil))
	require.NoError(t, s.FinishRun(ctx, runID, 3, 0, 1, "fetch https://example.com/p: status 503"))

	r, err := s.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Contains(t, r.Error, "status 503")
}

func TestRegisterPageUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	websiteID, err := s.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)

	id1, err := s.RegisterPage(ctx, websiteID, "https://example.com/about", []byte("<html>v1</html>"), "example.com/about.html")
	require.NoError(t, err)
	id2, err := s.RegisterPage(ctx, websiteID, "https://example.com/about", []byte("<html>v2</html>"), "example.com/about.html")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "re-registration must not create a second page row")

	pages, _, err := s.Counts(ctx, websiteID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pages)

	// Both raw captures are kept as history.
	var rawRows int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM raw_pages WHERE page_id = ?`, id1).Scan(&rawRows))
	assert.Equal(t, 2, rawRows)

	ok, err := s.HasPage(ctx, websiteID, "https://example.com/about")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.HasPage(ctx, websiteID, "https://example.com/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterPageWithoutContentSkipsRawRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	websiteID, err := s.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)
	pageID, err := s.RegisterPage(ctx, websiteID, "https://example.com/", nil, "")
	require.NoError(t, err)

	var rawRows int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM raw_pages WHERE page_id = ?`, pageID).Scan(&rawRows))
	assert.Zero(t, rawRows)
}

func TestRegisterAsset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	websiteID, err := s.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)

	id1, err := s.RegisterAsset(ctx, websiteID, "https://example.com/logo.png", "image/png",
		[]byte{0x89, 'P', 'N', 'G'}, "", ".png", "example.com/logo.png")
	require.NoError(t, err)

	// Media type refresh on re-registration, same row.
	id2, err := s.RegisterAsset(ctx, websiteID, "https://example.com/logo.png", "",
		nil, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var mediaType string
	require.NoError(t, s.db.QueryRow(
		`SELECT media_type FROM assets WHERE id = ?`, id1).Scan(&mediaType))
	assert.Equal(t, "unknown", mediaType, "empty media type defaults to unknown")

	_, assets, err := s.Counts(ctx, websiteID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, assets)
}

func TestRegisterPageLinkFollowedSticks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	websiteID, err := s.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)

	require.NoError(t, s.RegisterPageLink(ctx, websiteID, "https://example.com/", "https://example.com/about", true))
	// A later unfollowed sighting must not clear the followed flag.
	require.NoError(t, s.RegisterPageLink(ctx, websiteID, "https://example.com/", "https://example.com/about", false))

	var followed int
	require.NoError(t, s.db.QueryRow(`
		SELECT followed FROM page_links
		WHERE website_id = ? AND source_url = ? AND target_url = ?`,
		websiteID, "https://example.com/", "https://example.com/about").Scan(&followed))
	assert.Equal(t, 1, followed)

	var count int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM page_links WHERE website_id = ?`, websiteID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRegisterExternalLinksAndRelink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	websiteID, err := s.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)

	targets := []string{
		"https://cdn.example.com/widget.js",
		"https://unrelated.org/page",
		"https://cdn.example.com/widget.js", // duplicate is ignored
	}
	require.NoError(t, s.RegisterExternalLinks(ctx, websiteID, "https://example.com/", targets))
	require.NoError(t, s.RegisterAssetLink(ctx, websiteID, "https://example.com/", "https://example.com/style.css"))

	var externals int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM external_links WHERE website_id = ?`, websiteID).Scan(&externals))
	assert.Equal(t, 2, externals)

	moved, err := s.RelinkExternal(ctx, websiteID, func(host string) bool {
		return host == "cdn.example.com"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM external_links WHERE website_id = ?`, websiteID).Scan(&externals))
	assert.Equal(t, 1, externals, "only the unrelated host stays external")

	var pageLinks int
	require.NoError(t, s.db.QueryRow(`
		SELECT COUNT(*) FROM page_links
		WHERE website_id = ? AND target_url = 'https://cdn.example.com/widget.js'`,
		websiteID).Scan(&pageLinks))
	assert.Equal(t, 1, pageLinks)
}

func TestOpenRejectsBadPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "nested", "archive.sqlite"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
