// SPDX-License-Identifier: MIT
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagevault/pagevault/internal/crawler"
	"github.com/pagevault/pagevault/internal/health"
	"github.com/pagevault/pagevault/internal/profile"
	"github.com/pagevault/pagevault/internal/store"
)

const testToken = "secret-token"

func testServer(t *testing.T, archive ArchiveFunc) (*Server, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "archive.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if archive == nil {
		archive = func(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
			return crawler.Status{RunID: uuid.NewString(), Pages: 1}, nil
		}
	}

	// The gate lives outside the server, as in the daemon: the archive and
	// resume functions acquire it, the server only observes it.
	gate := &crawler.Gate{}
	gated := func(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
		if !gate.TryAcquire() {
			return crawler.Status{}, crawler.ErrRunActive
		}
		defer gate.Release()
		return archive(ctx, prof)
	}
	s := New(Options{
		Version:    "test",
		APIToken:   testToken,
		RateLimit:  1000,
		RunTimeout: time.Minute,
		DB:         db,
		Health:     health.NewManager("test"),
		Archive:    gated,
		Resume: func(ctx context.Context, runID string) (crawler.Status, error) {
			if !gate.TryAcquire() {
				return crawler.Status{}, crawler.ErrRunActive
			}
			defer gate.Release()
			if _, err := db.GetRun(ctx, runID); err != nil {
				return crawler.Status{}, err
			}
			return crawler.Status{RunID: runID, Pages: 2}, nil
		},
		Gate: gate,
	})
	return s, db
}

func triggerBody() string {
	return `{"base_url":"https://example.com"}`
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "test", body.Version)
	assert.False(t, body.Archiving)
}

func TestTriggerRunRequiresToken(t *testing.T) {
	s, _ := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(triggerBody()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest("POST", srv.URL+"/api/runs", strings.NewReader(triggerBody()))
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTriggerRun(t *testing.T) {
	s, _ := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/api/runs", strings.NewReader(triggerBody()))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status crawler.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.EqualValues(t, 1, status.Pages)
	require.NotNil(t, s.LastStatus())
}

func TestTriggerRunRejectsInvalidProfile(t *testing.T) {
	s, _ := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	req, _ := http.NewRequest("POST", srv.URL+"/api/runs", strings.NewReader(`{"base_url":"ftp://example.com"}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriggerRunConflict(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{})
	s, _ := testServer(t, func(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
		close(running)
		<-release
		return crawler.Status{RunID: "blocked"}, nil
	})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req, _ := http.NewRequest("POST", srv.URL+"/api/runs", strings.NewReader(triggerBody()))
		req.Header.Set("Authorization", "Bearer "+testToken)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	<-running
	req, _ := http.NewRequest("POST", srv.URL+"/api/runs", strings.NewReader(triggerBody()))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	close(release)
	wg.Wait()
}

func TestTriggerRunConflictsWithScheduledRun(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{})
	s, _ := testServer(t, func(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
		close(running)
		<-release
		return crawler.Status{RunID: "scheduled"}, nil
	})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	// A scheduled sweep bypasses HTTP and calls the archive function directly;
	// it must still hold the gate the API checks against.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.opts.Archive(context.Background(), profile.Profile{BaseURL: "https://example.com"})
	}()
	<-running

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.True(t, body.Archiving, "status must report the scheduled run")

	req, _ := http.NewRequest("POST", srv.URL+"/api/runs", strings.NewReader(triggerBody()))
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	close(release)
	wg.Wait()
}

func TestGetRun(t *testing.T) {
	s, db := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/" + uuid.NewString())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx := context.Background()
	websiteID, err := db.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)
	runID := uuid.NewString()
	require.NoError(t, db.StartRun(ctx, runID, websiteID, nil))

	resp, err = http.Get(srv.URL + "/api/runs/" + runID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var run store.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, runID, run.ID)
}

func TestResumeRun(t *testing.T) {
	s, db := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	post := func(runID string) *http.Response {
		req, err := http.NewRequest("POST", srv.URL+"/api/runs/"+runID+"/resume", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+testToken)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post(uuid.NewString())
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx := context.Background()
	websiteID, err := db.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)
	runID := uuid.NewString()
	require.NoError(t, db.StartRun(ctx, runID, websiteID, nil))

	resp = post(runID)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status crawler.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, runID, status.RunID)
}

func TestListRuns(t *testing.T) {
	s, db := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	_ = resp.Body.Close()
	assert.Empty(t, runs)

	ctx := context.Background()
	websiteID, err := db.GetOrCreateWebsite(ctx, "https://example.com", nil)
	require.NoError(t, err)
	require.NoError(t, db.StartRun(ctx, uuid.NewString(), websiteID, nil))

	resp, err = http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	_ = resp.Body.Close()
	assert.Len(t, runs, 1)
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := testServer(t, nil)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
