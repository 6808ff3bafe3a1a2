// SPDX-License-Identifier: MIT
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name   string
	result CheckResult
}

func (s stubChecker) Name() string                      { return s.name }
func (s stubChecker) Check(context.Context) CheckResult { return s.result }

func TestReadyAggregation(t *testing.T) {
	m := NewManager("test")
	m.Register(stubChecker{"database", CheckResult{Status: StatusHealthy}})
	m.Register(stubChecker{"filestore", CheckResult{Status: StatusHealthy}})

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)

	m.Register(stubChecker{"cache", CheckResult{Status: StatusDegraded}})
	resp = m.Ready(context.Background())
	assert.True(t, resp.Ready, "degraded components do not block readiness")
	assert.Equal(t, StatusDegraded, resp.Status)

	m.Register(stubChecker{"broken", CheckResult{Status: StatusUnhealthy, Error: "down"}})
	resp = m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeHealthAlways200(t *testing.T) {
	m := NewManager("test")
	m.Register(stubChecker{"broken", CheckResult{Status: StatusUnhealthy}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, 200, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status, "liveness ignores checkers unless verbose")

	rec = httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest("GET", "/healthz?verbose=true", nil))
	assert.Equal(t, 200, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestServeReady503WhenUnhealthy(t *testing.T) {
	m := NewManager("test")
	m.Register(stubChecker{"database", CheckResult{Status: StatusUnhealthy, Error: "gone"}})

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest("GET", "/readyz", nil))
	assert.Equal(t, 503, rec.Code)
}

type failingPinger struct{ err error }

func (f failingPinger) Ping(context.Context) error { return f.err }

func TestDatabaseChecker(t *testing.T) {
	ok := NewDatabaseChecker(failingPinger{nil}).Check(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)

	bad := NewDatabaseChecker(failingPinger{errors.New("locked")}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.Contains(t, bad.Error, "locked")
}

type failingWritable struct{ err error }

func (f failingWritable) Writable() error { return f.err }

func TestFilestoreChecker(t *testing.T) {
	ok := NewFilestoreChecker(failingWritable{nil}).Check(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)

	bad := NewFilestoreChecker(failingWritable{errors.New("read-only")}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
}
