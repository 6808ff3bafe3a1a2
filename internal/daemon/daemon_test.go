// SPDX-License-Identifier: MIT
package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/pagevault/pagevault/internal/crawler"
	"github.com/pagevault/pagevault/internal/profile"
)

func TestSchedulerSweeps(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int64
	var observed atomic.Int64
	sched := New(
		20*time.Millisecond,
		[]profile.Profile{{BaseURL: "https://a.example"}, {BaseURL: "https://b.example"}},
		func(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
			calls.Add(1)
			return crawler.Status{RunID: prof.BaseURL, Pages: 1}, nil
		},
		func(crawler.Status) { observed.Add(1) },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	err := sched.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Immediate sweep plus several ticks, two profiles each.
	assert.GreaterOrEqual(t, calls.Load(), int64(4))
	assert.Equal(t, calls.Load(), observed.Load())
}

func TestSchedulerDisabledWithoutInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	sched := New(0, []profile.Profile{{BaseURL: "https://a.example"}}, func(context.Context, profile.Profile) (crawler.Status, error) {
		t.Fatal("archive must not be called when disabled")
		return crawler.Status{}, nil
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := sched.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerSkipsProfilesWhileRunActive(t *testing.T) {
	defer goleak.VerifyNone(t)

	var observed atomic.Int64
	sched := New(
		time.Hour, // only the immediate sweep runs
		[]profile.Profile{{BaseURL: "https://a.example"}, {BaseURL: "https://b.example"}},
		func(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
			return crawler.Status{}, crawler.ErrRunActive
		},
		func(crawler.Status) { observed.Add(1) },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = sched.Run(ctx)
	assert.Zero(t, observed.Load(), "skipped profiles must not be observed as runs")
}

func TestSchedulerContinuesAfterFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	var second atomic.Bool
	sched := New(
		time.Hour, // only the immediate sweep runs
		[]profile.Profile{{BaseURL: "https://bad.example"}, {BaseURL: "https://good.example"}},
		func(ctx context.Context, prof profile.Profile) (crawler.Status, error) {
			if prof.BaseURL == "https://bad.example" {
				return crawler.Status{}, context.DeadlineExceeded
			}
			second.Store(true)
			return crawler.Status{}, nil
		},
		nil,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = sched.Run(ctx)
	assert.True(t, second.Load(), "failure of one profile must not skip the next")
}
