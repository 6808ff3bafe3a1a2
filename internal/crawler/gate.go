// SPDX-License-Identifier: MIT
package crawler

import (
	"errors"
	"sync/atomic"
)

// ErrRunActive is returned when a run is requested while another is in flight.
var ErrRunActive = errors.New("crawler: a run is already in progress")

// Gate serializes archive runs across all trigger surfaces (API, scheduler,
// CLI). Exactly one run may hold the gate at a time.
type Gate struct {
	running atomic.Bool
}

// TryAcquire claims the gate; it returns false if a run already holds it.
func (g *Gate) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release frees the gate for the next run.
func (g *Gate) Release() {
	g.running.Store(false)
}

// Active reports whether a run currently holds the gate.
func (g *Gate) Active() bool {
	return g.running.Load()
}
