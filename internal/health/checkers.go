// SPDX-License-Identifier: MIT
package health

import (
	"context"
	"time"
)

// Pinger is satisfied by the archive database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseChecker probes archive database connectivity.
type DatabaseChecker struct {
	db Pinger
}

func NewDatabaseChecker(db Pinger) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.db.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "database reachable"}
}

// Writable is satisfied by the offline copy tree.
type Writable interface {
	Writable() error
}

// FilestoreChecker probes that the offline copy tree accepts writes.
type FilestoreChecker struct {
	fs Writable
}

func NewFilestoreChecker(fs Writable) *FilestoreChecker {
	return &FilestoreChecker{fs: fs}
}

func (c *FilestoreChecker) Name() string { return "filestore" }

func (c *FilestoreChecker) Check(context.Context) CheckResult {
	if err := c.fs.Writable(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "filestore writable"}
}
