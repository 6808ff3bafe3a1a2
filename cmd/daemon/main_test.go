// SPDX-License-Identifier: MIT
package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagevault/pagevault/internal/store"
)

func TestSubcommandsRejectBadUsage(t *testing.T) {
	assert.Equal(t, 2, runArchive(nil), "archive needs a profile argument")
	assert.Equal(t, 2, runResume(nil), "resume needs a run id argument")
}

func TestRunVerify(t *testing.T) {
	t.Setenv("PV_DATA", t.TempDir())

	cfg, _ := mustLoadConfig("")
	db, err := store.Open(cfg.DBPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.Equal(t, 0, runVerify(nil))
	assert.Equal(t, 0, runVerify([]string{"-full"}))
}
