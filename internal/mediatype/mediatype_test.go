// SPDX-License-Identifier: MIT

package mediatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownTypes(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	info, ok := reg.Lookup("image/png")
	require.True(t, ok)
	assert.Equal(t, ".png", info.Extension)

	// Parameters and casing must not matter.
	info, ok = reg.Lookup("Text/HTML; charset=UTF-8")
	require.True(t, ok)
	assert.Equal(t, ".html", info.Extension)
}

func TestExtensionFallback(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ".css", reg.Extension("text/css", ".html"))
	assert.Equal(t, ".html", reg.Extension("application/x-unregistered", ".html"))
	assert.Equal(t, ".html", reg.Extension("garbage", ".html"))
}

func TestAccumulateExcludesMainTypes(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	all := reg.Accumulate()
	assert.Contains(t, all, ".png")
	assert.Contains(t, all, ".css")

	noImages := reg.Accumulate("image")
	assert.NotContains(t, noImages, ".webp")
	assert.Contains(t, noImages, ".css")
}
