// SPDX-License-Identifier: MIT
package crawler

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLinks(t *testing.T) {
	body := []byte(`<!DOCTYPE html><html><body>
		<a href="/about">About</a>
		<a href="about">Relative</a>
		<a href="https://other.example/page">External</a>
		<img src="/static/logo.png" data-src="/static/logo-hd.png">
		<script src="app.js"></script>
		<a href="#section">Fragment</a>
		<a href="mailto:root@example.com">Mail</a>
		<a href="javascript:void(0)">JS</a>
		<a href="/about">Duplicate</a>
	</body></html>`)

	links, err := extractLinks(body, "https://example.com/blog/")
	require.NoError(t, err)
	want := []string{
		"https://example.com/about",
		"https://example.com/blog/about",
		"https://example.com/blog/app.js",
		"https://example.com/static/logo-hd.png",
		"https://example.com/static/logo.png",
		"https://other.example/page",
	}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("extracted links mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractLinksStripsFragments(t *testing.T) {
	body := []byte(`<a href="/docs#install">Docs</a>`)
	links, err := extractLinks(body, "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/docs"}, links)
}

func TestExtractLinksCanonicalizesRootLinks(t *testing.T) {
	// "http://host" and "http://host/" are the same page and must collapse to
	// one canonical string, or the seed gets crawled twice.
	body := []byte(`
		<a href="https://example.com">Home</a>
		<a href="https://EXAMPLE.com/">Home again</a>
		<a href="/">Root</a>`)
	links, err := extractLinks(body, "https://example.com/blog/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/"}, links)
}

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "https://example.com/", canonicalize("https://example.com"))
	assert.Equal(t, "https://example.com/a", canonicalize("https://EXAMPLE.com/a#top"))
	assert.Equal(t, "https://example.com/a?q=1", canonicalize("https://example.com/a?q=1"))
	assert.Equal(t, "::bad::", canonicalize("::bad::"))
}

func TestIsAsset(t *testing.T) {
	tests := []struct {
		link  string
		asset bool
	}{
		{"https://example.com/", false},
		{"https://example.com/about", false},
		{"https://example.com/post.html", false},
		{"https://example.com/index.php", false},
		{"https://example.com/static/style.css", true},
		{"https://example.com/logo.png", true},
		{"https://example.com/app.js", true},
		{"https://example.com/download/report.pdf", true},
		{"https://example.com/v1.2/docs", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.asset, isAsset(tt.link), tt.link)
	}
}
