// SPDX-License-Identifier: MIT
package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelPathFor(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ext  string
		want string
	}{
		{
			name: "page with extension",
			url:  "https://example.com/docs/intro.html",
			want: "example.com/docs/intro.html",
		},
		{
			name: "page without extension gets html",
			url:  "https://example.com/docs/intro",
			want: "example.com/docs/intro.html",
		},
		{
			name: "bare host gets html",
			url:  "https://example.com",
			want: "example.com.html",
		},
		{
			name: "asset keeps given extension",
			url:  "https://example.com/media/logo",
			ext:  ".png",
			want: "example.com/media/logo.png",
		},
		{
			name: "trailing slash collapses",
			url:  "https://example.com/blog/",
			want: "example.com/blog.html",
		},
		{
			name: "hostile characters replaced",
			url:  "https://example.com/a%3Fb",
			want: "example.com/a_b.html",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := relPathFor(tt.url, tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelPathForSchemeOnlyURLGetsHashName(t *testing.T) {
	got, err := relPathFor("https://", "")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{32}\.html$`, got)
}

func TestConfineRejectsEscapes(t *testing.T) {
	root := t.TempDir()

	for _, rel := range []string{"../outside", "a/../../b", `a\b`, "/etc/passwd"} {
		_, err := confine(root, rel)
		assert.Error(t, err, rel)
	}

	full, err := confine(root, "example.com/a/../index.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "example.com/index.html"), full)
}

func TestSavePageAndAsset(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	rel, err := s.SavePage("https://example.com/about", []byte("<html>about</html>"))
	require.NoError(t, err)
	assert.Equal(t, "example.com/about.html", rel)

	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	assert.Equal(t, "<html>about</html>", string(data))

	rel, err = s.SaveAsset("https://example.com/logo", []byte{0x89}, ".png")
	require.NoError(t, err)
	assert.Equal(t, "example.com/logo.png", rel)

	idx := s.Index()
	assert.Equal(t, 1, idx.Pages)
	assert.Equal(t, 1, idx.Assets)
}

func TestIndexRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	_, err = s.SavePage("https://example.com/", []byte("x"))
	require.NoError(t, err)
	s.SetPending([]string{"https://example.com/next"})
	require.NoError(t, s.WriteIndex())

	reopened, err := New(root)
	require.NoError(t, err)
	idx := reopened.Index()
	assert.Equal(t, 1, idx.Pages)
	assert.Equal(t, []string{"https://example.com/next"}, idx.Pending)
}

func TestWritable(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, s.Writable())

	_, err = os.Stat(filepath.Join(s.Root(), ".writable"))
	assert.True(t, os.IsNotExist(err), "probe file must be removed")
}
