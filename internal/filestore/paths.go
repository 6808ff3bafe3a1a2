// SPDX-License-Identifier: MIT
package filestore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// sanitizer strips combining marks so accented URL segments map to plain
// ASCII-ish file names.
var sanitizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// hostileChars are replaced in path segments; they are either unsafe on
// common filesystems or ambiguous in shell contexts.
const hostileChars = `<>:"|?*%&#;`

func sanitizeSegment(seg string) string {
	if out, _, err := transform.String(sanitizer, seg); err == nil {
		seg = out
	}
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		switch {
		case strings.ContainsRune(hostileChars, r), r < 0x20:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// relPathFor converts a URL into a relative path under the store root:
// host plus path segments, with a hash-named file for bare roots and the
// extension appended when the last segment carries none.
func relPathFor(rawURL, extension string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("filestore: parse url %q: %w", rawURL, err)
	}
	if extension == "" {
		extension = ".html"
	}

	var segments []string
	for _, seg := range strings.Split(u.Hostname()+u.Path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		segments = append(segments, sanitizeSegment(seg))
	}
	if len(segments) == 0 {
		sum := md5.Sum([]byte(rawURL))
		segments = []string{hex.EncodeToString(sum[:]) + ".html"}
	}

	rel := path.Join(segments...)
	// A trailing "extension" that is really part of the host name (for
	// example ".com" on a bare host) does not count.
	if ext := path.Ext(rel); ext == "" || strings.Contains(u.Hostname(), ext) {
		rel += extension
	}
	return rel, nil
}

// confine joins rel onto root and guarantees the result stays underneath it.
func confine(root, rel string) (string, error) {
	if strings.Contains(rel, `\`) {
		return "", fmt.Errorf("filestore: path contains backslash: %s", rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("filestore: path must be relative: %s", rel)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filestore: path escapes root: %s", rel)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("filestore: resolve root: %w", err)
	}
	full := filepath.Join(absRoot, clean)
	if check, err := filepath.Rel(absRoot, full); err != nil ||
		check == ".." || strings.HasPrefix(check, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("filestore: path escapes root: %s", rel)
	}
	return full, nil
}
