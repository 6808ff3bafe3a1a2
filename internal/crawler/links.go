// SPDX-License-Identifier: MIT
package crawler

import (
	"bytes"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// linkAttrs are the attributes harvested from every element.
var linkAttrs = map[string]struct{}{
	"href":     {},
	"src":      {},
	"data-src": {},
}

// extractLinks parses HTML and returns every href/src/data-src target,
// resolved against baseURL (the post-redirect page URL), deduplicated and
// sorted for deterministic crawl order.
func extractLinks(body []byte, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if _, ok := linkAttrs[attr.Key]; !ok {
					continue
				}
				if fixed, ok := fixLink(base, attr.Val); ok {
					set[fixed] = struct{}{}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	out := make([]string, 0, len(set))
	for link := range set {
		out = append(out, link)
	}
	sort.Strings(out)
	return out, nil
}

// fixLink resolves a raw attribute value against the page URL and filters
// out non-archivable targets (fragments, mailto, javascript, data URIs).
func fixLink(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return canonicalURL(resolved), true
}

// canonicalURL renders one canonical string per page so the seen set, the
// queue and the pages table agree: no fragment, lowercase host, and a bare
// authority gets the explicit root path ("http://host" == "http://host/").
func canonicalURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.Host = strings.ToLower(c.Host)
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

// canonicalize parses and canonicalizes a raw URL, keeping it verbatim when
// it does not parse.
func canonicalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return canonicalURL(u)
}

// pageExtensions are path extensions still treated as pages.
var pageExtensions = map[string]struct{}{
	".html": {},
	".htm":  {},
	".php":  {},
	".asp":  {},
	".aspx": {},
	".jsp":  {},
}

// isAsset classifies a URL by the extension of its last path segment: a
// segment with a non-page extension is an asset, everything else a page.
func isAsset(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(path.Base(u.Path)))
	if ext == "" {
		return false
	}
	_, page := pageExtensions[ext]
	return !page
}
