// SPDX-License-Identifier: MIT

// Package mediatype maps MIME media types to file extensions and
// descriptions. The registry ships with embedded seed data derived from the
// IANA media type listings.
package mediatype

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

//go:embed media_types.json
var seedData []byte

// Info describes a registered media type.
type Info struct {
	Extension string `json:"extension,omitempty"`
	Details   string `json:"details,omitempty"`
}

// Registry holds media type metadata keyed by main type and subtype.
type Registry struct {
	media map[string]map[string]Info
}

// Load builds a registry from the embedded seed data.
func Load() (*Registry, error) {
	var media map[string]map[string]Info
	if err := json.Unmarshal(seedData, &media); err != nil {
		return nil, fmt.Errorf("mediatype: decode seed data: %w", err)
	}
	return &Registry{media: media}, nil
}

// Lookup resolves a Content-Type header value to registry info. Parameters
// (charset etc.) are stripped before the lookup.
func (r *Registry) Lookup(contentType string) (Info, bool) {
	main, sub, ok := split(contentType)
	if !ok {
		return Info{}, false
	}
	subs, ok := r.media[main]
	if !ok {
		return Info{}, false
	}
	info, ok := subs[sub]
	return info, ok
}

// Extension returns the registered file extension for a Content-Type header
// value, or the fallback when the type is unknown.
func (r *Registry) Extension(contentType, fallback string) string {
	if info, ok := r.Lookup(contentType); ok && info.Extension != "" {
		return info.Extension
	}
	return fallback
}

// Accumulate collects the extension of every registered subtype whose main
// type is not excluded. The original service used this to build suffix lists
// for asset classification.
func (r *Registry) Accumulate(excluded ...string) map[string]struct{} {
	skip := make(map[string]struct{}, len(excluded))
	for _, main := range excluded {
		skip[main] = struct{}{}
	}

	acc := make(map[string]struct{})
	for main, subs := range r.media {
		if _, ok := skip[main]; ok {
			continue
		}
		for _, info := range subs {
			if info.Extension != "" {
				acc[info.Extension] = struct{}{}
			}
		}
	}
	return acc
}

// split parses "main/sub; param=..." into its normalised parts.
func split(contentType string) (main, sub string, ok bool) {
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		parsed = strings.TrimSpace(strings.ToLower(contentType))
	}
	main, sub, found := strings.Cut(parsed, "/")
	if !found || main == "" || sub == "" {
		return "", "", false
	}
	return strings.ToLower(main), strings.ToLower(sub), true
}
