// SPDX-License-Identifier: MIT

// Package profile defines archiver profiles: the per-website description of
// what to crawl and how.
package profile

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Profile describes a single target website.
type Profile struct {
	// Name identifies the profile; defaults to the seed host when empty.
	Name string `json:"name,omitempty"`

	// BaseURL is the seed URL the crawl starts from.
	BaseURL string `json:"base_url"`

	// AllowedBases restricts which hosts are followed as pages. When empty,
	// the host of BaseURL is used.
	AllowedBases []string `json:"allowed_bases,omitempty"`

	// OfflineCopy enables mirroring fetched content into the filestore.
	OfflineCopy bool `json:"offline_copy,omitempty"`

	// RequestHeaders are added to every request for this website.
	RequestHeaders map[string]string `json:"request_headers,omitempty"`

	// RateLimit overrides the configured requests/sec for this website.
	RateLimit float64 `json:"rate_limit,omitempty"`

	// MaxPages overrides the configured page budget for this website.
	MaxPages int `json:"max_pages,omitempty"`
}

// Validate checks the profile for usability.
func (p Profile) Validate() error {
	base := strings.TrimSpace(p.BaseURL)
	if base == "" {
		return fmt.Errorf("profile %q: base_url is empty", p.Name)
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("profile %q: invalid base_url %q: %w", p.Name, base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("profile %q: unsupported base_url scheme %q", p.Name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("profile %q: base_url %q is missing host", p.Name, base)
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("profile %q: rate_limit must not be negative", p.Name)
	}
	if p.MaxPages < 0 {
		return fmt.Errorf("profile %q: max_pages must not be negative", p.Name)
	}
	return nil
}

// Normalized returns a copy with derived defaults filled in: a name, and the
// seed host as allowed base when none is configured.
func (p Profile) Normalized() Profile {
	out := p
	out.BaseURL = strings.TrimSpace(p.BaseURL)
	u, err := url.Parse(out.BaseURL)
	if err != nil {
		return out
	}
	if len(out.AllowedBases) == 0 {
		out.AllowedBases = []string{u.Hostname()}
	}
	if out.Name == "" {
		out.Name = u.Hostname()
	}
	return out
}

// Allows reports whether the given host falls under one of the allowed bases.
func (p Profile) Allows(host string) bool {
	host = strings.ToLower(host)
	for _, base := range p.AllowedBases {
		base = strings.ToLower(strings.TrimSpace(base))
		if base == "" {
			continue
		}
		if host == base || strings.HasSuffix(host, "."+base) {
			return true
		}
	}
	return false
}

// MarshalStable renders the profile as JSON for storage in the websites table.
func (p Profile) MarshalStable() ([]byte, error) {
	return json.Marshal(p)
}

// Parse decodes a profile document and rejects unknown fields.
func Parse(data []byte) (Profile, error) {
	var p Profile
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p.Normalized(), nil
}
