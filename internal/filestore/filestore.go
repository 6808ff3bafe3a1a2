// SPDX-License-Identifier: MIT

// Package filestore maintains the offline copy tree: fetched pages and assets
// mirrored beneath a website directory, plus a per-website index document.
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/pagevault/pagevault/internal/log"
)

const indexFile = "index.json"

// Index summarizes what a website directory holds. Pending carries the
// frontier remnant of an interrupted run so it can be picked up again.
type Index struct {
	Pages   int      `json:"pages"`
	Assets  int      `json:"assets"`
	Pending []string `json:"pending,omitempty"`
}

// Store is the offline copy tree for a single website.
type Store struct {
	root   string
	logger zerolog.Logger

	mu    sync.Mutex
	index Index
}

// New opens the tree rooted at root, creating it if needed and loading an
// existing index document.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create root: %w", err)
	}
	s := &Store{
		root:   root,
		logger: log.WithComponent("filestore"),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the absolute tree root.
func (s *Store) Root() string {
	return s.root
}

// PagePath reports the tree path a page URL maps to, relative to the root.
func (s *Store) PagePath(pageURL string) (string, error) {
	return relPathFor(pageURL, ".html")
}

// AssetPath reports the tree path an asset URL maps to, relative to the root.
// extension is used when the URL itself carries none.
func (s *Store) AssetPath(assetURL, extension string) (string, error) {
	return relPathFor(assetURL, extension)
}

// SavePage writes page content to its tree location and returns the relative
// path. The write is atomic and durable.
func (s *Store) SavePage(pageURL string, body []byte) (string, error) {
	rel, err := s.PagePath(pageURL)
	if err != nil {
		return "", err
	}
	if err := s.write(rel, body); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.index.Pages++
	s.mu.Unlock()
	s.logger.Debug().
		Str(log.FieldURL, pageURL).
		Str(log.FieldPath, rel).
		Msg("page saved")
	return rel, nil
}

// SaveAsset writes asset content to its tree location and returns the
// relative path.
func (s *Store) SaveAsset(assetURL string, body []byte, extension string) (string, error) {
	rel, err := s.AssetPath(assetURL, extension)
	if err != nil {
		return "", err
	}
	if err := s.write(rel, body); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.index.Assets++
	s.mu.Unlock()
	s.logger.Debug().
		Str(log.FieldURL, assetURL).
		Str(log.FieldPath, rel).
		Msg("asset saved")
	return rel, nil
}

// Index returns a copy of the current index document.
func (s *Store) Index() Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.index
	idx.Pending = append([]string(nil), s.index.Pending...)
	return idx
}

// SetPending replaces the frontier remnant recorded in the index.
func (s *Store) SetPending(urls []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Pending = append([]string(nil), urls...)
}

// WriteIndex persists the index document atomically.
func (s *Store) WriteIndex() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.index, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("filestore: encode index: %w", err)
	}

	pending, err := renameio.NewPendingFile(filepath.Join(s.root, indexFile))
	if err != nil {
		return fmt.Errorf("filestore: create pending index: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending index")
		}
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("filestore: write index: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("filestore: replace index: %w", err)
	}
	return nil
}

// Writable probes that the tree accepts writes; used by readiness checks.
func (s *Store) Writable() error {
	probe := filepath.Join(s.root, ".writable")
	if err := renameio.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("filestore: root not writable: %w", err)
	}
	return os.Remove(probe)
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.root, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("filestore: read index: %w", err)
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return fmt.Errorf("filestore: decode index: %w", err)
	}
	return nil
}

func (s *Store) write(rel string, body []byte) error {
	full, err := confine(s.root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("filestore: create directory: %w", err)
	}
	if err := renameio.WriteFile(full, body, 0o644); err != nil {
		return fmt.Errorf("filestore: write %s: %w", rel, err)
	}
	return nil
}
