// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config persists the "enabled service paths" list that defines
// the current pipeline, per section 4.3. A single document on disk is the
// source of truth; it is rewritten atomically on every mutation and reset
// to empty rather than refused whenever it cannot be trusted.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of the config file.
type document struct {
	Enabled []string `yaml:"enabled"`
}

// CorruptError wraps the parse or validation failure that caused Load to
// reset the document to empty. cmd/roverd records one found at startup as
// a Recoverable health note; other callers continue with the empty list.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("config %s unreadable, reset to empty: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store is the single-file, process-wide-locked config document described
// in section 4.3.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store backed by the document at path. The file is not
// touched until Load or Save is called.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted enabled list. A missing file is treated as an
// empty, freshly-created document. An unparseable or invalid document is
// reset to empty on disk and the original failure is returned wrapped in
// *CorruptError so the caller can record it as a recoverable condition;
// the returned list is still usable (empty) in that case.
func (s *Store) Load() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if werr := s.saveLocked(nil); werr != nil {
			return nil, fmt.Errorf("create empty config: %w", werr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return s.resetAfterCorruption(err)
	}
	if err := validate(doc.Enabled); err != nil {
		return s.resetAfterCorruption(err)
	}
	return doc.Enabled, nil
}

func (s *Store) resetAfterCorruption(cause error) ([]string, error) {
	slog.Warn("config document corrupt, resetting to empty", "path", s.path, "error", cause)
	if err := s.saveLocked(nil); err != nil {
		return nil, fmt.Errorf("reset corrupt config: %w", err)
	}
	return nil, &CorruptError{Path: s.path, Err: cause}
}

func validate(enabled []string) error {
	seen := make(map[string]bool, len(enabled))
	for _, p := range enabled {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("enabled path %q is not absolute", p)
		}
		if seen[p] {
			return fmt.Errorf("enabled path %q is listed more than once", p)
		}
		seen[p] = true
	}
	return nil
}

// Save validates and atomically rewrites the document: write to a
// temporary sibling file, then rename over the original.
func (s *Store) Save(enabled []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := validate(enabled); err != nil {
		return err
	}
	return s.saveLocked(enabled)
}

func (s *Store) saveLocked(enabled []string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(document{Enabled: enabled})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp config into place: %w", err)
	}
	return nil
}

// Mutate loads the current list, applies fn, and persists the result,
// holding the store's lock for the whole load-modify-save cycle so
// concurrent mutators serialize cleanly.
func (s *Store) Mutate(fn func(current []string) ([]string, error)) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadLocked()
	// A *CorruptError is not fatal to the mutation: current is already the
	// reset-to-empty list, so proceed with it.
	var cerr *CorruptError
	if err != nil && !errors.As(err, &cerr) {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := validate(next); err != nil {
		return nil, err
	}
	if err := s.saveLocked(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Clear empties the enabled list, used when the catalog invalidates the
// pipeline (a member manifest was deleted) or the validator rejects it.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(nil)
}
