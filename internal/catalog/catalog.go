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

// Package catalog implements the manifest store (C2): enumeration,
// parsing, install and delete of per-service manifests on disk, per
// section 4.2. The catalog is read-mostly; it is mutated only by upload,
// delete and build operations.
package catalog

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vu-ase/roverd/internal/config"
	"github.com/vu-ase/roverd/internal/fq"
	"github.com/vu-ase/roverd/internal/manifest"
	"github.com/vu-ase/roverd/pkg/targz"
)

// ErrNotFound distinguishes "manifest missing" from other I/O failures.
var ErrNotFound = errors.New("manifest not found")

// Store is the filesystem-backed manifest catalog for one root (either the
// user services tree or the daemon tree).
type Store struct {
	layout fq.Layout
	kind   fq.Kind
	// cfg is consulted on Delete to invalidate the enabled set, per
	// invariant 6 (catalog-config consistency). It may be nil for catalogs
	// that are never subject to an enabled set (not used in this repo, but
	// keeps the type honest about the dependency).
	cfg *config.Store
}

// New returns a catalog store rooted per layout for the given kind
// (KindUser or KindDaemon), wired to cfg so Delete can invalidate the
// enabled set.
func New(layout fq.Layout, kind fq.Kind, cfg *config.Store) *Store {
	return &Store{layout: layout, kind: kind, cfg: cfg}
}

func (s *Store) root() string {
	if s.kind == fq.KindDaemon {
		return s.layout.DaemonRoot
	}
	return s.layout.ServicesRoot
}

func listDirs(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ListAuthors enumerates every author with at least one installed service.
func (s *Store) ListAuthors() ([]string, error) {
	return listDirs(s.root())
}

// ListServices enumerates every service name published by author.
func (s *Store) ListServices(author string) ([]string, error) {
	return listDirs(filepath.Join(s.root(), author))
}

// ListVersions enumerates every installed version of author/name.
func (s *Store) ListVersions(author, name string) ([]string, error) {
	return listDirs(filepath.Join(s.root(), author, name))
}

// ReadManifest loads and validates the manifest for f. Errors are
// ErrNotFound, *manifest.ParseError, or *manifest.ValidationError.
func (s *Store) ReadManifest(f fq.Fq) (*manifest.Manifest, error) {
	path := s.layout.ManifestPath(f)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	m, err := manifest.Parse(path, data)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes the version directory for f. If f's manifest path is
// present in the enabled set, the enabled set is cleared first so there is
// never a window in which the config references a missing manifest
// (invariant 6), and invalidated reports true.
func (s *Store) Delete(f fq.Fq) (invalidated bool, err error) {
	path := s.layout.ManifestPath(f)
	workDir := s.layout.WorkDir(f)

	if s.cfg != nil {
		enabled, err := s.cfg.Load()
		if err != nil {
			var cerr *config.CorruptError
			if !errors.As(err, &cerr) {
				return false, fmt.Errorf("load config: %w", err)
			}
		}
		for _, p := range enabled {
			if p == path {
				if err := s.cfg.Clear(); err != nil {
					return false, fmt.Errorf("clear config: %w", err)
				}
				invalidated = true
				break
			}
		}
	}

	if err := os.RemoveAll(workDir); err != nil {
		return invalidated, fmt.Errorf("remove %s: %w", workDir, err)
	}
	return invalidated, nil
}

// Install atomically replaces the version directory for f with the
// contents of an extracted archive payload (a gzipped tarball), per
// section 4.2. Fetching the archive from a remote service repository is
// out of scope; Install only unpacks bytes it is handed.
func (s *Store) Install(f fq.Fq, archive io.Reader) error {
	workDir := s.layout.WorkDir(f)
	parent := filepath.Dir(workDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}

	staging, err := os.MkdirTemp(parent, ".install-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := targz.ReadFile(archive, func(hdr *tar.Header, r io.Reader) error {
		return extractEntry(staging, hdr, r)
	}); err != nil {
		return fmt.Errorf("extract archive: %w", err)
	}

	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("remove previous version dir: %w", err)
	}
	if err := os.Rename(staging, workDir); err != nil {
		return fmt.Errorf("install version dir: %w", err)
	}
	return nil
}

// extractEntry writes one tar entry beneath dir. Entry names are cleaned
// as if rooted at dir, so a path that would escape it lands inside dir
// instead of being rejected.
func extractEntry(dir string, hdr *tar.Header, r io.Reader) error {
	target := filepath.Join(dir, filepath.Clean("/"+hdr.Name))
	if hdr.Typeflag == tar.TypeDir {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	mode := fs.FileMode(hdr.Mode) & 0o777
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}
