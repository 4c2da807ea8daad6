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

// Package fq implements the rover's service identity: the immutable
// (author, name, version) triple that names every manifest on disk.
package fq

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned when a path does not carry enough directory
// components to extract an author/name/version triple.
var ErrInvalidPath = errors.New("invalid path")

// Kind distinguishes user services (installed under the services root) from
// daemon services (the hard-coded, always-available daemons such as
// display and battery, rooted under a parallel daemon tree).
type Kind int

const (
	KindUser Kind = iota
	KindDaemon
)

func (k Kind) String() string {
	if k == KindDaemon {
		return "daemon"
	}
	return "user"
}

// Fq is the fully-qualified identity of a service.
type Fq struct {
	Kind    Kind
	Author  string
	Name    string
	Version string
}

// New canonicalizes author, name and version to lowercase, per the data
// model: Fq fields are always lowercase.
func New(kind Kind, author, name, version string) Fq {
	return Fq{
		Kind:    kind,
		Author:  strings.ToLower(author),
		Name:    strings.ToLower(name),
		Version: strings.ToLower(version),
	}
}

// Equal reports whether two Fqs name the same service, case-insensitively
// on all three fields, regardless of Kind bookkeeping.
func (f Fq) Equal(o Fq) bool {
	return strings.EqualFold(f.Author, o.Author) &&
		strings.EqualFold(f.Name, o.Name) &&
		strings.EqualFold(f.Version, o.Version)
}

func (f Fq) String() string {
	return f.Author + "/" + f.Name + "/" + f.Version
}

// Layout resolves the fixed, startup-configured roots that Fq derivations
// are relative to.
type Layout struct {
	ServicesRoot string
	DaemonRoot   string
	LogDir       string
	BuildLogDir  string
}

func (l Layout) root(k Kind) string {
	if k == KindDaemon {
		return l.DaemonRoot
	}
	return l.ServicesRoot
}

// ManifestPath returns the on-disk location of the service descriptor.
func (l Layout) ManifestPath(f Fq) string {
	return filepath.Join(l.root(f.Kind), f.Author, f.Name, f.Version, "service.yaml")
}

// WorkDir returns the service's working directory.
func (l Layout) WorkDir(f Fq) string {
	return filepath.Join(l.root(f.Kind), f.Author, f.Name, f.Version)
}

// LogPath returns the per-service append log.
func (l Layout) LogPath(f Fq) string {
	return filepath.Join(l.LogDir, f.Author+"-"+f.Name+"-"+f.Version+".log")
}

// BuildLogPath returns the per-build append log.
func (l Layout) BuildLogPath(f Fq) string {
	return filepath.Join(l.BuildLogDir, f.Author+"-"+f.Name+"-"+f.Version+".build.log")
}

// FromManifestPath extracts the (author, name, version) triple from a full
// manifest path of the form <root>/<author>/<name>/<version>/service.yaml.
// It fails with ErrInvalidPath if fewer than three directory components
// precede the final path element.
func FromManifestPath(path string, kind Kind) (Fq, error) {
	clean := filepath.ToSlash(filepath.Clean(path))
	parts := strings.Split(clean, "/")
	// Need at least author/name/version/filename.
	if len(parts) < 4 {
		return Fq{}, ErrInvalidPath
	}
	n := len(parts)
	author, name, version := parts[n-4], parts[n-3], parts[n-2]
	if author == "" || name == "" || version == "" {
		return Fq{}, ErrInvalidPath
	}
	return New(kind, author, name, version), nil
}
