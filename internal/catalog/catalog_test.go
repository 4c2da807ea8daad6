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

package catalog

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/vu-ase/roverd/internal/config"
	"github.com/vu-ase/roverd/internal/fq"
)

func testLayout(t *testing.T) fq.Layout {
	dir := t.TempDir()
	return fq.Layout{
		ServicesRoot: filepath.Join(dir, "services"),
		LogDir:       filepath.Join(dir, "logs"),
		BuildLogDir:  filepath.Join(dir, "build-logs"),
	}
}

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Size: int64(len(content)), Mode: 0o755}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestInstallAndReadManifest(t *testing.T) {
	layout := testLayout(t)
	cfg := config.NewStore(filepath.Join(t.TempDir(), "rover.yaml"))
	store := New(layout, fq.KindUser, cfg)

	f := fq.New(fq.KindUser, "vu-ase", "lane-detector", "1.0.0")
	archive := buildArchive(t, map[string]string{
		"service.yaml": "name: lane-detector\nauthor: vu-ase\nsource: github.com/vu-ase/lane-detector\nversion: 1.0.0\ncommands:\n  run: ./run.sh\n",
		"run.sh":       "#!/bin/sh\necho hi\n",
	})

	if err := store.Install(f, bytes.NewReader(archive)); err != nil {
		t.Fatalf("Install: %v", err)
	}

	m, err := store.ReadManifest(f)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if m.Name != "lane-detector" {
		t.Fatalf("unexpected manifest: %+v", m)
	}

	authors, err := store.ListAuthors()
	if err != nil || len(authors) != 1 || authors[0] != "vu-ase" {
		t.Fatalf("ListAuthors = %v, %v", authors, err)
	}
}

func TestReadManifestNotFound(t *testing.T) {
	layout := testLayout(t)
	store := New(layout, fq.KindUser, nil)
	_, err := store.ReadManifest(fq.New(fq.KindUser, "a", "b", "1.0.0"))
	if err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteInvalidatesEnabledSet(t *testing.T) {
	layout := testLayout(t)
	cfg := config.NewStore(filepath.Join(t.TempDir(), "rover.yaml"))
	store := New(layout, fq.KindUser, cfg)

	f := fq.New(fq.KindUser, "vu-ase", "lane-detector", "1.0.0")
	archive := buildArchive(t, map[string]string{
		"service.yaml": "name: lane-detector\nauthor: vu-ase\nsource: github.com/vu-ase/lane-detector\nversion: 1.0.0\ncommands:\n  run: ./run.sh\n",
	})
	if err := store.Install(f, bytes.NewReader(archive)); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Save([]string{layout.ManifestPath(f)}); err != nil {
		t.Fatal(err)
	}

	invalidated, err := store.Delete(f)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !invalidated {
		t.Fatal("expected invalidated == true")
	}
	enabled, err := cfg.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(enabled) != 0 {
		t.Fatalf("expected empty enabled set, got %v", enabled)
	}
	if _, err := os.Stat(layout.WorkDir(f)); !os.IsNotExist(err) {
		t.Fatalf("expected work dir removed, stat err = %v", err)
	}
}
