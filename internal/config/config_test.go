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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingCreatesEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "rover.yaml"))

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "rover.yaml")); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "rover.yaml"))

	want := []string{
		filepath.Join(dir, "a", "svc", "1.0.0", "service.yaml"),
		filepath.Join(dir, "b", "svc", "1.0.0", "service.yaml"),
	}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSaveRejectsRelativeOrDuplicate(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "rover.yaml"))

	if err := s.Save([]string{"relative/path"}); err == nil {
		t.Fatal("expected error for relative path")
	}
	abs := filepath.Join(dir, "a", "svc", "1.0.0", "service.yaml")
	if err := s.Save([]string{abs, abs}); err == nil {
		t.Fatal("expected error for duplicate path")
	}
}

func TestLoadCorruptResetsToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rover.yaml")
	if err := os.WriteFile(path, []byte("not: [valid, yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path)

	got, err := s.Load()
	var cerr *CorruptError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CorruptError, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list after corruption reset, got %v", got)
	}

	// The file on disk should now be a valid empty document.
	got2, err := s.Load()
	if err != nil {
		t.Fatalf("second Load after reset: %v", err)
	}
	if len(got2) != 0 {
		t.Fatalf("expected empty list, got %v", got2)
	}
}

func TestMutateSerializesLoadModifySave(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "rover.yaml"))
	abs := filepath.Join(dir, "a", "svc", "1.0.0", "service.yaml")

	got, err := s.Mutate(func(current []string) ([]string, error) {
		return append(current, abs), nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if !reflect.DeepEqual(got, []string{abs}) {
		t.Fatalf("got %v", got)
	}
}
