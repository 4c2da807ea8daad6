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

package health

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadIdentityValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover")
	if err := os.WriteFile(path, []byte("7 my-rover  deadbeef\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := ReadIdentity(path)
	if err != nil {
		t.Fatalf("ReadIdentity: %v", err)
	}
	if id.ID != 7 || id.Name != "my-rover" || id.PasswordHash != "deadbeef" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestReadIdentityMissingFile(t *testing.T) {
	_, err := ReadIdentity(filepath.Join(t.TempDir(), "missing"))
	if err != ErrIdentityUnreadable {
		t.Fatalf("expected ErrIdentityUnreadable, got %v", err)
	}
}

func TestReadIdentityTooFewTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover")
	if err := os.WriteFile(path, []byte("7 my-rover\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadIdentity(path); err != ErrIdentityUnreadable {
		t.Fatalf("expected ErrIdentityUnreadable, got %v", err)
	}
}

func TestNewMonitorUnreadableSetsUnrecoverable(t *testing.T) {
	m := NewMonitor(filepath.Join(t.TempDir(), "missing"))
	status, _, _ := m.Status()
	if status != StatusUnrecoverable {
		t.Fatalf("expected Unrecoverable, got %v", status)
	}
	if err := m.RequireOperational(); err != ErrIdentityUnreadable {
		t.Fatalf("expected ErrIdentityUnreadable, got %v", err)
	}
}

func TestNewMonitorValidIsOperational(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover")
	if err := os.WriteFile(path, []byte("1 test hash\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewMonitor(path)
	status, _, _ := m.Status()
	if status != StatusOperational {
		t.Fatalf("expected Operational, got %v", status)
	}
	if err := m.RequireOperational(); err != nil {
		t.Fatalf("RequireOperational: %v", err)
	}
}

func TestMarkRecoverableDoesNotOverrideUnrecoverable(t *testing.T) {
	m := NewMonitor(filepath.Join(t.TempDir(), "missing"))
	m.MarkRecoverable("config was corrupt")
	status, _, _ := m.Status()
	if status != StatusUnrecoverable {
		t.Fatalf("expected Unrecoverable to stick, got %v", status)
	}
}

func TestMarkRecoverableFromOperational(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover")
	os.WriteFile(path, []byte("1 test hash\n"), 0o644)
	m := NewMonitor(path)
	m.MarkRecoverable("config was corrupt")
	status, msg, _ := m.Status()
	if status != StatusRecoverable || msg != "config was corrupt" {
		t.Fatalf("unexpected status/message: %v %q", status, msg)
	}
}
