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

package sources

import "testing"

func TestAddListDelete(t *testing.T) {
	r := New()
	if err := r.Add("vu-ase", "github.com/vu-ase"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add("vu-ase", "github.com/vu-ase"); err != ErrExists {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	list := r.List()
	if len(list) != 1 || list[0].Name != "vu-ase" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := r.Delete("vu-ase"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Delete("vu-ase"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(r.List()) != 0 {
		t.Fatal("expected empty registry after delete")
	}
}

func TestGet(t *testing.T) {
	r := New()
	r.Add("a", "example.com/a")
	if url, ok := r.Get("a"); !ok || url != "example.com/a" {
		t.Fatalf("unexpected Get result: %q %v", url, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected not found")
	}
}
