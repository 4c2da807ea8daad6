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

package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientStatusUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if _, _, ok := r.BasicAuth(); ok {
			t.Fatalf("status request should not carry credentials")
		}
		json.NewEncoder(w).Encode(Status{Status: "operational", RoverID: 3, RoverName: "rover-3"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "rover", "secret")
	s, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.RoverID != 3 || s.RoverName != "rover-3" {
		t.Fatalf("unexpected status: %+v", s)
	}
}

func TestClientPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "rover" || pass != "secret" {
			t.Fatalf("expected basic auth credentials on authed request")
		}
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "pipeline already started", "code": "pipeline_already_started"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "rover", "secret")
	err := c.StartPipeline(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "pipeline_already_started" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestClientSetPipelineSendsRefs(t *testing.T) {
	var gotBody []ServiceRef
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "rover", "secret")
	refs := []ServiceRef{{Author: "vu-ase", Name: "imaging", Version: "1.0.0"}}
	if err := c.SetPipeline(context.Background(), refs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotBody) != 1 || gotBody[0].Name != "imaging" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}
