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

package httpapi

import (
	"net/http"

	"github.com/vu-ase/roverd/internal/apierr"
	"github.com/vu-ase/roverd/internal/sources"
)

// handleListSources is GET /sources.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sources.List())
}

// handleAddSource is POST /sources: {name, url} body.
func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if body.Name == "" || body.URL == "" {
		badRequest(w, "name and url are required")
		return
	}
	if err := s.Sources.Add(body.Name, body.URL); err != nil {
		status := http.StatusInternalServerError
		if err == sources.ErrExists {
			status = http.StatusConflict
		}
		apierr.Write(w, status, apierr.Envelope{Message: err.Error(), Code: apierr.CodeInternal})
		return
	}
	writeJSON(w, http.StatusCreated, sources.Source{Name: body.Name, URL: body.URL})
}

// handleDeleteSource is DELETE /sources: {name} body, since DELETE
// requests in this API carry no path segment for the source name.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := s.Sources.Delete(body.Name); err != nil {
		status := http.StatusInternalServerError
		if err == sources.ErrNotFound {
			status = http.StatusNotFound
		}
		apierr.Write(w, status, apierr.Envelope{Message: err.Error(), Code: apierr.CodeNotFound})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": body.Name})
}
