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
	"github.com/vu-ase/roverd/internal/events"
	"github.com/vu-ase/roverd/internal/fq"
	"github.com/vu-ase/roverd/internal/manifest"
)

// manifestProjection is the wire shape of GET
// /services/{author}/{service}/{version}: the manifest plus built_at,
// per section 6.
type manifestProjection struct {
	Name          string                    `json:"name"`
	Author        string                    `json:"author"`
	Source        string                    `json:"source"`
	Version       string                    `json:"version"`
	Commands      manifest.Commands         `json:"commands"`
	Inputs        []manifest.Input          `json:"inputs,omitempty"`
	Outputs       []string                  `json:"outputs,omitempty"`
	Configuration []manifest.Configuration  `json:"configuration,omitempty"`
	BuiltAt       string                    `json:"built_at,omitempty"`
}

func projectManifest(m *manifest.Manifest, builtAt string) manifestProjection {
	return manifestProjection{
		Name:          m.Name,
		Author:        m.Author,
		Source:        m.Source,
		Version:       m.Version,
		Commands:      m.Commands,
		Inputs:        m.Inputs,
		Outputs:       m.Outputs,
		Configuration: m.Configuration,
		BuiltAt:       builtAt,
	}
}

// handleListAuthors is GET /services.
func (s *Server) handleListAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.Catalog.ListAuthors()
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authors)
}

// handleListServices is GET /services/{author}.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	names, err := s.Catalog.ListServices(r.PathValue("author"))
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// handleListVersions is GET /services/{author}/{service}.
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.Catalog.ListVersions(r.PathValue("author"), r.PathValue("service"))
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func fqFromPath(r *http.Request) fq.Fq {
	return fq.New(fq.KindUser, r.PathValue("author"), serviceOrName(r), r.PathValue("version"))
}

// serviceOrName accommodates the two path shapes in the routing table:
// {service} under /services/{author}/{service}/... and {name} under
// /logs/{author}/{name}/....
func serviceOrName(r *http.Request) string {
	if v := r.PathValue("service"); v != "" {
		return v
	}
	return r.PathValue("name")
}

// handleGetManifest is GET /services/{author}/{service}/{version}.
func (s *Server) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	f := fqFromPath(r)
	m, err := s.Catalog.ReadManifest(f)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	var builtAt string
	if t, ok := s.Build.BuiltAt(f); ok {
		builtAt = t.Format(builtAtFormat)
	}
	writeJSON(w, http.StatusOK, projectManifest(m, builtAt))
}

const builtAtFormat = "2006-01-02T15:04:05Z07:00"

// handleBuild is POST /services/{author}/{service}/{version}: runs the
// build command, returning BuildFailed(log_lines) on non-zero exit.
// Gated on pipeline state (section 4.8) through the controller, which
// rejects with PipelineAlreadyStarted while the pipeline is Started.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	f := fqFromPath(r)
	if err := s.Controller.Build(f); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(events.Event{ServiceName: f.Name, Type: events.TypeServiceInstalled})
	}
	builtAt, _ := s.Build.BuiltAt(f)
	writeJSON(w, http.StatusOK, map[string]string{"built_at": builtAt.Format(builtAtFormat)})
}

// handleDeleteService is DELETE /services/{author}/{service}/{version}.
func (s *Server) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	f := fqFromPath(r)
	invalidated, err := s.Catalog.Delete(f)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	s.Build.Forget(f)
	if s.Events != nil {
		s.Events.Publish(events.Event{ServiceName: f.Name, Type: events.TypeServiceDeleted})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"invalidated_pipeline": invalidated})
}

// handleUpload is POST /upload: a multipart upload of a service archive,
// per section 6. The archive field must be named "archive"; author,
// name and version are supplied as additional form fields since the
// archive itself carries no identity the catalog trusts.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		badRequest(w, "invalid multipart body: "+err.Error())
		return
	}
	author := r.FormValue("author")
	name := r.FormValue("name")
	version := r.FormValue("version")
	if author == "" || name == "" || version == "" {
		badRequest(w, "author, name and version form fields are required")
		return
	}
	file, _, err := r.FormFile("archive")
	if err != nil {
		badRequest(w, "missing archive field: "+err.Error())
		return
	}
	defer file.Close()

	f := fq.New(fq.KindUser, author, name, version)
	if err := s.Catalog.Install(f, file); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(events.Event{ServiceName: f.Name, Type: events.TypeServiceInstalled})
	}
	writeJSON(w, http.StatusCreated, fqWire{Author: f.Author, Name: f.Name, Version: f.Version})
}

// handleFetch is POST /fetch: {url} body, download+install. Fetching
// from a remote service repository is an out-of-scope external
// collaborator (section 1); s.Fetcher is its interface boundary.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL     string `json:"url"`
		Author  string `json:"author"`
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if body.URL == "" || body.Author == "" || body.Name == "" || body.Version == "" {
		badRequest(w, "url, author, name and version are required")
		return
	}

	archive, err := s.Fetcher.Fetch(r.Context(), body.URL)
	if err != nil {
		apierr.Write(w, http.StatusBadGateway, apierr.Envelope{
			Message: "fetch failed: " + err.Error(),
			Code:    apierr.CodeIOError,
		})
		return
	}
	defer archive.Close()

	f := fq.New(fq.KindUser, body.Author, body.Name, body.Version)
	if err := s.Catalog.Install(f, archive); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(events.Event{ServiceName: f.Name, Type: events.TypeServiceInstalled})
	}
	writeJSON(w, http.StatusCreated, fqWire{Author: f.Author, Name: f.Name, Version: f.Version})
}
