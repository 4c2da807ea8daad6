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

// Package httpapi is the external façade (C9): thin HTTP adapters over
// the pipeline controller, catalog, build runner and friends, per
// section 6. It owns no domain state of its own.
package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/vu-ase/roverd/internal/build"
	"github.com/vu-ase/roverd/internal/catalog"
	"github.com/vu-ase/roverd/internal/config"
	"github.com/vu-ase/roverd/internal/controller"
	"github.com/vu-ase/roverd/internal/events"
	"github.com/vu-ase/roverd/internal/fq"
	"github.com/vu-ase/roverd/internal/health"
	"github.com/vu-ase/roverd/internal/sources"
)

// Fetcher retrieves a service archive from a remote URL. Archive
// download from remote repositories is out of scope per section 1 ("only
// their interfaces matter"); the default implementation is a plain HTTP
// GET, adequate for a same-LAN service repository.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// httpFetcher is the default Fetcher, a bare http.Get.
type httpFetcher struct{ client *http.Client }

func (f httpFetcher) Fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &httpStatusError{url: url, status: resp.StatusCode}
	}
	return resp.Body, nil
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status) + ": " + e.url
}

// Credentials is the HTTP Basic credential pair, per section 6: the
// stored credential is (username, sha256(password)).
type Credentials struct {
	Username     string
	PasswordHash string // lowercase hex sha256
}

func (c Credentials) check(username, password string) bool {
	sum := sha256.Sum256([]byte(password))
	gotHash := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(gotHash), []byte(c.PasswordHash)) == 1
}

// Server bundles every collaborator the façade adapts to HTTP. It holds
// no lock of its own: all concurrency discipline lives in the
// components it wraps.
type Server struct {
	Catalog    *catalog.Store
	Config     *config.Store
	Controller *controller.Controller
	Build      *build.Runner
	Health     *health.Monitor
	Sources    *sources.Registry
	Events     *events.Bus
	Layout     fq.Layout
	Creds      Credentials
	Version    string
	StartTime  time.Time
	Fetcher    Fetcher

	// DaemonController supervises the always-on daemon-root services
	// (display, battery), per the Open Question decision recorded in
	// DESIGN.md. It is started once at boot by cmd/roverd and is not
	// exposed on the HTTP surface of section 6.
	DaemonController *controller.Controller

	// Shutdown is invoked by POST /shutdown and by the signal handler
	// (section 5's "dedicated task subscribes to termination/interrupt
	// signals and translates them to the same internal shutdown
	// broadcast used by stop"), wired by cmd/roverd.
	Shutdown func()
}

// NewServer returns a Server with a default Fetcher (plain HTTP GET, a
// 30s client timeout).
func NewServer() *Server {
	return &Server{
		StartTime: time.Now(),
		Fetcher:   httpFetcher{client: &http.Client{Timeout: 30 * time.Second}},
	}
}

// Mux builds the full routing table of section 6, using Go 1.22's
// method-pattern ServeMux, matching the teacher's
// mux.HandleFunc("GET /api/v0/info", ...) style (pkg/catch/api.go).
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handleStatus)

	authed := http.NewServeMux()
	authed.HandleFunc("POST /update", s.handleUpdate)
	authed.HandleFunc("POST /shutdown", s.handleShutdown)

	authed.HandleFunc("GET /services", s.handleListAuthors)
	authed.HandleFunc("GET /services/{author}", s.handleListServices)
	authed.HandleFunc("GET /services/{author}/{service}", s.handleListVersions)
	authed.HandleFunc("GET /services/{author}/{service}/{version}", s.handleGetManifest)
	authed.HandleFunc("POST /services/{author}/{service}/{version}", s.handleBuild)
	authed.HandleFunc("DELETE /services/{author}/{service}/{version}", s.handleDeleteService)

	authed.HandleFunc("POST /upload", s.handleUpload)
	authed.HandleFunc("POST /fetch", s.handleFetch)

	authed.HandleFunc("GET /pipeline", s.handleGetPipeline)
	authed.HandleFunc("POST /pipeline", s.handleSetPipeline)
	authed.HandleFunc("POST /pipeline/start", s.handleStartPipeline)
	authed.HandleFunc("POST /pipeline/stop", s.handleStopPipeline)

	authed.HandleFunc("GET /logs/{author}/{name}/{version}", s.handleLogs)

	authed.HandleFunc("GET /sources", s.handleListSources)
	authed.HandleFunc("POST /sources", s.handleAddSource)
	authed.HandleFunc("DELETE /sources", s.handleDeleteSource)

	authed.HandleFunc("GET /events", s.handleEvents)

	mux.Handle("/", s.requireAuth(authed))
	return mux
}

// requireAuth enforces HTTP Basic per section 6. An invalid scheme
// (missing Basic credentials entirely) is 400; a credential mismatch is
// 401. /status is never wrapped by this, per the routing table above.
func (s *Server) requireAuth(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "Basic authentication required", http.StatusBadRequest)
			return
		}
		if !s.Creds.check(username, password) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}
