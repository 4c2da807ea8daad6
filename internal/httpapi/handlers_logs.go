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
	"strconv"

	"github.com/vu-ase/roverd/internal/apierr"
	"github.com/vu-ase/roverd/internal/logs"
)

// handleLogs is GET /logs/{author}/{name}/{version}?lines=N: tail the
// last N lines of a service's append log.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	f := fqFromPath(r)

	n := 100
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(w, "lines must be a non-negative integer")
			return
		}
		n = parsed
	}

	lines, err := logs.Tail(s.Layout.LogPath(f), n)
	if err != nil {
		if err == logs.ErrUnavailable {
			apierr.Write(w, http.StatusNotFound, apierr.Envelope{
				Message: "log unavailable: service has never been started",
				Code:    apierr.CodeLogUnavailable,
			})
			return
		}
		apierr.WriteErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}
