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
	"os/exec"
	"time"

	"github.com/vu-ase/roverd/internal/apierr"
	"github.com/vu-ase/roverd/internal/health"
	"github.com/vu-ase/roverd/internal/sysinfo"
)

type statusResponse struct {
	Status     health.Status `json:"status"`
	Message    string        `json:"message,omitempty"`
	Version    string        `json:"version"`
	UptimeS    float64       `json:"uptime_seconds"`
	OS         string        `json:"os"`
	CPUPercent float64       `json:"cpu_percent"`
	MemUsedMB  float64       `json:"mem_used_mb"`
	MemTotalMB float64       `json:"mem_total_mb"`
	RoverID    int           `json:"rover_id,omitempty"`
	RoverName  string        `json:"rover_name,omitempty"`
	SystemTime string        `json:"system_time"`
}

// handleStatus is GET /status, the one unauthenticated endpoint: daemon
// health, version, uptime, OS, rover id/name, systime, CPU and memory,
// per section 6.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, message, uptime := s.Health.Status()
	id, ok := s.Health.Identity()
	host := sysinfo.SampleHost()

	resp := statusResponse{
		Status:     status,
		Message:    message,
		Version:    s.Version,
		UptimeS:    uptime.Seconds(),
		OS:         host.OS,
		CPUPercent: host.CPUPercent,
		MemUsedMB:  host.MemUsedMB,
		MemTotalMB: host.MemTotalMB,
		SystemTime: time.Now().Format(time.RFC3339),
	}
	if ok {
		resp.RoverID = id.ID
		resp.RoverName = id.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdate is POST /update, section 6's "trigger self-update (shells
// out)". The update mechanism itself (fetching a new release, replacing
// the running binary) is an external collaborator; this handler's
// contract is to invoke it and report whether the shell-out started.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := s.Health.RequireOperational(); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	cmd := exec.Command("su", "-", "rover", "-c", "roverd-update")
	if err := cmd.Start(); err != nil {
		apierr.Write(w, http.StatusInternalServerError, apierr.Envelope{
			Message: "failed to start update: " + err.Error(),
			Code:    apierr.CodeIOError,
		})
		return
	}
	go cmd.Wait()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "update started"})
}

// handleShutdown is POST /shutdown. It triggers the same shutdown path as
// a SIGTERM, stopping the pipeline and then the HTTP server so the process
// exits (wired by cmd/roverd's Shutdown func). It does not halt the host.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "shutting down"})
	if s.Shutdown != nil {
		go s.Shutdown()
	}
}
