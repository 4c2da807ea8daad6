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
	"github.com/vu-ase/roverd/internal/controller"
	"github.com/vu-ase/roverd/internal/events"
	"github.com/vu-ase/roverd/internal/fq"
)

type serviceInfoWire struct {
	Author       string  `json:"author"`
	Name         string  `json:"name"`
	Version      string  `json:"version"`
	Status       string  `json:"status"`
	LastPID      int     `json:"last_pid,omitempty"`
	LastExitCode int     `json:"last_exit_code,omitempty"`
	Faults       int     `json:"faults"`
	UptimeMS     int64   `json:"uptime_ms,omitempty"`
	MemMB        float64 `json:"mem_mb,omitempty"`
	CPUPercent   float64 `json:"cpu_percent,omitempty"`
}

type pipelineResponse struct {
	Status   controller.PipelineState `json:"status"`
	Services []serviceInfoWire        `json:"services"`
}

// handleGetPipeline is GET /pipeline: the enabled set with a runtime
// projection, section 4.7's inspect().
func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	stats, infos := s.Controller.Inspect()
	resp := pipelineResponse{Status: stats.Status, Services: make([]serviceInfoWire, 0, len(infos))}
	for _, info := range infos {
		resp.Services = append(resp.Services, serviceInfoWire{
			Author:       info.Fq.Author,
			Name:         info.Fq.Name,
			Version:      info.Fq.Version,
			Status:       string(info.Status),
			LastPID:      info.LastPID,
			LastExitCode: info.LastExitCode,
			Faults:       info.Faults,
			UptimeMS:     info.UptimeMS,
			MemMB:        info.MemMB,
			CPUPercent:   info.CPUPercent,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSetPipeline is POST /pipeline: body is [{name, author, version},
// ...], the new enabled set. A validation failure is reported as
// structured validation_errors rather than a single message.
func (s *Server) handleSetPipeline(w http.ResponseWriter, r *http.Request) {
	var wire []fqWire
	if err := decodeJSON(r, &wire); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	fqs := make([]fq.Fq, len(wire))
	for i, item := range wire {
		fqs[i] = fq.New(fq.KindUser, item.Author, item.Name, item.Version)
	}

	validationErrs, err := s.Controller.SetEnabled(fqs)
	if err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if validationErrs != nil {
		apierr.Write(w, http.StatusBadRequest, apierr.ValidationEnvelope(validationErrs))
		return
	}
	if s.Events != nil {
		s.Events.Publish(events.Event{Type: events.TypePipelineStatusChanged})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(s.Controller.Stats().Status)})
}

// handleStartPipeline is POST /pipeline/start.
func (s *Server) handleStartPipeline(w http.ResponseWriter, r *http.Request) {
	if err := s.Controller.Start(); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(events.Event{Type: events.TypePipelineStatusChanged})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(controller.StateStarted)})
}

// handleStopPipeline is POST /pipeline/stop.
func (s *Server) handleStopPipeline(w http.ResponseWriter, r *http.Request) {
	if err := s.Controller.Stop(); err != nil {
		apierr.WriteErr(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(events.Event{Type: events.TypePipelineStatusChanged})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(controller.StateStartable)})
}
