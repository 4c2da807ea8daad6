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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/vu-ase/roverd/internal/events"
	"github.com/vu-ase/roverd/pkg/websocketutil"
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents is GET /events: a websocket stream of pipeline/service
// status changes, generalized from the teacher's handleEvents
// (pkg/catch/api.go). Unlike the teacher, which writes JSON straight
// onto the raw *websocket.Conn, outbound frames go through
// websocketutil.ConnReadWriter, which sends each event payload as a
// binary frame.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("events: websocket upgrade failed", "error", err)
		return
	}

	rw := websocketutil.NewConnReadWriteCloser(r.Context(), conn)
	defer rw.Close()

	ch := make(chan events.Event, 16)
	handle := s.Events.Subscribe(ch, nil)
	defer s.Events.Unsubscribe(handle)

	for {
		select {
		case event := <-ch:
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("events: marshal failed", "error", err)
				continue
			}
			if _, err := rw.Write(payload); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-rw.DoneCh:
			return
		}
	}
}
