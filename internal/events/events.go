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

// Package events is a small pubsub registry for pipeline/process status
// changes, generalized from the teacher's EventListener/PublishEvent
// pattern (pkg/catch/catch.go). The teacher keys listeners in a
// tailscale.com/util/set.HandleSet; that dependency's transport
// (tsnet+SSH) has no place in this daemon (see DESIGN.md), so listeners
// are kept in a plain map with a monotonic handle counter instead.
package events

import (
	"sync"
	"time"
)

// Type names the kind of change an Event reports.
type Type string

const (
	TypeServiceStatusChanged  Type = "service_status_changed"
	TypePipelineStatusChanged Type = "pipeline_status_changed"
	TypeServiceDeleted        Type = "service_deleted"
	TypeServiceInstalled      Type = "service_installed"
)

// Event is one notification pushed to every matching listener.
type Event struct {
	Time        time.Time `json:"time"`
	ServiceName string    `json:"serviceName,omitempty"`
	Type        Type      `json:"type"`
	Data        any       `json:"data,omitempty"`
}

// Handle identifies one registered listener, returned by Subscribe and
// required by Unsubscribe.
type Handle int

type listener struct {
	ch     chan<- Event
	filter func(Event) bool
}

// Bus fans published events out to every subscribed channel whose filter
// accepts them.
type Bus struct {
	mu       sync.Mutex
	next     Handle
	byHandle map[Handle]*listener
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{byHandle: make(map[Handle]*listener)}
}

// Publish stamps event.Time and fans it out to every listener whose
// filter (if any) accepts it. Sends are non-blocking: a slow or dead
// subscriber is skipped rather than stalling the publisher, since the
// websocket handler on the other end is solely responsible for draining
// its own channel.
func (b *Bus) Publish(event Event) {
	event.Time = time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.byHandle {
		if l.filter != nil && !l.filter(event) {
			continue
		}
		select {
		case l.ch <- event:
		default:
		}
	}
}

// Subscribe registers ch to receive events matching filter (nil accepts
// everything), returning a handle for Unsubscribe.
func (b *Bus) Subscribe(ch chan<- Event, filter func(Event) bool) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	h := b.next
	b.byHandle[h] = &listener{ch: ch, filter: filter}
	return h
}

// Unsubscribe removes a listener registered by Subscribe.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byHandle, h)
}
