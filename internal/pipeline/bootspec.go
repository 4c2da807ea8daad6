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

package pipeline

import (
	"fmt"

	"github.com/vu-ase/roverd/internal/manifest"
)

// Stream names one network endpoint carrying a single named stream.
type Stream struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

// BootSpecInput is one producer this service consumes from, with each
// requested stream resolved to the producer's assigned address.
type BootSpecInput struct {
	Service string   `json:"service" yaml:"service"`
	Streams []Stream `json:"streams" yaml:"streams"`
}

// BootSpecTuning is the reserved transceiver endpoint every service
// receives, per section 4.5 step 4. Whether it is a shared, reserved port
// or a per-service assignment is an open question in the source; this
// implementation keeps it a single shared, reserved address.
type BootSpecTuning struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}

// BootSpec is the per-service runtime document delivered to a child via
// the ASE_SERVICE environment variable.
type BootSpec struct {
	Name          string                   `json:"name" yaml:"name"`
	Version       string                   `json:"version" yaml:"version"`
	Inputs        []BootSpecInput          `json:"inputs" yaml:"inputs"`
	Outputs       []Stream                 `json:"outputs" yaml:"outputs"`
	Configuration []manifest.Configuration `json:"configuration" yaml:"configuration"`
	Tuning        BootSpecTuning           `json:"tuning" yaml:"tuning"`
}

// SynthesisOptions carries DataHost, the host component of every
// synthesized tcp:// address, and StartPort, the port counter's first
// value. Configurable so tests and non-default deployments can override it.
type SynthesisOptions struct {
	DataHost  string
	StartPort int
}

// Synthesize assigns TCP ports to every output in p and resolves every
// input's stream addresses by graph lookup, per section 4.5. It is
// deterministic and order-preserving: given the same validated pipeline
// (same services, same order) and the same StartPort, it always assigns
// the same addresses.
func Synthesize(p *RunnablePipeline, opts SynthesisOptions) map[string]*BootSpec {
	port := opts.StartPort

	// Pass 1: assign an address to every (service, output stream) pair.
	type key struct{ service, stream string }
	addressOf := make(map[key]string)
	for _, m := range p.Services {
		for _, out := range m.Outputs {
			port++
			addressOf[key{m.Name, out}] = fmt.Sprintf("tcp://%s:%d", opts.DataHost, port)
		}
	}

	tuningAddress := fmt.Sprintf("tcp://%s:%d", opts.DataHost, opts.StartPort)

	// Pass 2: project outputs and resolve inputs for every service.
	specs := make(map[string]*BootSpec, len(p.Services))
	for _, m := range p.Services {
		outputs := make([]Stream, 0, len(m.Outputs))
		for _, out := range m.Outputs {
			outputs = append(outputs, Stream{Name: out, Address: addressOf[key{m.Name, out}]})
		}

		inputs := make([]BootSpecInput, 0, len(m.Inputs))
		for _, in := range m.Inputs {
			streams := make([]Stream, 0, len(in.Streams))
			for _, s := range in.Streams {
				// The validator guarantees presence of (in.Service, s).
				streams = append(streams, Stream{Name: s, Address: addressOf[key{in.Service, s}]})
			}
			inputs = append(inputs, BootSpecInput{Service: in.Service, Streams: streams})
		}

		specs[m.Name] = &BootSpec{
			Name:          m.Name,
			Version:       m.Version,
			Inputs:        inputs,
			Outputs:       outputs,
			Configuration: m.Configuration,
			Tuning:        BootSpecTuning{Enabled: false, Address: tuningAddress},
		}
	}
	return specs
}
