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

// Package pipeline implements the pipeline validator (C4) and the
// BootSpec synthesizer (C5), per sections 4.4 and 4.5.
package pipeline

import (
	"fmt"

	"github.com/vu-ase/roverd/internal/manifest"
)

// DuplicateService is returned when two manifests in the candidate set
// share a name.
type DuplicateService struct{ Name string }

func (e DuplicateService) Error() string {
	return fmt.Sprintf("duplicate service name %q", e.Name)
}

// UnmetService is returned when Source references an input service Target
// that is absent from the candidate set.
type UnmetService struct{ Source, Target string }

func (e UnmetService) Error() string {
	return fmt.Sprintf("%s depends on service %q which is not in the pipeline", e.Source, e.Target)
}

// UnmetStream is returned when Target is present but does not produce
// Stream, which Source requires from it.
type UnmetStream struct{ Source, Target, Stream string }

func (e UnmetStream) Error() string {
	return fmt.Sprintf("%s depends on stream %q from %q, which does not produce it", e.Source, e.Stream, e.Target)
}

// RunnablePipeline is a validated, order-preserving set of manifests. The
// order is the order the manifests were supplied in (the enabled list
// order after validation); BootSpec synthesis depends on this order being
// stable across restarts (section 4.5, 4.9).
type RunnablePipeline struct {
	Services []*manifest.Manifest
}

// Validate checks that manifests forms a runnable graph: names are
// unique, and every input is satisfied by some other distinct member of
// the set that produces the referenced streams. Cycles are permitted.
//
// The validator never short-circuits: it collects every violation before
// returning, per invariant 7 and design note "Validator error
// aggregation". A nil error slice means the set is runnable.
func Validate(manifests []*manifest.Manifest) (*RunnablePipeline, []error) {
	var errs []error

	byName := make(map[string][]*manifest.Manifest, len(manifests))
	for _, m := range manifests {
		byName[m.Name] = append(byName[m.Name], m)
	}
	for name, ms := range byName {
		if len(ms) > 1 {
			errs = append(errs, DuplicateService{Name: name})
		}
	}

	// distinctOther returns a producer named name that is not m itself, so
	// a self-dependency can never resolve: the referenced service must be
	// *another* member of the set.
	distinctOther := func(m *manifest.Manifest, name string) *manifest.Manifest {
		for _, candidate := range byName[name] {
			if candidate != m {
				return candidate
			}
		}
		return nil
	}

	for _, m := range manifests {
		for _, in := range m.Inputs {
			target := distinctOther(m, in.Service)
			if target == nil {
				errs = append(errs, UnmetService{Source: m.Name, Target: in.Service})
				continue
			}

			outputs := make(map[string]bool, len(target.Outputs))
			for _, o := range target.Outputs {
				outputs[o] = true
			}
			for _, stream := range in.Streams {
				if !outputs[stream] {
					errs = append(errs, UnmetStream{Source: m.Name, Target: in.Service, Stream: stream})
				}
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &RunnablePipeline{Services: manifests}, nil
}
