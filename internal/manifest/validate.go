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

package manifest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	nameRE   = regexp.MustCompile(`^[a-z]+(-[a-z]+)*$`)
	authorRE = regexp.MustCompile(`^[a-zA-Z0-9]+(-[a-zA-Z0-9]+)*$`)
	sourceRE = regexp.MustCompile(`^([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})(/[a-zA-Z0-9._~%!$&'()*+,;=:@-]*)*$`)
)

// FieldError names one invariant violation by the dotted path of the
// offending field, e.g. "inputs.0.streams.1".
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationError aggregates every FieldError found in one pass over a
// manifest. The validator never short-circuits: callers see the complete
// set in one response.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) add(path, message string) {
	e.Errors = append(e.Errors, FieldError{Path: path, Message: message})
}

// Validate checks the per-manifest invariants of section 3. It returns a
// *ValidationError listing every violation found, or nil if the manifest
// is well-formed.
func Validate(m *Manifest) error {
	var verr ValidationError

	if m.Name == "" {
		verr.add("name", "must not be empty")
	} else if !nameRE.MatchString(m.Name) {
		verr.add("name", "can only consist of lowercase letters and hyphens")
	}

	if m.Author == "" {
		verr.add("author", "must not be empty")
	} else if !authorRE.MatchString(m.Author) {
		verr.add("author", "can only consist of alphanumeric characters and hyphens")
	}

	if m.Source == "" {
		verr.add("source", "must not be empty")
	} else if strings.Contains(m.Source, "://") {
		verr.add("source", "must not include a scheme (no http:// or https://)")
	} else if !sourceRE.MatchString(m.Source) {
		verr.add("source", "must be a valid URL, without a scheme")
	}

	if m.Version == "" {
		verr.add("version", "must not be empty")
	} else if _, err := semver.StrictNewVersion(m.Version); err != nil {
		verr.add("version", "must be a valid semantic version")
	}

	if strings.TrimSpace(m.Commands.Run) == "" {
		verr.add("commands.run", "must not be empty")
	}

	seenInputServices := make(map[string]bool, len(m.Inputs))
	for i, in := range m.Inputs {
		path := fmt.Sprintf("inputs.%d", i)
		if in.Service == "" {
			verr.add(path+".service", "must not be empty")
		} else if seenInputServices[in.Service] {
			verr.add(path+".service", "service appears more than once in inputs")
		} else {
			seenInputServices[in.Service] = true
		}

		seenStreams := make(map[string]bool, len(in.Streams))
		for j, s := range in.Streams {
			sp := fmt.Sprintf("%s.streams.%d", path, j)
			if s == "" {
				verr.add(sp, "must not be empty")
			} else if seenStreams[s] {
				verr.add(sp, "stream appears more than once for this input")
			} else {
				seenStreams[s] = true
			}
		}
	}

	seenOutputs := make(map[string]bool, len(m.Outputs))
	for i, out := range m.Outputs {
		path := fmt.Sprintf("outputs.%d", i)
		if !nameRE.MatchString(out) {
			verr.add(path, "can only consist of lowercase letters and hyphens")
			continue
		}
		if seenOutputs[out] {
			verr.add(path, "output appears more than once")
			continue
		}
		seenOutputs[out] = true
	}

	for i, c := range m.Configuration {
		path := fmt.Sprintf("configuration.%d", i)
		if c.Name == "" {
			verr.add(path+".name", "must not be empty")
		}
		if c.Type != "" {
			switch c.Type {
			case ValueString:
				if c.Value.Kind != ValueString {
					verr.add(path+".type", "declared type string does not match value")
				}
			case ValueNumber:
				if c.Value.Kind != ValueNumber {
					verr.add(path+".type", "declared type number does not match value")
				}
			default:
				verr.add(path+".type", "must be \"string\" or \"number\"")
			}
		}
	}

	if len(verr.Errors) == 0 {
		return nil
	}
	return &verr
}
