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

// Package manifest parses and validates per-service descriptors
// (service.yaml) per the data model in section 3 of the specification.
package manifest

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Commands holds the run and (optional) build commands of a service.
type Commands struct {
	Run   string `yaml:"run"`
	Build string `yaml:"build,omitempty"`
}

// Input names another service and the subset of its output streams this
// service consumes.
type Input struct {
	Service string   `yaml:"service"`
	Streams []string `yaml:"streams"`
}

// ValueKind enumerates the two shapes a configuration value may take.
type ValueKind string

const (
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
)

// Value wraps a configuration value that is either a string or a number on
// the wire, tracking which it was so Type agreement can be checked.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Tag {
	case "!!str":
		v.Kind = ValueString
		return node.Decode(&v.Str)
	case "!!int", "!!float":
		v.Kind = ValueNumber
		return node.Decode(&v.Num)
	default:
		return fmt.Errorf("configuration value must be a string or number, got %s", node.Tag)
	}
}

func (v Value) MarshalYAML() (any, error) {
	if v.Kind == ValueNumber {
		return v.Num, nil
	}
	return v.Str, nil
}

// Configuration is one tunable or fixed configuration entry exposed to the
// service and relayed unchanged into its BootSpec.
type Configuration struct {
	Name    string    `yaml:"name"`
	Value   Value     `yaml:"value"`
	Type    ValueKind `yaml:"type,omitempty"`
	Tunable bool      `yaml:"tunable,omitempty"`
}

// Manifest is the parsed form of a service descriptor.
type Manifest struct {
	Name          string          `yaml:"name"`
	Author        string          `yaml:"author"`
	Source        string          `yaml:"source"`
	Version       string          `yaml:"version"`
	Commands      Commands        `yaml:"commands"`
	Inputs        []Input         `yaml:"inputs,omitempty"`
	Outputs       []string        `yaml:"outputs,omitempty"`
	Configuration []Configuration `yaml:"configuration,omitempty"`
}

// ParseError preserves the offending path alongside the underlying decode
// failure, per section 4.2's failure semantics.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a service.yaml document. Unknown fields are rejected so
// that typos in a service author's manifest surface immediately rather
// than silently vanishing.
func Parse(path string, data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &m, nil
}
