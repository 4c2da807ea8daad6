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
	"errors"
	"strings"
	"testing"
)

const validYAML = `
name: lane-detector
author: vu-ase
source: github.com/vu-ase/lane-detector
version: 1.2.3
commands:
  run: ./lane-detector
  build: make
inputs:
  - service: camera
    streams: [frame]
outputs: [lines]
configuration:
  - name: threshold
    value: 0.5
    type: number
    tunable: true
`

func TestParseAndValidateValid(t *testing.T) {
	m, err := Parse("service.yaml", []byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Validate(m); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if m.Configuration[0].Value.Kind != ValueNumber || m.Configuration[0].Value.Num != 0.5 {
		t.Fatalf("unexpected configuration value: %+v", m.Configuration[0].Value)
	}
}

func TestValidateAggregatesAllErrors(t *testing.T) {
	m := &Manifest{
		Name:    "Bad Name!",
		Author:  "",
		Source:  "https://example.com/foo",
		Version: "not-a-version",
		Inputs: []Input{
			{Service: "camera", Streams: []string{"frame", "frame"}},
		},
		Outputs: []string{"lines", "lines", "Bad"},
	}
	err := Validate(m)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	// Expect multiple distinct failures to have been collected, not just the first.
	if len(verr.Errors) < 5 {
		t.Fatalf("expected validator to aggregate multiple errors, got %d: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(err.Error(), "commands.run") {
		t.Fatalf("expected missing run command to be reported, got: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse("service.yaml", []byte("name: foo\nbogus: true\n"))
	if err == nil {
		t.Fatal("expected parse error for unknown field")
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestConfigurationTypeMismatch(t *testing.T) {
	m := &Manifest{
		Name: "svc", Author: "a", Source: "example.com/a", Version: "1.0.0",
		Commands: Commands{Run: "./run"},
		Configuration: []Configuration{
			{Name: "x", Value: Value{Kind: ValueString, Str: "hi"}, Type: ValueNumber},
		},
	}
	err := Validate(m)
	if err == nil || !strings.Contains(err.Error(), "configuration.0.type") {
		t.Fatalf("expected type mismatch error, got %v", err)
	}
}
