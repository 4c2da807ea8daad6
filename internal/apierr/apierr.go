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

// Package apierr maps the error taxonomy of section 7 onto HTTP status
// codes and the {message, code} response envelope, the structured
// counterpart to the teacher's http.Error(w, err.Error(), status) calls.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vu-ase/roverd/internal/build"
	"github.com/vu-ase/roverd/internal/catalog"
	"github.com/vu-ase/roverd/internal/config"
	"github.com/vu-ase/roverd/internal/controller"
	"github.com/vu-ase/roverd/internal/fq"
	"github.com/vu-ase/roverd/internal/health"
	"github.com/vu-ase/roverd/internal/manifest"
	"github.com/vu-ase/roverd/internal/pipeline"
	"github.com/vu-ase/roverd/internal/supervisor"
)

// Code is the structured identifier carried alongside every error
// response, so clients can switch on it instead of parsing Message.
type Code string

const (
	CodeInvalidPath            Code = "invalid_path"
	CodeParseError             Code = "parse_error"
	CodeValidationError        Code = "validation_error"
	CodeInvalidAuth            Code = "invalid_auth"
	CodePipelineAlreadyStarted Code = "pipeline_already_started"
	CodePipelineEmpty          Code = "pipeline_empty"
	CodeNoRunningServices      Code = "no_running_services"
	CodeNotFound               Code = "not_found"
	CodeDuplicateService       Code = "duplicate_service"
	CodeUnmetService           Code = "unmet_service"
	CodeUnmetStream            Code = "unmet_stream"
	CodeSpawnFailed            Code = "spawn_failed"
	CodeBuildCommandMissing    Code = "build_command_missing"
	CodeBuildFailed            Code = "build_failed"
	CodeLogUnavailable         Code = "log_unavailable"
	CodeIOError                Code = "io_error"
	CodeInternal               Code = "internal_error"
)

// Envelope is the body of every error response.
type Envelope struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
	// ValidationErrors carries the structured graph-validator errors
	// (DuplicateService, UnmetService, UnmetStream) so clients do not have
	// to parse them out of Message.
	ValidationErrors []string `json:"validation_errors,omitempty"`
	// LogLines carries a failed build's captured output, per BuildFailed.
	LogLines []string `json:"log_lines,omitempty"`
}

// Classify maps err onto an HTTP status code and response envelope. It
// recognizes the sentinel and typed errors raised by every core
// component; anything unrecognized becomes a 500 with CodeInternal so no
// caller is forced to classify errors it did not originate.
func Classify(err error) (status int, env Envelope) {
	switch {
	case err == nil:
		return http.StatusOK, Envelope{}

	case errors.Is(err, fq.ErrInvalidPath):
		return http.StatusBadRequest, Envelope{Message: err.Error(), Code: CodeInvalidPath}

	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, Envelope{Message: err.Error(), Code: CodeNotFound}

	case errors.Is(err, controller.ErrAlreadyStarted):
		return http.StatusConflict, Envelope{Message: err.Error(), Code: CodePipelineAlreadyStarted}

	case errors.Is(err, controller.ErrEmpty):
		return http.StatusConflict, Envelope{Message: err.Error(), Code: CodePipelineEmpty}

	case errors.Is(err, controller.ErrNoRunningServices):
		return http.StatusConflict, Envelope{Message: err.Error(), Code: CodeNoRunningServices}

	case errors.Is(err, controller.ErrNotStartable):
		return http.StatusConflict, Envelope{Message: err.Error(), Code: CodePipelineAlreadyStarted}

	case errors.Is(err, build.ErrCommandMissing):
		return http.StatusBadRequest, Envelope{Message: err.Error(), Code: CodeBuildCommandMissing}

	case errors.Is(err, health.ErrIdentityUnreadable):
		return http.StatusServiceUnavailable, Envelope{Message: err.Error(), Code: CodeInvalidAuth}
	}

	var perr *manifest.ParseError
	if errors.As(err, &perr) {
		return http.StatusBadRequest, Envelope{Message: err.Error(), Code: CodeParseError}
	}

	var verr *manifest.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, Envelope{Message: err.Error(), Code: CodeValidationError}
	}

	var cerr *config.CorruptError
	if errors.As(err, &cerr) {
		return http.StatusOK, Envelope{Message: err.Error(), Code: CodeIOError}
	}

	var spawnErr *supervisor.ErrSpawnFailed
	if errors.As(err, &spawnErr) {
		return http.StatusInternalServerError, Envelope{Message: err.Error(), Code: CodeSpawnFailed}
	}

	var buildErr *build.FailedError
	if errors.As(err, &buildErr) {
		return http.StatusUnprocessableEntity, Envelope{Message: err.Error(), Code: CodeBuildFailed, LogLines: buildErr.Lines}
	}

	switch err.(type) {
	case pipeline.DuplicateService:
		return http.StatusBadRequest, Envelope{Message: err.Error(), Code: CodeDuplicateService}
	case pipeline.UnmetService:
		return http.StatusBadRequest, Envelope{Message: err.Error(), Code: CodeUnmetService}
	case pipeline.UnmetStream:
		return http.StatusBadRequest, Envelope{Message: err.Error(), Code: CodeUnmetStream}
	}

	return http.StatusInternalServerError, Envelope{Message: err.Error(), Code: CodeInternal}
}

// ValidationEnvelope builds the envelope for a validator error set
// (section 7's "surfaced as structured validation_errors"), used by
// set_enabled whenever Validate returns one or more errors.
func ValidationEnvelope(errs []error) Envelope {
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.Error()
	}
	return Envelope{
		Message:          "pipeline validation failed",
		Code:             CodeValidationError,
		ValidationErrors: lines,
	}
}

// Write sends status and env as the JSON error body.
func Write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// WriteErr classifies err and writes the resulting envelope.
func WriteErr(w http.ResponseWriter, err error) {
	status, env := Classify(err)
	Write(w, status, env)
}
