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

// Package build implements the build runner (C8): executes a service's
// build command in its working directory via a login shell, captures
// the build log, and stamps built_at on success, per section 4.8.
package build

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/vu-ase/roverd/internal/catalog"
	"github.com/vu-ase/roverd/internal/fq"
)

// ErrCommandMissing is BuildCommandMissing from section 7: the manifest
// has no commands.build.
var ErrCommandMissing = errors.New("service has no build command")

// ShellUser is the unprivileged login the build command runs as, via
// `su - <user> -c <command>`, matching the original's "su - debix -c"
// invocation so build-time dependencies resolved from that user's shell
// profile (PATH, toolchain managers) are available.
const ShellUser = "rover"

// FailedError is BuildFailed(log_lines): the build command exited
// non-zero, and Lines carries the build log read back into memory, per
// section 4.8 and the supplemented original_source behavior.
type FailedError struct {
	Name  string
	Lines []string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("build failed for %s (%d lines of log)", e.Name, len(e.Lines))
}

// Runner executes build commands and tracks the last successful build
// time per service, per section 4.8. built_at is in-memory only: a
// daemon restart forgets it, matching the original's built_services map.
type Runner struct {
	catalog *catalog.Store
	layout  fq.Layout

	mu      sync.Mutex
	builtAt map[string]time.Time
}

// New returns a Runner backed by cat for manifest lookups and layout for
// build-log paths.
func New(cat *catalog.Store, layout fq.Layout) *Runner {
	return &Runner{catalog: cat, layout: layout, builtAt: make(map[string]time.Time)}
}

// Build resolves f's manifest, rejects if it has no build command, and
// otherwise runs it via a login shell with the service's work directory
// as CWD and stdout/stderr redirected to the build log (truncated at the
// start of each build). On non-zero exit, the log is read back into
// memory and returned as *FailedError. On success, built_at is stamped.
func (r *Runner) Build(f fq.Fq) error {
	m, err := r.catalog.ReadManifest(f)
	if err != nil {
		return fmt.Errorf("resolve manifest: %w", err)
	}
	if m.Commands.Build == "" {
		return ErrCommandMissing
	}

	logPath := r.layout.BuildLogPath(f)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create build log: %w", err)
	}
	defer logFile.Close()

	workDir := r.layout.WorkDir(f)
	shellCmd := fmt.Sprintf("cd %s && %s", workDir, m.Commands.Build)
	cmd := exec.Command("su", "-", ShellUser, "-c", shellCmd)
	cmd.Dir = workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	runErr := cmd.Run()
	if runErr == nil {
		r.mu.Lock()
		r.builtAt[f.String()] = time.Now()
		r.mu.Unlock()
		return nil
	}

	logFile.Close()
	lines, readErr := readLines(logPath)
	if readErr != nil {
		return fmt.Errorf("build failed and log could not be read: %w", readErr)
	}
	return &FailedError{Name: f.Name, Lines: lines}
}

// BuiltAt returns the last successful build time for f, and whether one
// has ever succeeded.
func (r *Runner) BuiltAt(f fq.Fq) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.builtAt[f.String()]
	return t, ok
}

// Forget drops any recorded built_at for f, used when the service is
// deleted so a stale timestamp never outlives its manifest.
func (r *Runner) Forget(f fq.Fq) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.builtAt, f.String())
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
