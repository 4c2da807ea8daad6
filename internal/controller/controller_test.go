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

package controller

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vu-ase/roverd/internal/build"
	"github.com/vu-ase/roverd/internal/catalog"
	"github.com/vu-ase/roverd/internal/config"
	"github.com/vu-ase/roverd/internal/fq"
	"github.com/vu-ase/roverd/internal/manifest"
	"github.com/vu-ase/roverd/internal/pipeline"
	"github.com/vu-ase/roverd/internal/supervisor"
	"gopkg.in/yaml.v3"
)

func writeManifest(t *testing.T, layout fq.Layout, f fq.Fq, m manifest.Manifest) {
	t.Helper()
	dir := layout.WorkDir(f)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.ManifestPath(f), data, 0o644); err != nil {
		t.Fatal(err)
	}
	writeScript(t, dir, "run.sh", "sleep 5\n")
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newTestController(t *testing.T) (*Controller, fq.Layout) {
	t.Helper()
	base := t.TempDir()
	layout := fq.Layout{
		ServicesRoot: filepath.Join(base, "services"),
		LogDir:       filepath.Join(base, "logs"),
		BuildLogDir:  filepath.Join(base, "build-logs"),
	}
	if err := os.MkdirAll(layout.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.NewStore(filepath.Join(base, "rover.yaml"))
	cat := catalog.New(layout, fq.KindUser, cfg)
	sup := supervisor.New()
	br := build.New(cat, layout)
	opts := pipeline.SynthesisOptions{DataHost: "127.0.0.1", StartPort: 9500}
	ctrl := New(cat, cfg, sup, br, layout, fq.KindUser, opts)
	return ctrl, layout
}

func baseManifest(name string, outputs []string, inputs []manifest.Input) manifest.Manifest {
	return manifest.Manifest{
		Name:     name,
		Author:   "vu-ase",
		Source:   "github.com/vu-ase/" + name,
		Version:  "1.0.0",
		Commands: manifest.Commands{Run: "./run.sh"},
		Inputs:   inputs,
		Outputs:  outputs,
	}
}

func TestSetEnabledHappyPath(t *testing.T) {
	ctrl, layout := newTestController(t)
	a := fq.New(fq.KindUser, "vu-ase", "a", "1.0.0")
	b := fq.New(fq.KindUser, "vu-ase", "b", "1.0.0")
	writeManifest(t, layout, a, baseManifest("a", []string{"x"}, nil))
	writeManifest(t, layout, b, baseManifest("b", []string{"y"}, []manifest.Input{{Service: "a", Streams: []string{"x"}}}))

	errs, err := ctrl.SetEnabled([]fq.Fq{a, b})
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if errs != nil {
		t.Fatalf("unexpected validation errors: %v", errs)
	}
	if ctrl.Stats().Status != StateStartable {
		t.Fatalf("expected Startable, got %v", ctrl.Stats().Status)
	}
}

func TestSetEnabledValidationFailureClearsConfig(t *testing.T) {
	ctrl, layout := newTestController(t)
	a := fq.New(fq.KindUser, "vu-ase", "a", "1.0.0")
	c := fq.New(fq.KindUser, "vu-ase", "c", "1.0.0")
	writeManifest(t, layout, a, baseManifest("a", []string{"x"}, nil))
	writeManifest(t, layout, c, baseManifest("c", nil, []manifest.Input{{Service: "a", Streams: []string{"z"}}}))

	errs, err := ctrl.SetEnabled([]fq.Fq{a, c})
	if err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 validation error, got %v", errs)
	}
	if _, ok := errs[0].(pipeline.UnmetStream); !ok {
		t.Fatalf("expected UnmetStream, got %T", errs[0])
	}
	if ctrl.Stats().Status != StateEmpty {
		t.Fatalf("expected Empty after validation failure, got %v", ctrl.Stats().Status)
	}
}

func TestStartStopHappyPath(t *testing.T) {
	ctrl, layout := newTestController(t)
	a := fq.New(fq.KindUser, "vu-ase", "a", "1.0.0")
	b := fq.New(fq.KindUser, "vu-ase", "b", "1.0.0")
	writeManifest(t, layout, a, baseManifest("a", []string{"x"}, nil))
	writeManifest(t, layout, b, baseManifest("b", []string{"y"}, []manifest.Input{{Service: "a", Streams: []string{"x"}}}))

	if _, err := ctrl.SetEnabled([]fq.Fq{a, b}); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if ctrl.Stats().Status != StateStarted {
		t.Fatalf("expected Started, got %v", ctrl.Stats().Status)
	}
	if err := ctrl.Start(); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}

	_, infos := ctrl.Inspect()
	if len(infos) != 2 {
		t.Fatalf("expected 2 service infos, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Status != supervisor.StatusRunning || info.LastPID == 0 {
			t.Fatalf("expected running process, got %+v", info)
		}
	}

	if err := ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ctrl.Stats().Status != StateStartable {
		t.Fatalf("expected Startable after stop, got %v", ctrl.Stats().Status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, infos = ctrl.Inspect()
		allDone := true
		for _, info := range infos {
			if info.Status == supervisor.StatusRunning {
				allDone = false
			}
		}
		if allDone {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, info := range infos {
		if info.Status == supervisor.StatusRunning {
			t.Fatalf("expected no running processes after stop, got %+v", info)
		}
	}
}

func TestStartFailsWhenEmpty(t *testing.T) {
	ctrl, _ := newTestController(t)
	if err := ctrl.Start(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestStopFailsWhenNotStarted(t *testing.T) {
	ctrl, _ := newTestController(t)
	if err := ctrl.Stop(); err != ErrNoRunningServices {
		t.Fatalf("expected ErrNoRunningServices, got %v", err)
	}
}

func TestCoupledLifecycleChildExitStopsWholePipeline(t *testing.T) {
	ctrl, layout := newTestController(t)
	a := fq.New(fq.KindUser, "vu-ase", "a", "1.0.0")
	b := fq.New(fq.KindUser, "vu-ase", "b", "1.0.0")
	writeManifest(t, layout, a, baseManifest("a", []string{"x"}, nil))
	writeManifest(t, layout, b, baseManifest("b", []string{"y"}, []manifest.Input{{Service: "a", Streams: []string{"x"}}}))
	// "a" exits quickly on its own; "b" keeps sleeping.
	writeScript(t, layout.WorkDir(a), "run.sh", "exit 0\n")

	if _, err := ctrl.SetEnabled([]fq.Fq{a, b}); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.Stats().Status == StateStartable {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ctrl.Stats().Status != StateStartable {
		t.Fatalf("expected pipeline to return to Startable after child exit, got %v", ctrl.Stats().Status)
	}

	// The coupled lifecycle (section 4.6) must also bring down the
	// surviving sibling: "b" was still sleeping when "a" exited, so its
	// watcher must observe the broadcast shutdown and move it out of
	// StatusRunning within one grace window, not be left as an orphan.
	deadline = time.Now().Add(2 * time.Second)
	var bInfo ServiceInfo
	for time.Now().Before(deadline) {
		_, infos := ctrl.Inspect()
		for _, info := range infos {
			if info.Name == "b" {
				bInfo = info
			}
		}
		if bInfo.Status == supervisor.StatusTerminated || bInfo.Status == supervisor.StatusKilled {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if bInfo.Status != supervisor.StatusTerminated && bInfo.Status != supervisor.StatusKilled {
		t.Fatalf("expected sibling b to be Terminated or Killed after coupled shutdown, got %+v", bInfo)
	}
}
