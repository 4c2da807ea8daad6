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

// Package controller implements the pipeline controller (C7): the
// top-level Empty/Startable/Started state machine that orchestrates the
// config store, the catalog, the validator/synthesizer and the
// supervisor, per section 4.7.
package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vu-ase/roverd/internal/build"
	"github.com/vu-ase/roverd/internal/catalog"
	"github.com/vu-ase/roverd/internal/config"
	"github.com/vu-ase/roverd/internal/fq"
	"github.com/vu-ase/roverd/internal/manifest"
	"github.com/vu-ase/roverd/internal/pipeline"
	"github.com/vu-ase/roverd/internal/supervisor"
	"github.com/vu-ase/roverd/internal/sysinfo"
)

// PipelineState is the coarse lifecycle of section 3's "Pipeline stats".
type PipelineState string

const (
	StateEmpty     PipelineState = "empty"
	StateStartable PipelineState = "startable"
	StateStarted   PipelineState = "started"
)

var (
	// ErrAlreadyStarted is returned by Start when the pipeline is already
	// Started.
	ErrAlreadyStarted = errors.New("pipeline already started")
	// ErrEmpty is returned by Start when the enabled set is empty.
	ErrEmpty = errors.New("pipeline is empty")
	// ErrNoRunningServices is returned by Stop when the pipeline is not
	// Started.
	ErrNoRunningServices = errors.New("no running services")
	// ErrNotStartable is returned by SetEnabled when the pipeline is
	// currently Started; dynamic reconfiguration while running is a
	// non-goal.
	ErrNotStartable = errors.New("pipeline must be stopped before changing the enabled set")
)

// Stats is the triple describing coarse pipeline lifecycle, per section 3.
type Stats struct {
	Status      PipelineState
	LastStart   time.Time
	LastStop    time.Time
	LastRestart time.Time
}

// ServiceInfo is one process's projection for inspect(), combining the
// supervisor's bookkeeping with a fresh resource sample.
type ServiceInfo struct {
	Fq           fq.Fq
	Name         string
	Status       supervisor.Status
	LastPID      int
	LastExitCode int
	Faults       int
	UptimeMS     int64
	MemMB        float64
	CPUPercent   float64
}

// Controller is the pipeline controller described in section 4.7. One
// instance owns one pipeline — the user pipeline, or (per the Open
// Question recorded in DESIGN.md) a daemon pipeline sharing the same
// types but a distinct catalog/config namespace.
type Controller struct {
	cfg     *config.Store
	catalog *catalog.Store
	sup     *supervisor.Supervisor
	build   *build.Runner
	layout  fq.Layout
	kind    fq.Kind
	opts    pipeline.SynthesisOptions

	// statsMu is the outermost lock in the hierarchy of section 5: stats ->
	// processes -> spawned -> config. It is held across calls into cfg and
	// sup, which acquire their own inner locks.
	statsMu sync.RWMutex
	stats   Stats
}

// New wires a Controller over the given catalog, config store,
// supervisor and build runner. The supervisor's OnChildExit is set to
// drive the coupled lifecycle (section 4.6): one child exit brings the
// whole pipeline back to Startable. The build runner is wrapped by
// Build so that building a service is serialized against the same
// statsMu that guards Start/Stop/SetEnabled, per section 4.8.
func New(cat *catalog.Store, cfg *config.Store, sup *supervisor.Supervisor, br *build.Runner, layout fq.Layout, kind fq.Kind, opts pipeline.SynthesisOptions) *Controller {
	c := &Controller{
		cfg:     cfg,
		catalog: cat,
		sup:     sup,
		build:   br,
		layout:  layout,
		kind:    kind,
		opts:    opts,
		stats:   Stats{Status: StateEmpty},
	}
	sup.OnChildExit = c.onChildExit
	return c
}

// onChildExit implements the coupled lifecycle of section 4.6: called by
// the supervisor (without any supervisor lock held) whenever any child
// exits for any reason. It drives the whole pipeline back to Startable
// and broadcasts a shutdown to every surviving sibling, so that within
// one grace window the rest of the pipeline is Terminated-then-Killed
// rather than left running as orphans.
func (c *Controller) onChildExit() {
	c.statsMu.Lock()
	wasStarted := c.stats.Status == StateStarted
	if wasStarted {
		c.stats.Status = StateStartable
		c.stats.LastRestart = time.Now()
	}
	c.statsMu.Unlock()

	if !wasStarted {
		return
	}
	slog.Info("pipeline returned to startable after child exit", "kind", c.kind.String())
	c.sup.Stop()
}

// Stats returns a snapshot of the pipeline's coarse lifecycle state.
func (c *Controller) Stats() Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// resolveManifests reads and parses every manifest referenced by paths,
// inferring each one's Fq from its own path (section 4.1). It does not
// validate the graph; callers run the validator separately so validation
// errors and read errors are reported distinctly.
func (c *Controller) resolveManifests(paths []string) ([]fq.Fq, []*manifest.Manifest, error) {
	fqs := make([]fq.Fq, 0, len(paths))
	manifests := make([]*manifest.Manifest, 0, len(paths))
	for _, p := range paths {
		f, err := fq.FromManifestPath(p, c.kind)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		m, err := c.catalog.ReadManifest(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p, err)
		}
		fqs = append(fqs, f)
		manifests = append(manifests, m)
	}
	return fqs, manifests, nil
}

// SetEnabled replaces the enabled set with the manifests named by fqs,
// per section 4.7. Permitted only while the pipeline is Empty or
// Startable; dynamic reconfiguration while Started is a non-goal. Reads
// every referenced manifest, runs the validator, and persists the list
// only if it validates — otherwise the config is cleared and the
// validator's errors are returned.
func (c *Controller) SetEnabled(fqs []fq.Fq) ([]error, error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if c.stats.Status == StateStarted {
		return nil, ErrNotStartable
	}

	if len(fqs) == 0 {
		if err := c.cfg.Clear(); err != nil {
			return nil, fmt.Errorf("clear config: %w", err)
		}
		c.stats.Status = StateEmpty
		return nil, nil
	}

	paths := make([]string, 0, len(fqs))
	manifests := make([]*manifest.Manifest, 0, len(fqs))
	for _, f := range fqs {
		m, err := c.catalog.ReadManifest(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		paths = append(paths, c.layout.ManifestPath(f))
		manifests = append(manifests, m)
	}

	if _, errs := pipeline.Validate(manifests); errs != nil {
		if err := c.cfg.Clear(); err != nil {
			return nil, fmt.Errorf("clear config: %w", err)
		}
		c.stats.Status = StateEmpty
		return errs, nil
	}

	if err := c.cfg.Save(paths); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	c.stats.Status = StateStartable
	return nil, nil
}

// Start transitions Startable -> Started, per section 4.7. It re-reads
// the enabled list and every referenced manifest (catching on-disk drift
// since the last SetEnabled), re-validates, synthesizes BootSpecs,
// reconciles process records, and spawns. An enabled list that reads back
// empty moves the pipeline to Empty; any other failure leaves it
// Startable.
func (c *Controller) Start() error {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	switch c.stats.Status {
	case StateStarted:
		return ErrAlreadyStarted
	case StateEmpty:
		return ErrEmpty
	}

	paths, err := c.cfg.Load()
	if err != nil {
		var cerr *config.CorruptError
		if !errors.As(err, &cerr) {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if len(paths) == 0 {
		c.stats.Status = StateEmpty
		return ErrEmpty
	}

	fqs, manifests, err := c.resolveManifests(paths)
	if err != nil {
		return fmt.Errorf("resolve enabled set: %w", err)
	}

	rp, errs := pipeline.Validate(manifests)
	if errs != nil {
		return fmt.Errorf("enabled set no longer validates: %w", errors.Join(errs...))
	}

	specs := pipeline.Synthesize(rp, c.opts)
	commands := make(map[string]string, len(manifests))
	for _, m := range manifests {
		commands[m.Name] = m.Commands.Run
	}

	if err := c.sup.Reconcile(fqs, specs, c.layout, commands); err != nil {
		return fmt.Errorf("reconcile processes: %w", err)
	}

	if err := c.sup.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	c.stats.Status = StateStarted
	c.stats.LastStart = time.Now()
	return nil
}

// Stop transitions Started -> Startable, per section 4.6's "Stopping". A
// no-op error (ErrNoRunningServices) unless the pipeline is Started.
func (c *Controller) Stop() error {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if c.stats.Status != StateStarted {
		return ErrNoRunningServices
	}

	c.sup.Stop()
	c.stats.Status = StateStartable
	c.stats.LastStop = time.Now()
	return nil
}

// Build runs f's build command, per section 4.8: serialized against
// pipeline state mutations under the same statsMu that guards
// Start/Stop/SetEnabled, and rejected outright while the pipeline is
// Started, so a rebuild can never race a live child's own binary. The
// lock is held for the whole build subprocess, not just the initial
// check, closing the TOCTOU window a concurrent Start would otherwise
// open.
func (c *Controller) Build(f fq.Fq) error {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if c.stats.Status == StateStarted {
		return ErrAlreadyStarted
	}
	return c.build.Build(f)
}

// Inspect returns the current pipeline stats plus a per-service
// projection, sampling resource use at call time from the external
// system-info source, per section 4.7.
func (c *Controller) Inspect() (Stats, []ServiceInfo) {
	c.statsMu.RLock()
	stats := c.stats
	c.statsMu.RUnlock()

	snap := c.sup.Snapshot()
	infos := make([]ServiceInfo, len(snap))

	// Resource sampling is one syscall-backed gopsutil read per running
	// process; with a full pipeline that is worth parallelizing rather
	// than serializing behind statsMu's caller.
	var g errgroup.Group
	for i, p := range snap {
		i, p := i, p
		infos[i] = ServiceInfo{
			Fq:           p.Fq,
			Name:         p.Name,
			Status:       p.Status,
			LastPID:      p.LastPID,
			LastExitCode: p.LastExitCode,
			Faults:       p.Faults,
		}
		if p.Status != supervisor.StatusRunning || p.LastPID == 0 {
			continue
		}
		infos[i].UptimeMS = time.Since(p.StartTime).Milliseconds()
		g.Go(func() error {
			sample := sysinfo.SampleProcess(p.LastPID)
			if sample.Err == nil {
				infos[i].CPUPercent = sample.CPUPercent
				infos[i].MemMB = sample.MemMB
			}
			return nil
		})
	}
	g.Wait()
	return stats, infos
}
