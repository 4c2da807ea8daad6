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

// roverd is the on-vehicle pipeline-supervisor daemon: it owns the
// service catalog, the enabled-set configuration, process supervision
// and the HTTP façade described in the specification.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vu-ase/roverd/internal/build"
	"github.com/vu-ase/roverd/internal/catalog"
	"github.com/vu-ase/roverd/internal/config"
	"github.com/vu-ase/roverd/internal/controller"
	"github.com/vu-ase/roverd/internal/events"
	"github.com/vu-ase/roverd/internal/fq"
	"github.com/vu-ase/roverd/internal/health"
	"github.com/vu-ase/roverd/internal/httpapi"
	"github.com/vu-ase/roverd/internal/pipeline"
	"github.com/vu-ase/roverd/internal/sources"
	"github.com/vu-ase/roverd/internal/supervisor"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	servicesRoot  = flag.String("services-root", "/opt/rover/services", "root directory of installed user services")
	daemonRoot    = flag.String("daemon-root", "/opt/rover/daemons", "root directory of always-on daemon services")
	configPath    = flag.String("config-path", "/etc/rover/pipeline.yaml", "path to the enabled-set configuration document")
	logDir        = flag.String("log-dir", "/var/log/rover/services", "directory for per-service append logs")
	buildLogDir   = flag.String("build-log-dir", "/var/log/rover/builds", "directory for per-build append logs")
	roverInfoPath = flag.String("rover-info-path", "/etc/rover", "path to the rover identity file")
	listenAddr    = flag.String("listen-addr", ":80", "address the HTTP API listens on")
	dataHost      = flag.String("data-host", "127.0.0.1", "host address synthesized into BootSpec stream addresses")
	startPort     = flag.Int("start-port", 9000, "first port assigned during BootSpec address synthesis")

	credUsername = flag.String("auth-username", "rover", "HTTP Basic username required by authed endpoints")
)

func main() {
	flag.Parse()

	layout := fq.Layout{
		ServicesRoot: *servicesRoot,
		DaemonRoot:   *daemonRoot,
		LogDir:       *logDir,
		BuildLogDir:  *buildLogDir,
	}
	for _, dir := range []string{layout.ServicesRoot, layout.DaemonRoot, layout.LogDir, layout.BuildLogDir, filepath.Dir(*configPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create required directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	healthMonitor := health.NewMonitor(*roverInfoPath)
	if status, message, _ := healthMonitor.Status(); status == health.StatusUnrecoverable {
		// A daemon cannot validate its management credential without an
		// identity file, but it still serves /status so operators can see
		// why. Every authed endpoint refuses its requests while the
		// identity is missing.
		slog.Error("rover identity file unreadable, starting in Unrecoverable state", "error", message)
	}

	opts := pipeline.SynthesisOptions{DataHost: *dataHost, StartPort: *startPort}

	cfg := config.NewStore(*configPath)
	if _, err := cfg.Load(); err != nil {
		var cerr *config.CorruptError
		if errors.As(err, &cerr) {
			healthMonitor.MarkRecoverable(cerr.Error())
		}
	}
	cat := catalog.New(layout, fq.KindUser, cfg)
	sup := supervisor.New()
	buildRunner := build.New(cat, layout)
	ctrl := controller.New(cat, cfg, sup, buildRunner, layout, fq.KindUser, opts)

	daemonCfg := config.NewStore(filepath.Join(filepath.Dir(*configPath), "daemons.yaml"))
	daemonCat := catalog.New(layout, fq.KindDaemon, daemonCfg)
	daemonSup := supervisor.New()
	daemonBuildRunner := build.New(daemonCat, layout)
	daemonCtrl := controller.New(daemonCat, daemonCfg, daemonSup, daemonBuildRunner, layout, fq.KindDaemon, opts)

	identity, haveIdentity := healthMonitor.Identity()
	passwordHash := identity.PasswordHash
	username := *credUsername
	if !haveIdentity {
		// No identity, no valid credential: every authed request is
		// refused by an unmatchable hash rather than accepted. Health
		// stays Unrecoverable so operators see why.
		passwordHash = ""
	}

	server := httpapi.NewServer()
	server.Catalog = cat
	server.Config = cfg
	server.Controller = ctrl
	server.DaemonController = daemonCtrl
	server.Build = buildRunner
	server.Health = healthMonitor
	server.Sources = sources.New()
	server.Events = events.NewBus()
	server.Layout = layout
	server.Version = version
	server.Creds = httpapi.Credentials{Username: username, PasswordHash: passwordHash}

	httpServer := &http.Server{
		Addr:    *listenAddr,
		Handler: loggingMiddleware(server.Mux()),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdown := func() {
		slog.Info("shutdown requested")
		if ctrl.Stats().Status == controller.StateStarted {
			if err := ctrl.Stop(); err != nil {
				slog.Warn("failed to stop user pipeline during shutdown", "error", err)
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown did not complete cleanly", "error", err)
		}
	}
	server.Shutdown = shutdown

	// Always-on daemon services (display, battery) start at boot and are
	// never exposed on the user pipeline's Empty/Startable/Started
	// surface, per the Open Question decision recorded in DESIGN.md.
	if names, err := daemonCat.ListAuthors(); err == nil && len(names) > 0 {
		startDaemonServices(daemonCat, daemonCtrl, layout)
	}

	go func() {
		<-ctx.Done()
		shutdown()
	}()

	slog.Info("roverd starting", "addr", *listenAddr, "version", version)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("roverd exited cleanly")
}

// startDaemonServices enables and starts, as one pipeline, the last-listed
// version of every service found under the daemon root. A read,
// validation or start failure of any one daemon keeps all of them from
// starting; it is logged and is not fatal to roverd or the user pipeline.
func startDaemonServices(cat *catalog.Store, ctrl *controller.Controller, layout fq.Layout) {
	authors, err := cat.ListAuthors()
	if err != nil {
		slog.Warn("failed to enumerate daemon services", "error", err)
		return
	}
	var fqs []fq.Fq
	for _, author := range authors {
		names, err := cat.ListServices(author)
		if err != nil {
			continue
		}
		for _, name := range names {
			versions, err := cat.ListVersions(author, name)
			if err != nil || len(versions) == 0 {
				continue
			}
			fqs = append(fqs, fq.New(fq.KindDaemon, author, name, versions[len(versions)-1]))
		}
	}
	if len(fqs) == 0 {
		return
	}
	if errs, err := ctrl.SetEnabled(fqs); err != nil || errs != nil {
		slog.Warn("daemon services failed to validate", "error", err, "validation_errors", errs)
		return
	}
	if err := ctrl.Start(); err != nil {
		slog.Warn("daemon services failed to start", "error", err)
	}
}

// loggingMiddleware logs every request's method, path and status at
// Info, matching the teacher's operational-logging density for request
// handling.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
