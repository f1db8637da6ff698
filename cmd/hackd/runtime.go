package main

import (
	"os"

	"github.com/hack-dev/hack/pkg/daemon"
	"github.com/hack-dev/hack/pkg/gateway"
	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/metrics"
	"github.com/hack-dev/hack/pkg/pathutil"
	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimebackend"
	"github.com/hack-dev/hack/pkg/runtimecache"
	"github.com/hack-dev/hack/pkg/sessions"
	"github.com/hack-dev/hack/pkg/supervisor"
)

// daemonFlags are the flags shared by start/foreground, since foreground is
// what start ends up re-executing in the background.
type daemonFlags struct {
	gatewayAddr string
	allowWrites bool
	workers     int
	dockerPath  string
}

// buildServer wires every component named in the MODULE MAP into a
// daemon.Server, the same way cmd/warren's workerStartCmd assembles a
// worker from its constituent pieces before calling Start.
func buildServer(flags daemonFlags) (*daemon.Server, error) {
	home := pathutil.LoadEnv().Home

	daemonDir := pathutil.DaemonDir(home)
	if err := os.MkdirAll(daemonDir, 0o700); err != nil {
		return nil, err
	}

	reg := registry.New(pathutil.ProjectsFile(home))
	backend := runtimebackend.NewExecBackend(flags.dockerPath, "")
	cache := runtimecache.New(backend, reg)
	sup := supervisor.New(flags.workers)
	sessionMgr := sessions.NewManager()

	var gw *gateway.Gateway
	if flags.gatewayAddr != "" {
		tokens := gateway.NewTokenStore(pathutil.TokensFile(home))
		audit, err := gateway.NewAuditLog(pathutil.AuditFile(home))
		if err != nil {
			return nil, err
		}
		gw = gateway.NewGateway(tokens, audit, flags.allowWrites)
	}

	collector := metrics.NewCollector(reg, cache, sup)
	metrics.SetVersion(daemon.Version)
	metrics.RegisterComponent("registry", true, "")
	metrics.RegisterComponent("runtime_cache", true, "")
	metrics.RegisterComponent("gateway", true, "")

	cfg := daemon.Config{
		SocketPath: pathutil.SocketPath(home),
		TCPAddr:    flags.gatewayAddr,
		Registry:   reg,
		Cache:      cache,
		Supervisor: sup,
		Gateway:    gw,
		Collector:  collector,
		Sessions:   sessionMgr,
		PidPath:    pathutil.PidPath(home),
	}
	return daemon.NewServer(cfg), nil
}

// initLogging switches pkg/log between the daemon's JSON log file
// daemon/hackd.log (used when stdout is not a terminal, as for the process a
// detached `start` launches) and a console-pretty sink to stdout (used when
// `hackd foreground` runs on a terminal).
func initLogging(foreground bool, level string) {
	home := pathutil.LoadEnv().Home

	cfg := log.Config{Level: log.Level(level)}
	if foreground {
		cfg.JSONOutput = false
		cfg.Output = os.Stdout
	} else {
		cfg.JSONOutput = true
		if err := os.MkdirAll(pathutil.DaemonDir(home), 0o700); err == nil {
			if f, err := os.OpenFile(pathutil.DaemonLogPath(home), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				cfg.Output = f
			}
		}
	}
	log.Init(cfg)
}
