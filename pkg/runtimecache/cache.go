// Package runtimecache maintains a debounced, in-memory view of the
// container runtime: parsed runtime projects, the current fingerprint, and
// reset detection, refreshed from a runtimebackend.Backend.
package runtimecache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/pathutil"
	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimebackend"
	"github.com/hack-dev/hack/pkg/types"
)

// ProjectLabelKey is the compose label the runtime places on containers
// advertising the on-disk config directory for auto-registration.
const ProjectLabelKey = "dev.hack.config-dir"

// Cache is the daemon's single source of truth for runtime state. A single
// writer (the refresh goroutine) mutates the snapshot; readers take an
// immutable copy under RLock.
type Cache struct {
	backend  runtimebackend.Backend
	registry *registry.Registry

	group singleflight.Group

	mu          sync.RWMutex
	snapshot    map[string]types.RuntimeProject
	hasSnapshot bool
	health      types.RuntimeHealth
	fingerprint types.Fingerprint
	refreshing  bool
	pending     bool
}

// New returns a Cache with no snapshot yet; the first refresh populates it.
func New(backend runtimebackend.Backend, reg *registry.Registry) *Cache {
	return &Cache{
		backend:  backend,
		registry: reg,
		snapshot: map[string]types.RuntimeProject{},
	}
}

// Refresh polls the runtime at most once concurrently. singleflight alone
// would hand a caller who arrives mid-refresh that in-flight call's result,
// which was already stale by the time the caller asked. Instead, a caller
// that arrives while a refresh is running marks the refresh pending; the
// goroutine actually running it (the singleflight leader) checks pending
// after each round and runs one more refreshOnce before returning to
// anyone, so every coalesced caller's result reflects state no older than
// its own call.
func (c *Cache) Refresh(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.refreshing {
		c.pending = true
	}
	c.mu.Unlock()

	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.runRefresh(ctx, reason)
	})
	return err
}

// runRefresh is the singleflight leader's body: it refreshes, then keeps
// refreshing as long as Refresh marked the cache pending while it was
// running.
func (c *Cache) runRefresh(ctx context.Context, reason string) error {
	c.mu.Lock()
	c.refreshing = true
	c.mu.Unlock()

	var err error
	for {
		err = c.refreshOnce(ctx, reason)

		c.mu.Lock()
		if !c.pending {
			c.refreshing = false
			c.mu.Unlock()
			return err
		}
		c.pending = false
		c.mu.Unlock()
	}
}

func (c *Cache) refreshOnce(ctx context.Context, reason string) error {
	logger := log.WithComponent("runtimecache")

	host, socketPath, socketInode, engineID, idErr := c.backend.Identity(ctx)
	listOut, listErr := c.backend.ListProjects(ctx)

	if listErr != nil || idErr != nil {
		err := listErr
		if err == nil {
			err = idErr
		}
		logger.Warn().Err(err).Str("reason", reason).Msg("runtime refresh failed, retaining last snapshot")
		c.mu.Lock()
		c.health = types.RuntimeHealth{
			OK:          false,
			CheckedAt:   time.Now(),
			Error:       err.Error(),
			ResetCount:  c.health.ResetCount,
			LastResetAt: c.health.LastResetAt,
			Fingerprint: c.fingerprint.String(),
		}
		c.mu.Unlock()
		return err
	}

	projects, parseErr := parseListProjects(listOut)
	if parseErr != nil {
		logger.Warn().Err(parseErr).Msg("failed to parse runtime project listing")
	}

	byName := map[string]types.RuntimeProject{}
	for _, p := range projects {
		psOut, psErr := c.backend.PS(ctx, p.ComposeProject)
		if psErr != nil {
			continue
		}
		containers, cErr := parsePS(psOut)
		if cErr != nil {
			continue
		}
		rp := p
		rp.Services = groupByService(containers)
		byName[p.ComposeProject] = rp

		if labelDir, ok := containers.configDir(); ok {
			c.maybeAutoRegister(p.ComposeProject, labelDir)
		}
	}

	newFingerprint := types.Fingerprint{
		RuntimeHost: host,
		SocketPath:  socketPath,
		SocketInode: socketInode,
		EngineID:    engineID,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	resetCount := c.health.ResetCount
	lastReset := c.health.LastResetAt
	if c.hasSnapshot && c.fingerprint.Complete() && newFingerprint.Complete() &&
		c.fingerprint.String() != newFingerprint.String() {
		resetCount++
		lastReset = time.Now()
	}

	c.snapshot = byName
	c.hasSnapshot = true
	c.fingerprint = newFingerprint
	c.health = types.RuntimeHealth{
		OK:          true,
		CheckedAt:   time.Now(),
		ResetCount:  resetCount,
		LastResetAt: lastReset,
		Fingerprint: newFingerprint.String(),
	}
	return nil
}

// containerList is a small helper type over parsed containers carrying
// label metadata needed for auto-registration, without polluting
// types.RuntimeContainer (which is a wire/API type) with internal fields.
type containerList struct {
	items    []rawContainer
	labelDir string
	hasLabel bool
}

func (c containerList) configDir() (string, bool) { return c.labelDir, c.hasLabel }

type rawContainer struct {
	Name    string            `json:"Name"`
	Service string            `json:"Service"`
	State   string            `json:"State"`
	Labels  map[string]string `json:"Labels"`
	Publishers []struct {
		PublishedPort int    `json:"PublishedPort"`
		TargetPort    int    `json:"TargetPort"`
		Protocol      string `json:"Protocol"`
	} `json:"Publishers"`
}

func parsePS(out []byte) (containerList, error) {
	var result containerList
	for _, line := range splitLines(out) {
		var rc rawContainer
		if err := json.Unmarshal(line, &rc); err != nil {
			return result, err
		}
		result.items = append(result.items, rc)
		if dir, ok := rc.Labels[ProjectLabelKey]; ok && dir != "" && !result.hasLabel {
			result.labelDir = dir
			result.hasLabel = true
		}
	}
	return result, nil
}

func groupByService(list containerList) map[string][]types.RuntimeContainer {
	out := map[string][]types.RuntimeContainer{}
	for _, rc := range list.items {
		ports := make([]string, 0, len(rc.Publishers))
		for _, pub := range rc.Publishers {
			ports = append(ports, formatPort(pub.PublishedPort, pub.TargetPort, pub.Protocol))
		}
		out[rc.Service] = append(out[rc.Service], types.RuntimeContainer{
			Name:   rc.Name,
			Status: rc.State,
			Ports:  ports,
		})
	}
	return out
}

func formatPort(published, target int, proto string) string {
	if published == 0 {
		return ""
	}
	return fmt.Sprintf("%d->%d/%s", published, target, proto)
}

type rawListLine struct {
	Name       string `json:"Name"`
	WorkingDir string `json:"WorkingDir"`
}

func parseListProjects(out []byte) ([]types.RuntimeProject, error) {
	var result []types.RuntimeProject
	for _, line := range splitLines(out) {
		var l rawListLine
		if err := json.Unmarshal(line, &l); err != nil {
			return result, err
		}
		result = append(result, types.RuntimeProject{
			ComposeProject: l.Name,
			WorkingDir:     l.WorkingDir,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ComposeProject < result[j].ComposeProject })
	return result, nil
}

func splitLines(out []byte) [][]byte {
	var lines [][]byte
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, []byte(line))
	}
	return lines
}

func (c *Cache) maybeAutoRegister(composeProject, configDir string) {
	repoRoot := strings.TrimSuffix(configDir, "/"+".hack")
	if !pathutil.ConfigDirExists(repoRoot, configDir) {
		return
	}
	if _, _, err := c.registry.AutoRegister(composeProject, "", repoRoot, configDir); err != nil {
		log.WithComponent("runtimecache").Warn().Err(err).Str("project", composeProject).Msg("auto-register failed")
	}
}

// Snapshot returns an immutable copy of the current runtime projects,
// lazily refreshing first if no snapshot has ever been taken.
func (c *Cache) Snapshot(ctx context.Context) (map[string]types.RuntimeProject, types.RuntimeHealth) {
	c.mu.RLock()
	has := c.hasSnapshot
	c.mu.RUnlock()

	if !has {
		_ = c.Refresh(ctx, "lazy")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]types.RuntimeProject, len(c.snapshot))
	for k, v := range c.snapshot {
		out[k] = v
	}
	return out, c.health
}

// PSPayload returns a flat, sorted list of containers for a single compose
// project. Callers starting from a registered project name and branch derive
// composeProject with ResolveComposeProjectName first.
func (c *Cache) PSPayload(ctx context.Context, composeProject string) []PSItem {
	snap, _ := c.Snapshot(ctx)
	rp, ok := snap[composeProject]
	if !ok {
		return nil
	}
	var items []PSItem
	for service, containers := range rp.Services {
		for _, cont := range containers {
			items = append(items, PSItem{Service: service, Name: cont.Name, Status: cont.Status, Ports: cont.Ports})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Service != items[j].Service {
			return items[i].Service < items[j].Service
		}
		return items[i].Name < items[j].Name
	})
	return items
}

// PSItem is one row of the GET /v1/ps response.
type PSItem struct {
	Service string   `json:"service"`
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Ports   []string `json:"ports"`
}

// ResolveComposeProjectName derives a compose-project name from a registered
// project display name and an optional branch slug.
func ResolveComposeProjectName(projectName, branch string) string {
	if branch == "" {
		return projectName
	}
	return pathutil.BranchComposeProjectName(projectName, branch)
}
