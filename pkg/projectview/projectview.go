// Package projectview computes the cross-join of the registry, the runtime
// cache, and each project's on-disk compose file into the ProjectView list
// served by GET /v1/projects.
package projectview

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/pathutil"
	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimecache"
	"github.com/hack-dev/hack/pkg/types"
)

// Options filters the project view list per the GET /v1/projects query params.
type Options struct {
	Filter             string // exact name match, empty means no filter
	IncludeGlobal      bool
	IncludeUnregistered bool
}

type composeFile struct {
	Services map[string]any `yaml:"services"`
}

// Build computes the ProjectView list.
func Build(ctx context.Context, reg *registry.Registry, cache *runtimecache.Cache, opts Options) ([]types.ProjectView, error) {
	projects, err := reg.List()
	if err != nil {
		return nil, err
	}

	snapshot, health := cache.Snapshot(ctx)

	byName := map[string]*types.ProjectView{}
	var order []string

	for _, p := range projects {
		if opts.Filter != "" && p.Name != opts.Filter {
			continue
		}
		view := buildRegisteredView(p, snapshot)
		byName[p.Name] = &view
		order = append(order, p.Name)
	}

	if opts.IncludeUnregistered {
		for name, rp := range snapshot {
			base, _, isBranch := pathutil.SplitBranchComposeProjectName(name)
			if isBranch {
				if _, known := byName[base]; known {
					continue
				}
			}
			if _, known := byName[name]; known {
				continue
			}
			view := unregisteredView(name, rp)
			byName[name] = &view
			order = append(order, name)
		}
	}

	for name, rp := range snapshot {
		base, branch, isBranch := pathutil.SplitBranchComposeProjectName(name)
		if !isBranch {
			continue
		}
		if view, ok := byName[base]; ok {
			captured := rp
			view.BranchRuntime = append(view.BranchRuntime, types.BranchRuntime{Branch: branch, Runtime: &captured})
		}
	}

	if !health.OK {
		for _, view := range byName {
			if view.RuntimeStatus == types.RuntimeStatusRunning || view.RuntimeStatus == types.RuntimeStatusStopped {
				view.RuntimeStatus = types.RuntimeStatusUnknown
			}
		}
	}

	sort.Strings(order)
	result := make([]types.ProjectView, 0, len(order))
	seen := map[string]bool{}
	for _, name := range order {
		if seen[name] {
			continue
		}
		seen[name] = true
		result = append(result, *byName[name])
	}
	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	return result, nil
}

func buildRegisteredView(p types.Project, snapshot map[string]types.RuntimeProject) types.ProjectView {
	view := types.ProjectView{
		Project:    p,
		Registered: true,
	}

	composeFilePath := findComposeFile(p.RepoRoot)
	view.RuntimeConfigured = composeFilePath != ""

	if composeFilePath != "" {
		services, err := parseComposeServices(composeFilePath)
		if err != nil {
			log.WithComponent("projectview").Warn().Err(err).Str("project", p.Name).Msg("failed to parse compose file")
			view.DefinedServices = nil
		} else {
			view.DefinedServices = services
		}
	}

	rp, ok := snapshot[p.Name]
	switch {
	case !view.RuntimeConfigured:
		view.RuntimeStatus = types.RuntimeStatusNotConfigured
	case !ok:
		view.RuntimeStatus = types.RuntimeStatusMissing
	case anyRunning(rp):
		view.RuntimeStatus = types.RuntimeStatusRunning
	default:
		view.RuntimeStatus = types.RuntimeStatusStopped
	}

	if _, err := os.Stat(p.RepoRoot); err != nil {
		view.RuntimeStatus = types.RuntimeStatusMissing
	}

	return view
}

func unregisteredView(composeProject string, rp types.RuntimeProject) types.ProjectView {
	status := types.RuntimeStatusStopped
	if anyRunning(rp) {
		status = types.RuntimeStatusRunning
	}
	return types.ProjectView{
		Project:           types.Project{Name: composeProject},
		Registered:        false,
		RuntimeConfigured: true,
		RuntimeStatus:     status,
	}
}

func anyRunning(rp types.RuntimeProject) bool {
	for _, containers := range rp.Services {
		for _, c := range containers {
			if strings.EqualFold(c.Status, "running") {
				return true
			}
		}
	}
	return false
}

func findComposeFile(repoRoot string) string {
	candidates := []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"}
	for _, name := range candidates {
		path := filepath.Join(repoRoot, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func parseComposeServices(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf composeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cf.Services))
	for name := range cf.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
