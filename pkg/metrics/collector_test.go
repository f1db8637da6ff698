package metrics

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimebackend"
	"github.com/hack-dev/hack/pkg/runtimecache"
	"github.com/hack-dev/hack/pkg/supervisor"
)

func TestCollectorSamplesRegistryAndSupervisor(t *testing.T) {
	reg := registry.New(filepath.Join(t.TempDir(), "projects.json"))
	_, err := reg.Register("demo", "host-1", t.TempDir(), ".hack")
	require.NoError(t, err)

	backend := runtimebackend.NewFakeBackend()
	cache := runtimecache.New(backend, reg)
	sup := supervisor.New(1)
	defer sup.Shutdown()

	_, err = sup.CreateJob("proj-1", "shell", []string{"true"}, "", nil)
	require.NoError(t, err)

	c := NewCollector(reg, cache, sup)
	c.collect()

	assert.Equal(t, float64(1), testutil.ToFloat64(RegisteredProjectsTotal))
}

func TestCollectorToleratesNilComponents(t *testing.T) {
	c := NewCollector(nil, nil, nil)
	assert.NotPanics(t, func() { c.collect() })
}

func TestNormalizeContainerStatus(t *testing.T) {
	cases := map[string]string{
		"Up 3 minutes":            "running",
		"Exited (0) 2 hours ago":  "exited",
		"Restarting (1) 5s ago":   "restarting",
		"Paused":                  "paused",
		"something unrecognized":  "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeContainerStatus(in), in)
	}
}
