package projectview

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dev/hack/pkg/registry"
	"github.com/hack-dev/hack/pkg/runtimebackend"
	"github.com/hack-dev/hack/pkg/runtimecache"
)

func TestBuildJoinsRegistryAndRuntime(t *testing.T) {
	repoRoot := t.TempDir()
	composeYAML := "services:\n  web:\n    image: nginx\n  worker:\n    image: busybox\n"
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "docker-compose.yml"), []byte(composeYAML), 0o644))

	reg := registry.New(filepath.Join(t.TempDir(), "projects.json"))
	_, err := reg.Register("myapp", "myapp.local", repoRoot, filepath.Join(repoRoot, ".hack"))
	require.NoError(t, err)

	fb := runtimebackend.NewFakeBackend()
	fb.Upsert(runtimebackend.FakeProject{
		Name: "myapp",
		Containers: []runtimebackend.FakeContainer{
			{Name: "myapp-web-1", Service: "web", State: "running"},
		},
	})
	cache := runtimecache.New(fb, reg)

	views, err := Build(context.Background(), reg, cache, Options{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "myapp", views[0].Name)
	assert.ElementsMatch(t, []string{"web", "worker"}, views[0].DefinedServices)
	assert.Equal(t, "running", string(views[0].RuntimeStatus))
}

func TestBuildNotConfiguredWithoutComposeFile(t *testing.T) {
	repoRoot := t.TempDir()
	reg := registry.New(filepath.Join(t.TempDir(), "projects.json"))
	_, err := reg.Register("bare", "", repoRoot, filepath.Join(repoRoot, ".hack"))
	require.NoError(t, err)

	fb := runtimebackend.NewFakeBackend()
	cache := runtimecache.New(fb, reg)

	views, err := Build(context.Background(), reg, cache, Options{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "not_configured", string(views[0].RuntimeStatus))
	assert.Nil(t, views[0].DefinedServices)
}

func TestBuildIncludesBranchRuntime(t *testing.T) {
	repoRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "docker-compose.yml"), []byte("services:\n  web:\n    image: nginx\n"), 0o644))

	reg := registry.New(filepath.Join(t.TempDir(), "projects.json"))
	_, err := reg.Register("myapp", "", repoRoot, filepath.Join(repoRoot, ".hack"))
	require.NoError(t, err)

	fb := runtimebackend.NewFakeBackend()
	fb.Upsert(runtimebackend.FakeProject{Name: "myapp--feature-x", Containers: []runtimebackend.FakeContainer{
		{Name: "myapp--feature-x-web-1", Service: "web", State: "running"},
	}})
	cache := runtimecache.New(fb, reg)

	views, err := Build(context.Background(), reg, cache, Options{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Len(t, views[0].BranchRuntime, 1)
	assert.Equal(t, "feature-x", views[0].BranchRuntime[0].Branch)
}
