package runtimebackend

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeProject is the in-memory description of one compose project used by
// FakeBackend, keyed the same way the real runtime keys compose projects.
type FakeProject struct {
	Name       string
	WorkingDir string
	Containers []FakeContainer
}

// FakeContainer mirrors one line of `docker compose ps --format json`.
type FakeContainer struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Publishers []struct {
		PublishedPort int    `json:"PublishedPort"`
		TargetPort    int    `json:"TargetPort"`
		Protocol      string `json:"Protocol"`
	} `json:"Publishers"`
}

// FakeBackend is an in-memory Backend implementation used in tests so the
// core never needs a real container runtime installed to exercise
// runtimecache, projectview, and the daemon handlers.
type FakeBackend struct {
	mu         sync.Mutex
	projects   map[string]*FakeProject
	host       string
	socket     string
	inode      string
	engineID   string
	composeErr error

	// OnListProjects, if set, runs synchronously at the start of every
	// ListProjects call, outside the backend's own lock. Tests use it to
	// pause a refresh mid-flight and deterministically land other calls
	// inside that window.
	OnListProjects func()
}

// NewFakeBackend returns an empty FakeBackend with a stable identity tuple.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		projects: map[string]*FakeProject{},
		host:     "fake-host",
		socket:   "/fake/docker.sock",
		inode:    "1",
		engineID: "fake-engine-a",
	}
}

// SetIdentity overrides the fingerprint tuple the backend reports, used to
// simulate runtime resets in tests.
func (f *FakeBackend) SetIdentity(host, socket, inode, engineID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.host, f.socket, f.inode, f.engineID = host, socket, inode, engineID
}

// Upsert adds or replaces a compose project in the fake inventory.
func (f *FakeBackend) Upsert(p FakeProject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	f.projects[p.Name] = &cp
}

// Remove deletes a compose project from the fake inventory.
func (f *FakeBackend) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.projects, name)
}

type listLine struct {
	Name       string `json:"Name"`
	WorkingDir string `json:"WorkingDir"`
}

// ListProjects returns one JSON line per known compose project.
func (f *FakeBackend) ListProjects(ctx context.Context) ([]byte, error) {
	if hook := f.OnListProjects; hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var buf []byte
	for _, p := range f.projects {
		line, err := json.Marshal(listLine{Name: p.Name, WorkingDir: p.WorkingDir})
		if err != nil {
			return nil, err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

// PS returns one JSON line per container of the named compose project.
func (f *FakeBackend) PS(ctx context.Context, composeProject string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.projects[composeProject]
	if !ok {
		return nil, nil
	}
	var buf []byte
	for _, c := range p.Containers {
		line, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

// Compose records nothing and returns the configured composeErr, if any.
func (f *FakeBackend) Compose(ctx context.Context, workingDir string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.composeErr
}

// Identity returns the currently configured fingerprint tuple.
func (f *FakeBackend) Identity(ctx context.Context) (host, socketPath, socketInode, engineID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host, f.socket, f.inode, f.engineID, nil
}

var _ Backend = (*FakeBackend)(nil)
var _ Backend = (*ExecBackend)(nil)
