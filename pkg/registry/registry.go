// Package registry implements the durable, conflict-safe list of projects
// known to this workstation: one JSON document guarded by a cooperative
// file lock, rewritten atomically on every mutation.
package registry

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/types"
)

const documentVersion = 1

type document struct {
	Version  int             `json:"version"`
	Projects []types.Project `json:"projects"`
}

// Registry owns reads and writes of the project registry file.
type Registry struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	log         zerolog.Logger
}

// New returns a Registry backed by path. The lock file lives alongside it.
func New(path string) *Registry {
	return &Registry{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: 5 * time.Second,
		log:         log.WithComponent("registry"),
	}
}

// List returns every registered project, sorted by name.
func (r *Registry) List() ([]types.Project, error) {
	doc, err := r.readUnlocked()
	if err != nil {
		return nil, err
	}
	sort.Slice(doc.Projects, func(i, j int) bool { return doc.Projects[i].Name < doc.Projects[j].Name })
	return doc.Projects, nil
}

// Get returns the project with the given id.
func (r *Registry) Get(id string) (types.Project, bool, error) {
	doc, err := r.readUnlocked()
	if err != nil {
		return types.Project{}, false, err
	}
	for _, p := range doc.Projects {
		if p.ID == id {
			return p, true, nil
		}
	}
	return types.Project{}, false, nil
}

// FindByName returns the project with the given name, if any.
func (r *Registry) FindByName(name string) (types.Project, bool, error) {
	doc, err := r.readUnlocked()
	if err != nil {
		return types.Project{}, false, err
	}
	for _, p := range doc.Projects {
		if p.Name == name {
			return p, true, nil
		}
	}
	return types.Project{}, false, nil
}

// Register appends a new project with a freshly minted id. If a project with
// the same name already exists, it returns a Conflict error.
func (r *Registry) Register(name, devHost, repoRoot, configDir string) (types.Project, error) {
	var result types.Project
	err := r.withLock(func(doc *document) (bool, error) {
		for _, p := range doc.Projects {
			if p.Name == name {
				return false, apperr.Conflictf("project_name_exists", "project %q already registered", name)
			}
		}
		now := time.Now()
		result = types.Project{
			ID:         uuid.NewString(),
			Name:       name,
			DevHost:    devHost,
			RepoRoot:   repoRoot,
			ConfigDir:  configDir,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		doc.Projects = append(doc.Projects, result)
		return true, nil
	})
	return result, err
}

// Touch updates lastSeenAt for an existing project.
func (r *Registry) Touch(id string) error {
	return r.withLock(func(doc *document) (bool, error) {
		for i := range doc.Projects {
			if doc.Projects[i].ID == id {
				doc.Projects[i].LastSeenAt = time.Now()
				return true, nil
			}
		}
		return false, apperr.NotFoundf("project_not_found", "project %q not found", id)
	})
}

// Unregister removes a project by id.
func (r *Registry) Unregister(id string) error {
	return r.withLock(func(doc *document) (bool, error) {
		for i, p := range doc.Projects {
			if p.ID == id {
				doc.Projects = append(doc.Projects[:i], doc.Projects[i+1:]...)
				return true, nil
			}
		}
		return false, apperr.NotFoundf("project_not_found", "project %q not found", id)
	})
}

// AutoRegister appends a new entry discovered via runtime polling, unless a
// project with the same name is already registered. Per spec, a previously
// pruned project always gets a freshly minted id rather than reusing its
// former one.
func (r *Registry) AutoRegister(name, devHost, repoRoot, configDir string) (types.Project, bool, error) {
	var result types.Project
	var created bool
	err := r.withLock(func(doc *document) (bool, error) {
		for _, p := range doc.Projects {
			if p.Name == name {
				result = p
				return false, nil
			}
		}
		now := time.Now()
		result = types.Project{
			ID:         uuid.NewString(),
			Name:       name,
			DevHost:    devHost,
			RepoRoot:   repoRoot,
			ConfigDir:  configDir,
			CreatedAt:  now,
			LastSeenAt: now,
		}
		doc.Projects = append(doc.Projects, result)
		created = true
		return true, nil
	})
	return result, created, err
}

// LiveChecker reports whether a compose project currently has live
// containers, used by Prune to decide whether a missing-on-disk project is
// still safe to remove.
type LiveChecker func(composeProjectName string) bool

// Prune removes entries whose repo root or config directory no longer exists
// on disk and whose compose-project name has no live containers. It returns
// the ids removed.
func (r *Registry) Prune(isLive LiveChecker) ([]string, error) {
	var removed []string
	err := r.withLock(func(doc *document) (bool, error) {
		kept := doc.Projects[:0]
		for _, p := range doc.Projects {
			gone := !pathExists(p.RepoRoot) || !pathExists(p.ConfigDir)
			if gone && !isLive(p.Name) {
				removed = append(removed, p.ID)
				continue
			}
			kept = append(kept, p)
		}
		doc.Projects = kept
		return len(removed) > 0, nil
	})
	return removed, err
}

func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// readUnlocked reads the document without taking the write lock; used for
// read-only operations, which per spec may proceed concurrently.
func (r *Registry) readUnlocked() (*document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Version: documentVersion}, nil
		}
		return nil, apperr.Wrap(apperr.Fatal, "registry_read_failed", "read project registry", err)
	}
	if len(data) == 0 {
		return &document{Version: documentVersion}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "registry_parse_failed", "parse project registry", err)
	}
	return &doc, nil
}

// withLock acquires the cooperative file lock with bounded retry, re-reads
// the document so concurrent writers from other processes are never lost,
// runs mutate, and — if mutate reports a change — rewrites the file
// atomically before releasing the lock.
func (r *Registry) withLock(mutate func(doc *document) (changed bool, err error)) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return apperr.Wrap(apperr.Fatal, "registry_mkdir_failed", "create registry directory", err)
	}

	fl := flock.New(r.lockPath)
	locked, err := tryLockWithBackoff(fl, r.lockTimeout)
	if err != nil {
		return err
	}
	if !locked {
		r.log.Warn().Str("path", r.lockPath).Msg("registry lock acquisition timed out")
		return apperr.New(apperr.Conflict, "registry_lock_timeout", "timed out acquiring registry lock").WithRetryable(true)
	}
	defer fl.Unlock()

	doc, err := r.readUnlocked()
	if err != nil {
		return err
	}

	changed, err := mutate(doc)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	return r.writeDocument(doc)
}

func (r *Registry) writeDocument(doc *document) error {
	doc.Version = documentVersion
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "registry_marshal_failed", "marshal project registry", err)
	}
	data = append(data, '\n')

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.Fatal, "registry_write_failed", "write temp registry file", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return apperr.Wrap(apperr.Fatal, "registry_rename_failed", "replace registry file", err)
	}
	return nil
}

// tryLockWithBackoff attempts to acquire fl within timeout, using
// exponential backoff with jitter between attempts.
func tryLockWithBackoff(fl *flock.Flock, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	delay := 10 * time.Millisecond
	for {
		ok, err := fl.TryLock()
		if err != nil {
			return false, apperr.Wrap(apperr.Transient, "registry_lock_failed", "acquire registry lock", err)
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		jitter := time.Duration(rand.Int63n(int64(delay) / 2+1))
		sleep := delay + jitter
		time.Sleep(sleep)
		delay *= 2
		if delay > 500*time.Millisecond {
			delay = 500 * time.Millisecond
		}
	}
}

