// Package config implements the dotted-path JSON configuration documents
// used for both the global (~/.hack/hack.config.json) and per-project
// (<repo>/.hack/hack.config.json) configuration files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hack-dev/hack/pkg/apperr"
)

// Document is a dotted-path JSON config document backed by a file on disk.
type Document struct {
	mu   sync.RWMutex
	path string
	tree map[string]any
}

// Load reads path into a Document, creating an empty document in memory
// (not on disk) if the file does not yet exist.
func Load(path string) (*Document, error) {
	d := &Document{path: path, tree: map[string]any{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, apperr.Wrap(apperr.Fatal, "config_read_failed", "read config file", err)
	}
	if len(data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(data, &d.tree); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "config_parse_failed", "parse config file", err)
	}
	return d, nil
}

// Path returns the backing file path.
func (d *Document) Path() string { return d.path }

// Get resolves a dotted path (e.g. "gateway.port") against the document.
// The second return value is false if any segment of the path is absent.
func (d *Document) Get(path string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return getPath(d.tree, splitPath(path))
}

// Set assigns value at the dotted path, creating intermediate maps as
// needed, and persists the document atomically. changed reports whether
// the value actually differed from what was already stored; a false
// result performs no write, satisfying the idempotence law.
func (d *Document) Set(path string, value any) (changed bool, err error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return false, apperr.Validationf("config_bad_path", "empty config path")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := getPath(d.tree, segs)
	if ok && jsonEqual(existing, value) {
		return false, nil
	}

	setPath(d.tree, segs, value)
	if err := d.writeLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Unset removes the value at path, reporting whether anything was removed.
func (d *Document) Unset(path string) (changed bool, err error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return false, apperr.Validationf("config_bad_path", "empty config path")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := getPath(d.tree, segs); !ok {
		return false, nil
	}
	unsetPath(d.tree, segs)
	if err := d.writeLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// All returns a deep-enough copy of the full document tree for serialization.
func (d *Document) All() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.tree))
	for k, v := range d.tree {
		out[k] = v
	}
	return out
}

func (d *Document) writeLocked() error {
	data, err := json.MarshalIndent(d.tree, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "config_marshal_failed", "marshal config", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return apperr.Wrap(apperr.Fatal, "config_mkdir_failed", "create config directory", err)
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.Fatal, "config_write_failed", "write temp config file", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return apperr.Wrap(apperr.Fatal, "config_rename_failed", "replace config file", err)
	}
	return nil
}

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func getPath(tree map[string]any, segs []string) (any, bool) {
	var cur any = tree
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(tree map[string]any, segs []string, value any) {
	cur := tree
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = value
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
}

func unsetPath(tree map[string]any, segs []string) {
	cur := tree
	for i, seg := range segs {
		if i == len(segs)-1 {
			delete(cur, seg)
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

// jsonEqual compares two values the way JSON would: by round-tripping both
// through the encoder so numeric types (int vs float64) and key order don't
// produce spurious "changed" results.
func jsonEqual(a, b any) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(normalizeJSON(ab)) == string(normalizeJSON(bb))
}

func normalizeJSON(raw []byte) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

// FormatValue renders a Get result for CLI display purposes.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
