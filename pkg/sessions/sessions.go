// Package sessions wraps a terminal-multiplexer (tmux) as the backend for
// the daemon's /v1/sessions surface: named, detached, long-lived terminal
// sessions that outlive any single client connection.
package sessions

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/pathutil"
)

// Session describes one tmux session tracked by the manager.
type Session struct {
	Name      string    `json:"name"`
	ProjectID string    `json:"projectId,omitempty"`
	Command   []string  `json:"command,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Attached  bool      `json:"attached"`
}

// Manager creates and drives tmux sessions. All mutating operations shell
// out to the tmux binary with an argv slice — arguments are never
// interpolated into a shell string.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]Session
	runTmux  func(args ...string) ([]byte, error)
}

// NewManager returns a Manager that drives the real tmux binary.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		runTmux:  runTmux,
	}
}

// NewManagerWithRunner returns a Manager driven by runner instead of the
// real tmux binary, for tests that exercise Manager without requiring tmux
// to be installed.
func NewManagerWithRunner(runner func(args ...string) ([]byte, error)) *Manager {
	return &Manager{
		sessions: make(map[string]Session),
		runTmux:  runner,
	}
}

func runTmux(args ...string) ([]byte, error) {
	for _, a := range args {
		if strings.ContainsRune(a, 0) {
			return nil, fmt.Errorf("invalid tmux argument: contains NUL byte")
		}
	}
	// #nosec G204 -- fixed binary, argv built from validated, non-shell-interpolated arguments.
	cmd := exec.Command("tmux", args...)
	out, err := cmd.CombinedOutput()
	return out, err
}

// List returns all sessions this manager has created, in creation order.
func (m *Manager) List() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Create starts a new detached tmux session named name running command
// (argv form; command[0] is the program). name is checked against
// pathutil.ValidateSessionName before any tmux call.
func (m *Manager) Create(name, projectID string, command []string) (Session, error) {
	if !pathutil.ValidateSessionName(name) {
		return Session{}, apperr.Validationf("invalid_session_name", "session name %q must match ^[A-Za-z0-9._-]+$ and be 1-64 chars", name)
	}

	m.mu.Lock()
	if _, exists := m.sessions[name]; exists {
		m.mu.Unlock()
		return Session{}, apperr.Conflictf("session_exists", "session %q already exists", name)
	}
	m.mu.Unlock()

	args := []string{"new-session", "-d", "-s", name}
	if len(command) > 0 {
		args = append(args, command...)
	}
	if out, err := m.runTmux(args...); err != nil {
		return Session{}, apperr.Wrap(apperr.Fatal, "tmux_new_session_failed", strings.TrimSpace(string(out)), err)
	}

	sess := Session{Name: name, ProjectID: projectID, Command: command, CreatedAt: time.Now(), Attached: false}
	m.mu.Lock()
	m.sessions[name] = sess
	m.mu.Unlock()
	return sess, nil
}

// Stop kills the named tmux session.
func (m *Manager) Stop(name string) error {
	if !pathutil.ValidateSessionName(name) {
		return apperr.Validationf("invalid_session_name", "session name %q must match ^[A-Za-z0-9._-]+$ and be 1-64 chars", name)
	}
	if _, ok := m.get(name); !ok {
		return apperr.NotFoundf("session_not_found", "no session named %q", name)
	}
	if out, err := m.runTmux("kill-session", "-t", name); err != nil {
		return apperr.Wrap(apperr.Fatal, "tmux_kill_session_failed", strings.TrimSpace(string(out)), err)
	}
	m.mu.Lock()
	delete(m.sessions, name)
	m.mu.Unlock()
	return nil
}

// Exec types command into the named session's first pane via send-keys as
// one shell line, each argument single-quoted on its own (see
// shellQuoteJoin), followed by Enter. The pane's shell, not tmux, splits
// that line back into arguments.
func (m *Manager) Exec(name string, command []string) error {
	if !pathutil.ValidateSessionName(name) {
		return apperr.Validationf("invalid_session_name", "session name %q must match ^[A-Za-z0-9._-]+$ and be 1-64 chars", name)
	}
	if _, ok := m.get(name); !ok {
		return apperr.NotFoundf("session_not_found", "no session named %q", name)
	}
	if len(command) == 0 {
		return apperr.Validationf("empty_command", "exec requires a non-empty command")
	}
	line := shellQuoteJoin(command)
	if out, err := m.runTmux("send-keys", "-t", name, line, "Enter"); err != nil {
		return apperr.Wrap(apperr.Fatal, "tmux_send_keys_failed", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Input sends raw keystrokes to the named session without an appended
// Enter, for interactive forwarding (e.g. Ctrl-C as "C-c").
func (m *Manager) Input(name, data string) error {
	if !pathutil.ValidateSessionName(name) {
		return apperr.Validationf("invalid_session_name", "session name %q must match ^[A-Za-z0-9._-]+$ and be 1-64 chars", name)
	}
	if _, ok := m.get(name); !ok {
		return apperr.NotFoundf("session_not_found", "no session named %q", name)
	}
	if out, err := m.runTmux("send-keys", "-t", name, "-l", data); err != nil {
		return apperr.Wrap(apperr.Fatal, "tmux_send_keys_failed", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (m *Manager) get(name string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}

// shellQuoteJoin renders command as a single-quoted, space-joined line safe
// to pass through tmux send-keys; each argument is quoted independently so
// no argument can inject a second command.
func shellQuoteJoin(command []string) string {
	parts := make([]string, len(command))
	for i, c := range command {
		parts[i] = "'" + strings.ReplaceAll(c, "'", `'\''`) + "'"
	}
	return strings.Join(parts, " ")
}
