// Package runtimebackend models the container runtime as an opaque
// capability, so the rest of the daemon never parses CLI stdout directly.
package runtimebackend

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/log"
)

// DefaultCallTimeout is the deadline applied to every runtime-CLI call
// unless the caller's context already carries a deadline of its own.
const DefaultCallTimeout = 30 * time.Second

// Backend is the capability the rest of the daemon depends on. The core
// never shells out to the runtime CLI directly outside an implementation of
// this interface.
type Backend interface {
	// ListProjects returns the raw stdout of a runtime inventory listing,
	// left to runtimecache to parse into types.RuntimeProject values.
	ListProjects(ctx context.Context) ([]byte, error)

	// PS returns the raw stdout of a per-compose-project status listing.
	PS(ctx context.Context, composeProject string) ([]byte, error)

	// Compose runs an arbitrary docker-compose subcommand with args and
	// returns its stdout.
	Compose(ctx context.Context, workingDir string, args ...string) ([]byte, error)

	// Identity returns the tuple that forms the runtime fingerprint.
	Identity(ctx context.Context) (host, socketPath, socketInode, engineID string, err error)
}

// ExecBackend shells out to the docker CLI, treating it as an opaque child
// process whose structured (JSON) output is parsed by the caller.
type ExecBackend struct {
	DockerPath string
	SocketPath string
}

// NewExecBackend returns a production Backend. dockerPath defaults to
// "docker" on the PATH if empty.
func NewExecBackend(dockerPath, socketPath string) *ExecBackend {
	if dockerPath == "" {
		dockerPath = "docker"
	}
	return &ExecBackend{DockerPath: dockerPath, SocketPath: socketPath}
}

func (b *ExecBackend) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.DockerPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, apperr.New(apperr.Transient, "runtime_cli_timeout", "runtime CLI call timed out").WithRetryable(true)
	}
	if err != nil {
		log.WithComponent("runtimebackend").Warn().
			Strs("args", args).
			Str("stderr", stderr.String()).
			Err(err).
			Msg("runtime CLI call failed")
		return nil, apperr.Wrap(apperr.Transient, "runtime_cli_failed", "runtime CLI call failed", err).WithRetryable(true)
	}
	return stdout.Bytes(), nil
}

func ensureDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultCallTimeout)
}

// ListProjects lists all compose projects known to the runtime as JSON lines.
func (b *ExecBackend) ListProjects(ctx context.Context) ([]byte, error) {
	return b.run(ctx, "compose", "ls", "--all", "--format", "json")
}

// PS lists the containers of one compose project as JSON lines.
func (b *ExecBackend) PS(ctx context.Context, composeProject string) ([]byte, error) {
	return b.run(ctx, "compose", "-p", composeProject, "ps", "--all", "--format", "json")
}

// Compose runs an arbitrary docker-compose subcommand rooted at workingDir.
func (b *ExecBackend) Compose(ctx context.Context, workingDir string, args ...string) ([]byte, error) {
	ctx, cancel := ensureDeadline(ctx)
	defer cancel()

	full := append([]string{"compose"}, args...)
	cmd := exec.CommandContext(ctx, b.DockerPath, full...)
	cmd.Dir = workingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, apperr.Wrap(apperr.Transient, "runtime_compose_failed", "docker compose call failed", err).WithRetryable(true)
	}
	return stdout.Bytes(), nil
}

// Identity reports the runtime's identity tuple by querying `docker info`.
// socketInode is resolved separately from the configured SocketPath since
// `docker info` does not expose it directly.
func (b *ExecBackend) Identity(ctx context.Context) (host, socketPath, socketInode, engineID string, err error) {
	out, err := b.run(ctx, "info", "--format", "{{.Name}}|{{.ServerVersion}}|{{.ID}}")
	if err != nil {
		return "", "", "", "", err
	}
	fields := bytes.SplitN(bytes.TrimSpace(out), []byte("|"), 3)
	if len(fields) < 3 {
		return "", b.SocketPath, "", "unknown", nil
	}
	host = string(fields[0])
	engineID = string(fields[2])

	inode, ierr := statInode(b.SocketPath)
	if ierr != nil {
		inode = ""
	}
	return host, b.SocketPath, inode, engineID, nil
}
