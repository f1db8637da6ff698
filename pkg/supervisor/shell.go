package supervisor

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/events"
	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/types"
)

// shell is the supervisor's internal runtime state for one Shell.
type shell struct {
	mu   sync.Mutex
	meta types.Shell

	ptmx *os.File
	cmd  *exec.Cmd

	bus    *events.Bus
	closed bool

	logger zerolog.Logger
}

func newShell(projectID string, cols, rows int, workingDir, program string) *shell {
	id := uuid.NewString()
	return &shell{
		meta: types.Shell{
			ID:         id,
			ProjectID:  projectID,
			Cols:       cols,
			Rows:       rows,
			WorkingDir: workingDir,
			Program:    program,
			Status:     types.ShellRunning,
			CreatedAt:  time.Now(),
		},
		bus:    events.NewBusWithRingSize(256),
		logger: log.WithShellID(id),
	}
}

// start allocates a PTY pair and spawns the shell program, sized to the
// shell's initial cols/rows.
func (s *shell) start() error {
	s.mu.Lock()
	cmd := exec.Command(s.meta.Program)
	cmd.Dir = s.meta.WorkingDir
	s.mu.Unlock()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(s.meta.Rows),
		Cols: uint16(s.meta.Cols),
	})
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "shell_spawn_failed", "spawn shell PTY", err)
	}

	s.mu.Lock()
	s.ptmx = ptmx
	s.cmd = cmd
	s.mu.Unlock()

	go s.pumpOutput()
	go s.awaitExit()
	return nil
}

func (s *shell) pumpOutput() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.bus.Publish(events.ShellOutput, map[string]any{"data": string(data)})
		}
		if err != nil {
			return
		}
	}
}

func (s *shell) awaitExit() {
	err := s.cmd.Wait()
	exitCode := 0
	signal := ""
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				signal = status.Signal().String()
				exitCode = -1
			}
		} else {
			exitCode = -1
		}
	}

	s.mu.Lock()
	s.meta.Status = types.ShellClosed
	s.mu.Unlock()

	s.bus.Publish(events.ShellExit, map[string]any{"exitCode": exitCode, "signal": signal})
	s.bus.Close()
}

// Write sends input bytes to the PTY master.
func (s *shell) Write(data []byte) error {
	s.mu.Lock()
	ptmx := s.ptmx
	s.mu.Unlock()
	if ptmx == nil {
		return apperr.NotFoundf("shell_not_started", "shell has no active PTY")
	}
	_, err := ptmx.Write(data)
	return err
}

// Resize forwards a window-size change to the PTY.
func (s *shell) Resize(cols, rows int) error {
	s.mu.Lock()
	ptmx := s.ptmx
	s.meta.Cols = cols
	s.meta.Rows = rows
	s.mu.Unlock()
	if ptmx == nil {
		return nil
	}
	return pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

// Signal delivers an OS signal to the shell's child process.
func (s *shell) Signal(sig syscall.Signal) error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return apperr.NotFoundf("shell_not_started", "shell has no active process")
	}
	return cmd.Process.Signal(sig)
}

// Close ends the shell's process, if any, and closes its bus. reason is
// informational (e.g. "client_close", "daemon_shutdown").
func (s *shell) Close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cmd := s.cmd
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
	s.logger.Info().Str("reason", reason).Msg("shell closed")
}

func (s *shell) snapshot() types.Shell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}
