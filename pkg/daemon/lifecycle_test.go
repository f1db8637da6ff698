package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectStoppedWhenNoPidfile(t *testing.T) {
	dir := t.TempDir()
	l := NewLifecycle(filepath.Join(dir, "hackd.pid"), filepath.Join(dir, "hackd.sock"))
	info := l.Inspect()
	assert.Equal(t, StateStopped, info.State)
}

func TestClaimAndRelease(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "hackd.pid")
	sockPath := filepath.Join(dir, "hackd.sock")
	l := NewLifecycle(pidPath, sockPath)

	require.NoError(t, l.Claim())
	info := l.Inspect()
	assert.Equal(t, StateRunning, info.State)
	assert.Equal(t, os.Getpid(), info.PID)

	l.Release()
	assert.False(t, pathExists(pidPath))
}

func TestInspectStaleWhenPidNotRunning(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "hackd.pid")
	sockPath := filepath.Join(dir, "hackd.sock")

	// A pid that is vanishingly unlikely to be alive.
	require.NoError(t, writePidFile(pidPath, 999999))
	l := NewLifecycle(pidPath, sockPath)

	info := l.Inspect()
	assert.Equal(t, StateStale, info.State)
	assert.Equal(t, StaleReasonPidNotRunning, info.StaleReason)
}

func TestInspectStaleWhenSocketOnly(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "hackd.pid")
	sockPath := filepath.Join(dir, "hackd.sock")

	require.NoError(t, os.WriteFile(sockPath, []byte{}, 0o600))
	l := NewLifecycle(pidPath, sockPath)

	info := l.Inspect()
	assert.Equal(t, StateStale, info.State)
	assert.Equal(t, StaleReasonSocketOnly, info.StaleReason)
}

func TestClaimRefusesWhileRunning(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "hackd.pid")
	sockPath := filepath.Join(dir, "hackd.sock")
	l := NewLifecycle(pidPath, sockPath)
	require.NoError(t, l.Claim())

	l2 := NewLifecycle(pidPath, sockPath)
	err := l2.Claim()
	assert.Error(t, err)
}

func TestClearRefusesWhileRunning(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "hackd.pid")
	sockPath := filepath.Join(dir, "hackd.sock")
	l := NewLifecycle(pidPath, sockPath)
	require.NoError(t, l.Claim())

	assert.Error(t, l.Clear())
	l.Release()
}

func TestClearRemovesStaleState(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "hackd.pid")
	sockPath := filepath.Join(dir, "hackd.sock")
	require.NoError(t, writePidFile(pidPath, 999999))
	l := NewLifecycle(pidPath, sockPath)

	require.NoError(t, l.Clear())
	assert.False(t, pathExists(pidPath))
}

func TestProcessAliveForCurrentProcess(t *testing.T) {
	assert.True(t, processAlive(os.Getpid()))
}

func TestProcessAliveFalseForExitedProcess(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, processAlive(cmd.Process.Pid))
}
