package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dev/hack/pkg/events"
	"github.com/hack-dev/hack/pkg/types"
)

func TestShellLifecycleWriteResizeExit(t *testing.T) {
	sup := New(1)
	defer sup.Shutdown()

	sh, err := sup.CreateShell("proj-1", 80, 24, "", "/bin/sh")
	require.NoError(t, err)
	assert.Equal(t, types.ShellRunning, sh.Status)

	sub, err := sup.SubscribeShell(sh.ID, 16)
	require.NoError(t, err)

	require.NoError(t, sup.WriteShell(sh.ID, []byte("echo hi\n")))

	var sawOutput bool
	deadline := time.After(3 * time.Second)
	for !sawOutput {
		select {
		case ev, ok := <-sub:
			if !ok {
				t.Fatal("shell bus closed before producing output")
			}
			if ev.Kind == events.ShellOutput {
				sawOutput = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for shell output")
		}
	}

	require.NoError(t, sup.ResizeShell(sh.ID, 100, 40))
	got, err := sup.GetShell(sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Cols)
	assert.Equal(t, 40, got.Rows)

	require.NoError(t, sup.WriteShell(sh.ID, []byte("exit\n")))

	var sawExit bool
	deadline = time.After(3 * time.Second)
	for !sawExit {
		select {
		case ev, ok := <-sub:
			if !ok {
				// bus closed is an acceptable terminal state too.
				sawExit = true
				break
			}
			if ev.Kind == events.ShellExit {
				sawExit = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for shell exit")
		}
	}

	final, err := sup.GetShell(sh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ShellClosed, final.Status)
}

func TestCloseShellIsIdempotent(t *testing.T) {
	sup := New(1)
	defer sup.Shutdown()

	sh, err := sup.CreateShell("proj-1", 80, 24, "", "/bin/sh")
	require.NoError(t, err)

	require.NoError(t, sup.CloseShell(sh.ID, "client_close"))
	require.NoError(t, sup.CloseShell(sh.ID, "client_close"))
}

func TestGetUnknownShellReturnsNotFound(t *testing.T) {
	sup := New(1)
	defer sup.Shutdown()
	_, err := sup.GetShell("does-not-exist")
	require.Error(t, err)
}
