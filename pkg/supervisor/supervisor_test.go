package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dev/hack/pkg/events"
	"github.com/hack-dev/hack/pkg/types"
)

func drainKinds(t *testing.T, sub events.Subscriber, n int, timeout time.Duration) []events.Kind {
	t.Helper()
	var got []events.Kind
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case ev, ok := <-sub:
			if !ok {
				t.Fatalf("subscriber closed after %d of %d events", len(got), n)
			}
			got = append(got, ev.Kind)
		case <-deadline:
			t.Fatalf("timed out waiting for event %d/%d, got %v", i+1, n, got)
		}
	}
	return got
}

// TestJobCompletionAndReplay covers the "echo hello" completion scenario:
// job.created, job.started, job.stdout("hello\n"), job.completed{exitCode:0},
// followed by a resubscribe from the end cursor that sees nothing further.
func TestJobCompletionAndReplay(t *testing.T) {
	sup := New(1)
	defer sup.Shutdown()

	j, err := sup.CreateJob("proj-1", "shell", []string{"echo", "hello"}, "", nil)
	require.NoError(t, err)

	log, sub, evicted, err := sup.SubscribeJob(j.ID, 0, 16)
	require.NoError(t, err)
	require.False(t, evicted)
	require.NotNil(t, log)

	kinds := drainKinds(t, sub, 4, 5*time.Second)
	assert.Equal(t, []events.Kind{
		events.JobCreated,
		events.JobStarted,
		events.JobStdout,
		events.JobCompleted,
	}, kinds)

	final, err := sup.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, final.Status)
	require.NotNil(t, final.ExitCode)
	assert.Equal(t, 0, *final.ExitCode)

	sup.UnsubscribeJob(j.ID, sub)

	// Resubscribing at the current end cursor should replay nothing, and no
	// further events should ever arrive since the job already finished.
	_, sub2, evicted2, err := sup.SubscribeJob(j.ID, final.EventsSeq, 16)
	require.NoError(t, err)
	assert.False(t, evicted2)
	select {
	case ev, ok := <-sub2:
		if ok {
			t.Fatalf("expected no replayed events past the end cursor, got %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// TestJobCancellation covers cancelling a long-running job shortly after
// start: job.canceled should arrive well within the SIGTERM+grace window.
func TestJobCancellation(t *testing.T) {
	sup := New(1)
	defer sup.Shutdown()

	j, err := sup.CreateJob("proj-1", "shell", []string{"sleep", "60"}, "", nil)
	require.NoError(t, err)

	_, sub, _, err := sup.SubscribeJob(j.ID, 0, 16)
	require.NoError(t, err)

	// Wait for the job to actually start before cancelling.
	kinds := drainKinds(t, sub, 2, 2*time.Second)
	assert.Equal(t, []events.Kind{events.JobCreated, events.JobStarted}, kinds)

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, sup.CancelJob(j.ID))

	deadline := time.After(6 * time.Second)
	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				t.Fatal("subscriber closed before job.canceled arrived")
			}
			if ev.Kind == events.JobCanceled {
				goto canceled
			}
		case <-deadline:
			t.Fatal("timed out waiting for job.canceled")
		}
	}
canceled:

	final, err := sup.GetJob(j.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCanceled, final.Status)
}

func TestCancelUnknownJobReturnsNotFound(t *testing.T) {
	sup := New(1)
	defer sup.Shutdown()
	err := sup.CancelJob("does-not-exist")
	require.Error(t, err)
}

func TestCreateJobRejectsEmptyCommand(t *testing.T) {
	sup := New(1)
	defer sup.Shutdown()
	_, err := sup.CreateJob("proj-1", "shell", nil, "", nil)
	require.Error(t, err)
}

func TestListJobsFiltersByProject(t *testing.T) {
	sup := New(2)
	defer sup.Shutdown()

	a, err := sup.CreateJob("proj-a", "shell", []string{"true"}, "", nil)
	require.NoError(t, err)
	_, err = sup.CreateJob("proj-b", "shell", []string{"true"}, "", nil)
	require.NoError(t, err)

	// Allow both jobs to be registered before listing.
	time.Sleep(50 * time.Millisecond)

	jobs := sup.ListJobs("proj-a")
	require.Len(t, jobs, 1)
	assert.Equal(t, a.ID, jobs[0].ID)
}
