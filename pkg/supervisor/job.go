package supervisor

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/events"
	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/types"
)

// CancelGracePeriod is the gap between SIGTERM and SIGKILL.
const CancelGracePeriod = 5 * time.Second

// HeartbeatIdleWindow is the interval at which a running job publishes a
// job.heartbeat event, on a fixed ticker: it is emitted whether or not other
// events were produced in the window and whether or not a subscriber is
// attached. Shells publish no heartbeat.
const HeartbeatIdleWindow = 10 * time.Second

// job is the supervisor's internal runtime state for one Job.
type job struct {
	mu   sync.Mutex
	meta types.Job

	log *LogBuffer
	bus *events.Bus

	cancelRequested  atomic.Bool
	cancelCh         chan struct{}
	cancelOnce       sync.Once
	proc             *exec.Cmd
	done             chan struct{}
	lastOverflowWarn time.Time

	logger zerolog.Logger
}

func newJob(projectID, runner string, command []string, workingDir string, env map[string]string) *job {
	id := uuid.NewString()
	return &job{
		meta: types.Job{
			ID:         id,
			ProjectID:  projectID,
			Runner:     runner,
			Command:    command,
			WorkingDir: workingDir,
			Env:        env,
			Status:     types.JobQueued,
			CreatedAt:  time.Now(),
		},
		log:      NewLogBuffer(DefaultLogBufferBytes),
		bus:      events.NewBus(),
		done:     make(chan struct{}),
		cancelCh: make(chan struct{}),
		logger:   log.WithJobID(id),
	}
}

func (j *job) snapshot() types.Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	meta := j.meta
	meta.LogsOffset = j.log.Len()
	meta.EventsSeq = j.bus.NextSeq()
	return meta
}

func (j *job) setStatus(status types.JobStatus) {
	j.mu.Lock()
	j.meta.Status = status
	j.mu.Unlock()
}

// run executes the job's command to completion, streaming stdout/stderr into
// the log buffer and publishing sequenced events, honoring cancellation with
// a SIGTERM-then-SIGKILL sequence.
func (j *job) run() {
	defer close(j.done)

	j.publish(events.JobCreated, nil)

	cmd := exec.Command(j.meta.Command[0], j.meta.Command[1:]...)
	cmd.Dir = j.meta.WorkingDir
	cmd.Env = buildEnv(j.meta.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		j.fail(err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		j.fail(err)
		return
	}

	if err := cmd.Start(); err != nil {
		j.fail(err)
		return
	}

	j.mu.Lock()
	j.meta.Status = types.JobRunning
	j.meta.StartedAt = time.Now()
	j.proc = cmd
	j.mu.Unlock()
	j.publish(events.JobStarted, nil)

	var pumpWG sync.WaitGroup
	pumpWG.Add(2)
	go j.pump(&pumpWG, stdout, events.JobStdout)
	go j.pump(&pumpWG, stderr, events.JobStderr)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	heartbeat := time.NewTicker(HeartbeatIdleWindow)
	defer heartbeat.Stop()

	var waitErr error
	var canceled bool

loop:
	for {
		select {
		case waitErr = <-waitCh:
			break loop
		case <-heartbeat.C:
			j.publish(events.JobHeartbeat, map[string]any{
				"logsOffset": j.log.Len(),
				"eventsSeq":  j.bus.NextSeq(),
			})
		case <-j.cancelCh:
			canceled = true
			waitErr = j.terminate(cmd, waitCh)
			break loop
		}
	}

	pumpWG.Wait()

	j.finish(waitErr, canceled)
}

// terminate sends SIGTERM, then SIGKILL after CancelGracePeriod if the
// process has not yet exited, and returns the process's wait result.
func (j *job) terminate(cmd *exec.Cmd, waitCh <-chan error) error {
	if cmd.Process == nil {
		return <-waitCh
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(CancelGracePeriod)
	defer timer.Stop()
	select {
	case err := <-waitCh:
		return err
	case <-timer.C:
		_ = cmd.Process.Kill()
		return <-waitCh
	}
}

func (j *job) pump(wg *sync.WaitGroup, r io.Reader, kind events.Kind) {
	defer wg.Done()
	buf := bufio.NewReaderSize(r, 32*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, err := buf.Read(chunk)
		if n > 0 {
			start, end, evicted := j.log.Append(chunk[:n])
			if evicted {
				j.warnOnce("log ring overflowed, oldest bytes evicted")
			}
			j.publish(kind, map[string]any{
				"data":        string(chunk[:n]),
				"startOffset": start,
				"endOffset":   end,
			})
		}
		if err != nil {
			return
		}
	}
}

func (j *job) warnOnce(msg string) {
	j.mu.Lock()
	now := time.Now()
	if now.Sub(j.lastOverflowWarn) < time.Minute {
		j.mu.Unlock()
		return
	}
	j.lastOverflowWarn = now
	j.mu.Unlock()
	j.logger.Warn().Msg(msg)
}

func (j *job) fail(err error) {
	j.mu.Lock()
	j.meta.Status = types.JobFailed
	j.meta.EndedAt = time.Now()
	code := -1
	j.meta.ExitCode = &code
	j.mu.Unlock()
	j.publish(events.JobFailed, map[string]any{"error": err.Error()})
}

func (j *job) finish(waitErr error, canceled bool) {
	j.mu.Lock()
	j.meta.EndedAt = time.Now()
	exitCode := 0
	status := types.JobCompleted

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
		status = types.JobFailed
	}
	if canceled {
		status = types.JobCanceled
	}
	j.meta.Status = status
	j.meta.ExitCode = &exitCode
	j.mu.Unlock()

	switch status {
	case types.JobCompleted:
		j.publish(events.JobCompleted, map[string]any{"exitCode": exitCode})
	case types.JobFailed:
		j.publish(events.JobFailed, map[string]any{"exitCode": exitCode})
	case types.JobCanceled:
		j.publish(events.JobCanceled, nil)
	}
}

// requestCancel signals cancellation exactly once; subsequent calls are
// no-ops. It returns whether this call was the one that triggered it.
func (j *job) requestCancel() bool {
	first := j.cancelRequested.CompareAndSwap(false, true)
	if first {
		j.cancelOnce.Do(func() { close(j.cancelCh) })
	}
	return first
}

func (j *job) publish(kind events.Kind, data map[string]any) events.Event {
	ev, dropped := j.bus.Publish(kind, data)
	for range dropped {
		j.logger.Warn().Msg("dropped slow job stream subscriber")
	}
	return ev
}

func buildEnv(overlay map[string]string) []string {
	base := os.Environ()
	for k, v := range overlay {
		base = append(base, k+"="+v)
	}
	return base
}
