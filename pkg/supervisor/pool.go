package supervisor

import (
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/events"
	"github.com/hack-dev/hack/pkg/log"
	"github.com/hack-dev/hack/pkg/types"
)

// DefaultWorkers is the default size of the job worker pool.
const DefaultWorkers = 4

// Supervisor owns every live job and shell: a bounded worker pool consuming
// queued jobs in FIFO order, plus a map of PTY-backed shells.
type Supervisor struct {
	mu     sync.RWMutex
	jobs   map[string]*job
	shells map[string]*shell

	queue   chan *job
	workers int
	wg      sync.WaitGroup

	logger zerolog.Logger
}

// New returns a Supervisor with workers worker goroutines already running.
// A workers value <= 0 uses DefaultWorkers.
func New(workers int) *Supervisor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	s := &Supervisor{
		jobs:    make(map[string]*job),
		shells:  make(map[string]*shell),
		queue:   make(chan *job, 256),
		workers: workers,
		logger:  log.WithComponent("supervisor"),
	}
	s.startWorkers()
	return s
}

func (s *Supervisor) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for j := range s.queue {
				j.run()
			}
		}()
	}
}

// CreateJob enqueues a new job and returns its initial metadata.
func (s *Supervisor) CreateJob(projectID, runner string, command []string, workingDir string, env map[string]string) (types.Job, error) {
	if len(command) == 0 {
		return types.Job{}, apperr.Validationf("job_empty_command", "job command must not be empty")
	}
	j := newJob(projectID, runner, command, workingDir, env)

	s.mu.Lock()
	s.jobs[j.meta.ID] = j
	s.mu.Unlock()

	select {
	case s.queue <- j:
	default:
		s.logger.Warn().Str("job_id", j.meta.ID).Msg("job queue full, enqueuing will block a worker slot")
		s.queue <- j
	}
	return j.snapshot(), nil
}

// GetJob returns the current metadata for jobID.
func (s *Supervisor) GetJob(jobID string) (types.Job, error) {
	j, err := s.lookupJob(jobID)
	if err != nil {
		return types.Job{}, err
	}
	return j.snapshot(), nil
}

// ListJobs returns metadata for every job owned by projectID.
func (s *Supervisor) ListJobs(projectID string) []types.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Job
	for _, j := range s.jobs {
		if j.meta.ProjectID == projectID {
			out = append(out, j.snapshot())
		}
	}
	return out
}

// AllJobs returns metadata for every job the supervisor has ever created,
// regardless of project. Intended for metrics collection.
func (s *Supervisor) AllJobs() []types.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// ShellCount returns the number of shells currently tracked by the
// supervisor (open or closed but not yet reaped).
func (s *Supervisor) ShellCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shells)
}

// CancelJob requests cancellation of jobID. Per spec, the worker sends
// SIGTERM and, after 5s, SIGKILL; the resulting status is "canceled" unless
// the child had already completed before SIGTERM was delivered.
func (s *Supervisor) CancelJob(jobID string) error {
	j, err := s.lookupJob(jobID)
	if err != nil {
		return err
	}
	j.requestCancel()
	return nil
}

// SubscribeJob attaches a subscriber to jobID's event bus, replaying any
// retained events from eventsFrom. It also returns the job's log buffer so
// the caller can read retained log bytes from logsFrom.
func (s *Supervisor) SubscribeJob(jobID string, eventsFrom int64, bufferSize int) (*LogBuffer, events.Subscriber, bool, error) {
	j, err := s.lookupJob(jobID)
	if err != nil {
		return nil, nil, false, err
	}
	sub, evicted := j.bus.Subscribe(eventsFrom, bufferSize)
	return j.log, sub, evicted, nil
}

// UnsubscribeJob detaches sub from jobID's event bus.
func (s *Supervisor) UnsubscribeJob(jobID string, sub events.Subscriber) {
	s.mu.RLock()
	j, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if ok {
		j.bus.Unsubscribe(sub)
	}
}

func (s *Supervisor) lookupJob(jobID string) (*job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, apperr.NotFoundf("job_not_found", "job %q not found", jobID)
	}
	return j, nil
}

// CreateShell allocates a PTY and spawns program, returning its metadata.
func (s *Supervisor) CreateShell(projectID string, cols, rows int, workingDir, program string) (types.Shell, error) {
	if program == "" {
		program = "/bin/sh"
	}
	sh := newShell(projectID, cols, rows, workingDir, program)
	if err := sh.start(); err != nil {
		return types.Shell{}, err
	}

	s.mu.Lock()
	s.shells[sh.meta.ID] = sh
	s.mu.Unlock()

	return sh.snapshot(), nil
}

// GetShell returns the current metadata for shellID.
func (s *Supervisor) GetShell(shellID string) (types.Shell, error) {
	sh, err := s.lookupShell(shellID)
	if err != nil {
		return types.Shell{}, err
	}
	return sh.snapshot(), nil
}

// WriteShell sends input bytes to shellID's PTY.
func (s *Supervisor) WriteShell(shellID string, data []byte) error {
	sh, err := s.lookupShell(shellID)
	if err != nil {
		return err
	}
	return sh.Write(data)
}

// ResizeShell forwards a window-size change to shellID's PTY.
func (s *Supervisor) ResizeShell(shellID string, cols, rows int) error {
	sh, err := s.lookupShell(shellID)
	if err != nil {
		return err
	}
	return sh.Resize(cols, rows)
}

// SignalShell delivers sig to shellID's process.
func (s *Supervisor) SignalShell(shellID string, sig syscall.Signal) error {
	sh, err := s.lookupShell(shellID)
	if err != nil {
		return err
	}
	return sh.Signal(sig)
}

// CloseShell ends shellID's process and its output bus.
func (s *Supervisor) CloseShell(shellID, reason string) error {
	sh, err := s.lookupShell(shellID)
	if err != nil {
		return err
	}
	sh.Close(reason)
	return nil
}

// SubscribeShell attaches a subscriber to shellID's output bus. Shells have
// no replay history (unlike jobs); the subscriber only receives live output.
func (s *Supervisor) SubscribeShell(shellID string, bufferSize int) (events.Subscriber, error) {
	sh, err := s.lookupShell(shellID)
	if err != nil {
		return nil, err
	}
	sub, _ := sh.bus.Subscribe(sh.bus.NextSeq(), bufferSize)
	return sub, nil
}

// UnsubscribeShell detaches sub from shellID's output bus.
func (s *Supervisor) UnsubscribeShell(shellID string, sub events.Subscriber) {
	s.mu.RLock()
	sh, ok := s.shells[shellID]
	s.mu.RUnlock()
	if ok {
		sh.bus.Unsubscribe(sub)
	}
}

func (s *Supervisor) lookupShell(shellID string) (*shell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shells[shellID]
	if !ok {
		return nil, apperr.NotFoundf("shell_not_found", "shell %q not found", shellID)
	}
	return sh, nil
}

// Shutdown cancels every live job and shell, waits for worker goroutines to
// drain, and stops accepting new work.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	shells := make([]*shell, 0, len(s.shells))
	for _, sh := range s.shells {
		shells = append(shells, sh)
	}
	s.mu.RUnlock()

	for _, j := range jobs {
		j.requestCancel()
	}
	for _, sh := range shells {
		sh.Close("daemon_shutdown")
	}
	close(s.queue)
	s.wg.Wait()
}
