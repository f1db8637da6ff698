// Package types holds the data model shared across the daemon: registry
// entries, runtime projections, the computed project view, gateway tokens,
// jobs, shells, and ticket events.
package types

import "time"

// Project is a registry entry: a project this workstation knows about.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DevHost    string    `json:"devHost"`
	RepoRoot   string    `json:"repoRoot"`
	ConfigDir  string    `json:"configDir"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// RuntimeContainer is one container belonging to a runtime project's service.
type RuntimeContainer struct {
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Ports  []string `json:"ports"`
}

// RuntimeProject is a transient projection of the runtime's current state
// for one compose project, rebuilt on every poll and never persisted.
type RuntimeProject struct {
	ComposeProject string                       `json:"composeProject"`
	WorkingDir     string                        `json:"workingDir,omitempty"`
	Services       map[string][]RuntimeContainer `json:"services"`
}

// RuntimeStatus is the coarse health of a project's runtime state.
type RuntimeStatus string

const (
	RuntimeStatusRunning       RuntimeStatus = "running"
	RuntimeStatusStopped       RuntimeStatus = "stopped"
	RuntimeStatusMissing       RuntimeStatus = "missing"
	RuntimeStatusUnknown       RuntimeStatus = "unknown"
	RuntimeStatusNotConfigured RuntimeStatus = "not_configured"
)

// BranchRuntime is a branch instance's runtime snapshot, joined by base name.
type BranchRuntime struct {
	Branch  string          `json:"branch"`
	Runtime *RuntimeProject `json:"runtime"`
}

// ProjectView is the computed join across registry, runtime, and on-disk
// config, the payload served by GET /v1/projects.
type ProjectView struct {
	Project
	DefinedServices   []string        `json:"definedServices"`
	ExtensionsEnabled bool            `json:"extensionsEnabled"`
	RuntimeConfigured bool            `json:"runtimeConfigured"`
	RuntimeStatus     RuntimeStatus   `json:"runtimeStatus"`
	BranchRuntime     []BranchRuntime `json:"branchRuntime"`
	Registered        bool            `json:"registered"`
}

// Fingerprint is the tuple that identifies the observed container runtime.
type Fingerprint struct {
	RuntimeHost string `json:"runtimeHost"`
	SocketPath  string `json:"socketPath"`
	SocketInode string `json:"socketInode"`
	EngineID    string `json:"engineId"`
}

// String concatenates the fingerprint components with a stable separator.
func (f Fingerprint) String() string {
	return f.RuntimeHost + "|" + f.SocketPath + "|" + f.SocketInode + "|" + f.EngineID
}

// Complete reports whether every fingerprint component was observed; an
// incomplete fingerprint never triggers a reset.
func (f Fingerprint) Complete() bool {
	return f.RuntimeHost != "" && f.SocketPath != "" && f.SocketInode != "" && f.EngineID != "" && f.EngineID != "unknown"
}

// RuntimeHealth describes the cache's current confidence in the runtime
// snapshot it is serving.
type RuntimeHealth struct {
	OK          bool      `json:"ok"`
	CheckedAt   time.Time `json:"checkedAt"`
	Error       string    `json:"error,omitempty"`
	ResetCount  int       `json:"resetCount"`
	LastResetAt time.Time `json:"lastResetAt,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// Scope is the coarse authorization class attached to a gateway token.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// Token is a gateway bearer-token record. The plaintext secret is never
// stored; only HashedSecret and Salt are persisted.
type Token struct {
	ID           string    `json:"id"`
	HashedSecret string    `json:"hashedSecret"`
	Salt         string    `json:"salt"`
	Scope        Scope     `json:"scope"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// JobStatus is a job's lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// Job is one supervised, non-interactive command execution.
type Job struct {
	ID         string            `json:"id"`
	ProjectID  string            `json:"projectId"`
	Runner     string            `json:"runner"`
	Command    []string          `json:"command"`
	WorkingDir string            `json:"workingDir"`
	Env        map[string]string `json:"env,omitempty"`
	Status     JobStatus         `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartedAt  time.Time         `json:"startedAt,omitempty"`
	EndedAt    time.Time         `json:"endedAt,omitempty"`
	ExitCode   *int              `json:"exitCode,omitempty"`
	LogsOffset int64             `json:"logsOffset"`
	EventsSeq  int64             `json:"eventsSeq"`
}

// ShellStatus is a shell's lifecycle state.
type ShellStatus string

const (
	ShellRunning ShellStatus = "running"
	ShellClosed  ShellStatus = "closed"
)

// Shell is one supervised, PTY-backed interactive session.
type Shell struct {
	ID         string      `json:"id"`
	ProjectID  string      `json:"projectId"`
	Cols       int         `json:"cols"`
	Rows       int         `json:"rows"`
	WorkingDir string      `json:"workingDir"`
	Program    string      `json:"shell"`
	Status     ShellStatus `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// TicketEventType enumerates the ticket event kinds that materialization
// folds over.
type TicketEventType string

const (
	TicketEventCreated       TicketEventType = "ticket.created"
	TicketEventStatusChanged TicketEventType = "ticket.status_changed"
	TicketEventUpdated       TicketEventType = "ticket.updated"
)

// TicketEvent is one append-only entry in the tickets event log.
type TicketEvent struct {
	EventID   string          `json:"eventId"`
	Timestamp int64           `json:"ts"`
	Actor     string          `json:"actor"`
	ProjectID string          `json:"projectId,omitempty"`
	TicketID  string          `json:"ticketId"`
	Type      TicketEventType `json:"type"`
	Payload   map[string]any  `json:"payload,omitempty"`
}

// Ticket is the materialized left-fold of a ticket's events.
type Ticket struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectId,omitempty"`
	Title     string         `json:"title,omitempty"`
	Status    string         `json:"status,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt int64          `json:"createdAt"`
	UpdatedAt int64          `json:"updatedAt"`
}

// AuditRecord is one append-only gateway request log entry.
type AuditRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	TokenID    string    `json:"tokenId"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"durationMs"`
}
