/*
Package types defines the core data structures shared across hackd.

This package contains the data model used by every other package: registry
entries, runtime projections, the computed project view, gateway tokens,
jobs, shells, and ticket events. Nothing in here talks to disk, Docker, or
the network directly — these are plain structs passed between pkg/registry,
pkg/runtimecache, pkg/gateway, pkg/supervisor, pkg/sessions, pkg/tickets,
and pkg/daemon's HTTP handlers.

# Core Types

Registry:
  - Project: a project this workstation knows about (registered once,
    looked up by ID on every request)

Runtime projection:
  - RuntimeContainer: one container belonging to a compose service
  - RuntimeProject: the runtime's current state for one compose project,
    rebuilt on every poll and never persisted
  - RuntimeStatus: coarse health of a project's runtime state (running,
    stopped, missing, unknown, not_configured)
  - BranchRuntime: a branch instance's runtime snapshot, joined by base name
  - Fingerprint: identifies the observed container engine, used to detect
    a Docker/Colima restart and trigger a cache reset
  - RuntimeHealth: the cache's current confidence in the snapshot it serves

Project view:
  - ProjectView: the computed join of Project, runtime state, and on-disk
    config — the payload served by GET /v1/projects

Gateway tokens:
  - Scope: read or write, the coarse authorization class on a token
  - Token: a bearer-token record; only HashedSecret and Salt are persisted,
    never the plaintext secret

Jobs:
  - JobStatus: a job's lifecycle state (queued, running, completed, failed,
    canceled)
  - Job: one supervised, non-interactive command execution

Shells:
  - ShellStatus: a shell's lifecycle state (running, closed)
  - Shell: one supervised, PTY-backed interactive session

Tickets:
  - TicketEventType: the ticket event kinds materialization folds over
  - TicketEvent: one append-only entry in the tickets event log
  - Ticket: the materialized left-fold of a ticket's events

Audit:
  - AuditRecord: one append-only gateway request log entry

# Enumeration pattern

Enums use typed string constants rather than int iota, so values round-trip
through JSON without a lookup table:

	type JobStatus string
	const (
		JobQueued  JobStatus = "queued"
		JobRunning JobStatus = "running"
	)

# Optional fields

Job tags the fields not set at creation time (StartedAt, EndedAt,
ExitCode) with omitempty. encoding/json does not omit a zero time.Time,
so an unset StartedAt or EndedAt still serializes as the zero time;
ExitCode is a pointer, so it is omitted until set and a zero exit code is
distinguishable from "not yet exited". Shell has no such fields.

# JSON field naming

All struct tags use lowerCamelCase to match the HTTP API's JSON responses
and the CLI's own JSON output, independent of Go's exported-field casing.
*/
package types
