// Package tickets implements the tickets event channel: an append-only,
// content-addressed event log persisted on a dedicated version-control ref,
// isolated from a project's main history. Storage is a bare repository plus
// a detached working tree under the project's state directory; all version
// control operations shell out to the git binary rather than a Go git
// library (see DESIGN.md).
//
// Events are append-only and deduplicated by eventId. A ticket is the
// left-fold of its events, ordered by (timestamp, eventId); the fold result
// is cached in a small bbolt-backed projection so repeated listing doesn't
// re-read and re-parse the whole log, but the git history remains the only
// durable source of truth.
package tickets
