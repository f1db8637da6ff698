// Package daemon implements the local control-plane server: a Unix-domain
// socket listener (trusted, unauthenticated, same-user only) and a TCP
// listener (authenticated via pkg/gateway) sharing one gorilla/mux router,
// plus the process lifecycle around them — pidfile management, stale-state
// detection, and graceful shutdown.
//
// Server wires together the registry, runtime cache, supervisor, gateway,
// and metrics collector into one HTTP route set, shared by both listeners.
// Lifecycle (pidfile/socket bookkeeping, the stopped/starting/running/
// stale status machine) lives in lifecycle.go and is also used directly by
// cmd/hackd's start/foreground/stop/clear/status subcommands to decide
// whether a daemon is already running before attempting to start one.
package daemon
