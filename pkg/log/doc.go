/*
Package log provides structured logging for hackd using zerolog.

It wraps zerolog with a single global Logger, a Config for switching
between JSON and console output, and a set of WithXxxID helpers that
attach the daemon's own context fields — project, job, shell, and token
IDs — to a child logger.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("hackd starting")

	jobLog := log.WithJobID(job.ID)
	jobLog.Info().Str("runner", job.Runner).Msg("job started")

	shellLog := log.WithProjectID(project.ID).With().Str("shell_id", shell.ID).Logger()
	shellLog.Error().Err(err).Msg("pty read failed")

cmd/hackd selects JSONOutput based on where "hackd foreground" sends
stdout: JSON lines to daemon/hackd.log when stdout is not a terminal (as
when "hackd start" launches it detached), console output to stdout when
it is a terminal.

# Context fields

  - WithComponent: names the subsystem (e.g. "gateway", "runtimecache")
  - WithProjectID: a registry project, for project-scoped operations
  - WithJobID / WithShellID: a supervised job or PTY shell, for log lines
    that need to be correlated back to a specific run
  - WithTokenID: a gateway token's opaque public ID — never the secret

# Security

WithTokenID takes the token's ID, not its plaintext secret; nothing in
this package or its callers should ever pass a bearer secret to a log
field.
*/
package log
