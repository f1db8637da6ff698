package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var foregroundCmd = &cobra.Command{
	Use:   "foreground",
	Short: "Run the daemon in the foreground",
	Long: `Run hackd in the current process. When stdout is a terminal, logs go to
stdout as console output; otherwise they go to daemon/hackd.log as JSON lines.
This is what "hackd start" execs in the background; run it directly to watch
logs live or under a supervisor of your own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags, logLevel, err := daemonFlagsFromCmd(cmd)
		if err != nil {
			return err
		}
		// Console logging on a terminal; JSON to daemon/hackd.log when
		// detached (as when "hackd start" execs this command).
		fi, statErr := os.Stdout.Stat()
		initLogging(statErr == nil && fi.Mode()&os.ModeCharDevice != 0, logLevel)

		srv, err := buildServer(flags)
		if err != nil {
			return fmt.Errorf("failed to assemble daemon: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		fmt.Println("hackd running in foreground. Press Ctrl+C to stop.")
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("daemon exited with error: %w", err)
		}
		return nil
	},
}

func init() {
	registerDaemonFlags(foregroundCmd)
}

// registerDaemonFlags adds the flags shared by start and foreground.
func registerDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().String("gateway-addr", "", "Bind address for the authenticated TCP gateway (empty disables it)")
	cmd.Flags().Bool("allow-writes", false, "Enable the gateway's global writes-enabled guardrail on startup")
	cmd.Flags().Int("workers", 4, "Job worker pool size")
	cmd.Flags().String("docker-path", "", `Path to the docker binary (defaults to "docker" on PATH)`)
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
}

func daemonFlagsFromCmd(cmd *cobra.Command) (daemonFlags, string, error) {
	gatewayAddr, _ := cmd.Flags().GetString("gateway-addr")
	allowWrites, _ := cmd.Flags().GetBool("allow-writes")
	workers, _ := cmd.Flags().GetInt("workers")
	dockerPath, _ := cmd.Flags().GetString("docker-path")
	logLevel, _ := cmd.Flags().GetString("log-level")

	if workers <= 0 {
		return daemonFlags{}, "", fmt.Errorf("--workers must be positive")
	}

	return daemonFlags{
		gatewayAddr: gatewayAddr,
		allowWrites: allowWrites,
		workers:     workers,
		dockerPath:  dockerPath,
	}, logLevel, nil
}
