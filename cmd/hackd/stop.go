package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hack-dev/hack/pkg/daemon"
	"github.com/hack-dev/hack/pkg/pathutil"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long:  `Send SIGTERM to the running daemon and wait for it to shut down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")

		home := pathutil.LoadEnv().Home

		lifecycle := daemon.NewLifecycle(pathutil.PidPath(home), pathutil.SocketPath(home))
		if err := lifecycle.Stop(); err != nil {
			return err
		}

		fmt.Println("sent SIGTERM, waiting for shutdown...")
		deadline := time.Now().Add(wait)
		for time.Now().Before(deadline) {
			if lifecycle.Inspect().State != daemon.StateRunning {
				fmt.Println("hackd stopped")
				return nil
			}
			time.Sleep(200 * time.Millisecond)
		}
		return fmt.Errorf("daemon did not stop within %s; it may still be shutting down", wait)
	},
}

func init() {
	stopCmd.Flags().Duration("wait", 10*time.Second, "How long to wait for graceful shutdown before giving up")
}
