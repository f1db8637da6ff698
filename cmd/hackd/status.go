package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hack-dev/hack/pkg/daemon"
	"github.com/hack-dev/hack/pkg/pathutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the daemon's lifecycle state",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		home := pathutil.LoadEnv().Home

		lifecycle := daemon.NewLifecycle(pathutil.PidPath(home), pathutil.SocketPath(home))
		info := lifecycle.Inspect()

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		fmt.Printf("state: %s\n", info.State)
		if info.StaleReason != "" {
			fmt.Printf("stale reason: %s\n", info.StaleReason)
		}
		if info.PID != 0 {
			fmt.Printf("pid: %d\n", info.PID)
		}
		if !info.StartedAt.IsZero() {
			fmt.Printf("started at: %s\n", info.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		fmt.Printf("socket: %s\n", info.SocketPath)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
