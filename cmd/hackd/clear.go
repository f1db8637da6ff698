package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hack-dev/hack/pkg/daemon"
	"github.com/hack-dev/hack/pkg/pathutil"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a stale pidfile/socket left behind by a crash",
	Long: `Clear forcibly removes the daemon's pidfile and socket when they are
stale (the recorded pid is not running, or the socket is an orphan). It
refuses to act against a genuinely running daemon.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home := pathutil.LoadEnv().Home

		lifecycle := daemon.NewLifecycle(pathutil.PidPath(home), pathutil.SocketPath(home))
		if err := lifecycle.Clear(); err != nil {
			return err
		}
		fmt.Println("cleared stale daemon state")
		return nil
	},
}
