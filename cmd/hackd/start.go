package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hack-dev/hack/pkg/daemon"
	"github.com/hack-dev/hack/pkg/pathutil"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Long: `Re-exec hackd as a detached background process ("hackd foreground"),
which claims the pidfile and logs to daemon/hackd.log. Refuses to start a
second instance while one
is already running; use "hackd clear" to remove a stale pidfile/socket left
behind by a crash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags, logLevel, err := daemonFlagsFromCmd(cmd)
		if err != nil {
			return err
		}

		home := pathutil.LoadEnv().Home

		lifecycle := daemon.NewLifecycle(pathutil.PidPath(home), pathutil.SocketPath(home))
		info := lifecycle.Inspect()
		if info.State == daemon.StateRunning {
			return fmt.Errorf("daemon already running (pid %d)", info.PID)
		}

		if err := os.MkdirAll(pathutil.DaemonDir(home), 0o700); err != nil {
			return fmt.Errorf("failed to create daemon directory: %w", err)
		}

		stdout, err := os.OpenFile(pathutil.StdoutLogPath(home), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open stdout log: %w", err)
		}
		defer stdout.Close()
		stderr, err := os.OpenFile(pathutil.StderrLogPath(home), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open stderr log: %w", err)
		}
		defer stderr.Close()

		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("could not resolve hackd's own executable path: %w", err)
		}

		childArgs := []string{"foreground"}
		childArgs = append(childArgs, reconstructDaemonFlags(flags, logLevel)...)

		child := exec.Command(self, childArgs...)
		child.Stdout = stdout
		child.Stderr = stderr
		child.Stdin = nil
		child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

		if err := child.Start(); err != nil {
			return fmt.Errorf("failed to start daemon process: %w", err)
		}

		fmt.Printf("hackd starting (pid %d)\n", child.Process.Pid)
		if !waitForSocket(pathutil.SocketPath(home), 5*time.Second) {
			fmt.Println("warning: socket did not appear within 5s; check daemon/hackd.stderr.log")
		}
		// Detach: the child is now its own session leader, outliving this process.
		return nil
	},
}

func init() {
	registerDaemonFlags(startCmd)
}

func reconstructDaemonFlags(flags daemonFlags, logLevel string) []string {
	args := []string{
		"--workers", fmt.Sprintf("%d", flags.workers),
		"--log-level", logLevel,
	}
	if flags.gatewayAddr != "" {
		args = append(args, "--gateway-addr", flags.gatewayAddr)
	}
	if flags.allowWrites {
		args = append(args, "--allow-writes")
	}
	if flags.dockerPath != "" {
		args = append(args, "--docker-path", flags.dockerPath)
	}
	return args
}

func waitForSocket(path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
