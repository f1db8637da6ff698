package tickets

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hack-dev/hack/pkg/apperr"
)

// RefMode selects where the tickets branch lives in the ref namespace.
type RefMode string

const (
	// RefModeHeads keeps the channel on an ordinary branch,
	// refs/heads/<branch> — visible to `git branch`, mergeable normally.
	RefModeHeads RefMode = "heads"
	// RefModeHidden keeps the channel on a ref outside refs/heads/ and
	// refs/tags/, so it does not show up in normal branch listings and
	// cannot be checked out by name with a plain `git checkout`.
	RefModeHidden RefMode = "hidden"
)

// refPath returns the full ref path for branch under mode.
func refPath(mode RefMode, branch string) string {
	if mode == RefModeHidden {
		return "refs/hack/" + branch
	}
	return "refs/heads/" + branch
}

// runGit invokes git against the channel's bare repo and detached work
// tree, returning combined stdout+stderr on failure for diagnostics. Every
// argument is passed as a distinct argv element; none are interpolated
// into a shell string.
func (c *Channel) runGit(args ...string) (string, error) {
	full := append([]string{"--git-dir=" + c.bareDir, "--work-tree=" + c.worktreeDir}, args...)
	// #nosec G204 -- fixed binary, argv built from a fixed git-dir/work-tree pair and caller-controlled but non-shell-interpolated arguments.
	cmd := exec.Command("git", full...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	err := cmd.Run()
	return out.String(), err
}

// runGitPlain invokes git with no --git-dir/--work-tree override, used
// only for `git init --bare` before the bare repository exists.
func runGitPlain(args ...string) (string, error) {
	// #nosec G204 -- fixed binary, fixed subcommand set, argv-only invocation.
	cmd := exec.Command("git", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// rejectionKind classifies git output from a failed push/fetch.
type rejectionKind string

const (
	rejectionNone      rejectionKind = ""
	rejectionTransient rejectionKind = "transient"
	rejectionHiddenRef rejectionKind = "hidden_ref"
)

// classifyRejection inspects git's combined output from a failed push and
// decides whether it looks like a transient race (non-fast-forward, the
// remote moved under us — worth a fetch+retry) or a rejection specific to
// pushing a ref outside the normal branch namespace.
func classifyRejection(mode RefMode, output string) rejectionKind {
	lower := strings.ToLower(output)
	if mode == RefModeHidden && (strings.Contains(lower, "deny updating") ||
		strings.Contains(lower, "refusing to update") ||
		strings.Contains(lower, "hidden ref") ||
		strings.Contains(lower, "funny refname")) {
		return rejectionHiddenRef
	}
	if strings.Contains(lower, "non-fast-forward") ||
		strings.Contains(lower, "fetch first") ||
		strings.Contains(lower, "stale info") ||
		strings.Contains(lower, "rejected") {
		return rejectionTransient
	}
	return rejectionNone
}

// hiddenRefError is returned when a push is rejected specifically because
// the channel is configured for RefModeHidden and the remote won't accept
// writes to a ref outside refs/heads//refs/tags.
func hiddenRefError(output string) error {
	return apperr.New(apperr.Fatal, "hidden_ref_rejected",
		fmt.Sprintf("remote rejected a push to a hidden ref; switch this project's tickets ref mode to \"heads\" and retry: %s", strings.TrimSpace(output)))
}
