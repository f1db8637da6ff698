package tickets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hack-dev/hack/pkg/apperr"
)

// permittedTopLevel lists the working-tree entries a tickets branch may
// contain besides the tickets path itself.
var permittedTopLevel = map[string]bool{
	"README":    true,
	"README.md": true,
	".git":      true, // never present in a detached work tree, kept defensively
}

// Repair rewrites the channel's branch to contain only .hack/tickets/**
// plus any permitted README/VCS metadata, as a single fresh commit with no
// parent. If the branch already only contains permitted paths the
// resulting tree is identical to HEAD's and Repair is a no-op: it reports
// didCommit=false and makes no ref update. Untracked files it removes from
// the working tree do not count, since they were never on the branch. If legacyRef is non-empty, it is
// deleted (best-effort) after a successful rewrite.
func (c *Channel) Repair(legacyRef string) (didCommit bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stripDisallowedPaths(); err != nil {
		return false, err
	}

	if out, err := c.runGit("add", "-A"); err != nil {
		return false, gitFatal("tickets_git_add_failed", "git add failed", out, err)
	}

	treeOut, err := c.runGit("write-tree")
	if err != nil {
		return false, gitFatal("tickets_write_tree_failed", "git write-tree failed", treeOut, err)
	}
	newTree := strings.TrimSpace(treeOut)

	oldTree := ""
	if out, err := c.runGit("rev-parse", "-q", "--verify", "HEAD^{tree}"); err == nil {
		oldTree = strings.TrimSpace(out)
	}

	if newTree == oldTree {
		return false, nil
	}

	commitOut, err := c.runGit(
		"-c", "user.name=hack-tickets",
		"-c", "user.email=tickets@hack.local",
		"commit-tree", newTree,
		"-m", "repair: restrict tickets branch to permitted paths",
	)
	if err != nil {
		return false, gitFatal("tickets_commit_tree_failed", "git commit-tree failed", commitOut, err)
	}
	newCommit := strings.TrimSpace(commitOut)

	if out, err := c.runGit("update-ref", c.ref(), newCommit); err != nil {
		return false, gitFatal("tickets_update_ref_failed", "git update-ref failed", out, err)
	}
	if out, err := c.runGit("reset", "--hard", c.ref()); err != nil {
		return false, gitFatal("tickets_reset_failed", "could not sync working tree after repair", out, err)
	}

	if legacyRef != "" {
		_, _ = c.runGit("update-ref", "-d", legacyRef)
	}

	return true, nil
}

// stripDisallowedPaths removes every working-tree entry that is neither
// the tickets path prefix nor a permitted README/VCS entry, and within
// .hack/ removes every sibling of "tickets".
func (c *Channel) stripDisallowedPaths() error {
	entries, err := os.ReadDir(c.worktreeDir)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_read_failed", "could not list working tree", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if name == ".hack" || permittedTopLevel[name] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.worktreeDir, name)); err != nil {
			return apperr.Wrap(apperr.Fatal, "tickets_repair_failed", "could not remove disallowed path "+name, err)
		}
	}

	hackDir := filepath.Join(c.worktreeDir, ".hack")
	hackEntries, err := os.ReadDir(hackDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_read_failed", "could not list .hack directory", err)
	}
	for _, entry := range hackEntries {
		if entry.Name() == "tickets" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(hackDir, entry.Name())); err != nil {
			return apperr.Wrap(apperr.Fatal, "tickets_repair_failed", "could not remove disallowed .hack path "+entry.Name(), err)
		}
	}
	return nil
}
