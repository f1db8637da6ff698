package tickets

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/pathutil"
)

// ticketsPathPrefix is the path, relative to the channel's working tree,
// that every permitted file must live under — per spec, the branch never
// contains files outside .hack/tickets/** except an optional README and
// VCS metadata.
const ticketsPathPrefix = ".hack/tickets"

const eventsSubdir = ticketsPathPrefix + "/events"

// Options configures a Channel beyond its defaults.
type Options struct {
	Branch  string  // defaults to "hack/tickets"
	RefMode RefMode // defaults to RefModeHeads
	Remote  string  // optional; empty disables push/fetch entirely
}

// Channel owns one project's tickets event log: a bare repository and a
// detached working tree rooted at <repoRoot>/.hack/tickets, checked out to
// a single branch holding only .hack/tickets/events/*.jsonl.
type Channel struct {
	mu sync.Mutex

	repoRoot    string
	bareDir     string
	worktreeDir string
	branch      string
	refMode     RefMode
	remote      string

	cachePath string
	cache     *bolt.DB
}

// Open returns a Channel for repoRoot, initializing the bare repository and
// working tree on first use.
func Open(repoRoot string, opts Options) (*Channel, error) {
	if opts.Branch == "" {
		opts.Branch = "hack/tickets"
	}
	if opts.RefMode == "" {
		opts.RefMode = RefModeHeads
	}

	root := pathutil.ProjectTicketsDir(repoRoot)
	c := &Channel{
		repoRoot:    repoRoot,
		bareDir:     filepath.Join(root, "repo.git"),
		worktreeDir: filepath.Join(root, "worktree"),
		branch:      opts.Branch,
		refMode:     opts.RefMode,
		remote:      opts.Remote,
		cachePath:   filepath.Join(root, "projection.db"),
	}

	if err := c.ensureInit(); err != nil {
		return nil, err
	}

	db, err := bolt.Open(c.cachePath, 0o600, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "tickets_cache_open_failed", "could not open ticket projection cache", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTickets)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.Fatal, "tickets_cache_init_failed", "could not initialize ticket projection cache", err)
	}
	c.cache = db

	return c, nil
}

// Close releases the projection cache handle.
func (c *Channel) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

// ref returns the full ref path this channel's branch lives at.
func (c *Channel) ref() string { return refPath(c.refMode, c.branch) }

// ensureInit creates the bare repo and working tree if absent, and makes
// sure HEAD is a symbolic ref to this channel's branch so that ordinary
// `git commit` calls advance it directly, even for a hidden (non-heads)
// ref path.
func (c *Channel) ensureInit() error {
	if _, err := os.Stat(filepath.Join(c.bareDir, "HEAD")); err != nil {
		if err := os.MkdirAll(c.bareDir, 0o755); err != nil {
			return apperr.Wrap(apperr.Fatal, "tickets_mkdir_failed", "could not create tickets bare repository directory", err)
		}
		if out, err := runGitPlain("init", "--bare", "-q", c.bareDir); err != nil {
			return gitFatal("tickets_git_init_failed", "git init --bare failed", out, err)
		}
	}
	if err := os.MkdirAll(c.worktreeDir, 0o755); err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_mkdir_failed", "could not create tickets working tree directory", err)
	}

	if out, err := c.runGit("symbolic-ref", "HEAD", c.ref()); err != nil {
		return gitFatal("tickets_symbolic_ref_failed", "could not point HEAD at the tickets ref", out, err)
	}

	if _, err := c.runGit("rev-parse", "--verify", "-q", c.ref()); err != nil {
		// Unborn branch: make the initial commit so the ref exists, with
		// the events directory already in place.
		if err := os.MkdirAll(filepath.Join(c.worktreeDir, eventsSubdir), 0o755); err != nil {
			return apperr.Wrap(apperr.Fatal, "tickets_mkdir_failed", "could not create events directory", err)
		}
		keep := filepath.Join(c.worktreeDir, eventsSubdir, ".gitkeep")
		if err := os.WriteFile(keep, nil, 0o644); err != nil {
			return apperr.Wrap(apperr.Fatal, "tickets_init_failed", "could not seed events directory", err)
		}
		if err := c.commitAll("init tickets channel"); err != nil {
			return err
		}
	} else if out, err := c.runGit("reset", "--hard", c.ref()); err != nil {
		return gitFatal("tickets_reset_failed", "could not sync working tree to tickets ref", out, err)
	}

	return nil
}

// commitAll stages every file under the working tree and commits, with a
// fixed author identity so the tickets channel never depends on the
// caller's git config being present.
func (c *Channel) commitAll(message string) error {
	if out, err := c.runGit("add", "-A"); err != nil {
		return gitFatal("tickets_git_add_failed", "git add failed", out, err)
	}
	args := []string{
		"-c", "user.name=hack-tickets",
		"-c", "user.email=tickets@hack.local",
		"commit", "--allow-empty", "-q", "-m", message,
	}
	if out, err := c.runGit(args...); err != nil {
		return gitFatal("tickets_git_commit_failed", "git commit failed", out, err)
	}
	return nil
}

func gitFatal(code, message, output string, cause error) error {
	return apperr.Wrap(apperr.Fatal, code, fmt.Sprintf("%s: %s", message, output), cause)
}

var bucketTickets = []byte("tickets")
