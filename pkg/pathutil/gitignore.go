package pathutil

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// GitignoreAwareWalker lists files under root, skipping anything excluded by
// a .gitignore at root (if present) and always skipping .git itself.
type GitignoreAwareWalker struct {
	root   string
	ignore *gitignore.GitIgnore
}

// NewGitignoreAwareWalker constructs a walker rooted at root. A missing
// .gitignore is not an error — everything is simply included.
func NewGitignoreAwareWalker(root string) *GitignoreAwareWalker {
	ignoreFile := filepath.Join(root, ".gitignore")
	ign, err := gitignore.CompileIgnoreFile(ignoreFile)
	if err != nil {
		ign = nil
	}
	return &GitignoreAwareWalker{root: root, ignore: ign}
}

// Walk invokes fn for every regular file under the root that is not excluded
// by .gitignore and not under .git.
func (w *GitignoreAwareWalker) Walk(fn func(relPath string) error) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if w.ignore != nil && w.ignore.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return fn(rel)
	})
}

// ConfigDirExists confirms that a path both exists on disk and lives inside
// repoRoot; runtimecache's auto-registration calls it to validate a
// container label before trusting it. It does not consult .gitignore.
func ConfigDirExists(repoRoot, configDir string) bool {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return false
	}
	absConfig, err := filepath.Abs(configDir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absConfig)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	info, err := os.Stat(absConfig)
	if err != nil || !info.IsDir() {
		return false
	}
	return true
}
