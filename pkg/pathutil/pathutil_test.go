package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessionName(t *testing.T) {
	assert.True(t, ValidateSessionName("web-1"))
	assert.True(t, ValidateSessionName("a.b_c-1"))
	assert.False(t, ValidateSessionName(""))
	assert.False(t, ValidateSessionName("has space"))
	assert.False(t, ValidateSessionName(string(make([]byte, 65))))
}

func TestValidateBranchSlug(t *testing.T) {
	assert.True(t, ValidateBranchSlug("feature-123"))
	assert.False(t, ValidateBranchSlug("-leading-dash"))
	assert.False(t, ValidateBranchSlug("Has-Upper"))
	assert.False(t, ValidateBranchSlug(""))
}

func TestProjectSlug(t *testing.T) {
	assert.Equal(t, "my-app", ProjectSlug("My/App"))
	assert.Equal(t, "a-b", ProjectSlug("a///b"))
	assert.Equal(t, "project", ProjectSlug("///"))
}

func TestSplitBranchComposeProjectName(t *testing.T) {
	base, branch, ok := SplitBranchComposeProjectName("myapp--feature-x")
	require.True(t, ok)
	assert.Equal(t, "myapp", base)
	assert.Equal(t, "feature-x", branch)

	_, _, ok = SplitBranchComposeProjectName("myapp")
	assert.False(t, ok)
}

func TestConfigDirExists(t *testing.T) {
	root := t.TempDir()
	cfgDir := filepath.Join(root, ".hack")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))

	assert.True(t, ConfigDirExists(root, cfgDir))
	assert.False(t, ConfigDirExists(root, filepath.Join(root, "..", "outside")))
	assert.False(t, ConfigDirExists(root, filepath.Join(root, ".missing")))
}
