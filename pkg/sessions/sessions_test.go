package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeRunner(t *testing.T) func(args ...string) ([]byte, error) {
	t.Helper()
	return func(args ...string) ([]byte, error) {
		return nil, nil
	}
}

func TestCreateRejectsInvalidName(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	_, err := m.Create("bad name!", "", nil)
	assert.Error(t, err)
}

func TestCreateAndList(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	sess, err := m.Create("build-1", "proj", []string{"go", "build", "./..."})
	require.NoError(t, err)
	assert.Equal(t, "build-1", sess.Name)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "build-1", list[0].Name)
}

func TestCreateDuplicateConflicts(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	_, err := m.Create("dup", "", nil)
	require.NoError(t, err)

	_, err = m.Create("dup", "", nil)
	assert.Error(t, err)
}

func TestStopUnknownSessionNotFound(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	err := m.Stop("nope")
	assert.Error(t, err)
}

func TestStopRemovesSession(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	_, err := m.Create("s1", "", nil)
	require.NoError(t, err)

	require.NoError(t, m.Stop("s1"))
	assert.Empty(t, m.List())
}

func TestExecRequiresNonEmptyCommand(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	_, err := m.Create("s1", "", nil)
	require.NoError(t, err)

	err = m.Exec("s1", nil)
	assert.Error(t, err)
}

func TestExecOnUnknownSessionNotFound(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	err := m.Exec("nope", []string{"echo", "hi"})
	assert.Error(t, err)
}

func TestInputOnUnknownSessionNotFound(t *testing.T) {
	m := NewManagerWithRunner(fakeRunner(t))
	err := m.Input("nope", "hello\n")
	assert.Error(t, err)
}

func TestShellQuoteJoinEscapesSingleQuotes(t *testing.T) {
	out := shellQuoteJoin([]string{"echo", "it's here"})
	assert.Equal(t, `'echo' 'it'\''s here'`, out)
}
