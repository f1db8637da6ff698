package tickets

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hack-dev/hack/pkg/types"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func openTestChannel(t *testing.T) *Channel {
	t.Helper()
	requireGit(t)
	c, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenInitializesEmptyChannel(t *testing.T) {
	c := openTestChannel(t)
	events, err := c.ListEvents()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendEventThenListEvents(t *testing.T) {
	c := openTestChannel(t)
	now := time.Now().Unix()

	ev := types.TicketEvent{
		EventID:   "e1",
		Timestamp: now,
		Actor:     "alice",
		TicketID:  "T-00001",
		Type:      types.TicketEventCreated,
		Payload:   map[string]any{"title": "first ticket", "status": "open"},
	}
	require.NoError(t, c.AppendEvent(ev))

	events, err := c.ListEvents()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].EventID)
	assert.Equal(t, "T-00001", events[0].TicketID)
}

func TestAppendEventDeduplicatesByEventID(t *testing.T) {
	c := openTestChannel(t)
	now := time.Now().Unix()
	ev := types.TicketEvent{
		EventID:   "dup-1",
		Timestamp: now,
		TicketID:  "T-00002",
		Type:      types.TicketEventCreated,
		Payload:   map[string]any{"title": "dup test"},
	}

	require.NoError(t, c.AppendEvent(ev))
	require.NoError(t, c.AppendEvent(ev)) // appended twice, same eventId

	events, err := c.ListEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListEventsOrderedByTimestampThenEventID(t *testing.T) {
	c := openTestChannel(t)
	base := time.Now().Unix()

	require.NoError(t, c.AppendEvent(types.TicketEvent{
		EventID: "b", Timestamp: base, TicketID: "T-00003", Type: types.TicketEventCreated,
	}))
	require.NoError(t, c.AppendEvent(types.TicketEvent{
		EventID: "a", Timestamp: base, TicketID: "T-00003", Type: types.TicketEventUpdated,
	}))
	require.NoError(t, c.AppendEvent(types.TicketEvent{
		EventID: "c", Timestamp: base - 10, TicketID: "T-00003", Type: types.TicketEventUpdated,
	}))

	events, err := c.ListEvents()
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[0].EventID) // earliest timestamp first
	assert.Equal(t, "a", events[1].EventID) // same ts as "b", "a" < "b"
	assert.Equal(t, "b", events[2].EventID)
}

func TestListTicketsMaterializesCreateAndStatusChange(t *testing.T) {
	c := openTestChannel(t)
	now := time.Now().Unix()

	require.NoError(t, c.AppendEvent(types.TicketEvent{
		EventID: "e1", Timestamp: now, TicketID: "T-00010", Type: types.TicketEventCreated,
		Payload: map[string]any{"title": "fix the thing", "status": "open"},
	}))
	require.NoError(t, c.AppendEvent(types.TicketEvent{
		EventID: "e2", Timestamp: now + 1, TicketID: "T-00010", Type: types.TicketEventStatusChanged,
		Payload: map[string]any{"status": "closed"},
	}))

	ticket, err := c.GetTicket("T-00010")
	require.NoError(t, err)
	assert.Equal(t, "fix the thing", ticket.Title)
	assert.Equal(t, "closed", ticket.Status)
	assert.Equal(t, now, ticket.CreatedAt)
	assert.Equal(t, now+1, ticket.UpdatedAt)
}

func TestGetTicketNotFound(t *testing.T) {
	c := openTestChannel(t)
	_, err := c.GetTicket("T-99999")
	assert.Error(t, err)
}

func TestListTicketsUsesCacheUntilEventsChange(t *testing.T) {
	c := openTestChannel(t)
	now := time.Now().Unix()
	require.NoError(t, c.AppendEvent(types.TicketEvent{
		EventID: "e1", Timestamp: now, TicketID: "T-00020", Type: types.TicketEventCreated,
		Payload: map[string]any{"title": "one"},
	}))

	first, err := c.ListTickets()
	require.NoError(t, err)
	require.Len(t, first, 1)

	require.NoError(t, c.AppendEvent(types.TicketEvent{
		EventID: "e2", Timestamp: now + 1, TicketID: "T-00021", Type: types.TicketEventCreated,
		Payload: map[string]any{"title": "two"},
	}))

	second, err := c.ListTickets()
	require.NoError(t, err)
	assert.Len(t, second, 2)
}

func TestRepairIsNoOpOnCleanChannel(t *testing.T) {
	c := openTestChannel(t)
	didCommit, err := c.Repair("")
	require.NoError(t, err)
	assert.False(t, didCommit)
}

func TestRepairRemovesDisallowedPaths(t *testing.T) {
	c := openTestChannel(t)
	require.NoError(t, os.WriteFile(c.worktreeDir+"/stray.txt", []byte("not allowed"), 0o644))
	require.NoError(t, c.commitAll("add stray file to the tickets branch"))

	didCommit, err := c.Repair("")
	require.NoError(t, err)
	assert.True(t, didCommit)

	_, statErr := os.Stat(c.worktreeDir + "/stray.txt")
	assert.Error(t, statErr)
}

func TestClassifyRejection(t *testing.T) {
	assert.Equal(t, rejectionTransient, classifyRejection(RefModeHeads, "! [rejected] hack/tickets -> hack/tickets (non-fast-forward)"))
	assert.Equal(t, rejectionHiddenRef, classifyRejection(RefModeHidden, "remote: error: deny updating a hidden ref"))
	assert.Equal(t, rejectionNone, classifyRejection(RefModeHeads, "fatal: could not read from remote repository"))
}
