package tickets

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/types"
)

// eventFileName returns the events-YYYY-MM.jsonl name for ts.
func eventFileName(ts int64) string {
	t := time.Unix(ts, 0).UTC()
	return fmt.Sprintf("events-%04d-%02d.jsonl", t.Year(), int(t.Month()))
}

func (c *Channel) eventsDir() string {
	return filepath.Join(c.worktreeDir, eventsSubdir)
}

// AppendEvent appends ev to its month's event file, deduplicated by
// eventId, and commits the change on the channel's ref. If a remote is
// configured it fetches first, and on a transient push rejection re-fetches,
// re-applies this event against the new tip, and retries the push once.
func (c *Channel) AppendEvent(ev types.TicketEvent) error {
	if ev.EventID == "" {
		return apperr.Validationf("ticket_event_missing_id", "ticket event must have an eventId")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remote != "" {
		_ = c.fetchAndSync() // a missing remote ref on first use is not fatal
	}

	if err := c.appendLocked(ev); err != nil {
		return err
	}

	if c.remote == "" {
		return nil
	}

	if err := c.push(); err == nil {
		return nil
	} else {
		kind := classifyRejection(c.refMode, err.Error())
		switch kind {
		case rejectionHiddenRef:
			return hiddenRefError(err.Error())
		case rejectionTransient:
			if ferr := c.fetchAndSync(); ferr != nil {
				return ferr
			}
			if err := c.appendLocked(ev); err != nil {
				return err
			}
			if err := c.push(); err != nil {
				return apperr.Wrap(apperr.Transient, "tickets_push_failed", "push rejected again after retry", err).WithRetryable(true)
			}
			return nil
		default:
			return apperr.Wrap(apperr.Fatal, "tickets_push_failed", "push failed", err)
		}
	}
}

// appendLocked writes ev to its month file (skipping if eventId is already
// present) and commits. Caller must hold c.mu.
func (c *Channel) appendLocked(ev types.TicketEvent) error {
	dir := c.eventsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_mkdir_failed", "could not create events directory", err)
	}
	path := filepath.Join(dir, eventFileName(ev.Timestamp))

	existing, err := readEventFile(path)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.EventID == ev.EventID {
			return nil // already present; append is a no-op, not an error
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_marshal_failed", "could not marshal ticket event", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_write_failed", "could not open event file for append", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return apperr.Wrap(apperr.Fatal, "tickets_write_failed", "could not append ticket event", err)
	}
	if err := f.Close(); err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_write_failed", "could not flush ticket event", err)
	}

	return c.commitAll(fmt.Sprintf("append ticket event %s", ev.EventID))
}

// readEventFile parses every line of path as a TicketEvent. A missing file
// is treated as empty, never an error.
func readEventFile(path string) ([]types.TicketEvent, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "tickets_read_failed", "could not read event file", err)
	}
	defer f.Close()

	var out []types.TicketEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev types.TicketEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, apperr.Wrap(apperr.Fatal, "tickets_corrupt_event", "corrupt ticket event line in "+path, err)
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "tickets_read_failed", "could not scan event file", err)
	}
	return out, nil
}

// ListEvents returns every event in the channel's log, ordered by
// (timestamp, eventId), deduplicated by eventId (later entries discarded).
func (c *Channel) ListEvents() ([]types.TicketEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listEventsLocked()
}

func (c *Channel) listEventsLocked() ([]types.TicketEvent, error) {
	dir := c.eventsDir()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Fatal, "tickets_read_failed", "could not list events directory", err)
	}

	seen := make(map[string]struct{})
	var all []types.TicketEvent
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		evs, err := readEventFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, e := range evs {
			if _, dup := seen[e.EventID]; dup {
				continue
			}
			seen[e.EventID] = struct{}{}
			all = append(all, e)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp < all[j].Timestamp
		}
		return all[i].EventID < all[j].EventID
	})
	return all, nil
}
