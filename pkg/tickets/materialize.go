package tickets

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/hack-dev/hack/pkg/apperr"
	"github.com/hack-dev/hack/pkg/types"
)

var (
	cacheKeyWatermark = []byte("watermark")
	cacheKeySnapshot  = []byte("snapshot")
)

// ListTickets returns every ticket materialized from this channel's event
// log, sorted by id. The result is served from the bbolt projection cache
// when the event log hasn't changed since the cache was built.
func (c *Channel) ListTickets() ([]types.Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	watermark, err := c.eventsWatermark()
	if err != nil {
		return nil, err
	}

	if cached, ok, err := c.readCache(watermark); err != nil {
		return nil, err
	} else if ok {
		return cached, nil
	}

	events, err := c.listEventsLocked()
	if err != nil {
		return nil, err
	}
	tickets := materialize(events)

	if err := c.writeCache(watermark, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicket returns the materialized ticket with the given id.
func (c *Channel) GetTicket(id string) (types.Ticket, error) {
	tickets, err := c.ListTickets()
	if err != nil {
		return types.Ticket{}, err
	}
	for _, t := range tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return types.Ticket{}, apperr.NotFoundf("ticket_not_found", "no ticket %q", id)
}

// materialize folds events (already ordered by (timestamp, eventId)) into
// one Ticket per distinct ticketId.
func materialize(events []types.TicketEvent) []types.Ticket {
	byID := make(map[string]*types.Ticket)
	var order []string

	for _, ev := range events {
		t, ok := byID[ev.TicketID]
		if !ok {
			t = &types.Ticket{ID: ev.TicketID}
			byID[ev.TicketID] = t
			order = append(order, ev.TicketID)
		}
		applyTicketEvent(t, ev)
	}

	out := make([]types.Ticket, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func applyTicketEvent(t *types.Ticket, ev types.TicketEvent) {
	switch ev.Type {
	case types.TicketEventCreated:
		t.ProjectID = ev.ProjectID
		t.CreatedAt = ev.Timestamp
		t.UpdatedAt = ev.Timestamp
		if title, ok := ev.Payload["title"].(string); ok {
			t.Title = title
		}
		if status, ok := ev.Payload["status"].(string); ok {
			t.Status = status
		}
		if fields, ok := ev.Payload["fields"].(map[string]any); ok {
			t.Fields = fields
		}
	case types.TicketEventStatusChanged:
		t.UpdatedAt = ev.Timestamp
		if status, ok := ev.Payload["status"].(string); ok {
			t.Status = status
		}
	case types.TicketEventUpdated:
		t.UpdatedAt = ev.Timestamp
		if title, ok := ev.Payload["title"].(string); ok {
			t.Title = title
		}
		if fields, ok := ev.Payload["fields"].(map[string]any); ok {
			if t.Fields == nil {
				t.Fields = make(map[string]any, len(fields))
			}
			for k, v := range fields {
				t.Fields[k] = v
			}
		}
	}
}

// eventsWatermark is the latest modification time (UnixNano) across every
// event file, used to invalidate the projection cache without re-parsing
// the log on every call.
func (c *Channel) eventsWatermark() (int64, error) {
	entries, err := os.ReadDir(c.eventsDir())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.Fatal, "tickets_read_failed", "could not stat events directory", err)
	}
	var max int64
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mt := info.ModTime().UnixNano(); mt > max {
			max = mt
		}
	}
	return max, nil
}

func (c *Channel) readCache(watermark int64) ([]types.Ticket, bool, error) {
	var tickets []types.Ticket
	found := false
	err := c.cache.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		wmBytes := b.Get(cacheKeyWatermark)
		if wmBytes == nil || int64(binary.BigEndian.Uint64(wmBytes)) != watermark {
			return nil
		}
		snap := b.Get(cacheKeySnapshot)
		if snap == nil {
			return nil
		}
		if err := json.Unmarshal(snap, &tickets); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, apperr.Wrap(apperr.Fatal, "tickets_cache_read_failed", "could not read ticket projection cache", err)
	}
	return tickets, found, nil
}

func (c *Channel) writeCache(watermark int64, tickets []types.Ticket) error {
	data, err := json.Marshal(tickets)
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_marshal_failed", "could not marshal ticket projection", err)
	}
	wmBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(wmBytes, uint64(watermark))

	err = c.cache.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTickets)
		if err := b.Put(cacheKeyWatermark, wmBytes); err != nil {
			return err
		}
		return b.Put(cacheKeySnapshot, data)
	})
	if err != nil {
		return apperr.Wrap(apperr.Fatal, "tickets_cache_write_failed", "could not write ticket projection cache", err)
	}
	return nil
}
