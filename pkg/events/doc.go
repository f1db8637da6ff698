/*
Package events provides a sequenced, replayable event bus used by jobs and
shells to stream output and lifecycle notifications to subscribers,
including ones that connect after the fact.

# Architecture

Each job or shell owns its own Bus: a bounded ring buffer of recently
published events plus a set of live subscriber channels. Publish assigns
each event a monotonically increasing sequence number, appends it to the
ring (evicting the oldest entry if the ring is full), and fans it out to
every subscriber without blocking — a subscriber whose buffer is full is
dropped rather than allowed to stall the publisher.

Subscribe takes a cursor (the sequence number to resume from) and first
replays any still-retained ring entries at or after that cursor before
the subscriber starts receiving live events. If the cursor refers to
history that has already been evicted, Subscribe reports evicted=true so
the caller can decide how to recover (typically: tell the client its
view is stale and it should refetch current state).

# Usage

	bus := events.NewBus()

	ev, _ := bus.Publish(events.JobStarted, nil)

	sub, evicted := bus.Subscribe(ev.Seq, 64)
	defer bus.Unsubscribe(sub)
	for e := range sub {
		// handle e
	}

# Event kinds

Jobs emit job.created, job.started, job.stdout, job.stderr, job.completed,
job.failed, job.canceled, and a periodic job.heartbeat carrying the
current log and event cursors. Shells emit output and exit.

# Limitations

The ring is in-memory only; a daemon restart drops all retained history,
and a subscriber that falls too far behind is dropped rather than
buffered indefinitely.
*/
package events
