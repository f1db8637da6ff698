package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishIsMonotonic(t *testing.T) {
	b := NewBus()
	ev1, _ := b.Publish(JobStdout, map[string]any{"offset": 5})
	ev2, _ := b.Publish(JobStdout, map[string]any{"offset": 10})
	assert.Equal(t, int64(0), ev1.Seq)
	assert.Equal(t, int64(1), ev2.Seq)
}

func TestSubscribeReplaysFromCursor(t *testing.T) {
	b := NewBus()
	b.Publish(JobCreated, nil)
	b.Publish(JobStarted, nil)
	b.Publish(JobStdout, map[string]any{"data": "hello\n"})

	sub, evicted := b.Subscribe(1, 10)
	require.False(t, evicted)

	var got []Kind
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub:
			got = append(got, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for replayed event")
		}
	}
	assert.Equal(t, []Kind{JobStarted, JobStdout}, got)
}

func TestResubscribeAtEndIsEmpty(t *testing.T) {
	b := NewBus()
	b.Publish(JobCreated, nil)
	next := b.NextSeq()

	sub, evicted := b.Subscribe(next, 10)
	require.False(t, evicted)
	select {
	case ev := <-sub:
		t.Fatalf("expected no replayed events, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeEvictedReportsTrue(t *testing.T) {
	b := NewBusWithRingSize(2)
	b.Publish(JobCreated, nil)
	b.Publish(JobStarted, nil)
	b.Publish(JobStdout, nil) // evicts JobCreated

	_, evicted := b.Subscribe(0, 10)
	assert.True(t, evicted)
}

func TestDroppedSubscriberOnFullBuffer(t *testing.T) {
	b := NewBus()
	sub, _ := b.Subscribe(0, 1)
	b.Publish(JobCreated, nil) // fills the buffer of 1
	_, dropped := b.Publish(JobStarted, nil)
	require.Len(t, dropped, 1)
	assert.Equal(t, sub, dropped[0])
}
