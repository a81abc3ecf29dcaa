package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	events   []Event
	attempts int
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failures > 0 {
		p.failures--
		return errors.New("bus unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) published() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func TestWorker_RetriesUntilPublished(t *testing.T) {
	pub := &recordingPublisher{failures: 2}
	w := NewWorker(pub, Config{BufferSize: 4, MaxRetries: 3, RetryDelay: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	event, err := NewEvent("room-1", EventGameStarted, GameStartedPayload{RoomID: "room-1"}, time.Now())
	require.NoError(t, err)
	assert.True(t, w.Enqueue(event))

	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, event.ID, pub.published()[0].ID)

	require.NoError(t, w.Stop())
	assert.Error(t, w.Stop())
}

func TestWorker_EnqueueDropsWhenFull(t *testing.T) {
	w := NewWorker(NoOpPublisher{}, Config{BufferSize: 1})
	assert.True(t, w.Enqueue(Event{RoomID: "r"}))
	assert.False(t, w.Enqueue(Event{RoomID: "r"}))
}

func TestWorker_StopDrainsQueue(t *testing.T) {
	pub := &recordingPublisher{}
	w := NewWorker(pub, Config{BufferSize: 8})
	for i := 0; i < 3; i++ {
		w.Enqueue(Event{RoomID: "r", EventType: EventQuestionStarted})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.running = true
	w.wg.Add(1)
	close(w.stopChan)
	w.run(ctx)

	assert.Len(t, pub.published(), 3)
}
