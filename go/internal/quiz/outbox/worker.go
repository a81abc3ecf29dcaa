package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize: 1024,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// Worker relays lifecycle events to an EventPublisher off the caller's
// goroutine. Enqueue never blocks; events are dropped when the buffer is full.
type Worker struct {
	publisher EventPublisher
	config    Config
	queue     chan Event

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(publisher EventPublisher, cfg Config) *Worker {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	return &Worker{
		publisher: publisher,
		config:    cfg,
		queue:     make(chan Event, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}
}

// Enqueue schedules an event for publishing. It reports false if the event was dropped.
func (w *Worker) Enqueue(event Event) bool {
	select {
	case w.queue <- event:
		return true
	default:
		log.Warn().
			Str("room_id", event.RoomID).
			Str("event_type", event.EventType).
			Msg("outbox queue full, dropping event")
		return false
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Int("buffer_size", w.config.BufferSize).
		Int("max_retries", w.config.MaxRetries).
		Msg("outbox worker started")

	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			w.drain(ctx)
			return
		case event := <-w.queue:
			w.publish(ctx, event)
		}
	}
}

// drain publishes whatever is already queued, once, without retries.
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.queue:
			if err := w.publisher.Publish(ctx, event); err != nil {
				log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event during drain")
			}
		default:
			return
		}
	}
}

func (w *Worker) publish(ctx context.Context, event Event) {
	if err := w.publishWithRetry(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Str("room_id", event.RoomID).
			Msg("failed to publish event")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}

		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
