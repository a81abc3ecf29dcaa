// Package orchestrator runs quiz rooms. Every mutation of a room happens on
// that room's actor goroutine, so handlers for one room never interleave.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
	"github.com/mcdev12/quizarena/go/internal/quiz/outbox"
	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
	"github.com/mcdev12/quizarena/go/internal/quiz/reward"
	"github.com/mcdev12/quizarena/go/internal/quiz/scoring"
)

// Broadcaster delivers envelopes to connected clients. gateway.ConnectionManager implements it.
type Broadcaster interface {
	BroadcastToRoom(roomID string, env *events.Envelope)
	SendToConnection(connectionID string, env *events.Envelope)
	SendToPlayer(roomID, walletID string, env *events.Envelope)
	DisconnectPlayer(roomID, walletID string)
	CloseRoom(roomID string)
	PlayerConnectionCount(roomID, walletID string) int
	ScheduleIdleClose(roomID string, after time.Duration, onIdle func())
	ClearIdleClose(roomID string)
}

// EventSink accepts lifecycle events for the message bus. outbox.Worker implements it.
type EventSink interface {
	Enqueue(event outbox.Event) bool
}

type discardSink struct{}

func (discardSink) Enqueue(outbox.Event) bool { return true }

// Config holds the game rules and timings.
type Config struct {
	Difficulties scoring.Table

	Countdown              time.Duration
	FallbackBuffer         time.Duration
	ResultDelay            time.Duration
	StaleQuestionThreshold time.Duration
	MinSyncRemaining       time.Duration
	IdleRoomTimeout        time.Duration
	TeardownDelay          time.Duration
	PurgeOnTeardown        bool

	MinPlayers int
	MaxPlayers int

	TieBreakQuestions     int
	SuddenDeathAfterRound int
	TieBreakRoundCeiling  int

	// ShuffleQuestions randomizes the main-game plan and the option order of
	// every question broadcast.
	ShuffleQuestions bool

	MailboxSize int
	JobTimeout  time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Difficulties:           scoring.DefaultTable(),
		Countdown:              10 * time.Second,
		FallbackBuffer:         5 * time.Second,
		ResultDelay:            3 * time.Second,
		StaleQuestionThreshold: 60 * time.Second,
		MinSyncRemaining:       5 * time.Second,
		IdleRoomTimeout:        30 * time.Second,
		TeardownDelay:          5 * time.Minute,
		PurgeOnTeardown:        false,
		MinPlayers:             2,
		MaxPlayers:             4,
		TieBreakQuestions:      3,
		SuddenDeathAfterRound:  2,
		TieBreakRoundCeiling:   10,
		ShuffleQuestions:       true,
		MailboxSize:            64,
		JobTimeout:             10 * time.Second,
	}
}

// Orchestrator owns the state machine of every room on this instance.
type Orchestrator struct {
	store       repository.Store
	broadcaster Broadcaster
	awarder     reward.Awarder
	events      EventSink
	clock       clockwork.Clock
	config      Config
	instanceID  string

	actors   map[string]*roomActor
	actorsMu sync.Mutex

	// One timer per room; see scheduler.go
	activeTimers   map[string]*roomTimer
	activeTimersMu sync.Mutex
	timerGen       uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. awarder and sink may be nil.
func NewOrchestrator(store repository.Store, broadcaster Broadcaster, awarder reward.Awarder, sink EventSink, clock clockwork.Clock, config Config) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if awarder == nil {
		awarder = reward.NoOpAwarder{}
	}
	if sink == nil {
		sink = discardSink{}
	}
	if config.Difficulties == nil {
		config.Difficulties = scoring.DefaultTable()
	}
	if config.MailboxSize <= 0 {
		config.MailboxSize = 64
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 10 * time.Second
	}
	defaults := DefaultConfig()
	positiveOr(&config.MinPlayers, defaults.MinPlayers)
	positiveOr(&config.MaxPlayers, defaults.MaxPlayers)
	positiveOr(&config.TieBreakQuestions, defaults.TieBreakQuestions)
	positiveOr(&config.SuddenDeathAfterRound, defaults.SuddenDeathAfterRound)
	positiveOr(&config.TieBreakRoundCeiling, defaults.TieBreakRoundCeiling)

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:        store,
		broadcaster:  broadcaster,
		awarder:      awarder,
		events:       sink,
		clock:        clock,
		config:       config,
		instanceID:   uuid.New().String()[:8],
		actors:       make(map[string]*roomActor),
		activeTimers: make(map[string]*roomTimer),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func positiveOr(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// Close stops every room actor and timer and waits for in-flight work.
func (o *Orchestrator) Close() {
	log.Info().Str("instance", o.instanceID).Msg("orchestrator shutting down")
	o.cancel()
	o.stopAllTimers()
	o.wg.Wait()
	log.Info().Str("instance", o.instanceID).Msg("orchestrator stopped")
}

// job is a unit of work executed on a room's actor.
type job func(ctx context.Context)

type roomActor struct {
	roomID  string
	mailbox chan job
	stop    chan struct{}
	done    chan struct{}
}

func (o *Orchestrator) actor(roomID string) *roomActor {
	o.actorsMu.Lock()
	defer o.actorsMu.Unlock()

	if a, ok := o.actors[roomID]; ok {
		return a
	}
	a := &roomActor{
		roomID:  roomID,
		mailbox: make(chan job, o.config.MailboxSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	o.actors[roomID] = a
	metrics.ActiveRooms.Inc()

	o.wg.Add(1)
	go o.runActor(a)
	return a
}

// retireActor stops the room's actor once it has drained its mailbox. It is
// called from the actor itself during teardown.
func (o *Orchestrator) retireActor(roomID string) {
	o.actorsMu.Lock()
	defer o.actorsMu.Unlock()

	a, ok := o.actors[roomID]
	if !ok {
		return
	}
	delete(o.actors, roomID)
	close(a.stop)
	metrics.ActiveRooms.Dec()
}

func (o *Orchestrator) runActor(a *roomActor) {
	defer o.wg.Done()
	defer close(a.done)

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-a.stop:
			// Jobs queued before retirement still run against the torn-down room.
			for {
				select {
				case j := <-a.mailbox:
					o.runJob(a.roomID, j)
				default:
					return
				}
			}
		case j := <-a.mailbox:
			o.runJob(a.roomID, j)
		}
	}
}

func (o *Orchestrator) runJob(roomID string, j job) {
	ctx, cancel := context.WithTimeout(o.ctx, o.config.JobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("room_id", roomID).
				Interface("panic", r).
				Msg("room job panicked")
		}
	}()
	j(ctx)
}

// post queues work on the room's actor. It returns the actor, or nil when the
// orchestrator is shutting down.
func (o *Orchestrator) post(roomID string, j job) *roomActor {
	for {
		a := o.actor(roomID)
		select {
		case a.mailbox <- j:
			return a
		case <-a.done:
			// Retired between lookup and send; the next lookup creates a fresh actor.
			continue
		case <-o.ctx.Done():
			return nil
		}
	}
}

// do runs fn on the room's actor and waits for its result.
func (o *Orchestrator) do(roomID string, fn func(ctx context.Context) error) error {
	result := make(chan error, 1)
	a := o.post(roomID, func(ctx context.Context) {
		var err error
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("room_id", roomID).Interface("panic", r).Msg("room job panicked")
				err = fmt.Errorf("room job panicked: %v", r)
			}
			result <- err
		}()
		err = fn(ctx)
	})
	if a == nil {
		return ErrShuttingDown
	}

	select {
	case err := <-result:
		return err
	case <-a.done:
		select {
		case err := <-result:
			return err
		default:
			return repository.ErrRoomNotFound
		}
	case <-o.ctx.Done():
		return ErrShuttingDown
	}
}

// GetRoom returns the stored room. It does not go through the actor.
func (o *Orchestrator) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return o.store.GetRoom(ctx, roomID)
}

func (o *Orchestrator) loadRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := o.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}
	return room, nil
}

func (o *Orchestrator) saveRoom(ctx context.Context, room *models.Room) error {
	if err := o.store.SaveRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to save room %s: %w", room.ID, err)
	}
	return nil
}

func (o *Orchestrator) transition(room *models.Room, to models.RoomStatus) error {
	if !models.CanTransition(room.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s for room %s", room.Status, to, room.ID)
	}
	log.Info().
		Str("room_id", room.ID).
		Str("from", string(room.Status)).
		Str("to", string(to)).
		Msg("room status changed")
	room.Status = to
	return nil
}

func (o *Orchestrator) envelope(t events.MessageType, payload interface{}) *events.Envelope {
	return events.MustEnvelope(t, payload, o.clock.Now())
}

func (o *Orchestrator) broadcast(roomID string, t events.MessageType, payload interface{}) {
	o.broadcaster.BroadcastToRoom(roomID, o.envelope(t, payload))
}

func (o *Orchestrator) sendError(connectionID string, err error) {
	o.broadcaster.SendToConnection(connectionID, o.envelope(events.TypeError, events.ErrorPayload{Message: clientMessage(err)}))
}

func (o *Orchestrator) emit(roomID, eventType string, payload interface{}) {
	ev, err := outbox.NewEvent(roomID, eventType, payload, o.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	o.events.Enqueue(ev)
}

// questionConfig returns the scoring rules for q in room. The room's base
// time replaces the easy tier's time and shifts the others by the same amount.
func (o *Orchestrator) questionConfig(room *models.Room, q *models.Question) scoring.DifficultyConfig {
	cfg := o.config.Difficulties.Lookup(q.Difficulty)
	if room.Settings.TimePerQuestionSec > 0 {
		base := o.config.Difficulties.Lookup(models.DifficultyEasy).TimePerQuestion
		cfg.TimePerQuestion += room.Settings.TimePerQuestionSec - base
		if cfg.TimePerQuestion < 1 {
			cfg.TimePerQuestion = 1
		}
	}
	return cfg
}

// QuestionWindow returns the start and end of the question in play.
func (o *Orchestrator) QuestionWindow(room *models.Room) (time.Time, time.Time, bool) {
	q := room.QuestionInPlay()
	if q == nil || room.CurrentQuestionStartedAt == nil {
		return time.Time{}, time.Time{}, false
	}
	start := *room.CurrentQuestionStartedAt
	return start, start.Add(o.questionConfig(room, q).TimeLimit()), true
}
