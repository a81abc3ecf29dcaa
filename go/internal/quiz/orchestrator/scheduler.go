package orchestrator

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
)

type timerKind string

const (
	timerCountdown timerKind = "countdown"
	timerQuestion  timerKind = "question"
	timerResult    timerKind = "result"
	timerTeardown  timerKind = "teardown"
)

// roomTimer is the single outstanding timer of a room. gen identifies this
// arming; a fire is only honoured while gen is still the table's entry.
type roomTimer struct {
	gen   uint64
	kind  timerKind
	timer clockwork.Timer
	stop  chan struct{}
}

// schedule arms the room's timer, replacing any existing one. When it fires,
// fn is posted to the room's actor and runs only if no other timer was armed
// or cancelled in the meantime.
func (o *Orchestrator) schedule(roomID string, kind timerKind, d time.Duration, fn func(ctx context.Context)) {
	if d < 0 {
		d = 0
	}
	rt := &roomTimer{
		kind:  kind,
		timer: o.clock.NewTimer(d),
		stop:  make(chan struct{}),
	}
	o.replaceTimer(roomID, rt)

	go func() {
		select {
		case <-rt.timer.Chan():
			o.post(roomID, func(ctx context.Context) {
				if !o.takeTimer(roomID, rt.gen) {
					metrics.StaleTimerFires.Inc()
					log.Debug().
						Str("room_id", roomID).
						Str("kind", string(kind)).
						Msg("timer superseded before it ran")
					return
				}
				fn(ctx)
			})
		case <-rt.stop:
		case <-o.ctx.Done():
		}
	}()

	log.Debug().
		Str("room_id", roomID).
		Str("kind", string(kind)).
		Dur("duration", d).
		Msg("scheduled room timer")
}

// replaceTimer installs rt as the room's timer, cancelling any existing one.
func (o *Orchestrator) replaceTimer(roomID string, rt *roomTimer) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	o.timerGen++
	rt.gen = o.timerGen
	if existing, ok := o.activeTimers[roomID]; ok {
		existing.cancel()
		log.Debug().Str("room_id", roomID).Str("kind", string(existing.kind)).Msg("replaced existing timer")
	}
	o.activeTimers[roomID] = rt
}

// takeTimer removes the room's timer if it is still generation gen.
func (o *Orchestrator) takeTimer(roomID string, gen uint64) bool {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	rt, ok := o.activeTimers[roomID]
	if !ok || rt.gen != gen {
		return false
	}
	delete(o.activeTimers, roomID)
	return true
}

// cancelTimer cancels and removes the room's timer, if any.
func (o *Orchestrator) cancelTimer(roomID string) {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if rt, ok := o.activeTimers[roomID]; ok {
		rt.cancel()
		delete(o.activeTimers, roomID)
		log.Debug().Str("room_id", roomID).Str("kind", string(rt.kind)).Msg("cancelled room timer")
	}
}

// pendingTimer returns the kind of the room's armed timer, or "".
func (o *Orchestrator) pendingTimer(roomID string) timerKind {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	if rt, ok := o.activeTimers[roomID]; ok {
		return rt.kind
	}
	return ""
}

func (o *Orchestrator) stopAllTimers() {
	o.activeTimersMu.Lock()
	defer o.activeTimersMu.Unlock()

	for roomID, rt := range o.activeTimers {
		rt.cancel()
		delete(o.activeTimers, roomID)
	}
}

func (rt *roomTimer) cancel() {
	stopAndDrainTimer(rt.timer)
	close(rt.stop)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
