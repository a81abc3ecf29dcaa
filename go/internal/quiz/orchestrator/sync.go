package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/gateway"
	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
	"github.com/mcdev12/quizarena/go/internal/quiz/outbox"
	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
)

// connect admits a freshly registered connection. New wallets join a WAITING
// room, disconnected players are resynced, and anyone already present (a
// second tab, or the host's first socket) gets a private snapshot.
func (o *Orchestrator) connect(ctx context.Context, client gateway.Client) error {
	room, err := o.loadRoom(ctx, client.RoomID)
	if err != nil {
		return err
	}

	player := room.Player(client.WalletID)
	switch {
	case player == nil:
		return o.join(ctx, room, client)
	case player.Status == models.PlayerStatusQuit:
		return ErrPlayerLeft
	case player.Status == models.PlayerStatusDisconnected:
		return o.reconnect(ctx, room, client)
	}

	if err := o.sendSync(ctx, room, client); err != nil {
		return err
	}
	o.evaluateIdle(room)
	return nil
}

func (o *Orchestrator) join(ctx context.Context, room *models.Room, client gateway.Client) error {
	if room.Status != models.RoomStatusWaiting {
		return ErrGameAlreadyStarted
	}
	capacity := room.Settings.MaxPlayers
	if capacity <= 0 {
		capacity = o.config.MaxPlayers
	}
	if len(room.Players) >= capacity {
		return ErrRoomFull
	}

	username := client.Username
	if username == "" {
		username = client.WalletID
	}
	room.Players = append(room.Players, models.Player{
		WalletID: client.WalletID,
		Username: username,
		Status:   models.PlayerStatusWaiting,
		IsHost:   room.Host() == nil,
		JoinedAt: o.clock.Now(),
	})
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}

	o.broadcast(room.ID, events.TypePlayerJoined, events.PlayerEventPayload{
		WalletID: client.WalletID,
		Username: username,
		Action:   "join",
		Players:  events.NewPlayerViews(room),
	})
	log.Info().
		Str("room_id", room.ID).
		Str("wallet_id", client.WalletID).
		Int("players", len(room.Players)).
		Msg("player joined")

	if err := o.sendSync(ctx, room, client); err != nil {
		return err
	}
	o.evaluateIdle(room)
	return nil
}

// reconnect brings a disconnected player back. If the question in play was
// stamped so long ago that every client's countdown has run out, the question
// is restarted for the whole room; otherwise only the returning connection is
// brought up to date.
func (o *Orchestrator) reconnect(ctx context.Context, room *models.Room, client gateway.Client) error {
	player := room.Player(client.WalletID)
	player.Status = models.PlayerStatusActive
	if room.Status == models.RoomStatusWaiting {
		player.Status = models.PlayerStatusWaiting
	}

	now := o.clock.Now()
	started := room.CurrentQuestionStartedAt
	stale := room.Status.IsActiveGame() &&
		room.QuestionInPlay() != nil &&
		started != nil &&
		o.pendingTimer(room.ID) != timerResult &&
		now.Sub(*started) > o.config.StaleQuestionThreshold

	if stale {
		room.CurrentQuestionStartedAt = &now
	}
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}

	if stale {
		log.Info().
			Str("room_id", room.ID).
			Str("wallet_id", client.WalletID).
			Dur("age", now.Sub(*started)).
			Msg("reconnect found a stale question, restarting it for the room")
		metrics.QuestionAdvances.WithLabelValues("reconnect_restart").Inc()

		o.broadcast(room.ID, events.TypePlayerReconnected, events.PlayerEventPayload{
			WalletID: client.WalletID,
			Username: player.Username,
			Action:   "reconnect",
			Players:  events.NewPlayerViews(room),
		})
		o.publishQuestion(room)
		return o.sendSync(ctx, room, client)
	}

	if !room.Status.IsActiveGame() {
		o.broadcast(room.ID, events.TypePlayerReconnected, events.PlayerEventPayload{
			WalletID: client.WalletID,
			Username: player.Username,
			Action:   "reconnect",
			Players:  events.NewPlayerViews(room),
		})
	}
	log.Info().Str("room_id", room.ID).Str("wallet_id", client.WalletID).Msg("player reconnected")

	if err := o.sendSync(ctx, room, client); err != nil {
		return err
	}
	o.evaluateIdle(room)
	return nil
}

// sendSync sends the connection a private snapshot of the room. The question
// in play is only included while more than MinSyncRemaining is left on it.
func (o *Orchestrator) sendSync(ctx context.Context, room *models.Room, client gateway.Client) error {
	now := o.clock.Now()
	payload := events.GameSyncPayload{
		RoomID:        room.ID,
		Code:          room.Code,
		Status:        room.Status,
		Players:       events.NewPlayerViews(room),
		Leaderboard:   events.NewLeaderboard(room),
		TieBreakRound: room.TieBreakRound,
		ServerTime:    now.UnixMilli(),
	}

	q := room.QuestionInPlay()
	_, end, ok := o.QuestionWindow(room)
	if ok && o.pendingTimer(room.ID) != timerResult && end.Sub(now) > o.config.MinSyncRemaining {
		answers, err := o.store.GetAnswers(ctx, room.ID, q.ID)
		if err != nil {
			return fmt.Errorf("failed to load answers: %w", err)
		}
		answered := false
		for _, a := range answers {
			if a.WalletID == client.WalletID {
				answered = true
				break
			}
		}

		timing, _ := o.timing(room, q)
		sq := &events.SyncQuestion{
			Kind:     answerType(room.Status),
			Question: o.questionView(q),
			Timing:   timing,
			Answered: answered,
		}
		if room.Status == models.RoomStatusInProgress {
			sq.QuestionIndex = room.CurrentIndex
			sq.Progress = events.Progress{Current: room.CurrentIndex + 1, Total: room.TotalQuestions}
		} else {
			sq.QuestionIndex = room.TieBreakIndex
			sq.Progress = events.Progress{Current: room.TieBreakIndex + 1, Total: len(room.TieBreakQuestions)}
		}
		payload.CurrentQuestion = sq
	}

	o.broadcaster.SendToConnection(client.ConnectionID, o.envelope(events.TypeGameSync, payload))
	return nil
}

// disconnect marks a player whose last connection closed.
func (o *Orchestrator) disconnect(ctx context.Context, client gateway.Client) error {
	if o.broadcaster.PlayerConnectionCount(client.RoomID, client.WalletID) > 0 {
		return nil
	}
	room, err := o.loadRoom(ctx, client.RoomID)
	if errors.Is(err, repository.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if room.Status.IsTerminal() {
		return nil
	}
	player := room.Player(client.WalletID)
	if player == nil || !player.Status.IsPresent() {
		return nil
	}

	player.Status = models.PlayerStatusDisconnected
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}
	o.broadcast(room.ID, events.TypePlayerDisconnected, events.PlayerEventPayload{
		WalletID: client.WalletID,
		Username: player.Username,
		Action:   "disconnect",
		Players:  events.NewPlayerViews(room),
	})
	log.Info().Str("room_id", room.ID).Str("wallet_id", client.WalletID).Msg("player disconnected")

	o.evaluateIdle(room)
	return o.completeIfAllAnswered(ctx, room)
}

// completeIfAllAnswered closes the question in play early when the players
// still active have all answered it.
func (o *Orchestrator) completeIfAllAnswered(ctx context.Context, room *models.Room) error {
	if !room.Status.IsActiveGame() {
		return nil
	}
	q := room.QuestionInPlay()
	if q == nil || room.CurrentQuestionStartedAt == nil || o.pendingTimer(room.ID) == timerResult {
		return nil
	}
	answers, err := o.store.GetAnswers(ctx, room.ID, q.ID)
	if err != nil {
		return fmt.Errorf("failed to load answers: %w", err)
	}
	if !allAnswered(room, answers) {
		return nil
	}

	o.cancelTimer(room.ID)
	metrics.QuestionAdvances.WithLabelValues("all_answered").Inc()
	switch room.Status {
	case models.RoomStatusInProgress:
		return o.showResult(ctx, room)
	case models.RoomStatusTieBreak:
		return o.closeTieBreakQuestion(ctx, room)
	default:
		return o.suddenDeathMiss(ctx, room)
	}
}

// connectedPlayers counts present players holding at least one connection.
func (o *Orchestrator) connectedPlayers(room *models.Room) int {
	n := 0
	for _, p := range room.Players {
		if p.Status.IsPresent() && o.broadcaster.PlayerConnectionCount(room.ID, p.WalletID) > 0 {
			n++
		}
	}
	return n
}

// evaluateIdle arms or clears the idle-close timer of a WAITING room.
func (o *Orchestrator) evaluateIdle(room *models.Room) {
	if room.Status != models.RoomStatusWaiting || o.connectedPlayers(room) >= o.config.MinPlayers {
		o.broadcaster.ClearIdleClose(room.ID)
		return
	}
	roomID := room.ID
	o.broadcaster.ScheduleIdleClose(roomID, o.config.IdleRoomTimeout, func() {
		o.post(roomID, func(ctx context.Context) {
			o.closeIdleRoom(ctx, roomID)
		})
	})
}

func (o *Orchestrator) closeIdleRoom(ctx context.Context, roomID string) {
	room, err := o.loadRoom(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("idle timer fired for unknown room")
		return
	}
	if room.Status != models.RoomStatusWaiting || o.connectedPlayers(room) >= o.config.MinPlayers {
		return
	}

	if err := o.transition(room, models.RoomStatusCancelled); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to cancel idle room")
		return
	}
	now := o.clock.Now()
	room.EndedAt = &now
	if err := o.saveRoom(ctx, room); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to cancel idle room")
		return
	}
	metrics.GamesFinished.WithLabelValues(string(room.Status), "idle").Inc()
	o.emit(room.ID, outbox.EventGameCancelled, outbox.GameEndedPayload{
		RoomID:  room.ID,
		Status:  string(room.Status),
		Scores:  map[string]int{},
		EndedAt: now.UnixMilli(),
	})
	log.Info().Str("room_id", roomID).Msg("closing idle room")
	o.teardown(ctx, roomID, "not enough players")
}
