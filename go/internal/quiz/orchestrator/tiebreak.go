package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/gateway"
	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
)

// Tie-break rounds are played after a main game that ends with every active
// player on the same score. Each round is a short block of questions worth one
// point each; winning two rounds in a row wins the game, and a stalemate
// escalates to sudden death.

func (o *Orchestrator) startTieBreak(ctx context.Context, room *models.Room) error {
	if err := o.transition(room, models.RoomStatusTieBreak); err != nil {
		return err
	}
	room.TieBreakRound = 1
	room.TieBreakWinners = nil

	log.Info().Str("room_id", room.ID).Msg("main game tied, starting tie-break")

	return o.startTieBreakRound(ctx, room, o.envelope(events.TypeTieBreakActivated, events.TieBreakActivatedPayload{
		Round:       1,
		Message:     "Scores are tied. Tie-break round 1 begins.",
		Leaderboard: events.NewLeaderboard(room),
	}))
}

// startTieBreakRound draws the round's questions and sends the first one.
// announce is broadcast just before the question.
func (o *Orchestrator) startTieBreakRound(ctx context.Context, room *models.Room, announce *events.Envelope) error {
	difficulty := models.DifficultyHard
	if room.TieBreakRound == 1 {
		difficulty = models.DifficultyMedium
	}

	qs, err := o.drawFresh(ctx, room, difficulty, o.config.TieBreakQuestions)
	if err != nil {
		return o.cancelForBank(ctx, room, err)
	}
	room.TieBreakQuestions = qs
	room.TieBreakIndex = 0
	return o.stampAndPublish(ctx, room, announce)
}

// drawFresh draws questions the room has not used yet.
func (o *Orchestrator) drawFresh(ctx context.Context, room *models.Room, d models.Difficulty, n int) ([]models.Question, error) {
	used, err := o.usedQuestionIDs(ctx, room)
	if err != nil {
		return nil, err
	}
	qs, err := o.store.RandomQuestions(ctx, d, n, used)
	if err != nil {
		return nil, fmt.Errorf("failed to draw %d %s questions: %w", n, d, err)
	}
	return qs, nil
}

func (o *Orchestrator) usedQuestionIDs(ctx context.Context, room *models.Room) ([]string, error) {
	answers, err := o.store.GetRoomAnswers(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room answers: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, q := range room.Questions {
		add(q.ID)
	}
	for _, q := range room.TieBreakQuestions {
		add(q.ID)
	}
	for _, a := range answers {
		add(a.QuestionID)
	}
	return ids, nil
}

// cancelForBank ends the game when the bank cannot supply the next question.
func (o *Orchestrator) cancelForBank(ctx context.Context, room *models.Room, cause error) error {
	log.Error().Err(cause).Str("room_id", room.ID).Msg("cannot continue tie-break")
	if !errors.Is(cause, repository.ErrNotEnoughQuestions) {
		return cause
	}
	o.broadcast(room.ID, events.TypeTieBreakCancelled, events.MessagePayload{
		Message: "No questions left to break the tie. The game is cancelled.",
	})
	return o.finalize(ctx, room, models.RoomStatusCancelled, "", "bank_exhausted")
}

// stampAndPublish starts the tie-break or sudden-death question in play.
func (o *Orchestrator) stampAndPublish(ctx context.Context, room *models.Room, announce *events.Envelope) error {
	now := o.clock.Now()
	room.CurrentQuestionStartedAt = &now
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}
	if announce != nil {
		o.broadcaster.BroadcastToRoom(room.ID, announce)
	}
	o.publishQuestion(room)
	return nil
}

func (o *Orchestrator) onTieBreakTimeout(ctx context.Context, roomID string, round, index int) {
	room, err := o.loadRoom(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("tie-break timeout for unknown room")
		return
	}
	if room.Status != models.RoomStatusTieBreak || room.TieBreakRound != round ||
		room.TieBreakIndex != index || room.CurrentQuestionStartedAt == nil {
		metrics.StaleTimerFires.Inc()
		return
	}

	metrics.QuestionAdvances.WithLabelValues("timeout").Inc()
	if err := o.closeTieBreakQuestion(ctx, room); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Int("round", round).Msg("failed to close tie-break question")
	}
}

func (o *Orchestrator) submitTieBreakAnswer(ctx context.Context, client gateway.Client, p *events.SubmitAnswerPayload) error {
	room, q, player, answers, err := o.openAnswer(ctx, client, p, models.RoomStatusTieBreak)
	if err != nil {
		return err
	}

	answer := o.pointAnswer(room, q, client.WalletID, p.Answer, models.AnswerTypeTieBreak)
	if err := o.saveAnswer(ctx, answer); err != nil {
		return err
	}
	o.ackPointAnswer(client, q, answer, player)

	if allAnswered(room, append(answers, *answer)) {
		o.cancelTimer(room.ID)
		metrics.QuestionAdvances.WithLabelValues("all_answered").Inc()
		return o.closeTieBreakQuestion(ctx, room)
	}
	return nil
}

// openAnswer loads the room and checks that the client may answer the
// tie-break or sudden-death question in play.
func (o *Orchestrator) openAnswer(ctx context.Context, client gateway.Client, p *events.SubmitAnswerPayload, phase models.RoomStatus) (*models.Room, *models.Question, *models.Player, []models.Answer, error) {
	room, err := o.loadRoom(ctx, client.RoomID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if room.Status != phase {
		if room.Status.IsActiveGame() {
			return nil, nil, nil, nil, ErrWrongPhase
		}
		return nil, nil, nil, nil, ErrGameNotInProgress
	}
	q := room.CurrentTieBreakQuestion()
	if q == nil || room.CurrentQuestionStartedAt == nil || o.pendingTimer(room.ID) == timerResult {
		return nil, nil, nil, nil, ErrNoActiveQuestion
	}
	if err := checkTarget(p, q.ID, room.TieBreakIndex); err != nil {
		return nil, nil, nil, nil, err
	}
	player := room.Player(client.WalletID)
	if player == nil {
		return nil, nil, nil, nil, ErrNotInRoom
	}
	if player.Status == models.PlayerStatusQuit {
		return nil, nil, nil, nil, ErrPlayerLeft
	}

	answers, err := o.store.GetAnswers(ctx, room.ID, q.ID)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load answers: %w", err)
	}
	for _, a := range answers {
		if a.WalletID == client.WalletID {
			return nil, nil, nil, nil, ErrAlreadyAnswered
		}
	}
	return room, q, player, answers, nil
}

// pointAnswer builds a one-point-if-correct answer for the question in play.
func (o *Orchestrator) pointAnswer(room *models.Room, q *models.Question, walletID, value string, kind models.AnswerType) *models.Answer {
	now := o.clock.Now()
	correct := q.IsCorrect(value)
	a := &models.Answer{
		ID:            uuid.New().String(),
		RoomID:        room.ID,
		QuestionID:    q.ID,
		QuestionIndex: room.TieBreakIndex,
		WalletID:      walletID,
		Answer:        value,
		IsCorrect:     correct,
		ResponseTime:  now.Sub(*room.CurrentQuestionStartedAt),
		SubmittedAt:   now,
		Type:          kind,
	}
	if correct {
		a.Points = 1
	}
	if kind == models.AnswerTypeTieBreak {
		a.TieBreakRound = room.TieBreakRound
	}
	return a
}

func (o *Orchestrator) saveAnswer(ctx context.Context, a *models.Answer) error {
	if err := o.store.SaveAnswer(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicateAnswer) {
			return ErrAlreadyAnswered
		}
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

func (o *Orchestrator) ackPointAnswer(client gateway.Client, q *models.Question, a *models.Answer, player *models.Player) {
	o.broadcaster.SendToConnection(client.ConnectionID, o.envelope(events.TypeAnswerSubmitted, events.AnswerSubmittedPayload{
		QuestionID:     q.ID,
		IsCorrect:      a.IsCorrect,
		Points:         a.Points,
		BaseScore:      a.Points,
		TotalScore:     player.Score,
		ResponseTimeMs: a.ResponseTime.Milliseconds(),
	}))
}

// closeTieBreakQuestion reveals the tie-break question and schedules the next step.
func (o *Orchestrator) closeTieBreakQuestion(ctx context.Context, room *models.Room) error {
	q := room.CurrentTieBreakQuestion()
	if q == nil {
		return nil
	}
	round, index := room.TieBreakRound, room.TieBreakIndex

	answers, err := o.completeAnswers(ctx, room, q, index, models.AnswerTypeTieBreak)
	if err != nil {
		return err
	}
	o.broadcast(room.ID, events.TypeQuestionResult, o.resultPayload(room, q, index, answers))

	roomID := room.ID
	o.schedule(roomID, timerResult, o.config.ResultDelay, func(ctx context.Context) {
		if err := o.advanceTieBreak(ctx, roomID, round, index); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Int("round", round).Msg("failed to advance tie-break")
		}
	})
	return nil
}

func (o *Orchestrator) advanceTieBreak(ctx context.Context, roomID string, round, index int) error {
	room, err := o.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomStatusTieBreak || room.TieBreakRound != round || room.TieBreakIndex != index {
		metrics.StaleTimerFires.Inc()
		return nil
	}

	room.TieBreakIndex++
	room.CurrentQuestionStartedAt = nil
	if room.TieBreakIndex < len(room.TieBreakQuestions) {
		return o.stampAndPublish(ctx, room, nil)
	}
	return o.resolveTieBreakRound(ctx, room)
}

// roundWinner returns the single player with the strictly highest score, or "".
func roundWinner(room *models.Room, scores map[string]int) string {
	winner, best, unique := "", -1, false
	for _, p := range room.Players {
		if p.Status == models.PlayerStatusQuit {
			continue
		}
		s := scores[p.WalletID]
		switch {
		case s > best:
			winner, best, unique = p.WalletID, s, true
		case s == best:
			unique = false
		}
	}
	if !unique {
		return ""
	}
	return winner
}

func (o *Orchestrator) resolveTieBreakRound(ctx context.Context, room *models.Room) error {
	round := room.TieBreakRound
	all, err := o.store.GetRoomAnswers(ctx, room.ID)
	if err != nil {
		return fmt.Errorf("failed to load room answers: %w", err)
	}

	scores := make(map[string]int)
	submitted := 0
	for _, a := range all {
		if a.Type != models.AnswerTypeTieBreak || a.TieBreakRound != round {
			continue
		}
		if !a.Synthetic {
			submitted++
		}
		scores[a.WalletID] += a.Points
	}

	if submitted == 0 {
		o.broadcast(room.ID, events.TypeTieBreakCancelled, events.MessagePayload{
			Message: fmt.Sprintf("Nobody answered in tie-break round %d. The game is cancelled.", round),
		})
		return o.finalize(ctx, room, models.RoomStatusCancelled, "", "tie_break_no_answers")
	}

	winner := roundWinner(room, scores)
	room.TieBreakWinners = append(room.TieBreakWinners, winner)
	n := len(room.TieBreakWinners)
	final := winner != "" && n >= 2 && room.TieBreakWinners[n-2] == winner

	result := events.TieBreakWinnerPayload{Round: round, WinnerWalletID: winner, Final: final}
	if p := room.Player(winner); p != nil {
		result.WinnerUsername = p.Username
		result.Message = fmt.Sprintf("%s wins tie-break round %d.", p.Username, round)
	} else {
		result.Message = fmt.Sprintf("No single winner in tie-break round %d.", round)
	}
	o.broadcast(room.ID, events.TypeTieBreakWinner, result)

	log.Info().
		Str("room_id", room.ID).
		Int("round", round).
		Str("winner", winner).
		Bool("final", final).
		Msg("tie-break round resolved")

	if final {
		return o.finalize(ctx, room, models.RoomStatusFinished, winner, "tie_break")
	}
	if round >= o.config.SuddenDeathAfterRound || round >= o.config.TieBreakRoundCeiling {
		return o.startSuddenDeath(ctx, room)
	}

	room.TieBreakRound++
	return o.startTieBreakRound(ctx, room, o.envelope(events.TypeTieBreakNextRound, events.TieBreakNextRoundPayload{
		Round:   room.TieBreakRound,
		Message: fmt.Sprintf("Tie-break round %d begins.", room.TieBreakRound),
	}))
}

func (o *Orchestrator) startSuddenDeath(ctx context.Context, room *models.Room) error {
	if err := o.transition(room, models.RoomStatusSuddenDeath); err != nil {
		return err
	}
	room.SuddenDeathActivated = true
	return o.nextSuddenDeathQuestion(ctx, room, o.envelope(events.TypeSuddenDeathActivated, events.MessagePayload{
		Message: "Sudden death: the first correct answer wins.",
	}))
}

func (o *Orchestrator) nextSuddenDeathQuestion(ctx context.Context, room *models.Room, announce *events.Envelope) error {
	q, err := o.drawSuddenDeathQuestion(ctx, room)
	if err != nil {
		return o.cancelForBank(ctx, room, err)
	}
	room.TieBreakQuestions = []models.Question{q}
	room.TieBreakIndex = 0
	room.SuddenDeathCount++
	return o.stampAndPublish(ctx, room, announce)
}

// drawSuddenDeathQuestion prefers a hard question the room has not seen. Once
// those run out it replays one under an id suffixed with the sudden-death
// sequence, so answers to the replay do not collide with earlier ones.
func (o *Orchestrator) drawSuddenDeathQuestion(ctx context.Context, room *models.Room) (models.Question, error) {
	qs, err := o.drawFresh(ctx, room, models.DifficultyHard, 1)
	if err == nil && len(qs) > 0 {
		return qs[0], nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotEnoughQuestions) {
		return models.Question{}, err
	}

	qs, err = o.store.RandomQuestions(ctx, models.DifficultyHard, 1, nil)
	if err != nil {
		return models.Question{}, fmt.Errorf("failed to draw a hard question: %w", err)
	}
	if len(qs) == 0 {
		return models.Question{}, repository.ErrNotEnoughQuestions
	}
	q := qs[0]
	q.ID = fmt.Sprintf("%s#%d", q.ID, room.SuddenDeathCount+1)
	log.Info().Str("room_id", room.ID).Str("question_id", q.ID).Msg("hard questions used up, replaying one for sudden death")
	return q, nil
}

func (o *Orchestrator) onSuddenDeathTimeout(ctx context.Context, roomID string, seq int) {
	room, err := o.loadRoom(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("sudden-death timeout for unknown room")
		return
	}
	if room.Status != models.RoomStatusSuddenDeath || room.SuddenDeathCount != seq || room.CurrentQuestionStartedAt == nil {
		metrics.StaleTimerFires.Inc()
		return
	}

	metrics.QuestionAdvances.WithLabelValues("timeout").Inc()
	if err := o.suddenDeathMiss(ctx, room); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to close sudden-death question")
	}
}

func (o *Orchestrator) submitSuddenDeathAnswer(ctx context.Context, client gateway.Client, p *events.SubmitAnswerPayload) error {
	room, q, player, answers, err := o.openAnswer(ctx, client, p, models.RoomStatusSuddenDeath)
	if err != nil {
		return err
	}

	answer := o.pointAnswer(room, q, client.WalletID, p.Answer, models.AnswerTypeSuddenDeath)
	if err := o.saveAnswer(ctx, answer); err != nil {
		return err
	}
	o.ackPointAnswer(client, q, answer, player)

	if answer.IsCorrect {
		metrics.QuestionAdvances.WithLabelValues("sudden_death_win").Inc()
		return o.finalize(ctx, room, models.RoomStatusFinished, client.WalletID, "sudden_death")
	}
	if allAnswered(room, append(answers, *answer)) {
		o.cancelTimer(room.ID)
		metrics.QuestionAdvances.WithLabelValues("all_answered").Inc()
		return o.suddenDeathMiss(ctx, room)
	}
	return nil
}

// suddenDeathMiss closes a sudden-death question nobody got right and
// schedules a new one.
func (o *Orchestrator) suddenDeathMiss(ctx context.Context, room *models.Room) error {
	q := room.CurrentTieBreakQuestion()
	if q == nil {
		return nil
	}
	o.broadcast(room.ID, events.TypeSuddenDeathTimeout, events.SuddenDeathTimeoutPayload{
		QuestionID: q.ID,
		Message:    "No correct answer. Next question coming up.",
	})

	roomID, seq := room.ID, room.SuddenDeathCount
	o.schedule(roomID, timerResult, o.config.ResultDelay, func(ctx context.Context) {
		room, err := o.loadRoom(ctx, roomID)
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to load room for sudden death")
			return
		}
		if room.Status != models.RoomStatusSuddenDeath || room.SuddenDeathCount != seq {
			metrics.StaleTimerFires.Inc()
			return
		}
		if err := o.nextSuddenDeathQuestion(ctx, room, nil); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to send sudden-death question")
		}
	})
	return nil
}
