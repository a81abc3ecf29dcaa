package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/quiz/events"
	"github.com/mcdev12/quizarena/go/internal/quiz/gateway"
	"github.com/mcdev12/quizarena/go/internal/quiz/metrics"
	"github.com/mcdev12/quizarena/go/internal/quiz/outbox"
	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
	"github.com/mcdev12/quizarena/go/internal/quiz/reward"
	"github.com/mcdev12/quizarena/go/internal/quiz/scoring"
)

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var difficultyOrder = []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard}

func newRoomCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}
	return string(b)
}

// CreateRoom creates a WAITING room hosted by the given wallet.
func (o *Orchestrator) CreateRoom(ctx context.Context, hostWalletID, hostUsername string) (*models.Room, error) {
	if hostWalletID == "" {
		return nil, errors.New("host wallet id is required")
	}

	now := o.clock.Now()
	table := o.config.Difficulties
	room := &models.Room{
		ID:     uuid.New().String(),
		Code:   newRoomCode(),
		Status: models.RoomStatusWaiting,
		Settings: models.RoomSettings{
			EasyCount:          table.Lookup(models.DifficultyEasy).Quantity,
			MediumCount:        table.Lookup(models.DifficultyMedium).Quantity,
			HardCount:          table.Lookup(models.DifficultyHard).Quantity,
			TimePerQuestionSec: table.Lookup(models.DifficultyEasy).TimePerQuestion,
			CountdownSec:       int(o.config.Countdown / time.Second),
			MaxPlayers:         o.config.MaxPlayers,
		},
		Players: []models.Player{{
			WalletID: hostWalletID,
			Username: hostUsername,
			Status:   models.PlayerStatusWaiting,
			IsHost:   true,
			JoinedAt: now,
		}},
		CreatedAt: now,
	}
	if err := o.saveRoom(ctx, room); err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", room.ID).
		Str("code", room.Code).
		Str("wallet_id", hostWalletID).
		Msg("room created")
	return room, nil
}

func countOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func (o *Orchestrator) startGame(ctx context.Context, client gateway.Client, p *events.StartGamePayload) error {
	room, err := o.loadRoom(ctx, client.RoomID)
	if err != nil {
		return err
	}
	player := room.Player(client.WalletID)
	if player == nil {
		return ErrNotInRoom
	}
	if !player.IsHost {
		return ErrNotHost
	}
	if room.Status != models.RoomStatusWaiting {
		return ErrGameAlreadyStarted
	}
	if len(room.ActivePlayers()) < o.config.MinPlayers {
		return ErrNotEnoughPlayers
	}

	room.Settings.EasyCount = countOr(p.Settings.Questions.Easy, room.Settings.EasyCount)
	room.Settings.MediumCount = countOr(p.Settings.Questions.Medium, room.Settings.MediumCount)
	room.Settings.HardCount = countOr(p.Settings.Questions.Hard, room.Settings.HardCount)

	plan, err := o.drawPlan(ctx, map[models.Difficulty]int{
		models.DifficultyEasy:   room.Settings.EasyCount,
		models.DifficultyMedium: room.Settings.MediumCount,
		models.DifficultyHard:   room.Settings.HardCount,
	})
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return ErrNoQuestions
	}

	now := o.clock.Now()
	room.Questions = plan
	room.TotalQuestions = len(plan)
	room.CurrentIndex = 0
	room.CurrentQuestionStartedAt = nil
	room.StartedAt = &now
	for i := range room.Players {
		room.Players[i].Score = 0
		if room.Players[i].Status.IsPresent() {
			room.Players[i].Status = models.PlayerStatusActive
		}
	}

	// Until the countdown fires the room is IN_PROGRESS with no question stamped.
	if err := o.transition(room, models.RoomStatusInProgress); err != nil {
		return err
	}
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}
	o.broadcaster.ClearIdleClose(room.ID)

	startAt := now.Add(o.config.Countdown)
	o.broadcast(room.ID, events.TypeGameStarted, events.GameStartedPayload{
		RoomID:            room.ID,
		TotalQuestions:    room.TotalQuestions,
		EasyCount:         room.Settings.EasyCount,
		MediumCount:       room.Settings.MediumCount,
		HardCount:         room.Settings.HardCount,
		CountdownDuration: int(o.config.Countdown / time.Second),
		StartAt:           startAt.UnixMilli(),
		RoomSettings:      o.config.Difficulties,
	})

	wallets := make([]string, 0, len(room.Players))
	for _, p := range room.ActivePlayers() {
		wallets = append(wallets, p.WalletID)
	}
	o.emit(room.ID, outbox.EventGameStarted, outbox.GameStartedPayload{
		RoomID:         room.ID,
		Players:        wallets,
		TotalQuestions: room.TotalQuestions,
		StartAt:        startAt.UnixMilli(),
	})

	log.Info().
		Str("room_id", room.ID).
		Int("total_questions", room.TotalQuestions).
		Int("players", len(wallets)).
		Msg("game started")

	if o.config.Countdown <= 0 {
		return o.sendQuestion(ctx, room)
	}
	roomID := room.ID
	o.schedule(roomID, timerCountdown, o.config.Countdown, func(ctx context.Context) {
		o.beginQuestions(ctx, roomID)
	})
	return nil
}

// drawPlan draws the requested number of questions per difficulty.
func (o *Orchestrator) drawPlan(ctx context.Context, counts map[models.Difficulty]int) ([]models.Question, error) {
	var plan []models.Question
	for _, d := range difficultyOrder {
		n := counts[d]
		if n <= 0 {
			continue
		}
		qs, err := o.store.RandomQuestions(ctx, d, n, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to draw %d %s questions: %w", n, d, err)
		}
		plan = append(plan, qs...)
	}
	if o.config.ShuffleQuestions {
		rand.Shuffle(len(plan), func(i, j int) { plan[i], plan[j] = plan[j], plan[i] })
	}
	return plan, nil
}

func (o *Orchestrator) beginQuestions(ctx context.Context, roomID string) {
	room, err := o.loadRoom(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("countdown fired for unknown room")
		return
	}
	if room.Status != models.RoomStatusInProgress || room.CurrentIndex != 0 || room.CurrentQuestionStartedAt != nil {
		metrics.StaleTimerFires.Inc()
		return
	}
	if err := o.sendQuestion(ctx, room); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to send first question")
	}
}

// sendQuestion stamps the question at CurrentIndex, broadcasts it and arms
// the fallback timer.
func (o *Orchestrator) sendQuestion(ctx context.Context, room *models.Room) error {
	q := room.CurrentQuestion()
	if q == nil {
		return o.finishMainGame(ctx, room)
	}

	now := o.clock.Now()
	room.CurrentQuestionStartedAt = &now
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}
	o.publishQuestion(room)

	log.Info().
		Str("room_id", room.ID).
		Int("question_index", room.CurrentIndex).
		Str("question_id", q.ID).
		Msg("question sent")
	return nil
}

// publishQuestion broadcasts the question in play and arms its timer. The
// start marker must already be stamped and persisted.
func (o *Orchestrator) publishQuestion(room *models.Room) {
	env := o.questionEnvelope(room)
	if env == nil {
		return
	}
	o.broadcaster.BroadcastToRoom(room.ID, env)
	o.armQuestionTimer(room)

	q := room.QuestionInPlay()
	start, end, _ := o.QuestionWindow(room)
	index := room.CurrentIndex
	if room.Status != models.RoomStatusInProgress {
		index = room.TieBreakIndex
	}
	o.emit(room.ID, outbox.EventQuestionStarted, outbox.QuestionStartedPayload{
		RoomID:        room.ID,
		Kind:          string(answerType(room.Status)),
		QuestionIndex: index,
		QuestionID:    q.ID,
		StartAt:       start.UnixMilli(),
		EndAt:         end.UnixMilli(),
	})
}

func answerType(status models.RoomStatus) models.AnswerType {
	switch status {
	case models.RoomStatusTieBreak:
		return models.AnswerTypeTieBreak
	case models.RoomStatusSuddenDeath:
		return models.AnswerTypeSuddenDeath
	}
	return models.AnswerTypeRegular
}

func (o *Orchestrator) questionView(q *models.Question) events.QuestionView {
	view := events.NewQuestionView(q)
	if o.config.ShuffleQuestions {
		rand.Shuffle(len(view.Options), func(i, j int) { view.Options[i], view.Options[j] = view.Options[j], view.Options[i] })
	}
	return view
}

func (o *Orchestrator) timing(room *models.Room, q *models.Question) (events.QuestionTiming, scoring.DifficultyConfig) {
	cfg := o.questionConfig(room, q)
	start := *room.CurrentQuestionStartedAt
	return events.QuestionTiming{
		QuestionStartAt: start.UnixMilli(),
		QuestionEndAt:   start.Add(cfg.TimeLimit()).UnixMilli(),
		TimePerQuestion: cfg.TimePerQuestion,
	}, cfg
}

// questionEnvelope builds the question message matching the room's phase.
func (o *Orchestrator) questionEnvelope(room *models.Room) *events.Envelope {
	q := room.QuestionInPlay()
	if q == nil || room.CurrentQuestionStartedAt == nil {
		return nil
	}
	timing, cfg := o.timing(room, q)

	switch room.Status {
	case models.RoomStatusInProgress:
		return o.envelope(events.TypeNextQuestion, events.NextQuestionPayload{
			QuestionIndex: room.CurrentIndex,
			Question:      o.questionView(q),
			Timing:        timing,
			Config:        cfg,
			Progress:      events.Progress{Current: room.CurrentIndex + 1, Total: room.TotalQuestions},
		})
	case models.RoomStatusTieBreak:
		return o.envelope(events.TypeTieBreakQuestion, events.TieBreakQuestionPayload{
			Round:         room.TieBreakRound,
			QuestionIndex: room.TieBreakIndex,
			Question:      o.questionView(q),
			Timing:        timing,
			Progress:      events.Progress{Current: room.TieBreakIndex + 1, Total: len(room.TieBreakQuestions)},
		})
	case models.RoomStatusSuddenDeath:
		return o.envelope(events.TypeSuddenDeathQuestion, events.SuddenDeathQuestionPayload{
			Question: o.questionView(q),
			Timing:   timing,
			Sequence: room.SuddenDeathCount,
		})
	}
	return nil
}

// armQuestionTimer arms the fallback timer for the question in play.
func (o *Orchestrator) armQuestionTimer(room *models.Room) {
	q := room.QuestionInPlay()
	if q == nil {
		return
	}
	d := o.questionConfig(room, q).TimeLimit() + o.config.FallbackBuffer
	roomID := room.ID

	switch room.Status {
	case models.RoomStatusInProgress:
		index := room.CurrentIndex
		o.schedule(roomID, timerQuestion, d, func(ctx context.Context) {
			o.onQuestionTimeout(ctx, roomID, index)
		})
	case models.RoomStatusTieBreak:
		round, index := room.TieBreakRound, room.TieBreakIndex
		o.schedule(roomID, timerQuestion, d, func(ctx context.Context) {
			o.onTieBreakTimeout(ctx, roomID, round, index)
		})
	case models.RoomStatusSuddenDeath:
		seq := room.SuddenDeathCount
		o.schedule(roomID, timerQuestion, d, func(ctx context.Context) {
			o.onSuddenDeathTimeout(ctx, roomID, seq)
		})
	}
}

func (o *Orchestrator) onQuestionTimeout(ctx context.Context, roomID string, index int) {
	room, err := o.loadRoom(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("question timeout for unknown room")
		return
	}
	if room.Status != models.RoomStatusInProgress || room.CurrentIndex != index || room.CurrentQuestionStartedAt == nil {
		metrics.StaleTimerFires.Inc()
		log.Debug().Str("room_id", roomID).Int("question_index", index).Msg("question already advanced")
		return
	}

	metrics.QuestionAdvances.WithLabelValues("timeout").Inc()
	if err := o.showResult(ctx, room); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Int("question_index", index).Msg("failed to show result")
	}
}

func (o *Orchestrator) submitAnswer(ctx context.Context, client gateway.Client, p *events.SubmitAnswerPayload) error {
	room, err := o.loadRoom(ctx, client.RoomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomStatusInProgress {
		if room.Status.IsActiveGame() {
			return ErrWrongPhase
		}
		return ErrGameNotInProgress
	}
	q := room.CurrentQuestion()
	if q == nil || room.CurrentQuestionStartedAt == nil || o.pendingTimer(room.ID) == timerResult {
		return ErrNoActiveQuestion
	}
	if err := checkTarget(p, q.ID, room.CurrentIndex); err != nil {
		return err
	}
	player := room.Player(client.WalletID)
	if player == nil {
		return ErrNotInRoom
	}
	if player.Status == models.PlayerStatusQuit {
		return ErrPlayerLeft
	}

	answers, err := o.store.GetAnswers(ctx, room.ID, q.ID)
	if err != nil {
		return fmt.Errorf("failed to load answers: %w", err)
	}
	rank := 1
	for _, a := range answers {
		if a.WalletID == client.WalletID {
			return ErrAlreadyAnswered
		}
		if a.IsCorrect {
			rank++
		}
	}

	now := o.clock.Now()
	rt := now.Sub(*room.CurrentQuestionStartedAt)
	correct := q.IsExactMatch(p.Answer)
	res := scoring.Score(scoring.Input{
		IsCorrect:    correct,
		ResponseTime: rt,
		Config:       o.questionConfig(room, q),
		CorrectRank:  rank,
	})

	answer := &models.Answer{
		ID:            uuid.New().String(),
		RoomID:        room.ID,
		QuestionID:    q.ID,
		QuestionIndex: room.CurrentIndex,
		WalletID:      client.WalletID,
		Answer:        p.Answer,
		IsCorrect:     correct,
		Points:        res.Total,
		SpeedBonus:    res.SpeedBonus,
		TimeBonus:     res.TimeBonus,
		OrderBonus:    res.OrderBonus,
		ResponseTime:  rt,
		SubmittedAt:   now,
		Type:          models.AnswerTypeRegular,
	}
	player.Score += res.Total
	if err := o.store.RecordAnswer(ctx, answer, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateAnswer) {
			return ErrAlreadyAnswered
		}
		return fmt.Errorf("failed to record answer: %w", err)
	}

	o.broadcaster.SendToConnection(client.ConnectionID, o.envelope(events.TypeAnswerSubmitted, events.AnswerSubmittedPayload{
		QuestionID:     q.ID,
		IsCorrect:      correct,
		Points:         res.Total,
		BaseScore:      res.Base,
		SpeedBonus:     res.SpeedBonus,
		TimeBonus:      res.TimeBonus,
		OrderBonus:     res.OrderBonus,
		TotalScore:     player.Score,
		ResponseTimeMs: rt.Milliseconds(),
	}))

	log.Debug().
		Str("room_id", room.ID).
		Str("wallet_id", client.WalletID).
		Int("question_index", room.CurrentIndex).
		Bool("correct", correct).
		Int("points", res.Total).
		Msg("answer recorded")

	if allAnswered(room, append(answers, *answer)) {
		o.cancelTimer(room.ID)
		metrics.QuestionAdvances.WithLabelValues("all_answered").Inc()
		return o.showResult(ctx, room)
	}
	return nil
}

// checkTarget rejects answers aimed at a question other than the one in play.
func checkTarget(p *events.SubmitAnswerPayload, questionID string, index int) error {
	if p.QuestionIndex != nil && *p.QuestionIndex != index {
		return ErrStaleAnswer
	}
	if p.QuestionID != "" && p.QuestionID != questionID {
		return ErrStaleAnswer
	}
	return nil
}

// allAnswered reports whether every active player has an answer in answers.
func allAnswered(room *models.Room, answers []models.Answer) bool {
	active := room.ActivePlayers()
	if len(active) == 0 {
		return false
	}
	got := make(map[string]bool, len(answers))
	for _, a := range answers {
		got[a.WalletID] = true
	}
	for _, p := range active {
		if !got[p.WalletID] {
			return false
		}
	}
	return true
}

// completeAnswers records a zero-score answer for every active player who has
// none for q and returns the full answer set.
func (o *Orchestrator) completeAnswers(ctx context.Context, room *models.Room, q *models.Question, index int, kind models.AnswerType) ([]models.Answer, error) {
	answers, err := o.store.GetAnswers(ctx, room.ID, q.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.WalletID] = true
	}

	now := o.clock.Now()
	for _, p := range room.ActivePlayers() {
		if answered[p.WalletID] {
			continue
		}
		a := models.Answer{
			ID:            uuid.New().String(),
			RoomID:        room.ID,
			QuestionID:    q.ID,
			QuestionIndex: index,
			WalletID:      p.WalletID,
			SubmittedAt:   now,
			Type:          kind,
			Synthetic:     true,
		}
		if kind == models.AnswerTypeTieBreak {
			a.TieBreakRound = room.TieBreakRound
		}
		if err := o.store.SaveAnswer(ctx, &a); err != nil {
			if errors.Is(err, repository.ErrDuplicateAnswer) {
				continue
			}
			return nil, fmt.Errorf("failed to record missing answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, nil
}

func (o *Orchestrator) resultPayload(room *models.Room, q *models.Question, index int, answers []models.Answer) events.QuestionResultPayload {
	stats := make(map[string]int, len(q.Options))
	for _, opt := range q.Options {
		stats[opt] = 0
	}
	responses := 0
	for _, a := range answers {
		if a.Synthetic {
			continue
		}
		responses++
		stats[a.Answer]++
	}
	return events.QuestionResultPayload{
		QuestionIndex:  index,
		QuestionID:     q.ID,
		CorrectAnswer:  q.CorrectAnswer,
		Explanation:    q.Explanation,
		AnswerStats:    stats,
		TotalResponses: responses,
		Leaderboard:    events.NewLeaderboard(room),
	}
}

// showResult closes the current main-game question and schedules the advance.
func (o *Orchestrator) showResult(ctx context.Context, room *models.Room) error {
	q := room.CurrentQuestion()
	if q == nil {
		return nil
	}
	index := room.CurrentIndex

	answers, err := o.completeAnswers(ctx, room, q, index, models.AnswerTypeRegular)
	if err != nil {
		return err
	}
	o.broadcast(room.ID, events.TypeQuestionResult, o.resultPayload(room, q, index, answers))

	roomID := room.ID
	o.schedule(roomID, timerResult, o.config.ResultDelay, func(ctx context.Context) {
		if err := o.advance(ctx, roomID, index); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Int("question_index", index).Msg("failed to advance")
		}
	})
	return nil
}

// advance moves past question index. It is a no-op unless the room is still
// on that index, so duplicate triggers cannot advance twice.
func (o *Orchestrator) advance(ctx context.Context, roomID string, index int) error {
	room, err := o.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomStatusInProgress || room.CurrentIndex != index {
		metrics.StaleTimerFires.Inc()
		log.Debug().Str("room_id", roomID).Int("question_index", index).Msg("skipping stale advance")
		return nil
	}

	room.CurrentIndex++
	room.CurrentQuestionStartedAt = nil
	if room.CurrentIndex >= room.TotalQuestions {
		return o.finishMainGame(ctx, room)
	}
	return o.sendQuestion(ctx, room)
}

func (o *Orchestrator) finishMainGame(ctx context.Context, room *models.Room) error {
	room.CurrentQuestionStartedAt = nil
	if room.AllScoresEqual() {
		return o.startTieBreak(ctx, room)
	}

	winner := ""
	for _, p := range room.Leaderboard() {
		if p.Status != models.PlayerStatusQuit {
			winner = p.WalletID
			break
		}
	}
	return o.finalize(ctx, room, models.RoomStatusFinished, winner, "main")
}

// finalize moves the room into a terminal status and runs the end-of-game hooks.
func (o *Orchestrator) finalize(ctx context.Context, room *models.Room, status models.RoomStatus, winner, path string) error {
	if err := o.transition(room, status); err != nil {
		return err
	}
	o.cancelTimer(room.ID)

	now := o.clock.Now()
	room.EndedAt = &now
	room.CurrentQuestionStartedAt = nil
	room.WinnerWalletID = winner
	for i := range room.Players {
		if winner != "" && room.Players[i].WalletID == winner {
			room.Players[i].IsWinner = true
			room.Players[i].Status = models.PlayerStatusWinner
		}
	}
	if err := o.saveRoom(ctx, room); err != nil {
		return err
	}

	answers, err := o.store.GetRoomAnswers(ctx, room.ID)
	if err != nil {
		log.Error().Err(err).Str("room_id", room.ID).Msg("failed to load answers for game summary")
	}
	results := playerResults(room, answers)

	payload := events.GameEndedPayload{
		RoomID:      room.ID,
		Status:      string(status),
		Leaderboard: results,
		GameStats:   gameStats(room, results, now),
		EndedAt:     now.UnixMilli(),
	}
	for i := range results {
		if results[i].IsWinner {
			payload.Winner = &results[i]
			break
		}
	}
	o.broadcast(room.ID, events.TypeGameEnded, payload)
	metrics.GamesFinished.WithLabelValues(string(status), path).Inc()

	scores := make(map[string]int, len(room.Players))
	for _, p := range room.Players {
		scores[p.WalletID] = p.Score
	}
	ended := outbox.GameEndedPayload{
		RoomID:         room.ID,
		Status:         string(status),
		WinnerWalletID: winner,
		Scores:         scores,
		TieBreakRounds: room.TieBreakRound,
		EndedAt:        now.UnixMilli(),
	}

	if status == models.RoomStatusFinished {
		o.recordStats(ctx, room, results)
		o.emit(room.ID, outbox.EventGameEnded, ended)
		if winner != "" {
			o.issueReward(room.ID, winner, scores[winner])
		}
	} else {
		o.emit(room.ID, outbox.EventGameCancelled, ended)
	}

	log.Info().
		Str("room_id", room.ID).
		Str("status", string(status)).
		Str("winner", winner).
		Str("path", path).
		Msg("game ended")

	o.scheduleTeardown(room.ID)
	return nil
}

func playerResults(room *models.Room, answers []models.Answer) []events.PlayerResult {
	type tally struct {
		correct, total int
		elapsed        time.Duration
	}
	tallies := make(map[string]*tally, len(room.Players))
	for _, a := range answers {
		if a.Type != models.AnswerTypeRegular || a.Synthetic {
			continue
		}
		t, ok := tallies[a.WalletID]
		if !ok {
			t = &tally{}
			tallies[a.WalletID] = t
		}
		t.total++
		t.elapsed += a.ResponseTime
		if a.IsCorrect {
			t.correct++
		}
	}

	board := room.Leaderboard()
	sort.SliceStable(board, func(i, j int) bool {
		if board[i].Score != board[j].Score {
			return board[i].Score > board[j].Score
		}
		return board[i].IsWinner && !board[j].IsWinner
	})

	results := make([]events.PlayerResult, len(board))
	for i, p := range board {
		r := events.PlayerResult{
			Rank:     i + 1,
			WalletID: p.WalletID,
			Username: p.Username,
			Score:    p.Score,
			IsWinner: p.IsWinner,
		}
		if t, ok := tallies[p.WalletID]; ok {
			r.CorrectAnswers = t.correct
			r.TotalAnswers = t.total
			r.AverageTimeMs = (t.elapsed / time.Duration(t.total)).Milliseconds()
		}
		if room.TotalQuestions > 0 {
			r.Accuracy = float64(r.CorrectAnswers) / float64(room.TotalQuestions)
		}
		results[i] = r
	}
	return results
}

func gameStats(room *models.Room, results []events.PlayerResult, now time.Time) events.GameStats {
	stats := events.GameStats{
		TotalPlayers:   len(room.Players),
		TotalQuestions: room.TotalQuestions,
		QuestionBreakdown: events.QuestionBreakdown{
			Easy:   room.Settings.EasyCount,
			Medium: room.Settings.MediumCount,
			Hard:   room.Settings.HardCount,
		},
		TieBreakRounds: room.TieBreakRound,
	}
	if room.StartedAt != nil {
		stats.GameDurationSec = now.Sub(*room.StartedAt).Seconds()
	}
	total := 0
	for _, r := range results {
		total += r.Score
		if r.Score > stats.HighestScore {
			stats.HighestScore = r.Score
		}
	}
	if len(results) > 0 {
		stats.AverageScore = float64(total) / float64(len(results))
	}
	return stats
}

func (o *Orchestrator) recordStats(ctx context.Context, room *models.Room, results []events.PlayerResult) {
	for _, r := range results {
		err := o.store.RecordGameResult(ctx, models.GameResult{
			WalletID:       r.WalletID,
			Score:          r.Score,
			CorrectAnswers: r.CorrectAnswers,
			TotalQuestions: room.TotalQuestions,
			IsWinner:       r.IsWinner,
		})
		if err != nil {
			log.Error().Err(err).Str("room_id", room.ID).Str("wallet_id", r.WalletID).Msg("failed to record player stats")
		}
	}
}

// issueReward calls the reward hook off the room's actor. A failure is
// reported to the room but never changes the game's outcome.
func (o *Orchestrator) issueReward(roomID, winner string, score int) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		ctx, cancel := context.WithTimeout(o.ctx, 30*time.Second)
		defer cancel()

		receipt, err := o.awarder.Award(ctx, reward.Request{
			RoomID:         roomID,
			WinnerWalletID: winner,
			Score:          score,
		})
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Str("wallet_id", winner).Msg("reward failed")
			o.broadcast(roomID, events.TypeRewardError, events.RewardErrorPayload{
				WinnerWalletID: winner,
				Message:        "reward could not be issued",
			})
			return
		}
		log.Info().
			Str("room_id", roomID).
			Str("wallet_id", winner).
			Str("transaction_id", receipt.TransactionID).
			Msg("reward issued")
	}()
}

func (o *Orchestrator) scheduleTeardown(roomID string) {
	o.schedule(roomID, timerTeardown, o.config.TeardownDelay, func(ctx context.Context) {
		o.teardown(ctx, roomID, "game over")
	})
}

// teardown disconnects everyone and stops the room's actor.
func (o *Orchestrator) teardown(ctx context.Context, roomID, reason string) {
	o.broadcast(roomID, events.TypeRoomClosed, events.RoomClosedPayload{RoomID: roomID, Reason: reason})
	o.broadcaster.ClearIdleClose(roomID)
	o.broadcaster.CloseRoom(roomID)
	o.cancelTimer(roomID)

	if o.config.PurgeOnTeardown {
		if err := o.store.DeleteRoom(ctx, roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("failed to delete room")
		}
	}
	o.retireActor(roomID)

	log.Info().Str("room_id", roomID).Str("reason", reason).Msg("room torn down")
}
