package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/quizarena/go/internal/models"
	"github.com/mcdev12/quizarena/go/internal/sqlutil"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type queries struct {
	db DBTX
}

func newQueries(tx *sql.Tx) *queries {
	return &queries{db: tx}
}

// PostgresStore implements Store on top of lib/pq.
type PostgresStore struct {
	db      *sql.DB
	queries *queries
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		queries: &queries{db: db},
	}
}

// Migrate creates the quiz tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.queries.getRoom(ctx, roomID)
}

func (s *PostgresStore) SaveRoom(ctx context.Context, room *models.Room) error {
	next := room.Clone()
	next.Version = room.Version + 1

	err := sqlutil.Run(ctx, s.db, newQueries, func(q *queries) error {
		stored, err := q.getRoomVersion(ctx, room.ID)
		if err != nil {
			return err
		}
		if stored != room.Version {
			return fmt.Errorf("%w: room %s has version %d, got %d", ErrVersionConflict, room.ID, stored, room.Version)
		}
		return q.upsertRoom(ctx, next)
	})
	if err != nil {
		return fmt.Errorf("failed to save room %s: %w", room.ID, err)
	}
	room.Version = next.Version
	return nil
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quiz_rooms WHERE id = $1`, roomID); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPlayers(ctx context.Context, roomID string) ([]models.Player, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return room.Players, nil
}

const answerColumns = `id, room_id, question_id, question_index, wallet_id, answer, is_correct, points,
	speed_bonus, time_bonus, order_bonus, response_time_ms, submitted_at, answer_type, tie_break_round, synthetic`

func (s *PostgresStore) GetAnswers(ctx context.Context, roomID, questionID string) ([]models.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM quiz_answers WHERE room_id = $1 AND question_id = $2 ORDER BY submitted_at`,
		roomID, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return scanAnswers(rows)
}

func (s *PostgresStore) GetRoomAnswers(ctx context.Context, roomID string) ([]models.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM quiz_answers WHERE room_id = $1 ORDER BY submitted_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room answers: %w", err)
	}
	return scanAnswers(rows)
}

func (s *PostgresStore) SaveAnswer(ctx context.Context, a *models.Answer) error {
	return s.queries.insertAnswer(ctx, a)
}

// RecordAnswer inserts the answer and saves the room in one transaction.
func (s *PostgresStore) RecordAnswer(ctx context.Context, a *models.Answer, room *models.Room) error {
	next := room.Clone()
	next.Version = room.Version + 1

	err := sqlutil.Run(ctx, s.db, newQueries, func(q *queries) error {
		stored, err := q.getRoomVersion(ctx, room.ID)
		if err != nil {
			return err
		}
		if stored != room.Version {
			return fmt.Errorf("%w: room %s has version %d, got %d", ErrVersionConflict, room.ID, stored, room.Version)
		}
		if err := q.insertAnswer(ctx, a); err != nil {
			return err
		}
		return q.upsertRoom(ctx, next)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAnswer) {
			return err
		}
		return fmt.Errorf("failed to record answer for room %s: %w", room.ID, err)
	}
	room.Version = next.Version
	return nil
}

func (s *PostgresStore) RandomQuestions(ctx context.Context, difficulty models.Difficulty, n int, exclude []string) ([]models.Question, error) {
	if n <= 0 {
		return nil, nil
	}
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, options, correct_answer, difficulty, explanation
		FROM quiz_questions
		WHERE difficulty = $1 AND NOT (id = ANY($2))
		ORDER BY random()
		LIMIT $3`,
		string(difficulty), pq.Array(exclude), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		var (
			q           models.Question
			diff        string
			explanation sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.Text, pq.Array(&q.Options), &q.CorrectAnswer, &diff, &explanation); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Difficulty = models.Difficulty(diff)
		q.Explanation = sqlutil.FromSqlString(explanation, "")
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	if len(out) < n {
		return nil, fmt.Errorf("%w: want %d %s, have %d", ErrNotEnoughQuestions, n, difficulty, len(out))
	}
	return out, nil
}

// InsertQuestion adds or replaces a question in the bank.
func (s *PostgresStore) InsertQuestion(ctx context.Context, q models.Question) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_questions (id, text, options, correct_answer, difficulty, explanation)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			options = EXCLUDED.options,
			correct_answer = EXCLUDED.correct_answer,
			difficulty = EXCLUDED.difficulty,
			explanation = EXCLUDED.explanation`,
		q.ID, q.Text, pq.Array(q.Options), q.CorrectAnswer, string(q.Difficulty), sqlutil.ToNullString(q.Explanation),
	)
	if err != nil {
		return fmt.Errorf("failed to insert question %s: %w", q.ID, err)
	}
	return nil
}

func (s *PostgresStore) RecordGameResult(ctx context.Context, result models.GameResult) error {
	return sqlutil.Run(ctx, s.db, newQueries, func(q *queries) error {
		st, err := q.getPlayerStats(ctx, result.WalletID, true)
		if err != nil {
			return err
		}
		st.Apply(result)
		return q.upsertPlayerStats(ctx, st)
	})
}

func (s *PostgresStore) GetPlayerStats(ctx context.Context, walletID string) (*models.PlayerStats, error) {
	return s.queries.getPlayerStats(ctx, walletID, false)
}

func (q *queries) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var (
		version int64
		state   []byte
		endedAt sql.NullTime
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT version, state, ended_at FROM quiz_rooms WHERE id = $1`, roomID,
	).Scan(&version, &state, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(state, &room); err != nil {
		return nil, fmt.Errorf("failed to decode room state: %w", err)
	}
	room.Version = version
	room.EndedAt = sqlutil.FromSqlTime(endedAt)
	return &room, nil
}

// getRoomVersion locks the row and returns its version, or 0 for a new room.
func (q *queries) getRoomVersion(ctx context.Context, roomID string) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, `SELECT version FROM quiz_rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read room version: %w", err)
	}
	return version, nil
}

func (q *queries) upsertRoom(ctx context.Context, room *models.Room) error {
	state, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to encode room state: %w", err)
	}
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode room settings: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO quiz_rooms (id, code, version, status, state, settings, winner_wallet_id, created_at, ended_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			state = EXCLUDED.state,
			settings = EXCLUDED.settings,
			winner_wallet_id = EXCLUDED.winner_wallet_id,
			ended_at = EXCLUDED.ended_at,
			updated_at = EXCLUDED.updated_at`,
		room.ID, room.Code, room.Version, string(room.Status), state,
		pqtype.NullRawMessage{RawMessage: settings, Valid: len(settings) > 0},
		sqlutil.ToNullString(room.WinnerWalletID), room.CreatedAt, sqlutil.ToSqlTime(room.EndedAt), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}

func (q *queries) insertAnswer(ctx context.Context, a *models.Answer) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO quiz_answers (`+answerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.RoomID, a.QuestionID, a.QuestionIndex, a.WalletID, a.Answer, a.IsCorrect, a.Points,
		a.SpeedBonus, a.TimeBonus, a.OrderBonus, a.ResponseTime.Milliseconds(), a.SubmittedAt,
		string(a.Type), a.TieBreakRound, a.Synthetic,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateAnswer
		}
		return fmt.Errorf("failed to save answer: %w", err)
	}
	return nil
}

func (q *queries) getPlayerStats(ctx context.Context, walletID string, forUpdate bool) (*models.PlayerStats, error) {
	query := `SELECT total_games, total_wins, total_score, total_correct_answers, total_questions_answered,
		average_accuracy, best_score, current_streak, best_streak
		FROM quiz_player_stats WHERE wallet_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	st := &models.PlayerStats{WalletID: walletID}
	err := q.db.QueryRowContext(ctx, query, walletID).Scan(
		&st.TotalGames, &st.TotalWins, &st.TotalScore, &st.TotalCorrectAnswers, &st.TotalQuestionsAnswered,
		&st.AverageAccuracy, &st.BestScore, &st.CurrentStreak, &st.BestStreak,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	return st, nil
}

func (q *queries) upsertPlayerStats(ctx context.Context, st *models.PlayerStats) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO quiz_player_stats (wallet_id, total_games, total_wins, total_score, total_correct_answers,
			total_questions_answered, average_accuracy, best_score, current_streak, best_streak)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (wallet_id) DO UPDATE SET
			total_games = EXCLUDED.total_games,
			total_wins = EXCLUDED.total_wins,
			total_score = EXCLUDED.total_score,
			total_correct_answers = EXCLUDED.total_correct_answers,
			total_questions_answered = EXCLUDED.total_questions_answered,
			average_accuracy = EXCLUDED.average_accuracy,
			best_score = EXCLUDED.best_score,
			current_streak = EXCLUDED.current_streak,
			best_streak = EXCLUDED.best_streak`,
		st.WalletID, st.TotalGames, st.TotalWins, st.TotalScore, st.TotalCorrectAnswers,
		st.TotalQuestionsAnswered, st.AverageAccuracy, st.BestScore, st.CurrentStreak, st.BestStreak,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player stats: %w", err)
	}
	return nil
}

func scanAnswers(rows *sql.Rows) ([]models.Answer, error) {
	defer rows.Close()
	var out []models.Answer
	for rows.Next() {
		var (
			a          models.Answer
			responseMs int64
			answerType string
		)
		if err := rows.Scan(
			&a.ID, &a.RoomID, &a.QuestionID, &a.QuestionIndex, &a.WalletID, &a.Answer, &a.IsCorrect, &a.Points,
			&a.SpeedBonus, &a.TimeBonus, &a.OrderBonus, &responseMs, &a.SubmittedAt, &answerType,
			&a.TieBreakRound, &a.Synthetic,
		); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		a.ResponseTime = time.Duration(responseMs) * time.Millisecond
		a.Type = models.AnswerType(answerType)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}
	return out, nil
}
