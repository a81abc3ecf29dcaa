package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/mcdev12/quizarena/go/internal/models"
)

// MemoryStore keeps everything in process memory. It is used by tests and by
// single-instance deployments with STORAGE=memory.
type MemoryStore struct {
	mu        sync.RWMutex
	rooms     map[string]*models.Room
	answers   map[string][]models.Answer // keyed by room ID
	questions map[models.Difficulty][]models.Question
	stats     map[string]*models.PlayerStats
	shuffle   bool
}

// NewMemoryStore creates a store seeded with the given question bank. Draws
// come back in bank order; call WithShuffle to randomize them.
func NewMemoryStore(questions []models.Question) *MemoryStore {
	s := &MemoryStore{
		rooms:     make(map[string]*models.Room),
		answers:   make(map[string][]models.Answer),
		questions: make(map[models.Difficulty][]models.Question),
		stats:     make(map[string]*models.PlayerStats),
	}
	for _, q := range questions {
		s.questions[q.Difficulty] = append(s.questions[q.Difficulty], q)
	}
	return s
}

// WithShuffle makes RandomQuestions return questions in random order.
func (s *MemoryStore) WithShuffle() *MemoryStore {
	s.shuffle = true
	return s
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *MemoryStore) SaveRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveRoomLocked(room)
}

func (s *MemoryStore) saveRoomLocked(room *models.Room) error {
	var stored int64
	if existing, ok := s.rooms[room.ID]; ok {
		stored = existing.Version
	}
	if stored != room.Version {
		return fmt.Errorf("%w: room %s has version %d, got %d", ErrVersionConflict, room.ID, stored, room.Version)
	}
	room.Version++
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	delete(s.answers, roomID)
	return nil
}

func (s *MemoryStore) GetAnswers(_ context.Context, roomID, questionID string) ([]models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Answer
	for _, a := range s.answers[roomID] {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetRoomAnswers(_ context.Context, roomID string) ([]models.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Answer(nil), s.answers[roomID]...), nil
}

func (s *MemoryStore) SaveAnswer(_ context.Context, answer *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasAnswerLocked(answer) {
		return ErrDuplicateAnswer
	}
	s.answers[answer.RoomID] = append(s.answers[answer.RoomID], *answer)
	return nil
}

func (s *MemoryStore) RecordAnswer(_ context.Context, answer *models.Answer, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasAnswerLocked(answer) {
		return ErrDuplicateAnswer
	}
	if err := s.saveRoomLocked(room); err != nil {
		return err
	}
	s.answers[answer.RoomID] = append(s.answers[answer.RoomID], *answer)
	return nil
}

func (s *MemoryStore) hasAnswerLocked(answer *models.Answer) bool {
	for _, a := range s.answers[answer.RoomID] {
		if a.QuestionID == answer.QuestionID && a.WalletID == answer.WalletID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) GetPlayers(_ context.Context, roomID string) ([]models.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return append([]models.Player(nil), room.Players...), nil
}

func (s *MemoryStore) RandomQuestions(_ context.Context, difficulty models.Difficulty, n int, exclude []string) ([]models.Question, error) {
	if n <= 0 {
		return nil, nil
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	s.mu.RLock()
	pool := make([]models.Question, 0, len(s.questions[difficulty]))
	for _, q := range s.questions[difficulty] {
		if !skip[q.ID] {
			pool = append(pool, q)
		}
	}
	s.mu.RUnlock()

	if len(pool) < n {
		return nil, fmt.Errorf("%w: want %d %s, have %d", ErrNotEnoughQuestions, n, difficulty, len(pool))
	}
	if s.shuffle {
		rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}
	out := make([]models.Question, n)
	for i := range out {
		out[i] = pool[i]
		out[i].Options = append([]string(nil), pool[i].Options...)
	}
	return out, nil
}

func (s *MemoryStore) RecordGameResult(_ context.Context, result models.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[result.WalletID]
	if !ok {
		st = &models.PlayerStats{WalletID: result.WalletID}
		s.stats[result.WalletID] = st
	}
	st.Apply(result)
	return nil
}

func (s *MemoryStore) GetPlayerStats(_ context.Context, walletID string) (*models.PlayerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[walletID]
	if !ok {
		return &models.PlayerStats{WalletID: walletID}, nil
	}
	cp := *st
	return &cp, nil
}
