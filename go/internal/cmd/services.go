package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/quiz/gateway"
	"github.com/mcdev12/quizarena/go/internal/quiz/orchestrator"
	"github.com/mcdev12/quizarena/go/internal/quiz/outbox"
	"github.com/mcdev12/quizarena/go/internal/quiz/repository"
	"github.com/mcdev12/quizarena/go/internal/quiz/reward"
)

type Services struct {
	Store        repository.Store
	Gateway      *gateway.Service
	Orchestrator *orchestrator.Orchestrator
	Outbox       *outbox.Worker

	closers []func()
}

// Close releases everything setupServices opened, newest first.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Outbox/Reward → Gateway → Orchestrator

	orchConfig, err := config.orchestratorConfig()
	if err != nil {
		return nil, err
	}

	s := &Services{}
	clock := clockwork.NewRealClock()

	store, err := setupStore(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Store = store

	publisher, err := setupPublisher(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Outbox = outbox.NewWorker(publisher, outbox.DefaultConfig())
	if err := s.Outbox.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start outbox worker: %w", err)
	}
	s.closers = append(s.closers, func() {
		if err := s.Outbox.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to stop outbox worker")
		}
	})

	s.Gateway = gateway.NewService(gateway.DefaultConfig(), clock)
	s.Orchestrator = orchestrator.NewOrchestrator(
		s.Store,
		s.Gateway.ConnectionManager(),
		setupAwarder(),
		s.Outbox,
		clock,
		orchConfig,
	)
	s.closers = append(s.closers, s.Orchestrator.Close)
	s.Gateway.Attach(s.Orchestrator, gateway.NewRoomStateProvider(s.Orchestrator, clock))

	return s, nil
}

// setupStore picks the storage backend from STORAGE and optionally fronts
// room reads with Redis when REDIS_ADDR is set.
func setupStore(ctx context.Context, s *Services) (repository.Store, error) {
	var store repository.Store

	switch kind := getEnv("STORAGE", "postgres"); kind {
	case "memory":
		path := getEnv("QUESTIONS_FILE", "questions.yaml")
		questions, err := repository.LoadQuestionsFile(path)
		if err != nil {
			return nil, err
		}
		store = repository.NewMemoryStore(questions).WithShuffle()
		log.Info().Str("questions_file", path).Int("questions", len(questions)).Msg("using in-memory store")
	case "postgres":
		database, err := setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { closeDatabase(database) })

		pg := repository.NewPostgresStore(database)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		if path := getEnv("QUESTIONS_FILE", ""); path != "" {
			if err := loadQuestionBank(ctx, pg, path); err != nil {
				return nil, err
			}
		}
		store = pg
	default:
		return nil, fmt.Errorf("unknown STORAGE %q (want postgres or memory)", kind)
	}

	addr := getEnv("REDIS_ADDR", "")
	if addr == "" {
		return store, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	s.closers = append(s.closers, func() { rdb.Close() })

	ttl := time.Duration(getEnvAsInt("REDIS_ROOM_TTL_MIN", 0)) * time.Minute
	log.Info().Str("addr", addr).Msg("room cache enabled")
	return repository.WithRoomCache(store, rdb, ttl), nil
}

// loadQuestionBank upserts the questions in path into Postgres.
func loadQuestionBank(ctx context.Context, pg *repository.PostgresStore, path string) error {
	questions, err := repository.LoadQuestionsFile(path)
	if err != nil {
		return err
	}
	for _, q := range questions {
		if err := pg.InsertQuestion(ctx, q); err != nil {
			return err
		}
	}
	log.Info().Str("questions_file", path).Int("questions", len(questions)).Msg("question bank loaded")
	return nil
}

func closeDatabase(database *sql.DB) {
	if err := database.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

// setupPublisher connects to JetStream when NATS_URL is set. Without it,
// lifecycle events are dropped after the outbox worker counts them.
func setupPublisher(s *Services) (outbox.EventPublisher, error) {
	url := getEnv("NATS_URL", "")
	if url == "" {
		log.Warn().Msg("NATS_URL not set, lifecycle events will not be published")
		return outbox.NoOpPublisher{}, nil
	}

	cfg := outbox.DefaultJetStreamConfig()
	cfg.URL = url
	cfg.StreamName = getEnv("NATS_STREAM", cfg.StreamName)
	cfg.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.SubjectPrefix)

	publisher, err := outbox.NewJetStreamPublisher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
	}
	s.closers = append(s.closers, func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close JetStream publisher")
		}
	})
	return outbox.NewMetricPublisher(publisher), nil
}

func setupAwarder() reward.Awarder {
	url := getEnv("REWARD_API_URL", "")
	if url == "" {
		log.Warn().Msg("REWARD_API_URL not set, winners will not be paid out")
		return reward.NoOpAwarder{}
	}
	return reward.NewHTTPAwarder(url, getEnv("REWARD_API_KEY", ""))
}
