package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/filesystem"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backend is the storage wiring shared by every command.
type backend struct {
	store          docstore.Store
	redis          *redis.Client
	pool           *pgxpool.Pool
	questionnaires app.QuestionnaireRepository
	stateFor       func(clientID string) app.LocalState
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			b.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
	}

	store, err := b.openStore(ctx, cfg.Backend(), logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("open %s document store: %w", cfg.Backend(), err)
	}
	b.store = store
	logger.Info("document store ready", "backend", cfg.Backend())

	loader := b.questionnaireLoader(cfg, logger)
	ttl := config.TTLDuration(cfg.Quiz.QuestionnaireTTL, 10*time.Minute)
	stateTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)
	if b.redis != nil {
		b.questionnaires = infraredis.NewQuestionnaireRepository(b.redis, loader, ttl)
		states := infraredis.NewLocalStates(b.redis, stateTTL)
		b.stateFor = func(id string) app.LocalState { return states.For(id) }
	} else {
		b.questionnaires = memory.NewQuestionnaireRepository(loader, ttl)
		states := memory.NewLocalStates()
		b.stateFor = func(id string) app.LocalState { return states.For(id) }
	}
	return b, nil
}

func (b *backend) openStore(ctx context.Context, kind string, logger *slog.Logger) (docstore.Store, error) {
	switch kind {
	case config.BackendRedis:
		s, err := infraredis.NewDocumentStore(ctx, b.redis, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.NewDocumentStore(ctx, b.pool, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return memory.NewDocumentStore(), nil
	}
}

// questionnaireLoader looks in Postgres first, then the questionnaire directory, then the
// built-in sample.
func (b *backend) questionnaireLoader(cfg config.Config, logger *slog.Logger) memory.QuestionnaireLoader {
	var chain loaderChain
	if b.pool != nil {
		chain = append(chain, postgres.NewQuestionnaireLoader(b.pool))
	}
	if dir := cfg.Quiz.QuestionnaireDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			chain = append(chain, filesystem.NewQuestionnaireLoader(dir))
		} else {
			logger.Warn("questionnaire directory unavailable", "dir", dir, "error", err)
		}
	}
	return append(chain, memory.NewStaticQuestionnaireLoader(sampleQuestionnaires()))
}

func (b *backend) Close() {
	if b.store != nil {
		_ = b.store.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

// loaderChain asks each loader in turn until one knows the questionnaire.
type loaderChain []memory.QuestionnaireLoader

func (c loaderChain) LoadQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error) {
	for _, l := range c {
		q, err := l.LoadQuestionnaire(ctx, name)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return q, err
	}
	return domain.Questionnaire{}, fmt.Errorf("%w: questionnaire %q", domain.ErrNotFound, name)
}

func sampleQuestionnaires() map[string]domain.Questionnaire {
	return map[string]domain.Questionnaire{
		"sample": {Name: "sample", Title: "Sample quiz", Questions: domain.DefaultQuestions()},
	}
}
