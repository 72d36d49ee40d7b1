package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionnaireLoader fetches canned questionnaires from a backing store (files, Postgres).
type QuestionnaireLoader interface {
	LoadQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error)
}

// QuestionnaireRepository caches questionnaires in Redis (hash per questionnaire) and
// falls back to a loader on cache miss.
// Stored as: HSET questionnaire:{name} title {title} questions {json}
type QuestionnaireRepository struct {
	client *redis.Client
	loader QuestionnaireLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionnaireRepository(client *redis.Client, loader QuestionnaireLoader, ttl time.Duration) *QuestionnaireRepository {
	return &QuestionnaireRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionnaireRepository) GetQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error) {
	key := r.key(name)
	if q, ok := r.cached(ctx, key, name); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(name, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if q, ok := r.cached(ctx, key, name); ok {
			return q, nil
		}

		q, err := r.loader.LoadQuestionnaire(ctx, name)
		if err != nil {
			return domain.Questionnaire{}, err
		}

		raw, err := json.Marshal(q.Questions)
		if err != nil {
			return domain.Questionnaire{}, err
		}
		pipe := r.client.Pipeline()
		pipe.HSet(ctx, key, "title", q.Title, "questions", string(raw))
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// The cache is an optimization; a failed write only costs a reload.
		_, _ = pipe.Exec(ctx)

		return q, nil
	})
	if err != nil {
		return domain.Questionnaire{}, err
	}
	return result.(domain.Questionnaire), nil
}

func (r *QuestionnaireRepository) cached(ctx context.Context, key, name string) (domain.Questionnaire, bool) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil || fields["questions"] == "" {
		return domain.Questionnaire{}, false
	}
	var questions []domain.Question
	if err := json.Unmarshal([]byte(fields["questions"]), &questions); err != nil {
		return domain.Questionnaire{}, false
	}
	return domain.Questionnaire{Name: name, Title: fields["title"], Questions: questions}, true
}

func (r *QuestionnaireRepository) key(name string) string {
	return "questionnaire:" + name
}

func (r *QuestionnaireRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
