package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"live-quiz-service/internal/domain"

	"golang.org/x/sync/singleflight"
)

// QuestionnaireLoader fetches canned questionnaires from a backing store (files, Postgres).
type QuestionnaireLoader interface {
	LoadQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error)
}

// QuestionnaireRepository caches questionnaires with TTL to avoid repeated loads.
type QuestionnaireRepository struct {
	loader QuestionnaireLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedQuestionnaire
}

type cachedQuestionnaire struct {
	questionnaire domain.Questionnaire
	expiresAt     time.Time
}

func NewQuestionnaireRepository(loader QuestionnaireLoader, ttl time.Duration) *QuestionnaireRepository {
	return &QuestionnaireRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestionnaire),
	}
}

func (r *QuestionnaireRepository) GetQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error) {
	if q, ok := r.cached(name, r.clock()); ok {
		return q, nil
	}

	result, err, _ := r.sf.Do(name, func() (interface{}, error) {
		now := r.clock()
		if q, ok := r.cached(name, now); ok {
			return q, nil
		}

		q, err := r.loader.LoadQuestionnaire(ctx, name)
		if err != nil {
			return domain.Questionnaire{}, err
		}

		r.mu.Lock()
		r.cache[name] = cachedQuestionnaire{
			questionnaire: q,
			expiresAt:     now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return q, nil
	})
	if err != nil {
		return domain.Questionnaire{}, err
	}
	return result.(domain.Questionnaire), nil
}

func (r *QuestionnaireRepository) cached(name string, now time.Time) (domain.Questionnaire, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[name]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Questionnaire{}, false
	}
	return entry.questionnaire, true
}

// StaticQuestionnaireLoader serves questionnaires from a map (built-in samples, tests).
type StaticQuestionnaireLoader struct {
	questionnaires map[string]domain.Questionnaire
}

func NewStaticQuestionnaireLoader(questionnaires map[string]domain.Questionnaire) *StaticQuestionnaireLoader {
	return &StaticQuestionnaireLoader{questionnaires: questionnaires}
}

func (l *StaticQuestionnaireLoader) LoadQuestionnaire(_ context.Context, name string) (domain.Questionnaire, error) {
	if q, ok := l.questionnaires[name]; ok {
		q.Name = name
		q.Questions = domain.NormalizeQuestions(q.Questions)
		return q, nil
	}
	return domain.Questionnaire{}, domain.ErrNotFound
}

func (r *QuestionnaireRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
