package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestQuestionnaireRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionnaireLoader: NewStaticQuestionnaireLoader(map[string]domain.Questionnaire{
			"geography": sampleQuestionnaire(),
		}),
	}
	repo := NewQuestionnaireRepository(loader, time.Minute)

	q, err := repo.GetQuestionnaire(context.Background(), "geography")
	if err != nil {
		t.Fatalf("get questionnaire: %v", err)
	}
	if q.Name != "geography" || q.Questions[0].Number != 1 {
		t.Fatalf("expected normalized questionnaire, got %+v", q)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := repo.GetQuestionnaire(context.Background(), "geography"); err != nil {
		t.Fatalf("get questionnaire 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionnaireRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		QuestionnaireLoader: NewStaticQuestionnaireLoader(map[string]domain.Questionnaire{
			"geography": sampleQuestionnaire(),
		}),
	}
	repo := NewQuestionnaireRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuestionnaire(context.Background(), "geography")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuestionnaire(context.Background(), "geography")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after expiry, loader calls %d", loader.calls.Load())
	}
}

func TestQuestionnaireRepositoryUnknown(t *testing.T) {
	repo := NewQuestionnaireRepository(NewStaticQuestionnaireLoader(nil), time.Minute)
	if _, err := repo.GetQuestionnaire(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	QuestionnaireLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error) {
	l.calls.Add(1)
	return l.QuestionnaireLoader.LoadQuestionnaire(ctx, name)
}

func sampleQuestionnaire() domain.Questionnaire {
	correct := 0
	return domain.Questionnaire{
		Title: "Geography",
		Questions: []domain.Question{
			{
				Type:               domain.QuestionMultipleChoice,
				Text:               "What is the capital of France?",
				Options:            []string{"Paris", "Berlin"},
				CorrectOptionIndex: &correct,
			},
		},
	}
}
