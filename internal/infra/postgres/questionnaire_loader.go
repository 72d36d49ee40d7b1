package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"live-quiz-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionnaireLoader loads questionnaire JSONB from Postgres.
type QuestionnaireLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionnaireLoader(pool *pgxpool.Pool) *QuestionnaireLoader {
	return &QuestionnaireLoader{pool: pool}
}

func (l *QuestionnaireLoader) LoadQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM questionnaires WHERE id=$1`, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Questionnaire{}, fmt.Errorf("%w: questionnaire %q", domain.ErrNotFound, name)
	}
	if err != nil {
		return domain.Questionnaire{}, fmt.Errorf("%w: load questionnaire: %v", domain.ErrBackendUnavailable, err)
	}
	title, questions, err := domain.ParseQuestionnaire(raw)
	if err != nil {
		return domain.Questionnaire{}, fmt.Errorf("questionnaire %q: %w", name, err)
	}
	return domain.Questionnaire{Name: name, Title: title, Questions: questions}, nil
}

// SaveQuestionnaire stores or replaces a questionnaire under its name.
func (l *QuestionnaireLoader) SaveQuestionnaire(ctx context.Context, q domain.Questionnaire) error {
	data, err := json.Marshal(struct {
		Title     string            `json:"title"`
		Questions []domain.Question `json:"questions"`
	}{q.Title, q.Questions})
	if err != nil {
		return fmt.Errorf("marshal questionnaire: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO questionnaires (id, data) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
		q.Name, string(data))
	if err != nil {
		return fmt.Errorf("%w: save questionnaire: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}
