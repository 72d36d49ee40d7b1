package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

// Keys of the records a device keeps in its local state.
const (
	StudentRecordKey = "studentSession"
	TeacherRecordKey = "teacherSession"
)

// LocalState is durable per-device storage that survives a reload.
type LocalState interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
}

// IdentityProvider signs the device in anonymously; repeated calls return the same id.
type IdentityProvider interface {
	SignInAnonymously(ctx context.Context) (string, error)
}

// QuestionnaireRepository loads canned question sets (from cache/backing store).
type QuestionnaireRepository interface {
	GetQuestionnaire(ctx context.Context, name string) (domain.Questionnaire, error)
}

// storeErr maps document store failures onto the domain taxonomy.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	default:
		return fmt.Errorf("%w: %s: %v", domain.ErrBackendUnavailable, op, err)
	}
}

func signIn(ctx context.Context, ids IdentityProvider) (string, error) {
	uid, err := ids.SignInAnonymously(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermission) || errors.Is(err, domain.ErrBackendUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: sign in: %v", domain.ErrBackendUnavailable, err)
	}
	return uid, nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
