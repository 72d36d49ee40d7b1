package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"

	"golang.org/x/sync/errgroup"
)

// DefaultTitle is used when a session is created without a title.
const DefaultTitle = "Quiz session"

// Step moves the question pointer.
type Step int

const (
	Previous Step = -1
	Next     Step = 1
)

// NewSession describes a session to create. Questions win over QuestionsJSON, which wins
// over Questionnaire; with none of them the default question is used.
type NewSession struct {
	Title         string
	Questions     []domain.Question
	QuestionsJSON string
	Questionnaire string
}

// Sessions contains the teacher-side session use cases.
type Sessions struct {
	store          docstore.Store
	codes          *CodeGenerator
	questionnaires QuestionnaireRepository
	logger         *slog.Logger
	now            func() time.Time
}

// NewSessions wires the session service. questionnaires may be nil when no canned sets
// are configured.
func NewSessions(store docstore.Store, codes *CodeGenerator, questionnaires QuestionnaireRepository, logger *slog.Logger) *Sessions {
	return &Sessions{store: store, codes: codes, questionnaires: questionnaires, logger: loggerOrDefault(logger), now: time.Now}
}

// Create persists a new active session owned by actorID with its pointer on the first
// question.
func (s *Sessions) Create(ctx context.Context, actorID string, req NewSession) (domain.Session, error) {
	if actorID == "" {
		return domain.Session{}, fmt.Errorf("%w: anonymous sign-in required", domain.ErrPermission)
	}
	title := strings.TrimSpace(req.Title)

	questions, qTitle, err := s.resolveQuestions(ctx, req)
	if err != nil {
		return domain.Session{}, err
	}
	if title == "" {
		title = qTitle
	}
	if title == "" {
		title = DefaultTitle
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return domain.Session{}, err
	}

	id, err := s.store.Create(ctx, docstore.Sessions, docstore.Fields{
		"code":                 code,
		"title":                title,
		"teacherOwnerId":       actorID,
		"questions":            questions,
		"currentQuestionIndex": 0,
		"active":               true,
		"createdAt":            docstore.ServerTimestamp,
	})
	if err != nil {
		return domain.Session{}, storeErr("create session", err)
	}
	s.logger.Info("session created", "session_id", id, "code", code, "questions", len(questions))
	return s.Get(ctx, id)
}

func (s *Sessions) resolveQuestions(ctx context.Context, req NewSession) ([]domain.Question, string, error) {
	switch {
	case len(req.Questions) > 0:
		return domain.NormalizeQuestions(req.Questions), "", nil
	case strings.TrimSpace(req.QuestionsJSON) != "":
		questions, err := domain.ParseQuestions([]byte(req.QuestionsJSON))
		if err != nil || len(questions) == 0 {
			s.logger.Warn("question list rejected, using default question", "error", err)
			return domain.DefaultQuestions(), "", nil
		}
		return questions, "", nil
	case req.Questionnaire != "":
		if s.questionnaires == nil {
			return nil, "", fmt.Errorf("%w: questionnaire %q", domain.ErrNotFound, req.Questionnaire)
		}
		q, err := s.questionnaires.GetQuestionnaire(ctx, req.Questionnaire)
		if err != nil {
			return nil, "", err
		}
		return domain.NormalizeQuestions(q.Questions), q.Title, nil
	default:
		return domain.DefaultQuestions(), "", nil
	}
}

// Get loads a session by id.
func (s *Sessions) Get(ctx context.Context, id string) (domain.Session, error) {
	return getSession(ctx, s.store, id)
}

// Advance moves the pointer of session by one step. At either end of the question list it
// is a no-op and reports false without writing.
func (s *Sessions) Advance(ctx context.Context, actorID string, session domain.Session, step Step) (domain.Session, bool, error) {
	if session.TeacherOwnerID != actorID {
		return session, false, fmt.Errorf("%w: only the owner can move the question", domain.ErrPermission)
	}
	if !session.Active {
		return session, false, domain.ErrSessionEnded
	}
	target := session.CurrentQuestionIndex + int(step)
	if target < 0 || target >= len(session.Questions) {
		return session, false, nil
	}

	// The stamp is returned so callers can tell older snapshots of the session apart.
	updatedAt := s.now().UTC()
	err := s.store.Update(ctx, docstore.Sessions, session.ID, docstore.Fields{
		"currentQuestionIndex": target,
		"updatedAt":            updatedAt.Format(docstore.TimeLayout),
	})
	if err != nil {
		return session, false, storeErr("advance session", err)
	}
	session.CurrentQuestionIndex = target
	session.UpdatedAt = &updatedAt
	return session, true, nil
}

// End deactivates a session. Ending is irreversible; ending an ended session does nothing.
// Students and answers are kept for reporting.
func (s *Sessions) End(ctx context.Context, actorID, id string) (domain.Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.TeacherOwnerID != actorID {
		return session, fmt.Errorf("%w: only the owner can end the session", domain.ErrPermission)
	}
	if !session.Active {
		return session, nil
	}
	err = s.store.Update(ctx, docstore.Sessions, id, docstore.Fields{
		"active":  false,
		"endedAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return session, storeErr("end session", err)
	}
	s.logger.Info("session ended", "session_id", id)
	return s.Get(ctx, id)
}

// Delete removes a session and then its students and answers. Nothing is rolled back: a
// failure part way leaves orphans for the Sweeper and returns ErrDeleteFailed.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, docstore.Sessions, id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeleteFailed, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range []string{docstore.Students, docstore.Answers} {
		g.Go(func() error {
			return deleteWhere(gctx, s.store, docstore.Where(collection, docstore.Eq("sessionId", id)))
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("cascading delete incomplete", "session_id", id, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrDeleteFailed, err)
	}
	s.logger.Info("session deleted", "session_id", id)
	return nil
}

// Kick removes one student from a live session. Their answers stay.
func (s *Sessions) Kick(ctx context.Context, actorID, sessionID, studentID string) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.TeacherOwnerID != actorID {
		return fmt.Errorf("%w: only the owner can remove students", domain.ErrPermission)
	}
	doc, err := s.store.Get(ctx, docstore.Students, studentID)
	if err != nil {
		return storeErr("student "+studentID, err)
	}
	student, err := decodeStudent(doc)
	if err != nil {
		return err
	}
	if student.SessionID != sessionID {
		return fmt.Errorf("%w: student %s is not in this session", domain.ErrNotFound, studentID)
	}
	if err := s.store.Delete(ctx, docstore.Students, studentID); err != nil {
		return storeErr("remove student", err)
	}
	s.logger.Info("student removed", "session_id", sessionID, "student_id", studentID)
	return nil
}

func deleteWhere(ctx context.Context, store docstore.Store, q docstore.Query) error {
	docs, err := store.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("list %s: %w", q.Collection, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, doc := range docs {
		id := doc.ID
		g.Go(func() error {
			if err := store.Delete(gctx, q.Collection, id); err != nil {
				return fmt.Errorf("delete %s/%s: %w", q.Collection, id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
