package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

// Participation contains the student-side use cases.
type Participation struct {
	store  docstore.Store
	logger *slog.Logger
}

func NewParticipation(store docstore.Store, logger *slog.Logger) *Participation {
	return &Participation{store: store, logger: loggerOrDefault(logger)}
}

// ValidCode reports whether code is exactly four digits.
func ValidCode(code string) bool {
	if len(code) != 4 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Join enrolls name in the active session with the given code. Ended sessions do not match.
func (p *Participation) Join(ctx context.Context, code, name string) (domain.Session, domain.Student, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if !ValidCode(code) {
		return domain.Session{}, domain.Student{}, fmt.Errorf("%w: the code must be 4 digits", domain.ErrValidation)
	}
	if name == "" {
		return domain.Session{}, domain.Student{}, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}

	docs, err := p.store.Query(ctx, docstore.Where(docstore.Sessions,
		docstore.Eq("code", code),
		docstore.Eq("active", true),
	).Take(1))
	if err != nil {
		return domain.Session{}, domain.Student{}, storeErr("find session", err)
	}
	if len(docs) == 0 {
		return domain.Session{}, domain.Student{}, fmt.Errorf("%w: no active session with code %s", domain.ErrNotFound, code)
	}
	session, err := decodeSession(docs[0])
	if err != nil {
		return domain.Session{}, domain.Student{}, err
	}

	id, err := p.store.Create(ctx, docstore.Students, docstore.Fields{
		"sessionId": session.ID,
		"name":      name,
		"joinedAt":  docstore.ServerTimestamp,
	})
	if err != nil {
		return domain.Session{}, domain.Student{}, storeErr("create student", err)
	}
	doc, err := p.store.Get(ctx, docstore.Students, id)
	if err != nil {
		return domain.Session{}, domain.Student{}, storeErr("student "+id, err)
	}
	student, err := decodeStudent(doc)
	if err != nil {
		return domain.Session{}, domain.Student{}, err
	}
	p.logger.Info("student joined", "session_id", session.ID, "student_id", id)
	return session, student, nil
}

// Submit records the student's answer to question questionIndex of session. The answer
// document id is derived from (session, student, question) so a resubmission, even a
// concurrent one, overwrites the same document.
func (p *Participation) Submit(ctx context.Context, session domain.Session, studentID string, questionIndex int, value domain.AnswerValue) (domain.Answer, error) {
	if studentID == "" {
		return domain.Answer{}, fmt.Errorf("%w: not joined", domain.ErrValidation)
	}
	if questionIndex < 0 || questionIndex >= len(session.Questions) {
		return domain.Answer{}, fmt.Errorf("%w: question %d does not exist", domain.ErrValidation, questionIndex+1)
	}
	value, err := domain.ValidateAnswer(session.Questions[questionIndex], value)
	if err != nil {
		return domain.Answer{}, err
	}

	id := domain.AnswerKey(session.ID, studentID, questionIndex)
	err = p.store.Upsert(ctx, docstore.Answers, id, docstore.Fields{
		"sessionId":     session.ID,
		"studentId":     studentID,
		"questionIndex": questionIndex,
		"value":         value,
		"submittedAt":   docstore.ServerTimestamp,
	})
	if err != nil {
		return domain.Answer{}, storeErr("save answer", err)
	}
	doc, err := p.store.Get(ctx, docstore.Answers, id)
	if err != nil {
		return domain.Answer{}, storeErr("answer "+id, err)
	}
	return decodeAnswer(doc)
}

// Existing returns the answer the student already gave to a question, if any.
func (p *Participation) Existing(ctx context.Context, sessionID, studentID string, questionIndex int) (domain.Answer, bool, error) {
	doc, err := p.store.Get(ctx, docstore.Answers, domain.AnswerKey(sessionID, studentID, questionIndex))
	switch {
	case err == nil:
		a, err := decodeAnswer(doc)
		return a, err == nil, err
	case !errors.Is(err, docstore.ErrNotFound):
		return domain.Answer{}, false, storeErr("find answer", err)
	}

	// Answers imported from elsewhere may not use the derived id.
	docs, err := p.store.Query(ctx, docstore.Where(docstore.Answers,
		docstore.Eq("sessionId", sessionID),
		docstore.Eq("studentId", studentID),
		docstore.Eq("questionIndex", questionIndex),
	).Take(1))
	if err != nil {
		return domain.Answer{}, false, storeErr("find answer", err)
	}
	if len(docs) == 0 {
		return domain.Answer{}, false, nil
	}
	a, err := decodeAnswer(docs[0])
	return a, err == nil, err
}
