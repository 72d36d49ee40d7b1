package app

import (
	"context"
	"fmt"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

func decodeSession(doc docstore.Document) (domain.Session, error) {
	var s domain.Session
	if err := doc.Decode(&s); err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", doc.ID, err)
	}
	s.ID = doc.ID
	return s, nil
}

func decodeStudent(doc docstore.Document) (domain.Student, error) {
	var st domain.Student
	if err := doc.Decode(&st); err != nil {
		return domain.Student{}, fmt.Errorf("decode student %s: %w", doc.ID, err)
	}
	st.ID = doc.ID
	return st, nil
}

func decodeAnswer(doc docstore.Document) (domain.Answer, error) {
	var a domain.Answer
	if err := doc.Decode(&a); err != nil {
		return domain.Answer{}, fmt.Errorf("decode answer %s: %w", doc.ID, err)
	}
	a.ID = doc.ID
	return a, nil
}

func decodeAll[T any](docs []docstore.Document, decode func(docstore.Document) (T, error)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// studentsQuery lists the students of a session in join order.
func studentsQuery(sessionID string) docstore.Query {
	return docstore.Where(docstore.Students, docstore.Eq("sessionId", sessionID)).Order("joinedAt", docstore.Asc)
}

// answersQuery lists the answers of a session in submission order.
func answersQuery(sessionID string) docstore.Query {
	return docstore.Where(docstore.Answers, docstore.Eq("sessionId", sessionID)).Order("submittedAt", docstore.Asc)
}

func getSession(ctx context.Context, store docstore.Store, id string) (domain.Session, error) {
	doc, err := store.Get(ctx, docstore.Sessions, id)
	if err != nil {
		return domain.Session{}, storeErr("session "+id, err)
	}
	return decodeSession(doc)
}

func listStudents(ctx context.Context, store docstore.Store, sessionID string) ([]domain.Student, error) {
	docs, err := store.Query(ctx, studentsQuery(sessionID))
	if err != nil {
		return nil, storeErr("list students", err)
	}
	return decodeAll(docs, decodeStudent)
}

func listAnswers(ctx context.Context, store docstore.Store, sessionID string) ([]domain.Answer, error) {
	docs, err := store.Query(ctx, answersQuery(sessionID))
	if err != nil {
		return nil, storeErr("list answers", err)
	}
	return decodeAll(docs, decodeAnswer)
}
