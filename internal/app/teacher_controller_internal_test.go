package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/identity"
	"live-quiz-service/internal/infra/memory"
)

func TestTeacherIgnoresSnapshotOlderThanItsOwnMove(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := NewSessions(store, NewCodeGenerator(store, DefaultCodeAttempts, logger), nil, logger)
	c := NewTeacherController(sessions, store, memory.NewLocalState(), identity.Static("teacher-1"), logger)
	defer c.Close()

	created, err := c.CreateSession(ctx, NewSession{Questions: []domain.Question{
		{Type: domain.QuestionOpenText, Text: "One"},
		{Type: domain.QuestionOpenText, Text: "Two"},
		{Type: domain.QuestionOpenText, Text: "Three"},
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if moved, err := c.Next(ctx); !moved || err != nil {
		t.Fatalf("next: %v %v", moved, err)
	}

	// The snapshot read before the move arrives late.
	c.mu.Lock()
	feedID := c.feed.id
	c.mu.Unlock()
	if err := c.apply(ctx, feedEvent{feed: feedID, event: domain.SessionChanged{Session: created, Exists: true}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := c.View().Session.CurrentQuestionIndex; got != 1 {
		t.Fatalf("stale snapshot rolled the pointer back to %d", got)
	}

	if moved, err := c.Next(ctx); !moved || err != nil {
		t.Fatalf("second next: %v %v", moved, err)
	}
	stored, err := sessions.Get(ctx, created.ID)
	if err != nil || stored.CurrentQuestionIndex != 2 {
		t.Fatalf("expected pointer on the third question, got %+v %v", stored, err)
	}
}
