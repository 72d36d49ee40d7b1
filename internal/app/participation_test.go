package app_test

import (
	"context"
	"errors"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, _ := h.sessions.Create(ctx, "teacher-1", app.NewSession{Questions: twoQuestions()})

	cases := []struct {
		code, name string
		want       error
	}{
		{"12a4", "Alice", domain.ErrValidation},
		{"123", "Alice", domain.ErrValidation},
		{s.Code, "   ", domain.ErrValidation},
	}
	for _, tc := range cases {
		if _, _, err := h.participation.Join(ctx, tc.code, tc.name); !errors.Is(err, tc.want) {
			t.Fatalf("join(%q, %q): expected %v, got %v", tc.code, tc.name, tc.want, err)
		}
	}

	unknown := "1000"
	if s.Code == unknown {
		unknown = "9999"
	}
	if _, _, err := h.participation.Join(ctx, unknown, "Alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}

	session, student, err := h.participation.Join(ctx, " "+s.Code+" ", " Alice ")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if session.ID != s.ID || student.SessionID != s.ID || student.Name != "Alice" || student.JoinedAt.IsZero() {
		t.Fatalf("unexpected join result %+v %+v", session, student)
	}
}

func TestResubmissionKeepsOneAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, _ := h.sessions.Create(ctx, "teacher-1", app.NewSession{Questions: twoQuestions()})
	_, st, _ := h.participation.Join(ctx, s.Code, "Alice")

	first, err := h.participation.Submit(ctx, s, st.ID, 0, domain.OptionAnswer(0))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	second, err := h.participation.Submit(ctx, s, st.ID, 0, domain.OptionAnswer(1))
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if h.store.Len(docstore.Answers) != 1 {
		t.Fatalf("expected exactly one answer, got %d", h.store.Len(docstore.Answers))
	}
	if second.ID != first.ID || second.SubmittedAt.Before(first.SubmittedAt) {
		t.Fatalf("expected same answer with refreshed timestamp, got %+v then %+v", first, second)
	}

	got, ok, err := h.participation.Existing(ctx, s.ID, st.ID, 0)
	if err != nil || !ok {
		t.Fatalf("expected existing answer, got %v %v", ok, err)
	}
	if idx, _ := got.Value.Option(); idx != 1 {
		t.Fatalf("expected second value to win, got %v", got.Value)
	}
	if _, ok, _ := h.participation.Existing(ctx, s.ID, st.ID, 1); ok {
		t.Fatalf("expected no answer to question 2")
	}
}

func TestSubmitValidatesAgainstQuestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, _ := h.sessions.Create(ctx, "teacher-1", app.NewSession{Questions: twoQuestions()})
	_, st, _ := h.participation.Join(ctx, s.Code, "Alice")

	for _, tc := range []struct {
		idx   int
		value domain.AnswerValue
	}{
		{0, domain.OptionAnswer(5)},
		{0, domain.TextAnswer("Paris")},
		{1, domain.TextAnswer("   ")},
		{2, domain.TextAnswer("out of range")},
	} {
		if _, err := h.participation.Submit(ctx, s, st.ID, tc.idx, tc.value); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("submit(%d, %v): expected validation error, got %v", tc.idx, tc.value, err)
		}
	}
	if h.store.Len(docstore.Answers) != 0 {
		t.Fatalf("rejected answers must not be stored")
	}

	a, err := h.participation.Submit(ctx, s, st.ID, 1, domain.TextAnswer("  because  "))
	if err != nil || a.Value.Text() != "because" {
		t.Fatalf("expected trimmed text answer, got %+v %v", a, err)
	}
}
