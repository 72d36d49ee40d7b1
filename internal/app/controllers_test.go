package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/identity"
	"live-quiz-service/internal/infra/memory"
)

func waitFor[T any](t *testing.T, ch <-chan T, what string, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
			var zero T
			return zero
		}
	}
}

func (h *harness) teacher(t *testing.T, uid string) (*app.TeacherController, *memory.LocalState) {
	t.Helper()
	local := memory.NewLocalState()
	c := app.NewTeacherController(h.sessions, h.store, local, identity.Static(uid), h.logger)
	t.Cleanup(c.Close)
	return c, local
}

func (h *harness) student(t *testing.T, local *memory.LocalState) *app.StudentController {
	t.Helper()
	if local == nil {
		local = memory.NewLocalState()
	}
	c := app.NewStudentController(h.participation, h.store, local, h.logger)
	t.Cleanup(c.Close)
	return c
}

func run(t *testing.T, runner interface{ Run(context.Context) error }) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	return done
}

func TestGeographyScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	teacher, _ := h.teacher(t, "teacher-1")

	session, err := teacher.CreateSession(ctx, app.NewSession{
		Title: "Geography",
		Questions: []domain.Question{{
			Type: domain.QuestionMultipleChoice, Text: "Capital of France?",
			Options: []string{"Paris", "Berlin"}, CorrectOptionIndex: intPtr(0),
		}},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	student := h.student(t, nil)
	view, err := student.Join(ctx, session.Code, "Alice")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if view.Phase != app.PhaseAnswering || view.Question == nil || view.Question.Text != "Capital of France?" {
		t.Fatalf("expected first question open, got %+v", view)
	}
	if _, err := student.Submit(ctx, domain.OptionAnswer(0)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := teacher.End(ctx); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	rep, err := h.reports.Report(ctx, session.ID)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if rep.Stats.CorrectCount != 1 || rep.Stats.GradedAnswerCount != 1 || rep.Stats.ParticipationPercent != 100 {
		t.Fatalf("expected 1/1 correct at 100%%, got %+v", rep.Stats)
	}
	if rep.Questions[0].MostCommon == nil || rep.Questions[0].MostCommon.Display != "A. Paris" {
		t.Fatalf("expected most common A. Paris, got %+v", rep.Questions[0].MostCommon)
	}
}

func TestStudentFollowsQuestionPointer(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	teacher, _ := h.teacher(t, "teacher-1")
	session, _ := teacher.CreateSession(ctx, app.NewSession{Questions: twoQuestions()})

	student := h.student(t, nil)
	if _, err := student.Join(ctx, session.Code, "Alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	run(t, student)

	if _, err := student.Submit(ctx, domain.OptionAnswer(1)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if moved, err := teacher.Next(ctx); err != nil || !moved {
		t.Fatalf("next failed: %v %v", moved, err)
	}
	view := waitFor(t, student.Updates(), "question 2", func(v app.StudentView) bool {
		return v.Phase == app.PhaseAnswering && v.QuestionIndex == 1
	})
	if view.Selection != nil || view.Submitted {
		t.Fatalf("expected selection reset on a new question, got %+v", view)
	}

	if moved, err := teacher.Previous(ctx); err != nil || !moved {
		t.Fatalf("previous failed: %v %v", moved, err)
	}
	view = waitFor(t, student.Updates(), "question 1 again", func(v app.StudentView) bool {
		return v.Phase == app.PhaseAnswering && v.QuestionIndex == 0
	})
	if view.Selection == nil || !view.Submitted {
		t.Fatalf("expected the earlier answer to be restored, got %+v", view)
	}
	if idx, _ := view.Selection.Option(); idx != 1 {
		t.Fatalf("expected option 1 restored, got %v", view.Selection)
	}

	reopened := student.ChangeAnswer()
	if reopened.Submitted || reopened.Selection == nil {
		t.Fatalf("expected answer re-opened with selection kept, got %+v", reopened)
	}
}

func TestStudentSeesSessionEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	teacher, _ := h.teacher(t, "teacher-1")
	session, _ := teacher.CreateSession(ctx, app.NewSession{Questions: twoQuestions()})

	local := memory.NewLocalState()
	student := h.student(t, local)
	if _, err := student.Join(ctx, session.Code, "Alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	run(t, student)

	if _, err := teacher.End(ctx); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	waitFor(t, student.Updates(), "ended phase", func(v app.StudentView) bool { return v.Phase == app.PhaseEnded })

	var rec domain.StudentRecord
	if ok, _ := local.Load(ctx, app.StudentRecordKey, &rec); ok {
		t.Fatalf("expected local record cleared, got %+v", rec)
	}
	if _, err := student.Submit(ctx, domain.OptionAnswer(0)); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected session ended, got %v", err)
	}
}

func TestStudentKicked(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	teacher, _ := h.teacher(t, "teacher-1")
	session, _ := teacher.CreateSession(ctx, app.NewSession{Questions: twoQuestions()})

	student := h.student(t, nil)
	view, err := student.Join(ctx, session.Code, "Alice")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	run(t, student)

	if err := teacher.Kick(ctx, view.StudentID); err != nil {
		t.Fatalf("kick failed: %v", err)
	}
	waitFor(t, student.Updates(), "kicked phase", func(v app.StudentView) bool { return v.Phase == app.PhaseKicked })
}

func TestStudentResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	teacher, _ := h.teacher(t, "teacher-1")
	session, _ := teacher.CreateSession(ctx, app.NewSession{Questions: twoQuestions()})

	local := memory.NewLocalState()
	first := h.student(t, local)
	joined, err := first.Join(ctx, session.Code, "Alice")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	first.Close()

	// A reload builds a new controller over the same device state.
	reloaded := h.student(t, local)
	view, err := reloaded.Resume(ctx)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if view.StudentID != joined.StudentID || view.Phase != app.PhaseAnswering {
		t.Fatalf("expected to resume as %s, got %+v", joined.StudentID, view)
	}
	reloaded.Close()

	if _, err := teacher.End(ctx); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	again := h.student(t, local)
	view, err = again.Resume(ctx)
	if !errors.Is(err, domain.ErrNotFound) || view.Phase != app.PhaseUnjoined {
		t.Fatalf("expected resume of ended session to fail, got %+v %v", view, err)
	}
	var rec domain.StudentRecord
	if ok, _ := local.Load(ctx, app.StudentRecordKey, &rec); ok {
		t.Fatalf("expected stale record discarded")
	}
}

func TestStudentLeaveKeepsStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, _ := h.sessions.Create(ctx, "teacher-1", app.NewSession{Questions: twoQuestions()})

	local := memory.NewLocalState()
	student := h.student(t, local)
	if _, err := student.Join(ctx, s.Code, "Alice"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := student.Leave(ctx); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if student.View().Phase != app.PhaseUnjoined {
		t.Fatalf("expected unjoined after leave")
	}
	var rec domain.StudentRecord
	if ok, _ := local.Load(ctx, app.StudentRecordKey, &rec); ok {
		t.Fatalf("expected record cleared")
	}
	if h.store.Len(docstore.Students) != 1 {
		t.Fatalf("leave must not delete the student document")
	}
}

func TestTeacherViewTracksStudentsAndAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	teacher, _ := h.teacher(t, "teacher-1")
	session, _ := teacher.CreateSession(ctx, app.NewSession{Questions: twoQuestions()})
	run(t, teacher)

	_, alice, _ := h.participation.Join(ctx, session.Code, "Alice")
	_, _, _ = h.participation.Join(ctx, session.Code, "Bob")
	if _, err := h.participation.Submit(ctx, session, alice.ID, 0, domain.OptionAnswer(0)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	view := waitFor(t, teacher.Updates(), "two students, one answer", func(v app.TeacherView) bool {
		return len(v.Students) == 2 && v.AnsweredCurrent == 1
	})
	if view.Students[0].Student.Name != "Alice" || !view.Students[0].AnsweredCurrent || view.Students[1].AnsweredCurrent {
		t.Fatalf("unexpected student rows %+v", view.Students)
	}

	answers := teacher.AnswersForCurrent()
	if len(answers) != 2 || answers[0].Display != "A. Paris" || answers[1].Answered {
		t.Fatalf("unexpected current answers %+v", answers)
	}
}

func TestTeacherResumeAndDeletion(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	teacher, local := h.teacher(t, "teacher-1")
	session, _ := teacher.CreateSession(ctx, app.NewSession{Questions: twoQuestions()})
	teacher.Close()

	resumed := app.NewTeacherController(h.sessions, h.store, local, identity.Static("teacher-1"), h.logger)
	t.Cleanup(resumed.Close)
	got, err := resumed.Resume(ctx)
	if err != nil || got.ID != session.ID {
		t.Fatalf("expected resume of %s, got %+v %v", session.ID, got, err)
	}
	done := run(t, resumed)

	if err := h.sessions.Delete(ctx, session.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found after deletion, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop after the session was deleted")
	}
	var rec domain.TeacherRecord
	if ok, _ := local.Load(ctx, app.TeacherRecordKey, &rec); ok {
		t.Fatalf("expected teacher record cleared")
	}
}

func TestTeacherCannotOpenForeignSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	s, _ := h.sessions.Create(ctx, "teacher-1", app.NewSession{Questions: twoQuestions()})
	intruder, _ := h.teacher(t, "teacher-2")
	if _, err := intruder.Open(ctx, s.ID); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}
