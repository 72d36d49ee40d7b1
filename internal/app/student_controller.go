package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

// Phase is where a student device is in the quiz.
type Phase string

const (
	PhaseUnjoined  Phase = "unjoined"
	PhaseWaiting   Phase = "waiting"
	PhaseAnswering Phase = "answering"
	PhaseEnded     Phase = "ended"
	PhaseKicked    Phase = "kicked"
)

// StudentView is what the student screen renders.
type StudentView struct {
	Phase         Phase               `json:"phase"`
	StudentID     string              `json:"studentId,omitempty"`
	SessionID     string              `json:"sessionId,omitempty"`
	Name          string              `json:"name,omitempty"`
	Title         string              `json:"title,omitempty"`
	Code          string              `json:"code,omitempty"`
	QuestionIndex int                 `json:"questionIndex"`
	QuestionCount int                 `json:"questionCount"`
	Question      *domain.Question    `json:"question,omitempty"`
	Selection     *domain.AnswerValue `json:"selection,omitempty"`
	Submitted     bool                `json:"submitted"`
	Err           error               `json:"-"`
}

// StudentController drives one student device through join, answering and leave, and
// owns the device's studentSession record.
type StudentController struct {
	participation *Participation
	store         docstore.Store
	local         LocalState
	logger        *slog.Logger

	events  chan feedEvent
	updates chan StudentView
	closed  chan struct{}

	mu        sync.Mutex
	feed      *feed
	feedSeq   uint64
	phase     Phase
	record    domain.StudentRecord
	session   domain.Session
	shown     int
	selection *domain.AnswerValue
	submitted bool
	closeOnce sync.Once
}

func NewStudentController(participation *Participation, store docstore.Store, local LocalState, logger *slog.Logger) *StudentController {
	return &StudentController{
		participation: participation,
		store:         store,
		local:         local,
		logger:        loggerOrDefault(logger),
		events:        make(chan feedEvent, 16),
		updates:       make(chan StudentView, 1),
		closed:        make(chan struct{}),
		phase:         PhaseUnjoined,
		shown:         -1,
	}
}

// Join enrolls the device in the active session with code and starts following it.
func (c *StudentController) Join(ctx context.Context, code, name string) (StudentView, error) {
	session, student, err := c.participation.Join(ctx, code, name)
	if err != nil {
		return c.View(), err
	}
	rec := domain.StudentRecord{StudentID: student.ID, SessionID: session.ID, Name: student.Name}
	if err := c.local.Save(ctx, StudentRecordKey, rec); err != nil {
		return c.View(), fmt.Errorf("%w: save student record: %v", domain.ErrBackendUnavailable, err)
	}
	if err := c.attach(ctx, rec, session); err != nil {
		return c.View(), err
	}
	return c.View(), nil
}

// Resume re-attaches using the device's studentSession record. The record is discarded
// when its session is gone or no longer active.
func (c *StudentController) Resume(ctx context.Context) (StudentView, error) {
	var rec domain.StudentRecord
	ok, err := c.local.Load(ctx, StudentRecordKey, &rec)
	if err != nil {
		return c.View(), fmt.Errorf("%w: load student record: %v", domain.ErrBackendUnavailable, err)
	}
	if !ok || rec.SessionID == "" || rec.StudentID == "" {
		return c.View(), fmt.Errorf("%w: no session to resume", domain.ErrNotFound)
	}

	session, err := getSession(ctx, c.store, rec.SessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return c.View(), err
	case session.Active:
		if err := c.attach(ctx, rec, session); err != nil {
			return c.View(), err
		}
		return c.View(), nil
	}

	c.clearRecord(ctx)
	c.mu.Lock()
	c.resetLocked(PhaseUnjoined)
	c.publishLocked(nil)
	c.mu.Unlock()
	return c.View(), fmt.Errorf("%w: the session has ended", domain.ErrNotFound)
}

func (c *StudentController) attach(ctx context.Context, rec domain.StudentRecord, session domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed != nil {
		c.feed.Close()
	}
	c.feedSeq++
	f := newFeed(c.feedSeq, c.store, c.events)
	if err := f.watchSession(session.ID); err != nil {
		f.Close()
		c.feed = nil
		return err
	}
	if err := f.watchStudent(rec.StudentID); err != nil {
		f.Close()
		c.feed = nil
		return err
	}
	c.feed = f
	c.record = rec
	c.shown = -1
	c.phase = PhaseWaiting
	c.applySessionLocked(ctx, session)
	c.publishLocked(nil)
	return nil
}

// Run applies store changes until ctx is done or the controller is closed.
func (c *StudentController) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case ev := <-c.events:
			c.apply(ctx, ev)
		}
	}
}

func (c *StudentController) apply(ctx context.Context, ev feedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed == nil || ev.feed != c.feed.id {
		return
	}

	switch e := ev.event.(type) {
	case domain.SessionChanged:
		if !e.Exists || !e.Session.Active {
			c.logger.Info("session closed for student", "session_id", c.record.SessionID, "deleted", !e.Exists)
			c.finishLocked(ctx, PhaseEnded)
			break
		}
		c.applySessionLocked(ctx, e.Session)
	case domain.StudentChanged:
		if !e.Exists {
			c.logger.Info("student removed from session", "session_id", c.record.SessionID, "student_id", c.record.StudentID)
			c.finishLocked(ctx, PhaseKicked)
		}
	case domain.FeedFailed:
		c.logger.Warn("student feed failed", "student_id", c.record.StudentID, "error", e.Err)
		c.publishLocked(e.Err)
		return
	}
	c.publishLocked(nil)
}

// applySessionLocked follows the question pointer. A new question opens answering with
// the selection reset, then restores any answer the student already gave to it.
func (c *StudentController) applySessionLocked(ctx context.Context, session domain.Session) {
	c.session = session
	idx := session.CurrentQuestionIndex
	if _, ok := session.CurrentQuestion(); !ok {
		c.phase = PhaseWaiting
		c.shown = idx
		c.selection = nil
		c.submitted = false
		return
	}
	if idx == c.shown && c.phase == PhaseAnswering {
		return
	}
	c.phase = PhaseAnswering
	c.shown = idx
	c.selection = nil
	c.submitted = false

	prior, ok, err := c.participation.Existing(ctx, session.ID, c.record.StudentID, idx)
	if err != nil {
		c.logger.Warn("look up previous answer", "student_id", c.record.StudentID, "error", err)
		return
	}
	if ok {
		value := prior.Value
		c.selection = &value
		c.submitted = true
	}
}

// Submit answers the open question. Resubmitting replaces the earlier answer.
func (c *StudentController) Submit(ctx context.Context, value domain.AnswerValue) (domain.Answer, error) {
	c.mu.Lock()
	phase, session, rec, idx := c.phase, c.session, c.record, c.shown
	c.mu.Unlock()

	switch phase {
	case PhaseAnswering:
	case PhaseEnded:
		return domain.Answer{}, domain.ErrSessionEnded
	case PhaseWaiting:
		return domain.Answer{}, fmt.Errorf("%w: no question is open", domain.ErrValidation)
	default:
		return domain.Answer{}, fmt.Errorf("%w: join a session first", domain.ErrValidation)
	}

	answer, err := c.participation.Submit(ctx, session, rec.StudentID, idx, value)
	if err != nil {
		return domain.Answer{}, err
	}

	c.mu.Lock()
	if c.phase == PhaseAnswering && c.shown == idx {
		stored := answer.Value
		c.selection = &stored
		c.submitted = true
		c.publishLocked(nil)
	}
	c.mu.Unlock()
	return answer, nil
}

// ChangeAnswer re-opens a submitted answer for editing. The stored answer is kept until
// the next Submit.
func (c *StudentController) ChangeAnswer() StudentView {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseAnswering && c.submitted {
		c.submitted = false
		c.publishLocked(nil)
	}
	return c.viewLocked(nil)
}

// Leave forgets the joined session on this device. The store is not touched.
func (c *StudentController) Leave(ctx context.Context) error {
	c.mu.Lock()
	c.resetLocked(PhaseUnjoined)
	c.publishLocked(nil)
	c.mu.Unlock()
	if err := c.local.Remove(ctx, StudentRecordKey); err != nil {
		return fmt.Errorf("%w: clear student record: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}

// View returns the current view.
func (c *StudentController) View() StudentView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(nil)
}

// Updates delivers the latest view after every change; unread views are replaced.
func (c *StudentController) Updates() <-chan StudentView {
	return c.updates
}

// Close releases every subscription. The controller cannot be reused.
func (c *StudentController) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.feed != nil {
			c.feed.Close()
			c.feed = nil
		}
		c.mu.Unlock()
	})
}

// finishLocked moves to a terminal phase, stops watching and drops the local record.
func (c *StudentController) finishLocked(ctx context.Context, phase Phase) {
	rec := c.record
	c.resetLocked(phase)
	c.record = rec
	if err := c.local.Remove(ctx, StudentRecordKey); err != nil {
		c.logger.Warn("clear student record", "error", err)
	}
}

func (c *StudentController) resetLocked(phase Phase) {
	if c.feed != nil {
		c.feed.Close()
		c.feed = nil
	}
	c.phase = phase
	c.record = domain.StudentRecord{}
	c.shown = -1
	c.selection = nil
	c.submitted = false
	if phase == PhaseUnjoined {
		c.session = domain.Session{}
	}
}

func (c *StudentController) clearRecord(ctx context.Context) {
	if err := c.local.Remove(ctx, StudentRecordKey); err != nil {
		c.logger.Warn("clear student record", "error", err)
	}
}

func (c *StudentController) viewLocked(err error) StudentView {
	view := StudentView{
		Phase:         c.phase,
		StudentID:     c.record.StudentID,
		SessionID:     c.record.SessionID,
		Name:          c.record.Name,
		Title:         c.session.Title,
		Code:          c.session.Code,
		QuestionIndex: c.shown,
		QuestionCount: len(c.session.Questions),
		Submitted:     c.submitted,
		Err:           err,
	}
	if c.phase == PhaseAnswering {
		if q, ok := c.session.CurrentQuestion(); ok {
			view.Question = &q
		}
	}
	if c.selection != nil {
		sel := *c.selection
		view.Selection = &sel
	}
	return view
}

func (c *StudentController) publishLocked(err error) {
	publish(c.updates, c.viewLocked(err))
}
