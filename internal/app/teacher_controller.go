package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/report"
)

// StudentStatus is a row of the teacher's live student list.
type StudentStatus struct {
	Student         domain.Student `json:"student"`
	AnsweredCurrent bool           `json:"answeredCurrent"`
}

// TeacherView is what the teacher screen renders.
type TeacherView struct {
	Open            bool            `json:"open"`
	Session         domain.Session  `json:"session"`
	SessionID       string          `json:"sessionId"`
	Students        []StudentStatus `json:"students"`
	AnsweredCurrent int             `json:"answeredCurrent"`
	Err             error           `json:"-"`
}

// CurrentAnswer is one student's answer to the current question, for "view answers".
type CurrentAnswer struct {
	Student  domain.Student `json:"student"`
	Answered bool           `json:"answered"`
	Display  string         `json:"display,omitempty"`
	Answer   *domain.Answer `json:"answer,omitempty"`
}

// TeacherController drives one teacher device: it owns the live session feed and the
// device's teacherSession record.
type TeacherController struct {
	sessions *Sessions
	store    docstore.Store
	local    LocalState
	ids      IdentityProvider
	logger   *slog.Logger

	events  chan feedEvent
	updates chan TeacherView
	closed  chan struct{}

	mu        sync.Mutex
	feed      *feed
	feedSeq   uint64
	uid       string
	open      bool
	session   domain.Session
	students  []domain.Student
	answers   []domain.Answer
	closeOnce sync.Once
}

func NewTeacherController(sessions *Sessions, store docstore.Store, local LocalState, ids IdentityProvider, logger *slog.Logger) *TeacherController {
	return &TeacherController{
		sessions: sessions,
		store:    store,
		local:    local,
		ids:      ids,
		logger:   loggerOrDefault(logger),
		events:   make(chan feedEvent, 16),
		updates:  make(chan TeacherView, 1),
		closed:   make(chan struct{}),
	}
}

// CreateSession creates a session owned by this device and starts watching it.
func (c *TeacherController) CreateSession(ctx context.Context, req NewSession) (domain.Session, error) {
	uid, err := c.signIn(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := c.sessions.Create(ctx, uid, req)
	if err != nil {
		return domain.Session{}, err
	}
	return session, c.attach(ctx, session)
}

// Open attaches to an existing session owned by this device.
func (c *TeacherController) Open(ctx context.Context, sessionID string) (domain.Session, error) {
	uid, err := c.signIn(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	session, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.TeacherOwnerID != uid {
		return domain.Session{}, fmt.Errorf("%w: session belongs to another teacher", domain.ErrPermission)
	}
	return session, c.attach(ctx, session)
}

// Resume re-attaches to the session in the device's teacherSession record. A record
// pointing at a deleted session is discarded.
func (c *TeacherController) Resume(ctx context.Context) (domain.Session, error) {
	var rec domain.TeacherRecord
	ok, err := c.local.Load(ctx, TeacherRecordKey, &rec)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: load teacher record: %v", domain.ErrBackendUnavailable, err)
	}
	if !ok || rec.SessionID == "" {
		return domain.Session{}, fmt.Errorf("%w: no session to resume", domain.ErrNotFound)
	}
	session, err := c.Open(ctx, rec.SessionID)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrPermission) {
		c.clearRecord(ctx)
	}
	return session, err
}

func (c *TeacherController) attach(ctx context.Context, session domain.Session) error {
	rec := domain.TeacherRecord{SessionID: session.ID, Code: session.Code, Title: session.Title, TeacherID: session.TeacherOwnerID}
	if err := c.local.Save(ctx, TeacherRecordKey, rec); err != nil {
		return fmt.Errorf("%w: save teacher record: %v", domain.ErrBackendUnavailable, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed != nil {
		c.feed.Close()
	}
	c.feedSeq++
	f := newFeed(c.feedSeq, c.store, c.events)
	for _, start := range []func(string) error{f.watchSession, f.watchStudents, f.watchAnswers} {
		if err := start(session.ID); err != nil {
			f.Close()
			c.feed = nil
			c.open = false
			return err
		}
	}
	c.feed = f
	c.open = true
	c.session = session
	c.students = nil
	c.answers = nil
	c.publishLocked(nil)
	return nil
}

// Run applies store changes to the view until ctx is done or the controller is closed.
// It returns ErrNotFound when the session is deleted while being viewed.
func (c *TeacherController) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case ev := <-c.events:
			if err := c.apply(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (c *TeacherController) apply(ctx context.Context, ev feedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feed == nil || ev.feed != c.feed.id {
		return nil
	}

	switch e := ev.event.(type) {
	case domain.SessionChanged:
		if !e.Exists {
			c.logger.Info("watched session deleted", "session_id", c.session.ID)
			c.feed.Close()
			c.feed = nil
			c.open = false
			if err := c.local.Remove(ctx, TeacherRecordKey); err != nil {
				c.logger.Warn("clear teacher record", "error", err)
			}
			err := fmt.Errorf("%w: session was deleted", domain.ErrNotFound)
			c.publishLocked(err)
			return err
		}
		if olderThan(e.Session, c.session) {
			return nil
		}
		c.session = e.Session
	case domain.StudentsChanged:
		c.students = e.Students
	case domain.AnswersChanged:
		c.answers = e.Answers
	case domain.FeedFailed:
		c.logger.Warn("teacher feed failed", "session_id", c.session.ID, "error", e.Err)
		c.publishLocked(e.Err)
		return nil
	}
	c.publishLocked(nil)
	return nil
}

// olderThan reports whether snapshot predates the pointer move already applied to local.
func olderThan(snapshot, local domain.Session) bool {
	if snapshot.ID != local.ID || local.UpdatedAt == nil {
		return false
	}
	return snapshot.UpdatedAt == nil || snapshot.UpdatedAt.Before(*local.UpdatedAt)
}

// Next moves to the next question; false when already on the last one.
func (c *TeacherController) Next(ctx context.Context) (bool, error) {
	return c.advance(ctx, Next)
}

// Previous moves to the previous question; false when already on the first one.
func (c *TeacherController) Previous(ctx context.Context) (bool, error) {
	return c.advance(ctx, Previous)
}

func (c *TeacherController) advance(ctx context.Context, step Step) (bool, error) {
	uid, session, err := c.current(ctx)
	if err != nil {
		return false, err
	}
	updated, moved, err := c.sessions.Advance(ctx, uid, session, step)
	if err != nil || !moved {
		return false, err
	}

	c.mu.Lock()
	if c.open && c.session.ID == updated.ID {
		c.session.CurrentQuestionIndex = updated.CurrentQuestionIndex
		c.session.UpdatedAt = updated.UpdatedAt
		c.publishLocked(nil)
	}
	c.mu.Unlock()
	return true, nil
}

// End ends the session. The view stays open so the final answers remain visible.
func (c *TeacherController) End(ctx context.Context) (domain.Session, error) {
	uid, session, err := c.current(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	ended, err := c.sessions.End(ctx, uid, session.ID)
	if err != nil {
		return domain.Session{}, err
	}
	c.clearRecord(ctx)

	c.mu.Lock()
	if c.open && c.session.ID == ended.ID {
		c.session = ended
		c.publishLocked(nil)
	}
	c.mu.Unlock()
	return ended, nil
}

// Kick removes a student from the session.
func (c *TeacherController) Kick(ctx context.Context, studentID string) error {
	uid, session, err := c.current(ctx)
	if err != nil {
		return err
	}
	return c.sessions.Kick(ctx, uid, session.ID, studentID)
}

// AnswersForCurrent lists every student with their answer to the current question.
func (c *TeacherController) AnswersForCurrent() []CurrentAnswer {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.session.CurrentQuestion()
	out := make([]CurrentAnswer, 0, len(c.students))
	for _, st := range c.students {
		row := CurrentAnswer{Student: st}
		for i := range c.answers {
			a := c.answers[i]
			if a.StudentID != st.ID || a.QuestionIndex != c.session.CurrentQuestionIndex {
				continue
			}
			row.Answered = true
			row.Answer = &a
			row.Display = a.Value.String()
			if ok {
				row.Display = report.FormatAnswer(q, a.Value)
			}
			break
		}
		out = append(out, row)
	}
	return out
}

// View returns the current view.
func (c *TeacherController) View() TeacherView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(nil)
}

// Updates delivers the latest view after every change. Views the reader has not
// consumed are replaced by newer ones.
func (c *TeacherController) Updates() <-chan TeacherView {
	return c.updates
}

// Close releases every subscription. The controller cannot be reused.
func (c *TeacherController) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.feed != nil {
			c.feed.Close()
			c.feed = nil
		}
		c.open = false
		c.mu.Unlock()
	})
}

func (c *TeacherController) current(ctx context.Context) (string, domain.Session, error) {
	uid, err := c.signIn(ctx)
	if err != nil {
		return "", domain.Session{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return "", domain.Session{}, fmt.Errorf("%w: no session open", domain.ErrNotFound)
	}
	return uid, c.session, nil
}

func (c *TeacherController) signIn(ctx context.Context) (string, error) {
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	if uid != "" {
		return uid, nil
	}
	uid, err := signIn(ctx, c.ids)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.uid = uid
	c.mu.Unlock()
	return uid, nil
}

func (c *TeacherController) clearRecord(ctx context.Context) {
	if err := c.local.Remove(ctx, TeacherRecordKey); err != nil {
		c.logger.Warn("clear teacher record", "error", err)
	}
}

func (c *TeacherController) viewLocked(err error) TeacherView {
	view := TeacherView{Open: c.open, Session: c.session, SessionID: c.session.ID, Students: make([]StudentStatus, 0, len(c.students)), Err: err}
	answered := map[string]bool{}
	for _, a := range c.answers {
		if a.QuestionIndex == c.session.CurrentQuestionIndex {
			answered[a.StudentID] = true
		}
	}
	for _, st := range c.students {
		view.Students = append(view.Students, StudentStatus{Student: st, AnsweredCurrent: answered[st.ID]})
		if answered[st.ID] {
			view.AnsweredCurrent++
		}
	}
	return view
}

func (c *TeacherController) publishLocked(err error) {
	publish(c.updates, c.viewLocked(err))
}

// publish replaces an unread view with v. Callers serialize on the controller mutex.
func publish[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
