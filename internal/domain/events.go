package domain

// Event is a change observed in the document store, delivered to controllers through
// their live feed.
type Event interface {
	EventName() string
}

// SessionChanged carries the latest session document. Exists is false once it was deleted.
type SessionChanged struct {
	Session Session
	Exists  bool
}

// StudentsChanged carries every student of the watched session, in join order.
type StudentsChanged struct {
	Students []Student
}

// StudentChanged carries a single watched student document.
type StudentChanged struct {
	Student Student
	Exists  bool
}

// AnswersChanged carries every answer of the watched session.
type AnswersChanged struct {
	Answers []Answer
}

// FeedFailed reports a read failure behind a subscription instead of leaving the view stale.
type FeedFailed struct {
	Err error
}

func (SessionChanged) EventName() string  { return "session_changed" }
func (StudentsChanged) EventName() string { return "students_changed" }
func (StudentChanged) EventName() string  { return "student_changed" }
func (AnswersChanged) EventName() string  { return "answers_changed" }
func (FeedFailed) EventName() string      { return "feed_failed" }
