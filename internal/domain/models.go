package domain

import (
	"strconv"
	"time"
)

// QuestionType selects how a question is answered and how its answers are validated.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionOpenText       QuestionType = "open-text"
	QuestionYesNo          QuestionType = "yes-no"
)

// Label is the human readable name used in reports.
func (t QuestionType) Label() string {
	switch t {
	case QuestionMultipleChoice:
		return "Multiple choice"
	case QuestionYesNo:
		return "Yes/No"
	default:
		return "Open"
	}
}

// Question is embedded in a Session; the list is fixed once the session is created.
type Question struct {
	Number             int          `json:"number"` // 1-based position
	Type               QuestionType `json:"type"`
	Text               string       `json:"text"`
	Options            []string     `json:"options"`
	CorrectOptionIndex *int         `json:"correctOptionIndex,omitempty"`
}

// Session is one running quiz with its question list and live pointer.
type Session struct {
	ID                   string     `json:"-"`
	Code                 string     `json:"code"`
	Title                string     `json:"title"`
	TeacherOwnerID       string     `json:"teacherOwnerId"`
	Questions            []Question `json:"questions"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	Active               bool       `json:"active"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            *time.Time `json:"updatedAt,omitempty"`
	EndedAt              *time.Time `json:"endedAt,omitempty"`
}

// CurrentQuestion returns the question the pointer is on, or false when the pointer is
// out of range or there are no questions.
func (s Session) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// Student is one participant's enrollment in a session. Never updated after creation.
type Student struct {
	ID        string    `json:"-"`
	SessionID string    `json:"sessionId"`
	Name      string    `json:"name"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// Answer is one participant's response to one question.
type Answer struct {
	ID            string      `json:"-"`
	SessionID     string      `json:"sessionId"`
	StudentID     string      `json:"studentId"`
	QuestionIndex int         `json:"questionIndex"` // Question.Number - 1
	Value         AnswerValue `json:"value"`
	SubmittedAt   time.Time   `json:"submittedAt"`
}

// AnswerKey is the document id of the single answer allowed per student and question.
func AnswerKey(sessionID, studentID string, questionIndex int) string {
	return sessionID + "_" + studentID + "_" + strconv.Itoa(questionIndex)
}

// StudentRecord is what a student device keeps locally to resume after a reload.
type StudentRecord struct {
	StudentID string `json:"studentId"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

// TeacherRecord is what a teacher device keeps locally to resume its live session.
type TeacherRecord struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Title     string `json:"title"`
	TeacherID string `json:"teacherId"`
}

// Questionnaire is a canned question set a teacher can pick when creating a session.
type Questionnaire struct {
	Name      string     `json:"name"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}
