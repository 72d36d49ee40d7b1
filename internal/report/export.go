package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"live-quiz-service/internal/domain"
)

// SessionExport is the exported session record, id included.
type SessionExport struct {
	ID                   string     `json:"id"`
	Code                 string     `json:"code"`
	Title                string     `json:"title"`
	TeacherOwnerID       string     `json:"teacherOwnerId"`
	Active               bool       `json:"active"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	CreatedAt            time.Time  `json:"createdAt"`
	EndedAt              *time.Time `json:"endedAt,omitempty"`
}

// StudentExport is an exported student.
type StudentExport struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// AnswerExport is an exported answer with its resolved display value.
type AnswerExport struct {
	ID             string             `json:"id"`
	StudentID      string             `json:"studentId"`
	StudentName    string             `json:"studentName"`
	QuestionIndex  int                `json:"questionIndex"`
	QuestionNumber int                `json:"questionNumber"`
	Value          domain.AnswerValue `json:"value"`
	Display        string             `json:"display"`
	Correct        *bool              `json:"correct,omitempty"`
	SubmittedAt    time.Time          `json:"submittedAt"`
}

// Export is the full export of one session.
type Export struct {
	ExportDate    time.Time         `json:"exportDate"`
	Session       SessionExport     `json:"session"`
	Questions     []domain.Question `json:"questions"`
	Students      []StudentExport   `json:"students"`
	Answers       []AnswerExport    `json:"answers"`
	Stats         SessionStats      `json:"statistics"`
	QuestionStats []QuestionReport  `json:"questionStatistics"`
}

// NewExport builds the export of one session.
func NewExport(s Snapshot, now time.Time) Export {
	return Export{
		ExportDate:    now,
		Session:       exportSession(s.Session),
		Questions:     nonNil(s.Session.Questions),
		Students:      exportStudents(s),
		Answers:       exportAnswers(s),
		Stats:         Stats(s),
		QuestionStats: Questions(s),
	}
}

// SessionBundle is one session inside an export of every session.
type SessionBundle struct {
	SessionExport
	Questions    []domain.Question `json:"questions"`
	Students     []StudentExport   `json:"students"`
	Answers      []AnswerExport    `json:"answers"`
	StudentCount int               `json:"studentCount"`
	AnswerCount  int               `json:"answerCount"`
}

// ExportAll is the export of every session.
type ExportAll struct {
	ExportDate    time.Time       `json:"exportDate"`
	TotalSessions int             `json:"totalSessions"`
	Sessions      []SessionBundle `json:"sessions"`
}

// NewExportAll bundles every snapshot, keeping their order.
func NewExportAll(snaps []Snapshot, now time.Time) ExportAll {
	out := ExportAll{ExportDate: now, TotalSessions: len(snaps), Sessions: make([]SessionBundle, 0, len(snaps))}
	for _, s := range snaps {
		out.Sessions = append(out.Sessions, SessionBundle{
			SessionExport: exportSession(s.Session),
			Questions:     nonNil(s.Session.Questions),
			Students:      exportStudents(s),
			Answers:       exportAnswers(s),
			StudentCount:  len(s.Students),
			AnswerCount:   len(s.Answers),
		})
	}
	return out
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var csvHeader = []string{
	"session_code", "session_title", "student", "question_number", "question",
	"question_type", "answer", "correct", "submitted_at",
}

// WriteCSV writes one row per answer.
func WriteCSV(w io.Writer, s Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range exportAnswers(s) {
		var text string
		var label string
		if q, ok := s.Question(a.QuestionIndex); ok {
			text, label = q.Text, q.Type.Label()
		}
		correct := ""
		if a.Correct != nil {
			correct = strconv.FormatBool(*a.Correct)
		}
		row := []string{
			s.Session.Code, s.Session.Title, a.StudentName, strconv.Itoa(a.QuestionNumber), text,
			label, a.Display, correct, a.SubmittedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportSession(s domain.Session) SessionExport {
	return SessionExport{
		ID:                   s.ID,
		Code:                 s.Code,
		Title:                s.Title,
		TeacherOwnerID:       s.TeacherOwnerID,
		Active:               s.Active,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		CreatedAt:            s.CreatedAt,
		EndedAt:              s.EndedAt,
	}
}

func exportStudents(s Snapshot) []StudentExport {
	out := make([]StudentExport, 0, len(s.Students))
	for _, st := range s.Students {
		out = append(out, StudentExport{ID: st.ID, Name: st.Name, JoinedAt: st.JoinedAt})
	}
	return out
}

func exportAnswers(s Snapshot) []AnswerExport {
	out := make([]AnswerExport, 0, len(s.Answers))
	for _, a := range s.Answers {
		row := AnswerExport{
			ID:             a.ID,
			StudentID:      a.StudentID,
			StudentName:    s.StudentName(a.StudentID),
			QuestionIndex:  a.QuestionIndex,
			QuestionNumber: a.QuestionIndex + 1,
			Value:          a.Value,
			Display:        a.Value.String(),
			SubmittedAt:    a.SubmittedAt,
		}
		if q, ok := s.Question(a.QuestionIndex); ok {
			row.Display = FormatAnswer(q, a.Value)
			if correct, graded := IsCorrect(q, a.Value); graded {
				row.Correct = &correct
			}
		}
		out = append(out, row)
	}
	return out
}

func nonNil(questions []domain.Question) []domain.Question {
	if questions == nil {
		return []domain.Question{}
	}
	return questions
}
