// Package report aggregates loaded sessions, students and answers into read-only
// summaries. Nothing here touches the store.
package report

import (
	"fmt"
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

// UnknownStudent is shown for answers whose student record is gone.
const UnknownStudent = "Unknown student"

// Snapshot is a point-in-time load of one session and its children.
type Snapshot struct {
	Session  domain.Session
	Students []domain.Student
	Answers  []domain.Answer
}

// StudentName resolves a student id within the snapshot.
func (s Snapshot) StudentName(id string) string {
	for _, st := range s.Students {
		if st.ID == id {
			return st.Name
		}
	}
	return UnknownStudent
}

// Question returns the question an answer refers to.
func (s Snapshot) Question(index int) (domain.Question, bool) {
	if index < 0 || index >= len(s.Session.Questions) {
		return domain.Question{}, false
	}
	return s.Session.Questions[index], true
}

// MostActive is the student with the most answers.
type MostActive struct {
	StudentID string `json:"studentId"`
	Name      string `json:"name"`
	Answers   int    `json:"answers"`
}

// SessionStats are the headline numbers of a session report.
type SessionStats struct {
	StudentCount          int           `json:"studentCount"`
	QuestionCount         int           `json:"questionCount"`
	AnswerCount           int           `json:"answerCount"`
	ParticipationRate     float64       `json:"participationRate"`
	ParticipationPercent  int           `json:"participationPercent"`
	GradedAnswerCount     int           `json:"gradedAnswerCount"`
	CorrectCount          int           `json:"correctCount"`
	AverageResponse       time.Duration `json:"-"`
	AverageResponseMillis int64         `json:"averageResponseMs"`
	MostActive            *MostActive   `json:"mostActive,omitempty"`
}

// Stats computes the session-wide statistics.
func Stats(s Snapshot) SessionStats {
	stats := SessionStats{
		StudentCount:  len(s.Students),
		QuestionCount: len(s.Session.Questions),
		AnswerCount:   len(s.Answers),
	}

	possible := stats.StudentCount * stats.QuestionCount
	if possible > 0 {
		stats.ParticipationRate = float64(stats.AnswerCount) / float64(possible)
	}
	stats.ParticipationPercent = percent(stats.ParticipationRate)

	var total time.Duration
	var timed int
	for _, a := range s.Answers {
		if q, ok := s.Question(a.QuestionIndex); ok {
			if correct, graded := IsCorrect(q, a.Value); graded {
				stats.GradedAnswerCount++
				if correct {
					stats.CorrectCount++
				}
			}
		}
		if s.Session.CreatedAt.IsZero() || a.SubmittedAt.IsZero() {
			continue
		}
		// Clock skew can put answers before the session; those are skipped, not corrected.
		if delta := a.SubmittedAt.Sub(s.Session.CreatedAt); delta > 0 {
			total += delta
			timed++
		}
	}
	if timed > 0 {
		stats.AverageResponse = total / time.Duration(timed)
		stats.AverageResponseMillis = stats.AverageResponse.Milliseconds()
	}

	stats.MostActive = mostActive(s)
	return stats
}

// mostActive picks the student with the most answers; ties go to whoever appears first.
func mostActive(s Snapshot) *MostActive {
	counts := map[string]int{}
	var order []string
	for _, a := range s.Answers {
		if _, seen := counts[a.StudentID]; !seen {
			order = append(order, a.StudentID)
		}
		counts[a.StudentID]++
	}
	if len(order) == 0 {
		return nil
	}
	best := order[0]
	for _, id := range order[1:] {
		if counts[id] > counts[best] {
			best = id
		}
	}
	return &MostActive{StudentID: best, Name: s.StudentName(best), Answers: counts[best]}
}

// IsCorrect grades a value. Only multiple-choice questions with a correct option are
// graded.
func IsCorrect(q domain.Question, v domain.AnswerValue) (correct, graded bool) {
	if q.Type != domain.QuestionMultipleChoice || q.CorrectOptionIndex == nil {
		return false, false
	}
	idx, ok := v.Option()
	return ok && idx == *q.CorrectOptionIndex, true
}

// FormatAnswer renders a multiple-choice index as "A. Paris"; everything else, including
// out-of-range indexes, is shown raw.
func FormatAnswer(q domain.Question, v domain.AnswerValue) string {
	if q.Type == domain.QuestionMultipleChoice {
		if idx, ok := v.Option(); ok && idx >= 0 && idx < len(q.Options) {
			return fmt.Sprintf("%c. %s", rune('A'+idx), q.Options[idx])
		}
	}
	return v.String()
}

// FormatDuration renders a session length as "1h 5m" or "5m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int(d / time.Minute)
	if h := mins / 60; h > 0 {
		return fmt.Sprintf("%dh %dm", h, mins%60)
	}
	return fmt.Sprintf("%dm", mins)
}

// Duration of an ended session; empty while it is still running.
func Duration(s domain.Session) string {
	if s.EndedAt == nil || s.CreatedAt.IsZero() {
		return ""
	}
	return FormatDuration(s.EndedAt.Sub(s.CreatedAt))
}

func percent(rate float64) int {
	return int(math.Round(rate * 100))
}
