package report

import (
	"time"

	"live-quiz-service/internal/domain"
)

// CommonAnswer is the most frequent answer to a question.
type CommonAnswer struct {
	Value   string `json:"value"`
	Display string `json:"display"`
	Count   int    `json:"count"`
}

// QuestionReport is one row of the question summary.
type QuestionReport struct {
	Number               int                 `json:"number"`
	Text                 string              `json:"text"`
	Type                 domain.QuestionType `json:"type"`
	TypeLabel            string              `json:"typeLabel"`
	AnsweredCount        int                 `json:"answeredCount"`
	ParticipationPercent int                 `json:"participationPercent"`
	MostCommon           *CommonAnswer       `json:"mostCommon,omitempty"`
}

// StudentAnswer is one answer in a student's row.
type StudentAnswer struct {
	QuestionNumber int       `json:"questionNumber"`
	Display        string    `json:"display"`
	Correct        *bool     `json:"correct,omitempty"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// StudentReport summarizes one student.
type StudentReport struct {
	StudentID string          `json:"studentId"`
	Name      string          `json:"name"`
	JoinedAt  time.Time       `json:"joinedAt"`
	Answered  int             `json:"answered"`
	Correct   int             `json:"correct"`
	Answers   []StudentAnswer `json:"answers"`
}

// SessionReport is everything the per-session report view shows.
type SessionReport struct {
	Session   SessionSummary   `json:"session"`
	Stats     SessionStats     `json:"stats"`
	Questions []QuestionReport `json:"questions"`
	Students  []StudentReport  `json:"students"`
}

// Build computes the full report of one session.
func Build(s Snapshot) SessionReport {
	return SessionReport{
		Session:   Summarize(s),
		Stats:     Stats(s),
		Questions: Questions(s),
		Students:  Students(s),
	}
}

// Questions computes the per-question rows.
func Questions(s Snapshot) []QuestionReport {
	rows := make([]QuestionReport, 0, len(s.Session.Questions))
	for i, q := range s.Session.Questions {
		var answers []domain.Answer
		for _, a := range s.Answers {
			if a.QuestionIndex == i {
				answers = append(answers, a)
			}
		}
		row := QuestionReport{
			Number:        i + 1,
			Text:          q.Text,
			Type:          q.Type,
			TypeLabel:     q.Type.Label(),
			AnsweredCount: len(answers),
			MostCommon:    mostCommon(q, answers),
		}
		if len(s.Students) > 0 {
			row.ParticipationPercent = percent(float64(len(answers)) / float64(len(s.Students)))
		}
		rows = append(rows, row)
	}
	return rows
}

// mostCommon groups answers by their raw string form. Ties go to the group met first,
// so the winner depends on input order.
func mostCommon(q domain.Question, answers []domain.Answer) *CommonAnswer {
	counts := map[string]int{}
	firstValue := map[string]domain.AnswerValue{}
	var order []string
	for _, a := range answers {
		key := a.Value.String()
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			firstValue[key] = a.Value
		}
		counts[key]++
	}
	if len(order) == 0 {
		return nil
	}
	best := order[0]
	for _, key := range order[1:] {
		if counts[key] > counts[best] {
			best = key
		}
	}
	return &CommonAnswer{Value: best, Display: FormatAnswer(q, firstValue[best]), Count: counts[best]}
}

// Students computes the per-student rows, in the order students were loaded.
func Students(s Snapshot) []StudentReport {
	rows := make([]StudentReport, 0, len(s.Students))
	for _, st := range s.Students {
		row := StudentReport{StudentID: st.ID, Name: st.Name, JoinedAt: st.JoinedAt, Answers: []StudentAnswer{}}
		for _, a := range s.Answers {
			if a.StudentID != st.ID {
				continue
			}
			row.Answered++
			entry := StudentAnswer{QuestionNumber: a.QuestionIndex + 1, Display: a.Value.String(), SubmittedAt: a.SubmittedAt}
			if q, ok := s.Question(a.QuestionIndex); ok {
				entry.Display = FormatAnswer(q, a.Value)
				if correct, graded := IsCorrect(q, a.Value); graded {
					entry.Correct = &correct
					if correct {
						row.Correct++
					}
				}
			}
			row.Answers = append(row.Answers, entry)
		}
		rows = append(rows, row)
	}
	return rows
}
