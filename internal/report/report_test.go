package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

var t0 = time.Date(2024, 11, 20, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func sampleSnapshot() Snapshot {
	ended := t0.Add(65 * time.Minute)
	return Snapshot{
		Session: domain.Session{
			ID: "s1", Code: "4821", Title: "Geography", Active: false, CreatedAt: t0, EndedAt: &ended,
			Questions: []domain.Question{
				{Number: 1, Type: domain.QuestionMultipleChoice, Text: "Capital of France?", Options: []string{"Paris", "Berlin", "Rome"}, CorrectOptionIndex: intPtr(0)},
				{Number: 2, Type: domain.QuestionOpenText, Text: "Favourite city?"},
			},
		},
		Students: []domain.Student{
			{ID: "a", Name: "Alice", JoinedAt: t0},
			{ID: "b", Name: "Bob", JoinedAt: t0},
			{ID: "c", Name: "Carol", JoinedAt: t0},
		},
		Answers: []domain.Answer{
			{ID: "1", StudentID: "b", QuestionIndex: 0, Value: domain.OptionAnswer(1), SubmittedAt: t0.Add(10 * time.Second)},
			{ID: "2", StudentID: "a", QuestionIndex: 0, Value: domain.OptionAnswer(0), SubmittedAt: t0.Add(20 * time.Second)},
			{ID: "3", StudentID: "c", QuestionIndex: 0, Value: domain.OptionAnswer(0), SubmittedAt: t0.Add(30 * time.Second)},
			{ID: "4", StudentID: "a", QuestionIndex: 1, Value: domain.TextAnswer("Paris"), SubmittedAt: t0.Add(-5 * time.Second)},
		},
	}
}

func TestStats(t *testing.T) {
	stats := Stats(sampleSnapshot())

	if stats.ParticipationPercent != 67 {
		t.Fatalf("expected 4/6 = 67%%, got %d", stats.ParticipationPercent)
	}
	if stats.CorrectCount != 2 || stats.GradedAnswerCount != 3 {
		t.Fatalf("expected 2 of 3 graded correct, got %d of %d", stats.CorrectCount, stats.GradedAnswerCount)
	}
	// The negative delta is dropped: mean of 10s, 20s, 30s.
	if stats.AverageResponse != 20*time.Second || stats.AverageResponseMillis != 20000 {
		t.Fatalf("expected 20s average, got %v", stats.AverageResponse)
	}
	if stats.MostActive == nil || stats.MostActive.Name != "Alice" || stats.MostActive.Answers != 2 {
		t.Fatalf("expected Alice most active, got %+v", stats.MostActive)
	}
}

func TestStatsEmpty(t *testing.T) {
	stats := Stats(Snapshot{Session: domain.Session{CreatedAt: t0}})
	if stats.ParticipationRate != 0 || stats.AverageResponse != 0 || stats.MostActive != nil {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestMostActiveTieGoesToFirstSeen(t *testing.T) {
	s := Snapshot{
		Students: []domain.Student{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Bob"}},
		Answers: []domain.Answer{
			{StudentID: "b", QuestionIndex: 0, Value: domain.TextAnswer("x")},
			{StudentID: "a", QuestionIndex: 0, Value: domain.TextAnswer("y")},
		},
	}
	if got := Stats(s).MostActive; got == nil || got.Name != "Bob" {
		t.Fatalf("expected first-seen Bob, got %+v", got)
	}
}

func TestQuestions(t *testing.T) {
	rows := Questions(sampleSnapshot())
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.AnsweredCount != 3 || first.ParticipationPercent != 100 || first.TypeLabel != "Multiple choice" {
		t.Fatalf("unexpected first row %+v", first)
	}
	if first.MostCommon == nil || first.MostCommon.Display != "A. Paris" || first.MostCommon.Count != 2 {
		t.Fatalf("expected A. Paris twice, got %+v", first.MostCommon)
	}
	if rows[1].ParticipationPercent != 33 || rows[1].MostCommon.Display != "Paris" {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
}

func TestFormatAnswer(t *testing.T) {
	mc := domain.Question{Type: domain.QuestionMultipleChoice, Options: []string{"Paris", "Berlin"}}
	if got := FormatAnswer(mc, domain.OptionAnswer(1)); got != "B. Berlin" {
		t.Fatalf("expected B. Berlin, got %q", got)
	}
	if got := FormatAnswer(mc, domain.OptionAnswer(7)); got != "7" {
		t.Fatalf("out of range index must render raw, got %q", got)
	}
	open := domain.Question{Type: domain.QuestionOpenText}
	if got := FormatAnswer(open, domain.TextAnswer("Amsterdam")); got != "Amsterdam" {
		t.Fatalf("expected raw text, got %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(65 * time.Minute); got != "1h 5m" {
		t.Fatalf("expected 1h 5m, got %q", got)
	}
	if got := FormatDuration(59*time.Minute + 59*time.Second); got != "59m" {
		t.Fatalf("expected 59m, got %q", got)
	}
	if got := Duration(domain.Session{CreatedAt: t0}); got != "" {
		t.Fatalf("running session has no duration, got %q", got)
	}
}

func TestStudentsRows(t *testing.T) {
	rows := Students(sampleSnapshot())
	alice := rows[0]
	if alice.Answered != 2 || alice.Correct != 1 || alice.Answers[0].Display != "A. Paris" {
		t.Fatalf("unexpected Alice row %+v", alice)
	}
	if alice.Answers[1].Correct != nil {
		t.Fatalf("open text must not be graded")
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	now := time.Date(2024, 11, 20, 15, 0, 0, 0, time.UTC) // a Wednesday
	mk := func(id, title string, created time.Time, active bool) Snapshot {
		return Snapshot{Session: domain.Session{ID: id, Code: "1" + id, Title: title, CreatedAt: created, Active: active}}
	}
	var snaps []Snapshot
	snaps = append(snaps,
		mk("001", "Today quiz", now.Add(-time.Hour), true),
		mk("002", "Sunday quiz", time.Date(2024, 11, 17, 8, 0, 0, 0, time.UTC), false),
		mk("003", "Early month", time.Date(2024, 11, 2, 8, 0, 0, 0, time.UTC), false),
		mk("004", "Last month", time.Date(2024, 10, 30, 8, 0, 0, 0, time.UTC), false),
	)

	count := func(f Filter) int { return List(snaps, f, 1, 10, now).Sessions.Total }
	if got := count(Filter{Date: Today}); got != 1 {
		t.Fatalf("today: expected 1, got %d", got)
	}
	if got := count(Filter{Date: ThisWeek}); got != 2 {
		t.Fatalf("week starting Sunday: expected 2, got %d", got)
	}
	if got := count(Filter{Date: ThisMonth}); got != 3 {
		t.Fatalf("month: expected 3, got %d", got)
	}
	if got := count(Filter{Status: EndedStatus}); got != 3 {
		t.Fatalf("ended: expected 3, got %d", got)
	}
	if got := count(Filter{Status: ActiveStatus, Search: "TODAY"}); got != 1 {
		t.Fatalf("active search: expected 1, got %d", got)
	}
	if got := count(Filter{Search: "1003"}); got != 1 {
		t.Fatalf("code search: expected 1, got %d", got)
	}

	listing := List(snaps, Filter{}, 2, 3, now)
	if listing.Sessions.TotalPages != 2 || len(listing.Sessions.Items) != 1 || listing.Sessions.Items[0].ID != "004" {
		t.Fatalf("unexpected page %+v", listing.Sessions)
	}
	if listing.Overview.Sessions != 4 || listing.Overview.ActiveSessions != 1 {
		t.Fatalf("unexpected overview %+v", listing.Overview)
	}
}

func TestPaginateClamps(t *testing.T) {
	p := Paginate([]int{}, 5, 0)
	if p.Page != 1 || p.TotalPages != 1 || p.PageSize != DefaultPageSize || len(p.Items) != 0 {
		t.Fatalf("unexpected empty page %+v", p)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header and 4 rows, got %d", len(rows))
	}
	if rows[1][2] != "Bob" || rows[1][6] != "B. Berlin" || rows[1][7] != "false" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
}

func TestExportAll(t *testing.T) {
	var buf bytes.Buffer
	all := NewExportAll([]Snapshot{sampleSnapshot()}, t0)
	if err := WriteJSON(&buf, all); err != nil {
		t.Fatalf("write json: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"totalSessions": 1`, `"studentCount": 3`, `"answerCount": 4`, `"id": "s1"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in export, got %s", want, out)
		}
	}
}
