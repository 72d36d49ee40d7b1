package report

import (
	"strings"
	"time"
)

// DefaultPageSize is the number of sessions per report page.
const DefaultPageSize = 10

// DateRange limits the listing to sessions created in a recent period.
type DateRange string

const (
	AllTime   DateRange = "all"
	Today     DateRange = "today"
	ThisWeek  DateRange = "week"
	ThisMonth DateRange = "month"
)

// Status limits the listing by session state.
type Status string

const (
	AnyStatus    Status = "all"
	ActiveStatus Status = "active"
	EndedStatus  Status = "ended"
)

// Filter is the report listing query. Zero values match everything.
type Filter struct {
	Date   DateRange
	Status Status
	Search string
}

// Since returns the start of the range relative to now, in now's location. Weeks start
// on Sunday.
func (r DateRange) Since(now time.Time) (time.Time, bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch r {
	case Today:
		return midnight, true
	case ThisWeek:
		return midnight.AddDate(0, 0, -int(midnight.Weekday())), true
	case ThisMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), true
	default:
		return time.Time{}, false
	}
}

// Match reports whether a session summary passes the filter.
func (f Filter) Match(s SessionSummary, now time.Time) bool {
	if since, ok := f.Date.Since(now); ok && s.CreatedAt.Before(since) {
		return false
	}
	switch f.Status {
	case ActiveStatus:
		if s.Ended {
			return false
		}
	case EndedStatus:
		if !s.Ended {
			return false
		}
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s.Code), term) ||
		strings.Contains(strings.ToLower(s.Title), term) ||
		strings.Contains(strings.ToLower(s.ID), term)
}

// SessionSummary is one row of the report listing.
type SessionSummary struct {
	ID            string     `json:"id"`
	Code          string     `json:"code"`
	Title         string     `json:"title"`
	Active        bool       `json:"active"`
	Ended         bool       `json:"ended"`
	CreatedAt     time.Time  `json:"createdAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	Duration      string     `json:"duration,omitempty"`
	StudentCount  int        `json:"studentCount"`
	QuestionCount int        `json:"questionCount"`
	AnswerCount   int        `json:"answerCount"`
}

// Summarize condenses a snapshot into a listing row.
func Summarize(s Snapshot) SessionSummary {
	return SessionSummary{
		ID:            s.Session.ID,
		Code:          s.Session.Code,
		Title:         s.Session.Title,
		Active:        s.Session.Active,
		Ended:         !s.Session.Active || s.Session.EndedAt != nil,
		CreatedAt:     s.Session.CreatedAt,
		EndedAt:       s.Session.EndedAt,
		Duration:      Duration(s.Session),
		StudentCount:  len(s.Students),
		QuestionCount: len(s.Session.Questions),
		AnswerCount:   len(s.Answers),
	}
}

// Overview totals the filtered listing.
type Overview struct {
	Sessions       int `json:"sessions"`
	ActiveSessions int `json:"activeSessions"`
	Students       int `json:"students"`
	Answers        int `json:"answers"`
	Questions      int `json:"questions"`
}

// Page is one page of results. Pages are 1-based.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// Paginate cuts page out of items; out-of-range pages are clamped.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	out := make([]T, 0, end-start)
	out = append(out, items[start:end]...)
	return Page[T]{Items: out, Page: page, PageSize: size, TotalPages: pages, Total: total}
}

// Listing is a filtered, paginated list of sessions with totals over every match.
type Listing struct {
	Overview Overview             `json:"overview"`
	Sessions Page[SessionSummary] `json:"sessions"`
}

// List filters snapshots, keeps their order, and paginates the matches.
func List(snaps []Snapshot, f Filter, page, size int, now time.Time) Listing {
	var rows []SessionSummary
	var overview Overview
	for _, s := range snaps {
		row := Summarize(s)
		if !f.Match(row, now) {
			continue
		}
		rows = append(rows, row)
		overview.Sessions++
		if !row.Ended {
			overview.ActiveSessions++
		}
		overview.Students += row.StudentCount
		overview.Answers += row.AnswerCount
		overview.Questions += row.QuestionCount
	}
	return Listing{Overview: overview, Sessions: Paginate(rows, page, size)}
}
