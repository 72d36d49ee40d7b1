package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/report"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Reports loads point-in-time snapshots for the read-only report views.
type Reports struct {
	store  docstore.Store
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

func NewReports(store docstore.Store, logger *slog.Logger) *Reports {
	return &Reports{store: store, logger: loggerOrDefault(logger), now: time.Now}
}

// WithClock is for deterministic listings in tests.
func (r *Reports) WithClock(now func() time.Time) *Reports {
	r.now = now
	return r
}

// Load reads one session, then its students and answers in parallel. Concurrent loads of
// the same session share one read, which is not tied to any single caller's context.
func (r *Reports) Load(ctx context.Context, id string) (report.Snapshot, error) {
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(id, func() (interface{}, error) {
		ctx := shared
		session, err := getSession(ctx, r.store, id)
		if err != nil {
			return report.Snapshot{}, err
		}
		snap := report.Snapshot{Session: session}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			snap.Students, err = listStudents(gctx, r.store, id)
			return err
		})
		g.Go(func() error {
			var err error
			snap.Answers, err = listAnswers(gctx, r.store, id)
			return err
		})
		if err := g.Wait(); err != nil {
			return report.Snapshot{}, err
		}
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return report.Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return report.Snapshot{}, res.Err
		}
		return res.Val.(report.Snapshot), nil
	}
}

// LoadAll reads every session, newest first, with its students and answers.
func (r *Reports) LoadAll(ctx context.Context) ([]report.Snapshot, error) {
	var sessions []domain.Session
	var students []domain.Student
	var answers []domain.Answer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		docs, err := r.store.Query(gctx, docstore.Query{Collection: docstore.Sessions}.Order("createdAt", docstore.Desc))
		if err != nil {
			return storeErr("list sessions", err)
		}
		sessions, err = decodeAll(docs, decodeSession)
		return err
	})
	g.Go(func() error {
		docs, err := r.store.Query(gctx, docstore.Query{Collection: docstore.Students}.Order("joinedAt", docstore.Asc))
		if err != nil {
			return storeErr("list students", err)
		}
		students, err = decodeAll(docs, decodeStudent)
		return err
	})
	g.Go(func() error {
		docs, err := r.store.Query(gctx, docstore.Query{Collection: docstore.Answers}.Order("submittedAt", docstore.Asc))
		if err != nil {
			return storeErr("list answers", err)
		}
		answers, err = decodeAll(docs, decodeAnswer)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bySession := make(map[string]*report.Snapshot, len(sessions))
	snaps := make([]report.Snapshot, len(sessions))
	for i, s := range sessions {
		snaps[i] = report.Snapshot{Session: s, Students: []domain.Student{}, Answers: []domain.Answer{}}
		bySession[s.ID] = &snaps[i]
	}
	for _, st := range students {
		if snap, ok := bySession[st.SessionID]; ok {
			snap.Students = append(snap.Students, st)
		}
	}
	for _, a := range answers {
		if snap, ok := bySession[a.SessionID]; ok {
			snap.Answers = append(snap.Answers, a)
		}
	}
	return snaps, nil
}

// Report builds the full report of one session.
func (r *Reports) Report(ctx context.Context, id string) (report.SessionReport, error) {
	snap, err := r.Load(ctx, id)
	if err != nil {
		return report.SessionReport{}, err
	}
	return report.Build(snap), nil
}

// List returns one page of the filtered session listing.
func (r *Reports) List(ctx context.Context, filter report.Filter, page int) (report.Listing, error) {
	snaps, err := r.LoadAll(ctx)
	if err != nil {
		return report.Listing{}, err
	}
	return report.List(snaps, filter, page, report.DefaultPageSize, r.now()), nil
}

// Export returns the export document of one session.
func (r *Reports) Export(ctx context.Context, id string) (report.Export, error) {
	snap, err := r.Load(ctx, id)
	if err != nil {
		return report.Export{}, err
	}
	return report.NewExport(snap, r.now()), nil
}

// ExportAll returns the export document of every session.
func (r *Reports) ExportAll(ctx context.Context) (report.ExportAll, error) {
	snaps, err := r.LoadAll(ctx)
	if err != nil {
		return report.ExportAll{}, fmt.Errorf("export all: %w", err)
	}
	r.logger.Info("exporting sessions", "sessions", len(snaps))
	return report.NewExportAll(snaps, r.now()), nil
}
