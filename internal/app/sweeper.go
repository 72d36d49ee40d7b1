package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"live-quiz-service/internal/docstore"
)

// SweepResult counts the orphans removed by one sweep.
type SweepResult struct {
	Students int
	Answers  int
}

// Sweeper removes students and answers whose session no longer exists, left behind by
// an interrupted delete.
type Sweeper struct {
	store  docstore.Store
	logger *slog.Logger
}

func NewSweeper(store docstore.Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, logger: loggerOrDefault(logger)}
}

// Sweep runs one pass. Children are listed before sessions: a child is always written
// after its session, so a child seen here has a session the later listing will see.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	students, err := s.store.Query(ctx, docstore.Query{Collection: docstore.Students})
	if err != nil {
		return SweepResult{}, storeErr("list students", err)
	}
	answers, err := s.store.Query(ctx, docstore.Query{Collection: docstore.Answers})
	if err != nil {
		return SweepResult{}, storeErr("list answers", err)
	}
	sessions, err := s.store.Query(ctx, docstore.Query{Collection: docstore.Sessions})
	if err != nil {
		return SweepResult{}, storeErr("list sessions", err)
	}

	live := make(map[string]bool, len(sessions))
	for _, doc := range sessions {
		live[doc.ID] = true
	}

	var res SweepResult
	if res.Students, err = s.remove(ctx, docstore.Students, students, live); err != nil {
		return res, err
	}
	if res.Answers, err = s.remove(ctx, docstore.Answers, answers, live); err != nil {
		return res, err
	}
	if res.Students > 0 || res.Answers > 0 {
		s.logger.Info("orphans removed", "students", res.Students, "answers", res.Answers)
	}
	return res, nil
}

func (s *Sweeper) remove(ctx context.Context, collection string, docs []docstore.Document, live map[string]bool) (int, error) {
	removed := 0
	for _, doc := range docs {
		sessionID, _ := doc.Data["sessionId"].(string)
		if live[sessionID] {
			continue
		}
		if err := s.store.Delete(ctx, collection, doc.ID); err != nil {
			return removed, fmt.Errorf("remove orphan %s/%s: %w", collection, doc.ID, err)
		}
		removed++
	}
	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("orphan sweep failed", "error", err)
			}
		}
	}
}
