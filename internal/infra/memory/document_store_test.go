package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/docstore"
)

func TestDocumentStoreCRUD(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := NewDocumentStoreWithClock(func() time.Time { return now })

	id, err := store.Create(ctx, docstore.Sessions, docstore.Fields{
		"code":      "1234",
		"active":    true,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	doc, err := store.Get(ctx, docstore.Sessions, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["createdAt"] != now.Format(docstore.TimeLayout) {
		t.Fatalf("expected server timestamp, got %v", doc.Data["createdAt"])
	}

	if err := store.Update(ctx, docstore.Sessions, id, docstore.Fields{"active": false}); err != nil {
		t.Fatalf("update: %v", err)
	}
	found, _ := store.Query(ctx, docstore.Where(docstore.Sessions, docstore.Eq("code", "1234"), docstore.Eq("active", true)))
	if len(found) != 0 {
		t.Fatalf("expected no active session, got %d", len(found))
	}

	if err := store.Update(ctx, docstore.Sessions, "missing", docstore.Fields{"active": false}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	if err := store.Delete(ctx, docstore.Sessions, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, docstore.Sessions, id); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if _, err := store.Get(ctx, docstore.Sessions, id); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDocumentStoreUpsertKeepsOneDocument(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	if err := store.Upsert(ctx, docstore.Answers, "s_u_0", docstore.Fields{"value": 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Upsert(ctx, docstore.Answers, "s_u_0", docstore.Fields{"value": 2}); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}
	if store.Len(docstore.Answers) != 1 {
		t.Fatalf("expected one answer, got %d", store.Len(docstore.Answers))
	}
	doc, _ := store.Get(ctx, docstore.Answers, "s_u_0")
	if doc.Data["value"] != 2.0 {
		t.Fatalf("expected second value, got %v", doc.Data["value"])
	}
}

func TestDocumentStoreWatch(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	ch, stop, err := store.Watch(ctx, docstore.Where(docstore.Students, docstore.Eq("sessionId", "s1")))
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	if snap := next(t, ch); len(snap.Docs) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(snap.Docs))
	}

	if _, err := store.Create(ctx, docstore.Students, docstore.Fields{"sessionId": "s1", "name": "Alice"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if snap := next(t, ch); len(snap.Docs) != 1 || snap.Docs[0].Data["name"] != "Alice" {
		t.Fatalf("expected Alice, got %+v", snap.Docs)
	}
}

func next(t *testing.T, ch <-chan docstore.Snapshot) docstore.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for snapshot")
	}
	return docstore.Snapshot{}
}
