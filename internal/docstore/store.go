// Package docstore describes the schemaless, real-time document database every
// controller reads and writes. Backends live under internal/infra.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Collections used by the quiz.
const (
	Sessions = "sessions"
	Students = "students"
	Answers  = "answers"
)

var (
	// ErrNotFound is returned by Get and Update when the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnavailable wraps transport failures talking to the backend.
	ErrUnavailable = errors.New("document store unavailable")
)

// Fields is a partial document: a set of top-level fields to write.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock when the write is applied.
var ServerTimestamp = serverTimestamp{}

// TimeLayout is how timestamps are stored. Fixed width, always UTC, so string order is
// time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Document is one stored document. Seq is the creation sequence and is the default
// result order.
type Document struct {
	ID   string
	Seq  int64
	Data map[string]any
}

// Decode unmarshals the document data into v.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Snapshot is one push from a watch: the full result set of the watched query, or the
// error that prevented reading it.
type Snapshot struct {
	Docs []Document
	Err  error
}

// First returns the first document of the snapshot, if any.
func (s Snapshot) First() (Document, bool) {
	if len(s.Docs) == 0 {
		return Document{}, false
	}
	return s.Docs[0], true
}

// Store is the document database capability.
type Store interface {
	// Create stores a new document under a store-generated id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	// Update merges top-level fields into an existing document.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Upsert creates the document under id or merges into it, atomically per document.
	Upsert(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document; deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Watch pushes the query result now and after every change that alters it.
	// The returned function releases the subscription and must be called.
	Watch(ctx context.Context, q Query) (<-chan Snapshot, func(), error)
	Close() error
}
