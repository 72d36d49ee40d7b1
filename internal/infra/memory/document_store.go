package memory

import (
	"context"
	"sync"
	"time"

	"live-quiz-service/internal/docstore"

	"github.com/google/uuid"
)

// DocumentStore is an in-process implementation of docstore.Store. Useful for tests,
// demos and single-instance deployments.
type DocumentStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]docstore.Document
	seq    int64
	now    func() time.Time
	broker *docstore.Broker
}

func NewDocumentStore() *DocumentStore {
	return NewDocumentStoreWithClock(time.Now)
}

// NewDocumentStoreWithClock allows deterministic server timestamps in tests.
func NewDocumentStoreWithClock(now func() time.Time) *DocumentStore {
	return &DocumentStore{
		docs:   make(map[string]map[string]docstore.Document),
		now:    now,
		broker: docstore.NewBroker(),
	}
}

func (s *DocumentStore) Create(_ context.Context, collection string, fields docstore.Fields) (string, error) {
	data, err := docstore.Prepare(fields, s.now())
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.insertLocked(collection, id, data)
	s.mu.Unlock()

	s.broker.Publish(collection)
	return id, nil
}

func (s *DocumentStore) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *DocumentStore) Query(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	all := make([]docstore.Document, 0, len(s.docs[q.Collection]))
	for _, doc := range s.docs[q.Collection] {
		all = append(all, copyDoc(doc))
	}
	s.mu.RUnlock()
	return docstore.Apply(q, all), nil
}

func (s *DocumentStore) Update(_ context.Context, collection, id string, fields docstore.Fields) error {
	patch, err := docstore.Prepare(fields, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.docs[collection][id]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	doc.Data = docstore.Merge(doc.Data, patch)
	s.docs[collection][id] = doc
	s.mu.Unlock()

	s.broker.Publish(collection)
	return nil
}

func (s *DocumentStore) Upsert(_ context.Context, collection, id string, fields docstore.Fields) error {
	patch, err := docstore.Prepare(fields, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	if doc, ok := s.docs[collection][id]; ok {
		doc.Data = docstore.Merge(doc.Data, patch)
		s.docs[collection][id] = doc
	} else {
		s.insertLocked(collection, id, patch)
	}
	s.mu.Unlock()

	s.broker.Publish(collection)
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	_, ok := s.docs[collection][id]
	delete(s.docs[collection], id)
	s.mu.Unlock()

	if ok {
		s.broker.Publish(collection)
	}
	return nil
}

func (s *DocumentStore) Watch(ctx context.Context, q docstore.Query) (<-chan docstore.Snapshot, func(), error) {
	ch, stop := docstore.Watch(ctx, s.broker, s.Query, q)
	return ch, stop, nil
}

func (s *DocumentStore) Close() error {
	return nil
}

// Len reports how many documents a collection holds.
func (s *DocumentStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}

func (s *DocumentStore) insertLocked(collection, id string, data map[string]any) {
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]docstore.Document)
	}
	s.seq++
	s.docs[collection][id] = docstore.Document{ID: id, Seq: s.seq, Data: data}
}

// copyDoc detaches the top-level map; nested values are never mutated in place.
func copyDoc(doc docstore.Document) docstore.Document {
	doc.Data = docstore.Merge(doc.Data, nil)
	return doc
}
