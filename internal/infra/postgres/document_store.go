package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"live-quiz-service/internal/docstore"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ChangesChannel is the NOTIFY channel the documents trigger publishes on.
const ChangesChannel = "docstore_changes"

// DocumentStore implements docstore.Store on one jsonb table. Equality filters are
// pushed down as jsonb containment; change notifications come from a trigger via
// LISTEN/NOTIFY, so watches see writes made by any instance.
type DocumentStore struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	broker *docstore.Broker
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewDocumentStore starts listening for changes before returning.
func NewDocumentStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := listen(ctx, pool)
	if err != nil {
		return nil, err
	}
	lctx, cancel := context.WithCancel(context.Background())
	s := &DocumentStore{
		pool:   pool,
		now:    time.Now,
		broker: docstore.NewBroker(),
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.notifications(lctx, conn)
	return s, nil
}

func listen(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, unavailable("acquire listener", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangesChannel); err != nil {
		conn.Release()
		return nil, unavailable("listen", err)
	}
	return conn, nil
}

// notifications forwards NOTIFY payloads to local watchers, re-listening on a fresh
// connection when the current one breaks.
func (s *DocumentStore) notifications(ctx context.Context, conn *pgxpool.Conn) {
	defer close(s.done)
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err == nil {
			s.broker.Publish(n.Payload)
			continue
		}
		conn.Release()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("document change listener lost", "error", err)
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			if conn, err = listen(ctx, s.pool); err == nil {
				break
			}
			s.logger.Warn("document change listener retry", "error", err)
		}
		// Changes made while disconnected were not announced.
		for _, c := range []string{docstore.Sessions, docstore.Students, docstore.Answers} {
			s.broker.Publish(c)
		}
	}
}

func (s *DocumentStore) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	raw, err := s.encode(fields)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)`,
		collection, id, raw)
	if err != nil {
		return "", unavailable("create", err)
	}
	return id, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var seq int64
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT seq, data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&seq, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, unavailable("get", err)
	}
	return decodeDocument(id, seq, raw)
}

func (s *DocumentStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	filter, err := json.Marshal(q.FilterObject())
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	sql := `SELECT id, seq, data FROM documents WHERE collection = $1 AND data @> $2::jsonb`
	args := []any{q.Collection, string(filter)}
	if q.ID != "" {
		sql += ` AND id = $3`
		args = append(args, q.ID)
	}
	sql += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable("query", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id string
		var seq int64
		var raw []byte
		if err := rows.Scan(&id, &seq, &raw); err != nil {
			return nil, unavailable("scan", err)
		}
		doc, err := decodeDocument(id, seq, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query", err)
	}
	// Ordering by a data field and the limit follow the shared semantics.
	return docstore.Apply(q, docs), nil
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	raw, err := s.encode(fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET data = data || $3::jsonb WHERE collection = $1 AND id = $2`,
		collection, id, raw)
	if err != nil {
		return unavailable("update", err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *DocumentStore) Upsert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	raw, err := s.encode(fields)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data`,
		collection, id, raw)
	if err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (s *DocumentStore) Watch(ctx context.Context, q docstore.Query) (<-chan docstore.Snapshot, func(), error) {
	ch, stop := docstore.Watch(ctx, s.broker, s.Query, q)
	return ch, stop, nil
}

// Close stops the listener. The pool belongs to the caller.
func (s *DocumentStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (s *DocumentStore) encode(fields docstore.Fields) (string, error) {
	data, err := docstore.Prepare(fields, s.now())
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func decodeDocument(id string, seq int64, raw []byte) (docstore.Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return docstore.Document{ID: id, Seq: seq, Data: data}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: postgres %s: %v", docstore.ErrUnavailable, op, err)
}
