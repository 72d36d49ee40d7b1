package redis

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
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "docstore:"
	seqKey         = "docstore:seq"
	changesChannel = "docstore:changes"
	maxTxRetries   = 8
)

// indexedFields are the string fields kept in per-value sets so equality queries on
// them read only the matching documents.
var indexedFields = []string{"sessionId", "code"}

// DocumentStore implements docstore.Store on Redis. Each document is its own key
// (docstore:{collection}:doc:{id}) holding {"seq":..,"data":..}; docstore:{collection}:ids
// lists a collection and docstore:{collection}:by:{field}:{value} indexes the fields in
// indexedFields. Writes lock only the document they touch.
//
// Every write publishes the collection name on docstore:changes; each instance feeds
// those messages to its local watchers, so watches see writes made through any instance.
type DocumentStore struct {
	client *redis.Client
	now    func() time.Time
	broker *docstore.Broker
	logger *slog.Logger

	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

type envelope struct {
	Seq  int64          `json:"seq"`
	Data map[string]any `json:"data"`
}

func docKey(collection, id string) string {
	return keyPrefix + collection + ":doc:" + id
}

func idsKey(collection string) string {
	return keyPrefix + collection + ":ids"
}

func indexKey(collection, field, value string) string {
	return keyPrefix + collection + ":by:" + field + ":" + value
}

// indexKeys lists the index sets data belongs to.
func indexKeys(collection string, data map[string]any) []string {
	var keys []string
	for _, field := range indexedFields {
		if v, ok := data[field].(string); ok {
			keys = append(keys, indexKey(collection, field, v))
		}
	}
	return keys
}

// NewDocumentStore subscribes to the change channel before returning, so no change
// published afterwards is missed.
func NewDocumentStore(ctx context.Context, client *redis.Client, logger *slog.Logger) (*DocumentStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ps := client.Subscribe(ctx, changesChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", docstore.ErrUnavailable, changesChannel, err)
	}
	s := &DocumentStore{
		client: client,
		now:    time.Now,
		broker: docstore.NewBroker(),
		logger: logger,
		pubsub: ps,
		done:   make(chan struct{}),
	}
	go s.listen()
	return s, nil
}

func (s *DocumentStore) listen() {
	defer close(s.done)
	for msg := range s.pubsub.Channel() {
		s.broker.Publish(msg.Payload)
	}
}

func (s *DocumentStore) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	data, err := docstore.Prepare(fields, s.now())
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return "", unavailable("next sequence", err)
	}
	raw, err := json.Marshal(envelope{Seq: seq, Data: data})
	if err != nil {
		return "", err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(collection, id), raw, 0)
		pipe.SAdd(ctx, idsKey(collection), id)
		for _, key := range indexKeys(collection, data) {
			pipe.SAdd(ctx, key, id)
		}
		return nil
	})
	if err != nil {
		return "", unavailable("create", err)
	}
	s.notify(ctx, collection)
	return id, nil
}

func (s *DocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	raw, err := s.client.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, unavailable("get", err)
	}
	return decodeDocument(id, raw)
}

// Query reads the narrowest index set the filters allow, then filters and orders the
// loaded documents in process.
func (s *DocumentStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if q.ID != "" {
		doc, err := s.Get(ctx, q.Collection, q.ID)
		if errors.Is(err, docstore.ErrNotFound) {
			return []docstore.Document{}, nil
		}
		if err != nil {
			return nil, err
		}
		return docstore.Apply(q, []docstore.Document{doc}), nil
	}

	ids, err := s.client.SMembers(ctx, s.candidates(q)).Result()
	if err != nil {
		return nil, unavailable("query", err)
	}
	if len(ids) == 0 {
		return []docstore.Document{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(q.Collection, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("query", err)
	}
	docs := make([]docstore.Document, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// deleted between SMEMBERS and MGET
			continue
		}
		doc, err := decodeDocument(ids[i], []byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docstore.Apply(q, docs), nil
}

// candidates picks the set holding every document q can match.
func (s *DocumentStore) candidates(q docstore.Query) string {
	for _, f := range q.Filters {
		for _, field := range indexedFields {
			if v, ok := f.Value.(string); ok && f.Field == field {
				return indexKey(q.Collection, field, v)
			}
		}
	}
	return idsKey(q.Collection)
}

func (s *DocumentStore) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.merge(ctx, collection, id, fields, false)
}

func (s *DocumentStore) Upsert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	return s.merge(ctx, collection, id, fields, true)
}

// merge is an optimistic read-modify-write of one document key, retried when another
// writer changed that document in between.
func (s *DocumentStore) merge(ctx context.Context, collection, id string, fields docstore.Fields, create bool) error {
	patch, err := docstore.Prepare(fields, s.now())
	if err != nil {
		return err
	}
	key := docKey(collection, id)

	txf := func(tx *redis.Tx) error {
		var env envelope
		var before map[string]any
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if !create {
				return docstore.ErrNotFound
			}
			seq, err := tx.Incr(ctx, seqKey).Result()
			if err != nil {
				return err
			}
			env = envelope{Seq: seq, Data: patch}
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &env); err != nil {
				return fmt.Errorf("decode %s/%s: %w", collection, id, err)
			}
			before = env.Data
			env.Data = docstore.Merge(env.Data, patch)
		}
		out, err := json.Marshal(env)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			pipe.SAdd(ctx, idsKey(collection), id)
			for _, k := range indexKeys(collection, before) {
				pipe.SRem(ctx, k, id)
			}
			for _, k := range indexKeys(collection, env.Data) {
				pipe.SAdd(ctx, k, id)
			}
			return nil
		})
		return err
	}

	if err := s.withRetry(ctx, txf, key); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		return unavailable("write", fmt.Errorf("%s/%s: %w", collection, id, err))
	}
	s.notify(ctx, collection)
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	key := docKey(collection, id)
	removed := false
	txf := func(tx *redis.Tx) error {
		removed = false
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, idsKey(collection), id)
			for _, k := range indexKeys(collection, env.Data) {
				pipe.SRem(ctx, k, id)
			}
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	}
	if err := s.withRetry(ctx, txf, key); err != nil {
		return unavailable("delete", fmt.Errorf("%s/%s: %w", collection, id, err))
	}
	if removed {
		s.notify(ctx, collection)
	}
	return nil
}

// withRetry runs txf under WATCH of key until it commits. Only writers of the same
// document conflict.
func (s *DocumentStore) withRetry(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errors.New("too much contention")
}

func (s *DocumentStore) Watch(ctx context.Context, q docstore.Query) (<-chan docstore.Snapshot, func(), error) {
	ch, stop := docstore.Watch(ctx, s.broker, s.Query, q)
	return ch, stop, nil
}

func (s *DocumentStore) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

// notify announces a change. The write already happened, so a failed publish is only
// logged; watchers catch up on the next change.
func (s *DocumentStore) notify(ctx context.Context, collection string) {
	if err := s.client.Publish(ctx, changesChannel, collection).Err(); err != nil {
		s.logger.Warn("publish document change", "collection", collection, "error", err)
	}
}

func decodeDocument(id string, raw []byte) (docstore.Document, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return docstore.Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	return docstore.Document{ID: id, Seq: env.Seq, Data: env.Data}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", docstore.ErrUnavailable, op, err)
}
