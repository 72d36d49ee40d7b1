package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// LocalState keeps one client's durable records in Redis under local:{client}:{key},
// so a reload served by any instance finds them.
type LocalState struct {
	client   *redis.Client
	clientID string
	ttl      time.Duration
}

func NewLocalState(client *redis.Client, clientID string, ttl time.Duration) *LocalState {
	return &LocalState{client: client, clientID: clientID, ttl: ttl}
}

func (s *LocalState) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalState) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), raw, s.ttl).Err()
}

func (s *LocalState) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *LocalState) key(key string) string {
	return "local:" + s.clientID + ":" + key
}

// LocalStates hands out the LocalState of a client id.
type LocalStates struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocalStates(client *redis.Client, ttl time.Duration) *LocalStates {
	return &LocalStates{client: client, ttl: ttl}
}

func (s *LocalStates) For(clientID string) *LocalState {
	return NewLocalState(s.client, clientID, s.ttl)
}
