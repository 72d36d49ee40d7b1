package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// LocalState keeps a client's durable key-value records in process memory.
type LocalState struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewLocalState() *LocalState {
	return &LocalState{values: make(map[string][]byte)}
}

func (s *LocalState) Load(_ context.Context, key string, v any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalState) Save(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.values[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *LocalState) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}

// LocalStates hands out one LocalState per client id, for servers that act on behalf
// of many browsers.
type LocalStates struct {
	mu      sync.Mutex
	clients map[string]*LocalState
}

func NewLocalStates() *LocalStates {
	return &LocalStates{clients: make(map[string]*LocalState)}
}

// For returns the state of clientID, creating it on first use.
func (s *LocalStates) For(clientID string) *LocalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.clients[clientID]
	if !ok {
		state = NewLocalState()
		s.clients[clientID] = state
	}
	return state
}
