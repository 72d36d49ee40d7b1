// Package identity issues anonymous, stable per-client user ids.
package identity

import (
	"context"
	"fmt"
	"sync"

	"live-quiz-service/internal/domain"

	"github.com/google/uuid"
)

// Provider signs a client in anonymously. Calling it again returns the same id.
type Provider interface {
	SignInAnonymously(ctx context.Context) (string, error)
}

// KV is the slice of local durable state the Local provider needs.
type KV interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// StateKey is the local state key holding the anonymous id.
const StateKey = "identity"

// Local persists a generated id in the client's local state.
type Local struct {
	state KV
	mu    sync.Mutex
	id    string
}

func NewLocal(state KV) *Local {
	return &Local{state: state}
}

func (p *Local) SignInAnonymously(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id != "" {
		return p.id, nil
	}

	var id string
	ok, err := p.state.Load(ctx, StateKey, &id)
	if err != nil {
		return "", fmt.Errorf("%w: load identity: %v", domain.ErrBackendUnavailable, err)
	}
	if !ok || id == "" {
		id = uuid.NewString()
		if err := p.state.Save(ctx, StateKey, id); err != nil {
			return "", fmt.Errorf("%w: save identity: %v", domain.ErrBackendUnavailable, err)
		}
	}
	p.id = id
	return id, nil
}

// Static is an already verified identity, e.g. from a request cookie.
type Static string

func (s Static) SignInAnonymously(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: no client identity", domain.ErrPermission)
	}
	return string(s), nil
}
