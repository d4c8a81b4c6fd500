package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brandbeam/brandbeam/pkg/models"
)

// MemoryStore is the in-memory Store used for development and tests.
// Zero configuration, single process.
type MemoryStore struct {
	mu         sync.RWMutex
	principals map[string]*models.Principal
	tokens     map[string]string // token → principal id
}

// NewMemoryStore creates an empty in-memory principal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		principals: make(map[string]*models.Principal),
		tokens:     make(map[string]string),
	}
}

func (s *MemoryStore) GetPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "principal", Key: id}
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetPrincipalByToken(ctx context.Context, token string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokens[token]
	if !ok {
		return nil, &ErrNotFound{Entity: "principal", Key: "token"}
	}
	p, ok := s.principals[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "principal", Key: id}
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CreatePrincipal(ctx context.Context, p *models.Principal, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.CycleStart.IsZero() {
		p.CycleStart = p.CreatedAt
	}
	cp := *p
	s.principals[p.ID] = &cp
	if token != "" {
		s.tokens[token] = p.ID
	}
	return nil
}

func (s *MemoryStore) AddTokensUsed(ctx context.Context, id string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[id]
	if !ok {
		return 0, &ErrNotFound{Entity: "principal", Key: id}
	}
	p.TokensUsed += amount
	return p.TokensUsed, nil
}

func (s *MemoryStore) ListPrincipals(ctx context.Context) ([]models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, *p)
	}
	return out, nil
}

func (s *MemoryStore) ResetUsage(ctx context.Context, id string, cycleStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[id]
	if !ok {
		return &ErrNotFound{Entity: "principal", Key: id}
	}
	p.TokensUsed = 0
	p.CycleStart = cycleStart
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
