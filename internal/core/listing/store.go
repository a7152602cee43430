package listing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("listing not found")

// Filter narrows List. Zero values mean "any".
type Filter struct {
	Owner      Identity
	ActiveOnly bool
	Limit      int
}

// Store is the persistent listing collaborator. Implementations must be safe
// for concurrent use and apply UpdateFields atomically per call.
type Store interface {
	GetByID(ctx context.Context, id string) (*Listing, error)
	UpdateFields(ctx context.Context, id string, f Fields) error
	List(ctx context.Context, filter Filter) ([]*Listing, error)
	Create(ctx context.Context, l *Listing) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps listings in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Listing
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Listing), now: time.Now}
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return l.Clone(), nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, id string, f Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	f.Apply(l)
	l.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Listing, error) {
	s.mu.RLock()
	out := make([]*Listing, 0, len(s.items))
	for _, l := range s.items {
		if filter.ActiveOnly && !l.IsActive {
			continue
		}
		if filter.Owner != "" && l.Owner != filter.Owner {
			continue
		}
		out = append(out, l.Clone())
	}
	s.mu.RUnlock()

	// newest first, same as the catalog query
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, l *Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	l.UpdatedAt = l.CreatedAt
	s.items[l.ID] = l.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
