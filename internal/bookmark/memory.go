package bookmark

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps bookmarks in memory. Used by demo mode and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	bookmarks map[string]Bookmark
}

// NewMemoryRepository creates a repository seeded with bookmarks.
func NewMemoryRepository(seed ...Bookmark) *MemoryRepository {
	r := &MemoryRepository{bookmarks: make(map[string]Bookmark, len(seed))}
	for _, b := range seed {
		if b.ID == "" {
			b.ID = b.Key()
		}
		r.bookmarks[b.ID] = b
	}
	return r
}

func (r *MemoryRepository) List(_ context.Context) ([]Bookmark, error) {
	r.mu.RLock()
	out := make([]Bookmark, 0, len(r.bookmarks))
	for _, b := range r.bookmarks {
		out = append(out, b)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Bookmark, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookmarks[id]
	if !ok {
		return Bookmark{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepository) Save(_ context.Context, b Bookmark) (Bookmark, error) {
	if err := b.Validate(); err != nil {
		return Bookmark{}, err
	}
	if b.ID == "" {
		b.ID = b.Key()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.bookmarks[b.ID] = b
	r.mu.Unlock()
	return b, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookmarks[id]; !ok {
		return ErrNotFound
	}
	delete(r.bookmarks, id)
	return nil
}

func (r *MemoryRepository) SetRole(_ context.Context, id, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookmarks[id]
	if !ok {
		return ErrNotFound
	}
	b.Role = role
	r.bookmarks[id] = b
	return nil
}
