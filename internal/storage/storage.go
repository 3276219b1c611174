package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eugenenazirov/cultist-circle/internal/item"
)

// MaxItems is the largest catalog or request pool accepted, counted after
// stacks are expanded.
const MaxItems = 10_000

var (
	// ErrInvalidItems indicates the provided catalog violates validation rules.
	ErrInvalidItems = errors.New("catalog must contain between 1 and 10000 valid items")
	// ErrDuplicateID indicates two catalog entries share an ID.
	ErrDuplicateID = errors.New("catalog item IDs must be unique")
)

// Storage provides access to the item catalog used by the selector.
type Storage interface {
	GetItems() ([]item.Item, error)
	SetItems(items []item.Item) error
	UpdatedAt() time.Time
}

// MemoryStorage keeps the catalog in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu        sync.RWMutex
	items     []item.Item
	updatedAt time.Time
	clock     func() time.Time
}

// NewMemoryStorage initialises an empty catalog.
func NewMemoryStorage() *MemoryStorage {
	return NewMemoryStorageWithClock(func() time.Time {
		return time.Now().UTC()
	})
}

// NewMemoryStorageWithClock is NewMemoryStorage with an injected time source.
func NewMemoryStorageWithClock(clock func() time.Time) *MemoryStorage {
	return &MemoryStorage{
		items:     []item.Item{},
		updatedAt: clock(),
		clock:     clock,
	}
}

// GetItems returns a defensive copy of the current catalog.
func (s *MemoryStorage) GetItems() ([]item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clone(s.items), nil
}

// SetItems validates, normalises, and stores the provided catalog.
func (s *MemoryStorage) SetItems(items []item.Item) error {
	normalized, err := normalizeItems(items)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items = normalized
	s.updatedAt = s.clock()
	s.mu.Unlock()

	return nil
}

// UpdatedAt returns when the catalog was last replaced.
func (s *MemoryStorage) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func clone(src []item.Item) []item.Item {
	out := make([]item.Item, len(src))
	copy(out, src)
	return out
}

// NormalizeItems validates a pool, defaults missing dimensions and assigns
// IDs to entries without one. The input slice is not modified.
func NormalizeItems(items []item.Item) ([]item.Item, error) {
	out := make([]item.Item, 0, len(items))
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrInvalidItems, i, err)
		}
		it = it.Normalize()
		if it.ID == "" {
			it.ID = item.NewID()
		}
		out = append(out, it)
	}
	return out, nil
}

func normalizeItems(items []item.Item) ([]item.Item, error) {
	if len(items) == 0 || len(items) > MaxItems {
		return nil, ErrInvalidItems
	}

	out, err := NormalizeItems(items)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(out))
	for _, it := range out {
		if _, dup := seen[it.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return out, nil
}
