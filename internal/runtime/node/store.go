package node

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

// Store drivers accepted by OpenStore.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DefaultMemoryCapacity bounds the items kept by a MemoryStore.
const DefaultMemoryCapacity = 1000

// Store keeps published items for history fetches.
type Store interface {
	// Add stores an item. Adding an ID that is already stored is a no-op.
	Add(ctx context.Context, item protocol.AtomEntry) error
	// Recent returns at most limit items matching query, newest first.
	Recent(ctx context.Context, query string, limit int) ([]protocol.AtomEntry, error)
	Close() error
}

// OpenStore opens the store selected by driver. An empty driver selects the
// memory store.
func OpenStore(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", DriverMemory:
		return NewMemoryStore(DefaultMemoryCapacity), nil
	case DriverSQLite, "sqlite":
		return OpenSQLStore(ctx, DriverSQLite, dsn)
	case DriverPostgres:
		return OpenSQLStore(ctx, DriverPostgres, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Terms splits a query into the lower-cased terms an item must contain.
func Terms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// Matches reports whether the searchable text of item contains every term of
// query, ignoring case. An empty query matches nothing.
func Matches(query string, item protocol.AtomEntry) bool {
	terms := Terms(query)
	if len(terms) == 0 {
		return false
	}
	text := strings.ToLower(item.Text())
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

// MemoryStore keeps the most recent items in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	items    []protocol.AtomEntry
	ids      map[string]struct{}
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, ids: make(map[string]struct{})}
}

func (s *MemoryStore) Add(_ context.Context, item protocol.AtomEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[item.ID]; ok {
		return nil
	}
	s.items = append(s.items, item)
	s.ids[item.ID] = struct{}{}
	if len(s.items) > s.capacity {
		delete(s.ids, s.items[0].ID)
		s.items = s.items[1:]
	}
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, query string, limit int) ([]protocol.AtomEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []protocol.AtomEntry
	for i := len(s.items) - 1; i >= 0 && len(out) < limit; i-- {
		if Matches(query, s.items[i]) {
			out = append(out, s.items[i])
		}
	}
	return out, nil
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) Close() error { return nil }
