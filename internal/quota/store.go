package quota

import "sync"

// Store is the keyed record store behind the Tracker. The default
// implementation is in-memory and process-local; the interface exists so a
// durable or shared backend can be swapped in without touching the
// admission logic.
type Store interface {
	// Get retrieves the record for a client ID.
	Get(id string) (*Record, bool)

	// Put stores the record for a client ID.
	Put(id string, rec *Record)

	// Delete removes the record for a client ID (no-op if absent).
	Delete(id string)

	// IDs returns all client IDs currently in the store.
	IDs() []string
}

// MemoryStore is a process-local Store backed by a map.
// It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (s *MemoryStore) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	return rec, exists
}

func (s *MemoryStore) Put(id string, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = rec
}

func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
}

func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}

	return ids
}
