package session

import (
	"sort"
	"sync"
)

// Store is the only shared mutable surface of the engine. Implementations
// must serialize turns on the same session via Acquire/Release while letting
// unrelated sessions proceed in parallel.
type Store interface {
	// GetOrCreate returns the session for id, creating it if absent.
	// The second return reports whether a new session was created.
	GetOrCreate(id string) (*Session, bool)
	// Get returns the session for id if it exists.
	Get(id string) (*Session, bool)
	// Save persists the session state.
	Save(s *Session) error
	// Clear removes the session. It returns false when no such session
	// exists, so repeated clears are a no-op rather than an error.
	Clear(id string) bool
	// List returns summaries of all active sessions.
	List() []Summary

	// Acquire blocks until the caller owns the turn lock for id.
	// A second turn on a busy session queues behind the first.
	Acquire(id string)
	// Release gives up the turn lock for id.
	Release(id string)
}

// turnLocks hands out one mutex per session id. Locks are never removed;
// a stale entry is a single mutex, and idle-session eviction policy lives
// outside the engine anyway.
type turnLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTurnLocks() *turnLocks {
	return &turnLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *turnLocks) acquire(id string) {
	t.mu.Lock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	t.mu.Unlock()
	l.Lock()
}

func (t *turnLocks) release(id string) {
	t.mu.Lock()
	l, ok := t.locks[id]
	t.mu.Unlock()
	if ok {
		l.Unlock()
	}
}

// MemoryStore keeps sessions in an in-process map. This is the default
// backend; sessions live for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	turns    *turnLocks
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		turns:    newTurnLocks(),
	}
}

// GetOrCreate returns the session for id, creating it if absent.
func (m *MemoryStore) GetOrCreate(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Touch()
		return s, false
	}
	s := New(id)
	m.sessions[id] = s
	return s, true
}

// Get returns the session for id if it exists.
func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Save is a no-op for the in-memory backend; sessions are mutated in place.
func (m *MemoryStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

// Clear removes the session for id, reporting whether it existed.
func (m *MemoryStore) Clear(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// List returns summaries of all sessions, most recently active first.
func (m *MemoryStore) List() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		summaries = append(summaries, s.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActive.After(summaries[j].LastActive)
	})
	return summaries
}

// Acquire blocks until the caller owns the turn lock for id.
func (m *MemoryStore) Acquire(id string) { m.turns.acquire(id) }

// Release gives up the turn lock for id.
func (m *MemoryStore) Release(id string) { m.turns.release(id) }
