package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/memorypg/memorypg/types"
)

// ChangeKind labels a change notification emitted by an EntryStore.
type ChangeKind string

const (
	ChangeUpserted ChangeKind = "upserted"
	ChangeRemoved  ChangeKind = "removed"
	ChangeExpired  ChangeKind = "expired"
)

// ChangeEvent describes a single mutation of the entry set.
type ChangeEvent struct {
	Kind  ChangeKind
	Entry *types.ContextEntry
}

// EntryStore holds the live context entries. Entries are runtime state
// shared between editor events and prompt assembly, not one of the durable
// tables. Subscribers receive a synchronous callback for every mutation;
// callbacks must be fast and must not call back into the store.
type EntryStore struct {
	mu          sync.RWMutex
	entries     map[string]*types.ContextEntry
	subscribers map[int]func(ChangeEvent)
	nextSubID   int
}

// NewEntryStore creates an empty entry store.
func NewEntryStore() *EntryStore {
	return &EntryStore{
		entries:     make(map[string]*types.ContextEntry),
		subscribers: make(map[int]func(ChangeEvent)),
	}
}

// Subscribe registers a change callback and returns a cancel function.
func (s *EntryStore) Subscribe(fn func(ChangeEvent)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *EntryStore) notify(ev ChangeEvent) {
	for _, fn := range s.subscribers {
		fn(ev)
	}
}

// Upsert inserts or replaces the entry keyed by its ID.
func (s *EntryStore) Upsert(entry *types.ContextEntry) {
	cp := cloneEntry(entry)

	s.mu.Lock()
	s.entries[cp.ID] = cp
	s.notify(ChangeEvent{Kind: ChangeUpserted, Entry: cloneEntry(cp)})
	s.mu.Unlock()
}

// Get returns the entry with the given ID, or nil when absent.
func (s *EntryStore) Get(id string) *types.ContextEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil
	}
	return cloneEntry(entry)
}

// List returns all entries ordered by creation time, oldest first.
func (s *EntryStore) List() []*types.ContextEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.ContextEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, cloneEntry(entry))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of live entries.
func (s *EntryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Touch records an access: bumps accessCount and refreshes lastAccessedAt.
// Returns false when the entry does not exist.
func (s *EntryStore) Touch(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	entry.AccessCount++
	entry.LastAccessedAt = now
	return true
}

// Remove deletes the entry by ID. Returns false when absent.
func (s *EntryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	s.notify(ChangeEvent{Kind: ChangeRemoved, Entry: cloneEntry(entry)})
	return true
}

// RemoveWhere deletes every entry the predicate matches and returns the
// number removed.
func (s *EntryStore) RemoveWhere(match func(*types.ContextEntry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if match(entry) {
			delete(s.entries, id)
			s.notify(ChangeEvent{Kind: ChangeRemoved, Entry: cloneEntry(entry)})
			removed++
		}
	}
	return removed
}

// SweepExpired removes every entry whose expiresAt is at or before now and
// returns the number swept.
func (s *EntryStore) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, id)
			s.notify(ChangeEvent{Kind: ChangeExpired, Entry: cloneEntry(entry)})
			swept++
		}
	}
	return swept
}

func cloneEntry(entry *types.ContextEntry) *types.ContextEntry {
	cp := *entry
	cp.Metadata.Tags = append([]string(nil), entry.Metadata.Tags...)
	cp.Metadata.Dependencies = append([]string(nil), entry.Metadata.Dependencies...)
	cp.Content.Items = append([]string(nil), entry.Content.Items...)
	cp.Content.Diagnostics = append([]types.Diagnostic(nil), entry.Content.Diagnostics...)
	return &cp
}
