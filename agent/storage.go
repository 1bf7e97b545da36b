package agent

import "sync"

// StorageKey is a typed key into Storage. Two keys address the same slot
// only when both name and value type match.
type StorageKey[T any] struct {
	name  string
	clone func(T) T
}

// storageID is the comparable map key behind a StorageKey.
type storageID[T any] struct{ name string }

// NewStorageKey creates a storage key.
func NewStorageKey[T any](name string) StorageKey[T] {
	return StorageKey[T]{name: name}
}

// WithClone returns k with a copy hook applied when the storage is forked.
// Values set without one are shared by reference between forks, so slices,
// maps and pointers stored that way must be treated as immutable.
func (k StorageKey[T]) WithClone(clone func(T) T) StorageKey[T] {
	k.clone = clone
	return k
}

func (k StorageKey[T]) Name() string { return k.name }

func (k StorageKey[T]) id() storageID[T] { return storageID[T]{name: k.name} }

// Get returns the value stored under k.
func (k StorageKey[T]) Get(s *Storage) (T, bool) {
	var zero T
	e, ok := s.get(k.id())
	if !ok {
		return zero, false
	}
	t, ok := e.value.(T)
	return t, ok
}

// Set stores v under k.
func (k StorageKey[T]) Set(s *Storage, v T) {
	e := storageEntry{value: v}
	if k.clone != nil {
		clone := k.clone
		e.clone = func(a any) any { return clone(a.(T)) }
	}
	s.set(k.id(), e)
}

// Remove deletes k.
func (k StorageKey[T]) Remove(s *Storage) { s.remove(k.id()) }

type storageEntry struct {
	value any
	clone func(any) any
}

// Storage passes auxiliary values between nodes outside the input/output
// chain. Each Context owns its storage; forks receive a snapshot.
type Storage struct {
	mu   sync.RWMutex
	data map[any]storageEntry
}

func newStorage() *Storage {
	return &Storage{data: make(map[any]storageEntry)}
}

func (s *Storage) get(k any) (storageEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[k]
	return v, ok
}

func (s *Storage) set(k any, v storageEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[k] = v
}

func (s *Storage) remove(k any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, k)
}

// Len returns the number of stored values.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear removes every value.
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
}

// snapshot copies the map; values are copied only through their key's
// clone hook.
func (s *Storage) snapshot() *Storage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := make(map[any]storageEntry, len(s.data))
	for k, e := range s.data {
		if e.clone != nil {
			e.value = e.clone(e.value)
		}
		data[k] = e
	}
	return &Storage{data: data}
}
