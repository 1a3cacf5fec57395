package cache

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Store is a set of namespaced caches, each limited in size and in time since last access.
//
// Every key is in one of three states, see State.
type Store[T any] struct {
	mutex      sync.RWMutex
	namespaces map[string]*ttlcache.Cache[string, ttlEntry[T]]
	stopped    bool
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		namespaces: make(map[string]*ttlcache.Cache[string, ttlEntry[T]]),
	}
}

// Register creates the namespace. A limit of 0 means no size limit.
//
// Registering an existing namespace keeps the existing entries and limits.
func (s *Store[T]) Register(namespace string, limit uint64, ttl time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.namespaces[namespace]; ok {
		return
	}

	namespaceCache := ttlcache.New[string, ttlEntry[T]](
		ttlcache.WithTTL[string, ttlEntry[T]](ttl),
		ttlcache.WithCapacity[string, ttlEntry[T]](limit),
	)
	if !s.stopped {
		go namespaceCache.Start()
	}
	s.namespaces[namespace] = namespaceCache
}

func (s *Store[T]) namespace(namespace string) (*ttlcache.Cache[string, ttlEntry[T]], bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	namespaceCache, ok := s.namespaces[namespace]
	return namespaceCache, ok
}

// Get returns the entry for key. Unregistered namespaces hold no entries.
func (s *Store[T]) Get(namespace, key string) Entry[T] {
	namespaceCache, ok := s.namespace(namespace)
	if !ok {
		return Entry[T]{State: Absent}
	}

	item := namespaceCache.Get(key)
	if item == nil {
		return Entry[T]{State: Absent}
	}
	return item.Value().toEntry()
}

// GetOrClaim returns the entry for key, or marks it as in progress if it is absent.
//
// Returns true if the entry was claimed by this call.
func (s *Store[T]) GetOrClaim(namespace, key string) (Entry[T], bool) {
	namespaceCache, ok := s.namespace(namespace)
	if !ok {
		return Entry[T]{State: Absent}, false
	}

	item, existed := namespaceCache.GetOrSet(key, ttlEntry[T]{present: false})
	if !existed {
		return Entry[T]{State: InProgress}, true
	}
	return item.Value().toEntry(), false
}

// Append stores data for key, replacing an in-progress marker.
func (s *Store[T]) Append(namespace, key string, data T) {
	namespaceCache, ok := s.namespace(namespace)
	if !ok {
		return
	}
	namespaceCache.Set(key, ttlEntry[T]{data: data, present: true}, ttlcache.DefaultTTL)
}

func (s *Store[T]) Remove(namespace, key string) {
	namespaceCache, ok := s.namespace(namespace)
	if !ok {
		return
	}
	namespaceCache.Delete(key)
}

func (s *Store[T]) Len(namespace string) int {
	namespaceCache, ok := s.namespace(namespace)
	if !ok {
		return 0
	}
	return namespaceCache.Len()
}

// Stop ends the background expiry of every namespace. Entries still expire on access.
func (s *Store[T]) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true

	for _, namespaceCache := range s.namespaces {
		namespaceCache.Stop()
	}
}
