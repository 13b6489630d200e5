// Package keyspace is a string keyed byte store over the progressively
// resized map, along with a connection handler speaking a small text command
// set over framed messages.
package keyspace

import (
	"github.com/zeebo/xxh3"

	"github.com/zeebo/pollkv/internal/hmap"
)

type entry struct {
	key   string
	value []byte
}

func hashEntry(e *entry) uint64   { return xxh3.HashString(e.key) }
func equalEntry(a, b *entry) bool { return a.key == b.key }

// Store maps keys to values. It is not safe for concurrent use.
type Store struct {
	m *hmap.Map[entry]
}

// New returns an empty Store.
func New() *Store {
	return &Store{m: hmap.New(hashEntry, equalEntry)}
}

// Get returns the value for the key.
func (s *Store) Get(key string) ([]byte, bool) {
	n := s.m.Lookup(&entry{key: key})
	if n == nil {
		return nil, false
	}
	return n.Value.value, true
}

// Set stores a copy of value under key, replacing any existing value.
func (s *Store) Set(key string, value []byte) {
	value = append([]byte(nil), value...)
	if n := s.m.Lookup(&entry{key: key}); n != nil {
		n.Value.value = value
		return
	}
	s.m.Insert(s.m.Node(entry{key: key, value: value}))
}

// Del removes the key and reports if it was present.
func (s *Store) Del(key string) bool {
	return s.m.Delete(&entry{key: key}) != nil
}

// Len returns the number of keys.
func (s *Store) Len() int { return s.m.Len() }
