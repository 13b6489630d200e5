// Package hmap provides a chained hash map that grows by moving entries to a
// larger table a few at a time, so no single call pays for a full rehash.
package hmap

import (
	"github.com/zeebo/pollkv/internal/htable"
)

//
// parameters for the map
//

const (
	initialBuckets = 4
	maxLoadFactor  = 8
	resizeWork     = 128
)

// resizing is the state of an in progress resize. older is drained into the
// newer table starting at bucket cursor.
type resizing[T any] struct {
	older  *htable.Table[T]
	cursor int
}

// Map is a hash map that resizes progressively. It is not safe for
// concurrent use.
type Map[T any] struct {
	newer    *htable.Table[T]
	resize   *resizing[T]
	episodes int
	hash     func(*T) uint64
	eq       func(a, b *T) bool
}

// New returns an empty Map using hash and eq to define keys. The two must be
// consistent for the life of the map.
func New[T any](hash func(*T) uint64, eq func(a, b *T) bool) *Map[T] {
	return &Map[T]{
		newer: htable.New[T](initialBuckets, eq),
		hash:  hash,
		eq:    eq,
	}
}

// Node returns a detached node for v ready to be inserted.
func (m *Map[T]) Node(v T) *htable.Node[T] {
	return htable.NewNode(m.hash(&v), v)
}

//
// resizing
//

func (m *Map[T]) startResize() {
	m.resize = &resizing[T]{older: m.newer}
	m.newer = htable.New[T](m.newer.Buckets()*2, m.eq)
	m.episodes++
}

// helpResize moves up to resizeWork nodes out of the older table, releasing
// it once it is empty.
func (m *Map[T]) helpResize() {
	r := m.resize
	if r == nil {
		return
	}

	for work := 0; work < resizeWork && r.older.Len() > 0; {
		from := r.older.Bucket(r.cursor)
		if *from == nil {
			r.cursor++
			continue
		}
		m.newer.Insert(r.older.Detach(from))
		work++
	}

	if r.older.Len() == 0 {
		m.resize = nil
	}
}

//
// operations
//

// Lookup returns the node equal to key, or nil.
func (m *Map[T]) Lookup(key *T) *htable.Node[T] {
	m.helpResize()

	h := m.hash(key)
	from := m.newer.Lookup(h, key)
	if from == nil && m.resize != nil {
		from = m.resize.older.Lookup(h, key)
	}
	if from == nil {
		return nil
	}
	return *from
}

// Insert adds the node to the map. It does not replace an equal node that
// is already present.
func (m *Map[T]) Insert(n *htable.Node[T]) {
	m.newer.Insert(n)
	if m.resize == nil && m.newer.LoadFactor() >= maxLoadFactor {
		m.startResize()
	}
	m.helpResize()
}

// Delete removes and returns the node equal to key, or nil.
func (m *Map[T]) Delete(key *T) *htable.Node[T] {
	m.helpResize()

	h := m.hash(key)
	if n := m.newer.Pop(h, key); n != nil {
		return n
	}
	if m.resize != nil {
		return m.resize.older.Pop(h, key)
	}
	return nil
}

// Len returns the number of nodes in the map.
func (m *Map[T]) Len() int {
	n := m.newer.Len()
	if m.resize != nil {
		n += m.resize.older.Len()
	}
	return n
}

// Resizing reports if entries are still being moved out of an older table.
func (m *Map[T]) Resizing() bool { return m.resize != nil }

// Episodes returns how many resizes have been started.
func (m *Map[T]) Episodes() int { return m.episodes }

// Range calls fn for every node until fn returns false. fn must not modify
// the map.
func (m *Map[T]) Range(fn func(n *htable.Node[T]) bool) {
	if !m.newer.Range(fn) || m.resize == nil {
		return
	}
	m.resize.older.Range(fn)
}
