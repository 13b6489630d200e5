package htable

import "math/bits"

//
// parameters for the table
//

const minBuckets = 4

// bucketsFor rounds the capacity up to a power of two no smaller than
// minBuckets.
func bucketsFor(capacity int) int {
	if capacity <= minBuckets {
		return minBuckets
	}
	return 1 << bits.Len(uint(capacity-1))
}

// Table is a fixed size chained hash table. It never grows on its own.
type Table[T any] struct {
	buckets []*Node[T]
	mask    uint64
	size    int
	eq      func(a, b *T) bool
}

// New returns a Table with at least capacity buckets. Keys are compared by
// hash first and then with eq.
func New[T any](capacity int, eq func(a, b *T) bool) *Table[T] {
	n := bucketsFor(capacity)
	return &Table[T]{
		buckets: make([]*Node[T], n),
		mask:    uint64(n - 1),
		eq:      eq,
	}
}

// Lookup returns the link pointing at the node equal to key, or nil if there
// is no such node. The link can be handed to Detach.
func (t *Table[T]) Lookup(hash uint64, key *T) **Node[T] {
	if t == nil || t.size == 0 {
		return nil
	}
	from := &t.buckets[hash&t.mask]
	for cur := *from; cur != nil; cur = *from {
		if cur.hash == hash && t.eq(&cur.Value, key) {
			return from
		}
		from = &cur.next
	}
	return nil
}

// Insert prepends the node to its bucket chain. It does not check for an
// existing equal node.
func (t *Table[T]) Insert(n *Node[T]) {
	bucket := &t.buckets[n.hash&t.mask]
	n.next = *bucket
	*bucket = n
	t.size++
}

// Detach removes the node referenced by the link and transfers it to the
// caller.
func (t *Table[T]) Detach(from **Node[T]) *Node[T] {
	t.size--
	return detach(from)
}

// Pop detaches the node equal to key, if any.
func (t *Table[T]) Pop(hash uint64, key *T) *Node[T] {
	if from := t.Lookup(hash, key); from != nil {
		return t.Detach(from)
	}
	return nil
}

// Bucket returns the head link of the ith bucket.
func (t *Table[T]) Bucket(i int) **Node[T] { return &t.buckets[i] }

// Len returns the number of nodes stored in the table.
func (t *Table[T]) Len() int {
	if t == nil {
		return 0
	}
	return t.size
}

// Buckets returns the number of buckets.
func (t *Table[T]) Buckets() int { return len(t.buckets) }

// LoadFactor returns the whole number of nodes per bucket.
func (t *Table[T]) LoadFactor() int { return t.size / len(t.buckets) }

// Range calls fn for every node until fn returns false.
func (t *Table[T]) Range(fn func(n *Node[T]) bool) bool {
	if t == nil {
		return true
	}
	for _, head := range t.buckets {
		for n := head; n != nil; n = n.next {
			if !fn(n) {
				return false
			}
		}
	}
	return true
}
