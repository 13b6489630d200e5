// Package slots provides a dense map from small non-negative integers, such
// as file descriptors, to values.
package slots

type slot[T any] struct {
	value T
	live  bool
}

// Slots maps indexes to values. Indexes are expected to be small and reused,
// so storage is a slice as long as the largest index ever stored.
type Slots[T any] struct {
	entries []slot[T]
	live    int
}

// Put stores the value at index i, growing as needed. It returns the value
// that was previously stored there, if any.
func (s *Slots[T]) Put(i int, v T) (old T, ok bool) {
	if i >= len(s.entries) {
		n := 2 * len(s.entries)
		if n <= i {
			n = i + 1
		}
		entries := make([]slot[T], n)
		copy(entries, s.entries)
		s.entries = entries
	}

	e := &s.entries[i]
	old, ok = e.value, e.live
	if !ok {
		s.live++
	}
	e.value, e.live = v, true
	return old, ok
}

// Get returns the value stored at index i.
func (s *Slots[T]) Get(i int) (v T, ok bool) {
	if i < 0 || i >= len(s.entries) {
		return v, false
	}
	e := &s.entries[i]
	return e.value, e.live
}

// Take removes and returns the value stored at index i.
func (s *Slots[T]) Take(i int) (v T, ok bool) {
	if i < 0 || i >= len(s.entries) || !s.entries[i].live {
		return v, false
	}
	e := &s.entries[i]
	v = e.value
	*e = slot[T]{}
	s.live--
	return v, true
}

// Len returns the number of stored values.
func (s *Slots[T]) Len() int { return s.live }

// Cap returns one more than the largest index that can be stored without
// growing.
func (s *Slots[T]) Cap() int { return len(s.entries) }

// Range calls fn for every stored value in index order until fn returns
// false. fn may Take the value it is called with.
func (s *Slots[T]) Range(fn func(i int, v T) bool) {
	for i := range s.entries {
		if e := &s.entries[i]; e.live && !fn(i, e.value) {
			return
		}
	}
}
