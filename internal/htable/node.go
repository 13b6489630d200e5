package htable

// Node is the chain linkage for a value stored in a Table. A node belongs
// to at most one chain at a time.
type Node[T any] struct {
	next  *Node[T]
	hash  uint64
	Value T
}

// NewNode returns a detached node for the value with the given hash.
func NewNode[T any](hash uint64, v T) *Node[T] {
	return &Node[T]{hash: hash, Value: v}
}

// Hash returns the hash the node was created with.
func (n *Node[T]) Hash() uint64 { return n.hash }

// detach unlinks the node referenced by from and returns it. from is the
// link that points at the node, so the chain is repaired in place.
func detach[T any](from **Node[T]) *Node[T] {
	n := *from
	*from = n.next
	n.next = nil
	return n
}
