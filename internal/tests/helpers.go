package tests

import (
	"fmt"

	"github.com/zeebo/pcg"
	"github.com/zeebo/xxh3"
)

const (
	Size = 1 << 14
	Mask = Size - 1
)

var keys = make([]string, Size)

func init() {
	for i := range keys {
		keys[i] = fmt.Sprintf("%064d", i)
	}
}

// Key returns a fixed width key for i.
func Key(i uint32) (s string) { return keys[i&Mask] }

// Item is a keyed record stored in tables and maps under test.
type Item struct {
	Key   string
	Value uint32
}

// NewItem returns the item for the ith key.
func NewItem(i uint32) Item { return Item{Key: Key(i), Value: i} }

// Hash hashes an item by its key.
func Hash(it *Item) uint64 { return xxh3.HashString(it.Key) }

// Collide hashes every item to the same value so that everything chains.
func Collide(it *Item) uint64 { return 42 }

// Equal compares items by key.
func Equal(a, b *Item) bool { return a.Key == b.Key }

// Perm returns the numbers [0, n) in a random order.
func Perm(n int) []uint32 {
	rng := pcg.New(pcg.Uint64())
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Uint32n(uint32(i + 1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
