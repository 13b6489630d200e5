package htable

import (
	"testing"

	"github.com/zeebo/assert"
	. "github.com/zeebo/pollkv/internal/tests"
)

func newItemTable(capacity int) *Table[Item] { return New[Item](capacity, Equal) }

func insertItem(t *Table[Item], i uint32) *Node[Item] {
	it := NewItem(i)
	n := NewNode(Hash(&it), it)
	t.Insert(n)
	return n
}

func lookupItem(t *Table[Item], i uint32) **Node[Item] {
	it := NewItem(i)
	return t.Lookup(Hash(&it), &it)
}

func TestBucketsFor(t *testing.T) {
	for _, c := range []struct{ in, out int }{
		{-1, 4}, {0, 4}, {1, 4}, {3, 4}, {4, 4}, {5, 8}, {8, 8}, {9, 16}, {1000, 1024},
	} {
		assert.Equal(t, bucketsFor(c.in), c.out)
		assert.Equal(t, New[Item](c.in, Equal).Buckets(), c.out)
	}
}

func TestTable(t *testing.T) {
	t.Run("Basic", func(t *testing.T) {
		ta := newItemTable(0)
		nodes := make(map[uint32]*Node[Item])
		for i := uint32(0); i < 100; i++ {
			nodes[i] = insertItem(ta, i)
			assert.Equal(t, ta.Len(), int(i)+1)
		}
		for i := uint32(0); i < 100; i++ {
			from := lookupItem(ta, i)
			assert.That(t, from != nil)
			assert.That(t, *from == nodes[i])
		}
		assert.Nil(t, lookupItem(ta, 100))
		assert.Equal(t, ta.LoadFactor(), 25)
	})

	t.Run("Detach", func(t *testing.T) {
		ta := newItemTable(4)
		for i := uint32(0); i < 32; i++ {
			insertItem(ta, i)
		}
		for _, i := range Perm(32) {
			from := lookupItem(ta, i)
			assert.That(t, from != nil)

			n := ta.Detach(from)
			assert.Equal(t, n.Value.Value, i)
			assert.Nil(t, n.next)
			assert.Nil(t, lookupItem(ta, i))
		}
		assert.Equal(t, ta.Len(), 0)
		for i := 0; i < ta.Buckets(); i++ {
			assert.Nil(t, *ta.Bucket(i))
		}
	})

	t.Run("Collisions", func(t *testing.T) {
		ta := newItemTable(4)
		for i := uint32(0); i < 10; i++ {
			it := NewItem(i)
			ta.Insert(NewNode(Collide(&it), it))
		}

		// everything lands in one chain, and removing from the middle relinks it.
		it := NewItem(5)
		n := ta.Pop(Collide(&it), &it)
		assert.That(t, n != nil)
		assert.Equal(t, n.Value.Key, Key(5))
		assert.Equal(t, ta.Len(), 9)

		for i := uint32(0); i < 10; i++ {
			it := NewItem(i)
			found := ta.Lookup(Collide(&it), &it) != nil
			assert.Equal(t, found, i != 5)
		}
	})

	t.Run("Range", func(t *testing.T) {
		ta := newItemTable(16)
		for i := uint32(0); i < 50; i++ {
			insertItem(ta, i)
		}
		seen := make(map[string]bool)
		ta.Range(func(n *Node[Item]) bool {
			seen[n.Value.Key] = true
			return true
		})
		assert.Equal(t, len(seen), 50)

		count := 0
		assert.That(t, !ta.Range(func(n *Node[Item]) bool {
			count++
			return count < 10
		}))
		assert.Equal(t, count, 10)
	})

	t.Run("Nil", func(t *testing.T) {
		var ta *Table[Item]
		assert.Equal(t, ta.Len(), 0)
		it := NewItem(0)
		assert.Nil(t, ta.Lookup(Hash(&it), &it))
	})
}

func BenchmarkTable(b *testing.B) {
	b.Run("Insert", func(b *testing.B) {
		b.ReportAllocs()
		ta := newItemTable(Size)
		for i := 0; i < b.N; i++ {
			insertItem(ta, uint32(i))
		}
	})

	b.Run("Lookup", func(b *testing.B) {
		ta := newItemTable(Size)
		for i := uint32(0); i < Size; i++ {
			insertItem(ta, i)
		}
		b.ReportAllocs()
		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			lookupItem(ta, uint32(i))
		}
	})
}
