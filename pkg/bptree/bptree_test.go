package bptree

import (
	"math"
	"math/rand"
	"testing"

	"go-treedb/pkg/allocator"
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/pager"

	"github.com/stretchr/testify/require"
)

func newForest(t *testing.T) (*Forest, *allocator.Allocator) {
	a, err := allocator.Create(pager.NewMemory())
	require.NoError(t, err)
	return New(a), a
}

func newTree(t *testing.T, f *Forest, kind block.TreeType, nodeCount uint16) block.Ref[block.TreeHeader] {
	ref, err := f.NewTree(kind, nodeCount)
	require.NoError(t, err)
	return ref
}

func insertKeys(t *testing.T, f *Forest, tree block.Ref[block.TreeHeader], keys ...uint64) {
	for _, k := range keys {
		require.NoError(t, f.Insert(&Cursor{Tree: tree, Key: k, Value: k * 10}))
	}
}

// ascending collects keys with First/Next, checking values and ranks.
func ascending(t *testing.T, f *Forest, tree block.Ref[block.TreeHeader]) []uint64 {
	keys := []uint64{}
	c := &Cursor{Tree: tree}
	err := f.First(c)
	for err == nil {
		require.Equal(t, uint64(len(keys)), c.Rank)
		keys = append(keys, c.Key)
		err = f.Next(c)
	}
	if len(keys) > 0 {
		require.ErrorIs(t, err, customerrors.ErrEndOfTree)
	}
	return keys
}

func descending(t *testing.T, f *Forest, tree block.Ref[block.TreeHeader]) []uint64 {
	keys := []uint64{}
	c := &Cursor{Tree: tree}
	err := f.Last(c)
	for err == nil {
		keys = append(keys, c.Key)
		err = f.Prev(c)
	}
	require.ErrorIs(t, err, customerrors.ErrEndOfTree)
	return keys
}

func seq(from, to uint64) []uint64 {
	s := []uint64{}
	for i := from; i <= to; i++ {
		s = append(s, i)
	}
	return s
}

func shuffled(seed int64, keys []uint64) []uint64 {
	out := append([]uint64(nil), keys...)
	rand.New(rand.NewSource(seed)).Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestSmallFanOut(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeKey, 3)

	insertKeys(t, f, tree, 5, 3, 8, 1, 4)
	require.NoError(t, f.Check(tree))
	require.Equal(t, []uint64{1, 3, 4, 5, 8}, ascending(t, f, tree))

	nodes := 0
	require.NoError(t, f.Walk(tree, func(info *NodeInfo) error {
		nodes++
		return nil
	}))
	require.Greater(t, nodes, 1, "expected a split")
}

func TestSortOrder(t *testing.T) {
	for _, nodeCount := range []uint16{3, 4, 5, 8, 32} {
		f, _ := newForest(t)
		tree := newTree(t, f, block.TreeKey, nodeCount)

		keys := shuffled(int64(nodeCount), seq(1, 400))
		for i, k := range keys {
			insertKeys(t, f, tree, k*2)
			if i%50 == 0 {
				require.NoError(t, f.Check(tree))
			}
		}
		require.NoError(t, f.Check(tree))

		want := []uint64{}
		for _, k := range seq(1, 400) {
			want = append(want, k*2)
		}
		require.Equal(t, want, ascending(t, f, tree))

		rev := descending(t, f, tree)
		for i := range rev {
			require.Equal(t, want[len(want)-1-i], rev[i])
		}

		count, err := f.Count(tree)
		require.NoError(t, err)
		require.Equal(t, uint64(400), count)

		weight, err := f.Weight(tree)
		require.NoError(t, err)
		require.Equal(t, uint64(400), weight)
	}
}

func TestSearch(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeKey, 4)
	insertKeys(t, f, tree, shuffled(7, seq(1, 100))...)

	c := &Cursor{Tree: tree, Key: 42}
	require.NoError(t, f.Search(c))
	require.Equal(t, uint64(420), c.Value)
	require.Equal(t, uint64(41), c.Rank)

	require.NoError(t, f.Next(c))
	require.Equal(t, uint64(43), c.Key)
	require.Equal(t, uint64(42), c.Rank)
	require.NoError(t, f.Prev(c))
	require.NoError(t, f.Prev(c))
	require.Equal(t, uint64(41), c.Key)
	require.Equal(t, uint64(40), c.Rank)

	c = &Cursor{Tree: tree, Key: 1000}
	require.ErrorIs(t, f.Search(c), customerrors.ErrKeyNotFound)

	err := f.Insert(&Cursor{Tree: tree, Key: 42})
	require.ErrorIs(t, err, customerrors.ErrKeyExists)

	for rank := uint64(0); rank < 100; rank += 9 {
		c := &Cursor{Tree: tree, Rank: rank}
		require.NoError(t, f.SearchRank(c))
		require.Equal(t, rank+1, c.Key)
		require.Equal(t, rank, c.Rank)
	}
	require.ErrorIs(t, f.SearchRank(&Cursor{Tree: tree, Rank: 100}), customerrors.ErrOutOfRange)
}

func TestInsertDeleteInverse(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeKey, 3)
	insertKeys(t, f, tree, shuffled(3, seq(1, 200))...)

	for _, k := range []uint64{0, 77, 1000} {
		count, err := f.Count(tree)
		require.NoError(t, err)
		weight, err := f.Weight(tree)
		require.NoError(t, err)

		if k == 77 {
			require.NoError(t, f.Delete(&Cursor{Tree: tree, Key: k}))
		}
		insertKeys(t, f, tree, k)
		require.NoError(t, f.Check(tree))
		require.NoError(t, f.Delete(&Cursor{Tree: tree, Key: k}))
		require.NoError(t, f.Check(tree))
		if k == 77 {
			insertKeys(t, f, tree, k)
		}

		count2, err := f.Count(tree)
		require.NoError(t, err)
		weight2, err := f.Weight(tree)
		require.NoError(t, err)
		require.Equal(t, count, count2)
		require.Equal(t, weight, weight2)
	}

	require.ErrorIs(t, f.Search(&Cursor{Tree: tree, Key: 1000}), customerrors.ErrKeyNotFound)
	require.ErrorIs(t, f.Delete(&Cursor{Tree: tree, Key: 1000}), customerrors.ErrKeyNotFound)
}

func TestDeleteAll(t *testing.T) {
	for _, nodeCount := range []uint16{3, 4, 7} {
		f, a := newForest(t)
		tree := newTree(t, f, block.TreeKey, nodeCount)
		base := a.BlockCount()

		keys := seq(1, 300)
		insertKeys(t, f, tree, shuffled(11, keys)...)
		require.Greater(t, a.BlockCount(), base)

		order := shuffled(12, keys)
		for i, k := range order {
			require.NoError(t, f.Delete(&Cursor{Tree: tree, Key: k}))
			if i%25 == 0 {
				require.NoError(t, f.Check(tree))
				require.Len(t, ascending(t, f, tree), len(order)-i-1)
			}
		}

		h, err := f.Header(tree)
		require.NoError(t, err)
		require.True(t, h.Root.IsNil())
		require.Zero(t, h.Count)
		require.Equal(t, base, a.BlockCount())

		require.NoError(t, a.Purge())
		size, err := a.File().Size()
		require.NoError(t, err)
		require.Equal(t, int64(base*block.BlockSize), size)

		require.ErrorIs(t, f.First(&Cursor{Tree: tree}), customerrors.ErrEmptyTree)
	}
}

func TestDeleteAt(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeKey, 3)
	insertKeys(t, f, tree, seq(1, 50)...)

	// drop every even key while stepping
	c := &Cursor{Tree: tree}
	require.NoError(t, f.First(c))
	for {
		key := c.Key
		if key%2 == 0 {
			require.NoError(t, f.DeleteAt(c))
			c = &Cursor{Tree: tree, Key: key + 1}
			if err := f.Search(c); err != nil {
				require.ErrorIs(t, err, customerrors.ErrKeyNotFound)
				break
			}
			continue
		}
		if err := f.Next(c); err != nil {
			require.ErrorIs(t, err, customerrors.ErrEndOfTree)
			break
		}
	}

	require.NoError(t, f.Check(tree))
	want := []uint64{}
	for k := uint64(1); k <= 50; k += 2 {
		want = append(want, k)
	}
	require.Equal(t, want, ascending(t, f, tree))
	require.Error(t, f.DeleteAt(c))
}

type span struct {
	length, value uint64
}

func TestRankTree(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeRank, 3)

	insert := func(pos, length, value uint64) error {
		return f.Insert(&Cursor{Tree: tree, Key: length, Value: value, ValueType: block.ValueLiteral, Rank: pos})
	}
	require.NoError(t, insert(0, 10, 1))
	require.NoError(t, insert(10, 5, 2))
	require.NoError(t, insert(10, 3, 3))
	require.NoError(t, insert(0, 7, 4))
	require.NoError(t, f.Check(tree))

	find := func(pos uint64) *Cursor {
		c := &Cursor{Tree: tree, Rank: pos}
		require.NoError(t, f.Search(c))
		return c
	}
	c := find(12)
	require.Equal(t, uint64(1), c.Value)
	require.Equal(t, uint64(7), c.Rank)
	require.Equal(t, uint64(10), c.Key)
	require.Equal(t, uint64(3), find(17).Value)
	require.Equal(t, uint64(2), find(24).Value)
	require.ErrorIs(t, f.Search(&Cursor{Tree: tree, Rank: 25}), customerrors.ErrOutOfRange)
	require.ErrorIs(t, insert(12, 1, 9), customerrors.ErrOutOfRange)
	require.ErrorIs(t, insert(26, 1, 9), customerrors.ErrOutOfRange)

	c = find(12)
	require.NoError(t, f.Rekey(c, 2))
	require.NoError(t, f.Check(tree))
	require.Equal(t, uint64(3), find(9).Value)
	weight, err := f.Weight(tree)
	require.NoError(t, err)
	require.Equal(t, uint64(17), weight)

	other := newTree(t, f, block.TreeKey, 3)
	insertKeys(t, f, other, 1)
	c = &Cursor{Tree: other, Key: 1}
	require.NoError(t, f.Search(c))
	require.ErrorIs(t, f.Rekey(c, 5), customerrors.ErrWrongKind)
}

func TestRankTreeModel(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeRank, 4)
	rnd := rand.New(rand.NewSource(5))

	model := []span{}
	start := func(j int) uint64 {
		var pos uint64
		for _, s := range model[:j] {
			pos += s.length
		}
		return pos
	}

	for v := uint64(1); v <= 300; v++ {
		j := rnd.Intn(len(model) + 1)
		s := span{length: uint64(rnd.Intn(50) + 1), value: v}
		require.NoError(t, f.Insert(&Cursor{Tree: tree, Key: s.length, Value: s.value, Rank: start(j)}))
		model = append(model[:j], append([]span{s}, model[j:]...)...)
	}
	require.NoError(t, f.Check(tree))

	verify := func() {
		c := &Cursor{Tree: tree}
		err := f.First(c)
		for i, s := range model {
			require.NoError(t, err)
			require.Equal(t, s, span{c.Key, c.Value})
			require.Equal(t, start(i), c.Rank)
			err = f.Next(c)
		}
		require.ErrorIs(t, err, customerrors.ErrEndOfTree)
	}
	verify()

	for len(model) > 100 {
		j := rnd.Intn(len(model))
		pos := start(j) + uint64(rnd.Intn(int(model[j].length)))
		c := &Cursor{Tree: tree, Rank: pos}
		require.NoError(t, f.Search(c))
		require.Equal(t, model[j].value, c.Value)
		require.Equal(t, start(j), c.Rank)

		require.NoError(t, f.DeleteAt(c))
		model = append(model[:j], model[j+1:]...)
	}
	require.NoError(t, f.Check(tree))
	verify()
}

func TestDataKeys(t *testing.T) {
	f, a := newForest(t)
	tree := newTree(t, f, block.TreeData, 3)
	base := a.BlockCount()

	words := []string{"pear", "apple", "fig", "banana", "cherry", "", "kiwi", "apricot"}
	for i, w := range words {
		require.NoError(t, f.Insert(&Cursor{Tree: tree, KeyData: []byte(w), Value: uint64(i)}))
	}
	require.ErrorIs(t, f.Insert(&Cursor{Tree: tree, KeyData: []byte("fig")}), customerrors.ErrKeyExists)
	require.NoError(t, f.Check(tree))

	got := []string{}
	c := &Cursor{Tree: tree}
	err := f.First(c)
	for err == nil {
		got = append(got, string(c.KeyData))
		err = f.Next(c)
	}
	require.Equal(t, []string{"", "apple", "apricot", "banana", "cherry", "fig", "kiwi", "pear"}, got)

	c = &Cursor{Tree: tree, KeyData: []byte("kiwi")}
	require.NoError(t, f.Search(c))
	require.Equal(t, uint64(6), c.Value)

	for _, w := range words {
		require.NoError(t, f.Delete(&Cursor{Tree: tree, KeyData: []byte(w)}))
	}
	require.Equal(t, base, a.BlockCount())
}

func TestNestedTrees(t *testing.T) {
	f, a := newForest(t)
	root := newTree(t, f, block.TreeTrees, 3)
	base := a.BlockCount()

	for k := uint64(1); k <= 5; k++ {
		child := newTree(t, f, block.TreeKey, 3)
		insertKeys(t, f, child, seq(1, 20)...)
		require.NoError(t, f.Insert(&Cursor{Tree: root, Key: k, Value: uint64(child), ValueType: block.ValueTree}))
	}

	c := &Cursor{Tree: root, Key: 3}
	require.NoError(t, f.Search(c))
	require.Equal(t, block.ValueTree, c.ValueType)
	child := block.Ref[block.TreeHeader](c.Value)
	require.Equal(t, seq(1, 20), ascending(t, f, child))

	require.NoError(t, f.EmptyTree(root))
	require.Equal(t, base, a.BlockCount())
	require.NoError(t, f.Check(root))
}

func TestUpdate(t *testing.T) {
	f, a := newForest(t)
	tree := newTree(t, f, block.TreeKey, 3)
	insertKeys(t, f, tree, 1, 2, 3)
	base := a.BlockCount()

	page, err := a.AllocatePages(100, true)
	require.NoError(t, err)
	require.NoError(t, f.Update(&Cursor{Tree: tree, Key: 2, Value: page, ValueType: block.ValuePage, Flags: 7}))

	c := &Cursor{Tree: tree, Key: 2}
	require.NoError(t, f.Search(c))
	require.Equal(t, page, c.Value)
	require.Equal(t, uint8(7), c.Flags)

	c.Value, c.ValueType = 99, block.ValueLiteral
	require.NoError(t, f.UpdateAt(c))
	require.Equal(t, base, a.BlockCount())

	require.ErrorIs(t, f.Update(&Cursor{Tree: tree, Key: 9}), customerrors.ErrKeyNotFound)
	require.NoError(t, f.Check(tree))
}

func TestDataReleaser(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeKey, 3)

	released := []block.Ref[block.DataHeader]{}
	f.OnReleaseData(func(ref block.Ref[block.DataHeader]) error {
		released = append(released, ref)
		return nil
	})

	require.NoError(t, f.Insert(&Cursor{Tree: tree, Key: 1, Value: 4096, ValueType: block.ValueData}))
	require.NoError(t, f.Insert(&Cursor{Tree: tree, Key: 2, Value: 5}))
	require.NoError(t, f.Delete(&Cursor{Tree: tree, Key: 2}))
	require.NoError(t, f.Delete(&Cursor{Tree: tree, Key: 1}))
	require.Equal(t, []block.Ref[block.DataHeader]{4096}, released)
}

func TestTreeMetadata(t *testing.T) {
	f, a := newForest(t)
	base := a.BlockCount()

	tree := newTree(t, f, block.TreeKey, 3)
	index := newTree(t, f, block.TreeKey, 4)
	store := newTree(t, f, block.TreeData, 5)
	require.NoError(t, f.SetIndex(tree, index))
	require.NoError(t, f.SetStore(tree, block.ValueTree, uint64(store)))
	require.NoError(t, f.SetDirty(tree, true))
	insertKeys(t, f, index, 1, 2, 3, 4)

	h, err := f.Header(tree)
	require.NoError(t, err)
	require.Equal(t, &block.TreeHeader{
		Kind: block.TreeKey, NodeCount: 3, Dirty: true,
		Index: index, StoreType: block.ValueTree, Store: uint64(store),
	}, h)

	require.NoError(t, f.SetType(tree, block.TreeRank))
	insertKeys(t, f, tree, 1)
	require.ErrorIs(t, f.SetType(tree, block.TreeKey), customerrors.ErrWrongKind)

	require.NoError(t, f.DeleteTree(tree))
	require.Equal(t, base, a.BlockCount())

	_, err = f.NewTree(block.TreeKey, 2)
	require.Error(t, err)
}

func TestEmptyTree(t *testing.T) {
	f, _ := newForest(t)
	tree := newTree(t, f, block.TreeKey, 3)

	require.ErrorIs(t, f.Search(&Cursor{Tree: tree, Key: 1}), customerrors.ErrEmptyTree)
	require.ErrorIs(t, f.Last(&Cursor{Tree: tree}), customerrors.ErrEmptyTree)
	require.ErrorIs(t, f.Delete(&Cursor{Tree: tree, Key: 1}), customerrors.ErrEmptyTree)
	require.ErrorIs(t, f.Next(&Cursor{Tree: tree}), customerrors.ErrEmptyTree)
	require.ErrorIs(t, f.Search(&Cursor{}), customerrors.ErrNullRef)
	require.NoError(t, f.Check(tree))

	insertKeys(t, f, tree, 1)
	require.ErrorIs(t, f.Next(&Cursor{Tree: tree}), customerrors.ErrNullRef)
}

func TestFanOutBounds(t *testing.T) {
	f, _ := newForest(t)

	_, err := f.NewTree(block.TreeKey, MinNodeCount-1)
	require.Error(t, err)
	_, err = f.NewTree(block.TreeKey, MaxNodeCount+1)
	require.ErrorIs(t, err, customerrors.ErrOutOfRange)
	_, err = f.NewTree(block.TreeKey, math.MaxUint16)
	require.ErrorIs(t, err, customerrors.ErrOutOfRange)

	tree := newTree(t, f, block.TreeKey, MaxNodeCount)
	insertKeys(t, f, tree, 3, 1, 2)
	require.Equal(t, []uint64{1, 2, 3}, ascending(t, f, tree))
	require.NoError(t, f.Check(tree))
}
