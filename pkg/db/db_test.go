package db

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/pager"

	"github.com/stretchr/testify/require"
)

func memoryOptions() *Options {
	opts := DefaultOptions
	opts.Pager.Backend = pager.BackendMemory
	opts.NodeCount = 4
	opts.Increment = 16
	return &opts
}

func testDB(t *testing.T) *DB {
	db, err := Create(t.Name(), memoryOptions())
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
		Delete(t.Name(), memoryOptions())
	})
	return db
}

func TestLifecycle(t *testing.T) {
	for _, backend := range []string{pager.BackendFile, pager.BackendMmap} {
		t.Run(backend, func(t *testing.T) {
			opts := DefaultOptions
			opts.Pager.Backend = backend
			opts.Compression = 7
			name := filepath.Join(t.TempDir(), "test.treedb")

			db, err := Create(name, &opts)
			require.NoError(t, err)
			first := db.FirstTree()
			require.False(t, first.IsNil())

			kind, err := db.GetTreeType(first)
			require.NoError(t, err)
			require.Equal(t, block.TreeTrees, kind)

			tree, err := db.NewTree(block.TreeData, 0)
			require.NoError(t, err)
			require.NoError(t, db.Insert(&Cursor{Tree: first, Key: 1, Value: uint64(tree), ValueType: block.ValueTree}))
			require.NoError(t, db.Insert(&Cursor{Tree: tree, KeyData: []byte("answer"), Value: 42}))
			require.NoError(t, db.Close())
			require.ErrorIs(t, db.Close(), customerrors.ErrClosed)

			db, err = Open(name, &opts)
			require.NoError(t, err)
			defer db.Close()
			require.Equal(t, first, db.FirstTree())
			require.Equal(t, uint8(7), db.Compression())

			c := &Cursor{Tree: first, Key: 1}
			require.NoError(t, db.Search(c))
			require.Equal(t, uint64(tree), c.Value)

			c = &Cursor{Tree: tree, KeyData: []byte("answer")}
			require.NoError(t, db.Search(c))
			require.Equal(t, uint64(42), c.Value)
			require.NoError(t, db.Check())
		})
	}
}

func TestOpenBadMagic(t *testing.T) {
	name := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(name, []byte("this is not a treedb file at all, only some text"), 0644))

	_, err := Open(name, nil)
	require.ErrorIs(t, err, customerrors.ErrBadMagic)
	require.True(t, customerrors.IsFormat(err))
}

func TestOpenEndianMismatch(t *testing.T) {
	opts := memoryOptions()
	db, err := Create(t.Name(), opts)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	defer Delete(t.Name(), opts)

	host := block.HostLittleEndian
	defer func() { block.HostLittleEndian = host }()
	block.HostLittleEndian = func() bool { return !host() }

	_, err = Open(t.Name(), opts)
	require.ErrorIs(t, err, customerrors.ErrEndianMismatch)
}

func TestNullRefs(t *testing.T) {
	db := testDB(t)

	require.ErrorIs(t, db.Insert(&Cursor{Key: 1}), customerrors.ErrNullRef)
	_, err := db.GetTreeSize(0)
	require.ErrorIs(t, err, customerrors.ErrNullRef)
	_, err = db.GetDataSize(0)
	require.ErrorIs(t, err, customerrors.ErrNullRef)
	require.ErrorIs(t, db.First(&Cursor{Tree: db.FirstTree()}), customerrors.ErrEmptyTree)
}

func TestTreeMetadata(t *testing.T) {
	db := testDB(t)

	tree, err := db.NewTree(block.TreeKey, 0)
	require.NoError(t, err)
	index, err := db.NewTree(block.TreeKey, 0)
	require.NoError(t, err)
	store, err := db.NewData(tree, block.DataByte, 0, 0)
	require.NoError(t, err)

	require.NoError(t, db.SetTreeIndex(tree, index))
	require.NoError(t, db.SetTreeStore(tree, block.ValueData, uint64(store)))
	require.NoError(t, db.SetTreeDirty(tree, true))
	require.NoError(t, db.SetTreeType(tree, block.TreeTrees))

	got, err := db.GetTreeIndex(tree)
	require.NoError(t, err)
	require.Equal(t, index, got)
	vt, ref, err := db.GetTreeStore(tree)
	require.NoError(t, err)
	require.Equal(t, block.ValueData, vt)
	require.Equal(t, uint64(store), ref)
	dirty, err := db.GetTreeDirty(tree)
	require.NoError(t, err)
	require.True(t, dirty)
	kind, err := db.GetTreeType(tree)
	require.NoError(t, err)
	require.Equal(t, block.TreeTrees, kind)

	require.NoError(t, db.Insert(&Cursor{Tree: tree, Key: 5}))
	size, err := db.GetTreeSize(tree)
	require.NoError(t, err)
	require.Equal(t, uint64(1), size)
	require.ErrorIs(t, db.SetTreeType(tree, block.TreeKey), customerrors.ErrWrongKind)

	require.NoError(t, db.EmptyTree(tree))
	size, err = db.GetTreeSize(tree)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestDeleteNestedTrees(t *testing.T) {
	db := testDB(t)
	base := db.alloc.BlockCount()

	dir, err := db.NewTree(block.TreeTrees, 0)
	require.NoError(t, err)
	require.NoError(t, db.Insert(&Cursor{Tree: db.FirstTree(), Key: 1, Value: uint64(dir), ValueType: block.ValueTree}))

	for i := uint64(0); i < 10; i++ {
		sub, err := db.NewTree(block.TreeData, 0)
		require.NoError(t, err)
		require.NoError(t, db.Insert(&Cursor{Tree: dir, Key: i, Value: uint64(sub), ValueType: block.ValueTree}))

		data, err := db.NewData(sub, block.DataFrag, 0, 0)
		require.NoError(t, err)
		require.NoError(t, db.InsertDataValue(data, 0, make([]byte, 100)))
		require.NoError(t, db.Insert(&Cursor{Tree: sub, KeyData: []byte("value"), Value: uint64(data), ValueType: block.ValueData}))
	}

	st, err := db.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(12), st.Trees)
	require.Equal(t, uint64(21), st.Items)
	require.Equal(t, uint64(10), st.Data)
	require.Equal(t, uint64(1000), st.DataBytes)
	require.NoError(t, db.Check())

	require.NoError(t, db.Delete(&Cursor{Tree: db.FirstTree(), Key: 1}))
	require.Equal(t, base, db.alloc.BlockCount())
	require.NoError(t, db.Check())
}

func TestDeleteAllThenPurge(t *testing.T) {
	db := testDB(t)
	tree, err := db.NewTree(block.TreeKey, 3)
	require.NoError(t, err)
	base := db.alloc.BlockCount()

	r := rand.New(rand.NewSource(3))
	keys := r.Perm(300)
	for _, k := range keys {
		require.NoError(t, db.Insert(&Cursor{Tree: tree, Key: uint64(k)}))
	}
	require.NoError(t, db.Check())

	r.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for _, k := range keys {
		require.NoError(t, db.Delete(&Cursor{Tree: tree, Key: uint64(k)}))
	}

	h, err := db.forest.Header(tree)
	require.NoError(t, err)
	require.True(t, h.Root.IsNil())
	require.Equal(t, base, db.alloc.BlockCount())

	require.NoError(t, db.Purge())
	size, err := db.file.Size()
	require.NoError(t, err)
	require.Equal(t, int64(base*block.BlockSize), size)
}

func TestClear(t *testing.T) {
	db := testDB(t)
	tree, err := db.NewTree(block.TreeKey, 0)
	require.NoError(t, err)
	require.NoError(t, db.Insert(&Cursor{Tree: db.FirstTree(), Key: 1, Value: uint64(tree), ValueType: block.ValueTree}))

	require.NoError(t, db.Clear())
	st, err := db.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Trees)
	require.Zero(t, st.Items)
	require.Zero(t, st.FreeBlocks)
	require.NoError(t, db.Check())
}

func TestClearKeepsCompression(t *testing.T) {
	opts := memoryOptions()
	opts.Compression = 7
	db, err := Create(t.Name(), opts)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	defer Delete(t.Name(), opts)

	db, err = Open(t.Name(), memoryOptions())
	require.NoError(t, err)
	require.NoError(t, db.Clear())
	require.Equal(t, uint8(7), db.Compression())
	require.NoError(t, db.Close())

	db, err = Open(t.Name(), memoryOptions())
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, uint8(7), db.Compression())
}

func TestDataValues(t *testing.T) {
	for _, kind := range []block.DataKind{block.DataByte, block.DataFrag} {
		t.Run(kind.String(), func(t *testing.T) {
			db := testDB(t)
			a, err := db.NewData(db.FirstTree(), kind, 0, 1)
			require.NoError(t, err)
			b, err := db.NewData(db.FirstTree(), kind, 0, 1)
			require.NoError(t, err)

			_, err = db.SetDataValue(a, 0, []byte("hello world"))
			require.NoError(t, err)
			require.NoError(t, db.InsertDataValue(a, 5, []byte(",")))
			n, err := db.DeleteDataValue(a, 6, 1)
			require.NoError(t, err)
			require.Equal(t, uint64(1), n)

			_, err = db.CopyDataValue(b, 0, a, 0, 5)
			require.NoError(t, err)
			_, err = db.MoveDataValue(b, 5, a, 5, 100)
			require.NoError(t, err)

			size, err := db.GetDataSize(b)
			require.NoError(t, err)
			buf := make([]byte, size)
			_, err = db.GetDataValue(b, 0, buf)
			require.NoError(t, err)
			require.Equal(t, "hello,world", string(buf))

			size, err = db.GetDataSize(a)
			require.NoError(t, err)
			require.Equal(t, uint64(5), size)

			require.NoError(t, db.SetDataSize(a, 2))
			size, err = db.GetDataSize(a)
			require.NoError(t, err)
			require.Equal(t, uint64(2), size)

			require.NoError(t, db.SetFieldType(b, 4))
			encode, err := db.GetFieldType(b)
			require.NoError(t, err)
			require.Equal(t, uint8(4), encode)
			got, err := db.GetDataKind(b)
			require.NoError(t, err)
			require.Equal(t, kind, got)

			require.NoError(t, db.DeleteData(a))
			require.NoError(t, db.DeleteData(b))
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(nil)
	require.Equal(t, DefaultOptions, *opts)
}
