package db

import (
	"go-treedb/pkg/allocator"
	"go-treedb/pkg/block"
	"go-treedb/pkg/bptree"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/stack"
	"go-treedb/util/helpers"

	"github.com/pkg/errors"
)

type Stats struct {
	allocator.Stats

	Trees uint64
	Nodes uint64
	Items uint64

	// Depth is the height of the deepest tree.
	Depth int

	Data  uint64
	Pages uint64

	// DataBytes is the summed length of all data values.
	DataBytes uint64
}

type value struct {
	vt  block.ValueType
	ref uint64
}

// reach calls fn for the first tree and every value reachable from it:
// nested trees, data values and page runs held by items, and the index and
// store attached to tree headers.
func (db *DB) reach(fn func(v value) error) error {
	s := stack.New[value](16)
	s.Push(value{vt: block.ValueTree, ref: uint64(db.head.FirstTree)})
	for s.Size() > 0 {
		v, err := s.Pop()
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
		if v.vt != block.ValueTree {
			continue
		}

		ref := block.Ref[block.TreeHeader](v.ref)
		h, err := db.forest.Header(ref)
		if err != nil {
			return err
		}
		if !h.Index.IsNil() {
			s.Push(value{vt: block.ValueTree, ref: uint64(h.Index)})
		}
		if h.StoreType != block.ValueLiteral && h.Store != 0 {
			s.Push(value{vt: h.StoreType, ref: h.Store})
		}

		c := &Cursor{Tree: ref}
		err = db.forest.First(c)
		for err == nil {
			if c.ValueType != block.ValueLiteral && c.Value != 0 {
				s.Push(value{vt: c.ValueType, ref: c.Value})
			}
			err = db.forest.Next(c)
		}
		if !errors.Is(err, customerrors.ErrEndOfTree) && !errors.Is(err, customerrors.ErrEmptyTree) {
			return err
		}
	}
	return nil
}

// Check verifies the allocator and every structure reachable from the
// first tree.
func (db *DB) Check() error {
	if err := db.alloc.Check(); err != nil {
		return err
	}

	return db.reach(func(v value) error {
		var err error
		switch v.vt {
		case block.ValueTree:
			err = db.forest.Check(block.Ref[block.TreeHeader](v.ref))
		case block.ValueData:
			err = db.blobs.Check(block.Ref[block.DataHeader](v.ref))
		case block.ValuePage:
			_, err = db.alloc.PageCapacity(v.ref)
		}
		return errors.Wrapf(err, "%s value at %d", v.vt, v.ref)
	})
}

// Stats counts the allocator blocks and the structures reachable from the
// first tree.
func (db *DB) Stats() (Stats, error) {
	var st Stats
	as, err := db.alloc.Stats()
	if err != nil {
		return st, err
	}
	st.Stats = as

	err = db.reach(func(v value) error {
		switch v.vt {
		case block.ValueTree:
			st.Trees++
			return db.forest.Walk(block.Ref[block.TreeHeader](v.ref), func(info *bptree.NodeInfo) error {
				st.Nodes++
				st.Items += uint64(len(info.Leaves))
				st.Depth = helpers.Max(st.Depth, info.Depth+1)
				return nil
			})
		case block.ValueData:
			h, err := db.blobs.Header(block.Ref[block.DataHeader](v.ref))
			if err != nil {
				return err
			}
			st.Data++
			st.DataBytes += h.Length
		case block.ValuePage:
			st.Pages++
		}
		return nil
	})
	return st, err
}
