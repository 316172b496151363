package bptree

import (
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/stack"

	"github.com/pkg/errors"
)

// NodeInfo describes one node visited by Walk.
type NodeInfo struct {
	Ref    block.Ref[block.NodeHeader]
	Depth  int
	Header block.NodeHeader
	Leaves []block.Leaf
}

type walkItem struct {
	ref    block.Ref[block.NodeHeader]
	depth  int
	parent block.Ref[block.NodeHeader]
	index  int16
}

// Walk visits every node of a tree, parents before children.
func (f *Forest) Walk(ref block.Ref[block.TreeHeader], fn func(info *NodeInfo) error) error {
	t, err := f.load(ref)
	if err != nil {
		return err
	}
	return t.walk(func(n *node, at walkItem) error {
		return fn(&NodeInfo{Ref: n.ref, Depth: at.depth, Header: n.NodeHeader, Leaves: n.leaves})
	})
}

func (t *tree) walk(fn func(n *node, at walkItem) error) error {
	if t.h.Root.IsNil() {
		return nil
	}

	s := stack.New[walkItem](16)
	s.Push(walkItem{ref: t.h.Root, index: -1})
	for s.Size() > 0 {
		at, err := s.Pop()
		if err != nil {
			return err
		}

		n, err := t.fetch(at.ref)
		if err != nil {
			return err
		}
		if err := fn(n, at); err != nil {
			return err
		}

		for k := len(n.leaves); !n.isLeaf() && k >= 0; k-- {
			s.Push(walkItem{ref: n.child(k), depth: at.depth + 1, parent: n.ref, index: int16(k - 1)})
		}
	}
	return nil
}

// Check verifies the structure of a tree: back-pointers, fill bounds,
// uniform depth, subtree weights, item count and key order.
func (f *Forest) Check(ref block.Ref[block.TreeHeader]) error {
	t, err := f.load(ref)
	if err != nil {
		return err
	}

	var count uint64
	leafDepth := -1
	err = t.walk(func(n *node, at walkItem) error {
		corrupted := func(format string, args ...interface{}) error {
			return errors.Wrapf(customerrors.ErrCorrupted, "tree %d node %d: "+format, append([]interface{}{t.ref, n.ref}, args...)...)
		}

		if n.Parent != at.parent || n.ParentIndex != at.index {
			return corrupted("back-pointer %d/%d, expected %d/%d", n.Parent, n.ParentIndex, at.parent, at.index)
		}
		if at.depth == 0 && len(n.leaves) == 0 || at.depth > 0 && len(n.leaves) < t.minEntries() {
			return corrupted("underfull with %d slots", len(n.leaves))
		}

		w, err := t.weighed(n)
		if err != nil {
			return err
		}
		if w != n.Weight {
			return corrupted("weight %d, expected %d", n.Weight, w)
		}

		for i := range n.leaves {
			if n.leaves[i].Child.IsNil() != n.isLeaf() {
				return corrupted("slot %d has a mismatching child", i)
			}
		}
		if n.isLeaf() {
			if leafDepth >= 0 && leafDepth != at.depth {
				return corrupted("depth %d, expected %d", at.depth, leafDepth)
			}
			leafDepth = at.depth
		}

		count += uint64(len(n.leaves))
		return nil
	})
	if err != nil {
		return err
	}
	if count != t.h.Count {
		return errors.Wrapf(customerrors.ErrCorrupted, "tree %d holds %d items, header says %d", t.ref, count, t.h.Count)
	}
	if count == 0 {
		return nil
	}

	return t.checkOrder()
}

// weighed computes the weight n should carry.
func (t *tree) weighed(n *node) (uint64, error) {
	cp := *n
	if err := t.weigh(&cp); err != nil {
		return 0, err
	}
	return cp.Weight, nil
}

// checkOrder steps through every item verifying key order and ranks.
func (t *tree) checkOrder() error {
	c := &Cursor{Tree: t.ref}
	if err := t.f.First(c); err != nil {
		return err
	}

	for {
		prev, rank := c.leaf(), c.Rank+t.cmp.Weight(c.leaf())
		err := t.f.Next(c)
		if errors.Is(err, customerrors.ErrEndOfTree) {
			return nil
		}
		if err != nil {
			return err
		}

		if c.Rank != rank {
			return errors.Wrapf(customerrors.ErrCorrupted, "tree %d: rank %d, expected %d", t.ref, c.Rank, rank)
		}
		less, err := t.cmp.Less(t, prev, c.leaf())
		if err != nil {
			return err
		}
		if !less {
			return errors.Wrapf(customerrors.ErrCorrupted, "tree %d: key %d out of order", t.ref, c.Key)
		}
	}
}

// leaf rebuilds the slot fields a cursor carries.
func (c *Cursor) leaf() *block.Leaf {
	return &block.Leaf{ValueType: c.ValueType, Flags: c.Flags, Key: c.Key, Value: c.Value}
}
