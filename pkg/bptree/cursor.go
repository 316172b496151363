package bptree

import (
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"

	"github.com/pkg/errors"
)

// Cursor identifies a tree and, once positioned, one of its items.
//
// Key is the lookup key of ordered trees and the item length of rank trees;
// data trees look up KeyData. Rank is the total weight of the items before
// the current one; position lookups read the wanted position from it and
// leave the start of the found item in it. Node and Index locate the item
// for stepping and positioned updates.
type Cursor struct {
	Tree      block.Ref[block.TreeHeader]
	Key       uint64
	KeyData   []byte
	Value     uint64
	ValueType block.ValueType
	Flags     uint8

	Node  block.Ref[block.NodeHeader]
	Index int
	Rank  uint64
}

type locator func(n *node, p *probe) (int, bool, error)

func (t *tree) locate(n *node, p *probe) (int, bool, error) {
	return t.cmp.Locate(t, n, p)
}

func (t *tree) locateRank(n *node, p *probe) (int, bool, error) {
	return locateRank(t, n, p, t.cmp.Weight)
}

func probeFor(c *Cursor) *probe {
	return &probe{key: c.Key, data: c.KeyData, pos: c.Rank}
}

// descend walks from the root to the node where p is found, or to the
// children-less node where it would be inserted.
func (t *tree) descend(p *probe, loc locator) (*node, int, bool, error) {
	ref := t.h.Root
	for {
		n, err := t.fetch(ref)
		if err != nil {
			return nil, 0, false, err
		}

		i, found, err := loc(n, p)
		if err != nil {
			return nil, 0, false, err
		}
		if found || n.isLeaf() {
			return n, i, found, nil
		}
		ref = n.child(i)
	}
}

func (f *Forest) loadNonEmpty(ref block.Ref[block.TreeHeader]) (*tree, error) {
	t, err := f.load(ref)
	if err != nil {
		return nil, err
	}
	if t.h.Root.IsNil() {
		return nil, errors.Wrapf(customerrors.ErrEmptyTree, "tree at %d", ref)
	}
	return t, nil
}

// Search positions c on the item matching its key. Rank trees are searched
// by position.
func (f *Forest) Search(c *Cursor) error {
	t, err := f.loadNonEmpty(c.Tree)
	if err != nil {
		return err
	}
	return t.search(c, t.locate)
}

// SearchRank positions c on the item covering position c.Rank, counting
// ordinary items as weight one.
func (f *Forest) SearchRank(c *Cursor) error {
	t, err := f.loadNonEmpty(c.Tree)
	if err != nil {
		return err
	}
	return t.search(c, t.locateRank)
}

func (t *tree) search(c *Cursor, loc locator) error {
	p := probeFor(c)
	n, i, found, err := t.descend(p, loc)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(customerrors.ErrKeyNotFound, "key %d", c.Key)
	}
	return t.fill(c, n, i, p.rank)
}

func (t *tree) fill(c *Cursor, n *node, i int, rank uint64) error {
	l := &n.leaves[i]
	c.Key, c.Value, c.ValueType, c.Flags = l.Key, l.Value, l.ValueType, l.Flags
	c.Node, c.Index, c.Rank = n.ref, i, rank

	c.KeyData = nil
	if t.h.Kind == block.TreeData {
		key, err := t.f.readKey(l.Key)
		if err != nil {
			return err
		}
		c.KeyData = key
	}
	return nil
}

// First positions c on the smallest item.
func (f *Forest) First(c *Cursor) error {
	t, err := f.loadNonEmpty(c.Tree)
	if err != nil {
		return err
	}

	n, err := t.leftmost(t.h.Root)
	if err != nil {
		return err
	}
	return t.fill(c, n, 0, 0)
}

// Last positions c on the largest item.
func (f *Forest) Last(c *Cursor) error {
	t, err := f.loadNonEmpty(c.Tree)
	if err != nil {
		return err
	}

	root, err := t.header(t.h.Root)
	if err != nil {
		return err
	}
	n, err := t.rightmost(t.h.Root)
	if err != nil {
		return err
	}
	i := len(n.leaves) - 1
	return t.fill(c, n, i, root.Weight-t.cmp.Weight(&n.leaves[i]))
}

// Next moves c to the following item.
func (f *Forest) Next(c *Cursor) error {
	t, n, err := f.positioned(c)
	if err != nil {
		return err
	}

	l := &n.leaves[c.Index]
	rank := c.Rank + t.cmp.Weight(l)
	if !l.Child.IsNil() {
		m, err := t.leftmost(l.Child)
		if err != nil {
			return err
		}
		return t.fill(c, m, 0, rank)
	}
	if c.Index+1 < len(n.leaves) {
		return t.fill(c, n, c.Index+1, rank)
	}

	for x := n; ; {
		if x.Parent.IsNil() {
			return customerrors.ErrEndOfTree
		}
		p, err := t.fetch(x.Parent)
		if err != nil {
			return err
		}
		if i := int(x.ParentIndex) + 1; i < len(p.leaves) {
			return t.fill(c, p, i, rank)
		}
		x = p
	}
}

// Prev moves c to the preceding item.
func (f *Forest) Prev(c *Cursor) error {
	t, n, err := f.positioned(c)
	if err != nil {
		return err
	}

	if child := n.child(c.Index); !child.IsNil() {
		m, err := t.rightmost(child)
		if err != nil {
			return err
		}
		i := len(m.leaves) - 1
		return t.fill(c, m, i, c.Rank-t.cmp.Weight(&m.leaves[i]))
	}
	if c.Index > 0 {
		return t.fill(c, n, c.Index-1, c.Rank-t.cmp.Weight(&n.leaves[c.Index-1]))
	}

	for x := n; ; {
		if x.Parent.IsNil() {
			return customerrors.ErrEndOfTree
		}
		p, err := t.fetch(x.Parent)
		if err != nil {
			return err
		}
		if i := int(x.ParentIndex); i >= 0 {
			return t.fill(c, p, i, c.Rank-t.cmp.Weight(&p.leaves[i]))
		}
		x = p
	}
}

// positioned loads the tree and node of a cursor left by a previous
// lookup or step.
func (f *Forest) positioned(c *Cursor) (*tree, *node, error) {
	t, err := f.loadNonEmpty(c.Tree)
	if err != nil {
		return nil, nil, err
	}
	if c.Node.IsNil() {
		return nil, nil, errors.Wrap(customerrors.ErrNullRef, "cursor is not positioned")
	}

	n, err := t.fetch(c.Node)
	if err != nil {
		return nil, nil, err
	}
	if c.Index < 0 || c.Index >= len(n.leaves) {
		return nil, nil, errors.Wrapf(customerrors.ErrOutOfRange, "cursor slot %d of %d", c.Index, len(n.leaves))
	}
	return t, n, nil
}

func (t *tree) leftmost(ref block.Ref[block.NodeHeader]) (*node, error) {
	for {
		n, err := t.fetch(ref)
		if err != nil || n.isLeaf() {
			return n, err
		}
		ref = n.FirstChild
	}
}

func (t *tree) rightmost(ref block.Ref[block.NodeHeader]) (*node, error) {
	for {
		n, err := t.fetch(ref)
		if err != nil || n.isLeaf() {
			return n, err
		}
		ref = n.child(len(n.leaves))
	}
}

// Update replaces the value and flags of the item matching c. A replaced
// tree, data or page value is released.
func (f *Forest) Update(c *Cursor) error {
	value, vt, flags := c.Value, c.ValueType, c.Flags
	if err := f.Search(c); err != nil {
		return err
	}

	c.Value, c.ValueType, c.Flags = value, vt, flags
	return f.UpdateAt(c)
}

// UpdateAt writes the value and flags of c into the item c is positioned
// on.
func (f *Forest) UpdateAt(c *Cursor) error {
	t, n, err := f.positioned(c)
	if err != nil {
		return err
	}

	l := n.leaves[c.Index]
	if l.Value != c.Value || l.ValueType != c.ValueType {
		if err := f.releaseValue(l.ValueType, l.Value); err != nil {
			return err
		}
	}

	l.Value, l.ValueType, l.Flags = c.Value, c.ValueType, c.Flags
	return block.Write(t.f.file, block.LeafRef(n.ref, c.Index), &l)
}

// Rekey changes the length of the rank tree item c is positioned on.
func (f *Forest) Rekey(c *Cursor, key uint64) error {
	t, n, err := f.positioned(c)
	if err != nil {
		return err
	}
	if t.h.Kind != block.TreeRank {
		return errors.Wrapf(customerrors.ErrWrongKind, "can't rekey a %s tree", t.h.Kind)
	}

	l := n.leaves[c.Index]
	if err := t.cascade(n.ref, 0, int64(key-l.Key)); err != nil {
		return err
	}

	l.Key, c.Key = key, key
	return block.Write(t.f.file, block.LeafRef(n.ref, c.Index), &l)
}
