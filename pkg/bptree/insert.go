package bptree

import (
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"

	"github.com/pkg/errors"
)

// Insert adds the item described by c. Ordered trees reject a key that is
// already present; rank trees insert an item of length c.Key at position
// c.Rank, which must not fall inside another item. c is left unpositioned.
func (f *Forest) Insert(c *Cursor) error {
	t, err := f.load(c.Tree)
	if err != nil {
		return err
	}

	var n *node
	var i int
	if !t.h.Root.IsNil() {
		p := probeFor(c)
		p.insert = true

		var found bool
		if n, i, found, err = t.descend(p, t.locate); err != nil {
			return err
		}
		if found {
			return errors.Wrapf(customerrors.ErrKeyExists, "key %d", c.Key)
		}
	} else if t.h.Kind == block.TreeRank && c.Rank != 0 {
		return errors.Wrapf(customerrors.ErrOutOfRange, "position %d past the end", c.Rank)
	}

	l := block.Leaf{ValueType: c.ValueType, Flags: c.Flags, Key: c.Key, Value: c.Value}
	if t.h.Kind == block.TreeData {
		if l.Key, err = f.writeKey(c.KeyData); err != nil {
			return err
		}
	}

	c.Node, c.Index = 0, 0
	if err := t.insert(n, i, l); err != nil {
		return err
	}
	t.h.Count++
	return t.writeHead()
}

// insert puts l at slot i of the children-less node n, or into a new root
// when the tree is empty.
func (t *tree) insert(n *node, i int, l block.Leaf) error {
	w := t.cmp.Weight(&l)
	if n == nil {
		root, err := t.alloc()
		if err != nil {
			return err
		}
		root.leaves = append(root.leaves, l)
		root.Weight = w
		t.h.Root = root.ref
		return t.write(root)
	}

	if err := t.gainWeight(n.ref, 0, w); err != nil {
		return err
	}
	n.Weight += w
	n.insertEntry(i, l)
	return t.place(n)
}

// place writes n, resolving an overflow first.
func (t *tree) place(n *node) error {
	if len(n.leaves) <= int(t.h.NodeCount) {
		return t.write(n)
	}
	if n.Parent.IsNil() {
		return t.split(n)
	}

	p, err := t.fetch(n.Parent)
	if err != nil {
		return err
	}

	k := int(n.ParentIndex) + 1
	if k > 0 {
		left, err := t.fetch(p.child(k - 1))
		if err != nil {
			return err
		}
		if len(left.leaves) < int(t.h.NodeCount) {
			return t.rotateLeft(p, left, n, k-1)
		}
	}
	if k < len(p.leaves) {
		right, err := t.fetch(p.child(k + 1))
		if err != nil {
			return err
		}
		if len(right.leaves) < int(t.h.NodeCount) {
			return t.rotateRight(p, n, right, k)
		}
	}
	return t.split(n)
}

// split moves the slots after the median of n into a new sibling and
// promotes the median into the parent, growing a new root when n is the
// root.
func (t *tree) split(n *node) error {
	m := len(n.leaves) / 2
	median := n.leaves[m]

	right, err := t.alloc()
	if err != nil {
		return err
	}
	right.FirstChild = median.Child
	right.leaves = append(right.leaves, n.leaves[m+1:]...)
	n.leaves = n.leaves[:m]
	if err := t.weigh(right); err != nil {
		return err
	}
	n.Weight -= right.Weight + t.cmp.Weight(&median)
	median.Child = right.ref

	if n.Parent.IsNil() {
		root, err := t.alloc()
		if err != nil {
			return err
		}
		root.FirstChild = n.ref
		root.leaves = append(root.leaves, median)
		root.Weight = n.Weight + t.cmp.Weight(&median) + right.Weight

		n.Parent, n.ParentIndex = root.ref, -1
		right.Parent, right.ParentIndex = root.ref, 0
		t.h.Root = root.ref
		t.f.log.Debugf("tree %d: new root %d", t.ref, root.ref)

		if err := t.writeAll(n, right, root); err != nil {
			return err
		}
		return t.adopt(right, 0)
	}

	k := int(n.ParentIndex) + 1
	right.Parent, right.ParentIndex = n.Parent, int16(k)
	t.f.log.Debugf("tree %d: split node %d into %d", t.ref, n.ref, right.ref)
	if err := t.writeAll(n, right); err != nil {
		return err
	}
	if err := t.adopt(right, 0); err != nil {
		return err
	}

	p, err := t.fetch(n.Parent)
	if err != nil {
		return err
	}
	p.insertEntry(k, median)
	if err := t.adopt(p, k+2); err != nil {
		return err
	}
	return t.place(p)
}

// rotateLeft moves the first slot of b into the separator s of p, and the
// separator to the end of a. a and b are children s and s+1 of p.
func (t *tree) rotateLeft(p, a, b *node, s int) error {
	mw, err := t.childWeight(b, 0)
	if err != nil {
		return err
	}

	sep := p.leaves[s]
	sep.Child = b.FirstChild
	a.leaves = append(a.leaves, sep)

	first := b.removeEntry(0)
	b.FirstChild = first.Child
	p.setEntry(s, first)

	a.Weight += t.cmp.Weight(&sep) + mw
	b.Weight -= t.cmp.Weight(&first) + mw

	if err := t.writeAll(a, b, p); err != nil {
		return err
	}
	if err := t.adopt(a, len(a.leaves)); err != nil {
		return err
	}
	return t.adopt(b, 0)
}

// rotateRight moves the last slot of a into the separator s of p, and the
// separator to the front of b. a and b are children s and s+1 of p.
func (t *tree) rotateRight(p, a, b *node, s int) error {
	mw, err := t.childWeight(a, len(a.leaves))
	if err != nil {
		return err
	}

	last := a.removeEntry(len(a.leaves) - 1)
	sep := p.leaves[s]
	sep.Child = b.FirstChild
	b.insertEntry(0, sep)
	b.FirstChild = last.Child
	p.setEntry(s, last)

	a.Weight -= t.cmp.Weight(&last) + mw
	b.Weight += t.cmp.Weight(&sep) + mw

	if err := t.writeAll(a, b, p); err != nil {
		return err
	}
	return t.adopt(b, 0)
}

func (t *tree) writeAll(nodes ...*node) error {
	for _, n := range nodes {
		if err := t.write(n); err != nil {
			return err
		}
	}
	return nil
}
