package bptree

import (
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"

	"github.com/pkg/errors"
)

// Delete removes the item matching c and releases what it references.
func (f *Forest) Delete(c *Cursor) error {
	t, err := f.loadNonEmpty(c.Tree)
	if err != nil {
		return err
	}

	n, i, found, err := t.descend(probeFor(c), t.locate)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(customerrors.ErrKeyNotFound, "key %d", c.Key)
	}

	c.Node, c.Index = 0, 0
	return t.del(n, i)
}

// DeleteAt removes the item c is positioned on. c is left unpositioned.
func (f *Forest) DeleteAt(c *Cursor) error {
	t, n, err := f.positioned(c)
	if err != nil {
		return err
	}

	i := c.Index
	c.Node, c.Index = 0, 0
	return t.del(n, i)
}

// del removes slot i of n. A slot with a subtree takes the content of its
// in-order successor, which is removed from its children-less node instead.
func (t *tree) del(n *node, i int) error {
	target := n.leaves[i]
	if err := t.releaseSlot(&target); err != nil {
		return err
	}
	w := t.cmp.Weight(&target)

	if n.isLeaf() {
		if err := t.looseWeight(n.ref, 0, w); err != nil {
			return err
		}
		n.Weight -= w
		n.removeEntry(i)
		if err := t.rebalance(n); err != nil {
			return err
		}
	} else {
		s, err := t.leftmost(target.Child)
		if err != nil {
			return err
		}
		succ := s.leaves[0]

		// the successor leaves the subtree below n, and n loses the target
		if err := t.looseWeight(s.ref, n.ref, t.cmp.Weight(&succ)); err != nil {
			return err
		}
		if err := t.looseWeight(n.ref, 0, w); err != nil {
			return err
		}

		if n, err = t.fetch(n.ref); err != nil {
			return err
		}
		n.setEntry(i, succ)
		if err := t.write(n); err != nil {
			return err
		}

		if s, err = t.fetch(s.ref); err != nil {
			return err
		}
		s.removeEntry(0)
		if err := t.rebalance(s); err != nil {
			return err
		}
	}

	t.h.Count--
	return t.writeHead()
}

// rebalance writes n after a removal, borrowing from or merging with a
// sibling when n is underfull.
func (t *tree) rebalance(n *node) error {
	if n.Parent.IsNil() {
		return t.collapse(n)
	}
	if len(n.leaves) >= t.minEntries() {
		return t.write(n)
	}

	p, err := t.fetch(n.Parent)
	if err != nil {
		return err
	}

	var left, right *node
	k := int(n.ParentIndex) + 1
	if k > 0 {
		if left, err = t.fetch(p.child(k - 1)); err != nil {
			return err
		}
		if len(left.leaves) > t.minEntries() {
			return t.rotateRight(p, left, n, k-1)
		}
	}
	if k < len(p.leaves) {
		if right, err = t.fetch(p.child(k + 1)); err != nil {
			return err
		}
		if len(right.leaves) > t.minEntries() {
			return t.rotateLeft(p, n, right, k)
		}
	}

	if left != nil {
		return t.mergeNodes(p, left, n, k-1)
	}
	return t.mergeNodes(p, n, right, k)
}

// mergeNodes absorbs b and the separator s of p into a, then rebalances p.
func (t *tree) mergeNodes(p, a, b *node, s int) error {
	sep := p.removeEntry(s)
	sep.Child = b.FirstChild

	base := len(a.leaves)
	a.leaves = append(a.leaves, sep)
	a.leaves = append(a.leaves, b.leaves...)
	a.Weight += t.cmp.Weight(&sep) + b.Weight

	t.f.log.Debugf("tree %d: merge node %d into %d", t.ref, b.ref, a.ref)
	if err := t.write(a); err != nil {
		return err
	}
	if err := t.adopt(a, base+1); err != nil {
		return err
	}
	if err := t.freeNode(b.ref); err != nil {
		return err
	}
	if err := t.adopt(p, s+1); err != nil {
		return err
	}
	return t.rebalance(p)
}

// collapse writes the root n, or removes it when it has no slots left.
func (t *tree) collapse(n *node) error {
	if len(n.leaves) > 0 {
		return t.write(n)
	}

	if n.isLeaf() {
		t.h.Root = 0
		return t.freeNode(n.ref)
	}

	child := n.FirstChild
	h, err := t.header(child)
	if err != nil {
		return err
	}
	h.Parent, h.ParentIndex = 0, -1
	if err := block.Write(t.f.file, child, h); err != nil {
		return err
	}

	t.f.log.Debugf("tree %d: root %d collapses into %d", t.ref, n.ref, child)
	t.h.Root = child
	return t.freeNode(n.ref)
}
