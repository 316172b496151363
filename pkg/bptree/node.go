package bptree

import (
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"

	"github.com/pkg/errors"
)

// node is an in-memory copy of a node run. Child k of a node is FirstChild
// for k == 0 and leaves[k-1].Child otherwise; a child records k-1 as its
// ParentIndex.
type node struct {
	ref block.Ref[block.NodeHeader]
	block.NodeHeader
	leaves []block.Leaf
}

func (n *node) isLeaf() bool {
	return n.FirstChild.IsNil()
}

func (n *node) child(k int) block.Ref[block.NodeHeader] {
	if k == 0 {
		return n.FirstChild
	}
	return n.leaves[k-1].Child
}

func (n *node) setChild(k int, ref block.Ref[block.NodeHeader]) {
	if k == 0 {
		n.FirstChild = ref
		return
	}
	n.leaves[k-1].Child = ref
}

func (n *node) insertEntry(i int, l block.Leaf) {
	n.leaves = append(n.leaves, block.Leaf{})
	copy(n.leaves[i+1:], n.leaves[i:])
	n.leaves[i] = l
}

func (n *node) removeEntry(i int) block.Leaf {
	l := n.leaves[i]
	n.leaves = append(n.leaves[:i], n.leaves[i+1:]...)
	return l
}

// setEntry replaces the content of slot i, keeping its child.
func (n *node) setEntry(i int, l block.Leaf) {
	l.Child = n.leaves[i].Child
	n.leaves[i] = l
}

func (t *tree) nodeBytes() uint64 {
	return block.NodeBytes(t.h.NodeCount)
}

func (t *tree) minEntries() int {
	return (int(t.h.NodeCount)+1)/2 - 1
}

func (t *tree) fetch(ref block.Ref[block.NodeHeader]) (*node, error) {
	if ref.IsNil() {
		return nil, errors.Wrap(customerrors.ErrNullRef, "failed to read node")
	}

	buf := make([]byte, t.nodeBytes())
	if _, err := t.f.file.ReadAt(buf, int64(ref)); err != nil {
		return nil, errors.Wrapf(err, "failed to read node at %d", ref)
	}

	n := &node{ref: ref}
	if err := n.NodeHeader.UnmarshalBinary(buf); err != nil {
		return nil, errors.Wrapf(err, "failed to decode node at %d", ref)
	}
	if n.LeafCount > t.h.NodeCount {
		return nil, errors.Wrapf(customerrors.ErrCorrupted, "node at %d holds %d slots", ref, n.LeafCount)
	}

	n.leaves = make([]block.Leaf, n.LeafCount, int(t.h.NodeCount)+1)
	for i := range n.leaves {
		if err := n.leaves[i].UnmarshalBinary(buf[(i+1)*block.BlockSize:]); err != nil {
			return nil, errors.Wrapf(err, "failed to decode slot %d of node at %d", i, ref)
		}
	}
	return n, nil
}

// write stores the whole node run; unused slots, the spare one included,
// are written empty.
func (t *tree) write(n *node) error {
	if len(n.leaves) > int(t.h.NodeCount) {
		return errors.Errorf("node at %d overflows: %d slots", n.ref, len(n.leaves))
	}
	n.LeafCount = uint16(len(n.leaves))

	buf := make([]byte, 0, t.nodeBytes())
	d, err := n.NodeHeader.MarshalBinary()
	if err != nil {
		return err
	}
	buf = append(buf, d...)

	empty := block.Leaf{}
	for i := 0; i <= int(t.h.NodeCount); i++ {
		l := &empty
		if i < len(n.leaves) {
			l = &n.leaves[i]
		}
		d, err := l.MarshalBinary()
		if err != nil {
			return err
		}
		buf = append(buf, d...)
	}

	if _, err := t.f.file.WriteAt(buf, int64(n.ref)); err != nil {
		return errors.Wrapf(err, "failed to write node at %d", n.ref)
	}
	return nil
}

func (t *tree) alloc() (*node, error) {
	off, err := t.f.alloc.Allocate(t.nodeBytes(), false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate node")
	}

	return &node{
		ref:        block.Ref[block.NodeHeader](off),
		NodeHeader: block.NodeHeader{ParentIndex: -1},
		leaves:     make([]block.Leaf, 0, int(t.h.NodeCount)+1),
	}, nil
}

func (t *tree) freeNode(ref block.Ref[block.NodeHeader]) error {
	return errors.Wrap(t.f.alloc.Release(uint64(ref), t.nodeBytes()), "failed to release node")
}

func (t *tree) header(ref block.Ref[block.NodeHeader]) (*block.NodeHeader, error) {
	return block.Read(t.f.file, ref)
}

func (t *tree) childWeight(n *node, k int) (uint64, error) {
	ref := n.child(k)
	if ref.IsNil() {
		return 0, nil
	}
	h, err := t.header(ref)
	if err != nil {
		return 0, err
	}
	return h.Weight, nil
}

// adopt rewrites the parent back-pointers of children from..len(leaves) of n.
func (t *tree) adopt(n *node, from int) error {
	if n.isLeaf() {
		return nil
	}

	for k := from; k <= len(n.leaves); k++ {
		ref := n.child(k)
		h, err := t.header(ref)
		if err != nil {
			return err
		}
		if h.Parent == n.ref && int(h.ParentIndex) == k-1 {
			continue
		}

		h.Parent, h.ParentIndex = n.ref, int16(k-1)
		if err := block.Write(t.f.file, ref, h); err != nil {
			return err
		}
	}
	return nil
}

// cascade adds delta to the weight of ref and of its ancestors, stopping
// before stop.
func (t *tree) cascade(ref, stop block.Ref[block.NodeHeader], delta int64) error {
	if delta == 0 {
		return nil
	}

	for !ref.IsNil() && ref != stop {
		h, err := t.header(ref)
		if err != nil {
			return err
		}
		h.Weight += uint64(delta)
		if err := block.Write(t.f.file, ref, h); err != nil {
			return err
		}
		ref = h.Parent
	}
	return nil
}

// gainWeight and looseWeight cascade an item weight change from ref up to,
// and excluding, stop. A nil stop walks up to the root.
func (t *tree) gainWeight(ref, stop block.Ref[block.NodeHeader], w uint64) error {
	return t.cascade(ref, stop, int64(w))
}

func (t *tree) looseWeight(ref, stop block.Ref[block.NodeHeader], w uint64) error {
	return t.cascade(ref, stop, -int64(w))
}

// weigh recomputes the weight of n from its slots and children.
func (t *tree) weigh(n *node) error {
	var w uint64
	for i := range n.leaves {
		w += t.cmp.Weight(&n.leaves[i])
	}
	for k := 0; !n.isLeaf() && k <= len(n.leaves); k++ {
		cw, err := t.childWeight(n, k)
		if err != nil {
			return err
		}
		w += cw
	}
	n.Weight = w
	return nil
}
