// Package bptree implements the weighted B-trees a treedb file is made of.
// All trees of a file share one Forest; a tree is addressed by the offset of
// its header and every node keeps the total item weight of its subtree, so
// the same structure serves both ordered lookups and position (rank)
// lookups.
package bptree

import (
	"math"

	"go-treedb/pkg/allocator"
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/pager"
	"go-treedb/util/logger"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// MinNodeCount is the smallest fan-out a tree can be created with.
	MinNodeCount = 3

	// MaxNodeCount keeps child indexes of an overflowing node, up to one
	// past the fan-out, inside the int16 parent index of a node header.
	MaxNodeCount = math.MaxInt16 - 1
)

// DataReleaser frees a data value whose slot is going away.
type DataReleaser func(ref block.Ref[block.DataHeader]) error

// New returns the forest of the file managed by a.
func New(a *allocator.Allocator) *Forest {
	return &Forest{
		file:  a.File(),
		alloc: a,
		log:   logger.For("bptree"),
	}
}

// Forest gives access to every tree of one file.
type Forest struct {
	file        pager.File
	alloc       *allocator.Allocator
	releaseData DataReleaser
	log         *logrus.Entry
}

// OnReleaseData installs the function used to free ValueData slots.
func (f *Forest) OnReleaseData(fn DataReleaser) {
	f.releaseData = fn
}

// tree is a loaded tree header together with its comparer.
type tree struct {
	f   *Forest
	ref block.Ref[block.TreeHeader]
	h   *block.TreeHeader
	cmp Comparer
}

func (f *Forest) load(ref block.Ref[block.TreeHeader]) (*tree, error) {
	h, err := block.Read(f.file, ref)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read tree header")
	}
	if h.NodeCount < MinNodeCount || h.NodeCount > MaxNodeCount {
		return nil, errors.Wrapf(customerrors.ErrCorrupted, "tree at %d has fan-out %d", ref, h.NodeCount)
	}
	return &tree{f: f, ref: ref, h: h, cmp: comparerFor(h.Kind)}, nil
}

func (t *tree) writeHead() error {
	return errors.Wrap(block.Write(t.f.file, t.ref, t.h), "failed to write tree header")
}

// NewTree creates an empty tree.
func (f *Forest) NewTree(kind block.TreeType, nodeCount uint16) (block.Ref[block.TreeHeader], error) {
	if nodeCount < MinNodeCount {
		return 0, errors.Errorf("fan-out %d is below %d", nodeCount, MinNodeCount)
	}
	if nodeCount > MaxNodeCount {
		return 0, errors.Wrapf(customerrors.ErrOutOfRange, "fan-out %d is above %d", nodeCount, MaxNodeCount)
	}

	off, err := f.alloc.Allocate(uint64((&block.TreeHeader{}).Size()), true)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate tree header")
	}

	ref := block.Ref[block.TreeHeader](off)
	h := &block.TreeHeader{Kind: kind, NodeCount: nodeCount}
	if err := block.Write(f.file, ref, h); err != nil {
		return 0, errors.Wrap(err, "failed to write tree header")
	}
	return ref, nil
}

// DeleteTree releases a tree with everything it holds, its index tree and
// its store.
func (f *Forest) DeleteTree(ref block.Ref[block.TreeHeader]) error {
	if err := f.EmptyTree(ref); err != nil {
		return err
	}

	h, err := block.Read(f.file, ref)
	if err != nil {
		return err
	}
	if !h.Index.IsNil() {
		if err := f.DeleteTree(h.Index); err != nil {
			return errors.Wrap(err, "failed to delete index tree")
		}
	}
	if err := f.releaseValue(h.StoreType, h.Store); err != nil {
		return errors.Wrap(err, "failed to release tree store")
	}
	return errors.Wrap(
		f.alloc.Release(uint64(ref), uint64(h.Size())),
		"failed to release tree header",
	)
}

// EmptyTree removes every item of a tree, releasing what the items
// reference.
func (f *Forest) EmptyTree(ref block.Ref[block.TreeHeader]) error {
	t, err := f.load(ref)
	if err != nil {
		return err
	}
	if t.h.Root.IsNil() {
		return nil
	}

	if err := t.emptyNode(t.h.Root); err != nil {
		return err
	}
	t.h.Root, t.h.Count = 0, 0
	return t.writeHead()
}

func (t *tree) emptyNode(ref block.Ref[block.NodeHeader]) error {
	n, err := t.fetch(ref)
	if err != nil {
		return err
	}

	for k := 0; !n.isLeaf() && k <= len(n.leaves); k++ {
		if err := t.emptyNode(n.child(k)); err != nil {
			return err
		}
	}
	for i := range n.leaves {
		if err := t.releaseSlot(&n.leaves[i]); err != nil {
			return err
		}
	}
	return t.freeNode(ref)
}

// releaseSlot frees the value and the stored key of a slot.
func (t *tree) releaseSlot(l *block.Leaf) error {
	if err := t.f.releaseValue(l.ValueType, l.Value); err != nil {
		return err
	}
	if t.h.Kind == block.TreeData {
		return t.f.releaseKey(l.Key)
	}
	return nil
}

func (f *Forest) releaseValue(vt block.ValueType, v uint64) error {
	if v == 0 {
		return nil
	}

	switch vt {
	case block.ValueTree:
		return f.DeleteTree(block.Ref[block.TreeHeader](v))
	case block.ValueData:
		if f.releaseData == nil {
			return errors.New("no data releaser installed")
		}
		return f.releaseData(block.Ref[block.DataHeader](v))
	case block.ValuePage:
		return f.alloc.ReleasePages(v)
	}
	return nil
}

// Header returns a copy of the header of a tree.
func (f *Forest) Header(ref block.Ref[block.TreeHeader]) (*block.TreeHeader, error) {
	return block.Read(f.file, ref)
}

// SetType changes the type of an empty tree.
func (f *Forest) SetType(ref block.Ref[block.TreeHeader], kind block.TreeType) error {
	return f.modify(ref, func(h *block.TreeHeader) error {
		if !h.Root.IsNil() && h.Kind != kind {
			return errors.Wrap(customerrors.ErrWrongKind, "can't change the type of a non-empty tree")
		}
		h.Kind = kind
		return nil
	})
}

func (f *Forest) SetIndex(ref, index block.Ref[block.TreeHeader]) error {
	return f.modify(ref, func(h *block.TreeHeader) error {
		h.Index = index
		return nil
	})
}

// SetStore attaches a store value to a tree. The previous store is not
// released.
func (f *Forest) SetStore(ref block.Ref[block.TreeHeader], vt block.ValueType, store uint64) error {
	return f.modify(ref, func(h *block.TreeHeader) error {
		h.StoreType, h.Store = vt, store
		return nil
	})
}

func (f *Forest) SetDirty(ref block.Ref[block.TreeHeader], dirty bool) error {
	return f.modify(ref, func(h *block.TreeHeader) error {
		h.Dirty = dirty
		return nil
	})
}

func (f *Forest) modify(ref block.Ref[block.TreeHeader], fn func(h *block.TreeHeader) error) error {
	h, err := block.Read(f.file, ref)
	if err != nil {
		return err
	}
	if err := fn(h); err != nil {
		return err
	}
	return errors.Wrap(block.Write(f.file, ref, h), "failed to write tree header")
}

// Count returns the number of items of a tree.
func (f *Forest) Count(ref block.Ref[block.TreeHeader]) (uint64, error) {
	h, err := block.Read(f.file, ref)
	if err != nil {
		return 0, err
	}
	return h.Count, nil
}

// Weight returns the total item weight of a tree: the item count of
// ordinary trees, the summed lengths of rank trees.
func (f *Forest) Weight(ref block.Ref[block.TreeHeader]) (uint64, error) {
	t, err := f.load(ref)
	if err != nil {
		return 0, err
	}
	if t.h.Root.IsNil() {
		return 0, nil
	}

	h, err := t.header(t.h.Root)
	if err != nil {
		return 0, err
	}
	return h.Weight, nil
}
