package bptree

import (
	"bytes"
	"cmp"

	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"

	"github.com/pkg/errors"
)

// probe is what a descent looks for. Ordered comparers use key (or data on
// variable key trees); position lookups consume pos. rank accumulates the
// weight of the items passed on the way down.
type probe struct {
	key    uint64
	data   []byte
	pos    uint64
	rank   uint64
	insert bool
}

// Comparer decides how a tree orders its slots. Locate returns the slot of
// n matching p, or, when found is false, the child to descend into (or the
// insertion index when n has no children).
type Comparer interface {
	// Weight is the weight a slot adds to its node.
	Weight(l *block.Leaf) uint64

	Locate(t *tree, n *node, p *probe) (i int, found bool, err error)

	// Less reports whether a must come before b.
	Less(t *tree, a, b *block.Leaf) (bool, error)
}

func comparerFor(kind block.TreeType) Comparer {
	switch kind {
	case block.TreeRank:
		return RankCompare{}
	case block.TreeData:
		return OrderedCompare{Data: true}
	}
	return OrderedCompare{}
}

// OrderedCompare binary searches slot keys. Data trees compare the stored
// key bytes; other trees compare the uint64 keys.
type OrderedCompare struct {
	Data bool
}

func (OrderedCompare) Weight(*block.Leaf) uint64 { return 1 }

func (o OrderedCompare) Locate(t *tree, n *node, p *probe) (int, bool, error) {
	lo, hi := 0, len(n.leaves)
	found := false
	for lo < hi && !found {
		mid := (lo + hi) / 2
		c, err := o.compare(t, p, &n.leaves[mid])
		if err != nil {
			return 0, false, err
		}

		switch {
		case c == 0:
			lo, found = mid, true
		case c < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}

	if p.insert {
		return lo, found, nil
	}
	return lo, found, t.skip(n, p, lo, found)
}

func (o OrderedCompare) Less(t *tree, a, b *block.Leaf) (bool, error) {
	if !o.Data {
		return a.Key < b.Key, nil
	}

	ka, err := t.f.readKey(a.Key)
	if err != nil {
		return false, err
	}
	kb, err := t.f.readKey(b.Key)
	if err != nil {
		return false, err
	}
	return bytes.Compare(ka, kb) < 0, nil
}

func (o OrderedCompare) compare(t *tree, p *probe, l *block.Leaf) (int, error) {
	if !o.Data {
		return cmp.Compare(p.key, l.Key), nil
	}

	key, err := t.f.readKey(l.Key)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(p.data, key), nil
}

// skip adds to p.rank the weight of what precedes slot i of n, or child i
// when found is false.
func (t *tree) skip(n *node, p *probe, i int, found bool) error {
	for j := 0; j < i; j++ {
		p.rank += t.cmp.Weight(&n.leaves[j])
	}
	if n.isLeaf() {
		return nil
	}

	last := i - 1
	if found {
		last = i
	}
	for k := 0; k <= last; k++ {
		w, err := t.childWeight(n, k)
		if err != nil {
			return err
		}
		p.rank += w
	}
	return nil
}

// RankCompare treats slot keys as lengths and finds the slot whose range
// contains a position.
type RankCompare struct{}

func (RankCompare) Weight(l *block.Leaf) uint64 { return l.Key }

func (r RankCompare) Locate(t *tree, n *node, p *probe) (int, bool, error) {
	return locateRank(t, n, p, r.Weight)
}

func (RankCompare) Less(*tree, *block.Leaf, *block.Leaf) (bool, error) { return true, nil }

// locateRank finds position p.pos among the items of n weighted by weight.
// Searches match the item covering the position. Inserts go down to the
// children-less level and stop at the item boundary equal to the position;
// a position inside an item is out of range.
func locateRank(t *tree, n *node, p *probe, weight func(*block.Leaf) uint64) (int, bool, error) {
	// descend reports whether the remaining position falls into child k.
	descend := func(k int) (bool, error) {
		if n.isLeaf() {
			return false, nil
		}
		w, err := t.childWeight(n, k)
		if err != nil {
			return false, err
		}
		if p.pos < w || p.insert && p.pos == w {
			return true, nil
		}
		p.pos -= w
		p.rank += w
		return false, nil
	}

	for j := 0; j <= len(n.leaves); j++ {
		in, err := descend(j)
		if err != nil || in {
			return j, false, err
		}
		if p.insert && n.isLeaf() && p.pos == 0 {
			return j, false, nil
		}
		if j == len(n.leaves) {
			break
		}

		w := weight(&n.leaves[j])
		if p.pos < w {
			if p.insert {
				return 0, false, errors.Wrapf(customerrors.ErrOutOfRange, "position %d splits an item", p.rank+p.pos)
			}
			return j, true, nil
		}
		p.pos -= w
		p.rank += w
	}
	return 0, false, errors.Wrapf(customerrors.ErrOutOfRange, "position %d past the end", p.rank+p.pos)
}
