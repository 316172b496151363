package blob

import (
	"math"

	"go-treedb/pkg/block"
	"go-treedb/pkg/bptree"
	"go-treedb/pkg/customerrors"
	"go-treedb/util/helpers"

	"github.com/pkg/errors"
)

// fragStorage keeps a value as a rank tree of page runs. Each slot holds one
// fragment of increment capacity, keyed by the number of bytes it uses, so
// a position lookup on the tree finds the fragment holding a byte.
type fragStorage struct {
	s   *Store
	ref block.Ref[block.DataHeader]
	h   *block.DataHeader
}

func (f *fragStorage) Length() uint64 { return f.h.Length }
func (f *fragStorage) Size() uint64   { return f.h.Allocated }

func (f *fragStorage) tree() block.Ref[block.TreeHeader] {
	return block.Ref[block.TreeHeader](f.h.Ptr)
}

// capacity is the payload size of every fragment.
func (f *fragStorage) capacity() uint64 {
	return pageCapacity(uint64(f.h.Increment))
}

func (f *fragStorage) threshold() uint64 {
	if f.s.opts.FragThreshold > 0 {
		return uint64(f.s.opts.FragThreshold)
	}
	return uint64(f.h.Increment) / 4
}

// find returns a cursor on the fragment holding byte pos.
func (f *fragStorage) find(pos uint64) (*bptree.Cursor, error) {
	c := &bptree.Cursor{Tree: f.tree(), Rank: pos}
	if err := f.s.forest.Search(c); err != nil {
		return nil, errors.Wrapf(err, "failed to find fragment at %d", pos)
	}
	return c, nil
}

// sync stores the length and size of the fragment tree in the header.
func (f *fragStorage) sync() error {
	length, err := f.s.forest.Weight(f.tree())
	if err != nil {
		return err
	}
	count, err := f.s.forest.Count(f.tree())
	if err != nil {
		return err
	}

	f.h.Length, f.h.Allocated = length, count*f.capacity()
	return f.s.writeHeader(f.ref, f.h)
}

// add inserts fragments holding p at the fragment boundary pos.
func (f *fragStorage) add(p []byte, pos uint64) error {
	for len(p) > 0 {
		k := helpers.Min(uint64(len(p)), f.capacity())
		ref, err := f.s.alloc.AllocatePages(f.capacity(), false)
		if err != nil {
			return err
		}
		if err := f.s.writePage(ref, p[:k], 0); err != nil {
			return err
		}

		c := &bptree.Cursor{
			Tree:      f.tree(),
			Key:       k,
			Value:     ref,
			ValueType: block.ValuePage,
			Rank:      pos,
		}
		if err := f.s.forest.Insert(c); err != nil {
			return errors.Wrap(err, "failed to insert fragment")
		}
		p, pos = p[k:], pos+k
	}
	return nil
}

// visit calls fn for every fragment piece of [off, off+n) in order. fn gets
// the cursor of the fragment, the offset inside it and the piece length.
func (f *fragStorage) visit(off, n uint64, fn func(c *bptree.Cursor, in, k uint64) error) error {
	if n == 0 {
		return nil
	}

	c, err := f.find(off)
	if err != nil {
		return err
	}
	for done := uint64(0); ; {
		in := off + done - c.Rank
		k := helpers.Min(c.Key-in, n-done)
		if err := fn(c, in, k); err != nil {
			return err
		}
		if done += k; done == n {
			return nil
		}
		if err := f.s.forest.Next(c); err != nil {
			return err
		}
	}
}

func (f *fragStorage) ReadAt(p []byte, off uint64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end, err := rangeEnd(off, len(p), f.h.Allocated)
	if err != nil {
		return 0, errors.Wrap(err, "can't read")
	}

	n := uint64(0)
	if off < f.h.Length {
		n = helpers.Min(end, f.h.Length) - off
	}
	done := uint64(0)
	err = f.visit(off, n, func(c *bptree.Cursor, in, k uint64) error {
		err := f.s.readPage(c.Value, p[done:done+k], in)
		done += k
		return err
	})
	if err != nil {
		return 0, err
	}
	clear(p[n:])
	return len(p), nil
}

func (f *fragStorage) WriteAt(p []byte, off uint64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end, err := rangeEnd(off, len(p), math.MaxUint64)
	if err != nil {
		return 0, errors.Wrap(err, "can't write")
	}
	if end > f.h.Length {
		if err := f.Resize(end); err != nil {
			return 0, err
		}
	}

	done := uint64(0)
	err = f.visit(off, uint64(len(p)), func(c *bptree.Cursor, in, k uint64) error {
		err := f.s.writePage(c.Value, p[done:done+k], in)
		done += k
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *fragStorage) Resize(length uint64) error {
	if length < f.h.Length {
		_, err := f.DeleteAt(length, f.h.Length-length)
		return err
	}

	zeros := make([]byte, helpers.Min(length-f.h.Length, copyChunk))
	for f.h.Length < length {
		k := helpers.Min(length-f.h.Length, uint64(len(zeros)))
		if err := f.InsertAt(zeros[:k], f.h.Length); err != nil {
			return err
		}
	}
	return nil
}

// InsertAt makes room at off by filling the spare capacity of the
// fragments around it, splitting the fragment off falls into when needed,
// and adds new fragments for what is left.
func (f *fragStorage) InsertAt(p []byte, off uint64) error {
	if off > f.h.Length {
		return outOfRange("can't insert at %d of %d", off, f.h.Length)
	}
	if len(p) == 0 {
		return nil
	}

	if err := f.insert(p, off); err != nil {
		return err
	}
	return f.sync()
}

func (f *fragStorage) insert(p []byte, off uint64) error {
	n := uint64(len(p))
	if f.h.Length == 0 {
		return f.add(p, 0)
	}

	if off < f.h.Length {
		c, err := f.find(off)
		if err != nil {
			return err
		}
		if in := off - c.Rank; in > 0 {
			if c.Key+n <= f.capacity() {
				return f.widen(c, p, in)
			}
			if err := f.split(c, in); err != nil {
				return err
			}
		}
	}

	// off is a fragment boundary now.
	var left *bptree.Cursor
	spare := uint64(0)
	if off > 0 {
		c, err := f.find(off - 1)
		if err != nil {
			return err
		}
		left, spare = c, f.capacity()-c.Key
		if n <= spare {
			return f.widen(left, p, c.Key)
		}
	}

	if off < f.h.Length {
		right, err := f.find(off)
		if err != nil {
			return err
		}
		if right.Key+n <= f.capacity() {
			return f.widen(right, p, 0)
		}
	}

	if left != nil && spare > 0 {
		if err := f.widen(left, p[:spare], left.Key); err != nil {
			return err
		}
		p, off = p[spare:], off+spare
	}
	return f.add(p, off)
}

// widen puts p at offset in of the fragment under c, shifting what follows.
func (f *fragStorage) widen(c *bptree.Cursor, p []byte, in uint64) error {
	n := uint64(len(p))
	if err := f.s.shiftPage(c.Value, in+n, in, c.Key-in); err != nil {
		return err
	}
	if err := f.s.writePage(c.Value, p, in); err != nil {
		return err
	}
	return f.s.forest.Rekey(c, c.Key+n)
}

// split moves the bytes of the fragment under c from offset in to a new
// fragment right after it.
func (f *fragStorage) split(c *bptree.Cursor, in uint64) error {
	tail := make([]byte, c.Key-in)
	if err := f.s.readPage(c.Value, tail, in); err != nil {
		return err
	}

	start := c.Rank
	if err := f.s.forest.Rekey(c, in); err != nil {
		return err
	}
	return f.add(tail, start+in)
}

// DeleteAt removes bytes fragment by fragment. Covered fragments are
// dropped, partly covered ones are shifted and merged with a neighbour when
// they fall under the threshold.
func (f *fragStorage) DeleteAt(off, n uint64) (uint64, error) {
	if off > f.h.Length {
		return 0, outOfRange("can't delete at %d of %d", off, f.h.Length)
	}

	n = helpers.Min(n, f.h.Length-off)
	for left := n; left > 0; {
		c, err := f.find(off)
		if err != nil {
			return 0, err
		}

		in := off - c.Rank
		k := helpers.Min(c.Key-in, left)
		if k == c.Key {
			err = f.s.forest.DeleteAt(c)
		} else {
			err = f.narrow(c, in, k)
		}
		if err != nil {
			return 0, err
		}
		left -= k
	}

	if n == 0 {
		return 0, nil
	}
	return n, f.sync()
}

// narrow removes k bytes at offset in of the fragment under c.
func (f *fragStorage) narrow(c *bptree.Cursor, in, k uint64) error {
	if err := f.s.shiftPage(c.Value, in, in+k, c.Key-in-k); err != nil {
		return err
	}
	if err := f.s.forest.Rekey(c, c.Key-k); err != nil {
		return err
	}
	if c.Key < f.threshold() {
		return f.merge(c.Rank)
	}
	return nil
}

// merge folds the fragment starting at pos into its left neighbour when it
// fits there, otherwise pulls its right neighbour into it when that fits.
func (f *fragStorage) merge(pos uint64) error {
	total, err := f.s.forest.Weight(f.tree())
	if err != nil {
		return err
	}
	c, err := f.find(pos)
	if err != nil {
		return err
	}

	if pos > 0 {
		left, err := f.find(pos - 1)
		if err != nil {
			return err
		}
		if left.Key+c.Key <= f.capacity() {
			return f.absorb(pos-1, c)
		}
	}

	if end := pos + c.Key; end < total {
		right, err := f.find(end)
		if err != nil {
			return err
		}
		if c.Key+right.Key <= f.capacity() {
			return f.absorb(pos, right)
		}
	}
	return nil
}

// absorb appends the fragment under src to the fragment holding byte at,
// which must end where src starts, and drops src.
func (f *fragStorage) absorb(at uint64, src *bptree.Cursor) error {
	buf := make([]byte, src.Key)
	if err := f.s.readPage(src.Value, buf, 0); err != nil {
		return err
	}
	if err := f.s.forest.DeleteAt(src); err != nil {
		return err
	}

	dst, err := f.find(at)
	if err != nil {
		return err
	}
	f.s.log.Debugf("data %d: merging fragment of %d bytes into %d", f.ref, len(buf), dst.Value)
	return f.widen(dst, buf, dst.Key)
}

func (f *fragStorage) check() error {
	if err := f.s.forest.Check(f.tree()); err != nil {
		return err
	}

	var count, length uint64
	c := &bptree.Cursor{Tree: f.tree()}
	err := f.s.forest.First(c)
	for err == nil {
		if c.ValueType != block.ValuePage || c.Key == 0 || c.Key > f.capacity() {
			return errors.Wrapf(customerrors.ErrCorrupted,
				"data %d: fragment %d of %d bytes, type %d", f.ref, c.Value, c.Key, c.ValueType)
		}
		capacity, cerr := f.s.alloc.PageCapacity(c.Value)
		if cerr != nil {
			return cerr
		}
		if capacity != f.capacity() {
			return errors.Wrapf(customerrors.ErrCorrupted,
				"data %d: fragment %d has capacity %d", f.ref, c.Value, capacity)
		}
		count++
		length += c.Key
		err = f.s.forest.Next(c)
	}
	if !errors.Is(err, customerrors.ErrEndOfTree) && !errors.Is(err, customerrors.ErrEmptyTree) {
		return err
	}

	if length != f.h.Length || count*f.capacity() != f.h.Allocated {
		return errors.Wrapf(customerrors.ErrCorrupted,
			"data %d: header length %d size %d, fragments hold %d in %d",
			f.ref, f.h.Length, f.h.Allocated, length, count)
	}
	return nil
}
