package blob

import (
	"math"

	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"
	"go-treedb/util/helpers"

	"github.com/pkg/errors"
)

// byteStorage keeps a value in one page run whose capacity is the length
// rounded up to the increment.
type byteStorage struct {
	s   *Store
	ref block.Ref[block.DataHeader]
	h   *block.DataHeader
}

func (b *byteStorage) Length() uint64 { return b.h.Length }
func (b *byteStorage) Size() uint64   { return b.h.Allocated }

func (b *byteStorage) Resize(length uint64) error {
	if length == b.h.Length {
		return nil
	}

	if length == 0 {
		if b.h.Ptr != 0 {
			if err := b.s.alloc.ReleasePages(b.h.Ptr); err != nil {
				return errors.Wrap(err, "failed to release page run")
			}
		}
		b.h.Ptr, b.h.Length, b.h.Allocated = 0, 0, 0
		return b.s.writeHeader(b.ref, b.h)
	}

	want := helpers.RoundUp(length, uint64(b.h.Increment))
	switch {
	case b.h.Ptr == 0:
		ref, err := b.s.alloc.AllocatePages(want, true)
		if err != nil {
			return err
		}
		b.h.Ptr = ref
	case pageCapacity(want) < b.h.Allocated:
		if err := b.shrink(want); err != nil {
			return err
		}
	case want > b.h.Allocated:
		if err := b.grow(want); err != nil {
			return err
		}
	case length > b.h.Length:
		if err := b.zero(b.h.Length, length); err != nil {
			return err
		}
	}

	b.h.Length = length
	b.h.Allocated = pageCapacity(want)
	return b.s.writeHeader(b.ref, b.h)
}

// shrink releases the tail blocks of the run past a payload of want bytes.
func (b *byteStorage) shrink(want uint64) error {
	h := &block.PageHeader{Blocks: uint32(block.Blocks(want + block.PageHeaderSize))}
	keep := uint64(h.Blocks) * block.BlockSize
	drop := b.h.Allocated + block.PageHeaderSize - keep

	if err := b.s.alloc.Release(b.h.Ptr+keep, drop); err != nil {
		return errors.Wrap(err, "failed to release page run tail")
	}
	return errors.Wrap(block.Store(b.s.file, b.h.Ptr, h), "failed to write page header")
}

// grow moves the content to a new zero filled run with room for want bytes.
func (b *byteStorage) grow(want uint64) error {
	ref, err := b.s.alloc.AllocatePages(want, true)
	if err != nil {
		return err
	}

	buf := make([]byte, helpers.Min(b.h.Length, copyChunk))
	for done := uint64(0); done < b.h.Length; {
		k := helpers.Min(b.h.Length-done, uint64(len(buf)))
		if err := b.s.readPage(b.h.Ptr, buf[:k], done); err != nil {
			return err
		}
		if err := b.s.writePage(ref, buf[:k], done); err != nil {
			return err
		}
		done += k
	}

	if err := b.s.alloc.ReleasePages(b.h.Ptr); err != nil {
		return errors.Wrap(err, "failed to release old page run")
	}
	b.s.log.Debugf("data %d moved from run %d to %d", b.ref, b.h.Ptr, ref)
	b.h.Ptr = ref
	return nil
}

// zero clears [from, to) of the payload.
func (b *byteStorage) zero(from, to uint64) error {
	buf := make([]byte, helpers.Min(to-from, copyChunk))
	for from < to {
		k := helpers.Min(to-from, uint64(len(buf)))
		if err := b.s.writePage(b.h.Ptr, buf[:k], from); err != nil {
			return err
		}
		from += k
	}
	return nil
}

func (b *byteStorage) ReadAt(p []byte, off uint64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end, err := rangeEnd(off, len(p), b.h.Allocated)
	if err != nil {
		return 0, errors.Wrap(err, "can't read")
	}

	n := uint64(0)
	if off < b.h.Length {
		n = helpers.Min(end, b.h.Length) - off
		if err := b.s.readPage(b.h.Ptr, p[:n], off); err != nil {
			return 0, err
		}
	}
	clear(p[n:])
	return len(p), nil
}

func (b *byteStorage) WriteAt(p []byte, off uint64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end, err := rangeEnd(off, len(p), math.MaxUint64)
	if err != nil {
		return 0, errors.Wrap(err, "can't write")
	}
	if end > b.h.Length {
		if err := b.Resize(end); err != nil {
			return 0, err
		}
	}

	if err := b.s.writePage(b.h.Ptr, p, off); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *byteStorage) InsertAt(p []byte, off uint64) error {
	if off > b.h.Length {
		return outOfRange("can't insert at %d of %d", off, b.h.Length)
	}
	if len(p) == 0 {
		return nil
	}

	n := uint64(len(p))
	tail := b.h.Length - off
	if err := b.Resize(b.h.Length + n); err != nil {
		return err
	}
	if err := b.s.shiftPage(b.h.Ptr, off+n, off, tail); err != nil {
		return err
	}
	return b.s.writePage(b.h.Ptr, p, off)
}

func (b *byteStorage) DeleteAt(off, n uint64) (uint64, error) {
	if off > b.h.Length {
		return 0, outOfRange("can't delete at %d of %d", off, b.h.Length)
	}

	n = helpers.Min(n, b.h.Length-off)
	if n == 0 {
		return 0, nil
	}
	if err := b.s.shiftPage(b.h.Ptr, off, off+n, b.h.Length-off-n); err != nil {
		return 0, err
	}
	return n, b.Resize(b.h.Length - n)
}

func (b *byteStorage) check() error {
	if b.h.Ptr == 0 {
		if b.h.Length != 0 || b.h.Allocated != 0 {
			return errors.Wrapf(customerrors.ErrCorrupted, "data %d has no run but length %d", b.ref, b.h.Length)
		}
		return nil
	}

	capacity, err := b.s.alloc.PageCapacity(b.h.Ptr)
	if err != nil {
		return err
	}
	if capacity != b.h.Allocated || b.h.Length > capacity || b.h.Length == 0 {
		return errors.Wrapf(customerrors.ErrCorrupted,
			"data %d: length %d, allocated %d, run capacity %d", b.ref, b.h.Length, b.h.Allocated, capacity)
	}
	return nil
}
