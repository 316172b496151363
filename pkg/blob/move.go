package blob

import (
	"go-treedb/pkg/block"
	"go-treedb/util/helpers"

	"github.com/pkg/errors"
)

// Copy overwrites dst from dstOff with up to n bytes of src from srcOff and
// returns how many were copied. Overlapping ranges of one value are
// handled.
func (s *Store) Copy(
	dst block.Ref[block.DataHeader], dstOff uint64,
	src block.Ref[block.DataHeader], srcOff uint64,
	n uint64,
) (uint64, error) {
	from, to, err := s.pair(dst, src)
	if err != nil {
		return 0, err
	}
	return copyRange(to, dstOff, from, srcOff, n)
}

// Move cuts up to n bytes of src at srcOff and inserts them into dst at
// dstOff, returning how many were moved. For a single value dstOff is an
// offset before the move; it can't fall strictly inside the moved range.
func (s *Store) Move(
	dst block.Ref[block.DataHeader], dstOff uint64,
	src block.Ref[block.DataHeader], srcOff uint64,
	n uint64,
) (uint64, error) {
	from, to, err := s.pair(dst, src)
	if err != nil {
		return 0, err
	}

	if n, err = clamp(from, srcOff, n); err != nil || n == 0 {
		return 0, err
	}
	if dst == src {
		return n, rotate(from, dstOff, srcOff, n)
	}

	if dstOff > to.Length() {
		return 0, outOfRange("can't move to %d of %d", dstOff, to.Length())
	}
	buf := make([]byte, helpers.Min(n, copyChunk))
	for done := uint64(0); done < n; {
		k := helpers.Min(n-done, uint64(len(buf)))
		if _, err := from.ReadAt(buf[:k], srcOff+done); err != nil {
			return 0, err
		}
		if err := to.InsertAt(buf[:k], dstOff+done); err != nil {
			return 0, err
		}
		done += k
	}
	_, err = from.DeleteAt(srcOff, n)
	return n, err
}

// pair opens src and dst, sharing one storage when they are the same value.
func (s *Store) pair(dst, src block.Ref[block.DataHeader]) (Storage, Storage, error) {
	from, err := s.Open(src)
	if err != nil {
		return nil, nil, err
	}
	if dst == src {
		return from, from, nil
	}

	to, err := s.Open(dst)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// clamp limits n to the bytes of st available from off.
func clamp(st Storage, off, n uint64) (uint64, error) {
	if off > st.Length() {
		return 0, outOfRange("offset %d past length %d", off, st.Length())
	}
	return helpers.Min(n, st.Length()-off), nil
}

func copyRange(to Storage, dstOff uint64, from Storage, srcOff, n uint64) (uint64, error) {
	n, err := clamp(from, srcOff, n)
	if err != nil || n == 0 {
		return 0, err
	}

	// Copying forward over an overlapping tail would read bytes already
	// overwritten.
	backward := to == from && dstOff > srcOff && dstOff < srcOff+n

	buf := make([]byte, helpers.Min(n, copyChunk))
	for done := uint64(0); done < n; {
		k := helpers.Min(n-done, uint64(len(buf)))
		at := done
		if backward {
			at = n - done - k
		}
		if _, err := from.ReadAt(buf[:k], srcOff+at); err != nil {
			return 0, err
		}
		if _, err := to.WriteAt(buf[:k], dstOff+at); err != nil {
			return 0, err
		}
		done += k
	}
	return n, nil
}

// rotate moves [srcOff, srcOff+n) of st to dstOff by swapping it with the
// bytes between the two offsets. The smaller of the two blocks is staged in
// memory while the other one is shifted over it.
func rotate(st Storage, dstOff, srcOff, n uint64) error {
	if dstOff > srcOff && dstOff < srcOff+n {
		return outOfRange("can't move [%d, %d) into itself at %d", srcOff, srcOff+n, dstOff)
	}
	if dstOff > st.Length() {
		return outOfRange("can't move to %d of %d", dstOff, st.Length())
	}
	if dstOff == srcOff || dstOff == srcOff+n {
		return nil
	}

	// a and b are the adjacent blocks to swap.
	start, a, b := dstOff, srcOff-dstOff, n
	if dstOff > srcOff {
		start, a, b = srcOff, n, dstOff-srcOff-n
	}

	if a <= b {
		staged := make([]byte, a)
		if _, err := st.ReadAt(staged, start); err != nil {
			return err
		}
		if _, err := copyRange(st, start, st, start+a, b); err != nil {
			return err
		}
		_, err := st.WriteAt(staged, start+b)
		return errors.Wrap(err, "failed to write staged block")
	}

	staged := make([]byte, b)
	if _, err := st.ReadAt(staged, start+a); err != nil {
		return err
	}
	if _, err := copyRange(st, start+b, st, start, a); err != nil {
		return err
	}
	_, err := st.WriteAt(staged, start)
	return errors.Wrap(err, "failed to write staged block")
}
