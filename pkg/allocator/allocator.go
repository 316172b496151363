// Package allocator hands out runs of blocks inside a treedb file. Unused
// runs are threaded through the file itself as a singly linked list ordered
// by offset; when no run fits, the file grows by exactly the missing blocks.
package allocator

import (
	"go-treedb/pkg/block"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/pager"
	"go-treedb/util/logger"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// zeroChunk bounds the buffer used to clear freshly allocated runs.
const zeroChunk = 64 * 1024

// Create writes an empty allocator header to f.
func Create(f pager.File) (*Allocator, error) {
	a := &Allocator{
		file: f,
		head: &block.AllocHeader{BlockCount: block.FirstBlock},
		log:  logger.For("allocator"),
	}
	return a, a.writeHead()
}

// Open reads the allocator header of f.
func Open(f pager.File) (*Allocator, error) {
	a := &Allocator{
		file: f,
		head: &block.AllocHeader{},
		log:  logger.For("allocator"),
	}
	if err := block.Load(f, block.AllocHeaderOffset, a.head); err != nil {
		return nil, errors.Wrap(err, "failed to read allocator header")
	}
	return a, nil
}

// Allocator is the page allocator of one file.
type Allocator struct {
	file pager.File
	head *block.AllocHeader
	log  *logrus.Entry
}

// Stats summarizes the allocator state.
type Stats struct {
	BlockCount uint64 `json:"block_count"`
	FreeRuns   uint64 `json:"free_runs"`
	FreeBlocks uint64 `json:"free_blocks"`
}

func (a *Allocator) File() pager.File { return a.file }

// BlockCount is the logical size of the file in blocks.
func (a *Allocator) BlockCount() uint64 { return a.head.BlockCount }

// Allocate returns the offset of a run large enough for size bytes. The
// first free run that fits is used, split when larger; otherwise the file
// grows. When clear is set the run is zero filled, and a failed fill gives
// the run back before returning the error.
func (a *Allocator) Allocate(size uint64, clear bool) (uint64, error) {
	n := block.Blocks(size)
	if n == 0 {
		return 0, errors.New("can't allocate zero bytes")
	}

	off, found, err := a.takeFree(n)
	if err != nil {
		return 0, err
	}
	if !found {
		if off, err = a.grow(n); err != nil {
			return 0, err
		}
	}

	if clear {
		if err := a.zero(off, n*block.BlockSize); err != nil {
			if rerr := a.Release(off, n*block.BlockSize); rerr != nil {
				a.log.WithError(rerr).Errorf("failed to roll back allocation at %d", off)
			}
			return 0, errors.Wrap(err, "failed to clear allocated run")
		}
	}
	return off, nil
}

// Release gives back the run of size bytes at off. The run is merged with
// adjacent free runs, and dropped from the end of the file when it reaches
// it.
func (a *Allocator) Release(off, size uint64) error {
	n := block.Blocks(size)
	end := off + n*block.BlockSize
	if n == 0 || off%block.BlockSize != 0 || off < block.FirstBlock*block.BlockSize || end > a.end() {
		return errors.Wrapf(customerrors.ErrOutOfRange, "can't release %d bytes at %d", size, off)
	}

	// link is the run whose Next points at the released run, 0 for the
	// header; prev is the run right before it.
	var link, prevRef uint64
	var prev *block.FreeRun
	cur := uint64(a.head.FreeHead)
	for cur != 0 && cur < off {
		run, err := a.readRun(cur)
		if err != nil {
			return err
		}
		link, prevRef, prev = prevRef, cur, run
		cur = uint64(run.Next)
	}
	if cur != 0 && cur < end {
		return errors.Wrapf(customerrors.ErrCorrupted, "run at %d overlaps free run at %d", off, cur)
	}
	if prev != nil && prevRef+prev.Length*block.BlockSize > off {
		return errors.Wrapf(customerrors.ErrCorrupted, "run at %d overlaps free run at %d", off, prevRef)
	}

	start, run := off, &block.FreeRun{Length: n, Next: block.Ref[block.FreeRun](cur)}
	if prev != nil && prevRef+prev.Length*block.BlockSize == off {
		start, run = prevRef, prev
		run.Length += n
	} else {
		link = prevRef
	}

	for !run.Next.IsNil() && start+run.Length*block.BlockSize == uint64(run.Next) {
		next, err := a.readRun(uint64(run.Next))
		if err != nil {
			return err
		}
		run.Length += next.Length
		run.Next = next.Next
	}

	if start+run.Length*block.BlockSize == a.end() {
		a.log.Debugf("truncating %d blocks at %d", run.Length, start)
		a.head.BlockCount -= run.Length
		if link == 0 {
			a.head.FreeHead = run.Next
			return a.writeHead()
		}
		return a.setNext(link, uint64(run.Next))
	}

	if err := a.writeRun(start, run); err != nil {
		return err
	}
	if start == prevRef {
		return nil
	}
	if link == 0 {
		a.head.FreeHead = block.Ref[block.FreeRun](start)
		return a.writeHead()
	}
	return a.setNext(link, start)
}

// AllocatePages allocates a page run with room for payload bytes.
func (a *Allocator) AllocatePages(payload uint64, clear bool) (uint64, error) {
	n := block.Blocks(payload + block.PageHeaderSize)
	if n > 1<<32-1 {
		return 0, errors.Wrapf(customerrors.ErrOutOfRange, "page run of %d blocks", n)
	}

	ref, err := a.Allocate(n*block.BlockSize, clear)
	if err != nil {
		return 0, err
	}
	if err := block.Store(a.file, ref, &block.PageHeader{Blocks: uint32(n)}); err != nil {
		return 0, errors.Wrap(err, "failed to write page header")
	}
	return ref, nil
}

// ReleasePages releases the page run at ref.
func (a *Allocator) ReleasePages(ref uint64) error {
	h, err := a.pageHeader(ref)
	if err != nil {
		return err
	}
	return a.Release(ref, uint64(h.Blocks)*block.BlockSize)
}

// PageCapacity returns the payload size of the page run at ref.
func (a *Allocator) PageCapacity(ref uint64) (uint64, error) {
	h, err := a.pageHeader(ref)
	if err != nil {
		return 0, err
	}
	return h.Capacity(), nil
}

// Purge cuts the physical file down to its logical size.
func (a *Allocator) Purge() error {
	size, err := a.file.Size()
	if err != nil {
		return errors.Wrap(err, "failed to get file size")
	}
	if uint64(size) <= a.end() {
		return nil
	}

	a.log.Debugf("purging %d bytes", uint64(size)-a.end())
	return errors.Wrap(a.file.SetSize(int64(a.end())), "failed to purge file")
}

// Stats walks the free list.
func (a *Allocator) Stats() (Stats, error) {
	st := Stats{BlockCount: a.head.BlockCount}
	for cur := uint64(a.head.FreeHead); cur != 0; {
		run, err := a.readRun(cur)
		if err != nil {
			return st, err
		}
		st.FreeRuns++
		st.FreeBlocks += run.Length
		cur = uint64(run.Next)
	}
	return st, nil
}

// Check verifies that free runs are ordered, never adjacent, and lie inside
// the file without touching its end.
func (a *Allocator) Check() error {
	low := uint64(block.FirstBlock * block.BlockSize)
	for cur := uint64(a.head.FreeHead); cur != 0; {
		if cur%block.BlockSize != 0 || cur < low {
			return errors.Wrapf(customerrors.ErrCorrupted, "free run at %d out of order", cur)
		}

		run, err := a.readRun(cur)
		if err != nil {
			return err
		}
		end := cur + run.Length*block.BlockSize
		if run.Length == 0 || end >= a.end() {
			return errors.Wrapf(customerrors.ErrCorrupted, "free run at %d has bad length %d", cur, run.Length)
		}

		// the next run must start after a used block
		low = end + 1
		cur = uint64(run.Next)
	}
	return nil
}

func (a *Allocator) takeFree(n uint64) (uint64, bool, error) {
	var link uint64
	for cur := uint64(a.head.FreeHead); cur != 0; {
		run, err := a.readRun(cur)
		if err != nil {
			return 0, false, err
		}
		if run.Length < n {
			link, cur = cur, uint64(run.Next)
			continue
		}

		next := run.Next
		if run.Length > n {
			rest := cur + n*block.BlockSize
			next = block.Ref[block.FreeRun](rest)
			if err := a.writeRun(rest, &block.FreeRun{Length: run.Length - n, Next: run.Next}); err != nil {
				return 0, false, err
			}
		}

		if link == 0 {
			a.head.FreeHead = next
			return cur, true, a.writeHead()
		}
		return cur, true, a.setNext(link, uint64(next))
	}
	return 0, false, nil
}

func (a *Allocator) grow(n uint64) (uint64, error) {
	off := a.end()
	a.head.BlockCount += n

	size, err := a.file.Size()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get file size")
	}
	if uint64(size) < a.end() {
		a.log.Debugf("growing file by %d blocks", n)
		if err := a.file.SetSize(int64(a.end())); err != nil {
			a.head.BlockCount -= n
			return 0, errors.Wrap(err, "failed to grow file")
		}
	}
	return off, a.writeHead()
}

func (a *Allocator) zero(off, size uint64) error {
	buf := make([]byte, min(size, zeroChunk))
	for size > 0 {
		n := min(size, uint64(len(buf)))
		if _, err := a.file.WriteAt(buf[:n], int64(off)); err != nil {
			return errors.Wrapf(err, "failed to zero %d bytes at %d", n, off)
		}
		off += n
		size -= n
	}
	return nil
}

func (a *Allocator) pageHeader(ref uint64) (*block.PageHeader, error) {
	if ref == 0 {
		return nil, errors.Wrap(customerrors.ErrNullRef, "failed to read page run")
	}

	h := &block.PageHeader{}
	if err := block.Load(a.file, ref, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (a *Allocator) end() uint64 {
	return a.head.BlockCount * block.BlockSize
}

func (a *Allocator) readRun(ref uint64) (*block.FreeRun, error) {
	return block.Read(a.file, block.Ref[block.FreeRun](ref))
}

func (a *Allocator) writeRun(ref uint64, run *block.FreeRun) error {
	return block.Write(a.file, block.Ref[block.FreeRun](ref), run)
}

func (a *Allocator) setNext(ref, next uint64) error {
	run, err := a.readRun(ref)
	if err != nil {
		return err
	}
	run.Next = block.Ref[block.FreeRun](next)
	return a.writeRun(ref, run)
}

func (a *Allocator) writeHead() error {
	return errors.Wrap(
		block.Store(a.file, block.AllocHeaderOffset, a.head),
		"failed to write allocator header",
	)
}
