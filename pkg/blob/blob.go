// Package blob stores variable length byte values. A value is described by
// a data header and kept either in one contiguous page run (DataByte) or as
// a rank tree of fixed capacity fragments keyed by their used length
// (DataFrag). Both strategies are used through the Storage interface.
package blob

import (
	"go-treedb/pkg/allocator"
	"go-treedb/pkg/block"
	"go-treedb/pkg/bptree"
	"go-treedb/pkg/customerrors"
	"go-treedb/pkg/pager"
	"go-treedb/util/helpers"
	"go-treedb/util/logger"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// copyChunk bounds the buffers used to shift and copy ranges.
const copyChunk = 64 * 1024

// Storage is a resizable byte value.
type Storage interface {
	// Length is the logical length of the value.
	Length() uint64

	// Size is the number of payload bytes reserved for the value.
	Size() uint64

	// Resize sets the length, zero filling any growth.
	Resize(length uint64) error

	// ReadAt fills p from off. Bytes past the length read as zero; reading
	// past the reserved size fails.
	ReadAt(p []byte, off uint64) (int, error)

	// WriteAt overwrites from off, extending the value when needed.
	WriteAt(p []byte, off uint64) (int, error)

	// InsertAt shifts the bytes from off right and puts p there.
	InsertAt(p []byte, off uint64) error

	// DeleteAt removes up to n bytes from off and returns how many were
	// removed.
	DeleteAt(off, n uint64) (uint64, error)
}

type Options struct {
	// FragNodeCount is the fan-out of fragment trees.
	FragNodeCount uint16 `json:"frag_node_count"`

	// FragThreshold is the length under which a fragment is merged into a
	// neighbour. Zero means a quarter of the increment.
	FragThreshold uint32 `json:"frag_threshold"`
}

var DefaultOptions = Options{
	FragNodeCount: 16,
}

// New returns the blob store of the file managed by a.
func New(a *allocator.Allocator, forest *bptree.Forest, opts *Options) *Store {
	if opts == nil {
		opts = &DefaultOptions
	}
	if opts.FragNodeCount < bptree.MinNodeCount {
		o := *opts
		o.FragNodeCount = DefaultOptions.FragNodeCount
		opts = &o
	}

	return &Store{
		file:   a.File(),
		alloc:  a,
		forest: forest,
		opts:   *opts,
		log:    logger.For("blob"),
	}
}

// Store creates, opens and releases blob values.
type Store struct {
	file   pager.File
	alloc  *allocator.Allocator
	forest *bptree.Forest
	opts   Options
	log    *logrus.Entry
}

// Create makes an empty value owned by the given tree.
func (s *Store) Create(
	kind block.DataKind,
	owner block.Ref[block.TreeHeader],
	increment uint32,
	encode uint8,
) (block.Ref[block.DataHeader], error) {
	if increment == 0 {
		return 0, errors.New("blob increment must be positive")
	}

	h := &block.DataHeader{Kind: kind, Encode: encode, Increment: increment, Owner: owner}
	if kind == block.DataFrag {
		tree, err := s.forest.NewTree(block.TreeRank, s.opts.FragNodeCount)
		if err != nil {
			return 0, errors.Wrap(err, "failed to create fragment tree")
		}
		h.Ptr = uint64(tree)
	}

	off, err := s.alloc.Allocate(uint64(h.Size()), true)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate data header")
	}

	ref := block.Ref[block.DataHeader](off)
	return ref, s.writeHeader(ref, h)
}

// Open returns the storage of a value.
func (s *Store) Open(ref block.Ref[block.DataHeader]) (Storage, error) {
	h, err := block.Read(s.file, ref)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read data header")
	}

	switch h.Kind {
	case block.DataByte:
		return &byteStorage{s: s, ref: ref, h: h}, nil
	case block.DataFrag:
		return &fragStorage{s: s, ref: ref, h: h}, nil
	}
	return nil, errors.Wrapf(customerrors.ErrCorrupted, "unknown data kind %d", h.Kind)
}

// Release frees a value with all its payload.
func (s *Store) Release(ref block.Ref[block.DataHeader]) error {
	h, err := block.Read(s.file, ref)
	if err != nil {
		return errors.Wrap(err, "failed to read data header")
	}

	if h.Ptr != 0 {
		switch h.Kind {
		case block.DataByte:
			err = s.alloc.ReleasePages(h.Ptr)
		case block.DataFrag:
			err = s.forest.DeleteTree(block.Ref[block.TreeHeader](h.Ptr))
		}
		if err != nil {
			return errors.Wrap(err, "failed to release data payload")
		}
	}
	return errors.Wrap(s.alloc.Release(uint64(ref), uint64(h.Size())), "failed to release data header")
}

// Header returns a copy of the header of a value.
func (s *Store) Header(ref block.Ref[block.DataHeader]) (*block.DataHeader, error) {
	return block.Read(s.file, ref)
}

// SetEncode stores the opaque encode type of a value.
func (s *Store) SetEncode(ref block.Ref[block.DataHeader], encode uint8) error {
	h, err := block.Read(s.file, ref)
	if err != nil {
		return err
	}
	h.Encode = encode
	return s.writeHeader(ref, h)
}

// Check verifies the bookkeeping of a value against its payload.
func (s *Store) Check(ref block.Ref[block.DataHeader]) error {
	st, err := s.Open(ref)
	if err != nil {
		return err
	}

	switch st := st.(type) {
	case *byteStorage:
		return st.check()
	case *fragStorage:
		return st.check()
	}
	return nil
}

func (s *Store) writeHeader(ref block.Ref[block.DataHeader], h *block.DataHeader) error {
	return errors.Wrap(block.Write(s.file, ref, h), "failed to write data header")
}

// readPage and writePage access the payload of the page run at ref.
func (s *Store) readPage(ref uint64, p []byte, off uint64) error {
	if _, err := s.file.ReadAt(p, int64(block.PagePayload(ref)+off)); err != nil {
		return errors.Wrapf(err, "failed to read page run %d", ref)
	}
	return nil
}

func (s *Store) writePage(ref uint64, p []byte, off uint64) error {
	if _, err := s.file.WriteAt(p, int64(block.PagePayload(ref)+off)); err != nil {
		return errors.Wrapf(err, "failed to write page run %d", ref)
	}
	return nil
}

// shiftPage moves n payload bytes of a page run from src to dst.
func (s *Store) shiftPage(ref, dst, src, n uint64) error {
	if n == 0 || dst == src {
		return nil
	}

	buf := make([]byte, helpers.Min(n, copyChunk))
	for done := uint64(0); done < n; {
		k := helpers.Min(n-done, uint64(len(buf)))
		at := done
		if dst > src {
			at = n - done - k
		}
		if err := s.readPage(ref, buf[:k], src+at); err != nil {
			return err
		}
		if err := s.writePage(ref, buf[:k], dst+at); err != nil {
			return err
		}
		done += k
	}
	return nil
}

// pageCapacity is the payload size of a page run allocated for n bytes.
func pageCapacity(n uint64) uint64 {
	return block.Blocks(n+block.PageHeaderSize)*block.BlockSize - block.PageHeaderSize
}

// rangeEnd returns off+n, failing when the range passes limit or wraps.
func rangeEnd(off uint64, n int, limit uint64) (uint64, error) {
	if off > limit || uint64(n) > limit-off {
		return 0, outOfRange("%d bytes at %d pass %d", n, off, limit)
	}
	return off + uint64(n), nil
}

func outOfRange(format string, args ...interface{}) error {
	return errors.Wrapf(customerrors.ErrOutOfRange, format, args...)
}
