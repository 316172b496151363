package block

import (
	"go-treedb/pkg/customerrors"

	"github.com/pkg/errors"
)

const (
	Magic   = uint32(0x54524442) // "TRDB"
	Version = uint8(1)

	fileHeaderSize  = 16
	allocHeaderSize = 24

	// Fixed locations of the two headers; the first allocatable block
	// follows them.
	FileHeaderOffset  = 0
	AllocHeaderOffset = BlockSize
	FirstBlock        = 2
)

// FileHeader identifies a treedb file. It is written once, at creation.
type FileHeader struct {
	LittleEndian bool  // created on a little-endian host
	Compression  uint8 // opaque to the engine
	Version      uint8
	FirstTree    Ref[TreeHeader]
}

func (h *FileHeader) Type() Type { return TypeFile }
func (h *FileHeader) Size() int  { return fileHeaderSize }

func (h *FileHeader) MarshalBinary() ([]byte, error) {
	buf := header(TypeFile, fileHeaderSize)
	buf[1] = boolByte(h.LittleEndian)
	buf[2] = h.Compression
	buf[3] = h.Version
	bin.PutUint32(buf[4:8], Magic)
	bin.PutUint64(buf[8:16], uint64(h.FirstTree))
	return buf, nil
}

func (h *FileHeader) UnmarshalBinary(d []byte) error {
	if err := check(TypeFile, fileHeaderSize, d); err != nil {
		if errors.Is(err, customerrors.ErrBadBlockType) {
			return errors.Wrap(customerrors.ErrBadMagic, "missing file tag")
		}
		return err
	}
	if magic := bin.Uint32(d[4:8]); magic != Magic {
		return errors.Wrapf(customerrors.ErrBadMagic, "found %#x", magic)
	}

	h.LittleEndian = d[1] == 1
	h.Compression = d[2]
	h.Version = d[3]
	h.FirstTree = Ref[TreeHeader](bin.Uint64(d[8:16]))
	return nil
}

// Verify checks that the file can be used on this host.
func (h *FileHeader) Verify() error {
	if h.LittleEndian != HostLittleEndian() {
		return errors.Wrapf(customerrors.ErrEndianMismatch, "file little-endian=%t", h.LittleEndian)
	}
	if h.Version != Version {
		return errors.Errorf("incompatible version %#x (expected: %#x)", h.Version, Version)
	}
	return nil
}

// AllocHeader is the page allocator state: the file length in blocks and
// the head of the free-run list.
type AllocHeader struct {
	BlockCount uint64
	FreeHead   Ref[FreeRun]
}

func (h *AllocHeader) Type() Type { return TypeAlloc }
func (h *AllocHeader) Size() int  { return allocHeaderSize }

func (h *AllocHeader) MarshalBinary() ([]byte, error) {
	buf := header(TypeAlloc, allocHeaderSize)
	bin.PutUint64(buf[8:16], h.BlockCount)
	bin.PutUint64(buf[16:24], uint64(h.FreeHead))
	return buf, nil
}

func (h *AllocHeader) UnmarshalBinary(d []byte) error {
	if err := check(TypeAlloc, allocHeaderSize, d); err != nil {
		return err
	}

	h.BlockCount = bin.Uint64(d[8:16])
	h.FreeHead = Ref[FreeRun](bin.Uint64(d[16:24]))
	return nil
}
