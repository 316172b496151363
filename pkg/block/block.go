// Package block defines the on-disk records of a treedb file. Every record
// starts with a one byte type tag and occupies one or more fixed size
// blocks; every multi-byte field is stored big-endian, field by field.
package block

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"io"

	"go-treedb/pkg/customerrors"
	"go-treedb/util/helpers"

	"github.com/pkg/errors"
)

// BlockSize is the allocation unit of the file.
const BlockSize = 32

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.BigEndian

// HostLittleEndian reports the byte order of the running host. Tests replace
// it to simulate opening a file on a foreign host.
var HostLittleEndian = helpers.IsLittleEndian

type Type uint8

const (
	TypeNone Type = iota
	TypeFile
	TypeAlloc
	TypeFree
	TypeTree
	TypeNode
	TypeLeaf
	TypeData
	TypePage
)

var typeNames = [...]string{"none", "file", "allocator", "free", "tree", "node", "leaf", "data", "page"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Record is a fixed size on-disk structure.
type Record interface {
	Type() Type
	Size() int
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Ref is the byte offset of a T in the file. The zero Ref is null.
type Ref[T any] uint64

func (r Ref[T]) IsNil() bool { return r == 0 }

// Offset returns r moved by n bytes.
func (r Ref[T]) Offset(n uint64) uint64 { return uint64(r) + n }

type recordPtr[T any] interface {
	*T
	Record
}

// Blocks returns the number of blocks needed to hold n bytes.
func Blocks(n uint64) uint64 {
	return helpers.CeilDiv(n, BlockSize)
}

// Read decodes the record stored at ref.
func Read[T any, P recordPtr[T]](r io.ReaderAt, ref Ref[T]) (P, error) {
	rec := P(new(T))
	if ref.IsNil() {
		return nil, errors.Wrapf(customerrors.ErrNullRef, "failed to read %s block", rec.Type())
	}
	if err := Load(r, uint64(ref), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Write encodes rec at ref.
func Write[T any, P recordPtr[T]](w io.WriterAt, ref Ref[T], rec P) error {
	if ref.IsNil() {
		return errors.Wrapf(customerrors.ErrNullRef, "failed to write %s block", rec.Type())
	}
	return Store(w, uint64(ref), rec)
}

// Load decodes the record found at byte offset off into rec.
func Load(r io.ReaderAt, off uint64, rec Record) error {
	buf := make([]byte, rec.Size())
	if _, err := r.ReadAt(buf, int64(off)); err != nil {
		return errors.Wrapf(err, "failed to read %s block at %d", rec.Type(), off)
	}
	if err := rec.UnmarshalBinary(buf); err != nil {
		return errors.Wrapf(err, "failed to decode block at %d", off)
	}
	return nil
}

// Store encodes rec at byte offset off.
func Store(w io.WriterAt, off uint64, rec Record) error {
	buf, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.WriteAt(buf, int64(off)); err != nil {
		return errors.Wrapf(err, "failed to write %s block at %d", rec.Type(), off)
	}
	return nil
}

func header(t Type, size int) []byte {
	buf := make([]byte, size)
	buf[0] = byte(t)
	return buf
}

func check(t Type, size int, d []byte) error {
	if len(d) < size {
		return errors.Errorf("in-sufficient data for %s block: %d < %d", t, len(d), size)
	}
	if Type(d[0]) != t {
		return errors.Wrapf(customerrors.ErrBadBlockType, "expected %s, found %s", t, Type(d[0]))
	}
	return nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
