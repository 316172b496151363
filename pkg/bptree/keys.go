package bptree

import (
	"encoding/binary"

	"go-treedb/pkg/block"

	"github.com/pkg/errors"
)

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.BigEndian

// keyLenSize prefixes the bytes of a stored key with their length.
const keyLenSize = 4

// writeKey stores a variable length key in its own page run.
func (f *Forest) writeKey(key []byte) (uint64, error) {
	ref, err := f.alloc.AllocatePages(uint64(keyLenSize+len(key)), false)
	if err != nil {
		return 0, errors.Wrap(err, "failed to allocate key")
	}

	buf := make([]byte, keyLenSize+len(key))
	bin.PutUint32(buf, uint32(len(key)))
	copy(buf[keyLenSize:], key)
	if _, err := f.file.WriteAt(buf, int64(block.PagePayload(ref))); err != nil {
		return 0, errors.Wrap(err, "failed to write key")
	}
	return ref, nil
}

func (f *Forest) readKey(ref uint64) ([]byte, error) {
	off := int64(block.PagePayload(ref))
	buf := make([]byte, keyLenSize)
	if _, err := f.file.ReadAt(buf, off); err != nil {
		return nil, errors.Wrapf(err, "failed to read key at %d", ref)
	}

	key := make([]byte, bin.Uint32(buf))
	if _, err := f.file.ReadAt(key, off+keyLenSize); err != nil {
		return nil, errors.Wrapf(err, "failed to read key at %d", ref)
	}
	return key, nil
}

func (f *Forest) releaseKey(ref uint64) error {
	return errors.Wrap(f.alloc.ReleasePages(ref), "failed to release key")
}
