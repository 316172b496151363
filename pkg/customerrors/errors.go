// Package customerrors defines the error taxonomy shared by the storage
// packages. Format and logical errors are sentinels; I/O errors coming from
// the underlying file are wrapped with context and keep their cause.
package customerrors

import (
	"github.com/pkg/errors"
)

// format errors
var (
	// ErrBadMagic is returned when a file does not start with the engine's
	// magic marker.
	ErrBadMagic = errors.New("bad magic marker")

	// ErrEndianMismatch is returned when a file was created on a host whose
	// byte order differs from the current one.
	ErrEndianMismatch = errors.New("file endianness does not match host")

	// ErrBadBlockType is returned when a block's type tag is not the one
	// expected for the structure being read.
	ErrBadBlockType = errors.New("unexpected block type")
)

// logical errors
var (
	ErrNullRef = errors.New("null reference")

	ErrEmptyTree = errors.New("tree is empty")

	// ErrKeyNotFound should be returned from lookup operations when the
	// lookup key is not found in the tree.
	ErrKeyNotFound = errors.New("key not found")

	ErrKeyExists = errors.New("key already exists")

	// ErrEndOfTree is returned when a cursor steps past the first or the
	// last item of a tree.
	ErrEndOfTree = errors.New("no more items")

	// ErrWrongKind is returned when an operation is applied to the wrong kind
	// of entry, e.g. a tree operation on a data value.
	ErrWrongKind = errors.New("operation not valid for this kind of entry")

	ErrOutOfRange = errors.New("offset out of range")

	// ErrCorrupted is returned by consistency checks.
	ErrCorrupted = errors.New("structure is corrupted")

	ErrClosed = errors.New("file is closed")
)

// IsFormat reports whether err is caused by a format error.
func IsFormat(err error) bool {
	return errors.Is(err, ErrBadMagic) ||
		errors.Is(err, ErrEndianMismatch) ||
		errors.Is(err, ErrBadBlockType)
}
