// Package pager provides the file abstraction the storage engine runs on.
// A File is a flat, byte addressed, growable region; the engine never caches
// or interprets it beyond positioned reads and writes.
package pager

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	BackendFile   = "file"
	BackendMmap   = "mmap"
	BackendMemory = "memory"
)

// File is the set of primitives the engine consumes from its file
// collaborator.
type File interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the physical size of the file in bytes.
	Size() (int64, error)

	// SetSize truncates or extends the file. Extended bytes read as zero.
	SetSize(size int64) error

	Flush() error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string      `json:"backend"`
	Mode    os.FileMode `json:"mode"`
}

var DefaultOptions = Options{
	Backend: BackendFile,
	Mode:    0644,
}

// Create creates (or truncates) the named file.
func Create(fileName string, opts *Options) (File, error) {
	return open(fileName, opts, true)
}

// Open opens an existing file.
func Open(fileName string, opts *Options) (File, error) {
	return open(fileName, opts, false)
}

// Delete removes the named file from the backend.
func Delete(fileName string, opts *Options) error {
	if opts == nil {
		opts = &DefaultOptions
	}

	if opts.Backend == BackendMemory {
		return deleteMemory(fileName)
	}
	return errors.Wrapf(os.Remove(fileName), "failed to delete %s", fileName)
}

func open(fileName string, opts *Options, create bool) (File, error) {
	if opts == nil {
		opts = &DefaultOptions
	}

	switch opts.Backend {
	case BackendMemory:
		return openMemory(fileName, create)
	case BackendFile, "":
		f, err := openOS(fileName, opts.Mode, create)
		if err != nil {
			return nil, err
		}
		return &osFile{f}, nil
	case BackendMmap:
		f, err := openOS(fileName, opts.Mode, create)
		if err != nil {
			return nil, err
		}
		return openMmap(f)
	default:
		return nil, errors.Errorf("unknown pager backend %q", opts.Backend)
	}
}

func openOS(fileName string, mode os.FileMode, create bool) (*os.File, error) {
	if mode == 0 {
		mode = DefaultOptions.Mode
	}

	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(fileName, flag, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", fileName)
	}
	return f, nil
}
