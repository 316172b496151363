package pager

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// memory files live for the lifetime of the process, keyed by name, so that
// a closed file can be opened again.
var memory = struct {
	sync.Mutex
	files map[string]*memData
}{files: map[string]*memData{}}

type memData struct {
	buf []byte
}

type memFile struct {
	d      *memData
	closed bool
}

func openMemory(name string, create bool) (*memFile, error) {
	memory.Lock()
	defer memory.Unlock()

	d, ok := memory.files[name]
	if create || !ok {
		if !create {
			return nil, errors.Errorf("memory file %s does not exist", name)
		}
		d = &memData{}
		memory.files[name] = d
	}
	return &memFile{d: d}, nil
}

func deleteMemory(name string) error {
	memory.Lock()
	defer memory.Unlock()

	if _, ok := memory.files[name]; !ok {
		return errors.Errorf("memory file %s does not exist", name)
	}
	delete(memory.files, name)
	return nil
}

// NewMemory returns an anonymous in-memory file.
func NewMemory() File {
	return &memFile{d: &memData{}}
}

func (p *memFile) ReadAt(buf []byte, off int64) (int, error) {
	if p.closed {
		return 0, errors.New("read from closed file")
	}
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(p.d.buf)) {
		return 0, io.EOF
	}

	n := copy(buf, p.d.buf[off:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (p *memFile) WriteAt(buf []byte, off int64) (int, error) {
	if p.closed {
		return 0, errors.New("write to closed file")
	}
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if end := off + int64(len(buf)); end > int64(len(p.d.buf)) {
		p.grow(end)
	}
	return copy(p.d.buf[off:], buf), nil
}

func (p *memFile) Size() (int64, error) {
	return int64(len(p.d.buf)), nil
}

func (p *memFile) SetSize(size int64) error {
	if size < 0 {
		return errors.New("negative size")
	}
	if size > int64(len(p.d.buf)) {
		p.grow(size)
		return nil
	}

	clear(p.d.buf[size:])
	p.d.buf = p.d.buf[:size]
	return nil
}

func (p *memFile) Flush() error {
	return nil
}

func (p *memFile) Close() error {
	p.closed = true
	return nil
}

func (p *memFile) grow(size int64) {
	if size <= int64(cap(p.d.buf)) {
		p.d.buf = p.d.buf[:size]
		return
	}

	buf := make([]byte, size, size+size/4)
	copy(buf, p.d.buf)
	p.d.buf = buf
}
