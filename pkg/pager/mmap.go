package pager

import (
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// mmapFile maps the whole file read-write. The mapping is rebuilt whenever
// the file size changes; an empty file has no mapping.
type mmapFile struct {
	f    *os.File
	m    mmap.MMap
	size int64
}

func openMmap(f *os.File) (*mmapFile, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to stat file")
	}

	p := &mmapFile{f: f, size: info.Size()}
	if err := p.remap(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *mmapFile) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= p.size {
		return 0, io.EOF
	}

	n := copy(buf, p.m[off:])
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (p *mmapFile) WriteAt(buf []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if end := off + int64(len(buf)); end > p.size {
		if err := p.SetSize(end); err != nil {
			return 0, err
		}
	}
	return copy(p.m[off:], buf), nil
}

func (p *mmapFile) Size() (int64, error) {
	return p.size, nil
}

func (p *mmapFile) SetSize(size int64) error {
	if err := p.unmap(); err != nil {
		return err
	}
	if err := p.f.Truncate(size); err != nil {
		return errors.Wrap(err, "failed to truncate mapped file")
	}

	p.size = size
	return p.remap()
}

func (p *mmapFile) Flush() error {
	if p.m != nil {
		if err := p.m.Flush(); err != nil {
			return errors.Wrap(err, "failed to flush mapping")
		}
	}
	return errors.Wrap(p.f.Sync(), "failed to sync mapped file")
}

func (p *mmapFile) Close() error {
	if err := p.unmap(); err != nil {
		p.f.Close()
		return err
	}
	return p.f.Close()
}

func (p *mmapFile) remap() error {
	if p.size == 0 {
		return nil
	}

	m, err := mmap.Map(p.f, mmap.RDWR, 0)
	if err != nil {
		return errors.Wrap(err, "failed to map file")
	}
	p.m = m
	return nil
}

func (p *mmapFile) unmap() error {
	if p.m == nil {
		return nil
	}

	if err := p.m.Unmap(); err != nil {
		return errors.Wrap(err, "failed to unmap file")
	}
	p.m = nil
	return nil
}
