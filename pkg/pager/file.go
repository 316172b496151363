package pager

import (
	"os"

	"github.com/pkg/errors"
)

type osFile struct {
	f *os.File
}

func (p *osFile) ReadAt(buf []byte, off int64) (int, error) {
	return p.f.ReadAt(buf, off)
}

func (p *osFile) WriteAt(buf []byte, off int64) (int, error) {
	return p.f.WriteAt(buf, off)
}

func (p *osFile) Size() (int64, error) {
	info, err := p.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "failed to stat file")
	}
	return info.Size(), nil
}

func (p *osFile) SetSize(size int64) error {
	return errors.Wrap(p.f.Truncate(size), "failed to truncate file")
}

func (p *osFile) Flush() error {
	return errors.Wrap(p.f.Sync(), "failed to sync file")
}

func (p *osFile) Close() error {
	return p.f.Close()
}
