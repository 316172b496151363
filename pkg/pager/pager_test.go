package pager

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func() (File, func() (File, error)) {
	dir := t.TempDir()
	return map[string]func() (File, func() (File, error)){
		BackendMemory: func() (File, func() (File, error)) {
			opts := &Options{Backend: BackendMemory}
			f, err := Create(t.Name()+".mem", opts)
			require.NoError(t, err)
			return f, func() (File, error) { return Open(t.Name()+".mem", opts) }
		},
		BackendFile: func() (File, func() (File, error)) {
			opts := &Options{Backend: BackendFile}
			name := filepath.Join(dir, "file.db")
			f, err := Create(name, opts)
			require.NoError(t, err)
			return f, func() (File, error) { return Open(name, opts) }
		},
		BackendMmap: func() (File, func() (File, error)) {
			opts := &Options{Backend: BackendMmap}
			name := filepath.Join(dir, "mmap.db")
			f, err := Create(name, opts)
			require.NoError(t, err)
			return f, func() (File, error) { return Open(name, opts) }
		},
	}
}

func TestBackends(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			f, reopen := mk()

			size, err := f.Size()
			require.NoError(t, err)
			require.Zero(t, size)

			_, err = f.WriteAt([]byte("hello"), 10)
			require.NoError(t, err)
			size, err = f.Size()
			require.NoError(t, err)
			require.Equal(t, int64(15), size)

			buf := make([]byte, 15)
			_, err = f.ReadAt(buf, 0)
			require.NoError(t, err)
			require.Equal(t, append(make([]byte, 10), "hello"...), buf)

			_, err = f.ReadAt(make([]byte, 10), 10)
			require.ErrorIs(t, err, io.EOF)

			require.NoError(t, f.SetSize(12))
			require.NoError(t, f.SetSize(20))
			buf = make([]byte, 10)
			_, err = f.ReadAt(buf, 10)
			require.NoError(t, err)
			require.Equal(t, []byte{'h', 'e', 0, 0, 0, 0, 0, 0, 0, 0}, buf)

			require.NoError(t, f.Flush())
			require.NoError(t, f.Close())

			f, err = reopen()
			require.NoError(t, err)
			size, err = f.Size()
			require.NoError(t, err)
			require.Equal(t, int64(20), size)
			require.NoError(t, f.Close())
		})
	}
}

func TestMemoryDelete(t *testing.T) {
	opts := &Options{Backend: BackendMemory}
	f, err := Create("deleted.mem", opts)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, Delete("deleted.mem", opts))
	_, err = Open("deleted.mem", opts)
	require.Error(t, err)
}

func TestUnknownBackend(t *testing.T) {
	_, err := Create("x", &Options{Backend: "tape"})
	require.Error(t, err)
}
