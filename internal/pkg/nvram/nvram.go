// Package nvram provides a byte-addressable persistent region for the
// settings record, backed by a file on flash or by memory in tests.
package nvram

import (
	"errors"
	"fmt"
	"os"
)

// Region is the persistence contract: random-access reads and writes plus an
// explicit Commit that flushes written bytes to the underlying medium.
type Region interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Commit() error
	Close() error
}

// FileRegion stores the region in a fixed-size file. A freshly created file
// reads back as zeroes, which callers treat as "never configured".
type FileRegion struct {
	f    *os.File
	size int64
}

func OpenFile(path string, size int) (*FileRegion, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open nvram %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat nvram %s: %w", path, err)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("grow nvram %s: %w", path, err)
		}
	}
	return &FileRegion{f: f, size: int64(size)}, nil
}

func (r *FileRegion) ReadAt(p []byte, off int64) (int, error) {
	return r.f.ReadAt(p, off)
}

func (r *FileRegion) WriteAt(p []byte, off int64) (int, error) {
	return r.f.WriteAt(p, off)
}

func (r *FileRegion) Commit() error {
	return r.f.Sync()
}

func (r *FileRegion) Close() error {
	return r.f.Close()
}

var errOutOfRange = errors.New("nvram: offset out of range")

// MemRegion keeps the region in memory. Tests use it to observe commits and
// to inject commit failures.
type MemRegion struct {
	buf       []byte
	commits   int
	commitErr error
}

func NewMem(size int) *MemRegion {
	return &MemRegion{buf: make([]byte, size)}
}

func (m *MemRegion) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, errOutOfRange
	}
	return copy(p, m.buf[off:]), nil
}

func (m *MemRegion) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, errOutOfRange
	}
	return copy(m.buf[off:], p), nil
}

func (m *MemRegion) Commit() error {
	m.commits++
	return m.commitErr
}

func (m *MemRegion) Close() error { return nil }

// FailCommits makes every subsequent Commit return err (nil restores success).
func (m *MemRegion) FailCommits(err error) { m.commitErr = err }

// Commits returns how many times Commit has been called.
func (m *MemRegion) Commits() int { return m.commits }
