package grid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/aether/internal/lattice"
)

// RecordSize is the width in bytes of one cell in a generation file.
const RecordSize = 8

// StepFileName returns the name of the data file holding step's generation.
func StepFileName(step int64) string {
	return fmt.Sprintf("step=%d.data", step)
}

// FileGeneration is a generation stored as big-endian int64 records, one per
// canonical position, at RecordSize·lattice.Offset(p).
type FileGeneration struct {
	dim      int
	extent   int
	step     int64
	path     string
	f        *os.File
	readOnly bool
	owned    bool
	buf      [RecordSize]byte
}

func (g *FileGeneration) Dimension() int { return g.dim }
func (g *FileGeneration) Extent() int    { return g.extent }

// Step returns the step number the file was created for.
func (g *FileGeneration) Step() int64 { return g.step }

// Path returns the location of the backing file.
func (g *FileGeneration) Path() string { return g.path }

func (g *FileGeneration) Value(p lattice.Position) (int64, error) {
	if p[0] >= g.extent {
		return 0, nil
	}
	if _, err := g.f.ReadAt(g.buf[:], lattice.Offset(p)*RecordSize); err != nil {
		return 0, fmt.Errorf("grid: read %v from %s: %w", p, g.path, err)
	}
	return int64(binary.BigEndian.Uint64(g.buf[:])), nil
}

// Add performs an unbuffered read-modify-write of one record.
func (g *FileGeneration) Add(p lattice.Position, v int64) error {
	if v == 0 {
		return nil
	}
	if g.readOnly {
		return fmt.Errorf("grid: %s is read-only", g.path)
	}
	if p[0] >= g.extent {
		return fmt.Errorf("grid: position %v beyond extent %d", p, g.extent)
	}
	off := lattice.Offset(p) * RecordSize
	if _, err := g.f.ReadAt(g.buf[:], off); err != nil {
		return fmt.Errorf("grid: read %v from %s: %w", p, g.path, err)
	}
	cur := int64(binary.BigEndian.Uint64(g.buf[:]))
	binary.BigEndian.PutUint64(g.buf[:], uint64(cur+v))
	if _, err := g.f.WriteAt(g.buf[:], off); err != nil {
		return fmt.Errorf("grid: write %v to %s: %w", p, g.path, err)
	}
	return nil
}

// Retire is a no-op; file generations are released as a whole on commit.
func (g *FileGeneration) Retire(int) error { return nil }

// WriteTo copies the records covering the generation's extent to w.
func (g *FileGeneration) WriteTo(w io.Writer) (int64, error) {
	size := lattice.Count(g.dim, g.extent) * RecordSize
	return io.Copy(w, io.NewSectionReader(g.f, 0, size))
}

// release closes the file and deletes it if the backend created it.
func (g *FileGeneration) release() error {
	err := g.f.Close()
	if g.owned {
		if rmErr := os.Remove(g.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	return err
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithFileLogger sets the logger used for file lifecycle events.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(b *FileBackend) { b.logger = l }
}

// FileBackend keeps generations in step=N.data files inside a private work
// directory.
type FileBackend struct {
	dim    int
	dir    string
	cur    *FileGeneration
	next   *FileGeneration
	logger *slog.Logger
	closed bool
}

var _ Backend[int64] = (*FileBackend)(nil)

// NewFileBackend creates a backend with a fresh work directory under parent
// (os.TempDir() when empty). The work directory is removed by Close.
func NewFileBackend(parent string, dim int, opts ...FileOption) (*FileBackend, error) {
	dir, err := os.MkdirTemp(parent, "aether-")
	if err != nil {
		return nil, fmt.Errorf("grid: create work dir: %w", err)
	}
	b := &FileBackend{dim: dim, dir: dir, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Dir returns the work directory.
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) Dimension() int { return b.dim }

// Current returns the committed generation, or nil before the first commit.
func (b *FileBackend) Current() Generation[int64] {
	if b.cur == nil {
		return nil
	}
	return b.cur
}

// CurrentFile returns the committed generation with its file accessors.
func (b *FileBackend) CurrentFile() *FileGeneration { return b.cur }

// Adopt makes an existing generation file current. The file is opened
// read-only and is never deleted by the backend. It must hold at least the
// records of extent slices.
func (b *FileBackend) Adopt(path string, step int64, extent int) error {
	if b.closed {
		return errors.New("grid: backend closed")
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("grid: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("grid: stat %s: %w", path, err)
	}
	if want := lattice.Count(b.dim, extent) * RecordSize; info.Size() < want {
		f.Close()
		return fmt.Errorf("grid: %s holds %d bytes, need %d", path, info.Size(), want)
	}
	if b.cur != nil {
		if err := b.cur.release(); err != nil {
			f.Close()
			return err
		}
	}
	b.cur = &FileGeneration{dim: b.dim, extent: extent, step: step, path: path, f: f, readOnly: true}
	b.logger.Debug("adopted generation file", "path", path, "step", step, "extent", extent)
	return nil
}

// Begin creates step's file sized up front for extent slices.
func (b *FileBackend) Begin(step int64, extent int) (Generation[int64], error) {
	if b.closed {
		return nil, errors.New("grid: backend closed")
	}
	if b.next != nil {
		return nil, errors.New("grid: generation already in progress")
	}
	path := filepath.Join(b.dir, StepFileName(step))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("grid: create %s: %w", path, err)
	}
	if err := f.Truncate(lattice.Count(b.dim, extent) * RecordSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("grid: size %s: %w", path, err)
	}
	b.next = &FileGeneration{dim: b.dim, extent: extent, step: step, path: path, f: f, owned: true}
	return b.next, nil
}

// Commit swaps in the new generation. Failing to release the previous file
// leaves it behind in the work directory, where Close removes it.
func (b *FileBackend) Commit() error {
	if b.next == nil {
		return errors.New("grid: no generation in progress")
	}
	prev := b.cur
	b.cur, b.next = b.next, nil
	if prev == nil {
		return nil
	}
	if err := prev.release(); err != nil {
		b.logger.Warn("failed to release generation file",
			"path", prev.path,
			"step", prev.step,
			"error", err)
		return nil
	}
	b.logger.Debug("released generation file", "path", prev.path, "deleted", prev.owned)
	return nil
}

// Discard closes and removes the partially built file.
func (b *FileBackend) Discard() error {
	if b.next == nil {
		return nil
	}
	next := b.next
	b.next = nil
	b.logger.Debug("discarding partial generation file", "path", next.path)
	return next.release()
}

func (b *FileBackend) Interruptible() bool { return true }

// Close releases all files and removes the work directory.
func (b *FileBackend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var errs []error
	if b.next != nil {
		errs = append(errs, b.next.release())
		b.next = nil
	}
	if b.cur != nil {
		errs = append(errs, b.cur.release())
		b.cur = nil
	}
	errs = append(errs, os.RemoveAll(b.dir))
	return errors.Join(errs...)
}
