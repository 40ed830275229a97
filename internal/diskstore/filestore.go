// Package diskstore implements bufferpool.PageStore as a single flat
// file of fixed-size, checksummed pages.
package diskstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pagevaultdb/pagevault/internal/bufferpool"
)

const (
	magic      = 0x50564C54 // "PVLT"
	version    = 1
	headerSize = 4096 // one page-sized slot reserved for the header, regardless of PageSize
)

// checksumSize is the trailing sha256 digest appended to every on-disk
// page slot.
const checksumSize = sha256.Size

// header is the fixed-layout file header written at offset 0.
type header struct {
	Magic    uint32
	Version  uint32
	PageSize uint32
	NumPages uint32
}

const headerFieldsSize = 4 * 4 // four uint32s

// FileStore is a file-backed bufferpool.PageStore. Every page slot on
// disk is PAGE_SIZE bytes of payload followed by a sha256 checksum of
// that payload; ReadPage verifies it and returns
// bufferpool.ErrChecksumMismatch on failure.
type FileStore struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	numPages uint32

	limiter *rate.Limiter
	log     *zap.Logger
}

// Option configures a FileStore at construction.
type Option func(*FileStore)

// WithRateLimiter throttles every ReadPage/WritePage call through
// limiter.WaitN, sized by the number of bytes touched. Grounded on the
// teacher's CopyThrottled helper for rate-limited file copies.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(fs *FileStore) { fs.limiter = limiter }
}

// WithLogger attaches a zap.Logger for I/O diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(fs *FileStore) { fs.log = log }
}

// Open opens the file at path, creating and initializing it with a fresh
// header if it doesn't exist.
func Open(path string, pageSize int, opts ...Option) (*FileStore, error) {
	fs := &FileStore{pageSize: pageSize, log: zap.NewNop()}
	for _, opt := range opts {
		opt(fs)
	}

	_, statErr := os.Stat(path)
	create := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("diskstore: open %s: %w", path, err)
	}
	fs.file = f

	if create {
		h := header{Magic: magic, Version: version, PageSize: uint32(pageSize), NumPages: 0}
		if err := fs.writeHeader(&h); err != nil {
			f.Close()
			return nil, err
		}
		fs.numPages = 0
		fs.log.Info("diskstore file created", zap.String("path", path), zap.Int("page_size", pageSize))
		return fs, nil
	}

	h, err := fs.readHeader()
	if err != nil {
		f.Close()
		return nil, err
	}
	if h.Magic != magic {
		f.Close()
		return nil, fmt.Errorf("diskstore: %s is not a pagevault file (bad magic)", path)
	}
	if h.PageSize != uint32(pageSize) {
		f.Close()
		return nil, fmt.Errorf("diskstore: %s page size %d does not match configured %d", path, h.PageSize, pageSize)
	}
	fs.numPages = h.NumPages
	fs.log.Info("diskstore file opened", zap.String("path", path), zap.Uint32("num_pages", h.NumPages))
	return fs, nil
}

func (fs *FileStore) slotSize() int64 {
	return int64(fs.pageSize) + checksumSize
}

func (fs *FileStore) offset(id bufferpool.PageID) int64 {
	return headerSize + int64(id)*fs.slotSize()
}

func (fs *FileStore) writeHeader(h *header) error {
	buf := make([]byte, headerFieldsSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.PageSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.NumPages)
	if _, err := fs.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("diskstore: write header: %w", err)
	}
	return fs.file.Sync()
}

func (fs *FileStore) readHeader() (*header, error) {
	buf := make([]byte, headerFieldsSize)
	if _, err := fs.file.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("diskstore: read header: %w", err)
	}
	return &header{
		Magic:    binary.LittleEndian.Uint32(buf[0:4]),
		Version:  binary.LittleEndian.Uint32(buf[4:8]),
		PageSize: binary.LittleEndian.Uint32(buf[8:12]),
		NumPages: binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// ReadPage fills buf with pageID's on-disk contents, verifying its
// trailing checksum.
func (fs *FileStore) ReadPage(pageID bufferpool.PageID, buf []byte) error {
	if len(buf) != fs.pageSize {
		return fmt.Errorf("diskstore: buffer size %d != page size %d", len(buf), fs.pageSize)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.throttle(len(buf)); err != nil {
		return err
	}

	slot := make([]byte, fs.slotSize())
	n, err := fs.file.ReadAt(slot, fs.offset(pageID))
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading page %d: %v", bufferpool.ErrIO, pageID, err)
	}
	if n != len(slot) {
		return fmt.Errorf("%w: short read for page %d, got %d of %d bytes", bufferpool.ErrIO, pageID, n, len(slot))
	}

	payload := slot[:fs.pageSize]
	wantSum := slot[fs.pageSize:]
	gotSum := sha256.Sum256(payload)
	for i := range gotSum {
		if gotSum[i] != wantSum[i] {
			fs.log.Error("checksum mismatch", zap.Int32("page_id", int32(pageID)))
			return bufferpool.ErrChecksumMismatch
		}
	}

	copy(buf, payload)
	return nil
}

// WritePage persists buf as pageID's contents, appending a fresh
// checksum trailer.
func (fs *FileStore) WritePage(pageID bufferpool.PageID, buf []byte) error {
	if len(buf) != fs.pageSize {
		return fmt.Errorf("diskstore: buffer size %d != page size %d", len(buf), fs.pageSize)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := fs.throttle(len(buf)); err != nil {
		return err
	}

	sum := sha256.Sum256(buf)
	slot := make([]byte, 0, fs.slotSize())
	slot = append(slot, buf...)
	slot = append(slot, sum[:]...)

	if _, err := fs.file.WriteAt(slot, fs.offset(pageID)); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", bufferpool.ErrIO, pageID, err)
	}
	return nil
}

// AllocatePage extends the file by one slot and returns the fresh page
// id.
func (fs *FileStore) AllocatePage() (bufferpool.PageID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	id := bufferpool.PageID(fs.numPages)
	empty := make([]byte, fs.slotSize())
	sum := sha256.Sum256(empty[:fs.pageSize])
	copy(empty[fs.pageSize:], sum[:])
	if _, err := fs.file.WriteAt(empty, fs.offset(id)); err != nil {
		return bufferpool.InvalidPageID, fmt.Errorf("%w: allocating page %d: %v", bufferpool.ErrIO, id, err)
	}
	fs.numPages++

	h, err := fs.readHeader()
	if err != nil {
		return bufferpool.InvalidPageID, err
	}
	h.NumPages = fs.numPages
	if err := fs.writeHeader(h); err != nil {
		return bufferpool.InvalidPageID, err
	}
	return id, nil
}

// DeallocatePage is a no-op: page identifiers are never recycled by
// pagevault's core, per spec.md §6.
func (fs *FileStore) DeallocatePage(bufferpool.PageID) error {
	return nil
}

// throttle waits on the configured rate limiter, if any, before an I/O
// of n bytes proceeds. Must be called with fs.mu held.
func (fs *FileStore) throttle(n int) error {
	if fs.limiter == nil {
		return nil
	}
	if err := fs.limiter.WaitN(context.Background(), n); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", bufferpool.ErrIO, err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (fs *FileStore) Sync() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Sync()
}

// Close syncs and closes the underlying file.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.file.Sync(); err != nil {
		fs.file.Close()
		return err
	}
	return fs.file.Close()
}
