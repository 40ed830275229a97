// Package wal implements bufferpool.LogSink as a minimal, segment-rotating
// append log: just enough to give force-log-before-data eviction ordering
// something real to call, without the teacher's redo/undo recovery and
// replication machinery, which is out of this module's scope.
package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagevaultdb/pagevault/internal/bufferpool"
)

// DefaultSegmentSizeLimit rolls to a fresh segment once the current one
// would exceed this many bytes, mirroring the teacher's
// rollLogSegment/findOrCreateLatestLogSegment size-based rotation.
const DefaultSegmentSizeLimit = 16 << 20 // 16 MiB

// record is one WAL entry: the page it covers, the LSN it establishes,
// and an opaque payload (typically the page's post-image bytes).
type record struct {
	pageID  bufferpool.PageID
	lsn     bufferpool.LSN
	payload []byte
}

// Log is a single-writer, append-only write-ahead log. It buffers
// appended records in memory and flushes them to the active segment file
// on FlushUpTo, matching the teacher's buffer-then-flush LogManager
// design without its recovery passes.
type Log struct {
	mu sync.Mutex

	dir         string
	sessionID   string
	sizeLimit   int64
	segmentSeq  int
	segmentFile *os.File
	segmentSize int64

	buf       bytes.Buffer
	pending   []record
	flushedTo bufferpool.LSN
	nextLSN   bufferpool.LSN

	log *zap.Logger
}

// Open creates or reuses dir as a WAL directory and starts a fresh
// session. Each Log instance tags its segment files with a random UUID
// so that two instances pointed at the same directory (e.g. concurrent
// test runs) never collide, per SPEC_FULL.md §3.2.
func Open(dir string, log *zap.Logger) (*Log, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}

	l := &Log{
		dir:       dir,
		sessionID: uuid.NewString(),
		sizeLimit: DefaultSegmentSizeLimit,
		log:       log,
	}
	if err := l.rollSegment(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) segmentPath() string {
	return filepath.Join(l.dir, fmt.Sprintf("log_%s_%04d.wal", l.sessionID, l.segmentSeq))
}

// rollSegment closes the current segment file, if any, and opens the
// next one in sequence. Must be called with l.mu held.
func (l *Log) rollSegment() error {
	if l.segmentFile != nil {
		if err := l.segmentFile.Close(); err != nil {
			return fmt.Errorf("wal: close segment: %w", err)
		}
	}
	l.segmentSeq++
	f, err := os.OpenFile(l.segmentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("wal: open segment: %w", err)
	}
	l.segmentFile = f
	l.segmentSize = 0
	l.log.Info("wal segment opened", zap.String("path", l.segmentPath()))
	return nil
}

// Append stages a record covering pageID and returns the LSN it was
// assigned. The record is not durable until FlushUpTo(lsn) succeeds.
func (l *Log) Append(pageID bufferpool.PageID, payload []byte) (bufferpool.LSN, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextLSN++
	lsn := l.nextLSN
	body := make([]byte, len(payload))
	copy(body, payload)
	l.pending = append(l.pending, record{pageID: pageID, lsn: lsn, payload: body})
	return lsn, nil
}

// serialize writes one record's on-wire form to buf: page id, lsn,
// payload length, payload.
func serialize(buf *bytes.Buffer, r record) {
	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(r.pageID))
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(r.lsn))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(r.payload)))
	buf.Write(hdr[:])
	buf.Write(r.payload)
}

// FlushUpTo writes every pending record with lsn <= target to the active
// segment and fsyncs it, rotating segments as the size limit is crossed.
// It is a no-op if everything up to target is already durable.
func (l *Log) FlushUpTo(target bufferpool.LSN) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if target <= l.flushedTo {
		return nil
	}

	l.buf.Reset()
	i := 0
	for ; i < len(l.pending); i++ {
		r := l.pending[i]
		if r.lsn > target {
			break
		}
		serialize(&l.buf, r)
	}
	if l.buf.Len() > 0 {
		if l.segmentSize+int64(l.buf.Len()) > l.sizeLimit {
			if err := l.rollSegment(); err != nil {
				return err
			}
		}
		n, err := l.segmentFile.Write(l.buf.Bytes())
		if err != nil {
			return fmt.Errorf("%w: wal write: %v", bufferpool.ErrIO, err)
		}
		l.segmentSize += int64(n)
		if err := l.segmentFile.Sync(); err != nil {
			return fmt.Errorf("%w: wal sync: %v", bufferpool.ErrIO, err)
		}
	}

	l.pending = l.pending[i:]
	if target > l.nextLSN {
		target = l.nextLSN
	}
	l.flushedTo = target
	return nil
}

// Close flushes any records assigned an LSN so far and closes the active
// segment.
func (l *Log) Close() error {
	l.mu.Lock()
	last := l.nextLSN
	l.mu.Unlock()

	if err := l.FlushUpTo(last); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.segmentFile != nil {
		return l.segmentFile.Close()
	}
	return nil
}
