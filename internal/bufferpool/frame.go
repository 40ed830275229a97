package bufferpool

import (
	"sync"

	commonutils "github.com/pagevaultdb/pagevault/internal/common_utils"
	"go.uber.org/zap"
)

// Frame is a fixed-size in-memory slot that can hold one page. Frames are
// allocated once, in an arena, when the buffer pool is constructed, and
// live for its whole lifetime; only their contents change. EHI and LKR
// never hold a pointer to a Frame — only its FrameID — so there is no
// ownership cycle between the arena, the hash index, and the replacer.
type Frame struct {
	id       FrameID
	pageID   PageID
	pinCount int32
	dirty    bool
	lsn      LSN
	data     []byte

	// latch guards concurrent reads/writes to data by callers holding a
	// pin on this frame. It is independent of the BufferPoolManager's own
	// mutex, which guards frame bookkeeping (page id, pin count, dirty),
	// not frame contents.
	latch sync.RWMutex

	log *zap.Logger
}

func newFrame(id FrameID, log *zap.Logger) *Frame {
	return &Frame{
		id:     id,
		pageID: InvalidPageID,
		data:   make([]byte, PageSize),
		log:    log,
	}
}

// reset clears a frame back to its just-constructed state. Called only
// while the BPM's mutex is held, before the frame is reused for a new
// page or returned to the free list.
func (f *Frame) reset() {
	f.pageID = InvalidPageID
	f.pinCount = 0
	f.dirty = false
	f.lsn = 0
	for i := range f.data {
		f.data[i] = 0
	}
}

// ID returns this frame's stable index into the pool's arena.
func (f *Frame) ID() FrameID { return f.id }

// PageID returns the page currently resident in this frame, or
// InvalidPageID if the frame is free.
func (f *Frame) PageID() PageID { return f.pageID }

// PinCount returns the frame's current pin count.
func (f *Frame) PinCount() int32 { return f.pinCount }

// IsDirty reports whether the frame's bytes differ from the backing
// store.
func (f *Frame) IsDirty() bool { return f.dirty }

// LSN returns the log sequence number of the last log record known to
// cover this frame's contents, used to force-log-before-data on eviction.
func (f *Frame) LSN() LSN { return f.lsn }

// Data returns the frame's byte buffer directly. Callers must hold the
// pin obtained from Fetch/New and should acquire the frame's RLock/Lock
// for concurrent access across goroutines sharing the pin.
func (f *Frame) Data() []byte { return f.data }

// RLock acquires a read latch on the frame's bytes.
func (f *Frame) RLock() { f.latch.RLock() }

// RUnlock releases a read latch on the frame's bytes.
func (f *Frame) RUnlock() { f.latch.RUnlock() }

// Lock acquires a write latch on the frame's bytes.
func (f *Frame) Lock() {
	if f.log != nil {
		f.log.Debug(commonutils.TraceCaller("frame latch acquire", int(f.id), 2))
	}
	f.latch.Lock()
}

// Unlock releases a write latch on the frame's bytes.
func (f *Frame) Unlock() {
	if f.log != nil {
		f.log.Debug(commonutils.TraceCaller("frame latch release", int(f.id), 2))
	}
	f.latch.Unlock()
}

// FrameHandle is a scoped view onto a pinned Frame, returned by NewPage
// and FetchPage. Callers must release the pin exactly once via the
// BufferPoolManager's UnpinPage; Release is a convenience wrapper for
// callers that prefer a guard-style API.
type FrameHandle struct {
	frame *Frame
	bpm   *BufferPoolManager
	// dirty tracks whether MarkDirty has been called on this handle; it is
	// OR'd into the frame's dirty flag on Release.
	dirty bool
}

// PageID returns the id of the page this handle refers to.
func (h *FrameHandle) PageID() PageID { return h.frame.pageID }

// Data exposes the page's bytes for reading and writing while pinned.
func (h *FrameHandle) Data() []byte { return h.frame.data }

// MarkDirty records that the caller has mutated the page's bytes. The
// dirty bit is OR'd into the frame on Release, never cleared by a later
// clean release. A direct UnpinPage call does not see this handle's bit.
func (h *FrameHandle) MarkDirty() { h.dirty = true }

// SetLSN records the log sequence number of the WAL record covering this
// handle's pending write, so that a configured LogSink is flushed up to
// at least that point before the frame's bytes are ever written back on
// eviction. Callers that don't use a LogSink never need to call this;
// the frame's LSN then stays at its zero value and FlushUpTo is a no-op.
func (h *FrameHandle) SetLSN(lsn LSN) {
	h.frame.lsn = lsn
}

// Release unpins the handle's frame, propagating any MarkDirty call made
// on it. It is safe to call at most once per handle.
func (h *FrameHandle) Release() bool {
	return h.bpm.UnpinPage(h.frame.pageID, h.dirty)
}
