package bufferpool

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// hashPageID hashes a PageID for the extendible hash index. PageID's
// low bits are already well distributed by sequential allocation, so a
// cheap multiplicative mix is enough to avoid directory hot-spotting.
func hashPageID(id PageID) uint64 {
	x := uint64(uint32(id))
	x ^= x >> 16
	x *= 0x85ebca6b
	x ^= x >> 13
	x *= 0xc2b2ae35
	x ^= x >> 16
	return x
}

// Config bundles the tunables BufferPoolManager needs at construction,
// mirroring the option table in spec.md §6.
type Config struct {
	PoolSize   int
	K          int
	BucketSize int
}

// BufferPoolManager caches pages from a PageStore in a fixed pool of
// frames, evicting via LRU-K when the pool is full. Page ids are not
// allocated here: NewPage takes each fresh id from PageStore.AllocatePage.
// A single mutex guards the manager's own bookkeeping (free list, frame
// metadata) and serializes every composite operation across the frame arena, the
// hash index, and the replacer, per spec.md §5.
type BufferPoolManager struct {
	mu sync.Mutex

	store PageStore
	log   *zap.Logger
	wal   LogSink
	mtr   *Metrics

	frames   []*Frame
	freeList []FrameID
	table    *ExtendibleHashIndex[PageID, FrameID]
	replacer *LRUKReplacer

	nextPageID PageID
}

// New constructs a BufferPoolManager with cfg.PoolSize frames, backed by
// store. wal and mtr may be nil: a nil LogSink means no crash-consistency
// claim, and a nil Metrics means observations are simply dropped.
func New(cfg Config, store PageStore, wal LogSink, mtr *Metrics, log *zap.Logger) *BufferPoolManager {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if mtr == nil {
		mtr = NewNopMetrics()
	}

	bpm := &BufferPoolManager{
		store:    store,
		log:      log,
		wal:      wal,
		mtr:      mtr,
		frames:   make([]*Frame, cfg.PoolSize),
		freeList: make([]FrameID, 0, cfg.PoolSize),
		table:    NewExtendibleHashIndex[PageID, FrameID](cfg.BucketSize, hashPageID),
		replacer: NewLRUKReplacer(cfg.K),
	}
	for i := 0; i < cfg.PoolSize; i++ {
		bpm.frames[i] = newFrame(FrameID(i), log)
		bpm.freeList = append(bpm.freeList, FrameID(i))
	}
	bpm.table.OnSplit(mtr.Split)

	log.Info("buffer pool constructed",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("k", cfg.K),
		zap.Int("bucket_size", cfg.BucketSize),
	)
	return bpm
}

// acquireVictim implements the "frame acquisition" composite operation
// from spec.md §4.3: pop from the free list, or evict via the replacer;
// write back a dirty victim (force-log-before-data if a LogSink is
// configured) and drop its old EHI entry. Must be called with bpm.mu
// held.
func (bpm *BufferPoolManager) acquireVictim() (*Frame, error) {
	var f *Frame
	if n := len(bpm.freeList); n > 0 {
		id := bpm.freeList[n-1]
		bpm.freeList = bpm.freeList[:n-1]
		f = bpm.frames[id]
	} else {
		fid, ok := bpm.replacer.Evict()
		if !ok {
			bpm.mtr.PoolExhausted()
			bpm.log.Warn("pool exhausted, no evictable frame")
			return nil, ErrPoolExhausted
		}
		f = bpm.frames[fid]
	}

	if f.dirty {
		if bpm.wal != nil {
			if err := bpm.wal.FlushUpTo(f.lsn); err != nil {
				bpm.log.Error("log flush before eviction failed", zap.Int("frame_id", int(f.id)), zap.Error(err))
				return nil, fmt.Errorf("bufferpool: %w: %v", ErrIO, err)
			}
		}
		if err := bpm.store.WritePage(f.pageID, f.data); err != nil {
			bpm.log.Error("write-back on eviction failed", zap.Int32("page_id", int32(f.pageID)), zap.Error(err))
			// Leave the frame dirty and out of both the free list and the
			// replacer; the caller must not lose the only copy of its bytes.
			return nil, fmt.Errorf("bufferpool: %w: %v", ErrIO, err)
		}
		bpm.mtr.Eviction(true)
	} else if f.pageID != InvalidPageID {
		bpm.mtr.Eviction(false)
	}

	if f.pageID != InvalidPageID {
		bpm.table.Remove(f.pageID)
		bpm.replacer.Remove(f.id)
	}

	return f, nil
}

// NewPage allocates a fresh page, pins it into a frame, and returns a
// handle. On failure it returns a nil handle and ErrPoolExhausted, ErrIO,
// or the page table's ErrCapacityExceeded.
func (bpm *BufferPoolManager) NewPage() (*FrameHandle, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	f, err := bpm.acquireVictim()
	if err != nil {
		return nil, err
	}

	pid, err := bpm.store.AllocatePage()
	if err != nil {
		bpm.freeList = append(bpm.freeList, f.id)
		return nil, fmt.Errorf("bufferpool: %w: %v", ErrIO, err)
	}

	f.reset()
	f.pageID = pid
	f.pinCount = 1

	if err := bpm.table.Insert(pid, f.id); err != nil {
		bpm.freeList = append(bpm.freeList, f.id)
		return nil, err
	}
	bpm.replacer.RecordAccess(f.id)
	bpm.replacer.SetEvictable(f.id, false)

	bpm.log.Debug("new page", zap.Int32("page_id", int32(pid)), zap.Int("frame_id", int(f.id)))
	return &FrameHandle{frame: f, bpm: bpm}, nil
}

// FetchPage pins the frame holding pageID, loading it from the backing
// store if not already resident. Returns a nil handle and
// ErrPoolExhausted if the page is not resident and no frame is free or
// evictable.
func (bpm *BufferPoolManager) FetchPage(pageID PageID) (*FrameHandle, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if fid, ok := bpm.table.Find(pageID); ok {
		f := bpm.frames[fid]
		f.pinCount++
		bpm.replacer.RecordAccess(fid)
		bpm.replacer.SetEvictable(fid, false)
		bpm.mtr.Hit()
		bpm.log.Debug("fetch hit", zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", int(fid)))
		return &FrameHandle{frame: f, bpm: bpm}, nil
	}

	bpm.mtr.Miss()
	f, err := bpm.acquireVictim()
	if err != nil {
		return nil, err
	}

	if err := bpm.store.ReadPage(pageID, f.data); err != nil {
		bpm.freeList = append(bpm.freeList, f.id)
		bpm.log.Error("read failed on fetch", zap.Int32("page_id", int32(pageID)), zap.Error(err))
		return nil, fmt.Errorf("bufferpool: %w: %v", ErrIO, err)
	}

	f.pageID = pageID
	f.pinCount = 1
	f.dirty = false

	if err := bpm.table.Insert(pageID, f.id); err != nil {
		bpm.freeList = append(bpm.freeList, f.id)
		return nil, err
	}
	bpm.replacer.RecordAccess(f.id)
	bpm.replacer.SetEvictable(f.id, false)

	bpm.log.Debug("fetch miss, loaded", zap.Int32("page_id", int32(pageID)), zap.Int("frame_id", int(f.id)))
	return &FrameHandle{frame: f, bpm: bpm}, nil
}

// UnpinPage releases one pin on pageID. dirty is OR'd into the frame's
// dirty flag; it is never cleared by a clean unpin. Returns false if
// pageID is not resident or already fully unpinned.
func (bpm *BufferPoolManager) UnpinPage(pageID PageID, dirty bool) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.table.Find(pageID)
	if !ok {
		return false
	}
	f := bpm.frames[fid]
	if f.pinCount == 0 {
		return false
	}

	f.dirty = f.dirty || dirty
	f.pinCount--
	if f.pinCount == 0 {
		bpm.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes pageID's frame through to the backing store and
// clears its dirty flag, without unpinning it. Returns ok=false if
// pageID is not resident; err is non-nil only on an ok=true page's
// write-through failure.
func (bpm *BufferPoolManager) FlushPage(pageID PageID) (bool, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.table.Find(pageID)
	if !ok {
		return false, nil
	}
	f := bpm.frames[fid]
	if err := bpm.store.WritePage(f.pageID, f.data); err != nil {
		return true, fmt.Errorf("bufferpool: %w: %v", ErrIO, err)
	}
	f.dirty = false
	return true, nil
}

// FlushAll writes every resident dirty frame through to the backing
// store, serialized against all other BPM operations.
func (bpm *BufferPoolManager) FlushAll() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, f := range bpm.frames {
		if f.pageID == InvalidPageID || !f.dirty {
			continue
		}
		if err := bpm.store.WritePage(f.pageID, f.data); err != nil {
			return fmt.Errorf("bufferpool: %w: %v", ErrIO, err)
		}
		f.dirty = false
	}
	return nil
}

// DeletePage removes pageID from the pool and deallocates it in the
// backing store. Returns true if pageID was not resident (nothing to
// do) or was resident and unpinned; returns false if resident with a
// nonzero pin count.
func (bpm *BufferPoolManager) DeletePage(pageID PageID) bool {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	fid, ok := bpm.table.Find(pageID)
	if !ok {
		return true
	}
	f := bpm.frames[fid]
	if f.pinCount > 0 {
		return false
	}

	bpm.table.Remove(pageID)
	bpm.replacer.Remove(fid)
	f.reset()
	bpm.freeList = append(bpm.freeList, fid)

	if err := bpm.store.DeallocatePage(pageID); err != nil {
		bpm.log.Warn("deallocate failed", zap.Int32("page_id", int32(pageID)), zap.Error(err))
	}
	return true
}
