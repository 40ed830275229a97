package bufferpool

import (
	"container/list"
	"sync"
)

// lruEntry tracks the access history of one evictable-candidate frame. The
// replacer keeps the most recent k access timestamps; once a frame has
// fewer than k recorded accesses it belongs to the youth cohort and is
// evicted FIFO by first access, otherwise it belongs to the mature cohort
// and is evicted by largest backward k-distance (smallest of its k-th
// most recent access timestamp).
type lruEntry struct {
	frame     FrameID
	history   []uint64 // most recent access last, capped at k
	evictable bool
	elem      *list.Element // this entry's node in its current cohort list, nil if unevictable
	inMature  bool          // which cohort list elem belongs to, when non-nil
}

func (e *lruEntry) kthFromBack() uint64 {
	if len(e.history) == 0 {
		return 0
	}
	return e.history[0]
}

func (e *lruEntry) lastAccess() uint64 {
	return e.history[len(e.history)-1]
}

// LRUKReplacer selects a frame to evict using the LRU-K policy described
// in spec.md §4.2: frames with fewer than k recorded accesses are always
// preferred for eviction over frames with k or more, and are evicted in
// first-accessed order; among frames with k or more accesses, the one
// with the largest backward k-distance (oldest k-th-most-recent access)
// is evicted.
type LRUKReplacer struct {
	mu sync.Mutex

	k       int
	clock   uint64
	entries map[FrameID]*lruEntry

	// youth holds entries with < k accesses, in first-access order (front
	// is oldest, evicted first).
	youth *list.List
	// mature holds entries with >= k accesses; kept sorted by kthFromBack
	// ascending, so the front is always the eviction victim.
	mature *list.List
}

// NewLRUKReplacer constructs a replacer that requires k historical
// accesses before a frame is considered mature.
func NewLRUKReplacer(k int) *LRUKReplacer {
	if k < 1 {
		k = 1
	}
	return &LRUKReplacer{
		k:       k,
		entries: make(map[FrameID]*lruEntry),
		youth:   list.New(),
		mature:  list.New(),
	}
}

// RecordAccess logs an access to frame at the replacer's current logical
// timestamp, advancing the clock. A frame not previously known to the
// replacer is created in the youth cohort, unevictable until SetEvictable
// is called.
func (r *LRUKReplacer) RecordAccess(frame FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clock++
	e, ok := r.entries[frame]
	if !ok {
		// New frames start unevictable and outside both cohort lists until
		// SetEvictable(frame, true) is called.
		e = &lruEntry{frame: frame}
		r.entries[frame] = e
	}

	e.history = append(e.history, r.clock)
	if len(e.history) > r.k {
		e.history = e.history[len(e.history)-r.k:]
	}

	if !e.evictable {
		return
	}

	r.resortAfterAccess(e)
}

// resortAfterAccess moves e between cohorts if its access count just
// crossed the k threshold, and keeps the mature cohort ordered by
// ascending backward k-distance. Must be called with r.mu held.
func (r *LRUKReplacer) resortAfterAccess(e *lruEntry) {
	matureNow := len(e.history) >= r.k

	if !matureNow {
		// Still in youth; access order within youth doesn't change on a
		// repeat access (FIFO by first access), so nothing moves.
		return
	}

	// Crossing from youth to mature, or already mature and re-accessed:
	// remove from its current list and reinsert into mature at the
	// correct sorted position.
	if e.elem != nil {
		r.removeFromCurrentList(e)
	}
	r.insertMatureSorted(e)
}

// removeFromCurrentList removes e's node from whichever cohort list it is
// linked into. container/list elements don't expose their list, so cohort
// membership is tracked explicitly by lruEntry.inMature, which selects the
// list to remove from.
func (r *LRUKReplacer) removeFromCurrentList(e *lruEntry) {
	if e.inMature {
		r.mature.Remove(e.elem)
	} else {
		r.youth.Remove(e.elem)
	}
	e.elem = nil
}

func (r *LRUKReplacer) insertMatureSorted(e *lruEntry) {
	dist := e.kthFromBack()
	for mark := r.mature.Front(); mark != nil; mark = mark.Next() {
		other := mark.Value.(*lruEntry)
		if dist < other.kthFromBack() {
			e.elem = r.mature.InsertBefore(e, mark)
			e.inMature = true
			return
		}
	}
	e.elem = r.mature.PushBack(e)
	e.inMature = true
}

// SetEvictable marks frame as evictable or pinned. A frame unknown to the
// replacer (never RecordAccess'd) is a no-op, per spec.md §9.
func (r *LRUKReplacer) SetEvictable(frame FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[frame]
	if !ok {
		return
	}
	if e.evictable == evictable {
		return
	}
	e.evictable = evictable

	if evictable {
		if len(e.history) >= r.k {
			r.insertMatureSorted(e)
		} else {
			// Keep youth ordered by first access (history[0] while < k).
			for mark := r.youth.Front(); mark != nil; mark = mark.Next() {
				if e.history[0] < mark.Value.(*lruEntry).history[0] {
					e.elem = r.youth.InsertBefore(e, mark)
					break
				}
			}
			if e.elem == nil {
				e.elem = r.youth.PushBack(e)
			}
			e.inMature = false
		}
		return
	}

	// Becoming unevictable: pull out of whichever cohort list holds it.
	if e.elem != nil {
		r.removeFromCurrentList(e)
	}
}

// Evict selects and removes the highest-priority eviction victim among
// currently evictable frames: the oldest youth-cohort entry if any exist,
// otherwise the mature-cohort entry with the largest backward k-distance.
// Its access history is discarded. Returns false if no frame is
// evictable.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var victim *lruEntry
	if front := r.youth.Front(); front != nil {
		victim = front.Value.(*lruEntry)
	} else if front := r.mature.Front(); front != nil {
		victim = front.Value.(*lruEntry)
	} else {
		return 0, false
	}

	r.removeFromCurrentList(victim)
	delete(r.entries, victim.frame)
	return victim.frame, true
}

// Remove drops all history for frame without evicting it, used when a
// frame's page has been explicitly deleted. A no-op if frame is unknown
// or currently unevictable (pinned): a pinned frame is never a valid
// eviction candidate, so its history is left intact.
func (r *LRUKReplacer) Remove(frame FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[frame]
	if !ok {
		return
	}
	if !e.evictable {
		return
	}
	if e.elem != nil {
		r.removeFromCurrentList(e)
	}
	delete(r.entries, frame)
}

// Size returns the number of frames currently marked evictable.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.youth.Len() + r.mature.Len()
}
