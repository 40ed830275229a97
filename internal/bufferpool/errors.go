package bufferpool

import "errors"

// --- Error definitions ---
//
// NotFound conditions (fetch/unpin/flush/delete against a non-resident
// page) are represented as plain `false`/absent-handle returns per
// spec.md §7 and are not sentinel errors.
var (
	// ErrPoolExhausted is returned by NewPage/FetchPage when no frame is
	// free and no resident frame is evictable.
	ErrPoolExhausted = errors.New("bufferpool: pool exhausted, no evictable frame")

	// ErrIO wraps a PageStore read/write/allocate failure or a LogSink
	// flush failure; a deallocate failure is only logged. The BPM
	// leaves its structures consistent when this is returned: a failed
	// read on fetch returns the frame to the free list, and a failed
	// dirty write during acquisition leaves the frame dirty and refuses
	// to overwrite it.
	ErrIO = errors.New("bufferpool: page store i/o error")

	// ErrCapacityExceeded is raised by the extendible hash index when its
	// split-retry ceiling is hit without resolving a full bucket, which
	// only happens under adversarial hash collisions on the low-order
	// bits.
	ErrCapacityExceeded = errors.New("bufferpool: hash index capacity exceeded")

	// ErrChecksumMismatch is raised by a PageStore implementation that
	// persists per-page checksums (see internal/diskstore) when a page's
	// on-disk checksum does not match its contents.
	ErrChecksumMismatch = errors.New("bufferpool: page checksum mismatch, data corruption suspected")
)
