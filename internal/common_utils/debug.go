// Package commonutils holds small, dependency-free helpers shared across
// pagevault's packages. It exists to keep debug tracing out of the hot
// path types themselves.
package commonutils

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
)

// GoID returns the id of the calling goroutine, parsed out of the first
// line of its own stack trace. It is only ever used for diagnostic
// logging; nothing in pagevault keys behavior off of it.
func GoID() int64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// TraceCaller formats a short "who called this" string for a latch
// acquisition, used by Frame.Lock/Unlock whenever the frame has a logger.
// skip follows runtime.Caller's convention: 0 is TraceCaller's own frame.
func TraceCaller(msg string, frameID int, skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return fmt.Sprintf("%s frame=%d goroutine=%d (unknown caller)", msg, frameID, GoID())
	}
	fn := runtime.FuncForPC(pc)
	name := "?"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s frame=%d goroutine=%d at %s:%d (%s)", msg, frameID, GoID(), filepath.Base(file), line, name)
}
