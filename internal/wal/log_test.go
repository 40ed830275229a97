package wal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagevaultdb/pagevault/internal/bufferpool"
)

func TestLog_AppendFlush(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	lsn, err := l.Append(bufferpool.PageID(1), []byte("record-body"))
	require.NoError(t, err)
	require.Equal(t, bufferpool.LSN(1), lsn)

	require.NoError(t, l.FlushUpTo(lsn))
}

func TestLog_FlushUpToIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, nil)
	require.NoError(t, err)
	defer l.Close()

	lsn, err := l.Append(bufferpool.PageID(1), []byte("x"))
	require.NoError(t, err)
	require.NoError(t, l.FlushUpTo(lsn))
	require.NoError(t, l.FlushUpTo(lsn))
	require.NoError(t, l.FlushUpTo(bufferpool.LSN(0)))
}

func TestLog_TwoInstancesSameDirDoNotCollide(t *testing.T) {
	dir := t.TempDir()

	l1, err := Open(dir, nil)
	require.NoError(t, err)
	defer l1.Close()

	l2, err := Open(dir, nil)
	require.NoError(t, err)
	defer l2.Close()

	_, err = l1.Append(bufferpool.PageID(1), []byte("a"))
	require.NoError(t, err)
	_, err = l2.Append(bufferpool.PageID(2), []byte("b"))
	require.NoError(t, err)

	require.NoError(t, l1.FlushUpTo(bufferpool.LSN(1)))
	require.NoError(t, l2.FlushUpTo(bufferpool.LSN(1)))

	matches, err := filepath.Glob(filepath.Join(dir, "log_*.wal"))
	require.NoError(t, err)
	require.Len(t, matches, 2)
}
