package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpochWriteAndReadLines(t *testing.T) {
	dir := t.TempDir()
	ep, err := OpenEpoch(dir, 1)
	require.NoError(t, err)

	require.NoError(t, ep.WriteLine("BEGIN 1"))
	require.NoError(t, ep.WriteLine("COMMIT 1"))
	require.NoError(t, ep.Release(false))

	lines, err := ReadLines(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"BEGIN 1", "COMMIT 1"}, lines)
}

func TestEpochFileNameIsHex16(t *testing.T) {
	assert.Equal(t, "0000000000000001.wal", epochFileName(1))
	assert.Equal(t, "00000000000000FF.wal", epochFileName(255))
}

func TestEpochReleaseCleanRemovesFile(t *testing.T) {
	dir := t.TempDir()
	ep, err := OpenEpoch(dir, 5)
	require.NoError(t, err)
	require.NoError(t, ep.WriteLine("BEGIN 1"))
	require.NoError(t, ep.Release(true))

	_, err = os.Stat(filepath.Join(dir, epochFileName(5)))
	assert.True(t, os.IsNotExist(err))
}

func TestEpochReleaseDirtyKeepsFile(t *testing.T) {
	dir := t.TempDir()
	ep, err := OpenEpoch(dir, 6)
	require.NoError(t, err)
	require.NoError(t, ep.WriteLine("BEGIN 1"))
	require.NoError(t, ep.Release(false))

	_, err = os.Stat(filepath.Join(dir, epochFileName(6)))
	assert.NoError(t, err)
}

func TestEpochRefCountKeepsFileOpenUntilLastRelease(t *testing.T) {
	dir := t.TempDir()
	ep, err := OpenEpoch(dir, 7)
	require.NoError(t, err)
	ep.Acquire()

	require.NoError(t, ep.Release(true))
	_, err = os.Stat(filepath.Join(dir, epochFileName(7)))
	assert.NoError(t, err, "file must survive while a second reference is outstanding")

	require.NoError(t, ep.Release(true))
	_, err = os.Stat(filepath.Join(dir, epochFileName(7)))
	assert.True(t, os.IsNotExist(err))
}

func TestReplayEarliestSortsAscending(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []uint64{3, 1, 2} {
		ep, err := OpenEpoch(dir, n)
		require.NoError(t, err)
		require.NoError(t, ep.Release(false))
	}
	numbers, err := ReplayEarliest(dir)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, numbers)
}

func TestRotatorSwapsOnlyAfterCommitAndIntervalElapsed(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(dir, time.Millisecond, 1)
	require.NoError(t, err)

	_, swapped, err := r.ObserveLine()
	require.NoError(t, err)
	assert.False(t, swapped, "no swap armed yet")

	time.Sleep(2 * time.Millisecond)
	r.ObserveCommit()

	swap, swapped, err := r.ObserveLine()
	require.NoError(t, err)
	require.True(t, swapped)
	assert.Equal(t, uint64(1), swap.Closed.Number)
	assert.Equal(t, uint64(2), swap.Opened.Number)
	assert.Equal(t, r.Current(), swap.Opened)
}

func TestRotatorDoesNotSwapBeforeIntervalElapsed(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRotator(dir, time.Hour, 1)
	require.NoError(t, err)

	r.ObserveCommit()
	_, swapped, err := r.ObserveLine()
	require.NoError(t, err)
	assert.False(t, swapped)
}
