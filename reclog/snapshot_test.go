package reclog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	for _, scheme := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(scheme.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cache.emc")

			l, err := Open(nil, path, 2)
			require.NoError(t, err)

			entries := []IndexEntry{
				{Hash: 0xdeadbeef, Offset: HeaderSize},
				{Hash: 42, Offset: HeaderSize + 100},
				{Hash: 7, Offset: HeaderSize + 200},
			}
			require.NoError(t, l.WriteSnapshot(entries, scheme))
			require.NoError(t, l.Close())

			l, err = Open(nil, path, 2)
			require.NoError(t, err)
			defer l.Close()

			require.True(t, l.HasSnapshot())
			got, err := l.LoadSnapshot()
			require.NoError(t, err)
			assert.Equal(t, entries, got)
		})
	}
}

func TestSnapshotAbsent(t *testing.T) {
	l := openTemp(t, 2)

	assert.False(t, l.HasSnapshot())
	_, err := l.LoadSnapshot()
	var se *SnapshotError
	require.ErrorAs(t, err, &se)
}

func TestMarkDirtyDropsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.emc")

	l, err := Open(nil, path, 2)
	require.NoError(t, err)
	_, err = l.Append([]byte("k"), []float32{1, 2})
	require.NoError(t, err)
	dataEnd := l.DataEnd()
	require.NoError(t, l.WriteSnapshot([]IndexEntry{{Hash: 1, Offset: HeaderSize}}, CompressionNone))
	require.NoError(t, l.Close())

	l, err = Open(nil, path, 2)
	require.NoError(t, err)
	require.True(t, l.HasSnapshot())
	require.NoError(t, l.MarkDirty())
	assert.False(t, l.HasSnapshot())
	require.NoError(t, l.Close())

	// After MarkDirty the file carries no snapshot and the records are
	// the whole region, as after a crash.
	l, err = Open(nil, path, 2)
	require.NoError(t, err)
	defer l.Close()
	assert.False(t, l.HasSnapshot())
	assert.Equal(t, dataEnd, l.DataEnd())
}

func TestSnapshotChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.emc")

	l, err := Open(nil, path, 2)
	require.NoError(t, err)
	_, err = l.Append([]byte("k"), []float32{1, 2})
	require.NoError(t, err)
	require.NoError(t, l.WriteSnapshot([]IndexEntry{{Hash: 1, Offset: HeaderSize}}, CompressionNone))
	snapOff := l.DataEnd()
	require.NoError(t, l.Close())

	// Flip a payload byte inside the snapshot section.
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, snapOff+snapshotHeaderSize)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l, err = Open(nil, path, 2)
	require.NoError(t, err)
	defer l.Close()

	_, err = l.LoadSnapshot()
	var se *SnapshotError
	require.ErrorAs(t, err, &se)
}

func TestSnapshotSurvivesReopenWithRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.emc")

	l, err := Open(nil, path, 3)
	require.NoError(t, err)
	off1, err := l.Append([]byte("a"), []float32{1, 0, 0})
	require.NoError(t, err)
	off2, err := l.Append([]byte("b"), []float32{0, 1, 0})
	require.NoError(t, err)
	require.NoError(t, l.WriteSnapshot([]IndexEntry{
		{Hash: 11, Offset: off1},
		{Hash: 22, Offset: off2},
	}, CompressionZstd))
	require.NoError(t, l.Close())

	l, err = Open(nil, path, 3)
	require.NoError(t, err)
	defer l.Close()

	// The record region excludes the snapshot section.
	assert.Equal(t, off2, l.DataEnd()-17) // 4 + 1 + 3*4

	entries, err := l.LoadSnapshot()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Records are still readable through the snapshot-bearing file.
	key, vec, err := l.ReadAt(off1)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), key)
	assert.Equal(t, []float32{1, 0, 0}, vec)
}
