package sofs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempImage(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "image.sofs13")
}

// S1: an empty, freshly formatted volume matches the scenario's exact
// superblock and root-inode expectations.
func TestFormatEmptyVolume(t *testing.T) {
	path := tempImage(t)
	err := Format(path, 100*BlockSize, FormatOptions{Itotal: 56})
	require.NoError(t, err)

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	sb := fsys.Superblock()
	assert.EqualValues(t, 55, sb.Ifree)
	assert.EqualValues(t, 1, sb.Ihead)
	assert.EqualValues(t, 55, sb.Itail)
	assert.Equal(t, sb.DzoneTotal-1, sb.DzoneFree)

	root, err := fsys.readInode(0)
	require.NoError(t, err)
	assert.Equal(t, TypeDir, root.Type())
	assert.EqualValues(t, modeFullRWXll, root.Mode&modePermMask)
	assert.EqualValues(t, 2, root.Refcount)
	assert.EqualValues(t, BSLPC, root.Size)
	assert.EqualValues(t, 0, root.D[0])
	for _, d := range root.D[1:] {
		assert.Equal(t, NullCluster, d)
	}
	assert.Equal(t, NullCluster, root.I1)
	assert.Equal(t, NullCluster, root.I2)

	violations, err := Check(fsys)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestFormatRejectsUnalignedSize(t *testing.T) {
	path := tempImage(t)
	err := Format(path, 100*BlockSize+1, FormatOptions{})
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInvalid, serr.Kind)
}

func TestFormatRejectsTooSmallVolume(t *testing.T) {
	path := tempImage(t)
	err := Format(path, 2*BlockSize, FormatOptions{Itotal: 64})
	require.Error(t, err)
}

func TestFormatDefaultInodeCount(t *testing.T) {
	path := tempImage(t)
	require.NoError(t, Format(path, 4096*BlockSize, FormatOptions{}))

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	sb := fsys.Superblock()
	assert.True(t, sb.Itotal > 0)
	assert.EqualValues(t, 0, sb.Itotal%IPB)
}

func TestFormatDefaultVolumeName(t *testing.T) {
	path := tempImage(t)
	require.NoError(t, Format(path, 4096*BlockSize, FormatOptions{}))

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	assert.Equal(t, "SOFS13", fsys.Superblock().Name)
}

func TestFormatRejectsOverlongVolumeName(t *testing.T) {
	path := tempImage(t)
	name := make([]byte, MaxVolumeName+1)
	for i := range name {
		name[i] = 'a'
	}
	err := Format(path, 4096*BlockSize, FormatOptions{VolumeName: string(name)})
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNameTooLong, serr.Kind)
}

func TestDataZoneBytesMatchesFormattedVolume(t *testing.T) {
	path := tempImage(t)
	require.NoError(t, Format(path, 4096*BlockSize, FormatOptions{Itotal: 64}))

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()
	sb := fsys.Superblock()

	got, err := DataZoneBytes(4096*BlockSize, 64)
	require.NoError(t, err)
	assert.EqualValues(t, int64(sb.DzoneTotal)*ClusterSize, got)
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.sofs13"))
	assert.Error(t, err)
}

func TestOpenReadOnlyDoesNotLock(t *testing.T) {
	path := tempImage(t)
	require.NoError(t, Format(path, 200*BlockSize, FormatOptions{}))

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	// A second read-only open must not block on any lock the first one
	// took, since OpenReadOnly never takes the single-writer lock.
	ro2, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro2.Close()
}

func TestZeroFillOption(t *testing.T) {
	path := tempImage(t)
	require.NoError(t, Format(path, 300*BlockSize, FormatOptions{ZeroFill: true}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()
	sb := fsys.Superblock()

	start := int64(sb.DzoneStart) * BlockSize
	// cluster 0 belongs to the root directory and holds real entries;
	// everything after it should be zero.
	for _, b := range data[start+ClusterSize:] {
		require.Zero(t, b)
	}
}

// countingWriter records the total bytes ever passed to Write, the way
// an elog.Progress bar's Write method tracks bytes for a progress bar.
type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func TestZeroFillReportsProgress(t *testing.T) {
	path := tempImage(t)
	var cw countingWriter
	require.NoError(t, Format(path, 300*BlockSize, FormatOptions{
		ZeroFill:         true,
		ZeroFillProgress: &cw,
	}))

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()
	sb := fsys.Superblock()

	assert.EqualValues(t, int64(sb.DzoneTotal)*ClusterSize, cw.n)
}
