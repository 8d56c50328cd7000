package sofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A cluster freed by Truncate is only parked in the insert cache, not
// reflected back into the bitmap, until replenish() runs out of bitmap
// bits and deplete()s it. replenish() must resume scanning after that
// deplete instead of giving up immediately, or a volume with plenty of
// free space (per dzone_free) still fails allocations with KindNoSpace.
func TestReplenishResumesScanAfterDepleting(t *testing.T) {
	path := tempImage(t)
	require.NoError(t, Format(path, 20*BlockSize, FormatOptions{Itotal: 8}))

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	require.EqualValues(t, 4, fsys.Superblock().DzoneTotal)

	_, err = fsys.Create("/f.bin", Root)
	require.NoError(t, err)

	// Consume every free cluster via the retrieve cache.
	require.NoError(t, err)
	_, err = fsys.WriteFile("/f.bin", 0, make([]byte, 3*BSLPC), Root)
	require.NoError(t, err)
	require.EqualValues(t, 0, fsys.Superblock().DzoneFree)

	// Free them all; they land in the insert cache, not the bitmap.
	require.NoError(t, fsys.Truncate("/f.bin", 0, Root))
	require.EqualValues(t, 3, fsys.Superblock().DzoneFree)

	// A fresh allocation must force replenish() to deplete the insert
	// cache and then find those same clusters on the resumed scan.
	_, err = fsys.WriteFile("/f.bin", 0, []byte("x"), Root)
	require.NoError(t, err)

	violations, err := Check(fsys)
	require.NoError(t, err)
	assert.Empty(t, violations)
}
