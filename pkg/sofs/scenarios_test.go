package sofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S2: exhausting the data zone returns KindNoSpace, and freeing
// everything back returns the volume to its as-formatted state.
func TestAllocFreeClusterRoundTrip(t *testing.T) {
	path := tempImage(t)
	require.NoError(t, Format(path, 20*BlockSize, FormatOptions{Itotal: 8}))

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	sb := fsys.Superblock()
	require.EqualValues(t, 4, sb.DzoneTotal)
	require.EqualValues(t, 3, sb.DzoneFree) // cluster 0 already belongs to root

	_, err = fsys.Create("/f.bin", Root)
	require.NoError(t, err)

	// Exactly dzone_free clusters are available; this write should
	// succeed and consume every remaining free cluster.
	data := make([]byte, 3*BSLPC)
	n, err := fsys.WriteFile("/f.bin", 0, data, Root)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.EqualValues(t, 0, fsys.Superblock().DzoneFree)

	// A further allocation now has nowhere to go.
	_, err = fsys.WriteFile("/f.bin", int64(len(data)), []byte("x"), Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNoSpace, serr.Kind)

	require.NoError(t, fsys.Truncate("/f.bin", 0, Root))

	sb = fsys.Superblock()
	assert.EqualValues(t, sb.DzoneTotal-1, sb.DzoneFree)
	// Every cluster allocated above was consumed from the retrieve
	// cache with nothing left over, so it reads empty again even
	// though freeing parked the clusters in the insert cache instead
	// of touching the bitmap directly.
	assert.EqualValues(t, DzoneCacheSize, sb.DzoneRetrievIdx)

	owner, err := fsys.readCiu(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, owner)
	for ref := uint32(1); ref < sb.DzoneTotal; ref++ {
		owner, err := fsys.readCiu(ref)
		require.NoError(t, err)
		assert.Equal(t, NullInode, owner)
	}

	violations, err := Check(fsys)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

// S3: a write that spans direct, single-indirect, and double-indirect
// regions allocates the expected indirection clusters and clucount.
func TestIndirectGrowth(t *testing.T) {
	path := tempImage(t)
	// Large enough that dzone_total comfortably exceeds NDirect+RPC,
	// so a write at that cluster index lands in the double-indirect
	// region instead of running out of space.
	require.NoError(t, Format(path, 8192*BlockSize, FormatOptions{}))

	fsys, err := Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	st, err := fsys.Create("/big.bin", Root)
	require.NoError(t, err)

	// Touch cluster index NDirect+RPC (through i2 and one second-level
	// single-indirect cluster), then 0 (direct), then NDirect (through i1).
	off := int64(NDirect+RPC) * BSLPC
	_, err = fsys.WriteFile("/big.bin", off, []byte("x"), Root)
	require.NoError(t, err)
	_, err = fsys.WriteFile("/big.bin", 0, []byte("x"), Root)
	require.NoError(t, err)
	_, err = fsys.WriteFile("/big.bin", int64(NDirect)*BSLPC, []byte("x"), Root)
	require.NoError(t, err)

	in, err := fsys.readInode(st.NInode)
	require.NoError(t, err)
	assert.NotEqual(t, NullCluster, in.I1)
	assert.NotEqual(t, NullCluster, in.I2)
	// 3 data clusters + i1 + i2 + one sub-single-indirect cluster under i2.
	assert.EqualValues(t, 6, in.Clucount)

	owner, err := fsys.readCiu(in.D[0])
	require.NoError(t, err)
	assert.Equal(t, st.NInode, owner)
}
