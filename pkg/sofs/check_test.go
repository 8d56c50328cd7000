package sofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCleanVolumeHasNoViolations(t *testing.T) {
	fsys := newTestVolume(t)
	require.NoError(t, fsys.Mkdir("/a", Root))
	_, err := fsys.Create("/a/f.txt", Root)
	require.NoError(t, err)
	_, err = fsys.WriteFile("/a/f.txt", 0, make([]byte, 2*BSLPC), Root)
	require.NoError(t, err)

	violations, err := Check(fsys)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestCheckCatchesBitmapMapMismatch(t *testing.T) {
	fsys := newTestVolume(t)

	// Cluster 0 belongs to the root directory; marking it free in the
	// bitmap while the ciu table and inode chain still claim it makes
	// it "owned" and "free" at once.
	require.NoError(t, fsys.bitmapSet(0, true))

	violations, err := Check(fsys)
	require.NoError(t, err)
	assert.NotEmpty(t, violations)
}

func TestCheckCatchesBrokenFreeInodeChain(t *testing.T) {
	fsys := newTestVolume(t)

	in, err := fsys.readInode(fsys.sb.Ihead)
	require.NoError(t, err)
	require.True(t, in.Free())
	in.VD1 = 999999 // corrupt the prev-link sentinel
	require.NoError(t, fsys.writeInode(fsys.sb.Ihead, in))

	violations, err := Check(fsys)
	require.NoError(t, err)
	assert.NotEmpty(t, violations)
}
