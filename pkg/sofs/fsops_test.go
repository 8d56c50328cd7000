package sofs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVolume(t *testing.T) *FileSystem {
	t.Helper()
	path := tempImage(t)
	require.NoError(t, Format(path, 4096*BlockSize, FormatOptions{}))
	fsys, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { fsys.Close() })
	return fsys
}

func TestMkdirAndReadDir(t *testing.T) {
	fsys := newTestVolume(t)

	require.NoError(t, fsys.Mkdir("/a", Root))
	require.NoError(t, fsys.Mkdir("/a/b", Root))

	names, err := fsys.ReadDir("/a", Root)
	require.NoError(t, err)
	assert.Contains(t, names, "b")
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")

	_, err = fsys.ReadDir("/missing", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNotFound, serr.Kind)
}

func TestMkdirDuplicateRejected(t *testing.T) {
	fsys := newTestVolume(t)
	require.NoError(t, fsys.Mkdir("/dup", Root))
	err := fsys.Mkdir("/dup", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindExists, serr.Kind)
}

func TestCreateWriteReadFile(t *testing.T) {
	fsys := newTestVolume(t)

	st, err := fsys.Create("/hello.txt", Root)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, st.Type)

	data := []byte("hello, sofs13")
	n, err := fsys.WriteFile("/hello.txt", 0, data, Root)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	buf := make([]byte, len(data))
	n, err = fsys.ReadFile("/hello.txt", 0, buf, Root)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestWriteFileAcrossIndirection(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/big.bin", Root)
	require.NoError(t, err)

	// NDirect clusters fit directly; one more pushes into the
	// single-indirect region.
	data := make([]byte, (NDirect+2)*BSLPC)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := fsys.WriteFile("/big.bin", 0, data, Root)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	buf := make([]byte, len(data))
	n, err = fsys.ReadFile("/big.bin", 0, buf, Root)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestTruncateShrinksAndFreesClusters(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/shrink.bin", Root)
	require.NoError(t, err)

	data := make([]byte, 3*BSLPC)
	_, err = fsys.WriteFile("/shrink.bin", 0, data, Root)
	require.NoError(t, err)

	before := fsys.Superblock().DzoneFree

	require.NoError(t, fsys.Truncate("/shrink.bin", BSLPC, Root))

	after := fsys.Superblock().DzoneFree
	assert.Greater(t, after, before)

	st, err := fsys.Lookup("/shrink.bin", Root)
	require.NoError(t, err)
	assert.EqualValues(t, BSLPC, st.Size)
}

func TestSymlinkResolution(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/target.txt", Root)
	require.NoError(t, err)
	_, err = fsys.WriteFile("/target.txt", 0, []byte("x"), Root)
	require.NoError(t, err)

	require.NoError(t, fsys.Symlink("/link", "target.txt", Root))

	st, err := fsys.Lookup("/link", Root)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, st.Type)

	target, err := fsys.Readlink("/link", Root)
	require.NoError(t, err)
	assert.Equal(t, "target.txt", target)
}

func TestSymlinkChainExceedsBudget(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/target.txt", Root)
	require.NoError(t, err)

	require.NoError(t, fsys.Symlink("/link1", "target.txt", Root))
	require.NoError(t, fsys.Symlink("/link2", "link1", Root))

	_, err = fsys.Lookup("/link2", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindLoop, serr.Kind)
}

func TestHardLink(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/orig.txt", Root)
	require.NoError(t, err)
	require.NoError(t, fsys.Link("/orig.txt", "/alias.txt", Root))

	st1, err := fsys.Lookup("/orig.txt", Root)
	require.NoError(t, err)
	st2, err := fsys.Lookup("/alias.txt", Root)
	require.NoError(t, err)
	assert.Equal(t, st1.NInode, st2.NInode)
	assert.EqualValues(t, 2, st2.Refcount)
}

func TestHardLinkRejectsDirectories(t *testing.T) {
	fsys := newTestVolume(t)
	require.NoError(t, fsys.Mkdir("/dir", Root))
	err := fsys.Link("/dir", "/dir2", Root)
	require.Error(t, err)
}

func TestRenameWithinSameDirectory(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/old.txt", Root)
	require.NoError(t, err)
	require.NoError(t, fsys.Rename("/old.txt", "/new.txt", Root))

	_, err = fsys.Lookup("/old.txt", Root)
	require.Error(t, err)
	_, err = fsys.Lookup("/new.txt", Root)
	require.NoError(t, err)
}

func TestRenameAcrossDirectoriesRejected(t *testing.T) {
	fsys := newTestVolume(t)
	require.NoError(t, fsys.Mkdir("/a", Root))
	require.NoError(t, fsys.Mkdir("/b", Root))
	_, err := fsys.Create("/a/f.txt", Root)
	require.NoError(t, err)

	err = fsys.Rename("/a/f.txt", "/b/f.txt", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInvalid, serr.Kind)
}

func TestRemoveFileAndEmptyDir(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/f.txt", Root)
	require.NoError(t, err)
	require.NoError(t, fsys.Remove("/f.txt", Root))
	_, err = fsys.Lookup("/f.txt", Root)
	require.Error(t, err)

	require.NoError(t, fsys.Mkdir("/empty", Root))
	require.NoError(t, fsys.Remove("/empty", Root))
}

func TestRemoveNonEmptyDirRejected(t *testing.T) {
	fsys := newTestVolume(t)
	require.NoError(t, fsys.Mkdir("/a", Root))
	_, err := fsys.Create("/a/f.txt", Root)
	require.NoError(t, err)

	err = fsys.Remove("/a", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNotEmpty, serr.Kind)
}

func TestPermissionDenied(t *testing.T) {
	fsys := newTestVolume(t)
	require.NoError(t, fsys.Mkdir("/locked", Root))

	st, err := fsys.Lookup("/locked", Root)
	require.NoError(t, err)

	in, err := fsys.readInode(st.NInode)
	require.NoError(t, err)
	in.Mode &^= modePermMask // strip all rwx bits
	require.NoError(t, fsys.writeInode(st.NInode, in))

	other := Process{UID: 1000, GID: 1000}
	_, err = fsys.ReadDir("/locked", other)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindAccess, serr.Kind)
}

// OpFree leaves a freed slot's chain reference in place, so the bulk
// walk in handleFileClusters would never terminate if it ever reached
// a slot with that op; the guard must reject it outright.
func TestHandleFileClustersRejectsOpFree(t *testing.T) {
	fsys := newTestVolume(t)
	st, err := fsys.Create("/f.bin", Root)
	require.NoError(t, err)

	err = fsys.handleFileClusters(st.NInode, 0, OpFree)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInvalid, serr.Kind)
}
