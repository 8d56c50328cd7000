package sofs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupRejectsRelativePath(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Lookup("relative/path", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindRelativePath, serr.Kind)
}

func TestLookupRejectsOverlongPath(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Lookup("/"+strings.Repeat("a", MaxPath+1), Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNameTooLong, serr.Kind)
}

func TestMkdirRejectsOverlongComponent(t *testing.T) {
	fsys := newTestVolume(t)
	err := fsys.Mkdir("/"+strings.Repeat("b", MaxName+1), Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNameTooLong, serr.Kind)
}

func TestLookupRoot(t *testing.T) {
	fsys := newTestVolume(t)
	st, err := fsys.Lookup("/", Root)
	require.NoError(t, err)
	assert.EqualValues(t, 0, st.NInode)
	assert.Equal(t, TypeDir, st.Type)
}

func TestSymlinkRelativeTargetResolvesFromParent(t *testing.T) {
	fsys := newTestVolume(t)
	require.NoError(t, fsys.Mkdir("/dir", Root))
	_, err := fsys.Create("/dir/file.txt", Root)
	require.NoError(t, err)
	require.NoError(t, fsys.Symlink("/dir/rel-link", "file.txt", Root))

	st, err := fsys.Lookup("/dir/rel-link", Root)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, st.Type)
}

func TestLookupThroughMissingIntermediateDirectory(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Lookup("/nope/child", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNotFound, serr.Kind)
}

func TestLookupThroughNonDirectoryComponent(t *testing.T) {
	fsys := newTestVolume(t)
	_, err := fsys.Create("/notdir", Root)
	require.NoError(t, err)
	_, err = fsys.Lookup("/notdir/child", Root)
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindNotDir, serr.Kind)
}
