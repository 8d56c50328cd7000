package mountfs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelpinheiro/sofs13/pkg/sofs"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.sofs13")
	require.NoError(t, sofs.Format(path, 4096*sofs.BlockSize, sofs.FormatOptions{}))
	fsys, err := sofs.Open(path)
	require.NoError(t, err)
	a := New(fsys)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAdapterRoundTrip(t *testing.T) {
	a := newTestAdapter(t)

	require.NoError(t, a.Mkdir("/docs", sofs.Root))
	_, err := a.Create("/docs/readme.txt", sofs.Root)
	require.NoError(t, err)

	n, err := a.Write("/docs/readme.txt", 0, []byte("hi"), sofs.Root)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	buf := make([]byte, 2)
	n, err = a.Read("/docs/readme.txt", 0, buf, sofs.Root)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	names, err := a.Readdir("/docs", sofs.Root)
	require.NoError(t, err)
	assert.Contains(t, names, "readme.txt")

	st, err := a.Getattr("/docs/readme.txt", sofs.Root)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Size)

	violations, err := a.Check()
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestAdapterSymlinkAndRename(t *testing.T) {
	a := newTestAdapter(t)

	_, err := a.Create("/a.txt", sofs.Root)
	require.NoError(t, err)
	require.NoError(t, a.Symlink("/link", "a.txt", sofs.Root))

	target, err := a.Readlink("/link", sofs.Root)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)

	require.NoError(t, a.Rename("/a.txt", "/b.txt", sofs.Root))
	_, err = a.Lookup("/a.txt", sofs.Root)
	assert.Error(t, err)

	require.NoError(t, a.Remove("/link", sofs.Root))
}
