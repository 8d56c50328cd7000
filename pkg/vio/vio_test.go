package vio

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroesFillsBuffer(t *testing.T) {
	buf := make([]byte, 4096)
	n, err := Zeroes.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	for _, b := range buf {
		assert.Zero(t, b)
	}
}

func TestWriteSeekerOverPlainWriter(t *testing.T) {
	var out bytes.Buffer
	ws, err := WriteSeeker(&out)
	require.NoError(t, err)

	n, err := ws.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// SeekCurrent forward over a non-seekable writer pads with zeroes.
	pos, err := ws.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 5, pos)

	_, err = ws.Write([]byte("z"))
	require.NoError(t, err)

	assert.Equal(t, "abc", string(out.Bytes()[:3]))
	assert.Equal(t, byte('z'), out.Bytes()[5])
}

func TestWriteSeekerRejectsBackwardSeekOverPlainWriter(t *testing.T) {
	var out bytes.Buffer
	ws, err := WriteSeeker(&out)
	require.NoError(t, err)

	_, err = ws.Seek(-1, io.SeekCurrent)
	require.Error(t, err)
}

func TestLazyReadCloserDefersOpen(t *testing.T) {
	opened := false
	rc := LazyReadCloser(func() (io.Reader, error) {
		opened = true
		return bytes.NewReader([]byte("data")), nil
	}, func() error { return nil })

	assert.False(t, opened)

	buf := make([]byte, 4)
	n, err := rc.Read(buf)
	require.NoError(t, err)
	assert.True(t, opened)
	assert.Equal(t, "data", string(buf[:n]))

	require.NoError(t, rc.Close())
	_, err = rc.Read(buf)
	assert.Error(t, err)
}

func TestLazyReadCloserPropagatesOpenError(t *testing.T) {
	wantErr := errors.New("boom")
	rc := LazyReadCloser(func() (io.Reader, error) {
		return nil, wantErr
	}, func() error { return nil })

	_, err := rc.Read(make([]byte, 1))
	assert.Equal(t, wantErr, err)
}
