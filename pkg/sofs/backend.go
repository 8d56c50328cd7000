package sofs

import (
	"io"
	"os"

	"github.com/joelpinheiro/sofs13/pkg/vio"
)

// backend is the block/cluster I/O layer (§4.8): a single backing file
// addressed in BlockSize/ClusterSize units. Nothing above this layer ever
// touches the *os.File directly.
type backend struct {
	f      *os.File
	locked bool
}

func openBackend(path string, writable bool) (*backend, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, wrapErr("open", KindIO, err)
	}
	b := &backend{f: f}
	if writable {
		if err := lockFile(f); err != nil {
			f.Close()
			return nil, wrapErr("open", KindIO, err)
		}
		b.locked = true
	}
	return b, nil
}

func createBackend(path string, size int64) (*backend, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, wrapErr("create", KindIO, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, wrapErr("create", KindIO, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, wrapErr("create", KindIO, err)
	}
	return &backend{f: f, locked: true}, nil
}

func (b *backend) close() error {
	if b.locked {
		unlockFile(b.f)
	}
	return b.f.Close()
}

func (b *backend) readAt(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := b.f.ReadAt(buf, off)
	if err != nil || read != n {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, wrapErr("readAt", KindIO, err)
	}
	return buf, nil
}

func (b *backend) writeAt(off int64, data []byte) error {
	if _, err := b.f.WriteAt(data, off); err != nil {
		return wrapErr("writeAt", KindIO, err)
	}
	return nil
}

func (b *backend) readBlock(phys uint32) ([]byte, error) {
	return b.readAt(int64(phys)*BlockSize, BlockSize)
}

func (b *backend) writeBlock(phys uint32, data []byte) error {
	if len(data) != BlockSize {
		return newErr("writeBlock", KindInvalid)
	}
	return b.writeAt(int64(phys)*BlockSize, data)
}

func (b *backend) readCluster(phys uint32) ([]byte, error) {
	return b.readAt(int64(phys)*BlockSize, ClusterSize)
}

func (b *backend) writeCluster(phys uint32, data []byte) error {
	if len(data) != ClusterSize {
		return newErr("writeCluster", KindInvalid)
	}
	return b.writeAt(int64(phys)*BlockSize, data)
}

// zeroFill writes n zero bytes starting at byte offset off, using
// vio.Zeroes' doubling-buffer trick instead of allocating n bytes. When
// progress is non-nil it observes every chunk written, for a caller
// driving a byte-granular progress indicator over the operation.
func (b *backend) zeroFill(off, n int64, progress io.Writer) error {
	if _, err := b.f.Seek(off, io.SeekStart); err != nil {
		return wrapErr("zeroFill", KindIO, err)
	}
	dst := io.Writer(b.f)
	if progress != nil {
		dst = io.MultiWriter(b.f, progress)
	}
	if _, err := io.CopyN(dst, vio.Zeroes, n); err != nil {
		return wrapErr("zeroFill", KindIO, err)
	}
	return nil
}
