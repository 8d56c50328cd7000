package sofs

import (
	"github.com/google/uuid"
)

// Process carries the calling principal's identity for permission checks
// (§4.6); there is no notion of a session or login in the core itself.
type Process struct {
	UID uint32
	GID uint32
}

// Root is the Process identity that always passes R/W checks.
var Root = Process{UID: 0, GID: 0}

// FileSystem is an open SOFS13 image: the backend, the singleton cache
// slots, and the in-memory superblock mirror, all owned by this handle per
// the §9 design note (no package-level mutable state).
type FileSystem struct {
	b  *backend
	sb *Superblock
	c  cacheSlots

	// SessionID correlates this open session's log lines; it never
	// touches the disk image.
	SessionID string
}

// Open opens an existing SOFS13 backing file for read/write use.
func Open(path string) (*FileSystem, error) {
	return openWith(path, true)
}

// OpenReadOnly opens an existing backing file without taking the
// single-writer lock, for inspection tools such as sofsdump.
func OpenReadOnly(path string) (*FileSystem, error) {
	return openWith(path, false)
}

func openWith(path string, writable bool) (*FileSystem, error) {
	b, err := openBackend(path, writable)
	if err != nil {
		return nil, err
	}
	data, err := b.readBlock(0)
	if err != nil {
		b.close()
		return nil, err
	}
	sb, err := unmarshalSuperblock(data)
	if err != nil {
		b.close()
		return nil, wrapErr("open", KindInconsistent, err)
	}
	fs := &FileSystem{b: b, sb: sb, SessionID: uuid.NewString()}
	if writable {
		fs.sb.Mstat = mstatNPRU
		if err := fs.storeSuperblock(); err != nil {
			b.close()
			return nil, err
		}
	}
	return fs, nil
}

// Close marks the volume properly unmounted and releases the backing file.
func (fs *FileSystem) Close() error {
	if fs.b.locked {
		fs.sb.Mstat = mstatPRU
		if err := fs.storeSuperblock(); err != nil {
			fs.b.close()
			return err
		}
	}
	return fs.b.close()
}

// Superblock returns a copy of the current in-memory superblock, for
// inspection tools and tests.
func (fs *FileSystem) Superblock() Superblock { return *fs.sb }

func (fs *FileSystem) storeSuperblock() error {
	data, err := marshalSuperblock(fs.sb)
	if err != nil {
		return err
	}
	return fs.b.writeBlock(0, data)
}

// readInode loads an inode record through the inode-table block slot.
func (fs *FileSystem) readInode(n uint32) (*Inode, error) {
	blk, off, err := inodeAddr(fs.sb, n)
	if err != nil {
		return nil, err
	}
	phys := fs.sb.ItableStart + blk
	if err := fs.c.itableBlock.load(phys, fs.b.readBlock); err != nil {
		return nil, err
	}
	start := int(off) * inodeSize
	return unmarshalInode(fs.c.itableBlock.data[start : start+inodeSize])
}

// writeInode stores an inode record back through the inode-table block
// slot; it must already be the loaded block (readInode was just called
// for the same n, or the caller accepts the extra load).
func (fs *FileSystem) writeInode(n uint32, in *Inode) error {
	blk, off, err := inodeAddr(fs.sb, n)
	if err != nil {
		return err
	}
	phys := fs.sb.ItableStart + blk
	if err := fs.c.itableBlock.load(phys, fs.b.readBlock); err != nil {
		return err
	}
	start := int(off) * inodeSize
	copy(fs.c.itableBlock.data[start:start+inodeSize], marshalInode(in))
	return fs.c.itableBlock.store(fs.b.writeBlock)
}

// readCiu loads the owner-inode-number recorded for data cluster ref.
func (fs *FileSystem) readCiu(ref uint32) (uint32, error) {
	blk, slot, err := ciuAddr(fs.sb, ref)
	if err != nil {
		return 0, err
	}
	phys := fs.sb.CiutableStart + blk
	if err := fs.c.ciuBlock.load(phys, fs.b.readBlock); err != nil {
		return 0, err
	}
	start := int(slot) * 4
	return le32(fs.c.ciuBlock.data[start : start+4]), nil
}

// writeCiu records owner as the owning inode number of data cluster ref
// (or NullInode to disassociate it).
func (fs *FileSystem) writeCiu(ref uint32, owner uint32) error {
	blk, slot, err := ciuAddr(fs.sb, ref)
	if err != nil {
		return err
	}
	phys := fs.sb.CiutableStart + blk
	if err := fs.c.ciuBlock.load(phys, fs.b.readBlock); err != nil {
		return err
	}
	start := int(slot) * 4
	putLE32(fs.c.ciuBlock.data[start:start+4], owner)
	return fs.c.ciuBlock.store(fs.b.writeBlock)
}

// bitmapGet reports whether the free-cluster bitmap bit for ref is set.
func (fs *FileSystem) bitmapGet(ref uint32) (bool, error) {
	blk, byteOff, bitOff, err := bitmapAddr(fs.sb, ref)
	if err != nil {
		return false, err
	}
	phys := fs.sb.FctableStart + blk
	if err := fs.c.bitmapBlock.load(phys, fs.b.readBlock); err != nil {
		return false, err
	}
	return bitSet(fs.c.bitmapBlock.data[byteOff], bitOff), nil
}

// bitmapSet sets (or clears) the free-cluster bitmap bit for ref.
func (fs *FileSystem) bitmapSet(ref uint32, v bool) error {
	blk, byteOff, bitOff, err := bitmapAddr(fs.sb, ref)
	if err != nil {
		return err
	}
	phys := fs.sb.FctableStart + blk
	if err := fs.c.bitmapBlock.load(phys, fs.b.readBlock); err != nil {
		return err
	}
	fs.c.bitmapBlock.data[byteOff] = bitWith(fs.c.bitmapBlock.data[byteOff], bitOff, v)
	return fs.c.bitmapBlock.store(fs.b.writeBlock)
}

// readRefCluster loads a cluster of 32-bit cluster references (a
// single-indirect or direct-refs block) through the i1Cluster slot.
func (fs *FileSystem) readRefCluster(logical uint32) ([]uint32, error) {
	phys := clusterToPhys(fs.sb, logical)
	if err := fs.c.i1Cluster.load(phys, fs.b.readCluster); err != nil {
		return nil, err
	}
	return decodeRefs(fs.c.i1Cluster.data), nil
}

func (fs *FileSystem) writeRefCluster(logical uint32, refs []uint32) error {
	phys := clusterToPhys(fs.sb, logical)
	if err := fs.c.i1Cluster.load(phys, fs.b.readCluster); err != nil {
		return err
	}
	fs.c.i1Cluster.data = encodeRefs(refs)
	return fs.c.i1Cluster.store(fs.b.writeCluster)
}

// readDataCluster loads an arbitrary data cluster (directory content or
// raw file bytes) through the dirCluster slot.
func (fs *FileSystem) readDataCluster(logical uint32) ([]byte, error) {
	phys := clusterToPhys(fs.sb, logical)
	if err := fs.c.dirCluster.load(phys, fs.b.readCluster); err != nil {
		return nil, err
	}
	out := make([]byte, ClusterSize)
	copy(out, fs.c.dirCluster.data)
	return out, nil
}

func (fs *FileSystem) writeDataCluster(logical uint32, data []byte) error {
	if len(data) != ClusterSize {
		return newErr("writeDataCluster", KindInvalid)
	}
	phys := clusterToPhys(fs.sb, logical)
	if err := fs.c.dirCluster.load(phys, fs.b.readCluster); err != nil {
		return err
	}
	fs.c.dirCluster.data = append([]byte(nil), data...)
	return fs.c.dirCluster.store(fs.b.writeCluster)
}

func decodeRefs(data []byte) []uint32 {
	refs := make([]uint32, RPC)
	for i := range refs {
		refs[i] = le32(data[i*4 : i*4+4])
	}
	return refs
}

func encodeRefs(refs []uint32) []byte {
	data := make([]byte, ClusterSize)
	for i, r := range refs {
		putLE32(data[i*4:i*4+4], r)
	}
	return data
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
