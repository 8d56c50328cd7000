// Package sofs implements the SOFS13 block-oriented file system: a single
// backing file holding a superblock, an inode table with its free list, a
// cluster-to-inode reverse map, a free-cluster bitmap with two bounded
// caches, and direct/single-indirect/double-indirect file-cluster indexing.
package sofs

const (
	// BlockSize is the smallest addressable unit of the backing file.
	BlockSize = 512
	// BlocksPerCluster is the number of contiguous blocks in one cluster.
	BlocksPerCluster = 4
	// ClusterSize is the size in bytes of one data cluster.
	ClusterSize = BlockSize * BlocksPerCluster

	// inodeSize is the on-disk size of one inode record.
	inodeSize = 64
	// IPB is the number of inodes per block.
	IPB = BlockSize / inodeSize

	// RPB is the number of 32-bit cluster references per block.
	RPB = BlockSize / 4
	// RPC is the number of 32-bit cluster references per cluster.
	RPC = RPB * BlocksPerCluster

	// direntSize is the on-disk size of one directory entry.
	direntSize = 64
	// MaxName is the maximum byte length of a path component.
	MaxName = direntSize - 4 - 1
	// DPC is the number of directory entries per cluster.
	DPC = ClusterSize / direntSize

	// BSLPC is the byte-stream length of one cluster.
	BSLPC = ClusterSize

	// NDirect is the number of direct cluster references held in an inode.
	NDirect = 6

	// MaxPath is the maximum byte length of an absolute path.
	MaxPath = 1024

	// MaxFileClusters is the number of logical cluster indices a file can
	// address (0 through MaxFileClusters-1).
	MaxFileClusters = NDirect + RPC + RPC*RPC
	// MaxFileSize is the largest size in bytes a file can reach; the
	// largest valid byte offset is MaxFileSize-1.
	MaxFileSize = int64(MaxFileClusters) * BSLPC

	// NullInode marks the absence of an inode reference.
	NullInode uint32 = 0xFFFFFFFF
	// NullCluster marks the absence of a cluster reference.
	NullCluster uint32 = 0xFFFFFFFF

	// DzoneCacheSize is the capacity of each free-cluster FIFO cache.
	DzoneCacheSize = 50

	// Magic identifies a SOFS13 backing file.
	Magic uint32 = 0x65FE
	// Version identifies the on-disk format revision.
	Version uint32 = 0x2013

	// MaxVolumeName is the maximum length of a volume name, excluding the
	// terminating null byte.
	MaxVolumeName = 23

	reservedFillByte    = 0xEE
	ciuUnusedFillWord   = 0xFFFFFFFE
	defaultInodeDivisor = 8
)

// mode bit layout for an on-disk inode.
const (
	modePermMask = 0x01FF // 9 low bits: rwx for user/group/other.

	modeOtherX = 0x001
	modeOtherW = 0x002
	modeOtherR = 0x004
	modeGroupX = 0x008
	modeGroupW = 0x010
	modeGroupR = 0x020
	modeUserX  = 0x040
	modeUserW  = 0x080
	modeUserR  = 0x100

	modeTypeMask  = 0xE000
	modeTypeFile  = 0x8000
	modeTypeDir   = 0x4000
	modeTypeSymC  = 0x2000 // symbolic link
	modeFreeFlag  = 0x1000
	modeFullRWXll = modeUserR | modeUserW | modeUserX | modeGroupR | modeGroupW | modeGroupX | modeOtherR | modeOtherW | modeOtherX
)

// InodeType identifies the kind of file an inode describes.
type InodeType int

const (
	// TypeFile is a regular file.
	TypeFile InodeType = iota
	// TypeDir is a directory.
	TypeDir
	// TypeSymlink is a symbolic link.
	TypeSymlink
)

func (t InodeType) modeBit() uint16 {
	switch t {
	case TypeDir:
		return modeTypeDir
	case TypeSymlink:
		return modeTypeSymC
	default:
		return modeTypeFile
	}
}

// Perm is a subset of {Read, Write, Exec} requested by accessGranted.
type Perm uint8

const (
	// Read requests read access.
	Read Perm = 4
	// Write requests write access.
	Write Perm = 2
	// Exec requests execute/search access.
	Exec Perm = 1
)

// FileClusterOp selects the behavior of handleFileCluster and
// handleFileClusters.
type FileClusterOp int

const (
	// OpGet reads a chain slot without mutating it.
	OpGet FileClusterOp = iota
	// OpAlloc allocates a data cluster into an empty chain slot.
	OpAlloc
	// OpFree frees the cluster referenced by a chain slot, keeping the
	// reference (dirty).
	OpFree
	// OpFreeClean frees the cluster and clears the chain slot, collapsing
	// emptied indirection clusters.
	OpFreeClean
	// OpClean clears the chain slot and unmaps the cluster without
	// freeing it (the cluster was already freed).
	OpClean
)

// DirOp selects between the two flavors of addAttachDirEntry.
type DirOp int

const (
	// OpAdd adds an entry for a new child inode, or for an existing
	// non-directory inode when making a hard link.
	OpAdd DirOp = iota
	// OpAttach re-parents an existing directory inode.
	OpAttach
)

// RemOp selects between the two flavors of remDetachDirEntry.
type RemOp int

const (
	// OpRem marks an entry dirty-empty, retaining forensic recovery.
	OpRem RemOp = iota
	// OpDetach clears an entry to the clean-empty state outright.
	OpDetach
)
