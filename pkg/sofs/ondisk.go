package sofs

import (
	"bytes"
	"encoding/binary"
)

// mstat values for the superblock header.
const (
	mstatNPRU uint32 = 0 // not properly unmounted
	mstatPRU  uint32 = 1 // properly unmounted
)

// dzoneCache is the on-disk shape of dzone_retriev / dzone_insert: a head
// index followed by a fixed-size ring of cluster references.
type dzoneCache struct {
	Idx   uint32
	Cache [DzoneCacheSize]uint32
}

// rawSuperblock is the exact binary layout of block 0, minus the trailing
// reserved padding which is handled separately at marshal time.
type rawSuperblock struct {
	Magic   uint32
	Version uint32
	Name    [MaxVolumeName + 1]byte

	Ntotal uint32
	Mstat  uint32

	ItableStart uint32
	ItableSize  uint32
	Itotal      uint32
	Ifree       uint32
	Ihead       uint32
	Itail       uint32

	CiutableStart uint32
	CiutableSize  uint32

	DzoneRetriev dzoneCache
	DzoneInsert  dzoneCache

	FctableStart uint32
	FctableSize  uint32
	FctablePos   uint32
	DzoneStart   uint32
	DzoneTotal   uint32
	DzoneFree    uint32
}

// Superblock is the in-memory, easier-to-manipulate mirror of rawSuperblock.
type Superblock struct {
	Name string

	Ntotal uint32
	Mstat  uint32

	ItableStart uint32
	ItableSize  uint32
	Itotal      uint32
	Ifree       uint32
	Ihead       uint32
	Itail       uint32

	CiutableStart uint32
	CiutableSize  uint32

	DzoneRetrievIdx   uint32
	DzoneRetrievCache [DzoneCacheSize]uint32
	DzoneInsertIdx    uint32
	DzoneInsertCache  [DzoneCacheSize]uint32

	FctableStart uint32
	FctableSize  uint32
	FctablePos   uint32
	DzoneStart   uint32
	DzoneTotal   uint32
	DzoneFree    uint32
}

func (sb *Superblock) toRaw() rawSuperblock {
	var raw rawSuperblock
	raw.Magic = Magic
	raw.Version = Version
	copy(raw.Name[:], sb.Name)
	raw.Ntotal = sb.Ntotal
	raw.Mstat = sb.Mstat
	raw.ItableStart = sb.ItableStart
	raw.ItableSize = sb.ItableSize
	raw.Itotal = sb.Itotal
	raw.Ifree = sb.Ifree
	raw.Ihead = sb.Ihead
	raw.Itail = sb.Itail
	raw.CiutableStart = sb.CiutableStart
	raw.CiutableSize = sb.CiutableSize
	raw.DzoneRetriev = dzoneCache{Idx: sb.DzoneRetrievIdx, Cache: sb.DzoneRetrievCache}
	raw.DzoneInsert = dzoneCache{Idx: sb.DzoneInsertIdx, Cache: sb.DzoneInsertCache}
	raw.FctableStart = sb.FctableStart
	raw.FctableSize = sb.FctableSize
	raw.FctablePos = sb.FctablePos
	raw.DzoneStart = sb.DzoneStart
	raw.DzoneTotal = sb.DzoneTotal
	raw.DzoneFree = sb.DzoneFree
	return raw
}

func (sb *Superblock) fromRaw(raw rawSuperblock) {
	sb.Name = cstr(raw.Name[:])
	sb.Ntotal = raw.Ntotal
	sb.Mstat = raw.Mstat
	sb.ItableStart = raw.ItableStart
	sb.ItableSize = raw.ItableSize
	sb.Itotal = raw.Itotal
	sb.Ifree = raw.Ifree
	sb.Ihead = raw.Ihead
	sb.Itail = raw.Itail
	sb.CiutableStart = raw.CiutableStart
	sb.CiutableSize = raw.CiutableSize
	sb.DzoneRetrievIdx = raw.DzoneRetriev.Idx
	sb.DzoneRetrievCache = raw.DzoneRetriev.Cache
	sb.DzoneInsertIdx = raw.DzoneInsert.Idx
	sb.DzoneInsertCache = raw.DzoneInsert.Cache
	sb.FctableStart = raw.FctableStart
	sb.FctableSize = raw.FctableSize
	sb.FctablePos = raw.FctablePos
	sb.DzoneStart = raw.DzoneStart
	sb.DzoneTotal = raw.DzoneTotal
	sb.DzoneFree = raw.DzoneFree
}

// marshalSuperblock renders sb into exactly BlockSize bytes, reserved
// trailer filled with reservedFillByte the way the formatter requires.
func marshalSuperblock(sb *Superblock) ([]byte, error) {
	buf := new(bytes.Buffer)
	raw := sb.toRaw()
	if err := binary.Write(buf, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	out := make([]byte, BlockSize)
	copy(out, buf.Bytes())
	for i := buf.Len(); i < BlockSize; i++ {
		out[i] = reservedFillByte
	}
	if buf.Len() > BlockSize {
		return nil, newErr("marshalSuperblock", KindInconsistent)
	}
	return out, nil
}

func unmarshalSuperblock(data []byte) (*Superblock, error) {
	var raw rawSuperblock
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	if raw.Magic != Magic || raw.Version != Version {
		return nil, newErr("unmarshalSuperblock", KindInconsistent)
	}
	sb := &Superblock{}
	sb.fromRaw(raw)
	return sb, nil
}

// rawInode is the exact 64-byte binary layout of one inode record. VD1/VD2
// carry atime/mtime while in use, or prev/next while free-dirty; see
// Inode's accessors for the tagged view.
type rawInode struct {
	Mode     uint16
	Refcount uint16
	Owner    uint32
	Group    uint32
	Size     uint32
	Clucount uint32
	VD1      uint32
	VD2      uint32
	D        [NDirect]uint32
	I1       uint32
	I2       uint32
	_        [inodeSize - (2 + 2 + 4 + 4 + 4 + 4 + 4 + 4 + 4*NDirect + 4 + 4)]byte
}

// Inode is the in-memory mirror of one on-disk inode record.
type Inode struct {
	Mode     uint16
	Refcount uint16
	Owner    uint32
	Group    uint32
	Size     uint32
	Clucount uint32
	VD1      uint32 // Atime when in use, Prev when free-dirty.
	VD2      uint32 // Mtime when in use, Next when free-dirty.
	D        [NDirect]uint32
	I1       uint32
	I2       uint32
}

// Free reports whether the free bit is set.
func (in *Inode) Free() bool { return in.Mode&modeFreeFlag != 0 }

// Type reports the inode's type bits. Only meaningful when in use.
func (in *Inode) Type() InodeType {
	switch in.Mode & modeTypeMask {
	case modeTypeDir:
		return TypeDir
	case modeTypeSymC:
		return TypeSymlink
	default:
		return TypeFile
	}
}

// Perm returns the 9 permission bits.
func (in *Inode) Perm() uint16 { return in.Mode & modePermMask }

func marshalInode(in *Inode) []byte {
	raw := rawInode{
		Mode:     in.Mode,
		Refcount: in.Refcount,
		Owner:    in.Owner,
		Group:    in.Group,
		Size:     in.Size,
		Clucount: in.Clucount,
		VD1:      in.VD1,
		VD2:      in.VD2,
		D:        in.D,
		I1:       in.I1,
		I2:       in.I2,
	}
	buf := new(bytes.Buffer)
	// binary.Write on a fixed-size struct with only fixed-size fields
	// cannot fail; the error is checked for symmetry with unmarshal.
	_ = binary.Write(buf, binary.LittleEndian, &raw)
	out := make([]byte, inodeSize)
	copy(out, buf.Bytes())
	return out
}

func unmarshalInode(data []byte) (*Inode, error) {
	var raw rawInode
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	return &Inode{
		Mode:     raw.Mode,
		Refcount: raw.Refcount,
		Owner:    raw.Owner,
		Group:    raw.Group,
		Size:     raw.Size,
		Clucount: raw.Clucount,
		VD1:      raw.VD1,
		VD2:      raw.VD2,
		D:        raw.D,
		I1:       raw.I1,
		I2:       raw.I2,
	}, nil
}

// rawDirent is the exact on-disk directory-entry layout.
type rawDirent struct {
	Name   [MaxName + 1]byte
	NInode uint32
}

// Dirent is the in-memory mirror of one directory entry.
type Dirent struct {
	Name   [MaxName + 1]byte
	NInode uint32
}

// State classifies a directory entry into one of the three lifecycle states
// described in §3 of the specification.
type DirentState int

const (
	// DirentInUse means Name[0] != 0 and NInode != NullInode.
	DirentInUse DirentState = iota
	// DirentDirty means the entry was removed via REM: name's first and
	// last bytes were swapped, NInode still names the former owner.
	DirentDirty
	// DirentClean means the slot holds no history at all.
	DirentClean
)

// State classifies the entry per the three-state lifecycle in §3.
func (d *Dirent) State() DirentState {
	if d.NInode == NullInode {
		return DirentClean
	}
	if d.Name[0] == 0 {
		return DirentDirty
	}
	return DirentInUse
}

func (d *Dirent) nameString() string { return cstr(d.Name[:]) }

func marshalDirent(d *Dirent) []byte {
	raw := rawDirent{Name: d.Name, NInode: d.NInode}
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, &raw)
	return buf.Bytes()
}

func unmarshalDirent(data []byte) (*Dirent, error) {
	var raw rawDirent
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &raw); err != nil {
		return nil, err
	}
	return &Dirent{Name: raw.Name, NInode: raw.NInode}, nil
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func init() {
	// Compile-time layout assertions expressed as runtime checks the
	// consistency checker and tests can rely on without reaching into
	// unexported constants from another package.
	if marshaledInodeSize := len(marshalInode(&Inode{})); marshaledInodeSize != inodeSize {
		panic("sofs: inode on-disk size drifted from inodeSize")
	}
	if marshaledDirentSize := len(marshalDirent(&Dirent{})); marshaledDirentSize != direntSize {
		panic("sofs: dirent on-disk size drifted from direntSize")
	}
}
