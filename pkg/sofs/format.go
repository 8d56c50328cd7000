package sofs

import "io"

// FormatOptions controls mkfs-sofs13's volume layout (§6.3).
type FormatOptions struct {
	VolumeName string
	// Itotal is the inode table size; 0 selects an automatic size of
	// roughly one inode per defaultInodeDivisor blocks.
	Itotal uint32
	// ZeroFill overwrites the entire data zone with zero bytes before
	// the root directory is written, instead of leaving it as the
	// never-written region of the freshly created backing file.
	ZeroFill bool
	// ZeroFillProgress, when set and ZeroFill is true, receives a Write
	// call for every chunk of zero bytes committed to the data zone, so
	// a caller can drive a byte-granular progress indicator. It is never
	// read from, so any io.Writer works, including an elog.Progress bar.
	ZeroFillProgress io.Writer
}

// defaultVolumeName is applied when FormatOptions.VolumeName is empty.
const defaultVolumeName = "SOFS13"

func divCeil(a, b uint32) uint32 { return (a + b - 1) / b }

// defaultItotal picks an inode table size proportional to the volume,
// grounded on the teacher's ext4 sizing convention of scaling the inode
// count with the block count rather than hard-coding it.
func defaultItotal(ntotal uint32) uint32 {
	n := ntotal / defaultInodeDivisor
	if n < IPB {
		n = IPB
	}
	return divCeil(n, IPB) * IPB
}

// solveDzoneLayout converges ciutableSize/fctableSize/dzoneTotal the way
// the teacher's calculateMinimumSize iterates block-group sizing: each
// guess at dzoneTotal changes the overhead tables needed to describe it,
// which in turn changes how many blocks remain for the data zone.
func solveDzoneLayout(available uint32) (dzoneTotal, ciutableSize, fctableSize uint32) {
	dzoneTotal = available / BlocksPerCluster
	for {
		ciutableSize = divCeil(dzoneTotal, RPB)
		fctableSize = divCeil(dzoneTotal, 8*BlockSize)
		overhead := ciutableSize + fctableSize
		if overhead >= available {
			dzoneTotal = 0
			ciutableSize = 0
			fctableSize = 0
			return
		}
		next := (available - overhead) / BlocksPerCluster
		if next == dzoneTotal {
			return
		}
		dzoneTotal = next
	}
}

// DataZoneBytes reports how many bytes of the data zone Format would
// zero-fill for a volume of sizeBytes with the given inode count (0
// selects the automatic count), without touching any file. A caller
// driving a progress indicator over FormatOptions.ZeroFillProgress uses
// this as the bar's total.
func DataZoneBytes(sizeBytes int64, itotal uint32) (int64, error) {
	const op = "DataZoneBytes"
	if sizeBytes <= 0 || sizeBytes%BlockSize != 0 {
		return 0, newErr(op, KindInvalid)
	}
	ntotal := uint32(sizeBytes / BlockSize)
	if itotal == 0 {
		itotal = defaultItotal(ntotal)
	}
	itableSize := divCeil(itotal, IPB)
	if 1+itableSize >= ntotal {
		return 0, newErr(op, KindNoSpace)
	}
	dzoneTotal, _, _ := solveDzoneLayout(ntotal - 1 - itableSize)
	if dzoneTotal == 0 {
		return 0, newErr(op, KindNoSpace)
	}
	return int64(dzoneTotal) * ClusterSize, nil
}

// Format lays out a brand-new SOFS13 volume of sizeBytes in a freshly
// created backing file at path, per §6.3.
func Format(path string, sizeBytes int64, opts FormatOptions) error {
	const op = "Format"
	if sizeBytes <= 0 || sizeBytes%BlockSize != 0 {
		return newErr(op, KindInvalid)
	}
	if len(opts.VolumeName) > MaxVolumeName {
		return newErr(op, KindNameTooLong)
	}
	volumeName := opts.VolumeName
	if volumeName == "" {
		volumeName = defaultVolumeName
	}
	ntotal := uint32(sizeBytes / BlockSize)

	itotal := opts.Itotal
	if itotal == 0 {
		itotal = defaultItotal(ntotal)
	}
	itableSize := divCeil(itotal, IPB)
	if 1+itableSize >= ntotal {
		return newErr(op, KindNoSpace)
	}

	dzoneTotal, ciutableSize, fctableSize := solveDzoneLayout(ntotal - 1 - itableSize)
	if dzoneTotal == 0 {
		return newErr(op, KindNoSpace)
	}

	b, err := createBackend(path, sizeBytes)
	if err != nil {
		return err
	}
	defer b.close()

	sb := &Superblock{
		Name:          volumeName,
		Ntotal:        ntotal,
		Mstat:         mstatPRU,
		ItableStart:   1,
		ItableSize:    itableSize,
		Itotal:        itotal,
		CiutableStart: 1 + itableSize,
		CiutableSize:  ciutableSize,
		FctableStart:  1 + itableSize + ciutableSize,
		FctableSize:   fctableSize,
		FctablePos:    0,
		DzoneStart:    1 + itableSize + ciutableSize + fctableSize,
		DzoneTotal:    dzoneTotal,
		DzoneFree:     dzoneTotal,
	}
	if itotal > 1 {
		sb.Ifree = itotal - 1
		sb.Ihead = 1
		sb.Itail = itotal - 1
	} else {
		sb.Ihead = NullInode
		sb.Itail = NullInode
	}
	sb.DzoneRetrievIdx = DzoneCacheSize
	sb.DzoneInsertIdx = 0

	fs := &FileSystem{b: b, sb: sb}

	if err := formatFreeInodeChain(fs); err != nil {
		return err
	}
	if err := formatCiuTable(fs); err != nil {
		return err
	}
	if err := formatBitmap(fs); err != nil {
		return err
	}
	if opts.ZeroFill {
		dataZoneBytes := int64(dzoneTotal) * ClusterSize
		if err := b.zeroFill(int64(sb.DzoneStart)*BlockSize, dataZoneBytes, opts.ZeroFillProgress); err != nil {
			return err
		}
	}
	if err := formatRootDirectory(fs); err != nil {
		return err
	}
	if err := fs.storeSuperblock(); err != nil {
		return err
	}

	violations, err := Check(fs)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return newErr(op, KindInconsistent)
	}
	return nil
}

func formatFreeInodeChain(fs *FileSystem) error {
	for n := uint32(1); n < fs.sb.Itotal; n++ {
		var prev, next uint32 = n - 1, n + 1
		if n == 1 {
			prev = NullInode
		}
		if n == fs.sb.Itotal-1 {
			next = NullInode
		}
		in := &Inode{Mode: modeFreeFlag, VD1: prev, VD2: next}
		for i := range in.D {
			in.D[i] = NullCluster
		}
		in.I1 = NullCluster
		in.I2 = NullCluster
		if err := fs.writeInode(n, in); err != nil {
			return err
		}
	}
	return nil
}

// formatCiuTable writes the cluster-to-inode map directly at the block
// level: every table-granularity slot beyond dzoneTotal gets
// ciuUnusedFillWord since writeCiu refuses references past DzoneTotal.
func formatCiuTable(fs *FileSystem) error {
	sb := fs.sb
	for blk := uint32(0); blk < sb.CiutableSize; blk++ {
		data := make([]byte, BlockSize)
		for slot := uint32(0); slot < RPB; slot++ {
			ref := blk*RPB + slot
			v := uint32(NullInode)
			if ref >= sb.DzoneTotal {
				v = ciuUnusedFillWord
			}
			putLE32(data[slot*4:slot*4+4], v)
		}
		if err := fs.b.writeBlock(sb.CiutableStart+blk, data); err != nil {
			return err
		}
	}
	return fs.writeCiu(0, 0)
}

// formatBitmap marks every cluster in the volume free except cluster 0,
// which formatRootDirectory assigns to the root directory; bits beyond
// dzoneTotal within the final bitmap block are cleared.
func formatBitmap(fs *FileSystem) error {
	sb := fs.sb
	for blk := uint32(0); blk < sb.FctableSize; blk++ {
		data := make([]byte, BlockSize)
		for i := range data {
			data[i] = 0xFF
		}
		bitsPerBlock := uint32(8 * BlockSize)
		base := blk * bitsPerBlock
		for bit := uint32(0); bit < bitsPerBlock; bit++ {
			ref := base + bit
			if ref >= sb.DzoneTotal {
				byteOff, bitOff := bit/8, bit%8
				data[byteOff] = bitWith(data[byteOff], bitOff, false)
			}
		}
		if err := fs.b.writeBlock(sb.FctableStart+blk, data); err != nil {
			return err
		}
	}
	if err := fs.bitmapSet(0, false); err != nil {
		return err
	}
	sb.DzoneFree--
	return nil
}

func formatRootDirectory(fs *FileSystem) error {
	root := &Inode{
		Mode:     TypeDir.modeBit() | modeFullRWXll,
		Refcount: 2,
		Size:     BSLPC,
		Clucount: 1,
	}
	root.D[0] = 0
	for i := 1; i < len(root.D); i++ {
		root.D[i] = NullCluster
	}
	root.I1 = NullCluster
	root.I2 = NullCluster

	buf := blankDirCluster()
	dot := &Dirent{NInode: 0}
	copy(dot.Name[:], ".")
	dotdot := &Dirent{NInode: 0}
	copy(dotdot.Name[:], "..")
	copy(buf[0*direntSize:], marshalDirent(dot))
	copy(buf[1*direntSize:], marshalDirent(dotdot))

	if err := fs.writeInode(0, root); err != nil {
		return err
	}
	return fs.writeDataCluster(0, buf)
}
