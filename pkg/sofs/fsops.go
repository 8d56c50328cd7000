package sofs

import "strings"

// Stat is the user-facing subset of an inode's metadata, returned by
// Lookup and friends so callers never need to reach into Inode directly.
type Stat struct {
	NInode   uint32
	Type     InodeType
	Mode     uint16
	Refcount uint16
	Owner    uint32
	Group    uint32
	Size     uint32
	Atime    uint32
	Mtime    uint32
}

func statOf(n uint32, in *Inode) Stat {
	return Stat{
		NInode:   n,
		Type:     in.Type(),
		Mode:     in.Perm(),
		Refcount: in.Refcount,
		Owner:    in.Owner,
		Group:    in.Group,
		Size:     in.Size,
		Atime:    in.VD1,
		Mtime:    in.VD2,
	}
}

func splitParentBase(ePath string) (dir, base string, err error) {
	if !strings.HasPrefix(ePath, "/") {
		return "", "", newErr("splitParentBase", KindRelativePath)
	}
	trimmed := strings.TrimRight(ePath, "/")
	if trimmed == "" {
		return "", "", newErr("splitParentBase", KindInvalid)
	}
	i := strings.LastIndexByte(trimmed, '/')
	base = trimmed[i+1:]
	dir = trimmed[:i]
	if dir == "" {
		dir = "/"
	}
	return dir, base, nil
}

// Lookup resolves ePath and returns the Stat of the final component.
func (fs *FileSystem) Lookup(ePath string, proc Process) (Stat, error) {
	_, nInodeEnt, err := fs.getDirEntryByPath(ePath, proc)
	if err != nil {
		return Stat{}, err
	}
	in, err := fs.readInode(nInodeEnt)
	if err != nil {
		return Stat{}, err
	}
	return statOf(nInodeEnt, in), nil
}

// ReadDir lists the in-use entries of the directory at ePath.
func (fs *FileSystem) ReadDir(ePath string, proc Process) ([]string, error) {
	const op = "ReadDir"
	_, nInodeDir, err := fs.getDirEntryByPath(ePath, proc)
	if err != nil {
		return nil, err
	}
	in, err := fs.readInode(nInodeDir)
	if err != nil {
		return nil, err
	}
	if in.Type() != TypeDir {
		return nil, newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(in, proc, Read|Exec); err != nil {
		return nil, err
	}
	total := dirTotalEntries(in)
	var names []string
	for i := uint32(0); i < total; i++ {
		d, err := fs.readDirent(nInodeDir, i)
		if err != nil {
			return nil, err
		}
		if d.State() == DirentInUse {
			names = append(names, d.nameString())
		}
	}
	return names, nil
}

// Mkdir creates a new, empty directory at ePath.
func (fs *FileSystem) Mkdir(ePath string, proc Process) error {
	dir, base, err := splitParentBase(ePath)
	if err != nil {
		return err
	}
	_, nInodeDir, err := fs.getDirEntryByPath(dir, proc)
	if err != nil {
		return err
	}
	nInodeEnt, err := fs.allocInode(TypeDir, proc)
	if err != nil {
		return err
	}
	// allocInode leaves no permission bits set; a new directory gets rwx
	// for owner, group and other, as the root directory has.
	in, err := fs.readInode(nInodeEnt)
	if err == nil {
		in.Mode |= modeFullRWXll
		err = fs.writeInode(nInodeEnt, in)
	}
	if err != nil {
		_ = fs.freeInode(nInodeEnt)
		return err
	}
	if err := fs.addAttachDirEntry(nInodeDir, base, nInodeEnt, OpAdd, proc); err != nil {
		_ = fs.freeInode(nInodeEnt)
		return err
	}
	return nil
}

// Create makes a new, empty regular file at ePath.
func (fs *FileSystem) Create(ePath string, proc Process) (Stat, error) {
	dir, base, err := splitParentBase(ePath)
	if err != nil {
		return Stat{}, err
	}
	_, nInodeDir, err := fs.getDirEntryByPath(dir, proc)
	if err != nil {
		return Stat{}, err
	}
	nInodeEnt, err := fs.allocInode(TypeFile, proc)
	if err != nil {
		return Stat{}, err
	}
	if err := fs.addAttachDirEntry(nInodeDir, base, nInodeEnt, OpAdd, proc); err != nil {
		_ = fs.freeInode(nInodeEnt)
		return Stat{}, err
	}
	in, err := fs.readInode(nInodeEnt)
	if err != nil {
		return Stat{}, err
	}
	return statOf(nInodeEnt, in), nil
}

// Symlink creates a symbolic link at ePath whose target is the literal
// string target (resolved lazily, at most once, on later lookups).
func (fs *FileSystem) Symlink(ePath, target string, proc Process) error {
	dir, base, err := splitParentBase(ePath)
	if err != nil {
		return err
	}
	_, nInodeDir, err := fs.getDirEntryByPath(dir, proc)
	if err != nil {
		return err
	}
	nInodeEnt, err := fs.allocInode(TypeSymlink, proc)
	if err != nil {
		return err
	}
	if err := fs.writeSymlinkTarget(nInodeEnt, target); err != nil {
		_ = fs.freeInode(nInodeEnt)
		return err
	}
	if err := fs.addAttachDirEntry(nInodeDir, base, nInodeEnt, OpAdd, proc); err != nil {
		_ = fs.freeInode(nInodeEnt)
		return err
	}
	return nil
}

// Readlink returns the literal target string of the symbolic link at
// ePath, without following it.
func (fs *FileSystem) Readlink(ePath string, proc Process) (string, error) {
	dir, base, err := splitParentBase(ePath)
	if err != nil {
		return "", err
	}
	_, nInodeDir, err := fs.getDirEntryByPath(dir, proc)
	if err != nil {
		return "", err
	}
	nInodeEnt, _, err := fs.getDirEntryByName(nInodeDir, base, proc)
	if err != nil {
		return "", err
	}
	return fs.readSymlinkTarget(nInodeEnt)
}

// Link creates a hard link: newPath gains an entry pointing at the same
// inode as oldPath (which must not be a directory).
func (fs *FileSystem) Link(oldPath, newPath string, proc Process) error {
	_, nInodeEnt, err := fs.getDirEntryByPath(oldPath, proc)
	if err != nil {
		return err
	}
	in, err := fs.readInode(nInodeEnt)
	if err != nil {
		return err
	}
	if in.Type() == TypeDir {
		return newErr("Link", KindInconsistent)
	}
	dir, base, err := splitParentBase(newPath)
	if err != nil {
		return err
	}
	_, nInodeDir, err := fs.getDirEntryByPath(dir, proc)
	if err != nil {
		return err
	}
	return fs.addAttachDirEntry(nInodeDir, base, nInodeEnt, OpAdd, proc)
}

// Remove unlinks ePath: a directory must be empty, a file or symlink is
// freed outright once its refcount reaches zero.
func (fs *FileSystem) Remove(ePath string, proc Process) error {
	dir, base, err := splitParentBase(ePath)
	if err != nil {
		return err
	}
	_, nInodeDir, err := fs.getDirEntryByPath(dir, proc)
	if err != nil {
		return err
	}
	return fs.remDetachDirEntry(nInodeDir, base, OpRem, proc)
}

// Rename moves oldPath to newPath within the same parent-resolving call
// (cross-directory rename is not exposed: renameDirEntry per §4.7 only
// rewrites the name within one directory).
func (fs *FileSystem) Rename(oldPath, newPath string, proc Process) error {
	oldDir, oldBase, err := splitParentBase(oldPath)
	if err != nil {
		return err
	}
	newDir, newBase, err := splitParentBase(newPath)
	if err != nil {
		return err
	}
	if oldDir != newDir {
		return newErr("Rename", KindInvalid)
	}
	_, nInodeDir, err := fs.getDirEntryByPath(oldDir, proc)
	if err != nil {
		return err
	}
	return fs.renameDirEntry(nInodeDir, oldBase, newBase, proc)
}

// ReadFile reads up to len(buf) bytes of the file at ePath starting at
// byte offset off, returning the number of bytes actually read.
func (fs *FileSystem) ReadFile(ePath string, off int64, buf []byte, proc Process) (int, error) {
	const op = "ReadFile"
	_, nInodeEnt, err := fs.getDirEntryByPath(ePath, proc)
	if err != nil {
		return 0, err
	}
	in, err := fs.readInode(nInodeEnt)
	if err != nil {
		return 0, err
	}
	if in.Type() == TypeDir {
		return 0, newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(in, proc, Read); err != nil {
		return 0, err
	}
	if off >= int64(in.Size) {
		return 0, nil
	}
	n := len(buf)
	if off+int64(n) > int64(in.Size) {
		n = int(int64(in.Size) - off)
	}
	read := 0
	cluster := make([]byte, ClusterSize)
	for read < n {
		clustInd, within, err := bytePos(off + int64(read))
		if err != nil {
			return read, err
		}
		if err := fs.readFileCluster(nInodeEnt, clustInd, cluster); err != nil {
			return read, err
		}
		chunk := copy(buf[read:n], cluster[within:])
		read += chunk
	}
	return read, nil
}

// WriteFile writes data to the file at ePath starting at byte offset
// off, growing the file (and its Size) as needed.
func (fs *FileSystem) WriteFile(ePath string, off int64, data []byte, proc Process) (int, error) {
	const op = "WriteFile"
	_, nInodeEnt, err := fs.getDirEntryByPath(ePath, proc)
	if err != nil {
		return 0, err
	}
	in, err := fs.readInode(nInodeEnt)
	if err != nil {
		return 0, err
	}
	if in.Type() == TypeDir {
		return 0, newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(in, proc, Write); err != nil {
		return 0, err
	}
	if off+int64(len(data)) > MaxFileSize {
		return 0, newErr(op, KindFileTooBig)
	}

	written := 0
	cluster := make([]byte, ClusterSize)
	for written < len(data) {
		clustInd, within, err := bytePos(off + int64(written))
		if err != nil {
			return written, err
		}
		if err := fs.readFileCluster(nInodeEnt, clustInd, cluster); err != nil {
			return written, err
		}
		chunk := copy(cluster[within:], data[written:])
		if err := fs.writeFileCluster(nInodeEnt, clustInd, cluster); err != nil {
			return written, err
		}
		written += chunk
	}

	in, err = fs.readInode(nInodeEnt)
	if err != nil {
		return written, err
	}
	if newSize := off + int64(written); newSize > int64(in.Size) {
		in.Size = uint32(newSize)
		if err := fs.writeInode(nInodeEnt, in); err != nil {
			return written, err
		}
	}
	return written, nil
}

// Truncate frees every data cluster of the file at ePath beyond the new
// size and updates its Size.
func (fs *FileSystem) Truncate(ePath string, size int64, proc Process) error {
	const op = "Truncate"
	if size < 0 || size > MaxFileSize {
		return newErr(op, KindInvalid)
	}
	_, nInodeEnt, err := fs.getDirEntryByPath(ePath, proc)
	if err != nil {
		return err
	}
	in, err := fs.readInode(nInodeEnt)
	if err != nil {
		return err
	}
	if in.Type() == TypeDir {
		return newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(in, proc, Write); err != nil {
		return err
	}

	var fromClust uint32
	if size > 0 {
		last, _, err := bytePos(size - 1)
		if err != nil {
			return err
		}
		fromClust = last + 1
	}
	if err := fs.handleFileClusters(nInodeEnt, fromClust, OpFreeClean); err != nil {
		return err
	}
	in, err = fs.readInode(nInodeEnt)
	if err != nil {
		return err
	}
	in.Size = uint32(size)
	return fs.writeInode(nInodeEnt, in)
}
