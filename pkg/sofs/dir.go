package sofs

import "strings"

func validBasename(name string) error {
	if name == "" || len(name) > MaxName {
		return newErr("validBasename", KindNameTooLong)
	}
	if strings.Contains(name, "/") {
		return newErr("validBasename", KindInvalid)
	}
	return nil
}

func dirTotalEntries(in *Inode) uint32 {
	return (in.Size / ClusterSize) * DPC
}

// readDirent reads logical entry index i of directory inode nInodeDir.
func (fs *FileSystem) readDirent(nInodeDir uint32, i uint32) (*Dirent, error) {
	clusterIdx := i / DPC
	within := i % DPC
	buf := make([]byte, ClusterSize)
	if err := fs.readFileCluster(nInodeDir, clusterIdx, buf); err != nil {
		return nil, err
	}
	off := int(within) * direntSize
	return unmarshalDirent(buf[off : off+direntSize])
}

// writeDirentAt writes a single entry at logical index i, allocating and
// initializing a fresh clean-empty cluster first if i lands in a cluster
// beyond the directory's current size. When the directory grows, dirIn
// takes the reference chain and clucount the allocation wrote, its size
// grows by ClusterSize, and it is persisted.
func (fs *FileSystem) writeDirentAt(dirIn *Inode, nInodeDir uint32, i uint32, d *Dirent) error {
	clusterIdx := i / DPC
	within := i % DPC

	grow := i >= dirTotalEntries(dirIn)
	var buf []byte
	if grow {
		buf = blankDirCluster()
	} else {
		buf = make([]byte, ClusterSize)
		if err := fs.readFileCluster(nInodeDir, clusterIdx, buf); err != nil {
			return err
		}
	}
	copy(buf[int(within)*direntSize:], marshalDirent(d))
	if err := fs.writeFileCluster(nInodeDir, clusterIdx, buf); err != nil {
		return err
	}
	if !grow {
		return nil
	}
	fresh, err := fs.readInode(nInodeDir)
	if err != nil {
		return err
	}
	dirIn.D, dirIn.I1, dirIn.I2, dirIn.Clucount = fresh.D, fresh.I1, fresh.I2, fresh.Clucount
	dirIn.Size += ClusterSize
	return fs.writeInode(nInodeDir, dirIn)
}

func blankDirCluster() []byte {
	buf := make([]byte, ClusterSize)
	clean := marshalDirent(&Dirent{NInode: NullInode})
	for i := 0; i < DPC; i++ {
		copy(buf[i*direntSize:], clean)
	}
	return buf
}

// getDirEntryByName implements §4.7 getDirEntryByName. On a miss it
// returns ErrNotFound and idx is the insertion point (first clean-empty
// slot, or the append position if none).
func (fs *FileSystem) getDirEntryByName(nInodeDir uint32, name string, proc Process) (nInodeEnt uint32, idx uint32, err error) {
	const op = "getDirEntryByName"
	if err := validBasename(name); err != nil {
		return 0, 0, err
	}
	dirIn, err := fs.readInode(nInodeDir)
	if err != nil {
		return 0, 0, err
	}
	if dirIn.Free() || dirIn.Type() != TypeDir {
		return 0, 0, newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(dirIn, proc, Exec); err != nil {
		return 0, 0, err
	}

	total := dirTotalEntries(dirIn)
	firstClean := total
	haveFirstClean := false

	for i := uint32(0); i < total; i++ {
		d, err := fs.readDirent(nInodeDir, i)
		if err != nil {
			return 0, 0, err
		}
		switch d.State() {
		case DirentInUse:
			if d.nameString() == name {
				return d.NInode, i, nil
			}
		case DirentClean:
			if !haveFirstClean {
				firstClean = i
				haveFirstClean = true
			}
		}
	}
	if haveFirstClean {
		return NullInode, firstClean, wrapErr(op, KindNotFound, nil)
	}
	return NullInode, total, wrapErr(op, KindNotFound, nil)
}

// addAttachDirEntry implements §4.7 addAttachDirEntry.
func (fs *FileSystem) addAttachDirEntry(nInodeDir uint32, name string, nInodeEnt uint32, dop DirOp, proc Process) error {
	const op = "addAttachDirEntry"
	if err := validBasename(name); err != nil {
		return err
	}

	dirIn, err := fs.readInode(nInodeDir)
	if err != nil {
		return err
	}
	if dirIn.Free() || dirIn.Type() != TypeDir {
		return newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(dirIn, proc, Write|Exec); err != nil {
		return err
	}

	_, idx, lookErr := fs.getDirEntryByName(nInodeDir, name, proc)
	if lookErr == nil {
		return newErr(op, KindExists)
	}
	if !isKind(lookErr, KindNotFound) {
		return lookErr
	}

	if dirIn.Refcount == 0xFFFF {
		return newErr(op, KindTooManyLinks)
	}
	if int64(dirIn.Size) >= MaxFileSize {
		return newErr(op, KindFileTooBig)
	}

	childIn, err := fs.readInode(nInodeEnt)
	if err != nil {
		return err
	}
	if childIn.Refcount == 0xFFFF {
		return newErr(op, KindTooManyLinks)
	}

	switch dop {
	case OpAdd:
		if childIn.Type() == TypeDir {
			// Size stays 0 here: writing "." below appends cluster 0
			// clean-empty and grows Size to BSLPC.
			childIn.Refcount += 2
			if err := fs.writeInode(nInodeEnt, childIn); err != nil {
				return err
			}
			dot := &Dirent{NInode: nInodeEnt}
			copy(dot.Name[:], ".")
			dotdot := &Dirent{NInode: nInodeDir}
			copy(dotdot.Name[:], "..")
			childIn2, err := fs.readInode(nInodeEnt)
			if err != nil {
				return err
			}
			if err := fs.writeDirentAt(childIn2, nInodeEnt, 0, dot); err != nil {
				return err
			}
			childIn2, err = fs.readInode(nInodeEnt)
			if err != nil {
				return err
			}
			if err := fs.writeDirentAt(childIn2, nInodeEnt, 1, dotdot); err != nil {
				return err
			}
		} else {
			childIn.Refcount++
			if err := fs.writeInode(nInodeEnt, childIn); err != nil {
				return err
			}
		}
	case OpAttach:
		if childIn.Type() != TypeDir {
			return newErr(op, KindInconsistent)
		}
		dotdot := &Dirent{NInode: nInodeDir}
		copy(dotdot.Name[:], "..")
		if err := fs.writeDirentAt(childIn, nInodeEnt, 1, dotdot); err != nil {
			return err
		}
		childIn.Refcount += 2
		if err := fs.writeInode(nInodeEnt, childIn); err != nil {
			return err
		}
	default:
		return newErr(op, KindInvalid)
	}

	dirIn, err = fs.readInode(nInodeDir)
	if err != nil {
		return err
	}
	if childIn.Type() == TypeDir {
		dirIn.Refcount++ // the child's ".." entry
	}
	d := &Dirent{NInode: nInodeEnt}
	copy(d.Name[:], name)
	if err := fs.writeDirentAt(dirIn, nInodeDir, idx, d); err != nil {
		return err
	}
	return fs.writeInode(nInodeDir, dirIn)
}

// remDetachDirEntry implements §4.7 remDetachDirEntry.
func (fs *FileSystem) remDetachDirEntry(nInodeDir uint32, name string, rop RemOp, proc Process) error {
	const op = "remDetachDirEntry"
	if name == "." || name == ".." {
		return newErr(op, KindInvalid)
	}

	dirIn, err := fs.readInode(nInodeDir)
	if err != nil {
		return err
	}
	if dirIn.Free() || dirIn.Type() != TypeDir {
		return newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(dirIn, proc, Write|Exec); err != nil {
		return err
	}

	nInodeEnt, idx, err := fs.getDirEntryByName(nInodeDir, name, proc)
	if err != nil {
		return err
	}

	childIn, err := fs.readInode(nInodeEnt)
	if err != nil {
		return err
	}
	isDir := childIn.Type() == TypeDir
	if isDir && rop == OpRem {
		if err := fs.requireEmptyDir(nInodeEnt, childIn); err != nil {
			return err
		}
	}

	d, err := fs.readDirent(nInodeDir, idx)
	if err != nil {
		return err
	}
	switch rop {
	case OpRem:
		d.Name[MaxName] = d.Name[0]
		d.Name[0] = 0
	case OpDetach:
		for i := range d.Name {
			d.Name[i] = 0
		}
		d.NInode = NullInode
		if isDir {
			dotdot := &Dirent{NInode: NullInode}
			if err := fs.writeDirentAt(childIn, nInodeEnt, 1, dotdot); err != nil {
				return err
			}
			childIn, err = fs.readInode(nInodeEnt)
			if err != nil {
				return err
			}
		}
	default:
		return newErr(op, KindInvalid)
	}
	dirIn, err = fs.readInode(nInodeDir)
	if err != nil {
		return err
	}
	if err := fs.writeDirentAt(dirIn, nInodeDir, idx, d); err != nil {
		return err
	}
	if err := fs.writeInode(nInodeDir, dirIn); err != nil {
		return err
	}

	childIn, err = fs.readInode(nInodeEnt)
	if err != nil {
		return err
	}
	childIn.Refcount--
	if isDir {
		dirIn, err = fs.readInode(nInodeDir)
		if err != nil {
			return err
		}
		dirIn.Refcount--
		if err := fs.writeInode(nInodeDir, dirIn); err != nil {
			return err
		}
		if rop == OpRem {
			childIn.Refcount--
		}
	}
	if err := fs.writeInode(nInodeEnt, childIn); err != nil {
		return err
	}

	// A removed directory reaches zero once both its parent's entry and its
	// own "." have been discounted above.
	empty := childIn.Refcount == 0
	if rop == OpRem && empty {
		if err := fs.handleFileClusters(nInodeEnt, 0, OpFreeClean); err != nil {
			return err
		}
		if err := fs.freeInode(nInodeEnt); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSystem) requireEmptyDir(nInodeEnt uint32, in *Inode) error {
	total := dirTotalEntries(in)
	for i := uint32(2); i < total; i++ {
		d, err := fs.readDirent(nInodeEnt, i)
		if err != nil {
			return err
		}
		if d.State() == DirentInUse {
			return newErr("requireEmptyDir", KindNotEmpty)
		}
	}
	return nil
}

// renameDirEntry implements §4.7 renameDirEntry.
func (fs *FileSystem) renameDirEntry(nInodeDir uint32, oldName, newName string, proc Process) error {
	const op = "renameDirEntry"
	if oldName == "." || oldName == ".." {
		return newErr(op, KindInvalid)
	}
	if err := validBasename(oldName); err != nil {
		return err
	}
	if err := validBasename(newName); err != nil {
		return err
	}

	dirIn, err := fs.readInode(nInodeDir)
	if err != nil {
		return err
	}
	if dirIn.Free() || dirIn.Type() != TypeDir {
		return newErr(op, KindNotDir)
	}
	if err := fs.accessGranted(dirIn, proc, Write|Exec); err != nil {
		return err
	}

	nInodeEnt, idx, err := fs.getDirEntryByName(nInodeDir, oldName, proc)
	if err != nil {
		return err
	}
	if _, _, err := fs.getDirEntryByName(nInodeDir, newName, proc); err == nil {
		return newErr(op, KindExists)
	} else if !isKind(err, KindNotFound) {
		return err
	}

	d, err := fs.readDirent(nInodeDir, idx)
	if err != nil {
		return err
	}
	for i := range d.Name {
		d.Name[i] = 0
	}
	copy(d.Name[:], newName)
	d.NInode = nInodeEnt

	dirIn, err = fs.readInode(nInodeDir)
	if err != nil {
		return err
	}
	return fs.writeDirentAt(dirIn, nInodeDir, idx, d)
}

func isKind(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}
