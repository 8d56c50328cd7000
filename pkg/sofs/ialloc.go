package sofs

// allocInode implements §4.3 allocInode: pop the head of the free-inode
// list, initialize it for typ owned by proc, and persist.
func (fs *FileSystem) allocInode(typ InodeType, proc Process) (uint32, error) {
	const op = "allocInode"
	if fs.sb.Ifree == 0 {
		return 0, newErr(op, KindNoSpace)
	}
	n := fs.sb.Ihead
	head, err := fs.readInode(n)
	if err != nil {
		return 0, err
	}
	if !head.Free() {
		return 0, newErr(op, KindInconsistent)
	}
	next := head.VD2 // free-dirty VD2 holds "next"

	in := &Inode{
		Mode:     typ.modeBit(),
		Owner:    proc.UID,
		Group:    proc.GID,
		VD1:      uint32(nowUnix()),
		VD2:      uint32(nowUnix()),
	}
	for i := range in.D {
		in.D[i] = NullCluster
	}
	in.I1 = NullCluster
	in.I2 = NullCluster

	if err := fs.writeInode(n, in); err != nil {
		return 0, err
	}

	if fs.sb.Ifree == 1 {
		fs.sb.Ihead = NullInode
		fs.sb.Itail = NullInode
	} else {
		fs.sb.Ihead = next
		newHead, err := fs.readInode(next)
		if err != nil {
			return 0, err
		}
		newHead.VD1 = NullInode // prev
		if err := fs.writeInode(next, newHead); err != nil {
			return 0, err
		}
	}
	fs.sb.Ifree--
	if err := fs.storeSuperblock(); err != nil {
		return 0, err
	}
	return n, nil
}

// freeInode implements §4.3 freeInode: append n to the tail of the
// free-inode list, keeping its data clusters dirty for later cleanInode.
func (fs *FileSystem) freeInode(n uint32) error {
	const op = "freeInode"
	if n == 0 {
		return newErr(op, KindInvalid)
	}
	in, err := fs.readInode(n)
	if err != nil {
		return err
	}
	if in.Free() {
		return newErr(op, KindInconsistent)
	}
	if in.Refcount != 0 {
		return newErr(op, KindInconsistent)
	}

	in.Mode = (in.Mode & modeTypeMask) | modeFreeFlag
	in.Owner = 0
	in.Group = 0
	in.VD1 = fs.sb.Itail // prev
	in.VD2 = NullInode   // next
	if err := fs.writeInode(n, in); err != nil {
		return err
	}

	if fs.sb.Ifree == 0 {
		fs.sb.Ihead = n
		fs.sb.Itail = n
	} else {
		tail, err := fs.readInode(fs.sb.Itail)
		if err != nil {
			return err
		}
		tail.VD2 = n // next
		if err := fs.writeInode(fs.sb.Itail, tail); err != nil {
			return err
		}
		fs.sb.Itail = n
	}
	fs.sb.Ifree++
	return fs.storeSuperblock()
}

// cleanInode implements §4.3 cleanInode: dissociate every data cluster
// still attached to a free-dirty inode.
func (fs *FileSystem) cleanInode(n uint32) error {
	const op = "cleanInode"
	if n == 0 {
		return newErr(op, KindInvalid)
	}
	in, err := fs.readInode(n)
	if err != nil {
		return err
	}
	if !in.Free() {
		return newErr(op, KindInconsistent)
	}
	if err := fs.handleFileClusters(n, 0, OpClean); err != nil {
		return err
	}
	return nil
}
