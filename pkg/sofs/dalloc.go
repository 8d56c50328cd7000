package sofs

// replenish implements §4.4 Replenish: refill the retrieve cache from the
// free-cluster bitmap, depleting the insert cache first if the bitmap
// alone cannot satisfy the current dzone_free count.
func (fs *FileSystem) replenish() error {
	if fs.sb.DzoneTotal == 0 {
		fs.sb.DzoneRetrievIdx = DzoneCacheSize
		return nil
	}
	want := DzoneCacheSize
	if int(fs.sb.DzoneFree) < want {
		want = int(fs.sb.DzoneFree)
	}

	var captured []uint32
	depleted := false
	pos := fs.sb.FctablePos
	start := pos
	firstPass := true

	for len(captured) < want {
		if !firstPass && pos == start {
			if depleted || fs.sb.DzoneInsertIdx == 0 {
				break
			}
			if err := fs.deplete(); err != nil {
				return err
			}
			depleted = true
			// Fall through and examine pos itself: deplete() may have
			// just freed it, and the scan resumes from here rather than
			// re-triggering this branch on the next iteration.
		}
		firstPass = false

		free, err := fs.bitmapGet(pos)
		if err != nil {
			return err
		}
		if free {
			if err := fs.bitmapSet(pos, false); err != nil {
				return err
			}
			captured = append(captured, pos)
		}
		pos = (pos + 1) % fs.sb.DzoneTotal
	}

	fs.sb.FctablePos = pos
	n := len(captured)
	fs.sb.DzoneRetrievIdx = DzoneCacheSize - n
	for i, ref := range captured {
		fs.sb.DzoneRetrievCache[DzoneCacheSize-n+i] = ref
	}
	return nil
}

// deplete implements §4.4 Deplete: push every cluster parked in the
// insert cache back into the bitmap.
func (fs *FileSystem) deplete() error {
	for i := uint32(0); i < fs.sb.DzoneInsertIdx; i++ {
		ref := fs.sb.DzoneInsertCache[i]
		if err := fs.bitmapSet(ref, true); err != nil {
			return err
		}
		fs.sb.DzoneInsertCache[i] = NullCluster
	}
	fs.sb.DzoneInsertIdx = 0
	return nil
}

// allocDataCluster implements §4.4 allocDataCluster.
func (fs *FileSystem) allocDataCluster() (uint32, error) {
	const op = "allocDataCluster"
	if fs.sb.DzoneRetrievIdx == DzoneCacheSize {
		if err := fs.replenish(); err != nil {
			return 0, err
		}
	}
	if fs.sb.DzoneRetrievIdx == DzoneCacheSize {
		return 0, newErr(op, KindNoSpace)
	}

	ref := fs.sb.DzoneRetrievCache[fs.sb.DzoneRetrievIdx]
	fs.sb.DzoneRetrievCache[fs.sb.DzoneRetrievIdx] = NullCluster
	fs.sb.DzoneRetrievIdx++

	owner, err := fs.readCiu(ref)
	if err != nil {
		return 0, err
	}
	if owner != NullInode {
		if err := fs.disownDirtyCluster(owner, ref); err != nil {
			return 0, err
		}
		if err := fs.writeCiu(ref, NullInode); err != nil {
			return 0, err
		}
	}

	fs.sb.DzoneFree--
	if err := fs.storeSuperblock(); err != nil {
		return 0, err
	}
	return ref, nil
}

// freeDataCluster implements §4.4 freeDataCluster. The cluster-to-inode
// map entry is left untouched: the cluster remains dirty until it is
// either disowned by a later allocDataCluster or explicitly unmapped by
// handleFileCluster's FREE_CLEAN/CLEAN paths.
func (fs *FileSystem) freeDataCluster(ref uint32) error {
	const op = "freeDataCluster"
	if ref == 0 || ref >= fs.sb.DzoneTotal {
		return newErr(op, KindInvalid)
	}
	if fs.sb.DzoneInsertIdx == DzoneCacheSize {
		if err := fs.deplete(); err != nil {
			return err
		}
	}
	fs.sb.DzoneInsertCache[fs.sb.DzoneInsertIdx] = ref
	fs.sb.DzoneInsertIdx++
	fs.sb.DzoneFree++
	return fs.storeSuperblock()
}

// disownDirtyCluster locates the chain slot of owner's inode that still
// references ref (a cluster just reclaimed from the bitmap cache that the
// cluster-to-inode map had not yet forgotten) and nulls it, collapsing any
// indirection cluster that becomes entirely empty as a result.
func (fs *FileSystem) disownDirtyCluster(owner uint32, ref uint32) error {
	in, err := fs.readInode(owner)
	if err != nil {
		return err
	}

	for i := range in.D {
		if in.D[i] == ref {
			in.D[i] = NullCluster
			in.Clucount--
			return fs.writeInode(owner, in)
		}
	}

	if in.I1 != NullCluster {
		refs, err := fs.readRefCluster(in.I1)
		if err != nil {
			return err
		}
		for i, r := range refs {
			if r == ref {
				refs[i] = NullCluster
				if err := fs.writeRefCluster(in.I1, refs); err != nil {
					return err
				}
				in.Clucount--
				if allNull(refs) {
					if err := fs.freeAndUnmap(in.I1); err != nil {
						return err
					}
					in.I1 = NullCluster
					in.Clucount--
				}
				return fs.writeInode(owner, in)
			}
		}
	}

	if in.I2 != NullCluster {
		siRefs, err := fs.readRefCluster(in.I2)
		if err != nil {
			return err
		}
		for si, siRef := range siRefs {
			if siRef == NullCluster {
				continue
			}
			refs, err := fs.readRefCluster(siRef)
			if err != nil {
				return err
			}
			for i, r := range refs {
				if r != ref {
					continue
				}
				refs[i] = NullCluster
				if err := fs.writeRefCluster(siRef, refs); err != nil {
					return err
				}
				in.Clucount--
				if allNull(refs) {
					if err := fs.freeAndUnmap(siRef); err != nil {
						return err
					}
					siRefs[si] = NullCluster
					if err := fs.writeRefCluster(in.I2, siRefs); err != nil {
						return err
					}
					in.Clucount--
					if allNull(siRefs) {
						if err := fs.freeAndUnmap(in.I2); err != nil {
							return err
						}
						in.I2 = NullCluster
						in.Clucount--
					}
				}
				return fs.writeInode(owner, in)
			}
		}
	}

	return newErr("disownDirtyCluster", KindInconsistent)
}

// freeAndUnmap frees a structural (indirection) cluster and clears its
// cluster-to-inode map entry in one step.
func (fs *FileSystem) freeAndUnmap(logical uint32) error {
	if err := fs.freeDataCluster(logical); err != nil {
		return err
	}
	return fs.writeCiu(logical, NullInode)
}

func allNull(refs []uint32) bool {
	for _, r := range refs {
		if r != NullCluster {
			return false
		}
	}
	return true
}
