package sofs

// region classifies a logical cluster index into direct, single-indirect,
// or double-indirect, per §4.5.
type region int

const (
	regionDirect region = iota
	regionSingle
	regionDouble
)

func classify(clustInd uint32) (r region, directIdx, i1Idx, siIdx, dIdx uint32) {
	switch {
	case clustInd < NDirect:
		return regionDirect, clustInd, 0, 0, 0
	case clustInd < NDirect+RPC:
		return regionSingle, 0, clustInd - NDirect, 0, 0
	default:
		rem := clustInd - NDirect - RPC
		return regionDouble, 0, 0, rem / RPC, rem % RPC
	}
}

// handleFileCluster implements §4.5's unified per-slot operation.
func (fs *FileSystem) handleFileCluster(nInode uint32, clustInd uint32, op FileClusterOp, out *uint32) error {
	const opName = "handleFileCluster"
	if clustInd >= MaxFileClusters {
		return newErr(opName, KindInvalid)
	}
	in, err := fs.readInode(nInode)
	if err != nil {
		return err
	}
	// OpClean is the one op allowed on a free-dirty inode (cleanInode).
	if in.Free() && op != OpClean {
		return newErr(opName, KindInconsistent)
	}

	r, directIdx, i1Idx, siIdx, dIdx := classify(clustInd)

	switch r {
	case regionDirect:
		return fs.handleDirectSlot(nInode, in, directIdx, op, out)
	case regionSingle:
		return fs.handleSingleSlot(nInode, in, i1Idx, op, out)
	default:
		return fs.handleDoubleSlot(nInode, in, siIdx, dIdx, op, out)
	}
}

func (fs *FileSystem) handleDirectSlot(nInode uint32, in *Inode, idx uint32, op FileClusterOp, out *uint32) error {
	cur := in.D[idx]
	switch op {
	case OpGet:
		*out = cur
		return nil
	case OpAlloc:
		if cur != NullCluster {
			return newErr("handleFileCluster", KindExists)
		}
		c, err := fs.allocDataCluster()
		if err != nil {
			return err
		}
		if err := fs.writeCiu(c, nInode); err != nil {
			return err
		}
		in.D[idx] = c
		in.Clucount++
		if out != nil {
			*out = c
		}
		return fs.writeInode(nInode, in)
	default:
		if cur == NullCluster {
			return newErr("handleFileCluster", KindNotFound)
		}
		if op == OpFree || op == OpFreeClean {
			if err := fs.freeDataCluster(cur); err != nil {
				return err
			}
		}
		if op == OpFreeClean || op == OpClean {
			if err := fs.writeCiu(cur, NullInode); err != nil {
				return err
			}
			in.D[idx] = NullCluster
			in.Clucount--
			return fs.writeInode(nInode, in)
		}
		return nil
	}
}

// handleSingleSlot operates on the single-indirect chain referenced by
// in.I1, allocating or collapsing the i1 reference cluster itself as a
// side effect.
func (fs *FileSystem) handleSingleSlot(nInode uint32, in *Inode, idx uint32, op FileClusterOp, out *uint32) error {
	const opName = "handleFileCluster"
	if in.I1 == NullCluster {
		if op == OpGet {
			*out = NullCluster
			return nil
		}
		if op != OpAlloc {
			return newErr(opName, KindNotFound)
		}
		i1, err := fs.allocDataCluster()
		if err != nil {
			return err
		}
		if err := fs.writeCiu(i1, nInode); err != nil {
			return err
		}
		blank := make([]uint32, RPC)
		for i := range blank {
			blank[i] = NullCluster
		}
		if err := fs.writeRefCluster(i1, blank); err != nil {
			return err
		}
		in.I1 = i1
		in.Clucount++
	}

	refs, err := fs.readRefCluster(in.I1)
	if err != nil {
		return err
	}
	cur := refs[idx]

	switch op {
	case OpGet:
		*out = cur
		return nil
	case OpAlloc:
		if cur != NullCluster {
			return newErr(opName, KindExists)
		}
		c, err := fs.allocDataCluster()
		if err != nil {
			return err
		}
		if err := fs.writeCiu(c, nInode); err != nil {
			return err
		}
		refs[idx] = c
		if err := fs.writeRefCluster(in.I1, refs); err != nil {
			return err
		}
		in.Clucount++
		if out != nil {
			*out = c
		}
		return fs.writeInode(nInode, in)
	default:
		if cur == NullCluster {
			return newErr(opName, KindNotFound)
		}
		if op == OpFree || op == OpFreeClean {
			if err := fs.freeDataCluster(cur); err != nil {
				return err
			}
		}
		if op == OpFreeClean || op == OpClean {
			if err := fs.writeCiu(cur, NullInode); err != nil {
				return err
			}
			refs[idx] = NullCluster
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
			return fs.writeInode(nInode, in)
		}
		return nil
	}
}

// handleDoubleSlot operates on the two-level chain rooted at in.I2,
// allocating or collapsing the i2 cluster and the addressed single-
// indirect sub-cluster as needed.
func (fs *FileSystem) handleDoubleSlot(nInode uint32, in *Inode, siIdx, dIdx uint32, op FileClusterOp, out *uint32) error {
	const opName = "handleFileCluster"
	if in.I2 == NullCluster {
		if op == OpGet {
			*out = NullCluster
			return nil
		}
		if op != OpAlloc {
			return newErr(opName, KindNotFound)
		}
		i2, err := fs.allocDataCluster()
		if err != nil {
			return err
		}
		if err := fs.writeCiu(i2, nInode); err != nil {
			return err
		}
		blank := make([]uint32, RPC)
		for i := range blank {
			blank[i] = NullCluster
		}
		if err := fs.writeRefCluster(i2, blank); err != nil {
			return err
		}
		in.I2 = i2
		in.Clucount++
	}

	siRefs, err := fs.readRefCluster(in.I2)
	if err != nil {
		return err
	}
	si := siRefs[siIdx]

	if si == NullCluster {
		if op == OpGet {
			*out = NullCluster
			return nil
		}
		if op != OpAlloc {
			return newErr(opName, KindNotFound)
		}
		newSi, err := fs.allocDataCluster()
		if err != nil {
			return err
		}
		if err := fs.writeCiu(newSi, nInode); err != nil {
			return err
		}
		blank := make([]uint32, RPC)
		for i := range blank {
			blank[i] = NullCluster
		}
		if err := fs.writeRefCluster(newSi, blank); err != nil {
			return err
		}
		siRefs[siIdx] = newSi
		if err := fs.writeRefCluster(in.I2, siRefs); err != nil {
			return err
		}
		in.Clucount++
		si = newSi
	}

	refs, err := fs.readRefCluster(si)
	if err != nil {
		return err
	}
	cur := refs[dIdx]

	switch op {
	case OpGet:
		*out = cur
		return nil
	case OpAlloc:
		if cur != NullCluster {
			return newErr(opName, KindExists)
		}
		c, err := fs.allocDataCluster()
		if err != nil {
			return err
		}
		if err := fs.writeCiu(c, nInode); err != nil {
			return err
		}
		refs[dIdx] = c
		if err := fs.writeRefCluster(si, refs); err != nil {
			return err
		}
		in.Clucount++
		if out != nil {
			*out = c
		}
		return fs.writeInode(nInode, in)
	default:
		if cur == NullCluster {
			return newErr(opName, KindNotFound)
		}
		if op == OpFree || op == OpFreeClean {
			if err := fs.freeDataCluster(cur); err != nil {
				return err
			}
		}
		if op == OpFreeClean || op == OpClean {
			if err := fs.writeCiu(cur, NullInode); err != nil {
				return err
			}
			refs[dIdx] = NullCluster
			if err := fs.writeRefCluster(si, refs); err != nil {
				return err
			}
			in.Clucount--
			if allNull(refs) {
				if err := fs.freeAndUnmap(si); err != nil {
					return err
				}
				siRefs[siIdx] = NullCluster
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
			return fs.writeInode(nInode, in)
		}
		return nil
	}
}

// handleFileClusters implements the bulk variant of §4.5: repeatedly
// locate the highest still-occupied chain slot at or above clustIndIn and
// apply op to it, until none remain.
func (fs *FileSystem) handleFileClusters(nInode uint32, clustIndIn uint32, op FileClusterOp) error {
	// OpFree is excluded here on purpose: it frees a slot's cluster but
	// leaves the chain reference in place (dirty), so highestOccupiedSlot
	// would keep finding the same slot and this loop would never
	// terminate. OpFree is only meaningful as a single targeted
	// handleFileCluster call, never as the bulk walk below.
	if op != OpFreeClean && op != OpClean {
		return newErr("handleFileClusters", KindInvalid)
	}
	for {
		idx, found, err := fs.highestOccupiedSlot(nInode, clustIndIn)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		var out uint32
		if err := fs.handleFileCluster(nInode, idx, op, &out); err != nil {
			return err
		}
	}
}

func (fs *FileSystem) highestOccupiedSlot(nInode uint32, floor uint32) (uint32, bool, error) {
	in, err := fs.readInode(nInode)
	if err != nil {
		return 0, false, err
	}

	doubleBase := uint32(NDirect + RPC)
	if in.I2 != NullCluster && floor < doubleBase+RPC*RPC {
		siRefs, err := fs.readRefCluster(in.I2)
		if err != nil {
			return 0, false, err
		}
		for si := int(RPC) - 1; si >= 0; si-- {
			base := doubleBase + uint32(si)*RPC
			if base+RPC <= floor {
				break
			}
			if siRefs[si] == NullCluster {
				continue
			}
			refs, err := fs.readRefCluster(siRefs[si])
			if err != nil {
				return 0, false, err
			}
			for d := int(RPC) - 1; d >= 0; d-- {
				ci := base + uint32(d)
				if ci < floor {
					break
				}
				if refs[d] != NullCluster {
					return ci, true, nil
				}
			}
		}
	}

	if in.I1 != NullCluster && floor < NDirect+RPC {
		refs, err := fs.readRefCluster(in.I1)
		if err != nil {
			return 0, false, err
		}
		for d := int(RPC) - 1; d >= 0; d-- {
			ci := uint32(NDirect) + uint32(d)
			if ci < floor {
				break
			}
			if refs[d] != NullCluster {
				return ci, true, nil
			}
		}
	}

	for d := NDirect - 1; d >= 0; d-- {
		ci := uint32(d)
		if ci < floor {
			break
		}
		if in.D[d] != NullCluster {
			return ci, true, nil
		}
	}

	return 0, false, nil
}

// readFileCluster implements §4.5 readFileCluster.
func (fs *FileSystem) readFileCluster(nInode uint32, clustInd uint32, buf []byte) error {
	var logical uint32
	if err := fs.handleFileCluster(nInode, clustInd, OpGet, &logical); err != nil {
		return err
	}
	if logical == NullCluster {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	data, err := fs.readDataCluster(logical)
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

// writeFileCluster implements §4.5 writeFileCluster.
func (fs *FileSystem) writeFileCluster(nInode uint32, clustInd uint32, buf []byte) error {
	var logical uint32
	if err := fs.handleFileCluster(nInode, clustInd, OpGet, &logical); err != nil {
		return err
	}
	if logical == NullCluster {
		if err := fs.handleFileCluster(nInode, clustInd, OpAlloc, &logical); err != nil {
			return err
		}
	}
	return fs.writeDataCluster(logical, buf)
}
