package sofs

import "fmt"

// Violation describes one consistency fault found by Check.
type Violation struct {
	Area    string
	Detail  string
	NInode  uint32
	Cluster uint32
}

func (v Violation) String() string {
	switch {
	case v.NInode != NullInode && v.Cluster != NullCluster:
		return fmt.Sprintf("%s: %s (inode %d, cluster %d)", v.Area, v.Detail, v.NInode, v.Cluster)
	case v.NInode != NullInode:
		return fmt.Sprintf("%s: %s (inode %d)", v.Area, v.Detail, v.NInode)
	case v.Cluster != NullCluster:
		return fmt.Sprintf("%s: %s (cluster %d)", v.Area, v.Detail, v.Cluster)
	default:
		return fmt.Sprintf("%s: %s", v.Area, v.Detail)
	}
}

// Check implements §4.10: an exhaustive, non-short-circuiting consistency
// sweep of an open volume, grounded on the free-inode-chain and
// bitmap/map-agreement invariants from §8.
func Check(fs *FileSystem) ([]Violation, error) {
	var v []Violation

	chainViol, err := checkFreeInodeChain(fs)
	if err != nil {
		return nil, err
	}
	v = append(v, chainViol...)

	ownership := make([]uint32, fs.sb.DzoneTotal) // NullInode sentinel per cluster
	for i := range ownership {
		ownership[i] = NullInode
	}

	for n := uint32(0); n < fs.sb.Itotal; n++ {
		in, err := fs.readInode(n)
		if err != nil {
			return nil, err
		}
		if in.Free() {
			continue
		}
		cv, err := checkInode(fs, n, in, ownership)
		if err != nil {
			return nil, err
		}
		v = append(v, cv...)
	}

	bitmapViol, err := checkBitmapAgreement(fs, ownership)
	if err != nil {
		return nil, err
	}
	v = append(v, bitmapViol...)

	return v, nil
}

func checkFreeInodeChain(fs *FileSystem) ([]Violation, error) {
	var v []Violation
	seen := make(map[uint32]bool)
	n := fs.sb.Ihead
	prev := uint32(NullInode)
	count := uint32(0)
	for n != NullInode {
		if seen[n] {
			v = append(v, Violation{Area: "free-inode-chain", Detail: "cycle detected", NInode: n})
			break
		}
		seen[n] = true
		in, err := fs.readInode(n)
		if err != nil {
			return nil, err
		}
		if !in.Free() {
			v = append(v, Violation{Area: "free-inode-chain", Detail: "chained inode is not marked free", NInode: n})
		}
		if in.VD1 != prev {
			v = append(v, Violation{Area: "free-inode-chain", Detail: "prev link mismatch", NInode: n})
		}
		prev = n
		n = in.VD2
		count++
	}
	if prev != fs.sb.Itail && !(fs.sb.Ifree == 0 && fs.sb.Itail == NullInode) {
		v = append(v, Violation{Area: "free-inode-chain", Detail: "tail pointer does not match chain end"})
	}
	if count != fs.sb.Ifree {
		v = append(v, Violation{Area: "free-inode-chain", Detail: "chain length does not match Ifree"})
	}
	return v, nil
}

func checkInode(fs *FileSystem, n uint32, in *Inode, ownership []uint32) ([]Violation, error) {
	var v []Violation

	if in.Type() == TypeDir {
		if in.Size%ClusterSize != 0 {
			v = append(v, Violation{Area: "inode", Detail: "directory size is not a multiple of ClusterSize", NInode: n})
		}
		if n != 0 {
			dot, _, err := fs.getDirEntryByName(n, ".", Root)
			if err != nil || dot != n {
				v = append(v, Violation{Area: "inode", Detail: "directory missing valid '.' entry", NInode: n})
			}
		}
	}

	clusters, err := collectInodeClusters(fs, in)
	if err != nil {
		return nil, err
	}
	if uint32(len(clusters)) != in.Clucount {
		v = append(v, Violation{Area: "inode", Detail: "clucount does not match reachable cluster count", NInode: n})
	}
	for _, c := range clusters {
		if c >= uint32(len(ownership)) {
			v = append(v, Violation{Area: "inode", Detail: "cluster reference out of range", NInode: n, Cluster: c})
			continue
		}
		if ownership[c] != NullInode {
			v = append(v, Violation{Area: "inode", Detail: "cluster claimed by more than one inode", NInode: n, Cluster: c})
			continue
		}
		ownership[c] = n
		owner, err := fs.readCiu(c)
		if err != nil {
			return nil, err
		}
		if owner != n {
			v = append(v, Violation{Area: "inode", Detail: "cluster-to-inode map disagrees with chain owner", NInode: n, Cluster: c})
		}
	}
	return v, nil
}

func collectInodeClusters(fs *FileSystem, in *Inode) ([]uint32, error) {
	var out []uint32
	for _, d := range in.D {
		if d != NullCluster {
			out = append(out, d)
		}
	}
	if in.I1 != NullCluster {
		out = append(out, in.I1)
		refs, err := fs.readRefCluster(in.I1)
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			if r != NullCluster {
				out = append(out, r)
			}
		}
	}
	if in.I2 != NullCluster {
		out = append(out, in.I2)
		siRefs, err := fs.readRefCluster(in.I2)
		if err != nil {
			return nil, err
		}
		for _, si := range siRefs {
			if si == NullCluster {
				continue
			}
			out = append(out, si)
			refs, err := fs.readRefCluster(si)
			if err != nil {
				return nil, err
			}
			for _, r := range refs {
				if r != NullCluster {
					out = append(out, r)
				}
			}
		}
	}
	return out, nil
}

func checkBitmapAgreement(fs *FileSystem, ownership []uint32) ([]Violation, error) {
	var v []Violation
	cached := make(map[uint32]bool)
	for i := fs.sb.DzoneRetrievIdx; i < DzoneCacheSize; i++ {
		cached[fs.sb.DzoneRetrievCache[i]] = true
	}
	for i := uint32(0); i < fs.sb.DzoneInsertIdx; i++ {
		cached[fs.sb.DzoneInsertCache[i]] = true
	}

	for ref := uint32(0); ref < fs.sb.DzoneTotal; ref++ {
		free, err := fs.bitmapGet(ref)
		if err != nil {
			return nil, err
		}
		owned := ownership[ref] != NullInode
		inCache := cached[ref]

		states := 0
		if free {
			states++
		}
		if owned {
			states++
		}
		if inCache {
			states++
		}
		if states > 1 {
			v = append(v, Violation{Area: "bitmap", Detail: "cluster is claimed by more than one of {free, owned, cached}", Cluster: ref})
		}
		if states == 0 {
			v = append(v, Violation{Area: "bitmap", Detail: "cluster is neither free, owned, nor cached", Cluster: ref})
		}
	}
	return v, nil
}
