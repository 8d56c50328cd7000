package sofs

import "strings"

const symlinkResolutionBudget = 1

// getDirEntryByPath implements §4.7 getDirEntryByPath: absolute path
// resolution with at most one symbolic-link hop along the entire call.
func (fs *FileSystem) getDirEntryByPath(ePath string, proc Process) (nInodeDir uint32, nInodeEnt uint32, err error) {
	budget := symlinkResolutionBudget
	return fs.resolveFrom(0, ePath, proc, &budget, true)
}

func splitComponents(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// resolveFrom resolves ePath starting at directory base. When
// requireAbsolute is true (the top-level call), ePath must begin with
// "/"; when false (resolving a symlink target), ePath may be relative to
// base.
func (fs *FileSystem) resolveFrom(base uint32, ePath string, proc Process, budget *int, requireAbsolute bool) (uint32, uint32, error) {
	const op = "getDirEntryByPath"
	if len(ePath) > MaxPath {
		return 0, 0, newErr(op, KindNameTooLong)
	}
	abs := strings.HasPrefix(ePath, "/")
	if requireAbsolute && !abs {
		return 0, 0, newErr(op, KindRelativePath)
	}

	cur := base
	if abs {
		cur = 0
	}

	comps := splitComponents(ePath)
	if len(comps) == 0 {
		return cur, cur, nil
	}

	for i, comp := range comps {
		if len(comp) > MaxName {
			return 0, 0, newErr(op, KindNameTooLong)
		}
		ent, _, err := fs.getDirEntryByName(cur, comp, proc)
		if err != nil {
			return 0, 0, err
		}

		entIn, err := fs.readInode(ent)
		if err != nil {
			return 0, 0, err
		}
		if entIn.Type() == TypeSymlink {
			if *budget == 0 {
				return 0, 0, newErr(op, KindLoop)
			}
			*budget--
			target, err := fs.readSymlinkTarget(ent)
			if err != nil {
				return 0, 0, err
			}
			_, resolved, err := fs.resolveFrom(cur, target, proc, budget, false)
			if err != nil {
				return 0, 0, err
			}
			ent = resolved
		}

		if i == len(comps)-1 {
			return cur, ent, nil
		}

		entIn, err = fs.readInode(ent)
		if err != nil {
			return 0, 0, err
		}
		if entIn.Type() != TypeDir {
			return 0, 0, newErr(op, KindNotDir)
		}
		cur = ent
	}
	return cur, cur, nil
}

// readSymlinkTarget reads the null-terminated target string stored in a
// symbolic link's first (and only) data cluster.
func (fs *FileSystem) readSymlinkTarget(nInode uint32) (string, error) {
	in, err := fs.readInode(nInode)
	if err != nil {
		return "", err
	}
	if in.Type() != TypeSymlink {
		return "", newErr("readSymlinkTarget", KindInvalid)
	}
	buf := make([]byte, ClusterSize)
	if err := fs.readFileCluster(nInode, 0, buf); err != nil {
		return "", err
	}
	return cstr(buf), nil
}

// writeSymlinkTarget writes target into a symbolic link's first data
// cluster as a null-terminated string.
func (fs *FileSystem) writeSymlinkTarget(nInode uint32, target string) error {
	if len(target) > ClusterSize-1 {
		return newErr("writeSymlinkTarget", KindNameTooLong)
	}
	buf := make([]byte, ClusterSize)
	copy(buf, target)
	if err := fs.writeFileCluster(nInode, 0, buf); err != nil {
		return err
	}
	in, err := fs.readInode(nInode)
	if err != nil {
		return err
	}
	in.Size = uint32(len(target))
	return fs.writeInode(nInode, in)
}
