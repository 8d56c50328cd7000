package sofs

// accessGranted implements §4.6: opMask is a non-empty subset of
// {Read, Write, Exec}.
func (fs *FileSystem) accessGranted(in *Inode, proc Process, opMask Perm) error {
	const op = "accessGranted"
	if opMask == 0 {
		return newErr(op, KindInvalid)
	}

	if proc.UID == 0 {
		want := opMask &^ (Read | Write)
		if want == 0 {
			return nil
		}
		// Only Exec can remain; root needs some X bit set anywhere.
		if anyExecBit(in.Mode) {
			return nil
		}
		return newErr(op, KindAccess)
	}

	var bits uint16
	switch {
	case proc.UID == in.Owner:
		bits = (in.Mode >> 6) & 0x7
	case proc.GID == in.Group:
		bits = (in.Mode >> 3) & 0x7
	default:
		bits = in.Mode & 0x7
	}

	if uint16(opMask)&bits != uint16(opMask) {
		return newErr(op, KindAccess)
	}
	return nil
}

func anyExecBit(mode uint16) bool {
	return mode&(modeUserX|modeGroupX|modeOtherX) != 0
}
