// Package dir implements directories on top of inodes: a directory's content
// is an array of Dirents, entry 0 is "." and entry 1 is "..". Removing an
// entry leaves a tombstone; the directory is compacted once tombstones are
// more than half of its entries.
package dir

import (
	"fmt"
	"sort"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/util"
)

// Read returns every slot of dip, tombstones included.
func Read(t *inode.Table, dip *inode.Inode) ([]Dirent, error) {
	if !dip.IsDir() {
		return nil, fmt.Errorf("%w: inode %d is not a directory",
			common.ErrWrongType, dip.Inum)
	}
	data, err := t.Read(dip, 0, dip.Size)
	if err != nil {
		return nil, err
	}
	n := uint64(len(data)) / common.DIRENTSZ
	ents := make([]Dirent, 0, n)
	for i := uint64(0); i < n; i++ {
		off := i * common.DIRENTSZ
		ents = append(ents, decodeDirent(data[off:off+common.DIRENTSZ],
			t.NInodes()))
	}
	return ents, nil
}

// Lookup finds the first live entry called name.
func Lookup(t *inode.Table, dip *inode.Inode, name string) (common.Inum, bool, error) {
	ents, err := Read(t, dip)
	if err != nil {
		return 0, false, err
	}
	for _, de := range ents {
		if !de.Deleted && de.Name == name {
			return de.Inum, true, nil
		}
	}
	return 0, false, nil
}

// Link appends an entry for inum to dip.
func Link(t *inode.Table, dip *inode.Inode, name string, inum common.Inum) error {
	if !dip.IsDir() {
		return fmt.Errorf("%w: inode %d is not a directory",
			common.ErrWrongType, dip.Inum)
	}
	de := Dirent{Inum: inum, Name: name}
	_, err := t.Write(dip, dip.Size, encodeDirent(de, t.NInodes()))
	return err
}

// Unlink tombstones every entry of dip that refers to inum, compacting the
// directory when tombstones make up more than half of it.
func Unlink(t *inode.Table, dip *inode.Inode, inum common.Inum) error {
	ents, err := Read(t, dip)
	if err != nil {
		return err
	}
	ninodes := t.NInodes()
	var tomb uint64
	for i := range ents {
		if ents[i].Deleted {
			tomb++
			continue
		}
		if ents[i].Inum != inum {
			continue
		}
		ents[i].Deleted = true
		tomb++
		off := uint64(i) * common.DIRENTSZ
		_, err := t.Write(dip, off, encodeDirent(ents[i], ninodes))
		if err != nil {
			return err
		}
	}
	if 2*tomb <= uint64(len(ents)) {
		return nil
	}
	return compact(t, dip, ents)
}

func compact(t *inode.Table, dip *inode.Inode, ents []Dirent) error {
	data := make([]byte, 0, uint64(len(ents))*common.DIRENTSZ)
	for _, de := range ents {
		if de.Deleted {
			continue
		}
		data = append(data, encodeDirent(de, t.NInodes())...)
	}
	util.DPrintf(5, "compact: dir %d from %d to %d entries\n", dip.Inum,
		len(ents), uint64(len(data))/common.DIRENTSZ)
	dip.Size = uint64(len(data))
	if _, err := t.Write(dip, 0, data); err != nil {
		return err
	}
	return t.Shrink(dip)
}

// An Entry describes one listed directory member.
type Entry struct {
	Name  string
	Kind  common.Kind
	Uid   common.Uid
	Mode  uint32
	Mtime uint64
	Size  uint64
}

// List returns the live members of dip other than "." and "..", keeping
// only those visible reports true for. Directories sort before files, then
// by name.
func List(t *inode.Table, dip *inode.Inode, visible func(ip *inode.Inode) bool) ([]Entry, error) {
	ents, err := Read(t, dip)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, de := range ents {
		if de.Deleted || de.Name == "." || de.Name == ".." {
			continue
		}
		ip, err := t.Get(de.Inum)
		if err != nil {
			util.DPrintf(0, "List: dir %d entry %q: %v\n", dip.Inum, de.Name, err)
			continue
		}
		if visible != nil && !visible(ip) {
			continue
		}
		out = append(out, Entry{
			Name:  de.Name,
			Kind:  ip.Kind,
			Uid:   ip.Uid,
			Mode:  ip.Mode,
			Mtime: ip.Mtime,
			Size:  ip.Size,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind == common.KindDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// IsEmpty reports whether dip has no live entries besides "." and "..".
func IsEmpty(t *inode.Table, dip *inode.Inode) (bool, error) {
	ents, err := Read(t, dip)
	if err != nil {
		return false, err
	}
	for _, de := range ents {
		if de.Deleted || de.Name == "." || de.Name == ".." {
			continue
		}
		return false, nil
	}
	return true, nil
}

// Parent returns the inode number stored in the ".." entry of dip.
func Parent(t *inode.Table, dip *inode.Inode) (common.Inum, error) {
	ents, err := Read(t, dip)
	if err != nil {
		return 0, err
	}
	if len(ents) < 2 || ents[1].Deleted {
		return 0, fmt.Errorf("%w: dir %d has no parent entry",
			common.ErrInvalidInode, dip.Inum)
	}
	return ents[1].Inum, nil
}

// NameOf returns the name under which dip lists inum.
func NameOf(t *inode.Table, dip *inode.Inode, inum common.Inum) (string, bool, error) {
	ents, err := Read(t, dip)
	if err != nil {
		return "", false, err
	}
	for _, de := range ents {
		if de.Deleted || de.Name == "." || de.Name == ".." {
			continue
		}
		if de.Inum == inum {
			return de.Name, true, nil
		}
	}
	return "", false, nil
}

// Create allocates an inode of the given kind, owned by uid, and enters it
// in parent under name. A directory gets "." and ".." entries. When the new
// inode is parent itself (the root at format time) no entry is added.
func Create(t *inode.Table, kind common.Kind, name string, parent common.Inum,
	uid common.Uid, mode uint32) (*inode.Inode, error) {
	ip, err := t.Alloc(kind)
	if err != nil {
		return nil, err
	}
	ip.Mode = mode & common.ModeMask
	ip.Uid = uid
	ip.Links = 1
	if kind == common.KindDir {
		ents := append(encodeDirent(Dirent{Inum: ip.Inum, Name: "."}, t.NInodes()),
			encodeDirent(Dirent{Inum: parent, Name: ".."}, t.NInodes())...)
		_, err = t.Write(ip, 0, ents)
	} else {
		err = t.Update(ip)
	}
	if err == nil && parent != ip.Inum {
		var pip *inode.Inode
		pip, err = t.Get(parent)
		if err == nil {
			err = Link(t, pip, name, ip.Inum)
		}
	}
	if err != nil {
		discard(t, ip)
		return nil, err
	}
	util.DPrintf(1, "Create: %v %q inode %d in dir %d\n", kind, name, ip.Inum,
		parent)
	return ip, nil
}

func discard(t *inode.Table, ip *inode.Inode) {
	if err := t.Truncate(ip); err != nil {
		util.DPrintf(0, "Create: cannot release blocks of %d: %v\n", ip.Inum, err)
	}
	if err := t.Free(ip); err != nil {
		util.DPrintf(0, "Create: cannot release inode %d: %v\n", ip.Inum, err)
	}
}
