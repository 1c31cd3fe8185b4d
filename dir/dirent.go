package dir

import (
	"bytes"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/common"
)

// A Dirent is one 16-byte directory slot. On disk a deleted slot carries
// the inode number ninodes, which no real inode can have.
type Dirent struct {
	Inum    common.Inum
	Name    string
	Deleted bool
}

func encodeDirent(de Dirent, ninodes uint64) []byte {
	inum := uint64(de.Inum)
	if de.Deleted {
		inum = ninodes
	}
	// The inode number takes the low 32 bits of the first word; the name
	// fills the rest of the slot.
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt(inum & 0xffffffff)
	b := enc.Finish()
	copy(b[4:], de.Name)
	return b
}

func decodeDirent(data []byte, ninodes uint64) Dirent {
	dec := marshal.NewDec(data)
	inum := dec.GetInt() & 0xffffffff
	name := data[4:common.DIRENTSZ]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if inum == ninodes {
		return Dirent{Name: string(name), Deleted: true}
	}
	return Dirent{Inum: common.Inum(inum), Name: string(name)}
}

// ValidName reports whether name can be used for a new file or directory:
// non-empty, shorter than MAXNAME, no leading '.' and no '/'.
func ValidName(name string) bool {
	if name == "" || uint64(len(name)) >= common.MAXNAME {
		return false
	}
	if name[0] == '.' {
		return false
	}
	if strings.ContainsRune(name, '/') || strings.IndexByte(name, 0) >= 0 {
		return false
	}
	return true
}
