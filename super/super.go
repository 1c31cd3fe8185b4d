// Package super holds the volume superblock: the layout of the disk, computed
// once at format time, and the table of remembered user sessions.
//
// Disk layout:
//
//	superblock | bitmap | inode table | data
package super

import (
	"fmt"
	"time"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

const SUPERBLK common.Bnum = 0

// Record is one remembered session: the working directory of a user.
type Record struct {
	Uid common.Uid
	Cwd common.Inum
}

type FsSuper struct {
	Magic      uint64
	Size       uint64 // in blocks
	NBlocks    uint64 // blocks available to files
	NInodes    uint64
	BmapStart  common.Bnum
	InodeStart common.Bnum
	DataStart  common.Bnum
	LastModify uint64
	Users      [common.MAXUSER]Record
}

// NBitmapBlocks is the number of bitmap blocks a volume of sz blocks needs.
func NBitmapBlocks(sz uint64) uint64 {
	return sz/common.NBITBLOCK + 1
}

// DefaultInodes is the inode count used when format is not given one.
func DefaultInodes(sz uint64) uint64 {
	return sz / 2
}

// MkFsSuper computes the layout of a fresh volume of sz blocks with ninodes
// inodes.
func MkFsSuper(sz uint64, ninodes uint64) (*FsSuper, error) {
	if ninodes == 0 || ninodes >= 1<<32 {
		return nil, fmt.Errorf("%w: %d inodes", common.ErrInvalidArguments, ninodes)
	}
	nbitmap := NBitmapBlocks(sz)
	ninodeblk := util.RoundUp(ninodes, common.INODEBLK)
	nmeta := 1 + nbitmap + ninodeblk
	if sz <= nmeta {
		return nil, fmt.Errorf("%w: %d blocks cannot hold %d metadata blocks",
			common.ErrInvalidArguments, sz, nmeta)
	}
	fs := &FsSuper{
		Magic:      common.MAGIC,
		Size:       sz,
		NBlocks:    sz - nmeta,
		NInodes:    ninodes,
		BmapStart:  1,
		InodeStart: 1 + nbitmap,
		DataStart:  nmeta,
	}
	return fs, nil
}

func (fs *FsSuper) Formatted() bool {
	return fs.Magic == common.MAGIC
}

func (fs *FsSuper) NInodeBlocks() uint64 {
	return uint64(fs.DataStart - fs.InodeStart)
}

func (fs *FsSuper) NBitmapBlocks() uint64 {
	return uint64(fs.InodeStart - fs.BmapStart)
}

func (fs *FsSuper) Inum2Addr(inum common.Inum) addr.Addr {
	return addr.MkInodeAddr(fs.InodeStart, inum)
}

func (fs *FsSuper) Bnum2BitAddr(bn common.Bnum) addr.Addr {
	return addr.MkBitAddr(fs.BmapStart, uint64(bn))
}

// FindUser looks up the session record of uid.
func (fs *FsSuper) FindUser(uid common.Uid) (Record, bool) {
	for _, r := range fs.Users {
		if r.Uid == uid && uid != common.NOUID {
			return r, true
		}
	}
	return Record{}, false
}

// SaveUser records cwd for uid, claiming a free slot on first use. It
// returns false if the table is full.
func (fs *FsSuper) SaveUser(uid common.Uid, cwd common.Inum) bool {
	free := -1
	for i, r := range fs.Users {
		if r.Uid == uid {
			fs.Users[i].Cwd = cwd
			return true
		}
		if r.Uid == common.NOUID && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return false
	}
	fs.Users[free] = Record{Uid: uid, Cwd: cwd}
	return true
}

func (fs *FsSuper) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(fs.Magic)
	enc.PutInt(fs.Size)
	enc.PutInt(fs.NBlocks)
	enc.PutInt(fs.NInodes)
	enc.PutInt(fs.BmapStart)
	enc.PutInt(fs.InodeStart)
	enc.PutInt(fs.DataStart)
	enc.PutInt(fs.LastModify)
	for _, r := range fs.Users {
		enc.PutInt(uint64(r.Uid))
		enc.PutInt(uint64(r.Cwd))
	}
	return enc.Finish()
}

func Decode(blk disk.Block) *FsSuper {
	fs := &FsSuper{}
	dec := marshal.NewDec(blk)
	fs.Magic = dec.GetInt()
	fs.Size = dec.GetInt()
	fs.NBlocks = dec.GetInt()
	fs.NInodes = dec.GetInt()
	fs.BmapStart = dec.GetInt()
	fs.InodeStart = dec.GetInt()
	fs.DataStart = dec.GetInt()
	fs.LastModify = dec.GetInt()
	for i := range fs.Users {
		fs.Users[i].Uid = common.Uid(dec.GetInt())
		fs.Users[i].Cwd = common.Inum(dec.GetInt())
	}
	return fs
}

// Load reads the superblock of d. An unformatted disk loads fine; check
// Formatted before trusting the layout.
func Load(d disk.Disk) (*FsSuper, error) {
	blk, err := d.Read(SUPERBLK)
	if err != nil {
		return nil, fmt.Errorf("read superblock: %w", err)
	}
	return Decode(blk), nil
}

// Store writes fs to block 0, stamping the modification time.
func (fs *FsSuper) Store(d disk.Disk) error {
	fs.LastModify = uint64(time.Now().Unix())
	err := d.Write(SUPERBLK, fs.Encode())
	if err != nil {
		return fmt.Errorf("write superblock: %w", err)
	}
	return nil
}
