// Package inode implements the inode layer: fixed-size inode records packed
// into the inode table, and the block-address tree (direct, single-indirect
// and double-indirect) that maps file offsets to disk blocks.
//
// An *Inode is an owned working copy. Nothing is cached: every Get reads the
// table, and two copies of the same inode are independent snapshots where the
// last Update wins.
package inode

import (
	"fmt"
	"time"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/buf"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

type Inode struct {
	Inum   common.Inum
	Kind   common.Kind
	Mode   uint32
	Uid    common.Uid
	Links  uint32
	Mtime  uint64
	Size   uint64 // in bytes
	Blocks uint64 // data blocks held; may exceed what Size needs
	addrs  [common.NADDRS]common.Bnum
}

func (ip *Inode) IsDir() bool {
	return ip.Kind == common.KindDir
}

func (ip *Inode) String() string {
	return fmt.Sprintf("inode %d (%v size %d blocks %d)", ip.Inum, ip.Kind,
		ip.Size, ip.Blocks)
}

func (ip *Inode) encode() []byte {
	// kind, mode, uid and links are 32-bit fields, packed two per word
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Kind) | uint64(ip.Mode)<<32)
	enc.PutInt(uint64(ip.Uid) | uint64(ip.Links)<<32)
	enc.PutInt(ip.Mtime)
	enc.PutInt(ip.Size)
	enc.PutInt(ip.Blocks)
	enc.PutInts(ip.addrs[:])
	return enc.Finish()
}

func decode(inum common.Inum, data []byte) *Inode {
	ip := &Inode{Inum: inum}
	dec := marshal.NewDec(data)
	w := dec.GetInt()
	ip.Kind = common.Kind(uint32(w))
	ip.Mode = uint32(w >> 32)
	w = dec.GetInt()
	ip.Uid = common.Uid(uint32(w))
	ip.Links = uint32(w >> 32)
	ip.Mtime = dec.GetInt()
	ip.Size = dec.GetInt()
	ip.Blocks = dec.GetInt()
	copy(ip.addrs[:], dec.GetInts(common.NADDRS))
	return ip
}

// Table is the inode table of a volume.
type Table struct {
	d       disk.Disk
	bs      BlockStore
	start   common.Bnum
	ninodes uint64
}

func MkTable(d disk.Disk, bs BlockStore, start common.Bnum, ninodes uint64) *Table {
	return &Table{d: d, bs: bs, start: start, ninodes: ninodes}
}

func (t *Table) NInodes() uint64 {
	return t.ninodes
}

// Init zeroes the inode table, marking every inode free.
func (t *Table) Init() error {
	nblk := util.RoundUp(t.ninodes, common.INODEBLK)
	for i := uint64(0); i < nblk; i++ {
		err := t.d.Write(t.start+i, make(disk.Block, disk.BlockSize))
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) load(inum common.Inum) (*buf.Buf, addr.Addr, error) {
	a := addr.MkInodeAddr(t.start, inum)
	b, err := buf.MkBufLoad(t.d, a.Blkno)
	if err != nil {
		return nil, a, err
	}
	return b, a, nil
}

// Get loads inode inum.
func (t *Table) Get(inum common.Inum) (*Inode, error) {
	if uint64(inum) >= t.ninodes {
		return nil, fmt.Errorf("%w: %d", common.ErrInvalidInode, inum)
	}
	b, a, err := t.load(inum)
	if err != nil {
		return nil, err
	}
	ip := decode(inum, b.Object(a, common.INODESZ))
	if ip.Kind == common.KindFree {
		util.DPrintf(1, "Get: inode %d not in use\n", inum)
		return nil, fmt.Errorf("%w: %d is free", common.ErrInvalidInode, inum)
	}
	return ip, nil
}

// Alloc claims the first free inode and marks it as kind on disk. The caller
// initializes the remaining fields and calls Update.
func (t *Table) Alloc(kind common.Kind) (*Inode, error) {
	nblk := util.RoundUp(t.ninodes, common.INODEBLK)
	for i := uint64(0); i < nblk; i++ {
		b, err := buf.MkBufLoad(t.d, t.start+i)
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < common.INODEBLK; j++ {
			inum := common.Inum(i*common.INODEBLK + j)
			if uint64(inum) >= t.ninodes {
				break
			}
			a := addr.MkInodeAddr(t.start, inum)
			old := decode(inum, b.Object(a, common.INODESZ))
			if old.Kind != common.KindFree {
				continue
			}
			ip := &Inode{Inum: inum, Kind: kind}
			b.Install(a, ip.encode())
			err = b.WriteDirect(t.d)
			if err != nil {
				return nil, err
			}
			util.DPrintf(5, "Alloc: inode %d %v\n", inum, kind)
			return ip, nil
		}
	}
	util.DPrintf(0, "Alloc: no free inodes\n")
	return nil, common.ErrOutOfInodes
}

func (t *Table) store(ip *Inode) error {
	b, a, err := t.load(ip.Inum)
	if err != nil {
		return err
	}
	b.Install(a, ip.encode())
	return b.WriteDirect(t.d)
}

// Update writes ip back to the table, stamping the modification time.
func (t *Table) Update(ip *Inode) error {
	ip.Mtime = uint64(time.Now().Unix())
	return t.store(ip)
}

// Free returns the inode slot to the table. Its blocks must already have
// been released with Truncate.
func (t *Table) Free(ip *Inode) error {
	util.DPrintf(5, "Free: inode %d\n", ip.Inum)
	return t.store(&Inode{Inum: ip.Inum, Kind: common.KindFree})
}
