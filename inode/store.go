package inode

import (
	"github.com/mit-pdos/go-blockfs/alloc"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
)

// BlockStore is what the inode layer needs from the layers below it: block
// I/O for data and pointer blocks, and block allocation. Alloc must return a
// zero-filled block.
type BlockStore interface {
	Read(bn common.Bnum) (disk.Block, error)
	Write(bn common.Bnum, blk disk.Block) error
	Alloc() (common.Bnum, error)
	Free(bn common.Bnum) error
}

// DevStore is the BlockStore of a real volume: a disk and its bitmap
// allocator.
type DevStore struct {
	d disk.Disk
	a *alloc.Alloc
}

func MkDevStore(d disk.Disk, a *alloc.Alloc) *DevStore {
	return &DevStore{d: d, a: a}
}

func (s *DevStore) Read(bn common.Bnum) (disk.Block, error) {
	return s.d.Read(bn)
}

func (s *DevStore) Write(bn common.Bnum, blk disk.Block) error {
	return s.d.Write(bn, blk)
}

func (s *DevStore) Alloc() (common.Bnum, error) {
	return s.a.AllocNum()
}

func (s *DevStore) Free(bn common.Bnum) error {
	return s.a.FreeNum(bn)
}
