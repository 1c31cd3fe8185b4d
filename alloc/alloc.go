package alloc

import (
	"fmt"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/buf"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

// Alloc uses the on-disk bitmap to allocate and free block numbers. Bit n
// corresponds to block n; a set bit means in use. Every call reads and writes
// at most one bitmap block, and nothing is cached in memory: callers
// serialize access.
type Alloc struct {
	d     disk.Disk
	start common.Bnum // first bitmap block
	len   uint64      // number of bitmap blocks
	max   uint64      // numbers at or above max are never handed out
}

func MkAlloc(d disk.Disk, start common.Bnum, len uint64, max uint64) *Alloc {
	if max > len*common.NBITBLOCK {
		panic("MkAlloc: bitmap too small")
	}
	a := &Alloc{
		d:     d,
		start: start,
		len:   len,
		max:   max,
	}
	return a
}

// MarkInit rewrites the whole bitmap so that exactly the numbers below n
// are in use. Format uses it to reserve the metadata blocks.
func (a *Alloc) MarkInit(n uint64) error {
	util.DPrintf(1, "MarkInit: [0, %d)\n", n)
	for i := uint64(0); i < a.len; i++ {
		b := buf.MkBuf(a.start+i, make(disk.Block, disk.BlockSize))
		for bit := uint64(0); bit < common.NBITBLOCK; bit++ {
			num := i*common.NBITBLOCK + bit
			if num >= n {
				break
			}
			b.BitSet(addr.MkBitAddr(a.start, num), true)
		}
		err := b.WriteDirect(a.d)
		if err != nil {
			return err
		}
	}
	return nil
}

// AllocNum returns the lowest free number, marks it used and zero-fills the
// block it names.
func (a *Alloc) AllocNum() (common.Bnum, error) {
	for i := uint64(0); i < a.len; i++ {
		b, err := buf.MkBufLoad(a.d, a.start+i)
		if err != nil {
			return 0, err
		}
		for bit := uint64(0); bit < common.NBITBLOCK; bit++ {
			num := i*common.NBITBLOCK + bit
			if num >= a.max {
				break
			}
			ba := addr.MkBitAddr(a.start, num)
			if b.BitGet(ba) {
				continue
			}
			b.BitSet(ba, true)
			err = b.WriteDirect(a.d)
			if err != nil {
				return 0, err
			}
			err = a.d.Write(num, make(disk.Block, disk.BlockSize))
			if err != nil {
				return 0, err
			}
			util.DPrintf(10, "AllocNum: %d\n", num)
			return num, nil
		}
	}
	util.DPrintf(0, "AllocNum: out of blocks\n")
	return 0, common.ErrOutOfSpace
}

// FreeNum clears the bit of num. Freeing a free number is reported but not
// treated as an error.
func (a *Alloc) FreeNum(num common.Bnum) error {
	if num == 0 || num >= a.max {
		return fmt.Errorf("%w: free block %d", common.ErrInvalidArguments, num)
	}
	ba := addr.MkBitAddr(a.start, num)
	b, err := buf.MkBufLoad(a.d, ba.Blkno)
	if err != nil {
		return err
	}
	if !b.BitGet(ba) {
		util.DPrintf(0, "FreeNum: freeing free block %d\n", num)
	}
	b.BitSet(ba, false)
	util.DPrintf(10, "FreeNum: %d\n", num)
	return b.WriteDirect(a.d)
}

// IsUsed reports whether num is marked in use.
func (a *Alloc) IsUsed(num common.Bnum) (bool, error) {
	ba := addr.MkBitAddr(a.start, num)
	b, err := buf.MkBufLoad(a.d, ba.Blkno)
	if err != nil {
		return false, err
	}
	return b.BitGet(ba), nil
}

func popCnt(b byte) uint64 {
	var count uint64
	var x = b
	for i := uint64(0); i < 8; i++ {
		count += uint64(x & 1)
		x = x >> 1
	}
	return count
}

// NumFree counts the free numbers below max.
func (a *Alloc) NumFree() (uint64, error) {
	var used uint64
	for i := uint64(0); i < a.len; i++ {
		b, err := buf.MkBufLoad(a.d, a.start+i)
		if err != nil {
			return 0, err
		}
		for _, x := range b.Blk {
			used += popCnt(x)
		}
	}
	return a.max - used, nil
}
