package inode

import (
	"github.com/mit-pdos/go-blockfs/buf"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

type mapOp int

const (
	opLookup mapOp = iota // report the block, never allocate
	opAlloc               // allocate missing pointer and data blocks
	opUnmap               // clear the leaf pointer and report what it held
)

// span is the number of data blocks below one pointer at depth d.
func span(depth uint64) uint64 {
	n := uint64(1)
	for i := uint64(1); i < depth; i++ {
		n *= common.APB
	}
	return n
}

// walk resolves idx below *slot, which roots a tree of the given depth
// (0 means *slot is the data block itself). Pointer blocks are updated on
// disk when a child pointer changes; a change to *slot itself is left to the
// caller.
func (t *Table) walk(slot *common.Bnum, depth uint64, idx uint64, op mapOp) (common.Bnum, error) {
	if *slot == common.NULLBNUM {
		if op != opAlloc {
			return common.NULLBNUM, nil
		}
		bn, err := t.bs.Alloc()
		if err != nil {
			return common.NULLBNUM, err
		}
		*slot = bn
	}
	if depth == 0 {
		bn := *slot
		if op == opUnmap {
			*slot = common.NULLBNUM
		}
		return bn, nil
	}

	blk, err := t.bs.Read(*slot)
	if err != nil {
		return common.NULLBNUM, err
	}
	b := buf.MkBuf(*slot, blk)
	s := span(depth)
	off := (idx / s) * common.BNUMSZ
	child := b.BnumGet(off)
	bn, err := t.walk(&child, depth-1, idx%s, op)
	if child != b.BnumGet(off) {
		b.BnumPut(off, child)
		if werr := t.bs.Write(b.Blkno, b.Blk); werr != nil && err == nil {
			err = werr
		}
	}
	return bn, err
}

func (t *Table) bmap(ip *Inode, lbn uint64, op mapOp) (common.Bnum, error) {
	if lbn < common.NDIRECT {
		return t.walk(&ip.addrs[lbn], 0, 0, op)
	}
	lbn -= common.NDIRECT
	if lbn < common.APB {
		return t.walk(&ip.addrs[common.SINDIRECT], 1, lbn, op)
	}
	lbn -= common.APB
	if lbn < common.APB*common.APB {
		return t.walk(&ip.addrs[common.DINDIRECT], 2, lbn, op)
	}
	return common.NULLBNUM, common.ErrFileTooLarge
}

// MapBlock returns the disk block holding logical block lbn of ip,
// allocating it and any pointer blocks on the way. New pointers in ip
// itself reach disk with the next Update.
func (t *Table) MapBlock(ip *Inode, lbn uint64) (common.Bnum, error) {
	return t.bmap(ip, lbn, opAlloc)
}

// LookupBlock is MapBlock without allocation; ok is false for a hole.
func (t *Table) LookupBlock(ip *Inode, lbn uint64) (common.Bnum, bool, error) {
	bn, err := t.bmap(ip, lbn, opLookup)
	if err != nil {
		return common.NULLBNUM, false, err
	}
	return bn, bn != common.NULLBNUM, nil
}

// Shrink releases blocks past the end of the file, but only once the file
// needs half or less of what it holds. Pointer blocks are not reclaimed.
func (t *Table) Shrink(ip *Inode) error {
	need := util.RoundUp(ip.Size, disk.BlockSize)
	if need > ip.Blocks/2 {
		return nil
	}
	util.DPrintf(5, "Shrink: inode %d from %d to %d blocks\n", ip.Inum,
		ip.Blocks, need)
	for lbn := ip.Blocks; lbn > need; lbn-- {
		bn, err := t.bmap(ip, lbn-1, opUnmap)
		if err != nil {
			return err
		}
		if bn == common.NULLBNUM {
			continue
		}
		if err := t.bs.Free(bn); err != nil {
			return err
		}
	}
	ip.Blocks = need
	return t.Update(ip)
}

func (t *Table) freeTree(bn common.Bnum, depth uint64) error {
	if bn == common.NULLBNUM {
		return nil
	}
	if depth > 0 {
		blk, err := t.bs.Read(bn)
		if err != nil {
			return err
		}
		b := buf.MkBuf(bn, blk)
		for i := uint64(0); i < common.APB; i++ {
			err := t.freeTree(b.BnumGet(i*common.BNUMSZ), depth-1)
			if err != nil {
				return err
			}
		}
	}
	return t.bs.Free(bn)
}

// Truncate frees every data and pointer block of ip and resets its size.
func (t *Table) Truncate(ip *Inode) error {
	for i := uint64(0); i < common.NADDRS; i++ {
		depth := uint64(0)
		if i == common.SINDIRECT {
			depth = 1
		} else if i == common.DINDIRECT {
			depth = 2
		}
		if err := t.freeTree(ip.addrs[i], depth); err != nil {
			return err
		}
		ip.addrs[i] = common.NULLBNUM
	}
	ip.Size = 0
	ip.Blocks = 0
	return t.Update(ip)
}
