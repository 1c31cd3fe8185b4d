package inode

import (
	"fmt"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

// Read returns up to n bytes of ip starting at off, clipped at the end of
// the file. Unmapped blocks read as zeros.
func (t *Table) Read(ip *Inode, off uint64, n uint64) ([]byte, error) {
	if off > ip.Size || util.SumOverflows(off, n) {
		return nil, fmt.Errorf("%w: read at %d of %d-byte file",
			common.ErrOffsetOutOfRange, off, ip.Size)
	}
	if off+n > ip.Size {
		n = ip.Size - off
	}
	data := make([]byte, 0, n)
	for uint64(len(data)) < n {
		boff := off % disk.BlockSize
		m := util.Min(n-uint64(len(data)), disk.BlockSize-boff)
		bn, ok, err := t.LookupBlock(ip, off/disk.BlockSize)
		if err != nil {
			return data, err
		}
		if ok {
			blk, err := t.bs.Read(bn)
			if err != nil {
				return data, err
			}
			data = append(data, blk[boff:boff+m]...)
		} else {
			data = append(data, make([]byte, m)...)
		}
		off += m
	}
	return data, nil
}

// Write stores data at off, growing the file when it extends past the end.
// Writing may not start beyond the end of the file. On a mid-write failure
// the bytes already written are kept, the inode is still updated, and the
// count written is returned with the error.
func (t *Table) Write(ip *Inode, off uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if off > ip.Size || util.SumOverflows(off, n) {
		return 0, fmt.Errorf("%w: write at %d of %d-byte file",
			common.ErrOffsetOutOfRange, off, ip.Size)
	}
	if off+n > common.MAXFILESZ {
		return 0, fmt.Errorf("%w: %d bytes", common.ErrFileTooLarge, off+n)
	}

	var err error
	var tot uint64
	for tot < n {
		boff := off % disk.BlockSize
		m := util.Min(n-tot, disk.BlockSize-boff)
		var bn common.Bnum
		bn, err = t.MapBlock(ip, off/disk.BlockSize)
		if err != nil {
			break
		}
		var blk disk.Block
		if m == disk.BlockSize {
			blk = util.CloneByteSlice(data[tot : tot+m])
		} else {
			blk, err = t.bs.Read(bn)
			if err != nil {
				break
			}
			copy(blk[boff:], data[tot:tot+m])
		}
		err = t.bs.Write(bn, blk)
		if err != nil {
			break
		}
		tot += m
		off += m
	}
	if off > ip.Size {
		ip.Size = off
		ip.Blocks = util.Max(util.RoundUp(off, disk.BlockSize), ip.Blocks)
	}
	if uerr := t.Update(ip); uerr != nil && err == nil {
		err = uerr
	}
	if err != nil {
		util.DPrintf(1, "Write: inode %d stopped after %d bytes: %v\n",
			ip.Inum, tot, err)
	}
	return tot, err
}
