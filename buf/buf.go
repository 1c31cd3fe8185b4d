// buf manages sub-block disk objects (inode records, bitmap bits, block
// numbers), packed into disk blocks
package buf

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-blockfs/addr"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/util"
)

// A Buf is an in-memory copy of one disk block
type Buf struct {
	Blkno common.Bnum
	Blk   disk.Block
	dirty bool // has this block been written to?
}

func MkBuf(blkno common.Bnum, blk disk.Block) *Buf {
	b := &Buf{
		Blkno: blkno,
		Blk:   blk,
		dirty: false,
	}
	return b
}

// Load block blkno from d into a new buf
func MkBufLoad(d disk.Disk, blkno common.Bnum) (*Buf, error) {
	blk, err := d.Read(blkno)
	if err != nil {
		return nil, err
	}
	util.DPrintf(20, "MkBufLoad: %d\n", blkno)
	return MkBuf(blkno, blk), nil
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// WriteDirect writes the block back to d unconditionally.
func (buf *Buf) WriteDirect(d disk.Disk) error {
	err := d.Write(buf.Blkno, buf.Blk)
	if err != nil {
		return err
	}
	buf.dirty = false
	return nil
}

// Flush writes the block back to d if it has been modified.
func (buf *Buf) Flush(d disk.Disk) error {
	if !buf.dirty {
		return nil
	}
	return buf.WriteDirect(d)
}

func (buf *Buf) checkAddr(a addr.Addr) {
	if a.Blkno != buf.Blkno {
		panic("buf: address in a different block")
	}
}

// BitGet reports bit a.Off of the block.
func (buf *Buf) BitGet(a addr.Addr) bool {
	buf.checkAddr(a)
	return buf.Blk[a.Off/8]&(1<<(a.Off%8)) != 0
}

// BitSet sets bit a.Off to v.
func (buf *Buf) BitSet(a addr.Addr, v bool) {
	buf.checkAddr(a)
	buf.Blk[a.Off/8] = installOneBit(v, buf.Blk[a.Off/8], a.Off%8)
	buf.SetDirty()
}

// Install 1 bit into dst, at offset bit. return new dst.
func installOneBit(src bool, dst byte, bit uint64) byte {
	var new byte = dst
	if src {
		new = new | (1 << bit)
	} else {
		new = new & ^(1 << bit)
	}
	return new
}

// Object returns the sz bytes of the object at a, aliasing the block.
func (buf *Buf) Object(a addr.Addr, sz uint64) []byte {
	buf.checkAddr(a)
	off := a.ByteOff()
	return buf.Blk[off : off+sz]
}

// Install copies data over the object at a.
func (buf *Buf) Install(a addr.Addr, data []byte) {
	buf.checkAddr(a)
	if a.Off%8 != 0 {
		panic("Install unsupported\n")
	}
	util.DPrintf(20, "%v: install\n", a)
	copy(buf.Blk[a.ByteOff():], data)
	buf.SetDirty()
}

// BnumGet decodes the block number stored at byte offset off.
func (buf *Buf) BnumGet(off uint64) common.Bnum {
	dec := marshal.NewDec(buf.Blk[off : off+common.BNUMSZ])
	return common.Bnum(dec.GetInt())
}

func (buf *Buf) BnumPut(off uint64, v common.Bnum) {
	enc := marshal.NewEnc(common.BNUMSZ)
	enc.PutInt(uint64(v))
	copy(buf.Blk[off:off+common.BNUMSZ], enc.Finish())
	buf.SetDirty()
}
