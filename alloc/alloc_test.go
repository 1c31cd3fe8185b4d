package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
)

func TestPopCnt(t *testing.T) {
	assert.Equal(t, uint64(0), popCnt(0))
	assert.Equal(t, uint64(1), popCnt(1))
	assert.Equal(t, uint64(1), popCnt(2))
	assert.Equal(t, uint64(2), popCnt(3))
	assert.Equal(t, uint64(8), popCnt(255))
}

// mkAlloc builds a 32-block volume whose bitmap is block 1 and whose blocks
// below nmeta are reserved.
func mkAlloc(t *testing.T, nmeta uint64) (*Alloc, disk.Disk) {
	d := disk.NewMemDisk(disk.Geometry{Cylinders: 4, Sectors: 8})
	a := MkAlloc(d, 1, 1, 32)
	require.NoError(t, a.MarkInit(nmeta))
	return a, d
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	a, _ := mkAlloc(t, 2)

	n, err := a.NumFree()
	assert.NoError(err)
	assert.Equal(uint64(30), n, "everything but the metadata is free")

	b0, err := a.AllocNum()
	assert.NoError(err)
	assert.Equal(common.Bnum(2), b0, "lowest free block first")
	b1, _ := a.AllocNum()
	assert.Equal(common.Bnum(3), b1)

	used, _ := a.IsUsed(b0)
	assert.True(used)

	assert.NoError(a.FreeNum(b0))
	b2, _ := a.AllocNum()
	assert.Equal(b0, b2, "freed block is reused")

	n, _ = a.NumFree()
	assert.Equal(uint64(28), n)
}

func TestAllocZeroFills(t *testing.T) {
	a, d := mkAlloc(t, 2)
	junk := make(disk.Block, disk.BlockSize)
	junk[10] = 0xff
	require.NoError(t, d.Write(2, junk))

	bn, err := a.AllocNum()
	require.NoError(t, err)
	blk, _ := d.Read(bn)
	assert.Equal(t, make(disk.Block, disk.BlockSize), blk)
}

func TestAllocExhausted(t *testing.T) {
	a, _ := mkAlloc(t, 30)
	_, err := a.AllocNum()
	assert.NoError(t, err)
	_, err = a.AllocNum()
	assert.NoError(t, err)
	_, err = a.AllocNum()
	assert.ErrorIs(t, err, common.ErrOutOfSpace, "max is exclusive")
}

func TestFreeNum(t *testing.T) {
	a, _ := mkAlloc(t, 2)
	assert.NoError(t, a.FreeNum(10), "double free only warns")
	assert.ErrorIs(t, a.FreeNum(0), common.ErrInvalidArguments)
	assert.ErrorIs(t, a.FreeNum(32), common.ErrInvalidArguments)

	bn, _ := a.AllocNum()
	assert.NotEqual(t, common.Bnum(0), bn, "block 0 is never handed out")
}
