package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-blockfs/alloc"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/disk"
)

// memStore is a BlockStore that counts what it hands out.
type memStore struct {
	blocks map[common.Bnum]disk.Block
	next   common.Bnum
	limit  int
	freed  int
}

func newMemStore(limit int) *memStore {
	return &memStore{blocks: make(map[common.Bnum]disk.Block), next: 100,
		limit: limit}
}

func (s *memStore) Read(bn common.Bnum) (disk.Block, error) {
	blk, ok := s.blocks[bn]
	if !ok {
		panic("read of unallocated block")
	}
	return append(disk.Block(nil), blk...), nil
}

func (s *memStore) Write(bn common.Bnum, blk disk.Block) error {
	if _, ok := s.blocks[bn]; !ok {
		panic("write of unallocated block")
	}
	s.blocks[bn] = append(disk.Block(nil), blk...)
	return nil
}

func (s *memStore) Alloc() (common.Bnum, error) {
	if s.limit > 0 && len(s.blocks) >= s.limit {
		return 0, common.ErrOutOfSpace
	}
	bn := s.next
	s.next++
	s.blocks[bn] = make(disk.Block, disk.BlockSize)
	return bn, nil
}

func (s *memStore) Free(bn common.Bnum) error {
	if _, ok := s.blocks[bn]; !ok {
		panic("double free")
	}
	delete(s.blocks, bn)
	s.freed++
	return nil
}

func mkTable(t *testing.T, limit int) (*Table, *memStore) {
	d := disk.NewMemDisk(disk.Geometry{Cylinders: 1, Sectors: 4})
	s := newMemStore(limit)
	tbl := MkTable(d, s, 1, 8)
	require.NoError(t, tbl.Init())
	return tbl, s
}

func pattern(n uint64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/512)
	}
	return data
}

func TestEncodeSize(t *testing.T) {
	ip := &Inode{Inum: 3, Kind: common.KindFile}
	assert.Equal(t, common.INODESZ, uint64(len(ip.encode())))
}

func TestInodeRoundTrip(t *testing.T) {
	tbl, _ := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	ip.Mode = common.ModeDefault
	ip.Uid = 7
	ip.Links = 1
	ip.addrs[common.DINDIRECT] = 1234
	require.NoError(t, tbl.Update(ip))
	assert.NotZero(t, ip.Mtime)

	ip2, err := tbl.Get(ip.Inum)
	require.NoError(t, err)
	assert.Equal(t, ip, ip2)
}

func TestAllocAscending(t *testing.T) {
	tbl, _ := mkTable(t, 0)
	for i := 0; i < 8; i++ {
		ip, err := tbl.Alloc(common.KindDir)
		require.NoError(t, err)
		assert.Equal(t, common.Inum(i), ip.Inum)
	}
	_, err := tbl.Alloc(common.KindFile)
	assert.ErrorIs(t, err, common.ErrOutOfInodes)

	ip, err := tbl.Get(5)
	require.NoError(t, err)
	require.NoError(t, tbl.Free(ip))
	_, err = tbl.Get(5)
	assert.ErrorIs(t, err, common.ErrInvalidInode)

	ip, err = tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	assert.Equal(t, common.Inum(5), ip.Inum)
}

func TestGetInvalid(t *testing.T) {
	tbl, _ := mkTable(t, 0)
	_, err := tbl.Get(0)
	assert.ErrorIs(t, err, common.ErrInvalidInode)
	_, err = tbl.Get(8)
	assert.ErrorIs(t, err, common.ErrInvalidInode)
}

func TestWriteRead(t *testing.T) {
	tbl, _ := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)

	n, err := tbl.Write(ip, 0, []byte("helloworld"))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)
	assert.Equal(t, uint64(10), ip.Size)
	assert.Equal(t, uint64(1), ip.Blocks)

	ip, err = tbl.Get(ip.Inum)
	require.NoError(t, err)
	data, err := tbl.Read(ip, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("helloworld"), data)

	data, err = tbl.Read(ip, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("wor"), data)

	data, err = tbl.Read(ip, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = tbl.Read(ip, 11, 1)
	assert.ErrorIs(t, err, common.ErrOffsetOutOfRange)
	_, err = tbl.Write(ip, 11, []byte("x"))
	assert.ErrorIs(t, err, common.ErrOffsetOutOfRange)
	_, err = tbl.Read(ip, 5, ^uint64(0))
	assert.ErrorIs(t, err, common.ErrOffsetOutOfRange)
}

func TestWriteAcrossBlocks(t *testing.T) {
	tbl, _ := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)

	_, err = tbl.Write(ip, 0, pattern(500))
	require.NoError(t, err)
	_, err = tbl.Write(ip, 500, pattern(100))
	require.NoError(t, err)
	assert.Equal(t, uint64(600), ip.Size)
	assert.Equal(t, uint64(2), ip.Blocks)

	data, err := tbl.Read(ip, 0, 600)
	require.NoError(t, err)
	assert.Equal(t, append(pattern(500), pattern(100)...), data)
}

func TestIndirect(t *testing.T) {
	tbl, s := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)

	// Reaches two blocks into the double-indirect range.
	nblk := common.NDIRECT + common.APB + 2
	want := pattern(nblk * disk.BlockSize)
	n, err := tbl.Write(ip, 0, want)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(want)), n)
	assert.Equal(t, nblk, ip.Blocks)
	// data blocks, one single-indirect, one double-indirect and one
	// second-level pointer block
	assert.Equal(t, int(nblk+3), len(s.blocks))

	ip, err = tbl.Get(ip.Inum)
	require.NoError(t, err)
	data, err := tbl.Read(ip, 0, uint64(len(want)))
	require.NoError(t, err)
	assert.Equal(t, want, data)

	off := (common.NDIRECT + common.APB) * disk.BlockSize
	data, err = tbl.Read(ip, off+10, 20)
	require.NoError(t, err)
	assert.Equal(t, want[off+10:off+30], data)
}

func TestMapBlockTooLarge(t *testing.T) {
	tbl, _ := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	_, err = tbl.MapBlock(ip, common.MAXFILEBLKS)
	assert.ErrorIs(t, err, common.ErrFileTooLarge)

	bn, err := tbl.MapBlock(ip, common.MAXFILEBLKS-1)
	require.NoError(t, err)
	assert.NotEqual(t, common.NULLBNUM, bn)
	bn2, ok, err := tbl.LookupBlock(ip, common.MAXFILEBLKS-1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, bn, bn2)
}

func TestLookupHole(t *testing.T) {
	tbl, s := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	_, ok, err := tbl.LookupBlock(ip, common.NDIRECT+5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, s.blocks)
}

func TestWriteOutOfSpace(t *testing.T) {
	tbl, _ := mkTable(t, 3)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)

	n, err := tbl.Write(ip, 0, pattern(5*disk.BlockSize))
	assert.ErrorIs(t, err, common.ErrOutOfSpace)
	assert.Equal(t, 3*disk.BlockSize, n)

	ip, err = tbl.Get(ip.Inum)
	require.NoError(t, err)
	assert.Equal(t, 3*disk.BlockSize, ip.Size)
	data, err := tbl.Read(ip, 0, ip.Size)
	require.NoError(t, err)
	assert.Equal(t, pattern(5 * disk.BlockSize)[:n], data)
}

func TestShrink(t *testing.T) {
	tbl, s := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	_, err = tbl.Write(ip, 0, pattern(8*disk.BlockSize))
	require.NoError(t, err)

	// needs 5 of 8: kept
	ip.Size = 5 * disk.BlockSize
	require.NoError(t, tbl.Shrink(ip))
	assert.Equal(t, uint64(8), ip.Blocks)
	assert.Equal(t, 0, s.freed)

	ip.Size = 3*disk.BlockSize + 1
	require.NoError(t, tbl.Shrink(ip))
	assert.Equal(t, uint64(4), ip.Blocks)
	assert.Equal(t, 4, s.freed)
	_, ok, err := tbl.LookupBlock(ip, 4)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = tbl.LookupBlock(ip, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	// growing again reuses the cleared slots
	_, err = tbl.Write(ip, ip.Size, pattern(2*disk.BlockSize))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), ip.Blocks)
}

func TestShrinkIndirect(t *testing.T) {
	tbl, s := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	_, err = tbl.Write(ip, 0, pattern((common.NDIRECT+10)*disk.BlockSize))
	require.NoError(t, err)

	ip.Size = 0
	require.NoError(t, tbl.Shrink(ip))
	assert.Equal(t, uint64(0), ip.Blocks)
	assert.Equal(t, int(common.NDIRECT+10), s.freed)
	// the single-indirect pointer block is kept
	assert.Len(t, s.blocks, 1)
}

func TestTruncate(t *testing.T) {
	tbl, s := mkTable(t, 0)
	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	_, err = tbl.Write(ip, 0, pattern((common.NDIRECT+common.APB+3)*disk.BlockSize))
	require.NoError(t, err)

	require.NoError(t, tbl.Truncate(ip))
	assert.Empty(t, s.blocks)
	assert.Equal(t, uint64(0), ip.Size)
	assert.Equal(t, uint64(0), ip.Blocks)

	ip, err = tbl.Get(ip.Inum)
	require.NoError(t, err)
	data, err := tbl.Read(ip, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDevStore(t *testing.T) {
	d := disk.NewMemDisk(disk.Geometry{Cylinders: 4, Sectors: 16})
	a := alloc.MkAlloc(d, 1, 1, 64)
	require.NoError(t, a.MarkInit(4))
	tbl := MkTable(d, MkDevStore(d, a), 2, 8)
	require.NoError(t, tbl.Init())

	ip, err := tbl.Alloc(common.KindFile)
	require.NoError(t, err)
	_, err = tbl.Write(ip, 0, pattern(3*disk.BlockSize))
	require.NoError(t, err)
	nfree, err := a.NumFree()
	require.NoError(t, err)
	assert.Equal(t, uint64(64-4-3), nfree)

	require.NoError(t, tbl.Truncate(ip))
	nfree, err = a.NumFree()
	require.NoError(t, err)
	assert.Equal(t, uint64(64-4), nfree)
}
