package common

import (
	"github.com/mit-pdos/go-blockfs/disk"
)

const (
	NBITBLOCK uint64 = disk.BlockSize * 8
	INODESZ   uint64 = 128 // on-disk size
	INODEBLK  uint64 = disk.BlockSize / INODESZ

	BNUMSZ uint64 = 8 // on-disk size of a block number
	APB    uint64 = disk.BlockSize / BNUMSZ

	// Inode address slots: NDIRECT direct blocks, then the single-indirect
	// and double-indirect pointer blocks.
	NDIRECT   uint64 = 9
	SINDIRECT uint64 = NDIRECT
	DINDIRECT uint64 = NDIRECT + 1
	NADDRS    uint64 = NDIRECT + 2

	// MAXFILEBLKS is the number of logical blocks an inode can address.
	MAXFILEBLKS uint64 = NDIRECT + APB + APB*APB
	MAXFILESZ   uint64 = MAXFILEBLKS * disk.BlockSize

	DIRENTSZ uint64 = 16
	MAXNAME  uint64 = DIRENTSZ - 4

	MAGIC   uint64 = 0xFACE2025
	MAXUSER uint64 = 16
	MAXUID  Uid    = 1024
)

type Inum uint64
type Bnum = uint64
type Uid uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0

	NOUID    Uid = 0
	SUPERUID Uid = 1
)

type Kind uint32

const (
	KindFree Kind = 0
	KindDir  Kind = 1
	KindFile Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	}
	return "free"
}

// Mode bits. The owner bits sit above the other-user bits so that shifting
// by ModeOwnerShift or ModeOtherShift lines either pair up with PermR|PermW.
const (
	ModeVisible uint32 = 1 << 0
	ModeOtherW  uint32 = 1 << 1
	ModeOtherR  uint32 = 1 << 2
	ModeOwnerW  uint32 = 1 << 3
	ModeOwnerR  uint32 = 1 << 4
	ModeMask    uint32 = 0x1f
	ModeDefault uint32 = ModeMask

	ModeOwnerShift = 3
	ModeOtherShift = 1
)

type Perm uint32

const (
	PermW Perm = 1 << 0
	PermR Perm = 1 << 1
)
