// Package fs is the command layer of the file system. Every command runs on
// behalf of a Session and goes straight to disk; the only state an FS keeps
// in memory is the superblock.
package fs

import (
	"fmt"

	"github.com/mit-pdos/go-blockfs/alloc"
	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/disk"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/super"
	"github.com/mit-pdos/go-blockfs/util"
)

// FS is not safe for concurrent use; callers serialize commands.
type FS struct {
	d      disk.Disk
	sb     *super.FsSuper
	alloc  *alloc.Alloc
	itable *inode.Table
}

// Open loads the superblock of d. An unformatted volume opens fine, but
// every command other than Format and Login fails with ErrNotFormatted.
func Open(d disk.Disk) (*FS, error) {
	sb, err := super.Load(d)
	if err != nil {
		return nil, err
	}
	fs := &FS{d: d, sb: sb}
	if sb.Formatted() {
		sz, err := disk.Size(d)
		if err != nil {
			return nil, err
		}
		if sz < sb.Size {
			return nil, fmt.Errorf("%w: superblock claims %d blocks, disk has %d",
				common.ErrInvalidArguments, sb.Size, sz)
		}
		fs.mount()
		util.DPrintf(1, "Open: size %d ninodes %d data at %d\n", sb.Size,
			sb.NInodes, sb.DataStart)
	} else {
		util.DPrintf(1, "Open: volume not formatted\n")
	}
	return fs, nil
}

func (fs *FS) mount() {
	fs.alloc = alloc.MkAlloc(fs.d, fs.sb.BmapStart, fs.sb.NBitmapBlocks(),
		fs.sb.Size)
	fs.itable = inode.MkTable(fs.d, inode.MkDevStore(fs.d, fs.alloc),
		fs.sb.InodeStart, fs.sb.NInodes)
}

func (fs *FS) Formatted() bool {
	return fs.sb.Formatted()
}

// Super returns a copy of the superblock.
func (fs *FS) Super() super.FsSuper {
	return *fs.sb
}

// FreeBlocks counts the unallocated blocks of the volume.
func (fs *FS) FreeBlocks() (uint64, error) {
	if !fs.Formatted() {
		return 0, common.ErrNotFormatted
	}
	return fs.alloc.NumFree()
}

// Format lays out a fresh volume over the whole disk with ninodes inodes
// (0 picks the default) and creates the root directory. Only the superuser
// may format. Every remembered session is forgotten.
func (fs *FS) Format(s *Session, ninodes uint64) error {
	if !s.LoggedIn() {
		return common.ErrNotLoggedIn
	}
	if s.Uid != common.SUPERUID {
		return fmt.Errorf("%w: only uid %d may format", common.ErrPermissionDenied,
			common.SUPERUID)
	}
	sz, err := disk.Size(fs.d)
	if err != nil {
		return err
	}
	if ninodes == 0 {
		ninodes = super.DefaultInodes(sz)
	}
	sb, err := super.MkFsSuper(sz, ninodes)
	if err != nil {
		return err
	}
	sb.SaveUser(common.SUPERUID, common.ROOTINUM)

	// An interrupted format must not leave a superblock that looks valid.
	sb.Magic = 0
	if err := sb.Store(fs.d); err != nil {
		return err
	}
	fs.sb = sb
	fs.mount()
	if err := fs.alloc.MarkInit(uint64(sb.DataStart)); err != nil {
		return err
	}
	if err := fs.itable.Init(); err != nil {
		return err
	}
	sb.Magic = common.MAGIC
	root, err := dir.Create(fs.itable, common.KindDir, "", common.ROOTINUM,
		common.NOUID, common.ModeDefault)
	if err != nil {
		sb.Magic = 0
		return err
	}
	if root.Inum != common.ROOTINUM {
		panic("Format: root is not the first inode")
	}
	if err := sb.Store(fs.d); err != nil {
		return err
	}
	s.Cwd = common.ROOTINUM
	util.DPrintf(1, "Format: size %d nblocks %d ninodes %d\n", sb.Size,
		sb.NBlocks, sb.NInodes)
	return nil
}
