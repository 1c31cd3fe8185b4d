package disk

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-blockfs/util"
)

var _ Disk = (*FileDisk)(nil)

// FileDisk stores the blocks of a device in a host file.
type FileDisk struct {
	fd  int
	geo Geometry
}

func NewFileDisk(path string, geo Geometry) (*FileDisk, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, err
	}
	var stat unix.Stat_t
	err = unix.Fstat(fd, &stat)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	size := int64(geo.NumBlocks() * BlockSize)
	if (stat.Mode&unix.S_IFREG) != 0 && stat.Size != size {
		err = unix.Ftruncate(fd, size)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
	}
	util.DPrintf(1, "NewFileDisk: %s %d cylinders, %d sectors\n", path,
		geo.Cylinders, geo.Sectors)
	return &FileDisk{fd: fd, geo: geo}, nil
}

func (d *FileDisk) Read(a uint64) (Block, error) {
	if a >= d.geo.NumBlocks() {
		return nil, fmt.Errorf("out-of-bounds read at %v", a)
	}
	buf := make(Block, BlockSize)
	_, err := unix.Pread(d.fd, buf, int64(a*BlockSize))
	if err != nil {
		return nil, fmt.Errorf("read %d: %w", a, err)
	}
	util.DPrintf(20, "read: %v\n", a)
	return buf, nil
}

func (d *FileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("v is not block sized (%d bytes)", len(v)))
	}
	if a >= d.geo.NumBlocks() {
		return fmt.Errorf("out-of-bounds write at %v", a)
	}
	_, err := unix.Pwrite(d.fd, v, int64(a*BlockSize))
	if err != nil {
		return fmt.Errorf("write %d: %w", a, err)
	}
	util.DPrintf(20, "write: %v\n", a)
	return nil
}

func (d *FileDisk) Geometry() (Geometry, error) {
	return d.geo, nil
}

func (d *FileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	return unix.Fsync(d.fd)
}

func (d *FileDisk) Close() error {
	return unix.Close(d.fd)
}

/////////////////////////

var _ Disk = (*MemDisk)(nil)

type MemDisk struct {
	l      *sync.RWMutex
	geo    Geometry
	blocks [][BlockSize]byte
}

func NewMemDisk(geo Geometry) *MemDisk {
	blocks := make([][BlockSize]byte, geo.NumBlocks())
	return &MemDisk{l: new(sync.RWMutex), geo: geo, blocks: blocks}
}

func (d *MemDisk) Read(a uint64) (Block, error) {
	d.l.RLock()
	defer d.l.RUnlock()
	if a >= uint64(len(d.blocks)) {
		return nil, fmt.Errorf("out-of-bounds read at %v", a)
	}
	buf := make(Block, BlockSize)
	copy(buf, d.blocks[a][:])
	return buf, nil
}

func (d *MemDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("v is not block-sized (%d bytes)", len(v)))
	}
	d.l.Lock()
	defer d.l.Unlock()
	if a >= uint64(len(d.blocks)) {
		return fmt.Errorf("out-of-bounds write at %v", a)
	}
	copy(d.blocks[a][:], v)
	return nil
}

func (d *MemDisk) Geometry() (Geometry, error) {
	// this never changes so we assume it's safe to run lock-free
	return d.geo, nil
}

func (d *MemDisk) Barrier() error { return nil }

func (d *MemDisk) Close() error { return nil }
