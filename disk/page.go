package disk

import (
	"fmt"
	"sync"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-blockfs/util"
)

// SectorsPerPage is the number of blocks packed into one goose disk page.
const SectorsPerPage uint64 = gdisk.BlockSize / BlockSize

var _ Disk = (*PageDisk)(nil)

// PageDisk exposes a goose disk, which works in 4KB pages, as a device of
// 512-byte sectors. Sector a lives in page a/SectorsPerPage.
type PageDisk struct {
	mu  *sync.Mutex // serializes read-modify-write of a page
	d   gdisk.Disk
	geo Geometry
}

func NewPageDisk(d gdisk.Disk, geo Geometry) *PageDisk {
	if util.RoundUp(geo.NumBlocks(), SectorsPerPage) > d.Size() {
		panic(fmt.Errorf("goose disk of %d pages cannot hold %d sectors",
			d.Size(), geo.NumBlocks()))
	}
	return &PageDisk{mu: new(sync.Mutex), d: d, geo: geo}
}

// NewPageFileDisk creates a goose file disk large enough for geo.
func NewPageFileDisk(path string, geo Geometry) (*PageDisk, error) {
	npages := util.RoundUp(geo.NumBlocks(), SectorsPerPage)
	d, err := gdisk.NewFileDisk(path, npages)
	if err != nil {
		return nil, err
	}
	return NewPageDisk(d, geo), nil
}

func pageOf(a uint64) (uint64, uint64) {
	return a / SectorsPerPage, (a % SectorsPerPage) * BlockSize
}

func (d *PageDisk) Read(a uint64) (Block, error) {
	if a >= d.geo.NumBlocks() {
		return nil, fmt.Errorf("out-of-bounds read at %v", a)
	}
	pn, off := pageOf(a)
	d.mu.Lock()
	page := d.d.Read(pn)
	d.mu.Unlock()
	return util.CloneByteSlice(page[off : off+BlockSize]), nil
}

func (d *PageDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("v is not block-sized (%d bytes)", len(v)))
	}
	if a >= d.geo.NumBlocks() {
		return fmt.Errorf("out-of-bounds write at %v", a)
	}
	pn, off := pageOf(a)
	d.mu.Lock()
	defer d.mu.Unlock()
	page := d.d.Read(pn)
	copy(page[off:off+BlockSize], v)
	d.d.Write(pn, page)
	return nil
}

func (d *PageDisk) Geometry() (Geometry, error) {
	return d.geo, nil
}

func (d *PageDisk) Barrier() error {
	d.d.Barrier()
	return nil
}

func (d *PageDisk) Close() error {
	d.d.Close()
	return nil
}
