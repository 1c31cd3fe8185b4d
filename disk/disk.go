package disk

// Block is a 512-byte buffer
type Block = []byte

const BlockSize uint64 = 512

// Geometry describes a device addressed by cylinder and sector.
type Geometry struct {
	Cylinders uint64
	Sectors   uint64 // sectors per cylinder
}

// NumBlocks reports how many blocks the device holds.
func (g Geometry) NumBlocks() uint64 {
	return g.Cylinders * g.Sectors
}

// Index maps a cylinder/sector pair to a flat block index.
func (g Geometry) Index(cyl uint64, sec uint64) uint64 {
	return cyl*g.Sectors + sec
}

// Locate is the inverse of Index.
func (g Geometry) Locate(a uint64) (uint64, uint64) {
	return a / g.Sectors, a % g.Sectors
}

// Disk provides access to a logical block-based disk
type Disk interface {
	// Read reads a disk block by address
	//
	// Expects a < Size().
	Read(a uint64) (Block, error)

	// Write updates a disk block by address
	//
	// Expects a < Size().
	Write(a uint64, v Block) error

	// Geometry reports the cylinder/sector shape of the device.
	Geometry() (Geometry, error)

	// Barrier ensures data is persisted.
	//
	// When it returns, all outstanding writes are guaranteed to be durably on
	// disk
	Barrier() error

	// Close releases any resources used by the disk and makes it unusable.
	Close() error
}

// Size reports how big the disk is, in blocks
func Size(d Disk) (uint64, error) {
	g, err := d.Geometry()
	if err != nil {
		return 0, err
	}
	return g.NumBlocks(), nil
}
