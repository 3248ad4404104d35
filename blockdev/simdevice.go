package blockdev

import "fmt"

// SimDevice is an in-memory NAND block device used by tests and by
// cmd/ringctl's demo mode, standing in for the real NAND driver.
//
// Pages are erased (all 0xFF) until written. SimDevice never fails a
// program or erase on its own; the fault-injection hook lives one layer
// up, in nandsvc.Service, so that an "injected" failure can be observed
// without desynchronizing SimDevice's own bookkeeping from what was
// actually committed.
type SimDevice struct {
	geom    Geometry
	badmap  *BadMap
	data    [][]byte // per-block: PagesPerBlock*PageDataSize bytes
	spare   [][]byte // per-block: PagesPerBlock*PageSpareSize bytes
	erased  [][]bool // per-block, per-page: true until written
}

// NewSimDevice allocates a simulated device of the given geometry, all
// blocks good and all pages erased.
func NewSimDevice(geom Geometry) (*SimDevice, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	d := &SimDevice{
		geom:   geom,
		badmap: NewBadMap(geom.Blocks),
		data:   make([][]byte, geom.Blocks),
		spare:  make([][]byte, geom.Blocks),
		erased: make([][]bool, geom.Blocks),
	}
	for b := 0; b < geom.Blocks; b++ {
		d.resetBlock(b)
	}
	return d, nil
}

func (d *SimDevice) resetBlock(b int) {
	data := make([]byte, d.geom.PagesPerBlock*d.geom.PageDataSize)
	spare := make([]byte, d.geom.PagesPerBlock*d.geom.PageSpareSize)
	for i := range data {
		data[i] = 0xFF
	}
	for i := range spare {
		spare[i] = 0xFF
	}
	d.data[b] = data
	d.spare[b] = spare
	pages := make([]bool, d.geom.PagesPerBlock)
	for i := range pages {
		pages[i] = true
	}
	d.erased[b] = pages
}

func (d *SimDevice) checkAddr(blk, page int) error {
	if blk < 0 || blk >= d.geom.Blocks {
		return fmt.Errorf("blockdev: block %d out of range [0,%d)", blk, d.geom.Blocks)
	}
	if page < 0 || page >= d.geom.PagesPerBlock {
		return fmt.Errorf("blockdev: page %d out of range [0,%d)", page, d.geom.PagesPerBlock)
	}
	return nil
}

func (d *SimDevice) dataSlice(blk, page int) []byte {
	pds := d.geom.PageDataSize
	off := page * pds
	return d.data[blk][off : off+pds]
}

func (d *SimDevice) spareSlice(blk, page int) []byte {
	pss := d.geom.PageSpareSize
	off := page * pss
	return d.spare[blk][off : off+pss]
}

// Geometry implements Device.
func (d *SimDevice) Geometry() Geometry { return d.geom }

// BadMap implements Device.
func (d *SimDevice) BadMap() *BadMap { return d.badmap }

// IsBad implements Device.
func (d *SimDevice) IsBad(blk int) bool { return d.badmap.IsBad(blk) }

// MarkBad implements Device.
func (d *SimDevice) MarkBad(blk int) { d.badmap.MarkBad(blk) }

// ReadPageData implements Device.
func (d *SimDevice) ReadPageData(blk, page int, buf []byte) error {
	if err := d.checkAddr(blk, page); err != nil {
		return err
	}
	if len(buf) != d.geom.PageDataSize {
		return fmt.Errorf("blockdev: read buffer must be %d bytes, got %d", d.geom.PageDataSize, len(buf))
	}
	copy(buf, d.dataSlice(blk, page))
	return nil
}

// ReadPageSpare implements Device.
func (d *SimDevice) ReadPageSpare(blk, page int, buf []byte) error {
	if err := d.checkAddr(blk, page); err != nil {
		return err
	}
	if len(buf) != d.geom.PageSpareSize {
		return fmt.Errorf("blockdev: read buffer must be %d bytes, got %d", d.geom.PageSpareSize, len(buf))
	}
	copy(buf, d.spareSlice(blk, page))
	return nil
}

// WritePageData implements Device. The returned ECC is a simple
// rolling-hash syndrome over the written bytes, enough to round-trip
// through a page header without asserting anything about the real
// NAND's ECC engine, which is opaque above the driver.
func (d *SimDevice) WritePageData(blk, page int, buf []byte) (Status, uint32, error) {
	if err := d.checkAddr(blk, page); err != nil {
		return StatusFailed, 0, err
	}
	if len(buf) != d.geom.PageDataSize {
		return StatusFailed, 0, fmt.Errorf("blockdev: write buffer must be %d bytes, got %d", d.geom.PageDataSize, len(buf))
	}
	copy(d.dataSlice(blk, page), buf)
	d.erased[blk][page] = false
	return StatusOK, syndrome(buf), nil
}

// WritePageSpare implements Device.
func (d *SimDevice) WritePageSpare(blk, page int, buf []byte) (Status, error) {
	if err := d.checkAddr(blk, page); err != nil {
		return StatusFailed, err
	}
	if len(buf) != d.geom.PageSpareSize {
		return StatusFailed, fmt.Errorf("blockdev: spare buffer must be %d bytes, got %d", d.geom.PageSpareSize, len(buf))
	}
	copy(d.spareSlice(blk, page), buf)
	d.erased[blk][page] = false
	return StatusOK, nil
}

// WritePageWhole implements Device.
func (d *SimDevice) WritePageWhole(blk, page int, buf []byte) (Status, error) {
	if err := d.checkAddr(blk, page); err != nil {
		return StatusFailed, err
	}
	want := d.geom.PageSize()
	if len(buf) != want {
		return StatusFailed, fmt.Errorf("blockdev: whole-page buffer must be %d bytes, got %d", want, len(buf))
	}
	pds := d.geom.PageDataSize
	copy(d.dataSlice(blk, page), buf[:pds])
	copy(d.spareSlice(blk, page), buf[pds:])
	d.erased[blk][page] = false
	return StatusOK, nil
}

// Erase implements Device.
func (d *SimDevice) Erase(blk int) (Status, error) {
	if blk < 0 || blk >= d.geom.Blocks {
		return StatusFailed, fmt.Errorf("blockdev: block %d out of range [0,%d)", blk, d.geom.Blocks)
	}
	d.resetBlock(blk)
	return StatusOK, nil
}

// PageErased reports whether a page has never been written since its
// last erase. Test-only introspection; not part of the Device contract.
func (d *SimDevice) PageErased(blk, page int) bool {
	return d.erased[blk][page]
}

func syndrome(buf []byte) uint32 {
	var s uint32
	for i, b := range buf {
		s = s*31 + uint32(b) + uint32(i)
	}
	return s
}
