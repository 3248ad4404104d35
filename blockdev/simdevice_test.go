package blockdev

import "testing"

func testGeometry() Geometry {
	return Geometry{Blocks: 8, PagesPerBlock: 4, PageDataSize: 16, PageSpareSize: 8}
}

func TestNewSimDeviceAllErasedAllGood(t *testing.T) {
	geom := testGeometry()
	d, err := NewSimDevice(geom)
	if err != nil {
		t.Fatalf("NewSimDevice: %v", err)
	}
	for b := 0; b < geom.Blocks; b++ {
		if d.IsBad(b) {
			t.Fatalf("block %d marked bad on a fresh device", b)
		}
		for p := 0; p < geom.PagesPerBlock; p++ {
			if !d.PageErased(b, p) {
				t.Fatalf("block %d page %d not erased on a fresh device", b, p)
			}
		}
	}
}

func TestWritePageDataRoundTrip(t *testing.T) {
	geom := testGeometry()
	d, _ := NewSimDevice(geom)

	want := make([]byte, geom.PageDataSize)
	for i := range want {
		want[i] = byte(i + 1)
	}
	status, ecc, err := d.WritePageData(2, 1, want)
	if err != nil || status.Failed() {
		t.Fatalf("WritePageData: status=%v err=%v", status, err)
	}
	if ecc == 0 {
		t.Fatalf("expected a non-zero ECC syndrome for non-zero data")
	}
	if d.PageErased(2, 1) {
		t.Fatalf("page should no longer report erased after a write")
	}

	got := make([]byte, geom.PageDataSize)
	if err := d.ReadPageData(2, 1, got); err != nil {
		t.Fatalf("ReadPageData: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWritePageWholeSplitsDataAndSpare(t *testing.T) {
	geom := testGeometry()
	d, _ := NewSimDevice(geom)

	whole := make([]byte, geom.PageSize())
	for i := range whole {
		whole[i] = byte(i)
	}
	if status, err := d.WritePageWhole(0, 0, whole); err != nil || status.Failed() {
		t.Fatalf("WritePageWhole: status=%v err=%v", status, err)
	}

	data := make([]byte, geom.PageDataSize)
	spare := make([]byte, geom.PageSpareSize)
	d.ReadPageData(0, 0, data)
	d.ReadPageSpare(0, 0, spare)
	for i := range data {
		if data[i] != whole[i] {
			t.Fatalf("data byte %d mismatch", i)
		}
	}
	for i := range spare {
		if spare[i] != whole[geom.PageDataSize+i] {
			t.Fatalf("spare byte %d mismatch", i)
		}
	}
}

func TestEraseResetsBlockToErasedKeepsBadMark(t *testing.T) {
	geom := testGeometry()
	d, _ := NewSimDevice(geom)

	buf := make([]byte, geom.PageDataSize)
	d.WritePageData(3, 0, buf)
	d.MarkBad(3)

	if status, err := d.Erase(3); err != nil || status.Failed() {
		t.Fatalf("Erase: status=%v err=%v", status, err)
	}
	if !d.PageErased(3, 0) {
		t.Fatalf("page 0 of block 3 should be erased after Erase")
	}
	// Erase resets the medium content but bad-block status is tracked in
	// BadMap independently.
	if !d.IsBad(3) {
		t.Fatalf("Erase must not clear a block's own bad-mark in BadMap")
	}
}

func TestOutOfRangeAddressesError(t *testing.T) {
	geom := testGeometry()
	d, _ := NewSimDevice(geom)

	buf := make([]byte, geom.PageDataSize)
	if err := d.ReadPageData(geom.Blocks, 0, buf); err == nil {
		t.Fatalf("expected error reading out-of-range block")
	}
	if err := d.ReadPageData(0, geom.PagesPerBlock, buf); err == nil {
		t.Fatalf("expected error reading out-of-range page")
	}
}

func TestCountGoodReflectsMarkBad(t *testing.T) {
	geom := testGeometry()
	d, _ := NewSimDevice(geom)

	if got := d.BadMap().CountGood(0, geom.Blocks); got != geom.Blocks {
		t.Fatalf("CountGood = %d, want %d", got, geom.Blocks)
	}
	d.MarkBad(4)
	d.MarkBad(5)
	if got := d.BadMap().CountGood(0, geom.Blocks); got != geom.Blocks-2 {
		t.Fatalf("CountGood after 2 marks = %d, want %d", got, geom.Blocks-2)
	}
}
