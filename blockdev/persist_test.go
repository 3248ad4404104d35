package blockdev

import (
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	geom := testGeometry()
	d, err := NewSimDevice(geom)
	if err != nil {
		t.Fatalf("NewSimDevice: %v", err)
	}

	buf := make([]byte, geom.PageDataSize)
	for i := range buf {
		buf[i] = byte(i + 9)
	}
	d.WritePageData(1, 2, buf)
	d.MarkBad(3)

	path := filepath.Join(t.TempDir(), "image.gob")
	if err := d.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadSimDeviceFromFile(path)
	if err != nil {
		t.Fatalf("LoadSimDeviceFromFile: %v", err)
	}

	if loaded.Geometry() != geom {
		t.Fatalf("geometry mismatch: got %+v, want %+v", loaded.Geometry(), geom)
	}
	if !loaded.IsBad(3) {
		t.Fatalf("bad mark for block 3 was not restored")
	}
	got := make([]byte, geom.PageDataSize)
	loaded.ReadPageData(1, 2, got)
	for i := range buf {
		if got[i] != buf[i] {
			t.Fatalf("byte %d: got %d, want %d", i, got[i], buf[i])
		}
	}
}

func TestLoadOrCreateCreatesFreshWhenMissing(t *testing.T) {
	geom := testGeometry()
	path := filepath.Join(t.TempDir(), "does-not-exist.gob")

	d, err := LoadOrCreateSimDeviceFile(path, geom)
	if err != nil {
		t.Fatalf("LoadOrCreateSimDeviceFile: %v", err)
	}
	if d.Geometry() != geom {
		t.Fatalf("geometry mismatch on fresh device")
	}
	if !d.PageErased(0, 0) {
		t.Fatalf("fresh device should start fully erased")
	}
}
