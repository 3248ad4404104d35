package blockdev

import (
	"encoding/gob"
	"fmt"
	"os"
)

// image is the on-disk encoding of a SimDevice, used by cmd/ringctl to
// persist state across process restarts so the demo CLI can actually
// demonstrate the crash-safety contract rather than starting fresh on
// every invocation.
type image struct {
	Geom   Geometry
	Bad    []bool
	Data   [][]byte
	Spare  [][]byte
	Erased [][]bool
}

// SaveToFile writes d's entire state to path using encoding/gob.
func (d *SimDevice) SaveToFile(path string) error {
	d.badmap.mu.Lock()
	bad := make([]bool, len(d.badmap.bits))
	copy(bad, d.badmap.bits)
	d.badmap.mu.Unlock()

	img := image{
		Geom:   d.geom,
		Bad:    bad,
		Data:   d.data,
		Spare:  d.spare,
		Erased: d.erased,
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("blockdev: create image %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(img); err != nil {
		return fmt.Errorf("blockdev: encode image %s: %w", path, err)
	}
	return nil
}

// LoadSimDeviceFromFile restores a SimDevice previously written by
// SaveToFile.
func LoadSimDeviceFromFile(path string) (*SimDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open image %s: %w", path, err)
	}
	defer f.Close()

	var img image
	if err := gob.NewDecoder(f).Decode(&img); err != nil {
		return nil, fmt.Errorf("blockdev: decode image %s: %w", path, err)
	}

	d := &SimDevice{
		geom:   img.Geom,
		badmap: &BadMap{bits: img.Bad},
		data:   img.Data,
		spare:  img.Spare,
		erased: img.Erased,
	}
	return d, nil
}

// LoadOrCreateSimDeviceFile loads the device image at path if it exists,
// or creates a fresh one of the given geometry otherwise.
func LoadOrCreateSimDeviceFile(path string, geom Geometry) (*SimDevice, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadSimDeviceFromFile(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("blockdev: stat image %s: %w", path, err)
	}
	return NewSimDevice(geom)
}
