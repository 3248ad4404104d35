package blockdev

import "sync"

// BadMap is the persistent bit set over blocks shared between the block
// device and the ring/NAND-service layers above it. Readers accept
// stale-zero: a block may already be bad on the physical medium but not
// yet observed and marked, because the next write through it will
// detect and mark it.
type BadMap struct {
	mu   sync.Mutex
	bits []bool
}

// NewBadMap allocates a bad map for the given number of blocks, all
// initially good.
func NewBadMap(blocks int) *BadMap {
	return &BadMap{bits: make([]bool, blocks)}
}

// IsBad reports whether block b is marked bad.
func (m *BadMap) IsBad(b int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bits[b]
}

// MarkBad marks block b bad. Marking an already-bad block is a no-op.
func (m *BadMap) MarkBad(b int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bits[b] = true
}

// Len returns the number of blocks the map covers.
func (m *BadMap) Len() int {
	return len(m.bits)
}

// CountGood returns the number of blocks in [start, start+length) that
// are not marked bad.
func (m *BadMap) CountGood(start, length int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	good := 0
	for b := start; b < start+length; b++ {
		if !m.bits[b] {
			good++
		}
	}
	return good
}
