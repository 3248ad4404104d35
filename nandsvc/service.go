// Package nandsvc implements the NAND service helpers: range erase,
// random fill, inter-block page migration, and the shared
// failed-status predicate with its debug-only fault-injection hook.
//
// The fault-injection chance is not a package-level variable: it is a
// field of an explicitly constructed Service, a scoped singleton a
// caller opts into rather than an implicit global every test shares.
package nandsvc

import (
	"math/rand/v2"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"nandring/blockdev"
)

// Service wraps a block device with the NAND-level operations the ring
// engine and operator tooling drive it through.
type Service struct {
	device blockdev.Device
	log    *zap.Logger

	mu          sync.Mutex
	errorChance int // 0 disables; otherwise Failed() also trips with probability 1/errorChance
	rng         *rand.Rand
}

// NewService constructs a Service over device. logger may be nil, in
// which case a no-op logger is used.
func NewService(device blockdev.Device, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		device: device,
		log:    logger,
		rng:    rand.New(rand.NewPCG(1, 2)),
	}
}

// SetErrorChance configures the debug-only fault injector: Failed()
// additionally reports true with probability 1/k. k=0 disables
// injection. Used exclusively in tests.
func (s *Service) SetErrorChance(k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorChance = k
}

// Failed reports whether status carries the device's failed bit, or the
// fault injector fired. This is the single predicate every write/erase
// path in ringlog checks instead of inspecting status directly.
func (s *Service) Failed(status blockdev.Status) bool {
	if status.Failed() {
		return true
	}
	s.mu.Lock()
	k := s.errorChance
	var hit bool
	if k > 0 {
		hit = s.rng.IntN(k) == 0
	}
	s.mu.Unlock()
	return hit
}

// EraseRange erases every block in [start, start+length). Blocks already
// marked bad are skipped unless force is true. A block whose erase fails
// is marked bad. Returns the number of newly detected bad blocks and an
// aggregated error describing every failure observed (nil if none).
func (s *Service) EraseRange(start, length int, force bool) (newBad int, err error) {
	var errs error
	for b := start; b < start+length; b++ {
		if !force && s.device.IsBad(b) {
			continue
		}
		status, ierr := s.device.Erase(b)
		if ierr != nil {
			errs = multierr.Append(errs, ierr)
			continue
		}
		if s.Failed(status) {
			s.device.MarkBad(b)
			newBad++
			s.log.Warn("nandsvc: erase failed, marking block bad", zap.Int("block", b))
			errs = multierr.Append(errs, errBlockEraseFailed(b))
		}
	}
	return newBad, errs
}

// FillRandomRange erases [start, start+length) and then overwrites every
// page of every surviving good block with pseudo-random bytes, forcing
// the first two spare bytes to 0xFF so the randomized spare area is
// never misread as a bad mark. Used for test/teardown.
func (s *Service) FillRandomRange(start, length int) (newBad int, err error) {
	erasedBad, err := s.EraseRange(start, length, false)
	newBad += erasedBad
	var errs error
	if err != nil {
		errs = multierr.Append(errs, err)
	}

	geom := s.device.Geometry()
	pagebuf := make([]byte, geom.PageSize())

	for b := start; b < start+length; b++ {
		if s.device.IsBad(b) {
			continue
		}
		for page := 0; page < geom.PagesPerBlock; page++ {
			fillPageRandom(s.rng, pagebuf, geom.PageDataSize)
			status, ierr := s.device.WritePageWhole(b, page, pagebuf)
			if ierr != nil {
				errs = multierr.Append(errs, ierr)
				break
			}
			if s.Failed(status) {
				s.device.MarkBad(b)
				newBad++
				errs = multierr.Append(errs, errBlockWriteFailed(b, page))
				break
			}
		}
	}
	return newBad, errs
}

func fillPageRandom(rng *rand.Rand, buf []byte, pageDataSize int) {
	for i := range buf {
		buf[i] = byte(rng.IntN(256))
	}
	// Force the bad-mark position so randomized spare content can never
	// be misread as a factory/runtime bad block.
	buf[pageDataSize] = 0xFF
	buf[pageDataSize+1] = 0xFF
}

// DataMove copies whole pages (data+spare) [0, pages) from src to dst,
// stopping at the first write failure. dst must already be erased by
// the caller. workarea must be at least one page (data+spare) long.
func (s *Service) DataMove(src, dst, pages int, workarea []byte) (blockdev.Status, error) {
	geom := s.device.Geometry()
	pageSize := geom.PageSize()
	if len(workarea) < pageSize {
		return blockdev.StatusFailed, errWorkareaTooSmall(pageSize, len(workarea))
	}
	wa := workarea[:pageSize]

	for page := 0; page < pages; page++ {
		if err := s.device.ReadPageData(src, page, wa[:geom.PageDataSize]); err != nil {
			return blockdev.StatusFailed, err
		}
		if err := s.device.ReadPageSpare(src, page, wa[geom.PageDataSize:]); err != nil {
			return blockdev.StatusFailed, err
		}
		status, err := s.device.WritePageWhole(dst, page, wa)
		if err != nil {
			return blockdev.StatusFailed, err
		}
		if s.Failed(status) {
			return status, nil
		}
	}
	return blockdev.StatusOK, nil
}
