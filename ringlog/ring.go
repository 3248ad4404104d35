// Package ringlog implements the ring engine: the on-media layout,
// page sealing, mount/recovery, bad-block aware block advance,
// write-time error rescue, and session iteration. The ring owns all
// on-media state; the async logger and operator tooling drive it only
// through the exported methods here.
package ringlog

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nandring/blockdev"
	"nandring/monoclock"
	"nandring/nandsvc"
)

// minRingSize is the smallest ring the engine will mount.
const minRingSize = 32

// State is the ring engine's state machine: UNINIT → IDLE → MOUNTED ⇄
// ITERATOR_BOUNDED; MOUNTED → NO_SPACE on exhaustion; terminal STOP.
type State int

const (
	StateUninit State = iota
	StateIdle
	StateMounted
	StateIteratorBounded
	StateNoSpace
	StateStop
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "UNINIT"
	case StateIdle:
		return "IDLE"
	case StateMounted:
		return "MOUNTED"
	case StateIteratorBounded:
		return "ITERATOR_BOUNDED"
	case StateNoSpace:
		return "NO_SPACE"
	case StateStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors callers branch on; everything else the ring engine
// retries internally and never surfaces.
var (
	// ErrNoSpace is returned by AppendPage once the ring has exhausted
	// every good block while advancing; recovery is umount+erase+remount.
	ErrNoSpace = errors.New("ringlog: no space left in ring")
	// ErrMountInsufficientGoodBlocks is returned by Mount when fewer than
	// half the ring's blocks are good.
	ErrMountInsufficientGoodBlocks = errors.New("ringlog: not enough good blocks to mount")
	// ErrWrongState is returned when an operation's state precondition
	// isn't met.
	ErrWrongState = errors.New("ringlog: wrong state for operation")
)

// Config is the ring's fixed placement within its block device. The
// ring occupies [StartBlk, StartBlk+Len).
type Config struct {
	StartBlk int `yaml:"start_blk"`
	Len      int `yaml:"len"`
}

func (c Config) lastBlk() int {
	return c.StartBlk + c.Len - 1
}

// Debug counts every retry and every newly detected bad block; no
// rescued failure goes unrecorded.
type Debug struct {
	DataRescue       int
	NewBadBlocks     int
	WriteDataFailed  int
	WriteSpareFailed int
	EraseFailed      int
}

// Ring is the engine owning all on-media ring state. It is accessed by
// exactly one goroutine at a time by construction: the worker once a
// Logger is started, the initiating caller otherwise.
type Ring struct {
	device blockdev.Device
	svc    *nandsvc.Service
	clock  *monoclock.Clock
	log    *zap.Logger

	cfg      Config
	state    State
	workarea []byte

	curBlk        int
	curPage       int
	curID         uint64
	curBackLink   int
	utcCorrection uint32

	dbg Debug

	// mountID correlates log lines from the same mount; never persisted
	// to media.
	mountID uuid.UUID
}

// New constructs a ring engine in the UNINIT state. logger may be nil.
func New(device blockdev.Device, svc *nandsvc.Service, clock *monoclock.Clock, logger *zap.Logger) *Ring {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ring{
		device: device,
		svc:    svc,
		clock:  clock,
		log:    logger,
		state:  StateUninit,
	}
}

// State reports the ring's current state machine position.
func (r *Ring) State() State { return r.state }

// Start validates cfg against the device geometry and transitions
// UNINIT→IDLE. workarea must be at least one whole page (data+spare)
// long; it backs every rescue copy for the ring's lifetime.
func (r *Ring) Start(cfg Config, workarea []byte) error {
	if r.state != StateUninit {
		return fmt.Errorf("%w: Start requires UNINIT, got %s", ErrWrongState, r.state)
	}
	geom := r.device.Geometry()
	if cfg.Len < minRingSize {
		return fmt.Errorf("ringlog: ring length %d below minimum %d", cfg.Len, minRingSize)
	}
	if cfg.StartBlk+cfg.Len > geom.Blocks {
		return fmt.Errorf("ringlog: ring [%d,%d) overflows device of %d blocks", cfg.StartBlk, cfg.StartBlk+cfg.Len, geom.Blocks)
	}
	if HeaderSize > geom.PageSpareSize {
		return fmt.Errorf("ringlog: header (%d bytes) does not fit spare area (%d bytes)", HeaderSize, geom.PageSpareSize)
	}
	if len(workarea) < geom.PageSize() {
		return fmt.Errorf("ringlog: workarea too small: need %d bytes, got %d", geom.PageSize(), len(workarea))
	}

	r.cfg = cfg
	r.workarea = workarea
	r.state = StateIdle
	return nil
}

// TotalGood returns the number of good blocks currently in the ring.
func (r *Ring) TotalGood() int {
	return r.device.BadMap().CountGood(r.cfg.StartBlk, r.cfg.Len)
}

// Debug returns a snapshot of the ring's debug counters.
func (r *Ring) Debug() Debug { return r.dbg }

// SetUTCCorrection stores the correction applied to translate
// TimeBootUs into wall time; subsequent page headers use it
// immediately.
func (r *Ring) SetUTCCorrection(correction uint32) {
	r.utcCorrection = correction
}

func (r *Ring) resetDebug() {
	r.dbg = Debug{}
}

// nextGood returns the next good block strictly after current, wrapping
// within [StartBlk, StartBlk+Len). Returns false if the whole ring
// wrapped without finding one.
func (r *Ring) nextGood(current int) (int, bool) {
	b := current
	for i := 0; i < r.cfg.Len; i++ {
		b++
		if b == r.cfg.StartBlk+r.cfg.Len {
			b = r.cfg.StartBlk
		}
		if !r.device.IsBad(b) {
			return b, true
		}
	}
	return 0, false
}

// eraseNext repeatedly picks the next good block after cur and erases
// it, marking any block whose erase fails bad and retrying, until one
// erase succeeds or a full traversal wraps without finding a usable
// block.
func (r *Ring) eraseNext(cur int) (int, bool) {
	for i := 0; i < r.cfg.Len+1; i++ {
		blk, ok := r.nextGood(cur)
		if !ok {
			return 0, false
		}
		status, err := r.device.Erase(blk)
		if err != nil {
			r.log.Error("ringlog: erase I/O error", zap.Int("block", blk), zap.Error(err))
			return 0, false
		}
		if r.svc.Failed(status) {
			r.dbg.EraseFailed++
			r.dbg.NewBadBlocks++
			r.device.MarkBad(blk)
			r.log.Warn("ringlog: erase failed, marking block bad", zap.Int("block", blk))
			cur = blk
			continue
		}
		return blk, true
	}
	return 0, false
}

func (r *Ring) readHeader(blk, page int) (PageHeader, bool, error) {
	buf := make([]byte, r.device.Geometry().PageSpareSize)
	if err := r.device.ReadPageSpare(blk, page, buf); err != nil {
		return PageHeader{}, false, err
	}
	return decodeValidHeader(buf[:HeaderSize])
}

// readPageID returns the header id at (blk, page), or wastedID if the
// header doesn't pass its own CRC.
func (r *Ring) readPageID(blk, page int) uint64 {
	hdr, valid, err := r.readHeader(blk, page)
	if err != nil || !valid {
		return wastedID
	}
	return hdr.ID
}

// lastWrittenBlock scans every good block's page 0 in wrap-advance
// order starting just after the ring's last block, and returns the one
// with the highest id. ok is false when no block has any valid header,
// meaning the ring is effectively empty.
func (r *Ring) lastWrittenBlock() (blk int, ok bool) {
	first, found := r.nextGood(r.cfg.lastBlk())
	if !found {
		return 0, false
	}

	lastBlk := 0
	lastID := wastedID
	haveLast := false

	b := first
	for {
		id := r.readPageID(b, 0)
		if id >= firstID && (!haveLast || id >= lastID) {
			lastBlk = b
			lastID = id
			haveLast = true
		}
		next, advanced := r.nextGood(b)
		if !advanced {
			break
		}
		b = next
		if b == first {
			break
		}
	}
	return lastBlk, haveLast
}

// lastWrittenPage returns the largest page index in blk whose header is
// valid.
func (r *Ring) lastWrittenPage(blk int) (page int, ok bool) {
	ppb := r.device.Geometry().PagesPerBlock
	lastID := wastedID
	found := false
	lastPage := 0
	for p := 0; p < ppb; p++ {
		id := r.readPageID(blk, p)
		if id >= firstID && (!found || id >= lastID) {
			lastPage = p
			lastID = id
			found = true
		}
	}
	return lastPage, found
}

// closePrevSession overwrites every erased page after lastPage in
// lastBlk with all-zero data and a spare area whose first two bytes are
// 0xFF (never a bad mark), then erases the next good block to become
// the new cur_blk. After this runs, no block holds erased pages between
// valid ones, so every later scan sees clean session boundaries. A
// write failure here marks the block bad but does not abort mount.
func (r *Ring) closePrevSession(lastBlk, lastPage int) (int, bool) {
	geom := r.device.Geometry()
	if lastPage != geom.PagesPerBlock-1 {
		whole := make([]byte, geom.PageSize())
		whole[geom.PageDataSize] = 0xFF
		whole[geom.PageDataSize+1] = 0xFF

		for p := lastPage + 1; p < geom.PagesPerBlock; p++ {
			status, err := r.device.WritePageWhole(lastBlk, p, whole)
			if err != nil {
				r.log.Error("ringlog: tail-close I/O error", zap.Int("block", lastBlk), zap.Error(err))
				break
			}
			if r.svc.Failed(status) {
				r.dbg.NewBadBlocks++
				r.device.MarkBad(lastBlk)
				r.log.Warn("ringlog: tail-close write failed, marking block bad", zap.Int("block", lastBlk))
				break
			}
		}
	}
	return r.eraseNext(lastBlk)
}

// Mount scans the ring for the last written block/page, closes any
// interrupted session tail, and positions the write cursor just past
// it. Precondition: IDLE.
func (r *Ring) Mount() error {
	if r.state != StateIdle {
		return fmt.Errorf("%w: Mount requires IDLE, got %s", ErrWrongState, r.state)
	}
	if r.TotalGood() < r.cfg.Len/2 {
		return ErrMountInsufficientGoodBlocks
	}

	lastBlk, ok := r.lastWrittenBlock()
	if !ok {
		// Media is effectively empty: erase_next from the ring's own
		// last block finds and erases the first good block.
		firstBlk, found := r.eraseNext(r.cfg.lastBlk())
		if !found {
			return ErrMountInsufficientGoodBlocks
		}
		r.curBlk = firstBlk
		r.curPage = 0
		r.curID = firstID
		r.curBackLink = r.cfg.lastBlk()
	} else {
		lastPage, found := r.lastWrittenPage(lastBlk)
		if !found {
			return fmt.Errorf("ringlog: mount invariant violated: block %d has no valid page", lastBlk)
		}
		lastHeader, valid, err := r.readHeader(lastBlk, lastPage)
		if err != nil || !valid {
			return fmt.Errorf("ringlog: mount invariant violated: unreadable last page")
		}

		newBlk, ok := r.closePrevSession(lastBlk, lastPage)
		if !ok {
			return ErrMountInsufficientGoodBlocks
		}
		r.curBlk = newBlk
		r.curPage = 0
		r.curID = lastHeader.ID + 1
		r.curBackLink = lastBlk
	}

	r.mountID = uuid.New()
	r.state = StateMounted
	r.log.Info("ringlog: mounted",
		zap.String("mount_id", r.mountID.String()),
		zap.Int("cur_blk", r.curBlk),
		zap.Int("cur_page", r.curPage),
		zap.Uint64("cur_id", r.curID),
		zap.Int("cur_back_link", r.curBackLink),
	)
	return nil
}

// Umount returns the ring to IDLE and resets the debug counters. The
// cursor fields keep their last values until the next Mount sets them.
func (r *Ring) Umount() {
	r.state = StateIdle
	r.resetDebug()
}

// Erase runs a full-ring erase. Precondition: IDLE.
func (r *Ring) Erase() error {
	if r.state != StateIdle {
		return fmt.Errorf("%w: Erase requires IDLE, got %s", ErrWrongState, r.state)
	}
	_, err := r.svc.EraseRange(r.cfg.StartBlk, r.cfg.Len, false)
	return err
}

// Stop releases the ring's workarea, transitioning IDLE→STOP. This
// is terminal: a stopped ring cannot be restarted.
func (r *Ring) Stop() error {
	if r.state != StateIdle {
		return fmt.Errorf("%w: Stop requires IDLE, got %s", ErrWrongState, r.state)
	}
	r.state = StateStop
	r.workarea = nil
	return nil
}

// blockDataRescue is invoked when a write to (cur_blk, cur_page) fails.
// Pre-existing valid pages in cur_blk are preserved by relocating them
// to a fresh block before cur_blk is abandoned.
func (r *Ring) blockDataRescue(failedPage int) (int, bool) {
	for {
		target, ok := r.eraseNext(r.curBlk)
		if !ok {
			return 0, false
		}
		if failedPage == 0 {
			return target, true
		}
		r.dbg.DataRescue++
		status, err := r.svc.DataMove(r.curBlk, target, failedPage, r.workarea)
		if err != nil {
			r.log.Error("ringlog: rescue data-move I/O error", zap.Error(err))
			return 0, false
		}
		if r.svc.Failed(status) {
			r.dbg.NewBadBlocks++
			r.device.MarkBad(target)
			r.log.Warn("ringlog: rescue target failed, retrying", zap.Int("block", target))
			continue
		}
		return target, true
	}
}

// AppendPage writes exactly one page of PageDataSize bytes, sealing it
// with a header and advancing the cursor. Precondition: MOUNTED.
func (r *Ring) AppendPage(data []byte) error {
	if r.state == StateNoSpace {
		return ErrNoSpace
	}
	if r.state != StateMounted {
		return fmt.Errorf("%w: AppendPage requires MOUNTED, got %s", ErrWrongState, r.state)
	}
	geom := r.device.Geometry()
	if len(data) != geom.PageDataSize {
		return fmt.Errorf("ringlog: AppendPage needs exactly %d bytes, got %d", geom.PageDataSize, len(data))
	}

	for {
		status, ecc, err := r.device.WritePageData(r.curBlk, r.curPage, data)
		if err != nil {
			return fmt.Errorf("ringlog: write-data I/O error: %w", err)
		}
		if r.svc.Failed(status) {
			r.dbg.WriteDataFailed++
			r.dbg.NewBadBlocks++
			r.device.MarkBad(r.curBlk)
			r.log.Warn("ringlog: page-data write failed, rescuing", zap.Int("block", r.curBlk), zap.Int("page", r.curPage))
			newBlk, ok := r.blockDataRescue(r.curPage)
			if !ok {
				r.state = StateNoSpace
				return ErrNoSpace
			}
			r.curBlk = newBlk
			continue
		}

		header := PageHeader{
			BadMark:       badMarkErased,
			ID:            r.curID,
			TimeBootUs:    r.clock.NowMicros(),
			UTCCorrection: r.utcCorrection,
			PageECC:       ecc,
			BackLink:      uint16(r.curBackLink),
			Written:       uint16(geom.PageDataSize),
		}
		encoded := header.Encode()
		spareBuf := make([]byte, geom.PageSpareSize)
		copy(spareBuf, encoded)
		for i := len(encoded); i < len(spareBuf); i++ {
			spareBuf[i] = 0xFF
		}

		status, err = r.device.WritePageSpare(r.curBlk, r.curPage, spareBuf)
		if err != nil {
			return fmt.Errorf("ringlog: write-spare I/O error: %w", err)
		}
		if r.svc.Failed(status) {
			r.dbg.WriteSpareFailed++
			r.dbg.NewBadBlocks++
			r.device.MarkBad(r.curBlk)
			r.log.Warn("ringlog: page-spare write failed, rescuing", zap.Int("block", r.curBlk), zap.Int("page", r.curPage))
			newBlk, ok := r.blockDataRescue(r.curPage)
			if !ok {
				r.state = StateNoSpace
				return ErrNoSpace
			}
			r.curBlk = newBlk
			continue
		}

		r.curID++
		r.curPage++
		if r.curPage == geom.PagesPerBlock {
			r.curPage = 0
			newBlk, ok := r.eraseNext(r.curBlk)
			if !ok {
				r.state = StateNoSpace
				return ErrNoSpace
			}
			r.curBlk = newBlk
		}
		return nil
	}
}

// Cursor is a read-only snapshot of the ring's volatile write position,
// exposed for tests and operator tooling.
type Cursor struct {
	Blk           int
	Page          int
	ID            uint64
	BackLink      int
	UTCCorrection uint32
}

// Cursor returns a snapshot of the current write position.
func (r *Ring) Cursor() Cursor {
	return Cursor{
		Blk:           r.curBlk,
		Page:          r.curPage,
		ID:            r.curID,
		BackLink:      r.curBackLink,
		UTCCorrection: r.utcCorrection,
	}
}

// MountID returns the correlation id of the current (or most recent)
// mount.
func (r *Ring) MountID() uuid.UUID { return r.mountID }
