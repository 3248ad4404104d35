package asynclog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nandring/blockdev"
	"nandring/monoclock"
	"nandring/nandsvc"
	"nandring/ringlog"
)

type seqTicks struct{ t uint64 }

func (s *seqTicks) Ticks() uint64 { s.t++; return s.t }

func testGeometry() blockdev.Geometry {
	return blockdev.Geometry{Blocks: 32, PagesPerBlock: 4, PageDataSize: 16, PageSpareSize: 40}
}

func newMountedRing(t *testing.T) (*ringlog.Ring, *blockdev.SimDevice) {
	t.Helper()
	geom := testGeometry()
	dev, err := blockdev.NewSimDevice(geom)
	require.NoError(t, err)
	svc := nandsvc.NewService(dev, nil)
	clock := monoclock.New(&seqTicks{}, 1_000_000, 32)
	r := ringlog.New(dev, svc, clock, nil)
	require.NoError(t, r.Start(ringlog.Config{StartBlk: 0, Len: geom.Blocks}, make([]byte, geom.PageSize())))
	require.NoError(t, r.Mount())
	return r, dev
}

func TestStartRequiresMountedRing(t *testing.T) {
	geom := testGeometry()
	dev, err := blockdev.NewSimDevice(geom)
	require.NoError(t, err)
	svc := nandsvc.NewService(dev, nil)
	clock := monoclock.New(&seqTicks{}, 1_000_000, 32)
	r := ringlog.New(dev, svc, clock, nil)
	require.NoError(t, r.Start(ringlog.Config{StartBlk: 0, Len: geom.Blocks}, make([]byte, geom.PageSize())))
	// Ring is IDLE, not MOUNTED.

	l := New(geom.PageDataSize, DefaultSlabCount, nil)
	err = l.Start(r)
	require.Error(t, err)
}

func TestWriteExactlyOnePageMailsImmediately(t *testing.T) {
	r, _ := newMountedRing(t)
	l := New(16, DefaultSlabCount, nil)
	require.NoError(t, l.Start(r))
	defer l.Stop()

	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := l.Write(data)
	require.NoError(t, err)
	require.Equal(t, 16, n)

	require.Eventually(t, func() bool {
		return r.Cursor().ID > 1
	}, time.Second, time.Millisecond)
}

func TestWriteSpanningMultiplePages(t *testing.T) {
	r, _ := newMountedRing(t)
	l := New(16, DefaultSlabCount, nil)
	require.NoError(t, l.Start(r))
	defer l.Stop()

	// Exactly two page-sized slabs' worth: with DefaultSlabCount == 3
	// this never needs the worker to return a slab mid-Write, so the
	// result is deterministic rather than racing the worker.
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := l.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	require.Eventually(t, func() bool {
		return r.Cursor().ID >= 3
	}, time.Second, time.Millisecond)
}

func TestStopFlushesPartialTail(t *testing.T) {
	r, _ := newMountedRing(t)
	l := New(16, DefaultSlabCount, nil)
	require.NoError(t, l.Start(r))

	n, err := l.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	l.Stop()
	require.Equal(t, uint64(2), r.Cursor().ID, "the partial tail page must be flushed by Stop")
}

func TestWriteAfterStopFails(t *testing.T) {
	r, _ := newMountedRing(t)
	l := New(16, DefaultSlabCount, nil)
	require.NoError(t, l.Start(r))
	l.Stop()

	_, err := l.Write([]byte{1})
	require.ErrorIs(t, err, ErrWrongState)
}

// eraseFaultDevice wraps a *blockdev.SimDevice and, once armed, fails
// every block erase, so the worker's next block crossing drives the
// ring it drains into NO_SPACE.
type eraseFaultDevice struct {
	*blockdev.SimDevice
	failErase bool
}

func (d *eraseFaultDevice) Erase(blk int) (blockdev.Status, error) {
	if d.failErase {
		return blockdev.StatusFailed, nil
	}
	return d.SimDevice.Erase(blk)
}

// TestWriteLatchesNoSpaceOnceRingExhausted: once the worker observes
// ring.AppendPage return ErrNoSpace, it latches the logger itself to
// NO_SPACE, and Write then returns ErrNoSpace immediately instead of
// waiting on another failing append.
func TestWriteLatchesNoSpaceOnceRingExhausted(t *testing.T) {
	geom := testGeometry()
	base, err := blockdev.NewSimDevice(geom)
	require.NoError(t, err)
	dev := &eraseFaultDevice{SimDevice: base}

	svc := nandsvc.NewService(dev, nil)
	clock := monoclock.New(&seqTicks{}, 1_000_000, 32)
	r := ringlog.New(dev, svc, clock, nil)
	require.NoError(t, r.Start(ringlog.Config{StartBlk: 0, Len: geom.Blocks}, make([]byte, geom.PageSize())))
	require.NoError(t, r.Mount())

	l := New(geom.PageDataSize, DefaultSlabCount, nil)
	require.NoError(t, l.Start(r))
	defer l.Stop()

	// Every erase fails from the start. Filling the ring's current block
	// needs no erase at all, so those writes still succeed; only the
	// worker's first attempt to cross into the next block fails, driving
	// the ring, and then the logger, to NO_SPACE.
	dev.failErase = true

	// The pool holds DefaultSlabCount (3) slabs, fewer than the block's 4
	// pages, so a Write can meet backpressure until the worker hands a
	// slab back; retry those instead of treating them as failures.
	data := make([]byte, geom.PageDataSize)
	for i := 0; i < geom.PagesPerBlock; i++ {
		_, err := l.Write(data)
		for tries := 0; errors.Is(err, ErrPoolExhausted) && tries < 1000; tries++ {
			time.Sleep(time.Millisecond)
			_, err = l.Write(data)
		}
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		l.mu.Lock()
		s := l.state
		l.mu.Unlock()
		return s == StateNoSpace
	}, time.Second, time.Millisecond, "worker must latch NO_SPACE once the ring it drains exhausts")

	_, err = l.Write(data)
	require.ErrorIs(t, err, ErrNoSpace)
}

// TestEraseRequiresStop mirrors ringlog's own EraseRequiresIdle check:
// Erase is rejected unless the logger itself has already been stopped.
func TestEraseRequiresStop(t *testing.T) {
	r, _ := newMountedRing(t)
	l := New(16, DefaultSlabCount, nil)
	require.NoError(t, l.Start(r))
	defer l.Stop()

	err := l.Erase()
	require.ErrorIs(t, err, ErrWrongState)
}

// TestEraseForwardsToRingAfterStop: Erase requires the logger to be
// stopped, then forwards to the wrapped ring's Erase.
func TestEraseForwardsToRingAfterStop(t *testing.T) {
	r, _ := newMountedRing(t)
	l := New(16, DefaultSlabCount, nil)
	require.NoError(t, l.Start(r))

	_, err := l.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, l.Stop())

	r.Umount()
	require.NoError(t, l.Erase())
}
