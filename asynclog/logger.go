// Package asynclog implements the asynchronous logging front end: a
// single-producer byte-append API that accumulates into page-sized
// slabs drawn from a fixed pool, and a background worker that drains a
// bounded mailbox of filled slabs into the ring engine, so a producer
// writing log records never blocks on NAND I/O. Stop flushes the tail
// buffer and blocks until every already-mailed page has been written.
package asynclog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nandring/internal/util"
	"nandring/ringlog"
)

// DefaultSlabCount is the number of page-sized slabs the logger
// pre-allocates.
const DefaultSlabCount = 3

// State is the logger's state machine: UNINIT, READY (accepting
// Write), NO_SPACE (worker latched this once the ring it drains
// exhausted its good blocks, but keeps draining), STOP (worker not
// running).
type State int

const (
	StateUninit State = iota
	StateReady
	StateNoSpace
	StateStop
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "UNINIT"
	case StateReady:
		return "READY"
	case StateNoSpace:
		return "NO_SPACE"
	case StateStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrWrongState is returned when an operation's state precondition
	// isn't met.
	ErrWrongState = errors.New("asynclog: wrong state for operation")
	// ErrPoolExhausted is returned by Write, with a zero count, when
	// there is no accumulation buffer and every slab is still mailed or
	// held by the worker.
	ErrPoolExhausted = errors.New("asynclog: slab pool exhausted")
	// ErrNoSpace is returned by Write once the worker has latched
	// NO_SPACE after the ring it drains reported exhaustion.
	ErrNoSpace = errors.New("asynclog: ring reported no space")
)

// Logger accumulates caller-supplied bytes into page-sized slabs and
// hands full slabs to a background worker that appends them to a ring.
// Write is safe to call only from the single producer goroutine; Stop
// must not race with Write.
type Logger struct {
	pageSize  int
	slabCount int
	log       *zap.Logger

	mu    sync.Mutex
	state State

	ring *ringlog.Ring

	free chan []byte // slabs available to accumulate into
	mail chan []byte // slabs filled and awaiting the worker

	cur    []byte // current accumulation target, nil if pool exhausted
	curLen int    // bytes already written into cur

	wg     *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a Logger in the UNINIT state. pageSize is the ring's
// PageDataSize; slabCount defaults to DefaultSlabCount when zero.
// logger may be nil.
func New(pageSize, slabCount int, logger *zap.Logger) *Logger {
	if slabCount <= 0 {
		slabCount = DefaultSlabCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{
		pageSize:  pageSize,
		slabCount: slabCount,
		log:       logger,
		state:     StateUninit,
	}
}

// Start allocates the slab pool and launches the worker goroutine,
// transitioning UNINIT/STOP→READY. Precondition: ring must be MOUNTED.
func (l *Logger) Start(ring *ringlog.Ring) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateReady || l.state == StateNoSpace {
		return fmt.Errorf("%w: Start requires UNINIT or STOP, got %s", ErrWrongState, l.state)
	}
	if ring.State() != ringlog.StateMounted {
		return fmt.Errorf("asynclog: Start requires a MOUNTED ring, got %s", ring.State())
	}

	l.ring = ring
	l.free = make(chan []byte, l.slabCount)
	l.mail = make(chan []byte, l.slabCount)
	for i := 0; i < l.slabCount; i++ {
		l.free <- make([]byte, l.pageSize)
	}

	l.cur = <-l.free
	l.curLen = 0

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	wg, wctx := errgroup.WithContext(ctx)
	l.wg = wg
	wg.Go(func() error {
		return l.worker(wctx)
	})

	l.state = StateReady
	return nil
}

// Write copies data into the accumulation buffer, mailing it to the
// worker and drawing a fresh slab from the pool each time it fills. It
// returns the number of bytes actually consumed, which is less than
// len(data) only once the slab pool is exhausted: backpressure without
// blocking the caller. A short non-zero count comes with a nil error;
// when no slab is free at all on entry, Write returns 0 and
// ErrPoolExhausted. Both mean "try later".
func (l *Logger) Write(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateNoSpace {
		return 0, ErrNoSpace
	}
	if l.state != StateReady {
		return 0, fmt.Errorf("%w: Write requires READY, got %s", ErrWrongState, l.state)
	}
	if len(data) == 0 {
		return 0, nil
	}

	if l.cur == nil {
		select {
		case l.cur = <-l.free:
			l.curLen = 0
		default:
			return 0, ErrPoolExhausted
		}
	}

	written := 0
	for written < len(data) {
		room := l.pageSize - l.curLen
		n := util.Min(len(data)-written, room)
		copy(l.cur[l.curLen:], data[written:written+n])
		l.curLen += n
		written += n

		if l.curLen < l.pageSize {
			break
		}

		full := l.cur
		select {
		case l.mail <- full:
		default:
			// Mailbox is sized equal to the pool, so this cannot
			// actually block; guard kept for symmetry with the pool
			// drain below.
		}

		select {
		case l.cur = <-l.free:
			l.curLen = 0
		default:
			l.cur = nil
			l.curLen = 0
			return written, nil
		}
	}
	return written, nil
}

// zeroTail pads the partially filled accumulation buffer with zeros
// and mails it.
func (l *Logger) zeroTail() {
	if l.cur == nil {
		return
	}
	for i := l.curLen; i < len(l.cur); i++ {
		l.cur[i] = 0
	}
	l.mail <- l.cur
	l.cur = nil
	l.curLen = 0
}

// Stop flushes any partially filled buffer, waits for the worker to
// drain the mailbox of every already-mailed page, and transitions
// READY→STOP. It is a no-op if already stopped. The returned error is
// the most recent AppendPage failure the worker observed (e.g. the
// ring going NO_SPACE mid-stream), or nil.
func (l *Logger) Stop() error {
	l.mu.Lock()
	if l.state != StateReady && l.state != StateNoSpace {
		l.mu.Unlock()
		return nil
	}
	l.zeroTail()
	l.state = StateStop
	cancel := l.cancel
	wg := l.wg
	l.mu.Unlock()

	cancel()
	return wg.Wait()
}

// Erase forwards to the wrapped ring's Erase. Precondition: STOP.
func (l *Logger) Erase() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateStop {
		return fmt.Errorf("%w: Erase requires STOP, got %s", ErrWrongState, l.state)
	}
	return l.ring.Erase()
}

// worker drains l.mail into the ring until ctx is cancelled, then
// fully drains whatever remains in the mailbox before exiting. It
// returns the last append error observed, surfaced to Stop through the
// errgroup. If an append reports the ring is out of space, the worker
// latches the logger's own state to NO_SPACE but keeps draining so
// every accepted slab is still released back to the pool.
func (l *Logger) worker(ctx context.Context) error {
	var lastErr error
	for {
		select {
		case buf := <-l.mail:
			if err := l.appendPage(buf); err != nil {
				lastErr = err
			}
		case <-ctx.Done():
			if err := l.drainMailbox(); err != nil {
				lastErr = err
			}
			return lastErr
		}
	}
}

func (l *Logger) drainMailbox() error {
	var lastErr error
	for {
		select {
		case buf := <-l.mail:
			if err := l.appendPage(buf); err != nil {
				lastErr = err
			}
		default:
			return lastErr
		}
	}
}

func (l *Logger) appendPage(buf []byte) error {
	err := l.ring.AppendPage(buf)
	if err != nil {
		l.log.Error("asynclog: append failed", zap.Error(err))
		if errors.Is(err, ringlog.ErrNoSpace) {
			l.latchNoSpace()
		}
	}
	select {
	case l.free <- buf:
	default:
		// Pool is sized to exactly cover in-flight slabs; this never
		// actually blocks.
	}
	return err
}

// latchNoSpace moves a READY logger to NO_SPACE once its ring has
// reported exhaustion. It never moves a STOP logger back to NO_SPACE:
// Stop() owns the terminal transition once it has been called.
func (l *Logger) latchNoSpace() {
	l.mu.Lock()
	if l.state == StateReady {
		l.state = StateNoSpace
	}
	l.mu.Unlock()
}
