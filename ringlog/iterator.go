package ringlog

import "fmt"

// Kind classifies how a mounted ring's session history looks at Bind
// time.
type Kind int

const (
	// NoSession means the ring has never completed a page write
	// (cur_id == 1).
	NoSession Kind = iota
	// SingleSession means the block after cur_blk has no valid page-0
	// header: the ring has not lapped, so the full session chain back to
	// the ring's first good block is intact on media.
	SingleSession
	// LoopedSession means that block's back_link equals cur_back_link:
	// one session has filled or lapped the entire ring.
	LoopedSession
	// MultiSession means that block holds a different session's header:
	// the ring has lapped across more than one session.
	MultiSession
)

func (k Kind) String() string {
	switch k {
	case NoSession:
		return "NO_SESSION"
	case SingleSession:
		return "SINGLE_SESSION"
	case LoopedSession:
		return "LOOPED_SESSION"
	case MultiSession:
		return "MULTI_SESSION"
	default:
		return "UNKNOWN"
	}
}

// RingSession describes one session emitted by the iterator, identified
// by the first and last page written during it.
type RingSession struct {
	ID            uint64
	TimeBootUs    uint64
	UTCCorrection uint32
	FirstBlk      int
	LastBlk       int
	LastPage      int
	Failed        bool
}

// SessionIterator walks a mounted ring's sessions backward in time
// (newest first). It borrows the ring exclusively: no AppendPage is
// permitted while a SessionIterator is bound.
type SessionIterator struct {
	ring *Ring

	kind     Kind
	lastBlk  int
	notch    int
	yielded  int
	visited  map[int]bool
	finished bool
}

// Bind classifies the ring's session history and transitions
// MOUNTED→ITERATOR_BOUNDED.
func (r *Ring) Bind() (*SessionIterator, error) {
	if r.state != StateMounted {
		return nil, fmt.Errorf("%w: Bind requires MOUNTED, got %s", ErrWrongState, r.state)
	}

	it := &SessionIterator{ring: r, notch: r.curBackLink, visited: make(map[int]bool)}

	if r.curID == firstID {
		it.kind = NoSession
		it.finished = true
		r.state = StateIteratorBounded
		return it, nil
	}

	lastBlk, ok := r.lastWrittenBlock()
	if !ok {
		return nil, fmt.Errorf("ringlog: bind invariant violated: mounted ring has no written block")
	}
	it.lastBlk = lastBlk
	it.visited[lastBlk] = true

	nextBlk, ok := r.nextGood(r.curBlk)
	if !ok {
		return nil, fmt.Errorf("ringlog: bind invariant violated: no good block after cur_blk")
	}
	nextHdr, valid, err := r.readHeader(nextBlk, 0)
	if err != nil {
		return nil, err
	}
	switch {
	case !valid:
		it.kind = SingleSession
	case int(nextHdr.BackLink) == r.curBackLink:
		it.kind = LoopedSession
	default:
		it.kind = MultiSession
	}

	r.state = StateIteratorBounded
	return it, nil
}

// Finished reports whether the iterator has no more sessions to yield.
func (it *SessionIterator) Finished() bool { return it.finished }

// Kind reports the session-history classification computed at Bind.
func (it *SessionIterator) Kind() Kind { return it.kind }

// Next yields the next session moving backward in time. Calling Next
// once Finished is true is a programming error and panics, matching the
// precondition-checked style the rest of this package uses.
//
// Termination: a LOOPED_SESSION ring has exactly one session to yield.
// Otherwise the walk follows each session's back_link to its
// predecessor and stops at the oldest session ever written (its
// back_link is the ring's own last block). On a lapped ring it also
// stops when the chain leads back into blocks the still-open session
// has overwritten (their back_link equals the notch recorded at Bind),
// or when it revisits a block it has already walked through.
func (it *SessionIterator) Next() (RingSession, error) {
	if it.finished {
		panic("ringlog: Next called on a finished SessionIterator")
	}
	r := it.ring

	lastPage, ok := r.lastWrittenPage(it.lastBlk)
	if !ok {
		it.finished = true
		return RingSession{Failed: true}, nil
	}
	lastHdr, valid, err := r.readHeader(it.lastBlk, lastPage)
	if err != nil {
		return RingSession{}, err
	}
	if !valid {
		it.finished = true
		return RingSession{Failed: true}, nil
	}

	var firstBlk int
	if it.kind == LoopedSession {
		firstBlk, ok = r.nextGood(r.curBlk)
		it.finished = true
	} else {
		firstBlk, ok = r.nextGood(int(lastHdr.BackLink))
	}
	if !ok {
		it.finished = true
		return RingSession{Failed: true}, nil
	}

	firstHdr, firstValid, err := r.readHeader(firstBlk, 0)
	if err != nil {
		return RingSession{}, err
	}
	if !firstValid || firstHdr.BackLink != lastHdr.BackLink || firstHdr.ID == lastHdr.ID {
		it.finished = true
		return RingSession{Failed: true}, nil
	}

	if it.kind != LoopedSession {
		if it.yielded > 0 && int(firstHdr.BackLink) == it.notch {
			// The chain led back into the still-open session's blocks;
			// everything from here on was already yielded.
			it.finished = true
			return RingSession{Failed: true}, nil
		}
		if int(lastHdr.BackLink) == r.cfg.lastBlk() {
			// The oldest session ever written: its back link is the
			// ring's own last block, there is nothing before it.
			it.finished = true
		}
	}

	session := RingSession{
		ID:            firstHdr.ID,
		TimeBootUs:    firstHdr.TimeBootUs,
		UTCCorrection: lastHdr.UTCCorrection,
		FirstBlk:      firstBlk,
		LastBlk:       it.lastBlk,
		LastPage:      lastPage,
	}
	it.yielded++

	next := int(lastHdr.BackLink)
	if it.visited[next] {
		it.finished = true
	}
	it.visited[next] = true
	it.lastBlk = next

	return session, nil
}

// Release returns the ring to MOUNTED. Precondition: the iterator was
// bound against this ring.
func (it *SessionIterator) Release() {
	it.ring.state = StateMounted
}
