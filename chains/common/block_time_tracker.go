package common

import (
	"sync"
	"time"
)

const (
	// Lower bound of the poll interval.
	MinSleepTime = 500 * time.Millisecond

	// Number of consecutive new heads after which the interval drops faster.
	fastDropHits = 3
)

// BlockTimeTracker paces polling against the chain head. The interval shrinks while every poll sees
// a new head and grows when a poll sees the same head again.
type BlockTimeTracker struct {
	lock           *sync.RWMutex
	current        time.Duration
	consecutiveHit int
	lastHead       uint64
}

func NewBlockTimeTracker(blockTime time.Duration) *BlockTimeTracker {
	return &BlockTimeTracker{
		lock:    &sync.RWMutex{},
		current: blockTime,
	}
}

// Observe records the head seen by a poll. The first head only sets the reference point.
func (t *BlockTimeTracker) Observe(head uint64) {
	t.lock.Lock()
	last := t.lastHead
	if head > last {
		t.lastHead = head
	}
	t.lock.Unlock()

	switch {
	case last == 0:
	case head > last+1:
		// More than one block passed since the last poll.
		t.HitBlockWithMinorDelay()
	case head == last+1:
		t.HitBlock()
	default:
		t.MissBlock()
	}
}

// HitBlock is called when exactly one new block was produced since the last poll.
func (t *BlockTimeTracker) HitBlock() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.consecutiveHit++
	if t.consecutiveHit >= fastDropHits {
		t.current = t.current * 6 / 10
	} else {
		t.current = t.current * 95 / 100
	}

	if t.current < MinSleepTime {
		t.current = MinSleepTime
	}
}

// HitBlockWithMinorDelay is called when the poll came late and skipped over a block.
func (t *BlockTimeTracker) HitBlockWithMinorDelay() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.current = t.current * 1025 / 1000
	t.consecutiveHit = 0
}

// MissBlock is called when no new block was produced since the last poll.
func (t *BlockTimeTracker) MissBlock() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.current = t.current * 11 / 10
	t.consecutiveHit = 0
}

func (t *BlockTimeTracker) SleepTime() time.Duration {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.current
}
