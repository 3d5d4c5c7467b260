package progress

import (
	"sync"

	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/types"
)

// Tracker owns the progress of one submission. Update is the only way to change it; every update
// is published to all current subscribers in the order it was applied.
type Tracker struct {
	lock     *sync.Mutex
	progress types.ChainTransactionProgress
	subs     map[uint64]*Subscription
	nextId   uint64
}

func NewTracker(initial types.ChainTransactionProgress) *Tracker {
	return &Tracker{
		lock:     &sync.Mutex{},
		progress: initial,
		subs:     make(map[uint64]*Subscription),
	}
}

// Current returns a copy of the latest progress.
func (t *Tracker) Current() types.ChainTransactionProgress {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.progress
}

// Update applies f to a copy of the current progress, stores the copy and publishes it. Once the
// progress is terminal it is never changed again; the terminal value is returned unchanged.
func (t *Tracker) Update(f func(p *types.ChainTransactionProgress)) types.ChainTransactionProgress {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.progress.Status.IsTerminal() {
		log.Verbosef("Ignoring update of terminal progress %s", t.progress)
		return t.progress
	}

	next := t.progress
	f(&next)
	t.progress = next

	for _, sub := range t.subs {
		sub.push(next)
	}

	return next
}

// Subscribe returns a subscription receiving every update applied after this call.
func (t *Tracker) Subscribe() *Subscription {
	t.lock.Lock()
	defer t.lock.Unlock()

	id := t.nextId
	t.nextId++

	sub := newSubscription(id, t)
	t.subs[id] = sub

	return sub
}

func (t *Tracker) remove(id uint64) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.subs, id)
}
