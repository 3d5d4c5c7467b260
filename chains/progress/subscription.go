package progress

import (
	"sync"

	"github.com/sisu-network/renbridge/types"
)

// Subscription delivers progress updates in order through C. Updates are queued without bound so
// that publishing never blocks the submitter. Nothing is delivered until C is first called; the
// queued updates are then replayed in order.
type Subscription struct {
	id      uint64
	tracker *Tracker
	out     chan types.ChainTransactionProgress

	lock    *sync.Mutex
	queue   []types.ChainTransactionProgress
	closing bool

	notify     chan struct{}
	stop       chan struct{}
	removeOnce *sync.Once
	stopOnce   *sync.Once
	startOnce  *sync.Once
}

func newSubscription(id uint64, tracker *Tracker) *Subscription {
	s := &Subscription{
		id:         id,
		tracker:    tracker,
		out:        make(chan types.ChainTransactionProgress),
		lock:       &sync.Mutex{},
		queue:      make([]types.ChainTransactionProgress, 0),
		notify:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		removeOnce: &sync.Once{},
		stopOnce:   &sync.Once{},
		startOnce:  &sync.Once{},
	}

	return s
}

// C returns the channel of updates. It is closed after Close or Unsubscribe.
func (s *Subscription) C() <-chan types.ChainTransactionProgress {
	s.startOnce.Do(func() {
		go s.pump()
	})

	return s.out
}

// Close stops receiving new updates. Updates already queued are still delivered before C is
// closed.
func (s *Subscription) Close() {
	s.detach()

	s.lock.Lock()
	s.closing = true
	s.lock.Unlock()

	s.wake()
}

// Unsubscribe stops the subscription and drops any queued update.
func (s *Subscription) Unsubscribe() {
	s.detach()
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Subscription) detach() {
	s.removeOnce.Do(func() {
		s.tracker.remove(s.id)
	})
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) push(p types.ChainTransactionProgress) {
	s.lock.Lock()
	if s.closing {
		s.lock.Unlock()
		return
	}
	s.queue = append(s.queue, p)
	s.lock.Unlock()

	s.wake()
}

func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.lock.Lock()
		if len(s.queue) == 0 {
			closing := s.closing
			s.lock.Unlock()

			if closing {
				return
			}

			select {
			case <-s.notify:
				continue
			case <-s.stop:
				return
			}
		}

		next := s.queue[0]
		s.queue = s.queue[1:]
		s.lock.Unlock()

		select {
		case s.out <- next:
		case <-s.stop:
			return
		}
	}
}
