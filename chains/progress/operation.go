package progress

import (
	"context"
	"sync"

	"github.com/sisu-network/renbridge/types"
	"go.uber.org/atomic"
)

// Operation is the result of a submitter call. It resolves exactly once with the final progress or
// an error, and exposes the progress updates published while it ran through Events.
type Operation struct {
	events *Subscription
	done   chan struct{}

	cancelled  *atomic.Bool
	cancelCh   chan struct{}
	cancelOnce *sync.Once

	result types.ChainTransactionProgress
	err    error
}

// Run starts f in its own goroutine. The returned operation observes every update made to tracker
// from now until f returns.
func Run(
	ctx context.Context,
	tracker *Tracker,
	f func(ctx context.Context, op *Operation) (types.ChainTransactionProgress, error),
) *Operation {
	op := &Operation{
		events:     tracker.Subscribe(),
		done:       make(chan struct{}),
		cancelled:  atomic.NewBool(false),
		cancelCh:   make(chan struct{}),
		cancelOnce: &sync.Once{},
	}

	go func() {
		result, err := f(ctx, op)

		op.result = result
		op.err = err
		op.events.Close()
		close(op.done)
	}()

	return op
}

// Events returns the progress updates published during the operation. The channel is closed
// after the operation resolved and every update has been read.
func (op *Operation) Events() <-chan types.ChainTransactionProgress {
	return op.events.C()
}

func (op *Operation) Done() <-chan struct{} {
	return op.done
}

// Await blocks until the operation resolves or ctx is done.
func (op *Operation) Await(ctx context.Context) (types.ChainTransactionProgress, error) {
	select {
	case <-op.done:
		return op.result, op.err
	case <-ctx.Done():
		return types.ChainTransactionProgress{}, ctx.Err()
	}
}

// Result blocks until the operation resolves.
func (op *Operation) Result() (types.ChainTransactionProgress, error) {
	<-op.done
	return op.result, op.err
}

// Cancel asks the operation to stop. Only polling loops that check IsCancelled honor it.
func (op *Operation) Cancel() {
	op.cancelOnce.Do(func() {
		op.cancelled.Store(true)
		close(op.cancelCh)
	})
}

func (op *Operation) IsCancelled() bool {
	return op.cancelled.Load()
}

// Cancelled is closed when Cancel is called.
func (op *Operation) Cancelled() <-chan struct{} {
	return op.cancelCh
}
