package chains

import (
	"context"

	"github.com/sisu-network/renbridge/chains/progress"
	"github.com/sisu-network/renbridge/types"
)

// TxSubmitter drives a single transaction on one chain to completion. T is the exported
// transaction form and O the options accepted by Export and Submit.
type TxSubmitter[T any, O any] interface {
	Chain() string

	// Progress returns a copy of the latest progress.
	Progress() types.ChainTransactionProgress

	// Subscribe returns a subscription receiving every later progress update.
	Subscribe() *progress.Subscription

	// Export builds the transaction without sending it.
	Export(ctx context.Context, options O) (T, error)

	// Submit makes sure the transaction exists on chain. Calling it again never creates a second
	// transaction.
	Submit(ctx context.Context, options O) *progress.Operation

	// Wait resolves once the transaction has target confirmations or reached a terminal status. A
	// target <= 0 means the submitter's own target.
	Wait(ctx context.Context, target int) *progress.Operation
}
