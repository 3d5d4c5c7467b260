package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	ReplacedReasonCancelled = "cancelled"
	ReplacedReasonReplaced  = "replaced"
	ReplacedReasonRepriced  = "repriced"
)

// TransactionReplacedError is returned by PendingTx.Wait when another transaction with the same
// sender and nonce was mined instead of the awaited one.
type TransactionReplacedError struct {
	Hash        common.Hash
	Reason      string
	Replacement PendingTx
	Receipt     *Receipt
}

func (e *TransactionReplacedError) Error() string {
	return fmt.Sprintf("transaction %s was %s by %s", e.Hash, e.Reason, e.Replacement.Hash())
}

// CallExceptionError is returned by PendingTx.Wait when the transaction was mined but reverted.
type CallExceptionError struct {
	Hash    common.Hash
	Reason  string
	Receipt *Receipt
}

func (e *CallExceptionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.Hash, e.Reason)
}
