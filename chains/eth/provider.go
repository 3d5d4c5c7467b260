package eth

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/lib/log"
	chainscommon "github.com/sisu-network/renbridge/chains/common"
	"github.com/sisu-network/renbridge/config"
	"go.uber.org/atomic"
)

// Receipt is a transaction receipt together with its number of confirmations when it was read.
type Receipt struct {
	*ethtypes.Receipt
	Confirmations int
}

// Provider gives read access to the transactions of a chain.
type Provider interface {
	// GetTransaction looks up a transaction that was already sent.
	GetTransaction(ctx context.Context, hash common.Hash) (PendingTx, error)

	// Track starts tracking a transaction that was just sent by from. Blocks from startBlock on are
	// searched for replacements.
	Track(tx *ethtypes.Transaction, from common.Address, startBlock uint64) PendingTx
}

// PendingTx is a sent transaction that may not be mined yet.
type PendingTx interface {
	Hash() common.Hash

	// Confirmations returns the number of confirmations seen the last time the transaction was
	// read.
	Confirmations() int

	// Wait blocks until the transaction has at least the given number of confirmations. It fails
	// with a CallExceptionError when the transaction reverted and with a TransactionReplacedError
	// when another transaction with the same nonce was mined instead.
	Wait(ctx context.Context, confirmations int) (*Receipt, error)
}

type defaultProvider struct {
	chain     string
	client    EthClient
	blockTime time.Duration
}

func NewProvider(cfg config.EvmChain, client EthClient) Provider {
	return &defaultProvider{
		chain:     cfg.Chain,
		client:    client,
		blockTime: time.Duration(cfg.BlockTime) * time.Millisecond,
	}
}

func (p *defaultProvider) GetTransaction(ctx context.Context, hash common.Hash) (PendingTx, error) {
	tx, isPending, err := p.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, err
	}

	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	confirmations := 0
	if !isPending {
		receipt, err := p.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			confirmations = confirmationsAt(head, receipt.BlockNumber)
		case !errors.Is(err, ethereum.NotFound):
			return nil, err
		}
	}

	pending := newPendingTx(p, tx, from, head)
	pending.confirmations.Store(int64(confirmations))

	return pending, nil
}

func (p *defaultProvider) Track(tx *ethtypes.Transaction, from common.Address, startBlock uint64) PendingTx {
	return newPendingTx(p, tx, from, startBlock)
}

func confirmationsAt(head uint64, block *big.Int) int {
	if block == nil || head < block.Uint64() {
		return 0
	}

	return int(head-block.Uint64()) + 1
}

type pendingTx struct {
	provider *defaultProvider
	tx       *ethtypes.Transaction
	from     common.Address

	// First block that has not been searched for a replacement.
	scanFrom      uint64
	confirmations *atomic.Int64
}

func newPendingTx(provider *defaultProvider, tx *ethtypes.Transaction, from common.Address, startBlock uint64) *pendingTx {
	return &pendingTx{
		provider:      provider,
		tx:            tx,
		from:          from,
		scanFrom:      startBlock,
		confirmations: atomic.NewInt64(0),
	}
}

func (t *pendingTx) Hash() common.Hash {
	return t.tx.Hash()
}

func (t *pendingTx) Confirmations() int {
	return int(t.confirmations.Load())
}

func (t *pendingTx) Wait(ctx context.Context, confirmations int) (*Receipt, error) {
	client := t.provider.client
	timeTracker := chainscommon.NewBlockTimeTracker(t.provider.blockTime)

	for {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}

		receipt, err := client.TransactionReceipt(ctx, t.Hash())
		switch {
		case err == nil && receipt != nil:
			count := confirmationsAt(head, receipt.BlockNumber)
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return nil, &CallExceptionError{
					Hash:    t.Hash(),
					Reason:  "transaction failed",
					Receipt: &Receipt{Receipt: receipt, Confirmations: count},
				}
			}

			t.confirmations.Store(int64(count))
			if count >= confirmations {
				return &Receipt{Receipt: receipt, Confirmations: count}, nil
			}

		case err == nil || errors.Is(err, ethereum.NotFound):
			replaced, err := t.findReplacement(ctx, head)
			if err != nil {
				return nil, err
			}
			if replaced != nil {
				return nil, replaced
			}

		default:
			return nil, err
		}

		timeTracker.Observe(head)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(timeTracker.SleepTime()):
		}
	}
}

// findReplacement searches the blocks mined since the last search for a transaction of the same
// sender and nonce. It only searches once the sender's mined nonce has moved past the tx nonce.
func (t *pendingTx) findReplacement(ctx context.Context, head uint64) (*TransactionReplacedError, error) {
	client := t.provider.client

	nonce, err := client.NonceAt(ctx, t.from, nil)
	if err != nil {
		return nil, err
	}
	if nonce <= t.tx.Nonce() {
		return nil, nil
	}

	for n := t.scanFrom; n <= head; n++ {
		block, err := client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return nil, err
		}

		for _, other := range block.Transactions() {
			if other.Hash() == t.Hash() {
				// Mined, the receipt is not available on every rpc yet.
				return nil, nil
			}
			if other.Nonce() != t.tx.Nonce() {
				continue
			}

			sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(other.ChainId()), other)
			if err != nil || sender != t.from {
				continue
			}

			receipt, err := client.TransactionReceipt(ctx, other.Hash())
			if err != nil {
				return nil, err
			}

			count := confirmationsAt(head, receipt.BlockNumber)
			replacement := newPendingTx(t.provider, other, t.from, n)
			replacement.confirmations.Store(int64(count))

			log.Infof("Transaction %s on chain %s was replaced by %s", t.Hash(), t.provider.chain, other.Hash())

			return &TransactionReplacedError{
				Hash:        t.Hash(),
				Reason:      replacedReason(t.tx, other, t.from),
				Replacement: replacement,
				Receipt:     &Receipt{Receipt: receipt, Confirmations: count},
			}, nil
		}

		t.scanFrom = n + 1
	}

	return nil, nil
}

func replacedReason(tx, replacement *ethtypes.Transaction, from common.Address) string {
	if len(replacement.Data()) == 0 && replacement.To() != nil && *replacement.To() == from &&
		replacement.Value().Sign() == 0 {
		return ReplacedReasonCancelled
	}

	sameTo := (tx.To() == nil && replacement.To() == nil) ||
		(tx.To() != nil && replacement.To() != nil && *tx.To() == *replacement.To())
	if sameTo && string(tx.Data()) == string(replacement.Data()) && tx.Value().Cmp(replacement.Value()) == 0 {
		return ReplacedReasonRepriced
	}

	return ReplacedReasonReplaced
}
