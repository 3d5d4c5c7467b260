package eth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/chains"
	"github.com/sisu-network/renbridge/chains/progress"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/types"
	"github.com/sisu-network/renbridge/utils"
)

var _ chains.TxSubmitter[*TxRequest, TxOptions] = (*TxSubmitter)(nil)

type TxSubmitterParams struct {
	Network   config.EvmChain
	GetSigner func() Signer
	Chain     string
	Payload   Payload

	// Number of confirmations required. The network's target is used when it is not positive.
	Target int

	GetPayloadHandler func(payloadType string) (PayloadHandler, error)
	GetParams         func() ParamValues

	// Called once with the first receipt seen by Wait.
	OnReceipt func(receipt *Receipt) error

	// Returns a transaction sent earlier for the same payload or nil.
	FindExistingTransaction func(ctx context.Context) (*types.ChainTransaction, error)
}

// TxSubmitter sends one transaction to an EVM chain and tracks it until it has enough
// confirmations.
type TxSubmitter struct {
	network                 config.EvmChain
	chain                   string
	payload                 Payload
	getSigner               func() Signer
	getPayloadHandler       func(payloadType string) (PayloadHandler, error)
	getParams               func() ParamValues
	findExistingTransaction func(ctx context.Context) (*types.ChainTransaction, error)

	tracker *progress.Tracker

	lock          *sync.Mutex
	submitLock    *sync.Mutex
	tx            PendingTx
	confirmations int
	onReceipt     func(receipt *Receipt) error

	retryTime time.Duration
}

func NewTxSubmitter(params TxSubmitterParams) *TxSubmitter {
	target := params.Target
	if target <= 0 {
		target = params.Network.Target
	}

	getParams := params.GetParams
	if getParams == nil {
		getParams = func() ParamValues { return ParamValues{} }
	}

	return &TxSubmitter{
		network:                 params.Network,
		chain:                   params.Chain,
		payload:                 params.Payload,
		getSigner:               params.GetSigner,
		getPayloadHandler:       params.GetPayloadHandler,
		getParams:               getParams,
		findExistingTransaction: params.FindExistingTransaction,
		onReceipt:               params.OnReceipt,
		tracker: progress.NewTracker(types.ChainTransactionProgress{
			Chain:  params.Chain,
			Status: types.ChainTransactionStatusReady,
			Target: target,
		}),
		lock:       &sync.Mutex{},
		submitLock: &sync.Mutex{},
		retryTime:  time.Second * 5,
	}
}

func (s *TxSubmitter) Chain() string {
	return s.chain
}

func (s *TxSubmitter) Progress() types.ChainTransactionProgress {
	return s.tracker.Current()
}

func (s *TxSubmitter) Subscribe() *progress.Subscription {
	return s.tracker.Subscribe()
}

func (s *TxSubmitter) signer() Signer {
	if s.getSigner == nil {
		return nil
	}

	return s.getSigner()
}

func (s *TxSubmitter) Export(ctx context.Context, options TxOptions) (*TxRequest, error) {
	return s.export(ctx, s.signer(), options)
}

func (s *TxSubmitter) export(ctx context.Context, signer Signer, options TxOptions) (*TxRequest, error) {
	if s.getPayloadHandler == nil {
		return nil, types.NewErrorWithCode(types.ErrCodePayloadHandler, "no payload handler for %s", s.payload.Type)
	}

	handler, err := s.getPayloadHandler(s.payload.Type)
	if err != nil {
		return nil, err
	}

	return handler.Export(ctx, &ExportRequest{
		Network:           s.network,
		Signer:            signer,
		Payload:           s.payload,
		Params:            s.getParams(),
		Options:           options,
		GetPayloadHandler: s.getPayloadHandler,
	})
}

func (s *TxSubmitter) Submit(ctx context.Context, options TxOptions) *progress.Operation {
	return progress.Run(ctx, s.tracker, func(ctx context.Context, op *progress.Operation) (types.ChainTransactionProgress, error) {
		return s.submit(ctx, options)
	})
}

func (s *TxSubmitter) submit(ctx context.Context, options TxOptions) (types.ChainTransactionProgress, error) {
	s.submitLock.Lock()
	defer s.submitLock.Unlock()

	signer := s.signer()
	if signer == nil {
		return s.tracker.Current(), types.NewErrorWithCode(types.ErrCodeSignerNotConnected,
			"must connect %s signer", s.chain)
	}

	s.lock.Lock()
	tx := s.tx
	s.lock.Unlock()

	if tx == nil && s.findExistingTransaction != nil && signer.Provider() != nil {
		existing, err := s.findExistingTransaction(ctx)
		if err != nil {
			return s.tracker.Current(), err
		}

		if existing != nil {
			if existing.TxidFormatted == "" {
				log.Verbosef("Transaction on chain %s was already completed", s.chain)
				return s.tracker.Update(func(p *types.ChainTransactionProgress) {
					p.Status = types.ChainTransactionStatusDone
					p.Confirmations = p.Target
				}), nil
			}

			tx, err = signer.Provider().GetTransaction(ctx, common.HexToHash(existing.TxidFormatted))
			if err != nil {
				return s.tracker.Current(), err
			}
			log.Infof("Found existing transaction %s on chain %s", existing.TxidFormatted, s.chain)
		}
	}

	if tx == nil {
		if signer.Provider() == nil {
			return s.tracker.Current(), types.NewErrorWithCode(types.ErrCodeProviderNotConnected,
				"EVM signer has no connected provider")
		}

		req, err := s.export(ctx, signer, options)
		if err != nil {
			return s.tracker.Current(), err
		}

		tx, err = signer.SendTransaction(ctx, req)
		if err != nil {
			return s.tracker.Current(), err
		}
	}

	s.lock.Lock()
	s.tx = tx
	s.confirmations = tx.Confirmations()
	s.lock.Unlock()

	return s.tracker.Update(func(p *types.ChainTransactionProgress) {
		p.Status = types.ChainTransactionStatusConfirming
		p.Transaction = types.TxHashToChainTransaction(s.chain, tx.Hash())
		p.Confirmations = tx.Confirmations()
	}), nil
}

func (s *TxSubmitter) Wait(ctx context.Context, target int) *progress.Operation {
	return progress.Run(ctx, s.tracker, func(ctx context.Context, op *progress.Operation) (types.ChainTransactionProgress, error) {
		if s.network.WaitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.network.WaitTimeout)*time.Second)
			defer cancel()
		}

		ret, err := s.wait(ctx, target)
		if errors.Is(err, context.DeadlineExceeded) && s.network.WaitTimeout > 0 {
			return ret, types.WrapErrorWithCode(types.ErrCodeWaitTimeout, err,
				"transaction on chain %s did not reach its target within %d seconds", s.chain, s.network.WaitTimeout)
		}

		return ret, err
	})
}

func (s *TxSubmitter) wait(ctx context.Context, target int) (types.ChainTransactionProgress, error) {
	current := s.tracker.Current()
	if current.Status == types.ChainTransactionStatusReady {
		return current, types.NewErrorWithCode(types.ErrCodeSubmitNotCalled, "must call submit first")
	}

	if target <= 0 {
		target = current.Target
	}

	for {
		s.lock.Lock()
		tx, confirmations, hasCallback := s.tx, s.confirmations, s.onReceipt != nil
		s.lock.Unlock()

		if tx == nil || (confirmations >= target && !hasCallback) {
			break
		}

		if err := ctx.Err(); err != nil {
			return s.tracker.Current(), err
		}

		wanted := utils.MinInt(confirmations+1, target)

		receipt, err := tx.Wait(ctx, wanted)
		if err != nil {
			ret, retry, err := s.handleWaitErr(ctx, tx, target, err)
			if !retry {
				return ret, err
			}
			continue
		}

		if err := s.fireOnReceipt(receipt); err != nil {
			return s.tracker.Current(), err
		}

		recorded := utils.MinInt(receipt.Confirmations, wanted)

		s.lock.Lock()
		previous := s.confirmations
		s.confirmations = recorded
		s.lock.Unlock()

		if recorded > previous {
			s.tracker.Update(func(p *types.ChainTransactionProgress) {
				p.Status = types.ChainTransactionStatusConfirming
				if recorded >= p.Target {
					p.Status = types.ChainTransactionStatusDone
				}
				p.Transaction = types.TxHashToChainTransaction(s.chain, tx.Hash())
				p.Confirmations = recorded
			})
		}
	}

	s.lock.Lock()
	tx, confirmations := s.tx, s.confirmations
	s.lock.Unlock()

	current = s.tracker.Current()
	if current.Status != types.ChainTransactionStatusDone && tx != nil && confirmations >= current.Target {
		current = s.tracker.Update(func(p *types.ChainTransactionProgress) {
			p.Status = types.ChainTransactionStatusDone
		})
	}

	return current, nil
}

// handleWaitErr returns whether the wait loop should continue. Otherwise it returns the final
// progress and error.
func (s *TxSubmitter) handleWaitErr(ctx context.Context, tx PendingTx, target int, err error) (
	types.ChainTransactionProgress, bool, error) {
	replacedErr := &TransactionReplacedError{}
	callErr := &CallExceptionError{}

	switch {
	case errors.As(err, &replacedErr):
		replacement := replacedErr.Replacement
		confirmations := replacement.Confirmations()
		if replacedErr.Receipt != nil {
			confirmations = replacedErr.Receipt.Confirmations
		}

		s.lock.Lock()
		s.tx = replacement
		s.confirmations = confirmations
		s.lock.Unlock()

		log.Warnf("Transaction %s on chain %s was %s by %s", tx.Hash(), s.chain, replacedErr.Reason,
			replacement.Hash())

		s.tracker.Update(func(p *types.ChainTransactionProgress) {
			p.Status = types.ChainTransactionStatusConfirming
			p.Transaction = types.TxHashToChainTransaction(s.chain, replacement.Hash())
			p.Target = target
			p.Confirmations = confirmations
			p.Replaced = types.TxHashToChainTransaction(s.chain, tx.Hash())
		})

		return types.ChainTransactionProgress{}, true, nil

	case errors.As(err, &callErr):
		confirmations := 0
		if callErr.Receipt != nil {
			confirmations = callErr.Receipt.Confirmations
		}

		ret := s.tracker.Update(func(p *types.ChainTransactionProgress) {
			p.Status = types.ChainTransactionStatusReverted
			p.Transaction = types.TxHashToChainTransaction(s.chain, tx.Hash())
			p.Target = target
			p.Confirmations = confirmations
			p.RevertReason = callErr.Error()
		})

		return ret, false, err

	case ctx.Err() != nil:
		return s.tracker.Current(), false, ctx.Err()
	}

	log.Errorf("Failed to wait for transaction %s on chain %s, err = %s", tx.Hash(), s.chain, err)

	select {
	case <-ctx.Done():
		return s.tracker.Current(), false, ctx.Err()
	case <-time.After(s.retryTime):
	}

	return types.ChainTransactionProgress{}, true, nil
}

func (s *TxSubmitter) fireOnReceipt(receipt *Receipt) error {
	s.lock.Lock()
	onReceipt := s.onReceipt
	s.onReceipt = nil
	s.lock.Unlock()

	if onReceipt == nil {
		return nil
	}

	return onReceipt(receipt)
}
