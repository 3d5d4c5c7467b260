package renvm

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/chains"
	"github.com/sisu-network/renbridge/chains/progress"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/types"
	"github.com/sisu-network/renbridge/utils"
)

const Chain = "RenVM"

var (
	_ chains.TxSubmitter[types.TransactionInput, SubmitOptions] = (*TxSubmitter)(nil)

	// Errors returned while RenVM has not seen the transaction yet.
	notFoundRegex = regexp.MustCompile(`(not found)|(not available)`)

	errEmptyResponse = errors.New("empty RenVM response")
)

type SubmitOptions struct {
	// Number of submit/query attempts. The configured value is used when it is not positive.
	Retries int
}

// SignatureCallback is called with the response of a transaction that completed without a revert.
type SignatureCallback func(ctx context.Context, response *types.RenVMTxWithStatus) error

// TxSubmitter submits a transaction to RenVM and polls it until RenVM is done with it.
type TxSubmitter struct {
	client            Client
	tx                types.TransactionInput
	signatureCallback SignatureCallback

	submitRetries int
	queryRetries  int
	pollInterval  time.Duration

	tracker    *progress.Tracker
	submitLock *sync.Mutex
}

func NewTxSubmitter(cfg config.RenVM, client Client, tx types.TransactionInput,
	signatureCallback SignatureCallback) (*TxSubmitter, error) {
	tx, err := NormalizeTransactionInput(tx)
	if err != nil {
		return nil, err
	}

	txid, err := utils.FromURLBase64(tx.Hash)
	if err != nil {
		return nil, types.WrapErrorWithCode(types.ErrCodeInvalidTxHash, err, "invalid hash %s", tx.Hash)
	}

	cfg = cfg.WithDefaults()

	return &TxSubmitter{
		client:            client,
		tx:                tx,
		signatureCallback: signatureCallback,
		submitRetries:     cfg.SubmitRetries,
		queryRetries:      cfg.QueryRetries,
		pollInterval:      time.Duration(cfg.PollInterval) * time.Second,
		tracker: progress.NewTracker(types.ChainTransactionProgress{
			Chain:  Chain,
			Status: types.ChainTransactionStatusReady,
			Target: 1,
			Transaction: &types.ChainTransaction{
				Chain:         Chain,
				Txid:          txid,
				TxidFormatted: tx.Hash,
				Txindex:       "0",
			},
		}),
		submitLock: &sync.Mutex{},
	}, nil
}

func (s *TxSubmitter) Chain() string {
	return Chain
}

func (s *TxSubmitter) Hash() string {
	return s.tx.Hash
}

func (s *TxSubmitter) Progress() types.ChainTransactionProgress {
	return s.tracker.Current()
}

func (s *TxSubmitter) Subscribe() *progress.Subscription {
	return s.tracker.Subscribe()
}

func (s *TxSubmitter) Export(ctx context.Context, options SubmitOptions) (types.TransactionInput, error) {
	return s.tx, nil
}

// Query polls the transaction once.
func (s *TxSubmitter) Query(ctx context.Context) (types.ChainTransactionProgress, error) {
	response, err := s.client.QueryTx(ctx, s.tx.Hash, s.queryRetries)
	if err == nil && response == nil {
		err = errEmptyResponse
	}
	if err != nil {
		return s.tracker.Current(), err
	}

	if response.TxStatus.IsTerminal() {
		return s.handleDone(ctx, response)
	}

	return s.tracker.Update(func(p *types.ChainTransactionProgress) {
		p.Status = types.ChainTransactionStatusConfirming
		p.Response = response
	}), nil
}

func (s *TxSubmitter) Submit(ctx context.Context, options SubmitOptions) *progress.Operation {
	return progress.Run(ctx, s.tracker, func(ctx context.Context, op *progress.Operation) (types.ChainTransactionProgress, error) {
		return s.submit(ctx, options)
	})
}

// submit alternates between submitting the tx and checking whether RenVM already has it.
func (s *TxSubmitter) submit(ctx context.Context, options SubmitOptions) (types.ChainTransactionProgress, error) {
	s.submitLock.Lock()
	defer s.submitLock.Unlock()

	retries := options.Retries
	if retries <= 0 {
		retries = s.submitRetries
	}

	var submitErr error
	for i := 0; i < retries; i++ {
		if submitErr = s.client.SubmitTx(ctx, s.tx, 1); submitErr == nil {
			break
		}

		if _, err := s.client.QueryTx(ctx, s.tx.Hash, 1); err == nil {
			submitErr = nil
			break
		}

		log.Warnf("Failed to submit RenVM tx %s, attempt %d/%d, err = %s", s.tx.Hash, i+1, retries, submitErr)
		if ctx.Err() != nil {
			return s.tracker.Current(), ctx.Err()
		}
	}
	if submitErr != nil {
		return s.tracker.Current(), submitErr
	}

	if s.tracker.Current().Status != types.ChainTransactionStatusReady {
		return s.tracker.Current(), nil
	}

	return s.tracker.Update(func(p *types.ChainTransactionProgress) {
		if p.Status == types.ChainTransactionStatusReady {
			p.Status = types.ChainTransactionStatusConfirming
			p.Confirmations = 0
		}
	}), nil
}

// Wait polls RenVM until the transaction is done or reverted. The target is always 1.
func (s *TxSubmitter) Wait(ctx context.Context, _ int) *progress.Operation {
	return progress.Run(ctx, s.tracker, s.wait)
}

func (s *TxSubmitter) wait(ctx context.Context, op *progress.Operation) (types.ChainTransactionProgress, error) {
	var existingStatus types.TxStatus

	for {
		if op.IsCancelled() {
			log.Verbosef("Stop waiting for RenVM tx %s", s.tx.Hash)
			return s.tracker.Current(), nil
		}

		response, err := s.client.QueryTx(ctx, s.tx.Hash, s.queryRetries)
		if err == nil && response == nil {
			err = errEmptyResponse
		}

		switch {
		case err == nil && response.TxStatus.IsTerminal():
			return s.handleDone(ctx, response)

		case err == nil:
			if response.TxStatus != existingStatus || s.tracker.Current().Response == nil {
				existingStatus = response.TxStatus
				s.tracker.Update(func(p *types.ChainTransactionProgress) {
					p.Status = types.ChainTransactionStatusConfirming
					p.Confirmations = 0
					p.Response = response
				})
			}

		case ctx.Err() != nil:
			return s.tracker.Current(), ctx.Err()

		case notFoundRegex.MatchString(err.Error()):
			log.Verbosef("RenVM tx %s is not available yet", s.tx.Hash)

		default:
			log.Errorf("Failed to query RenVM tx %s, err = %s", s.tx.Hash, err)
		}

		select {
		case <-ctx.Done():
			return s.tracker.Current(), ctx.Err()
		case <-op.Cancelled():
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *TxSubmitter) handleDone(ctx context.Context, response *types.RenVMTxWithStatus) (types.ChainTransactionProgress, error) {
	if revert := response.RevertReason(); revert != "" {
		s.tracker.Update(func(p *types.ChainTransactionProgress) {
			p.Status = types.ChainTransactionStatusReverted
			p.RevertReason = revert
			p.Confirmations = 1
			p.Response = response
		})

		return s.tracker.Current(), types.NewErrorWithCode(types.ErrCodeRenVMTransactionReverted,
			"RenVM transaction reverted: %s", revert)
	}

	if s.signatureCallback != nil {
		if err := s.signatureCallback(ctx, response); err != nil {
			return s.tracker.Current(), err
		}
	}

	return s.tracker.Update(func(p *types.ChainTransactionProgress) {
		p.Status = types.ChainTransactionStatusDone
		p.Confirmations = 1
		p.Response = response
	}), nil
}
