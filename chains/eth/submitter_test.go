package eth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/types"
	"github.com/stretchr/testify/require"
)

var (
	testHash1 = common.HexToHash("0x1111")
	testHash2 = common.HexToHash("0x2222")
)

type exportCounter struct {
	lock  *sync.Mutex
	count int
}

func (c *exportCounter) Export(ctx context.Context, req *ExportRequest) (*TxRequest, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.count++
	to := common.HexToAddress("0x11")
	return &TxRequest{To: &to}, nil
}

func successReceipt(confirmations int) *Receipt {
	return &Receipt{
		Receipt:       &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful},
		Confirmations: confirmations,
	}
}

func newTestSubmitter(signer Signer, target int) *TxSubmitter {
	handler := &exportCounter{lock: &sync.Mutex{}}
	s := NewTxSubmitter(TxSubmitterParams{
		Network: config.EvmChain{Chain: "ethereum", Target: 1},
		GetSigner: func() Signer {
			return signer
		},
		Chain:   "ethereum",
		Payload: Payload{Chain: "ethereum", Type: "test"},
		Target:  target,
		GetPayloadHandler: func(payloadType string) (PayloadHandler, error) {
			return handler, nil
		},
	})
	s.retryTime = 0

	return s
}

func newMockSigner(send func(ctx context.Context, req *TxRequest) (PendingTx, error)) *MockSigner {
	provider := &MockProvider{}
	return &MockSigner{
		ProviderFunc: func() Provider {
			return provider
		},
		SendTransactionFunc: send,
	}
}

func collectEvents(ch <-chan types.ChainTransactionProgress) []types.ChainTransactionProgress {
	ret := make([]types.ChainTransactionProgress, 0)
	for p := range ch {
		ret = append(ret, p)
	}
	return ret
}

func TestTxSubmitter_TargetTwo(t *testing.T) {
	sendCount := 0
	signer := newMockSigner(func(ctx context.Context, req *TxRequest) (PendingTx, error) {
		sendCount++
		return &MockPendingTx{HashValue: testHash1}, nil
	})
	s := newTestSubmitter(signer, 2)

	ret, err := s.Submit(context.Background(), TxOptions{}).Result()
	require.Nil(t, err)
	require.Equal(t, types.ChainTransactionStatusConfirming, ret.Status)
	require.Equal(t, 0, ret.Confirmations)
	require.Equal(t, testHash1.Bytes(), ret.Transaction.Txid)

	// Submit again does not send a second transaction.
	_, err = s.Submit(context.Background(), TxOptions{}).Result()
	require.Nil(t, err)
	require.Equal(t, 1, sendCount)

	op := s.Wait(context.Background(), 0)
	ret, err = op.Result()
	require.Nil(t, err)
	require.Equal(t, types.ChainTransactionStatusDone, ret.Status)
	require.Equal(t, 2, ret.Confirmations)

	events := collectEvents(op.Events())
	require.Len(t, events, 2)
	require.Equal(t, types.ChainTransactionStatusConfirming, events[0].Status)
	require.Equal(t, 1, events[0].Confirmations)
	require.Equal(t, types.ChainTransactionStatusDone, events[1].Status)
	require.Equal(t, 2, events[1].Confirmations)
}

func TestTxSubmitter_Replaced(t *testing.T) {
	replacement := &MockPendingTx{HashValue: testHash2, ConfirmationsValue: 1}
	original := &MockPendingTx{
		HashValue: testHash1,
		WaitFunc: func(ctx context.Context, confirmations int) (*Receipt, error) {
			return nil, &TransactionReplacedError{
				Hash:        testHash1,
				Reason:      ReplacedReasonRepriced,
				Replacement: replacement,
				Receipt:     successReceipt(1),
			}
		},
	}
	signer := newMockSigner(func(ctx context.Context, req *TxRequest) (PendingTx, error) {
		return original, nil
	})
	s := newTestSubmitter(signer, 2)

	_, err := s.Submit(context.Background(), TxOptions{}).Result()
	require.Nil(t, err)

	op := s.Wait(context.Background(), 2)
	ret, err := op.Result()
	require.Nil(t, err)
	require.Equal(t, types.ChainTransactionStatusDone, ret.Status)
	require.Equal(t, testHash2.Bytes(), ret.Transaction.Txid)
	require.Equal(t, testHash1.Bytes(), ret.Replaced.Txid)

	events := collectEvents(op.Events())
	require.Len(t, events, 2)
	require.Equal(t, types.ChainTransactionStatusConfirming, events[0].Status)
	require.Equal(t, 1, events[0].Confirmations)
	require.Equal(t, testHash2.Bytes(), events[0].Transaction.Txid)
	require.Equal(t, testHash1.Bytes(), events[0].Replaced.Txid)
	require.Equal(t, 2, events[1].Confirmations)
}

func TestTxSubmitter_Reverted(t *testing.T) {
	tx := &MockPendingTx{
		HashValue: testHash1,
		WaitFunc: func(ctx context.Context, confirmations int) (*Receipt, error) {
			return nil, &CallExceptionError{Hash: testHash1, Reason: "transaction failed", Receipt: successReceipt(1)}
		},
	}
	signer := newMockSigner(func(ctx context.Context, req *TxRequest) (PendingTx, error) {
		return tx, nil
	})
	s := newTestSubmitter(signer, 1)

	_, err := s.Submit(context.Background(), TxOptions{}).Result()
	require.Nil(t, err)

	ret, err := s.Wait(context.Background(), 0).Result()
	callErr := &CallExceptionError{}
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, types.ChainTransactionStatusReverted, ret.Status)
	require.Equal(t, 1, ret.Confirmations)
	require.NotEmpty(t, ret.RevertReason)

	// Terminal progress never changes again.
	_, err = s.Wait(context.Background(), 0).Result()
	require.NotNil(t, err)
	require.Equal(t, types.ChainTransactionStatusReverted, s.Progress().Status)
}

func TestTxSubmitter_TransientError(t *testing.T) {
	calls := 0
	tx := &MockPendingTx{
		HashValue: testHash1,
		WaitFunc: func(ctx context.Context, confirmations int) (*Receipt, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection refused")
			}
			return successReceipt(confirmations), nil
		},
	}
	signer := newMockSigner(func(ctx context.Context, req *TxRequest) (PendingTx, error) {
		return tx, nil
	})
	s := newTestSubmitter(signer, 1)

	_, err := s.Submit(context.Background(), TxOptions{}).Result()
	require.Nil(t, err)

	ret, err := s.Wait(context.Background(), 0).Result()
	require.Nil(t, err)
	require.Equal(t, types.ChainTransactionStatusDone, ret.Status)
	require.Equal(t, 2, calls)
}

func TestTxSubmitter_OnReceipt(t *testing.T) {
	t.Run("fires_once", func(t *testing.T) {
		signer := newMockSigner(func(ctx context.Context, req *TxRequest) (PendingTx, error) {
			return &MockPendingTx{HashValue: testHash1}, nil
		})
		s := newTestSubmitter(signer, 2)

		count := 0
		s.onReceipt = func(receipt *Receipt) error {
			count++
			return nil
		}

		_, err := s.Submit(context.Background(), TxOptions{}).Result()
		require.Nil(t, err)
		_, err = s.Wait(context.Background(), 0).Result()
		require.Nil(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("error_propagates", func(t *testing.T) {
		signer := newMockSigner(func(ctx context.Context, req *TxRequest) (PendingTx, error) {
			return &MockPendingTx{HashValue: testHash1}, nil
		})
		s := newTestSubmitter(signer, 1)
		s.onReceipt = func(receipt *Receipt) error {
			return errors.New("callback failed")
		}

		_, err := s.Submit(context.Background(), TxOptions{}).Result()
		require.Nil(t, err)
		_, err = s.Wait(context.Background(), 0).Result()
		require.EqualError(t, err, "callback failed")
	})
}

func TestTxSubmitter_ExistingTransaction(t *testing.T) {
	t.Run("resume", func(t *testing.T) {
		var lookedUp common.Hash
		sendCount := 0
		provider := &MockProvider{
			GetTransactionFunc: func(ctx context.Context, hash common.Hash) (PendingTx, error) {
				lookedUp = hash
				return &MockPendingTx{HashValue: hash, ConfirmationsValue: 3}, nil
			},
		}
		signer := &MockSigner{
			ProviderFunc: func() Provider { return provider },
			SendTransactionFunc: func(ctx context.Context, req *TxRequest) (PendingTx, error) {
				sendCount++
				return nil, errors.New("transaction must not be sent again")
			},
		}
		s := newTestSubmitter(signer, 2)
		s.findExistingTransaction = func(ctx context.Context) (*types.ChainTransaction, error) {
			return types.TxHashToChainTransaction("ethereum", testHash1), nil
		}

		ret, err := s.Submit(context.Background(), TxOptions{}).Result()
		require.Nil(t, err)
		require.Equal(t, testHash1, lookedUp)
		require.Equal(t, 0, sendCount)
		require.Equal(t, types.ChainTransactionStatusConfirming, ret.Status)
		require.Equal(t, 3, ret.Confirmations)

		ret, err = s.Wait(context.Background(), 0).Result()
		require.Nil(t, err)
		require.Equal(t, types.ChainTransactionStatusDone, ret.Status)
	})

	t.Run("already_done", func(t *testing.T) {
		signer := newMockSigner(nil)
		s := newTestSubmitter(signer, 3)
		s.findExistingTransaction = func(ctx context.Context) (*types.ChainTransaction, error) {
			return &types.ChainTransaction{Chain: "ethereum"}, nil
		}

		ret, err := s.Submit(context.Background(), TxOptions{}).Result()
		require.Nil(t, err)
		require.Equal(t, types.ChainTransactionStatusDone, ret.Status)
		require.Equal(t, 3, ret.Confirmations)

		ret, err = s.Wait(context.Background(), 0).Result()
		require.Nil(t, err)
		require.Equal(t, types.ChainTransactionStatusDone, ret.Status)
	})
}

func TestTxSubmitter_ConfigurationErrors(t *testing.T) {
	t.Run("no_signer", func(t *testing.T) {
		s := newTestSubmitter(nil, 1)
		s.getSigner = func() Signer { return nil }

		_, err := s.Submit(context.Background(), TxOptions{}).Result()
		require.True(t, types.IsErrorWithCode(err, types.ErrCodeSignerNotConnected))
		require.Equal(t, types.ChainTransactionStatusReady, s.Progress().Status)
	})

	t.Run("no_provider", func(t *testing.T) {
		s := newTestSubmitter(&MockSigner{}, 1)

		_, err := s.Submit(context.Background(), TxOptions{}).Result()
		require.True(t, types.IsErrorWithCode(err, types.ErrCodeProviderNotConnected))
	})

	t.Run("wait_before_submit", func(t *testing.T) {
		s := newTestSubmitter(&MockSigner{}, 1)

		_, err := s.Wait(context.Background(), 0).Result()
		require.True(t, types.IsErrorWithCode(err, types.ErrCodeSubmitNotCalled))
	})
}

func TestTxSubmitter_WaitTimeout(t *testing.T) {
	tx := &MockPendingTx{
		HashValue: testHash1,
		WaitFunc: func(ctx context.Context, confirmations int) (*Receipt, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	signer := newMockSigner(func(ctx context.Context, req *TxRequest) (PendingTx, error) {
		return tx, nil
	})
	s := newTestSubmitter(signer, 1)
	s.network.WaitTimeout = 1

	_, err := s.Submit(context.Background(), TxOptions{}).Result()
	require.Nil(t, err)

	ret, err := s.Wait(context.Background(), 0).Result()
	require.True(t, types.IsErrorWithCode(err, types.ErrCodeWaitTimeout))
	require.Equal(t, types.ChainTransactionStatusConfirming, ret.Status)
}
