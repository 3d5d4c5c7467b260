package core

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sisu-network/renbridge/chains/eth"
	"github.com/sisu-network/renbridge/chains/renvm"
	"github.com/sisu-network/renbridge/client"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/database"
	"github.com/sisu-network/renbridge/metrics"
	"github.com/sisu-network/renbridge/types"
	"github.com/stretchr/testify/require"
)

type staticHandler struct{}

func (h *staticHandler) Export(ctx context.Context, req *eth.ExportRequest) (*eth.TxRequest, error) {
	to := common.HexToAddress("0x22")
	return &eth.TxRequest{To: &to}, nil
}

type gatewayRecorder struct {
	lock    *sync.Mutex
	updates []*types.ProgressUpdate
}

func (r *gatewayRecorder) client() *client.MockClient {
	return &client.MockClient{
		PostProgressFunc: func(update *types.ProgressUpdate) error {
			r.lock.Lock()
			defer r.lock.Unlock()
			r.updates = append(r.updates, update)
			return nil
		},
	}
}

func (r *gatewayRecorder) statuses() []types.ChainTransactionStatus {
	r.lock.Lock()
	defer r.lock.Unlock()

	ret := make([]types.ChainTransactionStatus, 0, len(r.updates))
	for _, u := range r.updates {
		ret = append(ret, u.Progress.Status)
	}
	return ret
}

func mockForProcessor(t *testing.T) (*config.Config, database.Database) {
	cfg := &config.Config{
		DbHost:   "127.0.0.1",
		DbSchema: "renbridge",
		InMemory: true,

		Chains: map[string]config.EvmChain{
			"ethereum": {
				Chain:     "ethereum",
				ChainId:   1,
				Target:    1,
				BlockTime: 1,
				Rpcs:      []string{"http://localhost:8545"},
			},
		},
	}

	db := database.NewDb(cfg)
	require.Nil(t, db.Init())
	t.Cleanup(func() {
		db.Close()
	})

	return cfg, db
}

func newTestProcessor(t *testing.T, cfg *config.Config, db database.Database, gateway client.Client,
	renvmClient renvm.Client) (*Processor, *metrics.Metrics) {
	m := metrics.NewMetrics()
	p := NewProcessor(cfg, db, gateway, renvmClient, m)
	p.RegisterPayloadHandler("test", &staticHandler{})
	t.Cleanup(p.Stop)

	return p, m
}

func waitForStatus(t *testing.T, p *Processor, key string, status types.ChainTransactionStatus) {
	require.Eventually(t, func() bool {
		current, err := p.GetProgress(key)
		if err != nil || current == nil {
			return false
		}

		p.lock.Lock()
		_, active := p.active[key]
		p.lock.Unlock()

		return current.Status == status && !active
	}, 5*time.Second, 10*time.Millisecond)
}

func newMockSigner(sends *int, lock *sync.Mutex, provider eth.Provider) *eth.MockSigner {
	return &eth.MockSigner{
		ProviderFunc: func() eth.Provider {
			return provider
		},
		SendTransactionFunc: func(ctx context.Context, req *eth.TxRequest) (eth.PendingTx, error) {
			lock.Lock()
			*sends++
			lock.Unlock()
			return &eth.MockPendingTx{HashValue: common.HexToHash("0xabcd")}, nil
		},
	}
}

func crossChainTx() types.TransactionInput {
	return types.TransactionInput{
		Selector: "BTC/toEthereum",
		In: renvm.CrossChainParams{
			Txid:    []byte{1, 2, 3},
			Txindex: 0,
			Amount:  big.NewInt(50_000),
			To:      "0x0000000000000000000000000000000000000022",
			Nhash:   [32]byte{1},
		}.TypedValue(),
	}
}

func TestProcessor_SubmitEvmTx(t *testing.T) {
	t.Run("submit_and_wait", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		recorder := &gatewayRecorder{lock: &sync.Mutex{}}
		p, m := newTestProcessor(t, cfg, db, recorder.client(), &renvm.MockClient{})
		p.SetGatewayReady(true)

		sends := 0
		lock := &sync.Mutex{}
		p.SetSigner("ethereum", newMockSigner(&sends, lock, &eth.MockProvider{}))

		req := &types.SubmitEvmTxRequest{
			Chain:       "ethereum",
			PayloadType: "test",
			Payload:     json.RawMessage(`{}`),
			Params:      map[string]string{eth.ParamAmount: "100"},
		}
		result, err := p.SubmitEvmTx(req)
		require.Nil(t, err)
		require.NotEmpty(t, result.Key)
		require.Equal(t, types.ChainTransactionStatusReady, result.Progress.Status)

		waitForStatus(t, p, result.Key, types.ChainTransactionStatusDone)

		saved, err := db.LoadProgress(result.Key, "ethereum")
		require.Nil(t, err)
		require.Equal(t, types.ChainTransactionStatusDone, saved.Status)
		require.Equal(t, common.HexToHash("0xabcd").Hex(), saved.Transaction.TxidFormatted)

		statuses := recorder.statuses()
		require.Equal(t, types.ChainTransactionStatusDone, statuses[len(statuses)-1])

		// The same request resolves to the same submission.
		again, err := p.SubmitEvmTx(req)
		require.Nil(t, err)
		require.Equal(t, result.Key, again.Key)
		require.Equal(t, types.ChainTransactionStatusDone, again.Progress.Status)

		lock.Lock()
		require.Equal(t, 1, sends)
		lock.Unlock()

		require.Equal(t, float64(1), testutil.ToFloat64(m.SubmissionsFinished.WithLabelValues("ethereum", "done")))
		require.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSubmissions))
	})

	t.Run("gateway_not_ready", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		recorder := &gatewayRecorder{lock: &sync.Mutex{}}
		p, _ := newTestProcessor(t, cfg, db, recorder.client(), &renvm.MockClient{})

		sends := 0
		p.SetSigner("ethereum", newMockSigner(&sends, &sync.Mutex{}, &eth.MockProvider{}))

		result, err := p.SubmitEvmTx(&types.SubmitEvmTxRequest{Key: "key0", Chain: "ethereum", PayloadType: "test"})
		require.Nil(t, err)
		require.Equal(t, "key0", result.Key)

		waitForStatus(t, p, "key0", types.ChainTransactionStatusDone)
		require.Empty(t, recorder.statuses())
	})

	t.Run("unknown_chain", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		p, _ := newTestProcessor(t, cfg, db, &client.MockClient{}, &renvm.MockClient{})

		_, err := p.SubmitEvmTx(&types.SubmitEvmTxRequest{Chain: "unknown", PayloadType: "test"})
		require.NotNil(t, err)
	})

	t.Run("signer_not_connected", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		p, m := newTestProcessor(t, cfg, db, &client.MockClient{}, &renvm.MockClient{})

		result, err := p.SubmitEvmTx(&types.SubmitEvmTxRequest{Key: "key1", Chain: "ethereum", PayloadType: "test"})
		require.Nil(t, err)

		require.Eventually(t, func() bool {
			return testutil.ToFloat64(m.SubmissionsFinished.WithLabelValues("ethereum", "error")) == 1
		}, 5*time.Second, 10*time.Millisecond)

		current, err := p.GetProgress(result.Key)
		require.Nil(t, err)
		require.Equal(t, types.ChainTransactionStatusReady, current.Status)
	})
}

func TestProcessor_SubmitRenVMTx(t *testing.T) {
	t.Run("done", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		renvmClient := &renvm.MockClient{
			QueryTxFunc: func(ctx context.Context, hash string, retries int) (*types.RenVMTxWithStatus, error) {
				return &types.RenVMTxWithStatus{
					Tx:       types.RenVMTransaction{Hash: hash, Out: &types.RenVMTxOutput{Sig: "sig"}},
					TxStatus: types.TxStatusDone,
				}, nil
			},
		}
		p, _ := newTestProcessor(t, cfg, db, &client.MockClient{}, renvmClient)

		tx, err := renvm.NormalizeTransactionInput(crossChainTx())
		require.Nil(t, err)

		result, err := p.SubmitRenVMTx(&types.SubmitRenVMTxRequest{Tx: crossChainTx()})
		require.Nil(t, err)
		require.Equal(t, tx.Hash, result.Key)

		waitForStatus(t, p, result.Key, types.ChainTransactionStatusDone)

		saved, err := db.LoadProgress(result.Key, renvm.Chain)
		require.Nil(t, err)
		require.Equal(t, "sig", saved.Response.Tx.Out.Sig)
	})

	t.Run("reverted", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		renvmClient := &renvm.MockClient{
			QueryTxFunc: func(ctx context.Context, hash string, retries int) (*types.RenVMTxWithStatus, error) {
				return &types.RenVMTxWithStatus{
					Tx:       types.RenVMTransaction{Hash: hash, Out: &types.RenVMTxOutput{Revert: "invalid amount"}},
					TxStatus: types.TxStatusReverted,
				}, nil
			},
		}
		p, m := newTestProcessor(t, cfg, db, &client.MockClient{}, renvmClient)

		result, err := p.SubmitRenVMTx(&types.SubmitRenVMTxRequest{Tx: crossChainTx()})
		require.Nil(t, err)

		waitForStatus(t, p, result.Key, types.ChainTransactionStatusReverted)
		require.Equal(t, float64(1), testutil.ToFloat64(m.SubmissionsFinished.WithLabelValues(renvm.Chain, "reverted")))

		current, err := p.GetProgress(result.Key)
		require.Nil(t, err)
		require.Equal(t, "invalid amount", current.RevertReason)
	})

	t.Run("invalid_hash", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		p, _ := newTestProcessor(t, cfg, db, &client.MockClient{}, &renvm.MockClient{})

		tx := crossChainTx()
		tx.Hash = "wrong"
		_, err := p.SubmitRenVMTx(&types.SubmitRenVMTxRequest{Tx: tx})
		require.True(t, types.IsErrorWithCode(err, types.ErrCodeInvalidTxHash))
	})
}

func TestProcessor_Start(t *testing.T) {
	t.Run("resume_existing_transaction", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		hash := common.HexToHash("0x1234")

		req := &types.SubmitEvmTxRequest{Key: "key2", Chain: "ethereum", PayloadType: "test"}
		bz, err := json.Marshal(req)
		require.Nil(t, err)
		require.Nil(t, db.SaveSubmission("key2", database.SubmissionKindEvm, bz))
		require.Nil(t, db.SaveProgress("key2", types.ChainTransactionProgress{
			Chain:       "ethereum",
			Status:      types.ChainTransactionStatusConfirming,
			Target:      1,
			Transaction: types.TxHashToChainTransaction("ethereum", hash),
		}))

		var lookedUp common.Hash
		lookupLock := &sync.Mutex{}
		provider := &eth.MockProvider{
			GetTransactionFunc: func(ctx context.Context, h common.Hash) (eth.PendingTx, error) {
				lookupLock.Lock()
				lookedUp = h
				lookupLock.Unlock()
				return &eth.MockPendingTx{HashValue: h}, nil
			},
		}

		p, _ := newTestProcessor(t, cfg, db, &client.MockClient{}, &renvm.MockClient{})
		sends := 0
		lock := &sync.Mutex{}
		p.SetSigner("ethereum", newMockSigner(&sends, lock, provider))

		require.Nil(t, p.Start())
		waitForStatus(t, p, "key2", types.ChainTransactionStatusDone)

		lock.Lock()
		require.Equal(t, 0, sends)
		lock.Unlock()

		lookupLock.Lock()
		require.Equal(t, hash, lookedUp)
		lookupLock.Unlock()

		unfinished, err := db.LoadUnfinishedSubmissions()
		require.Nil(t, err)
		require.Empty(t, unfinished)
	})

	t.Run("progress_from_db", func(t *testing.T) {
		cfg, db := mockForProcessor(t)
		require.Nil(t, db.SaveSubmission("key3", database.SubmissionKindRenVM, []byte(`{}`)))
		require.Nil(t, db.SaveProgress("key3", types.ChainTransactionProgress{
			Chain:  renvm.Chain,
			Status: types.ChainTransactionStatusDone,
		}))

		p, _ := newTestProcessor(t, cfg, db, &client.MockClient{}, &renvm.MockClient{})

		current, err := p.GetProgress("key3")
		require.Nil(t, err)
		require.Equal(t, types.ChainTransactionStatusDone, current.Status)

		current, err = p.GetProgress("missing")
		require.Nil(t, err)
		require.Nil(t, current)
	})
}
