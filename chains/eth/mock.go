package eth

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

type MockEthClient struct {
	BlockNumberFunc        func(ctx context.Context) (uint64, error)
	BlockByNumberFunc      func(ctx context.Context, number *big.Int) (*ethtypes.Block, error)
	TransactionByHashFunc  func(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceiptFunc func(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	SuggestGasPriceFunc    func(ctx context.Context) (*big.Int, error)
	PendingNonceAtFunc     func(ctx context.Context, account common.Address) (uint64, error)
	NonceAtFunc            func(ctx context.Context, account common.Address, block *big.Int) (uint64, error)
	SendTransactionFunc    func(ctx context.Context, tx *ethtypes.Transaction) error
	BalanceAtFunc          func(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error)
	EstimateGasFunc        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainIDFunc            func(ctx context.Context) (*big.Int, error)
}

func (c *MockEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	if c.BlockNumberFunc != nil {
		return c.BlockNumberFunc(ctx)
	}
	return 0, nil
}

func (c *MockEthClient) BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error) {
	if c.BlockByNumberFunc != nil {
		return c.BlockByNumberFunc(ctx, number)
	}

	return nil, nil
}

func (c *MockEthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	if c.TransactionByHashFunc != nil {
		return c.TransactionByHashFunc(ctx, hash)
	}

	return nil, false, ethereum.NotFound
}

func (c *MockEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	if c.TransactionReceiptFunc != nil {
		return c.TransactionReceiptFunc(ctx, txHash)
	}

	return nil, ethereum.NotFound
}

func (c *MockEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c.SuggestGasPriceFunc != nil {
		return c.SuggestGasPriceFunc(ctx)
	}
	return big.NewInt(1), nil
}

func (c *MockEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if c.PendingNonceAtFunc != nil {
		return c.PendingNonceAtFunc(ctx, account)
	}

	return 0, nil
}

func (c *MockEthClient) NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error) {
	if c.NonceAtFunc != nil {
		return c.NonceAtFunc(ctx, account, block)
	}

	return 0, nil
}

func (c *MockEthClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if c.SendTransactionFunc != nil {
		return c.SendTransactionFunc(ctx, tx)
	}

	return nil
}

func (c *MockEthClient) BalanceAt(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error) {
	if c.BalanceAtFunc != nil {
		return c.BalanceAtFunc(ctx, from, block)
	}

	return big.NewInt(0), nil
}

func (c *MockEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if c.EstimateGasFunc != nil {
		return c.EstimateGasFunc(ctx, msg)
	}

	return 21_000, nil
}

func (c *MockEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	if c.ChainIDFunc != nil {
		return c.ChainIDFunc(ctx)
	}

	return big.NewInt(1), nil
}

///// Provider & signer

type MockProvider struct {
	GetTransactionFunc func(ctx context.Context, hash common.Hash) (PendingTx, error)
	TrackFunc          func(tx *ethtypes.Transaction, from common.Address, startBlock uint64) PendingTx
}

func (p *MockProvider) GetTransaction(ctx context.Context, hash common.Hash) (PendingTx, error) {
	if p.GetTransactionFunc != nil {
		return p.GetTransactionFunc(ctx, hash)
	}

	return nil, ethereum.NotFound
}

func (p *MockProvider) Track(tx *ethtypes.Transaction, from common.Address, startBlock uint64) PendingTx {
	if p.TrackFunc != nil {
		return p.TrackFunc(tx, from, startBlock)
	}

	return nil
}

type MockSigner struct {
	ProviderFunc        func() Provider
	AddressFunc         func() common.Address
	SendTransactionFunc func(ctx context.Context, req *TxRequest) (PendingTx, error)
}

func (s *MockSigner) Provider() Provider {
	if s.ProviderFunc != nil {
		return s.ProviderFunc()
	}

	return nil
}

func (s *MockSigner) Address() common.Address {
	if s.AddressFunc != nil {
		return s.AddressFunc()
	}

	return common.Address{}
}

func (s *MockSigner) SendTransaction(ctx context.Context, req *TxRequest) (PendingTx, error) {
	if s.SendTransactionFunc != nil {
		return s.SendTransactionFunc(ctx, req)
	}

	return nil, nil
}

type MockPendingTx struct {
	HashValue          common.Hash
	ConfirmationsValue int
	WaitFunc           func(ctx context.Context, confirmations int) (*Receipt, error)
}

func (t *MockPendingTx) Hash() common.Hash {
	return t.HashValue
}

func (t *MockPendingTx) Confirmations() int {
	return t.ConfirmationsValue
}

func (t *MockPendingTx) Wait(ctx context.Context, confirmations int) (*Receipt, error) {
	if t.WaitFunc != nil {
		return t.WaitFunc(ctx, confirmations)
	}

	return &Receipt{Receipt: &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful}, Confirmations: confirmations}, nil
}
