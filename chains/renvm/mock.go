package renvm

import (
	"context"

	"github.com/sisu-network/renbridge/types"
)

type MockClient struct {
	SubmitTxFunc func(ctx context.Context, tx types.TransactionInput, retries int) error
	QueryTxFunc  func(ctx context.Context, hash string, retries int) (*types.RenVMTxWithStatus, error)
}

func (c *MockClient) SubmitTx(ctx context.Context, tx types.TransactionInput, retries int) error {
	if c.SubmitTxFunc != nil {
		return c.SubmitTxFunc(ctx, tx, retries)
	}

	return nil
}

func (c *MockClient) QueryTx(ctx context.Context, hash string, retries int) (*types.RenVMTxWithStatus, error) {
	if c.QueryTxFunc != nil {
		return c.QueryTxFunc(ctx, hash, retries)
	}

	return nil, nil
}
