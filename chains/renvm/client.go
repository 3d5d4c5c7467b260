package renvm

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/types"
	"github.com/ybbus/jsonrpc/v3"
)

const (
	MethodSubmitTx = "ren_submitTx"
	MethodQueryTx  = "ren_queryTx"
)

// Client talks to the RenVM JSON-RPC API. retries is the number of attempts made before an error is
// returned.
type Client interface {
	SubmitTx(ctx context.Context, tx types.TransactionInput, retries int) error
	QueryTx(ctx context.Context, hash string, retries int) (*types.RenVMTxWithStatus, error)
}

type submitTxParams struct {
	Tx types.TransactionInput `json:"tx"`
}

type queryTxParams struct {
	TxHash string `json:"txHash"`
}

type defaultClient struct {
	rpcs    []string
	clients []jsonrpc.RPCClient
}

func NewClient(cfg config.RenVM) Client {
	clients := make([]jsonrpc.RPCClient, 0, len(cfg.Rpcs))
	for _, rpc := range cfg.Rpcs {
		clients = append(clients, jsonrpc.NewClient(rpc))
		log.Info("Adding RenVM client at rpc: ", rpc)
	}

	return &defaultClient{
		rpcs:    cfg.Rpcs,
		clients: clients,
	}
}

func (c *defaultClient) SubmitTx(ctx context.Context, tx types.TransactionInput, retries int) error {
	_, err := retry(ctx, retries, func() (bool, error) {
		return executeWithClients(c.clients, func(client jsonrpc.RPCClient) (bool, bool, error) {
			res, err := client.Call(ctx, MethodSubmitTx, &submitTxParams{Tx: tx})
			if err != nil {
				return false, false, err
			}
			if res.Error != nil {
				// The node answered, other nodes will give the same answer.
				return false, true, res.Error
			}

			return true, false, nil
		})
	})

	return err
}

func (c *defaultClient) QueryTx(ctx context.Context, hash string, retries int) (*types.RenVMTxWithStatus, error) {
	return retry(ctx, retries, func() (*types.RenVMTxWithStatus, error) {
		return executeWithClients(c.clients, func(client jsonrpc.RPCClient) (*types.RenVMTxWithStatus, bool, error) {
			res, err := client.Call(ctx, MethodQueryTx, &queryTxParams{TxHash: hash})
			if err != nil {
				return nil, false, err
			}
			if res.Error != nil {
				return nil, true, res.Error
			}

			ret := &types.RenVMTxWithStatus{}
			if err := res.GetObject(ret); err != nil {
				return nil, true, fmt.Errorf("cannot decode %s response: %w", MethodQueryTx, err)
			}

			return ret, false, nil
		})
	})
}

func retry[T any](ctx context.Context, retries int, f func() (T, error)) (T, error) {
	if retries <= 0 {
		retries = 1
	}

	var result T
	var err error
	for i := 0; i < retries; i++ {
		if result, err = f(); err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	return result, err
}

// shuffleClients returns a random permutation of a list of clients.
func shuffleClients(c []jsonrpc.RPCClient) []jsonrpc.RPCClient {
	clients := make([]jsonrpc.RPCClient, len(c))
	copy(clients, c)

	for i := 0; i < len(clients)*2; i++ {
		x := rand.Intn(len(clients))
		y := rand.Intn(len(clients))
		clients[x], clients[y] = clients[y], clients[x]
	}

	return clients
}

// executeWithClients tries to execute a function with a list of RPC clients. If any of the execution
// finishes (either with success or failure), the loop through clients list will stop.
// The passed in params f will inform executeWithClients when to stop execution in its return value.
func executeWithClients[T any](originalClients []jsonrpc.RPCClient, f func(client jsonrpc.RPCClient) (T, bool, error)) (T, error) {
	clients := shuffleClients(originalClients)
	var err = fmt.Errorf("no RenVM rpc configured")
	var stop bool
	var result T
	for _, client := range clients {
		if result, stop, err = f(client); err == nil || stop {
			return result, err
		}
	}

	return result, err
}
