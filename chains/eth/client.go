package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sisu-network/lib/log"
)

type NoHealthyClientErr struct {
	chain string
}

func NewNoHealthyClientErr(chain string) error {
	return &NoHealthyClientErr{chain: chain}
}

func (e *NoHealthyClientErr) Error() string {
	return fmt.Sprintf("No healthy client for chain %s", e.chain)
}

// EthClient is a wrapper around a set of eth clients so that we can mock it in tests.
type EthClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	BalanceAt(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type defaultEthClient struct {
	chain string

	clients   []*ethclient.Client
	healthies []bool
	rpcs      []string

	lock *sync.RWMutex
}

func NewEthClients(chain string, rpcs []string) EthClient {
	c := &defaultEthClient{
		chain: chain,
		rpcs:  rpcs,
		lock:  &sync.RWMutex{},
	}

	return c
}

// dial connects to all rpcs that are not connected yet. An rpc is healthy when it can return the
// latest block number.
func (c *defaultEthClient) dial(ctx context.Context) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.clients == nil {
		c.clients = make([]*ethclient.Client, len(c.rpcs))
		c.healthies = make([]bool, len(c.rpcs))
	}

	for i, rpc := range c.rpcs {
		if c.healthies[i] {
			continue
		}

		client, err := ethclient.DialContext(ctx, rpc)
		if err != nil {
			log.Errorf("Cannot dial chain %s at endpoint %s, err = %s", c.chain, rpc, err)
			continue
		}

		if _, err := client.BlockNumber(ctx); err != nil {
			log.Warnf("Rpc %s of chain %s is not healthy, err = %s", rpc, c.chain, err)
			client.Close()
			continue
		}

		log.Info("Adding eth client at rpc: ", rpc)
		c.clients[i] = client
		c.healthies[i] = true
	}
}

func (c *defaultEthClient) shuffle() ([]*ethclient.Client, []bool, []string) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	n := len(c.clients)

	clients := make([]*ethclient.Client, n)
	healthy := make([]bool, n)
	rpcs := make([]string, n)

	copy(clients, c.clients)
	copy(healthy, c.healthies)
	copy(rpcs, c.rpcs)

	for i := 0; i < n*2; i++ {
		x := rand.Intn(n)
		y := rand.Intn(n)

		clients[x], clients[y] = clients[y], clients[x]
		healthy[x], healthy[y] = healthy[y], healthy[x]
		rpcs[x], rpcs[y] = rpcs[y], rpcs[x]
	}

	return clients, healthy, rpcs
}

func (c *defaultEthClient) markUnhealthy(rpc string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i := range c.rpcs {
		if c.rpcs[i] == rpc && c.clients[i] != nil {
			c.clients[i].Close()
			c.clients[i] = nil
			c.healthies[i] = false
		}
	}
}

func (c *defaultEthClient) hasHealthyClient() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()

	for _, healthy := range c.healthies {
		if healthy {
			return true
		}
	}

	return false
}

// execute runs f against the healthy clients in random order until one of them succeeds or f
// reports that the error is final (e.g. the tx is not found) and no other rpc should be tried.
func execute[T any](ctx context.Context, c *defaultEthClient,
	f func(client *ethclient.Client, rpc string) (T, error)) (T, error) {
	if !c.hasHealthyClient() {
		c.dial(ctx)
	}

	var result T
	var err error = NewNoHealthyClientErr(c.chain)

	clients, healthies, rpcs := c.shuffle()
	for i, healthy := range healthies {
		if !healthy {
			continue
		}

		result, err = f(clients[i], rpcs[i])
		if err == nil || isFinalErr(err) || ctx.Err() != nil {
			return result, err
		}

		log.Warnf("Call to rpc %s of chain %s failed, err = %s", rpcs[i], c.chain, err)
		c.markUnhealthy(rpcs[i])
	}

	return result, err
}

// isFinalErr returns true for errors that are answers from a healthy node rather than failures of
// the node.
func isFinalErr(err error) bool {
	return errors.Is(err, ethereum.NotFound) || isAlreadyKnown(err)
}

func (c *defaultEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}

func (c *defaultEthClient) BlockByNumber(ctx context.Context, number *big.Int) (*ethtypes.Block, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (*ethtypes.Block, error) {
		return client.BlockByNumber(ctx, number)
	})
}

func (c *defaultEthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error) {
	type result struct {
		tx        *ethtypes.Transaction
		isPending bool
	}

	ret, err := execute(ctx, c, func(client *ethclient.Client, rpc string) (result, error) {
		tx, isPending, err := client.TransactionByHash(ctx, hash)
		return result{tx: tx, isPending: isPending}, err
	})

	return ret.tx, ret.isPending, err
}

func (c *defaultEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (*ethtypes.Receipt, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
}

func (c *defaultEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}

func (c *defaultEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (uint64, error) {
		return client.PendingNonceAt(ctx, account)
	})
}

func (c *defaultEthClient) NonceAt(ctx context.Context, account common.Address, block *big.Int) (uint64, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (uint64, error) {
		return client.NonceAt(ctx, account, block)
	})
}

func (c *defaultEthClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	_, err := execute(ctx, c, func(client *ethclient.Client, rpc string) (int, error) {
		return 0, client.SendTransaction(ctx, tx)
	})

	return err
}

func (c *defaultEthClient) BalanceAt(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (*big.Int, error) {
		balance, err := client.BalanceAt(ctx, from, block)
		if err == nil && balance != nil && balance.Sign() == 0 {
			log.Verbosef("Balance is 0 for using URL %s", rpc)
		}

		return balance, err
	})
}

func (c *defaultEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (uint64, error) {
		return client.EstimateGas(ctx, msg)
	})
}

func (c *defaultEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	return execute(ctx, c, func(client *ethclient.Client, rpc string) (*big.Int, error) {
		return client.ChainID(ctx)
	})
}
