package eth

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/renbridge/utils"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "fad9c8855b740a0b7ed4c221dbad0f33a83a49cad6b3fe8d5817ac83d38b6a19"

func TestWalletSigner_SendTransaction(t *testing.T) {
	to := common.HexToAddress("0x11")

	t.Run("fills_fields", func(t *testing.T) {
		var sent *ethtypes.Transaction
		client := &MockEthClient{
			PendingNonceAtFunc: func(ctx context.Context, account common.Address) (uint64, error) {
				return 9, nil
			},
			SuggestGasPriceFunc: func(ctx context.Context) (*big.Int, error) {
				return big.NewInt(100), nil
			},
			BalanceAtFunc: func(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error) {
				return utils.FloatToWei(1), nil
			},
			SendTransactionFunc: func(ctx context.Context, tx *ethtypes.Transaction) error {
				sent = tx
				return nil
			},
		}
		cfg := testChainConfig()
		signer, err := NewWalletSigner(cfg, testPrivateKey, client, NewProvider(cfg, client))
		require.Nil(t, err)

		pending, err := signer.SendTransaction(context.Background(), &TxRequest{
			To:       &to,
			TxConfig: TxConfig{Value: "5"},
		})
		require.Nil(t, err)
		require.Equal(t, sent.Hash(), pending.Hash())
		require.Equal(t, uint64(9), sent.Nonce())
		require.Equal(t, big.NewInt(100), sent.GasPrice())
		require.Equal(t, uint64(21_000), sent.Gas())
		require.Equal(t, big.NewInt(5), sent.Value())

		sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(1)), sent)
		require.Nil(t, err)
		require.Equal(t, signer.Address(), sender)
	})

	t.Run("already_known", func(t *testing.T) {
		client := &MockEthClient{
			BalanceAtFunc: func(ctx context.Context, from common.Address, block *big.Int) (*big.Int, error) {
				return utils.FloatToWei(1), nil
			},
			SendTransactionFunc: func(ctx context.Context, tx *ethtypes.Transaction) error {
				return errors.New("already known")
			},
		}
		cfg := testChainConfig()
		signer, err := NewWalletSigner(cfg, testPrivateKey, client, NewProvider(cfg, client))
		require.Nil(t, err)

		_, err = signer.SendTransaction(context.Background(), &TxRequest{To: &to})
		require.Nil(t, err)
	})

	t.Run("not_enough_balance", func(t *testing.T) {
		client := &MockEthClient{}
		cfg := testChainConfig()
		signer, err := NewWalletSigner(cfg, testPrivateKey, client, NewProvider(cfg, client))
		require.Nil(t, err)

		_, err = signer.SendTransaction(context.Background(), &TxRequest{To: &to})
		require.NotNil(t, err)
	})

	t.Run("gas_price_cap", func(t *testing.T) {
		client := &MockEthClient{
			SuggestGasPriceFunc: func(ctx context.Context) (*big.Int, error) {
				return utils.GweiToWei(200), nil
			},
		}
		cfg := testChainConfig()
		cfg.MaxGasPriceGwei = 100
		signer, err := NewWalletSigner(cfg, testPrivateKey, client, NewProvider(cfg, client))
		require.Nil(t, err)

		_, err = signer.SendTransaction(context.Background(), &TxRequest{To: &to})
		require.NotNil(t, err)
	})
}
