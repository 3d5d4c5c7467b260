package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/utils"
)

// Signer signs and sends transactions on one chain.
type Signer interface {
	// Provider returns the provider the signer is connected to or nil.
	Provider() Provider
	Address() common.Address
	SendTransaction(ctx context.Context, req *TxRequest) (PendingTx, error)
}

// WalletSigner signs with a local private key. Missing transaction fields are filled from the chain.
type WalletSigner struct {
	cfg      config.EvmChain
	key      *ecdsa.PrivateKey
	address  common.Address
	client   EthClient
	provider Provider
}

func NewWalletSigner(cfg config.EvmChain, privateKeyHex string, client EthClient, provider Provider) (*WalletSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key for chain %s: %w", cfg.Chain, err)
	}

	address, err := utils.PublicKeyBytesToAddress(crypto.CompressPubkey(&key.PublicKey))
	if err != nil {
		return nil, err
	}

	return &WalletSigner{
		cfg:      cfg,
		key:      key,
		address:  address,
		client:   client,
		provider: provider,
	}, nil
}

func (s *WalletSigner) Provider() Provider {
	return s.provider
}

func (s *WalletSigner) Address() common.Address {
	return s.address
}

func (s *WalletSigner) SendTransaction(ctx context.Context, req *TxRequest) (PendingTx, error) {
	tx, err := s.signTx(ctx, req)
	if err != nil {
		return nil, err
	}

	startBlock, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	err = s.client.SendTransaction(ctx, tx)
	switch {
	case err == nil:
		log.Verbose("Tx is dispatched successfully for chain ", s.cfg.Chain, " from ", s.address,
			" txHash = ", tx.Hash())
	case isAlreadyKnown(err):
		// The same signed tx is already in the mempool.
		log.Verbosef("Tx %s is already known on chain %s", tx.Hash(), s.cfg.Chain)
	default:
		log.Error("Failed to dispatch tx, err = ", err)
		return nil, err
	}

	return s.provider.Track(tx, s.address, startBlock), nil
}

func (s *WalletSigner) signTx(ctx context.Context, req *TxRequest) (*ethtypes.Transaction, error) {
	value := big.NewInt(0)
	if req.Value != "" {
		v, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid value %s", req.Value)
		}
		value = v
	}

	var nonce uint64
	var err error
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		nonce, err = s.client.PendingNonceAt(ctx, s.address)
		if err != nil {
			log.Errorf("Failed to get pending nonce for %s", s.address.String())
			return nil, err
		}
	}

	gasPrice, err := s.gasPrice(ctx, req)
	if err != nil {
		return nil, err
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = s.client.EstimateGas(ctx, ethereum.CallMsg{
			From:     s.address,
			To:       req.To,
			GasPrice: gasPrice,
			Value:    value,
			Data:     req.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("cannot estimate gas: %w", err)
		}
	}

	chainId := big.NewInt(s.cfg.ChainId)
	if s.cfg.ChainId == 0 {
		chainId, err = s.client.ChainID(ctx)
		if err != nil {
			return nil, err
		}
	}

	// Check the balance to see if we have enough native token.
	balance, err := s.client.BalanceAt(ctx, s.address, nil)
	if err != nil {
		log.Errorf("Cannot get balance for account %s", s.address)
		return nil, err
	}
	minimum := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	minimum = minimum.Add(minimum, value)
	if minimum.Cmp(balance) > 0 {
		return nil, fmt.Errorf("balance smaller than minimum required for this transaction, from = %s, balance = %s, minimum = %s, chain = %s",
			s.address.String(), balance.String(), minimum.String(), s.cfg.Chain)
	}

	var tx *ethtypes.Transaction
	if req.To == nil {
		tx = ethtypes.NewContractCreation(nonce, value, gasLimit, gasPrice, req.Data)
	} else {
		tx = ethtypes.NewTransaction(nonce, *req.To, value, gasLimit, gasPrice, req.Data)
	}

	return ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainId), s.key)
}

func (s *WalletSigner) gasPrice(ctx context.Context, req *TxRequest) (*big.Int, error) {
	if req.GasPrice != "" {
		gasPrice, ok := new(big.Int).SetString(req.GasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid gas price %s", req.GasPrice)
		}
		return gasPrice, nil
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		log.Errorf("Failed to get gas price for chain %s", s.cfg.Chain)
		return nil, err
	}

	if s.cfg.MaxGasPriceGwei > 0 {
		max := utils.GweiToWei(s.cfg.MaxGasPriceGwei)
		if gasPrice.Cmp(max) > 0 {
			return nil, fmt.Errorf("gas price %s is above the limit %s on chain %s", gasPrice, max, s.cfg.Chain)
		}
	}

	return gasPrice, nil
}

// isAlreadyKnown returns true when a node rejected a tx because it already has it. Ethereum does
// not return error codes in its JSON RPC, so we have to rely on string matching.
func isAlreadyKnown(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already known")
}
