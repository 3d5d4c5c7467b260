package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/utils"
)

// TxConfig holds the optional transaction fields a caller or a payload may set. Value and GasPrice
// are decimal strings in wei.
type TxConfig struct {
	Value    string  `json:"value,omitempty"`
	GasPrice string  `json:"gasPrice,omitempty"`
	GasLimit uint64  `json:"gasLimit,omitempty"`
	Nonce    *uint64 `json:"nonce,omitempty"`
}

// TxOptions are the per call options of Export and Submit.
type TxOptions struct {
	TxConfig *TxConfig `json:"txConfig,omitempty"`

	// Overrides replace the contract call parameters at the same position. Nil entries keep the
	// payload's value.
	Overrides []interface{} `json:"overrides,omitempty"`
}

// TxRequest is an unsigned transaction. Fields left empty are filled by the signer.
type TxRequest struct {
	To   *common.Address
	Data []byte
	TxConfig
}

// NetworkTxConfig returns the defaults of a network, the lowest precedence layer of a merge. It
// returns nil when the network sets no defaults.
func NetworkTxConfig(network config.EvmChain) *TxConfig {
	if network.GasLimit == 0 {
		return nil
	}

	return &TxConfig{GasLimit: network.GasLimit}
}

// MergeTxConfig merges configs in order, fields of later configs win. Value and GasPrice may be
// given as decimal or 0x-hex strings and are returned as decimal strings.
func MergeTxConfig(configs ...*TxConfig) (TxConfig, error) {
	ret := TxConfig{}
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}

		if cfg.Value != "" {
			ret.Value = cfg.Value
		}
		if cfg.GasPrice != "" {
			ret.GasPrice = cfg.GasPrice
		}
		if cfg.GasLimit != 0 {
			ret.GasLimit = cfg.GasLimit
		}
		if cfg.Nonce != nil {
			nonce := *cfg.Nonce
			ret.Nonce = &nonce
		}
	}

	var err error
	if ret.Value != "" {
		if ret.Value, err = utils.ToDecimalString(ret.Value); err != nil {
			return TxConfig{}, fmt.Errorf("invalid value: %w", err)
		}
	}
	if ret.GasPrice != "" {
		if ret.GasPrice, err = utils.ToDecimalString(ret.GasPrice); err != nil {
			return TxConfig{}, fmt.Errorf("invalid gas price: %w", err)
		}
	}

	return ret, nil
}
