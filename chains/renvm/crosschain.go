package renvm

import (
	"math/big"
	"strconv"

	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/pack"
	"github.com/sisu-network/renbridge/types"
	"github.com/sisu-network/renbridge/utils"
)

// CrossChainParamsType is the pack type of the input of lock/mint and burn/release transactions.
var CrossChainParamsType = pack.NewStruct(
	pack.Field{Name: "txid", Type: pack.Bytes},
	pack.Field{Name: "txindex", Type: pack.U32},
	pack.Field{Name: "amount", Type: pack.U256},
	pack.Field{Name: "payload", Type: pack.Bytes},
	pack.Field{Name: "phash", Type: pack.Bytes32},
	pack.Field{Name: "to", Type: pack.Str},
	pack.Field{Name: "nonce", Type: pack.Bytes32},
	pack.Field{Name: "nhash", Type: pack.Bytes32},
	pack.Field{Name: "gpubkey", Type: pack.Bytes},
	pack.Field{Name: "ghash", Type: pack.Bytes32},
)

type CrossChainParams struct {
	Txid    []byte
	Txindex uint32
	Amount  *big.Int
	Payload []byte
	Phash   [32]byte
	To      string
	Nonce   [32]byte
	Nhash   [32]byte
	Gpubkey []byte
	Ghash   [32]byte
}

// TypedValue returns the params in the form sent to RenVM: bytes as URL safe base64 and integers
// as decimal strings.
func (p CrossChainParams) TypedValue() pack.TypedValue {
	amount := "0"
	if p.Amount != nil {
		amount = p.Amount.String()
	}

	return pack.TypedValue{
		T: CrossChainParamsType,
		V: map[string]interface{}{
			"txid":    utils.ToURLBase64(p.Txid),
			"txindex": strconv.FormatUint(uint64(p.Txindex), 10),
			"amount":  amount,
			"payload": utils.ToURLBase64(p.Payload),
			"phash":   utils.ToURLBase64(p.Phash[:]),
			"to":      p.To,
			"nonce":   utils.ToURLBase64(p.Nonce[:]),
			"nhash":   utils.ToURLBase64(p.Nhash[:]),
			"gpubkey": utils.ToURLBase64(p.Gpubkey),
			"ghash":   utils.ToURLBase64(p.Ghash[:]),
		},
	}
}

// NewCrossChainTxSubmitter creates a submitter for a cross chain transaction with the given
// selector, e.g. "BTC/toEthereum".
func NewCrossChainTxSubmitter(cfg config.RenVM, client Client, selector string, params CrossChainParams,
	signatureCallback SignatureCallback) (*TxSubmitter, error) {
	return NewTxSubmitter(cfg, client, types.TransactionInput{
		Selector: selector,
		In:       params.TypedValue(),
	}, signatureCallback)
}
