package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type ChainTransactionStatus int

const (
	ChainTransactionStatusReady ChainTransactionStatus = iota
	ChainTransactionStatusConfirming
	ChainTransactionStatusDone
	ChainTransactionStatusReverted
)

var statusNames = map[ChainTransactionStatus]string{
	ChainTransactionStatusReady:      "ready",
	ChainTransactionStatusConfirming: "confirming",
	ChainTransactionStatusDone:       "done",
	ChainTransactionStatusReverted:   "reverted",
}

func (s ChainTransactionStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("unknown(%d)", int(s))
}

// IsTerminal returns true for Done and Reverted. No progress update may change a terminal status.
func (s ChainTransactionStatus) IsTerminal() bool {
	return s == ChainTransactionStatusDone || s == ChainTransactionStatusReverted
}

func (s ChainTransactionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ChainTransactionStatus) UnmarshalJSON(bz []byte) error {
	var name string
	if err := json.Unmarshal(bz, &name); err != nil {
		return err
	}

	parsed, err := ParseChainTransactionStatus(name)
	if err != nil {
		return err
	}
	*s = parsed

	return nil
}

func ParseChainTransactionStatus(name string) (ChainTransactionStatus, error) {
	for status, n := range statusNames {
		if strings.EqualFold(n, name) {
			return status, nil
		}
	}

	return ChainTransactionStatusReady, fmt.Errorf("unknown chain transaction status %q", name)
}

// ChainTransaction is a reference to a transaction on a specific chain.
type ChainTransaction struct {
	Chain         string `json:"chain"`
	Txid          []byte `json:"txid"`
	TxidFormatted string `json:"txidFormatted"`
	Txindex       string `json:"txindex"`
}

// TxHashToChainTransaction builds the chain transaction of an EVM transaction hash.
func TxHashToChainTransaction(chain string, hash common.Hash) *ChainTransaction {
	return &ChainTransaction{
		Chain:         chain,
		Txid:          hash.Bytes(),
		TxidFormatted: hexutil.Encode(hash.Bytes()),
		Txindex:       "0",
	}
}

// ChainTransactionProgress is a snapshot of a single submission's lifecycle. It is treated as a
// value: every update produces a new copy.
type ChainTransactionProgress struct {
	Chain         string                 `json:"chain"`
	Status        ChainTransactionStatus `json:"status"`
	Confirmations int                    `json:"confirmations"`
	Target        int                    `json:"target"`

	Transaction *ChainTransaction `json:"transaction,omitempty"`

	// Set only when the tracked transaction was replaced by another one.
	Replaced *ChainTransaction `json:"replaced,omitempty"`

	// Set only when status is Reverted.
	RevertReason string `json:"revertReason,omitempty"`

	// RenVM only. The last status payload received from the network.
	Response *RenVMTxWithStatus `json:"response,omitempty"`
}

func (p ChainTransactionProgress) String() string {
	hash := ""
	if p.Transaction != nil {
		hash = p.Transaction.TxidFormatted
	}

	return fmt.Sprintf("%s %s %d/%d %s", p.Chain, p.Status, p.Confirmations, p.Target, hash)
}
