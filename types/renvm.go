package types

import (
	"encoding/json"

	"github.com/sisu-network/renbridge/pack"
)

// TxStatus is the status of a transaction as reported by RenVM.
type TxStatus string

const (
	TxStatusNil        TxStatus = "nil"
	TxStatusConfirming TxStatus = "confirming"
	TxStatusPending    TxStatus = "pending"
	TxStatusExecuting  TxStatus = "executing"
	TxStatusReverted   TxStatus = "reverted"
	TxStatusDone       TxStatus = "done"
)

func (s TxStatus) IsTerminal() bool {
	return s == TxStatusDone || s == TxStatusReverted
}

// TransactionInput is a content addressed RenVM transaction. Hash is derived from version, selector
// and in.
type TransactionInput struct {
	Hash     string          `json:"hash"`
	Version  string          `json:"version"`
	Selector string          `json:"selector"`
	In       pack.TypedValue `json:"in"`
}

type RenVMTxOutput struct {
	Hash    string `json:"hash,omitempty"`
	Revert  string `json:"revert,omitempty"`
	Sighash string `json:"sighash,omitempty"`
	Sig     string `json:"sig,omitempty"`
	Txid    string `json:"txid,omitempty"`
	Txindex string `json:"txindex,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

// UnmarshalJSON accepts both the plain object and the typed {"t": ..., "v": ...} form returned by
// the RPC.
func (o *RenVMTxOutput) UnmarshalJSON(bz []byte) error {
	type plain RenVMTxOutput

	typed := struct {
		T json.RawMessage `json:"t"`
		V json.RawMessage `json:"v"`
	}{}
	if err := json.Unmarshal(bz, &typed); err == nil && len(typed.T) > 0 && len(typed.V) > 0 {
		bz = typed.V
	}

	out := plain{}
	if err := json.Unmarshal(bz, &out); err != nil {
		return err
	}
	*o = RenVMTxOutput(out)

	return nil
}

type RenVMTransaction struct {
	Hash     string          `json:"hash"`
	Version  string          `json:"version"`
	Selector string          `json:"selector"`
	In       json.RawMessage `json:"in,omitempty"`
	Out      *RenVMTxOutput  `json:"out,omitempty"`
}

type RenVMTxWithStatus struct {
	Tx       RenVMTransaction `json:"tx"`
	TxStatus TxStatus         `json:"txStatus"`
}

// RevertReason returns the revert reason reported by RenVM or an empty string.
func (t *RenVMTxWithStatus) RevertReason() string {
	if t == nil || t.Tx.Out == nil {
		return ""
	}

	return t.Tx.Out.Revert
}
