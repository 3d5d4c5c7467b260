package types

import "encoding/json"

// SubmitEvmTxRequest asks the processor to submit and track a transaction on an EVM chain. Key
// identifies the submission so that resubmitting the same request resumes the existing one.
type SubmitEvmTxRequest struct {
	Key         string          `json:"key"`
	Chain       string          `json:"chain"`
	PayloadType string          `json:"payloadType"`
	Payload     json.RawMessage `json:"payload"`

	// Values substituted into the payload, e.g. "__EVM_AMOUNT__".
	Params map[string]string `json:"params,omitempty"`
}

type SubmitRenVMTxRequest struct {
	Tx TransactionInput `json:"tx"`
}

type SubmitResult struct {
	Key      string                    `json:"key"`
	Progress *ChainTransactionProgress `json:"progress,omitempty"`
	Err      string                    `json:"err,omitempty"`
}

// ProgressUpdate is posted to the gateway server every time a tracked submission changes.
type ProgressUpdate struct {
	Key      string                   `json:"key"`
	Progress ChainTransactionProgress `json:"progress"`
}
