package eth

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sisu-network/renbridge/config"
	"github.com/sisu-network/renbridge/types"
)

// Placeholders that payload parameters may use instead of a literal value. They are replaced by
// the matching entry of ParamValues when the transaction is exported.
const (
	ParamAccount    = "__EVM_ACCOUNT__"
	ParamAmount     = "__EVM_AMOUNT__"
	ParamNHash      = "__EVM_NHASH__"
	ParamPHash      = "__EVM_PHASH__"
	ParamSigHash    = "__EVM_SIGHASH__"
	ParamSignature  = "__EVM_SIGNATURE__"
	ParamSignatureR = "__EVM_SIGNATURE_R__"
	ParamSignatureS = "__EVM_SIGNATURE_S__"
	ParamSignatureV = "__EVM_SIGNATURE_V__"
	ParamTo         = "__EVM_TO__"
)

// ParamValues maps placeholders to their values.
type ParamValues map[string]interface{}

// Payload describes the transaction to build on the destination chain. Params is interpreted by the
// handler registered for Type.
type Payload struct {
	Chain    string          `json:"chain"`
	Type     string          `json:"type"`
	TxConfig *TxConfig       `json:"txConfig,omitempty"`
	Params   json.RawMessage `json:"params"`
}

type ExportRequest struct {
	Network           config.EvmChain
	Signer            Signer
	Payload           Payload
	Params            ParamValues
	Options           TxOptions
	GetPayloadHandler func(payloadType string) (PayloadHandler, error)
}

// PayloadHandler turns a payload into an unsigned transaction.
type PayloadHandler interface {
	Export(ctx context.Context, req *ExportRequest) (*TxRequest, error)
}

type PayloadHandlerRegistry struct {
	handlers map[string]PayloadHandler
	lock     *sync.RWMutex
}

func NewPayloadHandlerRegistry() *PayloadHandlerRegistry {
	return &PayloadHandlerRegistry{
		handlers: make(map[string]PayloadHandler),
		lock:     &sync.RWMutex{},
	}
}

func (r *PayloadHandlerRegistry) Register(payloadType string, handler PayloadHandler) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.handlers[payloadType] = handler
}

func (r *PayloadHandlerRegistry) Get(payloadType string) (PayloadHandler, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	handler, ok := r.handlers[payloadType]
	if !ok {
		return nil, types.NewErrorWithCode(types.ErrCodePayloadHandler, "unknown EVM payload type %s", payloadType)
	}

	return handler, nil
}
