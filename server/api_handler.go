package server

import (
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/renbridge/core"
	"github.com/sisu-network/renbridge/types"
)

type ApiHandler struct {
	processor *core.Processor
}

func NewApi(processor *core.Processor) *ApiHandler {
	return &ApiHandler{
		processor: processor,
	}
}

// Empty function for checking health only.
func (api *ApiHandler) CheckHealth() {
}

// Called by the gateway to indicate that it is ready to receive progress updates.
func (api *ApiHandler) SetGatewayReady() {
	log.Info("Gateway is ready")
	api.processor.SetGatewayReady(true)
}

func (api *ApiHandler) SubmitEvmTx(request *types.SubmitEvmTxRequest) *types.SubmitResult {
	result, err := api.processor.SubmitEvmTx(request)
	if err != nil {
		log.Error("Cannot submit evm tx, err = ", err)
		return &types.SubmitResult{Key: request.Key, Err: err.Error()}
	}

	return result
}

func (api *ApiHandler) SubmitRenVMTx(request *types.SubmitRenVMTxRequest) *types.SubmitResult {
	result, err := api.processor.SubmitRenVMTx(request)
	if err != nil {
		log.Error("Cannot submit RenVM tx, err = ", err)
		return &types.SubmitResult{Key: request.Tx.Hash, Err: err.Error()}
	}

	return result
}

func (api *ApiHandler) GetProgress(key string) (*types.ChainTransactionProgress, error) {
	return api.processor.GetProgress(key)
}
