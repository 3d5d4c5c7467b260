package eth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/sisu-network/renbridge/types"
)

const PayloadTypeContract = "contract"

// ContractCallParams are the params of a "contract" payload. Values are the method arguments in
// the order of the ABI inputs; a string value that is a placeholder is replaced by its ParamValues
// entry.
type ContractCallParams struct {
	To     string          `json:"to"`
	Method string          `json:"method"`
	Abi    json.RawMessage `json:"abi"`
	Values []interface{}   `json:"values"`
}

// ContractCallHandler builds a call to a single contract method.
type ContractCallHandler struct{}

func NewContractCallHandler() PayloadHandler {
	return &ContractCallHandler{}
}

func (h *ContractCallHandler) Export(ctx context.Context, req *ExportRequest) (*TxRequest, error) {
	params := ContractCallParams{}
	decoder := json.NewDecoder(bytes.NewReader(req.Payload.Params))
	decoder.UseNumber()
	if err := decoder.Decode(&params); err != nil {
		return nil, types.WrapErrorWithCode(types.ErrCodePayloadHandler, err, "invalid contract call params")
	}

	if !common.IsHexAddress(params.To) {
		return nil, types.NewErrorWithCode(types.ErrCodePayloadHandler, "invalid contract address %q", params.To)
	}

	parsed, err := abi.JSON(strings.NewReader("[" + string(params.Abi) + "]"))
	if err != nil {
		return nil, types.WrapErrorWithCode(types.ErrCodePayloadHandler, err, "invalid abi")
	}
	method, ok := parsed.Methods[params.Method]
	if !ok {
		return nil, types.NewErrorWithCode(types.ErrCodePayloadHandler, "abi does not have method %s", params.Method)
	}
	if len(params.Values) != len(method.Inputs) {
		return nil, types.NewErrorWithCode(types.ErrCodePayloadHandler, "method %s expects %d values, got %d",
			method.Name, len(method.Inputs), len(params.Values))
	}

	args := make([]interface{}, len(method.Inputs))
	for i, input := range method.Inputs {
		value := params.Values[i]
		if i < len(req.Options.Overrides) && req.Options.Overrides[i] != nil {
			value = req.Options.Overrides[i]
		}

		value, err = resolvePlaceholder(req, value)
		if err != nil {
			return nil, err
		}

		args[i], err = convertArg(input.Type, value)
		if err != nil {
			return nil, types.WrapErrorWithCode(types.ErrCodePayloadHandler, err, "invalid value for %s", input.Name)
		}
	}

	data, err := parsed.Pack(method.Name, args...)
	if err != nil {
		return nil, types.WrapErrorWithCode(types.ErrCodePayloadHandler, err, "cannot pack call to %s", method.Name)
	}

	txConfig, err := MergeTxConfig(NetworkTxConfig(req.Network), req.Payload.TxConfig, req.Options.TxConfig)
	if err != nil {
		return nil, types.WrapErrorWithCode(types.ErrCodePayloadHandler, err, "invalid tx config")
	}

	to := common.HexToAddress(params.To)
	return &TxRequest{
		To:       &to,
		Data:     data,
		TxConfig: txConfig,
	}, nil
}

func resolvePlaceholder(req *ExportRequest, value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok || !strings.HasPrefix(s, "__EVM_") {
		return value, nil
	}

	if resolved, ok := req.Params[s]; ok {
		return resolved, nil
	}
	if s == ParamAccount && req.Signer != nil {
		return req.Signer.Address(), nil
	}

	return nil, types.NewErrorWithCode(types.ErrCodePayloadHandler, "no value for %s", s)
}

// convertArg converts a loosely typed value into the Go type abi.Pack expects for t.
func convertArg(t abi.Type, v interface{}) (interface{}, error) {
	switch t.T {
	case abi.IntTy, abi.UintTy:
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if err := checkIntRange(t, n); err != nil {
			return nil, err
		}

		// Sizes other than 8, 16, 32 and 64 are packed from *big.Int.
		goType := t.GetType()
		if goType.Kind() == reflect.Ptr {
			return new(big.Int).Set(n), nil
		}

		rv := reflect.New(goType).Elem()
		if t.T == abi.UintTy {
			rv.SetUint(n.Uint64())
		} else {
			rv.SetInt(n.Int64())
		}
		return rv.Interface(), nil

	case abi.BoolTy:
		switch v := v.(type) {
		case bool:
			return v, nil
		case string:
			return v == "true", nil
		}
		return nil, fmt.Errorf("bool expected, got %T", v)

	case abi.StringTy:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("string expected, got %T", v)
		}
		return s, nil

	case abi.AddressTy:
		switch v := v.(type) {
		case common.Address:
			return v, nil
		case string:
			if !common.IsHexAddress(v) {
				return nil, fmt.Errorf("invalid address %q", v)
			}
			return common.HexToAddress(v), nil
		}
		return nil, fmt.Errorf("address expected, got %T", v)

	case abi.BytesTy:
		return toByteSlice(v)

	case abi.FixedBytesTy:
		bz, err := toByteSlice(v)
		if err != nil {
			return nil, err
		}
		if len(bz) != t.Size {
			return nil, fmt.Errorf("%d bytes expected, got %d", t.Size, len(bz))
		}

		rv := reflect.New(t.GetType()).Elem()
		reflect.Copy(rv, reflect.ValueOf(bz))
		return rv.Interface(), nil
	}

	return v, nil
}

// checkIntRange fails when n does not fit into an integer of t.Size bits.
func checkIntRange(t abi.Type, n *big.Int) error {
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return fmt.Errorf("%s out of range for uint%d", n, t.Size)
		}
		return nil
	}

	max := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	min := new(big.Int).Neg(max)
	if n.Cmp(min) < 0 || n.Cmp(max) >= 0 {
		return fmt.Errorf("%s out of range for int%d", n, t.Size)
	}

	return nil
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch v := v.(type) {
	case *big.Int:
		return v, nil
	case json.Number:
		return parseBig(v.String())
	case string:
		return parseBig(v)
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint8:
		return big.NewInt(int64(v)), nil
	}

	return nil, fmt.Errorf("integer expected, got %T", v)
}

func parseBig(s string) (*big.Int, error) {
	n, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}

	return n, nil
}

func toByteSlice(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case [32]byte:
		return v[:], nil
	case common.Hash:
		return v.Bytes(), nil
	case string:
		return hexutil.Decode(v)
	}

	return nil, fmt.Errorf("bytes expected, got %T", v)
}
