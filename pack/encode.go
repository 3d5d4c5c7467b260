package pack

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/sisu-network/renbridge/utils"
)

// Type ids used in the binary encoding of types.
const (
	idBool    byte = 1
	idU8      byte = 2
	idU16     byte = 3
	idU32     byte = 4
	idU64     byte = 5
	idU128    byte = 6
	idU256    byte = 7
	idStr     byte = 10
	idBytes   byte = 11
	idBytes32 byte = 12
	idBytes65 byte = 13
	idStruct  byte = 14
	idList    byte = 15
)

var primitiveIds = map[Primitive]byte{
	Bool:    idBool,
	U8:      idU8,
	U16:     idU16,
	U32:     idU32,
	U64:     idU64,
	U128:    idU128,
	U256:    idU256,
	Str:     idStr,
	Bytes:   idBytes,
	Bytes32: idBytes32,
	Bytes65: idBytes65,
}

// EncodeString writes a 4 byte big endian length followed by the string.
func EncodeString(s string) []byte {
	return encodeBytes([]byte(s))
}

func encodeBytes(bz []byte) []byte {
	ret := make([]byte, 4, 4+len(bz))
	binary.BigEndian.PutUint32(ret, uint32(len(bz)))
	return append(ret, bz...)
}

func EncodeType(t Type) ([]byte, error) {
	switch t := t.(type) {
	case Primitive:
		id, ok := primitiveIds[t]
		if !ok {
			return nil, fmt.Errorf("unknown pack type %q", string(t))
		}
		return []byte{id}, nil

	case Struct:
		ret := []byte{idStruct}
		count := make([]byte, 4)
		binary.BigEndian.PutUint32(count, uint32(len(t.Fields)))
		ret = append(ret, count...)

		for _, field := range t.Fields {
			ret = append(ret, EncodeString(field.Name)...)
			bz, err := EncodeType(field.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			ret = append(ret, bz...)
		}
		return ret, nil

	case List:
		bz, err := EncodeType(t.Elem)
		if err != nil {
			return nil, fmt.Errorf("list element: %w", err)
		}
		return append([]byte{idList}, bz...), nil

	default:
		return nil, fmt.Errorf("unsupported pack type %T", t)
	}
}

func EncodeValue(t Type, v interface{}) ([]byte, error) {
	switch t := t.(type) {
	case Primitive:
		return encodePrimitive(t, v)

	case Struct:
		values, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("struct value must be an object, got %T", v)
		}

		ret := make([]byte, 0)
		for _, field := range t.Fields {
			value, ok := values[field.Name]
			if !ok {
				return nil, fmt.Errorf("missing struct field %s", field.Name)
			}

			bz, err := EncodeValue(field.Type, value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			ret = append(ret, bz...)
		}
		return ret, nil

	case List:
		values, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("list value must be an array, got %T", v)
		}

		ret := make([]byte, 4)
		binary.BigEndian.PutUint32(ret, uint32(len(values)))
		for i, value := range values {
			bz, err := EncodeValue(t.Elem, value)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			ret = append(ret, bz...)
		}
		return ret, nil

	default:
		return nil, fmt.Errorf("unsupported pack type %T", t)
	}
}

// Encode returns the binary encoding of a typed value: its type followed by its value.
func Encode(tv TypedValue) ([]byte, error) {
	typeBz, err := EncodeType(tv.T)
	if err != nil {
		return nil, err
	}

	valueBz, err := EncodeValue(tv.T, tv.V)
	if err != nil {
		return nil, err
	}

	return append(typeBz, valueBz...), nil
}

func encodePrimitive(p Primitive, v interface{}) ([]byte, error) {
	if size, ok := uintSizes[p]; ok {
		n, err := toBigInt(v)
		if err != nil {
			return nil, err
		}
		if n.Sign() < 0 || n.BitLen() > size {
			return nil, fmt.Errorf("value %s out of range for %s", n.String(), p)
		}

		ret := make([]byte, size/8)
		return n.FillBytes(ret), nil
	}

	switch p {
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("bool value expected, got %T", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case Str:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("string value expected, got %T", v)
		}
		return EncodeString(s), nil

	case Bytes, Bytes32, Bytes65:
		bz, err := toBytes(v)
		if err != nil {
			return nil, err
		}

		switch {
		case p == Bytes32 && len(bz) != 32:
			return nil, fmt.Errorf("b32 value must be 32 bytes, got %d", len(bz))
		case p == Bytes65 && len(bz) != 65:
			return nil, fmt.Errorf("b65 value must be 65 bytes, got %d", len(bz))
		case p == Bytes:
			return encodeBytes(bz), nil
		}
		return bz, nil
	}

	return nil, fmt.Errorf("unknown pack type %q", string(p))
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch v := v.(type) {
	case *big.Int:
		return v, nil
	case string:
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		return n, nil
	case json.Number:
		n, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", v.String())
		}
		return n, nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case uint32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("invalid integer %v", v)
		}
		return big.NewInt(int64(v)), nil
	}

	return nil, fmt.Errorf("integer value expected, got %T", v)
}

func toBytes(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case []byte:
		return v, nil
	case string:
		return utils.FromURLBase64(v)
	}

	return nil, fmt.Errorf("bytes value expected, got %T", v)
}
