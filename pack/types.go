package pack

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Type is a Primitive, a Struct or a List.
type Type interface {
	isType()
}

type Primitive string

const (
	Bool    Primitive = "bool"
	U8      Primitive = "u8"
	U16     Primitive = "u16"
	U32     Primitive = "u32"
	U64     Primitive = "u64"
	U128    Primitive = "u128"
	U256    Primitive = "u256"
	Str     Primitive = "string"
	Bytes   Primitive = "bytes"
	Bytes32 Primitive = "b32"
	Bytes65 Primitive = "b65"
)

func (Primitive) isType() {}

// bit size of the unsigned integer primitives.
var uintSizes = map[Primitive]int{
	U8:   8,
	U16:  16,
	U32:  32,
	U64:  64,
	U128: 128,
	U256: 256,
}

func (p Primitive) valid() bool {
	switch p {
	case Bool, Str, Bytes, Bytes32, Bytes65:
		return true
	}
	_, ok := uintSizes[p]

	return ok
}

type Field struct {
	Name string
	Type Type
}

type Struct struct {
	Fields []Field
}

func (Struct) isType() {}

func NewStruct(fields ...Field) Struct {
	return Struct{Fields: fields}
}

// MarshalJSON encodes a struct as {"struct": [{"name": type}, ...]}.
func (s Struct) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString(`{"struct":[`)
	for i, field := range s.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		name, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		t, err := json.Marshal(field.Type)
		if err != nil {
			return nil, err
		}

		buf.WriteByte('{')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(t)
		buf.WriteByte('}')
	}
	buf.WriteString(`]}`)

	return buf.Bytes(), nil
}

// List is a variable length sequence of values of the same type.
type List struct {
	Elem Type
}

func (List) isType() {}

func NewList(elem Type) List {
	return List{Elem: elem}
}

// MarshalJSON encodes a list as {"list": type}.
func (l List) MarshalJSON() ([]byte, error) {
	elem, err := json.Marshal(l.Elem)
	if err != nil {
		return nil, err
	}

	return []byte(`{"list":` + string(elem) + `}`), nil
}

// ParseType decodes the JSON form of a type.
func ParseType(raw json.RawMessage) (Type, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		p := Primitive(name)
		if !p.valid() {
			return nil, fmt.Errorf("unknown pack type %q", name)
		}
		return p, nil
	}

	obj := struct {
		Struct []json.RawMessage `json:"struct"`
		List   json.RawMessage   `json:"list"`
	}{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid pack type %s: %w", string(raw), err)
	}
	if obj.List != nil {
		elem, err := ParseType(obj.List)
		if err != nil {
			return nil, fmt.Errorf("invalid list element: %w", err)
		}
		return List{Elem: elem}, nil
	}
	if obj.Struct == nil {
		return nil, fmt.Errorf("invalid pack type %s", string(raw))
	}

	s := Struct{Fields: make([]Field, 0, len(obj.Struct))}
	for _, rawField := range obj.Struct {
		// Each field is an object with exactly one key.
		entry := make(map[string]json.RawMessage)
		if err := json.Unmarshal(rawField, &entry); err != nil {
			return nil, fmt.Errorf("invalid struct field %s: %w", string(rawField), err)
		}
		if len(entry) != 1 {
			return nil, fmt.Errorf("struct field must have exactly one key, got %d", len(entry))
		}

		for name, rawType := range entry {
			t, err := ParseType(rawType)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, Field{Name: name, Type: t})
		}
	}

	return s, nil
}

// TypedValue is a value together with its pack type, serialized as {"t": ..., "v": ...}.
type TypedValue struct {
	T Type        `json:"t"`
	V interface{} `json:"v"`
}

func (tv *TypedValue) UnmarshalJSON(bz []byte) error {
	raw := struct {
		T json.RawMessage `json:"t"`
		V json.RawMessage `json:"v"`
	}{}
	if err := json.Unmarshal(bz, &raw); err != nil {
		return err
	}

	t, err := ParseType(raw.T)
	if err != nil {
		return err
	}

	var v interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw.V))
	decoder.UseNumber()
	if err := decoder.Decode(&v); err != nil {
		return err
	}

	tv.T = t
	tv.V = v

	return nil
}
