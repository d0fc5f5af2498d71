package setting

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindNull   Kind = "null"
	KindJSON   Kind = "json"
)

// Value normalizes a configuration value on write so that false, 0 and the
// empty string stay distinguishable from "absent", and scalars stay
// distinguishable from structured blobs without the reader knowing the type
// in advance.
type Value struct {
	kind   Kind
	str    string
	num    int64
	flt    float64
	boolep bool
	raw    json.RawMessage
}

// NewValue wraps an arbitrary caller-supplied value. Anything that is not a
// scalar is stored as a structured JSON blob.
func NewValue(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Value{kind: KindNull}, nil
	case string:
		return Value{kind: KindString, str: t}, nil
	case bool:
		return Value{kind: KindBool, boolep: t}, nil
	case int:
		return Value{kind: KindInt, num: int64(t)}, nil
	case int32:
		return Value{kind: KindInt, num: int64(t)}, nil
	case int64:
		return Value{kind: KindInt, num: t}, nil
	case float32:
		return Value{kind: KindFloat, flt: float64(t)}, nil
	case float64:
		return Value{kind: KindFloat, flt: t}, nil
	case json.RawMessage:
		return Value{kind: KindJSON, raw: t}, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return Value{}, fmt.Errorf("unsupported setting value: %w", err)
		}
		return Value{kind: KindJSON, raw: raw}, nil
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

// Unwrap returns the original Go value: string, int64, float64, bool, nil or
// json.RawMessage for structured blobs.
func (v Value) Unwrap() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.boolep
	case KindJSON:
		return v.raw
	}
	return nil
}

type valueEnvelope struct {
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var inner []byte
	var err error
	switch v.kind {
	case KindNull:
		inner = []byte("null")
	case KindJSON:
		inner = v.raw
	default:
		inner, err = json.Marshal(v.Unwrap())
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(valueEnvelope{Kind: v.kind, Value: inner})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case KindNull:
		*v = Value{kind: KindNull}
	case KindString:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return err
		}
		*v = Value{kind: KindString, str: s}
	case KindInt:
		var n int64
		if err := json.Unmarshal(env.Value, &n); err != nil {
			return err
		}
		*v = Value{kind: KindInt, num: n}
	case KindFloat:
		var f float64
		if err := json.Unmarshal(env.Value, &f); err != nil {
			return err
		}
		*v = Value{kind: KindFloat, flt: f}
	case KindBool:
		var b bool
		if err := json.Unmarshal(env.Value, &b); err != nil {
			return err
		}
		*v = Value{kind: KindBool, boolep: b}
	case KindJSON:
		*v = Value{kind: KindJSON, raw: env.Value}
	default:
		return fmt.Errorf("unknown setting value kind %q", env.Kind)
	}
	return nil
}
