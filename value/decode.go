package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Unmarshal parses JSON into a Value, inverting ToAny/MarshalCanonical:
// an object of exactly {"__ref": "<id>"} becomes a Ref, numbers without
// a fractional part become Int (json.Number is used so large integers
// survive), and null becomes Null{}.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromDecoded(raw)
}

func fromDecoded(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			n, err := val.Int64()
			if err != nil {
				return nil, fmt.Errorf("integer out of range: %s", s)
			}
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad number: %s", s)
		}
		return Float(f), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			sv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = sv
		}
		return list, nil
	case map[string]any:
		if to, ok := refTarget(val); ok {
			return Ref{To: to}, nil
		}
		obj := make(Object, len(val))
		for k, elem := range val {
			sv, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = sv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value type: %T", v)
	}
}

// refTarget recognizes the serialized reference form.
func refTarget(m map[string]any) (EntityID, bool) {
	if len(m) != 1 {
		return "", false
	}
	s, ok := m["__ref"].(string)
	if !ok {
		return "", false
	}
	return EntityID(s), true
}
