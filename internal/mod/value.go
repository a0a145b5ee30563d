package mod

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface over the property value types an ability
// definition can carry. Only Int, Float, and Vec implement it.
//
// The union is closed on purpose: every read/write/serialize path switches
// exhaustively over the concrete type, so a new variant cannot be added
// without the compiler pointing at every switch that must learn about it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Int is a 32-bit integer property value.
type Int int32

func (Int) value() {}

// Float is a 32-bit floating point property value.
type Float float32

func (Float) value() {}

// Vec is a 3-component float vector property value (positions, offsets).
type Vec struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (Vec) value() {}

// ValueEqual reports whether two values have the same tag and payload.
// Two nil values are equal; nil never equals a concrete value.
func ValueEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Vec:
		bv, ok := b.(Vec)
		return ok && av == bv
	default:
		return false
	}
}

// MarshalValue serializes a value to its wire shape: an integral number for
// Int, a number that always carries a fraction or exponent for Float (so the
// reader can reconstruct the tag), and an {x,y,z} object for Vec.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case Int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case Float:
		return []byte(formatFloat(float32(val))), nil
	case Vec:
		return json.Marshal(val)
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// formatFloat renders a float32 so that it never reads back as an integer:
// a bare integral float gains a trailing ".0".
func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && s != "NaN" {
		s += ".0"
	}
	return s
}

// UnmarshalValue reconstructs a value from its wire shape:
//
//   - object with x/y/z fields -> Vec
//   - integral number -> Int
//   - non-integral number -> Float
//   - boolean -> Int 0/1
//   - null -> nil (no value)
//
// Anything else is an error; callers treat that as a malformed document.
func UnmarshalValue(data []byte) (Value, error) {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty value")
	}

	switch trimmed[0] {
	case 'n':
		if trimmed != "null" {
			return nil, fmt.Errorf("invalid value literal %q", trimmed)
		}
		return nil, nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		if b {
			return Int(1), nil
		}
		return Int(0), nil

	case '{':
		var raw map[string]json.Number
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("vector value: %w", err)
		}
		return vecFromFields(raw)

	case '[', '"':
		return nil, fmt.Errorf("unsupported value shape: %s", trimmed[:1])

	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return numberValue(n)
	}
}

// numberValue maps a JSON number onto the union: parseable as an integer
// means Int, otherwise Float. "2.0" carries a fraction and stays a Float.
func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("integer value out of int32 range: %s", n)
		}
		return Int(int32(i)), nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n, err)
	}
	return Float(float32(f)), nil
}

func vecFromFields(raw map[string]json.Number) (Vec, error) {
	if len(raw) != 3 {
		return Vec{}, fmt.Errorf("vector value must have exactly x, y, z fields, got %d fields", len(raw))
	}
	var v Vec
	for _, field := range []struct {
		name string
		dst  *float32
	}{{"x", &v.X}, {"y", &v.Y}, {"z", &v.Z}} {
		n, ok := raw[field.name]
		if !ok {
			return Vec{}, fmt.Errorf("vector value missing field %q", field.name)
		}
		f, err := n.Float64()
		if err != nil {
			return Vec{}, fmt.Errorf("vector field %q: %w", field.name, err)
		}
		*field.dst = float32(f)
	}
	return v, nil
}

// ValueString renders a value for logs and traces.
func ValueString(v Value) string {
	switch val := v.(type) {
	case nil:
		return "<none>"
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return formatFloat(float32(val))
	case Vec:
		return fmt.Sprintf("(%s, %s, %s)", formatFloat(val.X), formatFloat(val.Y), formatFloat(val.Z))
	default:
		return fmt.Sprintf("<invalid %T>", v)
	}
}
