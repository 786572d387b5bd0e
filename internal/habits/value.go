package habits

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrValueShape = errors.New("habit value does not match kind")

// Value is a habit payload tagged with its shape. Boolean and numeric kinds
// carry a scalar; structured kinds keep the raw JSON object or string.
type Value struct {
	shape Shape
	b     bool
	n     float64
	raw   json.RawMessage
}

func Bool(b bool) Value      { return Value{shape: ShapeBoolean, b: b} }
func Number(n float64) Value { return Value{shape: ShapeNumeric, n: n} }

// Structured wraps a raw JSON payload. raw must be valid JSON.
func Structured(raw json.RawMessage) Value {
	return Value{shape: ShapeStructured, raw: append(json.RawMessage(nil), raw...)}
}

// ParseValue decodes raw according to the shape the kind expects.
func ParseValue(kind Kind, raw json.RawMessage) (Value, error) {
	if !kind.Valid() {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Value{}, fmt.Errorf("%w: %s requires a value", ErrValueShape, kind)
	}
	switch kind.Shape() {
	case ShapeBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, fmt.Errorf("%w: %s expects a boolean", ErrValueShape, kind)
		}
		return Bool(b), nil
	case ShapeNumeric:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, fmt.Errorf("%w: %s expects a number", ErrValueShape, kind)
		}
		return Number(n), nil
	default:
		if !json.Valid(raw) {
			return Value{}, fmt.Errorf("%w: %s expects JSON", ErrValueShape, kind)
		}
		return Structured(raw), nil
	}
}

func (v Value) Shape() Shape { return v.shape }

// Bool returns the boolean payload and whether v is boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.shape == ShapeBoolean }

// Number returns the numeric payload and whether v is numeric.
func (v Value) Number() (float64, bool) { return v.n, v.shape == ShapeNumeric }

// Raw returns the structured payload.
func (v Value) Raw() json.RawMessage { return v.raw }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.shape {
	case ShapeBoolean:
		return json.Marshal(v.b)
	case ShapeNumeric:
		return json.Marshal(v.n)
	default:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		return v.raw, nil
	}
}
