package props

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field is one key of an ordered map value.
type Field struct {
	Key   string
	Value Value
}

// Value is a recursively defined property value: string, number, bool, null,
// ordered map or list. The zero Value is null.
type Value struct {
	Kind   Kind
	Str    string
	Num    float64
	Bool   bool
	Fields []Field
	Items  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps s.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps n.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Int wraps an integer as a number.
func Int(n int) Value { return Value{Kind: KindNumber, Num: float64(n)} }

// Bool wraps b.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Object builds an ordered map from fields. Later duplicates replace earlier keys.
func Object(fields ...Field) Value {
	v := Value{Kind: KindMap, Fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		v = v.Set(f.Key, f.Value)
	}
	return v
}

// List builds a list value.
func List(items ...Value) Value {
	return Value{Kind: KindList, Items: append([]Value{}, items...)}
}

// F is shorthand for building a Field.
func F(key string, value Value) Field { return Field{Key: key, Value: value} }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Len returns the number of entries for maps and lists, zero otherwise.
func (v Value) Len() int {
	switch v.Kind {
	case KindMap:
		return len(v.Fields)
	case KindList:
		return len(v.Items)
	default:
		return 0
	}
}

// Get looks up key on a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	for _, f := range v.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set returns a copy of the map value with key set, keeping insertion order.
// Setting on a non-map value turns it into a single-key map.
func (v Value) Set(key string, value Value) Value {
	out := Value{Kind: KindMap}
	if v.Kind == KindMap {
		out.Fields = make([]Field, len(v.Fields), len(v.Fields)+1)
		copy(out.Fields, v.Fields)
	}
	for i := range out.Fields {
		if out.Fields[i].Key == key {
			out.Fields[i].Value = value
			return out
		}
	}
	out.Fields = append(out.Fields, Field{Key: key, Value: value})
	return out
}

// Keys returns map keys in insertion order.
func (v Value) Keys() []string {
	if v.Kind != KindMap {
		return nil
	}
	keys := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Clone deep-copies v.
func (v Value) Clone() Value {
	out := v
	if v.Fields != nil {
		out.Fields = make([]Field, len(v.Fields))
		for i, f := range v.Fields {
			out.Fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
		}
	}
	if v.Items != nil {
		out.Items = make([]Value, len(v.Items))
		for i, item := range v.Items {
			out.Items[i] = item.Clone()
		}
	}
	return out
}

// Equal compares two values structurally. Map comparison ignores key order.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == other.Str
	case KindNumber:
		return v.Num == other.Num
	case KindBool:
		return v.Bool == other.Bool
	case KindList:
		if len(v.Items) != len(other.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(other.Items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Fields) != len(other.Fields) {
			return false
		}
		for _, f := range v.Fields {
			o, ok := other.Get(f.Key)
			if !ok || !f.Value.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// FormatNumber renders n the same way everywhere a number is serialised.
func FormatNumber(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "null"
	}
	if n == 0 {
		return "0"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// MarshalJSON encodes v preserving map insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := v.writeJSON(buf, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalJSON encodes v with map keys sorted bytewise. Stored JSONB does not
// keep insertion order, so anything hashed must go through this form.
func (v Value) CanonicalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := v.writeJSON(buf, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer, sorted bool) error {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		encoded, err := json.Marshal(v.Str)
		if err != nil {
			return err
		}
		buf.Write(encoded)
	case KindNumber:
		buf.WriteString(FormatNumber(v.Num))
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.Bool))
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf, sorted); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		fields := v.Fields
		if sorted {
			fields = append([]Field(nil), v.Fields...)
			sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
		}
		buf.WriteByte('{')
		for i, f := range fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := f.Value.writeJSON(buf, sorted); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown property kind %d", v.Kind)
	}
	return nil
}

// UnmarshalJSON decodes JSON keeping object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data in properties")
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case json.Delim:
		switch t {
		case '{':
			out := Value{Kind: KindMap, Fields: []Field{}}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key must be a string")
				}
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				out = out.Set(key, child)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		case '[':
			out := Value{Kind: KindList, Items: []Value{}}
			for dec.More() {
				child, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				out.Items = append(out.Items, child)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// Value implements driver.Valuer so properties persist into JSONB columns.
func (v Value) Value() (driver.Value, error) {
	return v.MarshalJSON()
}

// Scan implements sql.Scanner.
func (v *Value) Scan(src interface{}) error {
	switch t := src.(type) {
	case nil:
		*v = Null()
		return nil
	case []byte:
		if len(t) == 0 {
			*v = Null()
			return nil
		}
		return v.UnmarshalJSON(t)
	case string:
		if t == "" {
			*v = Null()
			return nil
		}
		return v.UnmarshalJSON([]byte(t))
	default:
		return fmt.Errorf("cannot scan %T into props.Value", src)
	}
}
