package transformlang

import (
	"fmt"
	"strconv"

	pkgerrors "fluxstore/pkg/errors"
)

// Kind tags the runtime type of a Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

// String returns the kind's name for error messages
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// Value is one runtime value of the transform language. Numbers are always
// floating point; objects are ordered string-keyed maps.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	obj  *Object
	arr  []Value
}

// Null returns the null value
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a float
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// ObjectValue wraps an ordered object
func ObjectValue(obj *Object) Value {
	if obj == nil {
		obj = NewObject()
	}
	return Value{kind: KindObject, obj: obj}
}

// Array wraps an ordered list of values. Collection field reads and
// multi-atom range aggregations resolve to arrays.
func Array(items []Value) Value { return Value{kind: KindArray, arr: items} }

// Kind returns the value's runtime type tag
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; valid only when Kind is KindBool
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the numeric payload; valid only when Kind is KindNumber
func (v Value) AsNumber() float64 { return v.n }

// AsString returns the string payload; valid only when Kind is KindString
func (v Value) AsString() string { return v.s }

// AsObject returns the object payload; valid only when Kind is KindObject
func (v Value) AsObject() *Object { return v.obj }

// AsArray returns the array payload; valid only when Kind is KindArray
func (v Value) AsArray() []Value { return v.arr }

// Equal compares two values. Numbers compare numerically, objects compare
// by keys and values in order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindObject:
		return v.obj.equal(other.obj)
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the value for logs and error messages
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindObject:
		return v.obj.String()
	case KindArray:
		s := "["
		for i, item := range v.arr {
			if i > 0 {
				s += ", "
			}
			s += item.String()
		}
		return s + "]"
	default:
		return "<invalid>"
	}
}

// Object is an ordered string-keyed map of values. Set preserves first
// insertion order on overwrite.
type Object struct {
	keys  []string
	index map[string]int
	vals  []Value
}

// NewObject creates an empty object
func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

// Set stores a value under the key
func (o *Object) Set(key string, value Value) {
	if i, ok := o.index[key]; ok {
		o.vals[i] = value
		return
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.vals = append(o.vals, value)
}

// Get looks up a value by key
func (o *Object) Get(key string) (Value, bool) {
	i, ok := o.index[key]
	if !ok {
		return Null(), false
	}
	return o.vals[i], true
}

// Keys returns the keys in insertion order
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of entries
func (o *Object) Len() int { return len(o.keys) }

func (o *Object) equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for i, key := range o.keys {
		ov, ok := other.Get(key)
		if !ok || !o.vals[i].Equal(ov) {
			return false
		}
	}
	return true
}

// String renders the object in insertion order
func (o *Object) String() string {
	s := "{"
	for i, key := range o.keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %s", key, o.vals[i].String())
	}
	return s + "}"
}

// FromInterface converts store content (decoded JSON) into a Value.
// Unsupported Go types are an error rather than a silent null.
func FromInterface(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(float64(v)), nil
	case int:
		return Number(float64(v)), nil
	case int64:
		return Number(float64(v)), nil
	case string:
		return String(v), nil
	case map[string]interface{}:
		obj := NewObject()
		for key, val := range v {
			converted, err := FromInterface(val)
			if err != nil {
				return Null(), err
			}
			obj.Set(key, converted)
		}
		return ObjectValue(obj), nil
	case []interface{}:
		items := make([]Value, len(v))
		for i, item := range v {
			converted, err := FromInterface(item)
			if err != nil {
				return Null(), err
			}
			items[i] = converted
		}
		return Array(items), nil
	default:
		return Null(), pkgerrors.NewTypeMismatch(fmt.Sprintf("unsupported value type %T", raw))
	}
}

// ToInterface converts a Value into plain Go data suitable for JSON
// encoding as atom content.
func ToInterface(v Value) interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindObject:
		out := make(map[string]interface{}, v.obj.Len())
		for i, key := range v.obj.keys {
			out[key] = ToInterface(v.obj.vals[i])
		}
		return out
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, item := range v.arr {
			out[i] = ToInterface(item)
		}
		return out
	default:
		return nil
	}
}
