package core

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/valyala/fastjson"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed datum stored in an entry's Extra payload.
// The zero Value is null. Integers are kept as KindInt whenever they fit in
// an int64; KindUint only holds values above math.MaxInt64.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	arr  []Value
	m    *Map
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
	_ msgpack.CustomEncoder = (*Map)(nil)
	_ msgpack.CustomDecoder = (*Map)(nil)
)

// ErrUnsupportedValue is returned when a Go value has no Value representation.
var ErrUnsupportedValue = errors.New("unsupported value type")

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }

// Uint returns an integer Value, normalized to KindInt when u fits in int64.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, u: u}
}

// Array returns a sequence Value. An empty call yields an empty array.
func Array(items ...Value) Value {
	if len(items) == 0 {
		return Value{kind: KindArray}
	}
	return Value{kind: KindArray, arr: items}
}

// MapValue wraps m as a Value. A nil map becomes an empty one.
func MapValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Len() int { return len(v.arr) }
func (v Value) Items() []Value { return v.arr }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) AsUint() (uint64, bool) { return v.u, v.kind == KindUint }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsMap() (*Map, bool) { return v.m, v.kind == KindMap }

// Interface converts the Value back to plain Go types. Maps become
// map[string]any and therefore lose their key order.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.m.Len())
		v.m.Range(func(k string, item Value) bool {
			out[k] = item.Interface()
			return true
		})
		return out
	default:
		return nil
	}
}

// ValueOf converts common Go values into a Value. Plain Go maps are sorted by
// key because they carry no insertion order.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case *Map:
		return MapValue(t), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			v, err := ValueOf(t[k])
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			m.Set(k, v)
		}
		return MapValue(m), nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrUnsupportedValue, reflect.TypeOf(x))
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindUint:
		return enc.EncodeUint(v.u)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for i := range v.arr {
			if err := v.arr[i].EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		return v.m.EncodeMsgpack(enc)
	}
	return fmt.Errorf("%w: kind %d", ErrUnsupportedValue, v.kind)
}

// maxDecodePrealloc caps the capacity reserved from a decoded array or map
// length. Lengths come from untrusted bytes; larger collections grow by append.
const maxDecodePrealloc = 1024

// DecodeMsgpack implements msgpack.CustomDecoder.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return err
	}
	switch {
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if n <= 0 {
			*v = Array()
			return nil
		}
		items := make([]Value, 0, min(n, maxDecodePrealloc))
		for i := 0; i < n; i++ {
			var item Value
			if err := item.DecodeMsgpack(dec); err != nil {
				return fmt.Errorf("array item %d: %w", i, err)
			}
			items = append(items, item)
		}
		*v = Array(items...)
		return nil
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		m := NewMap()
		if err := m.DecodeMsgpack(dec); err != nil {
			return err
		}
		*v = MapValue(m)
		return nil
	}

	x, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch t := x.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(t)
	case int8:
		*v = Int(int64(t))
	case int16:
		*v = Int(int64(t))
	case int32:
		*v = Int(int64(t))
	case int64:
		*v = Int(t)
	case uint8:
		*v = Uint(uint64(t))
	case uint16:
		*v = Uint(uint64(t))
	case uint32:
		*v = Uint(uint64(t))
	case uint64:
		*v = Uint(t)
	case float32:
		*v = Float(float64(t))
	case float64:
		*v = Float(t)
	case string:
		*v = String(t)
	case []byte:
		*v = String(string(t))
	default:
		return fmt.Errorf("%w: msgpack %T", ErrUnsupportedValue, x)
	}
	return nil
}

// MarshalJSON renders the value as compact JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return v.AppendJSON(nil)
}

// AppendJSON appends the compact JSON form of v to dst.
func (v Value) AppendJSON(dst []byte) ([]byte, error) {
	var a fastjson.Arena
	jv, err := v.toJSON(&a)
	if err != nil {
		return nil, err
	}
	return jv.MarshalTo(dst), nil
}

func (v Value) toJSON(a *fastjson.Arena) (*fastjson.Value, error) {
	switch v.kind {
	case KindNull:
		return a.NewNull(), nil
	case KindBool:
		if v.b {
			return a.NewTrue(), nil
		}
		return a.NewFalse(), nil
	case KindInt:
		return a.NewNumberString(strconv.FormatInt(v.i, 10)), nil
	case KindUint:
		return a.NewNumberString(strconv.FormatUint(v.u, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("json: unsupported value: %s", strconv.FormatFloat(v.f, 'g', -1, 64))
		}
		return a.NewNumberFloat64(v.f), nil
	case KindString:
		return a.NewString(v.s), nil
	case KindArray:
		arr := a.NewArray()
		for i, item := range v.arr {
			jv, err := item.toJSON(a)
			if err != nil {
				return nil, err
			}
			arr.SetArrayItem(i, jv)
		}
		return arr, nil
	case KindMap:
		return v.m.toJSON(a)
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnsupportedValue, v.kind)
}

// ParseJSON parses JSON text into a Value, keeping object keys in the order
// they appear in the input.
func ParseJSON(text string) (Value, error) {
	jv, err := fastjson.Parse(text)
	if err != nil {
		return Value{}, err
	}
	return fromJSON(jv)
}

func fromJSON(jv *fastjson.Value) (Value, error) {
	switch jv.Type() {
	case fastjson.TypeNull:
		return Null(), nil
	case fastjson.TypeTrue:
		return Bool(true), nil
	case fastjson.TypeFalse:
		return Bool(false), nil
	case fastjson.TypeString:
		b, err := jv.StringBytes()
		if err != nil {
			return Value{}, err
		}
		return String(string(b)), nil
	case fastjson.TypeNumber:
		if i, err := jv.Int64(); err == nil {
			return Int(i), nil
		}
		if u, err := jv.Uint64(); err == nil {
			return Uint(u), nil
		}
		f, err := jv.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case fastjson.TypeArray:
		items, err := jv.Array()
		if err != nil {
			return Value{}, err
		}
		out := make([]Value, len(items))
		for i, item := range items {
			if out[i], err = fromJSON(item); err != nil {
				return Value{}, err
			}
		}
		return Array(out...), nil
	case fastjson.TypeObject:
		obj, err := jv.Object()
		if err != nil {
			return Value{}, err
		}
		m := NewMap()
		var visitErr error
		obj.Visit(func(key []byte, item *fastjson.Value) {
			if visitErr != nil {
				return
			}
			v, err := fromJSON(item)
			if err != nil {
				visitErr = err
				return
			}
			m.Set(string(key), v)
		})
		if visitErr != nil {
			return Value{}, visitErr
		}
		return MapValue(m), nil
	}
	return Value{}, fmt.Errorf("%w: json %s", ErrUnsupportedValue, jv.Type())
}

// MapEntry is one key/value pair of a Map.
type MapEntry struct {
	Key   string
	Value Value
}

// Map is a string-keyed mapping that preserves insertion order.
type Map struct {
	entries []MapEntry
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{}
}

// Len returns the number of keys. A nil Map is empty.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Set stores v under key. Replacing an existing key keeps its position.
func (m *Map) Set(key string, v Value) *Map {
	for i := range m.entries {
		if m.entries[i].Key == key {
			m.entries[i].Value = v
			return m
		}
	}
	m.entries = append(m.entries, MapEntry{Key: key, Value: v})
	return m
}

// SetAny converts x with ValueOf and stores it under key.
func (m *Map) SetAny(key string, x any) error {
	v, err := ValueOf(x)
	if err != nil {
		return err
	}
	m.Set(key, v)
	return nil
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	for _, e := range m.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

func (m *Map) Delete(key string) {
	for i := range m.entries {
		if m.entries[i].Key == key {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			if len(m.entries) == 0 {
				m.entries = nil
			}
			return
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m.Len() == 0 {
		return nil
	}
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Range calls fn for every pair in insertion order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, e := range m.entries {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// EncodeMsgpack implements msgpack.CustomEncoder.
func (m *Map) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(m.Len()); err != nil {
		return err
	}
	var err error
	m.Range(func(k string, v Value) bool {
		if err = enc.EncodeString(k); err != nil {
			return false
		}
		err = v.EncodeMsgpack(enc)
		return err == nil
	})
	return err
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (m *Map) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	m.entries = nil
	if n <= 0 {
		return nil
	}
	m.entries = make([]MapEntry, 0, min(n, maxDecodePrealloc))
	index := make(map[string]int, min(n, maxDecodePrealloc))
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return fmt.Errorf("map key %d: %w", i, err)
		}
		var v Value
		if err := v.DecodeMsgpack(dec); err != nil {
			return fmt.Errorf("map value %q: %w", key, err)
		}
		// A repeated key keeps its first position and the last value, as Set does.
		if at, ok := index[key]; ok {
			m.entries[at].Value = v
			continue
		}
		index[key] = len(m.entries)
		m.entries = append(m.entries, MapEntry{Key: key, Value: v})
	}
	return nil
}

// MarshalJSON renders the map as a compact JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var a fastjson.Arena
	jv, err := m.toJSON(&a)
	if err != nil {
		return nil, err
	}
	return jv.MarshalTo(nil), nil
}

func (m *Map) toJSON(a *fastjson.Arena) (*fastjson.Value, error) {
	obj := a.NewObject()
	var err error
	m.Range(func(k string, v Value) bool {
		var jv *fastjson.Value
		if jv, err = v.toJSON(a); err != nil {
			return false
		}
		obj.Set(k, jv)
		return true
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}
