package raw

import "sort"

// Concrete implementations for the raw object variants.

// NameObj is a PDF name.
type NameObj struct{ Val string }

func (n NameObj) Type() string     { return "name" }
func (n NameObj) IsIndirect() bool { return false }
func (n NameObj) Value() string    { return n.Val }

// NumberObj is a PDF number, integer or real.
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string     { return "number" }
func (n NumberObj) IsIndirect() bool { return false }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

// BoolObj is a PDF boolean.
type BoolObj struct{ V bool }

func (b BoolObj) Type() string     { return "boolean" }
func (b BoolObj) IsIndirect() bool { return false }
func (b BoolObj) Value() bool      { return b.V }

// NullObj is the PDF null object.
type NullObj struct{}

func (n NullObj) Type() string     { return "null" }
func (n NullObj) IsIndirect() bool { return false }

// StringObj is a PDF string.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string     { return "string" }
func (s StringObj) IsIndirect() bool { return false }
func (s StringObj) Value() []byte    { return s.Bytes }
func (s StringObj) IsHex() bool      { return s.Hex }

// ArrayObj is a PDF array.
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string     { return "array" }
func (a *ArrayObj) IsIndirect() bool { return false }
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Set(i int, o Object) {
	if i >= 0 && i < len(a.Items) {
		a.Items[i] = o
	}
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// DictObj is a PDF dictionary. Keys() returns keys in sorted order so that
// traversal, hashing and serialization are deterministic.
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string                { return "dict" }
func (d *DictObj) IsIndirect() bool            { return false }
func (d *DictObj) Get(key Name) (Object, bool) { o, ok := d.KV[key.Value()]; return o, ok }
func (d *DictObj) Set(key Name, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key.Value()] = value
}
func (d *DictObj) Delete(key Name) { delete(d.KV, key.Value()) }
func (d *DictObj) Keys() []Name {
	names := make([]string, 0, len(d.KV))
	for k := range d.KV {
		names = append(names, k)
	}
	sort.Strings(names)
	keys := make([]Name, len(names))
	for i, k := range names {
		keys[i] = NameObj{Val: k}
	}
	return keys
}
func (d *DictObj) Len() int { return len(d.KV) }

// StreamObj is a PDF stream: dictionary plus encoded payload.
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string           { return "stream" }
func (s *StreamObj) IsIndirect() bool       { return false }
func (s *StreamObj) Dictionary() Dictionary { return s.Dict }
func (s *StreamObj) RawData() []byte        { return s.Data }
func (s *StreamObj) Length() int64          { return int64(len(s.Data)) }

// SetData replaces the encoded payload and keeps /Length in sync.
func (s *StreamObj) SetData(data []byte) {
	s.Data = data
	s.Dict.Set(NameObj{Val: "Length"}, NumberInt(int64(len(data))))
}

// RefObj is an indirect object reference.
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string     { return "ref" }
func (r RefObj) IsIndirect() bool { return true }
func (r RefObj) Ref() ObjectRef   { return r.R }

// Constructors.

func NameLiteral(v string) NameObj { return NameObj{Val: v} }
func NumberInt(i int64) NumberObj  { return NumberObj{I: i, IsInt: true} }
func NumberFloat(f float64) NumberObj {
	return NumberObj{F: f, IsInt: false}
}
func Bool(v bool) BoolObj        { return BoolObj{V: v} }
func Str(bytes []byte) StringObj { return StringObj{Bytes: bytes} }
func NewArray(items ...Object) *ArrayObj {
	return &ArrayObj{Items: items}
}
func Dict() *DictObj { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj {
	if dict == nil {
		dict = Dict()
	}
	dict.Set(NameObj{Val: "Length"}, NumberInt(int64(len(data))))
	return &StreamObj{Dict: dict, Data: data}
}
func Ref(num, gen int) RefObj { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// DictGet resolves a dictionary entry through doc, following one level of
// indirection. Returns nil if the key is absent.
func DictGet(doc *Document, d Dictionary, key string) Object {
	if d == nil {
		return nil
	}
	v, ok := d.Get(NameObj{Val: key})
	if !ok {
		return nil
	}
	if doc != nil {
		return doc.Resolve(v)
	}
	return v
}

// Int returns the integer value of obj, or def when obj is not a number.
func Int(obj Object, def int64) int64 {
	if n, ok := obj.(Number); ok {
		return n.Int()
	}
	return def
}

// Float returns the numeric value of obj, or def when obj is not a number.
func Float(obj Object, def float64) float64 {
	if n, ok := obj.(Number); ok {
		return n.Float()
	}
	return def
}
