// Package raw defines the indirect-object model shared by every component:
// the PDF object variants plus the Document arena that owns them. References
// are plain {Num, Gen} values rather than pointers, so object graphs can be
// copied, hashed and serialized without pointer fixups.
package raw

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the engine. Operations wrap these with
// fmt.Errorf("...: %w", ...) so callers can classify with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrCorrupt         = errors.New("corrupt document")
	ErrCodecFailure    = errors.New("codec failure")
	ErrIOFailure       = errors.New("i/o failure")
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether r is the zero (unallocated) reference.
func (r ObjectRef) IsZero() bool { return r.Num == 0 && r.Gen == 0 }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Delete(key Name)
	Keys() []Name
	Len() int
}

// Array represents a PDF array object.
type Array interface {
	Object
	Get(index int) (Object, bool)
	Set(index int, obj Object)
	Len() int
	Append(obj Object)
}

// Stream represents a stream object: dictionary plus raw (still encoded)
// payload bytes.
type Stream interface {
	Object
	Dictionary() Dictionary
	RawData() []byte
	Length() int64
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// String represents a PDF string (literal or hex).
type String interface {
	Object
	Value() []byte
	IsHex() bool
}

// Number represents a PDF numeric value.
type Number interface {
	Object
	Int() int64
	Float() float64
	IsInteger() bool
}

// Boolean represents a PDF boolean.
type Boolean interface {
	Object
	Value() bool
}

// Null represents the PDF null object.
type Null interface{ Object }

// Reference represents an indirect object reference.
type Reference interface {
	Object
	Ref() ObjectRef
}
