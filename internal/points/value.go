// Package points implements the supervisory-point adapters (spec §4.5,
// §9): the bridge between the device proxy's typed setters/getters and an
// external record framework that only knows how to read and write tagged
// scalar/array values by name.
package points

// Kind identifies a Value's underlying representation: one of six element
// types, each either scalar or array (spec §9 "Dynamic dispatch for typed
// handlers": "{scalar, array} × {u8, i16, i32, i64, f32, f64}").
type Kind int

const (
	KindScalarU8 Kind = iota
	KindScalarI16
	KindScalarI32
	KindScalarI64
	KindScalarF32
	KindScalarF64
	KindArrayU8
	KindArrayI16
	KindArrayI32
	KindArrayI64
	KindArrayF32
	KindArrayF64
)

// Value is a tagged-variant record value, following the same pattern as
// internal/proto.Message: one concrete type per variant, a single method
// reporting which one. This is preferred here over one Go type per
// element type implementing a shared trait (the spec's alternative),
// since a single Handler interface taking one Value type composes more
// directly with Go's type-switch dispatch than a duplicated trait per
// element type would.
type Value interface {
	Kind() Kind
}

type ScalarU8 struct{ V uint8 }

func (ScalarU8) Kind() Kind { return KindScalarU8 }

type ScalarI16 struct{ V int16 }

func (ScalarI16) Kind() Kind { return KindScalarI16 }

type ScalarI32 struct{ V int32 }

func (ScalarI32) Kind() Kind { return KindScalarI32 }

type ScalarI64 struct{ V int64 }

func (ScalarI64) Kind() Kind { return KindScalarI64 }

type ScalarF32 struct{ V float32 }

func (ScalarF32) Kind() Kind { return KindScalarF32 }

type ScalarF64 struct{ V float64 }

func (ScalarF64) Kind() Kind { return KindScalarF64 }

type ArrayU8 struct{ V []uint8 }

func (ArrayU8) Kind() Kind { return KindArrayU8 }

type ArrayI16 struct{ V []int16 }

func (ArrayI16) Kind() Kind { return KindArrayI16 }

type ArrayI32 struct{ V []int32 }

func (ArrayI32) Kind() Kind { return KindArrayI32 }

type ArrayI64 struct{ V []int64 }

func (ArrayI64) Kind() Kind { return KindArrayI64 }

type ArrayF32 struct{ V []float32 }

func (ArrayF32) Kind() Kind { return KindArrayF32 }

type ArrayF64 struct{ V []float64 }

func (ArrayF64) Kind() Kind { return KindArrayF64 }
