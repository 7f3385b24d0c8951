package reflector

import "reflect"

// Kind tags the wire category of a reflected member.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindStruct
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindInt8:    "int8",
	KindUint8:   "uint8",
	KindInt16:   "int16",
	KindUint16:  "uint16",
	KindInt32:   "int32",
	KindUint32:  "uint32",
	KindInt64:   "int64",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindStruct:  "struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Scalar reports whether the kind is a builtin scalar.
func (k Kind) Scalar() bool {
	return k > KindInvalid && k < KindStruct
}

// kindOf classifies a Go type as a wire kind, returning KindInvalid for
// anything that cannot transit the wire directly. Platform-sized int, uint
// and uintptr are deliberately invalid: their width differs across
// architectures, so a wire shape built from them would not be reproducible.
func kindOf(t reflect.Type) Kind {
	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Int8:
		return KindInt8
	case reflect.Uint8:
		return KindUint8
	case reflect.Int16:
		return KindInt16
	case reflect.Uint16:
		return KindUint16
	case reflect.Int32:
		return KindInt32
	case reflect.Uint32:
		return KindUint32
	case reflect.Int64:
		return KindInt64
	case reflect.Uint64:
		return KindUint64
	case reflect.Float32:
		return KindFloat32
	case reflect.Float64:
		return KindFloat64
	case reflect.Struct:
		return KindStruct
	default:
		return KindInvalid
	}
}
