package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"unicode/utf8"
)

// DataType is the discriminant of a column's declared type. The native
// backend (schema kind "poorly") only ever produces or accepts
// DataTypeInt, DataTypeFloat, DataTypeChar, DataTypeString,
// DataTypeCharInterval, and DataTypeStringInterval. The SQL-delegated
// backend (schema kind "sqlite") only produces or accepts DataTypeInt,
// DataTypeFloat, DataTypeChar, DataTypeString, DataTypeEmail, and
// DataTypeSerial. The two sets overlap only in the first four; a schema is
// rejected at creation time if it mixes kinds.
type DataType int

const (
	DataTypeInt DataType = iota
	DataTypeFloat
	DataTypeChar
	DataTypeString
	DataTypeCharInterval
	DataTypeStringInterval
	DataTypeEmail
	DataTypeSerial
)

func (d DataType) String() string {
	switch d {
	case DataTypeInt:
		return "int"
	case DataTypeFloat:
		return "float"
	case DataTypeChar:
		return "char"
	case DataTypeString:
		return "string"
	case DataTypeCharInterval:
		return "char_invl"
	case DataTypeStringInterval:
		return "string_invl"
	case DataTypeEmail:
		return "email"
	case DataTypeSerial:
		return "serial"
	default:
		return fmt.Sprintf("datatype(%d)", int(d))
	}
}

// ParseDataType maps a schema.yaml / wire type name back to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "int":
		return DataTypeInt, nil
	case "float":
		return DataTypeFloat, nil
	case "char":
		return DataTypeChar, nil
	case "string":
		return DataTypeString, nil
	case "char_invl":
		return DataTypeCharInterval, nil
	case "string_invl":
		return DataTypeStringInterval, nil
	case "email":
		return DataTypeEmail, nil
	case "serial":
		return DataTypeSerial, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

// IsNative reports whether d belongs to the native (poorly-kind) column
// type set.
func (d DataType) IsNative() bool {
	switch d {
	case DataTypeInt, DataTypeFloat, DataTypeChar, DataTypeString, DataTypeCharInterval, DataTypeStringInterval:
		return true
	default:
		return false
	}
}

// IsSQL reports whether d belongs to the SQL-delegated (sqlite-kind) column
// type set.
func (d DataType) IsSQL() bool {
	switch d {
	case DataTypeInt, DataTypeFloat, DataTypeChar, DataTypeString, DataTypeEmail, DataTypeSerial:
		return true
	default:
		return false
	}
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Value is a tagged scalar or interval value. Only the fields relevant to
// Kind are meaningful; the rest sit at their zero value. This mirrors the
// small closed value systems used elsewhere in this codebase's lineage
// (a discriminant field next to per-kind scalar fields) rather than an
// interface per kind, since the set of kinds is fixed and small.
type Value struct {
	Kind DataType

	I int64   // DataTypeInt, DataTypeSerial (as int64 for arithmetic convenience)
	F float64 // DataTypeFloat
	C rune    // DataTypeChar
	S string  // DataTypeString, DataTypeEmail

	LoC, HiC rune   // DataTypeCharInterval
	LoS, HiS string // DataTypeStringInterval
}

func (v Value) DataType() DataType { return v.Kind }

func IntValue(i int64) Value      { return Value{Kind: DataTypeInt, I: i} }
func FloatValue(f float64) Value  { return Value{Kind: DataTypeFloat, F: f} }
func CharValue(c rune) Value      { return Value{Kind: DataTypeChar, C: c} }
func StringValue(s string) Value  { return Value{Kind: DataTypeString, S: s} }
func EmailValue(s string) Value   { return Value{Kind: DataTypeEmail, S: s} }
func SerialValue(i uint32) Value  { return Value{Kind: DataTypeSerial, I: int64(i)} }

// CharIntervalValue builds a closed character range value. Callers should
// use NewCharInterval to validate ordering.
func CharIntervalValue(lo, hi rune) Value {
	return Value{Kind: DataTypeCharInterval, LoC: lo, HiC: hi}
}

// StringIntervalValue builds a closed string range value. Callers should
// use NewStringInterval to validate ordering.
func StringIntervalValue(lo, hi string) Value {
	return Value{Kind: DataTypeStringInterval, LoS: lo, HiS: hi}
}

// NewCharInterval validates that lo does not exceed hi before constructing
// the interval value.
func NewCharInterval(lo, hi rune) (Value, error) {
	if lo > hi {
		return Value{}, fmt.Errorf("char interval bounds out of order: %q > %q", lo, hi)
	}
	return CharIntervalValue(lo, hi), nil
}

// NewStringInterval validates that lo does not lexicographically exceed hi
// before constructing the interval value.
func NewStringInterval(lo, hi string) (Value, error) {
	if lo > hi {
		return Value{}, fmt.Errorf("string interval bounds out of order: %q > %q", lo, hi)
	}
	return StringIntervalValue(lo, hi), nil
}

// Serial returns the value's serial payload as a uint32.
func (v Value) Serial() uint32 { return uint32(v.I) }

// Validate enforces per-kind constraints beyond the type system, currently
// only the email address pattern.
func (v Value) Validate() error {
	if v.Kind == DataTypeEmail && !emailPattern.MatchString(v.S) {
		return &InvalidEmailError{Value: v.S}
	}
	return nil
}

// Equal reports whether two values of the same scalar kind are identical.
// It never performs cross-kind comparison; callers needing interval
// containment semantics should use MatchCondition instead.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case DataTypeInt, DataTypeSerial:
		return v.I == o.I
	case DataTypeFloat:
		return v.F == o.F
	case DataTypeChar:
		return v.C == o.C
	case DataTypeString, DataTypeEmail:
		return v.S == o.S
	case DataTypeCharInterval:
		return v.LoC == o.LoC && v.HiC == o.HiC
	case DataTypeStringInterval:
		return v.LoS == o.LoS && v.HiS == o.HiS
	default:
		return false
	}
}

// Coerce converts v, which arrived as an untyped literal decoded from JSON,
// into a value of the requested column type. Coercion is intentionally
// narrow: it does not widen strings to numbers or numbers to strings,
// matching spec.md's "reject floats and strings" rule for int columns.
func (v Value) Coerce(to DataType, column string) (Value, error) {
	if v.Kind == to {
		return v, nil
	}
	switch {
	case v.Kind == DataTypeInt && to == DataTypeFloat:
		return FloatValue(float64(v.I)), nil
	case v.Kind == DataTypeInt && to == DataTypeSerial:
		return SerialValue(uint32(v.I)), nil
	case v.Kind == DataTypeSerial && to == DataTypeInt:
		return IntValue(v.I), nil
	case v.Kind == DataTypeString && to == DataTypeEmail:
		return EmailValue(v.S), nil
	case v.Kind == DataTypeString && to == DataTypeChar:
		r, size := utf8.DecodeRuneInString(v.S)
		if r == utf8.RuneError || size != len(v.S) {
			return Value{}, &TypeError{Column: column, Expected: to, Got: v}
		}
		return CharValue(r), nil
	case v.Kind == DataTypeChar && to == DataTypeString:
		return StringValue(string(v.C)), nil
	}
	return Value{}, &TypeError{Column: column, Expected: to, Got: v}
}

// ByteWidth returns the number of bytes v occupies in the row codec if
// fixed, and false for variable-length kinds (string, string interval).
func (v Value) ByteWidth() (int, bool) {
	switch v.Kind {
	case DataTypeInt, DataTypeFloat:
		return 8, true
	case DataTypeChar:
		return 4, true
	case DataTypeCharInterval:
		return 8, true
	case DataTypeSerial:
		return 4, true
	case DataTypeString, DataTypeEmail:
		return 0, false
	case DataTypeStringInterval:
		return 0, false
	default:
		return 0, false
	}
}

// EncodeTo writes v's binary encoding (spec.md §4.1) to w.
func (v Value) EncodeTo(w io.Writer) error {
	switch v.Kind {
	case DataTypeInt:
		return writeInt64(w, v.I)
	case DataTypeFloat:
		return writeUint64(w, math.Float64bits(v.F))
	case DataTypeChar:
		return writeUint32(w, uint32(v.C))
	case DataTypeString, DataTypeEmail:
		return writeString(w, v.S)
	case DataTypeCharInterval:
		if err := writeUint32(w, uint32(v.LoC)); err != nil {
			return err
		}
		return writeUint32(w, uint32(v.HiC))
	case DataTypeStringInterval:
		if err := writeString(w, v.LoS); err != nil {
			return err
		}
		return writeString(w, v.HiS)
	case DataTypeSerial:
		return writeUint32(w, uint32(v.I))
	default:
		return fmt.Errorf("cannot encode value of kind %s", v.Kind)
	}
}

// DecodeValue reads the binary encoding of a value of kind dt from r.
func DecodeValue(r io.Reader, dt DataType) (Value, error) {
	switch dt {
	case DataTypeInt:
		i, err := readInt64(r)
		return IntValue(i), err
	case DataTypeFloat:
		bits, err := readUint64(r)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(math.Float64frombits(bits)), nil
	case DataTypeChar:
		u, err := readUint32(r)
		return CharValue(rune(u)), err
	case DataTypeString, DataTypeEmail:
		s, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		if dt == DataTypeEmail {
			return EmailValue(s), nil
		}
		return StringValue(s), nil
	case DataTypeCharInterval:
		lo, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		hi, err := readUint32(r)
		if err != nil {
			return Value{}, err
		}
		return CharIntervalValue(rune(lo), rune(hi)), nil
	case DataTypeStringInterval:
		lo, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		hi, err := readString(r)
		if err != nil {
			return Value{}, err
		}
		return StringIntervalValue(lo, hi), nil
	case DataTypeSerial:
		u, err := readUint32(r)
		return SerialValue(u), err
	default:
		return Value{}, fmt.Errorf("cannot decode value of kind %s", dt)
	}
}

func writeInt64(w io.Writer, i int64) error {
	return writeUint64(w, uint64(i))
}

func writeUint64(w io.Writer, u uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], u)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, u uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], u)
	_, err := w.Write(buf[:])
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readInt64(r io.Reader) (int64, error) {
	u, err := readUint64(r)
	return int64(u), err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readString(r io.Reader) (string, error) {
	length, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("invalid UTF-8 string")
	}
	return string(buf), nil
}

// FromLiteral converts a decoded JSON literal (as produced by
// encoding/json's default unmarshaling into interface{}) into a Value of
// the given column type, applying spec.md §4.1's coercion rules.
func FromLiteral(lit interface{}, to DataType, column string) (Value, error) {
	switch to {
	case DataTypeSerial:
		return Value{}, fmt.Errorf("column %q: serial values are assigned by the engine, not supplied", column)
	case DataTypeInt:
		n, ok := lit.(float64)
		if !ok || n != float64(int64(n)) {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		return IntValue(int64(n)), nil
	case DataTypeFloat:
		n, ok := lit.(float64)
		if !ok {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		return FloatValue(n), nil
	case DataTypeChar:
		s, ok := lit.(string)
		if !ok {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError || size != len(s) {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		return CharValue(r), nil
	case DataTypeString:
		s, ok := lit.(string)
		if !ok {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		return StringValue(s), nil
	case DataTypeEmail:
		s, ok := lit.(string)
		if !ok {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		v := EmailValue(s)
		if err := v.Validate(); err != nil {
			return Value{}, err
		}
		return v, nil
	case DataTypeCharInterval:
		lo, hi, err := literalPair(lit)
		if err != nil {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		loR, loN := utf8.DecodeRuneInString(lo)
		hiR, hiN := utf8.DecodeRuneInString(hi)
		if loR == utf8.RuneError || loN != len(lo) || hiR == utf8.RuneError || hiN != len(hi) {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		return NewCharInterval(loR, hiR)
	case DataTypeStringInterval:
		lo, hi, err := literalPair(lit)
		if err != nil {
			return Value{}, &TypeError{Column: column, Expected: to, Got: literalValue(lit)}
		}
		return NewStringInterval(lo, hi)
	default:
		return Value{}, fmt.Errorf("unknown column type %s", to)
	}
}

func literalPair(lit interface{}) (string, string, error) {
	arr, ok := lit.([]interface{})
	if !ok || len(arr) != 2 {
		return "", "", fmt.Errorf("expected a two-element array")
	}
	lo, ok1 := arr[0].(string)
	hi, ok2 := arr[1].(string)
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("expected string bounds")
	}
	return lo, hi, nil
}

// literalValue produces a best-effort Value for error reporting when
// coercion of an arbitrary JSON literal fails.
func literalValue(lit interface{}) Value {
	switch t := lit.(type) {
	case string:
		return StringValue(t)
	case float64:
		return FloatValue(t)
	case bool:
		return StringValue(strconv.FormatBool(t))
	default:
		return StringValue(fmt.Sprintf("%v", t))
	}
}
