package types

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	// DateLayout is the canonical text form of Date values.
	DateLayout = "2006-01-02"
	// TimestampLayout is the canonical text form of Timestamp values.
	TimestampLayout = "2006-01-02 15:04:05.000"

	millisPerDay = 24 * 60 * 60 * 1000
)

// Value is a single typed scalar. Values that compare equal under their
// type's natural order always carry identical canonical text, so the text
// can be persisted and parsed back without changing the value's identity.
type Value struct {
	typ  DataType
	null bool
	text string
	num  int64   // Int64, Boolean (0/1), Date, Timestamp
	fp   float64 // Float64
}

// NullValue returns the null value of type dt.
func NullValue(dt DataType) Value {
	return Value{typ: dt, null: true}
}

// StringValue returns a String value.
func StringValue(s string) Value {
	return Value{typ: TypeString, text: s}
}

// IntegerValue builds a value of an integer-backed type from its int64
// representation (Unix days for Date, Unix milliseconds for Timestamp).
func IntegerValue(dt DataType, n int64) (Value, error) {
	switch dt {
	case TypeInt64:
		return Value{typ: dt, num: n, text: strconv.FormatInt(n, 10)}, nil
	case TypeDate:
		return Value{typ: dt, num: n, text: time.UnixMilli(n * millisPerDay).UTC().Format(DateLayout)}, nil
	case TypeTimestamp:
		return Value{typ: dt, num: n, text: time.UnixMilli(n).UTC().Format(TimestampLayout)}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s is not integer-backed", ErrInvalidValue, dt)
	}
}

// Parse parses raw as a value of type dt and canonicalizes it.
func Parse(dt DataType, raw string) (Value, error) {
	switch dt {
	case TypeString:
		return StringValue(raw), nil

	case TypeInt64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Value{}, invalid(dt, raw)
		}
		return IntegerValue(dt, n)

	case TypeFloat64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(f) {
			return Value{}, invalid(dt, raw)
		}
		if f == 0 {
			f = 0 // fold -0
		}
		return Value{typ: dt, fp: f, text: strconv.FormatFloat(f, 'g', -1, 64)}, nil

	case TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Value{}, invalid(dt, raw)
		}
		if b {
			return Value{typ: dt, num: 1, text: "true"}, nil
		}
		return Value{typ: dt, num: 0, text: "false"}, nil

	case TypeDate:
		s := strings.TrimSpace(raw)
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			if t, err = dateparse.ParseIn(s, time.UTC); err != nil {
				return Value{}, invalid(dt, raw)
			}
		}
		return IntegerValue(dt, floorDiv(t.UnixMilli(), millisPerDay))

	case TypeTimestamp:
		t, err := dateparse.ParseIn(strings.TrimSpace(raw), time.UTC)
		if err != nil {
			return Value{}, invalid(dt, raw)
		}
		return IntegerValue(dt, t.UnixMilli())

	default:
		return Value{}, fmt.Errorf("%w: %d", ErrUnknownDataType, dt)
	}
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(dt DataType, raw string) Value {
	v, err := Parse(dt, raw)
	if err != nil {
		panic(err)
	}
	return v
}

func invalid(dt DataType, raw string) error {
	return fmt.Errorf("%w: %q is not a valid %s", ErrInvalidValue, raw, dt)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Type returns the value's semantic type.
func (v Value) Type() DataType { return v.typ }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.null }

// String returns the canonical text form. Null renders as "NULL".
func (v Value) String() string {
	if v.null {
		return "NULL"
	}
	return v.text
}

// Text returns the canonical text form; empty for null.
func (v Value) Text() string { return v.text }

// Int64 returns the integer representation of an integer-backed or Boolean value.
func (v Value) Int64() int64 { return v.num }

// Float64 returns the numeric value of a Float64 value.
func (v Value) Float64() float64 { return v.fp }

// Compare compares two values by their type's natural order.
// Nulls sort before every non-null value.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func Compare(a, b Value) int {
	if a.typ != b.typ {
		return cmp.Compare(a.typ, b.typ)
	}
	switch {
	case a.null && b.null:
		return 0
	case a.null:
		return -1
	case b.null:
		return 1
	}
	switch a.typ {
	case TypeString:
		return strings.Compare(a.text, b.text)
	case TypeFloat64:
		return cmp.Compare(a.fp, b.fp)
	default:
		return cmp.Compare(a.num, b.num)
	}
}

// Equal reports whether a and b are the same value.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}
