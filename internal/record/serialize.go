package record

import (
	"encoding/json"
	"fmt"
	"time"
)

type (
	// Rational is the numerator/denominator representation some EXIF
	// values (exposure times, apertures) are decoded in to.
	Rational struct {
		Numerator   float64
		Denominator float64
	}

	// TimeConvertible is implemented by parser value types which carry
	// a date in a non-native representation but can convert themselves.
	TimeConvertible interface {
		AsTime() (time.Time, error)
	}
)

// Serialize normalises a heterogeneous metadata value in to a string,
// number, boolean, array thereof, or nil. The rules are evaluated in
// order and the first match wins. This function is total: no input
// causes a panic or an error, which keeps extraction from aborting on
// one unusual metadata field.
func Serialize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil

	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v

	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)

	case TimeConvertible:
		if t, err := v.AsTime(); err == nil {
			return t.UTC().Format(time.RFC3339Nano)
		}
		return fmt.Sprintf("%v", value)

	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = Serialize(elem)
		}
		return out

	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()

	case Rational:
		return serializeRational(v.Numerator, v.Denominator)

	case map[string]any:
		if num, den, ok := rationalFields(v); ok {
			return serializeRational(num, den)
		}
		return fmt.Sprintf("%v", v)

	default:
		return fmt.Sprintf("%v", value)
	}
}

// serializeRational divides numerator by denominator. A denominator of
// zero fails closed to nil: the IEEE result would be non-finite, which
// the JSON storage path cannot represent.
func serializeRational(numerator, denominator float64) any {
	if denominator == 0 {
		return nil
	}

	return numerator / denominator
}

// rationalFields recognises the map-shaped rational representation
// {"numerator": n, "denominator": d} with numeric fields.
func rationalFields(value map[string]any) (float64, float64, bool) {
	if len(value) != 2 {
		return 0, 0, false
	}

	num, numOK := asFloat(value["numerator"])
	den, denOK := asFloat(value["denominator"])
	return num, den, numOK && denOK
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	}

	return 0, false
}
