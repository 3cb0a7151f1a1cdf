package record_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mickaelmarchal/exifstream/internal/record"
	"github.com/stretchr/testify/assert"
)

type convertibleDate struct {
	t   time.Time
	err error
}

func (c convertibleDate) AsTime() (time.Time, error) { return c.t, c.err }

func (c convertibleDate) String() string { return "raw-date-repr" }

func Test_Serialize_Primitives(t *testing.T) {
	t.Parallel()

	assert.Nil(t, record.Serialize(nil))
	assert.Equal(t, "Canon", record.Serialize("Canon"))
	assert.Equal(t, 400, record.Serialize(400))
	assert.Equal(t, 1.8, record.Serialize(1.8))
	assert.Equal(t, true, record.Serialize(true))
}

func Test_Serialize_Dates(t *testing.T) {
	t.Parallel()

	instant := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)
	serialized := record.Serialize(instant)

	str, ok := serialized.(string)
	assert.True(t, ok, "expected date to serialize to a string")

	// Round-trip: the serialized string must parse back to the same instant.
	parsed, err := time.Parse(time.RFC3339Nano, str)
	assert.Nil(t, err)
	assert.True(t, instant.Equal(parsed))
}

func Test_Serialize_DateConvertible(t *testing.T) {
	t.Parallel()

	instant := time.Date(2023, 6, 15, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "2023-06-15T08:00:00Z", record.Serialize(convertibleDate{t: instant}))

	// A failing conversion falls back to the values string representation.
	assert.Equal(t, "raw-date-repr", record.Serialize(convertibleDate{err: errors.New("bad date")}))
}

func Test_Serialize_Arrays(t *testing.T) {
	t.Parallel()

	in := []any{json.Number("3"), "b", []any{record.Rational{Numerator: 1, Denominator: 4}}}
	out := record.Serialize(in)

	assert.Equal(t, []any{float64(3), "b", []any{0.25}}, out)
}

func Test_Serialize_JsonNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float64(35), record.Serialize(json.Number("35")))

	// Not parseable as a float, degrades to the string form.
	assert.Equal(t, "not-a-number", record.Serialize(json.Number("not-a-number")))
}

func Test_Serialize_Rationals(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.5, record.Serialize(record.Rational{Numerator: 1, Denominator: 2}))
	assert.Equal(t, 0.5, record.Serialize(map[string]any{"numerator": 1, "denominator": 2}))

	// Zero denominator fails closed rather than producing a non-finite
	// float the JSON storage path cannot represent.
	assert.Nil(t, record.Serialize(record.Rational{Numerator: 1, Denominator: 0}))
	assert.Nil(t, record.Serialize(map[string]any{"numerator": 1, "denominator": 0}))

	// Maps with extra or non-numeric fields are not rationals.
	assert.Equal(t,
		"map[denominator:2 numerator:one]",
		record.Serialize(map[string]any{"numerator": "one", "denominator": 2}))
}

func Test_Serialize_FallbackNeverFails(t *testing.T) {
	t.Parallel()

	type opaque struct{ A int }
	out := record.Serialize(opaque{A: 1})
	_, ok := out.(string)
	assert.True(t, ok, "unrecognised types must degrade to their string representation")

	assert.Equal(t, "[1 2]", record.Serialize([2]int{1, 2}))
}
