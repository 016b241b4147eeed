package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertDateTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 23, 15, 0, 0, time.UTC)
	inputs := []interface{}{
		want,
		want.In(time.FixedZone("CET", 3600)),
		"2024-01-01 23:15:00",
		"2024-01-01T23:15:00Z",
		"2024-01-02T00:15:00+01:00",
		[]byte("2024-01-01 23:15:00.000"),
	}
	for _, in := range inputs {
		got, err := ConvertDateTime(in)
		require.NoError(t, err, "%v", in)
		assert.True(t, got.Equal(want), "%v -> %s", in, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	for _, in := range []interface{}{nil, "yesterday", 42} {
		_, err := ConvertDateTime(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestConvertToInt64(t *testing.T) {
	for _, in := range []interface{}{int(7), int32(7), int64(7), uint8(7), float64(7), "7", []byte(" 7 ")} {
		n, err := ConvertToInt64(in)
		require.NoError(t, err, "%T", in)
		assert.Equal(t, int64(7), n)
	}
	_, err := ConvertToInt64(7.5)
	assert.Error(t, err)
	_, err = ConvertToInt64(nil)
	assert.Error(t, err)
}

func TestConvertToBool(t *testing.T) {
	truthy := []interface{}{true, int64(1), "1", "true", "Y", []byte{1}}
	for _, in := range truthy {
		b, err := ConvertToBool(in)
		require.NoError(t, err, "%v", in)
		assert.True(t, b, "%v", in)
	}
	falsy := []interface{}{false, int64(0), "0", "false", []byte{0}}
	for _, in := range falsy {
		b, err := ConvertToBool(in)
		require.NoError(t, err, "%v", in)
		assert.False(t, b, "%v", in)
	}
	_, err := ConvertToBool("maybe")
	assert.Error(t, err)
}

func TestConvertToDecimal(t *testing.T) {
	cases := map[string]interface{}{
		"99.99": 99.99,
		"2":     int64(2),
		"12.5":  "12.5",
		"0":     nil,
	}
	for want, in := range cases {
		got, err := ConvertToDecimal(in)
		require.NoError(t, err, "%v", in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%v -> %s", in, got)
	}
	assert.Equal(t, "card", ConvertToString([]byte("card")))
	assert.Equal(t, "", ConvertToString(nil))
	assert.Equal(t, "4", ConvertToString(int64(4)))
}
