package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// datetimeFormats are tried in order for textual timestamps. Values without
// an offset are read as UTC.
var datetimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ConvertDateTime normalizes a driver value to a UTC time.
func ConvertDateTime(val interface{}) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		for _, f := range datetimeFormats {
			if t, err := time.Parse(f, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v))
	case nil:
		return time.Time{}, fmt.Errorf("datetime is null")
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to datetime", val)
	}
}

// ConvertToInt64 handles the integer shapes returned by the mysql, sqlserver
// and sqlite drivers.
func ConvertToInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("cannot convert fractional %v to int", v)
		}
		return int64(v), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return ConvertToInt64(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}

// ConvertToBool accepts bools, numeric flags (tinyint/bit) and their text forms.
func ConvertToBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y":
			return true, nil
		case "0", "false", "f", "no", "n", "":
			return false, nil
		}
		return false, fmt.Errorf("cannot convert %q to bool", v)
	case []byte:
		if len(v) == 1 && (v[0] == 0 || v[0] == 1) {
			return v[0] == 1, nil
		}
		return ConvertToBool(string(v))
	default:
		n, err := ConvertToInt64(val)
		if err != nil {
			return false, fmt.Errorf("cannot convert %T to bool", val)
		}
		return n != 0, nil
	}
}

// ConvertToString renders scalar driver values as text.
func ConvertToString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ConvertToDecimal reads numeric query results (sums, averages) exactly where
// the driver allows it.
func ConvertToDecimal(val interface{}) (decimal.Decimal, error) {
	switch v := val.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case []byte:
		return decimal.NewFromString(strings.TrimSpace(string(v)))
	default:
		n, err := ConvertToInt64(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("cannot convert %T to decimal", val)
		}
		return decimal.NewFromInt(n), nil
	}
}
