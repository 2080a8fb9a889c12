package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParkID is the canonical park identifier. Sources disagree on whether ids
// are JSON numbers or strings; every id crossing into the domain goes
// through ParseParkID so that 42 and "42" compare equal.
type ParkID int64

// ParseParkID canonicalizes v into a ParkID. It accepts integer kinds,
// floats with an integral value, json.Number and base-10 strings.
func ParseParkID(v any) (ParkID, error) {
	switch x := v.(type) {
	case ParkID:
		return x, nil
	case int:
		return ParkID(x), nil
	case int32:
		return ParkID(x), nil
	case int64:
		return ParkID(x), nil
	case uint32:
		return ParkID(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows", ErrInvalidParkID, x)
		}
		return ParkID(x), nil
	case float64:
		return parseFloatID(x)
	case float32:
		return parseFloatID(float64(x))
	case json.Number:
		return parseStringID(x.String())
	case string:
		return parseStringID(x)
	case nil:
		return 0, fmt.Errorf("%w: nil", ErrInvalidParkID)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidParkID, v)
	}
}

// MustParkID is ParseParkID for literals in tests and fixtures.
func MustParkID(v any) ParkID {
	id, err := ParseParkID(v)
	if err != nil {
		panic(err)
	}
	return id
}

func parseFloatID(f float64) (ParkID, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidParkID, f)
	}
	return ParkID(int64(f)), nil
}

func parseStringID(s string) (ParkID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidParkID)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ParkID(n), nil
	}
	// "42.0" shows up in some exports
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidParkID, s)
	}
	return parseFloatID(f)
}

func (id ParkID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MarshalJSON always emits the numeric form.
func (id ParkID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalJSON accepts both 42 and "42".
func (id *ParkID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var parsed ParkID
	var err error
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParkID, err)
		}
		parsed, err = parseStringID(s)
	} else {
		parsed, err = parseStringID(string(data))
	}
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
