package persistence

import (
	"database/sql"
	"encoding/json"
	"time"
)

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// nullable unwraps an optional value for a NULL-able column.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	if *v {
		return int64(1)
	}
	return int64(0)
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func marshalJSONNullable(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" || string(raw) == "[]" || string(raw) == "{}" {
		return nil, nil
	}

	return string(raw), nil
}

func unmarshalJSONNullable(raw sql.NullString, dst any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}

	return json.Unmarshal([]byte(raw.String), dst)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	out := v.Float64
	return &out
}

func uint32Ptr(v sql.NullInt64) *uint32 {
	if !v.Valid {
		return nil
	}
	out := uint32(v.Int64)
	return &out
}

func int32Ptr(v sql.NullInt64) *int32 {
	if !v.Valid {
		return nil
	}
	out := int32(v.Int64)
	return &out
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	out := int(v.Int64)
	return &out
}

func boolPtr(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	out := v.Int64 != 0
	return &out
}

// Timestamps are stored as unix milliseconds; zero means unknown.
func toUnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMillis(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
