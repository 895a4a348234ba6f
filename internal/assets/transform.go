package assets

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pithecene-io/mlbstats/lake"
)

// parseTimestamp converts a string column holding RFC 3339 (or plain date)
// values into a timestamp column. Unparseable values become null.
func parseTimestamp(t *lake.Table, name string) (*lake.Table, error) {
	col, ok := t.Column(name)
	if !ok || col.Type == lake.TypeTimestamp {
		return t, nil
	}
	values := make([]any, len(col.Values))
	for i, v := range col.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			values[i] = ts.UTC()
		} else if ts, err := time.Parse(time.DateOnly, s); err == nil {
			values[i] = ts
		}
	}
	return t.WithColumn(lake.Column{Name: name, Type: lake.TypeTimestamp, Values: values})
}

// onDay keeps the rows whose timestamp column falls on day (UTC).
func onDay(t *lake.Table, name string, day time.Time) *lake.Table {
	y, m, d := day.UTC().Date()
	return t.Filter(func(row int) bool {
		ts, ok := t.Value(row, name).(time.Time)
		if !ok {
			return false
		}
		ty, tm, td := ts.UTC().Date()
		return ty == y && tm == m && td == d
	})
}

// distinct counts the distinct non-null values of a column.
func distinct(t *lake.Table, name string) int {
	col, ok := t.Column(name)
	if !ok {
		return 0
	}
	seen := map[any]struct{}{}
	for _, v := range col.Values {
		if v != nil {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// asInt64 reads an id cell that may have been widened to float64 or string
// by concatenation.
func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected id %v (%T)", v, v)
	}
}

func empty(t *lake.Table) bool { return t == nil || t.IsEmpty() }
