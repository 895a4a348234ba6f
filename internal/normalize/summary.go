package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/mlbstats/lake"
)

// ColumnSummary describes one column of a materialized table.
type ColumnSummary struct {
	Name     string
	Type     lake.ColumnType
	NonNull  int
	Distinct int
	Min      any
	Max      any
}

// Summarize computes per-column statistics. Min and Max are nil for
// all-null columns and for bool columns.
func Summarize(t *lake.Table) []ColumnSummary {
	if t == nil {
		return nil
	}
	out := make([]ColumnSummary, 0, t.NumColumns())
	for _, c := range t.Columns() {
		s := ColumnSummary{Name: c.Name, Type: c.Type}
		distinct := make(map[any]struct{})
		for _, v := range c.Values {
			if v == nil {
				continue
			}
			s.NonNull++
			distinct[distinctKey(v)] = struct{}{}
			if c.Type == lake.TypeBool {
				continue
			}
			if s.Min == nil || less(v, s.Min) {
				s.Min = v
			}
			if s.Max == nil || less(s.Max, v) {
				s.Max = v
			}
		}
		s.Distinct = len(distinct)
		out = append(out, s)
	}
	return out
}

// distinctKey makes time values comparable by instant rather than by
// location pointer.
func distinctKey(v any) any {
	if ts, ok := v.(time.Time); ok {
		return ts.UnixNano()
	}
	return v
}

func less(a, b any) bool {
	switch x := a.(type) {
	case string:
		return x < b.(string)
	case int64:
		return x < b.(int64)
	case float64:
		return x < b.(float64)
	case time.Time:
		return x.Before(b.(time.Time))
	}
	return false
}

// Markdown renders summaries as a markdown table for run metadata.
func Markdown(summaries []ColumnSummary) string {
	var b strings.Builder
	b.WriteString("| column | type | non_null | distinct | min | max |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s | %s |\n",
			s.Name, s.Type, s.NonNull, s.Distinct, cell(s.Min), cell(s.Max))
	}
	return b.String()
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case string:
		return strings.ReplaceAll(x, "|", "\\|")
	default:
		return fmt.Sprint(x)
	}
}
