package lake

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// ColumnType enumerates the value types a table column may carry.
type ColumnType int

// Column type constants. Each maps to one Go representation:
// string, int64, float64, bool and time.Time respectively.
const (
	TypeString ColumnType = iota
	TypeInt64
	TypeFloat64
	TypeBool
	TypeTimestamp
	columnTypeMax // sentinel for validation
)

func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Column is a named, typed column. Values holds one entry per row; nil
// entries are nulls and every non-nil entry has the Go type of Type.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// Table is an in-memory columnar table with ordered rows.
//
// Tables are immutable once built; every transforming method returns a new
// table. The zero value is not usable; use EmptyTable or NewTable.
type Table struct {
	columns []Column
	index   map[string]int
	rows    int
}

// EmptyTable returns a table with zero rows and zero columns.
func EmptyTable() *Table {
	return &Table{index: map[string]int{}}
}

// NewTable builds a table from columns of equal length. Values are coerced
// to the declared column type where lossless (e.g. int to int64); anything
// else is rejected.
func NewTable(columns ...Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns))}
	for i, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("lake: column %d has no name", i)
		}
		if col.Type < 0 || col.Type >= columnTypeMax {
			return nil, fmt.Errorf("lake: column %q has invalid type %d", col.Name, col.Type)
		}
		if _, dup := t.index[col.Name]; dup {
			return nil, fmt.Errorf("lake: duplicate column %q", col.Name)
		}
		if i == 0 {
			t.rows = len(col.Values)
		} else if len(col.Values) != t.rows {
			return nil, fmt.Errorf("lake: column %q has %d values, want %d", col.Name, len(col.Values), t.rows)
		}
		values := make([]any, len(col.Values))
		for r, v := range col.Values {
			cv, err := coerceValue(v, col.Type)
			if err != nil {
				return nil, fmt.Errorf("lake: column %q row %d: %w", col.Name, r, err)
			}
			values[r] = cv
		}
		t.index[col.Name] = len(t.columns)
		t.columns = append(t.columns, Column{Name: col.Name, Type: col.Type, Values: values})
	}
	return t, nil
}

// FromRecords builds a table from row maps, inferring column types.
//
// Columns listed in order come first, followed by the remaining keys in
// sorted order. A column whose values disagree on type is reconciled the
// same way Concat reconciles columns across tables.
func FromRecords(records []map[string]any, order ...string) (*Table, error) {
	names := append([]string(nil), order...)
	seen := make(map[string]bool, len(order))
	for _, n := range order {
		seen[n] = true
	}
	var extra []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	columns := make([]Column, 0, len(names))
	for _, name := range names {
		values := make([]any, len(records))
		typ, typed := ColumnType(0), false
		for r, rec := range records {
			v, vt, ok := inferValue(rec[name])
			if !ok {
				continue
			}
			values[r] = v
			if !typed {
				typ, typed = vt, true
			} else {
				typ = commonType(typ, vt)
			}
		}
		if !typed {
			typ = TypeString
		}
		for r, v := range values {
			if v == nil {
				continue
			}
			_, vt, _ := inferValue(v)
			values[r] = convertValue(v, vt, typ)
		}
		columns = append(columns, Column{Name: name, Type: typ, Values: values})
	}
	return NewTable(columns...)
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// IsEmpty reports whether the table has no rows.
func (t *Table) IsEmpty() bool { return t.rows == 0 }

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Columns returns the table's columns. Callers must not modify the values.
func (t *Table) Columns() []Column {
	return t.columns
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// Value returns the cell at (row, column), or nil when the column is absent.
func (t *Table) Value(row int, column string) any {
	i, ok := t.index[column]
	if !ok {
		return nil
	}
	return t.columns[i].Values[row]
}

// Row returns row i as a map keyed by column name.
func (t *Table) Row(i int) map[string]any {
	rec := make(map[string]any, len(t.columns))
	for _, c := range t.columns {
		rec[c.Name] = c.Values[i]
	}
	return rec
}

// Records returns every row as a map.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, t.rows)
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// WithColumn returns a copy of t with the column added, or replaced when a
// column of the same name exists.
func (t *Table) WithColumn(col Column) (*Table, error) {
	cols := make([]Column, 0, len(t.columns)+1)
	replaced := false
	for _, c := range t.columns {
		if c.Name == col.Name {
			cols = append(cols, col)
			replaced = true
			continue
		}
		cols = append(cols, c)
	}
	if !replaced {
		cols = append(cols, col)
	}
	return NewTable(cols...)
}

// RenameColumns returns a copy of t with columns renamed in order. names must
// have one unique, non-empty entry per column.
func (t *Table) RenameColumns(names []string) (*Table, error) {
	if len(names) != len(t.columns) {
		return nil, fmt.Errorf("lake: rename: got %d names for %d columns", len(names), len(t.columns))
	}
	cols := make([]Column, len(t.columns))
	for i, c := range t.columns {
		cols[i] = Column{Name: names[i], Type: c.Type, Values: c.Values}
	}
	return NewTable(cols...)
}

// WithConstant returns a copy of t with a column holding value on every row.
func (t *Table) WithConstant(name string, value any) (*Table, error) {
	v, typ, ok := inferValue(value)
	if !ok {
		return nil, fmt.Errorf("lake: unsupported constant %T for column %q", value, name)
	}
	values := make([]any, t.rows)
	for i := range values {
		values[i] = v
	}
	return t.WithColumn(Column{Name: name, Type: typ, Values: values})
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.take(rows)
}

// SortBy returns a copy of t stably sorted ascending on column. Nulls sort
// first. Sorting on an unknown column returns t unchanged.
func (t *Table) SortBy(column string) *Table {
	ci, ok := t.index[column]
	if !ok {
		return t
	}
	col := t.columns[ci]
	rows := make([]int, t.rows)
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		return lessValue(col.Values[rows[a]], col.Values[rows[b]])
	})
	return t.take(rows)
}

func (t *Table) take(rows []int) *Table {
	out := &Table{index: make(map[string]int, len(t.columns)), rows: len(rows)}
	for ci, c := range t.columns {
		values := make([]any, len(rows))
		for i, r := range rows {
			values[i] = c.Values[r]
		}
		out.index[c.Name] = ci
		out.columns = append(out.columns, Column{Name: c.Name, Type: c.Type, Values: values})
	}
	return out
}

// NormalizeTimestamps returns a copy of t where every timestamp column is
// rendered as RFC 3339 text (UTC, nanosecond precision).
func (t *Table) NormalizeTimestamps() *Table {
	out := &Table{index: make(map[string]int, len(t.columns)), rows: t.rows}
	for ci, c := range t.columns {
		if c.Type == TypeTimestamp {
			values := make([]any, len(c.Values))
			for i, v := range c.Values {
				if v != nil {
					values[i] = convertValue(v, TypeTimestamp, TypeString)
				}
			}
			c = Column{Name: c.Name, Type: TypeString, Values: values}
		}
		out.index[c.Name] = ci
		out.columns = append(out.columns, c)
	}
	return out
}

// Concat stacks tables row-wise. Columns are matched by name; a column
// missing from a table is null-filled for that table's rows. Columns whose
// types disagree are reconciled: int64 and float64 widen to float64, any
// other mix becomes string. Nil tables are skipped.
func Concat(tables ...*Table) *Table {
	var (
		order []string
		types = map[string]ColumnType{}
		total int
	)
	for _, t := range tables {
		if t == nil {
			continue
		}
		total += t.rows
		for _, c := range t.columns {
			prev, ok := types[c.Name]
			if !ok {
				order = append(order, c.Name)
				types[c.Name] = c.Type
				continue
			}
			types[c.Name] = commonType(prev, c.Type)
		}
	}

	out := &Table{index: make(map[string]int, len(order)), rows: total}
	for ci, name := range order {
		typ := types[name]
		values := make([]any, 0, total)
		for _, t := range tables {
			if t == nil {
				continue
			}
			i, ok := t.index[name]
			if !ok {
				values = append(values, make([]any, t.rows)...)
				continue
			}
			src := t.columns[i]
			for _, v := range src.Values {
				if v == nil {
					values = append(values, nil)
					continue
				}
				values = append(values, convertValue(v, src.Type, typ))
			}
		}
		out.index[name] = ci
		out.columns = append(out.columns, Column{Name: name, Type: typ, Values: values})
	}
	return out
}

// commonType returns the narrowest type both a and b convert to losslessly
// enough for downstream steps.
func commonType(a, b ColumnType) ColumnType {
	if a == b {
		return a
	}
	if (a == TypeInt64 && b == TypeFloat64) || (a == TypeFloat64 && b == TypeInt64) {
		return TypeFloat64
	}
	return TypeString
}

// convertValue converts a non-nil value of type from into type to. Only the
// conversions commonType can request are supported.
func convertValue(v any, from, to ColumnType) any {
	if from == to {
		return v
	}
	switch to {
	case TypeFloat64:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	case TypeString:
		return formatValue(v)
	}
	return formatValue(v)
}

// formatValue renders a cell as text.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// inferValue maps a Go value onto a column type and its canonical
// representation. It returns ok=false for nil.
func inferValue(v any) (any, ColumnType, bool) {
	switch x := v.(type) {
	case nil:
		return nil, 0, false
	case string:
		return x, TypeString, true
	case int:
		return int64(x), TypeInt64, true
	case int8:
		return int64(x), TypeInt64, true
	case int16:
		return int64(x), TypeInt64, true
	case int32:
		return int64(x), TypeInt64, true
	case int64:
		return x, TypeInt64, true
	case uint8:
		return int64(x), TypeInt64, true
	case uint16:
		return int64(x), TypeInt64, true
	case uint32:
		return int64(x), TypeInt64, true
	case float32:
		return float64(x), TypeFloat64, true
	case float64:
		return x, TypeFloat64, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, TypeInt64, true
		}
		if f, err := x.Float64(); err == nil {
			return f, TypeFloat64, true
		}
		return x.String(), TypeString, true
	case bool:
		return x, TypeBool, true
	case time.Time:
		return x, TypeTimestamp, true
	case *time.Time:
		if x == nil {
			return nil, 0, false
		}
		return *x, TypeTimestamp, true
	default:
		return fmt.Sprint(x), TypeString, true
	}
}

// coerceValue checks that v fits typ, widening integer and float widths.
func coerceValue(v any, typ ColumnType) (any, error) {
	cv, vt, ok := inferValue(v)
	if !ok {
		return nil, nil
	}
	if vt == typ {
		return cv, nil
	}
	if typ == TypeFloat64 && vt == TypeInt64 {
		return float64(cv.(int64)), nil
	}
	if typ == TypeString {
		return formatValue(cv), nil
	}
	return nil, fmt.Errorf("value %v (%T) does not fit %s column", v, v, typ)
}

// lessValue orders two cells of the same column. Nulls sort first.
func lessValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b != nil
	}
	switch x := a.(type) {
	case string:
		return x < b.(string)
	case int64:
		return x < b.(int64)
	case float64:
		y := b.(float64)
		if math.IsNaN(x) {
			return !math.IsNaN(y)
		}
		return x < y
	case bool:
		return !x && b.(bool)
	case time.Time:
		return x.Before(b.(time.Time))
	default:
		return formatValue(a) < formatValue(b)
	}
}
