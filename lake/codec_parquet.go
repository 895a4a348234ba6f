package lake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// columnOrderKey is the footer key-value entry that records the table's
// column order. Parquet group fields are stored sorted by name, so the
// original order would otherwise be lost.
const columnOrderKey = "lake.columns"

// placeholderColumn stands in for the schema of a table with no columns,
// which Parquet cannot represent. It is dropped again on decode.
const placeholderColumn = "__lake_empty__"

// EncodeTable writes t to w as a single Parquet file.
//
// Timestamp columns are rendered as RFC 3339 strings before writing. Every
// column is stored optional so nulls survive the round trip.
func EncodeTable(w io.Writer, t *Table) error {
	t = t.NormalizeTimestamps()

	cols := t.Columns()
	order := t.ColumnNames()
	if len(cols) == 0 {
		cols = []Column{{Name: placeholderColumn, Type: TypeString, Values: make([]any, t.NumRows())}}
	}

	group := make(parquet.Group, len(cols))
	byName := make(map[string]Column, len(cols))
	for _, c := range cols {
		node, err := columnNode(c.Type)
		if err != nil {
			return fmt.Errorf("parquet: column %q: %w", c.Name, err)
		}
		group[c.Name] = parquet.Optional(node)
		byName[c.Name] = c
	}
	pqSchema := parquet.NewSchema("table", group)

	// Leaf order of the built schema; rows must follow it.
	fields := pqSchema.Fields()
	leaves := make([]Column, len(fields))
	for i, f := range fields {
		leaves[i] = byName[f.Name()]
	}

	rowBuf := parquet.NewBuffer(pqSchema)
	for r := 0; r < t.NumRows(); r++ {
		row := make(parquet.Row, len(leaves))
		for i, c := range leaves {
			v := c.Values[r]
			if v == nil {
				row[i] = parquet.NullValue().Level(0, 0, i)
				continue
			}
			pv, err := toParquetValue(v)
			if err != nil {
				return fmt.Errorf("parquet: row %d column %q: %w", r, c.Name, err)
			}
			row[i] = pv.Level(0, 1, i)
		}
		if _, err := rowBuf.WriteRows([]parquet.Row{row}); err != nil {
			return fmt.Errorf("parquet: write row %d: %w", r, err)
		}
	}

	var buf bytes.Buffer
	pqWriter := parquet.NewWriter(&buf, pqSchema,
		parquet.Compression(&parquet.Snappy),
		parquet.KeyValueMetadata(columnOrderKey, strings.Join(order, "\x1f")),
	)
	if _, err := pqWriter.WriteRowGroup(rowBuf); err != nil {
		_ = pqWriter.Close()
		return fmt.Errorf("parquet: write row group: %w", err)
	}
	if err := pqWriter.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}

	_, err := io.Copy(w, &buf)
	return err
}

// DecodeTable reads a Parquet file produced by EncodeTable, or any flat
// Parquet file whose leaf columns are primitive. Content that is not valid
// Parquet yields ErrParse.
func DecodeTable(r io.Reader) (*Table, error) {
	// Parquet needs random access to read the footer.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrParse)
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	fields := file.Schema().Fields()
	cols := make([]Column, len(fields))
	for i, f := range fields {
		if !f.Leaf() {
			return nil, fmt.Errorf("%w: nested column %q is not supported", ErrParse, f.Name())
		}
		cols[i] = Column{Name: f.Name(), Type: kindColumnType(f.Type().Kind())}
	}

	numRows := file.NumRows()
	for i := range cols {
		cols[i].Values = make([]any, 0, numRows)
	}

	if numRows > 0 {
		reader := parquet.NewReader(file)
		defer func() { _ = reader.Close() }()

		rows := make([]parquet.Row, 100)
		for {
			n, err := reader.ReadRows(rows)
			for _, row := range rows[:n] {
				appendRow(cols, row)
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("%w: read rows: %w", ErrParse, err)
			}
		}
	}

	return NewTable(orderColumns(cols, file)...)
}

func appendRow(cols []Column, row parquet.Row) {
	filled := make([]bool, len(cols))
	for _, v := range row {
		ci := v.Column()
		if ci < 0 || ci >= len(cols) || filled[ci] {
			continue
		}
		filled[ci] = true
		cols[ci].Values = append(cols[ci].Values, fromParquetValue(v, cols[ci].Type))
	}
	for ci, ok := range filled {
		if !ok {
			cols[ci].Values = append(cols[ci].Values, nil)
		}
	}
}

// orderColumns restores the column order recorded at encode time and drops
// the placeholder column. Files written elsewhere keep their schema order.
func orderColumns(cols []Column, file *parquet.File) []Column {
	if len(cols) == 1 && cols[0].Name == placeholderColumn {
		return nil
	}
	recorded, ok := file.Lookup(columnOrderKey)
	if !ok || recorded == "" {
		return cols
	}
	names := strings.Split(recorded, "\x1f")
	if len(names) != len(cols) {
		return cols
	}
	byName := make(map[string]Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	out := make([]Column, 0, len(names))
	for _, n := range names {
		c, ok := byName[n]
		if !ok {
			return cols
		}
		out = append(out, c)
	}
	return out
}

func columnNode(t ColumnType) (parquet.Node, error) {
	switch t {
	case TypeString:
		return parquet.String(), nil
	case TypeInt64:
		return parquet.Int(64), nil
	case TypeFloat64:
		return parquet.Leaf(parquet.DoubleType), nil
	case TypeBool:
		return parquet.Leaf(parquet.BooleanType), nil
	default:
		return nil, fmt.Errorf("unsupported column type %s", t)
	}
}

func toParquetValue(v any) (parquet.Value, error) {
	switch x := v.(type) {
	case string:
		return parquet.ByteArrayValue([]byte(x)), nil
	case int64:
		return parquet.Int64Value(x), nil
	case float64:
		return parquet.DoubleValue(x), nil
	case bool:
		return parquet.BooleanValue(x), nil
	default:
		return parquet.Value{}, fmt.Errorf("unsupported value %T", v)
	}
}

func kindColumnType(k parquet.Kind) ColumnType {
	switch k {
	case parquet.Boolean:
		return TypeBool
	case parquet.Int32, parquet.Int64:
		return TypeInt64
	case parquet.Float, parquet.Double:
		return TypeFloat64
	default:
		return TypeString
	}
}

func fromParquetValue(v parquet.Value, t ColumnType) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		if t == TypeString {
			return v.String()
		}
		return nil
	}
}
