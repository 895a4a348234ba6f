package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func validateOutputFormat(output string) error {
	switch output {
	case "table", "json", "jsonl":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q: use 'table', 'json' or 'jsonl'", output)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printJSONL writes one JSON document per line.
func printJSONL(w io.Writer, records []map[string]any) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// render writes records in the chosen format. Table output uses columns
// as header and record keys.
func render(w io.Writer, output string, columns []string, records []map[string]any) error {
	switch output {
	case "json":
		if records == nil {
			records = []map[string]any{}
		}
		return printJSON(w, records)
	case "jsonl":
		return printJSONL(w, records)
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = cell(r[c])
		}
		rows[i] = row
	}
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = strings.ToUpper(c)
	}
	return printTable(w, header, rows)
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case time.Duration:
		return x.Round(time.Millisecond).String()
	case []string:
		return strings.Join(x, ",")
	default:
		return fmt.Sprint(x)
	}
}
