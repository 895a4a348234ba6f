// Package normalize turns source column names into SQL-friendly identifiers
// and summarizes tables for materialization metadata.
package normalize

import (
	"strconv"
	"strings"

	"github.com/pithecene-io/mlbstats/lake"
)

// ColumnName converts a source field name into a lowercase snake_case
// identifier:
//
//	gameDate           -> game_date
//	teams.away.score   -> teamsawayscore
//	2B                 -> _2b
//	home__team         -> home_team
//
// camelCase boundaries become underscores, characters other than ASCII
// letters, digits and '_' are dropped, a leading digit gets a '_' prefix,
// and runs of '_' collapse to one.
func ColumnName(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	var prev rune
	for _, r := range name {
		switch {
		case isLower(prev) && isUpper(r):
			b.WriteByte('_')
			b.WriteRune(r)
		case isLower(r) || isUpper(r) || isDigit(r) || r == '_':
			b.WriteRune(r)
		}
		prev = r
	}

	out := b.String()
	if out != "" && isDigit(rune(out[0])) {
		out = "_" + out
	}
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return strings.ToLower(out)
}

// ColumnNames normalizes every name and makes the results unique by adding
// _2, _3, ... to repeats. Names that normalize to nothing become "column".
func ColumnNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		base := ColumnName(n)
		if base == "" || base == "_" {
			base = "column"
		}
		name := base
		for k := 2; seen[name]; k++ {
			name = base + "_" + strconv.Itoa(k)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

// Table returns t with normalized column names.
func Table(t *lake.Table) (*lake.Table, error) {
	return t.RenameColumns(ColumnNames(t.ColumnNames()))
}

func isLower(r rune) bool { return r >= 'a' && r <= 'z' }
func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isDigit(r rune) bool { return r >= '0' && r <= '9' }
