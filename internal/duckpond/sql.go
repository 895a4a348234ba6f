package duckpond

import (
	"fmt"
	"strings"
)

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdentifier renders s as a double-quoted SQL identifier.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// CreateR2Secret returns a DuckDB statement creating a Cloudflare R2 secret.
func CreateR2Secret(name, keyID, secret, accountID string) string {
	return fmt.Sprintf(`CREATE OR REPLACE SECRET %s (
	TYPE R2,
	KEY_ID %s,
	SECRET %s,
	ACCOUNT_ID %s
)`,
		QuoteIdentifier(name),
		QuoteLiteral(keyID),
		QuoteLiteral(secret),
		QuoteLiteral(accountID),
	)
}

// CreateS3Secret returns a DuckDB statement creating an S3 secret for a
// custom endpoint (MinIO, localstack, or AWS when endpoint is empty).
func CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle string, useSSL bool) string {
	return fmt.Sprintf(`CREATE OR REPLACE SECRET %s (
	TYPE S3,
	KEY_ID %s,
	SECRET %s,
	ENDPOINT %s,
	REGION %s,
	URL_STYLE %s,
	USE_SSL %t
)`,
		QuoteIdentifier(name),
		QuoteLiteral(keyID),
		QuoteLiteral(secret),
		QuoteLiteral(endpoint),
		QuoteLiteral(region),
		QuoteLiteral(urlStyle),
		useSSL,
	)
}

// ReadParquet returns a table expression reading every file matching glob,
// aligning columns by name across files.
func ReadParquet(glob string) string {
	return "read_parquet(" + QuoteLiteral(glob) + ", union_by_name = true)"
}

// ViewName turns a namespace into a view name: raw/mlb/schedule becomes
// raw_mlb_schedule.
func ViewName(namespace []string) string {
	return strings.Join(namespace, "_")
}
