// Package duckpond runs ad-hoc SQL over the lake's Parquet files with DuckDB.
package duckpond

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/pithecene-io/mlbstats/lake"
	"github.com/pithecene-io/mlbstats/lake/s3"
)

const secretName = "lake"

// Options selects the lake the pond reads. LocalDir wins over Storage.
type Options struct {
	Storage  s3.ConnectionConfig
	LocalDir string
	Logger   *slog.Logger
}

// Pond is an in-memory DuckDB connected to the lake.
type Pond struct {
	db     *sql.DB
	root   string // URL or directory the layout prefix is appended to
	layout lake.Layout
	logger *slog.Logger
}

// plan is the setup derived from Options.
type plan struct {
	root       string
	statements []string
}

func planFor(opts Options) (plan, error) {
	if opts.LocalDir != "" {
		abs, err := filepath.Abs(opts.LocalDir)
		if err != nil {
			return plan{}, fmt.Errorf("duckpond: %w", err)
		}
		return plan{root: filepath.ToSlash(abs)}, nil
	}

	cfg := opts.Storage.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return plan{}, err
	}
	stmts := []string{"INSTALL httpfs", "LOAD httpfs"}

	if cfg.AccountID != "" && cfg.Endpoint == s3.R2Endpoint(cfg.AccountID) {
		stmts = append(stmts, CreateR2Secret(secretName, cfg.AccessKey, cfg.SecretKey, cfg.AccountID))
		return plan{root: "r2://" + cfg.Bucket, statements: stmts}, nil
	}

	host, useSSL := cfg.Endpoint, true
	switch {
	case strings.HasPrefix(host, "https://"):
		host = strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		host, useSSL = strings.TrimPrefix(host, "http://"), false
	}
	urlStyle := "vhost"
	if cfg.UsePathStyle {
		urlStyle = "path"
	}
	region := cfg.Region
	if region == "auto" {
		region = "us-east-1"
	}
	stmts = append(stmts, CreateS3Secret(secretName, cfg.AccessKey, cfg.SecretKey, strings.TrimRight(host, "/"), region, urlStyle, useSSL))
	return plan{root: "s3://" + cfg.Bucket, statements: stmts}, nil
}

// Open starts DuckDB and configures access to the lake.
func Open(ctx context.Context, opts Options) (*Pond, error) {
	p, err := planFor(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("duckpond: open duckdb: %w", err)
	}
	for _, stmt := range p.statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("duckpond: setup: %w", err)
		}
	}
	logger.Debug("duckdb ready", "root", p.root)

	return &Pond{
		db:     db,
		root:   p.root,
		layout: lake.NewLayout("", opts.Storage.Prefix),
		logger: logger,
	}, nil
}

// Close releases the database.
func (p *Pond) Close() error {
	return p.db.Close()
}

// ScanPath returns the glob matching a namespace's files: every partition
// when partitioned, else the single table file.
func (p *Pond) ScanPath(namespace []string, partitioned bool) string {
	if partitioned {
		return p.root + "/" + p.layout.NamespacePrefix(namespace) + "*" + lake.FileExtension
	}
	return p.root + "/" + p.layout.Prefix + path.Join(namespace...) + lake.FileExtension
}

// RegisterView creates a view named ViewName(namespace) over the
// namespace's files. It fails when no file exists yet.
func (p *Pond) RegisterView(ctx context.Context, namespace []string, partitioned bool) error {
	stmt := "CREATE OR REPLACE VIEW " + QuoteIdentifier(ViewName(namespace)) +
		" AS SELECT * FROM " + ReadParquet(p.ScanPath(namespace, partitioned))
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("duckpond: view %s: %w", ViewName(namespace), err)
	}
	return nil
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Query runs a read query and collects every row.
func (p *Pond) Query(ctx context.Context, query string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("duckpond: empty query")
	}
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("duckpond: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("duckpond: columns: %w", err)
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("duckpond: scan: %w", err)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("duckpond: rows: %w", err)
	}
	return res, nil
}
