package lake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Fan-out defaults for LoadPartitions.
const (
	DefaultBatchSize  = 50
	DefaultMaxWorkers = 10
)

// Option configures an IOManager.
type Option func(*IOManager)

// WithLayout sets the key-to-path layout. Default: NewLayout("", "").
func WithLayout(l Layout) Option {
	return func(m *IOManager) { m.layout = l }
}

// WithBatchSize sets how many partitions one worker fetches sequentially.
// Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(m *IOManager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithMaxWorkers bounds the number of batches fetched concurrently.
// Values below 1 are ignored.
func WithMaxWorkers(n int) Option {
	return func(m *IOManager) {
		if n > 0 {
			m.maxWorkers = n
		}
	}
}

// WithLogger sets the logger for skipped partitions and lost batches.
// Default: a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *IOManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// IOManager persists tables under logical keys and reads them back, one key
// at a time or as a bounded concurrent fan-out over many partitions.
//
// IOManager is safe for concurrent use if its Store is.
type IOManager struct {
	store      Store
	layout     Layout
	batchSize  int
	maxWorkers int
	logger     *slog.Logger
}

// NewIOManager creates an I/O manager over store.
func NewIOManager(store Store, opts ...Option) (*IOManager, error) {
	if store == nil {
		return nil, errors.New("lake: store is required")
	}
	m := &IOManager{
		store:      store,
		batchSize:  DefaultBatchSize,
		maxWorkers: DefaultMaxWorkers,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Layout returns the layout used to resolve keys.
func (m *IOManager) Layout() Layout { return m.layout }

// Materialization describes a table written by Store.
type Materialization struct {
	Key         Key
	Path        PhysicalPath
	Rows        int
	Columns     int
	ColumnNames []string
	SizeBytes   int64
}

// Store writes payload under key, replacing any previous object.
//
// A nil payload (untyped nil or a nil *Table) is a no-op and returns a nil
// Materialization. Any payload other than *Table fails with ErrTypeMismatch.
func (m *IOManager) Store(ctx context.Context, key Key, payload any) (*Materialization, error) {
	if payload == nil {
		return nil, nil
	}
	t, ok := payload.(*Table)
	if !ok {
		return nil, fmt.Errorf("lake: store %s: %w (got %T)", key, ErrTypeMismatch, payload)
	}
	if t == nil {
		return nil, nil
	}

	p, err := m.layout.Resolve(key)
	if err != nil {
		return nil, fmt.Errorf("lake: store %s: %w", key, err)
	}

	var buf bytes.Buffer
	if err := EncodeTable(&buf, t); err != nil {
		return nil, fmt.Errorf("lake: store %s: %w: %w", key, ErrParse, err)
	}
	size := int64(buf.Len())
	if err := m.store.Put(ctx, p.Key, &buf); err != nil {
		return nil, fmt.Errorf("lake: store %s: %w", key, err)
	}

	m.logger.Debug("table stored", "path", p.String(), "rows", t.NumRows(), "bytes", size)
	return &Materialization{
		Key:         key,
		Path:        p,
		Rows:        t.NumRows(),
		Columns:     t.NumColumns(),
		ColumnNames: t.ColumnNames(),
		SizeBytes:   size,
	}, nil
}

// Load reads the table stored under key.
//
// A missing object yields an empty table and a logged warning. Undecodable
// content is treated as missing data: it is logged at error level and an
// empty table is returned. Other store errors are returned wrapped.
func (m *IOManager) Load(ctx context.Context, key Key) (*Table, error) {
	res := m.Fetch(ctx, key)
	switch res.Status {
	case FetchOK:
		return res.Table, nil
	case FetchNotFound:
		m.logger.Warn("table not found, returning empty table",
			"namespace", key.Name(), "partition", key.Partition, "path", res.Path.String())
		return EmptyTable(), nil
	default:
		if errors.Is(res.Err, ErrParse) {
			m.logger.Error("table unreadable, returning empty table",
				"namespace", key.Name(), "partition", key.Partition, "path", res.Path.String(), "error", res.Err)
			return EmptyTable(), nil
		}
		return nil, fmt.Errorf("lake: load %s: %w", key, res.Err)
	}
}

// LoadPartitions reads many partitions of one namespace and concatenates
// them.
//
// Keys are split into batches of the configured size and at most the
// configured number of batches run at once; each batch fetches its keys in
// order. Missing, unreadable, or transiently failing partitions are logged
// and skipped. A batch that panics is logged at error level and contributes
// no rows. The read fails only when ctx is canceled or the store rejects the
// credentials (ErrPermission) or its configuration (ErrConfiguration). Row
// order of the result is unspecified.
func (m *IOManager) LoadPartitions(ctx context.Context, req PartitionRequest) (*Table, error) {
	if len(req.Keys) == 0 {
		return EmptyTable(), nil
	}

	var (
		mu    sync.Mutex
		parts []*Table
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxWorkers)
	for start := 0; start < len(req.Keys); start += m.batchSize {
		end := min(start+m.batchSize, len(req.Keys))
		g.Go(func() error {
			part, err := m.loadBatch(gctx, req, start, end)
			if err != nil {
				return err
			}
			if len(part) == 0 {
				return nil
			}
			mu.Lock()
			parts = append(parts, part...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("lake: load %s: %w", req.Key(0).Name(), err)
	}
	// One merge over every fetched table so column types are reconciled from
	// the original values regardless of batch completion order.
	return Concat(parts...), nil
}

// loadBatch fetches keys [start, end) sequentially and returns the tables
// read. It returns nil after a recovered panic and an error when ctx is done
// or the store rejects the request outright.
func (m *IOManager) loadBatch(ctx context.Context, req PartitionRequest, start, end int) (part []*Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("partition batch failed, dropping its rows",
				"namespace", req.Key(start).Name(), "batch_start", start, "batch_end", end, "error", fmt.Sprint(r))
			part, err = nil, nil
		}
	}()

	tables := make([]*Table, 0, end-start)
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := req.Key(i)
		res := m.Fetch(ctx, key)
		switch res.Status {
		case FetchOK:
			tables = append(tables, res.Table)
		case FetchNotFound:
			m.logger.Warn("partition not found, skipping",
				"namespace", key.Name(), "partition", key.Partition, "path", res.Path.String())
		case FetchFailed:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(res.Err, ErrPermission) || errors.Is(res.Err, ErrConfiguration) {
				return nil, res.Err
			}
			m.logger.Warn("partition unreadable, skipping",
				"namespace", key.Name(), "partition", key.Partition, "path", res.Path.String(), "error", res.Err)
		}
	}
	return tables, nil
}

// ListPartitions returns the sanitized partition components stored for a
// namespace, sorted ascending.
func (m *IOManager) ListPartitions(ctx context.Context, namespace ...string) ([]string, error) {
	if err := NewKey(namespace...).Validate(); err != nil {
		return nil, err
	}
	paths, err := m.store.List(ctx, m.layout.NamespacePrefix(namespace))
	if err != nil {
		return nil, fmt.Errorf("lake: list %v: %w", namespace, err)
	}
	var parts []string
	for _, p := range paths {
		if part := m.layout.ParsePartition(namespace, p); part != "" {
			parts = append(parts, part)
		}
	}
	sort.Strings(parts)
	return parts, nil
}

// Delete removes the object stored under key. Deleting a missing key is not
// an error.
func (m *IOManager) Delete(ctx context.Context, key Key) error {
	p, err := m.layout.Resolve(key)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, p.Key); err != nil {
		return fmt.Errorf("lake: delete %s: %w", key, err)
	}
	return nil
}
