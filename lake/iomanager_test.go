package lake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

// countingStore counts calls to the wrapped store.
type countingStore struct {
	Store
	calls atomic.Int64
}

func (s *countingStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	s.calls.Add(1)
	return s.Store.Get(ctx, path)
}

func (s *countingStore) Put(ctx context.Context, path string, r io.Reader) error {
	s.calls.Add(1)
	return s.Store.Put(ctx, path, r)
}

func (s *countingStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.calls.Add(1)
	return s.Store.List(ctx, prefix)
}

// faultStore injects errors or panics for paths containing a marker.
type faultStore struct {
	Store
	marker string
	err    error
	panic  bool
}

func (s *faultStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.Contains(path, s.marker) {
		if s.panic {
			panic("boom: " + path)
		}
		return nil, s.err
	}
	return s.Store.Get(ctx, path)
}

func logCapture() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})), &buf
}

func countLevel(buf *bytes.Buffer, level string) int {
	return strings.Count(buf.String(), "level="+level)
}

func newManager(t *testing.T, store Store, opts ...Option) *IOManager {
	t.Helper()
	m, err := NewIOManager(store, opts...)
	if err != nil {
		t.Fatalf("NewIOManager() error = %v", err)
	}
	return m
}

var scheduleNS = []string{"raw", "mlb", "schedule"}

func dayKeys(n int) []string {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	keys := make([]string, n)
	for i := range keys {
		keys[i] = start.AddDate(0, 0, i).Format(time.DateOnly)
	}
	return keys
}

// seedDays stores a one-row table for every key except those in skip.
func seedDays(t *testing.T, m *IOManager, keys []string, skip map[int]bool) {
	t.Helper()
	for i, k := range keys {
		if skip[i] {
			continue
		}
		tbl := mustTable(t,
			Column{Name: "day", Type: TypeString, Values: []any{k}},
			Column{Name: "n", Type: TypeInt64, Values: []any{int64(i)}},
		)
		if _, err := m.Store(t.Context(), NewKey(scheduleNS...).WithPartition(k), tbl); err != nil {
			t.Fatalf("Store(%s) error = %v", k, err)
		}
	}
}

func sortedColumn(t *testing.T, tbl *Table, name string) []string {
	t.Helper()
	c, ok := tbl.Column(name)
	if !ok {
		t.Fatalf("column %q missing", name)
	}
	out := make([]string, len(c.Values))
	for i, v := range c.Values {
		out[i] = fmt.Sprint(v)
	}
	sort.Strings(out)
	return out
}

// -----------------------------------------------------------------------------
// Write path
// -----------------------------------------------------------------------------

func TestIOManager_Store_ThreeRowScenario(t *testing.T) {
	store := NewMemory()
	m := newManager(t, store, WithLayout(NewLayout("lake", "")))
	key := NewKey(scheduleNS...).WithPartition("2021-06-01")

	in := mustTable(t,
		Column{Name: "game_pk", Type: TypeInt64, Values: []any{int64(1), int64(2), int64(3)}},
		Column{Name: "home", Type: TypeString, Values: []any{"NYY", "BOS", "LAD"}},
		Column{Name: "game_date", Type: TypeString, Values: []any{"2021-06-01", "2021-06-01", "2021-06-01"}},
	)
	mat, err := m.Store(t.Context(), key, in)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if mat.Path.String() != "lake/raw/mlb/schedule/20210601.parquet" {
		t.Errorf("Path = %q", mat.Path.String())
	}
	if mat.Rows != 3 || mat.Columns != 3 || mat.SizeBytes == 0 {
		t.Errorf("Materialization = %+v", mat)
	}
	if ok, _ := store.Exists(t.Context(), "raw/mlb/schedule/20210601.parquet"); !ok {
		t.Fatal("object not written at resolved key")
	}

	out, err := m.Load(t.Context(), key)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.NumRows() != 3 {
		t.Fatalf("Load() rows = %d, want 3", out.NumRows())
	}
	for i, want := range in.Records() {
		got := out.Row(i)
		for k, v := range want {
			if got[k] != v {
				t.Errorf("row %d column %q = %v, want %v", i, k, got[k], v)
			}
		}
	}
}

func TestIOManager_Store_LastWriteWins(t *testing.T) {
	store := NewMemory()
	m := newManager(t, store)
	key := NewKey(scheduleNS...).WithPartition("2021-06-01")

	first := mustTable(t, Column{Name: "v", Type: TypeString, Values: []any{"old", "old"}})
	second := mustTable(t, Column{Name: "v", Type: TypeString, Values: []any{"new"}})
	for _, tbl := range []*Table{first, second} {
		if _, err := m.Store(t.Context(), key, tbl); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := store.List(t.Context(), "raw/mlb/schedule/")
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 {
		t.Errorf("List() = %v, want a single object", paths)
	}

	out, err := m.Load(t.Context(), key)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 1 || out.Value(0, "v") != "new" {
		t.Errorf("Load() = %v, want the second write", out.Records())
	}
}

func TestIOManager_Store_NilIsNoOp(t *testing.T) {
	store := &countingStore{Store: NewMemory()}
	m := newManager(t, store)
	key := NewKey("raw", "x")

	for _, payload := range []any{nil, (*Table)(nil)} {
		mat, err := m.Store(t.Context(), key, payload)
		if err != nil {
			t.Errorf("Store(%#v) error = %v", payload, err)
		}
		if mat != nil {
			t.Errorf("Store(%#v) materialization = %+v, want nil", payload, mat)
		}
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("store calls = %d, want 0", n)
	}
}

func TestIOManager_Store_TypeMismatch(t *testing.T) {
	m := newManager(t, NewMemory())
	for _, payload := range []any{"rows", []map[string]any{{"a": 1}}, Table{}} {
		_, err := m.Store(t.Context(), NewKey("raw", "x"), payload)
		if !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("Store(%T) error = %v, want ErrTypeMismatch", payload, err)
		}
	}
}

func TestIOManager_Store_RoundTripTimestamps(t *testing.T) {
	m := newManager(t, NewMemory())
	ts := time.Date(2021, 6, 1, 19, 7, 33, 987654321, time.FixedZone("PDT", -7*3600))
	in := mustTable(t, Column{Name: "load_time", Type: TypeTimestamp, Values: []any{ts}})

	if _, err := m.Store(t.Context(), NewKey("raw", "t"), in); err != nil {
		t.Fatal(err)
	}
	out, err := m.Load(t.Context(), NewKey("raw", "t"))
	if err != nil {
		t.Fatal(err)
	}
	s, ok := out.Value(0, "load_time").(string)
	if !ok {
		t.Fatalf("load_time = %#v, want RFC 3339 string", out.Value(0, "load_time"))
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(ts) {
		t.Errorf("round trip = %v, want %v", parsed, ts)
	}
}

// -----------------------------------------------------------------------------
// Single-key read path
// -----------------------------------------------------------------------------

func TestIOManager_Load_MissingIsEmpty(t *testing.T) {
	logger, buf := logCapture()
	m := newManager(t, NewMemory(), WithLogger(logger))

	out, err := m.Load(t.Context(), NewKey(scheduleNS...).WithPartition("2021-06-01"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.NumRows() != 0 || out.NumColumns() != 0 {
		t.Errorf("Load() = %d rows %d cols, want empty", out.NumRows(), out.NumColumns())
	}
	if countLevel(buf, "WARN") != 1 {
		t.Errorf("warnings = %q, want one", buf.String())
	}
}

func TestIOManager_Load_MalformedIsEmpty(t *testing.T) {
	logger, buf := logCapture()
	store := NewMemory()
	m := newManager(t, store, WithLogger(logger))
	if err := store.Put(t.Context(), "raw/bad.parquet", strings.NewReader("nope")); err != nil {
		t.Fatal(err)
	}

	out, err := m.Load(t.Context(), NewKey("raw", "bad"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.NumRows() != 0 || out.NumColumns() != 0 {
		t.Errorf("Load() = %d rows %d cols, want empty", out.NumRows(), out.NumColumns())
	}
	if countLevel(buf, "ERROR") != 1 {
		t.Errorf("log = %q, want one error", buf.String())
	}
}

func TestIOManager_Load_SurfacesStoreErrors(t *testing.T) {
	for _, want := range []error{ErrPermission, ErrTransient} {
		store := &faultStore{Store: NewMemory(), marker: "raw/", err: fmt.Errorf("s3: get object: %w", want)}
		m := newManager(t, store)
		_, err := m.Load(t.Context(), NewKey("raw", "x"))
		if !errors.Is(err, want) {
			t.Errorf("Load() error = %v, want %v", err, want)
		}
	}
}

// -----------------------------------------------------------------------------
// Multi-partition fan-out
// -----------------------------------------------------------------------------

func TestIOManager_LoadPartitions_EmptyRequest(t *testing.T) {
	store := &countingStore{Store: NewMemory()}
	m := newManager(t, store)

	out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS})
	if err != nil {
		t.Fatalf("LoadPartitions() error = %v", err)
	}
	if !out.IsEmpty() || out.NumColumns() != 0 {
		t.Errorf("LoadPartitions() = %d rows, want empty", out.NumRows())
	}
	if n := store.calls.Load(); n != 0 {
		t.Errorf("store calls = %d, want 0", n)
	}
}

func TestIOManager_LoadPartitions_AllMissing(t *testing.T) {
	logger, buf := logCapture()
	m := newManager(t, NewMemory(), WithLogger(logger))

	out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: dayKeys(7)})
	if err != nil {
		t.Fatalf("LoadPartitions() error = %v", err)
	}
	if out.NumRows() != 0 {
		t.Errorf("rows = %d, want 0", out.NumRows())
	}
	if got := countLevel(buf, "WARN"); got != 7 {
		t.Errorf("warnings = %d, want 7", got)
	}
}

func TestIOManager_LoadPartitions_120WithGap(t *testing.T) {
	logger, buf := logCapture()
	store := &countingStore{Store: NewMemory()}
	m := newManager(t, store, WithLogger(logger))

	keys := dayKeys(120)
	skip := map[int]bool{}
	for i := 50; i <= 55; i++ {
		skip[i] = true
	}
	seedDays(t, m, keys, skip)
	buf.Reset()
	store.calls.Store(0)

	out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: keys})
	if err != nil {
		t.Fatalf("LoadPartitions() error = %v", err)
	}
	if out.NumRows() != 114 {
		t.Errorf("rows = %d, want 114", out.NumRows())
	}
	if got := countLevel(buf, "WARN"); got != 6 {
		t.Errorf("warnings = %d, want 6:\n%s", got, buf.String())
	}
	for i := 50; i <= 55; i++ {
		if !strings.Contains(buf.String(), "partition="+keys[i]) {
			t.Errorf("no warning for absent partition %s", keys[i])
		}
	}
	if n := store.calls.Load(); n != 120 {
		t.Errorf("store calls = %d, want 120", n)
	}
	n, _ := out.Column("n")
	if n.Type != TypeInt64 {
		t.Errorf("n type = %s, want int64", n.Type)
	}
}

func TestIOManager_LoadPartitions_BatchInvariance(t *testing.T) {
	store := NewMemory()
	keys := dayKeys(37)
	seedDays(t, newManager(t, store), keys, map[int]bool{3: true, 20: true})

	var want []string
	configs := []struct{ batch, workers int }{{50, 10}, {1, 1}, {1, 16}, {7, 3}, {36, 2}, {100, 1}}
	for _, cfg := range configs {
		t.Run(fmt.Sprintf("batch=%d/workers=%d", cfg.batch, cfg.workers), func(t *testing.T) {
			m := newManager(t, store, WithBatchSize(cfg.batch), WithMaxWorkers(cfg.workers))
			out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: keys})
			if err != nil {
				t.Fatalf("LoadPartitions() error = %v", err)
			}
			got := sortedColumn(t, out, "day")
			if len(got) != 35 {
				t.Fatalf("rows = %d, want 35", len(got))
			}
			if want == nil {
				want = got
				return
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("row multiset differs at %d: %q vs %q", i, got[i], want[i])
				}
			}
		})
	}
}

func TestIOManager_LoadPartitions_ReconcilesIntAndString(t *testing.T) {
	m := newManager(t, NewMemory(), WithBatchSize(1))
	ns := NewKey("raw", "mixed")

	a := mustTable(t, Column{Name: "id", Type: TypeInt64, Values: []any{int64(1), int64(2)}})
	b := mustTable(t, Column{Name: "id", Type: TypeString, Values: []any{"abc"}})
	if _, err := m.Store(t.Context(), ns.WithPartition("a"), a); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Store(t.Context(), ns.WithPartition("b"), b); err != nil {
		t.Fatal(err)
	}

	out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: ns.Namespace, Keys: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("LoadPartitions() error = %v", err)
	}
	id, _ := out.Column("id")
	if id.Type != TypeString {
		t.Errorf("id type = %s, want string", id.Type)
	}
	got := sortedColumn(t, out, "id")
	want := []string{"1", "2", "abc"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("id values = %v, want %v", got, want)
			break
		}
	}
}

func TestIOManager_LoadPartitions_SkipsTransient(t *testing.T) {
	logger, buf := logCapture()
	base := NewMemory()
	keys := dayKeys(5)
	seedDays(t, newManager(t, base), keys, nil)

	store := &faultStore{Store: base, marker: "20210103", err: fmt.Errorf("s3: get object: %w", ErrTransient)}
	m := newManager(t, store, WithLogger(logger), WithBatchSize(2))
	out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: keys})
	if err != nil {
		t.Fatalf("LoadPartitions() error = %v", err)
	}
	if out.NumRows() != 4 {
		t.Errorf("rows = %d, want 4", out.NumRows())
	}
	if countLevel(buf, "WARN") != 1 {
		t.Errorf("log = %q, want one warning", buf.String())
	}
}

func TestIOManager_LoadPartitions_StoreRejectionFails(t *testing.T) {
	base := NewMemory()
	keys := dayKeys(5)
	seedDays(t, newManager(t, base), keys, nil)

	for _, want := range []error{ErrPermission, ErrConfiguration} {
		store := &faultStore{Store: base, marker: "20210103", err: fmt.Errorf("s3: get object: %w", want)}
		m := newManager(t, store, WithBatchSize(2))
		_, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: keys})
		if !errors.Is(err, want) {
			t.Errorf("LoadPartitions() error = %v, want %v", err, want)
		}
	}
}

func TestIOManager_LoadPartitions_MixedTypesIndependentOfBatching(t *testing.T) {
	store := NewMemory()
	m := newManager(t, store)
	keys := dayKeys(3)
	parts := []*Table{
		mustTable(t, Column{Name: "v", Type: TypeInt64, Values: []any{int64(9007199254740993)}}),
		mustTable(t, Column{Name: "v", Type: TypeFloat64, Values: []any{1.5}}),
		mustTable(t, Column{Name: "v", Type: TypeString, Values: []any{"s"}}),
	}
	for i, k := range keys {
		if _, err := m.Store(t.Context(), NewKey(scheduleNS...).WithPartition(k), parts[i]); err != nil {
			t.Fatalf("Store(%s) error = %v", k, err)
		}
	}

	want := []string{"1.5", "9007199254740993", "s"}
	for _, batch := range []int{1, 2, 3} {
		m := newManager(t, store, WithBatchSize(batch), WithMaxWorkers(3))
		out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: keys})
		if err != nil {
			t.Fatalf("LoadPartitions() error = %v", err)
		}
		if c, _ := out.Column("v"); c.Type != TypeString {
			t.Errorf("batch %d: v type = %s, want string", batch, c.Type)
		}
		if got := sortedColumn(t, out, "v"); !slices.Equal(got, want) {
			t.Errorf("batch %d: v = %v, want %v", batch, got, want)
		}
	}
}

func TestIOManager_LoadPartitions_MalformedSkipped(t *testing.T) {
	logger, buf := logCapture()
	store := NewMemory()
	m := newManager(t, store, WithLogger(logger))
	keys := dayKeys(3)
	seedDays(t, m, keys, nil)
	if err := store.Put(t.Context(), "raw/mlb/schedule/20210102.parquet", strings.NewReader("garbage")); err != nil {
		t.Fatal(err)
	}

	out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: keys})
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 2 {
		t.Errorf("rows = %d, want 2", out.NumRows())
	}
	if !strings.Contains(buf.String(), "partition unreadable") {
		t.Errorf("log = %q, want unreadable warning", buf.String())
	}
}

func TestIOManager_LoadPartitions_PanickingBatchDropped(t *testing.T) {
	logger, buf := logCapture()
	base := NewMemory()
	keys := dayKeys(10)
	seedDays(t, newManager(t, base), keys, nil)

	// Batch size 5: the panic in 2021-01-07 drops the second batch only.
	store := &faultStore{Store: base, marker: "20210107", panic: true}
	m := newManager(t, store, WithLogger(logger), WithBatchSize(5))
	out, err := m.LoadPartitions(t.Context(), PartitionRequest{Namespace: scheduleNS, Keys: keys})
	if err != nil {
		t.Fatalf("LoadPartitions() error = %v", err)
	}
	if out.NumRows() != 5 {
		t.Errorf("rows = %d, want 5", out.NumRows())
	}
	if countLevel(buf, "ERROR") != 1 {
		t.Errorf("log = %q, want one error", buf.String())
	}
}

func TestIOManager_LoadPartitions_Canceled(t *testing.T) {
	m := newManager(t, NewMemory())
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := m.LoadPartitions(ctx, PartitionRequest{Namespace: scheduleNS, Keys: dayKeys(3)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("LoadPartitions() error = %v, want context.Canceled", err)
	}
}

func TestIOManager_ListPartitionsAndDelete(t *testing.T) {
	m := newManager(t, NewMemory(), WithLayout(NewLayout("lake", "prod")))
	keys := dayKeys(3)
	seedDays(t, m, keys, nil)

	got, err := m.ListPartitions(t.Context(), scheduleNS...)
	if err != nil {
		t.Fatalf("ListPartitions() error = %v", err)
	}
	want := []string{"20210101", "20210102", "20210103"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ListPartitions() = %v, want %v", got, want)
	}

	if err := m.Delete(t.Context(), NewKey(scheduleNS...).WithPartition(keys[1])); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = m.ListPartitions(t.Context(), scheduleNS...)
	if len(got) != 2 {
		t.Errorf("after Delete ListPartitions() = %v", got)
	}
}
