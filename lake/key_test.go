package lake

import (
	"errors"
	"testing"
)

func TestSanitizePartition(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2020-01-01", "20200101"},
		{"2020-01-01-05:00", "202001010500"},
		{"2021-06", "202106"},
		{"2021 06 01", "20210601"},
		{"a/b", "ab"},
		{"game_type", "game_type"},
	}
	for _, tt := range tests {
		if got := SanitizePartition(tt.in); got != tt.want {
			t.Errorf("SanitizePartition(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLayout_Resolve(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		key    Key
		want   string
	}{
		{
			name:   "partitioned",
			layout: NewLayout("lake", ""),
			key:    NewKey("raw", "mlb", "schedule").WithPartition("2021-06-01"),
			want:   "lake/raw/mlb/schedule/20210601.parquet",
		},
		{
			name:   "unpartitioned",
			layout: NewLayout("lake", ""),
			key:    NewKey("stage", "mlb", "schedule", "schedule"),
			want:   "lake/stage/mlb/schedule/schedule.parquet",
		},
		{
			name:   "prefix without slash",
			layout: NewLayout("lake", "prod"),
			key:    NewKey("raw", "mlb", "games").WithPartition("2021-06-01"),
			want:   "lake/prod/raw/mlb/games/20210601.parquet",
		},
		{
			name:   "no bucket",
			layout: NewLayout("", "dev/"),
			key:    NewKey("raw", "x"),
			want:   "dev/raw/x.parquet",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.layout.Resolve(tt.key)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if p.String() != tt.want {
				t.Errorf("Resolve() = %q, want %q", p.String(), tt.want)
			}
		})
	}
}

func TestLayout_Resolve_Deterministic(t *testing.T) {
	l := NewLayout("b", "p")
	a, err := l.Resolve(NewKey("raw", "mlb", "schedule").WithPartition("2021-06-01"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Resolve(Key{Namespace: []string{"raw", "mlb", "schedule"}, Partition: "2021-06-01"})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("equal keys resolved to %v and %v", a, b)
	}
}

func TestKey_Validate(t *testing.T) {
	bad := []Key{
		{},
		{Namespace: []string{"raw", ""}},
		{Namespace: []string{".."}},
		{Namespace: []string{"raw/mlb"}},
		{Namespace: []string{"raw"}, Partition: "--"},
	}
	for _, k := range bad {
		if err := k.Validate(); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Validate(%#v) error = %v, want ErrInvalidPath", k, err)
		}
		if _, err := NewLayout("", "").Resolve(k); err == nil {
			t.Errorf("Resolve(%#v) succeeded, want error", k)
		}
	}
}

func TestCheckPartitionKeys(t *testing.T) {
	if err := CheckPartitionKeys([]string{"2020-01-01", "2020-01-02", "2020-01-01"}); err != nil {
		t.Errorf("CheckPartitionKeys() with repeated key error = %v", err)
	}

	err := CheckPartitionKeys([]string{"2020-01-01", "20200101"})
	if !errors.Is(err, ErrPartitionCollision) {
		t.Errorf("CheckPartitionKeys() error = %v, want ErrPartitionCollision", err)
	}

	err = CheckPartitionKeys([]string{"-"})
	if !errors.Is(err, ErrPartitionCollision) {
		t.Errorf("CheckPartitionKeys() error = %v, want ErrPartitionCollision", err)
	}
}

func TestLayout_ParsePartition(t *testing.T) {
	l := NewLayout("", "prefix")
	ns := []string{"raw", "mlb", "schedule"}

	tests := []struct {
		path, want string
	}{
		{"prefix/raw/mlb/schedule/20210601.parquet", "20210601"},
		{"prefix/raw/mlb/schedule/nested/20210601.parquet", ""},
		{"prefix/raw/mlb/schedule/20210601.csv", ""},
		{"prefix/raw/mlb/other/20210601.parquet", ""},
	}
	for _, tt := range tests {
		if got := l.ParsePartition(ns, tt.path); got != tt.want {
			t.Errorf("ParsePartition(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
