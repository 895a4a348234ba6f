package lake

import (
	"fmt"
	"strings"
)

// Key is the logical identity of a stored table: a namespace path and an
// optional partition. Two keys with equal namespace and partition resolve to
// the same object.
type Key struct {
	// Namespace is the ordered path of the dataset, e.g. ["raw", "mlb", "schedule"].
	Namespace []string

	// Partition is the raw partition key, e.g. "2021-06-01". Empty means unpartitioned.
	Partition string
}

// NewKey returns a key for the namespace with no partition.
func NewKey(namespace ...string) Key {
	return Key{Namespace: namespace}
}

// WithPartition returns a copy of k bound to the given partition.
func (k Key) WithPartition(partition string) Key {
	return Key{Namespace: k.Namespace, Partition: partition}
}

// IsPartitioned reports whether the key carries a partition.
func (k Key) IsPartitioned() bool {
	return k.Partition != ""
}

// Name returns the namespace joined with "/".
func (k Key) Name() string {
	return strings.Join(k.Namespace, "/")
}

func (k Key) String() string {
	if k.Partition == "" {
		return k.Name()
	}
	return k.Name() + "[" + k.Partition + "]"
}

// Validate checks that the namespace is non-empty and every segment is usable
// as an object key component.
func (k Key) Validate() error {
	if len(k.Namespace) == 0 {
		return fmt.Errorf("%w: empty namespace", ErrInvalidPath)
	}
	for _, seg := range k.Namespace {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, "/") {
			return fmt.Errorf("%w: bad namespace segment %q in %v", ErrInvalidPath, seg, k.Namespace)
		}
	}
	if k.Partition != "" && SanitizePartition(k.Partition) == "" {
		return fmt.Errorf("%w: partition %q sanitizes to nothing", ErrInvalidPath, k.Partition)
	}
	return nil
}

// PartitionRequest asks for several partitions of one namespace.
// It is built per invocation and consumed once.
type PartitionRequest struct {
	Namespace []string
	Keys      []string
}

// Key returns the logical key of the i-th requested partition.
func (r PartitionRequest) Key(i int) Key {
	return Key{Namespace: r.Namespace, Partition: r.Keys[i]}
}

// partitionSeparators are stripped from partition keys so date-like keys
// become flat, sortable path components (2020-01-01 -> 20200101).
const partitionSeparators = "-:/ \t"

// SanitizePartition removes separator characters from a partition key.
func SanitizePartition(partition string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(partitionSeparators, r) {
			return -1
		}
		return r
	}, partition)
}

// CheckPartitionKeys reports ErrPartitionCollision when two distinct raw keys
// sanitize to the same path component. Registries call it once when a
// partitioning scheme is registered.
func CheckPartitionKeys(keys []string) error {
	seen := make(map[string]string, len(keys))
	for _, raw := range keys {
		s := SanitizePartition(raw)
		if s == "" {
			return fmt.Errorf("%w: partition %q sanitizes to nothing", ErrPartitionCollision, raw)
		}
		if prev, ok := seen[s]; ok && prev != raw {
			return fmt.Errorf("%w: %q and %q both map to %q", ErrPartitionCollision, prev, raw, s)
		}
		seen[s] = raw
	}
	return nil
}
