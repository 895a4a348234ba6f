package lake

import (
	"path"
	"strings"
)

// FileExtension is appended to every table object.
const FileExtension = ".parquet"

// Layout maps logical keys to object paths:
//
//	<prefix><namespace/segments>.parquet              (unpartitioned)
//	<prefix><namespace/segments>/<partition>.parquet  (partitioned)
//
// Partition keys are sanitized (see SanitizePartition) so date partitions stay
// flat and sortable. The bucket is carried only for reporting; stores address
// objects relative to their bucket.
type Layout struct {
	// Bucket is the bucket name used in PhysicalPath.String.
	Bucket string

	// Prefix is an optional key prefix. A trailing slash is added when missing.
	Prefix string
}

// NewLayout creates a layout with a normalized prefix.
func NewLayout(bucket, prefix string) Layout {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return Layout{Bucket: bucket, Prefix: prefix}
}

// PhysicalPath is the resolved location of a table object.
type PhysicalPath struct {
	Bucket string
	Key    string
}

// String renders bucket/key, or just key when no bucket is known.
func (p PhysicalPath) String() string {
	if p.Bucket == "" {
		return p.Key
	}
	return p.Bucket + "/" + p.Key
}

// Resolve maps a logical key to its physical path. An unpartitioned key one
// segment below a partitioned namespace can land on a partition's path;
// pipeline registries refuse that nesting.
func (l Layout) Resolve(k Key) (PhysicalPath, error) {
	if err := k.Validate(); err != nil {
		return PhysicalPath{}, err
	}
	p := l.Prefix + path.Join(k.Namespace...)
	if k.Partition != "" {
		p += "/" + SanitizePartition(k.Partition)
	}
	return PhysicalPath{Bucket: l.Bucket, Key: p + FileExtension}, nil
}

// NamespacePrefix returns the listing prefix under which the partitions of a
// namespace live.
func (l Layout) NamespacePrefix(namespace []string) string {
	return l.Prefix + path.Join(namespace...) + "/"
}

// ParsePartition extracts the sanitized partition component from an object
// path listed under NamespacePrefix(namespace). It returns "" for paths that
// are not direct partition files of the namespace.
func (l Layout) ParsePartition(namespace []string, objectPath string) string {
	prefix := l.NamespacePrefix(namespace)
	if !strings.HasPrefix(objectPath, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(objectPath, prefix)
	if strings.Contains(rest, "/") || !strings.HasSuffix(rest, FileExtension) {
		return ""
	}
	return strings.TrimSuffix(rest, FileExtension)
}
