package lake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Paths handed to a Store are slash-separated and relative to the store
// root. Empty paths, absolute escapes and ".." segments that climb out of
// the root are rejected with ErrInvalidPath by every implementation.

// tempPrefix marks in-flight uploads of the filesystem store. List never
// reports them.
const tempPrefix = ".put-"

// cleanKey normalizes an object path. ok is false when the path names the
// root itself or escapes it.
func cleanKey(p string) (key string, ok bool) {
	if p == "" {
		return "", false
	}
	key = strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "/")
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, "../") {
		return "", false
	}
	return key, true
}

// cleanPrefix normalizes a listing prefix. An empty result lists the whole
// store. A trailing slash is kept so "a/b/" matches only inside a/b.
func cleanPrefix(p string) (prefix string, ok bool) {
	if p == "" {
		return "", true
	}
	prefix = strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "/")
	switch {
	case prefix == "." || prefix == "":
		return "", true
	case prefix == ".." || strings.HasPrefix(prefix, "../"):
		return "", false
	}
	if strings.HasSuffix(p, "/") {
		prefix += "/"
	}
	return prefix, true
}

// -----------------------------------------------------------------------------
// Filesystem Store
// -----------------------------------------------------------------------------

// fsStore keeps one file per object under root.
type fsStore struct {
	root string // absolute
}

// NewFS opens a lake rooted at an existing directory.
//
// Put writes to a hidden temp file beside the target and renames it into
// place, so a reader sees either the previous table or the new one. OS
// permission failures surface as ErrPermission.
func NewFS(root string) (Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, os.ErrNotExist
	}
	return &fsStore{root: abs}, nil
}

// file maps an object path to its location on disk.
func (f *fsStore) file(p string) (string, error) {
	key, ok := cleanKey(p)
	if !ok {
		return "", ErrInvalidPath
	}
	return filepath.Join(f.root, filepath.FromSlash(key)), nil
}

// osErr translates filesystem errors into lake sentinels.
func osErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return errors.Join(ErrPermission, err)
	default:
		return err
	}
}

func (f *fsStore) Put(_ context.Context, p string, r io.Reader) error {
	target, err := f.file(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return osErr(err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return osErr(err)
	}
	// Removing after a successful rename is a no-op.
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return osErr(os.Rename(tmp.Name(), target))
}

func (f *fsStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	target, err := f.file(p)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, osErr(err)
	}
	return file, nil
}

func (f *fsStore) Exists(_ context.Context, p string) (bool, error) {
	target, err := f.file(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, osErr(err)
}

// List walks the deepest directory covered by prefix and keeps the files
// whose slash path starts with it, skipping in-flight temp files.
func (f *fsStore) List(_ context.Context, prefix string) ([]string, error) {
	want, ok := cleanPrefix(prefix)
	if !ok {
		return nil, ErrInvalidPath
	}
	start := f.root
	if i := strings.LastIndex(want, "/"); i >= 0 {
		start = filepath.Join(f.root, filepath.FromSlash(want[:i]))
	}

	var paths []string
	err := filepath.WalkDir(start, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return osErr(err)
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(f.root, full)
		if err != nil {
			return err
		}
		if rel = filepath.ToSlash(rel); strings.HasPrefix(rel, want) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// Delete removes the object; a missing object is not an error.
func (f *fsStore) Delete(_ context.Context, p string) error {
	target, err := f.file(p)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return osErr(err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Memory Store
// -----------------------------------------------------------------------------

// memoryStore holds objects in a map. Tests and dry runs use it.
type memoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory lake. Put replaces the whole object
// under the lock and Get hands out a copy, so concurrent readers never see a
// partial table. It is safe for concurrent use.
func NewMemory() Store {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Put(_ context.Context, p string, r io.Reader) error {
	key, ok := cleanKey(p)
	if !ok {
		return ErrInvalidPath
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Get(_ context.Context, p string) (io.ReadCloser, error) {
	key, ok := cleanKey(p)
	if !ok {
		return nil, ErrInvalidPath
	}
	m.mu.RLock()
	data, exists := m.objects[key]
	m.mu.RUnlock()
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

func (m *memoryStore) Exists(_ context.Context, p string) (bool, error) {
	key, ok := cleanKey(p)
	if !ok {
		return false, ErrInvalidPath
	}
	m.mu.RLock()
	_, exists := m.objects[key]
	m.mu.RUnlock()
	return exists, nil
}

// List returns matching paths sorted, matching the filesystem store's
// lexical walk order.
func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	want, ok := cleanPrefix(prefix)
	if !ok {
		return nil, ErrInvalidPath
	}
	m.mu.RLock()
	var paths []string
	for key := range m.objects {
		if strings.HasPrefix(key, want) {
			paths = append(paths, key)
		}
	}
	m.mu.RUnlock()
	sort.Strings(paths)
	return paths, nil
}

func (m *memoryStore) Delete(_ context.Context, p string) error {
	key, ok := cleanKey(p)
	if !ok {
		return ErrInvalidPath
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}
