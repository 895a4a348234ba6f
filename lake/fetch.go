package lake

import (
	"context"
	"errors"
	"fmt"
)

// FetchStatus classifies the outcome of reading one table object.
type FetchStatus int

// Fetch outcomes.
const (
	// FetchOK means the object was read and decoded.
	FetchOK FetchStatus = iota
	// FetchNotFound means no object exists at the path.
	FetchNotFound
	// FetchFailed means the object could not be read or decoded.
	FetchFailed
)

func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "ok"
	case FetchNotFound:
		return "not_found"
	case FetchFailed:
		return "failed"
	default:
		return fmt.Sprintf("FetchStatus(%d)", int(s))
	}
}

// FetchResult is the typed outcome of a single-object read. Table is set
// only for FetchOK; Err is set only for FetchFailed.
type FetchResult struct {
	Key    Key
	Path   PhysicalPath
	Status FetchStatus
	Table  *Table
	Err    error
}

// Fetch reads and decodes the object for key. Store and decode failures are
// reported through the result, never as a returned error.
func (m *IOManager) Fetch(ctx context.Context, key Key) FetchResult {
	res := FetchResult{Key: key}
	p, err := m.layout.Resolve(key)
	if err != nil {
		res.Status, res.Err = FetchFailed, err
		return res
	}
	res.Path = p

	rc, err := m.store.Get(ctx, p.Key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			res.Status = FetchNotFound
			return res
		}
		res.Status, res.Err = FetchFailed, err
		return res
	}
	defer closer(rc)()

	t, err := DecodeTable(rc)
	if err != nil {
		res.Status, res.Err = FetchFailed, err
		return res
	}
	res.Status, res.Table = FetchOK, t
	return res
}
