package checkpoint

import (
	"context"
	"sync"

	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// Tracker follows the ids delivered by a stream consumer.
type Tracker struct {
	mu     sync.Mutex
	lastID string
	count  int64
}

// Wrap returns a consumer that records each event id before calling fn.
func (t *Tracker) Wrap(fn func(stream.Record)) func(stream.Record) {
	return func(rec stream.Record) {
		fn(rec)
		if id := rec.Event.ID(); id != "" {
			t.mu.Lock()
			t.lastID = id
			t.count++
			t.mu.Unlock()
		}
	}
}

// LastID returns the id of the most recent event delivered.
func (t *Tracker) LastID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastID
}

// Count returns how many events were delivered.
func (t *Tracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Commit saves the tracked position under name. Nothing is written when no
// event was delivered.
func (t *Tracker) Commit(ctx context.Context, s *Store, name, namespace, streamName string) (bool, error) {
	lastID, count := t.LastID(), t.Count()
	if lastID == "" {
		return false, nil
	}
	err := s.Save(ctx, Checkpoint{Name: name, Namespace: namespace, Stream: streamName, LastID: lastID, Count: count})
	return err == nil, err
}
