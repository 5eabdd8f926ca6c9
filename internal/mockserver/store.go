package mockserver

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// DefaultNamespace is used when a request carries a null namespace.
const DefaultNamespace = "kronos"

// Backend is the name reported in per-stream counters.
const Backend = "memory"

const (
	idField   = "@id"
	timeField = "@time"
)

// Query selects events. StartID, when set, replaces StartTime as an
// exclusive lower bound. EndTime is inclusive.
type Query struct {
	StartTime  int64
	StartID    string
	EndTime    int64
	Descending bool
	Limit      int
}

type storedEvent struct {
	id   string
	time int64
	body map[string]any
}

// Store is an in-memory event store keyed by namespace and stream.
type Store struct {
	mu      sync.RWMutex
	streams map[string]map[string][]storedEvent
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{streams: make(map[string]map[string][]storedEvent)}
}

// NewEventID returns an id that sorts by event time, then by insertion.
func NewEventID(ticks int64) string {
	return fmt.Sprintf("%019d-%s", ticks, uuid.Must(uuid.NewV7()).String())
}

// Insert stores events and returns how many were accepted. Events without a
// non-negative integer "@time" are rejected.
func (s *Store) Insert(namespace, stream string, events []map[string]any) (int, []string) {
	var (
		accepted []storedEvent
		errs     []string
	)
	for i, ev := range events {
		ticks, ok := eventTime(ev[timeField])
		if !ok || ticks < 0 {
			errs = append(errs, fmt.Sprintf("%s[%d]: %s must be a non-negative integer", stream, i, timeField))
			continue
		}
		body := make(map[string]any, len(ev)+1)
		for k, v := range ev {
			body[k] = v
		}
		id := NewEventID(ticks)
		body[idField] = id
		body[timeField] = json.Number(strconv.FormatInt(ticks, 10))
		accepted = append(accepted, storedEvent{id: id, time: ticks, body: body})
	}
	if len(accepted) == 0 {
		return 0, errs
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.streams[namespace]
	if ns == nil {
		ns = make(map[string][]storedEvent)
		s.streams[namespace] = ns
	}
	merged := append(ns[stream], accepted...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].id < merged[j].id })
	ns[stream] = merged
	return len(accepted), errs
}

// Retrieve returns copies of the matching events in the requested order.
func (s *Store) Retrieve(namespace, stream string, q Query) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []map[string]any
	for _, ev := range s.streams[namespace][stream] {
		if !q.matches(ev) {
			continue
		}
		out = append(out, copyBody(ev.body))
	}
	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Delete removes the matching events and returns how many were removed.
func (s *Store) Delete(namespace, stream string, q Query) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[namespace][stream]
	kept := events[:0]
	deleted := 0
	for _, ev := range events {
		if q.matches(ev) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	if ns := s.streams[namespace]; ns != nil {
		if len(kept) == 0 {
			delete(ns, stream)
		} else {
			ns[stream] = kept
		}
	}
	return deleted
}

// Streams lists the non-empty streams of namespace, sorted.
func (s *Store) Streams(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.streams[namespace]))
	for name, events := range s.streams[namespace] {
		if len(events) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Latest returns up to n of the most recent events, newest first.
func (s *Store) Latest(namespace, stream string, n int) []map[string]any {
	return s.Retrieve(namespace, stream, Query{EndTime: maxTicks, Descending: true, Limit: n})
}

// Reset drops every event.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string]map[string][]storedEvent)
}

const maxTicks = int64(^uint64(0) >> 1)

func (q Query) matches(ev storedEvent) bool {
	if ev.time > q.EndTime {
		return false
	}
	if q.StartID != "" {
		return ev.id > q.StartID
	}
	return ev.time >= q.StartTime
}

func copyBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}

func eventTime(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
