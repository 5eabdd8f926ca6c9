package stream

import (
	"encoding/json"
	"strconv"
)

// Reserved event fields.
const (
	IDField        = "@id"
	TimestampField = "@time"
	LibraryField   = "@library"
	SuccessField   = "@success"
)

// Event is a single Kronos event. Numbers decoded from the wire are
// json.Number so that 64-bit timestamps keep full precision.
type Event map[string]any

// ID returns the server-assigned identifier, or "" when absent.
func (e Event) ID() string {
	id, _ := e[IDField].(string)
	return id
}

// Timestamp returns the event time in 100ns ticks.
func (e Event) Timestamp() (int64, bool) {
	return toInt64(e[TimestampField])
}

// Clone returns a shallow copy of the event.
func (e Event) Clone() Event {
	out := make(Event, len(e)+2)
	for k, v := range e {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Record is one decoded NDJSON line: either a JSON event or an opaque string
// (stream listings are sent as plain names).
type Record struct {
	Event Event
	Text  string
}

// IsText reports whether the record is an opaque string record.
func (r Record) IsText() bool {
	return r.Event == nil
}

// String renders the record the way it appeared on the wire.
func (r Record) String() string {
	if r.IsText() {
		return r.Text
	}
	b, err := json.Marshal(r.Event)
	if err != nil {
		return ""
	}
	return string(b)
}
