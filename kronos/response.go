package kronos

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// Response is the decoded JSON body of a non-streaming request.
type Response map[string]any

// Success reports the server's "@success" flag. Responses without the flag
// (the index endpoint on older servers) count as successful.
func (r Response) Success() bool {
	v, ok := r[stream.SuccessField]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	return ok && b
}

// Took returns the server-reported processing time, if any.
func (r Response) Took() string {
	switch v := r["@took"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Counts returns the per-backend counters reported for stream, e.g.
// {"memory": {"num_deleted": 3}}.
func (r Response) Counts(streamName string) map[string]map[string]int64 {
	backends, ok := r[streamName].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]int64, len(backends))
	for backend, raw := range backends {
		fields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		counts := make(map[string]int64, len(fields))
		for name, v := range fields {
			if n, ok := toInt(v); ok {
				counts[name] = n
			}
		}
		out[backend] = counts
	}
	return out
}

// Total sums one counter ("num_deleted", "num_inserted") across backends.
func (r Response) Total(streamName, counter string) int64 {
	var total int64
	for _, counts := range r.Counts(streamName) {
		total += counts[counter]
	}
	return total
}

// ResponseError is returned when the server answers with "@success": false.
type ResponseError struct {
	Op       string
	Response Response
}

func (e *ResponseError) Error() string {
	if errs, ok := e.Response["@errors"]; ok {
		return fmt.Sprintf("%s: request unsuccessful: %v", e.Op, errs)
	}
	return fmt.Sprintf("%s: request unsuccessful", e.Op)
}

// SchemaResponse is the result of InferSchema.
type SchemaResponse struct {
	Stream string         `json:"stream"`
	Schema map[string]any `json:"schema"`
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
