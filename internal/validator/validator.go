// Package validator checks events against inferred stream schemas.
package validator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// maxReportedErrors caps the error messages kept in a Report.
const maxReportedErrors = 20

// Result is the outcome of validating one event.
type Result struct {
	Valid  bool     `json:"valid"`
	ID     string   `json:"id,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// Report summarises a validated stream.
type Report struct {
	Checked     int       `json:"checked"`
	Invalid     int       `json:"invalid"`
	Errors      []string  `json:"errors,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Validator holds a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// New compiles an inferred schema. Inferred schemas use the "any" type for
// mixed fields, which draft-04 does not know; those constraints are dropped.
// Fields the client stamps on Put are never required.
func New(schema map[string]any) (*Validator, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("schema is empty")
	}
	normalized := normalize(schema, true)
	delete(normalized, "$schema")

	loader := gojsonschema.NewSchemaLoader()
	loader.Draft = gojsonschema.Draft4
	loader.AutoDetect = false
	compiled, err := loader.Compile(gojsonschema.NewGoLoader(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate checks a single event.
func (v *Validator) Validate(event stream.Event) Result {
	result := Result{Valid: true, ID: event.ID()}
	res, err := v.schema.Validate(gojsonschema.NewGoLoader(map[string]any(event)))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("schema validation error: %v", err))
		return result
	}
	if !res.Valid() {
		result.Valid = false
		for _, e := range res.Errors() {
			result.Errors = append(result.Errors, e.String())
		}
	}
	return result
}

// ValidateStream consumes s and validates every event record. Text records
// are skipped. The report is returned even when the stream fails.
func (v *Validator) ValidateStream(ctx context.Context, s *stream.Stream) (Report, error) {
	var (
		mu     sync.Mutex
		report Report
	)
	err := s.Each(func(rec stream.Record) {
		if rec.IsText() {
			return
		}
		res := v.Validate(rec.Event)
		mu.Lock()
		defer mu.Unlock()
		report.Checked++
		if res.Valid {
			return
		}
		report.Invalid++
		for _, msg := range res.Errors {
			if len(report.Errors) >= maxReportedErrors {
				break
			}
			if res.ID != "" {
				msg = res.ID + ": " + msg
			}
			report.Errors = append(report.Errors, msg)
		}
	})
	if err != nil {
		return Report{}, err
	}
	waitErr := s.Wait(ctx)
	mu.Lock()
	defer mu.Unlock()
	report.GeneratedAt = time.Now()
	return report, waitErr
}

var stampedFields = map[string]bool{
	stream.IDField:        true,
	stream.TimestampField: true,
	stream.LibraryField:   true,
}

func normalize(node map[string]any, top bool) map[string]any {
	out := make(map[string]any, len(node))
	for k, val := range node {
		out[k] = val
	}
	if out["type"] == "any" {
		delete(out, "type")
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = normalize(items, false)
	}
	if props, ok := out["properties"].(map[string]any); ok {
		next := make(map[string]any, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				next[name] = normalize(pm, false)
				continue
			}
			next[name] = p
		}
		out["properties"] = next
	}
	if req := stringList(out["required"]); req != nil {
		kept := make([]string, 0, len(req))
		for _, name := range req {
			if top && stampedFields[name] {
				continue
			}
			kept = append(kept, name)
		}
		sort.Strings(kept)
		if len(kept) == 0 {
			// draft-04 rejects an empty required array.
			delete(out, "required")
		} else {
			out["required"] = kept
		}
	}
	return out
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
