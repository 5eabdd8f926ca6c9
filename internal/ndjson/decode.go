package ndjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/oremus-labs/kronos-go/kronos/kerrors"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// Decode interprets one line. Lines beginning with "{" are JSON objects,
// other non-blank lines are opaque text records and blank lines yield
// nothing. A malformed JSON line returns a *kerrors.DecodeError.
func Decode(line string) (stream.Record, bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return stream.Record{}, false, nil
	}
	if trimmed[0] != '{' {
		return stream.Record{Text: trimmed}, true, nil
	}
	ev, err := DecodeEvent([]byte(trimmed))
	if err != nil {
		return stream.Record{}, false, &kerrors.DecodeError{Line: trimmed, Err: err}
	}
	return stream.Record{Event: ev}, true, nil
}

// DecodeEvent parses exactly one JSON object, keeping numbers as
// json.Number.
func DecodeEvent(data []byte) (stream.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var ev stream.Event
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, errors.New("expected a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return ev, nil
}
