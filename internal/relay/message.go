// Package relay moves events between Kronos and Redis Streams.
package relay

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// DefaultStream is the Redis stream used when none is configured.
const DefaultStream = "kronos:events"

// DefaultGroup is the consumer group used by ingesters.
const DefaultGroup = "kronos-ingest"

// Message is the payload carried in the "data" field of a Redis stream
// entry.
type Message struct {
	Namespace string       `json:"namespace,omitempty"`
	Stream    string       `json:"stream"`
	Event     stream.Event `json:"event"`
}

func (m Message) encode() ([]byte, error) {
	if m.Stream == "" {
		return nil, errors.New("relay message requires a stream")
	}
	return json.Marshal(m)
}

func decodeMessage(data []byte) (Message, error) {
	var m Message
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return Message{}, err
	}
	if m.Stream == "" {
		return Message{}, errors.New("relay message without stream")
	}
	return m, nil
}
