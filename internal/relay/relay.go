package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/internal/metrics"
	"github.com/oremus-labs/kronos-go/kronos"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// Exporter publishes the events of a Kronos stream.
type Exporter struct {
	pub Publisher
}

// NewExporter wraps a publisher.
func NewExporter(pub Publisher) *Exporter {
	return &Exporter{pub: pub}
}

// Export consumes s and publishes every event record to the publisher.
// Publishing stops at the first failure; the stream is still drained so it
// settles. The number of published events is returned alongside the stream
// error or, failing that, the publish error.
func (e *Exporter) Export(ctx context.Context, s *stream.Stream, namespace, kronosStream string) (int, error) {
	if e == nil || e.pub == nil {
		return 0, errors.New("relay exporter not configured")
	}
	var (
		mu         sync.Mutex
		published  int
		publishErr error
	)
	err := s.Each(func(rec stream.Record) {
		mu.Lock()
		defer mu.Unlock()
		if publishErr != nil || rec.IsText() {
			return
		}
		msg := Message{Namespace: namespace, Stream: kronosStream, Event: rec.Event}
		if err := e.pub.Publish(ctx, msg); err != nil {
			metrics.ObserveRelay("export", false)
			publishErr = fmt.Errorf("publish event %s: %w", rec.Event.ID(), err)
			return
		}
		metrics.ObserveRelay("export", true)
		published++
	})
	if err != nil {
		return 0, err
	}
	waitErr := s.Wait(ctx)
	mu.Lock()
	defer mu.Unlock()
	if waitErr != nil {
		return published, waitErr
	}
	return published, publishErr
}

// Sink receives ingested events. *kronos.Client satisfies it.
type Sink interface {
	Put(ctx context.Context, streamName string, event stream.Event, namespace string) (kronos.Response, error)
}

// Ingester moves messages from a Source into Kronos.
type Ingester struct {
	src  Source
	sink Sink
}

// NewIngester builds an ingester.
func NewIngester(src Source, sink Sink) *Ingester {
	return &Ingester{src: src, sink: sink}
}

// Step handles at most one message. It reports whether a message was
// consumed. A failed Put leaves the message unacknowledged and returns the
// error; undecodable entries are acknowledged and skipped.
func (in *Ingester) Step(ctx context.Context) (bool, error) {
	msg, id, err := in.src.Next(ctx)
	if err != nil {
		if id == "" {
			return false, err
		}
		logutil.Warn("dropping undecodable relay entry", map[string]interface{}{
			"entry": id,
			"error": err.Error(),
		})
		metrics.ObserveRelay("ingest", false)
		return true, in.src.Ack(ctx, id)
	}
	if msg == nil {
		return false, nil
	}
	if _, err := in.sink.Put(ctx, msg.Stream, msg.Event, msg.Namespace); err != nil {
		metrics.ObserveRelay("ingest", false)
		return true, fmt.Errorf("put %s into %s: %w", id, msg.Stream, err)
	}
	metrics.ObserveRelay("ingest", true)
	logutil.Debug("relay entry ingested", map[string]interface{}{
		"entry":  id,
		"stream": msg.Stream,
	})
	return true, in.src.Ack(ctx, id)
}

// Run calls Step until ctx is cancelled or a Put fails. Unacknowledged
// messages are replayed the next time a consumer with the same name starts.
func (in *Ingester) Run(ctx context.Context) (int, error) {
	var count int
	for {
		if err := ctx.Err(); err != nil {
			return count, nil
		}
		consumed, err := in.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return count, nil
			}
			return count, err
		}
		if consumed {
			count++
			continue
		}
		select {
		case <-ctx.Done():
			return count, nil
		case <-time.After(50 * time.Millisecond):
		}
	}
}
