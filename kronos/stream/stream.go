// Package stream implements the lazy, single-consumer record stream returned
// by streaming Kronos reads.
//
// A Stream is fed by exactly one producer (the transport goroutine reading an
// HTTP body) and consumed by exactly one callback registered with Each.
// Records pushed before the callback is registered are buffered and delivered,
// in order, as soon as it is. Completion is a one-shot signal observed through
// Done, Err or Wait; it only resolves once every buffered record has been
// handed to the consumer.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/oremus-labs/kronos-go/kronos/kerrors"
)

// State is the lifecycle position of a Stream.
type State int

const (
	// StateIdle: no consumer registered yet; records are buffered.
	StateIdle State = iota
	// StateConsuming: a consumer is registered and receives records.
	StateConsuming
	// StateCompleted: the source is exhausted and every record was delivered.
	StateCompleted
	// StateFailed: the stream failed; undelivered records were discarded.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConsuming:
		return "consuming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var errUnknownFailure = errors.New("stream failed")

// Stream is a lazy record stream. The zero value is not usable; call New.
type Stream struct {
	mu        sync.Mutex
	state     State
	buf       []Record
	fn        func(Record)
	exhausted bool
	err       error
	done      chan struct{}

	// deliverMu serialises consumer callbacks so a consumer is never invoked
	// concurrently with itself and always sees records in push order.
	deliverMu sync.Mutex
}

// New returns an empty stream with no consumer.
func New() *Stream {
	return &Stream{done: make(chan struct{})}
}

// Push appends a record. With a consumer registered the record is delivered
// before Push returns; otherwise it is buffered. Pushes after Complete or Fail
// are dropped.
func (s *Stream) Push(rec Record) {
	s.mu.Lock()
	if s.exhausted || s.state == StateFailed || s.state == StateCompleted {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, rec)
	s.mu.Unlock()
	s.flush()
}

// Complete marks the source as exhausted. The stream settles successfully
// once a consumer is registered and the buffer has drained.
func (s *Stream) Complete() {
	s.mu.Lock()
	if s.exhausted || s.state == StateFailed || s.state == StateCompleted {
		s.mu.Unlock()
		return
	}
	s.exhausted = true
	s.mu.Unlock()
	s.flush()
}

// Fail settles the stream with err and discards undelivered records. It has
// no effect once Complete has been called, even if the buffer is still
// waiting for a consumer.
func (s *Stream) Fail(err error) {
	if err == nil {
		err = errUnknownFailure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted || s.state == StateFailed || s.state == StateCompleted {
		return
	}
	s.buf = nil
	s.settleLocked(StateFailed, err)
}

// Each registers the consumer. It may be called once per stream; a second
// call returns a *kerrors.ProtocolMisuseError and leaves the first consumer
// untouched. Buffered records are delivered synchronously before Each
// returns.
func (s *Stream) Each(fn func(Record)) error {
	if fn == nil {
		return kerrors.Misuse("nil stream consumer")
	}
	s.mu.Lock()
	if s.fn != nil {
		s.mu.Unlock()
		return kerrors.Misuse("stream consumer already registered")
	}
	s.fn = fn
	if s.state == StateIdle {
		s.state = StateConsuming
	}
	s.mu.Unlock()
	s.flush()
	return nil
}

// Done is closed once the stream settles.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure after the stream settled, nil otherwise.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State reports the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the stream settles or ctx is done.
func (s *Stream) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collect registers a consumer that gathers every record and waits for the
// stream to settle. On failure the records delivered so far are returned
// alongside the error.
func (s *Stream) Collect(ctx context.Context) ([]Record, error) {
	var (
		mu  sync.Mutex
		out []Record
	)
	if err := s.Each(func(rec Record) {
		mu.Lock()
		out = append(out, rec)
		mu.Unlock()
	}); err != nil {
		return nil, err
	}
	err := s.Wait(ctx)
	mu.Lock()
	defer mu.Unlock()
	return append([]Record(nil), out...), err
}

func (s *Stream) flush() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	for {
		s.mu.Lock()
		if s.state != StateConsuming {
			s.mu.Unlock()
			return
		}
		if len(s.buf) == 0 {
			if s.exhausted {
				s.settleLocked(StateCompleted, nil)
			}
			s.mu.Unlock()
			return
		}
		rec := s.buf[0]
		s.buf[0] = Record{}
		s.buf = s.buf[1:]
		fn := s.fn
		s.mu.Unlock()

		fn(rec)
	}
}

func (s *Stream) settleLocked(state State, err error) {
	s.state = state
	s.err = err
	close(s.done)
}
