package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/kronos-go/kronos/kerrors"
)

func textRecords(names ...string) []Record {
	out := make([]Record, 0, len(names))
	for _, n := range names {
		out = append(out, Record{Text: n})
	}
	return out
}

func texts(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Text)
	}
	return out
}

func TestDeliveryOrderIndependentOfRegistration(t *testing.T) {
	t.Parallel()
	input := textRecords("a", "b", "c", "d", "e")

	// Register the consumer after k pushes, for every k.
	for k := 0; k <= len(input); k++ {
		s := New()
		var got []string
		consume := func(r Record) { got = append(got, r.Text) }

		for i, rec := range input {
			if i == k {
				require.NoError(t, s.Each(consume))
			}
			s.Push(rec)
		}
		if k == len(input) {
			require.NoError(t, s.Each(consume))
		}
		s.Complete()

		require.NoError(t, s.Wait(context.Background()), "k=%d", k)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got, "k=%d", k)
		assert.Equal(t, StateCompleted, s.State())
	}
}

func TestCompletionWaitsForConsumer(t *testing.T) {
	t.Parallel()
	s := New()
	s.Push(Record{Text: "only"})
	s.Complete()

	select {
	case <-s.Done():
		t.Fatal("stream settled before a consumer drained it")
	default:
	}
	assert.Equal(t, StateIdle, s.State())

	var got []string
	require.NoError(t, s.Each(func(r Record) { got = append(got, r.Text) }))
	select {
	case <-s.Done():
	default:
		t.Fatal("stream should settle once the buffer drains")
	}
	assert.Equal(t, []string{"only"}, got)
	assert.NoError(t, s.Err())
}

func TestEmptyStreamCompletes(t *testing.T) {
	t.Parallel()
	s := New()
	s.Complete()
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSecondConsumerIsMisuse(t *testing.T) {
	t.Parallel()
	s := New()
	var first []string
	require.NoError(t, s.Each(func(r Record) { first = append(first, r.Text) }))

	err := s.Each(func(Record) { t.Fatal("second consumer must never run") })
	require.Error(t, err)
	assert.True(t, kerrors.IsProtocolMisuse(err))

	s.Push(Record{Text: "x"})
	s.Push(Record{Text: "y"})
	s.Complete()
	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, []string{"x", "y"}, first)
}

func TestNilConsumerIsMisuse(t *testing.T) {
	t.Parallel()
	err := New().Each(nil)
	assert.True(t, kerrors.IsProtocolMisuse(err))
}

func TestFailBeforeRegistrationDiscardsBuffer(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := New()
	s.Push(Record{Text: "lost"})
	s.Fail(boom)

	select {
	case <-s.Done():
	default:
		t.Fatal("Fail must settle immediately")
	}

	var got []string
	require.NoError(t, s.Each(func(r Record) { got = append(got, r.Text) }))
	assert.Empty(t, got)
	assert.ErrorIs(t, s.Wait(context.Background()), boom)
	assert.Equal(t, StateFailed, s.State())
}

func TestFailAfterRegistrationKeepsDelivered(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := New()
	var got []string
	require.NoError(t, s.Each(func(r Record) { got = append(got, r.Text) }))

	s.Push(Record{Text: "a"})
	s.Push(Record{Text: "b"})
	s.Fail(boom)
	s.Push(Record{Text: "after"})
	s.Complete()

	assert.ErrorIs(t, s.Wait(context.Background()), boom)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCompleteIsOneShot(t *testing.T) {
	t.Parallel()
	s := New()
	s.Complete()
	s.Push(Record{Text: "late"})
	s.Fail(errors.New("late failure"))

	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, StateCompleted, s.State())
}

func TestFailAfterCompleteKeepsBufferedRecords(t *testing.T) {
	t.Parallel()
	s := New()
	s.Push(Record{Text: "a"})
	s.Push(Record{Text: "b"})
	s.Complete()
	s.Fail(errors.New("late failure"))
	assert.Equal(t, StateIdle, s.State())

	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Record{{Text: "a"}, {Text: "b"}}, recs)
	assert.Equal(t, StateCompleted, s.State())
}

func TestFailWithNilError(t *testing.T) {
	t.Parallel()
	s := New()
	s.Fail(nil)
	assert.Error(t, s.Err())
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()
	s := New()
	require.NoError(t, s.Each(func(Record) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestConcurrentProducerAndLateConsumer(t *testing.T) {
	t.Parallel()
	const n = 500
	s := New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.Push(Record{Event: Event{"seq": i}})
		}
		s.Complete()
	}()

	time.Sleep(time.Millisecond)
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	wg.Wait()

	require.Len(t, recs, n)
	for i, r := range recs {
		assert.Equal(t, i, r.Event["seq"])
	}
}

func TestCollectReturnsPartialOnFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := New()
	go func() {
		s.Push(Record{Text: "a"})
		// Give Collect a chance to register first.
		time.Sleep(5 * time.Millisecond)
		s.Push(Record{Text: "b"})
		s.Fail(boom)
	}()
	recs, err := s.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Subset(t, []string{"a", "b"}, texts(recs))
}

func TestRecordString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "events", Record{Text: "events"}.String())
	assert.Equal(t, `{"a":1}`, Record{Event: Event{"a": 1}}.String())
	assert.True(t, Record{Text: "x"}.IsText())
}

func TestEventAccessors(t *testing.T) {
	t.Parallel()
	e := Event{IDField: "abc", TimestampField: "172000000000000000"}
	assert.Equal(t, "abc", e.ID())
	ts, ok := e.Timestamp()
	require.True(t, ok)
	assert.Equal(t, int64(172000000000000000), ts)

	clone := e.Clone()
	clone["extra"] = true
	_, leaked := e["extra"]
	assert.False(t, leaked)
}
