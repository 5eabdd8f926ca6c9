package ndjson

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/kronos-go/kronos/kerrors"
)

func feedAll(chunks ...string) []string {
	var s Splitter
	var lines []string
	for _, c := range chunks {
		lines = append(lines, s.Feed([]byte(c))...)
	}
	if last, ok := s.Flush(); ok {
		lines = append(lines, last)
	}
	return lines
}

func TestSplitterEverySplitOffset(t *testing.T) {
	t.Parallel()
	const body = "{\"a\":1}\n{\"b\":2}\n"
	want := []string{`{"a":1}`, `{"b":2}`}

	for i := 0; i <= len(body); i++ {
		for j := i; j <= len(body); j++ {
			got := feedAll(body[:i], body[i:j], body[j:])
			require.Equal(t, want, got, "split at %d,%d", i, j)
		}
	}
}

func TestSplitterByteAtATime(t *testing.T) {
	t.Parallel()
	const body = "alpha\r\nbeta\n\ngamma"
	chunks := make([]string, 0, len(body))
	for i := range body {
		chunks = append(chunks, body[i:i+1])
	}
	assert.Equal(t, []string{"alpha", "beta", "", "gamma"}, feedAll(chunks...))
}

func TestSplitterRetainsFragment(t *testing.T) {
	t.Parallel()
	var s Splitter
	assert.Empty(t, s.Feed([]byte(`{"a":`)))
	assert.Equal(t, 5, s.Pending())
	assert.Empty(t, s.Feed(nil))
	assert.Equal(t, []string{`{"a":1}`}, s.Feed([]byte("1}\n")))
	assert.Zero(t, s.Pending())

	_, ok := s.Flush()
	assert.False(t, ok)
}

func TestSplitterFlushTrailingLine(t *testing.T) {
	t.Parallel()
	var s Splitter
	assert.Equal(t, []string{"one"}, s.Feed([]byte("one\ntwo\r")))
	last, ok := s.Flush()
	require.True(t, ok)
	assert.Equal(t, "two", last)

	_, ok = s.Flush()
	assert.False(t, ok, "flush must not emit a line twice")
}

func TestDecode(t *testing.T) {
	t.Parallel()

	rec, ok, err := Decode(`{"@time":172000000000000001,"v":"x"}`)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, json.Number("172000000000000001"), rec.Event["@time"])
	ts, _ := rec.Event.Timestamp()
	assert.Equal(t, int64(172000000000000001), ts)

	rec, ok, err = Decode("  events  ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.IsText())
	assert.Equal(t, "events", rec.Text)

	_, ok, err = Decode("   ")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()
	for _, line := range []string{`{"a":`, `{"a":1} trailing`, `{oops}`} {
		_, ok, err := Decode(line)
		assert.False(t, ok, line)
		var de *kerrors.DecodeError
		require.True(t, errors.As(err, &de), line)
		assert.Equal(t, line, de.Line)
	}
}

func TestReadAll(t *testing.T) {
	t.Parallel()
	src := "{\"a\":1}\r\nstream-one\n\n{\"b\":2}"
	recs, err := ReadAll(iotest.OneByteReader(strings.NewReader(src)))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, json.Number("1"), recs[0].Event["a"])
	assert.Equal(t, "stream-one", recs[1].Text)
	assert.Equal(t, json.Number("2"), recs[2].Event["b"])
}

func TestReaderStopsAtDecodeError(t *testing.T) {
	t.Parallel()
	r := NewReader(strings.NewReader("{\"a\":1}\n{bad\n{\"c\":3}\n"))
	_, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.True(t, kerrors.IsDecode(err))

	recs, err := ReadAll(strings.NewReader("{\"a\":1}\n{bad\n"))
	assert.Len(t, recs, 1)
	assert.True(t, kerrors.IsDecode(err))
}

func TestReaderSurfacesReadErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	_, err := ReadAll(iotest.ErrReader(boom))
	assert.ErrorIs(t, err, boom)
}
