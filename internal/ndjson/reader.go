package ndjson

import (
	"errors"
	"io"

	"github.com/oremus-labs/kronos-go/kronos/stream"
)

const readChunkSize = 32 * 1024

// Reader yields records from an NDJSON source.
type Reader struct {
	src     io.Reader
	split   Splitter
	buf     []byte
	pending []string
	eof     bool
}

// NewReader wraps src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, readChunkSize)}
}

// Next returns the next record, or io.EOF once the source is exhausted.
// Decode failures are returned as *kerrors.DecodeError and are final.
func (r *Reader) Next() (stream.Record, error) {
	for {
		for len(r.pending) > 0 {
			line := r.pending[0]
			r.pending = r.pending[1:]
			rec, ok, err := Decode(line)
			if err != nil {
				r.pending = nil
				r.eof = true
				return stream.Record{}, err
			}
			if ok {
				return rec, nil
			}
		}
		if r.eof {
			return stream.Record{}, io.EOF
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = r.split.Feed(r.buf[:n])
		}
		if errors.Is(err, io.EOF) {
			r.eof = true
			if last, ok := r.split.Flush(); ok {
				r.pending = append(r.pending, last)
			}
			continue
		}
		if err != nil {
			r.eof = true
			r.pending = nil
			return stream.Record{}, err
		}
	}
}

// ReadAll drains src and returns every record.
func ReadAll(src io.Reader) ([]stream.Record, error) {
	r := NewReader(src)
	var out []stream.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
