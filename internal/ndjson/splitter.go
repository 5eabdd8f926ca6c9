// Package ndjson turns a chunked byte stream into newline-delimited records.
package ndjson

import (
	"bytes"
	"strings"
)

// Splitter reassembles lines from arbitrarily sized chunks. It retains the
// trailing fragment of each chunk until the rest of the line arrives.
type Splitter struct {
	tail []byte
}

// Feed appends chunk to the retained fragment and returns every line it
// completes, in order, with a trailing "\r" removed.
func (s *Splitter) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	s.tail = append(s.tail, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.tail, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, trimCR(string(s.tail[:i])))
		s.tail = s.tail[i+1:]
	}
	if len(s.tail) == 0 {
		s.tail = nil
	} else if len(lines) > 0 {
		s.tail = append([]byte(nil), s.tail...)
	}
	return lines
}

// Flush returns the retained fragment when it is non-empty and resets the
// splitter. Call it once the source is exhausted.
func (s *Splitter) Flush() (string, bool) {
	if len(s.tail) == 0 {
		return "", false
	}
	line := trimCR(string(s.tail))
	s.tail = nil
	return line, true
}

// Pending reports the size of the retained fragment.
func (s *Splitter) Pending() int {
	return len(s.tail)
}

func trimCR(line string) string {
	return strings.TrimSuffix(line, "\r")
}
