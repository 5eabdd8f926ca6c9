package mockserver

import "sync"

// Faults injects failures into the mock server.
type Faults struct {
	mu        sync.Mutex
	failNext  map[string]failure
	corrupt   map[string]lineFault
	truncated map[string]lineFault
	requests  map[string]int
}

type failure struct {
	remaining int
	status    int
}

// lineFault breaks a read after `after` events. remaining counts the reads
// left to break; 0 breaks every read.
type lineFault struct {
	after     int
	remaining int
}

func newFaults() *Faults {
	return &Faults{
		failNext:  make(map[string]failure),
		corrupt:   make(map[string]lineFault),
		truncated: make(map[string]lineFault),
		requests:  make(map[string]int),
	}
}

// FailNext answers the next n requests to path with status.
func (f *Faults) FailNext(path string, n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 {
		delete(f.failNext, path)
		return
	}
	f.failNext[path] = failure{remaining: n, status: status}
}

// CorruptStream makes reads of stream emit a malformed JSON line after
// `after` valid events.
func (f *Faults) CorruptStream(stream string, after int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.corrupt[stream] = lineFault{after: after}
}

// CorruptNext is CorruptStream limited to the next n reads of stream.
func (f *Faults) CorruptNext(stream string, after, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 {
		delete(f.corrupt, stream)
		return
	}
	f.corrupt[stream] = lineFault{after: after, remaining: n}
}

// TruncateStream makes reads of stream end mid-record after `after` valid
// events.
func (f *Faults) TruncateStream(stream string, after int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncated[stream] = lineFault{after: after}
}

// Requests returns how many requests reached path, failed ones included.
func (f *Faults) Requests(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

// Clear removes every fault and resets request counters.
func (f *Faults) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = make(map[string]failure)
	f.corrupt = make(map[string]lineFault)
	f.truncated = make(map[string]lineFault)
	f.requests = make(map[string]int)
}

// take counts a request and reports the status to fail it with, or 0.
func (f *Faults) take(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[path]++
	fail, ok := f.failNext[path]
	if !ok {
		return 0
	}
	fail.remaining--
	if fail.remaining <= 0 {
		delete(f.failNext, path)
	} else {
		f.failNext[path] = fail
	}
	return fail.status
}

// corruption reports the fault for one read of stream and uses it up when
// it is limited.
func (f *Faults) corruption(stream string) (after int, corrupt bool, truncate bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lf, ok := f.corrupt[stream]; ok {
		switch {
		case lf.remaining == 1:
			delete(f.corrupt, stream)
		case lf.remaining > 1:
			lf.remaining--
			f.corrupt[stream] = lf
		}
		return lf.after, true, false
	}
	if lf, ok := f.truncated[stream]; ok {
		return lf.after, false, true
	}
	return 0, false, false
}
