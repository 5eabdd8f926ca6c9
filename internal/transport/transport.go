// Package transport issues HTTP requests to a Kronos server, either decoding
// one JSON document or streaming an NDJSON body into a stream.Stream.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/internal/metrics"
	"github.com/oremus-labs/kronos-go/internal/ndjson"
	"github.com/oremus-labs/kronos-go/kronos/kerrors"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

const (
	chunkSize    = 16 * 1024
	errorBodyMax = 512
)

// Options configures a Transport.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds non-streaming requests end to end and streaming requests
	// until response headers arrive. Zero disables it.
	Timeout   time.Duration
	UserAgent string
}

// Transport is safe for concurrent use.
type Transport struct {
	base      string
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

// New validates opts and returns a Transport.
func New(opts Options) (*Transport, error) {
	u, err := ParseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "kronos-go"
	}
	return &Transport{
		base:      strings.TrimRight(u.String(), "/"),
		http:      httpClient,
		timeout:   opts.Timeout,
		userAgent: ua,
	}, nil
}

// ParseBaseURL accepts "host:port" or a full URL and defaults the scheme to
// http. Query strings and fragments are dropped.
func ParseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, kerrors.Misuse("kronos server url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, kerrors.Misuse("invalid kronos server url %q: %v", raw, err)
	}
	if u.Host == "" {
		return nil, kerrors.Misuse("invalid kronos server url %q: missing host", raw)
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// BaseURL returns the normalised server URL.
func (t *Transport) BaseURL() string {
	return t.base
}

// Do performs a request and decodes the single JSON document in the body
// into dest. A nil payload issues a GET, anything else a JSON POST.
func (t *Transport) Do(ctx context.Context, path string, payload, dest any) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	resp, op, err := t.send(ctx, path, payload, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &kerrors.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if dest == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return &kerrors.DecodeError{Status: resp.StatusCode, Err: err}
	}
	return nil
}

// Stream performs a request whose body is NDJSON. Connection failures and
// non-2xx statuses are returned before any stream exists. Once the stream
// is returned, records are pushed from a background goroutine as chunks
// arrive; a malformed line fails the stream and aborts the connection.
func (t *Transport) Stream(ctx context.Context, path string, payload any) (*stream.Stream, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	var headerTimer *time.Timer
	if t.timeout > 0 {
		headerTimer = time.AfterFunc(t.timeout, cancel)
	}
	resp, op, err := t.send(reqCtx, path, payload, "application/x-ndjson, application/json")
	if headerTimer != nil && !headerTimer.Stop() && ctx.Err() == nil {
		// Header timeout, not caller cancellation: keep it retryable.
		if resp != nil {
			resp.Body.Close()
		}
		cancel()
		return nil, &kerrors.TransportError{Op: op, Err: fmt.Errorf("no response within %s", t.timeout)}
	}
	if err != nil {
		cancel()
		return nil, err
	}

	s := stream.New()
	go t.pump(cancel, op, path, resp.Body, s)
	return s, nil
}

func (t *Transport) pump(cancel context.CancelFunc, op, path string, body io.ReadCloser, s *stream.Stream) {
	defer cancel()
	defer body.Close()

	var (
		split ndjson.Splitter
		buf   = make([]byte, chunkSize)
		count int
	)
	emit := func(line string) error {
		rec, ok, err := ndjson.Decode(line)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		kind := "event"
		if rec.IsText() {
			kind = "text"
		}
		metrics.ObserveRecord(path, kind)
		count++
		s.Push(rec)
		return nil
	}
	fail := func(err error) {
		metrics.ObserveStream(path, false)
		logutil.Error("kronos stream failed", err, map[string]interface{}{
			"op":      op,
			"records": count,
		})
		s.Fail(err)
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range split.Feed(buf[:n]) {
				if derr := emit(line); derr != nil {
					fail(derr)
					return
				}
			}
		}
		if errors.Is(err, io.EOF) {
			if last, ok := split.Flush(); ok {
				if derr := emit(last); derr != nil {
					fail(derr)
					return
				}
			}
			metrics.ObserveStream(path, true)
			logutil.Debug("kronos stream completed", map[string]interface{}{
				"op":      op,
				"records": count,
			})
			s.Complete()
			return
		}
		if err != nil {
			fail(&kerrors.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)})
			return
		}
	}
}

func (t *Transport) send(ctx context.Context, path string, payload any, accept string) (*http.Response, string, error) {
	method := http.MethodGet
	var body io.Reader
	if payload != nil {
		method = http.MethodPost
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, method + " " + path, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	op := method + " " + path

	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return nil, op, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", t.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		metrics.ObserveRequest(path, 0, time.Since(start))
		logutil.Debug("kronos request failed", map[string]interface{}{
			"op":    op,
			"error": err.Error(),
		})
		return nil, op, &kerrors.TransportError{Op: op, Err: err}
	}
	metrics.ObserveRequest(path, resp.StatusCode, time.Since(start))
	logutil.Debug("kronos request", map[string]interface{}{
		"op":          op,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		te := &kerrors.TransportError{Op: op, Status: resp.StatusCode}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyMax))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			te.Err = errors.New(msg)
		}
		return nil, op, te
	}
	return resp, op, nil
}
