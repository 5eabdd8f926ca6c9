package kronos

import (
	"context"
	"net/http"
	"time"

	"github.com/oremus-labs/kronos-go/internal/retry"
	"github.com/oremus-labs/kronos-go/internal/transport"
	"github.com/oremus-labs/kronos-go/kronos/kerrors"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// Server endpoints.
const (
	PathIndex       = "/1.0/index"
	PathPut         = "/1.0/events/put"
	PathGet         = "/1.0/events/get"
	PathDelete      = "/1.0/events/delete"
	PathStreams     = "/1.0/streams"
	PathInferSchema = "/1.0/streams/infer_schema"
)

// DefaultRetryCeiling is the number of attempts Get and GetStreams make.
const DefaultRetryCeiling = retry.DefaultCeiling

// RetryPolicy bounds how streaming reads are re-issued.
type RetryPolicy struct {
	// Ceiling is the total number of attempts; 0 means DefaultRetryCeiling.
	Ceiling int
	// Delay before the second attempt, doubling up to MaxDelay. Zero retries
	// immediately.
	Delay    time.Duration
	MaxDelay time.Duration
	Jitter   bool
}

// DefaultRetryPolicy is used when Options.Retry is nil.
func DefaultRetryPolicy() RetryPolicy {
	cfg := retry.DefaultConfig()
	return RetryPolicy{Ceiling: cfg.Ceiling, Delay: cfg.Delay, MaxDelay: cfg.MaxDelay, Jitter: cfg.Jitter}
}

func (p RetryPolicy) config() retry.Config {
	return retry.Config{Ceiling: p.Ceiling, Delay: p.Delay, MaxDelay: p.MaxDelay, Jitter: p.Jitter}
}

// Options configures a Client.
type Options struct {
	// URL of the Kronos server; "host:port" is accepted.
	URL string
	// Namespace used when a call does not name one. Empty sends null and
	// lets the server pick its default.
	Namespace  string
	HTTPClient *http.Client
	// Timeout for non-streaming calls, and for streaming calls until the
	// response headers arrive.
	Timeout time.Duration
	Retry   *RetryPolicy
}

// Client talks to one Kronos server. It is safe for concurrent use.
type Client struct {
	tr        *transport.Transport
	namespace string
	retry     retry.Config
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	tr, err := transport.New(transport.Options{
		BaseURL:    opts.URL,
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.Timeout,
		UserAgent:  LibraryName + "/" + Version,
	})
	if err != nil {
		return nil, err
	}
	policy := DefaultRetryPolicy()
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	return &Client{tr: tr, namespace: opts.Namespace, retry: policy.config()}, nil
}

// URL returns the normalised server URL.
func (c *Client) URL() string {
	return c.tr.BaseURL()
}

// Namespace returns the client's default namespace.
func (c *Client) Namespace() string {
	return c.namespace
}

// Index fetches server status.
func (c *Client) Index(ctx context.Context) (Response, error) {
	return c.call(ctx, PathIndex, nil)
}

// Put writes one event to streamName. The event is copied; "@time" is
// filled with the current time when absent and "@library" is always set.
func (c *Client) Put(ctx context.Context, streamName string, event stream.Event, namespace string) (Response, error) {
	if streamName == "" {
		return nil, kerrors.Misuse("put requires a stream name")
	}
	ev := stamp(event)
	req := putRequest{
		Namespace: c.resolveNamespace(namespace),
		Events:    map[string][]stream.Event{streamName: {ev}},
	}
	return c.call(ctx, PathPut, req)
}

// Get streams the events of streamName between start and end (both
// inclusive). With opts.StartID set, the server positions the read by that
// event id instead of start.
//
// Failed connections are retried up to the client's ceiling; a stream is
// returned only once a response is flowing. A retryable failure after that
// (a malformed line or a broken connection) re-issues the same request
// under the same ceiling and keeps feeding the returned stream. Delivery is
// at least once: records received before such a failure may be delivered
// again.
func (c *Client) Get(ctx context.Context, streamName string, start, end Time, opts GetOptions) (*stream.Stream, error) {
	req, err := c.newEventsRequest(streamName, start, end, opts.Namespace, opts.StartID)
	if err != nil {
		return nil, err
	}
	if err := opts.Order.validate(); err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, kerrors.Misuse("negative limit %d", opts.Limit)
	}
	req.Order = opts.Order
	if req.Order == "" {
		req.Order = Ascending
	}
	req.Limit = opts.Limit

	return retry.Stream(ctx, retry.New("get", c.retry), func(ctx context.Context) (*stream.Stream, error) {
		return c.tr.Stream(ctx, PathGet, req)
	})
}

// Delete removes the events of streamName between start and end (both
// inclusive), or after opts.StartID when set.
func (c *Client) Delete(ctx context.Context, streamName string, start, end Time, opts DeleteOptions) (Response, error) {
	req, err := c.newEventsRequest(streamName, start, end, opts.Namespace, opts.StartID)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, PathDelete, req)
}

// GetStreams streams the names of the streams in namespace. Records are
// text records; see StreamNames for a collected form. Retries follow Get,
// so a name may be delivered twice when a read is re-issued.
func (c *Client) GetStreams(ctx context.Context, namespace string) (*stream.Stream, error) {
	req := namespaceRequest{Namespace: c.resolveNamespace(namespace)}
	return retry.Stream(ctx, retry.New("streams", c.retry), func(ctx context.Context) (*stream.Stream, error) {
		return c.tr.Stream(ctx, PathStreams, req)
	})
}

// StreamNames collects GetStreams into a slice, dropping names repeated by
// a re-issued read.
func (c *Client) StreamNames(ctx context.Context, namespace string) ([]string, error) {
	s, err := c.GetStreams(ctx, namespace)
	if err != nil {
		return nil, err
	}
	recs, err := s.Collect(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(recs))
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		name := rec.String()
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

// InferSchema asks the server for a JSON schema describing streamName.
func (c *Client) InferSchema(ctx context.Context, streamName, namespace string) (*SchemaResponse, error) {
	if streamName == "" {
		return nil, kerrors.Misuse("infer schema requires a stream name")
	}
	req := schemaRequest{Stream: streamName, Namespace: c.resolveNamespace(namespace)}
	resp, err := c.call(ctx, PathInferSchema, req)
	if err != nil {
		return nil, err
	}
	out := &SchemaResponse{Stream: streamName}
	if name, ok := resp["stream"].(string); ok {
		out.Stream = name
	}
	if schema, ok := resp["schema"].(map[string]any); ok {
		out.Schema = schema
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, path string, payload any) (Response, error) {
	var resp Response
	if err := c.tr.Do(ctx, path, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success() {
		op := "POST " + path
		if payload == nil {
			op = "GET " + path
		}
		return resp, &ResponseError{Op: op, Response: resp}
	}
	return resp, nil
}

// resolveNamespace picks the per-call namespace, then the client default,
// then null.
func (c *Client) resolveNamespace(override string) *string {
	ns := override
	if ns == "" {
		ns = c.namespace
	}
	if ns == "" {
		return nil
	}
	return &ns
}

func (c *Client) newEventsRequest(streamName string, start, end Time, namespace, startID string) (eventsRequest, error) {
	if streamName == "" {
		return eventsRequest{}, kerrors.Misuse("a stream name is required")
	}
	req := eventsRequest{
		Namespace: c.resolveNamespace(namespace),
		Stream:    streamName,
		EndTime:   end,
	}
	if startID != "" {
		req.StartID = startID
	} else {
		st := start
		req.StartTime = &st
	}
	return req, nil
}

func stamp(event stream.Event) stream.Event {
	var ev stream.Event
	if event == nil {
		ev = stream.Event{}
	} else {
		ev = event.Clone()
	}
	if v, ok := ev[stream.TimestampField]; !ok || v == nil {
		ev[stream.TimestampField] = Now()
	}
	ev[stream.LibraryField] = map[string]string{
		"name":    LibraryName,
		"version": Version,
	}
	return ev
}
