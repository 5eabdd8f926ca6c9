// Package mockserver is an in-memory Kronos server for tests and local
// development. It implements the six public endpoints with the range,
// ordering and cursor semantics of the real storage backends, and can inject
// failures.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oremus-labs/kronos-go/internal/logutil"
)

// Version is reported by the index endpoint.
const Version = "mock"

// Options configures the mock server.
type Options struct {
	// DefaultNamespace replaces a null namespace; defaults to "kronos".
	DefaultNamespace string
	// FlushEvery flushes streamed responses after this many records; 0 flushes
	// only at the end.
	FlushEvery int
}

// Server wraps the Gin engine and the in-memory store.
type Server struct {
	engine     *gin.Engine
	store      *Store
	faults     *Faults
	namespace  string
	flushEvery int
}

// New constructs a Server with all routes configured.
// Callers pick the gin mode.
func New(opts Options) *Server {
	s := &Server{
		store:      NewStore(),
		faults:     newFaults(),
		namespace:  opts.DefaultNamespace,
		flushEvery: opts.FlushEvery,
	}
	if s.namespace == "" {
		s.namespace = DefaultNamespace
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), metricsMiddleware(), requestLogger(), faultMiddleware(s.faults))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/1.0/index", s.index)
	engine.POST("/1.0/events/put", s.putEvents)
	engine.POST("/1.0/events/get", s.getEvents)
	engine.POST("/1.0/events/delete", s.deleteEvents)
	engine.POST("/1.0/streams", s.listStreams)
	engine.POST("/1.0/streams/infer_schema", s.inferSchema)

	s.engine = engine
	return s
}

// Engine exposes the underlying Gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Store exposes the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Faults exposes failure injection.
func (s *Server) Faults() *Faults {
	return s.faults
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.engine,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event reads stream for as long as they need.
		IdleTimeout: 60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logutil.Info("mock kronos server listening", map[string]interface{}{"addr": addr})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type eventsRequest struct {
	Namespace *string      `json:"namespace"`
	Stream    string       `json:"stream"`
	StartTime *json.Number `json:"start_time"`
	StartID   string       `json:"start_id"`
	EndTime   *json.Number `json:"end_time"`
	Order     string       `json:"order"`
	Limit     int          `json:"limit"`
}

type putRequest struct {
	Namespace *string                     `json:"namespace"`
	Events    map[string][]map[string]any `json:"events"`
}

type streamRequest struct {
	Namespace *string `json:"namespace"`
	Stream    string  `json:"stream"`
}

func (s *Server) resolve(ns *string) string {
	if ns == nil || *ns == "" {
		return s.namespace
	}
	return *ns
}

func (r eventsRequest) query() (Query, error) {
	if r.Stream == "" {
		return Query{}, errors.New("stream is required")
	}
	if r.EndTime == nil {
		return Query{}, errors.New("end_time is required")
	}
	end, err := r.EndTime.Int64()
	if err != nil {
		return Query{}, fmt.Errorf("end_time: %w", err)
	}
	q := Query{EndTime: end, StartID: r.StartID, Limit: r.Limit}
	switch r.Order {
	case "", "ascending":
	case "descending":
		q.Descending = true
	default:
		return Query{}, fmt.Errorf("unknown order %q", r.Order)
	}
	if r.StartID == "" {
		if r.StartTime == nil {
			return Query{}, errors.New("start_time or start_id is required")
		}
		if q.StartTime, err = r.StartTime.Int64(); err != nil {
			return Query{}, fmt.Errorf("start_time: %w", err)
		}
	}
	return q, nil
}

func (s *Server) index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"@success": true,
		"status":   "kronosd",
		"version":  Version,
		"@took":    took(c),
	})
}

func (s *Server) putEvents(c *gin.Context) {
	var req putRequest
	if err := decodeBody(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	ns := s.resolve(req.Namespace)
	resp := gin.H{}
	var allErrs []string
	for stream, events := range req.Events {
		n, errs := s.store.Insert(ns, stream, events)
		allErrs = append(allErrs, errs...)
		resp[stream] = gin.H{Backend: gin.H{"num_inserted": n}}
	}
	resp["@success"] = len(allErrs) == 0
	if len(allErrs) > 0 {
		resp["@errors"] = allErrs
	}
	resp["@took"] = took(c)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getEvents(c *gin.Context) {
	var req eventsRequest
	if err := decodeBody(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	q, err := req.query()
	if err != nil {
		badRequest(c, err)
		return
	}
	events := s.store.Retrieve(s.resolve(req.Namespace), req.Stream, q)
	s.writeEvents(c, req.Stream, events)
}

func (s *Server) deleteEvents(c *gin.Context) {
	var req eventsRequest
	if err := decodeBody(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	req.Order, req.Limit = "", 0
	q, err := req.query()
	if err != nil {
		badRequest(c, err)
		return
	}
	n := s.store.Delete(s.resolve(req.Namespace), req.Stream, q)
	c.JSON(http.StatusOK, gin.H{
		"@success": true,
		"@took":    took(c),
		req.Stream: gin.H{Backend: gin.H{"num_deleted": n}},
	})
}

func (s *Server) listStreams(c *gin.Context) {
	var req streamRequest
	if err := decodeBody(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	for _, name := range s.store.Streams(s.resolve(req.Namespace)) {
		if _, err := fmt.Fprintf(c.Writer, "%s\r\n", name); err != nil {
			return
		}
	}
	c.Writer.Flush()
}

func (s *Server) inferSchema(c *gin.Context) {
	var req streamRequest
	if err := decodeBody(c, &req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Stream == "" {
		badRequest(c, errors.New("stream is required"))
		return
	}
	ns := s.resolve(req.Namespace)
	c.JSON(http.StatusOK, gin.H{
		"@success":  true,
		"@took":     took(c),
		"stream":    req.Stream,
		"namespace": ns,
		"schema":    InferSchema(s.store.Latest(ns, req.Stream, schemaSample)),
	})
}

func (s *Server) writeEvents(c *gin.Context, stream string, events []map[string]any) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	w := c.Writer
	after, corrupt, truncate := s.faults.corruption(stream)

	for i, ev := range events {
		if c.Request.Context().Err() != nil {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			logutil.Error("marshal event", err, map[string]interface{}{"stream": stream})
			return
		}
		if (corrupt || truncate) && i == after {
			s.writeFault(c, corrupt, data)
			return
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return
		}
		if s.flushEvery > 0 && (i+1)%s.flushEvery == 0 {
			w.Flush()
		}
	}
	if (corrupt || truncate) && after >= len(events) {
		s.writeFault(c, corrupt, []byte(`{"@id":"truncated"}`))
		return
	}
	w.Flush()
}

func (s *Server) writeFault(c *gin.Context, corrupt bool, data []byte) {
	if corrupt {
		_, _ = c.Writer.Write([]byte("{\"@id\": corrupted\n"))
	} else {
		_, _ = c.Writer.Write(data[:len(data)/2])
	}
	c.Writer.Flush()
}

func decodeBody(c *gin.Context, dst any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"@success": false, "@errors": []string{err.Error()}})
}

func took(c *gin.Context) string {
	start, ok := c.Get("start")
	if t, isTime := start.(time.Time); ok && isTime {
		return fmt.Sprintf("%.3fms", float64(time.Since(t).Microseconds())/1000)
	}
	return "0ms"
}
