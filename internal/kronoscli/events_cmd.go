package kronoscli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/kronos-go/internal/checkpoint"
	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/internal/ndjson"
	"github.com/oremus-labs/kronos-go/kronos"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

// rangeFlags selects the events of a get or delete.
type rangeFlags struct {
	start   string
	end     string
	startID string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.start, "start", "0", "Start time (ticks, RFC 3339 or YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&r.end, "end", "now", "End time (ticks, RFC 3339, YYYY-MM-DD or now), inclusive")
	cmd.Flags().StringVar(&r.startID, "start-id", "", "Start strictly after this event id instead of --start")
}

func (r *rangeFlags) parse() (kronos.Time, kronos.Time, error) {
	start, err := kronos.ParseTime(r.start)
	if err != nil {
		return 0, 0, fmt.Errorf("--start: %w", err)
	}
	end := kronos.Now()
	if !strings.EqualFold(r.end, "now") {
		if end, err = kronos.ParseTime(r.end); err != nil {
			return 0, 0, fmt.Errorf("--end: %w", err)
		}
	}
	return start, end, nil
}

func (a *app) indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Show server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Index(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(resp))
			for k := range resp {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			return a.render(cmd.OutOrStdout(), resp, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "KEY\tVALUE")
				for _, k := range keys {
					fmt.Fprintf(tw, "%s\t%s\n", k, cellValue(resp[k]))
				}
			})
		},
	}
}

type putSummary struct {
	Stream   string `json:"stream"`
	Sent     int    `json:"sent"`
	Inserted int64  `json:"inserted"`
}

func (a *app) putCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "put <stream> [event-json]",
		Short: "Write events to a stream",
		Long: `Write one event given as a JSON argument, or every event of an NDJSON file
(--file, "-" for stdin). "@time" defaults to the current time.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 2) == (file != "") {
				return fmt.Errorf("provide either an event argument or --file")
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			summary := putSummary{Stream: args[0]}
			put := func(ev stream.Event) error {
				resp, err := client.Put(ctx, args[0], ev, "")
				if err != nil {
					return err
				}
				summary.Sent++
				summary.Inserted += resp.Total(args[0], "num_inserted")
				return nil
			}

			if len(args) == 2 {
				ev, err := ndjson.DecodeEvent([]byte(args[1]))
				if err != nil {
					return err
				}
				if err := put(ev); err != nil {
					return err
				}
			} else {
				src, closeFn, err := openInput(cmd, file)
				if err != nil {
					return err
				}
				defer closeFn()
				if err := eachEvent(src, put); err != nil {
					return err
				}
			}
			return a.render(cmd.OutOrStdout(), summary, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "STREAM\tSENT\tINSERTED")
				fmt.Fprintf(tw, "%s\t%d\t%d\n", summary.Stream, summary.Sent, summary.Inserted)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "NDJSON file of events, - for stdin")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	var (
		rng        rangeFlags
		order      string
		limit      int
		checkpoint string
	)
	cmd := &cobra.Command{
		Use:   "get <stream>",
		Short: "Stream events from a stream",
		Long: `Stream the events of a time range. JSON output is NDJSON, one event per
line, written as records arrive. With --checkpoint the read resumes after the
last event delivered under that name and the position is saved afterwards.
The current context's checkpoint is used when the flag is not given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGet(cmd, args[0], rng, order, limit, checkpoint)
		},
	}
	rng.register(cmd)
	cmd.Flags().StringVar(&order, "order", "asc", "Order: asc|desc")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events (0 for all)")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Resume from and save to this named checkpoint")
	return cmd
}

func (a *app) runGet(cmd *cobra.Command, streamName string, rng rangeFlags, order string, limit int, checkpointName string) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	if checkpointName == "" {
		resolved, err := a.resolvedContext()
		if err != nil {
			return err
		}
		checkpointName = resolved.Checkpoint
	}
	start, end, err := rng.parse()
	if err != nil {
		return err
	}
	ord, err := kronos.ParseOrder(order)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	opts := kronos.GetOptions{Order: ord, StartID: rng.startID, Limit: limit}

	var (
		store   *checkpoint.Store
		tracker checkpoint.Tracker
	)
	if checkpointName != "" {
		store, err = a.openCheckpoints()
		if err != nil {
			return err
		}
		defer store.Close()
		cp, ok, err := store.Get(ctx, checkpointName, client.Namespace(), streamName)
		if err != nil {
			return err
		}
		if ok && opts.StartID == "" {
			opts.StartID = cp.LastID
			logutil.Info("resuming from checkpoint", map[string]interface{}{
				"checkpoint": checkpointName,
				"stream":     streamName,
				"last_id":    cp.LastID,
			})
		}
	}

	s, err := client.Get(ctx, streamName, start, end, opts)
	if err != nil {
		return err
	}
	printer := a.newEventPrinter(cmd.OutOrStdout())
	consume := printer.print
	if store != nil {
		consume = tracker.Wrap(consume)
	}
	if err := s.Each(consume); err != nil {
		return err
	}
	waitErr := s.Wait(ctx)
	if store != nil {
		// Save what was printed even when the read was interrupted.
		if _, err := tracker.Commit(context.WithoutCancel(ctx), store, checkpointName, client.Namespace(), streamName); err != nil {
			logutil.Error("failed to save checkpoint", err, map[string]interface{}{"checkpoint": checkpointName})
		}
	}
	if err := printer.finish(); err != nil && waitErr == nil {
		return err
	}
	return waitErr
}

func (a *app) deleteCmd() *cobra.Command {
	var rng rangeFlags
	cmd := &cobra.Command{
		Use:   "delete <stream>",
		Short: "Delete events from a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			start, end, err := rng.parse()
			if err != nil {
				return err
			}
			resp, err := client.Delete(cmd.Context(), args[0], start, end, kronos.DeleteOptions{StartID: rng.startID})
			if err != nil {
				return err
			}
			counts := resp.Counts(args[0])
			backends := make([]string, 0, len(counts))
			for name := range counts {
				backends = append(backends, name)
			}
			sort.Strings(backends)
			return a.render(cmd.OutOrStdout(), counts, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "BACKEND\tDELETED")
				for _, name := range backends {
					fmt.Fprintf(tw, "%s\t%d\n", name, counts[name]["num_deleted"])
				}
			})
		},
	}
	rng.register(cmd)
	return cmd
}

func (a *app) streamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List the streams of a namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			names, err := client.StreamNames(cmd.Context(), "")
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), names, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "STREAM")
				for _, name := range names {
					fmt.Fprintln(tw, name)
				}
			})
		},
	}
}

// eventPrinter writes records in the selected format. JSON is streamed;
// tables and YAML are written by finish.
type eventPrinter struct {
	mu     sync.Mutex
	format string
	w      io.Writer
	enc    *json.Encoder
	tw     *tabwriter.Writer
	events []interface{}
	err    error
}

func (a *app) newEventPrinter(w io.Writer) *eventPrinter {
	p := &eventPrinter{format: strings.ToLower(a.output), w: w}
	switch p.format {
	case formatJSON:
		p.enc = json.NewEncoder(w)
	case formatYAML:
	default:
		p.tw = newTable(w)
		fmt.Fprintln(p.tw, "ID\tTIME\tFIELDS")
	}
	return p
}

func (p *eventPrinter) print(rec stream.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	var value interface{} = rec.Event
	if rec.IsText() {
		value = rec.Text
	}
	switch {
	case p.enc != nil:
		p.err = p.enc.Encode(value)
	case p.tw != nil:
		if rec.IsText() {
			fmt.Fprintf(p.tw, "-\t-\t%s\n", rec.Text)
			return
		}
		fmt.Fprintf(p.tw, "%s\t%s\t%s\n", rec.Event.ID(), eventTime(rec.Event), compact(userFields(rec.Event)))
	default:
		p.events = append(p.events, value)
	}
}

func (p *eventPrinter) finish() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	switch {
	case p.tw != nil:
		return p.tw.Flush()
	case p.enc == nil:
		if p.events == nil {
			p.events = []interface{}{}
		}
		return printYAML(p.w, p.events)
	}
	return nil
}

func eventTime(ev stream.Event) string {
	ticks, ok := ev.Timestamp()
	if !ok {
		return "-"
	}
	return kronos.Time(ticks).Time().UTC().Format(time.RFC3339Nano)
}

// userFields drops the reserved "@" fields for display.
func userFields(ev stream.Event) map[string]interface{} {
	out := make(map[string]interface{}, len(ev))
	for k, v := range ev {
		if strings.HasPrefix(k, "@") {
			continue
		}
		out[k] = v
	}
	return out
}

func cellValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return compact(val)
	}
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// eachEvent calls fn for every event line of an NDJSON source.
func eachEvent(src io.Reader, fn func(stream.Event) error) error {
	r := ndjson.NewReader(src)
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.IsText() {
			return fmt.Errorf("expected a JSON object, got %q", rec.Text)
		}
		if err := fn(rec.Event); err != nil {
			return err
		}
	}
}

func (a *app) openCheckpoints() (*checkpoint.Store, error) {
	return checkpoint.Open(a.env.CheckpointDSN, a.env.CheckpointDriver)
}
