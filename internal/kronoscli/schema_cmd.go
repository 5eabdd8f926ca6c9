package kronoscli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/kronos-go/internal/validator"
	"github.com/oremus-labs/kronos-go/kronos"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

func (a *app) schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and enforce inferred stream schemas",
	}
	cmd.AddCommand(a.schemaInferCmd(), a.schemaCheckCmd())
	return cmd
}

func (a *app) schemaInferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infer <stream>",
		Short: "Print the schema the server infers for a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.InferSchema(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			props, _ := resp.Schema["properties"].(map[string]any)
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			required := map[string]bool{}
			if list, ok := resp.Schema["required"].([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						required[s] = true
					}
				}
			}
			return a.render(cmd.OutOrStdout(), resp, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "FIELD\tTYPE\tREQUIRED")
				for _, name := range names {
					typ := "-"
					if p, ok := props[name].(map[string]any); ok {
						typ = describeType(p)
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\n", name, typ, required[name])
				}
			})
		},
	}
}

func describeType(node map[string]any) string {
	typ, _ := node["type"].(string)
	if typ == "array" {
		if items, ok := node["items"].(map[string]any); ok {
			return "array<" + describeType(items) + ">"
		}
	}
	if typ == "" {
		return "any"
	}
	return typ
}

func (a *app) schemaCheckCmd() *cobra.Command {
	var rng rangeFlags
	cmd := &cobra.Command{
		Use:   "check <stream> [file]",
		Short: "Validate events against the stream's inferred schema",
		Long: `Validate the events of an NDJSON file ("-" for stdin) against the schema the
server infers for <stream>. Without a file the stream's own events in the
--start/--end range are checked. Exits non-zero when any event is invalid.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			resp, err := client.InferSchema(ctx, args[0], "")
			if err != nil {
				return err
			}
			v, err := validator.New(resp.Schema)
			if err != nil {
				return err
			}

			var report validator.Report
			if len(args) == 2 {
				src, closeFn, err := openInput(cmd, args[1])
				if err != nil {
					return err
				}
				defer closeFn()
				report, err = checkEvents(ctx, v, src)
				if err != nil {
					return err
				}
			} else {
				start, end, err := rng.parse()
				if err != nil {
					return err
				}
				s, err := client.Get(ctx, args[0], start, end, kronos.GetOptions{StartID: rng.startID})
				if err != nil {
					return err
				}
				if report, err = v.ValidateStream(ctx, s); err != nil {
					return err
				}
			}

			if err := a.render(cmd.OutOrStdout(), report, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "CHECKED\tINVALID")
				fmt.Fprintf(tw, "%d\t%d\n", report.Checked, report.Invalid)
				for _, msg := range report.Errors {
					fmt.Fprintf(tw, "\t%s\n", msg)
				}
			}); err != nil {
				return err
			}
			if report.Invalid > 0 {
				return fmt.Errorf("%d of %d events do not match the schema of %s", report.Invalid, report.Checked, args[0])
			}
			return nil
		},
	}
	rng.register(cmd)
	return cmd
}

// checkEvents validates every event of an NDJSON source.
func checkEvents(ctx context.Context, v *validator.Validator, src io.Reader) (validator.Report, error) {
	s := stream.New()
	if err := eachEvent(src, func(ev stream.Event) error {
		s.Push(stream.Record{Event: ev})
		return nil
	}); err != nil {
		return validator.Report{}, err
	}
	s.Complete()
	return v.ValidateStream(ctx, s)
}
