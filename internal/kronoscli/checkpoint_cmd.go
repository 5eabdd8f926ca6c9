package kronoscli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) checkpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		Aliases: []string{"checkpoints"},
		Short:   "Inspect saved read positions",
	}

	list := &cobra.Command{
		Use:   "list [name]",
		Short: "List checkpoints, optionally for one name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openCheckpoints()
			if err != nil {
				return err
			}
			defer store.Close()
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			cps, err := store.List(cmd.Context(), name)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), cps, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "NAME\tNAMESPACE\tSTREAM\tLAST ID\tCOUNT\tUPDATED")
				for _, cp := range cps {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", cp.Name, orDash(cp.Namespace), cp.Stream, cp.LastID, cp.Count, cp.UpdatedAt.Format(time.RFC3339))
				}
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <name> <stream>",
		Short: "Forget a checkpoint so the next read starts from --start",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := a.resolvedContext()
			if err != nil {
				return err
			}
			store, err := a.openCheckpoints()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(cmd.Context(), args[0], ctx.Namespace, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint %q for %s deleted.\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
