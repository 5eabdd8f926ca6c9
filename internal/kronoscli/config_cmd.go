package kronoscli

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI contexts",
	}
	cmd.AddCommand(a.configSetContextCmd(), a.configUseContextCmd(), a.configCurrentContextCmd(), a.configViewCmd())
	return cmd
}

func (a *app) configSetContextCmd() *cobra.Command {
	var (
		server       string
		namespace    string
		timeout      time.Duration
		retryCeiling int
		checkpoint   string
		makeCurrent  bool
	)
	cmd := &cobra.Command{
		Use:   "set-context <name>",
		Short: "Create or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout < 0 || retryCeiling < 0 {
				return fmt.Errorf("--timeout and --retry-ceiling must not be negative")
			}
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			if _, exists := cfg.Contexts[args[0]]; !exists && server == "" {
				return fmt.Errorf("--url is required")
			}
			ctx := Context{
				Name:         args[0],
				Server:       server,
				Namespace:    namespace,
				Timeout:      timeout,
				RetryCeiling: retryCeiling,
				Checkpoint:   checkpoint,
			}
			setContext(cfg, ctx, makeCurrent)
			if err := cfg.Contexts[args[0]].validate(); err != nil {
				return err
			}
			if err := SaveConfig(cfg, a.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Context %q updated.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "url", "", "Kronos server URL")
	cmd.Flags().StringVar(&namespace, "default-namespace", "", "Default namespace")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Request timeout for this server (0 keeps KRONOS_TIMEOUT)")
	cmd.Flags().IntVar(&retryCeiling, "retry-ceiling", 0, "Attempts per streaming read (0 keeps KRONOS_RETRY_CEILING)")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "Checkpoint name 'kronos get' uses by default")
	cmd.Flags().BoolVar(&makeCurrent, "current", true, "Set as current context")
	return cmd
}

func (a *app) configUseContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-context <name>",
		Short: "Switch the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			if err := ensureContextExists(cfg, args[0]); err != nil {
				return err
			}
			cfg.CurrentContext = args[0]
			if err := SaveConfig(cfg, a.cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to context %q.\n", args[0])
			return nil
		},
	}
}

func (a *app) configCurrentContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Print the current context",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			if cfg.CurrentContext == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No context configured.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.CurrentContext)
			return nil
		},
	}
}

func (a *app) configViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the configured contexts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.cfgFile)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)
			return a.render(cmd.OutOrStdout(), cfg, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "CURRENT\tNAME\tSERVER\tNAMESPACE\tTIMEOUT\tRETRIES\tCHECKPOINT")
				for _, name := range names {
					ctx := cfg.Contexts[name]
					current := ""
					if cfg.CurrentContext == name {
						current = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", current, name, ctx.Server,
						orDash(ctx.Namespace), orDash(durationOrEmpty(ctx.Timeout)), orDash(intOrEmpty(ctx.RetryCeiling)), orDash(ctx.Checkpoint))
				}
			})
		},
	}
}

func durationOrEmpty(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

func intOrEmpty(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
