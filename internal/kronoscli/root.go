// Package kronoscli implements the kronos command line tool.
package kronoscli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/kronos-go/config"
	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/kronos"
)

// app carries flag values and loaded configuration for one invocation.
type app struct {
	cfgFile     string
	contextName string
	server      string
	namespace   string
	output      string
	logLevel    string

	env  *config.Config
	file *Config
}

// Execute runs the CLI. Cancelling ctx stops streaming reads and relays.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kronos",
		Short: "Read and write Kronos event streams",
		Long: `kronos talks to a Kronos event store: put events, stream them back,
relay them through Redis and validate them against inferred schemas.
Connection settings come from flags, the current context (see
'kronos config set-context') and KRONOS_* environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", defaultConfigPath(), "Path to the kronos config file")
	flags.StringVar(&a.contextName, "context", "", "Context name to use (overrides current)")
	flags.StringVar(&a.server, "server", "", "Override Kronos server URL")
	flags.StringVarP(&a.namespace, "namespace", "n", "", "Override namespace for commands")
	flags.StringVarP(&a.output, "output", "o", formatTable, "Output format: table|json|yaml")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	root.AddCommand(
		a.indexCmd(),
		a.putCmd(),
		a.getCmd(),
		a.deleteCmd(),
		a.streamsCmd(),
		a.schemaCmd(),
		a.relayCmd(),
		a.checkpointCmd(),
		a.mockServerCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	if err := validFormat(a.output); err != nil {
		return err
	}
	a.env = config.Load()
	level := a.logLevel
	if level == "" {
		level = a.env.LogLevel
	}
	logutil.SetLevel(logutil.ParseLevel(level))

	// Config commands load and save the file themselves.
	if strings.HasPrefix(cmd.CommandPath(), "kronos config") {
		return nil
	}
	file, err := LoadConfig(a.cfgFile)
	if err != nil {
		return err
	}
	a.file = file
	return nil
}

// resolvedContext merges flags, the selected context and the environment.
func (a *app) resolvedContext() (Context, error) {
	resolved := Context{
		Server:       a.env.URL,
		Namespace:    a.env.Namespace,
		Timeout:      a.env.Timeout,
		RetryCeiling: a.env.RetryCeiling,
	}
	name := a.contextName
	if name == "" && a.file != nil {
		name = a.file.CurrentContext
	}
	if name != "" {
		var (
			ctx Context
			ok  bool
		)
		if a.file != nil {
			ctx, ok = a.file.Contexts[name]
		}
		if !ok {
			return Context{}, fmt.Errorf("context %q not found; use 'kronos config set-context'", name)
		}
		resolved = resolved.merge(ctx)
		resolved.Name = name
	}
	resolved = resolved.merge(Context{Server: a.server, Namespace: a.namespace})
	if resolved.Server == "" {
		return Context{}, fmt.Errorf("no Kronos server configured (set KRONOS_URL or --server)")
	}
	return resolved, nil
}

func (a *app) client() (*kronos.Client, error) {
	ctx, err := a.resolvedContext()
	if err != nil {
		return nil, err
	}
	policy := kronos.DefaultRetryPolicy()
	policy.Ceiling = ctx.RetryCeiling
	policy.Delay = a.env.RetryDelay
	return kronos.New(kronos.Options{
		URL:       ctx.Server,
		Namespace: ctx.Namespace,
		Timeout:   ctx.Timeout,
		Retry:     &policy,
	})
}
