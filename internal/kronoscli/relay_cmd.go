package kronoscli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/internal/redisx"
	"github.com/oremus-labs/kronos-go/internal/relay"
	"github.com/oremus-labs/kronos-go/kronos"
)

// relayFlags override the REDIS_* and RELAY_* environment.
type relayFlags struct {
	redisAddr string
	stream    string
}

func (r *relayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.redisAddr, "redis-addr", "", "Redis host:port or redis:// URL (default $REDIS_ADDR)")
	cmd.Flags().StringVar(&r.stream, "relay-stream", "", "Redis stream key (default $RELAY_STREAM)")
}

func (a *app) redisConfig(flags relayFlags) (redisx.Config, string) {
	cfg := redisx.FromAppConfig(a.env)
	if flags.redisAddr != "" {
		cfg.Addr = flags.redisAddr
	}
	key := a.env.RelayStream
	if flags.stream != "" {
		key = flags.stream
	}
	return cfg, key
}

type relaySummary struct {
	Direction string `json:"direction"`
	Stream    string `json:"stream"`
	Redis     string `json:"redis"`
	Count     int    `json:"count"`
}

func (a *app) relayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Move events between Kronos and Redis Streams",
	}
	cmd.AddCommand(a.relayExportCmd(), a.relayIngestCmd())
	return cmd
}

func (a *app) relayExportCmd() *cobra.Command {
	var (
		flags  relayFlags
		rng    rangeFlags
		maxLen int64
	)
	cmd := &cobra.Command{
		Use:   "export <stream>",
		Short: "Publish a range of Kronos events to a Redis stream",
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
			ctx := cmd.Context()
			redisCfg, key := a.redisConfig(flags)
			rdb, err := redisx.Require(ctx, redisCfg)
			if err != nil {
				return err
			}
			defer rdb.Close()

			s, err := client.Get(ctx, args[0], start, end, kronos.GetOptions{StartID: rng.startID})
			if err != nil {
				return err
			}
			n, err := relay.NewExporter(relay.NewRedisPublisher(rdb, key, maxLen)).Export(ctx, s, client.Namespace(), args[0])
			if err != nil {
				return fmt.Errorf("exported %d events before failing: %w", n, err)
			}
			summary := relaySummary{Direction: "export", Stream: args[0], Redis: key, Count: n}
			return a.render(cmd.OutOrStdout(), summary, summaryTable(summary))
		},
	}
	flags.register(cmd)
	rng.register(cmd)
	cmd.Flags().Int64Var(&maxLen, "max-len", 0, "Approximate cap on the Redis stream length (0 for none)")
	return cmd
}

func (a *app) relayIngestCmd() *cobra.Command {
	var (
		flags    relayFlags
		group    string
		consumer string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Put messages from a Redis consumer group into Kronos until interrupted",
		Long: `Read the relay stream as a member of a consumer group and put every message
into Kronos. Messages are acknowledged once stored. When a put fails the
command exits; restarting with the same --consumer replays the pending
messages first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			redisCfg, key := a.redisConfig(flags)
			rdb, err := redisx.Require(ctx, redisCfg)
			if err != nil {
				return err
			}
			defer rdb.Close()

			if group == "" {
				group = a.env.RelayGroup
			}
			if consumer == "" {
				consumer, _ = os.Hostname()
			}
			src := relay.NewRedisConsumer(rdb, key, group, consumer)
			if err := src.EnsureGroup(ctx); err != nil {
				return fmt.Errorf("create consumer group %s: %w", group, err)
			}
			logutil.Info("relay ingest started", map[string]interface{}{
				"redis":        redisCfg.Redacted(),
				"redis_stream": key,
				"group":        group,
				"consumer":     consumer,
			})
			n, err := relay.NewIngester(src, client).Run(ctx)
			if err != nil {
				return fmt.Errorf("ingested %d messages before failing: %w", n, err)
			}
			summary := relaySummary{Direction: "ingest", Redis: key, Count: n}
			return a.render(cmd.OutOrStdout(), summary, summaryTable(summary))
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&group, "group", "", "Consumer group (default $RELAY_GROUP)")
	cmd.Flags().StringVar(&consumer, "consumer", "", "Consumer name (default hostname)")
	return cmd
}

func summaryTable(s relaySummary) func(tw *tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "DIRECTION\tSTREAM\tREDIS\tCOUNT")
		stream := s.Stream
		if stream == "" {
			stream = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.Direction, stream, s.Redis, s.Count)
	}
}
