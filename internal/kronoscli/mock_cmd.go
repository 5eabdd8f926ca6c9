package kronoscli

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/oremus-labs/kronos-go/internal/mockserver"
)

func (a *app) mockServerCmd() *cobra.Command {
	var (
		addr       string
		namespace  string
		flushEvery int
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory Kronos server for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.env.MockAddr
			}
			gin.SetMode(gin.ReleaseMode)
			srv := mockserver.New(mockserver.Options{DefaultNamespace: namespace, FlushEvery: flushEvery})
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $MOCK_ADDR)")
	cmd.Flags().StringVar(&namespace, "default-namespace", mockserver.DefaultNamespace, "Namespace used when requests send null")
	cmd.Flags().IntVar(&flushEvery, "flush-every", 100, "Flush streamed responses every N events")
	return cmd
}
