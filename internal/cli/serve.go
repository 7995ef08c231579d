package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stageline.dev/stageline/internal/cli/helpers"
	"stageline.dev/stageline/internal/runtime"
	"stageline.dev/stageline/internal/server"
)

// newServeCmd creates the serve command
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the staging operations over HTTP",
		Long: `Serve the staging operations over HTTP.

Every operation is exposed under /v1. Operations on the same branch are
serialized by the same locks the command line uses, so the server and
the CLI can run side by side on one repository. /healthz checks the
metadata store and /metrics exposes Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return helpers.Run(cmd, func(rt *runtime.Context) error {
				if addr == "" {
					addr = rt.Config.Server.Addr
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return server.New(rt).Run(ctx, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}
