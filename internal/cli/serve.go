package cli

import (
	"github.com/glorpus-work/plugd/internal/api"
	"github.com/glorpus-work/plugd/internal/logger"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the package API over HTTP until interrupted.

Running installations are cancelled on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, store, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			addr := store.Settings().Listen
			if listen != "" {
				addr = listen
			}
			logger.Info("Starting plugd", logger.Fields{"listen": addr, "version": Version})
			return api.NewServer(addr, svc).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (defaults to settings.listen)")

	return cmd
}
