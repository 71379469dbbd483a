package cmd

import (
	"github.com/spf13/cobra"

	"mindtracking-client/internal/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the profile synchronizer and the local bridge",
	Long: `serve warms the profile from the cache and the backend, refreshes it periodically
and exposes it to the app shell over HTTP and websocket until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap.Run(cmd.Context(), options())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
