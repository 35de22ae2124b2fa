package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/contractdesk/internal/config"
	"github.com/fakeyudi/contractdesk/internal/logging"
	"github.com/fakeyudi/contractdesk/internal/relay"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay: static web client, backend proxy and blob upload relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc := config.LoadRelay()
		if servePort != "" {
			rc.Port = servePort
		}
		log := logging.New(logging.Options{File: rc.LogFile, Console: true})
		defer log.Sync()

		if rc.FunctionAppURL == "" {
			log.Warn("FUNCTION_APP_URL is not set; backend calls will fail")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return relay.New(rc, log).ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (default $PORT or 8080)")
	rootCmd.AddCommand(serveCmd)
}
