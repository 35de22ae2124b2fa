package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/api"
	"github.com/fakeyudi/contractdesk/internal/auth"
	"github.com/fakeyudi/contractdesk/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive chat and compare interface",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		loggedOut := make(chan struct{}, 1)
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go func() {
			err := auth.Watch(watchCtx, a.creds, func() {
				select {
				case loggedOut <- struct{}{}:
				default:
				}
			})
			if err != nil {
				a.log.Warn("credential watch stopped", zap.Error(err))
			}
		}()

		err := tui.Run(ctx, tui.Deps{
			Coordinator:   a.coord,
			Comparisons:   a.compares,
			PDF:           a.api,
			Logger:        a.log,
			LoginRequired: loggedOut,
		})

		if ctx.Err() != nil {
			// Killed: only a detached beacon is guaranteed a chance to leave.
			select {
			case <-a.coord.Unload():
			case <-time.After(api.BeaconTimeout):
			}
			return nil
		}
		a.coord.Close()
		return err
	}),
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
