package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/contractdesk/internal/session"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the current session and start over",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if a.coord.Snapshot().Session.ID == "" {
			cmd.Println("no active session")
			return nil
		}
		a.coord.Clear(cmd.Context())
		cmd.Println("Session cleared.")
		return nil
	}),
}

var modeCmd = &cobra.Command{
	Use:       "mode [chat|compare]",
	Short:     "Show or switch the session mode",
	Long:      "Switching modes discards the current session, deleting it on the server when it holds documents.",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(session.ModeChat), string(session.ModeCompare)},
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if len(args) == 0 {
			cmd.Println(a.coord.Snapshot().Session.Mode)
			return nil
		}
		mode, ok := session.ParseMode(args[0])
		if !ok {
			return errUnknownMode(args[0])
		}
		a.coord.SwitchMode(mode)
		cmd.Printf("Mode: %s\n", mode)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(clearCmd, modeCmd)
}
