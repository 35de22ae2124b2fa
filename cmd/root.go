package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/contractdesk/internal/config"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// skipSetup lists commands that run before (or without) the client wiring.
var skipSetup = map[string]bool{"version": true, "serve": true, "help": true}

var rootCmd = &cobra.Command{
	Use:           "contractdesk",
	Short:         "Upload, ask about and compare contract documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipSetup[cmd.Name()] {
			return nil
		}

		config.LoadDotEnv()

		// Load and merge config files.
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.ApplyEnv(config.Merge(global, project))

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		current = a
		return nil
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", friendly(err))
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}
