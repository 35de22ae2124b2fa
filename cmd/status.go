package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/contractdesk/internal/auth"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in user and the current session",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		c, err := a.creds.Load()
		switch {
		case err == nil:
			cmd.Printf("User: %s\n", c.Email)
			if c.ExpiresAt != nil {
				cmd.Printf("Token expires: %s\n", c.ExpiresAt.Format(time.RFC3339))
			}
		case errors.Is(err, auth.ErrNoCredentials):
			cmd.Println("User: not logged in")
		default:
			return err
		}

		st := a.coord.Snapshot()
		s := st.Session
		cmd.Printf("Mode: %s\n", s.Mode)
		if s.ID == "" {
			cmd.Println("no active session")
			return nil
		}
		cmd.Printf("Session: %s\n", s.ID)
		cmd.Printf("Started: %s\n", s.CreatedAt.Format(time.RFC3339))
		cmd.Printf("Status: %s\n", st.Status)
		cmd.Printf("Files: %d\n", len(s.Files))
		for _, f := range s.Files {
			cmd.Printf("  %s\n", f.Name)
		}
		cmd.Printf("Messages: %d\n", len(s.Messages))
		if s.Comparison != nil {
			cmd.Printf("Comparison: %d section(s), category %s\n", len(s.Comparison.Sections), s.Category)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
