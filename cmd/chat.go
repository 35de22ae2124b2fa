package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/api"
	"github.com/fakeyudi/contractdesk/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask a question about the uploaded documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		reply, err := a.coord.Send(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			if errors.Is(err, session.ErrWrongMode) || errors.Is(err, session.ErrEmptyMessage) {
				return err
			}
			cmd.Println(session.ChatErrorMessage)
			return err
		}
		cmd.Println(reply)
		return nil
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the conversation of the current session",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		s := a.coord.Snapshot().Session
		if s.ID == "" {
			cmd.Println("no active session")
			return nil
		}

		// The backend keeps the authoritative transcript; fall back to the
		// local one when it has none.
		msgs, err := a.api.ChatHistory(cmd.Context(), s.ID)
		if api.IsUnauthorized(err) {
			return err
		}
		if err != nil {
			a.log.Warn("chat history unavailable", zap.String("session_id", s.ID), zap.Error(err))
		}
		if err == nil && len(msgs) > 0 {
			for _, m := range msgs {
				printMessage(cmd, m.Role, m.Content, m.Timestamp)
			}
			return nil
		}
		for _, m := range s.Messages {
			ts := ""
			if !m.Timestamp.IsZero() {
				ts = m.Timestamp.Format("2006-01-02 15:04:05")
			}
			printMessage(cmd, m.Role, m.Content, ts)
		}
		return nil
	}),
}

func printMessage(cmd *cobra.Command, role, content, ts string) {
	if ts != "" {
		cmd.Printf("[%s] %s: %s\n", ts, role, content)
		return
	}
	cmd.Printf("%s: %s\n", role, content)
}

func init() {
	rootCmd.AddCommand(chatCmd, historyCmd)
}
