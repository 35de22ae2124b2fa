package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/contractdesk/internal/blob"
	"github.com/fakeyudi/contractdesk/internal/session"
)

var uploadMode string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload contract documents into the current session",
	Long: "Upload one or two documents (PDF, DOC, DOCX, XLS, XLSX). In chat mode the files\n" +
		"replace the previous batch; in compare mode they fill contract slots A and B.\n" +
		"Uploading after a completed upload starts a new session.",
	Args: cobra.RangeArgs(1, session.MaxFiles),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if uploadMode != "" {
			mode, ok := session.ParseMode(uploadMode)
			if !ok {
				return errUnknownMode(uploadMode)
			}
			a.coord.SwitchMode(mode)
		}

		files := make([]blob.File, 0, len(args))
		for _, p := range args {
			f, err := blob.FromPath(p)
			if err != nil {
				return err
			}
			files = append(files, f)
		}

		before := a.coord.Snapshot().Session.ID
		if err := a.coord.SelectFiles(cmd.Context(), files); err != nil {
			return err
		}

		st := a.coord.Snapshot()
		if before != "" && before != st.Session.ID {
			cmd.Println(session.NewSessionMessage)
		}
		for _, f := range files {
			cmd.Printf("Uploaded %s\n", f.Name)
		}
		cmd.Printf("Session: %s (%s mode)\n", st.Session.ID, st.Session.Mode)
		if st.Session.Mode == session.ModeCompare && !st.Session.FilesUploaded {
			cmd.Printf("Contract slots filled: %d/%d. Upload the other contract to compare.\n", len(st.Session.Files), session.MaxFiles)
		}
		return nil
	}),
}

func errUnknownMode(m string) error {
	return fmt.Errorf("unknown mode %q (chat or compare)", m)
}

func init() {
	uploadCmd.Flags().StringVar(&uploadMode, "mode", "", "switch to chat or compare mode first")
	rootCmd.AddCommand(uploadCmd)
}
