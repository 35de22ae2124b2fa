package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/contractdesk/internal/compare"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:       "export <csv|md|json|pdf>",
	Short:     "Export the session's comparison",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"csv", "md", "json", "pdf"},
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		id := a.coord.Snapshot().Session.ID
		format := strings.ToLower(args[0])

		var (
			data []byte
			ext  string
			err  error
		)
		if format == "pdf" {
			ext = "pdf"
			data, err = a.compares.ExportPDF(cmd.Context(), id, a.api)
		} else {
			rd, rerr := compare.RendererFor(format)
			if rerr != nil {
				return rerr
			}
			ext = rd.Extension()
			data, err = a.compares.Export(id, rd)
		}
		if err != nil {
			return err
		}

		path := exportOutput
		if path == "" {
			path = compare.ExportFileName(ext)
		}
		if path == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
		cmd.Printf("Exported to %s\n", path)
		return nil
	}),
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (- for stdout)")
	rootCmd.AddCommand(exportCmd)
}
