package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/contractdesk/internal/compare"
	"github.com/fakeyudi/contractdesk/internal/tui"
)

var (
	compareCategory string
	compareFilter   string
	plainOutput     bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the two uploaded contracts",
	Long: "Runs the comparison of the session's two contracts, once per session, and\n" +
		"prints it. Later calls show the stored result; --filter and --category only\n" +
		"narrow what is displayed.",
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		category, err := compare.ParseCategory(compareCategory)
		if err != nil {
			return err
		}

		res := a.coord.Snapshot().Session.Comparison
		if res == nil {
			cmd.PrintErrln("Comparing contracts…")
			if res, err = a.coord.Compare(cmd.Context(), category); err != nil {
				return err
			}
		}

		if plainOutput {
			printResult(cmd.OutOrStdout(), res, category, compareFilter)
			return nil
		}
		cmd.Print(tui.RenderResult(res, category, compareFilter, terminalWidth(cmd)))
		return nil
	}),
}

// terminalWidth returns the width of stdout, or 0 when it is not a terminal.
func terminalWidth(cmd *cobra.Command) int {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return 0
	}
	w, _, err := term.GetSize(f.Fd())
	if err != nil {
		return 0
	}
	return w
}

var (
	titleColor    = color.New(color.Bold, color.FgCyan)
	headerColor   = color.New(color.Bold)
	positiveColor = color.New(color.FgGreen)
	negativeColor = color.New(color.FgRed, color.Bold)
)

func toneColor(t compare.Tone) *color.Color {
	switch t {
	case compare.TonePositive:
		return positiveColor
	case compare.ToneNegative:
		return negativeColor
	}
	return nil
}

// printResult writes r as plain text, one row per line.
func printResult(w io.Writer, r *compare.Result, c compare.Category, keyword string) {
	fmt.Fprintln(w, titleColor.Sprint("## Summary"))
	if s := strings.TrimSpace(r.Summary); s != "" {
		fmt.Fprintln(w, s)
	} else {
		fmt.Fprintln(w, "  No summary available.")
	}
	if st := r.Statistics; st != nil {
		fmt.Fprintf(w, "  Matches: %d  Mismatches: %d  Total: %d\n", st.Matches, st.Mismatches, st.Total)
	}
	fmt.Fprintln(w)

	for _, sec := range compare.FilterResult(r, c, keyword) {
		fmt.Fprintln(w, titleColor.Sprint("## "+sec.Title))
		if len(sec.Rows) == 0 {
			fmt.Fprintln(w, "  "+compare.NoResults)
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, "  "+headerColor.Sprint(strings.Join(sec.Headers, " | ")))
		for _, row := range sec.Rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				if col := toneColor(compare.CellTone(cell)); col != nil {
					cell = col.Sprint(cell)
				}
				cells[i] = cell
			}
			fmt.Fprintln(w, "  "+strings.Join(cells, " | "))
		}
		fmt.Fprintln(w)
	}
}

func init() {
	compareCmd.Flags().StringVar(&compareCategory, "category", "all", "all, product, project or service")
	compareCmd.Flags().StringVar(&compareFilter, "filter", "", "only show rows containing this keyword")
	compareCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of tables")
	rootCmd.AddCommand(compareCmd)
}
