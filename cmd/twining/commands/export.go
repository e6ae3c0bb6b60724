package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/twining/internal/printer"
)

var (
	exportScope  string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render the project state as markdown",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportScope, "scope", "s", "", "Restrict to a scope")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to a file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStack()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.Exporter.Markdown(cmd.Context(), exportScope)
	if err != nil {
		return printer.Error("export failed", err.Error(), nil)
	}
	if exportOutput == "" {
		fmt.Print(res.Markdown)
		return nil
	}
	if err := os.WriteFile(exportOutput, []byte(res.Markdown), 0o644); err != nil {
		return printer.Error("could not write export", err.Error(), nil)
	}
	printer.Success("Exported %d decisions and %d entries to %s\n", res.Stats.Decisions, res.Stats.BlackboardEntries, exportOutput)
	return nil
}
