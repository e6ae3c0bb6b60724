package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/twining/internal/printer"
	"github.com/HendryAvila/twining/internal/status"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project health",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStack()
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := st.Status.Report(cmd.Context())
	if err != nil {
		return printer.Error("could not read project state", err.Error(), nil)
	}

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	md, err := status.Markdown(st.Renderer, rep)
	if err != nil {
		return err
	}
	fmt.Print(md)
	for _, w := range rep.Warnings {
		printer.Warning("%s", w)
	}
	return nil
}
