package commands

import (
	"github.com/spf13/cobra"

	"github.com/HendryAvila/twining/internal/archive"
	"github.com/HendryAvila/twining/internal/printer"
)

var (
	archiveBefore        string
	archiveDropDecisions bool
	archiveNoSummary     bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move old blackboard entries into .twining/archive/",
	Long: `Move blackboard entries older than --before (default: now) into
.twining/archive/{date}-blackboard.jsonl. Decision entries stay unless
--drop-decisions is given.`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringVar(&archiveBefore, "before", "", "ISO 8601 cutoff (default: now)")
	archiveCmd.Flags().BoolVar(&archiveDropDecisions, "drop-decisions", false, "Archive decision entries too")
	archiveCmd.Flags().BoolVar(&archiveNoSummary, "no-summary", false, "Do not post a summary finding")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	st, err := openStack()
	if err != nil {
		return err
	}
	defer st.Close()

	keep := !archiveDropDecisions
	summarize := !archiveNoSummary
	res, err := st.Archiver.Archive(cmd.Context(), archive.Input{
		Before:        archiveBefore,
		KeepDecisions: &keep,
		Summarize:     &summarize,
	})
	if err != nil {
		return printer.Error("archive failed", err.Error(), nil)
	}
	if res.ArchivedCount == 0 {
		printer.Step("Nothing to archive\n")
		return nil
	}
	printer.Success("Archived %d entries to %s\n", res.ArchivedCount, res.ArchiveFile)
	return nil
}
