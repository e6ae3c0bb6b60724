package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/twining/internal/blackboard"
	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/printer"
	"github.com/HendryAvila/twining/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream new blackboard entries as they are posted",
	Long: `Follow .twining/blackboard.jsonl and print each new entry as agents
post it. Entries already on the board are not shown. Press Ctrl+C to stop.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	dir, err := config.Init(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer.Step("Watching %s (Ctrl+C to stop)\n", dir)
	err = watch.New(dir).Run(ctx, func(e blackboard.Entry) {
		printer.Entry(os.Stdout, e)
	})
	if err != nil && ctx.Err() == nil {
		return printer.Error("watch stopped", err.Error(), nil)
	}
	if ctx.Err() == context.Canceled {
		printer.Step("Stopped\n")
	}
	return nil
}
