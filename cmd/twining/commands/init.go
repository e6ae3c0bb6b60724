package commands

import (
	"github.com/spf13/cobra"

	"github.com/HendryAvila/twining/internal/config"
	"github.com/HendryAvila/twining/internal/printer"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .twining/ directory with a default config",
	Long: `Create .twining/ in the project root with its subdirectories, a default
config.yml and a .gitignore for generated files. Existing files are kept.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	dir, err := config.Init(root)
	if err != nil {
		return printer.Error("could not initialize twining", err.Error(), []string{
			"Check that the project directory is writable",
		})
	}
	printer.Success("Initialized %s\n", dir)
	return nil
}
