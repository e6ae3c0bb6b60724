package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/twining/internal/printer"
	"github.com/HendryAvila/twining/internal/server"
)

var projectDir string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twining",
	Short: "twining - shared memory for coding agents",
	Long: `twining keeps a blackboard, a decision log, a knowledge graph and an
agent registry under .twining/ so several AI agents working on one codebase
can see what the others found, decided and left unfinished.

Run "twining serve" from your AI tool's MCP configuration:

  {
    "mcpServers": {
      "twining": {
        "command": "twining",
        "args": ["serve", "--project", "/path/to/repo"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil && !printer.Shown(err) {
		printer.Error("Error", err.Error(), nil)
	}
	return err
}

// SetVersionInfo sets the version reported by --version and the MCP handshake.
func SetVersionInfo(v, c, d string) {
	server.Version = v
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", "", "Project root (default: current directory)")
}

// projectRoot resolves --project to an absolute path.
func projectRoot() (string, error) {
	dir := projectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	return abs, nil
}

// openStack opens the project's stores for a one-shot command.
func openStack() (*server.Stack, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}
	return server.Open(root)
}
